// Package ledger is the durable account store: balances, stake, nonces and
// the atomic mutation primitives every other component builds on.
package ledger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/accounts"
)

// Opt configures Ledger.
type Opt func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithClock sets the clock used for timestamps.
func WithClock(clock clockwork.Clock) Opt {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithNetwork sets the L1 network used to decode owner addresses.
func WithNetwork(net *chaincfg.Params) Opt {
	return func(l *Ledger) {
		l.net = net
	}
}

// Ledger serializes every mutation through an immediate sqlite transaction.
type Ledger struct {
	db     *sql.Database
	logger *zap.Logger
	clock  clockwork.Clock
	net    *chaincfg.Params
}

// New creates a Ledger over db.
func New(db *sql.Database, opts ...Opt) *Ledger {
	l := &Ledger{
		db:     db,
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
		net:    &chaincfg.MainNetParams,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the clock the ledger stamps mutations with.
func (l *Ledger) Clock() clockwork.Clock {
	return l.clock
}

// Network returns the L1 network owner addresses are decoded for.
func (l *Ledger) Network() *chaincfg.Params {
	return l.net
}

// OwnerKey returns the x-only key that controls a P2TR owner address, or nil
// for other address types. Malformed addresses are an InvalidRequest.
func OwnerKey(l1Address string, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(l1Address, net)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid l1 address %q: %v", l1Address, err)
	}
	if !addr.IsForNet(net) {
		return nil, errcode.New(errcode.CodeInvalidRequest, "l1 address %q is not for %s", l1Address, net.Name)
	}
	if tr, ok := addr.(*btcutil.AddressTaproot); ok {
		return tr.WitnessProgram(), nil
	}
	return nil, nil
}

// CreateAccount opens an account for l1Address. It is idempotent: an existing
// account is returned unchanged. The verification key is the output key of a
// P2TR owner address; an explicit pubkey is accepted only if it matches.
func (l *Ledger) CreateAccount(ctx context.Context, l1Address string, pubkey []byte) (*types.Account, bool, error) {
	var (
		account *types.Account
		created bool
	)
	err := l.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		account, created, err = l.CreateAccountInTx(tx, l1Address, pubkey)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		accountsCreated.Inc()
		l.logger.Info("account created", log.ZAccount(account.ID), zap.String("l1_address", l1Address))
	}
	return account, created, nil
}

// CreateAccountInTx is CreateAccount inside an existing transaction.
func (l *Ledger) CreateAccountInTx(tx sql.Executor, l1Address string, pubkey []byte) (*types.Account, bool, error) {
	if l1Address == "" {
		return nil, false, errcode.New(errcode.CodeInvalidRequest, "l1 address is required")
	}
	owner, err := OwnerKey(l1Address, l.net)
	if err != nil {
		return nil, false, err
	}
	if len(pubkey) > 0 && !bytes.Equal(pubkey, owner) {
		return nil, false, errcode.New(errcode.CodeInvalidRequest,
			"public key does not control %s", l1Address)
	}
	existing, err := accounts.GetByAddress(tx, l1Address)
	switch {
	case err == nil:
		return existing, false, nil
	case !errors.Is(err, sql.ErrNotFound):
		return nil, false, err
	}
	account := types.NewAccount(l1Address, l.clock.Now())
	account.PublicKey = owner
	if err := accounts.Add(tx, account); err != nil {
		return nil, false, err
	}
	return account, true, nil
}

// GetAccount resolves a lookup.
func (l *Ledger) GetAccount(_ context.Context, lookup Lookup) (*types.Account, error) {
	return Resolve(l.db, lookup)
}

// GetBalance returns the balance snapshot of an account.
func (l *Ledger) GetBalance(ctx context.Context, lookup Lookup) (types.Balance, error) {
	account, err := l.GetAccount(ctx, lookup)
	if err != nil {
		return types.Balance{}, err
	}
	return account.Snapshot(), nil
}

// UpdateBalance overwrites the available balance. Negative values are rejected.
func (l *Ledger) UpdateBalance(ctx context.Context, id types.AccountID, value *big.Int) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return l.SetBalanceInTx(tx, id, value)
	})
}

// SetBalanceInTx is UpdateBalance inside an existing transaction.
func (l *Ledger) SetBalanceInTx(tx sql.Executor, id types.AccountID, value *big.Int) error {
	if value == nil || value.Sign() < 0 {
		return errcode.New(errcode.CodeNegativeBalance, "balance of %s cannot be %s", id, types.AmountString(value))
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Set(value)
	return l.save(tx, account)
}

// Transfer moves amount from one available balance to another.
func (l *Ledger) Transfer(ctx context.Context, from, to types.AccountID, amount *big.Int) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return l.TransferInTx(tx, from, to, amount)
	})
}

// TransferInTx is Transfer inside an existing transaction.
func (l *Ledger) TransferInTx(tx sql.Executor, from, to types.AccountID, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	if err := l.DebitInTx(tx, from, amount); err != nil {
		return err
	}
	return l.CreditInTx(tx, to, amount)
}

// CreditInTx adds amount to the available balance.
func (l *Ledger) CreditInTx(tx sql.Executor, id types.AccountID, amount *big.Int) error {
	if err := nonNegative(amount); err != nil {
		return err
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.save(tx, account)
}

// DebitInTx subtracts amount from the available balance.
func (l *Ledger) DebitInTx(tx sql.Executor, id types.AccountID, amount *big.Int) error {
	if err := nonNegative(amount); err != nil {
		return err
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return errcode.New(errcode.CodeInsufficientBalance,
			"%s has %s available, needs %s", id, account.Balance, amount)
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	return l.save(tx, account)
}

// Stake moves amount from available balance into stake.
func (l *Ledger) Stake(ctx context.Context, id types.AccountID, amount *big.Int) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return l.StakeInTx(tx, id, amount)
	})
}

// StakeInTx is Stake inside an existing transaction.
func (l *Ledger) StakeInTx(tx sql.Executor, id types.AccountID, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	if account.Balance.Cmp(amount) < 0 {
		return errcode.New(errcode.CodeInsufficientBalance,
			"%s has %s available, needs %s to stake", id, account.Balance, amount)
	}
	account.Balance = new(big.Int).Sub(account.Balance, amount)
	account.Staked = new(big.Int).Add(account.Staked, amount)
	return l.save(tx, account)
}

// Unstake moves amount from stake back to available balance.
func (l *Ledger) Unstake(ctx context.Context, id types.AccountID, amount *big.Int) error {
	return l.db.WithTx(ctx, func(tx *sql.Tx) error {
		return l.UnstakeInTx(tx, id, amount)
	})
}

// UnstakeInTx is Unstake inside an existing transaction.
func (l *Ledger) UnstakeInTx(tx sql.Executor, id types.AccountID, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	if account.Staked.Cmp(amount) < 0 {
		return errcode.New(errcode.CodeInsufficientStake,
			"%s has %s staked, needs %s", id, account.Staked, amount)
	}
	account.Staked = new(big.Int).Sub(account.Staked, amount)
	account.Balance = new(big.Int).Add(account.Balance, amount)
	return l.save(tx, account)
}

// BurnStakeInTx removes amount from stake without crediting it anywhere.
func (l *Ledger) BurnStakeInTx(tx sql.Executor, id types.AccountID, amount *big.Int) error {
	if err := nonNegative(amount); err != nil {
		return err
	}
	account, err := Resolve(tx, ID(id))
	if err != nil {
		return err
	}
	if account.Staked.Cmp(amount) < 0 {
		return errcode.New(errcode.CodeInsufficientStake,
			"%s has %s staked, needs %s", id, account.Staked, amount)
	}
	account.Staked = new(big.Int).Sub(account.Staked, amount)
	return l.save(tx, account)
}

// SaveInTx persists an account mutated by the caller, rejecting negative fields.
func (l *Ledger) SaveInTx(tx sql.Executor, account *types.Account) error {
	return l.save(tx, account)
}

func (l *Ledger) save(tx sql.Executor, account *types.Account) error {
	for _, v := range []*big.Int{account.Balance, account.Staked, account.Locked} {
		if v == nil || v.Sign() < 0 {
			return errcode.New(errcode.CodeNegativeBalance, "negative amount on %s", account.ID)
		}
	}
	account.UpdatedAt = l.clock.Now()
	if err := accounts.Update(tx, account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	mutations.Inc()
	return nil
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errcode.New(errcode.CodeInvalidAmount, "amount must be positive, got %s", types.AmountString(amount))
	}
	return nil
}

func nonNegative(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errcode.New(errcode.CodeInvalidAmount, "amount must not be negative, got %s", types.AmountString(amount))
	}
	return nil
}

// States returns the committed state of every account ordered by id.
func (l *Ledger) States(_ context.Context) ([]types.AccountState, error) {
	return accounts.States(l.db)
}
