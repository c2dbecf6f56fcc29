// Package executor validates signed L2 transactions and applies them to the
// ledger. Every accepted transaction is final the moment it is persisted.
package executor

import (
	"context"
	"math/big"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/transactions"
)

// DefaultBurnPercent is the share of gas removed from supply.
const DefaultBurnPercent = 50

// Request is an unconfirmed transaction as submitted by its sender.
type Request struct {
	Sender    types.AccountID
	Recipient types.AccountID
	Type      types.TxType
	Amount    *big.Int
	Nonce     uint64
	Signature []byte
	Payload   []byte
}

// SigningHash is the digest the sender signs.
func (r *Request) SigningHash() [32]byte {
	tx := types.Transaction{
		Sender:    r.Sender,
		Recipient: r.Recipient,
		Type:      r.Type,
		Amount:    r.Amount,
		Nonce:     r.Nonce,
	}
	return tx.SigningHash()
}

// Receipt describes an applied transaction.
type Receipt struct {
	Tx *types.Transaction
	// Burned and ValidatorShare split Tx.GasFee. The validator share is paid
	// out when the transaction is included in a batch.
	Burned         *big.Int
	ValidatorShare *big.Int
}

// Opt configures Executor.
type Opt func(*Executor)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithClock sets the clock used for confirmation time and hash salt.
func WithClock(clock clockwork.Clock) Opt {
	return func(e *Executor) {
		e.clock = clock
	}
}

// WithGasSchedule replaces the fee table.
func WithGasSchedule(gas GasSchedule) Opt {
	return func(e *Executor) {
		e.gas = gas
	}
}

// WithBurnPercent sets the burned share of gas, 0 to 100.
func WithBurnPercent(percent uint64) Opt {
	return func(e *Executor) {
		e.burnPercent = percent
	}
}

// Executor is the only entry point for user initiated state changes.
type Executor struct {
	db          *sql.Database
	ledger      *ledger.Ledger
	logger      *zap.Logger
	clock       clockwork.Clock
	gas         GasSchedule
	burnPercent uint64
}

// New creates an Executor applying transactions to l.
func New(db *sql.Database, l *ledger.Ledger, opts ...Opt) *Executor {
	e := &Executor{
		db:          db,
		ledger:      l,
		logger:      zap.NewNop(),
		clock:       clockwork.NewRealClock(),
		gas:         DefaultGasSchedule(),
		burnPercent: DefaultBurnPercent,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BurnPercent returns the configured burned share of gas.
func (e *Executor) BurnPercent() uint64 {
	return e.burnPercent
}

// EstimateGas returns the fee a transaction of typ would pay.
func (e *Executor) EstimateGas(typ types.TxType) (*big.Int, error) {
	fee, err := e.gas.Fee(typ)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "%v", err)
	}
	return fee, nil
}

// ExecuteTransaction validates req and applies it in a single atomic unit.
// Rejected requests leave no trace in the store.
func (e *Executor) ExecuteTransaction(ctx context.Context, req *Request) (*Receipt, error) {
	if err := validateShape(req); err != nil {
		rejected.WithLabelValues(string(errcode.From(err).Code)).Inc()
		return nil, err
	}
	var receipt *Receipt
	err := e.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		receipt, err = e.apply(tx, req)
		return err
	})
	if err != nil {
		rejected.WithLabelValues(string(errcode.From(err).Code)).Inc()
		e.logger.Debug("transaction rejected",
			log.ZAccount(req.Sender),
			zap.String("type", string(req.Type)),
			zap.Uint64("nonce", req.Nonce),
			zap.Error(err),
		)
		return nil, err
	}
	executed.WithLabelValues(string(req.Type)).Inc()
	e.logger.Debug("transaction confirmed",
		log.ZHash("hash", receipt.Tx.Hash),
		log.ZAccount(req.Sender),
		zap.String("type", string(req.Type)),
		log.ZAmount("amount", req.Amount),
		log.ZAmount("gas", receipt.Tx.GasFee),
	)
	return receipt, nil
}

func validateShape(req *Request) error {
	if !req.Type.Valid() {
		return errcode.New(errcode.CodeInvalidRequest, "unknown transaction type %q", req.Type)
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return errcode.New(errcode.CodeInvalidAmount, "amount must be positive, got %s", types.AmountString(req.Amount))
	}
	if req.Type.NeedsRecipient() && req.Recipient == "" {
		return errcode.New(errcode.CodeInvalidRequest, "%s requires a recipient", req.Type)
	}
	if !req.Type.NeedsRecipient() && req.Recipient != "" {
		return errcode.New(errcode.CodeInvalidRequest, "%s takes no recipient", req.Type)
	}
	return nil
}

func (e *Executor) apply(tx sql.Executor, req *Request) (*Receipt, error) {
	sender, err := ledger.Resolve(tx, ledger.ID(req.Sender))
	if err != nil {
		return nil, err
	}
	if req.Nonce != sender.Nonce {
		return nil, errcode.New(errcode.CodeInvalidNonce, "expected nonce %d, got %d", sender.Nonce, req.Nonce)
	}
	gas, err := e.EstimateGas(req.Type)
	if err != nil {
		return nil, err
	}
	if err := checkFunds(sender, req, gas); err != nil {
		return nil, err
	}
	digest := req.SigningHash()
	if len(sender.PublicKey) == 0 || !keys.Verify(sender.PublicKey, digest[:], req.Signature) {
		return nil, errcode.New(errcode.CodeInvalidSignature, "signature does not verify for %s", req.Sender)
	}

	if err := Apply(sender, req.Type, req.Amount, gas); err != nil {
		return nil, err
	}
	if err := e.ledger.SaveInTx(tx, sender); err != nil {
		return nil, err
	}
	if req.Type == types.TxTransfer {
		if err := e.ledger.CreditInTx(tx, req.Recipient, req.Amount); err != nil {
			return nil, err
		}
	}

	now := e.clock.Now()
	confirmed := &types.Transaction{
		Sender:      req.Sender,
		Recipient:   req.Recipient,
		Type:        req.Type,
		Amount:      new(big.Int).Set(req.Amount),
		GasFee:      gas,
		Nonce:       req.Nonce,
		Signature:   req.Signature,
		Payload:     req.Payload,
		Status:      types.TxConfirmed,
		CreatedAt:   now,
		ConfirmedAt: now,
	}
	confirmed.Hash = confirmed.CalcHash(now)
	if err := transactions.Add(tx, confirmed); err != nil {
		return nil, err
	}
	burned, share := SplitGas(gas, e.burnPercent)
	return &Receipt{Tx: confirmed, Burned: burned, ValidatorShare: share}, nil
}

func checkFunds(sender *types.Account, req *Request, gas *big.Int) error {
	need := new(big.Int).Set(gas)
	if req.Type == types.TxUnstake {
		if sender.Staked.Cmp(req.Amount) < 0 {
			return errcode.New(errcode.CodeInsufficientStake,
				"%s has %s staked, needs %s", sender.ID, sender.Staked, req.Amount)
		}
	} else {
		need.Add(need, req.Amount)
	}
	if sender.Balance.Cmp(need) < 0 {
		return errcode.New(errcode.CodeInsufficientBalance,
			"%s has %s available, needs %s", sender.ID, sender.Balance, need)
	}
	return nil
}

// Apply mutates sender the way an accepted transaction does: debits amount
// and gas, moves stake and increments the nonce. The recipient credit of a
// transfer is left to the caller. Apply is shared with fraud proof
// re-execution so both paths follow one rule.
func Apply(sender *types.Account, typ types.TxType, amount, gas *big.Int) error {
	balance := types.CopyAmount(sender.Balance)
	staked := types.CopyAmount(sender.Staked)
	balance.Sub(balance, gas)
	switch typ {
	case types.TxTransfer, types.TxBurn:
		balance.Sub(balance, amount)
	case types.TxStake:
		balance.Sub(balance, amount)
		staked.Add(staked, amount)
	case types.TxUnstake:
		staked.Sub(staked, amount)
		balance.Add(balance, amount)
	default:
		return errcode.New(errcode.CodeInvalidRequest, "unknown transaction type %q", typ)
	}
	if balance.Sign() < 0 {
		return errcode.New(errcode.CodeInsufficientBalance, "%s cannot cover %s", sender.ID, typ)
	}
	if staked.Sign() < 0 {
		return errcode.New(errcode.CodeInsufficientStake, "%s cannot cover %s", sender.ID, typ)
	}
	sender.Balance = balance
	sender.Staked = staked
	sender.Nonce++
	return nil
}
