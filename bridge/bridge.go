// Package bridge moves value between L1 and L2. Deposits to the committee
// multisig are minted as credits, withdrawals burn credits and are paid out
// from the multisig after a challenge window.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/bridge/runestone"
	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/multisig"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/deposits"
	"github.com/btcl2/l2node/sql/withdrawals"
)

// Opt configures Bridge.
type Opt func(*Bridge)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Opt {
	return func(b *Bridge) {
		b.logger = logger
	}
}

// WithClock sets the clock driving challenge deadlines.
func WithClock(clock clockwork.Clock) Opt {
	return func(b *Bridge) {
		b.clock = clock
	}
}

// WithConfig replaces DefaultConfig.
func WithConfig(cfg Config) Opt {
	return func(b *Bridge) {
		b.cfg = cfg
	}
}

// Bridge owns deposit claims and the withdrawal lifecycle.
type Bridge struct {
	db        *sql.Database
	ledger    *ledger.Ledger
	client    l1.Client
	custody   *multisig.Descriptor
	signer    keys.Signer
	committee []keys.Locator
	token     runestone.ID

	cfg    Config
	logger *zap.Logger
	clock  clockwork.Clock
}

// New creates a Bridge paying out of custody. committee lists the locators
// the signer is asked for, in order, when collecting payout signatures.
func New(
	db *sql.Database,
	l *ledger.Ledger,
	client l1.Client,
	custody *multisig.Descriptor,
	signer keys.Signer,
	committee []keys.Locator,
	opts ...Opt,
) (*Bridge, error) {
	b := &Bridge{
		db:        db,
		ledger:    l,
		client:    client,
		custody:   custody,
		signer:    signer,
		committee: committee,
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}
	b.token, _ = runestone.ParseID(b.cfg.Token)
	return b, nil
}

// Config returns the effective configuration.
func (b *Bridge) Config() Config {
	return b.cfg
}

// Custody returns the multisig descriptor deposits are paid to.
func (b *Bridge) Custody() *multisig.Descriptor {
	return b.custody
}

// Credits converts a token amount to credits.
func (b *Bridge) Credits(amount *big.Int) *big.Int {
	return new(big.Int).Mul(amount, new(big.Int).SetUint64(b.cfg.Rate))
}

// GetDeposit loads a deposit by "txid:vout".
func (b *Bridge) GetDeposit(_ context.Context, id string) (*types.Deposit, error) {
	d, err := deposits.Get(b.db, id)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "deposit %s", id)
	}
	return d, err
}

// DepositsOf lists deposits credited to an account.
func (b *Bridge) DepositsOf(_ context.Context, id types.AccountID, limit int) ([]*types.Deposit, error) {
	return deposits.ByAccount(b.db, id, limit)
}

// GetWithdrawal loads a withdrawal by id.
func (b *Bridge) GetWithdrawal(_ context.Context, id string) (*types.Withdrawal, error) {
	w, err := withdrawals.Get(b.db, id)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "withdrawal %s", id)
	}
	return w, err
}

// WithdrawalsOf lists withdrawals requested by an account.
func (b *Bridge) WithdrawalsOf(_ context.Context, id types.AccountID, limit int) ([]*types.Withdrawal, error) {
	return withdrawals.ByAccount(b.db, id, limit)
}

func wrapNotFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNotFound) {
		return errcode.New(errcode.CodeNotFound, format, args...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
