// Package validators manages the federation members: registration with a
// stake taken from their L2 account, reward claims, slashing and
// deactivation. Validators are never deleted.
package validators

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"regexp"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	vsql "github.com/btcl2/l2node/sql/validators"
)

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Opt configures Registry.
type Opt func(*Registry)

func WithLogger(logger *zap.Logger) Opt {
	return func(r *Registry) {
		r.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(r *Registry) {
		r.clock = clock
	}
}

func WithConfig(cfg Config) Opt {
	return func(r *Registry) {
		r.cfg = cfg
	}
}

// Registry is the validator service.
type Registry struct {
	db     *sql.Database
	ledger *ledger.Ledger
	cfg    Config
	logger *zap.Logger
	clock  clockwork.Clock
}

func New(db *sql.Database, l *ledger.Ledger, opts ...Opt) *Registry {
	r := &Registry{
		db:     db,
		ledger: l,
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		clock:  l.Clock(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registration is a request to join the federation. Stake is moved from the
// available balance of the L2 account owned by PayoutAddress.
type Registration struct {
	ID            string
	PublicKey     []byte
	PayoutAddress string
	Stake         *big.Int
}

type registeredEvent struct {
	ID            string          `json:"id"`
	PublicKey     string          `json:"public_key"`
	PayoutAddress string          `json:"payout_address"`
	AccountID     types.AccountID `json:"account_id"`
	Stake         string          `json:"stake"`
}

// Register adds a validator. It fails with InsufficientStake below the
// configured minimum and with InsufficientBalance when the account cannot
// cover the stake.
func (r *Registry) Register(ctx context.Context, req Registration) (*types.Validator, error) {
	if !validID.MatchString(req.ID) {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid validator id %q", req.ID)
	}
	if _, err := keys.ParseXOnly(req.PublicKey); err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid public key: %v", err)
	}
	if _, err := btcutil.DecodeAddress(req.PayoutAddress, r.ledger.Network()); err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid payout address %q", req.PayoutAddress)
	}
	if req.Stake == nil || req.Stake.Sign() <= 0 {
		return nil, errcode.New(errcode.CodeInvalidAmount, "stake must be positive")
	}
	if minStake := new(big.Int).SetUint64(r.cfg.MinStake); req.Stake.Cmp(minStake) < 0 {
		return nil, errcode.New(errcode.CodeInsufficientStake, "stake %s is below the minimum %s", req.Stake, minStake)
	}
	var v *types.Validator
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		switch _, err := vsql.Get(tx, req.ID); {
		case err == nil:
			return errcode.New(errcode.CodeInvalidRequest, "validator %s already registered", req.ID)
		case !errors.Is(err, sql.ErrNotFound):
			return err
		}
		account, err := ledger.Resolve(tx, ledger.Address(req.PayoutAddress))
		if err != nil {
			return err
		}
		if err := r.ledger.StakeInTx(tx, account.ID, req.Stake); err != nil {
			return err
		}
		now := r.clock.Now()
		v = &types.Validator{
			ID:                 req.ID,
			PublicKey:          req.PublicKey,
			PayoutAddress:      req.PayoutAddress,
			AccountID:          account.ID,
			Staked:             new(big.Int).Set(req.Stake),
			RewardsAccumulated: new(big.Int),
			RewardsClaimed:     new(big.Int),
			Status:             types.ValidatorActive,
			LastActive:         now,
			CreatedAt:          now,
		}
		if err := vsql.Add(tx, v); err != nil {
			return err
		}
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.ValidatorRegistered,
			AccountID: account.ID,
			CreatedAt: now,
		}, registeredEvent{
			ID:            v.ID,
			PublicKey:     hex.EncodeToString(req.PublicKey),
			PayoutAddress: v.PayoutAddress,
			AccountID:     v.AccountID,
			Stake:         v.Staked.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	registered.Inc()
	r.logger.Info("validator registered",
		zap.String("validator", v.ID),
		log.ZAccount(v.AccountID),
		log.ZAmount("stake", v.Staked),
	)
	return v, nil
}

// Get loads one validator.
func (r *Registry) Get(_ context.Context, id string) (*types.Validator, error) {
	return get(r.db, id)
}

// List returns every validator ordered by id.
func (r *Registry) List(_ context.Context) ([]*types.Validator, error) {
	return vsql.All(r.db)
}

func get(db sql.Executor, id string) (*types.Validator, error) {
	v, err := vsql.Get(db, id)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "validator %s", id)
	}
	return v, err
}

type claimedEvent struct {
	ID      string `json:"id"`
	Amount  string `json:"amount"`
	Claimed string `json:"claimed_total"`
}

// ClaimRewards credits the unclaimed rewards of id to its account and
// returns the credited amount. Claiming with nothing accrued is a no-op.
func (r *Registry) ClaimRewards(ctx context.Context, id string) (*big.Int, error) {
	var amount *big.Int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		v, err := get(tx, id)
		if err != nil {
			return err
		}
		if v.Status == types.ValidatorSlashed {
			return errcode.New(errcode.CodeInvalidRequest, "validator %s is slashed", id)
		}
		amount = v.Unclaimed()
		if amount.Sign() <= 0 {
			amount = new(big.Int)
			return nil
		}
		if err := r.ledger.CreditInTx(tx, v.AccountID, amount); err != nil {
			return err
		}
		v.RewardsClaimed = types.CopyAmount(v.RewardsAccumulated)
		if err := vsql.Update(tx, v); err != nil {
			return err
		}
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.ValidatorRewarded,
			AccountID: v.AccountID,
			CreatedAt: r.clock.Now(),
		}, claimedEvent{ID: id, Amount: amount.String(), Claimed: v.RewardsClaimed.String()})
	})
	if err != nil {
		return nil, err
	}
	if amount.Sign() > 0 {
		f, _ := new(big.Float).SetInt(amount).Float64()
		rewardsClaimed.Add(f)
		r.logger.Info("validator rewards claimed", zap.String("validator", id), log.ZAmount("amount", amount))
	}
	return amount, nil
}

type slashedEvent struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
	Burned string `json:"burned"`
}

// Slash burns the stake of id and marks it slashed. A slashed validator
// stays on record and can neither be slashed again nor claim rewards.
func (r *Registry) Slash(ctx context.Context, id, reason string) (*types.Validator, error) {
	var v *types.Validator
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		v, err = get(tx, id)
		if err != nil {
			return err
		}
		if v.Status == types.ValidatorSlashed {
			return errcode.New(errcode.CodeInvalidRequest, "validator %s is already slashed", id)
		}
		burned, err := r.releaseStake(tx, v, r.ledger.BurnStakeInTx)
		if err != nil {
			return err
		}
		v.Status = types.ValidatorSlashed
		if err := vsql.Update(tx, v); err != nil {
			return err
		}
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.ValidatorSlashed,
			AccountID: v.AccountID,
			CreatedAt: r.clock.Now(),
		}, slashedEvent{ID: id, Reason: reason, Burned: burned.String()})
	})
	if err != nil {
		return nil, err
	}
	slashed.Inc()
	r.logger.Warn("validator slashed", zap.String("validator", id), zap.String("reason", reason))
	return v, nil
}

type deactivatedEvent struct {
	ID       string `json:"id"`
	Returned string `json:"returned"`
}

// Deactivate retires an active validator and returns its stake to the
// available balance of its account. Deactivating an inactive validator is
// a no-op.
func (r *Registry) Deactivate(ctx context.Context, id string) (*types.Validator, error) {
	var v *types.Validator
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		v, err = get(tx, id)
		if err != nil {
			return err
		}
		switch v.Status {
		case types.ValidatorInactive:
			return nil
		case types.ValidatorSlashed:
			return errcode.New(errcode.CodeInvalidRequest, "validator %s is slashed", id)
		}
		returned, err := r.releaseStake(tx, v, r.ledger.UnstakeInTx)
		if err != nil {
			return err
		}
		v.Status = types.ValidatorInactive
		if err := vsql.Update(tx, v); err != nil {
			return err
		}
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.ValidatorDeactivated,
			AccountID: v.AccountID,
			CreatedAt: r.clock.Now(),
		}, deactivatedEvent{ID: id, Returned: returned.String()})
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("validator deactivated", zap.String("validator", id))
	return v, nil
}

// releaseStake removes the validator stake from the account's staked pool
// with release. The account may have unstaked part of it through ordinary
// transactions, so at most what is left is released.
func (r *Registry) releaseStake(
	tx sql.Executor,
	v *types.Validator,
	release func(sql.Executor, types.AccountID, *big.Int) error,
) (*big.Int, error) {
	account, err := ledger.Resolve(tx, ledger.ID(v.AccountID))
	if err != nil {
		return nil, err
	}
	amount := types.CopyAmount(v.Staked)
	if account.Staked.Cmp(amount) < 0 {
		amount = types.CopyAmount(account.Staked)
	}
	if amount.Sign() > 0 {
		if err := release(tx, v.AccountID, amount); err != nil {
			return nil, err
		}
	}
	v.Staked = new(big.Int)
	return amount, nil
}
