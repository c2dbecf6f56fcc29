// Package rollup closes executed transactions into batches, commits to the
// full account state with a Merkle root and anchors the root on L1.
package rollup

import (
	"context"
	"errors"
	"math/big"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/keys"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/accounts"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/batches"
	"github.com/btcl2/l2node/sql/transactions"
	"github.com/btcl2/l2node/sql/validators"
)

// Authorizer grants the right to build the next batch.
type Authorizer interface {
	IsLeader() bool
	AuthorizeBatch(ctx context.Context) (consensus.Authorization, error)
}

// Opt configures Aggregator.
type Opt func(*Aggregator)

func WithLogger(logger *zap.Logger) Opt {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(a *Aggregator) {
		a.clock = clock
	}
}

func WithConfig(cfg Config) Opt {
	return func(a *Aggregator) {
		a.cfg = cfg
	}
}

// Aggregator builds, publishes and finalizes batches.
type Aggregator struct {
	db        *sql.Database
	ledger    *ledger.Ledger
	authority Authorizer
	client    l1.Client
	signer    keys.Signer
	// key funds anchor transactions from its BIP-86 address.
	key keys.Locator
	// validator is the id of the local validator, credited with the build.
	validator string

	cfg    Config
	logger *zap.Logger
	clock  clockwork.Clock
}

func New(
	db *sql.Database,
	l *ledger.Ledger,
	authority Authorizer,
	client l1.Client,
	signer keys.Signer,
	key keys.Locator,
	validator string,
	opts ...Opt,
) (*Aggregator, error) {
	a := &Aggregator{
		db:        db,
		ledger:    l,
		authority: authority,
		client:    client,
		signer:    signer,
		key:       key,
		validator: validator,
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Aggregator) Config() Config {
	return a.cfg
}

type batchBuilt struct {
	Batch          uint64            `json:"batch"`
	Term           uint64            `json:"term"`
	Index          uint64            `json:"index"`
	Transactions   int               `json:"transactions"`
	PrevRoot       types.Hash32      `json:"prev_root"`
	NewRoot        types.Hash32      `json:"new_root"`
	GasTotal       string            `json:"gas_total"`
	GasBurned      string            `json:"gas_burned"`
	GasDistributed string            `json:"gas_distributed"`
	Rewards        map[string]string `json:"rewards,omitempty"`
}

// BuildBatch closes up to MaxBatchSize unbatched transactions into a new
// batch. It returns nil without asking for authorization when there is
// nothing to batch, and ErrNotLeader on validators that are not the leader.
func (a *Aggregator) BuildBatch(ctx context.Context) (*types.Batch, error) {
	pending, err := transactions.CountUnbatched(a.db)
	if err != nil {
		return nil, err
	}
	if pending == 0 {
		return nil, nil
	}
	auth, err := a.authority.AuthorizeBatch(ctx)
	if err != nil {
		return nil, err
	}
	var batch *types.Batch
	err = a.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		batch, err = a.buildInTx(tx, auth)
		return err
	})
	if err != nil || batch == nil {
		return nil, err
	}
	batchesBuilt.Inc()
	batchedTxs.Add(float64(len(batch.TxHashes)))
	latestBatch.Set(float64(batch.ID))
	a.logger.Info("batch built",
		log.ZBatch(batch.ID),
		zap.Uint64("term", auth.Term),
		zap.Int("transactions", len(batch.TxHashes)),
		log.ZHash("root", batch.NewRoot),
		log.ZAmount("gas burned", batch.GasBurned),
		log.ZAmount("gas distributed", batch.GasDistributed),
	)
	return batch, nil
}

func (a *Aggregator) buildInTx(tx *sql.Tx, auth consensus.Authorization) (*types.Batch, error) {
	txs, err := transactions.Unbatched(tx, a.cfg.MaxBatchSize)
	if err != nil || len(txs) == 0 {
		return nil, err
	}
	prevRoot, id := types.GenesisRoot, uint64(1)
	switch latest, err := batches.Latest(tx); {
	case err == nil:
		prevRoot, id = latest.NewRoot, latest.ID+1
	case errors.Is(err, sql.ErrNotFound):
	default:
		return nil, err
	}

	gasTotal := new(big.Int)
	hashes := make([]types.Hash32, 0, len(txs))
	for _, t := range txs {
		gasTotal.Add(gasTotal, t.GasFee)
		hashes = append(hashes, t.Hash)
	}
	burned, share := executor.SplitGas(gasTotal, a.cfg.BurnPercent)
	rewards, distributed, err := a.distribute(tx, share)
	if err != nil {
		return nil, err
	}
	burned.Add(burned, new(big.Int).Sub(share, distributed))

	states, err := accounts.States(tx)
	if err != nil {
		return nil, err
	}
	now := a.clock.Now()
	batch := &types.Batch{
		ID:             id,
		PrevRoot:       prevRoot,
		NewRoot:        StateRoot(states),
		TxHashes:       hashes,
		GasTotal:       gasTotal,
		GasBurned:      burned,
		GasDistributed: distributed,
		Status:         types.BatchBuilding,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := batches.Add(tx, batch); err != nil {
		return nil, err
	}
	for _, h := range hashes {
		if err := transactions.AssignBatch(tx, h, id); err != nil {
			return nil, err
		}
	}
	if a.validator != "" {
		if err := validators.Touch(tx, a.validator, now); err != nil && !errors.Is(err, sql.ErrNotFound) {
			return nil, err
		}
	}
	paid := make(map[string]string, len(rewards))
	for vid, r := range rewards {
		paid[vid] = r.String()
	}
	if err := auditlog.Append(tx, auditlog.Entry{
		Event:     auditlog.BatchBuilt,
		BatchID:   id,
		CreatedAt: now,
	}, batchBuilt{
		Batch:          id,
		Term:           auth.Term,
		Index:          auth.Index,
		Transactions:   len(hashes),
		PrevRoot:       prevRoot,
		NewRoot:        batch.NewRoot,
		GasTotal:       gasTotal.String(),
		GasBurned:      burned.String(),
		GasDistributed: distributed.String(),
		Rewards:        paid,
	}); err != nil {
		return nil, err
	}
	return batch, nil
}

// distribute accrues share to active validators in proportion to their
// stake, or equally when nobody has stake. Rounding dust is not distributed.
func (a *Aggregator) distribute(tx sql.Executor, share *big.Int) (map[string]*big.Int, *big.Int, error) {
	distributed := new(big.Int)
	if share.Sign() == 0 {
		return nil, distributed, nil
	}
	active, err := validators.Active(tx)
	if err != nil || len(active) == 0 {
		return nil, distributed, err
	}
	totalStake := new(big.Int)
	for _, v := range active {
		totalStake.Add(totalStake, types.CopyAmount(v.Staked))
	}
	rewards := make(map[string]*big.Int, len(active))
	for _, v := range active {
		reward := new(big.Int)
		if totalStake.Sign() == 0 {
			reward.Quo(share, big.NewInt(int64(len(active))))
		} else {
			reward.Mul(share, types.CopyAmount(v.Staked))
			reward.Quo(reward, totalStake)
		}
		if reward.Sign() == 0 {
			continue
		}
		v.RewardsAccumulated = new(big.Int).Add(reward, types.CopyAmount(v.RewardsAccumulated))
		if err := validators.Update(tx, v); err != nil {
			return nil, nil, err
		}
		rewards[v.ID] = reward
		distributed.Add(distributed, reward)
	}
	return rewards, distributed, nil
}

// GetBatch loads a batch with its transaction hashes.
func (a *Aggregator) GetBatch(_ context.Context, id uint64) (*types.Batch, error) {
	h, err := batches.Get(a.db, id)
	if errors.Is(err, sql.ErrNotFound) {
		return nil, errcode.New(errcode.CodeNotFound, "batch %d", id)
	}
	if err != nil {
		return nil, err
	}
	txs, err := transactions.InBatch(a.db, id)
	if err != nil {
		return nil, err
	}
	for _, t := range txs {
		h.TxHashes = append(h.TxHashes, t.Hash)
	}
	return h.Batch, nil
}

// Batches lists batch headers newest first.
func (a *Aggregator) Batches(_ context.Context, limit, offset int) ([]batches.Header, error) {
	return batches.Page(a.db, limit, offset)
}

// Produce builds a batch and publishes every unpublished one. It does
// nothing on validators that are not the leader.
func (a *Aggregator) Produce(ctx context.Context) (int, error) {
	if !a.authority.IsLeader() {
		return 0, nil
	}
	if _, err := a.BuildBatch(ctx); err != nil {
		return 0, err
	}
	pending, err := batches.ByStatus(a.db, types.BatchBuilding)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, h := range pending {
		if _, err := a.Publish(ctx, h.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}
