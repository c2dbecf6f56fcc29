// Package fraudproof re-executes a disputed transaction against a pre-state
// and proves a claimed post-state wrong when it does not match.
package fraudproof

import (
	"context"
	"math/big"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
)

// Opt configures Checker.
type Opt func(*Checker)

func WithLogger(logger *zap.Logger) Opt {
	return func(c *Checker) {
		c.logger = logger
	}
}

func WithClock(clock clockwork.Clock) Opt {
	return func(c *Checker) {
		c.clock = clock
	}
}

func WithGasSchedule(gas executor.GasSchedule) Opt {
	return func(c *Checker) {
		c.gas = gas
	}
}

// Checker verifies claimed state transitions. Detected fraud is recorded in
// the audit log and never remediated.
type Checker struct {
	db     sql.Executor
	gas    executor.GasSchedule
	logger *zap.Logger
	clock  clockwork.Clock
}

func New(db sql.Executor, opts ...Opt) *Checker {
	c := &Checker{
		db:     db,
		gas:    executor.DefaultGasSchedule(),
		logger: zap.NewNop(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Check re-executes tx on pre and compares the result with claimed. It
// returns nil, nil when the claim is correct. Otherwise it returns the proof
// together with an error matching errcode.ErrFraudDetected.
func (c *Checker) Check(
	ctx context.Context,
	pre []types.AccountState,
	tx *types.Transaction,
	claimed []types.AccountState,
) (*Proof, error) {
	if tx == nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "missing transaction")
	}
	preSet, err := index(pre)
	if err != nil {
		return nil, err
	}
	claimedSet, err := index(claimed)
	if err != nil {
		return nil, err
	}
	expectedSet, rejection := c.Replay(preSet, tx)

	touched := map[types.AccountID]struct{}{tx.Sender: {}}
	if tx.Recipient != "" {
		touched[tx.Recipient] = struct{}{}
	}
	fraud := false
	for id, s := range expectedSet {
		if cs, ok := claimedSet[id]; !ok || !cs.Equal(s) {
			touched[id], fraud = struct{}{}, true
		}
	}
	for id := range claimedSet {
		if _, ok := expectedSet[id]; !ok {
			touched[id], fraud = struct{}{}, true
		}
	}
	if !fraud {
		return nil, nil
	}

	proof := &Proof{
		Tx:           FromTransaction(tx),
		Pre:          pick(preSet, touched),
		Expected:     pick(expectedSet, touched),
		Claimed:      pick(claimedSet, touched),
		ExpectedRoot: rollup.StateRoot(sorted(expectedSet)),
		ClaimedRoot:  rollup.StateRoot(sorted(claimedSet)),
		Rejection:    rejection,
	}
	fraudDetected.Inc()
	c.logger.Warn("fraud detected",
		log.ZHash("tx", tx.Hash),
		log.ZHash("expected root", proof.ExpectedRoot),
		log.ZHash("claimed root", proof.ClaimedRoot),
		zap.Int("mismatched", len(proof.Mismatched())),
	)
	if c.db != nil {
		if err := auditlog.Append(c.db, auditlog.Entry{
			Event:     auditlog.FraudDetected,
			AccountID: tx.Sender,
			TxHash:    tx.Hash.Hex(),
			CreatedAt: c.clock.Now(),
		}, proof); err != nil {
			return nil, err
		}
	}
	return proof, errcode.New(errcode.CodeFraudDetected, "transaction %s: %d account states differ",
		tx.Hash.ShortString(), len(proof.Mismatched()))
}

// Replay applies tx to a copy of pre following the executor's rules. A
// transaction the executor would reject leaves the state unchanged, and the
// reason is returned.
func (c *Checker) Replay(pre map[types.AccountID]types.AccountState, tx *types.Transaction) (map[types.AccountID]types.AccountState, string) {
	post := make(map[types.AccountID]types.AccountState, len(pre))
	for id, s := range pre {
		post[id] = s
	}
	sender, ok := pre[tx.Sender]
	if !ok {
		return post, "unknown sender " + tx.Sender.String()
	}
	if tx.Nonce != sender.Nonce {
		return post, "nonce mismatch"
	}
	if tx.Amount == nil || tx.Amount.Sign() <= 0 {
		return post, "amount must be positive"
	}
	if tx.Type.NeedsRecipient() {
		if _, ok := pre[tx.Recipient]; !ok {
			return post, "unknown recipient " + tx.Recipient.String()
		}
	}
	gas, err := c.gas.Fee(tx.Type)
	if err != nil {
		return post, err.Error()
	}
	account := &types.Account{
		ID:      sender.ID,
		Balance: types.CopyAmount(sender.Balance),
		Staked:  types.CopyAmount(sender.Staked),
		Nonce:   sender.Nonce,
	}
	if err := executor.Apply(account, tx.Type, tx.Amount, gas); err != nil {
		return post, err.Error()
	}
	post[sender.ID] = account.State()
	if tx.Type == types.TxTransfer {
		recipient := post[tx.Recipient]
		recipient.Balance = new(big.Int).Add(types.CopyAmount(recipient.Balance), tx.Amount)
		post[tx.Recipient] = recipient
	}
	return post, ""
}

func index(states []types.AccountState) (map[types.AccountID]types.AccountState, error) {
	rst := make(map[types.AccountID]types.AccountState, len(states))
	for _, s := range states {
		if _, ok := rst[s.ID]; ok {
			return nil, errcode.New(errcode.CodeInvalidRequest, "account %s listed twice", s.ID)
		}
		if types.CopyAmount(s.Balance).Sign() < 0 || types.CopyAmount(s.Staked).Sign() < 0 {
			return nil, errcode.New(errcode.CodeInvalidRequest, "account %s has a negative amount", s.ID)
		}
		rst[s.ID] = s
	}
	return rst, nil
}

func sorted(set map[types.AccountID]types.AccountState) []types.AccountState {
	rst := make([]types.AccountState, 0, len(set))
	for _, s := range set {
		rst = append(rst, s)
	}
	slices.SortFunc(rst, func(a, b types.AccountState) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return rst
}

func pick(set map[types.AccountID]types.AccountState, ids map[types.AccountID]struct{}) []types.AccountState {
	rst := make([]types.AccountState, 0, len(ids))
	for id := range ids {
		if s, ok := set[id]; ok {
			rst = append(rst, s)
		}
	}
	slices.SortFunc(rst, func(a, b types.AccountState) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return rst
}
