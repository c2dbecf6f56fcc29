package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/bridge/runestone"
	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/deposits"
)

// PollResult summarizes one watcher cycle.
type PollResult struct {
	Seen    int
	New     int
	Claimed int
	Skipped int
}

// Watcher scans the custody address for token deposits, records them and
// claims the ones with enough confirmations.
type Watcher struct {
	bridge *Bridge
	client l1.Client
	logger *zap.Logger
	// txs caches transactions fetched for marker decoding and sender
	// resolution. Confirmation counts come from ListUnspent, never the cache.
	txs *lru.Cache[string, *wire.MsgTx]
}

// NewWatcher creates a watcher for b's custody address.
func NewWatcher(b *Bridge) (*Watcher, error) {
	cache, err := lru.New[string, *wire.MsgTx](b.cfg.TxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tx cache: %w", err)
	}
	return &Watcher{
		bridge: b,
		client: b.client,
		logger: b.logger.Named("watcher"),
		txs:    cache,
	}, nil
}

// Poll runs one cycle. An L1 failure on the listing aborts the cycle;
// failures on single outputs are logged and the output is retried next cycle.
func (w *Watcher) Poll(ctx context.Context) (PollResult, error) {
	var result PollResult
	address := w.bridge.custody.String()
	unspent, err := w.client.ListUnspent(ctx, address)
	if err != nil {
		pollFailures.Inc()
		w.logger.Warn("list custody outputs", zap.String("address", address), zap.Error(err))
		return result, fmt.Errorf("list unspent %s: %w", address, err)
	}
	for _, u := range unspent {
		result.Seen++
		outcome, err := w.observe(ctx, u)
		switch {
		case err != nil && ctx.Err() != nil:
			return result, ctx.Err()
		case errors.Is(err, errcode.ErrDoubleSpendSuspected):
			doubleSpends.Inc()
			w.logger.Warn("deposit output already spent", log.ZOutpoint(u.TxID, u.Vout), zap.Error(err))
			result.Skipped++
		case err != nil:
			w.logger.Warn("process deposit output", log.ZOutpoint(u.TxID, u.Vout), zap.Error(err))
			result.Skipped++
		default:
			switch outcome {
			case outcomeNew:
				result.New++
			case outcomeClaimed:
				result.Claimed++
			case outcomeNewClaimed:
				result.New++
				result.Claimed++
			case outcomeIgnored:
				result.Skipped++
			}
		}
	}
	w.logger.Debug("deposit poll finished",
		zap.Int("seen", result.Seen),
		zap.Int("new", result.New),
		zap.Int("claimed", result.Claimed),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

type outcome uint8

const (
	outcomeNone outcome = iota
	outcomeIgnored
	outcomeNew
	outcomeClaimed
	outcomeNewClaimed
)

func (w *Watcher) observe(ctx context.Context, u l1.Unspent) (outcome, error) {
	id := types.DepositID(u.TxID, u.Vout)
	d, err := deposits.Get(w.bridge.db, id)
	switch {
	case err == nil && d.Status == types.DepositClaimed:
		return outcomeNone, nil
	case err == nil:
	case errors.Is(err, sql.ErrNotFound):
		d = nil
	default:
		return outcomeNone, err
	}

	created := false
	if d == nil {
		d, err = w.detect(ctx, u)
		if err != nil || d == nil {
			return outcomeIgnored, err
		}
		created = true
	}
	if err := w.checkUnspent(ctx, u); err != nil {
		return outcomeNone, err
	}

	now := w.bridge.clock.Now()
	d.Confirmations = u.Confirmations
	d.Status = w.bridge.depositStatus(u.Confirmations)
	d.UpdatedAt = now
	if created {
		d.CreatedAt = now
		if err := deposits.Add(w.bridge.db, d); err != nil {
			return outcomeNone, err
		}
		depositsSeen.Inc()
		w.logger.Info("deposit detected",
			zap.String("deposit", d.ID),
			zap.String("sender", d.L1Address),
			log.ZAmount("amount", d.Amount),
			zap.Uint32("confirmations", d.Confirmations),
		)
	} else if err := deposits.UpdateConfirmations(w.bridge.db, d); err != nil {
		return outcomeNone, err
	}

	if d.Status != types.DepositConfirming {
		if created {
			return outcomeNew, nil
		}
		return outcomeNone, nil
	}
	if _, err := w.bridge.ClaimDeposit(ctx, d.ID); err != nil {
		return outcomeNone, err
	}
	if created {
		return outcomeNewClaimed, nil
	}
	return outcomeClaimed, nil
}

func (b *Bridge) depositStatus(confirmations uint32) types.DepositStatus {
	if confirmations >= b.cfg.Confirmations {
		return types.DepositConfirming
	}
	return types.DepositPending
}

// detect decodes the token marker of the funding transaction and resolves
// the sender. It returns nil for outputs that carry no bridged tokens or
// that the custody address paid to itself.
func (w *Watcher) detect(ctx context.Context, u l1.Unspent) (*types.Deposit, error) {
	tx, err := w.transaction(ctx, u.TxID)
	if err != nil {
		return nil, err
	}
	amount := w.tokenAmount(tx, u.Vout)
	if amount == 0 {
		w.logger.Debug("output carries no bridged tokens", log.ZOutpoint(u.TxID, u.Vout))
		return nil, nil
	}
	sender, err := w.resolveSender(ctx, tx)
	if err != nil {
		return nil, err
	}
	if sender == w.bridge.custody.String() {
		w.logger.Debug("custody change output", log.ZOutpoint(u.TxID, u.Vout))
		return nil, nil
	}
	return &types.Deposit{
		ID:        types.DepositID(u.TxID, u.Vout),
		TxID:      u.TxID,
		Vout:      u.Vout,
		Amount:    new(big.Int).SetUint64(amount),
		Credits:   new(big.Int),
		L1Address: sender,
		AccountID: types.DeriveAccountID(sender),
	}, nil
}

// tokenAmount sums edicts of the bridged token to vout across the data
// carrying outputs of tx.
func (w *Watcher) tokenAmount(tx *wire.MsgTx, vout uint32) uint64 {
	for _, out := range tx.TxOut {
		rs, err := runestone.Decode(out.PkScript)
		if errors.Is(err, runestone.ErrNotRunestone) {
			continue
		}
		if err != nil {
			w.logger.Debug("malformed token marker", zap.String("txid", tx.TxHash().String()), zap.Error(err))
			return 0
		}
		return rs.Allocated(w.bridge.token, vout)
	}
	return 0
}

// resolveSender walks back one hop: the owner of the output spent by the
// first input is the sender.
func (w *Watcher) resolveSender(ctx context.Context, tx *wire.MsgTx) (string, error) {
	if len(tx.TxIn) == 0 {
		return "", fmt.Errorf("transaction %s has no inputs", tx.TxHash())
	}
	prevOut := tx.TxIn[0].PreviousOutPoint
	prev, err := w.transaction(ctx, prevOut.Hash.String())
	if err != nil {
		return "", err
	}
	if int(prevOut.Index) >= len(prev.TxOut) {
		return "", fmt.Errorf("outpoint %s out of range", prevOut)
	}
	_, addrs, _, err := txscript.ExtractPkScriptAddrs(prev.TxOut[prevOut.Index].PkScript, w.bridge.ledger.Network())
	if err != nil || len(addrs) != 1 {
		return "", fmt.Errorf("sender of %s is not a standard address", tx.TxHash())
	}
	return addrs[0].EncodeAddress(), nil
}

func (w *Watcher) transaction(ctx context.Context, txid string) (*wire.MsgTx, error) {
	if tx, ok := w.txs.Get(txid); ok {
		txCacheHits.Inc()
		return tx, nil
	}
	raw, err := w.client.GetRawTransaction(ctx, txid)
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", txid, err)
	}
	w.txs.Add(txid, raw.Tx)
	return raw.Tx, nil
}

// checkUnspent guards against outputs listed as unspent by a lagging node
// that the UTXO set already reports spent.
func (w *Watcher) checkUnspent(ctx context.Context, u l1.Unspent) error {
	_, err := w.client.GetTxOut(ctx, u.TxID, u.Vout)
	if errors.Is(err, l1.ErrSpent) {
		return errcode.New(errcode.CodeDoubleSpendSuspected, "output %s:%d", u.TxID, u.Vout)
	}
	if err != nil {
		return fmt.Errorf("get txout %s:%d: %w", u.TxID, u.Vout, err)
	}
	return nil
}
