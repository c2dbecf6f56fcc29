package rollup

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/batches"
)

type batchFinalized struct {
	Batch         uint64 `json:"batch"`
	TxID          string `json:"txid"`
	Confirmations uint32 `json:"confirmations"`
}

// Finalize moves published batches whose anchor has AnchorConfirmations
// confirmations to finalized. Batches whose anchor cannot be looked up are
// left for the next call. It returns the number of finalized batches.
func (a *Aggregator) Finalize(ctx context.Context) (int, error) {
	published, err := batches.ByStatus(a.db, types.BatchPublished)
	if err != nil {
		return 0, err
	}
	finalized := 0
	for _, h := range published {
		if err := ctx.Err(); err != nil {
			return finalized, err
		}
		raw, err := a.client.GetRawTransaction(ctx, h.AnchorTxID)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return finalized, err
			}
			a.logger.Warn("anchor lookup failed",
				log.ZBatch(h.ID),
				zap.String("txid", h.AnchorTxID),
				zap.Error(err),
			)
			continue
		}
		if raw.Confirmations < a.cfg.AnchorConfirmations {
			continue
		}
		now := a.clock.Now()
		if err := a.db.WithTx(ctx, func(tx *sql.Tx) error {
			if err := batches.SetFinalized(tx, h.ID, now); err != nil {
				return err
			}
			return auditlog.Append(tx, auditlog.Entry{
				Event:     auditlog.BatchFinalized,
				BatchID:   h.ID,
				CreatedAt: now,
			}, batchFinalized{Batch: h.ID, TxID: h.AnchorTxID, Confirmations: raw.Confirmations})
		}); err != nil {
			return finalized, err
		}
		batchesFinalized.Inc()
		finalized++
		a.logger.Info("batch finalized", log.ZBatch(h.ID), zap.Uint32("confirmations", raw.Confirmations))
	}
	return finalized, nil
}
