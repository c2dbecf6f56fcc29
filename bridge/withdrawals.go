package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/ledger"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/custody"
	"github.com/btcl2/l2node/sql/withdrawals"
)

type withdrawalEvent struct {
	Withdrawal string `json:"withdrawal"`
	Credits    string `json:"credits,omitempty"`
	L1Amount   string `json:"l1_amount,omitempty"`
	L1Address  string `json:"l1_address,omitempty"`
	Deadline   int64  `json:"deadline,omitempty"`
	L1TxID     string `json:"l1_txid,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// RequestWithdrawal burns credits from the account now and schedules the L1
// payout of floor(credits / rate) token units after the challenge period.
func (b *Bridge) RequestWithdrawal(
	ctx context.Context,
	id types.AccountID,
	credits *big.Int,
	l1Address string,
) (*types.Withdrawal, error) {
	if credits == nil || credits.Sign() <= 0 {
		return nil, errcode.New(errcode.CodeInvalidAmount, "credits must be positive, got %s", types.AmountString(credits))
	}
	addr, err := btcutil.DecodeAddress(l1Address, b.ledger.Network())
	if err != nil || !addr.IsForNet(b.ledger.Network()) {
		return nil, errcode.New(errcode.CodeInvalidRequest, "invalid payout address %q", l1Address)
	}
	l1Amount := new(big.Int).Quo(credits, new(big.Int).SetUint64(b.cfg.Rate))

	now := b.clock.Now()
	w := &types.Withdrawal{
		ID:        uuid.NewString(),
		AccountID: id,
		Credits:   new(big.Int).Set(credits),
		L1Amount:  l1Amount,
		L1Address: addr.EncodeAddress(),
		Deadline:  now.Add(b.cfg.ChallengePeriod),
		Status:    types.WithdrawalPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = b.db.WithTx(ctx, func(tx *sql.Tx) error {
		account, err := ledger.Resolve(tx, ledger.ID(id))
		if err != nil {
			return err
		}
		if account.Balance.Cmp(credits) < 0 {
			return errcode.New(errcode.CodeInsufficientBalance,
				"%s has %s available, needs %s", id, account.Balance, credits)
		}
		if l1Amount.Cmp(new(big.Int).SetUint64(b.cfg.MinWithdrawal)) < 0 {
			return errcode.New(errcode.CodeBelowMinimum,
				"payout of %s is below the minimum of %d", l1Amount, b.cfg.MinWithdrawal)
		}
		if err := b.ledger.DebitInTx(tx, id, credits); err != nil {
			return err
		}
		if err := withdrawals.Add(tx, w); err != nil {
			return err
		}
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.WithdrawalRequested,
			AccountID: id,
			CreatedAt: now,
		}, withdrawalEvent{
			Withdrawal: w.ID,
			Credits:    types.AmountString(w.Credits),
			L1Amount:   types.AmountString(w.L1Amount),
			L1Address:  w.L1Address,
			Deadline:   w.Deadline.Unix(),
		})
	})
	if err != nil {
		return nil, err
	}
	withdrawalsRequested.Inc()
	b.logger.Info("withdrawal requested",
		zap.String("withdrawal", w.ID),
		log.ZAccount(id),
		log.ZAmount("credits", credits),
		zap.Time("deadline", w.Deadline),
	)
	return w, nil
}

// ChallengeWithdrawal blocks a pending withdrawal from being paid out.
// The burned credits are not returned; resolving a challenge is an operator
// action.
func (b *Bridge) ChallengeWithdrawal(ctx context.Context, id, reason string) (*types.Withdrawal, error) {
	now := b.clock.Now()
	var w *types.Withdrawal
	err := b.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		w, err = withdrawals.Get(tx, id)
		if err != nil {
			return wrapNotFound(err, "withdrawal %s", id)
		}
		if w.Status != types.WithdrawalPending {
			return errcode.New(errcode.CodeInvalidRequest, "withdrawal %s is %s", id, w.Status)
		}
		if w.Challenged {
			return nil
		}
		if err := withdrawals.Challenge(tx, id, now); err != nil {
			return err
		}
		w.Challenged = true
		w.UpdatedAt = now
		return auditlog.Append(tx, auditlog.Entry{
			Event:     auditlog.WithdrawalChallenged,
			AccountID: w.AccountID,
			CreatedAt: now,
		}, withdrawalEvent{Withdrawal: id, Reason: reason})
	})
	if err != nil {
		return nil, err
	}
	b.logger.Warn("withdrawal challenged", zap.String("withdrawal", id), zap.String("reason", reason))
	return w, nil
}

// ProcessWithdrawals pays out every withdrawal whose challenge period has
// passed. It returns the number completed. Payout failures are recorded on
// the withdrawal and do not stop the sweep. When no custody output can fund
// the next payout the sweep stops and the rest stay pending.
func (b *Bridge) ProcessWithdrawals(ctx context.Context) (int, error) {
	due, err := withdrawals.Executable(b.db, b.clock.Now(), b.cfg.SweepLimit)
	if err != nil {
		return 0, err
	}
	completed := 0
	for i, w := range due {
		if _, err := b.ExecuteWithdrawal(ctx, w.ID); err != nil {
			if ctx.Err() != nil {
				return completed, ctx.Err()
			}
			if deferred(err) {
				withdrawalsDeferred.Inc()
				b.logger.Warn("withdrawal sweep stopped",
					zap.String("withdrawal", w.ID),
					zap.Int("pending", len(due)-i),
					zap.Error(err),
				)
				return completed, nil
			}
			b.logger.Warn("withdrawal payout failed", zap.String("withdrawal", w.ID), zap.Error(err))
			continue
		}
		completed++
	}
	return completed, nil
}

// ExecuteWithdrawal builds, signs and broadcasts the payout of one due
// withdrawal. No database transaction is held across L1 calls. A failure to
// build, sign or broadcast marks the withdrawal failed; it is not retried.
// A cancelled ctx, an unreadable custody address or a lack of custody
// outputs that can fund the payout leave the withdrawal pending.
func (b *Bridge) ExecuteWithdrawal(ctx context.Context, id string) (*types.Withdrawal, error) {
	w, err := withdrawals.Get(b.db, id)
	if err != nil {
		return nil, wrapNotFound(err, "withdrawal %s", id)
	}
	if !w.Executable(b.clock.Now()) {
		return nil, errcode.New(errcode.CodeInvalidRequest,
			"withdrawal %s is not executable (status %s, challenged %t, deadline %s)",
			id, w.Status, w.Challenged, w.Deadline)
	}

	txid, change, err := b.payout(ctx, w)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if deferred(err) {
			return w, fmt.Errorf("withdrawal %s stays pending: %w", id, err)
		}
		if ferr := b.finish(context.WithoutCancel(ctx), w, "", nil, err.Error()); ferr != nil {
			return nil, errors.Join(err, ferr)
		}
		withdrawalsFailed.Inc()
		return w, errcode.New(errcode.CodeBridgeBroadcastFailure, "withdrawal %s: %v", id, err)
	}
	if err := b.finish(context.WithoutCancel(ctx), w, txid, change, ""); err != nil {
		return nil, fmt.Errorf("record payout %s of withdrawal %s: %w", txid, id, err)
	}
	withdrawalsCompleted.Inc()
	b.logger.Info("withdrawal paid out", zap.String("withdrawal", id), zap.String("l1_txid", txid))
	return w, nil
}

// finish records the outcome of a payout. A completed payout also records its
// change output and the tokens left on it.
func (b *Bridge) finish(ctx context.Context, w *types.Withdrawal, txid string, change *big.Int, reason string) error {
	now := b.clock.Now()
	event := auditlog.WithdrawalCompleted
	if reason != "" {
		event = auditlog.WithdrawalFailed
	}
	return b.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		if reason != "" {
			err = withdrawals.Fail(tx, w.ID, reason, now)
			w.Status, w.Error = types.WithdrawalFailed, reason
		} else {
			err = withdrawals.Complete(tx, w.ID, txid, now)
			w.Status, w.L1TxID = types.WithdrawalCompleted, txid
		}
		if err != nil {
			return err
		}
		if reason == "" {
			if err := custody.Add(tx, &custody.Output{
				TxID:       txid,
				Vout:       changeOutput,
				Tokens:     change,
				Withdrawal: w.ID,
				CreatedAt:  now,
			}); err != nil {
				return err
			}
		}
		w.UpdatedAt = now
		return auditlog.Append(tx, auditlog.Entry{
			Event:     event,
			AccountID: w.AccountID,
			CreatedAt: now,
		}, withdrawalEvent{Withdrawal: w.ID, L1TxID: txid, Reason: reason})
	})
}
