package bridge

import (
	"context"

	"go.uber.org/zap"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/log"
	"github.com/btcl2/l2node/sql"
	"github.com/btcl2/l2node/sql/auditlog"
	"github.com/btcl2/l2node/sql/deposits"
)

type depositClaimed struct {
	Deposit string `json:"deposit"`
	TxID    string `json:"txid"`
	Vout    uint32 `json:"vout"`
	Sender  string `json:"sender"`
	Amount  string `json:"amount"`
	Credits string `json:"credits"`
}

// ClaimDeposit mints the credits of a confirmed deposit to the account of its
// L1 sender. Claiming an already claimed deposit is a no-op that returns the
// stored deposit.
func (b *Bridge) ClaimDeposit(ctx context.Context, id string) (*types.Deposit, error) {
	var (
		d       *types.Deposit
		claimed bool
	)
	err := b.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		d, claimed, err = b.claimInTx(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if claimed {
		depositsClaimed.Inc()
		b.logger.Info("deposit claimed",
			zap.String("deposit", d.ID),
			log.ZAccount(d.AccountID),
			log.ZAmount("credits", d.Credits),
		)
	}
	return d, nil
}

func (b *Bridge) claimInTx(tx sql.Executor, id string) (*types.Deposit, bool, error) {
	d, err := deposits.Get(tx, id)
	if err != nil {
		return nil, false, wrapNotFound(err, "deposit %s", id)
	}
	if d.Status == types.DepositClaimed {
		return d, false, nil
	}
	if d.Confirmations < b.cfg.Confirmations {
		return nil, false, errcode.New(errcode.CodeInsufficientConfirmations,
			"deposit %s has %d of %d confirmations", id, d.Confirmations, b.cfg.Confirmations)
	}
	account, _, err := b.ledger.CreateAccountInTx(tx, d.L1Address, nil)
	if err != nil {
		return nil, false, err
	}
	credits := b.Credits(d.Amount)
	if err := b.ledger.CreditInTx(tx, account.ID, credits); err != nil {
		return nil, false, err
	}
	now := b.clock.Now()
	d.Credits = credits
	d.Status = types.DepositClaimed
	d.AccountID = account.ID
	d.UpdatedAt = now
	if err := deposits.MarkClaimed(tx, d); err != nil {
		return nil, false, err
	}
	if err := auditlog.Append(tx, auditlog.Entry{
		Event:     auditlog.DepositClaimed,
		AccountID: account.ID,
		CreatedAt: now,
	}, depositClaimed{
		Deposit: d.ID,
		TxID:    d.TxID,
		Vout:    d.Vout,
		Sender:  d.L1Address,
		Amount:  types.AmountString(d.Amount),
		Credits: types.AmountString(credits),
	}); err != nil {
		return nil, false, err
	}
	return d, true, nil
}
