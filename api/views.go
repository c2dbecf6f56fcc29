package api

import (
	"encoding/hex"
	"math/big"
	"time"

	"github.com/btcl2/l2node/common/errcode"
	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/merkle"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/sql/batches"
)

func amount(v *big.Int) string {
	return types.AmountString(v)
}

// parseAmount reads a decimal string amount from a request field.
func parseAmount(field, s string) (*big.Int, error) {
	v, err := types.ParseAmount(s)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidAmount, "%s: %v", field, err)
	}
	return v, nil
}

func parseHex(field, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errcode.New(errcode.CodeInvalidRequest, "%s is not hex: %v", field, err)
	}
	return b, nil
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

type accountView struct {
	ID        types.AccountID `json:"id"`
	L1Address string          `json:"l1_address"`
	PublicKey string          `json:"public_key,omitempty"`
	Balance   string          `json:"balance"`
	Staked    string          `json:"staked"`
	Locked    string          `json:"locked"`
	Nonce     uint64          `json:"nonce"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newAccountView(a *types.Account) accountView {
	return accountView{
		ID:        a.ID,
		L1Address: a.L1Address,
		PublicKey: hex.EncodeToString(a.PublicKey),
		Balance:   amount(a.Balance),
		Staked:    amount(a.Staked),
		Locked:    amount(a.Locked),
		Nonce:     a.Nonce,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type balanceView struct {
	Available string `json:"available"`
	Staked    string `json:"staked"`
	Locked    string `json:"locked"`
	Nonce     uint64 `json:"nonce"`
}

func newBalanceView(b types.Balance) balanceView {
	return balanceView{
		Available: amount(b.Available),
		Staked:    amount(b.Staked),
		Locked:    amount(b.Locked),
		Nonce:     b.Nonce,
	}
}

type transactionView struct {
	Hash        types.Hash32    `json:"hash"`
	Sender      types.AccountID `json:"sender"`
	Recipient   types.AccountID `json:"recipient,omitempty"`
	Type        types.TxType    `json:"type"`
	Amount      string          `json:"amount"`
	GasFee      string          `json:"gas_fee"`
	Nonce       uint64          `json:"nonce"`
	Payload     string          `json:"payload,omitempty"`
	Status      types.TxStatus  `json:"status"`
	BatchID     uint64          `json:"batch_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}

func newTransactionView(tx *types.Transaction) transactionView {
	return transactionView{
		Hash:        tx.Hash,
		Sender:      tx.Sender,
		Recipient:   tx.Recipient,
		Type:        tx.Type,
		Amount:      amount(tx.Amount),
		GasFee:      amount(tx.GasFee),
		Nonce:       tx.Nonce,
		Payload:     hex.EncodeToString(tx.Payload),
		Status:      tx.Status,
		BatchID:     tx.BatchID,
		CreatedAt:   tx.CreatedAt,
		ConfirmedAt: optionalTime(tx.ConfirmedAt),
	}
}

func newTransactionViews(txs []*types.Transaction) []transactionView {
	rst := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		rst = append(rst, newTransactionView(tx))
	}
	return rst
}

type receiptView struct {
	Transaction    transactionView `json:"transaction"`
	Burned         string          `json:"burned"`
	ValidatorShare string          `json:"validator_share"`
}

func newReceiptView(r *executor.Receipt) receiptView {
	return receiptView{
		Transaction:    newTransactionView(r.Tx),
		Burned:         amount(r.Burned),
		ValidatorShare: amount(r.ValidatorShare),
	}
}

type depositView struct {
	ID            string              `json:"id"`
	TxID          string              `json:"txid"`
	Vout          uint32              `json:"vout"`
	Amount        string              `json:"amount"`
	Credits       string              `json:"credits"`
	Confirmations uint32              `json:"confirmations"`
	Status        types.DepositStatus `json:"status"`
	L1Address     string              `json:"l1_address"`
	AccountID     types.AccountID     `json:"account_id"`
	CreatedAt     time.Time           `json:"created_at"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

func newDepositView(d *types.Deposit) depositView {
	return depositView{
		ID:            d.ID,
		TxID:          d.TxID,
		Vout:          d.Vout,
		Amount:        amount(d.Amount),
		Credits:       amount(d.Credits),
		Confirmations: d.Confirmations,
		Status:        d.Status,
		L1Address:     d.L1Address,
		AccountID:     d.AccountID,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

type withdrawalView struct {
	ID         string                 `json:"id"`
	AccountID  types.AccountID        `json:"account_id"`
	Credits    string                 `json:"credits"`
	L1Amount   string                 `json:"l1_amount"`
	L1Address  string                 `json:"l1_address"`
	Deadline   time.Time              `json:"deadline"`
	Challenged bool                   `json:"challenged"`
	Status     types.WithdrawalStatus `json:"status"`
	L1TxID     string                 `json:"l1_txid,omitempty"`
	Error      string                 `json:"error,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

func newWithdrawalView(w *types.Withdrawal) withdrawalView {
	return withdrawalView{
		ID:         w.ID,
		AccountID:  w.AccountID,
		Credits:    amount(w.Credits),
		L1Amount:   amount(w.L1Amount),
		L1Address:  w.L1Address,
		Deadline:   w.Deadline,
		Challenged: w.Challenged,
		Status:     w.Status,
		L1TxID:     w.L1TxID,
		Error:      w.Error,
		CreatedAt:  w.CreatedAt,
		UpdatedAt:  w.UpdatedAt,
	}
}

type validatorView struct {
	ID                 string                `json:"id"`
	PublicKey          string                `json:"public_key"`
	PayoutAddress      string                `json:"payout_address"`
	AccountID          types.AccountID       `json:"account_id"`
	Staked             string                `json:"staked"`
	RewardsAccumulated string                `json:"rewards_accumulated"`
	RewardsClaimed     string                `json:"rewards_claimed"`
	Unclaimed          string                `json:"unclaimed"`
	Status             types.ValidatorStatus `json:"status"`
	LastActive         *time.Time            `json:"last_active,omitempty"`
	BlocksValidated    uint64                `json:"blocks_validated"`
	CreatedAt          time.Time             `json:"created_at"`
}

func newValidatorView(v *types.Validator) validatorView {
	return validatorView{
		ID:                 v.ID,
		PublicKey:          hex.EncodeToString(v.PublicKey),
		PayoutAddress:      v.PayoutAddress,
		AccountID:          v.AccountID,
		Staked:             amount(v.Staked),
		RewardsAccumulated: amount(v.RewardsAccumulated),
		RewardsClaimed:     amount(v.RewardsClaimed),
		Unclaimed:          amount(v.Unclaimed()),
		Status:             v.Status,
		LastActive:         optionalTime(v.LastActive),
		BlocksValidated:    v.BlocksValidated,
		CreatedAt:          v.CreatedAt,
	}
}

type batchView struct {
	ID             uint64            `json:"id"`
	PrevRoot       types.Hash32      `json:"prev_root"`
	NewRoot        types.Hash32      `json:"new_root"`
	TxCount        int               `json:"tx_count"`
	TxHashes       []types.Hash32    `json:"tx_hashes,omitempty"`
	GasTotal       string            `json:"gas_total"`
	GasBurned      string            `json:"gas_burned"`
	GasDistributed string            `json:"gas_distributed"`
	Status         types.BatchStatus `json:"status"`
	AnchorTxID     string            `json:"anchor_txid,omitempty"`
	AnchorHeight   uint64            `json:"anchor_height,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func newBatchView(b *types.Batch, count int) batchView {
	return batchView{
		ID:             b.ID,
		PrevRoot:       b.PrevRoot,
		NewRoot:        b.NewRoot,
		TxCount:        count,
		TxHashes:       b.TxHashes,
		GasTotal:       amount(b.GasTotal),
		GasBurned:      amount(b.GasBurned),
		GasDistributed: amount(b.GasDistributed),
		Status:         b.Status,
		AnchorTxID:     b.AnchorTxID,
		AnchorHeight:   b.AnchorHeight,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
	}
}

func newBatchHeaderViews(headers []batches.Header) []batchView {
	rst := make([]batchView, 0, len(headers))
	for _, h := range headers {
		rst = append(rst, newBatchView(h.Batch, h.TxCount))
	}
	return rst
}

type proofStepView struct {
	Hash types.Hash32 `json:"hash"`
	Side string       `json:"side"`
}

type stateProofView struct {
	Account struct {
		ID      types.AccountID `json:"id"`
		Balance string          `json:"balance"`
		Staked  string          `json:"staked"`
		Nonce   uint64          `json:"nonce"`
	} `json:"account"`
	Leaf  types.Hash32    `json:"leaf"`
	Root  types.Hash32    `json:"root"`
	Index uint64          `json:"index"`
	Steps []proofStepView `json:"steps"`
}

func newStateProofView(p *rollup.StateProof) stateProofView {
	var v stateProofView
	v.Account.ID = p.Account.ID
	v.Account.Balance = amount(p.Account.Balance)
	v.Account.Staked = amount(p.Account.Staked)
	v.Account.Nonce = p.Account.Nonce
	v.Leaf = p.Leaf
	v.Root = p.Root
	v.Index = p.Proof.Index
	v.Steps = proofSteps(p.Proof)
	return v
}

func proofSteps(p merkle.Proof) []proofStepView {
	rst := make([]proofStepView, 0, len(p.Steps))
	for _, step := range p.Steps {
		rst = append(rst, proofStepView{Hash: step.Hash, Side: step.Side.String()})
	}
	return rst
}
