package types

import (
	"encoding/binary"
	"math/big"
	"strconv"
	"time"

	"github.com/btcl2/l2node/hash"
)

// TxType selects the execution rule and the gas fee of a transaction.
type TxType string

const (
	TxTransfer TxType = "transfer"
	TxBurn     TxType = "burn"
	TxStake    TxType = "stake"
	TxUnstake  TxType = "unstake"
)

// Valid is true for known transaction types.
func (t TxType) Valid() bool {
	switch t {
	case TxTransfer, TxBurn, TxStake, TxUnstake:
		return true
	}
	return false
}

// NeedsRecipient is true for types that credit another account.
func (t TxType) NeedsRecipient() bool {
	return t == TxTransfer
}

// TxStatus is the lifecycle state of a transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Transaction is an L2 transaction. It is immutable once confirmed.
type Transaction struct {
	Hash      Hash32
	Sender    AccountID
	Recipient AccountID
	Type      TxType
	Amount    *big.Int
	GasFee    *big.Int
	Nonce     uint64
	Signature []byte
	Payload   []byte
	Status    TxStatus
	// BatchID is zero until the transaction is included in a batch.
	BatchID     uint64
	CreatedAt   time.Time
	ConfirmedAt time.Time
}

// SigningMessage is the concatenation of sender, recipient, amount, nonce
// and type that the sender signs.
func SigningMessage(sender, recipient AccountID, amount *big.Int, nonce uint64, typ TxType) []byte {
	msg := make([]byte, 0, 128)
	msg = append(msg, sender...)
	msg = append(msg, recipient...)
	msg = append(msg, AmountString(amount)...)
	msg = strconv.AppendUint(msg, nonce, 10)
	msg = append(msg, typ...)
	return msg
}

// SigningHash is the sha256 of the signing message.
func (tx *Transaction) SigningHash() [32]byte {
	return hash.Sum(SigningMessage(tx.Sender, tx.Recipient, tx.Amount, tx.Nonce, tx.Type))
}

// CalcHash derives the transaction hash from its fields and a timestamp
// salt, so two otherwise identical transactions get different hashes.
func (tx *Transaction) CalcHash(salt time.Time) Hash32 {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(salt.UnixNano()))
	return CalcHash32(
		SigningMessage(tx.Sender, tx.Recipient, tx.Amount, tx.Nonce, tx.Type),
		[]byte(AmountString(tx.GasFee)),
		tx.Signature,
		tx.Payload,
		buf[:],
	)
}
