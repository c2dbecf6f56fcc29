package types

import (
	"fmt"
	"math/big"
	"time"
)

// DepositStatus is the lifecycle state of a bridge deposit.
type DepositStatus string

const (
	// DepositPending is seen on L1 with fewer confirmations than required.
	DepositPending DepositStatus = "pending"
	// DepositConfirming has enough confirmations but is not claimed yet.
	DepositConfirming DepositStatus = "confirming"
	// DepositClaimed is terminal: credits were minted.
	DepositClaimed DepositStatus = "claimed"
)

// DepositID is the deduplication key of a deposit, "<txid>:<vout>".
func DepositID(txid string, vout uint32) string {
	return fmt.Sprintf("%s:%d", txid, vout)
}

// Deposit is one L1 output paid to the bridge multisig.
type Deposit struct {
	ID   string
	TxID string
	Vout uint32
	// Amount is the bridged token amount carried by the output.
	Amount *big.Int
	// Credits is the amount minted on L2 when claimed.
	Credits       *big.Int
	Confirmations uint32
	Status        DepositStatus
	// L1Address is the resolved sender, never the multisig itself.
	L1Address string
	AccountID AccountID
	CreatedAt time.Time
	UpdatedAt time.Time
}
