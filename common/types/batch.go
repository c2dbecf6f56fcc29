package types

import (
	"math/big"
	"time"
)

// BatchStatus is the lifecycle state of a batch. It only moves forward.
type BatchStatus string

const (
	BatchBuilding  BatchStatus = "building"
	BatchPublished BatchStatus = "published"
	BatchFinalized BatchStatus = "finalized"
)

// Batch is an ordered set of confirmed transactions and the state root at
// the moment the batch closed.
type Batch struct {
	ID             uint64
	PrevRoot       Hash32
	NewRoot        Hash32
	TxHashes       []Hash32
	GasTotal       *big.Int
	GasBurned      *big.Int
	GasDistributed *big.Int
	Status         BatchStatus
	AnchorTxID     string
	AnchorHeight   uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
