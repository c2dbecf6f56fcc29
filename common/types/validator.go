package types

import (
	"math/big"
	"time"
)

// ValidatorStatus is the state of a committee member.
type ValidatorStatus string

const (
	ValidatorActive   ValidatorStatus = "active"
	ValidatorSlashed  ValidatorStatus = "slashed"
	ValidatorInactive ValidatorStatus = "inactive"
)

// Validator is a federation member. Validators are never deleted.
type Validator struct {
	ID                 string
	PublicKey          []byte
	PayoutAddress      string
	AccountID          AccountID
	Staked             *big.Int
	RewardsAccumulated *big.Int
	RewardsClaimed     *big.Int
	Status             ValidatorStatus
	LastActive         time.Time
	BlocksValidated    uint64
	CreatedAt          time.Time
}

// Unclaimed returns accumulated minus claimed rewards.
func (v *Validator) Unclaimed() *big.Int {
	return new(big.Int).Sub(CopyAmount(v.RewardsAccumulated), CopyAmount(v.RewardsClaimed))
}
