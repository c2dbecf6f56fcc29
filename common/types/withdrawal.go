package types

import (
	"math/big"
	"time"
)

// ChallengePeriod is the delay between a withdrawal request and the
// earliest L1 payout.
const ChallengePeriod = 24 * time.Hour

// WithdrawalStatus is the lifecycle state of a withdrawal.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// Withdrawal moves burned L2 credits back to an L1 address.
type Withdrawal struct {
	ID         string
	AccountID  AccountID
	Credits    *big.Int
	L1Amount   *big.Int
	L1Address  string
	Deadline   time.Time
	Challenged bool
	Status     WithdrawalStatus
	L1TxID     string
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Executable reports whether the withdrawal may be paid out at now.
func (w *Withdrawal) Executable(now time.Time) bool {
	return w.Status == WithdrawalPending && !w.Challenged && !now.Before(w.Deadline)
}
