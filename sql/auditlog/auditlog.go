// Package auditlog is the append-only record of bridge, rollup and validator
// events. Entries are appended inside the same transaction as the mutation
// they describe.
package auditlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

// Event names.
const (
	DepositClaimed       = "deposit_claimed"
	WithdrawalRequested  = "withdrawal_requested"
	WithdrawalChallenged = "withdrawal_challenged"
	WithdrawalCompleted  = "withdrawal_completed"
	WithdrawalFailed     = "withdrawal_failed"
	BatchBuilt           = "batch_built"
	BatchPublished       = "batch_published"
	BatchFinalized       = "batch_finalized"
	ValidatorRegistered  = "validator_registered"
	ValidatorSlashed     = "validator_slashed"
	ValidatorDeactivated = "validator_deactivated"
	ValidatorRewarded    = "validator_rewards_claimed"
	FraudDetected        = "fraud_detected"
)

// Entry is a single audit record.
type Entry struct {
	Seq       int64
	EventID   string
	Event     string
	Payload   json.RawMessage
	AccountID types.AccountID
	TxHash    string
	BatchID   uint64
	CreatedAt time.Time
}

// Append adds an entry. Payload is marshaled to JSON.
func Append(db sql.Executor, entry Entry, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", entry.Event, err)
	}
	if entry.EventID == "" {
		entry.EventID = uuid.NewString()
	}
	if _, err := db.Exec(`insert into audit_log
		(event_id, event, payload, account_id, tx_hash, batch_id, created_at)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, entry.EventID)
			stmt.BindText(2, entry.Event)
			stmt.BindText(3, string(body))
			sql.BindOptionalText(stmt, 4, string(entry.AccountID))
			sql.BindOptionalText(stmt, 5, entry.TxHash)
			if entry.BatchID != 0 {
				stmt.BindInt64(6, int64(entry.BatchID))
			} else {
				stmt.BindNull(6)
			}
			sql.BindTime(stmt, 7, entry.CreatedAt)
		}, nil); err != nil {
		return fmt.Errorf("append %s: %w", entry.Event, err)
	}
	return nil
}

const fields = `id, event_id, event, payload, account_id, tx_hash, batch_id, created_at`

func decode(stmt *sql.Statement) Entry {
	return Entry{
		Seq:       stmt.ColumnInt64(0),
		EventID:   stmt.ColumnText(1),
		Event:     stmt.ColumnText(2),
		Payload:   json.RawMessage(stmt.ColumnText(3)),
		AccountID: types.AccountID(stmt.ColumnText(4)),
		TxHash:    stmt.ColumnText(5),
		BatchID:   uint64(stmt.ColumnInt64(6)),
		CreatedAt: sql.ColumnTime(stmt, 7),
	}
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Event     string
	AccountID types.AccountID
	After     int64
	Limit     int
}

// List returns entries in append order.
func List(db sql.Executor, f Filter) ([]Entry, error) {
	if f.Limit <= 0 {
		f.Limit = 100
	}
	var rst []Entry
	if _, err := db.Exec("select "+fields+` from audit_log
		where id > ?1 and (?2 = '' or event = ?2) and (?3 = '' or account_id = ?3)
		order by id asc limit ?4;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, f.After)
			stmt.BindText(2, f.Event)
			stmt.BindText(3, string(f.AccountID))
			stmt.BindInt64(4, int64(f.Limit))
		}, func(stmt *sql.Statement) bool {
			rst = append(rst, decode(stmt))
			return true
		}); err != nil {
		return nil, fmt.Errorf("list audit log: %w", err)
	}
	return rst, nil
}
