package withdrawals

import (
	"fmt"
	"time"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `id, account_id, credits, l1_amount, l1_address, deadline, challenged,
	status, l1_txid, error, created_at, updated_at`

func decode(stmt *sql.Statement) *types.Withdrawal {
	return &types.Withdrawal{
		ID:         stmt.ColumnText(0),
		AccountID:  types.AccountID(stmt.ColumnText(1)),
		Credits:    sql.ColumnAmount(stmt, 2),
		L1Amount:   sql.ColumnAmount(stmt, 3),
		L1Address:  stmt.ColumnText(4),
		Deadline:   sql.ColumnTime(stmt, 5),
		Challenged: stmt.ColumnInt(6) != 0,
		Status:     types.WithdrawalStatus(stmt.ColumnText(7)),
		L1TxID:     stmt.ColumnText(8),
		Error:      stmt.ColumnText(9),
		CreatedAt:  sql.ColumnTime(stmt, 10),
		UpdatedAt:  sql.ColumnTime(stmt, 11),
	}
}

func list(db sql.Executor, query string, enc sql.Encoder) ([]*types.Withdrawal, error) {
	var rst []*types.Withdrawal
	if _, err := db.Exec(query, enc, func(stmt *sql.Statement) bool {
		rst = append(rst, decode(stmt))
		return true
	}); err != nil {
		return nil, err
	}
	return rst, nil
}

// Add records a withdrawal request.
func Add(db sql.Executor, w *types.Withdrawal) error {
	if _, err := db.Exec(`insert into withdrawals (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, w.ID)
			stmt.BindText(2, string(w.AccountID))
			sql.BindAmount(stmt, 3, w.Credits)
			sql.BindAmount(stmt, 4, w.L1Amount)
			stmt.BindText(5, w.L1Address)
			sql.BindTime(stmt, 6, w.Deadline)
			if w.Challenged {
				stmt.BindInt64(7, 1)
			} else {
				stmt.BindInt64(7, 0)
			}
			stmt.BindText(8, string(w.Status))
			sql.BindOptionalText(stmt, 9, w.L1TxID)
			sql.BindOptionalText(stmt, 10, w.Error)
			sql.BindTime(stmt, 11, w.CreatedAt)
			sql.BindTime(stmt, 12, w.UpdatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert withdrawal %s: %w", w.ID, err)
	}
	return nil
}

// Get loads a withdrawal by id.
func Get(db sql.Executor, id string) (*types.Withdrawal, error) {
	rst, err := list(db, "select "+fields+" from withdrawals where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
		})
	if err != nil {
		return nil, fmt.Errorf("get withdrawal %s: %w", id, err)
	}
	if len(rst) == 0 {
		return nil, fmt.Errorf("get withdrawal %s: %w", id, sql.ErrNotFound)
	}
	return rst[0], nil
}

// Executable returns pending, unchallenged withdrawals whose deadline is not after now.
func Executable(db sql.Executor, now time.Time, limit int) ([]*types.Withdrawal, error) {
	rst, err := list(db, "select "+fields+` from withdrawals
		where status = ?1 and challenged = 0 and deadline <= ?2
		order by deadline asc, id asc limit ?3;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(types.WithdrawalPending))
			sql.BindTime(stmt, 2, now)
			stmt.BindInt64(3, int64(limit))
		})
	if err != nil {
		return nil, fmt.Errorf("executable withdrawals: %w", err)
	}
	return rst, nil
}

// ByAccount returns withdrawals of the account, newest first.
func ByAccount(db sql.Executor, id types.AccountID, limit int) ([]*types.Withdrawal, error) {
	rst, err := list(db, "select "+fields+` from withdrawals
		where account_id = ?1 order by created_at desc limit ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
			stmt.BindInt64(2, int64(limit))
		})
	if err != nil {
		return nil, fmt.Errorf("withdrawals by account %s: %w", id, err)
	}
	return rst, nil
}

// Challenge sets the challenged flag on a pending withdrawal.
func Challenge(db sql.Executor, id string, now time.Time) error {
	rows, err := db.Exec(`update withdrawals set challenged = 1, updated_at = ?3
		where id = ?1 and status = ?2 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
			stmt.BindText(2, string(types.WithdrawalPending))
			sql.BindTime(stmt, 3, now)
		}, nil)
	if err != nil {
		return fmt.Errorf("challenge withdrawal %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("challenge withdrawal %s: %w", id, sql.ErrNotFound)
	}
	return nil
}

// Complete records the L1 payout transaction.
func Complete(db sql.Executor, id, txid string, now time.Time) error {
	return finish(db, id, types.WithdrawalCompleted, txid, "", now)
}

// Fail records the failure reason. Failed withdrawals are not retried.
func Fail(db sql.Executor, id, reason string, now time.Time) error {
	return finish(db, id, types.WithdrawalFailed, "", reason, now)
}

func finish(db sql.Executor, id string, status types.WithdrawalStatus, txid, reason string, now time.Time) error {
	rows, err := db.Exec(`update withdrawals set status = ?2, l1_txid = ?3, error = ?4, updated_at = ?5
		where id = ?1 and status = ?6 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
			stmt.BindText(2, string(status))
			sql.BindOptionalText(stmt, 3, txid)
			sql.BindOptionalText(stmt, 4, reason)
			sql.BindTime(stmt, 5, now)
			stmt.BindText(6, string(types.WithdrawalPending))
		}, nil)
	if err != nil {
		return fmt.Errorf("set withdrawal %s %s: %w", id, status, err)
	}
	if rows == 0 {
		return fmt.Errorf("set withdrawal %s %s: %w", id, status, sql.ErrNotFound)
	}
	return nil
}
