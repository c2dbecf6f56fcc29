package deposits

import (
	"fmt"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `id, txid, vout, amount, credits, confirmations, status,
	l1_address, account_id, created_at, updated_at`

func decode(stmt *sql.Statement) *types.Deposit {
	return &types.Deposit{
		ID:            stmt.ColumnText(0),
		TxID:          stmt.ColumnText(1),
		Vout:          uint32(stmt.ColumnInt64(2)),
		Amount:        sql.ColumnAmount(stmt, 3),
		Credits:       sql.ColumnAmount(stmt, 4),
		Confirmations: uint32(stmt.ColumnInt64(5)),
		Status:        types.DepositStatus(stmt.ColumnText(6)),
		L1Address:     stmt.ColumnText(7),
		AccountID:     types.AccountID(stmt.ColumnText(8)),
		CreatedAt:     sql.ColumnTime(stmt, 9),
		UpdatedAt:     sql.ColumnTime(stmt, 10),
	}
}

// Add records a newly observed deposit. The (txid, vout) pair is unique, a
// second insert returns sql.ErrObjectExists.
func Add(db sql.Executor, d *types.Deposit) error {
	if _, err := db.Exec(`insert into deposits (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, d.ID)
			stmt.BindText(2, d.TxID)
			stmt.BindInt64(3, int64(d.Vout))
			sql.BindAmount(stmt, 4, d.Amount)
			sql.BindAmount(stmt, 5, d.Credits)
			stmt.BindInt64(6, int64(d.Confirmations))
			stmt.BindText(7, string(d.Status))
			stmt.BindText(8, d.L1Address)
			stmt.BindText(9, string(d.AccountID))
			sql.BindTime(stmt, 10, d.CreatedAt)
			sql.BindTime(stmt, 11, d.UpdatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert deposit %s: %w", d.ID, err)
	}
	return nil
}

// Get loads a deposit by id.
func Get(db sql.Executor, id string) (*types.Deposit, error) {
	var d *types.Deposit
	if _, err := db.Exec("select "+fields+" from deposits where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, id)
		}, func(stmt *sql.Statement) bool {
			d = decode(stmt)
			return false
		}); err != nil {
		return nil, fmt.Errorf("get deposit %s: %w", id, err)
	}
	if d == nil {
		return nil, fmt.Errorf("get deposit %s: %w", id, sql.ErrNotFound)
	}
	return d, nil
}

// UpdateConfirmations stores the latest observed confirmation count and
// status for an unclaimed deposit. Claimed deposits are left untouched.
func UpdateConfirmations(db sql.Executor, d *types.Deposit) error {
	if _, err := db.Exec(`update deposits set confirmations = ?2, status = ?3, updated_at = ?4
		where id = ?1 and status != ?5;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, d.ID)
			stmt.BindInt64(2, int64(d.Confirmations))
			stmt.BindText(3, string(d.Status))
			sql.BindTime(stmt, 4, d.UpdatedAt)
			stmt.BindText(5, string(types.DepositClaimed))
		}, nil); err != nil {
		return fmt.Errorf("update deposit %s: %w", d.ID, err)
	}
	return nil
}

// MarkClaimed flips the deposit to claimed. Returns sql.ErrNotFound when the
// deposit is missing or already claimed.
func MarkClaimed(db sql.Executor, d *types.Deposit) error {
	rows, err := db.Exec(`update deposits set status = ?2, confirmations = ?3, credits = ?4, updated_at = ?5
		where id = ?1 and status != ?2 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, d.ID)
			stmt.BindText(2, string(types.DepositClaimed))
			stmt.BindInt64(3, int64(d.Confirmations))
			sql.BindAmount(stmt, 4, d.Credits)
			sql.BindTime(stmt, 5, d.UpdatedAt)
		}, nil)
	if err != nil {
		return fmt.Errorf("claim deposit %s: %w", d.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("claim deposit %s: %w", d.ID, sql.ErrNotFound)
	}
	return nil
}

// ByStatus returns deposits with the status ordered by creation time.
func ByStatus(db sql.Executor, status types.DepositStatus, limit int) ([]*types.Deposit, error) {
	var rst []*types.Deposit
	if _, err := db.Exec("select "+fields+` from deposits where status = ?1
		order by created_at asc, id asc limit ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(status))
			stmt.BindInt64(2, int64(limit))
		}, func(stmt *sql.Statement) bool {
			rst = append(rst, decode(stmt))
			return true
		}); err != nil {
		return nil, fmt.Errorf("deposits by status %s: %w", status, err)
	}
	return rst, nil
}

// ByAccount returns deposits credited to the account, newest first.
func ByAccount(db sql.Executor, id types.AccountID, limit int) ([]*types.Deposit, error) {
	var rst []*types.Deposit
	if _, err := db.Exec("select "+fields+` from deposits where account_id = ?1
		order by created_at desc limit ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
			stmt.BindInt64(2, int64(limit))
		}, func(stmt *sql.Statement) bool {
			rst = append(rst, decode(stmt))
			return true
		}); err != nil {
		return nil, fmt.Errorf("deposits by account %s: %w", id, err)
	}
	return rst, nil
}
