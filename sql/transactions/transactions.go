package transactions

import (
	"fmt"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `hash, sender, recipient, type, amount, gas_fee, nonce, signature, payload,
	status, batch_id, created_at, confirmed_at`

func decode(stmt *sql.Statement) (*types.Transaction, error) {
	h, err := types.HexToHash32(stmt.ColumnText(0))
	if err != nil {
		return nil, fmt.Errorf("decode hash: %w", err)
	}
	return &types.Transaction{
		Hash:        h,
		Sender:      types.AccountID(stmt.ColumnText(1)),
		Recipient:   types.AccountID(stmt.ColumnText(2)),
		Type:        types.TxType(stmt.ColumnText(3)),
		Amount:      sql.ColumnAmount(stmt, 4),
		GasFee:      sql.ColumnAmount(stmt, 5),
		Nonce:       uint64(stmt.ColumnInt64(6)),
		Signature:   sql.ColumnBlob(stmt, 7),
		Payload:     sql.ColumnBlob(stmt, 8),
		Status:      types.TxStatus(stmt.ColumnText(9)),
		BatchID:     uint64(stmt.ColumnInt64(10)),
		CreatedAt:   sql.ColumnTime(stmt, 11),
		ConfirmedAt: sql.ColumnTime(stmt, 12),
	}, nil
}

func query(db sql.Executor, q string, enc sql.Encoder) ([]*types.Transaction, error) {
	var (
		rst  []*types.Transaction
		derr error
	)
	if _, err := db.Exec(q, enc, func(stmt *sql.Statement) bool {
		var tx *types.Transaction
		tx, derr = decode(stmt)
		if derr != nil {
			return false
		}
		rst = append(rst, tx)
		return true
	}); err != nil {
		return nil, err
	}
	return rst, derr
}

// Add persists an executed transaction.
func Add(db sql.Executor, tx *types.Transaction) error {
	if _, err := db.Exec(`insert into transactions (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, tx.Hash.Hex())
			stmt.BindText(2, string(tx.Sender))
			sql.BindOptionalText(stmt, 3, string(tx.Recipient))
			stmt.BindText(4, string(tx.Type))
			sql.BindAmount(stmt, 5, tx.Amount)
			sql.BindAmount(stmt, 6, tx.GasFee)
			stmt.BindInt64(7, int64(tx.Nonce))
			stmt.BindBytes(8, tx.Signature)
			if len(tx.Payload) > 0 {
				stmt.BindBytes(9, tx.Payload)
			} else {
				stmt.BindNull(9)
			}
			stmt.BindText(10, string(tx.Status))
			if tx.BatchID != 0 {
				stmt.BindInt64(11, int64(tx.BatchID))
			} else {
				stmt.BindNull(11)
			}
			sql.BindTime(stmt, 12, tx.CreatedAt)
			sql.BindTime(stmt, 13, tx.ConfirmedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert tx %s: %w", tx.Hash, err)
	}
	return nil
}

// Get loads a transaction by hash.
func Get(db sql.Executor, hash types.Hash32) (*types.Transaction, error) {
	rst, err := query(db, "select "+fields+" from transactions where hash = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, hash.Hex())
		})
	if err != nil {
		return nil, fmt.Errorf("get tx %s: %w", hash, err)
	}
	if len(rst) == 0 {
		return nil, fmt.Errorf("get tx %s: %w", hash, sql.ErrNotFound)
	}
	return rst[0], nil
}

// Unbatched returns up to limit confirmed transactions that are not part of
// any batch, ordered by confirmation time.
func Unbatched(db sql.Executor, limit int) ([]*types.Transaction, error) {
	rst, err := query(db, "select "+fields+` from transactions
		where status = ?1 and batch_id is null
		order by confirmed_at asc, hash asc limit ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(types.TxConfirmed))
			stmt.BindInt64(2, int64(limit))
		})
	if err != nil {
		return nil, fmt.Errorf("unbatched txs: %w", err)
	}
	return rst, nil
}

// CountUnbatched returns the number of confirmed transactions waiting for a batch.
func CountUnbatched(db sql.Executor) (int, error) {
	var n int
	if _, err := db.Exec("select count(*) from transactions where status = ?1 and batch_id is null;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(types.TxConfirmed))
		}, func(stmt *sql.Statement) bool {
			n = stmt.ColumnInt(0)
			return false
		}); err != nil {
		return 0, fmt.Errorf("count unbatched txs: %w", err)
	}
	return n, nil
}

// AssignBatch marks the transaction as part of batch id.
func AssignBatch(db sql.Executor, hash types.Hash32, id uint64) error {
	rows, err := db.Exec("update transactions set batch_id = ?2 where hash = ?1 returning hash;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, hash.Hex())
			stmt.BindInt64(2, int64(id))
		}, nil)
	if err != nil {
		return fmt.Errorf("assign tx %s to batch %d: %w", hash, id, err)
	}
	if rows == 0 {
		return fmt.Errorf("assign tx %s to batch %d: %w", hash, id, sql.ErrNotFound)
	}
	return nil
}

// InBatch returns transactions of batch id ordered by confirmation time.
func InBatch(db sql.Executor, id uint64) ([]*types.Transaction, error) {
	rst, err := query(db, "select "+fields+` from transactions
		where batch_id = ?1 order by confirmed_at asc, hash asc;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(id))
		})
	if err != nil {
		return nil, fmt.Errorf("txs in batch %d: %w", id, err)
	}
	return rst, nil
}

// BySender returns transactions sent by id, newest first.
func BySender(db sql.Executor, id types.AccountID, limit int) ([]*types.Transaction, error) {
	rst, err := query(db, "select "+fields+` from transactions
		where sender = ?1 order by nonce desc limit ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(id))
			stmt.BindInt64(2, int64(limit))
		})
	if err != nil {
		return nil, fmt.Errorf("txs by sender %s: %w", id, err)
	}
	return rst, nil
}
