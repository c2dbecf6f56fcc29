package batches

import (
	"fmt"
	"time"

	"github.com/btcl2/l2node/common/types"
	"github.com/btcl2/l2node/sql"
)

const fields = `id, prev_root, new_root, tx_count, gas_total, gas_burned, gas_distributed,
	status, anchor_txid, anchor_height, created_at, updated_at`

func decode(stmt *sql.Statement) (*types.Batch, int) {
	b := &types.Batch{
		ID:             uint64(stmt.ColumnInt64(0)),
		GasTotal:       sql.ColumnAmount(stmt, 4),
		GasBurned:      sql.ColumnAmount(stmt, 5),
		GasDistributed: sql.ColumnAmount(stmt, 6),
		Status:         types.BatchStatus(stmt.ColumnText(7)),
		AnchorTxID:     stmt.ColumnText(8),
		AnchorHeight:   uint64(stmt.ColumnInt64(9)),
		CreatedAt:      sql.ColumnTime(stmt, 10),
		UpdatedAt:      sql.ColumnTime(stmt, 11),
	}
	stmt.ColumnBytes(1, b.PrevRoot[:])
	stmt.ColumnBytes(2, b.NewRoot[:])
	return b, stmt.ColumnInt(3)
}

// Header is a batch as stored, without its transaction hashes.
type Header struct {
	*types.Batch
	TxCount int
}

func list(db sql.Executor, query string, enc sql.Encoder) ([]Header, error) {
	var rst []Header
	if _, err := db.Exec(query, enc, func(stmt *sql.Statement) bool {
		b, n := decode(stmt)
		rst = append(rst, Header{Batch: b, TxCount: n})
		return true
	}); err != nil {
		return nil, err
	}
	return rst, nil
}

// Add persists a closed batch.
func Add(db sql.Executor, b *types.Batch) error {
	if _, err := db.Exec(`insert into batches (`+fields+`)
		values (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12);`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(b.ID))
			stmt.BindBytes(2, b.PrevRoot[:])
			stmt.BindBytes(3, b.NewRoot[:])
			stmt.BindInt64(4, int64(len(b.TxHashes)))
			sql.BindAmount(stmt, 5, b.GasTotal)
			sql.BindAmount(stmt, 6, b.GasBurned)
			sql.BindAmount(stmt, 7, b.GasDistributed)
			stmt.BindText(8, string(b.Status))
			sql.BindOptionalText(stmt, 9, b.AnchorTxID)
			if b.AnchorHeight != 0 {
				stmt.BindInt64(10, int64(b.AnchorHeight))
			} else {
				stmt.BindNull(10)
			}
			sql.BindTime(stmt, 11, b.CreatedAt)
			sql.BindTime(stmt, 12, b.UpdatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert batch %d: %w", b.ID, err)
	}
	return nil
}

// Get loads a batch header by id.
func Get(db sql.Executor, id uint64) (Header, error) {
	rst, err := list(db, "select "+fields+" from batches where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(id))
		})
	if err != nil {
		return Header{}, fmt.Errorf("get batch %d: %w", id, err)
	}
	if len(rst) == 0 {
		return Header{}, fmt.Errorf("get batch %d: %w", id, sql.ErrNotFound)
	}
	return rst[0], nil
}

// Latest returns the batch with the highest id.
func Latest(db sql.Executor) (Header, error) {
	rst, err := list(db, "select "+fields+" from batches order by id desc limit 1;", nil)
	if err != nil {
		return Header{}, fmt.Errorf("latest batch: %w", err)
	}
	if len(rst) == 0 {
		return Header{}, fmt.Errorf("latest batch: %w", sql.ErrNotFound)
	}
	return rst[0], nil
}

// ByStatus returns batches with the status in id order.
func ByStatus(db sql.Executor, status types.BatchStatus) ([]Header, error) {
	rst, err := list(db, "select "+fields+" from batches where status = ?1 order by id asc;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(status))
		})
	if err != nil {
		return nil, fmt.Errorf("batches by status %s: %w", status, err)
	}
	return rst, nil
}

// Page returns batches newest first.
func Page(db sql.Executor, limit, offset int) ([]Header, error) {
	rst, err := list(db, "select "+fields+" from batches order by id desc limit ?1 offset ?2;",
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(limit))
			stmt.BindInt64(2, int64(offset))
		})
	if err != nil {
		return nil, fmt.Errorf("batch page: %w", err)
	}
	return rst, nil
}

// SetPublished records the anchor transaction of a building batch.
func SetPublished(db sql.Executor, id uint64, txid string, height uint64, now time.Time) error {
	rows, err := db.Exec(`update batches set status = ?2, anchor_txid = ?3, anchor_height = ?4, updated_at = ?5
		where id = ?1 and status = ?6 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(id))
			stmt.BindText(2, string(types.BatchPublished))
			stmt.BindText(3, txid)
			stmt.BindInt64(4, int64(height))
			sql.BindTime(stmt, 5, now)
			stmt.BindText(6, string(types.BatchBuilding))
		}, nil)
	if err != nil {
		return fmt.Errorf("publish batch %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("publish batch %d: %w", id, sql.ErrNotFound)
	}
	return nil
}

// SetFinalized marks a published batch as finalized. Finalized is terminal.
func SetFinalized(db sql.Executor, id uint64, now time.Time) error {
	rows, err := db.Exec(`update batches set status = ?2, updated_at = ?3
		where id = ?1 and status = ?4 returning id;`,
		func(stmt *sql.Statement) {
			stmt.BindInt64(1, int64(id))
			stmt.BindText(2, string(types.BatchFinalized))
			sql.BindTime(stmt, 3, now)
			stmt.BindText(4, string(types.BatchPublished))
		}, nil)
	if err != nil {
		return fmt.Errorf("finalize batch %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("finalize batch %d: %w", id, sql.ErrNotFound)
	}
	return nil
}
