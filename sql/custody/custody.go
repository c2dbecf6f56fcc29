// Package custody records the token balances of change outputs that payouts
// send back to the custody address.
package custody

import (
	"fmt"
	"math/big"
	"time"

	"github.com/btcl2/l2node/sql"
)

// Output is a custody change output.
type Output struct {
	TxID       string
	Vout       uint32
	Tokens     *big.Int
	Withdrawal string
	CreatedAt  time.Time
}

// Add records a change output. The (txid, vout) pair is unique.
func Add(db sql.Executor, o *Output) error {
	if _, err := db.Exec(`insert into custody_outputs (txid, vout, tokens, withdrawal, created_at)
		values (?1, ?2, ?3, ?4, ?5);`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, o.TxID)
			stmt.BindInt64(2, int64(o.Vout))
			sql.BindAmount(stmt, 3, o.Tokens)
			stmt.BindText(4, o.Withdrawal)
			sql.BindTime(stmt, 5, o.CreatedAt)
		}, nil); err != nil {
		return fmt.Errorf("insert custody output %s:%d: %w", o.TxID, o.Vout, err)
	}
	return nil
}

// Get loads the change output at txid:vout.
func Get(db sql.Executor, txid string, vout uint32) (*Output, error) {
	var o *Output
	if _, err := db.Exec(`select tokens, withdrawal, created_at from custody_outputs
		where txid = ?1 and vout = ?2;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, txid)
			stmt.BindInt64(2, int64(vout))
		}, func(stmt *sql.Statement) bool {
			o = &Output{
				TxID:       txid,
				Vout:       vout,
				Tokens:     sql.ColumnAmount(stmt, 0),
				Withdrawal: stmt.ColumnText(1),
				CreatedAt:  sql.ColumnTime(stmt, 2),
			}
			return false
		}); err != nil {
		return nil, fmt.Errorf("get custody output %s:%d: %w", txid, vout, err)
	}
	if o == nil {
		return nil, fmt.Errorf("get custody output %s:%d: %w", txid, vout, sql.ErrNotFound)
	}
	return o, nil
}
