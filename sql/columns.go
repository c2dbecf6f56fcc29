package sql

import (
	"math/big"
	"time"

	"github.com/btcl2/l2node/common/types"
)

// BindAmount binds an arbitrary precision amount as decimal text.
func BindAmount(stmt *Statement, col int, v *big.Int) {
	stmt.BindText(col, types.AmountString(v))
}

// ColumnAmount reads an amount stored by BindAmount. Malformed or null
// values decode as zero.
func ColumnAmount(stmt *Statement, col int) *big.Int {
	v, ok := new(big.Int).SetString(stmt.ColumnText(col), 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// BindTime binds t as unix nanoseconds. The zero time is stored as 0.
func BindTime(stmt *Statement, col int, t time.Time) {
	if t.IsZero() {
		stmt.BindInt64(col, 0)
		return
	}
	stmt.BindInt64(col, t.UnixNano())
}

// ColumnTime reads a time stored by BindTime.
func ColumnTime(stmt *Statement, col int) time.Time {
	ns := stmt.ColumnInt64(col)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// BindOptionalText binds s or null when s is empty.
func BindOptionalText(stmt *Statement, col int, s string) {
	if s == "" {
		stmt.BindNull(col)
		return
	}
	stmt.BindText(col, s)
}

// ColumnBlob copies a blob column. Null and empty blobs return nil.
func ColumnBlob(stmt *Statement, col int) []byte {
	n := stmt.ColumnLen(col)
	if n == 0 {
		return nil
	}
	buf := make([]byte, n)
	stmt.ColumnBytes(col, buf)
	return buf
}
