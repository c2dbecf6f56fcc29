// Package kvstore keeps singleton node records, such as the persisted
// consensus term, as scale blobs keyed by name.
package kvstore

import (
	"fmt"

	"github.com/spacemeshos/go-scale"

	"github.com/btcl2/l2node/codec"
	"github.com/btcl2/l2node/sql"
)

// Key names a record.
type Key string

// Put replaces the record under key.
func Put(db sql.Executor, key Key, value scale.Encodable) error {
	blob, err := codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = db.Exec(`insert into kvstore (id, value) values (?1, ?2)
		on conflict (id) do update set value = excluded.value;`,
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(key))
			stmt.BindBytes(2, blob)
		}, nil)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get decodes the record under key into value. A missing record is
// reported as sql.ErrNotFound.
func Get(db sql.Executor, key Key, value scale.Decodable) error {
	var blob []byte
	rows, err := db.Exec("select value from kvstore where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(key))
		}, func(stmt *sql.Statement) bool {
			blob = make([]byte, stmt.ColumnLen(0))
			stmt.ColumnBytes(0, blob)
			return false
		})
	switch {
	case err != nil:
		return fmt.Errorf("get %s: %w", key, err)
	case rows == 0:
		return fmt.Errorf("get %s: %w", key, sql.ErrNotFound)
	}
	if err := codec.Decode(blob, value); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Delete drops the record under key. Deleting a missing key is not an error.
func Delete(db sql.Executor, key Key) error {
	if _, err := db.Exec("delete from kvstore where id = ?1;",
		func(stmt *sql.Statement) {
			stmt.BindText(1, string(key))
		}, nil); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
