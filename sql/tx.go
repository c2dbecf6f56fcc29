package sql

import (
	sqlite "github.com/go-llsqlite/crawshaw"
)

// Tx is a transaction bound to one pooled connection.
type Tx struct {
	db        *Database
	conn      *sqlite.Conn
	committed bool
}

// Commit commits the transaction. Release must still be called.
func (tx *Tx) Commit() error {
	if _, err := tx.conn.Prep("COMMIT;").Step(); err != nil {
		return err
	}
	tx.committed = true
	return nil
}

// Release rolls back an uncommitted transaction and returns the
// connection to the pool.
func (tx *Tx) Release() error {
	defer tx.db.pool.Put(tx.conn)
	if tx.committed {
		return nil
	}
	_, err := tx.conn.Prep("ROLLBACK;").Step()
	return err
}

// Exec runs query inside the transaction.
func (tx *Tx) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	return tx.db.exec(tx.conn, query, encoder, decoder)
}
