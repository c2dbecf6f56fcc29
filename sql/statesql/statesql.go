// Package statesql opens the node state database with its embedded schema.
package statesql

import (
	"embed"
	"sync"

	"github.com/btcl2/l2node/sql"
)

//go:embed migrations/*.sql
var embedded embed.FS

var (
	loadOnce   sync.Once
	migrations sql.Migrations
	loadErr    error
)

// Migrations returns the state database migrations.
func Migrations() (sql.Migrations, error) {
	loadOnce.Do(func() {
		migrations, loadErr = sql.LoadMigrations(embedded, "migrations")
	})
	return migrations, loadErr
}

// Open opens the state database at uri and applies pending migrations.
func Open(uri string, opts ...sql.Opt) (*sql.Database, error) {
	m, err := Migrations()
	if err != nil {
		return nil, err
	}
	opts = append([]sql.Opt{sql.WithMigrations(m)}, opts...)
	return sql.Open(uri, opts...)
}

// InMemory opens an in-memory state database and panics on error.
func InMemory(opts ...sql.Opt) *sql.Database {
	m, err := Migrations()
	if err != nil {
		panic(err)
	}
	opts = append([]sql.Opt{sql.WithMigrations(m)}, opts...)
	return sql.InMemory(opts...)
}
