// Package sql is the sqlite layer under every store of the node: a pooled
// connection set, immediate write transactions and schema migrations.
package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	sqlite "github.com/go-llsqlite/crawshaw"
	"github.com/go-llsqlite/crawshaw/sqlitex"
	"go.uber.org/zap"
)

var (
	// ErrNoConnection is returned when the pool is closed or ctx expires
	// before a connection frees up.
	ErrNoConnection = errors.New("database: no free connection")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("database: not found")
	// ErrObjectExists is returned on primary key or unique violations.
	ErrObjectExists = errors.New("database: object exists")
	// ErrTooNew is returned when the schema is ahead of the binary.
	ErrTooNew = errors.New("database version is too new")
)

// Executor runs a single statement. Both *Database and *Tx implement it,
// so stores work inside and outside of transactions.
type Executor interface {
	Exec(string, Encoder, Decoder) (int, error)
}

// Statement is a prepared sqlite statement.
type Statement = sqlite.Stmt

// Encoder binds parameters, positional (?1) or named (@id).
type Encoder func(*Statement)

// Decoder reads one row. Returning false stops the iteration.
type Decoder func(*Statement) bool

type conf struct {
	memory      bool
	connections int
	metering    bool
	vacuum      bool
	migrations  Migrations
	logger      *zap.Logger
}

// Opt configures Open.
type Opt func(c *conf)

// WithConnections sets the pool size.
func WithConnections(n int) Opt {
	return func(c *conf) {
		c.connections = n
	}
}

func WithLogger(logger *zap.Logger) Opt {
	return func(c *conf) {
		c.logger = logger
	}
}

// WithMigrations sets the migrations applied by Open.
func WithMigrations(migrations Migrations) Opt {
	return func(c *conf) {
		c.migrations = migrations
	}
}

// WithLatencyMetering records the latency of every statement.
func WithLatencyMetering(enable bool) Opt {
	return func(c *conf) {
		c.metering = enable
	}
}

// WithVacuum compacts the file once migrations are applied.
func WithVacuum(enable bool) Opt {
	return func(c *conf) {
		c.vacuum = enable
	}
}

// InMemory opens a single connection in-memory database and panics on
// error. Tests use it.
func InMemory(opts ...Opt) *Database {
	opts = append(opts, WithConnections(1), func(c *conf) { c.memory = true })
	db, err := Open("file::memory:?mode=memory", opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// Open opens the database at uri in WAL mode, then applies migrations in
// one immediate transaction.
func Open(uri string, opts ...Opt) (*Database, error) {
	cfg := &conf{connections: 16, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(cfg)
	}
	var flags sqlite.OpenFlags
	if !cfg.memory {
		flags = sqlite.SQLITE_OPEN_READWRITE | sqlite.SQLITE_OPEN_CREATE |
			sqlite.SQLITE_OPEN_WAL | sqlite.SQLITE_OPEN_URI | sqlite.SQLITE_OPEN_NOMUTEX
	}
	pool, err := sqlitex.Open(uri, flags, cfg.connections)
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", uri, err)
	}
	db := &Database{pool: pool, metering: cfg.metering, logger: cfg.logger}
	if err := db.prepare(uri, cfg); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return db, nil
}

func (db *Database) prepare(uri string, cfg *conf) error {
	if cfg.migrations != nil {
		from, err := version(db)
		if err != nil {
			return err
		}
		if err := db.WithTx(context.Background(), func(tx *Tx) error {
			return cfg.migrations(tx)
		}); err != nil {
			return fmt.Errorf("migrate %s: %w", uri, err)
		}
		to, err := version(db)
		if err != nil {
			return err
		}
		if from != to {
			db.logger.Info("database migrated",
				zap.String("uri", uri),
				zap.Int("from", from),
				zap.Int("to", to),
			)
		}
	}
	if cfg.vacuum {
		return db.Vacuum()
	}
	return nil
}

// Database is a pool of sqlite connections.
type Database struct {
	pool     *sqlitex.Pool
	metering bool
	logger   *zap.Logger

	mu     sync.Mutex
	closed bool
}

func (db *Database) conn(ctx context.Context) (*sqlite.Conn, error) {
	start := time.Now()
	conn := db.pool.Get(ctx)
	if conn == nil {
		return nil, ErrNoConnection
	}
	connWait.Observe(time.Since(start).Seconds())
	return conn, nil
}

func (db *Database) begin(ctx context.Context, stmt string) (*Tx, error) {
	conn, err := db.conn(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Prep(stmt).Step(); err != nil {
		db.pool.Put(conn)
		return nil, fmt.Errorf("%s %w", stmt, err)
	}
	return &Tx{db: db, conn: conn}, nil
}

// Tx begins a deferred transaction. It takes the write lock only on the
// first write, so use it for reads and WithTx for mutations.
// The caller must Release it.
func (db *Database) Tx(ctx context.Context) (*Tx, error) {
	return db.begin(ctx, "BEGIN;")
}

// WithTx runs exec in an immediate transaction and commits when exec
// returns nil. Immediate transactions hold the write lock from the start,
// so ledger mutations never interleave.
func (db *Database) WithTx(ctx context.Context, exec func(*Tx) error) error {
	return db.run(ctx, "BEGIN IMMEDIATE;", exec)
}

// WithReadTx runs exec in a deferred transaction for a consistent view
// across several reads.
func (db *Database) WithReadTx(ctx context.Context, exec func(*Tx) error) error {
	return db.run(ctx, "BEGIN;", exec)
}

func (db *Database) run(ctx context.Context, stmt string, exec func(*Tx) error) error {
	tx, err := db.begin(ctx, stmt)
	if err != nil {
		return err
	}
	defer tx.Release()
	if err := exec(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Exec runs query on a pooled connection outside of any transaction.
func (db *Database) Exec(query string, encoder Encoder, decoder Decoder) (int, error) {
	conn, err := db.conn(context.Background())
	if err != nil {
		return 0, err
	}
	defer db.pool.Put(conn)
	return db.exec(conn, query, encoder, decoder)
}

// Vacuum rebuilds the database file and reports the pages it reclaimed.
func (db *Database) Vacuum() error {
	before, err := pragma(db, "page_count")
	if err != nil {
		return err
	}
	if _, err := db.Exec("vacuum;", nil, nil); err != nil {
		return fmt.Errorf("vacuum %w", err)
	}
	after, err := pragma(db, "page_count")
	if err != nil {
		return err
	}
	if after < before {
		reclaimedPages.Add(float64(before - after))
	}
	db.logger.Info("database vacuumed", zap.Int("pages_before", before), zap.Int("pages_after", after))
	return nil
}

// Close closes the pool. Closing twice is a no-op.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	if err := db.pool.Close(); err != nil {
		return fmt.Errorf("close pool %w", err)
	}
	db.closed = true
	return nil
}

func (db *Database) exec(conn *sqlite.Conn, query string, encoder Encoder, decoder Decoder) (int, error) {
	if db.metering {
		defer func(start time.Time) {
			statementDuration.WithLabelValues(statementKind(query)).Observe(time.Since(start).Seconds())
		}(time.Now())
	}
	stmt, err := conn.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("prepare %s: %w", query, err)
	}
	defer stmt.ClearBindings()
	if encoder != nil {
		encoder(stmt)
	}
	for rows := 0; ; rows++ {
		ok, err := stmt.Step()
		if err != nil {
			stmt.Reset()
			switch sqlite.ErrCode(err) {
			case sqlite.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite.SQLITE_CONSTRAINT_UNIQUE:
				return 0, ErrObjectExists
			}
			return 0, fmt.Errorf("step %d: %w", rows, err)
		}
		if !ok {
			return rows, nil
		}
		if decoder != nil && !decoder(stmt) {
			if err := stmt.Reset(); err != nil {
				return rows + 1, fmt.Errorf("statement reset %w", err)
			}
			return rows + 1, nil
		}
	}
}

// IsNull reports whether column col of the current row is NULL.
func IsNull(stmt *Statement, col int) bool {
	return stmt.ColumnType(col) == sqlite.SQLITE_NULL
}

func pragma(db Executor, name string) (int, error) {
	var value int
	// pragmas do not accept bound parameters
	if _, err := db.Exec("PRAGMA "+name+";", nil, func(stmt *Statement) bool {
		value = stmt.ColumnInt(0)
		return false
	}); err != nil {
		return 0, fmt.Errorf("read %s %w", name, err)
	}
	return value, nil
}

func version(db Executor) (int, error) {
	return pragma(db, "user_version")
}
