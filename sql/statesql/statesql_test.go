package statesql

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/btcl2/l2node/sql"
)

func userVersion(t *testing.T, db sql.Executor) int {
	t.Helper()
	var v int
	_, err := db.Exec("PRAGMA user_version", nil, func(stmt *sql.Statement) bool {
		v = stmt.ColumnInt(0)
		return true
	})
	require.NoError(t, err)
	return v
}

func TestIdempotentMigration(t *testing.T) {
	observer, observedLogs := observer.New(zapcore.InfoLevel)
	logger := zaptest.NewLogger(t, zaptest.WrapOptions(zap.WrapCore(
		func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, observer)
		},
	)))

	file := filepath.Join(t.TempDir(), "test.db")
	db, err := Open("file:"+file, sql.WithLogger(logger))
	require.NoError(t, err)
	versionA := userVersion(t, db)
	require.Equal(t, 2, versionA)
	require.NoError(t, db.Close())
	require.Equal(t, 1, observedLogs.FilterMessage("database migrated").Len())

	db, err = Open("file:"+file, sql.WithLogger(logger))
	require.NoError(t, err)
	defer db.Close()
	require.Equal(t, versionA, userVersion(t, db))
	require.Equal(t, 1, observedLogs.FilterMessage("database migrated").Len())
}

func TestInMemorySchema(t *testing.T) {
	db := InMemory()
	for _, table := range []string{
		"accounts", "transactions", "deposits", "withdrawals",
		"batches", "validators", "audit_log", "kvstore", "custody_outputs",
	} {
		rows, err := db.Exec("select name from sqlite_master where type = 'table' and name = ?1",
			func(stmt *sql.Statement) {
				stmt.BindText(1, table)
			}, nil)
		require.NoError(t, err)
		require.Equal(t, 1, rows, table)
	}
}
