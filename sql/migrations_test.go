package sql

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"
)

func testMigrations(t *testing.T, files fstest.MapFS) Migrations {
	t.Helper()
	m, err := LoadMigrations(files, "migrations")
	require.NoError(t, err)
	return m
}

func TestMigrationsAppliedOnce(t *testing.T) {
	files := fstest.MapFS{
		"migrations/0001_initial.sql": {Data: []byte(`
-- first table
create table a (id int primary key);
insert into a (id) values (1);
`)},
		"migrations/0002_second.sql": {Data: []byte(`create table b (id int);`)},
	}
	db := InMemory(WithMigrations(testMigrations(t, files)))

	current, err := version(db)
	require.NoError(t, err)
	require.Equal(t, 2, current)

	// rerunning against the same database is a no-op, insert would fail otherwise
	require.NoError(t, testMigrations(t, files)(db))
	rows, err := db.Exec("select id from a", nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, rows)
}

func TestMigrationsTooNew(t *testing.T) {
	files := fstest.MapFS{
		"migrations/0001_initial.sql": {Data: []byte(`create table a (id int);`)},
	}
	db := InMemory(WithMigrations(testMigrations(t, files)))
	_, err := db.Exec("PRAGMA user_version = 5;", nil, nil)
	require.NoError(t, err)
	require.ErrorIs(t, testMigrations(t, files)(db), ErrTooNew)
}

func TestMigrationsInvalidName(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{
		"migrations/first.sql": {Data: []byte(`select 1;`)},
	}, "migrations")
	require.Error(t, err)
}

func TestSplitStatements(t *testing.T) {
	require.Equal(t,
		[]string{"create table a (id int);", "  insert into a values (1);"},
		splitStatements("create table a (id int);\n-- comment\n  insert into a values (1);\n\n"),
	)
}
