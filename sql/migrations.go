package sql

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Migrations applies pending schema changes. It runs inside the transaction
// that Open starts, so a failed migration leaves the database untouched.
type Migrations func(Executor) error

type migration struct {
	order      int
	name       string
	statements []string
}

// LoadMigrations reads numbered sql files (0001_initial.sql, 0002_x.sql, ...)
// from dir and returns Migrations that apply every file whose number is above
// the current PRAGMA user_version.
func LoadMigrations(fsys fs.FS, dir string) (Migrations, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("readdir %s: %w", dir, err)
	}
	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		order, err := strconv.Atoi(parts[0])
		if err != nil {
			return nil, fmt.Errorf("invalid migration %s: %w", entry.Name(), err)
		}
		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("readfile %s: %w", entry.Name(), err)
		}
		migrations = append(migrations, migration{
			order:      order,
			name:       entry.Name(),
			statements: splitStatements(string(content)),
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].order < migrations[j].order
	})
	for i := 1; i < len(migrations); i++ {
		if migrations[i].order == migrations[i-1].order {
			return nil, fmt.Errorf("duplicate migration order %d", migrations[i].order)
		}
	}
	return func(db Executor) error {
		current, err := version(db)
		if err != nil {
			return err
		}
		if len(migrations) > 0 && current > migrations[len(migrations)-1].order {
			return fmt.Errorf("%w: %d > %d", ErrTooNew, current, migrations[len(migrations)-1].order)
		}
		for _, m := range migrations {
			if m.order <= current {
				continue
			}
			for _, stmt := range m.statements {
				if _, err := db.Exec(stmt, nil, nil); err != nil {
					return fmt.Errorf("exec %s: %w", m.name, err)
				}
			}
			// binding values in pragma statement is not allowed
			if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d;", m.order), nil, nil); err != nil {
				return fmt.Errorf("update user_version to %d: %w", m.order, err)
			}
		}
		return nil
	}, nil
}

func splitStatements(script string) []string {
	var out []string
	for _, part := range strings.Split(script, ";") {
		var lines []string
		for _, line := range strings.Split(part, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" && !strings.HasPrefix(trimmed, "--") {
				lines = append(lines, line)
			}
		}
		if len(lines) > 0 {
			out = append(out, strings.Join(lines, "\n")+";")
		}
	}
	return out
}
