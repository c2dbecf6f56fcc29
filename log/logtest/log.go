// Package logtest builds loggers for tests.
package logtest

import (
	"os"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// LevelEnv enables test logging at the given level, e.g. LOG_LEVEL=debug.
const LevelEnv = "LOG_LEVEL"

// New returns a logger writing through tb.Log. Without an explicit level
// and with LevelEnv unset, logs are discarded to keep test output readable.
func New(tb testing.TB, level ...zapcore.Level) *zap.Logger {
	lvl := zapcore.InfoLevel
	switch {
	case len(level) > 0:
		lvl = level[0]
	case os.Getenv(LevelEnv) == "":
		return zap.NewNop()
	default:
		if err := lvl.Set(os.Getenv(LevelEnv)); err != nil {
			tb.Fatalf("invalid %s: %v", LevelEnv, err)
		}
	}
	return zaptest.NewLogger(tb, zaptest.Level(lvl), zaptest.WrapOptions(zap.AddCaller()))
}
