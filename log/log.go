// Package log builds the node's zap loggers and provides field helpers for
// ledger and bridge values.
package log

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// ConsoleEncoder represents logging with plain text.
	ConsoleEncoder = "console"
	// JSONEncoder represents logging with JSON.
	JSONEncoder = "json"
)

// where logs go by default.
var logWriter io.Writer = os.Stdout

// New creates the root logger. Per-module levels are applied with Named.
func New(encoder string, hooks ...func(zapcore.Entry) error) (*zap.Logger, error) {
	return newWithWriter(encoder, zapcore.AddSync(logWriter), hooks...)
}

func newWithWriter(encoder string, ws zapcore.WriteSyncer, hooks ...func(zapcore.Entry) error) (*zap.Logger, error) {
	var enc zapcore.Encoder
	switch encoder {
	case "", ConsoleEncoder:
		enc = zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	case JSONEncoder:
		enc = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	default:
		return nil, fmt.Errorf("unknown log encoder %q", encoder)
	}
	// the root core accepts everything, module loggers filter by their own level
	core := zapcore.NewCore(enc, ws, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	return zap.New(zapcore.RegisterHooks(core, hooks...)), nil
}

// Named returns a child logger for module that only logs at or above level.
// An empty or malformed level falls back to info.
func Named(root *zap.Logger, module, level string) *zap.Logger {
	lvl := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			root.Warn("invalid log level, using info",
				zap.String("module", module),
				zap.String("level", level),
			)
		}
	}
	return root.Named(module).WithOptions(withDynamicLevel(lvl))
}

func withDynamicLevel(level zap.AtomicLevel) zap.Option {
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &coreWithLevel{Core: core, lvl: level}
	})
}

type coreWithLevel struct {
	zapcore.Core
	lvl zap.AtomicLevel
}

func (c *coreWithLevel) Enabled(level zapcore.Level) bool {
	return c.lvl.Enabled(level)
}

func (c *coreWithLevel) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.lvl.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *coreWithLevel) With(fields []zapcore.Field) zapcore.Core {
	return &coreWithLevel{Core: c.Core.With(fields), lvl: c.lvl}
}
