package log

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/btcl2/l2node/common/types"
)

func TestNamedLevel(t *testing.T) {
	r := require.New(t)

	hooked := 0
	var buf bytes.Buffer
	root, err := newWithWriter(JSONEncoder, zapcore.AddSync(&buf), func(zapcore.Entry) error {
		hooked++
		return nil
	})
	r.NoError(err)

	lg := Named(root, "bridge", "warn")
	lg.Info("dropped")
	r.Zero(buf.Len())

	lg.Warn("kept", ZAmount("credits", big.NewInt(1500)), ZAccount("l2abc"))
	r.Contains(buf.String(), `"logger":"bridge"`)
	r.Contains(buf.String(), `"credits":"1500"`)
	r.Contains(buf.String(), `"account":"l2abc"`)
	buf.Reset()

	child := lg.With(zap.String("k", "v")).Named("watcher")
	child.Debug("dropped")
	r.Zero(buf.Len())
	child.Error("kept")
	r.Contains(buf.String(), `"logger":"bridge.watcher"`)
	r.Equal(2, hooked)
}

func TestNamedInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	root, err := newWithWriter(ConsoleEncoder, zapcore.AddSync(&buf))
	require.NoError(t, err)
	lg := Named(root, "rollup", "loud")
	require.Contains(t, buf.String(), "invalid log level")
	buf.Reset()
	lg.Info("visible")
	require.Contains(t, buf.String(), "visible")
}

func TestUnknownEncoder(t *testing.T) {
	_, err := newWithWriter("xml", zapcore.AddSync(&bytes.Buffer{}))
	require.Error(t, err)
}

func TestFatalError(t *testing.T) {
	reason := errors.New("bad toml")
	err := ErrMalformedConfig(reason)
	require.ErrorIs(t, err, reason)
	require.Equal(t, "config file is malformed: bad toml", err.Error())
	require.Equal(t, "could not open/create data dir /tmp/x: denied",
		ErrEnsureDataDir("/tmp/x", "denied").Error())
}

func TestZOutpoint(t *testing.T) {
	f := ZOutpoint("ab", 3)
	require.Equal(t, types.DepositID("ab", 3), f.String)
}
