package presets

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStandaloneIsValid(t *testing.T) {
	conf, err := Get("standalone")
	require.NoError(t, err)
	require.NoError(t, conf.Validate())

	params, err := conf.Params()
	require.NoError(t, err)
	require.Equal(t, "regtest", params.Name)
}

func TestTestnetNeedsIdentity(t *testing.T) {
	conf, err := Get("testnet")
	require.NoError(t, err)
	require.Error(t, conf.Validate())

	conf.Consensus.ID = "v1"
	conf.Keys.Leader = "leader"
	conf.Keys.Committee = []string{"a", "b", "c"}
	require.NoError(t, conf.Validate())
}

func TestUnknownPreset(t *testing.T) {
	_, err := Get("devnet")
	require.ErrorContains(t, err, "standalone")
	require.Equal(t, []string{"standalone", "testnet"}, Options())
}
