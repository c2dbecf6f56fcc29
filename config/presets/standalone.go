package presets

import (
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/btcl2/l2node/config"
)

func init() {
	register("standalone", standalone())
}

// standalone runs a single validator against a local regtest bitcoind.
func standalone() config.Config {
	conf := config.DefaultConfig()
	conf.Network = chaincfg.RegressionNetParams.Name
	conf.DataDirParent = filepath.Join(os.TempDir(), "l2node")

	conf.L1.RPC.Host = "127.0.0.1:18443"
	conf.L1.RateLimit = 0

	conf.Bridge.Token = "101:1"
	conf.Bridge.Confirmations = 1
	conf.Bridge.ChallengePeriod = 2 * time.Minute
	conf.Bridge.PollInterval = 5 * time.Second
	conf.Bridge.SweepInterval = 10 * time.Second
	conf.Bridge.FallbackFeeRate = 1

	conf.Rollup.BuildInterval = 30 * time.Second
	conf.Rollup.FinalizeInterval = 15 * time.Second
	conf.Rollup.AnchorConfirmations = 1
	conf.Rollup.FallbackFeeRate = 1

	conf.Consensus.ID = "standalone"
	conf.Consensus.ElectionTimeoutMin = 300 * time.Millisecond
	conf.Consensus.ElectionTimeoutMax = 600 * time.Millisecond
	conf.Consensus.HeartbeatInterval = 100 * time.Millisecond

	conf.Validators.MinStake = 1_000

	conf.Keys.Leader = "leader"
	conf.Keys.Committee = []string{"custody-1", "custody-2", "custody-3"}

	conf.API.CORSOrigins = []string{"*"}
	return conf
}
