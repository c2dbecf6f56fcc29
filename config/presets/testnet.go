package presets

import (
	"time"

	"github.com/btcsuite/btcd/chaincfg"

	"github.com/btcl2/l2node/config"
)

func init() {
	register("testnet", testnet())
}

func testnet() config.Config {
	conf := config.DefaultConfig()
	conf.Network = chaincfg.TestNet3Params.Name

	conf.L1.RPC.Host = "127.0.0.1:18332"
	conf.L1.Esplora.URL = "https://blockstream.info/testnet/api"

	conf.Bridge.Confirmations = 3
	conf.Bridge.ChallengePeriod = time.Hour
	conf.Bridge.FallbackFeeRate = 2

	conf.Rollup.BuildInterval = 2 * time.Minute
	conf.Rollup.AnchorConfirmations = 3
	conf.Rollup.FallbackFeeRate = 2

	conf.Validators.MinStake = 1_000
	return conf
}
