// Package cmd holds the build information and command line flags shared by
// the l2node executables.
package cmd

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/btcl2/l2node/config"
	"github.com/btcl2/l2node/config/presets"
)

var (
	// Version is the app's semantic version. Designed to be overwritten by make.
	Version string

	// Branch is the git branch used to build the App. Designed to be overwritten by make.
	Branch string

	// Commit is the git commit used to build the app. Designed to be overwritten by make.
	Commit string
)

// AddFlags binds the command line flags to cfg and returns the location of
// the config file flag.
func AddFlags(flagSet *pflag.FlagSet, cfg *config.Config) (configPath *string) {
	flagSet.StringVarP(&cfg.Preset, "preset", "p", "",
		fmt.Sprintf("preset overwrites default values of the config. options %+s", presets.Options()))

	/** ======================== BaseConfig Flags ========================== **/
	configPath = flagSet.StringP("config", "c", "", "load configuration from file")
	flagSet.StringVarP(&cfg.DataDirParent, "data-folder", "d",
		cfg.DataDirParent, "specify data directory for l2node")
	flagSet.StringVar(&cfg.Network, "network",
		cfg.Network, "bitcoin network: mainnet, testnet3, signet or regtest")
	flagSet.StringVar(&cfg.FileLock, "filelock",
		cfg.FileLock, "filesystem lock to prevent running more than one instance")
	flagSet.StringVar(&cfg.LOGGING.Encoder, "log-encoder",
		cfg.LOGGING.Encoder, "log as JSON instead of plain text")

	/** ======================== L1 Flags ========================== **/
	flagSet.StringVar(&cfg.L1.RPC.Host, "rpc-host",
		cfg.L1.RPC.Host, "bitcoind JSON-RPC host:port")
	flagSet.StringVar(&cfg.L1.RPC.User, "rpc-user",
		cfg.L1.RPC.User, "bitcoind JSON-RPC user")
	flagSet.StringVar(&cfg.L1.RPC.Password, "rpc-password",
		cfg.L1.RPC.Password, "bitcoind JSON-RPC password")
	flagSet.StringVar(&cfg.L1.Esplora.URL, "esplora-url",
		cfg.L1.Esplora.URL, "esplora REST endpoint used when bitcoind is unreachable")
	flagSet.Float64Var(&cfg.L1.RateLimit, "l1-rate-limit",
		cfg.L1.RateLimit, "maximum L1 calls per second, 0 disables the limit")

	/** ======================== Bridge Flags ========================== **/
	flagSet.StringVar(&cfg.Bridge.Token, "bridge-token",
		cfg.Bridge.Token, "rune id (block:tx) accepted by the bridge")
	flagSet.Uint32Var(&cfg.Bridge.Confirmations, "bridge-confirmations",
		cfg.Bridge.Confirmations, "confirmations before a deposit is credited")
	flagSet.DurationVar(&cfg.Bridge.ChallengePeriod, "challenge-period",
		cfg.Bridge.ChallengePeriod, "time a withdrawal waits before payout")

	/** ======================== Consensus Flags ========================== **/
	flagSet.StringVar(&cfg.Consensus.ID, "validator-id",
		cfg.Consensus.ID, "id of the local validator")

	/** ======================== Keys Flags ========================== **/
	flagSet.StringVar(&cfg.Keys.Dir, "keys-dir",
		cfg.Keys.Dir, "keystore directory, defaults to keys in the data directory")
	flagSet.StringVar(&cfg.Keys.Leader, "leader-key",
		cfg.Keys.Leader, "key that funds and signs state anchors")
	flagSet.StringSliceVar(&cfg.Keys.Committee, "committee",
		cfg.Keys.Committee, "local keys signing custody payouts")

	/** ======================== API Flags ========================== **/
	flagSet.StringVar(&cfg.API.Listen, "api-listen",
		cfg.API.Listen, "address of the JSON API")
	flagSet.StringSliceVar(&cfg.API.CORSOrigins, "cors-origins",
		cfg.API.CORSOrigins, "origins allowed to call the JSON API")

	/** ======================== Metrics Flags ========================== **/
	flagSet.BoolVar(&cfg.Metrics.Enabled, "metrics",
		cfg.Metrics.Enabled, "collect node metrics")
	flagSet.StringVar(&cfg.Metrics.Listen, "metrics-listen",
		cfg.Metrics.Listen, "address of the prometheus endpoint")
	flagSet.StringVar(&cfg.Metrics.PushURL, "metrics-push",
		cfg.Metrics.PushURL, "push metrics to url")
	flagSet.DurationVar(&cfg.Metrics.PushPeriod, "metrics-push-period",
		cfg.Metrics.PushPeriod, "push period")

	return configPath
}
