// Package config contains l2node configuration definitions.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/btcl2/l2node/api"
	"github.com/btcl2/l2node/bridge"
	"github.com/btcl2/l2node/consensus"
	"github.com/btcl2/l2node/executor"
	"github.com/btcl2/l2node/l1"
	"github.com/btcl2/l2node/rollup"
	"github.com/btcl2/l2node/validators"
)

const (
	defaultDataDirName = "l2node"
	// DefaultPassphraseEnv is the variable the keystore passphrase is read from.
	DefaultPassphraseEnv = "L2NODE_KEYS_PASSPHRASE"
)

// Config defines the top level configuration for an l2node.
type Config struct {
	BaseConfig `mapstructure:"main"`
	Preset     string `mapstructure:"preset"`

	LOGGING    LoggerConfig      `mapstructure:"logging"`
	Database   DatabaseConfig    `mapstructure:"database"`
	L1         L1Config          `mapstructure:"l1"`
	Bridge     bridge.Config     `mapstructure:"bridge"`
	Ledger     LedgerConfig      `mapstructure:"ledger"`
	Rollup     rollup.Config     `mapstructure:"rollup"`
	Consensus  consensus.Config  `mapstructure:"consensus"`
	Validators validators.Config `mapstructure:"validators"`
	Keys       KeysConfig        `mapstructure:"keys"`
	API        api.Config        `mapstructure:"api"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// BaseConfig defines the default configuration options for the node.
type BaseConfig struct {
	DataDirParent string `mapstructure:"data-folder"`
	ConfigFile    string `mapstructure:"config"`
	// Network is one of mainnet, testnet3, signet or regtest.
	Network string `mapstructure:"network"`
	// FileLock is the lock file held while the node runs. Defaults to
	// LOCK in the data directory.
	FileLock string `mapstructure:"filelock"`
}

// DatabaseConfig tunes the state database.
type DatabaseConfig struct {
	Connections     int  `mapstructure:"connections"`
	LatencyMetering bool `mapstructure:"latency-metering"`
	Vacuum          bool `mapstructure:"vacuum"`
}

// L1Config selects the Bitcoin backends.
type L1Config struct {
	RPC l1.RPCConfig `mapstructure:"rpc"`
	// Esplora is used as a fallback when its URL is set.
	Esplora l1.EsploraConfig `mapstructure:"esplora"`
	// RateLimit is the number of L1 calls per second. Zero disables limiting.
	RateLimit float64 `mapstructure:"rate-limit"`
	Burst     int     `mapstructure:"burst"`
}

// LedgerConfig sets the fee table and its split.
type LedgerConfig struct {
	Gas         executor.GasSchedule `mapstructure:"gas"`
	BurnPercent uint64               `mapstructure:"burn-percent"`
}

// KeysConfig locates the validator keys.
type KeysConfig struct {
	// Dir defaults to "keys" in the data directory.
	Dir           string `mapstructure:"dir"`
	PassphraseEnv string `mapstructure:"passphrase-env"`
	// Leader is the key that funds and signs state anchors.
	Leader string `mapstructure:"leader"`
	// Committee lists the local keys asked to sign custody payouts.
	Committee []string `mapstructure:"committee"`
	// CustodyKeys are the three hex x-only keys of the custody multisig.
	// When empty they are derived from Committee, which must then name
	// all three keys.
	CustodyKeys      []string `mapstructure:"custody-keys"`
	FirstKeyInternal bool     `mapstructure:"first-key-internal"`
}

// MetricsConfig configures the prometheus endpoint and the push gateway.
type MetricsConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Listen       string            `mapstructure:"listen"`
	PushURL      string            `mapstructure:"push-url"`
	PushPeriod   time.Duration     `mapstructure:"push-period"`
	PushUser     string            `mapstructure:"push-user"`
	PushPassword string            `mapstructure:"push-password"`
	PushHeaders  map[string]string `mapstructure:"push-headers"`
}

// DataDir returns the absolute path to use for the node's data, with a
// subfolder named after the network.
func (cfg *Config) DataDir() string {
	dir := cfg.DataDirParent
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return filepath.Join(dir, cfg.Network)
}

// LockFile returns the path of the data directory lock.
func (cfg *Config) LockFile() string {
	if cfg.FileLock != "" {
		return cfg.FileLock
	}
	return filepath.Join(cfg.DataDir(), "LOCK")
}

// KeysDir returns the keystore directory.
func (cfg *Config) KeysDir() string {
	if cfg.Keys.Dir != "" {
		return cfg.Keys.Dir
	}
	return filepath.Join(cfg.DataDir(), "keys")
}

// Params returns the chain parameters of the configured network.
func (cfg *BaseConfig) Params() (*chaincfg.Params, error) {
	switch cfg.Network {
	case chaincfg.MainNetParams.Name:
		return &chaincfg.MainNetParams, nil
	case chaincfg.TestNet3Params.Name:
		return &chaincfg.TestNet3Params, nil
	case chaincfg.SigNetParams.Name:
		return &chaincfg.SigNetParams, nil
	case chaincfg.RegressionNetParams.Name:
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, fmt.Errorf("unknown network %q", cfg.Network)
	}
}

// DecodeCustodyKeys decodes the configured custody keys.
func (c KeysConfig) DecodeCustodyKeys() ([][]byte, error) {
	rst := make([][]byte, 0, len(c.CustodyKeys))
	for _, k := range c.CustodyKeys {
		b, err := hex.DecodeString(k)
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("custody key %q is not a 32 byte hex key", k)
		}
		rst = append(rst, b)
	}
	return rst, nil
}

func (c KeysConfig) Validate() error {
	if c.Leader == "" {
		return errors.New("keys.leader is required")
	}
	if len(c.CustodyKeys) == 0 {
		if len(c.Committee) != 3 {
			return fmt.Errorf("keys.committee must name 3 keys when keys.custody-keys is empty, got %d",
				len(c.Committee))
		}
		return nil
	}
	if len(c.CustodyKeys) != 3 {
		return fmt.Errorf("keys.custody-keys must list 3 keys, got %d", len(c.CustodyKeys))
	}
	if len(c.Committee) == 0 || len(c.Committee) > 3 {
		return fmt.Errorf("keys.committee must name 1 to 3 keys, got %d", len(c.Committee))
	}
	_, err := c.DecodeCustodyKeys()
	return err
}

func (c MetricsConfig) Validate() error {
	if c.Enabled && c.Listen == "" {
		return errors.New("metrics.listen is required when metrics are enabled")
	}
	if c.PushURL != "" && c.PushPeriod <= 0 {
		return errors.New("metrics.push-period must be positive when metrics.push-url is set")
	}
	return nil
}

// Validate checks every section.
func (cfg *Config) Validate() error {
	if _, err := cfg.Params(); err != nil {
		return err
	}
	if cfg.Ledger.BurnPercent > 100 {
		return fmt.Errorf("ledger.burn-percent %d is above 100", cfg.Ledger.BurnPercent)
	}
	if cfg.Ledger.BurnPercent != cfg.Rollup.BurnPercent {
		return fmt.Errorf("ledger.burn-percent %d differs from rollup.burn-percent %d",
			cfg.Ledger.BurnPercent, cfg.Rollup.BurnPercent)
	}
	if cfg.Database.Connections <= 0 {
		return errors.New("database.connections must be positive")
	}
	if cfg.L1.RPC.Host == "" && cfg.L1.Esplora.URL == "" {
		return errors.New("l1.rpc.host or l1.esplora.url is required")
	}
	for _, v := range []interface{ Validate() error }{
		cfg.Bridge,
		cfg.Rollup,
		cfg.Consensus,
		cfg.Validators,
		cfg.Keys,
		cfg.API,
		cfg.Metrics,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultConfig returns the default configuration for an l2node.
func DefaultConfig() Config {
	return Config{
		BaseConfig: defaultBaseConfig(),
		LOGGING:    defaultLoggingConfig(),
		Database: DatabaseConfig{
			Connections:     16,
			LatencyMetering: false,
		},
		L1: L1Config{
			Esplora:   l1.DefaultEsploraConfig(),
			RateLimit: 20,
			Burst:     10,
		},
		Bridge: bridge.DefaultConfig(),
		Ledger: LedgerConfig{
			Gas:         executor.DefaultGasSchedule(),
			BurnPercent: executor.DefaultBurnPercent,
		},
		Rollup:     rollup.DefaultConfig(),
		Consensus:  consensus.DefaultConfig(),
		Validators: validators.DefaultConfig(),
		Keys: KeysConfig{
			PassphraseEnv: DefaultPassphraseEnv,
		},
		API: api.DefaultConfig(),
		Metrics: MetricsConfig{
			Listen:     "127.0.0.1:9095",
			PushPeriod: time.Minute,
		},
	}
}

func defaultBaseConfig() BaseConfig {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return BaseConfig{
		DataDirParent: filepath.Join(home, defaultDataDirName),
		Network:       chaincfg.MainNetParams.Name,
	}
}

// LoadConfig reads the config file into vip.
func LoadConfig(fileLocation string, vip *viper.Viper) error {
	if fileLocation == "" {
		return nil
	}
	vip.SetConfigFile(fileLocation)
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", fileLocation, err)
	}
	return nil
}

// Decode overrides cfg with the values read into vip.
func Decode(vip *viper.Viper, cfg *Config) error {
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	)
	opts := []viper.DecoderConfigOption{
		viper.DecodeHook(hook),
		withIgnoreUntagged(),
		withErrorUnused(),
	}
	if err := vip.Unmarshal(cfg, opts...); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	return nil
}

func withIgnoreUntagged() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.IgnoreUntaggedFields = true
	}
}

func withErrorUnused() viper.DecoderConfigOption {
	return func(cfg *mapstructure.DecoderConfig) {
		cfg.ErrorUnused = true
	}
}
