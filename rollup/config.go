package rollup

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcl2/l2node/executor"
)

// Config is the rollup section of the node config.
type Config struct {
	// MaxBatchSize caps the number of transactions per batch.
	MaxBatchSize     int           `mapstructure:"max-batch-size"`
	BuildInterval    time.Duration `mapstructure:"build-interval"`
	FinalizeInterval time.Duration `mapstructure:"finalize-interval"`
	// AnchorConfirmations needed before a published batch is finalized.
	AnchorConfirmations uint32 `mapstructure:"anchor-confirmations"`
	// BurnPercent is the burned share of batch gas. It should match the executor.
	BurnPercent     uint64  `mapstructure:"burn-percent"`
	FeeTarget       int64   `mapstructure:"fee-target"`
	FallbackFeeRate float64 `mapstructure:"fallback-fee-rate"`
	DustValue       int64   `mapstructure:"dust-value"`
}

func DefaultConfig() Config {
	return Config{
		MaxBatchSize:        1000,
		BuildInterval:       10 * time.Minute,
		FinalizeInterval:    5 * time.Minute,
		AnchorConfirmations: 6,
		BurnPercent:         executor.DefaultBurnPercent,
		FeeTarget:           6,
		FallbackFeeRate:     10,
		DustValue:           546,
	}
}

func (c Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return errors.New("rollup.max-batch-size must be positive")
	}
	if c.BurnPercent > 100 {
		return fmt.Errorf("rollup.burn-percent %d is above 100", c.BurnPercent)
	}
	if c.AnchorConfirmations == 0 {
		return errors.New("rollup.anchor-confirmations must be positive")
	}
	if c.FallbackFeeRate <= 0 || c.DustValue <= 0 {
		return errors.New("rollup.fallback-fee-rate and rollup.dust-value must be positive")
	}
	return nil
}
