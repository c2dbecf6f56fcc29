package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcl2/l2node/bridge/runestone"
	"github.com/btcl2/l2node/common/types"
)

// Config is the bridge section of the node config.
type Config struct {
	// Token is the bridged token id, "block:tx".
	Token string `mapstructure:"token"`
	// Rate is the number of credits minted per token unit.
	Rate uint64 `mapstructure:"rate"`
	// MinWithdrawal is the smallest payout in token units.
	MinWithdrawal uint64 `mapstructure:"min-withdrawal"`
	// Confirmations needed before a deposit can be claimed.
	Confirmations   uint32        `mapstructure:"confirmations"`
	ChallengePeriod time.Duration `mapstructure:"challenge-period"`
	PollInterval    time.Duration `mapstructure:"poll-interval"`
	SweepInterval   time.Duration `mapstructure:"sweep-interval"`
	SweepLimit      int           `mapstructure:"sweep-limit"`
	// DustValue is the sat value of token carrying outputs.
	DustValue int64 `mapstructure:"dust-value"`
	// FeeTarget is the confirmation target passed to fee estimation.
	FeeTarget int64 `mapstructure:"fee-target"`
	// FallbackFeeRate in sat/vB is used when estimation fails.
	FallbackFeeRate float64 `mapstructure:"fallback-fee-rate"`
	TxCacheSize     int     `mapstructure:"tx-cache-size"`
}

// DefaultConfig returns the mainnet bridge parameters.
func DefaultConfig() Config {
	return Config{
		Token:           "840000:1",
		Rate:            1,
		MinWithdrawal:   1_000,
		Confirmations:   6,
		ChallengePeriod: types.ChallengePeriod,
		PollInterval:    30 * time.Second,
		SweepInterval:   time.Minute,
		SweepLimit:      50,
		DustValue:       546,
		FeeTarget:       6,
		FallbackFeeRate: 10,
		TxCacheSize:     1024,
	}
}

// Validate checks the section for values the bridge cannot run with.
func (c Config) Validate() error {
	if _, err := runestone.ParseID(c.Token); err != nil {
		return fmt.Errorf("bridge.token: %w", err)
	}
	if c.Rate == 0 {
		return errors.New("bridge.rate must be positive")
	}
	if c.Confirmations == 0 {
		return errors.New("bridge.confirmations must be positive")
	}
	if c.ChallengePeriod <= 0 {
		return errors.New("bridge.challenge-period must be positive")
	}
	if c.DustValue <= 0 {
		return errors.New("bridge.dust-value must be positive")
	}
	if c.FallbackFeeRate <= 0 {
		return errors.New("bridge.fallback-fee-rate must be positive")
	}
	if c.TxCacheSize <= 0 || c.SweepLimit <= 0 {
		return errors.New("bridge.tx-cache-size and bridge.sweep-limit must be positive")
	}
	return nil
}
