package validators

import "errors"

// Config is the validators section of the node config.
type Config struct {
	// MinStake is the smallest stake, in credits, a validator can register with.
	MinStake uint64 `mapstructure:"min-stake"`
}

func DefaultConfig() Config {
	return Config{MinStake: 10_000}
}

func (c Config) Validate() error {
	if c.MinStake == 0 {
		return errors.New("validators.min-stake must be positive")
	}
	return nil
}
