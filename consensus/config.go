package consensus

import (
	"errors"
	"fmt"
	"time"
)

// Peer is another member of the validator set.
type Peer struct {
	ID  string `mapstructure:"id"`
	URL string `mapstructure:"url"`
}

// Config is the consensus section of the node config.
type Config struct {
	// ID of this validator.
	ID    string `mapstructure:"id"`
	Peers []Peer `mapstructure:"peers"`

	// The election timeout is drawn uniformly from [ElectionTimeoutMin, ElectionTimeoutMax).
	ElectionTimeoutMin time.Duration `mapstructure:"election-timeout-min"`
	ElectionTimeoutMax time.Duration `mapstructure:"election-timeout-max"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat-interval"`
	RequestTimeout     time.Duration `mapstructure:"request-timeout"`
	RequestRetries     int           `mapstructure:"request-retries"`
}

func DefaultConfig() Config {
	return Config{
		ElectionTimeoutMin: 3 * time.Second,
		ElectionTimeoutMax: 6 * time.Second,
		HeartbeatInterval:  time.Second,
		RequestTimeout:     time.Second,
		RequestRetries:     1,
	}
}

func (c Config) Validate() error {
	if c.ID == "" {
		return errors.New("consensus.id is required")
	}
	if c.ElectionTimeoutMin <= 0 || c.ElectionTimeoutMin >= c.ElectionTimeoutMax {
		return fmt.Errorf("consensus election timeout window [%s, %s) is empty",
			c.ElectionTimeoutMin, c.ElectionTimeoutMax)
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.ElectionTimeoutMin {
		return fmt.Errorf("consensus.heartbeat-interval %s must be positive and below the election timeout",
			c.HeartbeatInterval)
	}
	seen := map[string]struct{}{c.ID: {}}
	for _, p := range c.Peers {
		if _, ok := seen[p.ID]; ok {
			return fmt.Errorf("consensus peer %q is listed twice", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}
