package api

import (
	"errors"
	"fmt"
	"time"
)

// Config is the api section of the node config.
type Config struct {
	Listen string `mapstructure:"listen"`
	// CORSOrigins lists the origins browsers may call the API from. Empty
	// disables cross origin requests.
	CORSOrigins    []string      `mapstructure:"cors-origins"`
	RequestTimeout time.Duration `mapstructure:"request-timeout"`
	MaxBodyBytes   int64         `mapstructure:"max-body-bytes"`
	// MaxPageSize caps the limit query parameter of list endpoints.
	MaxPageSize int `mapstructure:"max-page-size"`
}

func DefaultConfig() Config {
	return Config{
		Listen:         "127.0.0.1:9094",
		RequestTimeout: 10 * time.Second,
		MaxBodyBytes:   1 << 20,
		MaxPageSize:    500,
	}
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("api.listen is required")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("api.request-timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.MaxBodyBytes <= 0 || c.MaxPageSize <= 0 {
		return errors.New("api.max-body-bytes and api.max-page-size must be positive")
	}
	return nil
}
