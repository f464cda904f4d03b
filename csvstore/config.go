package csvstore

import (
	"errors"

	"github.com/tailored-agentic-units/persistmap"
)

// Config holds csv backend initialization parameters.
type Config struct {
	Path string `json:"path,omitempty"` // CSV file location.
}

// DefaultConfig returns the default csv backend configuration.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Path != "" {
		c.Path = source.Path
	}
}

// NewFromConfig creates a Store from configuration.
func NewFromConfig[K comparable, V any](cfg *Config, codec persistmap.Codec[K, V]) (*Store[K, V], error) {
	if cfg.Path == "" {
		return nil, errors.New("csvstore: empty path")
	}
	return New(cfg.Path, codec), nil
}
