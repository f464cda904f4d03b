package sqlitestore

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/persistmap"
)

// Config holds sqlite backend initialization parameters.
type Config struct {
	Path string `json:"path,omitempty"` // Database file location.
}

// DefaultConfig returns the default sqlite backend configuration.
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
func NewFromConfig[K comparable, V any](ctx context.Context, cfg *Config, codec persistmap.Codec[K, V], opts ...Option[K, V]) (*Store[K, V], error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlitestore: empty path")
	}
	return New(ctx, cfg.Path, codec, opts...)
}
