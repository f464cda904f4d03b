package redisstore

import (
	"errors"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/persistmap"
)

// Config holds redis backend initialization parameters.
type Config struct {
	Addr    string `json:"addr,omitempty"`     // Server address, host:port.
	DB      int    `json:"db,omitempty"`       // Logical database number.
	HashKey string `json:"hash_key,omitempty"` // Hash all entries live in.
}

// DefaultConfig returns the default redis backend configuration.
func DefaultConfig() Config {
	return Config{}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Addr != "" {
		c.Addr = source.Addr
	}
	if source.DB != 0 {
		c.DB = source.DB
	}
	if source.HashKey != "" {
		c.HashKey = source.HashKey
	}
}

// NewFromConfig dials a redis client for cfg and creates a Store that owns
// it: Store.Close closes the client.
func NewFromConfig[K comparable, V any](cfg *Config, codec persistmap.Codec[K, V], logger *zap.Logger) (*Store[K, V], error) {
	if cfg.Addr == "" {
		return nil, errors.New("redisstore: empty addr")
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})

	return New(Opts{
		Client:       client,
		ClientCloser: client,
		HashKey:      cfg.HashKey,
		Logger:       logger,
	}, codec)
}
