// Package redisstore provides a keyed-upsert backend over a Redis hash. All
// entries live in one hash, so saves and deletes are single-field commands:
// concurrent mutations to different keys never interfere, and racing writes
// to the same key resolve last-writer-wins.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/persistmap"
)

var nopLogger = zap.NewNop()

const defaultHashKey = "persistmap"

// Opts holds Store construction parameters.
type Opts struct {
	// Client cannot be nil.
	Client redis.Cmdable

	// ClientCloser closes Client when Store.Close is called. Optional.
	ClientCloser io.Closer

	// HashKey is the redis hash all entries live in. Default "persistmap".
	HashKey string

	// Logger for connection lifecycle messages. A nil Logger disables
	// logging.
	Logger *zap.Logger
}

// Init validates opts and fills defaults.
func (opts *Opts) Init() error {
	if opts.Client == nil {
		return errors.New("nil client")
	}
	if opts.HashKey == "" {
		opts.HashKey = defaultHashKey
	}
	if opts.Logger == nil {
		opts.Logger = nopLogger
	}
	return nil
}

// Store is a redis-backed keyed store bound to one hash.
type Store[K comparable, V any] struct {
	opts  Opts
	codec persistmap.Codec[K, V]
}

// New creates a Store over the client in opts.
func New[K comparable, V any](opts Opts, codec persistmap.Codec[K, V]) (*Store[K, V], error) {
	if err := opts.Init(); err != nil {
		return nil, err
	}
	opts.Logger.Info("redis store ready", zap.String("hash_key", opts.HashKey))
	return &Store[K, V]{opts: opts, codec: codec}, nil
}

// LoadAll reads the whole hash.
func (s *Store[K, V]) LoadAll(ctx context.Context) (map[K]V, error) {
	fields, err := s.opts.Client.HGetAll(ctx, s.opts.HashKey).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}

	all := make(map[K]V, len(fields))
	for ks, vs := range fields {
		key, err := s.codec.DecodeKey(ks)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, ks, err)
		}
		value, err := s.codec.DecodeValue([]byte(vs))
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", persistmap.ErrBadRecord, ks, err)
		}
		all[key] = value
	}

	return all, nil
}

// Save upserts one hash field.
func (s *Store[K, V]) Save(ctx context.Context, key K, value V) error {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}
	vs, err := s.codec.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}

	if err := s.opts.Client.HSet(ctx, s.opts.HashKey, ks, string(vs)).Err(); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrSaveFailed, err)
	}
	return nil
}

// Delete removes one hash field. Deleting an absent field matches nothing
// and succeeds.
func (s *Store[K, V]) Delete(ctx context.Context, key K) error {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}

	if err := s.opts.Client.HDel(ctx, s.opts.HashKey, ks).Err(); err != nil {
		return fmt.Errorf("%w: %v", persistmap.ErrDeleteFailed, err)
	}
	return nil
}

// Flush is a no-op: the store buffers nothing, and durability of the hash
// is governed by the server's own persistence configuration.
func (s *Store[K, V]) Flush(_ context.Context) error {
	return nil
}

// ContainsKey answers the existence check natively.
func (s *Store[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	ks, err := s.codec.EncodeKey(key)
	if err != nil {
		return false, fmt.Errorf("%w: %v", persistmap.ErrBadRecord, err)
	}

	exists, err := s.opts.Client.HExists(ctx, s.opts.HashKey, ks).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	return exists, nil
}

// Len answers the entry count natively.
func (s *Store[K, V]) Len(ctx context.Context) (int, error) {
	n, err := s.opts.Client.HLen(ctx, s.opts.HashKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", persistmap.ErrLoadFailed, err)
	}
	return int(n), nil
}

// Close closes the underlying client via ClientCloser when one was
// provided.
func (s *Store[K, V]) Close() error {
	if s.opts.ClientCloser != nil {
		return s.opts.ClientCloser.Close()
	}
	return nil
}
