// Package memstore provides a backend that persists nothing. The map's own
// memory is the only copy of the data, so a fresh map constructed over a new
// Store always starts empty. Useful for tests and for running without
// durability.
package memstore

import "context"

// Store accepts every write and discards it. All methods are safe for
// concurrent use.
type Store[K comparable, V any] struct{}

// New creates a non-durable backend.
func New[K comparable, V any]() *Store[K, V] {
	return &Store[K, V]{}
}

// LoadAll always returns an empty map.
func (*Store[K, V]) LoadAll(_ context.Context) (map[K]V, error) {
	return map[K]V{}, nil
}

// Save discards the entry.
func (*Store[K, V]) Save(_ context.Context, _ K, _ V) error {
	return nil
}

// Delete discards the deletion.
func (*Store[K, V]) Delete(_ context.Context, _ K) error {
	return nil
}

// Flush is a no-op.
func (*Store[K, V]) Flush(_ context.Context) error {
	return nil
}
