package persistmap

import "context"

// Backend is the capability set a durable medium must expose to trail a Map.
// Implementations are stateless with respect to the Map — they perform I/O
// on each call and never see the in-memory tier.
//
// A Map issues only bulk reads (LoadAll) and single-key writes (Save,
// Delete); it never asks a backend for a single key at runtime, because all
// point reads are served from memory.
type Backend[K comparable, V any] interface {
	// LoadAll returns the complete persisted state. It must be idempotent
	// and side-effect free on an existing medium. A medium that does not
	// yet exist is created empty and valid, and an empty map is returned.
	LoadAll(ctx context.Context) (map[K]V, error)

	// Save upserts one entry durably. After Save returns nil, a subsequent
	// LoadAll must observe the new value.
	Save(ctx context.Context, key K, value V) error

	// Delete removes one entry durably. Deleting an absent key succeeds
	// silently; only I/O or encoding failures produce an error.
	Delete(ctx context.Context, key K) error

	// Flush forces any buffered state to stable storage. Flush must be
	// idempotent and safe to call with no pending writes; backends with no
	// buffering return nil.
	Flush(ctx context.Context) error
}

// Queries is an optional upgrade for backends whose medium answers
// existence and count questions natively, without a full scan. Results must
// be indistinguishable from the LoadAll-derived answers.
type Queries[K comparable] interface {
	ContainsKey(ctx context.Context, key K) (bool, error)
	Len(ctx context.Context) (int, error)
}

// ContainsKey reports whether the backend currently persists key. Backends
// implementing Queries answer natively; otherwise the answer is computed
// from a LoadAll.
func ContainsKey[K comparable, V any](ctx context.Context, b Backend[K, V], key K) (bool, error) {
	if q, ok := b.(Queries[K]); ok {
		return q.ContainsKey(ctx, key)
	}
	all, err := b.LoadAll(ctx)
	if err != nil {
		return false, err
	}
	_, ok := all[key]
	return ok, nil
}

// Len returns the number of entries the backend currently persists.
func Len[K comparable, V any](ctx context.Context, b Backend[K, V]) (int, error) {
	if q, ok := b.(Queries[K]); ok {
		return q.Len(ctx)
	}
	all, err := b.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// IsEmpty reports whether the backend currently persists no entries.
func IsEmpty[K comparable, V any](ctx context.Context, b Backend[K, V]) (bool, error) {
	n, err := Len(ctx, b)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
