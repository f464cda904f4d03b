// Package persistmap provides a concurrent in-memory key-value map that
// writes every mutation through to a pluggable durable backend and reloads
// its state from that backend on construction.
//
// Reads are served from memory and never touch the backend; writes mutate
// memory first and then forward to the backend before returning. A failed
// backend write is surfaced to the caller but the in-memory mutation is not
// rolled back — the map favors immediate in-memory consistency for
// subsequent reads over strict durability atomicity.
//
//	backend := csvstore.New("data.csv", persistmap.StringJSON[string]())
//	m, err := persistmap.New(ctx, backend)
//	if err != nil { ... }
//	old, replaced, err := m.Insert(ctx, "greeting", "hello")
package persistmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tailored-agentic-units/persistmap/observability"
)

// Event types emitted by a Map when an observer is attached.
const (
	EventLoad   observability.EventType = "map.load"
	EventInsert observability.EventType = "map.insert"
	EventRemove observability.EventType = "map.remove"
	EventFlush  observability.EventType = "map.flush"
)

// Option configures a Map before its initial load.
type Option[K comparable, V any] func(*Map[K, V])

// WithObserver attaches an observer for map lifecycle events. The default
// is a NoOpObserver; the core never logs on its own.
func WithObserver[K comparable, V any](obs observability.Observer) Option[K, V] {
	return func(m *Map[K, V]) { m.observer = obs }
}

// Map is a write-through cache over a single Backend. Point reads
// (Get, ContainsKey, Len, IsEmpty) observe memory only and never block on
// I/O; Insert and Remove mutate memory and then await the backend write.
// All methods are safe for concurrent use.
//
// Per key, memory mutations are atomic. Backend writes issued by concurrent
// callers carry no ordering guarantee relative to each other: two racing
// Inserts on the same key may leave memory holding one value and the
// backend the other.
type Map[K comparable, V any] struct {
	backend  Backend[K, V]
	observer observability.Observer
	entries  map[K]V
	mu       sync.RWMutex
}

// New creates a Map bound to backend and performs one Load before
// returning. If the load fails no Map is returned — a Map is never
// observable in a partially-loaded state.
func New[K comparable, V any](ctx context.Context, backend Backend[K, V], opts ...Option[K, V]) (*Map[K, V], error) {
	m := &Map[K, V]{
		backend:  backend,
		observer: observability.NoOpObserver{},
		entries:  make(map[K]V),
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.Load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// Load merges the backend's persisted state into memory: every loaded entry
// overwrites a same-key entry in memory, while keys present only in memory
// are left untouched. Called once by New; callable again to refresh.
func (m *Map[K, V]) Load(ctx context.Context) error {
	all, err := m.backend.LoadAll(ctx)
	if err != nil {
		m.emit(ctx, observability.LevelError, EventLoad, map[string]any{"error": err.Error()})
		return fmt.Errorf("load: %w", err)
	}

	m.mu.Lock()
	for k, v := range all {
		m.entries[k] = v
	}
	m.mu.Unlock()

	m.emit(ctx, observability.LevelVerbose, EventLoad, map[string]any{"entries": len(all)})
	return nil
}

// Insert writes the entry to memory, then forwards it to the backend.
// It returns the value previously held under key, if any.
//
// On a Save failure the error is returned but memory keeps the new value:
// callers must read an Insert error as "memory updated, durability
// unconfirmed", not as a rollback.
func (m *Map[K, V]) Insert(ctx context.Context, key K, value V) (old V, replaced bool, err error) {
	m.mu.Lock()
	old, replaced = m.entries[key]
	m.entries[key] = value
	m.mu.Unlock()

	if err := m.backend.Save(ctx, key, value); err != nil {
		m.emit(ctx, observability.LevelError, EventInsert, map[string]any{"key": key, "error": err.Error()})
		return old, replaced, fmt.Errorf("insert: %w", err)
	}

	m.emit(ctx, observability.LevelVerbose, EventInsert, map[string]any{"key": key, "replaced": replaced})
	return old, replaced, nil
}

// Get returns the value held under key. Memory only, never blocks on I/O.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.entries[key]
	return value, ok
}

// Remove deletes the entry from memory and, only if a value was actually
// present, forwards the deletion to the backend. Removing an absent key
// returns (zero, false, nil) without any backend call.
//
// A Delete failure propagates but the key stays removed from memory — the
// same no-rollback trade-off as Insert.
func (m *Map[K, V]) Remove(ctx context.Context, key K) (old V, removed bool, err error) {
	m.mu.Lock()
	old, removed = m.entries[key]
	if removed {
		delete(m.entries, key)
	}
	m.mu.Unlock()

	if !removed {
		return old, false, nil
	}

	if err := m.backend.Delete(ctx, key); err != nil {
		m.emit(ctx, observability.LevelError, EventRemove, map[string]any{"key": key, "error": err.Error()})
		return old, true, fmt.Errorf("remove: %w", err)
	}

	m.emit(ctx, observability.LevelVerbose, EventRemove, map[string]any{"key": key})
	return old, true, nil
}

// ContainsKey reports whether key is present in memory.
func (m *Map[K, V]) ContainsKey(key K) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.entries[key]
	return ok
}

// Len returns the number of entries in memory.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// IsEmpty reports whether the map holds no entries in memory.
func (m *Map[K, V]) IsEmpty() bool {
	return m.Len() == 0
}

// Clear empties the in-memory map without touching the backend. This is
// deliberately asymmetric with Insert and Remove: a Clear does not imply
// persisted deletion, and a subsequent Load reintroduces persisted keys.
func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[K]V)
}

// Flush delegates to the backend's Flush.
func (m *Map[K, V]) Flush(ctx context.Context) error {
	if err := m.backend.Flush(ctx); err != nil {
		m.emit(ctx, observability.LevelError, EventFlush, map[string]any{"error": err.Error()})
		return fmt.Errorf("flush: %w", err)
	}
	m.emit(ctx, observability.LevelVerbose, EventFlush, nil)
	return nil
}

// Backend returns the bound backend handle, for backend-specific surface
// outside the common contract (a store's file path, its Close).
func (m *Map[K, V]) Backend() Backend[K, V] {
	return m.backend
}

func (m *Map[K, V]) emit(ctx context.Context, level observability.Level, typ observability.EventType, data map[string]any) {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "persistmap",
		Data:      data,
	})
}
