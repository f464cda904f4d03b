package persistmap_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/tailored-agentic-units/persistmap"
	"github.com/tailored-agentic-units/persistmap/memstore"
	"github.com/tailored-agentic-units/persistmap/observability"
)

// fakeBackend records every write it receives and serves LoadAll from an
// in-memory map, with injectable failures.
type fakeBackend struct {
	mu      sync.Mutex
	data    map[string]string
	saves   []string
	deletes []string
	flushes int

	loadErr   error
	saveErr   error
	deleteErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{data: make(map[string]string)}
}

func (b *fakeBackend) LoadAll(_ context.Context) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.loadErr != nil {
		return nil, b.loadErr
	}
	all := make(map[string]string, len(b.data))
	for k, v := range b.data {
		all[k] = v
	}
	return all, nil
}

func (b *fakeBackend) Save(_ context.Context, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.saveErr != nil {
		return b.saveErr
	}
	b.data[key] = value
	b.saves = append(b.saves, key)
	return nil
}

func (b *fakeBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.data, key)
	b.deletes = append(b.deletes, key)
	return nil
}

func (b *fakeBackend) Flush(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushes++
	return nil
}

func TestMap_New_LoadsPersistedState(t *testing.T) {
	backend := newFakeBackend()
	backend.data["a"] = "1"
	backend.data["b"] = "2"

	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
	if v, ok := m.Get("a"); !ok || v != "1" {
		t.Errorf("Get(a) = %q, %v, want %q, true", v, ok, "1")
	}
}

func TestMap_New_LoadFailure(t *testing.T) {
	backend := newFakeBackend()
	backend.loadErr = errors.New("medium unreachable")

	m, err := persistmap.New(context.Background(), backend)
	if err == nil {
		t.Fatal("New() error = nil, want load failure")
	}
	if m != nil {
		t.Error("New() returned a map alongside an error")
	}
}

func TestMap_Insert_Get(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	old, replaced, err := m.Insert(context.Background(), "greeting", "hello")
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if replaced {
		t.Errorf("Insert() replaced = true, want false (fresh key), old = %q", old)
	}

	if v, ok := m.Get("greeting"); !ok || v != "hello" {
		t.Errorf("Get(greeting) = %q, %v, want %q, true", v, ok, "hello")
	}
	if !m.ContainsKey("greeting") {
		t.Error("ContainsKey(greeting) = false, want true")
	}
	if backend.data["greeting"] != "hello" {
		t.Errorf("backend holds %q, want %q", backend.data["greeting"], "hello")
	}
}

func TestMap_Insert_ReturnsPrevious(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, err := m.Insert(context.Background(), "k", "v1"); err != nil {
		t.Fatalf("Insert(v1) error = %v", err)
	}

	old, replaced, err := m.Insert(context.Background(), "k", "v2")
	if err != nil {
		t.Fatalf("Insert(v2) error = %v", err)
	}
	if !replaced || old != "v1" {
		t.Errorf("Insert(v2) = %q, %v, want %q, true", old, replaced, "v1")
	}
	if v, _ := m.Get("k"); v != "v2" {
		t.Errorf("Get(k) = %q, want %q", v, "v2")
	}
}

func TestMap_Insert_SaveFailureKeepsMemory(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	saveErr := errors.New("disk full")
	backend.saveErr = saveErr

	_, _, err = m.Insert(context.Background(), "k", "v")
	if !errors.Is(err, saveErr) {
		t.Fatalf("Insert() error = %v, want wrapped %v", err, saveErr)
	}

	// Memory already reflects the new value even though persistence failed.
	if v, ok := m.Get("k"); !ok || v != "v" {
		t.Errorf("Get(k) after failed save = %q, %v, want %q, true", v, ok, "v")
	}
	if _, ok := backend.data["k"]; ok {
		t.Error("backend holds the value a failed save should not have written")
	}
}

func TestMap_Remove_AbsentSkipsBackend(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	old, removed, err := m.Remove(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if removed {
		t.Errorf("Remove(absent) = %q, true, want zero, false", old)
	}
	if len(backend.deletes) != 0 {
		t.Errorf("backend Delete called %d times for an absent key, want 0", len(backend.deletes))
	}
}

func TestMap_Remove_PresentDeletesOnce(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if _, _, err := m.Insert(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	old, removed, err := m.Remove(context.Background(), "k")
	if err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if !removed || old != "v" {
		t.Errorf("Remove(k) = %q, %v, want %q, true", old, removed, "v")
	}
	if m.ContainsKey("k") {
		t.Error("ContainsKey(k) = true after Remove")
	}
	if len(backend.deletes) != 1 || backend.deletes[0] != "k" {
		t.Errorf("backend deletes = %v, want exactly [k]", backend.deletes)
	}
}

func TestMap_Remove_DeleteFailureKeepsRemoval(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, err := m.Insert(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deleteErr := errors.New("permission denied")
	backend.deleteErr = deleteErr

	old, removed, err := m.Remove(context.Background(), "k")
	if !errors.Is(err, deleteErr) {
		t.Fatalf("Remove() error = %v, want wrapped %v", err, deleteErr)
	}
	if !removed || old != "v" {
		t.Errorf("Remove(k) = %q, %v, want %q, true", old, removed, "v")
	}
	if m.ContainsKey("k") {
		t.Error("key still in memory after failed delete, want removed")
	}
}

func TestMap_Load_MergesWithMemory(t *testing.T) {
	backend := newFakeBackend()
	backend.data["shared"] = "backend"
	backend.data["only-backend"] = "1"

	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A key the backend never saw: save fails, memory keeps it.
	backend.saveErr = errors.New("offline")
	m.Insert(context.Background(), "only-memory", "2")
	backend.saveErr = nil

	// Another process moved the shared key.
	backend.mu.Lock()
	backend.data["shared"] = "newer"
	backend.mu.Unlock()

	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if v, _ := m.Get("shared"); v != "newer" {
		t.Errorf("Get(shared) = %q, want backend value %q", v, "newer")
	}
	if v, ok := m.Get("only-memory"); !ok || v != "2" {
		t.Errorf("Get(only-memory) = %q, %v, want survive merge", v, ok)
	}
	if v, ok := m.Get("only-backend"); !ok || v != "1" {
		t.Errorf("Get(only-backend) = %q, %v, want loaded", v, ok)
	}
}

func TestMap_Clear_MemoryOnly(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, _, err := m.Insert(context.Background(), "k", "v"); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	deletesBefore := len(backend.deletes)
	m.Clear()

	if m.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", m.Len())
	}
	if !m.IsEmpty() {
		t.Error("IsEmpty() = false after Clear")
	}
	if len(backend.deletes) != deletesBefore {
		t.Error("Clear() invoked backend Delete")
	}

	// The backend still holds the entry; a reload brings it back.
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if v, ok := m.Get("k"); !ok || v != "v" {
		t.Errorf("Get(k) after reload = %q, %v, want %q, true", v, ok, "v")
	}
}

func TestMap_Flush_Idempotent(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if err := m.Flush(context.Background()); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}
	if backend.flushes != 2 {
		t.Errorf("backend flushes = %d, want 2", backend.flushes)
	}
}

func TestMap_Backend(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	got, ok := m.Backend().(*fakeBackend)
	if !ok || got != backend {
		t.Error("Backend() did not return the bound backend")
	}
}

func TestMap_ObserverReceivesEvents(t *testing.T) {
	var events []observability.Event
	obs := &captureObserver{events: &events}

	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend,
		persistmap.WithObserver[string, string](obs))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.Insert(context.Background(), "k", "v")
	m.Remove(context.Background(), "k")
	m.Flush(context.Background())

	want := []observability.EventType{
		persistmap.EventLoad,
		persistmap.EventInsert,
		persistmap.EventRemove,
		persistmap.EventFlush,
	}
	if len(events) != len(want) {
		t.Fatalf("received %d events, want %d", len(events), len(want))
	}
	for i, typ := range want {
		if events[i].Type != typ {
			t.Errorf("event[%d].Type = %q, want %q", i, events[i].Type, typ)
		}
	}
}

func TestMap_ConcurrentAccess(t *testing.T) {
	backend := newFakeBackend()
	m, err := persistmap.New(context.Background(), backend)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				m.Insert(context.Background(), key, "v")
				m.Get(key)
				m.ContainsKey(key)
				m.Len()
			}
		}(w)
	}
	wg.Wait()

	if m.Len() != writers*perWriter {
		t.Errorf("Len() = %d, want %d", m.Len(), writers*perWriter)
	}
}

func TestMap_NonDurableReconstruct(t *testing.T) {
	ctx := context.Background()

	m, err := persistmap.New(ctx, memstore.New[string, string]())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	m.Insert(ctx, "a", "1")
	m.Insert(ctx, "b", "2")
	if _, _, err := m.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1", m.Len())
	}

	// A fresh map over a fresh non-durable backend carries nothing over.
	fresh, err := persistmap.New(ctx, memstore.New[string, string]())
	if err != nil {
		t.Fatalf("New(fresh) error = %v", err)
	}
	if !fresh.IsEmpty() {
		t.Errorf("fresh map Len() = %d, want 0", fresh.Len())
	}
}

type captureObserver struct {
	events *[]observability.Event
}

func (c *captureObserver) OnEvent(_ context.Context, event observability.Event) {
	*c.events = append(*c.events, event)
}
