package statebus

import (
	"context"
	"errors"
	"testing"

	"github.com/dshills/statebus/storage"
)

// watchableStore wraps a MemoryStore with a manually driven Watch so
// tests can inject external changes.
type watchableStore struct {
	*storage.MemoryStore
	fn   storage.ChangeFunc
	sets int
}

func newWatchableStore() *watchableStore {
	return &watchableStore{MemoryStore: storage.NewMemory()}
}

func (s *watchableStore) Set(key string, data []byte) error {
	s.sets++
	return s.MemoryStore.Set(key, data)
}

func (s *watchableStore) Watch(ctx context.Context, fn storage.ChangeFunc) error {
	s.fn = fn
	return nil
}

func (s *watchableStore) push(key string, data []byte, present bool) {
	s.fn(key, data, present)
}

func TestBus_SyncFromStore_AppliesChanges(t *testing.T) {
	store := newWatchableStore()
	bus := New(
		WithLogger(discardLogger()),
		WithSessionStore(store),
		WithPersistentStore(storage.NewMemory()),
	)
	defer bus.Close()

	var changed [2]any
	bus.Channel("shared.flag",
		WithMode(storage.ModeSession),
		WithOnChange(func(nv, ov any) { changed = [2]any{nv, ov} }),
	)
	var seen any
	bus.Subscribe("shared.flag", func(v any) { seen = v })

	if err := bus.SyncFromStore(context.Background()); err != nil {
		t.Fatalf("SyncFromStore() failed: %v", err)
	}

	store.push("statebus:shared.flag", []byte(`"remote"`), true)

	if v, _ := bus.Value("shared.flag"); v != "remote" {
		t.Errorf("expected the external value to be applied, got %v", v)
	}
	if seen != "remote" {
		t.Errorf("expected the subscriber to be notified, got %v", seen)
	}
	if changed[0] != "remote" {
		t.Errorf("expected OnChange to fire, got %v", changed)
	}
	// External changes must not be written back to the store.
	if store.sets != 0 {
		t.Errorf("expected no write-back, got %d sets", store.sets)
	}
}

func TestBus_SyncFromStore_RemovalClears(t *testing.T) {
	store := newWatchableStore()
	bus := New(
		WithLogger(discardLogger()),
		WithSessionStore(store),
		WithPersistentStore(storage.NewMemory()),
	)
	defer bus.Close()

	cleared := false
	bus.Channel("shared.flag",
		WithMode(storage.ModeSession),
		WithOnClear(func() { cleared = true }),
	)

	if err := bus.SyncFromStore(context.Background()); err != nil {
		t.Fatalf("SyncFromStore() failed: %v", err)
	}

	store.push("statebus:shared.flag", nil, false)

	if !cleared {
		t.Error("expected an external removal to clear the channel")
	}
	if got := bus.Names(); len(got) != 0 {
		t.Errorf("expected no channels, got %v", got)
	}
}

func TestBus_SyncFromStore_UnknownKeyIgnored(t *testing.T) {
	store := newWatchableStore()
	bus := New(
		WithLogger(discardLogger()),
		WithSessionStore(store),
		WithPersistentStore(storage.NewMemory()),
	)
	defer bus.Close()

	bus.Channel("known", WithMode(storage.ModeSession), WithInitialValue(1))

	if err := bus.SyncFromStore(context.Background()); err != nil {
		t.Fatalf("SyncFromStore() failed: %v", err)
	}

	store.push("statebus:stranger", []byte(`2`), true)

	if v, _ := bus.Value("known"); v != 1 {
		t.Errorf("expected the known channel untouched, got %v", v)
	}
	if got := len(bus.Names()); got != 1 {
		t.Errorf("expected exactly one channel, got %d", got)
	}
}

func TestBus_SyncFromStore_MalformedIgnored(t *testing.T) {
	store := newWatchableStore()
	bus := New(
		WithLogger(discardLogger()),
		WithSessionStore(store),
		WithPersistentStore(storage.NewMemory()),
	)
	defer bus.Close()

	bus.Channel("shared.flag",
		WithMode(storage.ModeSession),
		WithInitialValue("local"),
	)

	if err := bus.SyncFromStore(context.Background()); err != nil {
		t.Fatalf("SyncFromStore() failed: %v", err)
	}

	store.push("statebus:shared.flag", []byte("{oops"), true)

	if v, _ := bus.Value("shared.flag"); v != "local" {
		t.Errorf("expected the malformed change to be dropped, got %v", v)
	}
	if got := bus.Stats().StorageErrors; got == 0 {
		t.Error("expected a storage error to be counted")
	}
}

func TestBus_SyncFromStore_NoWatchableStore(t *testing.T) {
	bus := New(
		WithLogger(discardLogger()),
		WithSessionStore(storage.NewMemory()),
		WithPersistentStore(storage.NewMemory()),
	)
	defer bus.Close()

	err := bus.SyncFromStore(context.Background())
	if !errors.Is(err, ErrNoWatchableStore) {
		t.Errorf("expected ErrNoWatchableStore, got %v", err)
	}
}

func TestBus_SyncFromStore_Closed(t *testing.T) {
	bus := New(WithLogger(discardLogger()))
	bus.Close()

	if err := bus.SyncFromStore(context.Background()); err != ErrBusClosed {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}
