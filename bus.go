package statebus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/adrg/xdg"
	"github.com/benbjohnson/clock"

	"github.com/dshills/statebus/storage"
)

// Bus is a process-scoped registry of channels and instant-event
// listeners. Every Bus is fully isolated; tests construct a fresh one
// per case. All methods are safe for concurrent use.
type Bus struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	events   map[string]map[string]*listenerState
	closed   bool

	logger *slog.Logger
	clock  clock.Clock
	codec  storage.Codec

	// Store resolution
	storeMu     sync.Mutex
	session     storage.Store
	persistent  storage.Store
	sessionErr  bool
	persistErr  bool
	ownedStores []storage.Store

	// Watch lifecycles started by SyncFromStore
	syncCancels []context.CancelFunc

	// Stats
	published     atomic.Uint64
	emitted       atomic.Uint64
	delivered     atomic.Uint64
	rejected      atomic.Uint64
	hookPanics    atomic.Uint64
	storageErrors atomic.Uint64
}

// New creates a bus with the given options.
func New(opts ...Option) *Bus {
	config := defaultBusConfig()
	for _, opt := range opts {
		opt(&config)
	}

	return &Bus{
		channels:   make(map[string]*channelState),
		events:     make(map[string]map[string]*listenerState),
		logger:     config.logger,
		clock:      config.clock,
		codec:      config.codec,
		session:    config.session,
		persistent: config.persistent,
	}
}

// Publish sends a value to the named channel.
//
// An unknown name is implicitly created with the value as its initial
// value; that initializing publish notifies nobody. An existing
// channel runs the full pipeline: validate, transform, signal update,
// persistence, OnInit on the first value, OnChange subject to the
// channel's rate limit, then every subscriber.
func (b *Bus) Publish(name string, value any) error {
	if name == "" {
		return ErrEmptyName
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	st := b.channels[name]
	b.mu.RUnlock()

	if st == nil {
		cfg := DefaultChannelConfig()
		cfg.InitialValue = value
		cfg.HasInitial = true

		var created bool
		var err error
		st, created, err = b.ensure(name, cfg)
		if err != nil {
			return err
		}
		if created {
			b.published.Add(1)
			return nil
		}
		// Another goroutine created the channel first; fall through
		// to a normal publish.
	}

	return b.publishTo(st, value)
}

// publishTo runs the publish pipeline on an existing channel.
func (b *Bus) publishTo(st *channelState, value any) error {
	cfg := &st.cfg

	if cfg.Validate != nil {
		pass, ok := b.safeValidate("channel", st.name, cfg.Validate, value)
		if !ok {
			return &HookError{Name: st.name, Hook: "validate", Err: ErrHookPanic}
		}
		if !pass {
			b.rejected.Add(1)
			b.logger.Warn("publish rejected by validate hook", "channel", st.name)
			return fmt.Errorf("channel %q: %w", st.name, ErrValueRejected)
		}
	}

	if cfg.Transform != nil {
		out, ok := b.safeTransform("channel", st.name, cfg.Transform, value)
		if !ok {
			return &HookError{Name: st.name, Hook: "transform", Err: ErrHookPanic}
		}
		value = out
	}

	b.published.Add(1)
	b.deliver(st, value, true)
	return nil
}

// deliver stores a value and fans out notifications. It is shared by
// Publish and external store synchronization; the latter skips the
// persist stage to avoid write-back loops.
func (b *Bus) deliver(st *channelState, value any, persist bool) {
	b.mu.Lock()
	if b.closed || st.removed {
		// Cleared concurrently; the notification did not happen.
		b.mu.Unlock()
		return
	}
	old := st.sig.Get()
	firstInit := !st.initialized
	st.initialized = true

	subs := make([]SubscriberFunc, 0, len(st.subs))
	for _, fn := range st.subs {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	st.sig.Set(value)

	if persist {
		b.persistValue(st, value)
	}

	if firstInit && st.cfg.OnInit != nil {
		b.safeHook("channel", st.name, "onInit", func() { st.cfg.OnInit(value) })
	}

	if st.cfg.OnChange != nil && st.lim.trigger(value, old) {
		b.safeHook("channel", st.name, "onChange", func() { st.cfg.OnChange(value, old) })
	}

	for _, fn := range subs {
		fn := fn
		if b.safeHook("channel", st.name, "subscriber", func() { fn(value) }) {
			b.delivered.Add(1)
		}
	}
}

// SyncFromStore mirrors externally made storage changes into
// registered channels until ctx is cancelled or the bus closes.
// Changed entries re-deliver through the channel's signal, OnChange,
// and subscribers without re-persisting; removed entries clear the
// channel. Only stores implementing storage.Watcher participate;
// ErrNoWatchableStore reports that none did.
func (b *Bus) SyncFromStore(ctx context.Context) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	b.mu.RUnlock()

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.syncCancels = append(b.syncCancels, cancel)
	b.mu.Unlock()

	started := false
	for _, mode := range []storage.Mode{storage.ModeSession, storage.ModePersistent} {
		watcher, ok := b.storeFor(mode).(storage.Watcher)
		if !ok {
			continue
		}
		mode := mode
		err := watcher.Watch(ctx, func(key string, data []byte, present bool) {
			b.applyExternal(mode, key, data, present)
		})
		if err != nil {
			b.logger.Warn("store watch unavailable", "mode", mode.String(), "error", err)
			continue
		}
		started = true
	}

	if !started {
		cancel()
		return ErrNoWatchableStore
	}
	return nil
}

// applyExternal routes one external storage change to its channel.
func (b *Bus) applyExternal(mode storage.Mode, key string, data []byte, present bool) {
	b.mu.RLock()
	var st *channelState
	for _, c := range b.channels {
		if c.cfg.Mode == mode && c.cfg.StorageKey == key {
			st = c
			break
		}
	}
	b.mu.RUnlock()
	if st == nil {
		return // no channel registered for this key
	}

	if !present {
		b.clearState(st.name, st)
		return
	}

	value, err := b.codec.Unmarshal(data)
	if err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("synced value malformed", "channel", st.name, "codec", b.codec.Name(), "error", err)
		return
	}
	b.deliver(st, value, false)
}

// Close cancels all timers and watch goroutines and rejects further
// operations. Persisted entries stay on disk; removing them is
// ClearAll's job. OnClear hooks do not run. Close is idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true

	channels := make([]*channelState, 0, len(b.channels))
	for _, st := range b.channels {
		st.removed = true
		channels = append(channels, st)
	}
	var listeners []*listenerState
	for _, m := range b.events {
		for _, ls := range m {
			listeners = append(listeners, ls)
		}
	}
	b.channels = make(map[string]*channelState)
	b.events = make(map[string]map[string]*listenerState)

	cancels := b.syncCancels
	b.syncCancels = nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	for _, st := range channels {
		if st.ttlTimer != nil {
			st.ttlTimer.Stop()
		}
		st.lim.stop()
	}
	for _, ls := range listeners {
		ls.lim.stop()
	}

	b.storeMu.Lock()
	owned := b.ownedStores
	b.ownedStores = nil
	b.storeMu.Unlock()

	var errs []error
	for _, s := range owned {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// storeFor returns the store backing a mode, opening the default file
// store on first use. Memory mode has no store. An open failure
// degrades the mode to memory-only for the bus's lifetime.
func (b *Bus) storeFor(mode storage.Mode) storage.Store {
	b.storeMu.Lock()
	defer b.storeMu.Unlock()

	switch mode {
	case storage.ModeSession:
		if b.session != nil || b.sessionErr {
			return b.session
		}
		path := filepath.Join(os.TempDir(), "statebus", "session.json")
		s, err := storage.OpenFile(path)
		if err != nil {
			b.sessionErr = true
			b.storageErrors.Add(1)
			b.logger.Warn("session store unavailable", "path", path, "error", err)
			return nil
		}
		b.session = s
		b.ownedStores = append(b.ownedStores, s)
		return s

	case storage.ModePersistent:
		if b.persistent != nil || b.persistErr {
			return b.persistent
		}
		path := filepath.Join(xdg.DataHome, "statebus", "channels.json")
		s, err := storage.OpenFile(path)
		if err != nil {
			b.persistErr = true
			b.storageErrors.Add(1)
			b.logger.Warn("persistent store unavailable", "path", path, "error", err)
			return nil
		}
		b.persistent = s
		b.ownedStores = append(b.ownedStores, s)
		return s

	default:
		return nil
	}
}
