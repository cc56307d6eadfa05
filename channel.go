package statebus

import (
	"fmt"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dshills/statebus/signal"
	"github.com/dshills/statebus/storage"
)

// channelState is the registry entry for one channel. The bus mutex
// guards subs, initialized, and removed; sig and lim carry their own
// locks and are touched outside it.
type channelState struct {
	name        string
	cfg         ChannelConfig
	sig         signal.Value[any]
	subs        map[string]SubscriberFunc
	created     time.Time
	initialized bool
	removed     bool
	lim         *limiter
	ttlTimer    *clock.Timer
}

// Channel creates the named channel or returns the existing one. On an
// existing channel the options are ignored; the first creation wins.
// A session or persistent channel resolves its value from storage
// before falling back to WithInitialValue. If a value resolves, OnInit
// fires before Channel returns.
func (b *Bus) Channel(name string, opts ...ChannelOption) (*Channel, error) {
	cfg := DefaultChannelConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	st, _, err := b.ensure(name, cfg)
	if err != nil {
		return nil, err
	}
	return &Channel{bus: b, name: name, st: st}, nil
}

// ensure returns the channel registered under name, creating it from
// cfg when absent. created reports whether this call built it.
func (b *Bus) ensure(name string, cfg ChannelConfig) (st *channelState, created bool, err error) {
	if name == "" {
		return nil, false, ErrEmptyName
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil, false, ErrBusClosed
	}
	if st, ok := b.channels[name]; ok {
		b.mu.RUnlock()
		return st, false, nil
	}
	b.mu.RUnlock()

	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("channel %q: %w", name, err)
	}
	if cfg.StorageKey == "" {
		cfg.StorageKey = "statebus:" + name
	}

	// Resolve the stored value before taking the write lock; the
	// store may touch the filesystem.
	value, found := b.loadPersisted(name, cfg)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, false, ErrBusClosed
	}
	if st, ok := b.channels[name]; ok {
		// Lost the race to a concurrent create; its config won.
		b.mu.Unlock()
		return st, false, nil
	}

	resolved, hasValue := cfg.InitialValue, cfg.HasInitial
	if found {
		resolved, hasValue = value, true
	}

	st = &channelState{
		name:        name,
		cfg:         cfg,
		sig:         signal.New[any](resolved),
		subs:        make(map[string]SubscriberFunc),
		created:     b.clock.Now(),
		initialized: hasValue,
	}
	st.lim = newLimiter(b.clock, cfg.Debounce, cfg.Throttle, func(nv, ov any) {
		if st.cfg.OnChange != nil {
			b.safeHook("channel", name, "onChange", func() { st.cfg.OnChange(nv, ov) })
		}
	})
	if cfg.TTL > 0 {
		st.ttlTimer = b.clock.AfterFunc(cfg.TTL, func() { b.clearState(name, st) })
	}
	b.channels[name] = st
	b.mu.Unlock()

	if hasValue && cfg.OnInit != nil {
		b.safeHook("channel", name, "onInit", func() { cfg.OnInit(resolved) })
	}
	return st, true, nil
}

// Subscribe attaches fn to the named channel, creating the channel
// with defaults when it does not exist. fn receives every value the
// channel accepts after this call. The returned subscription's
// Unsubscribe is idempotent; on a channel created with
// WithAutoCleanup, detaching the last subscriber clears it.
func (b *Bus) Subscribe(name string, fn SubscriberFunc) (*Subscription, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}

	for {
		st, _, err := b.ensure(name, DefaultChannelConfig())
		if err != nil {
			return nil, err
		}

		id := generateID()
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBusClosed
		}
		if st.removed {
			// Cleared between ensure and registration; recreate.
			b.mu.Unlock()
			continue
		}
		st.subs[id] = fn
		b.mu.Unlock()

		return &Subscription{id: id, cancel: func() { b.removeSubscriber(name, st, id) }}, nil
	}
}

// removeSubscriber detaches one subscriber, clearing the channel when
// it was the last and the channel asked for auto cleanup.
func (b *Bus) removeSubscriber(name string, st *channelState, id string) {
	b.mu.Lock()
	if b.closed || b.channels[name] != st {
		b.mu.Unlock()
		return
	}
	if _, ok := st.subs[id]; !ok {
		b.mu.Unlock()
		return
	}
	delete(st.subs, id)
	cleanup := st.cfg.AutoCleanup && len(st.subs) == 0
	b.mu.Unlock()

	if cleanup {
		b.clearState(name, st)
	}
}

// Clear resets and unregisters the named channel: OnClear fires, the
// TTL timer and any pending rate limit are cancelled, the stored entry
// is removed, and subscribers are dropped without notification.
// Clearing an unknown name is a no-op.
func (b *Bus) Clear(name string) {
	b.clearState(name, nil)
}

// clearState removes a channel. A non-nil only restricts the clear to
// that instance, so a stale TTL timer cannot destroy a recreated
// channel of the same name.
func (b *Bus) clearState(name string, only *channelState) {
	b.mu.Lock()
	st, ok := b.channels[name]
	if b.closed || !ok || (only != nil && st != only) {
		b.mu.Unlock()
		return
	}
	delete(b.channels, name)
	st.removed = true
	ttl := st.ttlTimer
	st.ttlTimer = nil
	st.subs = make(map[string]SubscriberFunc)
	b.mu.Unlock()

	if ttl != nil {
		ttl.Stop()
	}
	st.lim.stop()

	if st.cfg.OnClear != nil {
		b.safeHook("channel", name, "onClear", st.cfg.OnClear)
	}
	b.removeStored(st)
}

// ClearAll clears every channel, or only those whose storage mode is
// in modes when any are given.
func (b *Bus) ClearAll(modes ...storage.Mode) {
	filter := make(map[storage.Mode]bool, len(modes))
	for _, m := range modes {
		filter[m] = true
	}

	b.mu.RLock()
	names := make([]string, 0, len(b.channels))
	for name, st := range b.channels {
		if len(filter) > 0 && !filter[st.cfg.Mode] {
			continue
		}
		names = append(names, name)
	}
	b.mu.RUnlock()

	for _, name := range names {
		b.Clear(name)
	}
}

// loadPersisted reads and decodes the stored value for a channel being
// created. Unreadable or malformed entries are treated as absent.
func (b *Bus) loadPersisted(name string, cfg ChannelConfig) (any, bool) {
	if cfg.Mode == storage.ModeMemory {
		return nil, false
	}
	store := b.storeFor(cfg.Mode)
	if store == nil {
		return nil, false
	}

	data, ok, err := store.Get(cfg.StorageKey)
	if err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("stored value unreadable", "channel", name, "key", cfg.StorageKey, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	v, err := b.codec.Unmarshal(data)
	if err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("stored value malformed", "channel", name, "codec", b.codec.Name(), "error", err)
		return nil, false
	}
	return v, true
}

// persistValue writes a published value through the channel's store.
// Failures are logged and the value stays in memory.
func (b *Bus) persistValue(st *channelState, value any) {
	if st.cfg.Mode == storage.ModeMemory {
		return
	}
	store := b.storeFor(st.cfg.Mode)
	if store == nil {
		return
	}

	data, err := b.codec.Marshal(value)
	if err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("value not persisted", "channel", st.name, "codec", b.codec.Name(), "error", err)
		return
	}
	if err := store.Set(st.cfg.StorageKey, data); err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("value not persisted", "channel", st.name, "key", st.cfg.StorageKey, "error", err)
	}
}

// removeStored deletes a cleared channel's storage entry.
func (b *Bus) removeStored(st *channelState) {
	if st.cfg.Mode == storage.ModeMemory {
		return
	}
	store := b.storeFor(st.cfg.Mode)
	if store == nil {
		return
	}
	if err := store.Delete(st.cfg.StorageKey); err != nil {
		b.storageErrors.Add(1)
		b.logger.Warn("stored value not removed", "channel", st.name, "key", st.cfg.StorageKey, "error", err)
	}
}

// Channel is a handle to one named channel. Handles are cheap; any
// number may exist for the same name and all act on the live registry
// entry. Only Observe binds to the instance that existed when the
// handle was made.
type Channel struct {
	bus  *Bus
	name string
	st   *channelState
}

// Name returns the channel's registry name.
func (c *Channel) Name() string { return c.name }

// Value returns the current value, or false while the channel has
// never held one.
func (c *Channel) Value() (any, bool) { return c.bus.Value(c.name) }

// Publish sends a value through the channel's pipeline.
func (c *Channel) Publish(value any) error { return c.bus.Publish(c.name, value) }

// Subscribe attaches fn to the channel.
func (c *Channel) Subscribe(fn SubscriberFunc) (*Subscription, error) {
	return c.bus.Subscribe(c.name, fn)
}

// Metadata describes the channel without touching its value.
func (c *Channel) Metadata() (Metadata, error) { return c.bus.Metadata(c.name) }

// Observe registers fn directly on the channel's value signal,
// bypassing hooks and rate limits. It fires on every stored value.
// The observation is bound to this handle's channel instance: after a
// Clear it goes quiet even if the name is recreated. The returned
// cancel is idempotent.
func (c *Channel) Observe(fn func(value any)) (cancel func()) {
	return c.st.sig.Subscribe(fn)
}
