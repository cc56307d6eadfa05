package statebus

import (
	"fmt"
	"sync/atomic"
	"time"
)

// ListenerFunc receives emitted event data.
type ListenerFunc func(data any)

// listenerConfig holds the per-registration event options.
type listenerConfig struct {
	validate  ValidateFunc
	transform TransformFunc
	debounce  time.Duration
	throttle  time.Duration
	once      bool
}

func (c *listenerConfig) check() error {
	if c.debounce > 0 && c.throttle > 0 {
		return ErrConflictingRateLimits
	}
	if c.debounce < 0 {
		return fmt.Errorf("%w: negative debounce %v", ErrInvalidConfig, c.debounce)
	}
	if c.throttle < 0 {
		return fmt.Errorf("%w: negative throttle %v", ErrInvalidConfig, c.throttle)
	}
	return nil
}

// ListenerOption configures a single On registration. Rate limit and
// hook state is private to the registration; two listeners on the
// same event never share a debounce timer or throttle window.
type ListenerOption func(*listenerConfig)

// WithListenerValidate gates emitted data; rejected data never reaches
// the listener.
func WithListenerValidate(fn ValidateFunc) ListenerOption {
	return func(c *listenerConfig) {
		c.validate = fn
	}
}

// WithListenerTransform rewrites emitted data before the listener
// sees it.
func WithListenerTransform(fn TransformFunc) ListenerOption {
	return func(c *listenerConfig) {
		c.transform = fn
	}
}

// WithListenerDebounce delays delivery until d elapses without a new
// emission; only the last emission survives. Mutually exclusive with
// WithListenerThrottle.
func WithListenerDebounce(d time.Duration) ListenerOption {
	return func(c *listenerConfig) {
		c.debounce = d
	}
}

// WithListenerThrottle delivers at most one emission per d; emissions
// inside the window are dropped. Mutually exclusive with
// WithListenerDebounce.
func WithListenerThrottle(d time.Duration) ListenerOption {
	return func(c *listenerConfig) {
		c.throttle = d
	}
}

// WithListenerOnce removes the registration after its first delivery.
func WithListenerOnce() ListenerOption {
	return func(c *listenerConfig) {
		c.once = true
	}
}

// listenerState is one live On registration.
type listenerState struct {
	id    string
	name  string
	fn    ListenerFunc
	cfg   listenerConfig
	lim   *limiter
	fired atomic.Bool
}

// On registers fn for the named instant event. The returned
// subscription's Unsubscribe is idempotent; removing the last listener
// deletes the event's registry entry.
func (b *Bus) On(name string, fn ListenerFunc, opts ...ListenerOption) (*Subscription, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if fn == nil {
		return nil, ErrNilCallback
	}

	cfg := listenerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("event %q: %w", name, err)
	}

	ls := &listenerState{id: generateID(), name: name, fn: fn, cfg: cfg}
	ls.lim = newLimiter(b.clock, cfg.debounce, cfg.throttle, func(v, _ any) {
		b.invokeListener(ls, v)
	})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBusClosed
	}
	m := b.events[name]
	if m == nil {
		m = make(map[string]*listenerState)
		b.events[name] = m
	}
	m[ls.id] = ls
	b.mu.Unlock()

	return &Subscription{id: ls.id, cancel: func() { b.removeListener(name, ls.id) }}, nil
}

// Once registers fn for a single delivery of the named event.
func (b *Bus) Once(name string, fn ListenerFunc) (*Subscription, error) {
	return b.On(name, fn, WithListenerOnce())
}

// Emit delivers data to every listener of the named event,
// synchronously and in no defined order. Emitting with no listeners is
// a no-op. Each listener runs its own validate, transform, and rate
// limit; a panic in one never stops the others.
func (b *Bus) Emit(name string, data any) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	m := b.events[name]
	if len(m) == 0 {
		b.mu.RUnlock()
		return
	}
	listeners := make([]*listenerState, 0, len(m))
	for _, ls := range m {
		listeners = append(listeners, ls)
	}
	b.mu.RUnlock()

	b.emitted.Add(1)
	for _, ls := range listeners {
		b.dispatchTo(ls, data)
	}
}

// dispatchTo runs one listener's pipeline for an emitted value.
func (b *Bus) dispatchTo(ls *listenerState, data any) {
	if ls.cfg.validate != nil {
		pass, ok := b.safeValidate("event", ls.name, ls.cfg.validate, data)
		if !ok {
			return
		}
		if !pass {
			b.rejected.Add(1)
			b.logger.Warn("emission rejected by validate hook", "event", ls.name, "listener", ls.id)
			return
		}
	}

	if ls.cfg.transform != nil {
		out, ok := b.safeTransform("event", ls.name, ls.cfg.transform, data)
		if !ok {
			return
		}
		data = out
	}

	if ls.lim.trigger(data, nil) {
		b.invokeListener(ls, data)
	}
}

// invokeListener delivers data to a listener, enforcing at-most-once
// for Once registrations even under concurrent emits.
func (b *Bus) invokeListener(ls *listenerState, data any) {
	if ls.cfg.once && !ls.fired.CompareAndSwap(false, true) {
		return
	}

	if b.safeHook("event", ls.name, "listener", func() { ls.fn(data) }) {
		b.delivered.Add(1)
	}

	if ls.cfg.once {
		b.removeListener(ls.name, ls.id)
	}
}

// Off removes every listener of the named event and deletes its
// registry entry. Pending debounced deliveries are cancelled.
func (b *Bus) Off(name string) {
	b.mu.Lock()
	m := b.events[name]
	delete(b.events, name)
	b.mu.Unlock()

	for _, ls := range m {
		ls.lim.stop()
	}
}

// removeListener detaches one registration, dropping the event's
// registry entry when it was the last.
func (b *Bus) removeListener(name, id string) {
	b.mu.Lock()
	m := b.events[name]
	ls, ok := m[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(m, id)
	if len(m) == 0 {
		delete(b.events, name)
	}
	b.mu.Unlock()

	ls.lim.stop()
}
