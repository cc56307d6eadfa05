package statebus

import (
	"fmt"
	"time"

	"github.com/dshills/statebus/storage"
)

// ValidateFunc gates a published value. Returning false rejects the
// publish entirely.
type ValidateFunc func(value any) bool

// TransformFunc rewrites a published value after validation. Its
// output is what is stored, persisted, and delivered.
type TransformFunc func(value any) any

// ChangeFunc observes a successful publish, receiving the new value
// and the one it replaced.
type ChangeFunc func(newValue, oldValue any)

// InitFunc observes a channel's first non-absent value.
type InitFunc func(value any)

// ClearFunc observes channel destruction.
type ClearFunc func()

// SubscriberFunc receives every successfully published value.
type SubscriberFunc func(value any)

// ChannelConfig contains configuration for a channel. The zero value
// of every field is its default; DefaultChannelConfig documents them.
type ChannelConfig struct {
	// InitialValue seeds the channel. It only counts when HasInitial
	// is set, so nil is a legitimate initial value.
	InitialValue any

	// HasInitial reports whether InitialValue was supplied.
	HasInitial bool

	// Mode selects the persistence lifetime. Default memory.
	Mode storage.Mode

	// StorageKey overrides the persistence key.
	// Default "statebus:" + name.
	StorageKey string

	// TTL clears the channel automatically this long after creation.
	// Zero disables.
	TTL time.Duration

	// AutoCleanup clears the channel when its last subscriber
	// detaches.
	AutoCleanup bool

	// Validate, if set, gates every published value.
	Validate ValidateFunc

	// Transform, if set, rewrites every published value after
	// validation.
	Transform TransformFunc

	// OnChange, if set, observes successful publishes, subject to
	// Debounce or Throttle.
	OnChange ChangeFunc

	// OnInit, if set, observes the first non-absent value.
	OnInit InitFunc

	// OnClear, if set, observes channel destruction.
	OnClear ClearFunc

	// Debounce delays OnChange until publishes pause this long.
	// Mutually exclusive with Throttle.
	Debounce time.Duration

	// Throttle limits OnChange to one firing per interval, dropping
	// the rest. Mutually exclusive with Debounce.
	Throttle time.Duration
}

// DefaultChannelConfig returns the default channel configuration:
// memory mode, no initial value, no hooks, no rate limit, no TTL.
func DefaultChannelConfig() ChannelConfig {
	return ChannelConfig{
		Mode: storage.ModeMemory,
	}
}

// validate checks the configuration at channel-creation time.
func (c *ChannelConfig) validate() error {
	if c.Debounce > 0 && c.Throttle > 0 {
		return ErrConflictingRateLimits
	}
	if c.TTL < 0 {
		return fmt.Errorf("%w: negative ttl %v", ErrInvalidConfig, c.TTL)
	}
	if c.Debounce < 0 {
		return fmt.Errorf("%w: negative debounce %v", ErrInvalidConfig, c.Debounce)
	}
	if c.Throttle < 0 {
		return fmt.Errorf("%w: negative throttle %v", ErrInvalidConfig, c.Throttle)
	}
	if c.Mode < storage.ModeMemory || c.Mode > storage.ModePersistent {
		return fmt.Errorf("%w: unknown mode %d", ErrInvalidConfig, c.Mode)
	}
	return nil
}

// ChannelOption is a function that configures a channel at creation.
type ChannelOption func(*ChannelConfig)

// WithInitialValue seeds the channel with a value. A persisted value
// takes precedence on creation.
func WithInitialValue(v any) ChannelOption {
	return func(c *ChannelConfig) {
		c.InitialValue = v
		c.HasInitial = true
	}
}

// WithMode sets the persistence lifetime.
func WithMode(m storage.Mode) ChannelOption {
	return func(c *ChannelConfig) {
		c.Mode = m
	}
}

// WithStorageKey overrides the derived persistence key.
func WithStorageKey(key string) ChannelOption {
	return func(c *ChannelConfig) {
		c.StorageKey = key
	}
}

// WithTTL schedules an automatic clear after d elapses from creation.
func WithTTL(d time.Duration) ChannelOption {
	return func(c *ChannelConfig) {
		c.TTL = d
	}
}

// WithAutoCleanup clears the channel when the last subscriber detaches.
func WithAutoCleanup() ChannelOption {
	return func(c *ChannelConfig) {
		c.AutoCleanup = true
	}
}

// WithValidate sets the validation hook.
func WithValidate(fn ValidateFunc) ChannelOption {
	return func(c *ChannelConfig) {
		c.Validate = fn
	}
}

// WithTransform sets the transformation hook.
func WithTransform(fn TransformFunc) ChannelOption {
	return func(c *ChannelConfig) {
		c.Transform = fn
	}
}

// WithOnChange sets the change hook.
func WithOnChange(fn ChangeFunc) ChannelOption {
	return func(c *ChannelConfig) {
		c.OnChange = fn
	}
}

// WithOnInit sets the initialization hook.
func WithOnInit(fn InitFunc) ChannelOption {
	return func(c *ChannelConfig) {
		c.OnInit = fn
	}
}

// WithOnClear sets the destruction hook.
func WithOnClear(fn ClearFunc) ChannelOption {
	return func(c *ChannelConfig) {
		c.OnClear = fn
	}
}

// WithDebounce delays OnChange until publishes pause for d.
func WithDebounce(d time.Duration) ChannelOption {
	return func(c *ChannelConfig) {
		c.Debounce = d
	}
}

// WithThrottle limits OnChange to one firing per d, dropping extras.
func WithThrottle(d time.Duration) ChannelOption {
	return func(c *ChannelConfig) {
		c.Throttle = d
	}
}
