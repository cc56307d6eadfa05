package statebus

import (
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/dshills/statebus/storage"
)

// busConfig contains configuration for a Bus.
type busConfig struct {
	logger     *slog.Logger
	clock      clock.Clock
	codec      storage.Codec
	session    storage.Store
	persistent storage.Store
}

// defaultBusConfig returns the default bus configuration.
func defaultBusConfig() busConfig {
	return busConfig{
		logger: slog.Default(),
		clock:  clock.New(),
		codec:  storage.JSONCodec{},
	}
}

// Option configures a Bus.
type Option func(*busConfig)

// WithLogger sets the logger for warnings and hook failures.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *busConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock used for debounce, throttle, TTL, and
// channel age. Defaults to the wall clock; tests inject a mock.
func WithClock(clk clock.Clock) Option {
	return func(c *busConfig) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithCodec sets the codec used to encode persisted values.
// Defaults to storage.JSONCodec.
func WithCodec(codec storage.Codec) Option {
	return func(c *busConfig) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithSessionStore sets the store backing session-mode channels.
// Without it, a file store under the OS temp directory opens lazily on
// first use. The caller keeps ownership: Close does not close
// caller-provided stores.
func WithSessionStore(s storage.Store) Option {
	return func(c *busConfig) {
		c.session = s
	}
}

// WithPersistentStore sets the store backing persistent-mode channels.
// Without it, a file store under the XDG data directory opens lazily
// on first use. The caller keeps ownership: Close does not close
// caller-provided stores.
func WithPersistentStore(s storage.Store) Option {
	return func(c *busConfig) {
		c.persistent = s
	}
}
