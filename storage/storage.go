// Package storage defines the key-value persistence boundary for
// channel values.
//
// A Store persists encoded values under string keys. Three lifetime
// classes exist: memory channels never touch a store, session channels
// write to a temp-dir file store cleaned by OS policy, and persistent
// channels write to an indefinite store (file or SQLite). Stores that
// can observe external modification additionally implement Watcher.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Mode identifies the persistence lifetime of a channel.
type Mode int

const (
	// ModeMemory keeps values in process memory only.
	ModeMemory Mode = iota

	// ModeSession persists values for the lifetime of a session
	// (temp-dir storage, cleared by OS policy).
	ModeSession

	// ModePersistent persists values indefinitely.
	ModePersistent
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeMemory:
		return "memory"
	case ModeSession:
		return "session"
	case ModePersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "memory":
		return ModeMemory, nil
	case "session":
		return ModeSession, nil
	case "persistent":
		return ModePersistent, nil
	default:
		return ModeMemory, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// Sentinel errors for storage operations.
var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("storage: store is closed")

	// ErrInvalidMode is returned when parsing an unknown mode name.
	ErrInvalidMode = errors.New("storage: invalid mode")
)

// Store is a key-value store for encoded channel values.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the data stored under key. The boolean reports
	// whether the key was present.
	Get(key string) ([]byte, bool, error)

	// Set stores data under key, replacing any existing entry.
	Set(key string, data []byte) error

	// Delete removes the entry for key. Deleting an absent key is
	// not an error.
	Delete(key string) error

	// Keys returns all stored keys in unspecified order.
	Keys() ([]string, error)

	// Close releases the store's resources.
	Close() error
}

// ChangeFunc receives an externally made change to a stored key.
// ok is false when the key was removed; data is nil in that case.
type ChangeFunc func(key string, data []byte, ok bool)

// Watcher is implemented by stores that can report changes made by
// other processes.
type Watcher interface {
	// Watch invokes fn for every external change until ctx is
	// cancelled. Changes made through this store instance are not
	// reported.
	Watch(ctx context.Context, fn ChangeFunc) error
}
