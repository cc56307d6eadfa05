package statebus

import (
	"fmt"
	"sort"
	"time"

	"github.com/dshills/statebus/storage"
)

// Metadata describes a channel without touching its value.
type Metadata struct {
	// Name is the channel's registry name.
	Name string

	// Mode is the channel's storage mode.
	Mode storage.Mode

	// StorageKey is the key session and persistent entries live under.
	StorageKey string

	// Subscribers is the current subscriber count.
	Subscribers int

	// TTL is the configured lifetime, zero when unlimited.
	TTL time.Duration

	// AutoCleanup reports whether the channel clears itself when the
	// last subscriber detaches.
	AutoCleanup bool

	// Initialized reports whether the channel has ever held a value.
	Initialized bool

	// Age is the time since the channel was created.
	Age time.Duration
}

// Value returns the named channel's current value without
// subscribing. The second return is false while the channel does not
// exist or has never held a value.
func (b *Bus) Value(name string) (any, bool) {
	b.mu.RLock()
	st, ok := b.channels[name]
	initialized := ok && st.initialized
	b.mu.RUnlock()

	if !initialized {
		return nil, false
	}
	return st.sig.Get(), true
}

// Metadata returns a snapshot of the named channel's configuration
// and state. Unknown names report ErrChannelNotFound.
func (b *Bus) Metadata(name string) (Metadata, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st, ok := b.channels[name]
	if !ok {
		return Metadata{}, fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	return Metadata{
		Name:        name,
		Mode:        st.cfg.Mode,
		StorageKey:  st.cfg.StorageKey,
		Subscribers: len(st.subs),
		TTL:         st.cfg.TTL,
		AutoCleanup: st.cfg.AutoCleanup,
		Initialized: st.initialized,
		Age:         b.clock.Now().Sub(st.created),
	}, nil
}

// Names returns the sorted names of all live channels.
func (b *Bus) Names() []string {
	b.mu.RLock()
	names := make([]string, 0, len(b.channels))
	for name := range b.channels {
		names = append(names, name)
	}
	b.mu.RUnlock()

	sort.Strings(names)
	return names
}
