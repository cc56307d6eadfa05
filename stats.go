package statebus

// Stats is a point-in-time snapshot of bus activity. Counters are
// cumulative for the bus's lifetime.
type Stats struct {
	// Channels is the number of live channels.
	Channels int

	// Listeners is the number of live event registrations.
	Listeners int

	// Published counts values accepted into channels, including
	// implicit creations.
	Published uint64

	// Emitted counts Emit calls that found at least one listener.
	Emitted uint64

	// Delivered counts subscriber and listener invocations that
	// returned normally.
	Delivered uint64

	// Rejected counts publishes and emissions refused by validate
	// hooks.
	Rejected uint64

	// HookPanics counts recovered callback panics.
	HookPanics uint64

	// StorageErrors counts storage operations that were logged and
	// dropped.
	StorageErrors uint64
}

// Stats returns current bus activity counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	channels := len(b.channels)
	listeners := 0
	for _, m := range b.events {
		listeners += len(m)
	}
	b.mu.RUnlock()

	return Stats{
		Channels:      channels,
		Listeners:     listeners,
		Published:     b.published.Load(),
		Emitted:       b.emitted.Load(),
		Delivered:     b.delivered.Load(),
		Rejected:      b.rejected.Load(),
		HookPanics:    b.hookPanics.Load(),
		StorageErrors: b.storageErrors.Load(),
	}
}
