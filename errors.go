package statebus

import "errors"

// Sentinel errors for the bus.
var (
	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("statebus: bus is closed")

	// ErrEmptyName is returned when a channel or event name is empty.
	ErrEmptyName = errors.New("statebus: name cannot be empty")

	// ErrNilCallback is returned when a nil callback is registered.
	ErrNilCallback = errors.New("statebus: callback cannot be nil")

	// ErrConflictingRateLimits is returned when both debounce and
	// throttle are configured on the same channel or registration.
	ErrConflictingRateLimits = errors.New("statebus: debounce and throttle are mutually exclusive")

	// ErrInvalidConfig is returned when a configuration value is out
	// of range.
	ErrInvalidConfig = errors.New("statebus: invalid configuration")

	// ErrValueRejected is returned when a published value fails the
	// channel's validate hook.
	ErrValueRejected = errors.New("statebus: value rejected by validate hook")

	// ErrChannelNotFound is returned by introspection on unknown names.
	ErrChannelNotFound = errors.New("statebus: channel not found")

	// ErrHookPanic is returned when a hook panics in a position that
	// aborts the operation.
	ErrHookPanic = errors.New("statebus: hook panicked")

	// ErrNoWatchableStore is returned by SyncFromStore when no
	// configured store supports change watching.
	ErrNoWatchableStore = errors.New("statebus: no watchable store configured")
)

// HookError wraps a hook failure with the channel or event it belongs to.
type HookError struct {
	// Name is the channel or event name.
	Name string

	// Hook identifies the failing hook ("validate", "transform",
	// "onInit", "onChange", "onClear", "subscriber", "listener").
	Hook string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return "statebus: " + e.Hook + " hook failed for " + e.Name + ": " + e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *HookError) Unwrap() error {
	return e.Err
}
