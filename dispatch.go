package statebus

import (
	"runtime/debug"
)

// safeHook invokes fn, recovering any panic so one failing callback
// cannot take down the publish loop or its sibling callbacks. kind is
// the log key ("channel" or "event"), name its value, hook the stage
// that panicked. ok reports whether fn returned normally.
func (b *Bus) safeHook(kind, name, hook string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			b.hookPanics.Add(1)
			b.logger.Error("callback panicked",
				kind, name,
				"hook", hook,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	fn()
	return true
}

// safeValidate runs a validate hook. A panic counts as ok=false and
// the value must not proceed.
func (b *Bus) safeValidate(kind, name string, fn ValidateFunc, v any) (pass, ok bool) {
	ok = b.safeHook(kind, name, "validate", func() { pass = fn(v) })
	return pass, ok
}

// safeTransform runs a transform hook. A panic counts as ok=false and
// the original value must not proceed either.
func (b *Bus) safeTransform(kind, name string, fn TransformFunc, v any) (out any, ok bool) {
	ok = b.safeHook(kind, name, "transform", func() { out = fn(v) })
	return out, ok
}
