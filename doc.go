// Package statebus provides a reactive channel and event bus for
// sharing state between decoupled components.
//
// A channel is a named holder of a current value. Components publish
// values into it and subscribe to be told about every value it
// accepts; late subscribers can read the current value at any time.
// An instant event is the stateless counterpart: emitted data reaches
// the listeners registered at that moment and is gone.
//
// # Channels
//
// Channels are created explicitly with configuration, or implicitly
// by the first publish or subscribe that mentions their name:
//
//	bus := statebus.New()
//	defer bus.Close()
//
//	ch, err := bus.Channel("user.score",
//	    statebus.WithInitialValue(0),
//	    statebus.WithMode(storage.ModePersistent),
//	    statebus.WithValidate(func(v any) bool {
//	        n, ok := v.(float64)
//	        return ok && n >= 0
//	    }),
//	    statebus.WithOnChange(func(newV, oldV any) {
//	        log.Printf("score %v -> %v", oldV, newV)
//	    }),
//	)
//
//	sub, err := bus.Subscribe("user.score", func(v any) {
//	    render(v)
//	})
//	defer sub.Unsubscribe()
//
//	err = bus.Publish("user.score", 10.0)
//
// Creation is idempotent: asking for an existing name returns the
// live channel and ignores the new options.
//
// # The Publish Pipeline
//
// Every accepted value moves through fixed stages:
//
//	validate -> transform -> store -> persist -> onInit -> onChange -> subscribers
//
// A validate hook returning false stops the pipeline before any state
// changes. The transform result is what everything downstream sees.
// OnInit fires exactly once, on the first value the channel ever
// holds. OnChange is subject to the channel's debounce or throttle
// window; subscribers are not, and always run synchronously in the
// publishing goroutine.
//
// # Storage Modes
//
// A channel's mode decides where its value outlives the process:
//
//   - ModeMemory: value lives only in the registry (default)
//   - ModeSession: value survives restarts within one session
//   - ModePersistent: value survives indefinitely
//
// Session and persistent channels resolve their starting value from
// storage before falling back to WithInitialValue, so a process
// restart picks up where it left off. Storage failures are logged and
// never fail a publish; the bus degrades to in-memory behavior.
//
// # Instant Events
//
//	sub, _ := bus.On("cache.flushed", func(data any) { rebuild() },
//	    statebus.WithListenerThrottle(time.Second))
//	bus.Emit("cache.flushed", nil)
//
// Each registration carries private validate, transform, and rate
// limit state. Emitting with no listeners is a cheap no-op.
//
// # Error Handling
//
// Nothing a callback does can break the bus. Panics in hooks,
// subscribers, and listeners are recovered, counted, and logged with
// the offending name; remaining callbacks still run. Validation
// rejections are warnings, storage failures are logged and dropped.
//
// # Thread Safety
//
// All Bus methods are safe for concurrent use. Registry mutation and
// callback fan-out are serialized behind a single mutex, but user
// callbacks always run outside it, so a callback may publish,
// subscribe, or clear without deadlocking. Values themselves are not
// copied; treat published values as immutable.
package statebus
