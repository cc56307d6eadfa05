package statebus

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// limitMode selects how a limiter schedules deliveries.
type limitMode int

const (
	limitNone limitMode = iota
	limitDebounce
	limitThrottle
)

// limiter applies a debounce or throttle policy to a delivery
// function. Channel OnChange hooks and instant-event listeners each
// own one; state is never shared between registrations.
type limiter struct {
	mode     limitMode
	interval time.Duration
	clk      clock.Clock
	fire     func(newValue, oldValue any)

	mu         sync.Mutex
	timer      *clock.Timer
	pendingNew any
	pendingOld any
	lastFire   time.Time
	stopped    bool
}

// newLimiter builds a limiter from a debounce/throttle pair, at most
// one of which is non-zero. fire runs on the caller's goroutine for
// immediate modes and on a timer goroutine for debounce.
func newLimiter(clk clock.Clock, debounce, throttle time.Duration, fire func(newValue, oldValue any)) *limiter {
	l := &limiter{
		mode: limitNone,
		clk:  clk,
		fire: fire,
	}
	switch {
	case debounce > 0:
		l.mode = limitDebounce
		l.interval = debounce
	case throttle > 0:
		l.mode = limitThrottle
		l.interval = throttle
	}
	return l
}

// trigger records a successful publish. The return value tells the
// caller to deliver now; debounced deliveries happen later from the
// limiter's own timer.
func (l *limiter) trigger(newValue, oldValue any) bool {
	switch l.mode {
	case limitNone:
		return true

	case limitThrottle:
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.stopped {
			return false
		}
		now := l.clk.Now()
		if !l.lastFire.IsZero() && now.Sub(l.lastFire) < l.interval {
			// Inside the window: dropped, never queued.
			return false
		}
		l.lastFire = now
		return true

	case limitDebounce:
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.stopped {
			return false
		}
		// Each trigger restarts the window; only the latest pair
		// survives to delivery.
		l.pendingNew = newValue
		l.pendingOld = oldValue
		if l.timer != nil {
			l.timer.Stop()
		}
		l.timer = l.clk.AfterFunc(l.interval, l.flush)
		return false
	}
	return false
}

// flush delivers the pending debounced pair.
func (l *limiter) flush() {
	l.mu.Lock()
	if l.stopped || l.timer == nil {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	newValue, oldValue := l.pendingNew, l.pendingOld
	l.pendingNew, l.pendingOld = nil, nil
	l.mu.Unlock()

	l.fire(newValue, oldValue)
}

// stop cancels any pending delivery and prevents future ones.
func (l *limiter) stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopped = true
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.pendingNew, l.pendingOld = nil, nil
}
