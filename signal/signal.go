// Package signal provides a minimal observable value cell.
//
// A signal holds a single value and notifies registered observers
// whenever the value is replaced. It is the reactive primitive backing
// bus channels; anything satisfying the Value interface can substitute
// for the default implementation.
package signal

import "sync"

// Value is a mutable cell with change notification.
type Value[T any] interface {
	// Get returns the current value.
	Get() T

	// Set replaces the current value and notifies all observers.
	Set(v T)

	// Subscribe registers an observer called on every Set.
	// The returned function removes the observer; calling it more
	// than once is a no-op.
	Subscribe(fn func(v T)) (cancel func())
}

// New creates a Value holding the given initial value.
func New[T any](initial T) Value[T] {
	return &cell[T]{
		value:     initial,
		observers: make(map[uint64]func(T)),
	}
}

// cell is the default Value implementation.
type cell[T any] struct {
	mu        sync.RWMutex
	value     T
	observers map[uint64]func(T)
	nextID    uint64
}

// Get returns the current value.
func (c *cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set replaces the value and notifies observers.
// Observers are collected under the lock and called outside it, so an
// observer may safely call back into the cell.
func (c *cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v

	observers := make([]func(T), 0, len(c.observers))
	for _, obs := range c.observers {
		observers = append(observers, obs)
	}
	c.mu.Unlock()

	for _, obs := range observers {
		obs(v)
	}
}

// Subscribe registers an observer for value changes.
func (c *cell[T]) Subscribe(fn func(T)) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.observers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}
