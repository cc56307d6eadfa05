package statebus

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// Subscription represents an active subscriber or listener
// registration.
type Subscription struct {
	id     string
	cancel func()
}

// ID returns the unique registration identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes the registration. Calling it more than once, or
// after the registration was already removed, is a safe no-op.
func (s *Subscription) Unsubscribe() {
	if s.cancel != nil {
		s.cancel()
	}
}

// generateID generates a unique registration ID.
func generateID() string {
	b := make([]byte, 16)
	_, err := rand.Read(b)
	if err != nil {
		// Fallback to timestamp-based ID if crypto/rand fails
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}
