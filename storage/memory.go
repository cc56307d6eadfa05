package storage

import "sync"

// MemoryStore is an in-process Store. It backs tests and callers that
// want session-like semantics without touching the filesystem.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get returns the data stored under key.
func (s *MemoryStore) Get(key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	data, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}

	// Copy so callers cannot mutate the stored bytes.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true, nil
}

// Set stores data under key.
func (s *MemoryStore) Set(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	stored := make([]byte, len(data))
	copy(stored, data)
	s.data[key] = stored
	return nil
}

// Delete removes the entry for key.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	delete(s.data, key)
	return nil
}

// Keys returns all stored keys.
func (s *MemoryStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// Close marks the store closed. It is safe to call Close multiple times.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
