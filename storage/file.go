package storage

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FileStore keeps all entries in a single JSON document on disk, one
// top-level member per storage key. Codec output that is itself valid
// JSON is spliced in raw; any other payload is wrapped as
// {"$b64": "..."}.
type FileStore struct {
	path string

	mu     sync.Mutex
	doc    []byte
	closed bool
}

// b64Field marks a wrapped non-JSON payload inside the document.
const b64Field = "$b64"

// OpenFile opens or creates the store document at path. A missing or
// corrupt document starts fresh; per-key decode failures surface on
// read instead.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}

	doc, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading store document: %w", err)
		}
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) {
		doc = []byte("{}")
	}

	return &FileStore{path: path, doc: doc}, nil
}

// Path returns the location of the store document.
func (s *FileStore) Path() string {
	return s.path
}

// Get returns the data stored under key.
func (s *FileStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	res := gjson.GetBytes(s.doc, escapeKey(key))
	if !res.Exists() {
		return nil, false, nil
	}

	data, err := extractValue(res)
	if err != nil {
		return nil, false, fmt.Errorf("entry %q: %w", key, err)
	}
	return data, true, nil
}

// Set stores data under key and rewrites the document.
func (s *FileStore) Set(key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	var (
		doc []byte
		err error
	)
	if gjson.ValidBytes(data) {
		doc, err = sjson.SetRawBytes(s.doc, escapeKey(key), data)
	} else {
		wrapped := map[string]string{b64Field: base64.StdEncoding.EncodeToString(data)}
		doc, err = sjson.SetBytes(s.doc, escapeKey(key), wrapped)
	}
	if err != nil {
		return fmt.Errorf("updating entry %q: %w", key, err)
	}

	if err := s.writeDoc(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Delete removes the entry for key.
func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	doc, err := sjson.DeleteBytes(s.doc, escapeKey(key))
	if err != nil {
		return fmt.Errorf("removing entry %q: %w", key, err)
	}

	if err := s.writeDoc(doc); err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// Keys returns all stored keys.
func (s *FileStore) Keys() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	var keys []string
	gjson.ParseBytes(s.doc).ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.Str)
		return true
	})
	return keys, nil
}

// Close marks the store closed. It is safe to call Close multiple times.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// writeDoc writes the document atomically via a temp file rename so
// concurrent readers never observe a partial write.
func (s *FileStore) writeDoc(doc []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".statebus-*")
	if err != nil {
		return fmt.Errorf("creating temp document: %w", err)
	}

	if _, err := tmp.Write(doc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing store document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing store document: %w", err)
	}

	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("setting document mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replacing store document: %w", err)
	}
	return nil
}

// extractValue converts a document member back to the stored bytes.
func extractValue(res gjson.Result) ([]byte, error) {
	if res.IsObject() {
		if wrapped := res.Get(b64Field); wrapped.Exists() && len(res.Map()) == 1 {
			data, err := base64.StdEncoding.DecodeString(wrapped.Str)
			if err != nil {
				return nil, fmt.Errorf("decoding wrapped payload: %w", err)
			}
			return data, nil
		}
	}
	return []byte(res.Raw), nil
}

// escapeKey escapes gjson/sjson path syntax so a storage key addresses
// exactly one top-level member.
func escapeKey(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		switch r {
		case '\\', '.', '*', '?', '|', '#', '@':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
