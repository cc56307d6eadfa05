package storage

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"
)

// reloadDelay coalesces rapid filesystem events into one reload.
const reloadDelay = 50 * time.Millisecond

// Watch reports externally made changes to the store document until
// ctx is cancelled. The document's directory is watched rather than
// the file itself so atomic rename-replace writes are observed.
// Changes made through this FileStore instance are already reflected
// in its in-memory document and therefore never reported.
func (s *FileStore) Watch(ctx context.Context, fn ChangeFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	go s.watchLoop(ctx, watcher, fn)
	return nil
}

// watchLoop processes fsnotify events with a short reload debounce.
func (s *FileStore) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, fn ChangeFunc) {
	defer watcher.Close()

	var (
		reload   = time.NewTimer(reloadDelay)
		pending  bool
		trackOps = fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename
	)
	if !reload.Stop() {
		<-reload.C
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != s.path || !event.Op.Has(trackOps) {
				continue
			}
			if pending {
				if !reload.Stop() {
					select {
					case <-reload.C:
					default:
					}
				}
			}
			reload.Reset(reloadDelay)
			pending = true

		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}

		case <-reload.C:
			pending = false
			s.reload(fn)
		}
	}
}

// reload re-reads the document, diffs it against the in-memory copy,
// and reports every changed or removed key.
func (s *FileStore) reload(fn ChangeFunc) {
	doc, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return
		}
		doc = []byte("{}")
	}
	if !gjson.ValidBytes(doc) {
		// Mid-write or corrupt content; the next event retries.
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	before := docEntries(s.doc)
	after := docEntries(doc)
	s.doc = doc

	type change struct {
		key  string
		data []byte
		ok   bool
	}
	var changes []change

	for key, raw := range after {
		if prev, ok := before[key]; ok && prev == raw {
			continue
		}
		data, err := extractValue(gjson.Parse(raw))
		if err != nil {
			continue
		}
		changes = append(changes, change{key: key, data: data, ok: true})
	}
	for key := range before {
		if _, ok := after[key]; !ok {
			changes = append(changes, change{key: key})
		}
	}
	s.mu.Unlock()

	// Report outside the lock so fn may call back into the store.
	for _, c := range changes {
		fn(c.key, c.data, c.ok)
	}
}

// docEntries maps each top-level key to its raw JSON value.
func docEntries(doc []byte) map[string]string {
	entries := make(map[string]string)
	gjson.ParseBytes(doc).ForEach(func(key, value gjson.Result) bool {
		entries[key.Str] = value.Raw
		return true
	})
	return entries
}
