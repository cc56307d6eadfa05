package storage

import (
	"errors"
	"sort"
	"testing"
)

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemory()

	if _, ok, err := s.Get("missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok=%v err=%v, want absent", ok, err)
	}

	if err := s.Set("a", []byte(`1`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	data, ok, err := s.Get("a")
	if err != nil || !ok {
		t.Fatalf("Get(a) = ok=%v err=%v, want present", ok, err)
	}
	if string(data) != `1` {
		t.Errorf("Get(a) = %q, want %q", data, `1`)
	}
}

func TestMemoryStore_SetCopies(t *testing.T) {
	s := NewMemory()

	src := []byte(`"x"`)
	if err := s.Set("a", src); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	src[1] = 'y'

	data, _, _ := s.Get("a")
	if string(data) != `"x"` {
		t.Errorf("stored bytes mutated through caller slice: %q", data)
	}

	// Mutating the returned slice must not affect the store either.
	data[1] = 'z'
	again, _, _ := s.Get("a")
	if string(again) != `"x"` {
		t.Errorf("stored bytes mutated through returned slice: %q", again)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemory()

	if err := s.Set("a", []byte(`1`)); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := s.Get("a"); ok {
		t.Error("Get(a) present after Delete")
	}

	// Deleting an absent key is not an error.
	if err := s.Delete("a"); err != nil {
		t.Errorf("Delete(absent) = %v, want nil", err)
	}
}

func TestMemoryStore_Keys(t *testing.T) {
	s := NewMemory()

	for _, k := range []string{"b", "a", "c"} {
		if err := s.Set(k, []byte(`0`)); err != nil {
			t.Fatalf("Set(%q) failed: %v", k, err)
		}
	}

	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	sort.Strings(keys)
	want := []string{"a", "b", "c"}
	if len(keys) != 3 || keys[0] != want[0] || keys[1] != want[1] || keys[2] != want[2] {
		t.Errorf("Keys() = %v, want %v", keys, want)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemory()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	if err := s.Set("a", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Set() after Close = %v, want ErrClosed", err)
	}
	if _, _, err := s.Get("a"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get() after Close = %v, want ErrClosed", err)
	}
	if _, err := s.Keys(); !errors.Is(err, ErrClosed) {
		t.Errorf("Keys() after Close = %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v, want nil", err)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"memory", ModeMemory, false},
		{"session", ModeSession, false},
		{"persistent", ModePersistent, false},
		{"disk", ModeMemory, true},
		{"", ModeMemory, true},
	}

	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidMode) {
				t.Errorf("ParseMode(%q) err = %v, want ErrInvalidMode", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMode_String(t *testing.T) {
	if got := ModeSession.String(); got != "session" {
		t.Errorf("ModeSession.String() = %q, want %q", got, "session")
	}
	if got := Mode(99).String(); got != "unknown" {
		t.Errorf("Mode(99).String() = %q, want %q", got, "unknown")
	}
}
