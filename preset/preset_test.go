package preset

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dshills/statebus"
	"github.com/dshills/statebus/storage"
)

func quietBus(opts ...statebus.Option) *statebus.Bus {
	opts = append(opts, statebus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return statebus.New(opts...)
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(`
[channels.user-score]
mode = "session"
storage_key = "app:user-score"
initial = 100
ttl = "5m"
auto_cleanup = true
debounce = "250ms"

[channels.user-score.hooks]
validate = "return value >= 0"
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	c, ok := f.Channels["user-score"]
	if !ok {
		t.Fatalf("expected a user-score channel, got %v", f.Channels)
	}
	if c.Mode != "session" || c.StorageKey != "app:user-score" {
		t.Errorf("unexpected channel declaration: %+v", c)
	}
	if c.Initial != int64(100) {
		t.Errorf("expected initial int64(100), got %v (%T)", c.Initial, c.Initial)
	}
	if c.Hooks.Validate == "" {
		t.Error("expected a validate hook")
	}
}

func TestParse_Invalid(t *testing.T) {
	if _, err := Parse([]byte("channels = not toml")); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestApply(t *testing.T) {
	store := storage.NewMemory()
	bus := quietBus(statebus.WithSessionStore(store))
	defer bus.Close()

	f, err := Parse([]byte(`
[channels.volume]
mode = "session"
initial = 50

[channels.volume.hooks]
validate = "return type(value) == 'number' and value >= 0 and value <= 100"
transform = "return math.floor(value)"

[channels.muted]
initial = false
auto_cleanup = true
`))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if err := Apply(bus, f); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	// Both channels exist with their declared configuration.
	md, err := bus.Metadata("volume")
	if err != nil {
		t.Fatalf("Metadata() failed: %v", err)
	}
	if md.Mode != storage.ModeSession {
		t.Errorf("expected session mode, got %v", md.Mode)
	}
	if v, _ := bus.Value("volume"); v != int64(50) {
		t.Errorf("expected initial 50, got %v", v)
	}

	md, err = bus.Metadata("muted")
	if err != nil {
		t.Fatalf("Metadata() failed: %v", err)
	}
	if !md.AutoCleanup {
		t.Error("expected auto_cleanup to be set")
	}

	// The Lua hooks are live: out-of-range rejected, floats floored.
	if err := bus.Publish("volume", 150); !errors.Is(err, statebus.ErrValueRejected) {
		t.Errorf("expected the validate hook to reject 150, got %v", err)
	}
	if err := bus.Publish("volume", 72.9); err != nil {
		t.Fatalf("Publish() failed: %v", err)
	}
	if v, _ := bus.Value("volume"); v != int64(72) {
		t.Errorf("expected the transform hook to floor to 72, got %v", v)
	}
}

func TestApply_ExistingChannelKeepsConfig(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	bus.Channel("volume", statebus.WithInitialValue(10))

	f, _ := Parse([]byte(`
[channels.volume]
initial = 99
`))
	if err := Apply(bus, f); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	if v, _ := bus.Value("volume"); v != 10 {
		t.Errorf("expected the live channel to keep its value, got %v", v)
	}
}

func TestApply_InvalidMode(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	f, _ := Parse([]byte(`
[channels.broken]
mode = "eternal"
`))
	err := Apply(bus, f)
	if !errors.Is(err, storage.ErrInvalidMode) {
		t.Errorf("expected ErrInvalidMode, got %v", err)
	}
}

func TestApply_InvalidDuration(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	f, _ := Parse([]byte(`
[channels.broken]
ttl = "five minutes"
`))
	if err := Apply(bus, f); err == nil {
		t.Fatal("expected an error for an unparseable duration")
	}
}

func TestApply_ConflictingRateLimits(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	f, _ := Parse([]byte(`
[channels.broken]
debounce = "100ms"
throttle = "100ms"
`))
	err := Apply(bus, f)
	if !errors.Is(err, statebus.ErrConflictingRateLimits) {
		t.Errorf("expected ErrConflictingRateLimits, got %v", err)
	}
}

func TestApply_BadLuaHook(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	f, _ := Parse([]byte(`
[channels.broken.hooks]
validate = "return ((("
`))
	if err := Apply(bus, f); err == nil {
		t.Fatal("expected an error for invalid Lua")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.toml")
	doc := []byte(`
[channels.greeting]
initial = "hello"
`)
	if err := os.WriteFile(path, doc, 0o600); err != nil {
		t.Fatalf("writing preset file: %v", err)
	}

	bus := quietBus()
	defer bus.Close()

	if err := Load(bus, path); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if v, _ := bus.Value("greeting"); v != "hello" {
		t.Errorf("expected the preset channel, got %v", v)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	if err := Load(bus, filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected an error for a missing preset file")
	}
}

func TestChannel_Options_TTL(t *testing.T) {
	bus := quietBus()
	defer bus.Close()

	f, _ := Parse([]byte(`
[channels.timed]
ttl = "90s"
`))
	if err := Apply(bus, f); err != nil {
		t.Fatalf("Apply() failed: %v", err)
	}

	md, _ := bus.Metadata("timed")
	if md.TTL != 90*time.Second {
		t.Errorf("expected a 90s TTL, got %v", md.TTL)
	}
}
