// Package preset declares channels in TOML files, so deployments can
// reshape the bus without recompiling.
//
// A preset file holds one [channels.<name>] table per channel:
//
//	[channels.user-score]
//	mode = "persistent"
//	storage_key = "app:user-score"
//	initial = 0
//	ttl = "5m"
//	debounce = "250ms"
//
//	[channels.user-score.hooks]
//	validate = "return type(value) == 'number' and value >= 0"
//	transform = "return math.floor(value)"
//
// Durations use Go syntax ("250ms", "5m"). Hooks are Lua scripts
// compiled by the luahook package; they live for the life of the
// process. Applying a preset uses the bus's ordinary creation path,
// so names that already exist keep their live configuration.
package preset

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/statebus"
	"github.com/dshills/statebus/luahook"
	"github.com/dshills/statebus/storage"
)

// File is a parsed preset document.
type File struct {
	Channels map[string]Channel `toml:"channels"`
}

// Channel declares one channel. Zero values mean "not configured".
type Channel struct {
	Mode        string `toml:"mode"`
	StorageKey  string `toml:"storage_key"`
	Initial     any    `toml:"initial"`
	TTL         string `toml:"ttl"`
	AutoCleanup bool   `toml:"auto_cleanup"`
	Debounce    string `toml:"debounce"`
	Throttle    string `toml:"throttle"`
	Hooks       Hooks  `toml:"hooks"`
}

// Hooks holds a channel's Lua scripts.
type Hooks struct {
	Validate  string `toml:"validate"`
	Transform string `toml:"transform"`
}

// Load reads the preset file at path and applies it to the bus.
func Load(bus *statebus.Bus, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading preset file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return fmt.Errorf("preset %s: %w", path, err)
	}
	return Apply(bus, f)
}

// Parse decodes a preset document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing preset: %w", err)
	}
	return &f, nil
}

// Apply creates every channel the preset declares, in name order.
// The first bad declaration stops the whole apply.
func Apply(bus *statebus.Bus, f *File) error {
	names := make([]string, 0, len(f.Channels))
	for name := range f.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opts, err := f.Channels[name].options()
		if err != nil {
			return fmt.Errorf("channel %q: %w", name, err)
		}
		if _, err := bus.Channel(name, opts...); err != nil {
			return err
		}
	}
	return nil
}

// options translates one declaration into channel options.
func (c Channel) options() ([]statebus.ChannelOption, error) {
	var opts []statebus.ChannelOption

	if c.Mode != "" {
		mode, err := storage.ParseMode(c.Mode)
		if err != nil {
			return nil, err
		}
		opts = append(opts, statebus.WithMode(mode))
	}
	if c.StorageKey != "" {
		opts = append(opts, statebus.WithStorageKey(c.StorageKey))
	}
	if c.Initial != nil {
		opts = append(opts, statebus.WithInitialValue(c.Initial))
	}

	if c.TTL != "" {
		d, err := time.ParseDuration(c.TTL)
		if err != nil {
			return nil, fmt.Errorf("invalid ttl %q: %w", c.TTL, err)
		}
		opts = append(opts, statebus.WithTTL(d))
	}
	if c.AutoCleanup {
		opts = append(opts, statebus.WithAutoCleanup())
	}
	if c.Debounce != "" {
		d, err := time.ParseDuration(c.Debounce)
		if err != nil {
			return nil, fmt.Errorf("invalid debounce %q: %w", c.Debounce, err)
		}
		opts = append(opts, statebus.WithDebounce(d))
	}
	if c.Throttle != "" {
		d, err := time.ParseDuration(c.Throttle)
		if err != nil {
			return nil, fmt.Errorf("invalid throttle %q: %w", c.Throttle, err)
		}
		opts = append(opts, statebus.WithThrottle(d))
	}

	if c.Hooks.Validate != "" {
		h, err := luahook.Compile(c.Hooks.Validate)
		if err != nil {
			return nil, fmt.Errorf("validate hook: %w", err)
		}
		opts = append(opts, statebus.WithValidate(h.Validator()))
	}
	if c.Hooks.Transform != "" {
		h, err := luahook.Compile(c.Hooks.Transform)
		if err != nil {
			return nil, fmt.Errorf("transform hook: %w", err)
		}
		opts = append(opts, statebus.WithTransform(h.Transformer()))
	}

	return opts, nil
}
