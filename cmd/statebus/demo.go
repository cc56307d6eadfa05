package main

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/statebus"
	"github.com/dshills/statebus/preset"
)

func newDemoCmd() *cobra.Command {
	var presetPath string

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run an interactive dashboard on a live bus",
		Long: `Run an interactive dashboard on a live bus. The demo creates a
few channels and listeners, publishes to them from the keyboard and a
ticker, and renders channel values, metadata, and bus statistics as
they change.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDemo(presetPath)
		},
	}
	cmd.Flags().StringVar(&presetPath, "preset", "", "TOML preset to apply before starting")
	return cmd
}

// demo holds the dashboard state. Every publish and emit happens on
// the loop goroutine, so callbacks mutate these fields without locks.
type demo struct {
	bus     *statebus.Bus
	screen  tcell.Screen
	started time.Time

	events chan tcell.Event

	pulse        int
	pulseSeen    int
	pulseChanges int
	pings        int
	onceSeen     bool
	activity     []string
}

func runDemo(presetPath string) error {
	bus := statebus.New(statebus.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	defer bus.Close()

	if presetPath != "" {
		if err := preset.Load(bus, presetPath); err != nil {
			return err
		}
	}

	d := &demo{
		bus:     bus,
		started: time.Now(),
		events:  make(chan tcell.Event, 16),
	}
	if err := d.setup(); err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("creating screen: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("initializing screen: %w", err)
	}
	defer screen.Fini()
	d.screen = screen

	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			d.events <- ev
		}
	}()

	return d.loop()
}

func (d *demo) setup() error {
	if _, err := d.bus.Channel("demo.counter",
		statebus.WithInitialValue(0),
		statebus.WithValidate(func(v any) bool {
			n, ok := v.(int)
			return ok && n >= 0
		}),
		statebus.WithOnInit(func(v any) {
			d.note(fmt.Sprintf("counter initialized to %v", v))
		}),
		statebus.WithOnClear(func() {
			d.note("counter cleared")
		}),
	); err != nil {
		return err
	}

	if _, err := d.bus.Channel("demo.uptime",
		statebus.WithInitialValue("0s"),
	); err != nil {
		return err
	}

	// Published every tick; onChange is throttled so the dashboard
	// shows publishes racing ahead of the rate-limited hook.
	if _, err := d.bus.Channel("demo.pulse",
		statebus.WithInitialValue(0),
		statebus.WithThrottle(time.Second),
		statebus.WithOnChange(func(value, _ any) {
			d.pulseChanges++
			d.note(fmt.Sprintf("pulse onChange at %v", value))
		}),
	); err != nil {
		return err
	}

	if _, err := d.bus.Subscribe("demo.counter", func(v any) {
		d.note(fmt.Sprintf("counter -> %v", v))
	}); err != nil {
		return err
	}
	if _, err := d.bus.Subscribe("demo.pulse", func(any) {
		d.pulseSeen++
	}); err != nil {
		return err
	}

	if _, err := d.bus.On("demo.ping", func(data any) {
		d.pings++
		d.note(fmt.Sprintf("ping %v", data))
	}); err != nil {
		return err
	}
	if _, err := d.bus.Once("demo.ping", func(any) {
		d.onceSeen = true
	}); err != nil {
		return err
	}
	return nil
}

func (d *demo) loop() error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	d.draw()
	for {
		select {
		case <-ticker.C:
			d.tick()
			d.draw()
		case ev := <-d.events:
			switch ev := ev.(type) {
			case *tcell.EventResize:
				d.screen.Sync()
				d.draw()
			case *tcell.EventKey:
				if d.handleKey(ev) {
					return nil
				}
				d.draw()
			}
		}
	}
}

func (d *demo) tick() {
	_ = d.bus.Publish("demo.uptime", time.Since(d.started).Round(time.Second).String())
	d.pulse++
	_ = d.bus.Publish("demo.pulse", d.pulse)
}

func (d *demo) handleKey(ev *tcell.EventKey) (quit bool) {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return true
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return true
		case '+', '=':
			d.bumpCounter(1)
		case '-':
			d.bumpCounter(-1)
		case 'e':
			d.bus.Emit("demo.ping", time.Now().Format("15:04:05"))
		case 'c':
			d.bus.Clear("demo.counter")
		}
	}
	return false
}

func (d *demo) bumpCounter(delta int) {
	v, _ := d.bus.Value("demo.counter")
	n, _ := v.(int)
	if err := d.bus.Publish("demo.counter", n+delta); err != nil {
		d.note(fmt.Sprintf("counter rejected %d", n+delta))
	}
}

func (d *demo) note(line string) {
	d.activity = append(d.activity, line)
	if len(d.activity) > 8 {
		d.activity = d.activity[len(d.activity)-8:]
	}
}

func (d *demo) draw() {
	s := d.screen
	s.Clear()

	title := tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	label := tcell.StyleDefault.Foreground(tcell.ColorTeal)
	plain := tcell.StyleDefault
	dim := tcell.StyleDefault.Foreground(tcell.ColorGray)

	row := 0
	drawText(s, 0, row, title, "statebus demo")
	row += 2

	drawText(s, 0, row, label, "channels")
	row++
	for _, name := range d.bus.Names() {
		meta, err := d.bus.Metadata(name)
		if err != nil {
			continue
		}
		value, ok := d.bus.Value(name)
		shown := "(uninitialized)"
		if ok {
			shown = fmt.Sprintf("%v", value)
		}
		line := fmt.Sprintf("  %-16s %-14s subs=%d mode=%s", name, shown, meta.Subscribers, meta.Mode)
		drawText(s, 0, row, plain, line)
		row++
	}
	row++

	drawText(s, 0, row, label, "events")
	row++
	once := "waiting"
	if d.onceSeen {
		once = "done"
	}
	drawText(s, 0, row, plain, fmt.Sprintf("  pings=%d once=%s  pulse published=%d onChange=%d", d.pings, once, d.pulseSeen, d.pulseChanges))
	row += 2

	st := d.bus.Stats()
	drawText(s, 0, row, label, "stats")
	row++
	drawText(s, 0, row, plain, fmt.Sprintf("  published=%d emitted=%d delivered=%d rejected=%d", st.Published, st.Emitted, st.Delivered, st.Rejected))
	row += 2

	drawText(s, 0, row, label, "activity")
	row++
	for _, line := range d.activity {
		drawText(s, 0, row, dim, "  "+line)
		row++
	}

	_, h := s.Size()
	drawText(s, 0, h-1, dim, "[+/-] counter  [e] ping  [c] clear counter  [q] quit")

	s.Show()
}

func drawText(s tcell.Screen, x, y int, style tcell.Style, text string) {
	col := x
	for _, r := range text {
		s.SetContent(col, y, r, nil, style)
		col++
	}
}
