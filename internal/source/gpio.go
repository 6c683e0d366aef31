package source

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/models"
)

const (
	// DefaultDebounce ignores edges closer together than this.
	DefaultDebounce = 50 * time.Millisecond
	edgePoll        = 200 * time.Millisecond
)

// Button binds a GPIO pin (BCM name, e.g. "GPIO17") to a command. Buttons
// are wired active-low against the internal pull-up.
type Button struct {
	Pin     string
	Command models.Command
}

// GPIO emits a command for every debounced press of its buttons.
type GPIO struct {
	buttons  []Button
	debounce time.Duration
	clock    clock.Clock
}

// NewGPIO parses a pin-name to command-token map.
func NewGPIO(pins map[string]string, debounce time.Duration) (*GPIO, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	g := &GPIO{debounce: debounce, clock: clock.Real()}
	for name, token := range pins {
		cmd, err := models.ParseCommand(token)
		if err != nil {
			return nil, fmt.Errorf("source: pin %s: %w", name, err)
		}
		g.buttons = append(g.buttons, Button{Pin: strings.ToUpper(name), Command: cmd})
	}
	sort.Slice(g.buttons, func(i, j int) bool { return g.buttons[i].Pin < g.buttons[j].Pin })
	return g, nil
}

// Buttons returns the configured buttons sorted by pin name.
func (g *GPIO) Buttons() []Button { return append([]Button(nil), g.buttons...) }

// Run initializes the GPIO host driver, configures every pin as a pulled-up
// input with falling-edge detection, and watches them until ctx is done.
func (g *GPIO) Run(ctx context.Context, emit Emit) error {
	if len(g.buttons) == 0 {
		return nil
	}
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("source: gpio host init failed: %w", err)
	}

	eg, ctx := errgroup.WithContext(ctx)
	for _, b := range g.buttons {
		b := b
		pin := gpioreg.ByName(b.Pin)
		if pin == nil {
			return fmt.Errorf("source: failed to open %s", b.Pin)
		}
		if err := pin.In(gpio.PullUp, gpio.FallingEdge); err != nil {
			return fmt.Errorf("source: failed to configure %s: %w", b.Pin, err)
		}
		slog.Info("source: watching button", "pin", b.Pin, "command", b.Command)
		eg.Go(func() error {
			g.watch(ctx, pin, b.Command, emit)
			return nil
		})
	}
	return eg.Wait()
}

// edgeReader is the part of gpio.PinIn the watch loop needs.
type edgeReader interface {
	WaitForEdge(timeout time.Duration) bool
	Read() gpio.Level
}

func (g *GPIO) watch(ctx context.Context, pin edgeReader, cmd models.Command, emit Emit) {
	var last time.Time
	for ctx.Err() == nil {
		if !pin.WaitForEdge(edgePoll) {
			continue
		}
		if pin.Read() != gpio.Low {
			continue
		}
		now := g.clock.Now()
		if !last.IsZero() && now.Sub(last) < g.debounce {
			continue
		}
		last = now
		slog.Debug("source: button pressed", "command", cmd)
		emit(cmd)
	}
}
