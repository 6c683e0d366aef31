// Package mpris is the local backend: the on-device media player,
// controlled through the MPRIS D-Bus interface.
package mpris

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/micro-nova/flick-go/internal/backend"
)

const (
	mprisPrefix = "org.mpris.MediaPlayer2."
	mprisPath   = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	playerIface = "org.mpris.MediaPlayer2.Player"
)

// object is the part of dbus.BusObject the player uses.
type object interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
	GetProperty(p string) (dbus.Variant, error)
}

// Player controls an MPRIS media player on the session bus.
type Player struct {
	service string

	mu   sync.Mutex
	conn *dbus.Conn
	obj  object
}

// New returns a Player for the given bus name suffix, e.g. "vlc" for
// org.mpris.MediaPlayer2.vlc. An empty name picks the first player found.
func New(name string) *Player {
	p := &Player{}
	if name != "" {
		p.service = mprisPrefix + name
	}
	return p
}

func newWithObject(obj object) *Player {
	return &Player{obj: obj}
}

// resolve connects to the session bus on first use and finds the player.
func (p *Player) resolve(ctx context.Context) (object, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.obj != nil {
		return p.obj, nil
	}
	if p.conn == nil {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("mpris: connect session bus: %w", err)
		}
		p.conn = conn
	}
	service := p.service
	if service == "" {
		var names []string
		if err := p.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
			return nil, fmt.Errorf("mpris: list names: %w", err)
		}
		for _, n := range names {
			if strings.HasPrefix(n, mprisPrefix) {
				service = n
				break
			}
		}
		if service == "" {
			return nil, fmt.Errorf("mpris: no media player on the session bus")
		}
		slog.Info("mpris: using player", "service", service)
	}
	p.obj = p.conn.Object(service, mprisPath)
	return p.obj, nil
}

func (p *Player) call(ctx context.Context, method string) error {
	obj, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	if err := obj.CallWithContext(ctx, playerIface+"."+method, 0).Err; err != nil {
		p.forget()
		return fmt.Errorf("mpris: %s: %w", method, err)
	}
	return nil
}

// forget drops the cached object so the next call looks the player up
// again; players come and go.
func (p *Player) forget() {
	p.mu.Lock()
	if p.conn != nil {
		p.obj = nil
	}
	p.mu.Unlock()
}

func (p *Player) SkipNext(ctx context.Context) error     { return p.call(ctx, "Next") }
func (p *Player) SkipPrevious(ctx context.Context) error { return p.call(ctx, "Previous") }
func (p *Player) Pause(ctx context.Context) error        { return p.call(ctx, "Pause") }
func (p *Player) Resume(ctx context.Context) error       { return p.call(ctx, "Play") }

// IsPlaying reads the PlaybackStatus property.
func (p *Player) IsPlaying(ctx context.Context) (bool, error) {
	obj, err := p.resolve(ctx)
	if err != nil {
		return false, err
	}
	v, err := obj.GetProperty(playerIface + ".PlaybackStatus")
	if err != nil {
		p.forget()
		return false, fmt.Errorf("mpris: playback status: %w", err)
	}
	status, _ := v.Value().(string)
	return status == "Playing", nil
}

// Close releases the bus connection.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.obj = nil
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

var _ backend.Player = (*Player)(nil)
