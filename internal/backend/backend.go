// Package backend defines the playback backends commands are executed on.
//
// Player is the set of primitive playback operations. Session adds the
// connection lifecycle of backends that have one; its progress is reported
// as Events on a single channel.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/micro-nova/flick-go/internal/models"
)

// ErrUnauthorized is reported when the backend rejects the credential.
var ErrUnauthorized = errors.New("backend: credential rejected")

// Player is the primitive playback control surface.
type Player interface {
	SkipNext(ctx context.Context) error
	SkipPrevious(ctx context.Context) error
	IsPlaying(ctx context.Context) (bool, error)
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Toggler is implemented by players that toggle playback in one call
// without querying state first.
type Toggler interface {
	TogglePlayPause(ctx context.Context) error
}

// Session is a Player with an explicit connection phase.
//
// Connect starts an attempt and returns immediately; the result arrives as
// a Connected or ConnectFailed event carrying the same attempt number.
type Session interface {
	Player
	Connect(attempt uint64, credential string)
	Disconnect()
	// Subscribe starts PlayerStateChanged events. Called once connected.
	Subscribe()
	Events() <-chan Event
}

// Execute runs cmd against p. Toggling queries the playing state first
// unless p is a Toggler.
func Execute(ctx context.Context, p Player, cmd models.Command) error {
	switch cmd {
	case models.NextTrack:
		return p.SkipNext(ctx)
	case models.PreviousTrack:
		return p.SkipPrevious(ctx)
	case models.TogglePlayPause:
		if t, ok := p.(Toggler); ok {
			return t.TogglePlayPause(ctx)
		}
		playing, err := p.IsPlaying(ctx)
		if err != nil {
			return fmt.Errorf("query playback state: %w", err)
		}
		if playing {
			return p.Pause(ctx)
		}
		return p.Resume(ctx)
	}
	return fmt.Errorf("%w: %q", models.ErrUnknownCommand, cmd)
}
