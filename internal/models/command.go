// Package models defines the data structures shared by the companion and
// host sides of the flick link.
// JSON field names and command tokens match the original apps for wire compatibility.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCommand is returned when a command token is not recognized.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a discrete playback command produced by a gesture.
type Command string

// Known commands. The values are the wire tokens.
const (
	NextTrack       Command = "nextTrack"
	PreviousTrack   Command = "previousTrack"
	TogglePlayPause Command = "playPause"
)

// AllCommands lists every known command in a stable order.
var AllCommands = []Command{NextTrack, PreviousTrack, TogglePlayPause}

// Valid reports whether c is one of the known commands.
func (c Command) Valid() bool {
	switch c {
	case NextTrack, PreviousTrack, TogglePlayPause:
		return true
	}
	return false
}

func (c Command) String() string { return string(c) }

// ParseCommand converts a wire token into a Command, ignoring case.
// A few short aliases ("next", "prev", "toggle") are accepted for
// hand-typed input.
func ParseCommand(token string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "nexttrack", "next":
		return NextTrack, nil
	case "previoustrack", "prev", "previous":
		return PreviousTrack, nil
	case "playpause", "toggle", "play", "pause":
		return TogglePlayPause, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCommand, token)
}

// MarshalText implements encoding.TextMarshaler.
func (c Command) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, string(c))
	}
	return []byte(c), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Only canonical wire
// tokens are accepted here; aliases are a ParseCommand convenience.
func (c *Command) UnmarshalText(b []byte) error {
	v := Command(b)
	if !v.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, string(b))
	}
	*c = v
	return nil
}
