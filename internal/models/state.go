package models

import (
	"fmt"
	"strings"
)

// Reachability is the peer link reachability as last reported by the transport.
type Reachability int

const (
	ReachabilityUnknown Reachability = iota
	Reachable
	Unreachable
)

func (r Reachability) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r Reachability) MarshalText() ([]byte, error) { return []byte(r.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Reachability) UnmarshalText(b []byte) error {
	switch string(b) {
	case "reachable":
		*r = Reachable
	case "unreachable":
		*r = Unreachable
	case "unknown":
		*r = ReachabilityUnknown
	default:
		return fmt.Errorf("unknown reachability %q", b)
	}
	return nil
}

// ConnState is the connection lifecycle state of a backend session.
type ConnState int

const (
	ConnIdle ConnState = iota
	ConnConnecting
	ConnConnected
	ConnFailed
)

func (s ConnState) String() string {
	switch s {
	case ConnConnecting:
		return "connecting"
	case ConnConnected:
		return "connected"
	case ConnFailed:
		return "failed"
	}
	return "idle"
}

// MarshalText implements encoding.TextMarshaler.
func (s ConnState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *ConnState) UnmarshalText(b []byte) error {
	for _, c := range []ConnState{ConnIdle, ConnConnecting, ConnConnected, ConnFailed} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}

// Backend selects which playback backend executes commands on the host.
type Backend string

// Known backends.
const (
	// BackendRemote is a token-authenticated remote player with a connection phase.
	BackendRemote Backend = "remote"
	// BackendLocal is the on-device media player.
	BackendLocal Backend = "local"
	// BackendAutomation runs a named automation per command.
	BackendAutomation Backend = "automation"
)

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	switch b {
	case BackendRemote, BackendLocal, BackendAutomation:
		return true
	}
	return false
}

// ParseBackend converts a backend name into a Backend. The original app's
// playback method names (spotify, appleMusic, shortcuts) are accepted too.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(s) {
	case "remote", "spotify":
		return BackendRemote, nil
	case "local", "applemusic", "apple_music":
		return BackendLocal, nil
	case "automation", "shortcuts":
		return BackendAutomation, nil
	}
	return "", fmt.Errorf("unknown backend %q", s)
}
