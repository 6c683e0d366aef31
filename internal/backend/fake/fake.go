// Package fake provides in-memory backends that record what they were
// asked to do. They back the demo command and tests.
package fake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/backend"
)

// Player records every primitive call.
type Player struct {
	mu      sync.Mutex
	calls   []string
	playing bool
	err     error
	delay   time.Duration
}

// NewPlayer returns a paused Player.
func NewPlayer() *Player { return &Player{} }

func (p *Player) record(call string) error {
	p.mu.Lock()
	delay := p.delay
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.calls = append(p.calls, call)
	return nil
}

func (p *Player) SkipNext(context.Context) error     { return p.record("next") }
func (p *Player) SkipPrevious(context.Context) error { return p.record("previous") }

func (p *Player) IsPlaying(context.Context) (bool, error) {
	if err := p.record("isPlaying"); err != nil {
		return false, err
	}
	return p.Playing(), nil
}

func (p *Player) Pause(context.Context) error {
	if err := p.record("pause"); err != nil {
		return err
	}
	p.SetPlaying(false)
	return nil
}

func (p *Player) Resume(context.Context) error {
	if err := p.record("resume"); err != nil {
		return err
	}
	p.SetPlaying(true)
	return nil
}

// Calls returns the recorded primitive calls in order.
func (p *Player) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// Playing reports the simulated playback state.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// SetPlaying sets the simulated playback state.
func (p *Player) SetPlaying(v bool) {
	p.mu.Lock()
	p.playing = v
	p.mu.Unlock()
}

// SetDelay makes every call take d before it is recorded.
func (p *Player) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// FailWith makes every subsequent call fail with err. nil restores success.
func (p *Player) FailWith(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// Session is a Player with a scripted connection phase. By default
// connection attempts stay pending until Succeed or Fail is called;
// with AutoConnect they succeed immediately.
type Session struct {
	*Player

	// AutoConnect makes Connect succeed at once.
	AutoConnect bool

	mu          sync.Mutex
	events      chan backend.Event
	attempts    []uint64
	credentials []string
	subscribed  int
	disconnects int
}

// NewSession returns a Session with a paused player.
func NewSession() *Session {
	return &Session{
		Player: NewPlayer(),
		events: make(chan backend.Event, 32),
	}
}

func (s *Session) Connect(attempt uint64, credential string) {
	s.mu.Lock()
	s.attempts = append(s.attempts, attempt)
	s.credentials = append(s.credentials, credential)
	auto := s.AutoConnect
	s.mu.Unlock()
	slog.Debug("fake: connect", "attempt", attempt)
	if auto {
		s.Succeed(attempt)
	}
}

func (s *Session) Disconnect() {
	s.mu.Lock()
	s.disconnects++
	s.mu.Unlock()
}

func (s *Session) Subscribe() {
	s.mu.Lock()
	s.subscribed++
	s.mu.Unlock()
}

func (s *Session) Events() <-chan backend.Event { return s.events }

// Succeed reports attempt as connected.
func (s *Session) Succeed(attempt uint64) { s.Emit(backend.Connected{Attempt: attempt}) }

// Fail reports attempt as failed with err.
func (s *Session) Fail(attempt uint64, err error) {
	s.Emit(backend.ConnectFailed{Attempt: attempt, Err: err})
}

// Emit delivers an arbitrary event.
func (s *Session) Emit(ev backend.Event) { s.events <- ev }

// Attempts returns the attempt numbers passed to Connect.
func (s *Session) Attempts() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.attempts...)
}

// LastAttempt returns the most recent attempt number, or 0.
func (s *Session) LastAttempt() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.attempts) == 0 {
		return 0
	}
	return s.attempts[len(s.attempts)-1]
}

// Credentials returns the credentials passed to Connect.
func (s *Session) Credentials() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.credentials...)
}

// Subscribed returns how many times Subscribe was called.
func (s *Session) Subscribed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribed
}

// Disconnects returns how many times Disconnect was called.
func (s *Session) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

var (
	_ backend.Player  = (*Player)(nil)
	_ backend.Session = (*Session)(nil)
)
