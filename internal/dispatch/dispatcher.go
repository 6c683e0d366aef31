// Package dispatch executes commands on the host against the selected
// playback backend.
//
// The remote backend has a connection phase and goes through a Dispatcher:
// a state machine that connects on demand, buffers the latest command while
// connecting and gives up after a timeout. The other backends execute
// directly. Router picks between them on every call.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/models"
)

const (
	// DefaultConnectTimeout bounds each connection attempt.
	DefaultConnectTimeout = time.Second
	defaultExecTimeout    = 10 * time.Second
)

var (
	// ErrNotAuthorized is returned when a connection is needed and no
	// credential is stored.
	ErrNotAuthorized = errors.New("dispatch: not authorized")
	// ErrConnectTimeout is reported when a connection attempt takes too long.
	ErrConnectTimeout = errors.New("dispatch: backend connection timed out")
	// ErrConnectionLost is reported for queued commands the backend went
	// away before running.
	ErrConnectionLost = errors.New("dispatch: backend connection lost")
)

// Outcome tells the caller what happened to a dispatched command.
type Outcome int

const (
	// OutcomeExecuted means the command was handed to the backend.
	OutcomeExecuted Outcome = iota
	// OutcomePending means the command is buffered until the backend connects.
	OutcomePending
)

func (o Outcome) String() string {
	if o == OutcomePending {
		return "pending"
	}
	return "executed"
}

// Credentials provides the stored backend credential. auth.Store implements it.
type Credentials interface {
	Token() (string, bool)
}

// Options configures a Dispatcher.
type Options struct {
	ConnectTimeout time.Duration
	// ExecTimeout bounds a single command execution.
	ExecTimeout time.Duration
	Clock       clock.Clock
	Notify      models.Notifier
	// Spawn starts the execution worker. Defaults to a new goroutine.
	Spawn func(func())
}

// Dispatcher drives the connection lifecycle of one backend session.
type Dispatcher struct {
	session     backend.Session
	creds       Credentials
	timeout     time.Duration
	execTimeout time.Duration
	clock       clock.Clock
	notify      models.Notifier
	spawn       func(func())

	mu      sync.Mutex
	state   models.ConnState
	pending *models.Command
	attempt uint64
	timer   clock.Timer
	playing bool

	// Commands run one at a time, in order, on a single worker.
	queue    []models.Command
	draining bool
}

// New returns an Idle Dispatcher for session.
func New(session backend.Session, creds Credentials, opts Options) *Dispatcher {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = defaultExecTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Notify == nil {
		opts.Notify = models.Discard
	}
	if opts.Spawn == nil {
		opts.Spawn = func(f func()) { go f() }
	}
	return &Dispatcher{
		session:     session,
		creds:       creds,
		timeout:     opts.ConnectTimeout,
		execTimeout: opts.ExecTimeout,
		clock:       opts.Clock,
		notify:      opts.Notify,
		spawn:       opts.Spawn,
	}
}

// State returns the connection state.
func (d *Dispatcher) State() models.ConnState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Pending returns the buffered command, if any.
func (d *Dispatcher) Pending() (models.Command, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil {
		return "", false
	}
	return *d.pending, true
}

// Playing returns the last playback state reported by the backend.
func (d *Dispatcher) Playing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.playing
}

// Dispatch executes cmd if connected, or buffers it and connects. Only the
// latest buffered command survives. Without a stored credential a
// disconnected Dispatcher returns ErrNotAuthorized and stays as it is.
func (d *Dispatcher) Dispatch(cmd models.Command) (Outcome, error) {
	if !cmd.Valid() {
		return OutcomeExecuted, fmt.Errorf("%w: %q", models.ErrUnknownCommand, cmd)
	}

	d.mu.Lock()
	switch d.state {
	case models.ConnConnected:
		start := d.enqueueLocked(cmd)
		d.mu.Unlock()
		if start {
			d.spawn(d.drain)
		}
		return OutcomeExecuted, nil

	case models.ConnConnecting:
		if d.pending != nil {
			slog.Debug("dispatch: replacing pending command", "old", *d.pending, "new", cmd)
		}
		d.pending = &cmd
		d.mu.Unlock()
		return OutcomePending, nil
	}

	token, ok := d.creds.Token()
	if !ok {
		state := d.state
		d.mu.Unlock()
		slog.Warn("dispatch: no credential, authorization required", "command", cmd, "state", state)
		return OutcomeExecuted, ErrNotAuthorized
	}
	d.pending = &cmd
	attempt := d.beginConnect()
	d.mu.Unlock()

	d.connect(attempt, token)
	return OutcomePending, nil
}

// Reconnect starts a connection attempt from Idle or Failed. It does
// nothing while connecting or connected.
func (d *Dispatcher) Reconnect() error {
	d.mu.Lock()
	if d.state == models.ConnConnecting || d.state == models.ConnConnected {
		d.mu.Unlock()
		return nil
	}
	token, ok := d.creds.Token()
	if !ok {
		d.mu.Unlock()
		return ErrNotAuthorized
	}
	attempt := d.beginConnect()
	d.mu.Unlock()

	d.connect(attempt, token)
	return nil
}

// Disconnect tears the session down and returns to Idle. A buffered
// command is dropped.
func (d *Dispatcher) Disconnect() {
	d.mu.Lock()
	if d.state == models.ConnIdle {
		d.mu.Unlock()
		return
	}
	d.stopTimer()
	d.attempt++
	d.pending = nil
	d.state = models.ConnIdle
	d.mu.Unlock()

	slog.Info("dispatch: disconnecting backend")
	d.session.Disconnect()
	d.publishState(models.ConnIdle)
}

// beginConnect moves to Connecting and arms the timeout. Called with d.mu held.
func (d *Dispatcher) beginConnect() uint64 {
	d.stopTimer()
	d.attempt++
	attempt := d.attempt
	d.state = models.ConnConnecting
	d.timer = d.clock.AfterFunc(d.timeout, func() { d.onTimeout(attempt) })
	return attempt
}

func (d *Dispatcher) connect(attempt uint64, token string) {
	slog.Info("dispatch: connecting backend", "attempt", attempt)
	d.publishState(models.ConnConnecting)
	d.session.Connect(attempt, token)
}

// stopTimer must be called with d.mu held.
func (d *Dispatcher) stopTimer() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Dispatcher) onTimeout(attempt uint64) {
	d.mu.Lock()
	if d.state != models.ConnConnecting || d.attempt != attempt {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	dropped := d.pending
	d.pending = nil
	d.state = models.ConnFailed
	d.mu.Unlock()

	slog.Warn("dispatch: backend connection timed out", "attempt", attempt, "timeout", d.timeout)
	d.session.Disconnect()
	d.publishFailure(dropped, ErrConnectTimeout)
}

// Run applies session events until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	events := d.session.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			d.HandleEvent(ev)
		}
	}
}

// HandleEvent applies one backend event.
func (d *Dispatcher) HandleEvent(ev backend.Event) {
	switch ev := ev.(type) {
	case backend.Connected:
		d.onConnected(ev.Attempt)
	case backend.ConnectFailed:
		d.onConnectFailed(ev.Attempt, ev.Err)
	case backend.Disconnected:
		d.onDisconnected(ev.Err)
	case backend.PlayerStateChanged:
		d.mu.Lock()
		d.playing = ev.Playing
		d.mu.Unlock()
		slog.Debug("dispatch: player state changed", "playing", ev.Playing)
	default:
		slog.Warn("dispatch: unknown backend event", "event", fmt.Sprintf("%T", ev))
	}
}

func (d *Dispatcher) onConnected(attempt uint64) {
	d.mu.Lock()
	if d.state != models.ConnConnecting || d.attempt != attempt {
		state, current := d.state, d.attempt
		d.mu.Unlock()
		slog.Info("dispatch: ignoring stale connection event",
			"attempt", attempt, "current", current, "state", state)
		return
	}
	d.stopTimer()
	d.state = models.ConnConnected
	start := false
	if d.pending != nil {
		start = d.enqueueLocked(*d.pending)
		d.pending = nil
	}
	d.mu.Unlock()

	slog.Info("dispatch: backend connected", "attempt", attempt)
	d.publishState(models.ConnConnected)
	d.session.Subscribe()
	if start {
		d.spawn(d.drain)
	}
}

func (d *Dispatcher) onConnectFailed(attempt uint64, err error) {
	d.mu.Lock()
	if d.state != models.ConnConnecting || d.attempt != attempt {
		d.mu.Unlock()
		slog.Debug("dispatch: ignoring stale connection failure", "attempt", attempt, "err", err)
		return
	}
	d.stopTimer()
	dropped := d.pending
	d.pending = nil
	d.state = models.ConnFailed
	d.mu.Unlock()

	slog.Warn("dispatch: backend connection failed", "attempt", attempt, "err", err)
	d.publishFailure(dropped, err)
}

func (d *Dispatcher) onDisconnected(err error) {
	d.mu.Lock()
	if d.state != models.ConnConnected {
		d.mu.Unlock()
		return
	}
	d.state = models.ConnFailed
	d.mu.Unlock()

	slog.Warn("dispatch: backend disconnected", "err", err)
	d.publishFailure(nil, err)
}

// enqueueLocked appends cmd to the execution queue and reports whether a
// worker has to be started. Called with d.mu held.
func (d *Dispatcher) enqueueLocked(cmd models.Command) bool {
	d.queue = append(d.queue, cmd)
	if d.draining {
		return false
	}
	d.draining = true
	return true
}

// drain executes queued commands until the queue is empty.
func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.draining = false
			d.mu.Unlock()
			return
		}
		cmd := d.queue[0]
		d.queue = d.queue[1:]
		connected := d.state == models.ConnConnected
		d.mu.Unlock()

		if !connected {
			slog.Warn("dispatch: dropping queued command", "command", cmd, "err", ErrConnectionLost)
			d.publishFailed(cmd, ErrConnectionLost)
			continue
		}
		d.execute(cmd)
	}
}

func (d *Dispatcher) execute(cmd models.Command) {
	ctx, cancel := context.WithTimeout(context.Background(), d.execTimeout)
	defer cancel()

	if err := backend.Execute(ctx, d.session, cmd); err != nil {
		slog.Warn("dispatch: command failed", "command", cmd, "err", err)
		d.publishFailed(cmd, err)
		if errors.Is(err, backend.ErrUnauthorized) {
			d.onDisconnected(err)
		}
		return
	}
	slog.Info("dispatch: command executed", "command", cmd, "backend", models.BackendRemote)
	d.notify.Publish(models.Notification{
		Kind:    models.CommandExecuted,
		Command: cmd,
		Backend: models.BackendRemote,
	})
}

func (d *Dispatcher) publishState(s models.ConnState) {
	d.notify.Publish(models.Notification{
		Kind:      models.BackendConnectionStateChange,
		Backend:   models.BackendRemote,
		ConnState: &s,
	})
}

// publishFailure reports the move to Failed with its cause. The dropped
// command, if any, is reported as failed too.
func (d *Dispatcher) publishFailure(dropped *models.Command, err error) {
	s := models.ConnFailed
	d.notify.Publish(models.Notification{
		Kind:      models.BackendConnectionStateChange,
		Backend:   models.BackendRemote,
		ConnState: &s,
		Err:       models.ErrString(err),
	})
	if dropped != nil {
		d.publishFailed(*dropped, err)
	}
}

func (d *Dispatcher) publishFailed(cmd models.Command, err error) {
	d.notify.Publish(models.Notification{
		Kind:    models.CommandFailed,
		Command: cmd,
		Backend: models.BackendRemote,
		Err:     models.ErrString(err),
	})
}
