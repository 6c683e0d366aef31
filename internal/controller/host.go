package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/configsync"
	"github.com/micro-nova/flick-go/internal/dispatch"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/relay"
)

const inboxSize = 32

// ErrInboxFull is reported when delivered commands arrive faster than the
// backends execute them.
var ErrInboxFull = errors.New("controller: command inbox full")

// HostOptions configures a Host.
type HostOptions struct {
	Node      string
	Transport link.Transport
	Store     config.Store
	Notify    models.Notifier
	Creds     Credentials

	// Remote is the session for the remote backend; nil leaves it
	// unconfigured.
	Remote backend.Session
	// Direct holds the backends without a connection phase.
	Direct         map[models.Backend]backend.Player
	ConnectTimeout time.Duration
	Clock          clock.Clock
}

// Host receives commands from the companion and executes them.
type Host struct {
	node      string
	transport link.Transport
	notify    models.Notifier
	creds     Credentials

	sync    *configsync.Sync
	tracker *relay.Tracker
	remote  *dispatch.Dispatcher
	router  *dispatch.Router
	inbox   chan models.Command
}

// NewHost builds a Host. The snapshot is loaded from opts.Store.
func NewHost(opts HostOptions) (*Host, error) {
	if opts.Notify == nil {
		opts.Notify = models.Discard
	}
	if opts.Remote != nil && opts.Creds == nil {
		return nil, errors.New("controller: remote backend needs a credential store")
	}
	cs, err := configsync.New(opts.Node, opts.Transport, opts.Store, configsync.Options{
		Clock:  opts.Clock,
		Notify: opts.Notify,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}

	h := &Host{
		node:      opts.Node,
		transport: opts.Transport,
		notify:    opts.Notify,
		creds:     opts.Creds,
		sync:      cs,
		tracker:   relay.NewTracker(opts.Notify),
		inbox:     make(chan models.Command, inboxSize),
	}
	if opts.Remote != nil {
		h.remote = dispatch.New(opts.Remote, opts.Creds, dispatch.Options{
			ConnectTimeout: opts.ConnectTimeout,
			Clock:          opts.Clock,
			Notify:         opts.Notify,
		})
	}
	h.router = dispatch.NewRouter(cs, h.remote, opts.Direct, opts.Notify)
	return h, nil
}

// Sync returns the host's ConfigSync.
func (h *Host) Sync() *configsync.Sync { return h.sync }

// Remote returns the remote backend's Dispatcher, or nil.
func (h *Host) Remote() *dispatch.Dispatcher { return h.remote }

// Start registers the link and credential callbacks and offers the current
// snapshot to the companion. Call before Run.
func (h *Host) Start() {
	h.transport.OnReachabilityChanged(h.tracker.Observe)
	h.transport.OnMessageReceived(func(msg link.Message) {
		h.receive(msg.Command)
	})
	if h.creds != nil {
		h.creds.OnChange(h.credentialChanged)
	}
	if h.remote != nil {
		h.sync.Subscribe(func(snap models.Snapshot) {
			if snap.SelectedBackend != models.BackendRemote {
				h.remote.Disconnect()
			}
		})
	}
	h.sync.Start()
}

// receive queues a delivered command for the worker. The link's read loop
// must not block on backend execution.
func (h *Host) receive(cmd models.Command) {
	select {
	case h.inbox <- cmd:
	default:
		slog.Warn("controller: dropping delivered command", "command", cmd, "err", ErrInboxFull)
		h.notify.Publish(models.Notification{
			Kind:    models.CommandFailed,
			Command: cmd,
			Err:     ErrInboxFull.Error(),
		})
	}
}

// Run executes delivered commands in arrival order and feeds remote
// backend events to its Dispatcher until ctx is done.
func (h *Host) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if h.remote != nil {
		g.Go(func() error { return h.remote.Run(ctx) })
	}
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case cmd := <-h.inbox:
				if _, err := h.Dispatch(ctx, cmd); err != nil {
					slog.Debug("controller: delivered command not executed", "command", cmd, "err", err)
				}
			}
		}
	})
	return g.Wait()
}

// Dispatch routes cmd to the selected backend.
func (h *Host) Dispatch(ctx context.Context, cmd models.Command) (dispatch.Outcome, error) {
	return h.router.Dispatch(ctx, cmd)
}

// Authorize stores a credential obtained by the external authorization
// flow. The credential callback connects the remote backend, or restarts
// its connection when the token was replaced.
func (h *Host) Authorize(token string) error {
	if h.creds == nil {
		return fmt.Errorf("controller: %w: no credential store", dispatch.ErrNoBackend)
	}
	return h.creds.Set(token)
}

// Deauthorize removes the stored credential and disconnects the remote
// backend.
func (h *Host) Deauthorize() error {
	if h.creds == nil {
		return nil
	}
	return h.creds.Clear()
}

// Reconnect requests a new remote backend connection.
func (h *Host) Reconnect() error {
	if h.remote == nil {
		return fmt.Errorf("%w: %s", dispatch.ErrNoBackend, models.BackendRemote)
	}
	return h.remote.Reconnect()
}

func (h *Host) credentialChanged(present bool) {
	if h.remote == nil {
		return
	}
	if !present {
		slog.Info("controller: credential removed, disconnecting remote backend")
		h.remote.Disconnect()
		return
	}
	if !h.remoteSelected() {
		return
	}
	switch h.remote.State() {
	case models.ConnConnecting, models.ConnConnected:
		slog.Info("controller: credential replaced, restarting remote connection")
		h.remote.Disconnect()
	default:
		slog.Info("controller: credential available, connecting remote backend")
	}
	if err := h.remote.Reconnect(); err != nil {
		slog.Warn("controller: reconnect failed", "err", err)
	}
}

func (h *Host) remoteSelected() bool {
	return h.sync.Snapshot().SelectedBackend == models.BackendRemote
}

// Status reports the host's current view.
func (h *Host) Status() Status {
	st := Status{
		Role:         RoleHost,
		Node:         h.node,
		Reachability: h.tracker.State(),
		Config:       h.sync.Snapshot(),
	}
	if h.creds != nil {
		_, st.Authorized = h.creds.Token()
	}
	if h.remote != nil {
		cs := h.remote.State()
		st.Connection = &cs
		if cmd, ok := h.remote.Pending(); ok {
			st.Pending = &cmd
		}
	}
	return st
}

// Command dispatches cmd as if it had been delivered by the companion.
func (h *Host) Command(ctx context.Context, cmd models.Command) (Result, error) {
	out, err := h.Dispatch(ctx, cmd)
	if err != nil {
		return Result{}, err
	}
	return Result{Command: cmd, Outcome: out.String()}, nil
}
