package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/models"
)

// ErrNoBackend is returned when the selected backend is not configured.
var ErrNoBackend = errors.New("dispatch: backend not available")

// Selection provides the live configuration. configsync.Sync implements it.
type Selection interface {
	Snapshot() models.Snapshot
}

// Router sends each command to the backend selected in the current
// configuration snapshot. The selection is read on every call.
type Router struct {
	selection   Selection
	remote      *Dispatcher
	direct      map[models.Backend]backend.Player
	notify      models.Notifier
	execTimeout time.Duration
}

// NewRouter returns a Router. remote may be nil if the remote backend is
// not configured; direct holds the backends without a connection phase.
func NewRouter(sel Selection, remote *Dispatcher, direct map[models.Backend]backend.Player, notify models.Notifier) *Router {
	if notify == nil {
		notify = models.Discard
	}
	return &Router{
		selection:   sel,
		remote:      remote,
		direct:      direct,
		notify:      notify,
		execTimeout: defaultExecTimeout,
	}
}

// Remote returns the remote backend's Dispatcher, or nil.
func (r *Router) Remote() *Dispatcher { return r.remote }

// Dispatch routes cmd. Direct backends run synchronously and report the
// execution error; the remote backend follows Dispatcher.Dispatch.
func (r *Router) Dispatch(ctx context.Context, cmd models.Command) (Outcome, error) {
	selected := r.selection.Snapshot().SelectedBackend

	if selected == models.BackendRemote {
		if r.remote == nil {
			return OutcomeExecuted, fmt.Errorf("%w: %s", ErrNoBackend, selected)
		}
		out, err := r.remote.Dispatch(cmd)
		if err != nil {
			r.publishFailed(cmd, selected, err)
		}
		return out, err
	}

	p, ok := r.direct[selected]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoBackend, selected)
		r.publishFailed(cmd, selected, err)
		return OutcomeExecuted, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.execTimeout)
	defer cancel()
	if err := backend.Execute(ctx, p, cmd); err != nil {
		slog.Warn("dispatch: command failed", "command", cmd, "backend", selected, "err", err)
		r.publishFailed(cmd, selected, err)
		return OutcomeExecuted, err
	}
	slog.Info("dispatch: command executed", "command", cmd, "backend", selected)
	r.notify.Publish(models.Notification{
		Kind:    models.CommandExecuted,
		Command: cmd,
		Backend: selected,
	})
	return OutcomeExecuted, nil
}

func (r *Router) publishFailed(cmd models.Command, b models.Backend, err error) {
	r.notify.Publish(models.Notification{
		Kind:    models.CommandFailed,
		Command: cmd,
		Backend: b,
		Err:     models.ErrString(err),
	})
}
