// Package relay implements the companion side of command delivery: a
// reachability mirror of the peer link and a retrying outbox.
package relay

import (
	"log/slog"
	"sync"

	"github.com/micro-nova/flick-go/internal/models"
)

// Tracker mirrors the link's reachability. It is updated only by transport
// events and never polls.
type Tracker struct {
	notify models.Notifier

	mu    sync.Mutex
	state models.Reachability
	subs  []func(prev, next models.Reachability)
}

// NewTracker creates a Tracker in the Unknown state.
func NewTracker(notify models.Notifier) *Tracker {
	if notify == nil {
		notify = models.Discard
	}
	return &Tracker{notify: notify}
}

// State returns the current reachability.
func (t *Tracker) State() models.Reachability {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// IsReachable is shorthand for State() == Reachable.
func (t *Tracker) IsReachable() bool { return t.State() == models.Reachable }

// Subscribe registers fn to run on every transition. fn runs on the
// goroutine that reported the transition.
func (t *Tracker) Subscribe(fn func(prev, next models.Reachability)) {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
}

// Observe records a transport reachability report. Repeated reports of the
// same value are ignored.
func (t *Tracker) Observe(reachable bool) {
	next := models.Unreachable
	if reachable {
		next = models.Reachable
	}

	t.mu.Lock()
	prev := t.state
	if prev == next {
		t.mu.Unlock()
		return
	}
	t.state = next
	subs := append([]func(prev, next models.Reachability){}, t.subs...)
	t.mu.Unlock()

	slog.Info("relay: reachability changed", "from", prev, "to", next)
	r := next
	t.notify.Publish(models.Notification{Kind: models.ReachabilityChanged, Reachability: &r})
	for _, fn := range subs {
		fn(prev, next)
	}
}
