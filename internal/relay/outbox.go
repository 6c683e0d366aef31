package relay

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
)

// DefaultRetryInterval is the constant cadence of the retry timer.
const DefaultRetryInterval = 2 * time.Second

// ErrQueueOverflow is reported for commands evicted from a capped queue.
var ErrQueueOverflow = errors.New("relay: outbox full, oldest command dropped")

// QueuedCommand is a command waiting for the link.
type QueuedCommand struct {
	Command    models.Command `json:"command"`
	EnqueuedAt time.Time      `json:"enqueuedAt"`
	Attempts   int            `json:"attempts"`
}

// Options configures an Outbox.
type Options struct {
	// RetryInterval is the retry timer period. Zero means DefaultRetryInterval.
	RetryInterval time.Duration
	// MaxQueued caps the queue; above it the oldest entry is evicted.
	// Zero means unbounded.
	MaxQueued int
	Clock     clock.Clock
	Notify    models.Notifier
}

// Outbox delivers commands over the link at least once. Commands that
// cannot be delivered are queued and retried at a constant cadence and
// whenever the link becomes reachable.
//
// Ordering: a drain re-sends queued commands oldest first, but a command
// sent on the fast path while the link is reachable can overtake commands
// still waiting for the next drain.
type Outbox struct {
	transport link.Transport
	tracker   *Tracker
	clock     clock.Clock
	notify    models.Notifier
	maxQueued int

	mu       sync.Mutex
	queue    []QueuedCommand
	inFlight int
	retry    *retryTimer
}

// NewOutbox creates an Outbox sending over transport and gated by tracker.
func NewOutbox(transport link.Transport, tracker *Tracker, opts Options) *Outbox {
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = DefaultRetryInterval
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Notify == nil {
		opts.Notify = models.Discard
	}
	o := &Outbox{
		transport: transport,
		tracker:   tracker,
		clock:     opts.Clock,
		notify:    opts.Notify,
		maxQueued: opts.MaxQueued,
	}
	o.retry = newRetryTimer(opts.Clock, opts.RetryInterval, o.onRetryTick)
	return o
}

// AttachTo subscribes the outbox to the tracker so that every transition
// into Reachable drains the queue.
func (o *Outbox) AttachTo(t *Tracker) {
	t.Subscribe(func(_, next models.Reachability) {
		if next == models.Reachable {
			o.DrainQueue()
		}
	})
}

// Enqueue accepts a command from the command source. When the link is
// reachable the command takes the fast path and is sent immediately;
// queuing is the fallback.
func (o *Outbox) Enqueue(cmd models.Command) {
	slog.Debug("relay: command accepted", "command", cmd, "reachability", o.tracker.State())
	o.send(QueuedCommand{Command: cmd, EnqueuedAt: o.clock.Now()})
}

// Send makes one delivery attempt. On failure, or when the link is not
// reachable, the command joins the retry queue.
func (o *Outbox) Send(cmd models.Command) {
	o.send(QueuedCommand{Command: cmd, EnqueuedAt: o.clock.Now()})
}

func (o *Outbox) send(qc QueuedCommand) {
	if !o.tracker.IsReachable() {
		o.requeue(qc, link.ErrNotReachable)
		return
	}

	qc.Attempts++
	o.mu.Lock()
	o.inFlight++
	o.mu.Unlock()

	o.transport.Send(link.Message{Command: qc.Command}, func(err error) {
		o.mu.Lock()
		o.inFlight--
		o.mu.Unlock()

		if err != nil {
			slog.Debug("relay: send failed", "command", qc.Command, "attempts", qc.Attempts, "err", err)
			o.requeue(qc, err)
			return
		}
		slog.Info("relay: command delivered", "command", qc.Command, "attempts", qc.Attempts)
		o.notify.Publish(models.Notification{
			Kind:     models.CommandDelivered,
			Command:  qc.Command,
			Attempts: qc.Attempts,
		})
	})
}

// requeue appends qc to the queue and arms the retry timer.
func (o *Outbox) requeue(qc QueuedCommand, cause error) {
	o.mu.Lock()
	o.queue = append(o.queue, qc)
	var evicted *QueuedCommand
	if o.maxQueued > 0 && len(o.queue) > o.maxQueued {
		e := o.queue[0]
		evicted = &e
		o.queue = append([]QueuedCommand(nil), o.queue[1:]...)
	}
	depth := len(o.queue)
	o.retry.Start()
	o.mu.Unlock()

	slog.Info("relay: command deferred", "command", qc.Command, "queued", depth, "reason", cause)
	o.notify.Publish(models.Notification{
		Kind:     models.CommandDeferred,
		Command:  qc.Command,
		Attempts: qc.Attempts,
		Err:      models.ErrString(cause),
	})
	if evicted != nil {
		slog.Warn("relay: outbox full, dropping oldest", "command", evicted.Command, "cap", o.maxQueued)
		o.notify.Publish(models.Notification{
			Kind:     models.CommandFailed,
			Command:  evicted.Command,
			Attempts: evicted.Attempts,
			Err:      ErrQueueOverflow.Error(),
		})
	}
}

// DrainQueue re-sends every queued command, oldest first. It does nothing
// unless the link is reachable and the queue is non-empty. Commands that
// fail again are re-queued by the normal send path.
func (o *Outbox) DrainQueue() {
	if !o.tracker.IsReachable() {
		return
	}
	o.mu.Lock()
	if len(o.queue) == 0 {
		o.mu.Unlock()
		return
	}
	batch := o.queue
	o.queue = nil
	o.mu.Unlock()

	slog.Info("relay: draining outbox", "count", len(batch))
	for _, qc := range batch {
		o.send(qc)
	}

	o.mu.Lock()
	if len(o.queue) == 0 {
		o.retry.Stop()
	}
	o.mu.Unlock()
}

// onRetryTick runs when the retry timer fires. The timer is one-shot; it
// is re-armed only while commands remain queued.
func (o *Outbox) onRetryTick() {
	o.mu.Lock()
	empty := len(o.queue) == 0
	o.mu.Unlock()
	if empty {
		slog.Debug("relay: retry timer idle, stopping")
		return
	}

	o.DrainQueue()

	o.mu.Lock()
	if len(o.queue) > 0 {
		o.retry.Start()
	}
	o.mu.Unlock()
}

// Len returns the number of queued commands.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// InFlight returns the number of sends awaiting the transport's result.
func (o *Outbox) InFlight() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.inFlight
}

// Pending returns a copy of the queue, oldest first.
func (o *Outbox) Pending() []QueuedCommand {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]QueuedCommand(nil), o.queue...)
}

// RetryArmed reports whether the retry timer is running.
func (o *Outbox) RetryArmed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.retry.Running()
}

// Close stops the retry timer. Queued commands are discarded.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.retry.Stop()
	o.queue = nil
}
