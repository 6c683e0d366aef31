package relay

import (
	"sync"
	"time"

	"github.com/micro-nova/flick-go/internal/clock"
)

// retryTimer is the outbox's owned retry handle. It is armed while the
// queue is non-empty and each firing is one-shot; the owner re-arms it
// after a tick that leaves commands queued.
type retryTimer struct {
	clock  clock.Clock
	period time.Duration
	fn     func()

	mu  sync.Mutex
	t   clock.Timer
	gen uint64
}

func newRetryTimer(c clock.Clock, period time.Duration, fn func()) *retryTimer {
	return &retryTimer{clock: c, period: period, fn: fn}
}

// Start arms the timer unless it is already armed.
func (r *retryTimer) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		return
	}
	r.gen++
	gen := r.gen
	r.t = r.clock.AfterFunc(r.period, func() { r.fire(gen) })
}

// Stop disarms the timer. A tick already in progress is not interrupted.
func (r *retryTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.t != nil {
		r.t.Stop()
		r.t = nil
	}
	r.gen++
}

// Running reports whether a tick is scheduled.
func (r *retryTimer) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.t != nil
}

func (r *retryTimer) fire(gen uint64) {
	r.mu.Lock()
	if gen != r.gen || r.t == nil {
		r.mu.Unlock()
		return
	}
	r.t = nil
	r.mu.Unlock()
	r.fn()
}
