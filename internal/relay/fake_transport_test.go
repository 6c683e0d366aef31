package relay_test

import (
	"sync"

	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
)

// fakeTransport records sends. By default every send is acknowledged
// synchronously; failWith makes sends fail, hold keeps them in flight
// until complete is called.
type fakeTransport struct {
	mu       sync.Mutex
	sent     []models.Command
	failWith error
	hold     bool
	held     []func(error)
}

func (f *fakeTransport) IsReachable() bool { return true }

func (f *fakeTransport) Send(msg link.Message, done func(error)) {
	f.mu.Lock()
	f.sent = append(f.sent, msg.Command)
	err := f.failWith
	if f.hold {
		f.held = append(f.held, done)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	done(err)
}

func (f *fakeTransport) OnReachabilityChanged(func(bool))       {}
func (f *fakeTransport) OnMessageReceived(func(link.Message))   {}
func (f *fakeTransport) BroadcastContext([]byte) error          { return nil }
func (f *fakeTransport) OnContextReceived(func(payload []byte)) {}

func (f *fakeTransport) setFail(err error) {
	f.mu.Lock()
	f.failWith = err
	f.mu.Unlock()
}

func (f *fakeTransport) setHold(v bool) {
	f.mu.Lock()
	f.hold = v
	f.mu.Unlock()
}

// complete resolves every held send with err.
func (f *fakeTransport) complete(err error) {
	f.mu.Lock()
	held := f.held
	f.held = nil
	f.mu.Unlock()
	for _, done := range held {
		done(err)
	}
}

func (f *fakeTransport) sends() []models.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Command(nil), f.sent...)
}

// recorder collects notifications.
type recorder struct {
	mu  sync.Mutex
	got []models.Notification
}

func (r *recorder) Publish(n models.Notification) {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
}

func (r *recorder) kinds(kind models.NotificationKind) []models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Notification
	for _, n := range r.got {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}
