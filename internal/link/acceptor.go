package link

import (
	"context"
	"sync"
)

// Acceptor turns inbound connections into a Dialer for the accepting side.
// Offering a new connection closes the previous one, so a reconnecting
// peer replaces a stale session instead of waiting for its heartbeat to
// expire.
type Acceptor struct {
	ch chan FrameConn

	mu      sync.Mutex
	current FrameConn
}

// NewAcceptor creates an Acceptor.
func NewAcceptor() *Acceptor {
	return &Acceptor{ch: make(chan FrameConn, 1)}
}

// Offer hands conn to the Peer running Dial.
func (a *Acceptor) Offer(conn FrameConn) {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.current
	a.current = conn
	if prev != nil {
		_ = prev.Close()
	}
	// Drop an offered-but-unclaimed connection in favour of the new one.
	select {
	case stale := <-a.ch:
		_ = stale.Close()
	default:
	}
	a.ch <- conn
}

// Dial waits for the next offered connection.
func (a *Acceptor) Dial(ctx context.Context) (FrameConn, error) {
	select {
	case c := <-a.ch:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
