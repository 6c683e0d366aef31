package link

import (
	"context"
	"net"
	"sync"
)

// Pair is two Peers joined by an in-memory connection that can be severed
// and re-established. It backs tests and the single-process demo.
type Pair struct {
	A, B *Peer

	accA, accB *Acceptor

	mu   sync.Mutex
	ends [2]net.Conn
}

// NewPair creates two unconnected Peers.
func NewPair(a, b Options) *Pair {
	return &Pair{
		A:    NewPeer(a),
		B:    NewPeer(b),
		accA: NewAcceptor(),
		accB: NewAcceptor(),
	}
}

// Run runs both Peers until ctx is cancelled.
func (p *Pair) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = p.A.Run(ctx, p.accA.Dial)
	}()
	go func() {
		defer wg.Done()
		_ = p.B.Run(ctx, p.accB.Dial)
	}()
	<-ctx.Done()
	p.Sever()
	wg.Wait()
}

// Connect joins the two Peers with a fresh connection.
func (p *Pair) Connect() {
	a, b := net.Pipe()
	p.mu.Lock()
	p.ends = [2]net.Conn{a, b}
	p.mu.Unlock()
	p.accA.Offer(NewLineConn(a))
	p.accB.Offer(NewLineConn(b))
}

// Sever closes the current connection, if any.
func (p *Pair) Sever() {
	p.mu.Lock()
	ends := p.ends
	p.ends = [2]net.Conn{}
	p.mu.Unlock()
	for _, c := range ends {
		if c != nil {
			_ = c.Close()
		}
	}
}
