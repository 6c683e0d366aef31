package link

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultHeartbeat    = 2 * time.Second
	defaultAckTimeout   = 3 * time.Second
	defaultMinReconnect = 500 * time.Millisecond
	defaultMaxReconnect = 30 * time.Second
	outQueueSize        = 64
	missedHeartbeats    = 3
)

// Dialer produces the next connection to the peer. It blocks until a
// connection is available or ctx is cancelled.
type Dialer func(ctx context.Context) (FrameConn, error)

// Options configures a Peer. Zero values pick defaults.
type Options struct {
	// Name identifies this node in hello frames and logs.
	Name string
	// Heartbeat is the ping interval. The peer counts as unreachable after
	// three intervals without any frame.
	Heartbeat time.Duration
	// AckTimeout bounds how long Send waits for the peer's ack.
	AckTimeout time.Duration
	// MinReconnect and MaxReconnect bound the redial backoff.
	MinReconnect time.Duration
	MaxReconnect time.Duration
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "peer"
	}
	if o.Heartbeat <= 0 {
		o.Heartbeat = defaultHeartbeat
	}
	if o.AckTimeout <= 0 {
		o.AckTimeout = defaultAckTimeout
	}
	if o.MinReconnect <= 0 {
		o.MinReconnect = defaultMinReconnect
	}
	if o.MaxReconnect < o.MinReconnect {
		o.MaxReconnect = defaultMaxReconnect
	}
	return o
}

// session is one live connection.
type session struct {
	conn FrameConn
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Peer implements Transport over a sequence of FrameConns.
// All exported methods are safe to call concurrently.
type Peer struct {
	opts Options

	mu          sync.Mutex
	sess        *session
	lastSeen    time.Time
	reachable   bool
	remoteName  string
	pending     map[string]*pendingSend
	lastContext []byte

	onReach []func(bool)
	onMsg   []func(Message)
	onCtx   []func([]byte)
}

type pendingSend struct {
	done  func(error)
	timer *time.Timer
}

// NewPeer creates a Peer. Call Run to start connecting.
func NewPeer(opts Options) *Peer {
	return &Peer{
		opts:    opts.withDefaults(),
		pending: make(map[string]*pendingSend),
	}
}

// Name returns this node's name.
func (p *Peer) Name() string { return p.opts.Name }

// RemoteName returns the name announced by the connected peer, or "".
func (p *Peer) RemoteName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remoteName
}

// IsReachable reports whether a connection is up and the peer was heard
// from recently.
func (p *Peer) IsReachable() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable
}

// OnReachabilityChanged registers fn for reachability transitions.
func (p *Peer) OnReachabilityChanged(fn func(bool)) {
	p.mu.Lock()
	p.onReach = append(p.onReach, fn)
	p.mu.Unlock()
}

// OnMessageReceived registers fn for incoming messages.
func (p *Peer) OnMessageReceived(fn func(Message)) {
	p.mu.Lock()
	p.onMsg = append(p.onMsg, fn)
	p.mu.Unlock()
}

// OnContextReceived registers fn for incoming context payloads.
func (p *Peer) OnContextReceived(fn func([]byte)) {
	p.mu.Lock()
	p.onCtx = append(p.onCtx, fn)
	p.mu.Unlock()
}

// Send delivers msg and calls done when the peer acknowledges it, or with
// an error when the peer is unreachable, the queue is full or the ack
// times out.
func (p *Peer) Send(msg Message, done func(error)) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	b, err := encodeFrame(frame{ID: msg.ID, Kind: kindCommand, Command: msg.Command})
	if err != nil {
		done(err)
		return
	}

	p.mu.Lock()
	sess := p.sess
	if sess == nil || !p.reachable {
		p.mu.Unlock()
		done(ErrNotReachable)
		return
	}
	ps := &pendingSend{done: done}
	p.pending[msg.ID] = ps
	ps.timer = time.AfterFunc(p.opts.AckTimeout, func() {
		p.resolve(msg.ID, ErrAckTimeout)
	})
	p.mu.Unlock()

	if err := p.enqueue(sess, b); err != nil {
		p.resolve(msg.ID, err)
	}
}

// resolve completes a pending send exactly once.
func (p *Peer) resolve(id string, err error) {
	p.mu.Lock()
	ps, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	ps.timer.Stop()
	ps.done(err)
}

// BroadcastContext stores payload as the last known context and sends it
// if a connection is up.
func (p *Peer) BroadcastContext(payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	p.mu.Lock()
	p.lastContext = cp
	sess := p.sess
	p.mu.Unlock()

	if sess == nil {
		slog.Debug("link: context stored for next connection", "node", p.opts.Name)
		return nil
	}
	b, err := encodeFrame(frame{Kind: kindContext, Context: cp})
	if err != nil {
		return err
	}
	return p.enqueue(sess, b)
}

func (p *Peer) enqueue(sess *session, b []byte) error {
	select {
	case <-sess.done:
		return ErrNotReachable
	default:
	}
	select {
	case sess.out <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

// Run dials connections and serves them until ctx is cancelled.
// Failed dials are retried with exponential backoff.
func (p *Peer) Run(ctx context.Context, dial Dialer) error {
	backoff := p.opts.MinReconnect
	for {
		if ctx.Err() != nil {
			return nil
		}
		conn, err := dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("link: dial failed", "node", p.opts.Name, "err", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff = minDuration(backoff*2, p.opts.MaxReconnect)
			continue
		}
		backoff = p.opts.MinReconnect
		p.serve(ctx, conn)
	}
}

// serve runs one connection until it fails or ctx is cancelled.
func (p *Peer) serve(ctx context.Context, conn FrameConn) {
	sess := &session{
		conn: conn,
		out:  make(chan []byte, outQueueSize),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	p.sess = sess
	p.lastSeen = time.Now()
	lastCtx := p.lastContext
	p.mu.Unlock()

	slog.Info("link: connection up", "node", p.opts.Name)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.writePump(sess)
	}()
	go func() {
		defer wg.Done()
		p.heartbeat(ctx, sess)
	}()

	if hello, err := encodeFrame(frame{Kind: kindHello, Node: p.opts.Name}); err == nil {
		_ = p.enqueue(sess, hello)
	}
	if lastCtx != nil {
		if b, err := encodeFrame(frame{Kind: kindContext, Context: lastCtx}); err == nil {
			_ = p.enqueue(sess, b)
		}
	}

	stop := context.AfterFunc(ctx, sess.close)
	p.readLoop(sess)
	stop()
	sess.close()
	wg.Wait()
	p.teardown(sess)
}

func (p *Peer) readLoop(sess *session) {
	for {
		b, err := sess.conn.ReadFrame()
		if err != nil {
			select {
			case <-sess.done:
			default:
				slog.Info("link: connection lost", "node", p.opts.Name, "err", err)
			}
			return
		}
		f, err := decodeFrame(b)
		if err != nil {
			slog.Warn("link: dropping malformed frame", "node", p.opts.Name, "err", err)
			continue
		}
		p.handle(sess, f)
	}
}

func (p *Peer) handle(sess *session, f frame) {
	p.mu.Lock()
	p.lastSeen = time.Now()
	if f.Kind == kindHello {
		p.remoteName = f.Node
	}
	p.mu.Unlock()
	p.setReachable(true)

	switch f.Kind {
	case kindCommand:
		if b, err := encodeFrame(frame{ID: f.ID, Kind: kindAck}); err == nil {
			if err := p.enqueue(sess, b); err != nil {
				slog.Warn("link: could not queue ack", "node", p.opts.Name, "id", f.ID, "err", err)
			}
		}
		msg := Message{ID: f.ID, Command: f.Command}
		for _, fn := range p.messageHandlers() {
			fn(msg)
		}
	case kindAck:
		var err error
		if f.Error != "" {
			err = errors.New(f.Error)
		}
		p.resolve(f.ID, err)
	case kindContext:
		for _, fn := range p.contextHandlers() {
			fn([]byte(f.Context))
		}
	case kindHello:
		slog.Info("link: peer announced", "node", p.opts.Name, "remote", f.Node)
	}
}

func (p *Peer) writePump(sess *session) {
	for {
		select {
		case <-sess.done:
			return
		case b := <-sess.out:
			if err := sess.conn.WriteFrame(b); err != nil {
				slog.Info("link: write failed", "node", p.opts.Name, "err", err)
				sess.close()
				return
			}
		}
	}
}

// heartbeat pings the peer and drops the connection when it goes silent.
func (p *Peer) heartbeat(ctx context.Context, sess *session) {
	ticker := time.NewTicker(p.opts.Heartbeat)
	defer ticker.Stop()
	ping, _ := encodeFrame(frame{Kind: kindPing})
	for {
		select {
		case <-sess.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			silent := time.Since(p.lastSeen)
			p.mu.Unlock()
			if silent > missedHeartbeats*p.opts.Heartbeat {
				slog.Warn("link: peer silent, dropping connection", "node", p.opts.Name, "silent", silent)
				p.setReachable(false)
				sess.close()
				return
			}
			_ = p.enqueue(sess, ping)
		}
	}
}

// teardown clears sess if it is still current and fails its pending sends.
func (p *Peer) teardown(sess *session) {
	p.mu.Lock()
	if p.sess != sess {
		p.mu.Unlock()
		return
	}
	p.sess = nil
	p.remoteName = ""
	pending := p.pending
	p.pending = make(map[string]*pendingSend)
	p.mu.Unlock()

	p.setReachable(false)
	for _, ps := range pending {
		ps.timer.Stop()
		ps.done(ErrNotReachable)
	}
	slog.Info("link: connection down", "node", p.opts.Name, "failed_sends", len(pending))
}

func (p *Peer) setReachable(v bool) {
	p.mu.Lock()
	if p.reachable == v {
		p.mu.Unlock()
		return
	}
	p.reachable = v
	handlers := append([]func(bool){}, p.onReach...)
	p.mu.Unlock()

	slog.Debug("link: reachability changed", "node", p.opts.Name, "reachable", v)
	for _, fn := range handlers {
		fn(v)
	}
}

func (p *Peer) messageHandlers() []func(Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]func(Message){}, p.onMsg...)
}

func (p *Peer) contextHandlers() []func([]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]func([]byte){}, p.onCtx...)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ Transport = (*Peer)(nil)
