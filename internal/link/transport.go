// Package link implements the peer link between the companion and the host.
//
// Transport is the capability the relay consumes. Peer is the concrete
// implementation: a frame protocol with acknowledgements, heartbeats and a
// replayed "last known context", running over any FrameConn (serial port,
// websocket, in-memory pipe).
package link

import (
	"errors"

	"github.com/micro-nova/flick-go/internal/models"
)

var (
	// ErrNotReachable is reported when a send is attempted with no live peer.
	ErrNotReachable = errors.New("link: peer not reachable")
	// ErrAckTimeout is reported when the peer did not acknowledge a message in time.
	ErrAckTimeout = errors.New("link: ack timeout")
	// ErrBackpressure is reported when the outgoing frame queue is full.
	ErrBackpressure = errors.New("link: outgoing queue full")
)

// Message is one discrete message sent to the peer.
type Message struct {
	ID      string         `json:"id"`
	Command models.Command `json:"command"`
}

// Transport is an unreliable, reachability-gated, peer-to-peer channel.
//
// Send never blocks: done is called exactly once, possibly before Send
// returns, with nil on acknowledged delivery or an error otherwise.
// Callbacks registered with On* run on the transport's goroutines and must
// not block for long.
type Transport interface {
	IsReachable() bool
	Send(msg Message, done func(error))
	OnReachabilityChanged(fn func(reachable bool))
	OnMessageReceived(fn func(Message))

	// BroadcastContext replaces the durable "last known context" and
	// delivers it now if the peer is connected, otherwise on the next
	// connection. It does not wait for acknowledgement.
	BroadcastContext(payload []byte) error
	OnContextReceived(fn func(payload []byte))
}
