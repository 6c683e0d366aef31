// Package configsync keeps the shared configuration snapshot in step
// between the two peers.
//
// Snapshots are replaced whole. Every local publish bumps the revision and
// an incoming snapshot only wins if its revision is newer; equal revisions
// from different nodes are ordered by node name so both sides agree.
package configsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
)

var (
	// ErrMalformed is returned by OnReceive for payloads that do not decode
	// into a usable snapshot.
	ErrMalformed = errors.New("configsync: malformed snapshot")
	// ErrStale is returned by OnReceive for snapshots older than the current one.
	ErrStale = errors.New("configsync: stale snapshot")
)

// Options configures a Sync.
type Options struct {
	Clock  clock.Clock
	Notify models.Notifier
}

// Sync owns the local copy of the snapshot.
type Sync struct {
	node      string
	transport link.Transport
	store     config.Store
	clock     clock.Clock
	notify    models.Notifier

	mu   sync.Mutex
	cur  models.Snapshot
	subs []func(models.Snapshot)
}

// New loads the persisted snapshot from store and returns a Sync for the
// node with the given name. Call Start to hook it up to the link.
func New(node string, transport link.Transport, store config.Store, opts Options) (*Sync, error) {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Notify == nil {
		opts.Notify = models.Discard
	}
	snap, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("configsync: load: %w", err)
	}
	return &Sync{
		node:      node,
		transport: transport,
		store:     store,
		clock:     opts.Clock,
		notify:    opts.Notify,
		cur:       *snap,
	}, nil
}

// Start registers for incoming snapshots and offers the current one to the
// peer, so two nodes that were changed while apart settle on the newest.
func (s *Sync) Start() {
	s.transport.OnContextReceived(func(payload []byte) {
		// OnReceive logs its own rejections.
		_ = s.OnReceive(payload)
	})
	s.broadcast(s.Snapshot())
}

// Snapshot returns a copy of the current snapshot.
func (s *Sync) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Subscribe registers fn to run with the new snapshot after every change,
// local or remote.
func (s *Sync) Subscribe(fn func(models.Snapshot)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Publish makes snap the current snapshot and sends it to the peer. The
// revision and origin are assigned here. Delivery is fire-and-forget;
// failures are logged.
func (s *Sync) Publish(snap models.Snapshot) models.Snapshot {
	s.mu.Lock()
	snap.Revision = s.cur.Revision + 1
	snap.Origin = s.node
	snap.UpdatedAt = s.clock.Now()
	s.cur = snap
	subs := append([]func(models.Snapshot){}, s.subs...)
	s.mu.Unlock()

	slog.Info("configsync: publishing snapshot", "revision", snap.Revision, "backend", snap.SelectedBackend)
	s.persist(snap)
	s.broadcast(snap)
	for _, fn := range subs {
		fn(snap)
	}
	return snap
}

// Update applies fn to a copy of the current snapshot and publishes it.
func (s *Sync) Update(fn func(*models.Snapshot)) models.Snapshot {
	snap := s.Snapshot()
	fn(&snap)
	return s.Publish(snap)
}

// OnReceive applies a snapshot received from the peer. Malformed and stale
// payloads leave the current snapshot unchanged. Receiving the current
// snapshot again is a no-op.
func (s *Sync) OnReceive(payload []byte) error {
	in := models.DefaultSnapshot()
	if err := json.Unmarshal(payload, &in); err != nil {
		slog.Warn("configsync: dropping undecodable snapshot", "err", err)
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := config.Normalize(&in); err != nil {
		slog.Warn("configsync: dropping invalid snapshot", "err", err)
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	s.mu.Lock()
	cur := s.cur
	if in.Revision == cur.Revision && in.Origin == cur.Origin {
		s.mu.Unlock()
		slog.Debug("configsync: snapshot already applied", "revision", in.Revision, "origin", in.Origin)
		return nil
	}
	if !in.NewerThan(cur) {
		s.mu.Unlock()
		slog.Info("configsync: ignoring stale snapshot",
			"revision", in.Revision, "origin", in.Origin, "current", cur.Revision)
		// Offer ours so the peer catches up.
		s.broadcast(cur)
		return ErrStale
	}
	s.cur = in
	subs := append([]func(models.Snapshot){}, s.subs...)
	s.mu.Unlock()

	slog.Info("configsync: applied snapshot from peer",
		"revision", in.Revision, "origin", in.Origin, "backend", in.SelectedBackend)
	s.persist(in)
	snap := in
	s.notify.Publish(models.Notification{Kind: models.ConfigurationChanged, Snapshot: &snap})
	for _, fn := range subs {
		fn(in)
	}
	return nil
}

func (s *Sync) persist(snap models.Snapshot) {
	if err := s.store.Save(&snap); err != nil {
		slog.Error("configsync: failed to persist snapshot", "err", err)
	}
}

func (s *Sync) broadcast(snap models.Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		slog.Error("configsync: encode snapshot", "err", err)
		return
	}
	if err := s.transport.BroadcastContext(data); err != nil {
		slog.Warn("configsync: broadcast failed", "revision", snap.Revision, "err", err)
	}
}
