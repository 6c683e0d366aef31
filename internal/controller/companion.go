package controller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/configsync"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/relay"
)

// CompanionOptions configures a Companion.
type CompanionOptions struct {
	Node          string
	Transport     link.Transport
	Store         config.Store
	Notify        models.Notifier
	RetryInterval time.Duration
	MaxQueued     int
	Clock         clock.Clock
}

// Companion relays locally produced commands to the host.
type Companion struct {
	node      string
	transport link.Transport

	sync    *configsync.Sync
	tracker *relay.Tracker
	outbox  *relay.Outbox
}

// NewCompanion builds a Companion. The snapshot is loaded from opts.Store.
func NewCompanion(opts CompanionOptions) (*Companion, error) {
	if opts.Notify == nil {
		opts.Notify = models.Discard
	}
	cs, err := configsync.New(opts.Node, opts.Transport, opts.Store, configsync.Options{
		Clock:  opts.Clock,
		Notify: opts.Notify,
	})
	if err != nil {
		return nil, fmt.Errorf("controller: %w", err)
	}
	tracker := relay.NewTracker(opts.Notify)
	return &Companion{
		node:      opts.Node,
		transport: opts.Transport,
		sync:      cs,
		tracker:   tracker,
		outbox: relay.NewOutbox(opts.Transport, tracker, relay.Options{
			RetryInterval: opts.RetryInterval,
			MaxQueued:     opts.MaxQueued,
			Clock:         opts.Clock,
			Notify:        opts.Notify,
		}),
	}, nil
}

// Sync returns the companion's ConfigSync.
func (c *Companion) Sync() *configsync.Sync { return c.sync }

// Outbox returns the companion's outbox.
func (c *Companion) Outbox() *relay.Outbox { return c.outbox }

// Start hooks the tracker to the link, drains the outbox on every
// transition to reachable and offers the current snapshot to the host.
func (c *Companion) Start() {
	c.transport.OnReachabilityChanged(c.tracker.Observe)
	c.outbox.AttachTo(c.tracker)
	c.sync.Start()
}

// Submit accepts a command from a command source. The gesture preferences
// of the current snapshot are applied first; it reports false when the
// command was dropped by them.
func (c *Companion) Submit(cmd models.Command) bool {
	oriented, ok := c.sync.Snapshot().Orient(cmd)
	if !ok {
		slog.Debug("controller: command disabled by configuration", "command", cmd)
		return false
	}
	c.outbox.Enqueue(oriented)
	return true
}

// Status reports the companion's current view.
func (c *Companion) Status() Status {
	return Status{
		Role:         RoleCompanion,
		Node:         c.node,
		Reachability: c.tracker.State(),
		Config:       c.sync.Snapshot(),
		Queued:       c.outbox.Len(),
		InFlight:     c.outbox.InFlight(),
	}
}

// Close stops the outbox retry timer.
func (c *Companion) Close() { c.outbox.Close() }

// Command submits cmd as if it came from a command source.
func (c *Companion) Command(_ context.Context, cmd models.Command) (Result, error) {
	if !c.Submit(cmd) {
		return Result{Command: cmd, Outcome: OutcomeDropped}, nil
	}
	return Result{Command: cmd, Outcome: OutcomeAccepted}, nil
}
