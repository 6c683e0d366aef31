// Package metrics exports notification counters and link/backend gauges
// for Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/micro-nova/flick-go/internal/events"
	"github.com/micro-nova/flick-go/internal/models"
)

const namespace = "flick"

// Collector turns notifications into metrics.
type Collector struct {
	reg *prometheus.Registry

	commands     *prometheus.CounterVec
	reachable    prometheus.Gauge
	backendState *prometheus.GaugeVec
	configs      prometheus.Counter
}

// New creates a Collector with its own registry, including the Go runtime
// and process collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Collector{
		reg: reg,
		// Labels: outcome (delivered, deferred, executed, failed), command
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands by outcome",
		}, []string{"outcome", "command"}),
		reachable: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "link",
			Name:      "reachable",
			Help:      "1 while the peer is reachable",
		}),
		// Labels: backend. Value is 0 idle, 1 connecting, 2 connected, 3 failed.
		backendState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "connection_state",
			Help:      "Backend connection state (0 idle, 1 connecting, 2 connected, 3 failed)",
		}, []string{"backend"}),
		configs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "config",
			Name:      "changes_total",
			Help:      "Configuration snapshots applied from the peer",
		}),
	}
}

// Registry returns the registry metrics are registered in.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// QueueDepth exports fn as the outbox depth gauge.
func (c *Collector) QueueDepth(fn func() int) {
	promauto.With(c.reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "outbox",
		Name:      "depth",
		Help:      "Commands waiting for the link",
	}, func() float64 { return float64(fn()) })
}

// Observe updates metrics from one notification.
func (c *Collector) Observe(n models.Notification) {
	switch n.Kind {
	case models.CommandDelivered:
		c.commands.WithLabelValues("delivered", string(n.Command)).Inc()
	case models.CommandDeferred:
		c.commands.WithLabelValues("deferred", string(n.Command)).Inc()
	case models.CommandExecuted:
		c.commands.WithLabelValues("executed", string(n.Command)).Inc()
	case models.CommandFailed:
		c.commands.WithLabelValues("failed", string(n.Command)).Inc()
	case models.ConfigurationChanged:
		c.configs.Inc()
	case models.ReachabilityChanged:
		if n.Reachability != nil && *n.Reachability == models.Reachable {
			c.reachable.Set(1)
		} else {
			c.reachable.Set(0)
		}
	case models.BackendConnectionStateChange:
		if n.ConnState != nil {
			c.backendState.WithLabelValues(string(n.Backend)).Set(float64(*n.ConnState))
		}
	}
}

// Run feeds the collector from bus until ctx is cancelled.
func (c *Collector) Run(ctx context.Context, bus *events.Bus) error {
	id := "metrics-" + uuid.NewString()
	ch := bus.Subscribe(id)
	defer bus.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(n)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
