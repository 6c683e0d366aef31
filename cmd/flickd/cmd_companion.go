package main

import (
	"context"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/micro-nova/flick-go/internal/api"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/controller"
	"github.com/micro-nova/flick-go/internal/events"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/metrics"
	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/relay"
	"github.com/micro-nova/flick-go/internal/settings"
	"github.com/micro-nova/flick-go/internal/source"
)

// newCompanionCmd creates the "flickd companion" subcommand.
func newCompanionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "companion",
		Short: "Run on the command device and relay commands to the host",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runCompanion(ctx, a.settings, cmd.InOrStdin())
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (default :8080)")
	f.String("api-key", "", "key required on /api requests")
	f.String("transport", "", "peer link transport: websocket or serial")
	f.String("url", "", "host link URL, e.g. ws://flick-host.local:8080/link (default: discover)")
	f.String("serial", "", "serial port for the peer link")
	f.Bool("stdin", false, "read command tokens from standard input")
	return cmd
}

func runCompanion(ctx context.Context, s settings.Settings, stdin io.Reader) error {
	if err := ensureDir(s.ConfigDir); err != nil {
		return err
	}

	bus := events.NewBus()
	collector := metrics.New()
	store := config.NewJSONStore(s.ConfigDir)
	peer := link.NewPeer(linkOptions(s))

	companion, err := controller.NewCompanion(controller.CompanionOptions{
		Node:          s.Node,
		Transport:     peer,
		Store:         store,
		Notify:        bus,
		RetryInterval: s.Relay.RetryInterval,
		MaxQueued:     s.Relay.MaxQueued,
	})
	if err != nil {
		return err
	}
	companion.Start()
	defer companion.Close()
	collector.QueueDepth(companion.Outbox().Len)

	submit := func(cmd models.Command) { companion.Submit(cmd) }

	router := api.NewRouter(api.Deps{
		Node:    companion,
		Config:  companion.Sync(),
		Events:  bus,
		Metrics: collector.Handler(),
		APIKey:  s.HTTP.APIKey,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return peer.Run(ctx, companionLink(s)) })
	g.Go(func() error { return collector.Run(ctx, bus) })
	serveHTTP(ctx, g, s.HTTP.Addr, router)

	if s.Source.Stdin {
		g.Go(func() error { return source.Lines(ctx, stdin, submit) })
	}
	if len(s.Source.GPIO) > 0 {
		buttons, err := source.NewGPIO(s.Source.GPIO, s.Source.Debounce)
		if err != nil {
			return err
		}
		g.Go(func() error { return buttons.Run(ctx, submit) })
	}

	slog.Info("flickd companion started",
		"node", s.Node,
		"transport", s.Link.Transport,
		"retry_interval", s.Relay.RetryInterval,
		"max_queued", s.Relay.MaxQueued,
	)
	err = g.Wait()

	if pending := companion.Outbox().Pending(); len(pending) > 0 {
		slog.Warn("discarding undelivered commands", "count", len(pending), "oldest", oldest(pending))
	}
	if ferr := store.Flush(); ferr != nil {
		slog.Warn("failed to flush config", "err", ferr)
	}
	slog.Info("shutdown complete")
	return err
}

func oldest(q []relay.QueuedCommand) models.Command {
	if len(q) == 0 {
		return ""
	}
	return q[0].Command
}
