package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/micro-nova/flick-go/internal/api"
	"github.com/micro-nova/flick-go/internal/auth"
	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/backend/automation"
	"github.com/micro-nova/flick-go/internal/backend/mpris"
	"github.com/micro-nova/flick-go/internal/backend/webapi"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/controller"
	"github.com/micro-nova/flick-go/internal/events"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/link/wslink"
	"github.com/micro-nova/flick-go/internal/metrics"
	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/settings"
	"github.com/micro-nova/flick-go/internal/zeroconf"
)

// newHostCmd creates the "flickd host" subcommand.
func newHostCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Run on the media device and execute delivered commands",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return runHost(ctx, a.settings)
		},
	}
	f := cmd.Flags()
	f.String("addr", "", "HTTP listen address (default :8080)")
	f.String("api-key", "", "key required on /api requests")
	f.String("transport", "", "peer link transport: websocket or serial")
	f.String("serial", "", "serial port for the peer link")
	return cmd
}

func runHost(ctx context.Context, s settings.Settings) error {
	if err := ensureDir(s.ConfigDir); err != nil {
		return err
	}

	bus := events.NewBus()
	collector := metrics.New()
	store := config.NewJSONStore(s.ConfigDir)

	creds, err := auth.NewStore(s.ConfigDir)
	if err != nil {
		return err
	}
	defer creds.Close()

	local := mpris.New(s.Backend.MPRISPlayer)
	defer local.Close()

	peer := link.NewPeer(linkOptions(s))
	dial, linkHandler := hostLink(s)

	host, err := controller.NewHost(controller.HostOptions{
		Node:      s.Node,
		Transport: peer,
		Store:     store,
		Notify:    bus,
		Creds:     creds,
		Remote: webapi.New(webapi.Options{
			BaseURL:      s.Backend.WebAPIURL,
			PollInterval: s.Backend.PollInterval,
		}),
		Direct: map[models.Backend]backend.Player{
			models.BackendLocal: local,
			models.BackendAutomation: automation.New(automation.Options{
				Launcher:   s.Backend.Launcher,
				ScriptsDir: s.Backend.ScriptsDir,
				Names:      s.AutomationNames(),
			}),
		},
		ConnectTimeout: s.Backend.ConnectTimeout,
	})
	if err != nil {
		return err
	}
	host.Start()

	router := api.NewRouter(api.Deps{
		Node:    host,
		Config:  host.Sync(),
		Events:  bus,
		Auth:    host,
		Metrics: collector.Handler(),
		Link:    linkHandler,
		APIKey:  s.HTTP.APIKey,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return peer.Run(ctx, dial) })
	g.Go(func() error { return host.Run(ctx) })
	g.Go(func() error { return collector.Run(ctx, bus) })
	serveHTTP(ctx, g, s.HTTP.Addr, router)

	if s.HTTP.Zeroconf && linkHandler != nil {
		port, err := listenPort(s.HTTP.Addr)
		if err != nil {
			slog.Warn("zeroconf disabled: cannot parse listen address", "addr", s.HTTP.Addr, "err", err)
		} else {
			zc := zeroconf.New(s.Node, port, wslink.Path, version)
			g.Go(func() error {
				if err := zc.Start(ctx); err != nil {
					slog.Warn("zeroconf failed", "err", err)
				}
				return nil
			})
		}
	}

	slog.Info("flickd host started", "node", s.Node, "transport", s.Link.Transport, "config", s.ConfigDir)
	err = g.Wait()

	if ferr := store.Flush(); ferr != nil {
		slog.Warn("failed to flush config", "err", ferr)
	}
	slog.Info("shutdown complete")
	return err
}
