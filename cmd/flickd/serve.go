package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/link/serial"
	"github.com/micro-nova/flick-go/internal/link/wslink"
	"github.com/micro-nova/flick-go/internal/settings"
	"github.com/micro-nova/flick-go/internal/zeroconf"
)

const shutdownTimeout = 10 * time.Second

// serveHTTP runs an HTTP server in g until ctx is done.
func serveHTTP(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:        addr,
		Handler:     h,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// WriteTimeout stays 0 for SSE.
	}
	g.Go(func() error {
		slog.Info("flickd listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Warn("server shutdown error", "err", err)
		}
		return nil
	})
}

func linkOptions(s settings.Settings) link.Options {
	return link.Options{
		Name:       s.Node,
		Heartbeat:  s.Link.Heartbeat,
		AckTimeout: s.Link.AckTimeout,
	}
}

// hostLink returns the host's dialer and, for websocket links, the
// handler that accepts the companion at wslink.Path.
func hostLink(s settings.Settings) (link.Dialer, http.Handler) {
	if s.Link.Transport == "serial" {
		return serial.Dialer(s.Link.SerialPort, s.Link.Baud), nil
	}
	acc := link.NewAcceptor()
	return acc.Dial, wslink.Handler(acc)
}

// companionLink returns the companion's dialer. Without a configured URL
// the host is discovered over mDNS on every dial.
func companionLink(s settings.Settings) link.Dialer {
	if s.Link.Transport == "serial" {
		return serial.Dialer(s.Link.SerialPort, s.Link.Baud)
	}
	if s.Link.URL != "" {
		return wslink.Dialer(s.Link.URL, nil)
	}
	timeout := s.Link.DiscoverTimeout
	return wslink.Dialer("", func(ctx context.Context) (string, error) {
		return zeroconf.Browse(ctx, timeout)
	})
}

// listenPort extracts the port from a listen address such as ":8080".
func listenPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory %s: %w", dir, err)
	}
	return nil
}
