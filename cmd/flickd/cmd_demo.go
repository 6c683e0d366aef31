package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/backend/fake"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/controller"
	"github.com/micro-nova/flick-go/internal/events"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
)

const demoWait = 3 * time.Second

// newDemoCmd creates the "flickd demo" subcommand.
func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run companion and host in one process with fake backends",
		Long: `demo joins a companion and a host over an in-memory link and reads lines
from standard input. Besides command tokens (nextTrack, previousTrack,
playPause) it understands:

  backend <remote|local|automation>  select the playback backend
  reverse                            toggle the flick direction
  sever / connect                    cut or restore the link`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd.Context(), a.settings.Relay.RetryInterval, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// demoCreds holds a fixed credential for the fake remote backend.
type demoCreds struct {
	mu    sync.Mutex
	token string
}

func (c *demoCreds) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *demoCreds) Set(token string) error {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
	return nil
}

func (c *demoCreds) Clear() error                   { return c.Set("") }
func (c *demoCreds) OnChange(fn func(present bool)) {}

func runDemo(ctx context.Context, retry time.Duration, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	out = &lockedWriter{w: out}

	bus := events.NewBus()
	pair := link.NewPair(link.Options{Name: "companion"}, link.Options{Name: "host"})

	remote := fake.NewSession()
	remote.AutoConnect = true
	host, err := controller.NewHost(controller.HostOptions{
		Node:      "host",
		Transport: pair.B,
		Store:     config.NewMemStore(),
		Notify:    bus,
		Creds:     &demoCreds{token: "demo"},
		Remote:    remote,
		Direct: map[models.Backend]backend.Player{
			models.BackendLocal:      fake.NewPlayer(),
			models.BackendAutomation: fake.NewPlayer(),
		},
	})
	if err != nil {
		return err
	}
	companion, err := controller.NewCompanion(controller.CompanionOptions{
		Node:          "companion",
		Transport:     pair.A,
		Store:         config.NewMemStore(),
		Notify:        bus,
		RetryInterval: retry,
	})
	if err != nil {
		return err
	}
	host.Start()
	companion.Start()
	defer companion.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pair.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		_ = host.Run(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	processed := make(chan models.Command, 16)
	feed := bus.Subscribe("demo")
	printed := make(chan struct{})
	go func() {
		printNotifications(feed, out, processed)
		close(printed)
	}()
	defer func() {
		bus.Unsubscribe("demo")
		<-printed
	}()

	pair.Connect()
	waitUntil(ctx, func() bool { return companion.Status().Reachability == models.Reachable })

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if demoControl(line, pair, companion, out) {
			continue
		}
		cmd, err := models.ParseCommand(line)
		if err != nil {
			fmt.Fprintf(out, "? %v\n", err)
			continue
		}
		reachable := companion.Status().Reachability == models.Reachable
		if !companion.Submit(cmd) {
			fmt.Fprintf(out, "dropped %s (disabled by configuration)\n", cmd)
			continue
		}
		if reachable {
			awaitProcessed(processed, demoWait)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("demo: read input: %w", err)
	}

	if n := companion.Status().Queued; n > 0 {
		fmt.Fprintf(out, "%d command(s) still queued\n", n)
	}
	return nil
}

// demoControl handles the demo's own control lines.
func demoControl(line string, pair *link.Pair, companion *controller.Companion, out io.Writer) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "backend":
		if len(fields) != 2 {
			fmt.Fprintln(out, "? usage: backend <remote|local|automation>")
			return true
		}
		b, err := models.ParseBackend(fields[1])
		if err != nil {
			fmt.Fprintf(out, "? %v\n", err)
			return true
		}
		companion.Sync().Update(func(s *models.Snapshot) { s.SelectedBackend = b })
	case "reverse":
		companion.Sync().Update(func(s *models.Snapshot) { s.FlickDirectionReversed = !s.FlickDirectionReversed })
	case "sever":
		pair.Sever()
	case "connect":
		pair.Connect()
	default:
		return false
	}
	return true
}

func printNotifications(feed <-chan models.Notification, out io.Writer, processed chan<- models.Command) {
	for n := range feed {
		var b strings.Builder
		b.WriteString(string(n.Kind))
		if n.Command != "" {
			fmt.Fprintf(&b, " %s", n.Command)
		}
		if n.Backend != "" {
			fmt.Fprintf(&b, " backend=%s", n.Backend)
		}
		if n.ConnState != nil {
			fmt.Fprintf(&b, " state=%s", *n.ConnState)
		}
		if n.Reachability != nil {
			fmt.Fprintf(&b, " %s", *n.Reachability)
		}
		if n.Attempts > 0 {
			fmt.Fprintf(&b, " attempts=%d", n.Attempts)
		}
		if n.Err != "" {
			fmt.Fprintf(&b, " err=%q", n.Err)
		}
		fmt.Fprintln(out, b.String())

		if n.Kind == models.CommandExecuted || (n.Kind == models.CommandFailed && n.Backend != "") {
			select {
			case processed <- n.Command:
			default:
			}
		}
	}
}

func awaitProcessed(processed <-chan models.Command, timeout time.Duration) {
	select {
	case <-processed:
	case <-time.After(timeout):
		slog.Warn("demo: no result for command", "timeout", timeout)
	}
}

// lockedWriter serializes writes from the notification printer and the
// input loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func waitUntil(ctx context.Context, cond func() bool) {
	deadline := time.Now().Add(demoWait)
	for !cond() && time.Now().Before(deadline) && ctx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
}
