package controller_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/micro-nova/flick-go/internal/auth"
	"github.com/micro-nova/flick-go/internal/backend"
	"github.com/micro-nova/flick-go/internal/backend/fake"
	"github.com/micro-nova/flick-go/internal/config"
	"github.com/micro-nova/flick-go/internal/controller"
	"github.com/micro-nova/flick-go/internal/dispatch"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
)

// memCreds is an in-memory credential store.
type memCreds struct {
	mu    sync.Mutex
	token string
	fns   []func(bool)
}

func (c *memCreds) Token() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token, c.token != ""
}

func (c *memCreds) Set(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	c.swap(token)
	return nil
}

func (c *memCreds) Clear() error {
	c.swap("")
	return nil
}

func (c *memCreds) OnChange(fn func(bool)) {
	c.mu.Lock()
	c.fns = append(c.fns, fn)
	c.mu.Unlock()
}

func (c *memCreds) swap(token string) {
	c.mu.Lock()
	old := c.token
	c.token = token
	fns := append([]func(bool){}, c.fns...)
	c.mu.Unlock()
	if old == token {
		return
	}
	for _, fn := range fns {
		fn(token != "")
	}
}

func fastLink(name string) link.Options {
	return link.Options{
		Name:         name,
		Heartbeat:    50 * time.Millisecond,
		AckTimeout:   500 * time.Millisecond,
		MinReconnect: 10 * time.Millisecond,
		MaxReconnect: 50 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func runHost(t *testing.T, h *controller.Host) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

type system struct {
	pair      *link.Pair
	companion *controller.Companion
	host      *controller.Host
	local     *fake.Player
	hostStore *config.MemStore
}

func newSystem(t *testing.T) *system {
	t.Helper()
	pair := link.NewPair(fastLink("companion"), fastLink("host"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pair.Run(ctx)
		close(done)
	}()

	local := fake.NewPlayer()
	hostStore := config.NewMemStore()
	host, err := controller.NewHost(controller.HostOptions{
		Node:      "host",
		Transport: pair.B,
		Store:     hostStore,
		Direct:    map[models.Backend]backend.Player{models.BackendLocal: local},
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	companion, err := controller.NewCompanion(controller.CompanionOptions{
		Node:          "companion",
		Transport:     pair.A,
		Store:         config.NewMemStore(),
		RetryInterval: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewCompanion: %v", err)
	}
	host.Start()
	companion.Start()
	runHost(t, host)

	t.Cleanup(func() {
		companion.Close()
		cancel()
		<-done
	})
	return &system{pair: pair, companion: companion, host: host, local: local, hostStore: hostStore}
}

func TestCommandReachesLocalBackend(t *testing.T) {
	s := newSystem(t)
	s.pair.Connect()
	waitFor(t, func() bool { return s.companion.Status().Reachability == models.Reachable }, "companion reachable")

	if !s.companion.Submit(models.NextTrack) {
		t.Fatal("Submit dropped nextTrack")
	}
	waitFor(t, func() bool { return len(s.local.Calls()) == 1 }, "local player called")
	if got := s.local.Calls(); !reflect.DeepEqual(got, []string{"next"}) {
		t.Errorf("calls = %v, want [next]", got)
	}
}

func TestCommandsQueuedWhileApartAreDeliveredOnConnect(t *testing.T) {
	s := newSystem(t)

	s.companion.Submit(models.NextTrack)
	s.companion.Submit(models.PreviousTrack)
	if q := s.companion.Status().Queued; q != 2 {
		t.Fatalf("queued = %d, want 2", q)
	}

	s.pair.Connect()
	waitFor(t, func() bool { return len(s.local.Calls()) == 2 }, "queued commands executed")
	if got := s.local.Calls(); !reflect.DeepEqual(got, []string{"next", "previous"}) {
		t.Errorf("calls = %v, want [next previous]", got)
	}
	waitFor(t, func() bool { return s.companion.Status().Queued == 0 }, "outbox empty")
}

func TestConfigurationReplicatesAndOrientsCommands(t *testing.T) {
	s := newSystem(t)
	s.pair.Connect()

	s.companion.Sync().Update(func(snap *models.Snapshot) {
		snap.FlickDirectionReversed = true
	})
	waitFor(t, func() bool { return s.host.Status().Config.FlickDirectionReversed }, "host received snapshot")
	if s.hostStore.Saves() == 0 {
		t.Error("host did not persist the received snapshot")
	}

	s.companion.Submit(models.NextTrack)
	waitFor(t, func() bool { return len(s.local.Calls()) == 1 }, "command executed")
	if got := s.local.Calls(); !reflect.DeepEqual(got, []string{"previous"}) {
		t.Errorf("calls = %v, want [previous]", got)
	}
}

func TestTapDisabledDropsToggle(t *testing.T) {
	s := newSystem(t)
	s.companion.Sync().Update(func(snap *models.Snapshot) { snap.TapEnabled = false })

	if s.companion.Submit(models.TogglePlayPause) {
		t.Error("Submit accepted playPause with tap disabled")
	}
	if q := s.companion.Status().Queued; q != 0 {
		t.Errorf("queued = %d, want 0", q)
	}
}

func newRemoteHost(t *testing.T) (*controller.Host, *fake.Session, *memCreds) {
	t.Helper()
	session := fake.NewSession()
	session.AutoConnect = true
	creds := &memCreds{}
	h, err := controller.NewHost(controller.HostOptions{
		Node:      "host",
		Transport: link.NewPeer(link.Options{Name: "host"}),
		Store:     config.NewMemStore(),
		Creds:     creds,
		Remote:    session,
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	h.Start()
	runHost(t, h)
	h.Sync().Update(func(snap *models.Snapshot) { snap.SelectedBackend = models.BackendRemote })
	return h, session, creds
}

func connState(h *controller.Host) models.ConnState {
	if st := h.Status(); st.Connection != nil {
		return *st.Connection
	}
	return -1
}

func TestRemoteRequiresAuthorization(t *testing.T) {
	h, session, _ := newRemoteHost(t)

	_, err := h.Dispatch(context.Background(), models.NextTrack)
	if !errors.Is(err, dispatch.ErrNotAuthorized) {
		t.Fatalf("Dispatch err = %v, want ErrNotAuthorized", err)
	}
	if h.Status().Authorized {
		t.Error("Status().Authorized = true without a credential")
	}
	if n := len(session.Attempts()); n != 0 {
		t.Errorf("connect attempts = %d, want 0", n)
	}
}

func TestAuthorizeConnectsAndDeauthorizeDisconnects(t *testing.T) {
	h, session, _ := newRemoteHost(t)

	if err := h.Authorize("token-1"); err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "remote connected")
	if got := session.Credentials(); !reflect.DeepEqual(got, []string{"token-1"}) {
		t.Errorf("credentials = %v, want [token-1]", got)
	}

	out, err := h.Dispatch(context.Background(), models.NextTrack)
	if err != nil || out != dispatch.OutcomeExecuted {
		t.Fatalf("Dispatch = %v, %v", out, err)
	}
	waitFor(t, func() bool { return len(session.Calls()) == 1 }, "remote command executed")

	if err := h.Deauthorize(); err != nil {
		t.Fatalf("Deauthorize: %v", err)
	}
	if s := connState(h); s != models.ConnIdle {
		t.Errorf("state after deauthorize = %v, want idle", s)
	}
}

func TestReplacingCredentialRestartsConnection(t *testing.T) {
	h, session, _ := newRemoteHost(t)

	if err := h.Authorize("old"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "connected with old token")

	if err := h.Authorize("new"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(session.Credentials()) == 2 }, "second connect")
	if got := session.Credentials(); got[1] != "new" {
		t.Errorf("second credential = %q, want new", got[1])
	}
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "connected with new token")
}

func TestExternallyRotatedCredentialRestartsConnection(t *testing.T) {
	dir := t.TempDir()
	store, err := auth.NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(store.Close)

	session := fake.NewSession()
	session.AutoConnect = true
	h, err := controller.NewHost(controller.HostOptions{
		Node:      "host",
		Transport: link.NewPeer(link.Options{Name: "host"}),
		Store:     config.NewMemStore(),
		Creds:     store,
		Remote:    session,
	})
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	h.Start()
	runHost(t, h)
	h.Sync().Update(func(snap *models.Snapshot) { snap.SelectedBackend = models.BackendRemote })

	if err := h.Authorize("old"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "connected with old token")

	data := []byte(`{"token":"rotated","updated_at":"2026-02-03T09:00:00Z"}`)
	tmp := filepath.Join(dir, "incoming.tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, "credential.json")); err != nil {
		t.Fatal(err)
	}

	waitFor(t, func() bool {
		creds := session.Credentials()
		return len(creds) == 2 && creds[1] == "rotated"
	}, "reconnect with rotated token")
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "connected with rotated token")
}

func TestSelectingAnotherBackendDisconnectsRemote(t *testing.T) {
	h, _, _ := newRemoteHost(t)
	if err := h.Authorize("token"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return connState(h) == models.ConnConnected }, "remote connected")

	h.Sync().Update(func(snap *models.Snapshot) { snap.SelectedBackend = models.BackendLocal })
	if s := connState(h); s != models.ConnIdle {
		t.Errorf("state = %v, want idle", s)
	}
}

func TestRemoteBackendNeedsCredentials(t *testing.T) {
	_, err := controller.NewHost(controller.HostOptions{
		Node:      "host",
		Transport: link.NewPeer(link.Options{}),
		Store:     config.NewMemStore(),
		Remote:    fake.NewSession(),
	})
	if err == nil {
		t.Fatal("NewHost accepted a remote backend without credentials")
	}
}
