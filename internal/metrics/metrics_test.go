package metrics_test

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/flick-go/internal/events"
	"github.com/micro-nova/flick-go/internal/metrics"
	"github.com/micro-nova/flick-go/internal/models"
)

func TestObserveCountsCommands(t *testing.T) {
	c := metrics.New()
	c.Observe(models.Notification{Kind: models.CommandDelivered, Command: models.NextTrack})
	c.Observe(models.Notification{Kind: models.CommandDelivered, Command: models.NextTrack})
	c.Observe(models.Notification{Kind: models.CommandFailed, Command: models.TogglePlayPause})

	n, err := testutil.GatherAndCount(c.Registry(), "flick_commands_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n, "one series per outcome/command pair")

	expected := `
# HELP flick_commands_total Commands by outcome
# TYPE flick_commands_total counter
flick_commands_total{command="nextTrack",outcome="delivered"} 2
flick_commands_total{command="playPause",outcome="failed"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "flick_commands_total"))
}

func TestObserveGauges(t *testing.T) {
	c := metrics.New()
	r := models.Reachable
	st := models.ConnConnected
	c.Observe(models.Notification{Kind: models.ReachabilityChanged, Reachability: &r})
	c.Observe(models.Notification{Kind: models.BackendConnectionStateChange, Backend: models.BackendRemote, ConnState: &st})
	c.QueueDepth(func() int { return 3 })

	expected := `
# HELP flick_backend_connection_state Backend connection state (0 idle, 1 connecting, 2 connected, 3 failed)
# TYPE flick_backend_connection_state gauge
flick_backend_connection_state{backend="remote"} 2
# HELP flick_link_reachable 1 while the peer is reachable
# TYPE flick_link_reachable gauge
flick_link_reachable 1
# HELP flick_outbox_depth Commands waiting for the link
# TYPE flick_outbox_depth gauge
flick_outbox_depth 3
`
	assert.NoError(t, testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected),
		"flick_backend_connection_state", "flick_link_reachable", "flick_outbox_depth"))
}

func TestRunFeedsFromBus(t *testing.T) {
	c := metrics.New()
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx, bus) }()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(models.Notification{Kind: models.ConfigurationChanged})

	expected := `
# HELP flick_config_changes_total Configuration snapshots applied from the peer
# TYPE flick_config_changes_total counter
flick_config_changes_total 1
`
	assert.Eventually(t, func() bool {
		return testutil.GatherAndCompare(c.Registry(), strings.NewReader(expected), "flick_config_changes_total") == nil
	}, time.Second, 5*time.Millisecond)
}

func TestHandlerServesText(t *testing.T) {
	c := metrics.New()
	c.Observe(models.Notification{Kind: models.ConfigurationChanged})

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "flick_config_changes_total 1")
}
