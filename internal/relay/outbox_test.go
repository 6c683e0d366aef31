package relay_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/micro-nova/flick-go/internal/clock"
	"github.com/micro-nova/flick-go/internal/link"
	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/relay"
)

type harness struct {
	tr      *fakeTransport
	tracker *relay.Tracker
	outbox  *relay.Outbox
	clock   *clock.Fake
	rec     *recorder
}

func newHarness(t *testing.T, maxQueued int) *harness {
	t.Helper()
	h := &harness{
		tr:    &fakeTransport{},
		clock: clock.NewFake(),
		rec:   &recorder{},
	}
	h.tracker = relay.NewTracker(h.rec)
	h.outbox = relay.NewOutbox(h.tr, h.tracker, relay.Options{
		MaxQueued: maxQueued,
		Clock:     h.clock,
		Notify:    h.rec,
	})
	h.outbox.AttachTo(h.tracker)
	t.Cleanup(h.outbox.Close)
	return h
}

func TestOutboxQueuesUntilReachable(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(false)

	h.outbox.Enqueue(models.NextTrack)
	require.Equal(t, 1, h.outbox.Len())
	assert.Empty(t, h.tr.sends())
	assert.Len(t, h.rec.kinds(models.CommandDeferred), 1)
	assert.True(t, h.outbox.RetryArmed())

	h.tracker.Observe(true)

	assert.Equal(t, 0, h.outbox.Len())
	assert.Equal(t, []models.Command{models.NextTrack}, h.tr.sends())
	delivered := h.rec.kinds(models.CommandDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, models.NextTrack, delivered[0].Command)
	assert.Equal(t, 1, delivered[0].Attempts)
	assert.False(t, h.outbox.RetryArmed())
}

func TestOutboxFastPath(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(true)

	h.outbox.Enqueue(models.TogglePlayPause)

	assert.Equal(t, []models.Command{models.TogglePlayPause}, h.tr.sends())
	assert.Equal(t, 0, h.outbox.Len())
	assert.False(t, h.outbox.RetryArmed())
}

func TestOutboxDrainsInOrderExactlyOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(false)

	h.outbox.Enqueue(models.NextTrack)
	h.outbox.Enqueue(models.PreviousTrack)
	h.outbox.Enqueue(models.TogglePlayPause)
	require.Equal(t, 3, h.outbox.Len())

	h.tracker.Observe(true)
	// A second drain with an empty queue sends nothing.
	h.outbox.DrainQueue()

	assert.Equal(t, []models.Command{
		models.NextTrack, models.PreviousTrack, models.TogglePlayPause,
	}, h.tr.sends())
	assert.Len(t, h.rec.kinds(models.CommandDelivered), 3)
}

func TestOutboxFailedSendIsRequeued(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(true)
	h.tr.setFail(link.ErrAckTimeout)

	h.outbox.Send(models.NextTrack)

	pending := h.outbox.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.True(t, h.outbox.RetryArmed())

	deferred := h.rec.kinds(models.CommandDeferred)
	require.Len(t, deferred, 1)
	assert.Equal(t, link.ErrAckTimeout.Error(), deferred[0].Err)
	assert.Empty(t, h.rec.kinds(models.CommandFailed))

	// The next tick retries; the retry fails again and the command stays queued.
	h.clock.Advance(relay.DefaultRetryInterval)
	pending = h.outbox.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.True(t, h.outbox.RetryArmed())

	h.tr.setFail(nil)
	h.clock.Advance(relay.DefaultRetryInterval)
	assert.Equal(t, 0, h.outbox.Len())
	delivered := h.rec.kinds(models.CommandDelivered)
	require.Len(t, delivered, 1)
	assert.Equal(t, 3, delivered[0].Attempts)
	assert.False(t, h.outbox.RetryArmed())
}

func TestOutboxRetryTimerStopsWhenIdle(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(true)
	h.tr.setHold(true)

	// The send goes out but fails later, after the queue was drained.
	h.outbox.Send(models.NextTrack)
	assert.Equal(t, 1, h.outbox.InFlight())
	h.tr.complete(errors.New("radio off"))
	require.Equal(t, 1, h.outbox.Len())
	require.True(t, h.outbox.RetryArmed())

	// Tick: the retry is in flight again, the queue is empty.
	h.clock.Advance(relay.DefaultRetryInterval)
	assert.Equal(t, 0, h.outbox.Len())
	assert.Equal(t, 1, h.outbox.InFlight())
	assert.False(t, h.outbox.RetryArmed())

	h.tr.complete(nil)
	h.clock.Advance(10 * relay.DefaultRetryInterval)
	assert.Equal(t, 0, h.clock.Pending(), "no timer may remain once the queue is empty")
	assert.Len(t, h.tr.sends(), 2)
}

func TestOutboxRetryWhileUnreachableKeepsCadence(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(false)
	h.outbox.Enqueue(models.NextTrack)

	for i := 0; i < 3; i++ {
		h.clock.Advance(relay.DefaultRetryInterval)
		assert.True(t, h.outbox.RetryArmed())
		assert.Equal(t, 1, h.clock.Pending())
	}
	assert.Empty(t, h.tr.sends())
	assert.Equal(t, 1, h.outbox.Len())
}

func TestOutboxFastPathCanOvertakeQueue(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(true)
	h.tr.setFail(link.ErrBackpressure)
	h.outbox.Send(models.NextTrack)
	require.Equal(t, 1, h.outbox.Len())

	// The link recovers; a new command goes straight out ahead of the queued one.
	h.tr.setFail(nil)
	h.outbox.Enqueue(models.PreviousTrack)
	h.clock.Advance(relay.DefaultRetryInterval)

	assert.Equal(t, []models.Command{
		models.NextTrack, models.PreviousTrack, models.NextTrack,
	}, h.tr.sends())
	delivered := h.rec.kinds(models.CommandDelivered)
	require.Len(t, delivered, 2)
	assert.Equal(t, models.PreviousTrack, delivered[0].Command)
	assert.Equal(t, models.NextTrack, delivered[1].Command)
}

func TestOutboxCapEvictsOldest(t *testing.T) {
	h := newHarness(t, 2)
	h.tracker.Observe(false)

	h.outbox.Enqueue(models.NextTrack)
	h.outbox.Enqueue(models.PreviousTrack)
	h.outbox.Enqueue(models.TogglePlayPause)

	pending := h.outbox.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, models.PreviousTrack, pending[0].Command)
	assert.Equal(t, models.TogglePlayPause, pending[1].Command)

	failed := h.rec.kinds(models.CommandFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, models.NextTrack, failed[0].Command)
	assert.Equal(t, relay.ErrQueueOverflow.Error(), failed[0].Err)
}

func TestOutboxCloseStopsTimer(t *testing.T) {
	h := newHarness(t, 0)
	h.tracker.Observe(false)
	h.outbox.Enqueue(models.NextTrack)

	h.outbox.Close()
	assert.Equal(t, 0, h.outbox.Len())
	assert.False(t, h.outbox.RetryArmed())
	h.clock.Advance(time.Minute)
	assert.Empty(t, h.tr.sends())
}
