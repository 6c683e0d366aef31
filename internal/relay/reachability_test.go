package relay_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/micro-nova/flick-go/internal/models"
	"github.com/micro-nova/flick-go/internal/relay"
)

func TestTrackerStartsUnknown(t *testing.T) {
	tr := relay.NewTracker(nil)
	assert.Equal(t, models.ReachabilityUnknown, tr.State())
	assert.False(t, tr.IsReachable())
}

func TestTrackerTransitions(t *testing.T) {
	rec := &recorder{}
	tr := relay.NewTracker(rec)

	type change struct{ prev, next models.Reachability }
	var seen []change
	tr.Subscribe(func(prev, next models.Reachability) {
		seen = append(seen, change{prev, next})
	})

	tr.Observe(true)
	tr.Observe(true)
	tr.Observe(false)
	tr.Observe(false)
	tr.Observe(true)

	assert.Equal(t, []change{
		{models.ReachabilityUnknown, models.Reachable},
		{models.Reachable, models.Unreachable},
		{models.Unreachable, models.Reachable},
	}, seen)
	assert.Len(t, rec.kinds(models.ReachabilityChanged), 3)
	assert.True(t, tr.IsReachable())
}
