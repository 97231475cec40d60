package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnlyWhenDeadlineReached(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2999 * time.Millisecond)
	assert.Equal(t, 0, fired)

	c.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)

	c.Advance(time.Hour)
	assert.Equal(t, 1, fired, "one-shot timer fired twice")
}

func TestFakeStopPreventsCallback(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second Stop should report inactive")

	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.Empty(t, c.Pending())
}

func TestFakeFiresInDeadlineOrderAndChains(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	c.AfterFunc(time.Second, func() {
		order = append(order, "a")
		c.AfterFunc(0, func() { order = append(order, "chained") })
	})

	c.Advance(2 * time.Second)
	assert.Equal(t, []string{"a", "b", "chained"}, order)
}

func TestFakePendingReportsRemaining(t *testing.T) {
	t.Parallel()

	c := Fake(epoch)
	c.AfterFunc(15*time.Second, func() {})
	c.AfterFunc(3*time.Second, func() {})
	c.Advance(time.Second)

	assert.Equal(t, []time.Duration{2 * time.Second, 14 * time.Second}, c.Pending())
	assert.Equal(t, epoch.Add(time.Second), c.Now())
}

func TestTimerStopNilSafe(t *testing.T) {
	t.Parallel()

	var timer *Timer
	assert.False(t, timer.Stop())
}
