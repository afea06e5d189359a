package duration_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiroq/meetaudio/internal/duration"
	"github.com/tiroq/meetaudio/testutil"
)

func TestSamplerTicksAtCadence(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := duration.NewSampler(clock, time.Second)

	var ticks atomic.Int32
	s.Subscribe(func(time.Time) { ticks.Add(1) })
	s.Start()
	defer s.Stop()

	for i := 1; i <= 3; i++ {
		clock.Advance(time.Second)
		want := int32(i)
		require.Eventually(t, func() bool { return ticks.Load() == want }, time.Second, time.Millisecond)
	}
}

func TestSamplerResubscribeKeepsTicker(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := duration.NewSampler(clock, time.Second)

	var first, second atomic.Int32
	s.Subscribe(func(time.Time) { first.Add(1) })
	s.Start()
	defer s.Stop()
	require.Equal(t, 1, clock.ActiveTickers())

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return first.Load() == 1 }, time.Second, time.Millisecond)

	s.Subscribe(func(time.Time) { second.Add(1) })
	assert.Equal(t, 1, clock.ActiveTickers(), "subscribe must not create a new ticker")

	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return second.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, int32(1), first.Load())
}

func TestSamplerStartStopIdempotent(t *testing.T) {
	clock := testutil.NewFakeClock(time.Unix(0, 0))
	s := duration.NewSampler(clock, 0)

	s.Start()
	s.Start()
	assert.True(t, s.Running())
	assert.Equal(t, 1, clock.ActiveTickers())

	s.Stop()
	s.Stop()
	assert.False(t, s.Running())
	require.Eventually(t, func() bool { return clock.ActiveTickers() == 0 }, time.Second, time.Millisecond)
}
