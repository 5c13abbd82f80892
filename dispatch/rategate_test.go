package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateGateDoesNotRefillBetweenTicks(t *testing.T) {
	clock := newFakeClock()
	g := NewRateGate(2, time.Second, clock.Now)

	require.True(t, g.Allow())
	require.True(t, g.Allow())
	require.False(t, g.Allow())

	clock.Advance(550 * time.Millisecond)
	require.False(t, g.Allow(), "no token may appear before the interval elapses")
	require.InDelta(t, 0.0, g.Tokens(), 0.001)

	clock.Advance(450 * time.Millisecond)
	require.InDelta(t, 2.0, g.Tokens(), 0.001)
	require.True(t, g.Allow())
	require.True(t, g.Allow())
	require.False(t, g.Allow())
}

func TestRateGateWindowsStayAlignedToTicks(t *testing.T) {
	clock := newFakeClock()
	g := NewRateGate(1, time.Second, clock.Now)

	require.True(t, g.Allow())
	clock.Advance(2500 * time.Millisecond)
	require.True(t, g.Allow())

	// the window started at the 2s tick, so the next refill is at 3s
	clock.Advance(400 * time.Millisecond)
	require.False(t, g.Allow())
	clock.Advance(100 * time.Millisecond)
	require.True(t, g.Allow())
}

func TestRateGateWaitReturnsAfterRefill(t *testing.T) {
	g := NewRateGate(1, 30*time.Millisecond, nil)
	require.True(t, g.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, g.Wait(ctx))
	require.False(t, g.Allow())
}

func TestRateGateResetRefills(t *testing.T) {
	clock := newFakeClock()
	g := NewRateGate(3, time.Minute, clock.Now)
	for i := 0; i < 3; i++ {
		require.True(t, g.Allow())
	}
	g.Reset()
	require.InDelta(t, 3.0, g.Tokens(), 0.001)
	require.Equal(t, 3, g.Size())
}
