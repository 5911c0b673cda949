package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTimerRemainingFloorsAtZero(t *testing.T) {
	start := time.Now()
	timer := NewTimer(start, 60, nil)

	require.Equal(t, 60, timer.Remaining(start))
	require.Equal(t, 30, timer.Remaining(start.Add(30*time.Second)))
	require.Equal(t, 0, timer.Remaining(start.Add(60*time.Second)))
	require.Equal(t, 0, timer.Remaining(start.Add(5*time.Minute)))
}

func TestTimerFiresExactlyOnce(t *testing.T) {
	start := time.Now().Add(-90 * time.Second)
	fired := 0
	timer := NewTimer(start, 60, func(reason string) {
		fired++
		require.Equal(t, "time_up", reason)
	})

	now := time.Now()
	require.Equal(t, 0, timer.Remaining(now))

	timer.Tick(now)
	timer.Tick(now.Add(time.Second))
	timer.Tick(now.Add(2 * time.Second))

	require.Equal(t, 1, fired)
}

func TestTimerDoesNotFireBeforeDeadline(t *testing.T) {
	start := time.Now()
	fired := 0
	timer := NewTimer(start, 120, func(string) { fired++ })

	timer.Tick(start.Add(119 * time.Second))
	require.Zero(t, fired)

	timer.Tick(start.Add(120 * time.Second))
	require.Equal(t, 1, fired)
}

func TestTimerStopSuppressesFiring(t *testing.T) {
	start := time.Now().Add(-2 * time.Minute)
	fired := 0
	timer := NewTimer(start, 60, func(string) { fired++ })

	timer.Stop()
	timer.Tick(time.Now())

	require.Zero(t, fired)
}
