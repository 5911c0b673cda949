package session

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/observability"
)

func TestRegistryRejectsCompletedAttempt(t *testing.T) {
	now := time.Now()
	completedAt := now.Add(-time.Hour)
	store := &stubStore{
		attempt:   models.Attempt{ID: 1, TestID: 10, UserID: 42, CompletedAt: &completedAt},
		completed: true,
	}
	registry := NewRegistry(store, newFakeClock(now), Config{}, zerolog.Nop())
	defer registry.Close()

	_, err := registry.Start(context.Background(), testExam(), 42)
	require.ErrorIs(t, err, ErrAlreadyCompleted)
}

func TestRegistryReusesLiveSession(t *testing.T) {
	store := &stubStore{}
	registry := NewRegistry(store, newFakeClock(time.Now()), Config{}, zerolog.Nop())
	defer registry.Close()

	first, err := registry.Start(context.Background(), testExam(), 42)
	require.NoError(t, err)
	second, err := registry.Start(context.Background(), testExam(), 42)
	require.NoError(t, err)
	require.Same(t, first, second)

	got, ok := registry.Get(first.ID)
	require.True(t, ok)
	require.Same(t, first, got)
}

func TestRegistrySeparatesUsers(t *testing.T) {
	registry := NewRegistry(&stubStore{}, newFakeClock(time.Now()), Config{}, zerolog.Nop())
	defer registry.Close()

	a, err := registry.Start(context.Background(), testExam(), 1)
	require.NoError(t, err)

	// The stub store holds a single attempt, which is fine here: only
	// session identity is under test.
	b, err := registry.Start(context.Background(), testExam(), 2)
	require.NoError(t, err)
	require.NotSame(t, a, b)
}

func TestRegistryCloseStopsSessions(t *testing.T) {
	store := &stubStore{}
	registry := NewRegistry(store, newFakeClock(time.Now()), Config{}, zerolog.Nop())

	sess, err := registry.Start(context.Background(), testExam(), 42)
	require.NoError(t, err)

	registry.Close()

	// The timer is stopped; a tick past the deadline must not submit.
	sess.Timer.Tick(time.Now().Add(time.Hour))
	require.NotEqual(t, StateCompleted, sess.State())
}

func TestRegistryCloseSettlesActiveGauge(t *testing.T) {
	gauge := observability.SessionsActive()
	before := testutil.ToFloat64(gauge)

	registry := NewRegistry(&stubStore{}, newFakeClock(time.Now()), Config{}, zerolog.Nop())

	_, err := registry.Start(context.Background(), testExam(), 1)
	require.NoError(t, err)
	_, err = registry.Start(context.Background(), testExam(), 2)
	require.NoError(t, err)
	require.Equal(t, before+2, testutil.ToFloat64(gauge))

	// Sessions still live at shutdown never pass through eviction; Close
	// must account for them too.
	registry.Close()
	require.Equal(t, before, testutil.ToFloat64(gauge))
}
