package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/models"
	"github.com/proctorly/exam-api/internal/observability"
)

// Registry tracks the live session per (test, user) pair and drives each
// session's one-second tick loop so a dead client still gets auto-submitted
// at time-up.
type Registry struct {
	store  AttemptStore
	clock  Clock
	cfg    Config
	logger zerolog.Logger

	mu      sync.RWMutex
	byID    map[string]*Session
	byOwner map[ownerKey]*Session
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

type ownerKey struct {
	testID uint
	userID uint
}

// NewRegistry constructs a session registry.
func NewRegistry(store AttemptStore, clock Clock, cfg Config, logger zerolog.Logger) *Registry {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 30 * time.Second
	}

	return &Registry{
		store:   store,
		clock:   clock,
		cfg:     cfg,
		logger:  logger.With().Str("component", "session_registry").Logger(),
		byID:    make(map[string]*Session),
		byOwner: make(map[ownerKey]*Session),
		done:    make(chan struct{}),
	}
}

// Start creates a session for the test and user, or resumes the live one.
// The persisted attempt row is ensured before the session is exposed, so
// StartedAt is authoritative from the first response onwards.
func (r *Registry) Start(ctx context.Context, test models.Test, userID uint) (*Session, error) {
	if _, found, err := r.store.GetCompleted(ctx, test.ID, userID); err != nil {
		return nil, err
	} else if found {
		return nil, ErrAlreadyCompleted
	}

	key := ownerKey{testID: test.ID, userID: userID}

	r.mu.RLock()
	existing := r.byOwner[key]
	r.mu.RUnlock()
	if existing != nil && existing.State() != StateCompleted {
		return existing, nil
	}

	attempt, err := r.store.CreateOrGet(ctx, test.ID, userID, r.clock.Now())
	if err != nil {
		return nil, err
	}

	sess := New(test, userID, attempt.StartedAt, r.store, r.clock, r.cfg, r.logger)
	if _, err := sess.EnsureAttempt(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, context.Canceled
	}
	// A concurrent starter may have won; the existing live session governs.
	if current := r.byOwner[key]; current != nil && current.State() != StateCompleted {
		r.mu.Unlock()
		return current, nil
	}
	r.byID[sess.ID] = sess
	r.byOwner[key] = sess
	r.mu.Unlock()

	observability.SessionsActive().Inc()

	r.wg.Add(1)
	go r.run(sess)

	r.logger.Info().Str("session_id", sess.ID).Uint("test_id", test.ID).Uint("user_id", userID).Msg("session started")
	return sess, nil
}

// Get returns the live session by id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sess, ok := r.byID[id]
	return sess, ok
}

// Close tears down the registry: every loop stops and every live countdown
// is cancelled.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.done)
	for _, sess := range r.byID {
		sess.Timer.Stop()
		sess.Monitor.Close()
	}
	// Sessions still live at shutdown never reach evict; settle the gauge
	// for them here.
	observability.SessionsActive().Sub(float64(len(r.byID)))
	r.byID = make(map[string]*Session)
	r.byOwner = make(map[ownerKey]*Session)
	r.mu.Unlock()

	r.wg.Wait()
}

// run drives one session at 1 Hz. Progress is flushed at the autosave
// interval; the loop exits once the session is terminal.
func (r *Registry) run(sess *Session) {
	defer r.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	autosaveEvery := int(r.cfg.AutosaveInterval / time.Second)
	if autosaveEvery <= 0 {
		autosaveEvery = 30
	}
	ticks := 0

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			sess.Tick()

			if sess.State() == StateCompleted {
				r.evict(sess)
				return
			}

			ticks++
			if ticks%autosaveEvery == 0 {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if _, err := sess.RecordProgress(ctx); err != nil &&
					!errors.Is(err, ErrAlreadyCompleted) && !errors.Is(err, ErrSubmitInProgress) {
					r.logger.Error().Err(err).Str("session_id", sess.ID).Msg("autosave failed")
				}
				cancel()
			}
		}
	}
}

func (r *Registry) evict(sess *Session) {
	r.mu.Lock()
	delete(r.byID, sess.ID)
	key := ownerKey{testID: sess.Test.ID, userID: sess.UserID}
	if r.byOwner[key] == sess {
		delete(r.byOwner, key)
	}
	r.mu.Unlock()

	observability.SessionsActive().Dec()
	r.logger.Info().Str("session_id", sess.ID).Msg("session evicted")
}
