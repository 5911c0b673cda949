package session

import (
	"sync"
	"time"

	"github.com/proctorly/exam-api/internal/models"
)

// Timer derives the remaining attempt time from the authoritative start
// timestamp rather than accumulated ticks, so a slept or throttled process
// cannot drift from the server-intended deadline.
type Timer struct {
	mu        sync.Mutex
	startedAt time.Time
	duration  time.Duration
	fired     bool
	stopped   bool
	submit    func(reason string)
}

// NewTimer builds a countdown for one attempt. submit is invoked exactly
// once when the remaining time reaches zero.
func NewTimer(startedAt time.Time, durationSeconds int, submit func(reason string)) *Timer {
	return &Timer{
		startedAt: startedAt,
		duration:  time.Duration(durationSeconds) * time.Second,
		submit:    submit,
	}
}

// Remaining returns the whole seconds left at the given instant, floored at
// zero.
func (t *Timer) Remaining(now time.Time) int {
	left := t.duration - now.Sub(t.startedAt)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Tick recomputes the remaining time and fires the time-up submission once.
// Further ticks are no-ops after firing or after Stop.
func (t *Timer) Tick(now time.Time) {
	t.mu.Lock()
	if t.stopped || t.fired || t.duration-now.Sub(t.startedAt) > 0 {
		t.mu.Unlock()
		return
	}
	t.fired = true
	submit := t.submit
	t.mu.Unlock()

	if submit != nil {
		submit(models.SubmitReasonTimeUp)
	}
}

// Stop suppresses any further firing; called once submission has started.
func (t *Timer) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}
