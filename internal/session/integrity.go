package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/proctorly/exam-api/internal/models"
)

// Signal identifies one monitored environment condition.
type Signal string

// Monitored integrity signals.
const (
	SignalFullscreen Signal = "fullscreen"
	SignalVisibility Signal = "visibility"
)

// MonitorState is the integrity state machine position.
type MonitorState int

// Monitor states.
const (
	MonitorClear MonitorState = iota
	MonitorWarning
	MonitorExpired
)

func (s MonitorState) String() string {
	switch s {
	case MonitorWarning:
		return "warning"
	case MonitorExpired:
		return "expired"
	default:
		return "clear"
	}
}

// MonitorEvent is pushed to subscribers while a warning countdown runs or
// when the monitor forces submission.
type MonitorEvent struct {
	Type             string
	Signal           Signal
	RemainingSeconds int
	Reason           string
}

// Monitor event types.
const (
	MonitorEventWarning = "warning"
	MonitorEventCleared = "cleared"
	MonitorEventExpired = "expired"
)

// IntegrityMonitor drives a cancellable grace countdown per integrity
// violation. Only one countdown is active at a time; a second non-compliant
// signal while warning does not restart it. When the countdown expires the
// monitor forces submission through the provided callback.
type IntegrityMonitor struct {
	mu          sync.Mutex
	state       MonitorState
	active      Signal
	remaining   int
	grace       int
	closed      bool
	submit      func(reason string)
	subscribers map[chan MonitorEvent]struct{}
	logger      zerolog.Logger
}

// NewIntegrityMonitor builds a monitor with the given grace period in
// seconds (defaults to 10 when non-positive).
func NewIntegrityMonitor(graceSeconds int, submit func(reason string), logger zerolog.Logger) *IntegrityMonitor {
	if graceSeconds <= 0 {
		graceSeconds = 10
	}
	return &IntegrityMonitor{
		grace:       graceSeconds,
		submit:      submit,
		subscribers: make(map[chan MonitorEvent]struct{}),
		logger:      logger.With().Str("component", "integrity_monitor").Logger(),
	}
}

// Observe consumes one environment signal. A non-compliant signal starts the
// countdown when clear; returning to compliance on the active signal cancels
// it with no penalty.
func (m *IntegrityMonitor) Observe(signal Signal, compliant bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.state == MonitorExpired {
		return
	}

	switch {
	case !compliant && m.state == MonitorClear:
		m.state = MonitorWarning
		m.active = signal
		m.remaining = m.grace
		m.logger.Warn().Str("signal", string(signal)).Int("grace_seconds", m.grace).Msg("integrity warning started")
		m.broadcastLocked(MonitorEvent{Type: MonitorEventWarning, Signal: signal, RemainingSeconds: m.remaining})
	case compliant && m.state == MonitorWarning && signal == m.active:
		m.state = MonitorClear
		m.remaining = 0
		m.logger.Info().Str("signal", string(signal)).Msg("integrity warning cleared")
		m.broadcastLocked(MonitorEvent{Type: MonitorEventCleared, Signal: signal})
	}
	// A second violating signal while already warning is governed by the
	// existing countdown.
}

// Tick advances the active countdown by one second. On expiry the monitor
// transitions to Expired and forces submission. While Expired, every tick
// re-invokes the submission: a persistence failure at the moment of expiry
// must not leave the attempt open with enforcement disabled. The retry loop
// ends when the session goes terminal and closes the monitor.
func (m *IntegrityMonitor) Tick() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.state == MonitorExpired {
		signal := m.active
		submit := m.submit
		m.mu.Unlock()
		if submit != nil {
			submit(reasonForSignal(signal))
		}
		return
	}
	if m.state != MonitorWarning {
		m.mu.Unlock()
		return
	}

	m.remaining--
	if m.remaining > 0 {
		m.broadcastLocked(MonitorEvent{Type: MonitorEventWarning, Signal: m.active, RemainingSeconds: m.remaining})
		m.mu.Unlock()
		return
	}

	m.state = MonitorExpired
	signal := m.active
	reason := reasonForSignal(signal)
	m.broadcastLocked(MonitorEvent{Type: MonitorEventExpired, Signal: signal, Reason: reason})
	submit := m.submit
	m.mu.Unlock()

	m.logger.Warn().Str("signal", string(signal)).Msg("integrity grace period expired, forcing submission")
	if submit != nil {
		submit(reason)
	}
}

// State reports the current state and remaining warning seconds.
func (m *IntegrityMonitor) State() (MonitorState, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state, m.remaining
}

// Subscribe registers a listener for monitor events. The returned cancel
// func must be called to release the channel.
func (m *IntegrityMonitor) Subscribe() (<-chan MonitorEvent, func()) {
	ch := make(chan MonitorEvent, 16)

	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// Close tears the monitor down, cancelling any live countdown and releasing
// subscribers so no callback fires after the session is gone.
func (m *IntegrityMonitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.remaining = 0
	for ch := range m.subscribers {
		delete(m.subscribers, ch)
		close(ch)
	}
}

func (m *IntegrityMonitor) broadcastLocked(event MonitorEvent) {
	for ch := range m.subscribers {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block the state machine.
		}
	}
}

func reasonForSignal(signal Signal) string {
	if signal == SignalVisibility {
		return models.SubmitReasonVisibility
	}
	return models.SubmitReasonFullscreen
}
