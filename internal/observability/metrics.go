package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	apiRequestsTotal   *prometheus.CounterVec
	apiLatencySeconds  *prometheus.HistogramVec
	apiErrorsTotal     *prometheus.CounterVec
	sessionsActive     prometheus.Gauge
	submissionsTotal   *prometheus.CounterVec
	integrityWarnings  *prometheus.CounterVec
	integrityExpiredCv *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors for HTTP and exam
// session observability. Safe to call from multiple packages.
func RegisterMetrics() {
	registerOnce.Do(func() {
		apiRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctorly",
			Name:      "api_requests_total",
			Help:      "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		apiLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "proctorly",
			Name:      "api_latency_seconds",
			Help:      "Latency distribution for API requests.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		apiErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctorly",
			Name:      "api_errors_total",
			Help:      "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "proctorly",
			Subsystem: "session",
			Name:      "active",
			Help:      "Number of exam sessions currently ticking.",
		})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctorly",
			Subsystem: "session",
			Name:      "submissions_total",
			Help:      "Completed attempts partitioned by submit reason.",
		}, []string{"reason"})

		integrityWarnings = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctorly",
			Subsystem: "session",
			Name:      "integrity_warnings_total",
			Help:      "Integrity warning countdowns started, by signal.",
		}, []string{"signal"})

		integrityExpiredCv = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctorly",
			Subsystem: "session",
			Name:      "integrity_expirations_total",
			Help:      "Integrity countdowns that expired into forced submission.",
		}, []string{"signal"})

		prometheus.MustRegister(
			apiRequestsTotal, apiLatencySeconds, apiErrorsTotal,
			sessionsActive, submissionsTotal, integrityWarnings, integrityExpiredCv,
		)
	})
}

// APIRequests exposes the request counter.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return apiRequestsTotal
}

// APILatency exposes the latency histogram.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return apiLatencySeconds
}

// APIErrors exposes the error counter.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return apiErrorsTotal
}

// SessionsActive exposes the live session gauge.
func SessionsActive() prometheus.Gauge {
	RegisterMetrics()
	return sessionsActive
}

// Submissions exposes the per-reason completion counter.
func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

// IntegrityWarnings exposes the warning counter.
func IntegrityWarnings() *prometheus.CounterVec {
	RegisterMetrics()
	return integrityWarnings
}

// IntegrityExpirations exposes the expired-countdown counter.
func IntegrityExpirations() *prometheus.CounterVec {
	RegisterMetrics()
	return integrityExpiredCv
}
