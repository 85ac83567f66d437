package browser

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "uicheck"

// Metrics holds session and interaction collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	sessionsActive    prometheus.Gauge
	sessionsStarted   prometheus.Counter
	initFailures      *prometheus.CounterVec
	teardownFailures  *prometheus.CounterVec
	provisionDuration prometheus.Histogram
	captures          *prometheus.CounterVec
	clickAttempts     prometheus.Histogram
	clicks            *prometheus.CounterVec
	navigations       *prometheus.CounterVec
	navigationLatency prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of workers holding a ready browser session.",
		}),
		sessionsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_started_total",
			Help:      "Browser sessions provisioned successfully.",
		}),
		initFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "session_init_failures_total",
			Help:      "Session provisioning failures by stage.",
		}, []string{"stage"}),
		teardownFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "teardown_failures_total",
			Help:      "Teardown stage failures by stage.",
		}, []string{"stage"}),
		provisionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "session_provision_seconds",
			Help:      "Time to launch the engine, open a context and the primary page.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "captures_total",
			Help:      "Diagnostic captures by kind and result.",
		}, []string{"kind", "result"}),
		clickAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "click_attempts",
			Help:      "Attempts used per retrying click.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		clicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "clicks_total",
			Help:      "Retrying clicks by result.",
		}, []string{"result"}),
		navigations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "navigations_total",
			Help:      "Navigations by result.",
		}, []string{"result"}),
		navigationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "navigation_seconds",
			Help:      "Time from navigation start to the settle signal.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func (m *Metrics) recordSessionStarted(d time.Duration) {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
	m.sessionsActive.Inc()
	m.provisionDuration.Observe(d.Seconds())
}

func (m *Metrics) recordSessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

func (m *Metrics) recordInitFailure(stage Stage) {
	if m == nil {
		return
	}
	m.initFailures.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) recordTeardownFailure(stage Stage) {
	if m == nil {
		return
	}
	m.teardownFailures.WithLabelValues(string(stage)).Inc()
}

// RecordCapture counts a diagnostic capture attempt.
func (m *Metrics) RecordCapture(kind string, ok bool) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(kind, outcome(ok)).Inc()
}

// RecordClick counts a retrying click and the attempts it used.
func (m *Metrics) RecordClick(attempts int, ok bool) {
	if m == nil {
		return
	}
	m.clickAttempts.Observe(float64(attempts))
	m.clicks.WithLabelValues(outcome(ok)).Inc()
}

// RecordNavigation counts a navigation and its settle latency.
func (m *Metrics) RecordNavigation(d time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(outcome(ok)).Inc()
	if ok {
		m.navigationLatency.Observe(d.Seconds())
	}
}
