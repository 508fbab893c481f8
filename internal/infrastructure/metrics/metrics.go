package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the verification workflow.
type Metrics struct {
	EvaluatorDecisions *prometheus.CounterVec
	SessionOutcomes    *prometheus.CounterVec
	SessionDuration    prometheus.Histogram
	StoreReadFailures  prometheus.Counter
	ActiveSessions     prometheus.Gauge
	NotifyFailures     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluatorDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_evaluator_decisions_total",
			Help: "Trust rule evaluator results by decision.",
		}, []string{"decision"}),
		SessionOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_session_outcomes_total",
			Help: "Finished reconciliation sessions by outcome and final status.",
		}, []string{"outcome", "status"}),
		SessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verification_session_duration_seconds",
			Help:    "Wall time from session start to decision.",
			Buckets: []float64{0.1, 1, 5, 15, 30, 60, 90, 120, 180},
		}),
		StoreReadFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "verification_store_read_failures_total",
			Help: "Poll ticks skipped because every read attempt failed.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "verification_sessions_active",
			Help: "Reconciliation sessions currently waiting.",
		}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_notify_failures_total",
			Help: "Notification deliveries that failed, by channel.",
		}, []string{"channel"}),
	}
	reg.MustRegister(
		m.EvaluatorDecisions,
		m.SessionOutcomes,
		m.SessionDuration,
		m.StoreReadFailures,
		m.ActiveSessions,
		m.NotifyFailures,
	)
	return m
}

func (m *Metrics) ObserveDecision(decision string) {
	m.EvaluatorDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveSession(outcome, status string, elapsed time.Duration) {
	m.SessionOutcomes.WithLabelValues(outcome, status).Inc()
	m.SessionDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) IncStoreReadFailure() { m.StoreReadFailures.Inc() }

func (m *Metrics) SessionStarted()  { m.ActiveSessions.Inc() }
func (m *Metrics) SessionFinished() { m.ActiveSessions.Dec() }

func (m *Metrics) IncNotifyFailure(channel string) {
	m.NotifyFailures.WithLabelValues(channel).Inc()
}
