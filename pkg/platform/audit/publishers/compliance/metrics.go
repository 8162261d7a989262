package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the compliance audit publisher.
type Metrics struct {
	EventsEmitted   prometheus.Counter
	PersistFailures prometheus.Counter
	PersistDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		EventsEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_audit_compliance_events_total",
			Help: "Compliance audit events persisted",
		}),
		PersistFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_audit_compliance_persist_failures_total",
			Help: "Compliance audit events that failed to persist",
		}),
		PersistDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycreview_audit_compliance_persist_duration_seconds",
			Help:    "Time to persist a compliance audit event",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5},
		}),
	}
}

func (m *Metrics) IncPersistFailures() { m.PersistFailures.Inc() }
func (m *Metrics) IncEventsEmitted() { m.EventsEmitted.Inc() }
func (m *Metrics) ObservePersistDuration(s float64) { m.PersistDuration.Observe(s) }
