package amendment

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Resolved        prometheus.Counter
	ResolveFailures *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	AuditFailures   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Resolved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_amendments_resolved_total",
			Help: "Amendment requests resolved by branches",
		}),
		ResolveFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycreview_resolve_failures_total",
			Help: "Failed resolve calls by error code",
		}, []string{"code"}),
		ResolveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycreview_resolve_duration_seconds",
			Help:    "Time to stage, upload and commit a resolution",
			Buckets: prometheus.DefBuckets,
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_amendment_audit_failures_total",
			Help: "Amendment audit events that could not be recorded after a commit",
		}),
	}
}
