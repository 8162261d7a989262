package compliance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks   *prometheus.CounterVec
	Duration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Checks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycreview_compliance_checks_total",
			Help: "Compliance pre-screens by outcome",
		}, []string{"outcome"}),
		Duration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "kycreview_compliance_check_duration_seconds",
			Help:    "Latency of calls to the compliance service",
			Buckets: prometheus.DefBuckets,
		}),
	}
}
