package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Commits       prometheus.Counter
	ApplyFailures *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Commits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_store_commits_total",
			Help: "Submission values committed to the store",
		}),
		ApplyFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycreview_store_apply_failures_total",
			Help: "Store mutations that were not committed, by reason",
		}, []string{"reason"}),
	}
}
