package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Published *prometheus.CounterVec
	Failed    prometheus.Counter
	Dropped   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycreview_events_published_total",
			Help: "Lifecycle events acknowledged by the broker, by kind",
		}, []string{"kind"}),
		Failed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_events_failed_total",
			Help: "Lifecycle events abandoned after retries",
		}),
		Dropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_events_dropped_total",
			Help: "Lifecycle events dropped because the relay buffer was full",
		}),
	}
}
