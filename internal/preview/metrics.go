package preview

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	HandlesLive     prometheus.Gauge
	HandlesReleased prometheus.Counter
	SessionsSwept   prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		HandlesLive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "kycreview_preview_handles_live",
			Help: "Preview handles currently allocated",
		}),
		HandlesReleased: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_preview_handles_released_total",
			Help: "Preview handles revoked",
		}),
		SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_preview_sessions_swept_total",
			Help: "Idle preview sessions released by the janitor",
		}),
	}
}
