package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Transitions         *prometheus.CounterVec
	SubmissionsCreated  prometheus.Counter
	AmendmentsRequested prometheus.Counter
	AuditFailures       prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Transitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kycreview_transitions_total",
			Help: "Committed submission status transitions",
		}, []string{"event", "to"}),
		SubmissionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_submissions_created_total",
			Help: "Submissions created by branches",
		}),
		AmendmentsRequested: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_amendments_requested_total",
			Help: "Amendment requests opened by reviewers",
		}),
		AuditFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "kycreview_workflow_audit_failures_total",
			Help: "Audit events that could not be recorded after a commit",
		}),
	}
}
