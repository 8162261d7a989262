package events

import (
	"time"

	"github.com/oklog/ulid/v2"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
)

// Kind names what a committed change did to a submission.
type Kind string

const (
	KindCreated             Kind = "submission.created"
	KindAssigned            Kind = "submission.assigned"
	KindStatusChanged       Kind = "submission.status_changed"
	KindAmendmentsRequested Kind = "amendment.requested"
	KindAmendmentsResolved  Kind = "amendment.resolved"
	KindUpdated             Kind = "submission.updated"
)

// Event is the wire form of one committed change. Consumers key on
// SubmissionID and order by Revision.
type Event struct {
	ID                string              `json:"id"`
	Kind              Kind                `json:"kind"`
	SubmissionID      domain.SubmissionID `json:"submission_id"`
	Revision          int64               `json:"revision"`
	Branch            string              `json:"branch"`
	Officer           string              `json:"officer,omitempty"`
	From              models.Status       `json:"from,omitempty"`
	To                models.Status       `json:"to"`
	PendingAmendments int                 `json:"pending_amendments"`
	Documents         int                 `json:"documents"`
	Resolved          []domain.RequestID  `json:"resolved,omitempty"`
	OccurredAt        time.Time           `json:"occurred_at"`
}

// FromChange classifies a change. A single commit can both resolve requests
// and move the status; the more specific kind wins.
func FromChange(prev, cur *models.Submission) Event {
	ev := Event{
		ID:                ulid.Make().String(),
		SubmissionID:      cur.ID,
		Revision:          cur.Revision,
		Branch:            cur.Branch,
		Officer:           cur.Officer,
		To:                cur.Status,
		PendingAmendments: len(cur.PendingAmendments),
		Documents:         len(cur.Documents),
		OccurredAt:        cur.UpdatedAt,
	}
	if prev == nil {
		ev.Kind = KindCreated
		return ev
	}
	ev.From = prev.Status
	switch {
	case len(cur.AmendmentHistory) > len(prev.AmendmentHistory):
		ev.Kind = KindAmendmentsResolved
		for _, rec := range cur.AmendmentHistory[len(prev.AmendmentHistory):] {
			ev.Resolved = append(ev.Resolved, rec.RequestID)
		}
	case len(cur.PendingAmendments) > len(prev.PendingAmendments):
		ev.Kind = KindAmendmentsRequested
	case cur.Status != prev.Status:
		ev.Kind = KindStatusChanged
	case cur.Officer != prev.Officer:
		ev.Kind = KindAssigned
	default:
		ev.Kind = KindUpdated
	}
	return ev
}
