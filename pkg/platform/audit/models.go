package audit

import (
	"context"
	"time"

	"kycreview/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose.
// This enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with regulatory significance: every
	// disposition and every amendment cycle of a KYC case.
	CategoryCompliance EventCategory = "compliance"

	// CategoryOperations covers events useful for operational visibility.
	// These can be dropped under back-pressure.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category     EventCategory
	Timestamp    time.Time
	SubmissionID domain.SubmissionID
	Subject      string
	Action       string
	Decision     string
	Reason       string
	RequestID    string
	// ActorID is the officer, supervisor or branch user who performed the action.
	ActorID string
	Role    string
}

type AuditEvent string

const (
	EventSubmissionCreated   AuditEvent = "submission_created"
	EventOfficerAssigned     AuditEvent = "officer_assigned"
	EventSubmissionApproved  AuditEvent = "submission_approved"
	EventSubmissionRejected  AuditEvent = "submission_rejected"
	EventSubmissionEscalated AuditEvent = "submission_escalated"
	EventAmendmentRequested  AuditEvent = "amendment_requested"
	EventAmendmentResolved   AuditEvent = "amendment_resolved"
	EventComplianceChecked   AuditEvent = "compliance_checked"
	EventPreviewSessionSwept AuditEvent = "preview_session_swept"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventSubmissionCreated:   CategoryCompliance,
	EventSubmissionApproved:  CategoryCompliance,
	EventSubmissionRejected:  CategoryCompliance,
	EventSubmissionEscalated: CategoryCompliance,
	EventAmendmentRequested:  CategoryCompliance,
	EventAmendmentResolved:   CategoryCompliance,

	EventOfficerAssigned:     CategoryOperations,
	EventComplianceChecked:   CategoryOperations,
	EventPreviewSessionSwept: CategoryOperations,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubmission(ctx context.Context, id domain.SubmissionID) ([]Event, error)
}
