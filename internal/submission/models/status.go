package models

import dErrors "kycreview/pkg/domain-errors"

// Status is the lifecycle state of a submission.
type Status string

const (
	StatusPending Status = "pending"
	// StatusAmendment is the legacy spelling of ActionRequired. It is accepted
	// on read and behaves exactly like ActionRequired; the engine never writes it.
	StatusAmendment            Status = "amendment"
	StatusActionRequired       Status = "action_required"
	StatusAmendedPendingReview Status = "amended_pending_review"
	StatusEscalated            Status = "escalated"
	StatusApproved             Status = "approved"
	StatusRejected             Status = "rejected"
)

// ParseStatus constructs a Status from external input (list filters, mirrors).
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := transitions[st]; !ok {
		return "", dErrors.New(dErrors.CodeBadRequest, "unknown status: "+s)
	}
	return st, nil
}

func (s Status) String() string { return string(s) }

// IsTerminal reports whether no further activity is accepted.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// AwaitingBranch reports whether the submission has outstanding amendment
// requests. It is the status half of the pending/status coupling.
func (s Status) AwaitingBranch() bool {
	return s == StatusActionRequired || s == StatusAmendment
}

// Event is a workflow input that may change status.
type Event string

const (
	EventApprove          Event = "approve"
	EventReject           Event = "reject"
	EventEscalate         Event = "escalate"
	EventRequestAmendment Event = "request_amendment"
	// EventAmendmentsResolved fires when the last pending request is resolved.
	EventAmendmentsResolved Event = "amendments_resolved"
)

// transitions is the complete state machine. A state/event pair absent from
// the table is rejected. Requesting a further amendment while the branch
// still owes responses keeps the current status.
var transitions = map[Status]map[Event]Status{
	StatusPending: {
		EventApprove:          StatusApproved,
		EventReject:           StatusRejected,
		EventEscalate:         StatusEscalated,
		EventRequestAmendment: StatusActionRequired,
	},
	StatusEscalated: {
		EventApprove:          StatusApproved,
		EventReject:           StatusRejected,
		EventRequestAmendment: StatusActionRequired,
	},
	StatusAmendedPendingReview: {
		EventApprove:          StatusApproved,
		EventReject:           StatusRejected,
		EventEscalate:         StatusEscalated,
		EventRequestAmendment: StatusActionRequired,
	},
	StatusActionRequired: {
		EventRequestAmendment:   StatusActionRequired,
		EventAmendmentsResolved: StatusAmendedPendingReview,
	},
	StatusAmendment: {
		EventRequestAmendment:   StatusAmendment,
		EventAmendmentsResolved: StatusAmendedPendingReview,
	},
	StatusApproved: {},
	StatusRejected: {},
}

// Next returns the status reached from s on ev, or CodeInvalidTransition.
func (s Status) Next(ev Event) (Status, error) {
	to, ok := transitions[s][ev]
	if !ok {
		return "", dErrors.New(dErrors.CodeInvalidTransition, "cannot "+string(ev)+" a submission in status "+string(s))
	}
	return to, nil
}

// CanTransitionTo reports whether some event moves s to target.
func (s Status) CanTransitionTo(target Status) bool {
	for _, to := range transitions[s] {
		if to == target {
			return true
		}
	}
	return false
}
