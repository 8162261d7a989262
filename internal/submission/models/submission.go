package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

// Submission is the aggregate root for one KYC case.
//
// Invariants (checked by Validate, enforced by the store on every commit):
//   - Status.AwaitingBranch() iff PendingAmendments is non-empty
//   - terminal submissions carry no pending requests
//   - for each DocumentType, versions are exactly 1..n with no repeats
//   - every pending REPLACE_EXISTING request targets a document of this submission
//   - AmendmentReason/AmendmentRequestedAt mirror the latest pending request
//   - AmendmentHistory is append-only; entries are never rewritten
type Submission struct {
	ID                   domain.SubmissionID `json:"id"`
	CustomerName         string              `json:"customer_name"`
	Branch               string              `json:"branch"`
	Officer              string              `json:"officer,omitempty"`
	SubmittedAt          time.Time           `json:"submitted_at"`
	Status               Status              `json:"status"`
	Documents            []SubmittedDocument `json:"documents"`
	PendingAmendments    []AmendmentRequest  `json:"pending_amendments"`
	AmendmentHistory     []Amendment         `json:"amendment_history"`
	AmendmentReason      string              `json:"amendment_reason,omitempty"`
	AmendmentRequestedAt *time.Time          `json:"amendment_requested_at,omitempty"`
	// Revision increases by one on every committed change. Mirrors use it to
	// discard out-of-order updates.
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSubmission creates a submission in Pending with its initial documents.
func NewSubmission(id domain.SubmissionID, customerName, branch string, docs []SubmittedDocument, now time.Time) (*Submission, error) {
	customerName = strings.TrimSpace(customerName)
	branch = strings.TrimSpace(branch)
	if customerName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customer name is required")
	}
	if len(customerName) > 256 {
		return nil, dErrors.New(dErrors.CodeValidation, "customer name must be 256 characters or less")
	}
	if branch == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "branch is required")
	}
	if len(docs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one document is required")
	}
	s := &Submission{
		ID:                id,
		CustomerName:      customerName,
		Branch:            branch,
		SubmittedAt:       now,
		Status:            StatusPending,
		Documents:         slices.Clone(docs),
		PendingAmendments: []AmendmentRequest{},
		AmendmentHistory:  []Amendment{},
		UpdatedAt:         now,
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Clone returns a deep copy. Mutators always work on a clone so a failed
// mutation never leaks into the committed value.
func (s *Submission) Clone() *Submission {
	c := *s
	c.Documents = slices.Clone(s.Documents)
	c.PendingAmendments = make([]AmendmentRequest, len(s.PendingAmendments))
	for i, r := range s.PendingAmendments {
		if r.TargetDocumentID != nil {
			id := *r.TargetDocumentID
			r.TargetDocumentID = &id
		}
		c.PendingAmendments[i] = r
	}
	c.AmendmentHistory = make([]Amendment, len(s.AmendmentHistory))
	for i, a := range s.AmendmentHistory {
		a.Documents = slices.Clone(a.Documents)
		c.AmendmentHistory[i] = a
	}
	if s.AmendmentRequestedAt != nil {
		t := *s.AmendmentRequestedAt
		c.AmendmentRequestedAt = &t
	}
	return &c
}

func (s *Submission) Document(id domain.DocumentID) (SubmittedDocument, bool) {
	for _, d := range s.Documents {
		if d.ID == id {
			return d, true
		}
	}
	return SubmittedDocument{}, false
}

// PendingRequest returns the pending request with the given id.
func (s *Submission) PendingRequest(id domain.RequestID) (AmendmentRequest, bool) {
	for _, r := range s.PendingAmendments {
		if r.ID == id {
			return r, true
		}
	}
	return AmendmentRequest{}, false
}

// CanDecide checks that a reviewer decision (approve, reject, escalate) is legal.
func (s *Submission) CanDecide(ev Event) error {
	if ev != EventApprove && ev != EventReject && ev != EventEscalate {
		return dErrors.New(dErrors.CodeInvalidTransition, "not a review decision: "+string(ev))
	}
	_, err := s.Status.Next(ev)
	return err
}

// ApplyDecision moves the submission to the decided status.
// Call CanDecide first.
func (s *Submission) ApplyDecision(ev Event, now time.Time) {
	to, _ := s.Status.Next(ev)
	s.Status = to
	s.UpdatedAt = now
}

// CanAssign checks that an officer may be (re)assigned.
func (s *Submission) CanAssign(officer string) error {
	if s.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, "cannot assign an officer to a "+string(s.Status)+" submission")
	}
	if strings.TrimSpace(officer) == "" {
		return dErrors.New(dErrors.CodeValidation, "officer is required")
	}
	return nil
}

func (s *Submission) ApplyAssignment(officer string, now time.Time) {
	s.Officer = strings.TrimSpace(officer)
	s.UpdatedAt = now
}

// NewRequest builds a pending amendment request against this submission.
// It checks the request shape, the target document and that the current
// status admits a new request; it does not modify the submission.
func (s *Submission) NewRequest(spec RequestSpec, requestedBy string, now time.Time) (AmendmentRequest, error) {
	if _, err := s.Status.Next(EventRequestAmendment); err != nil {
		return AmendmentRequest{}, err
	}
	req := AmendmentRequest{
		ID:                 domain.NewRequestID(),
		Type:               spec.Type,
		TargetDocumentType: spec.TargetDocumentType,
		Comment:            strings.TrimSpace(spec.Comment),
		RequestedAt:        now,
		RequestedBy:        requestedBy,
		Status:             RequestPending,
	}
	if spec.TargetDocumentID != nil {
		target := *spec.TargetDocumentID
		req.TargetDocumentID = &target
	}
	if req.Type == RequestReplaceExisting && req.TargetDocumentID != nil {
		doc, ok := s.Document(*req.TargetDocumentID)
		if !ok {
			return AmendmentRequest{}, dErrors.New(dErrors.CodeValidation, "target document does not belong to this submission")
		}
		switch req.TargetDocumentType {
		case "":
			req.TargetDocumentType = doc.DocumentType
		case doc.DocumentType:
		default:
			return AmendmentRequest{}, dErrors.New(dErrors.CodeValidation, "target document type does not match the target document")
		}
	}
	if err := req.validateShape(); err != nil {
		return AmendmentRequest{}, err
	}
	return req, nil
}

// ApplyRequests appends new pending requests and moves the status.
// Requests must come from NewRequest on the same snapshot.
func (s *Submission) ApplyRequests(reqs []AmendmentRequest, now time.Time) error {
	if len(reqs) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one amendment request is required")
	}
	to, err := s.Status.Next(EventRequestAmendment)
	if err != nil {
		return err
	}
	s.PendingAmendments = append(s.PendingAmendments, reqs...)
	s.Status = to
	s.UpdatedAt = now
	s.syncAmendmentSummary()
	return nil
}

// CanResolve checks that requestID is still outstanding.
func (s *Submission) CanResolve(requestID domain.RequestID) error {
	if s.Status.IsTerminal() {
		return dErrors.New(dErrors.CodeInvalidTransition, "submission is "+string(s.Status))
	}
	if _, ok := s.PendingRequest(requestID); !ok {
		return dErrors.New(dErrors.CodeConflict, "amendment request "+requestID.String()+" is not pending")
	}
	return nil
}

// ApplyResolution folds each response into history: the request is stamped
// RESOLVED and leaves the pending set, its documents are appended and one Amendment is recorded per
// response. When nothing remains pending the submission is ready for review.
func (s *Submission) ApplyResolution(responses []Response, now time.Time) ([]Amendment, error) {
	if len(responses) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "nothing to resolve")
	}
	records := make([]Amendment, 0, len(responses))
	for _, resp := range responses {
		if err := s.CanResolve(resp.RequestID); err != nil {
			return nil, err
		}
		req, _ := s.PendingRequest(resp.RequestID)
		if req.Type.RequiresFiles() && len(resp.Documents) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "request "+req.ID.String()+" requires at least one file")
		}
		if err := req.markResolved(); err != nil {
			return nil, err
		}
		responseType := resp.Type
		if responseType == "" {
			responseType = req.Type.defaultResponseType()
		}
		record := Amendment{
			RequestID:       req.ID,
			RequestType:     req.Type,
			RequestStatus:   req.Status,
			RequestedAt:     req.RequestedAt,
			RequestedBy:     req.RequestedBy,
			Reason:          req.Comment,
			RespondedAt:     now,
			RespondedBy:     resp.RespondedBy,
			ResponseComment: resp.Comment,
			ResponseType:    responseType,
			Documents:       slices.Clone(resp.Documents),
		}
		if record.Documents == nil {
			record.Documents = []SubmittedDocument{}
		}
		s.PendingAmendments = slices.DeleteFunc(s.PendingAmendments, func(r AmendmentRequest) bool {
			return r.ID == req.ID
		})
		s.Documents = append(s.Documents, resp.Documents...)
		s.AmendmentHistory = append(s.AmendmentHistory, record)
		records = append(records, record)
	}
	if len(s.PendingAmendments) == 0 {
		to, err := s.Status.Next(EventAmendmentsResolved)
		if err != nil {
			return nil, err
		}
		s.Status = to
	}
	s.UpdatedAt = now
	s.syncAmendmentSummary()
	return records, nil
}

// syncAmendmentSummary derives the display fields from the latest pending request.
func (s *Submission) syncAmendmentSummary() {
	latest := latestPending(s.PendingAmendments)
	if latest == nil {
		s.AmendmentReason = ""
		s.AmendmentRequestedAt = nil
		return
	}
	at := latest.RequestedAt
	s.AmendmentReason = latest.Comment
	s.AmendmentRequestedAt = &at
}

func latestPending(reqs []AmendmentRequest) *AmendmentRequest {
	var latest *AmendmentRequest
	for i := range reqs {
		if latest == nil || !reqs[i].RequestedAt.Before(latest.RequestedAt) {
			latest = &reqs[i]
		}
	}
	return latest
}

// Validate checks every aggregate invariant. A failure is an engine bug, not
// bad input, so it is reported as CodeInvariantViolation.
func (s *Submission) Validate() error {
	violation := func(format string, args ...any) error {
		return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf(format, args...))
	}
	if s.ID.IsNil() {
		return violation("submission id is nil")
	}
	if _, ok := transitions[s.Status]; !ok {
		return violation("unknown status %q", s.Status)
	}
	if s.Status.AwaitingBranch() != (len(s.PendingAmendments) > 0) {
		return violation("status %s inconsistent with %d pending requests", s.Status, len(s.PendingAmendments))
	}

	docIDs := make(map[domain.DocumentID]bool, len(s.Documents))
	versions := make(map[DocumentType][]int)
	for _, d := range s.Documents {
		if docIDs[d.ID] {
			return violation("duplicate document id %s", d.ID)
		}
		docIDs[d.ID] = true
		if !d.DocumentType.IsValid() {
			return violation("unknown document type %q", d.DocumentType)
		}
		versions[d.DocumentType] = append(versions[d.DocumentType], d.Version)
	}
	for docType, vs := range versions {
		slices.Sort(vs)
		for i, v := range vs {
			if v != i+1 {
				return violation("%s versions are not contiguous from 1", docType)
			}
		}
	}

	reqIDs := make(map[domain.RequestID]bool, len(s.PendingAmendments))
	for i := range s.PendingAmendments {
		r := &s.PendingAmendments[i]
		if reqIDs[r.ID] {
			return violation("duplicate pending request %s", r.ID)
		}
		reqIDs[r.ID] = true
		if r.Status != RequestPending {
			return violation("request %s in pending set has status %s", r.ID, r.Status)
		}
		if err := r.validateShape(); err != nil {
			return violation("request %s: %s", r.ID, dErrors.Message(err))
		}
		if r.Type == RequestReplaceExisting && !docIDs[*r.TargetDocumentID] {
			return violation("request %s targets unknown document", r.ID)
		}
	}
	for _, a := range s.AmendmentHistory {
		if reqIDs[a.RequestID] {
			return violation("request %s is both pending and resolved", a.RequestID)
		}
		if a.RequestStatus != RequestResolved {
			return violation("history entry for request %s has status %s", a.RequestID, a.RequestStatus)
		}
	}

	latest := latestPending(s.PendingAmendments)
	switch {
	case latest == nil && (s.AmendmentReason != "" || s.AmendmentRequestedAt != nil):
		return violation("amendment summary set without pending requests")
	case latest != nil && (s.AmendmentReason != latest.Comment || s.AmendmentRequestedAt == nil ||
		!s.AmendmentRequestedAt.Equal(latest.RequestedAt)):
		return violation("amendment summary does not match latest pending request")
	}
	return nil
}
