package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func doc(docType DocumentType, version int) SubmittedDocument {
	return SubmittedDocument{
		ID:           domain.NewDocumentID(),
		DocumentType: docType,
		FileName:     string(docType) + ".pdf",
		Size:         1024,
		Format:       "application/pdf",
		UploadedAt:   t0,
		Version:      version,
		URL:          "blob://x",
	}
}

func newPending(t *testing.T, docs ...SubmittedDocument) *Submission {
	t.Helper()
	s, err := NewSubmission(domain.NewSubmissionID(), "Ada Obi", "riverside", docs, t0)
	require.NoError(t, err)
	return s
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		to   Status
		ok   bool
	}{
		{StatusPending, EventApprove, StatusApproved, true},
		{StatusPending, EventReject, StatusRejected, true},
		{StatusPending, EventEscalate, StatusEscalated, true},
		{StatusPending, EventRequestAmendment, StatusActionRequired, true},
		{StatusEscalated, EventApprove, StatusApproved, true},
		{StatusEscalated, EventReject, StatusRejected, true},
		{StatusEscalated, EventEscalate, "", false},
		{StatusEscalated, EventRequestAmendment, StatusActionRequired, true},
		{StatusAmendedPendingReview, EventEscalate, StatusEscalated, true},
		{StatusAmendedPendingReview, EventRequestAmendment, StatusActionRequired, true},
		{StatusActionRequired, EventApprove, "", false},
		{StatusActionRequired, EventAmendmentsResolved, StatusAmendedPendingReview, true},
		{StatusAmendment, EventRequestAmendment, StatusAmendment, true},
		{StatusAmendment, EventAmendmentsResolved, StatusAmendedPendingReview, true},
		{StatusPending, EventAmendmentsResolved, "", false},
		{StatusApproved, EventReject, "", false},
		{StatusApproved, EventRequestAmendment, "", false},
		{StatusRejected, EventApprove, "", false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"/"+string(tc.ev), func(t *testing.T) {
			to, err := tc.from.Next(tc.ev)
			if !tc.ok {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
				assert.True(t, dErrors.IsConflict(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.to, to)
		})
	}
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("amended_pending_review")
	require.NoError(t, err)
	assert.Equal(t, StatusAmendedPendingReview, st)

	_, err = ParseStatus("closed")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
}

func TestNewSubmission(t *testing.T) {
	t.Run("starts pending with empty amendment state", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		assert.Equal(t, StatusPending, s.Status)
		assert.Empty(t, s.PendingAmendments)
		assert.Empty(t, s.AmendmentHistory)
		assert.Nil(t, s.AmendmentRequestedAt)
	})

	t.Run("rejects missing fields", func(t *testing.T) {
		_, err := NewSubmission(domain.NewSubmissionID(), " ", "riverside", []SubmittedDocument{doc(DocumentIDCard, 1)}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = NewSubmission(domain.NewSubmissionID(), "Ada", "riverside", nil, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects version gaps", func(t *testing.T) {
		_, err := NewSubmission(domain.NewSubmissionID(), "Ada", "riverside",
			[]SubmittedDocument{doc(DocumentIDCard, 1), doc(DocumentIDCard, 3)}, t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

func TestNewRequest(t *testing.T) {
	idCard := doc(DocumentIDCard, 1)
	s := newPending(t, idCard)

	t.Run("replace fills target type from the target document", func(t *testing.T) {
		req, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentID: &idCard.ID, Comment: "expired"}, "officer-7", t0)
		require.NoError(t, err)
		assert.Equal(t, DocumentIDCard, req.TargetDocumentType)
		assert.Equal(t, RequestPending, req.Status)
	})

	t.Run("replace requires a target id", func(t *testing.T) {
		_, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentType: DocumentIDCard, Comment: "expired"}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("replace target must belong to the submission", func(t *testing.T) {
		other := domain.NewDocumentID()
		_, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentID: &other, Comment: "expired"}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("replace target type must agree", func(t *testing.T) {
		_, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentType: DocumentPassport, TargetDocumentID: &idCard.ID, Comment: "expired"}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("add new rejects a target id", func(t *testing.T) {
		_, err := s.NewRequest(RequestSpec{Type: RequestAddNew, TargetDocumentType: DocumentProofOfAddress, TargetDocumentID: &idCard.ID, Comment: "utility bill"}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("comment is required", func(t *testing.T) {
		_, err := s.NewRequest(RequestSpec{Type: RequestAddNew, TargetDocumentType: DocumentProofOfAddress, Comment: "  "}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("info request needs no target", func(t *testing.T) {
		req, err := s.NewRequest(RequestSpec{Type: RequestInfo, Comment: "explain the address mismatch"}, "officer-7", t0)
		require.NoError(t, err)
		assert.Empty(t, req.TargetDocumentType)
	})

	t.Run("terminal submissions refuse requests", func(t *testing.T) {
		approved := newPending(t, doc(DocumentIDCard, 1))
		approved.ApplyDecision(EventApprove, t0)
		_, err := approved.NewRequest(RequestSpec{Type: RequestInfo, Comment: "late question"}, "officer-7", t0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidTransition))
	})
}

func TestResolutionLifecycle(t *testing.T) {
	idCard := doc(DocumentIDCard, 1)
	s := newPending(t, idCard)

	first, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentID: &idCard.ID, Comment: "expired"}, "officer-7", t0)
	require.NoError(t, err)
	require.NoError(t, s.ApplyRequests([]AmendmentRequest{first}, t0))
	assert.Equal(t, StatusActionRequired, s.Status)
	assert.Equal(t, "expired", s.AmendmentReason)

	later := t0.Add(time.Minute)
	second, err := s.NewRequest(RequestSpec{Type: RequestAddNew, TargetDocumentType: DocumentProofOfAddress, Comment: "utility bill"}, "officer-7", later)
	require.NoError(t, err)
	require.NoError(t, s.ApplyRequests([]AmendmentRequest{second}, later))
	assert.Equal(t, StatusActionRequired, s.Status, "adding requests keeps the status")
	assert.Equal(t, "utility bill", s.AmendmentReason)
	require.NoError(t, s.Validate())

	replacement := doc(DocumentIDCard, 2)
	records, err := s.ApplyResolution([]Response{{RequestID: first.ID, Comment: "updated ID attached", RespondedBy: "branch-3", Documents: []SubmittedDocument{replacement}}}, later)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "expired", records[0].Reason)
	assert.Equal(t, "document_replaced", records[0].ResponseType)
	assert.Equal(t, RequestResolved, records[0].RequestStatus)
	assert.Equal(t, RequestPending, s.PendingAmendments[0].Status)
	assert.Equal(t, StatusActionRequired, s.Status, "one request still pending")
	assert.Len(t, s.PendingAmendments, 1)
	assert.Equal(t, "utility bill", s.AmendmentReason)
	require.NoError(t, s.Validate())

	_, err = s.ApplyResolution([]Response{{RequestID: first.ID, Comment: "again and again", Documents: []SubmittedDocument{doc(DocumentIDCard, 3)}}}, later)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.ApplyResolution([]Response{{RequestID: second.ID, Comment: "no file this time"}}, later)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.ApplyResolution([]Response{{RequestID: second.ID, Comment: "bill attached", Documents: []SubmittedDocument{doc(DocumentProofOfAddress, 1)}}}, later)
	require.NoError(t, err)
	assert.Equal(t, StatusAmendedPendingReview, s.Status)
	assert.Empty(t, s.AmendmentReason)
	assert.Nil(t, s.AmendmentRequestedAt)
	assert.Len(t, s.AmendmentHistory, 2)
	require.NoError(t, s.Validate())
}

func TestValidate_DetectsContradictions(t *testing.T) {
	t.Run("awaiting branch without pending requests", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		s.Status = StatusAmendment
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})

	t.Run("pending requests on a reviewable status", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		req, err := s.NewRequest(RequestSpec{Type: RequestInfo, Comment: "why?"}, "officer-7", t0)
		require.NoError(t, err)
		s.PendingAmendments = append(s.PendingAmendments, req)
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})

	t.Run("history entry not stamped resolved", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		s.AmendmentHistory = append(s.AmendmentHistory, Amendment{
			RequestID:     domain.NewRequestID(),
			RequestType:   RequestInfo,
			RequestStatus: RequestPending,
			Documents:     []SubmittedDocument{},
		})
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})

	t.Run("stale summary", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		s.AmendmentReason = "leftover"
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})

	t.Run("duplicate versions", func(t *testing.T) {
		s := newPending(t, doc(DocumentIDCard, 1))
		s.Documents = append(s.Documents, doc(DocumentIDCard, 1))
		assert.True(t, dErrors.HasCode(s.Validate(), dErrors.CodeInvariantViolation))
	})
}

func TestClone_IsDeep(t *testing.T) {
	idCard := doc(DocumentIDCard, 1)
	s := newPending(t, idCard)
	req, err := s.NewRequest(RequestSpec{Type: RequestReplaceExisting, TargetDocumentID: &idCard.ID, Comment: "expired"}, "officer-7", t0)
	require.NoError(t, err)
	require.NoError(t, s.ApplyRequests([]AmendmentRequest{req}, t0))

	c := s.Clone()
	c.Documents[0].FileName = "changed.pdf"
	*c.PendingAmendments[0].TargetDocumentID = domain.NewDocumentID()
	*c.AmendmentRequestedAt = t0.Add(time.Hour)

	assert.Equal(t, "id_card.pdf", s.Documents[0].FileName)
	assert.Equal(t, idCard.ID, *s.PendingAmendments[0].TargetDocumentID)
	assert.Equal(t, t0, *s.AmendmentRequestedAt)
}
