package handler

import (
	"context"
	"time"

	"kycreview/internal/compliance"
	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	"kycreview/pkg/requestcontext"
)

// SubmissionResponse is a submission plus what the caller may do next.
type SubmissionResponse struct {
	*models.Submission
	Actions []string `json:"actions"`
}

func toSubmissionResponse(ctx context.Context, s *models.Submission) *SubmissionResponse {
	actions := Actions(requestcontext.Role(ctx), s)
	if actions == nil {
		actions = []string{}
	}
	return &SubmissionResponse{Submission: s, Actions: actions}
}

type ListResponse struct {
	Submissions []*SubmissionResponse `json:"submissions"`
	Count       int                   `json:"count"`
}

type RequestsResponse struct {
	Requests []models.AmendmentRequest `json:"requests"`
}

type ResolveResponse struct {
	Amendments []models.Amendment `json:"amendments"`
}

type ComplianceResponse struct {
	SubmissionID domain.SubmissionID `json:"submission_id"`
	compliance.Result
	Advisory bool `json:"advisory"`
}

type SessionResponse struct {
	SessionID string           `json:"session_id"`
	Staged    []HandleResponse `json:"staged"`
}

// HandleResponse describes a staged file. URLs are valid until the handle
// is released.
type HandleResponse struct {
	HandleID     string    `json:"handle_id"`
	Slot         string    `json:"slot"`
	FileName     string    `json:"file_name"`
	MediaType    string    `json:"media_type"`
	Size         int64     `json:"size"`
	PreviewURL   string    `json:"preview_url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
