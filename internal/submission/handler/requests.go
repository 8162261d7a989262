package handler

import (
	"strings"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

const (
	maxReasonLength  = 2000
	maxOfficerLength = 128
	maxRequestsBatch = 20
)

// DecisionRequest is the body of approve, reject and escalate.
type DecisionRequest struct {
	Reason string `json:"reason"`
}

func (r *DecisionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Reason = strings.TrimSpace(r.Reason)
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason is too long")
	}
	return nil
}

// AssignRequest names the officer. Empty assigns the caller.
type AssignRequest struct {
	Officer string `json:"officer"`
}

func (r *AssignRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Officer = strings.TrimSpace(r.Officer)
	if len(r.Officer) > maxOfficerLength {
		return dErrors.New(dErrors.CodeValidation, "officer must be at most 128 characters")
	}
	return nil
}

// AmendmentSpec is one amendment request as sent by a reviewer.
type AmendmentSpec struct {
	Type               string `json:"type"`
	TargetDocumentType string `json:"target_document_type"`
	TargetDocumentID   string `json:"target_document_id"`
	Comment            string `json:"comment"`
}

func (s AmendmentSpec) parse() (models.RequestSpec, error) {
	t, err := models.ParseRequestType(s.Type)
	if err != nil {
		return models.RequestSpec{}, err
	}
	spec := models.RequestSpec{Type: t, Comment: strings.TrimSpace(s.Comment)}
	if raw := strings.TrimSpace(s.TargetDocumentType); raw != "" {
		dt, err := models.ParseDocumentType(raw)
		if err != nil {
			return models.RequestSpec{}, err
		}
		spec.TargetDocumentType = dt
	}
	if raw := strings.TrimSpace(s.TargetDocumentID); raw != "" {
		id, err := domain.ParseDocumentID(raw)
		if err != nil {
			return models.RequestSpec{}, err
		}
		spec.TargetDocumentID = &id
	}
	if len(spec.Comment) > maxReasonLength {
		return models.RequestSpec{}, dErrors.New(dErrors.CodeValidation, "comment is too long")
	}
	return spec, nil
}

// AmendmentsRequest carries either a single inline request or a list.
type AmendmentsRequest struct {
	AmendmentSpec
	Requests []AmendmentSpec `json:"requests"`

	specs []models.RequestSpec
}

func (r *AmendmentsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	raw := r.Requests
	if len(raw) == 0 {
		raw = []AmendmentSpec{r.AmendmentSpec}
	} else if r.AmendmentSpec != (AmendmentSpec{}) {
		return dErrors.New(dErrors.CodeBadRequest, "send either a single request or a requests list")
	}
	if len(raw) > maxRequestsBatch {
		return dErrors.New(dErrors.CodeValidation, "too many amendment requests in one call")
	}
	r.specs = make([]models.RequestSpec, 0, len(raw))
	for _, s := range raw {
		spec, err := s.parse()
		if err != nil {
			return err
		}
		r.specs = append(r.specs, spec)
	}
	return nil
}

// Specs returns the parsed requests.
func (r *AmendmentsRequest) Specs() []models.RequestSpec {
	return r.specs
}

// ComplianceRequest is the text to pre-screen.
type ComplianceRequest struct {
	DocumentText         string `json:"document_text"`
	RegulatoryGuidelines string `json:"regulatory_guidelines"`
}

func (r *ComplianceRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if strings.TrimSpace(r.DocumentText) == "" {
		return dErrors.New(dErrors.CodeValidation, "document_text is required")
	}
	return nil
}

// FileRef describes one file of an upload. Part names the multipart field
// holding the bytes; Slot names a file staged in a preview session.
type FileRef struct {
	Part             string `json:"part"`
	Slot             string `json:"slot"`
	DocumentType     string `json:"document_type"`
	TargetDocumentID string `json:"target_document_id"`
	RequestID        string `json:"request_id"`
}

// UploadRequest is the JSON form of a submit or resolve call whose files
// are all staged in a preview session.
type UploadRequest struct {
	CustomerName   string    `json:"customer_name"`
	Branch         string    `json:"branch"`
	Comment        string    `json:"comment"`
	ResponseType   string    `json:"response_type"`
	PreviewSession string    `json:"preview_session"`
	Files          []FileRef `json:"files"`
	InfoRequests   []string  `json:"info_requests"`
}

func (r *UploadRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	for _, f := range r.Files {
		if f.Part != "" {
			return dErrors.New(dErrors.CodeBadRequest, "file parts require a multipart request")
		}
	}
	return nil
}
