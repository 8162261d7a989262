package models

import (
	"strings"
	"time"

	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

// RequestType says what a branch must supply to resolve a request.
type RequestType string

const (
	RequestAddNew          RequestType = "ADD_NEW"
	RequestReplaceExisting RequestType = "REPLACE_EXISTING"
	// RequestInfo asks for an explanation only and may be resolved with a comment.
	RequestInfo RequestType = "REQUEST_INFO"
)

func ParseRequestType(s string) (RequestType, error) {
	t := RequestType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case RequestAddNew, RequestReplaceExisting, RequestInfo:
		return t, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown amendment request type: "+s)
}

// RequiresFiles reports whether resolution must supply at least one file.
func (t RequestType) RequiresFiles() bool {
	return t == RequestAddNew || t == RequestReplaceExisting
}

// defaultResponseType classifies a response when the branch gives none.
func (t RequestType) defaultResponseType() string {
	switch t {
	case RequestAddNew:
		return "document_added"
	case RequestReplaceExisting:
		return "document_replaced"
	default:
		return "information_provided"
	}
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestResolved RequestStatus = "RESOLVED"
)

// RequestSpec is the reviewer's input for one amendment request.
type RequestSpec struct {
	Type               RequestType
	TargetDocumentType DocumentType
	TargetDocumentID   *domain.DocumentID
	Comment            string
}

// AmendmentRequest is an outstanding ask from a reviewer to a branch.
//
// Invariants:
//   - TargetDocumentID is set iff Type is REPLACE_EXISTING
//   - TargetDocumentType is set for ADD_NEW and REPLACE_EXISTING
//   - Comment is non-empty
//   - Status moves PENDING -> RESOLVED exactly once
type AmendmentRequest struct {
	ID                 domain.RequestID   `json:"id"`
	Type               RequestType        `json:"type"`
	TargetDocumentType DocumentType       `json:"target_document_type,omitempty"`
	TargetDocumentID   *domain.DocumentID `json:"target_document_id,omitempty"`
	Comment            string             `json:"comment"`
	RequestedAt        time.Time          `json:"requested_at"`
	RequestedBy        string             `json:"requested_by"`
	Status             RequestStatus      `json:"status"`
}

// validateShape checks the invariants that do not depend on the submission.
func (r *AmendmentRequest) validateShape() error {
	switch r.Type {
	case RequestReplaceExisting:
		if r.TargetDocumentID == nil || r.TargetDocumentID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, "target document id is required to replace a document")
		}
	case RequestAddNew, RequestInfo:
		if r.TargetDocumentID != nil {
			return dErrors.New(dErrors.CodeValidation, "target document id is only allowed when replacing a document")
		}
	default:
		return dErrors.New(dErrors.CodeValidation, "unknown amendment request type")
	}
	if r.Type.RequiresFiles() && !r.TargetDocumentType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "a valid target document type is required")
	}
	if r.Type == RequestInfo && r.TargetDocumentType != "" && !r.TargetDocumentType.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown target document type")
	}
	if strings.TrimSpace(r.Comment) == "" {
		return dErrors.New(dErrors.CodeValidation, "amendment comment is required")
	}
	return nil
}

// markResolved moves a pending request to RESOLVED.
func (r *AmendmentRequest) markResolved() error {
	if r.Status != RequestPending {
		return dErrors.New(dErrors.CodeConflict, "amendment request "+r.ID.String()+" is "+string(r.Status))
	}
	r.Status = RequestResolved
	return nil
}

// Accepts reports whether a file of docType addressed at targetID (optional)
// answers this request.
func (r *AmendmentRequest) Accepts(docType DocumentType, targetID *domain.DocumentID) bool {
	if !r.Type.RequiresFiles() {
		return false
	}
	if docType != r.TargetDocumentType {
		return false
	}
	if targetID != nil && r.TargetDocumentID != nil && *targetID != *r.TargetDocumentID {
		return false
	}
	if targetID != nil && r.Type == RequestAddNew {
		return false
	}
	return true
}

// Amendment is an immutable record of one resolved request-response cycle.
type Amendment struct {
	RequestID       domain.RequestID    `json:"request_id"`
	RequestType     RequestType         `json:"request_type"`
	RequestStatus   RequestStatus       `json:"request_status"`
	RequestedAt     time.Time           `json:"requested_at"`
	RequestedBy     string              `json:"requested_by"`
	Reason          string              `json:"reason"`
	RespondedAt     time.Time           `json:"responded_at"`
	RespondedBy     string              `json:"responded_by"`
	ResponseComment string              `json:"response_comment"`
	ResponseType    string              `json:"response_type"`
	Documents       []SubmittedDocument `json:"documents"`
}

// Response is the branch's answer to one pending request, with documents
// already materialized by the revision tracker.
type Response struct {
	RequestID   domain.RequestID
	Comment     string
	Type        string
	RespondedBy string
	Documents   []SubmittedDocument
}
