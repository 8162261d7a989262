package models

import (
	"time"

	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

// DocumentType is the closed set of KYC document categories.
type DocumentType string

const (
	DocumentIDCard               DocumentType = "id_card"
	DocumentPassport             DocumentType = "passport"
	DocumentProofOfAddress       DocumentType = "proof_of_address"
	DocumentSignatureCard        DocumentType = "signature_card"
	DocumentBusinessRegistration DocumentType = "business_registration"
	DocumentSupporting           DocumentType = "supporting_document"
)

var validDocumentTypes = map[DocumentType]bool{
	DocumentIDCard:               true,
	DocumentPassport:             true,
	DocumentProofOfAddress:       true,
	DocumentSignatureCard:        true,
	DocumentBusinessRegistration: true,
	DocumentSupporting:           true,
}

// ParseDocumentType validates a document type at a trust boundary.
// Unknown types are a validation failure of the caller's input.
func ParseDocumentType(s string) (DocumentType, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeValidation, "document type is required")
	}
	t := DocumentType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown document type: "+s)
	}
	return t, nil
}

func (t DocumentType) IsValid() bool { return validDocumentTypes[t] }
func (t DocumentType) String() string { return string(t) }

// SubmittedDocument is one concrete, committed file version. Values are
// immutable once part of a submission.
type SubmittedDocument struct {
	ID           domain.DocumentID `json:"id"`
	DocumentType DocumentType      `json:"document_type"`
	FileName     string            `json:"file_name"`
	Size         int64             `json:"size"`
	Format       string            `json:"format"`
	UploadedAt   time.Time         `json:"uploaded_at"`
	Version      int               `json:"version"`
	URL          string            `json:"url"`
	// Digest is the hex blake2b-256 of the stored bytes.
	Digest string `json:"digest,omitempty"`
}
