// Package domain holds domain primitives shared across bounded contexts:
// typed identifiers and the closed set of caller roles.
package domain

import (
	"github.com/google/uuid"

	dErrors "kycreview/pkg/domain-errors"
)

// Typed identifiers. They are distinct types so a document id can never be
// passed where a submission id is expected.
type (
	SubmissionID uuid.UUID
	DocumentID   uuid.UUID
	RequestID    uuid.UUID
	BlobID       uuid.UUID
)

func NewSubmissionID() SubmissionID { return SubmissionID(uuid.New()) }
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }
func NewRequestID() RequestID { return RequestID(uuid.New()) }
func NewBlobID() BlobID { return BlobID(uuid.New()) }

func ParseSubmissionID(s string) (SubmissionID, error) {
	u, err := parseUUID(s, "submission id")
	return SubmissionID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document id")
	return DocumentID(u), err
}

func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request id")
	return RequestID(u), err
}

func ParseBlobID(s string) (BlobID, error) {
	u, err := parseUUID(s, "blob id")
	return BlobID(u), err
}

// parseUUID enforces that identifiers crossing a trust boundary are
// well-formed and never the nil UUID.
func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, what+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+what)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+what)
	}
	return u, nil
}

func (id SubmissionID) String() string { return uuid.UUID(id).String() }
func (id SubmissionID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id RequestID) String() string { return uuid.UUID(id).String() }
func (id RequestID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id BlobID) String() string { return uuid.UUID(id).String() }
func (id BlobID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps identifiers as canonical UUID strings in JSON and
// in mirrored payloads.

func (id SubmissionID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *SubmissionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id DocumentID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *DocumentID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id RequestID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *RequestID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

func (id BlobID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id *BlobID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}
