// Package revision computes document versions and materializes committed
// document records. It never mutates a submission.
package revision

import (
	"time"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
)

// StoredFile is a file whose bytes the storage collaborator has accepted.
type StoredFile struct {
	DocumentType models.DocumentType
	FileName     string
	Size         int64
	Format       string
	URL          string
	Digest       string
}

// Tracker materializes SubmittedDocuments.
type Tracker struct {
	newID func() domain.DocumentID
}

type Option func(*Tracker)

// WithIDGenerator overrides document id generation (tests).
func WithIDGenerator(fn func() domain.DocumentID) Option {
	return func(t *Tracker) {
		t.newID = fn
	}
}

func New(opts ...Option) *Tracker {
	t := &Tracker{newID: domain.NewDocumentID}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NextVersion returns 1 + the highest version of docType among existing, or 1.
// Numbering is scoped to the document type, so a replacement and a repeated
// ADD_NEW of the same type follow the same sequence.
func NextVersion(existing []models.SubmittedDocument, docType models.DocumentType) int {
	highest := 0
	for _, d := range existing {
		if d.DocumentType == docType && d.Version > highest {
			highest = d.Version
		}
	}
	return highest + 1
}

// Materialize turns stored files into documents versioned after existing.
// Several files of one type in the same call receive consecutive versions in
// the order given.
func (t *Tracker) Materialize(existing []models.SubmittedDocument, files []StoredFile, now time.Time) []models.SubmittedDocument {
	next := make(map[models.DocumentType]int)
	out := make([]models.SubmittedDocument, 0, len(files))
	for _, f := range files {
		v, ok := next[f.DocumentType]
		if !ok {
			v = NextVersion(existing, f.DocumentType)
		}
		next[f.DocumentType] = v + 1
		out = append(out, models.SubmittedDocument{
			ID:           t.newID(),
			DocumentType: f.DocumentType,
			FileName:     f.FileName,
			Size:         f.Size,
			Format:       f.Format,
			UploadedAt:   now,
			Version:      v,
			URL:          f.URL,
			Digest:       f.Digest,
		})
	}
	return out
}
