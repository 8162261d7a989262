// Package blobstore keeps the bytes of submitted documents. Submissions refer
// to them only through the opaque URL returned by Store.
package blobstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

const urlScheme = "blob://"

// Metadata describes the bytes being stored.
type Metadata struct {
	SubmissionID domain.SubmissionID
	DocumentType string
	FileName     string
	MediaType    string
}

// Stored is the result of a successful Store.
type Stored struct {
	ID     domain.BlobID
	URL    string
	Digest string
	Size   int64
}

// Blob is a stored object read back by URL.
type Blob struct {
	Metadata
	Data   []byte
	Digest string
}

// Backend is what the memory and Postgres stores implement. Failures are
// returned as sentinel errors.
type Backend interface {
	Store(ctx context.Context, data []byte, meta Metadata) (Stored, error)
	Get(ctx context.Context, url string) (Blob, error)
	Delete(ctx context.Context, url string) error
}

// Digest returns the hex blake2b-256 of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func URL(id domain.BlobID) string {
	return urlScheme + id.String()
}

// ParseURL extracts the blob id from a URL produced by URL.
func ParseURL(url string) (domain.BlobID, error) {
	raw, ok := strings.CutPrefix(url, urlScheme)
	if !ok {
		return domain.BlobID{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("not a blob url: %q", url))
	}
	return domain.ParseBlobID(raw)
}
