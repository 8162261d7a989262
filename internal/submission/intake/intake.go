// Package intake turns caller-supplied files into committed blobs. Files go
// through a preview session first (where they are validated), then are
// uploaded in parallel. The session is released on every exit path.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"kycreview/internal/blobstore"
	"kycreview/internal/preview"
	"kycreview/internal/revision"
	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
)

// maxParallelUploads bounds concurrent calls to the blob backend per request.
const maxParallelUploads = 4

// BlobStore is the storage collaborator.
type BlobStore interface {
	Store(ctx context.Context, data []byte, meta blobstore.Metadata) (blobstore.Stored, error)
	Delete(ctx context.Context, url string) error
}

//go:generate mockgen -source=intake.go -destination=mocks/mocks.go -package=mocks BlobStore

// FileInput is one file offered by a caller. Either File carries the bytes
// inline, or Slot names a file already staged in the caller's preview session.
type FileInput struct {
	// RequestID ties the file to an amendment request in batch resolution.
	RequestID        *domain.RequestID
	DocumentType     models.DocumentType
	TargetDocumentID *domain.DocumentID
	Slot             string
	File             *preview.File
}

// Item is a file staged and ready for upload.
type Item struct {
	Input  FileInput
	Handle *preview.Handle
}

// Batch owns the preview session backing one submit or resolve call.
type Batch struct {
	Items   []Item
	session *preview.Session
	once    sync.Once
}

// Release revokes every handle of the batch's session. Safe to call more than once.
func (b *Batch) Release() {
	if b == nil {
		return
	}
	b.once.Do(func() {
		if b.session != nil {
			b.session.ReleaseAll()
		}
	})
}

func (b *Batch) SessionID() string {
	if b == nil || b.session == nil {
		return ""
	}
	return b.session.ID
}

type Intake struct {
	previews *preview.Manager
	blobs    BlobStore
	maxFiles int
	logger   *slog.Logger
}

func New(previews *preview.Manager, blobs BlobStore, maxFiles int, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{previews: previews, blobs: blobs, maxFiles: maxFiles, logger: logger}
}

// Prepare stages files into a preview session. When sessionID is empty a
// fresh session owned by owner is opened. The returned batch must be
// released by the caller even when Prepare fails partway.
func (in *Intake) Prepare(ctx context.Context, owner, sessionID string, files []FileInput) (*Batch, error) {
	if in.maxFiles > 0 && len(files) > in.maxFiles {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("at most %d files may be supplied at once", in.maxFiles))
	}
	for i, f := range files {
		if !f.DocumentType.IsValid() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file %d: unknown document type %q", i, f.DocumentType))
		}
		if f.File == nil && f.Slot == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file %d: no content and no staged slot", i))
		}
	}

	batch := &Batch{}
	if sessionID != "" {
		session, ok := in.previews.Session(sessionID)
		if !ok {
			return batch, dErrors.New(dErrors.CodeNotFound, "preview session not found")
		}
		if session.Owner != owner {
			return batch, dErrors.New(dErrors.CodeForbidden, "preview session belongs to another user")
		}
		batch.session = session
	} else {
		batch.session = in.previews.NewSession(owner)
	}

	batch.Items = make([]Item, 0, len(files))
	seen := make(map[string]bool, len(files))
	for i, f := range files {
		slot := f.Slot
		if slot == "" {
			slot = fmt.Sprintf("file-%d", i)
		}
		if seen[slot] {
			return batch, dErrors.New(dErrors.CodeValidation, "slot "+slot+" is used by more than one file")
		}
		seen[slot] = true
		var (
			h   *preview.Handle
			err error
		)
		if f.File != nil {
			h, err = batch.session.Stage(ctx, slot, *f.File)
			if err != nil {
				return batch, fmt.Errorf("file %d: %w", i, err)
			}
		} else {
			var ok bool
			h, ok = batch.session.Handle(slot)
			if !ok {
				return batch, dErrors.New(dErrors.CodeValidation, "nothing live staged in slot "+slot)
			}
		}
		batch.Items = append(batch.Items, Item{Input: f, Handle: h})
	}
	return batch, nil
}

// Upload stores every item of the batch. On failure, blobs that were stored
// are deleted and the whole call fails.
func (in *Intake) Upload(ctx context.Context, submissionID domain.SubmissionID, batch *Batch) ([]revision.StoredFile, error) {
	for _, item := range batch.Items {
		if !in.previews.IsLive(item.Handle) {
			return nil, dErrors.New(dErrors.CodeValidation, "staged file "+item.Handle.File.Name+" was released before upload")
		}
	}
	out := make([]revision.StoredFile, len(batch.Items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for i, item := range batch.Items {
		g.Go(func() error {
			f := item.Handle.File
			stored, err := in.blobs.Store(gctx, f.Data, blobstore.Metadata{
				SubmissionID: submissionID,
				DocumentType: string(item.Input.DocumentType),
				FileName:     f.Name,
				MediaType:    f.MediaType,
			})
			if err != nil {
				return fmt.Errorf("store %s: %w", f.Name, err)
			}
			out[i] = revision.StoredFile{
				DocumentType: item.Input.DocumentType,
				FileName:     f.Name,
				Size:         stored.Size,
				Format:       f.MediaType,
				URL:          stored.URL,
				Digest:       stored.Digest,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		in.Discard(ctx, out)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, dErrors.Wrap(ctxErr, dErrors.CodeCanceled, "upload cancelled")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "document storage unavailable")
	}
	return out, nil
}

// Discard deletes stored blobs that will not be committed. Failures are logged.
func (in *Intake) Discard(ctx context.Context, files []revision.StoredFile) {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, f := range files {
		if f.URL == "" {
			continue
		}
		if err := in.blobs.Delete(ctx, f.URL); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		in.logger.WarnContext(ctx, "failed to discard uncommitted blobs", "error", err)
	}
}
