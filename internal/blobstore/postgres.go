package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
)

const blobSchema = `
CREATE TABLE IF NOT EXISTS kyc_document_blobs (
	id            UUID PRIMARY KEY,
	submission_id UUID,
	document_type TEXT NOT NULL,
	file_name     TEXT NOT NULL,
	media_type    TEXT NOT NULL,
	size          BIGINT NOT NULL,
	digest        TEXT NOT NULL,
	data          BYTEA NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore keeps blobs in a Postgres table through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, blobSchema); err != nil {
		return fmt.Errorf("create kyc_document_blobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Store(ctx context.Context, data []byte, meta Metadata) (Stored, error) {
	id := domain.NewBlobID()
	digest := Digest(data)
	var submissionID any
	if !meta.SubmissionID.IsNil() {
		submissionID = meta.SubmissionID.String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kyc_document_blobs (id, submission_id, document_type, file_name, media_type, size, digest, data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, id.String(), submissionID, meta.DocumentType, meta.FileName, meta.MediaType, len(data), digest, data, time.Now().UTC())
	if err != nil {
		return Stored{}, fmt.Errorf("store blob: %w: %w", sentinel.ErrUnavailable, err)
	}
	return Stored{ID: id, URL: URL(id), Digest: digest, Size: int64(len(data))}, nil
}

func (s *PostgresStore) Get(ctx context.Context, url string) (Blob, error) {
	id, err := ParseURL(url)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	}
	var (
		b            Blob
		submissionID *string
	)
	err = s.pool.QueryRow(ctx, `
		SELECT submission_id::text, document_type, file_name, media_type, digest, data
		FROM kyc_document_blobs WHERE id = $1
	`, id.String()).Scan(&submissionID, &b.DocumentType, &b.FileName, &b.MediaType, &b.Digest, &b.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Blob{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Blob{}, fmt.Errorf("get blob: %w: %w", sentinel.ErrUnavailable, err)
	}
	if submissionID != nil {
		if sid, err := domain.ParseSubmissionID(*submissionID); err == nil {
			b.SubmissionID = sid
		}
	}
	return b, nil
}

func (s *PostgresStore) Delete(ctx context.Context, url string) error {
	id, err := ParseURL(url)
	if err != nil {
		return nil
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM kyc_document_blobs WHERE id = $1`, id.String()); err != nil {
		return fmt.Errorf("delete blob: %w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}
