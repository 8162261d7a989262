//go:build integration

package blobstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"kycreview/internal/blobstore"
	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
	"kycreview/pkg/testutil/containers"
)

type PostgresBlobSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *blobstore.PostgresStore
}

func TestPostgresBlobSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresBlobSuite))
}

func (s *PostgresBlobSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = blobstore.NewPostgresStore(s.postgres.Pool)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresBlobSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "kyc_document_blobs"))
}

func (s *PostgresBlobSuite) TestStoreGetDelete() {
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 1, 2, 3}
	sid := domain.NewSubmissionID()

	stored, err := s.store.Store(ctx, data, blobstore.Metadata{
		SubmissionID: sid,
		DocumentType: "id_card",
		FileName:     "front.png",
		MediaType:    "image/png",
	})
	s.Require().NoError(err)

	b, err := s.store.Get(ctx, stored.URL)
	s.Require().NoError(err)
	s.Equal(data, b.Data)
	s.Equal(sid, b.SubmissionID)
	s.Equal(blobstore.Digest(data), b.Digest)

	s.Require().NoError(s.store.Delete(ctx, stored.URL))
	_, err = s.store.Get(ctx, stored.URL)
	s.ErrorIs(err, sentinel.ErrNotFound)
}
