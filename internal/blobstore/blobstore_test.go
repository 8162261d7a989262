package blobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	data := []byte("%PDF-1.7 statement")

	stored, err := store.Store(ctx, data, Metadata{FileName: "statement.pdf", MediaType: "application/pdf", DocumentType: "proof_of_address"})
	require.NoError(t, err)
	assert.Equal(t, "blob://"+stored.ID.String(), stored.URL)
	assert.Equal(t, Digest(data), stored.Digest)
	assert.Len(t, stored.Digest, 64)
	assert.Equal(t, int64(len(data)), stored.Size)

	t.Run("get returns a copy", func(t *testing.T) {
		b, err := store.Get(ctx, stored.URL)
		require.NoError(t, err)
		assert.Equal(t, "statement.pdf", b.FileName)
		b.Data[0] = 'X'

		again, err := store.Get(ctx, stored.URL)
		require.NoError(t, err)
		assert.Equal(t, data, again.Data)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, stored.URL))
		require.NoError(t, store.Delete(ctx, stored.URL))
		_, err := store.Get(ctx, stored.URL)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("cancelled context stores nothing", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.Store(cctx, data, Metadata{})
		assert.Error(t, err)
		assert.Equal(t, 0, store.Len())
	})
}

func TestParseURL(t *testing.T) {
	id := domain.NewBlobID()
	got, err := ParseURL(URL(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseURL("s3://bucket/key")
	assert.Error(t, err)
	_, err = ParseURL("blob://nope")
	assert.Error(t, err)
}
