package blobstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
)

// MemoryStore keeps blobs in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[domain.BlobID]Blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[domain.BlobID]Blob)}
}

func (s *MemoryStore) Store(ctx context.Context, data []byte, meta Metadata) (Stored, error) {
	if err := ctx.Err(); err != nil {
		return Stored{}, err
	}
	id := domain.NewBlobID()
	digest := Digest(data)

	s.mu.Lock()
	s.blobs[id] = Blob{Metadata: meta, Data: slices.Clone(data), Digest: digest}
	s.mu.Unlock()

	return Stored{ID: id, URL: URL(id), Digest: digest, Size: int64(len(data))}, nil
}

func (s *MemoryStore) Get(_ context.Context, url string) (Blob, error) {
	id, err := ParseURL(url)
	if err != nil {
		return Blob{}, fmt.Errorf("%w: %w", sentinel.ErrNotFound, err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok {
		return Blob{}, sentinel.ErrNotFound
	}
	b.Data = slices.Clone(b.Data)
	return b, nil
}

// Delete removes a blob. Deleting an unknown blob is not an error.
func (s *MemoryStore) Delete(_ context.Context, url string) error {
	id, err := ParseURL(url)
	if err != nil {
		return nil
	}
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
