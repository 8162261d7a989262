package revision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
)

func existing(docType models.DocumentType, versions ...int) []models.SubmittedDocument {
	out := make([]models.SubmittedDocument, 0, len(versions))
	for _, v := range versions {
		out = append(out, models.SubmittedDocument{ID: domain.NewDocumentID(), DocumentType: docType, Version: v})
	}
	return out
}

func TestNextVersion(t *testing.T) {
	assert.Equal(t, 1, NextVersion(nil, models.DocumentIDCard), "absent type starts at 1")
	assert.Equal(t, 2, NextVersion(existing(models.DocumentIDCard, 1), models.DocumentIDCard))
	assert.Equal(t, 4, NextVersion(existing(models.DocumentIDCard, 3, 1, 2), models.DocumentIDCard))
	assert.Equal(t, 1, NextVersion(existing(models.DocumentIDCard, 1, 2), models.DocumentPassport), "versions are scoped by type")
}

func TestMaterialize(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	tracker := New()
	current := existing(models.DocumentIDCard, 1)

	docs := tracker.Materialize(current, []StoredFile{
		{DocumentType: models.DocumentIDCard, FileName: "front.png", Size: 10, Format: "image/png", URL: "blob://a"},
		{DocumentType: models.DocumentProofOfAddress, FileName: "bill.pdf", Size: 20, Format: "application/pdf", URL: "blob://b"},
		{DocumentType: models.DocumentIDCard, FileName: "back.png", Size: 11, Format: "image/png", URL: "blob://c"},
	}, now)

	require.Len(t, docs, 3)
	assert.Equal(t, 2, docs[0].Version)
	assert.Equal(t, 1, docs[1].Version)
	assert.Equal(t, 3, docs[2].Version)
	for _, d := range docs {
		assert.Equal(t, now, d.UploadedAt)
		assert.False(t, d.ID.IsNil())
	}
	assert.Len(t, current, 1, "existing documents are not modified")
}

func TestMaterialize_MonotonicOverManyRounds(t *testing.T) {
	tracker := New()
	var all []models.SubmittedDocument
	for round := range 5 {
		docs := tracker.Materialize(all, []StoredFile{{DocumentType: models.DocumentPassport}}, time.Now())
		require.Len(t, docs, 1)
		assert.Equal(t, round+1, docs[0].Version)
		all = append(all, docs...)
	}
}
