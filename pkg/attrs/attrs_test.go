package attrs

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"kycreview/pkg/domain"
)

func TestExtractString(t *testing.T) {
	id := domain.NewSubmissionID()
	list := []any{
		"submission_id", id,
		"documents", 3,
		slog.String("to", "approved"),
		"reason", "forged stamp",
		"dangling",
	}

	assert.Equal(t, id.String(), ExtractString(list, "submission_id"))
	assert.Equal(t, "approved", ExtractString(list, "to"))
	assert.Equal(t, "forged stamp", ExtractString(list, "reason"))
	assert.Empty(t, ExtractString(list, "documents"), "non-text values are skipped")
	assert.Empty(t, ExtractString(list, "dangling"))
	assert.Empty(t, ExtractString(nil, "reason"))
}

func TestValuesAreNotMistakenForKeys(t *testing.T) {
	list := []any{"reason", "to", "to", "escalated"}
	assert.Equal(t, "escalated", ExtractString(list, "to"))
}
