package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
)

func TestNotificationRoundTrip(t *testing.T) {
	sub := &models.Submission{ID: domain.NewSubmissionID(), Revision: 12}

	id, rev, ok := parseNotification(notification(sub))
	assert.True(t, ok)
	assert.Equal(t, sub.ID, id)
	assert.Equal(t, int64(12), rev)

	for _, bad := range []string{"", "no-colon", "not-a-uuid:3", sub.ID.String() + ":x"} {
		_, _, ok := parseNotification(bad)
		assert.False(t, ok, bad)
	}
}
