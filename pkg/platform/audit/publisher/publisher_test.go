package publisher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycreview/pkg/domain"
	audit "kycreview/pkg/platform/audit"
	"kycreview/pkg/platform/audit/store/memory"
)

func TestPublisher_SyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()

	id := domain.NewSubmissionID()
	err := pub.Emit(context.Background(), audit.Event{
		SubmissionID: id,
		Action:       string(audit.EventOfficerAssigned),
	})
	require.NoError(t, err)

	events, err := pub.List(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, string(audit.EventOfficerAssigned), events[0].Action)
	assert.Equal(t, audit.CategoryOperations, events[0].Category)
}

func TestPublisher_AsyncDrainsOnClose(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(100))

	id := domain.NewSubmissionID()
	for range 10 {
		err := pub.Emit(context.Background(), audit.Event{
			SubmissionID: id,
			Action:       string(audit.EventComplianceChecked),
		})
		require.NoError(t, err)
	}

	require.NoError(t, pub.Close())

	events, err := store.ListBySubmission(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, events, 10, "all events should be drained on close")
}

func TestPublisher_BufferFull_DropsEvent(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pub.Emit(context.Background(), audit.Event{Action: string(audit.EventPreviewSessionSwept)})
			if err != nil {
				assert.ErrorIs(t, err, ErrBufferFull)
			}
		}()
	}
	wg.Wait()
}

func TestPublisher_Timestamps(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store)
	defer pub.Close()
	id := domain.NewSubmissionID()

	before := time.Now()
	require.NoError(t, pub.Emit(context.Background(), audit.Event{SubmissionID: id, Action: "a"}))
	after := time.Now()

	custom := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, pub.Emit(context.Background(), audit.Event{SubmissionID: id, Action: "b", Timestamp: custom}))

	events, err := pub.List(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.False(t, events[0].Timestamp.Before(before))
	assert.False(t, events[0].Timestamp.After(after))
	assert.Equal(t, custom, events[1].Timestamp)
}

func TestPublisher_CancelledContextInAsyncMode(t *testing.T) {
	store := memory.NewInMemoryStore()
	pub := NewPublisher(store, WithAsyncBuffer(1))
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.Emit(ctx, audit.Event{Action: string(audit.EventComplianceChecked)})
	assert.ErrorIs(t, err, context.Canceled)
}
