package main

import (
	"context"
	"log/slog"

	"kycreview/internal/submission/store"
	"kycreview/pkg/domain"
)

// follower subscribes the local store to mirror updates for every
// submission created on this instance, so writes made by other instances
// reach the local cache.
type follower struct {
	store   *store.Store
	created chan domain.SubmissionID
	logger  *slog.Logger
}

func newFollower(st *store.Store, logger *slog.Logger) *follower {
	return &follower{store: st, created: make(chan domain.SubmissionID, 256), logger: logger}
}

// Handle is a store change listener. It never blocks the committing writer.
func (f *follower) Handle(c store.Change) {
	if c.Previous != nil || c.Current == nil {
		return
	}
	select {
	case f.created <- c.Current.ID:
	default:
		f.logger.Warn("follow queue full, remote updates will not be tracked",
			"submission_id", c.Current.ID.String(),
		)
	}
}

func (f *follower) Run(ctx context.Context) error {
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case id := <-f.created:
			cancel, err := f.store.Follow(ctx, id)
			if err != nil {
				f.logger.WarnContext(ctx, "follow submission failed",
					"submission_id", id.String(),
					"error", err,
				)
				continue
			}
			cancels = append(cancels, cancel)
		}
	}
}
