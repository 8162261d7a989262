package worker

import (
	"context"
	"log/slog"

	audit "kycreview/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. It returns
// when the inbox is closed (after draining it) or the context is cancelled.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.inbox:
			if !ok {
				return nil
			}
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit event dropped",
					"action", event.Action,
					"submission_id", event.SubmissionID.String(),
					"error", err,
				)
			}
		}
	}
}
