package preview

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	audit "kycreview/pkg/platform/audit"
)

// AuditPublisher records janitor sweeps.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Janitor periodically releases sessions whose form was abandoned without
// teardown (closed tab, crashed client).
type Janitor struct {
	manager   *Manager
	ttl       time.Duration
	interval  time.Duration
	scheduler *gocron.Scheduler
	logger    *slog.Logger
	audit     AuditPublisher
}

func NewJanitor(manager *Manager, ttl, interval time.Duration, logger *slog.Logger, publisher AuditPublisher) *Janitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		manager:   manager,
		ttl:       ttl,
		interval:  interval,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger,
		audit:     publisher,
	}
}

// Start schedules the sweep. Overlapping runs are skipped.
func (j *Janitor) Start() error {
	_, err := j.scheduler.Every(j.interval).SingletonMode().Do(func() {
		j.Sweep(context.Background())
	})
	if err != nil {
		return err
	}
	j.scheduler.StartAsync()
	return nil
}

func (j *Janitor) Stop() {
	j.scheduler.Stop()
}

// Sweep runs one pass and returns the number of sessions released.
func (j *Janitor) Sweep(ctx context.Context) int {
	swept := j.manager.SweepIdle(j.ttl)
	if swept == 0 {
		return 0
	}
	j.logger.InfoContext(ctx, "released idle preview sessions",
		"sessions", swept,
		"live_handles", j.manager.Live(),
	)
	if j.audit == nil {
		return swept
	}
	event := audit.EventPreviewSessionSwept
	if err := j.audit.Emit(ctx, audit.Event{
		Category:  event.Category(),
		Timestamp: j.manager.now().UTC(),
		Subject:   "preview_sessions",
		Action:    string(event),
		Decision:  "released",
		Reason:    fmt.Sprintf("%d idle sessions", swept),
	}); err != nil {
		j.logger.ErrorContext(ctx, "audit emit failed", "event", string(event), "error", err)
	}
	return swept
}
