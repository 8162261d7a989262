// Package events relays committed submission changes to a message broker.
//
// The relay is fed from store subscriptions, which run inside the commit
// path, so Handle never blocks: events queue in a bounded buffer and a
// single Run loop publishes them in commit order. A full buffer drops the
// event and counts it. Delivery is at most once; the store stays the
// source of truth.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"kycreview/internal/submission/store"
)

// Publisher delivers one encoded event.
//
//go:generate mockgen -source=relay.go -destination=mocks/mocks.go -package=mocks Publisher
type Publisher interface {
	Publish(ctx context.Context, key, value []byte, headers map[string]string) error
}

// Source is the store's change feed.
type Source interface {
	Subscribe(fn func(store.Change)) func()
}

const (
	defaultBuffer   = 1024
	defaultAttempts = 3
	retryBackoff    = 200 * time.Millisecond
)

type Relay struct {
	pub      Publisher
	queue    chan Event
	attempts int
	backoff  time.Duration
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Relay)

func WithBuffer(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queue = make(chan Event, n)
		}
	}
}

func WithAttempts(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.attempts = n
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(r *Relay) {
		r.backoff = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(pub Publisher, opts ...Option) *Relay {
	r := &Relay{
		pub:      pub,
		queue:    make(chan Event, defaultBuffer),
		attempts: defaultAttempts,
		backoff:  retryBackoff,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the relay to src and returns the unsubscribe func.
func (r *Relay) Attach(src Source) func() {
	return src.Subscribe(r.Handle)
}

// Handle enqueues the event for c without blocking.
func (r *Relay) Handle(c store.Change) {
	if c.Current == nil {
		return
	}
	ev := FromChange(c.Previous, c.Current)
	select {
	case r.queue <- ev:
	default:
		r.logger.Warn("lifecycle event dropped, relay buffer full",
			"submission_id", ev.SubmissionID.String(),
			"kind", string(ev.Kind),
			"revision", ev.Revision,
		)
		if r.metrics != nil {
			r.metrics.Dropped.Inc()
		}
	}
}

// Run publishes queued events until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.queue:
			r.publish(ctx, ev)
		}
	}
}

// Pending reports how many events wait to be published.
func (r *Relay) Pending() int {
	return len(r.queue)
}

func (r *Relay) publish(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		r.logger.ErrorContext(ctx, "encode lifecycle event", "submission_id", ev.SubmissionID.String(), "error", err)
		return
	}
	key := []byte(ev.SubmissionID.String())
	headers := map[string]string{"kind": string(ev.Kind), "event_id": ev.ID}

	for attempt := 1; ; attempt++ {
		err = r.pub.Publish(ctx, key, value, headers)
		if err == nil {
			if r.metrics != nil {
				r.metrics.Published.WithLabelValues(string(ev.Kind)).Inc()
			}
			return
		}
		if attempt >= r.attempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	r.logger.ErrorContext(ctx, "lifecycle event not published",
		"submission_id", ev.SubmissionID.String(),
		"kind", string(ev.Kind),
		"revision", ev.Revision,
		"error", err,
	)
	if r.metrics != nil {
		r.metrics.Failed.Inc()
	}
}
