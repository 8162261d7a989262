// Package redis mirrors submissions into Redis. Each write stores the JSON
// document under one key and publishes it on a per-submission channel.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
)

const keyPrefix = "kycreview:submission:"

func key(id domain.SubmissionID) string { return keyPrefix + id.String() }
func channel(id domain.SubmissionID) string { return keyPrefix + id.String() + ":updates" }

type Mirror struct {
	client redis.UniversalClient
	logger *slog.Logger
}

func New(client redis.UniversalClient, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{client: client, logger: logger}
}

// CreateOrReplace writes sub under an optimistic WATCH on its key, refusing
// to overwrite a newer revision.
func (m *Mirror) CreateOrReplace(ctx context.Context, sub *models.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	k := key(sub.ID)
	err = m.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored struct {
				Revision int64 `json:"revision"`
			}
			if err := json.Unmarshal(current, &stored); err == nil && stored.Revision >= sub.Revision {
				return fmt.Errorf("submission %s revision %d: %w", sub.ID, sub.Revision, sentinel.ErrStale)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, payload, 0)
			pipe.Publish(ctx, channel(sub.ID), payload)
			return nil
		})
		return err
	}, k)
	if errors.Is(err, redis.TxFailedErr) {
		return fmt.Errorf("submission %s written concurrently: %w", sub.ID, sentinel.ErrStale)
	}
	if err != nil && !errors.Is(err, sentinel.ErrStale) {
		return fmt.Errorf("write submission: %w", err)
	}
	return err
}

func (m *Mirror) Read(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	payload, err := m.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read submission: %w", err)
	}
	var sub models.Submission
	if err := json.Unmarshal(payload, &sub); err != nil {
		return nil, fmt.Errorf("decode submission %s: %w", id, err)
	}
	return &sub, nil
}

func (m *Mirror) Subscribe(ctx context.Context, id domain.SubmissionID, fn func(*models.Submission)) (func(), error) {
	pubsub := m.client.Subscribe(ctx, channel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", id, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var sub models.Submission
				if err := json.Unmarshal([]byte(msg.Payload), &sub); err != nil {
					m.logger.WarnContext(ctx, "discarding malformed submission update",
						"submission_id", id.String(),
						"error", err,
					)
					continue
				}
				fn(&sub)
			}
		}
	}()

	return func() {
		cancel()
		_ = pubsub.Close()
		<-done
	}, nil
}
