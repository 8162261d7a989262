// Package postgres mirrors submissions into PostgreSQL as JSON documents and
// publishes every write on a LISTEN/NOTIFY channel.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	"kycreview/pkg/platform/sentinel"
)

// Channel carries "<submission id>:<revision>" for every committed write.
const Channel = "kyc_submission_updates"

const schema = `
CREATE TABLE IF NOT EXISTS kyc_submissions (
	id         UUID PRIMARY KEY,
	revision   BIGINT NOT NULL,
	status     TEXT NOT NULL,
	branch     TEXT NOT NULL,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// Mirror implements the submission store's persistence collaborator.
type Mirror struct {
	db     *sql.DB
	dsn    string
	logger *slog.Logger
}

// New builds a mirror over db. dsn is used to open dedicated LISTEN
// connections for subscriptions.
func New(db *sql.DB, dsn string, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{db: db, dsn: dsn, logger: logger}
}

func (m *Mirror) EnsureSchema(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create kyc_submissions: %w", err)
	}
	return nil
}

// CreateOrReplace upserts sub when its revision is newer than the stored one
// and notifies listeners in the same transaction.
func (m *Mirror) CreateOrReplace(ctx context.Context, sub *models.Submission) error {
	payload, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO kyc_submissions (id, revision, status, branch, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET revision = EXCLUDED.revision,
		    status = EXCLUDED.status,
		    branch = EXCLUDED.branch,
		    payload = EXCLUDED.payload,
		    updated_at = EXCLUDED.updated_at
		WHERE kyc_submissions.revision < EXCLUDED.revision`,
		sub.ID.String(), sub.Revision, string(sub.Status), sub.Branch, payload, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert submission: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("submission %s revision %d: %w", sub.ID, sub.Revision, sentinel.ErrStale)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, Channel, notification(sub)); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *Mirror) Read(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	var payload []byte
	err := m.db.QueryRowContext(ctx, `SELECT payload FROM kyc_submissions WHERE id = $1`, id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
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

// Subscribe opens a LISTEN connection and calls fn with the stored value each
// time id is written, by any instance.
func (m *Mirror) Subscribe(ctx context.Context, id domain.SubmissionID, fn func(*models.Submission)) (func(), error) {
	listener := pq.NewListener(m.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			m.logger.Warn("submission listener event", "event", int(ev), "error", err)
		}
	})
	if err := listener.Listen(Channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", Channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				// A nil notification means the connection was re-established
				// and updates may have been missed.
				if n != nil {
					target, _, ok := parseNotification(n.Extra)
					if !ok || target != id {
						continue
					}
				}
				sub, err := m.Read(ctx, id)
				if err != nil {
					if !errors.Is(err, sentinel.ErrNotFound) && ctx.Err() == nil {
						m.logger.WarnContext(ctx, "reload mirrored submission", "submission_id", id.String(), "error", err)
					}
					continue
				}
				fn(sub)
			case <-time.After(90 * time.Second):
				go func() { _ = listener.Ping() }()
			}
		}
	}()

	return func() {
		cancel()
		<-done
		_ = listener.Close()
	}, nil
}

func notification(sub *models.Submission) string {
	return sub.ID.String() + ":" + strconv.FormatInt(sub.Revision, 10)
}

func parseNotification(extra string) (domain.SubmissionID, int64, bool) {
	idPart, revPart, found := strings.Cut(extra, ":")
	if !found {
		return domain.SubmissionID{}, 0, false
	}
	id, err := domain.ParseSubmissionID(idPart)
	if err != nil {
		return domain.SubmissionID{}, 0, false
	}
	rev, err := strconv.ParseInt(revPart, 10, 64)
	if err != nil {
		return domain.SubmissionID{}, 0, false
	}
	return id, rev, true
}
