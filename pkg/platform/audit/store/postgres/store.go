package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"kycreview/pkg/domain"
	audit "kycreview/pkg/platform/audit"
)

// Store implements audit.Store on the kyc_audit_events table.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS kyc_audit_events (
	id            UUID PRIMARY KEY,
	category      TEXT NOT NULL,
	occurred_at   TIMESTAMPTZ NOT NULL,
	submission_id UUID,
	subject       TEXT NOT NULL DEFAULT '',
	action        TEXT NOT NULL,
	decision      TEXT NOT NULL DEFAULT '',
	reason        TEXT NOT NULL DEFAULT '',
	request_id    TEXT NOT NULL DEFAULT '',
	actor_id      TEXT NOT NULL DEFAULT '',
	actor_role    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS kyc_audit_events_submission ON kyc_audit_events (submission_id, occurred_at)`

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create kyc_audit_events: %w", err)
	}
	return nil
}

// Append inserts one event. The category is always derived from the action.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	category := audit.AuditEvent(event.Action).Category()
	var submissionID any
	if !event.SubmissionID.IsNil() {
		submissionID = event.SubmissionID.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kyc_audit_events (
			id, category, occurred_at, submission_id, subject, action,
			decision, reason, request_id, actor_id, actor_role
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), string(category), event.Timestamp, submissionID, event.Subject, event.Action,
		event.Decision, event.Reason, event.RequestID, event.ActorID, event.Role,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListBySubmission(ctx context.Context, id domain.SubmissionID) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, occurred_at, subject, action, decision, reason, request_id, actor_id, actor_role
		FROM kyc_audit_events
		WHERE submission_id = $1
		ORDER BY occurred_at, id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		e := audit.Event{SubmissionID: id}
		var category string
		if err := rows.Scan(&category, &e.Timestamp, &e.Subject, &e.Action, &e.Decision,
			&e.Reason, &e.RequestID, &e.ActorID, &e.Role); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Category = audit.EventCategory(category)
		out = append(out, e)
	}
	return out, rows.Err()
}
