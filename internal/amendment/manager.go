// Package amendment runs the request/response protocol between reviewers
// and branches on top of the workflow engine.
//
// A resolution is all-or-nothing: files are validated while staging, pre-
// checked against the pending requests, uploaded, and only then committed
// in a single Store.Apply that re-checks every request is still pending.
// Whatever happens, the preview session backing the call is released and
// uploaded blobs that were not committed are deleted.
package amendment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycreview/internal/policy"
	"kycreview/internal/revision"
	"kycreview/internal/submission/intake"
	"kycreview/internal/submission/models"
	"kycreview/internal/workflow"
	"kycreview/pkg/attrs"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/audit"
	"kycreview/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Manager creates and resolves amendment requests.
type Manager struct {
	store   workflow.Store
	engine  *workflow.Engine
	intake  *intake.Intake
	tracker *revision.Tracker
	policy  policy.Review

	logger  *slog.Logger
	audit   AuditPublisher
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(m *Manager) {
		m.audit = publisher
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

func WithTracker(t *revision.Tracker) Option {
	return func(m *Manager) {
		m.tracker = t
	}
}

func New(st workflow.Store, engine *workflow.Engine, in *intake.Intake, p policy.Review, opts ...Option) *Manager {
	m := &Manager{
		store:   st,
		engine:  engine,
		intake:  in,
		tracker: revision.New(),
		policy:  p,
		logger:  slog.Default(),
		tracer:  otel.Tracer("kycreview/internal/amendment"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Request opens one amendment request. The status change is made by the
// workflow engine in the same commit.
func (m *Manager) Request(ctx context.Context, id domain.SubmissionID, spec models.RequestSpec) (models.AmendmentRequest, error) {
	reqs, err := m.RequestBatch(ctx, id, []models.RequestSpec{spec})
	if err != nil {
		return models.AmendmentRequest{}, err
	}
	return reqs[0], nil
}

// RequestBatch opens several requests atomically.
func (m *Manager) RequestBatch(ctx context.Context, id domain.SubmissionID, specs []models.RequestSpec) ([]models.AmendmentRequest, error) {
	_, reqs, err := m.engine.OpenRequests(ctx, id, specs)
	return reqs, err
}

// ResolveInput is a branch's answer to one request.
type ResolveInput struct {
	Comment      string
	ResponseType string
	Files        []intake.FileInput
	// SessionID names a preview session with staged files. Optional.
	SessionID string
}

// Resolve answers requestID. Every file must answer that request.
func (m *Manager) Resolve(ctx context.Context, id domain.SubmissionID, requestID domain.RequestID, in ResolveInput) (models.Amendment, error) {
	for i := range in.Files {
		if rid := in.Files[i].RequestID; rid != nil && *rid != requestID {
			return models.Amendment{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("file %d is addressed to another request", i))
		}
	}
	records, err := m.resolve(ctx, "amendment.Resolve", id, []domain.RequestID{requestID}, in, func(int, intake.FileInput) domain.RequestID {
		return requestID
	})
	if err != nil {
		return models.Amendment{}, err
	}
	return records[0], nil
}

// BatchResolveInput answers several requests in one call.
type BatchResolveInput struct {
	Comment      string
	ResponseType string
	// Files must each carry the RequestID they answer.
	Files     []intake.FileInput
	SessionID string
	// InfoRequests names informational requests answered by the comment alone.
	InfoRequests []domain.RequestID
}

// ResolveBatch resolves every request that receives files or is named in
// InfoRequests. Requests not addressed stay pending. One history record is
// appended per resolved request.
func (m *Manager) ResolveBatch(ctx context.Context, id domain.SubmissionID, in BatchResolveInput) ([]models.Amendment, error) {
	var targets []domain.RequestID
	seen := make(map[domain.RequestID]bool)
	add := func(rid domain.RequestID) {
		if !seen[rid] {
			seen[rid] = true
			targets = append(targets, rid)
		}
	}
	for i, f := range in.Files {
		if f.RequestID == nil || f.RequestID.IsNil() {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("file %d does not name the request it answers", i))
		}
		add(*f.RequestID)
	}
	for _, rid := range in.InfoRequests {
		add(rid)
	}
	if len(targets) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "no amendment request addressed")
	}
	return m.resolve(ctx, "amendment.ResolveBatch", id, targets, ResolveInput{
		Comment:      in.Comment,
		ResponseType: in.ResponseType,
		Files:        in.Files,
		SessionID:    in.SessionID,
	}, func(_ int, f intake.FileInput) domain.RequestID {
		return *f.RequestID
	})
}

func (m *Manager) resolve(
	ctx context.Context,
	op string,
	id domain.SubmissionID,
	targets []domain.RequestID,
	in ResolveInput,
	requestOf func(int, intake.FileInput) domain.RequestID,
) (_ []models.Amendment, err error) {
	start := time.Now()
	ctx, span := m.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("submission.id", id.String()),
		attribute.Int("amendment.requests", len(targets)),
		attribute.Int("amendment.files", len(in.Files)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		m.observeResolve(start, err)
	}()

	comment := strings.TrimSpace(in.Comment)
	if len([]rune(comment)) < m.policy.MinResponseCommentLength {
		return nil, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("response comment must be at least %d characters", m.policy.MinResponseCommentLength))
	}

	batch, err := m.intake.Prepare(ctx, requestcontext.ActorID(ctx), in.SessionID, in.Files)
	defer batch.Release()
	if err != nil {
		return nil, err
	}

	snapshot, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, workflow.StoreError(err)
	}
	plan, err := planResolution(snapshot, targets, batch.Items, requestOf)
	if err != nil {
		return nil, err
	}

	stored, err := m.intake.Upload(ctx, id, batch)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		m.intake.Discard(ctx, stored)
		return nil, dErrors.Wrap(err, dErrors.CodeCanceled, "resolution cancelled")
	}

	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)
	var records []models.Amendment
	sub, err := m.store.Apply(ctx, id, func(s *models.Submission) error {
		for _, rid := range targets {
			if err := s.CanResolve(rid); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return dErrors.Wrap(err, dErrors.CodeCanceled, "resolution cancelled")
		}
		existing := s.Documents
		responses := make([]models.Response, 0, len(targets))
		for _, rid := range targets {
			files := make([]revision.StoredFile, 0, len(plan[rid]))
			for _, idx := range plan[rid] {
				files = append(files, stored[idx])
			}
			docs := m.tracker.Materialize(existing, files, now)
			existing = append(existing[:len(existing):len(existing)], docs...)
			responses = append(responses, models.Response{
				RequestID:   rid,
				Comment:     comment,
				Type:        strings.TrimSpace(in.ResponseType),
				RespondedBy: actor,
				Documents:   docs,
			})
		}
		var err error
		records, err = s.ApplyResolution(responses, now)
		return err
	})
	if err != nil {
		m.intake.Discard(ctx, stored)
		return nil, workflow.StoreError(err)
	}

	for _, rec := range records {
		m.logAudit(ctx, audit.EventAmendmentResolved, sub,
			"submission_id", id.String(),
			"amendment_request_id", rec.RequestID.String(),
			"response_type", rec.ResponseType,
			"documents", len(rec.Documents),
			"to", string(sub.Status),
		)
	}
	if m.metrics != nil {
		m.metrics.Resolved.Add(float64(len(records)))
	}
	return records, nil
}

// planResolution checks targets and files against a snapshot before any
// upload happens, and groups file indexes by the request they answer. The
// commit re-checks pending state; this pass only avoids needless uploads
// and gives precise validation errors.
func planResolution(
	snapshot *models.Submission,
	targets []domain.RequestID,
	items []intake.Item,
	requestOf func(int, intake.FileInput) domain.RequestID,
) (map[domain.RequestID][]int, error) {
	plan := make(map[domain.RequestID][]int, len(targets))
	for _, rid := range targets {
		if err := snapshot.CanResolve(rid); err != nil {
			return nil, err
		}
		plan[rid] = nil
	}
	for i, item := range items {
		rid := requestOf(i, item.Input)
		req, ok := snapshot.PendingRequest(rid)
		if !ok {
			return nil, dErrors.New(dErrors.CodeConflict, "amendment request "+rid.String()+" is not pending")
		}
		if !req.Accepts(item.Input.DocumentType, item.Input.TargetDocumentID) {
			return nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("file %s (%s) does not answer %s request %s", item.Handle.File.Name, item.Input.DocumentType, req.Type, rid))
		}
		plan[rid] = append(plan[rid], i)
	}
	for _, rid := range targets {
		req, _ := snapshot.PendingRequest(rid)
		if req.Type.RequiresFiles() && len(plan[rid]) == 0 {
			return nil, dErrors.New(dErrors.CodeValidation, "request "+rid.String()+" requires at least one file")
		}
	}
	return plan, nil
}

func (m *Manager) observeResolve(start time.Time, err error) {
	if m.metrics == nil {
		return
	}
	m.metrics.ResolveDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		m.metrics.ResolveFailures.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
}

func (m *Manager) logAudit(ctx context.Context, event audit.AuditEvent, sub *models.Submission, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	actor := requestcontext.ActorID(ctx)
	args := append(attributes, "event", string(event), "actor_id", actor, "log_type", "audit")
	if m.logger != nil {
		m.logger.InfoContext(ctx, string(event), args...)
	}
	if m.audit == nil {
		return
	}
	if err := m.audit.Emit(ctx, audit.Event{
		Category:     event.Category(),
		Timestamp:    time.Now().UTC(),
		SubmissionID: sub.ID,
		Subject:      attrs.ExtractString(attributes, "amendment_request_id"),
		Action:       string(event),
		Decision:     string(sub.Status),
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      actor,
		Role:         string(requestcontext.Role(ctx)),
	}); err != nil {
		m.logger.ErrorContext(ctx, "audit emit failed", "event", string(event), "error", err)
		if m.metrics != nil {
			m.metrics.AuditFailures.Inc()
		}
	}
}
