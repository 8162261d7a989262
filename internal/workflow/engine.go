// Package workflow enforces the submission status state machine. Every
// operation computes the next value inside Store.Apply so a rejected
// operation leaves the submission untouched.
package workflow

import (
	"context"
	"errors"
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
	"kycreview/internal/submission/store"
	"kycreview/pkg/attrs"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/audit"
	"kycreview/pkg/platform/sentinel"
	"kycreview/pkg/requestcontext"
)

// Store is the submission store as seen by the engine.
type Store interface {
	Get(ctx context.Context, id domain.SubmissionID) (*models.Submission, error)
	List(ctx context.Context) ([]*models.Submission, error)
	Create(ctx context.Context, sub *models.Submission) (*models.Submission, error)
	Apply(ctx context.Context, id domain.SubmissionID, mutate store.Mutator) (*models.Submission, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Engine runs reviewer decisions and opens amendment requests.
type Engine struct {
	store   Store
	intake  *intake.Intake
	tracker *revision.Tracker
	policy  policy.Review

	logger  *slog.Logger
	audit   AuditPublisher
	metrics *Metrics
	tracer  trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(e *Engine) {
		e.audit = publisher
	}
}

func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithTracker(t *revision.Tracker) Option {
	return func(e *Engine) {
		e.tracker = t
	}
}

func New(st Store, in *intake.Intake, p policy.Review, opts ...Option) *Engine {
	e := &Engine{
		store:   st,
		intake:  in,
		tracker: revision.New(),
		policy:  p,
		logger:  slog.Default(),
		tracer:  otel.Tracer("kycreview/internal/workflow"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitInput is a branch's new KYC package.
type SubmitInput struct {
	CustomerName string
	Branch       string
	Files        []intake.FileInput
	// SessionID names a preview session holding staged files. Optional.
	SessionID string
}

// Submit uploads the package files and creates the submission in Pending.
// The preview session backing the call is released whatever the outcome.
func (e *Engine) Submit(ctx context.Context, in SubmitInput) (_ *models.Submission, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.Submit")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(in.CustomerName) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "customer name is required")
	}
	if strings.TrimSpace(in.Branch) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "branch is required")
	}
	if len(in.Files) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one document is required")
	}

	batch, err := e.intake.Prepare(ctx, requestcontext.ActorID(ctx), in.SessionID, in.Files)
	defer batch.Release()
	if err != nil {
		return nil, err
	}

	id := domain.NewSubmissionID()
	span.SetAttributes(attribute.String("submission.id", id.String()))
	stored, err := e.intake.Upload(ctx, id, batch)
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	sub, err := models.NewSubmission(id, in.CustomerName, in.Branch, e.tracker.Materialize(nil, stored, now), now)
	if err != nil {
		e.intake.Discard(ctx, stored)
		return nil, err
	}
	created, err := e.store.Create(ctx, sub)
	if err != nil {
		e.intake.Discard(ctx, stored)
		return nil, StoreError(err)
	}

	e.logAudit(ctx, audit.EventSubmissionCreated,
		"submission_id", created.ID.String(),
		"branch", created.Branch,
		"documents", len(created.Documents),
	)
	if e.metrics != nil {
		e.metrics.SubmissionsCreated.Inc()
	}
	return created, nil
}

// Get returns one submission.
func (e *Engine) Get(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	sub, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, StoreError(err)
	}
	return sub, nil
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status  models.Status
	Branch  string
	Officer string
}

func (f Filter) matches(sub *models.Submission) bool {
	return (f.Status == "" || sub.Status == f.Status) &&
		(f.Branch == "" || sub.Branch == f.Branch) &&
		(f.Officer == "" || sub.Officer == f.Officer)
}

// List returns submissions in insertion order.
func (e *Engine) List(ctx context.Context, f Filter) ([]*models.Submission, error) {
	all, err := e.store.List(ctx)
	if err != nil {
		return nil, StoreError(err)
	}
	out := make([]*models.Submission, 0, len(all))
	for _, sub := range all {
		if f.matches(sub) {
			out = append(out, sub)
		}
	}
	return out, nil
}

// Assign sets or changes the reviewing officer.
func (e *Engine) Assign(ctx context.Context, id domain.SubmissionID, officer string) (_ *models.Submission, err error) {
	ctx, span := e.start(ctx, "workflow.Assign", id)
	defer func() { endSpan(span, err) }()

	now := requestcontext.Now(ctx)
	sub, err := e.store.Apply(ctx, id, func(s *models.Submission) error {
		if err := s.CanAssign(officer); err != nil {
			return err
		}
		s.ApplyAssignment(officer, now)
		return nil
	})
	if err != nil {
		return nil, StoreError(err)
	}
	e.logAudit(ctx, audit.EventOfficerAssigned,
		"submission_id", id.String(),
		"officer", sub.Officer,
	)
	return sub, nil
}

func (e *Engine) Approve(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	return e.Decide(ctx, id, models.EventApprove, "", nil)
}

func (e *Engine) Reject(ctx context.Context, id domain.SubmissionID, reason string) (*models.Submission, error) {
	return e.Decide(ctx, id, models.EventReject, reason, nil)
}

func (e *Engine) Escalate(ctx context.Context, id domain.SubmissionID, reason string) (*models.Submission, error) {
	return e.Decide(ctx, id, models.EventEscalate, reason, nil)
}

// Guard lets a caller veto a change after the current value is loaded and
// before it is mutated. It runs inside the commit, so it sees the state the
// change will apply to.
type Guard func(current *models.Submission) error

var decisionEvents = map[models.Event]audit.AuditEvent{
	models.EventApprove:  audit.EventSubmissionApproved,
	models.EventReject:   audit.EventSubmissionRejected,
	models.EventEscalate: audit.EventSubmissionEscalated,
}

// Decide applies approve, reject or escalate. guard may be nil.
func (e *Engine) Decide(ctx context.Context, id domain.SubmissionID, ev models.Event, reason string, guard Guard) (_ *models.Submission, err error) {
	ctx, span := e.start(ctx, "workflow."+string(ev), id)
	defer func() { endSpan(span, err) }()

	if _, ok := decisionEvents[ev]; !ok {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown decision "+string(ev))
	}
	var from models.Status
	now := requestcontext.Now(ctx)
	sub, err := e.store.Apply(ctx, id, func(s *models.Submission) error {
		if err := s.CanDecide(ev); err != nil {
			return err
		}
		if guard != nil {
			if err := guard(s); err != nil {
				return err
			}
		}
		from = s.Status
		s.ApplyDecision(ev, now)
		return nil
	})
	if err != nil {
		return nil, StoreError(err)
	}

	e.observeTransition(ev, sub.Status)
	e.logAudit(ctx, decisionEvents[ev],
		"submission_id", id.String(),
		"from", string(from),
		"to", string(sub.Status),
		"reason", strings.TrimSpace(reason),
	)
	return sub, nil
}

// RequestAmendment opens one amendment request. reason becomes the
// request's comment and must meet the policy minimum length.
func (e *Engine) RequestAmendment(ctx context.Context, id domain.SubmissionID, reason string, spec models.RequestSpec) (*models.Submission, models.AmendmentRequest, error) {
	spec.Comment = reason
	sub, reqs, err := e.OpenRequests(ctx, id, []models.RequestSpec{spec})
	if err != nil {
		return nil, models.AmendmentRequest{}, err
	}
	return sub, reqs[0], nil
}

// OpenRequests creates every request in specs and moves the submission to
// ActionRequired in one commit. Either all requests are opened or none.
func (e *Engine) OpenRequests(ctx context.Context, id domain.SubmissionID, specs []models.RequestSpec) (_ *models.Submission, _ []models.AmendmentRequest, err error) {
	ctx, span := e.start(ctx, "workflow.RequestAmendment", id)
	defer func() { endSpan(span, err) }()

	if len(specs) == 0 {
		return nil, nil, dErrors.New(dErrors.CodeValidation, "at least one amendment request is required")
	}
	for i, spec := range specs {
		if n := len([]rune(strings.TrimSpace(spec.Comment))); n < e.policy.MinReasonLength {
			return nil, nil, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("request %d: reason must be at least %d characters", i, e.policy.MinReasonLength))
		}
	}

	actor := requestcontext.ActorID(ctx)
	now := requestcontext.Now(ctx)
	var opened []models.AmendmentRequest
	sub, err := e.store.Apply(ctx, id, func(s *models.Submission) error {
		opened = opened[:0]
		for _, spec := range specs {
			req, err := s.NewRequest(spec, actor, now)
			if err != nil {
				return err
			}
			opened = append(opened, req)
		}
		return s.ApplyRequests(opened, now)
	})
	if err != nil {
		return nil, nil, StoreError(err)
	}

	e.observeTransition(models.EventRequestAmendment, sub.Status)
	for _, req := range opened {
		e.logAudit(ctx, audit.EventAmendmentRequested,
			"submission_id", id.String(),
			"amendment_request_id", req.ID.String(),
			"request_type", string(req.Type),
			"target_document_type", string(req.TargetDocumentType),
			"reason", req.Comment,
		)
	}
	if e.metrics != nil {
		e.metrics.AmendmentsRequested.Add(float64(len(opened)))
	}
	return sub, opened, nil
}

// StoreError maps store failures to coded errors. Coded errors from
// mutators pass through unchanged.
func StoreError(err error) error {
	var coded *dErrors.Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &coded):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "submission not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "submission was changed concurrently")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeStorageUnavailable, "submission storage unavailable")
	case errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeCanceled, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request timed out")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "submission update failed")
	}
}

func (e *Engine) start(ctx context.Context, name string, id domain.SubmissionID) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("submission.id", id.String())))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (e *Engine) observeTransition(ev models.Event, to models.Status) {
	if e.metrics != nil {
		e.metrics.Transitions.WithLabelValues(string(ev), string(to)).Inc()
	}
}

func (e *Engine) logAudit(ctx context.Context, event audit.AuditEvent, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	actor := requestcontext.ActorID(ctx)
	args := append(attributes, "event", string(event), "actor_id", actor, "log_type", "audit")
	if e.logger != nil {
		e.logger.InfoContext(ctx, string(event), args...)
	}
	if e.audit == nil {
		return
	}
	submissionID, _ := domain.ParseSubmissionID(attrs.ExtractString(attributes, "submission_id"))
	if err := e.audit.Emit(ctx, audit.Event{
		Category:     event.Category(),
		Timestamp:    time.Now().UTC(),
		SubmissionID: submissionID,
		Subject:      attrs.ExtractString(attributes, "amendment_request_id"),
		Action:       string(event),
		Decision:     attrs.ExtractString(attributes, "to"),
		Reason:       attrs.ExtractString(attributes, "reason"),
		RequestID:    requestcontext.RequestID(ctx),
		ActorID:      actor,
		Role:         string(requestcontext.Role(ctx)),
	}); err != nil {
		e.logger.ErrorContext(ctx, "audit emit failed", "event", string(event), "error", err)
		if e.metrics != nil {
			e.metrics.AuditFailures.Inc()
		}
	}
}
