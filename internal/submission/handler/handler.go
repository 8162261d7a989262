// Package handler exposes the KYC submission workflow over HTTP.
//
// Authentication and role resolution happen in middleware; this package
// maps roles to capabilities, parses requests and translates coded errors.
// It holds no workflow rules of its own.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"kycreview/internal/amendment"
	"kycreview/internal/compliance"
	"kycreview/internal/preview"
	"kycreview/internal/submission/models"
	"kycreview/internal/workflow"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/httputil"
	"kycreview/pkg/platform/middleware/auth"
	"kycreview/pkg/requestcontext"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Workflow,Amendments,Compliance

// Workflow is the submission lifecycle service.
type Workflow interface {
	Submit(ctx context.Context, in workflow.SubmitInput) (*models.Submission, error)
	Get(ctx context.Context, id domain.SubmissionID) (*models.Submission, error)
	List(ctx context.Context, f workflow.Filter) ([]*models.Submission, error)
	Assign(ctx context.Context, id domain.SubmissionID, officer string) (*models.Submission, error)
	Decide(ctx context.Context, id domain.SubmissionID, ev models.Event, reason string, guard workflow.Guard) (*models.Submission, error)
}

// Amendments is the request/response protocol service.
type Amendments interface {
	RequestBatch(ctx context.Context, id domain.SubmissionID, specs []models.RequestSpec) ([]models.AmendmentRequest, error)
	Resolve(ctx context.Context, id domain.SubmissionID, requestID domain.RequestID, in amendment.ResolveInput) (models.Amendment, error)
	ResolveBatch(ctx context.Context, id domain.SubmissionID, in amendment.BatchResolveInput) ([]models.Amendment, error)
}

// Compliance runs advisory pre-screens.
type Compliance interface {
	Screen(ctx context.Context, in compliance.Input) (compliance.Result, error)
}

// Previews owns staged files and form sessions.
type Previews interface {
	NewSession(owner string) *preview.Session
	Session(id string) (*preview.Session, bool)
	Lookup(id string) (*preview.Handle, bool)
}

type Handler struct {
	workflow   Workflow
	amendments Amendments
	compliance Compliance
	previews   Previews
	logger     *slog.Logger
	maxUpload  int64
}

// New builds the handler. maxUpload caps the body of multipart requests.
func New(wf Workflow, am Amendments, cc Compliance, pv Previews, maxUpload int64, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflow:   wf,
		amendments: am,
		compliance: cc,
		previews:   pv,
		logger:     logger,
		maxUpload:  maxUpload,
	}
}

// Register mounts the submission and preview routes. The router must
// already authenticate callers.
func (h *Handler) Register(r chi.Router) {
	r.Route("/submissions", func(r chi.Router) {
		r.With(h.require(CapSubmit)).Post("/", h.HandleSubmit)
		r.Get("/", h.HandleList)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.HandleGet)
			r.With(h.require(CapReview)).Post("/approve", h.HandleApprove)
			r.With(h.require(CapReview)).Post("/reject", h.HandleReject)
			r.With(h.require(CapEscalate)).Post("/escalate", h.HandleEscalate)
			r.With(h.require(CapAssign)).Post("/assign", h.HandleAssign)
			r.With(h.require(CapRequestAmendment)).Post("/amendments", h.HandleRequestAmendments)
			r.With(h.require(CapResolve)).Post("/amendments/resolve", h.HandleResolveBatch)
			r.With(h.require(CapResolve)).Post("/amendments/{requestID}/resolve", h.HandleResolve)
			r.With(h.require(CapComplianceCheck)).Post("/compliance-check", h.HandleComplianceCheck)
		})
	})
	r.Route("/previews", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.require(CapStage))
			r.Post("/sessions", h.HandleOpenSession)
			r.Delete("/sessions/{sessionID}", h.HandleCloseSession)
			r.Put("/sessions/{sessionID}/slots/{slot}", h.HandleStage)
			r.Delete("/sessions/{sessionID}/slots/{slot}", h.HandleUnstage)
		})
		r.Get("/{handleID}", h.HandlePreview)
		r.Get("/{handleID}/thumbnail", h.HandleThumbnail)
	})
}

// HandleSubmit handles POST /submissions.
func (h *Handler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	form, err := h.parseUpload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid submission form", err)
		return
	}
	branch := strings.TrimSpace(form.value("branch"))
	if own := auth.GetBranch(ctx); own != "" {
		if branch != "" && branch != own {
			h.fail(ctx, w, "branch mismatch", dErrors.New(dErrors.CodeForbidden, "cannot submit on behalf of another branch"))
			return
		}
		branch = own
	}

	sub, err := h.workflow.Submit(ctx, workflow.SubmitInput{
		CustomerName: form.value("customer_name"),
		Branch:       branch,
		Files:        form.files,
		SessionID:    form.value("preview_session"),
	})
	if err != nil {
		h.fail(ctx, w, "submit failed", err)
		return
	}

	h.logger.InfoContext(ctx, "submission created",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID.String(),
		"documents", len(sub.Documents),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, toSubmissionResponse(ctx, sub))
}

// HandleList handles GET /submissions. Branch callers only see their branch.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := workflow.Filter{
		Branch:  strings.TrimSpace(q.Get("branch")),
		Officer: strings.TrimSpace(q.Get("officer")),
	}
	if raw := q.Get("status"); raw != "" {
		st, err := models.ParseStatus(raw)
		if err != nil {
			h.fail(ctx, w, "invalid status filter", err)
			return
		}
		filter.Status = st
	}
	if !Can(requestcontext.Role(ctx), CapViewAll) {
		own := auth.GetBranch(ctx)
		if own == "" {
			h.fail(ctx, w, "branch caller without branch", dErrors.New(dErrors.CodeForbidden, "caller is not bound to a branch"))
			return
		}
		filter.Branch = own
	}

	subs, err := h.workflow.List(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list submissions failed", err)
		return
	}
	out := make([]*SubmissionResponse, 0, len(subs))
	for _, s := range subs {
		out = append(out, toSubmissionResponse(ctx, s))
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Submissions: out, Count: len(out)})
}

// HandleGet handles GET /submissions/{id}.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(ctx, sub))
}

func (h *Handler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.EventApprove)
}

func (h *Handler) HandleReject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.EventReject)
}

func (h *Handler) HandleEscalate(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, models.EventEscalate)
}

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, ev models.Event) {
	ctx := r.Context()
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	if ev != models.EventApprove && req.Reason == "" {
		h.fail(ctx, w, "decision without reason", dErrors.New(dErrors.CodeValidation, "reason is required"))
		return
	}

	role := requestcontext.Role(ctx)
	sub, err := h.workflow.Decide(ctx, id, ev, req.Reason, decisionGuard(role, ev))
	if err != nil {
		h.fail(ctx, w, string(ev)+" failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(ctx, sub))
}

// HandleAssign handles POST /submissions/{id}/assign.
func (h *Handler) HandleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AssignRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	officer := req.Officer
	if officer == "" {
		officer = requestcontext.ActorID(ctx)
	}
	sub, err := h.workflow.Assign(ctx, id, officer)
	if err != nil {
		h.fail(ctx, w, "assign failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toSubmissionResponse(ctx, sub))
}

// HandleRequestAmendments handles POST /submissions/{id}/amendments with
// either a single request or a "requests" list.
func (h *Handler) HandleRequestAmendments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.submissionID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AmendmentsRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	opened, err := h.amendments.RequestBatch(ctx, id, req.Specs())
	if err != nil {
		h.fail(ctx, w, "amendment request failed", err)
		return
	}
	h.logger.InfoContext(ctx, "amendments requested",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", id.String(),
		"count", len(opened),
	)
	httputil.WriteJSON(w, http.StatusCreated, RequestsResponse{Requests: opened})
}

// HandleResolve handles POST /submissions/{id}/amendments/{requestID}/resolve.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	requestID, err := domain.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		h.fail(ctx, w, "invalid request id", err)
		return
	}
	form, err := h.parseUpload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid resolution form", err)
		return
	}

	record, err := h.amendments.Resolve(ctx, sub.ID, requestID, amendment.ResolveInput{
		Comment:      form.value("comment"),
		ResponseType: form.value("response_type"),
		Files:        form.files,
		SessionID:    form.value("preview_session"),
	})
	if err != nil {
		h.fail(ctx, w, "resolve failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{Amendments: []models.Amendment{record}})
}

// HandleResolveBatch handles POST /submissions/{id}/amendments/resolve.
func (h *Handler) HandleResolveBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	form, err := h.parseUpload(w, r)
	if err != nil {
		h.fail(ctx, w, "invalid resolution form", err)
		return
	}

	records, err := h.amendments.ResolveBatch(ctx, sub.ID, amendment.BatchResolveInput{
		Comment:      form.value("comment"),
		ResponseType: form.value("response_type"),
		Files:        form.files,
		SessionID:    form.value("preview_session"),
		InfoRequests: form.infoRequests,
	})
	if err != nil {
		h.fail(ctx, w, "batch resolve failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ResolveResponse{Amendments: records})
}

// HandleComplianceCheck handles POST /submissions/{id}/compliance-check.
// The result is advisory and changes nothing.
func (h *Handler) HandleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sub, ok := h.load(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[ComplianceRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	res, err := h.compliance.Screen(ctx, compliance.Input{
		DocumentText:         req.DocumentText,
		RegulatoryGuidelines: req.RegulatoryGuidelines,
	})
	if err != nil {
		h.fail(ctx, w, "compliance check failed", err)
		return
	}
	h.logger.InfoContext(ctx, "compliance pre-screen",
		"request_id", requestcontext.RequestID(ctx),
		"submission_id", sub.ID.String(),
		"compliant", res.IsCompliant,
	)
	httputil.WriteJSON(w, http.StatusOK, ComplianceResponse{SubmissionID: sub.ID, Result: res, Advisory: true})
}

// load parses {id}, fetches the submission and applies branch scoping.
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*models.Submission, bool) {
	ctx := r.Context()
	id, ok := h.submissionID(w, r)
	if !ok {
		return nil, false
	}
	sub, err := h.workflow.Get(ctx, id)
	if err == nil {
		err = branchScope(requestcontext.Role(ctx), auth.GetBranch(ctx), sub)
	}
	if err != nil {
		h.fail(ctx, w, "load submission failed", err)
		return nil, false
	}
	return sub, true
}

func (h *Handler) submissionID(w http.ResponseWriter, r *http.Request) (domain.SubmissionID, bool) {
	id, err := domain.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(r.Context(), w, "invalid submission id", err)
		return domain.SubmissionID{}, false
	}
	return id, true
}

// fail logs at a level matching the error class and writes it.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	code := dErrors.CodeOf(err)
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"code", string(code),
		"error", err,
	}
	switch code {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation, dErrors.CodeStorageUnavailable:
		h.logger.ErrorContext(ctx, msg, attrs...)
	default:
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}
