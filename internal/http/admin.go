package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"kycreview/pkg/domain"
	audit "kycreview/pkg/platform/audit"
	"kycreview/pkg/platform/httputil"
	"kycreview/pkg/requestcontext"
)

// AuditTrail lists the recorded audit events of one submission.
type AuditTrail interface {
	List(ctx context.Context, id domain.SubmissionID) ([]audit.Event, error)
}

// Sweeper releases idle preview sessions on demand.
type Sweeper interface {
	Sweep(ctx context.Context) int
}

type StoreStats interface{ Len() int }

type PreviewStats interface{ Live() int }

type RelayStats interface{ Pending() int }

// Admin serves operational endpoints behind the admin token.
type Admin struct {
	trail    AuditTrail
	sweeper  Sweeper
	store    StoreStats
	previews PreviewStats
	relay    RelayStats
	logger   *slog.Logger
}

// NewAdmin builds the admin handler. relay may be nil when no broker is
// configured.
func NewAdmin(trail AuditTrail, sweeper Sweeper, store StoreStats, previews PreviewStats, relay RelayStats, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{trail: trail, sweeper: sweeper, store: store, previews: previews, relay: relay, logger: logger}
}

func (a *Admin) Register(r chi.Router) {
	r.Get("/stats", a.HandleStats)
	r.Post("/previews/sweep", a.HandleSweep)
	r.Get("/submissions/{id}/audit", a.HandleAuditTrail)
}

type statsResponse struct {
	Submissions   int `json:"submissions"`
	LiveHandles   int `json:"live_preview_handles"`
	PendingEvents int `json:"pending_events"`
}

func (a *Admin) HandleStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{Submissions: a.store.Len(), LiveHandles: a.previews.Live()}
	if a.relay != nil {
		resp.PendingEvents = a.relay.Pending()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (a *Admin) HandleSweep(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	released := a.sweeper.Sweep(ctx)
	a.logger.InfoContext(ctx, "manual preview sweep",
		"released", released,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, map[string]int{"released_sessions": released})
}

type auditEventResponse struct {
	Category  string    `json:"category"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Subject   string    `json:"subject,omitempty"`
	Decision  string    `json:"decision,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Role      string    `json:"role,omitempty"`
}

func (a *Admin) HandleAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := domain.ParseSubmissionID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	events, err := a.trail.List(ctx, id)
	if err != nil {
		a.logger.ErrorContext(ctx, "list audit events failed",
			"submission_id", id.String(),
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		httputil.WriteError(w, err)
		return
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, auditEventResponse{
			Category:  string(e.Category),
			Timestamp: e.Timestamp,
			Action:    e.Action,
			Subject:   e.Subject,
			Decision:  e.Decision,
			Reason:    e.Reason,
			RequestID: e.RequestID,
			ActorID:   e.ActorID,
			Role:      e.Role,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"submission_id": id, "events": out})
}
