package handler

import (
	"net/http"
	"slices"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/httputil"
	"kycreview/pkg/requestcontext"
)

// Capability is one thing a caller may do. Roles map to a fixed set.
type Capability string

const (
	CapSubmit           Capability = "submit"
	CapResolve          Capability = "resolve"
	CapStage            Capability = "stage"
	CapReview           Capability = "review"
	CapRequestAmendment Capability = "request_amendment"
	CapEscalate         Capability = "escalate"
	CapAssign           Capability = "assign"
	CapComplianceCheck  Capability = "compliance_check"
	CapDecideEscalated  Capability = "decide_escalated"
	CapViewAll          Capability = "view_all"
)

var reviewer = []Capability{
	CapReview, CapRequestAmendment, CapEscalate, CapAssign, CapComplianceCheck, CapViewAll,
}

func capabilitiesOf(role domain.Role) []Capability {
	switch role {
	case domain.RoleBranch:
		return []Capability{CapSubmit, CapResolve, CapStage}
	case domain.RoleOfficer:
		return reviewer
	case domain.RoleSupervisor:
		return append(slices.Clip(reviewer), CapDecideEscalated)
	}
	return nil
}

// Can reports whether role holds c.
func Can(role domain.Role, c Capability) bool {
	return slices.Contains(capabilitiesOf(role), c)
}

// require gates a route on a capability of the authenticated caller.
func (h *Handler) require(c Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			role := requestcontext.Role(ctx)
			if !Can(role, c) {
				h.logger.WarnContext(ctx, "capability denied",
					"role", role.String(),
					"capability", string(c),
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "role "+role.String()+" may not "+string(c)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// decisionGuard refuses approve/reject of an escalated submission unless
// the caller may decide escalated cases.
func decisionGuard(role domain.Role, ev models.Event) func(*models.Submission) error {
	return func(s *models.Submission) error {
		if ev == models.EventEscalate || s.Status != models.StatusEscalated {
			return nil
		}
		if !Can(role, CapDecideEscalated) {
			return dErrors.New(dErrors.CodeForbidden, "escalated submissions are decided by a supervisor")
		}
		return nil
	}
}

// branchScope rejects branch callers acting on another branch's submission.
// An empty token branch means the identity provider does not scope branches.
func branchScope(role domain.Role, callerBranch string, s *models.Submission) error {
	if role != domain.RoleBranch || callerBranch == "" {
		return nil
	}
	if s.Branch != callerBranch {
		return dErrors.New(dErrors.CodeNotFound, "submission not found")
	}
	return nil
}

// Actions lists what role may do with s next, for the UI.
func Actions(role domain.Role, s *models.Submission) []string {
	var out []string
	add := func(c Capability, ev models.Event, name string) {
		if !Can(role, c) {
			return
		}
		if ev != "" {
			if _, err := s.Status.Next(ev); err != nil {
				return
			}
		}
		out = append(out, name)
	}
	decide := CapReview
	if s.Status == models.StatusEscalated {
		decide = CapDecideEscalated
	}
	add(decide, models.EventApprove, "approve")
	add(decide, models.EventReject, "reject")
	add(CapEscalate, models.EventEscalate, "escalate")
	add(CapRequestAmendment, models.EventRequestAmendment, "request_amendment")
	if len(s.PendingAmendments) > 0 {
		add(CapResolve, "", "resolve")
	}
	if !s.Status.IsTerminal() {
		add(CapAssign, "", "assign")
	}
	return out
}
