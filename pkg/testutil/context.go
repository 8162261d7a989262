package testutil

import (
	"context"
	"net/http"

	"kycreview/pkg/domain"
	authmw "kycreview/pkg/platform/middleware/auth"
	"kycreview/pkg/requestcontext"
)

// WithCaller puts an authenticated caller on the request context, as the
// auth middleware would after validating a token. An empty branch means the
// caller is not bound to one.
func WithCaller(req *http.Request, actorID string, role domain.Role, branch string) *http.Request {
	ctx := requestcontext.WithActor(req.Context(), actorID, role)
	ctx = context.WithValue(ctx, authmw.ContextKeyBranch, branch)
	return req.WithContext(ctx)
}
