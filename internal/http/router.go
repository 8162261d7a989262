// Package httpapi assembles the public router: shared middleware, the
// authenticated submission and preview routes, health and metrics, and the
// token-guarded admin endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kycreview/internal/platform/metrics"
	"kycreview/pkg/domain"
	"kycreview/pkg/platform/httputil"
	adminmw "kycreview/pkg/platform/middleware/admin"
	"kycreview/pkg/platform/middleware/auth"
	"kycreview/pkg/platform/middleware/metadata"
	"kycreview/pkg/platform/middleware/request"
	"kycreview/pkg/platform/middleware/requesttime"
	"kycreview/pkg/requestcontext"
)

const requestTimeout = 90 * time.Second

// Routes is implemented by feature handlers that mount onto the
// authenticated router.
type Routes interface {
	Register(r chi.Router)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config carries everything the router needs.
type Config struct {
	Validator      auth.JWTValidator
	Features       []Routes
	Admin          *Admin
	AdminToken     string
	AllowedOrigins []string
	Metrics        *metrics.Metrics
	Health         []HealthCheck
	Logger         *slog.Logger
}

// NewRouter wires all endpoints.
func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(accessLog(logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-File-Name"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler(cfg.Health, logger))
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Use(auth.RequireAuth(cfg.Validator, logger))
		r.Use(auth.RequireRole(logger, domain.RoleBranch, domain.RoleOfficer, domain.RoleSupervisor))
		for _, f := range cfg.Features {
			f.Register(r)
		}
	})

	if cfg.Admin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminmw.RequireAdminToken(cfg.AdminToken, logger))
			cfg.Admin.Register(r)
		})
	}
	return r
}

func accessLog(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ctx := r.Context()
			level := slog.LevelInfo
			if ww.Status() >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(ctx, level, "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"client_ip", requestcontext.ClientIP(ctx),
				"request_id", requestcontext.RequestID(ctx),
			)
		})
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed",
					"dependency", c.Name,
					"error", err,
				)
				resp.Checks[c.Name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
