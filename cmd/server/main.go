package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"kycreview/internal/amendment"
	"kycreview/internal/blobstore"
	"kycreview/internal/compliance"
	httpapi "kycreview/internal/http"
	jwttoken "kycreview/internal/jwt_token"
	"kycreview/internal/platform/config"
	"kycreview/internal/platform/httpserver"
	"kycreview/internal/platform/kafka"
	"kycreview/internal/platform/logger"
	"kycreview/internal/platform/metrics"
	"kycreview/internal/platform/postgres"
	"kycreview/internal/platform/redis"
	"kycreview/internal/policy"
	"kycreview/internal/preview"
	"kycreview/internal/revision"
	"kycreview/internal/submission/events"
	"kycreview/internal/submission/handler"
	"kycreview/internal/submission/intake"
	"kycreview/internal/submission/store"
	pgmirror "kycreview/internal/submission/store/postgres"
	redismirror "kycreview/internal/submission/store/redis"
	"kycreview/internal/workflow"
	audit "kycreview/pkg/platform/audit"
	"kycreview/pkg/platform/audit/publisher"
	auditcompliance "kycreview/pkg/platform/audit/publishers/compliance"
	auditmemory "kycreview/pkg/platform/audit/store/memory"
	auditpostgres "kycreview/pkg/platform/audit/store/postgres"
	"kycreview/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Server, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reviewPolicy, err := policy.Load(cfg.PolicyFile)
	if err != nil {
		return err
	}

	infra, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	// Audit: compliance events are written synchronously, operational
	// events through the buffered publisher. Both share one store.
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if infra.db != nil {
		pgAudit := auditpostgres.New(infra.db.SQL)
		if err := pgAudit.EnsureSchema(ctx); err != nil {
			return err
		}
		auditStore = pgAudit
	}
	complianceAudit := auditcompliance.New(auditStore,
		auditcompliance.WithLogger(log),
		auditcompliance.WithMetrics(auditcompliance.NewMetrics()),
	)
	opsAudit := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(256),
		publisher.WithLogger(log),
	)
	defer opsAudit.Close()

	mirror, err := buildMirror(ctx, cfg, infra, log)
	if err != nil {
		return err
	}
	storeOpts := []store.Option{
		store.WithLogger(log),
		store.WithMetrics(store.NewMetrics()),
	}
	if mirror != nil {
		storeOpts = append(storeOpts, store.WithMirror(mirror))
	}
	submissions := store.New(storeOpts...)

	blobs, err := buildBlobs(ctx, cfg, infra)
	if err != nil {
		return err
	}

	previews := preview.NewManager(reviewPolicy,
		preview.WithLogger(log),
		preview.WithMetrics(preview.NewMetrics()),
	)
	janitor := preview.NewJanitor(previews, reviewPolicy.PreviewSessionTTL, reviewPolicy.PreviewSweepInterval, log, opsAudit)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	tracker := revision.New()
	uploads := intake.New(previews, blobs, reviewPolicy.MaxFilesPerCall, log)
	engine := workflow.New(submissions, uploads, reviewPolicy,
		workflow.WithLogger(log),
		workflow.WithAuditPublisher(complianceAudit),
		workflow.WithMetrics(workflow.NewMetrics()),
		workflow.WithTracker(tracker),
	)
	amendments := amendment.New(submissions, engine, uploads, reviewPolicy,
		amendment.WithLogger(log),
		amendment.WithAuditPublisher(complianceAudit),
		amendment.WithMetrics(amendment.NewMetrics()),
		amendment.WithTracker(tracker),
	)
	screening := compliance.NewService(buildChecker(cfg),
		compliance.WithDefaultGuidelines(cfg.Compliance.Guidelines),
		compliance.WithBreaker(circuit.New("compliance")),
		compliance.WithTimeout(cfg.Compliance.Timeout),
		compliance.WithLogger(log),
		compliance.WithMetrics(compliance.NewMetrics()),
	)

	g, gctx := errgroup.WithContext(ctx)

	var relayStats httpapi.RelayStats
	if infra.producer != nil {
		relay := events.NewRelay(infra.producer,
			events.WithLogger(log),
			events.WithMetrics(events.NewMetrics()),
		)
		detach := relay.Attach(submissions)
		defer detach()
		relayStats = relay
		g.Go(func() error { return relay.Run(gctx) })
	}
	if mirror != nil {
		f := newFollower(submissions, log)
		detach := submissions.Subscribe(f.Handle)
		defer detach()
		g.Go(func() error { return f.Run(gctx) })
	}

	router := httpapi.NewRouter(httpapi.Config{
		Validator: jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience),
		Features: []httpapi.Routes{
			handler.New(engine, amendments, screening, previews, cfg.MaxUploadBytes, log),
		},
		Admin:          httpapi.NewAdmin(opsAudit, janitor, submissions, previews, relayStats, log),
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.AllowedOrigins,
		Metrics:        metrics.New(),
		Health:         infra.healthChecks(),
		Logger:         log,
	})
	srv := httpserver.New(cfg.Addr, router)

	g.Go(func() error {
		log.Info("starting kycreview", "addr", cfg.Addr, "mirror", cfg.MirrorBackend, "blobs", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// infra holds the optional external connections.
type infra struct {
	db       *postgres.DB
	redis    *redis.Client
	producer *kafka.Producer
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := &infra{}
	var err error
	if out.db, err = postgres.Open(connectCtx, cfg.Postgres); err != nil {
		return nil, err
	}
	if out.redis, err = redis.New(connectCtx, cfg.Redis); err != nil {
		out.close()
		return nil, err
	}
	if len(cfg.Kafka.Brokers) > 0 {
		out.producer, err = kafka.NewProducer(kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			Partitions:        3,
			ReplicationFactor: 1,
		})
		if err != nil {
			out.close()
			return nil, err
		}
		if err := out.producer.EnsureTopic(connectCtx, 3, 1); err != nil {
			log.Warn("could not ensure event topic", "topic", cfg.Kafka.Topic, "error", err)
		}
	}
	return out, nil
}

func (i *infra) healthChecks() []httpapi.HealthCheck {
	var checks []httpapi.HealthCheck
	if i.db != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "postgres", Check: i.db.Health})
	}
	if i.redis != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "redis", Check: i.redis.Health})
	}
	if i.producer != nil {
		checks = append(checks, httpapi.HealthCheck{Name: "kafka", Check: i.producer.Health})
	}
	return checks
}

func (i *infra) close() {
	if i.producer != nil {
		i.producer.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func buildMirror(ctx context.Context, cfg config.Server, in *infra, log *slog.Logger) (store.Mirror, error) {
	switch cfg.MirrorBackend {
	case config.BackendPostgres:
		m := pgmirror.New(in.db.SQL, in.db.DSN, log)
		if err := m.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case config.BackendRedis:
		return redismirror.New(in.redis.Client, log), nil
	}
	return nil, nil
}

func buildBlobs(ctx context.Context, cfg config.Server, in *infra) (intake.BlobStore, error) {
	if cfg.BlobBackend == config.BackendPostgres {
		s := blobstore.NewPostgresStore(in.db.Pool)
		if err := s.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return blobstore.NewMemoryStore(), nil
}

func buildChecker(cfg config.Server) compliance.Checker {
	if cfg.Compliance.URL == "" {
		return compliance.Static{}
	}
	var opts []compliance.ClientOption
	if cfg.Compliance.APIKey != "" {
		opts = append(opts, compliance.WithAPIKey(cfg.Compliance.APIKey))
	}
	return compliance.NewClient(cfg.Compliance.URL, opts...)
}
