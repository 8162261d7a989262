// Package compliance runs advisory compliance pre-screens of document text
// against regulatory guidelines. Results never gate workflow transitions.
package compliance

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/circuit"
)

// Input is the text to screen and the guidelines to screen it against.
type Input struct {
	DocumentText         string
	RegulatoryGuidelines string
}

type Result struct {
	ComplianceSummary string `json:"compliance_summary"`
	IsCompliant       bool   `json:"is_compliant"`
}

// Checker is the remote analysis port.
//
//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Checker
type Checker interface {
	Check(ctx context.Context, in Input) (Result, error)
}

const (
	maxDocumentText = 200_000
	defaultTimeout  = 20 * time.Second
)

// Service guards a Checker with a circuit breaker and maps its failures to
// recoverable coded errors.
type Service struct {
	checker    Checker
	breaker    *circuit.Breaker
	guidelines string
	timeout    time.Duration
	logger     *slog.Logger
	metrics    *Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

// WithDefaultGuidelines sets the guidelines used when a caller sends none.
func WithDefaultGuidelines(g string) Option {
	return func(s *Service) {
		s.guidelines = g
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Service) {
		s.breaker = b
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(checker Checker, opts ...Option) *Service {
	s := &Service{
		checker: checker,
		breaker: circuit.New("compliance"),
		timeout: defaultTimeout,
		logger:  slog.Default(),
		tracer:  otel.Tracer("kycreview/internal/compliance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Screen checks in. Failures of the remote service come back as
// CodeUnavailable and may be retried by the caller.
func (s *Service) Screen(ctx context.Context, in Input) (_ Result, err error) {
	ctx, span := s.tracer.Start(ctx, "compliance.Screen", trace.WithAttributes(
		attribute.Int("compliance.text_length", len(in.DocumentText)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
	}()

	in.DocumentText = strings.TrimSpace(in.DocumentText)
	if in.DocumentText == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "document text is required")
	}
	if len(in.DocumentText) > maxDocumentText {
		return Result{}, dErrors.New(dErrors.CodeValidation, "document text is too long")
	}
	if strings.TrimSpace(in.RegulatoryGuidelines) == "" {
		in.RegulatoryGuidelines = s.guidelines
	}
	if in.RegulatoryGuidelines == "" {
		return Result{}, dErrors.New(dErrors.CodeValidation, "regulatory guidelines are required")
	}

	if !s.breaker.Allow() {
		s.observe("rejected")
		return Result{}, dErrors.New(dErrors.CodeUnavailable, "compliance service temporarily unavailable")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	start := time.Now()
	res, err := s.checker.Check(callCtx, in)
	if s.metrics != nil {
		s.metrics.Duration.Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.observe("canceled")
			return Result{}, dErrors.Wrap(ctxErr, dErrors.CodeCanceled, "compliance check cancelled")
		}
		_, change := s.breaker.RecordFailure()
		if change.Opened {
			s.logger.WarnContext(ctx, "compliance circuit opened", "breaker", s.breaker.Name())
		}
		category := CategoryOf(err)
		if errors.Is(err, context.DeadlineExceeded) {
			category = CategoryTimeout
		}
		s.observe(string(category))
		s.logger.WarnContext(ctx, "compliance check failed",
			"category", string(category),
			"retryable", Retryable(err),
			"error", err,
		)
		return Result{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "compliance check failed")
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.logger.InfoContext(ctx, "compliance circuit closed", "breaker", s.breaker.Name())
	}
	s.observe("ok")
	span.SetAttributes(attribute.Bool("compliance.compliant", res.IsCompliant))
	return res, nil
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.Checks.WithLabelValues(outcome).Inc()
	}
}
