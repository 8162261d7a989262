// Package store holds the authoritative set of submissions.
//
// All mutation goes through Apply, which runs the mutator on a clone under a
// per-submission lock, validates the result, writes it to the mirror and only
// then swaps it in. Readers see either the previous or the next value.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"kycreview/internal/submission/models"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/sentinel"
)

// Mirror is the durable copy of store state. It replaces whole documents and
// offers no transactions beyond that.
type Mirror interface {
	// CreateOrReplace returns sentinel.ErrStale when the mirror already holds
	// the same or a later revision.
	CreateOrReplace(ctx context.Context, sub *models.Submission) error
	// Read returns sentinel.ErrNotFound for unknown ids.
	Read(ctx context.Context, id domain.SubmissionID) (*models.Submission, error)
	// Subscribe calls fn with every value written for id until the returned
	// cancel func runs or ctx ends.
	Subscribe(ctx context.Context, id domain.SubmissionID, fn func(*models.Submission)) (func(), error)
}

// Change is delivered to subscribers after each commit. Previous is nil for
// newly created submissions.
type Change struct {
	Previous *models.Submission
	Current  *models.Submission
}

// Mutator computes the next value of a submission in place. It receives a
// private clone; returning an error discards it.
type Mutator func(sub *models.Submission) error

//go:generate mockgen -source=store.go -destination=mocks/mocks.go -package=mocks Mirror

const numShards = 64

// defaultApplyTimeout bounds a commit whose caller set no deadline.
const defaultApplyTimeout = 5 * time.Second

type Store struct {
	shards [numShards]sync.Mutex

	mu    sync.RWMutex
	items map[domain.SubmissionID]*models.Submission
	order []domain.SubmissionID

	subMu  sync.RWMutex
	nextID int
	subs   map[int]func(Change)

	mirror  Mirror
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Store)

func WithMirror(m Mirror) Option {
	return func(s *Store) {
		s.mirror = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(s *Store) {
		s.metrics = metrics
	}
}

func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		items:   make(map[domain.SubmissionID]*models.Submission),
		subs:    make(map[int]func(Change)),
		timeout: defaultApplyTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a copy of the submission. Unknown ids fall back to the mirror,
// so an instance can serve submissions created elsewhere.
func (s *Store) Get(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	s.mu.RLock()
	sub, ok := s.items[id]
	s.mu.RUnlock()
	if ok {
		return sub.Clone(), nil
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	sub, err := s.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return sub.Clone(), nil
}

// List returns copies of every submission in insertion order.
func (s *Store) List(_ context.Context) ([]*models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Submission, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out, nil
}

// Create inserts a new submission. It fails with sentinel.ErrConflict when the
// id is taken.
func (s *Store) Create(ctx context.Context, sub *models.Submission) (*models.Submission, error) {
	lock := s.lockFor(sub.ID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCanceled, "create aborted")
	}
	s.mu.RLock()
	_, exists := s.items[sub.ID]
	s.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("submission %s: %w", sub.ID, sentinel.ErrConflict)
	}

	next := sub.Clone()
	next.Revision = 1
	if err := next.Validate(); err != nil {
		s.recordFailure("invariant")
		return nil, err
	}
	if err := s.commitLocked(ctx, nil, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Apply runs mutate against a clone of the current value and commits the
// result as one update. Errors from mutate are returned unchanged and leave
// the stored value untouched.
func (s *Store) Apply(ctx context.Context, id domain.SubmissionID, mutate Mutator) (*models.Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCanceled, "apply aborted")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.loadLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	next := current.Clone()
	if err := mutate(next); err != nil {
		s.recordFailure("rejected")
		return nil, err
	}
	// A mutation computed by an abandoned caller is never committed.
	if err := ctx.Err(); err != nil {
		s.recordFailure("canceled")
		return nil, dErrors.Wrap(err, dErrors.CodeCanceled, "apply aborted")
	}
	if err := checkImmutable(current, next); err != nil {
		s.recordFailure("invariant")
		return nil, err
	}
	if err := next.Validate(); err != nil {
		s.recordFailure("invariant")
		return nil, err
	}
	next.Revision = current.Revision + 1
	if err := s.commitLocked(ctx, current, next); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

// Subscribe registers fn for every committed change. fn runs while the
// submission's lock is held, so it must not call Apply for the same id.
func (s *Store) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

// Follow installs updates that other instances write to the mirror for id.
// Values at or below the local revision are ignored.
func (s *Store) Follow(ctx context.Context, id domain.SubmissionID) (func(), error) {
	if s.mirror == nil {
		return func() {}, nil
	}
	return s.mirror.Subscribe(ctx, id, func(remote *models.Submission) {
		if remote == nil || remote.ID != id {
			return
		}
		lock := s.lockFor(id)
		lock.Lock()
		defer lock.Unlock()

		s.mu.RLock()
		current, ok := s.items[id]
		s.mu.RUnlock()
		if ok && remote.Revision <= current.Revision {
			return
		}
		if err := remote.Validate(); err != nil {
			s.logger.WarnContext(ctx, "ignoring invalid mirrored submission",
				"submission_id", id.String(),
				"revision", remote.Revision,
				"error", err,
			)
			return
		}
		s.install(remote.Clone())
		s.notify(Change{Previous: cloneOrNil(current), Current: remote.Clone()})
	})
}

// Len returns the number of submissions held in memory.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) lockFor(id domain.SubmissionID) *sync.Mutex {
	return &s.shards[hashID(id.String())%numShards]
}

// loadLocked returns the stored value, reading through to the mirror on a
// miss. The caller holds the shard lock.
func (s *Store) loadLocked(ctx context.Context, id domain.SubmissionID) (*models.Submission, error) {
	s.mu.RLock()
	sub, ok := s.items[id]
	s.mu.RUnlock()
	if ok {
		return sub, nil
	}
	if s.mirror == nil {
		return nil, fmt.Errorf("submission %s: %w", id, sentinel.ErrNotFound)
	}
	sub, err := s.mirror.Read(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("submission %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read mirror: %w: %w", sentinel.ErrUnavailable, err)
	}
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	s.install(sub)
	return sub, nil
}

func (s *Store) commitLocked(ctx context.Context, previous, next *models.Submission) error {
	if s.mirror != nil {
		err := s.mirror.CreateOrReplace(ctx, next)
		if errors.Is(err, sentinel.ErrStale) {
			s.recordFailure("stale")
			return fmt.Errorf("submission %s changed on another instance: %w", next.ID, sentinel.ErrConflict)
		}
		if err != nil {
			s.recordFailure("mirror")
			s.logger.ErrorContext(ctx, "mirror write failed",
				"submission_id", next.ID.String(),
				"revision", next.Revision,
				"error", err,
			)
			return fmt.Errorf("write mirror: %w: %w", sentinel.ErrUnavailable, err)
		}
	}
	s.install(next)
	if s.metrics != nil {
		s.metrics.Commits.Inc()
	}
	s.notify(Change{Previous: cloneOrNil(previous), Current: next.Clone()})
	return nil
}

func (s *Store) install(sub *models.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[sub.ID]; !ok {
		s.order = append(s.order, sub.ID)
	}
	s.items[sub.ID] = sub
}

func (s *Store) notify(c Change) {
	s.subMu.RLock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.RUnlock()
	for _, fn := range fns {
		fn(c)
	}
}

func (s *Store) recordFailure(reason string) {
	if s.metrics != nil {
		s.metrics.ApplyFailures.WithLabelValues(reason).Inc()
	}
}

// checkImmutable rejects mutations that rewrite identity fields or history.
func checkImmutable(prev, next *models.Submission) error {
	if prev.ID != next.ID || !prev.SubmittedAt.Equal(next.SubmittedAt) {
		return dErrors.New(dErrors.CodeInvariantViolation, "submission identity changed")
	}
	if len(next.AmendmentHistory) < len(prev.AmendmentHistory) {
		return dErrors.New(dErrors.CodeInvariantViolation, "amendment history shrank")
	}
	for i := range prev.AmendmentHistory {
		if !reflect.DeepEqual(prev.AmendmentHistory[i], next.AmendmentHistory[i]) {
			return dErrors.New(dErrors.CodeInvariantViolation, "amendment history entry rewritten")
		}
	}
	if len(next.Documents) < len(prev.Documents) {
		return dErrors.New(dErrors.CodeInvariantViolation, "documents removed")
	}
	return nil
}

func cloneOrNil(sub *models.Submission) *models.Submission {
	if sub == nil {
		return nil
	}
	return sub.Clone()
}

// hashID is FNV-1a over the id string.
func hashID(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
