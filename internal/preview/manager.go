// Package preview manages ephemeral, revocable handles for files staged in a
// form but not yet committed to a submission.
//
// A handle is live from Create (or Replace) until Release. Sessions scope
// handles to one in-progress form and must be released on every exit path;
// the janitor releases sessions whose owner vanished.
package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"kycreview/internal/policy"
	dErrors "kycreview/pkg/domain-errors"
)

// Handle is a live reference to a staged file. Handles are never persisted.
type Handle struct {
	ID         string
	SessionID  string
	Slot       string
	DisplayRef string
	File       File
	Thumbnail  []byte
	CreatedAt  time.Time
}

// Manager owns every live handle and session.
type Manager struct {
	mu       sync.Mutex
	live     map[string]*Handle
	sessions map[string]*Session

	maxBytes  int64
	maxPixels int64
	allowed   map[string]bool
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager builds a manager enforcing the upload limits of p.
func NewManager(p policy.Review, opts ...Option) *Manager {
	m := &Manager{
		live:     make(map[string]*Handle),
		sessions: make(map[string]*Session),
		maxBytes:  p.MaxFileBytes,
		maxPixels: p.MaxImagePixels,
		allowed:   make(map[string]bool, len(p.AllowedMediaTypes)),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, mt := range p.AllowedMediaTypes {
		m.allowed[mt] = true
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create validates f and allocates a new live handle for it.
func (m *Manager) Create(ctx context.Context, f File) (*Handle, error) {
	return m.Replace(ctx, nil, f)
}

// Replace allocates a handle for f and revokes old in the same critical
// section, so the slot never has two live handles. A nil old behaves like
// Create. If f is invalid, old stays live. A handle owned by a session is
// replaced through that session's slot.
func (m *Manager) Replace(ctx context.Context, old *Handle, f File) (*Handle, error) {
	if old != nil && old.SessionID != "" {
		sess, ok := m.Session(old.SessionID)
		if !ok {
			return nil, dErrors.New(dErrors.CodeNotFound, "preview session is closed")
		}
		return sess.replace(ctx, old, f)
	}
	return m.allocate(ctx, old, "", "", f)
}

func (m *Manager) allocate(ctx context.Context, old *Handle, sessionID, slot string, f File) (*Handle, error) {
	h, err := m.prepare(ctx, f)
	if err != nil {
		return nil, err
	}
	h.SessionID, h.Slot = sessionID, slot

	m.mu.Lock()
	defer m.mu.Unlock()
	if old != nil {
		m.revokeLocked(old)
	}
	m.live[h.ID] = h
	m.observeLiveLocked()
	return h, nil
}

func (m *Manager) prepare(ctx context.Context, f File) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeCanceled, "staging cancelled")
	}
	clean, err := m.normalize(f)
	if err != nil {
		return nil, err
	}
	thumb, err := thumbnail(clean, m.maxPixels)
	if err != nil {
		return nil, err
	}
	id := ulid.Make().String()
	return &Handle{
		ID:         id,
		DisplayRef: "preview://" + id,
		File:       clean,
		Thumbnail:  thumb,
		CreatedAt:  m.now(),
	}, nil
}

// Release revokes h. Releasing a revoked or nil handle is a no-op. A handle
// owned by an open session is also removed from its slot.
func (m *Manager) Release(h *Handle) {
	if h == nil {
		return
	}
	if h.SessionID != "" {
		if sess, ok := m.Session(h.SessionID); ok {
			sess.detach(h)
			return
		}
	}
	m.release(h)
}

// ReleaseAll revokes every handle in hs.
func (m *Manager) ReleaseAll(hs []*Handle) {
	for _, h := range hs {
		m.Release(h)
	}
}

func (m *Manager) release(hs ...*Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hs {
		if h != nil {
			m.revokeLocked(h)
		}
	}
	m.observeLiveLocked()
}

func (m *Manager) revokeLocked(h *Handle) {
	if _, ok := m.live[h.ID]; ok {
		delete(m.live, h.ID)
		if m.metrics != nil {
			m.metrics.HandlesReleased.Inc()
		}
	}
}

func (m *Manager) observeLiveLocked() {
	if m.metrics != nil {
		m.metrics.HandlesLive.Set(float64(len(m.live)))
	}
}

// Lookup returns a live handle by id.
func (m *Manager) Lookup(id string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.live[id]
	return h, ok
}

// IsLive reports whether h has not been released.
func (m *Manager) IsLive(h *Handle) bool {
	if h == nil {
		return false
	}
	_, ok := m.Lookup(h.ID)
	return ok
}

// Live returns the number of live handles.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// NewSession opens a session owned by owner (the actor id of the form user).
func (m *Manager) NewSession(owner string) *Session {
	s := &Session{
		ID:       ulid.Make().String(),
		Owner:    owner,
		mgr:      m,
		slots:    make(map[string]*Handle),
		lastUsed: m.now(),
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Session returns an open session by id.
func (m *Manager) Session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *Manager) forgetSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// SweepIdle releases sessions idle for longer than ttl and returns how many
// were released.
func (m *Manager) SweepIdle(ttl time.Duration) int {
	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	cutoff := m.now().Add(-ttl)
	swept := 0
	for _, s := range open {
		if s.idleSince().Before(cutoff) {
			s.ReleaseAll()
			swept++
		}
	}
	if swept > 0 && m.metrics != nil {
		m.metrics.SessionsSwept.Add(float64(swept))
	}
	return swept
}
