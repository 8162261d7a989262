package preview

import (
	"context"
	"sync"
	"time"

	dErrors "kycreview/pkg/domain-errors"
)

// Session scopes preview handles to one in-progress form. Each slot holds at
// most one live handle. ReleaseAll closes the session; it is safe to call
// from every exit path, any number of times.
//
// Lock order is Session.mu before Manager.mu.
type Session struct {
	ID    string
	Owner string

	mgr      *Manager
	mu       sync.Mutex
	slots    map[string]*Handle
	order    []string
	lastUsed time.Time
	closed   bool
}

// Stage puts f in slot, replacing whatever the slot held.
func (s *Session) Stage(ctx context.Context, slot string, f File) (*Handle, error) {
	if slot == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "slot is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, dErrors.New(dErrors.CodeNotFound, "preview session is closed")
	}
	return s.stageLocked(ctx, slot, f)
}

// replace swaps old for f, provided old is still the handle staged in its slot.
func (s *Session) replace(ctx context.Context, old *Handle, f File) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, dErrors.New(dErrors.CodeNotFound, "preview session is closed")
	}
	if current, ok := s.slots[old.Slot]; !ok || current.ID != old.ID {
		return nil, dErrors.New(dErrors.CodeConflict, "handle is no longer staged in slot "+old.Slot)
	}
	return s.stageLocked(ctx, old.Slot, f)
}

func (s *Session) stageLocked(ctx context.Context, slot string, f File) (*Handle, error) {
	old, existed := s.slots[slot]
	h, err := s.mgr.allocate(ctx, old, s.ID, slot, f)
	if err != nil {
		return nil, err
	}
	s.slots[slot] = h
	if !existed {
		s.order = append(s.order, slot)
	}
	s.lastUsed = s.mgr.now()
	return h, nil
}

// Remove releases the handle in slot, if any.
func (s *Session) Remove(slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.slots[slot]
	if !ok {
		return
	}
	s.removeLocked(slot)
	s.mgr.release(h)
}

// detach releases h and empties its slot if h is still the one staged there.
func (s *Session) detach(h *Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.slots[h.Slot]; ok && current.ID == h.ID {
		s.removeLocked(h.Slot)
	}
	s.mgr.release(h)
}

func (s *Session) removeLocked(slot string) {
	delete(s.slots, slot)
	for i, name := range s.order {
		if name == slot {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.lastUsed = s.mgr.now()
}

// Handle returns the live handle staged in slot.
func (s *Session) Handle(slot string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.slots[slot]
	if !ok || !s.mgr.IsLive(h) {
		return nil, false
	}
	return h, true
}

// Staged returns the staged handles in staging order.
func (s *Session) Staged() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, 0, len(s.order))
	for _, slot := range s.order {
		out = append(out, s.slots[slot])
	}
	return out
}

// Closed reports whether ReleaseAll has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// ReleaseAll revokes every staged handle and closes the session.
func (s *Session) ReleaseAll() {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.slots))
	for _, h := range s.slots {
		handles = append(handles, h)
	}
	s.slots = map[string]*Handle{}
	s.order = nil
	s.closed = true
	s.mu.Unlock()

	s.mgr.release(handles...)
	s.mgr.forgetSession(s.ID)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}
