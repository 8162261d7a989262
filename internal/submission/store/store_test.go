package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycreview/internal/submission/models"
	"kycreview/internal/submission/store/mocks"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/sentinel"
)

var t0 = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func newSubmission(t *testing.T) *models.Submission {
	t.Helper()
	sub, err := models.NewSubmission(domain.NewSubmissionID(), "Ada Obi", "riverside", []models.SubmittedDocument{{
		ID:           domain.NewDocumentID(),
		DocumentType: models.DocumentIDCard,
		FileName:     "id.pdf",
		Size:         2048,
		Format:       "application/pdf",
		UploadedAt:   t0,
		Version:      1,
		URL:          "blob://1",
	}}, t0)
	if err != nil {
		t.Fatalf("new submission: %v", err)
	}
	return sub
}

type StoreSuite struct {
	suite.Suite
	store *Store
	ctx   context.Context
}

func TestStoreSuite(t *testing.T) {
	suite.Run(t, new(StoreSuite))
}

func (s *StoreSuite) SetupTest() {
	s.store = New()
	s.ctx = context.Background()
}

func (s *StoreSuite) create() *models.Submission {
	created, err := s.store.Create(s.ctx, newSubmission(s.T()))
	s.Require().NoError(err)
	return created
}

func (s *StoreSuite) TestCreateAndGet() {
	s.Run("assigns the first revision", func() {
		created := s.create()
		s.Equal(int64(1), created.Revision)

		got, err := s.store.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(created.ID, got.ID)
	})

	s.Run("duplicate id conflicts", func() {
		created := s.create()
		_, err := s.store.Create(s.ctx, created)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("unknown id is not found", func() {
		_, err := s.store.Get(s.ctx, domain.NewSubmissionID())
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.store.Apply(s.ctx, domain.NewSubmissionID(), func(*models.Submission) error { return nil })
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returned values are copies", func() {
		created := s.create()
		got, err := s.store.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		got.Documents[0].FileName = "tampered.pdf"

		again, err := s.store.Get(s.ctx, created.ID)
		s.Require().NoError(err)
		s.Equal("id.pdf", again.Documents[0].FileName)
	})
}

func (s *StoreSuite) TestListKeepsInsertionOrder() {
	var ids []domain.SubmissionID
	for range 5 {
		ids = append(ids, s.create().ID)
	}
	_, err := s.store.Apply(s.ctx, ids[0], func(sub *models.Submission) error {
		sub.ApplyAssignment("officer-7", t0)
		return nil
	})
	s.Require().NoError(err)

	list, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(list, 5)
	for i, sub := range list {
		s.Equal(ids[i], sub.ID)
	}
}

func (s *StoreSuite) TestApply() {
	s.Run("commits and bumps the revision", func() {
		created := s.create()
		var changes []Change
		cancel := s.store.Subscribe(func(c Change) { changes = append(changes, c) })
		defer cancel()

		next, err := s.store.Apply(s.ctx, created.ID, func(sub *models.Submission) error {
			sub.ApplyDecision(models.EventEscalate, t0.Add(time.Minute))
			return nil
		})
		s.Require().NoError(err)
		s.Equal(models.StatusEscalated, next.Status)
		s.Equal(int64(2), next.Revision)
		s.Require().Len(changes, 1)
		s.Equal(models.StatusPending, changes[0].Previous.Status)
		s.Equal(models.StatusEscalated, changes[0].Current.Status)
	})

	s.Run("mutator error leaves state unchanged", func() {
		created := s.create()
		boom := dErrors.New(dErrors.CodeValidation, "reason too short")
		_, err := s.store.Apply(s.ctx, created.ID, func(sub *models.Submission) error {
			sub.Status = models.StatusApproved
			return boom
		})
		s.ErrorIs(err, boom)

		got, _ := s.store.Get(s.ctx, created.ID)
		s.Equal(models.StatusPending, got.Status)
		s.Equal(int64(1), got.Revision)
	})

	s.Run("invariant violations are refused", func() {
		created := s.create()
		_, err := s.store.Apply(s.ctx, created.ID, func(sub *models.Submission) error {
			sub.Status = models.StatusActionRequired
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))

		got, _ := s.store.Get(s.ctx, created.ID)
		s.Equal(models.StatusPending, got.Status)
	})

	s.Run("history cannot be rewritten", func() {
		created := s.create()
		_, err := s.store.Apply(s.ctx, created.ID, func(sub *models.Submission) error {
			sub.SubmittedAt = sub.SubmittedAt.Add(time.Hour)
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("cancelled caller never commits", func() {
		created := s.create()
		ctx, cancel := context.WithCancel(s.ctx)
		_, err := s.store.Apply(ctx, created.ID, func(sub *models.Submission) error {
			sub.ApplyDecision(models.EventApprove, t0)
			cancel()
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeCanceled))

		got, _ := s.store.Get(s.ctx, created.ID)
		s.Equal(models.StatusPending, got.Status)
	})
}

func (s *StoreSuite) TestConcurrentApplySerializesPerSubmission() {
	created := s.create()
	var wg sync.WaitGroup
	var wins atomic.Int32
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Apply(s.ctx, created.ID, func(sub *models.Submission) error {
				if err := sub.CanDecide(models.EventApprove); err != nil {
					return err
				}
				sub.ApplyDecision(models.EventApprove, t0)
				return nil
			})
			if err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())

	got, _ := s.store.Get(s.ctx, created.ID)
	s.Equal(int64(2), got.Revision)
}

func TestStoreWithMirror(t *testing.T) {
	ctx := context.Background()

	t.Run("mirror failure aborts the commit", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mirror := mocks.NewMockMirror(ctrl)
		st := New(WithMirror(mirror))
		sub := newSubmission(t)

		mirror.EXPECT().CreateOrReplace(gomock.Any(), gomock.Any()).Return(nil)
		_, err := st.Create(ctx, sub)
		if err != nil {
			t.Fatalf("create: %v", err)
		}

		mirror.EXPECT().CreateOrReplace(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
		_, err = st.Apply(ctx, sub.ID, func(s *models.Submission) error {
			s.ApplyDecision(models.EventReject, t0)
			return nil
		})
		if !errors.Is(err, sentinel.ErrUnavailable) {
			t.Fatalf("expected unavailable, got %v", err)
		}
		got, _ := st.Get(ctx, sub.ID)
		if got.Status != models.StatusPending {
			t.Fatalf("status changed to %s after failed mirror write", got.Status)
		}
	})

	t.Run("get reads through to the mirror", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mirror := mocks.NewMockMirror(ctrl)
		st := New(WithMirror(mirror))
		remote := newSubmission(t)
		remote.Revision = 4

		mirror.EXPECT().Read(gomock.Any(), remote.ID).Return(remote, nil).Times(1)
		got, err := st.Get(ctx, remote.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Revision != 4 {
			t.Fatalf("revision = %d", got.Revision)
		}
		// Served from memory afterwards.
		if _, err := st.Get(ctx, remote.ID); err != nil {
			t.Fatalf("second get: %v", err)
		}

		missing := domain.NewSubmissionID()
		mirror.EXPECT().Read(gomock.Any(), missing).Return(nil, sentinel.ErrNotFound)
		if _, err := st.Get(ctx, missing); !errors.Is(err, sentinel.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("follow ignores stale revisions", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		mirror := mocks.NewMockMirror(ctrl)
		st := New(WithMirror(mirror))
		sub := newSubmission(t)

		mirror.EXPECT().CreateOrReplace(gomock.Any(), gomock.Any()).Return(nil)
		if _, err := st.Create(ctx, sub); err != nil {
			t.Fatalf("create: %v", err)
		}

		var deliver func(*models.Submission)
		mirror.EXPECT().Subscribe(gomock.Any(), sub.ID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.SubmissionID, fn func(*models.Submission)) (func(), error) {
				deliver = fn
				return func() {}, nil
			})
		stop, err := st.Follow(ctx, sub.ID)
		if err != nil {
			t.Fatalf("follow: %v", err)
		}
		defer stop()

		stale := sub.Clone()
		stale.Revision = 1
		stale.Status = models.StatusRejected
		deliver(stale)
		got, _ := st.Get(ctx, sub.ID)
		if got.Status != models.StatusPending {
			t.Fatalf("stale update applied: %s", got.Status)
		}

		fresh := sub.Clone()
		fresh.Revision = 2
		fresh.ApplyDecision(models.EventEscalate, t0)
		deliver(fresh)
		got, _ = st.Get(ctx, sub.ID)
		if got.Status != models.StatusEscalated || got.Revision != 2 {
			t.Fatalf("fresh update not applied: %s rev %d", got.Status, got.Revision)
		}
	})
}
