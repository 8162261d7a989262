package compliance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycreview/internal/compliance"
	"kycreview/internal/compliance/mocks"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/platform/circuit"
)

type ServiceSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	checker *mocks.MockChecker
	now     time.Time
	breaker *circuit.Breaker
	service *compliance.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.checker = mocks.NewMockChecker(s.ctrl)
	s.now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.breaker = circuit.New("compliance",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return s.now }),
	)
	s.service = compliance.NewService(s.checker,
		compliance.WithBreaker(s.breaker),
		compliance.WithDefaultGuidelines("FATF recommendation 10"),
	)
}

func (s *ServiceSuite) TestScreen() {
	s.Run("fills default guidelines", func() {
		s.checker.EXPECT().Check(gomock.Any(), compliance.Input{
			DocumentText:         "passport, expires 2031",
			RegulatoryGuidelines: "FATF recommendation 10",
		}).Return(compliance.Result{ComplianceSummary: "ok", IsCompliant: true}, nil)

		res, err := s.service.Screen(context.Background(), compliance.Input{DocumentText: "  passport, expires 2031 "})
		s.Require().NoError(err)
		s.True(res.IsCompliant)
	})

	s.Run("empty text is rejected before calling out", func() {
		_, err := s.service.Screen(context.Background(), compliance.Input{DocumentText: " "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("non-compliant result is not an error", func() {
		s.checker.EXPECT().Check(gomock.Any(), gomock.Any()).
			Return(compliance.Result{ComplianceSummary: "address mismatch", IsCompliant: false}, nil)

		res, err := s.service.Screen(context.Background(), compliance.Input{DocumentText: "bill", RegulatoryGuidelines: "local"})
		s.Require().NoError(err)
		s.False(res.IsCompliant)
		s.Equal("address mismatch", res.ComplianceSummary)
	})
}

func (s *ServiceSuite) TestFailuresAreRecoverableAndTripTheBreaker() {
	s.checker.EXPECT().Check(gomock.Any(), gomock.Any()).
		Return(compliance.Result{}, &compliance.CheckError{Category: compliance.CategoryOutage, Message: "502"}).
		Times(2)

	in := compliance.Input{DocumentText: "id card", RegulatoryGuidelines: "g"}
	for range 2 {
		_, err := s.service.Screen(context.Background(), in)
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))
	}
	s.True(s.breaker.IsOpen())

	// Open breaker: no call goes out.
	_, err := s.service.Screen(context.Background(), in)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	// After the cooldown a probe is admitted and closes the breaker.
	s.now = s.now.Add(2 * time.Minute)
	s.checker.EXPECT().Check(gomock.Any(), gomock.Any()).Return(compliance.Result{IsCompliant: true}, nil)
	_, err = s.service.Screen(context.Background(), in)
	s.Require().NoError(err)
	s.False(s.breaker.IsOpen())
}

func (s *ServiceSuite) TestCancelledCallerIsNotAnOutage() {
	ctx, cancel := context.WithCancel(context.Background())
	s.checker.EXPECT().Check(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ compliance.Input) (compliance.Result, error) {
			cancel()
			return compliance.Result{}, ctx.Err()
		})

	_, err := s.service.Screen(ctx, compliance.Input{DocumentText: "id card", RegulatoryGuidelines: "g"})
	s.True(dErrors.HasCode(err, dErrors.CodeCanceled))
	s.False(s.breaker.IsOpen())
}
