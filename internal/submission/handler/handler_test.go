package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycreview/internal/amendment"
	"kycreview/internal/compliance"
	"kycreview/internal/policy"
	"kycreview/internal/preview"
	"kycreview/internal/submission/handler/mocks"
	"kycreview/internal/submission/models"
	"kycreview/internal/workflow"
	"kycreview/pkg/domain"
	dErrors "kycreview/pkg/domain-errors"
	"kycreview/pkg/requestcontext"
	"kycreview/pkg/testutil"
)

var pdfBytes = []byte("%PDF-1.4\nkyc")

type caller struct {
	id     string
	role   domain.Role
	branch string
}

var (
	branchUser  = caller{"branch-user-1", domain.RoleBranch, "riverside"}
	otherBranch = caller{"branch-user-2", domain.RoleBranch, "hilltop"}
	officer     = caller{"officer-9", domain.RoleOfficer, ""}
	supervisor  = caller{"supervisor-2", domain.RoleSupervisor, ""}
)

type HandlerSuite struct {
	suite.Suite
	workflow   *mocks.MockWorkflow
	amendments *mocks.MockAmendments
	compliance *mocks.MockCompliance
	previews   *preview.Manager
	router     chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.workflow = mocks.NewMockWorkflow(ctrl)
	s.amendments = mocks.NewMockAmendments(ctrl)
	s.compliance = mocks.NewMockCompliance(ctrl)
	s.previews = preview.NewManager(policy.Default())

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.workflow, s.amendments, s.compliance, s.previews, 64<<20, logger)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) do(c caller, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return testutil.DoRequest(s.router, testutil.WithCaller(req, c.id, c.role, c.branch))
}

func (s *HandlerSuite) doJSON(c caller, method, path string, v any) *httptest.ResponseRecorder {
	req := testutil.NewJSONRequest(s.T(), method, path, v)
	return testutil.DoRequest(s.router, testutil.WithCaller(req, c.id, c.role, c.branch))
}

type part struct {
	field, name, mediaType string
	data                   []byte
}

func multipartBody(fields map[string]string, parts ...part) (*bytes.Buffer, string) {
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	for _, p := range parts {
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="`+p.field+`"; filename="`+p.name+`"`)
		hdr.Set("Content-Type", p.mediaType)
		pw, _ := mw.CreatePart(hdr)
		_, _ = pw.Write(p.data)
	}
	_ = mw.Close()
	return buf, mw.FormDataContentType()
}

func sampleSubmission(status models.Status) *models.Submission {
	now := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	return &models.Submission{
		ID:           domain.NewSubmissionID(),
		CustomerName: "Ada Obi",
		Branch:       "riverside",
		SubmittedAt:  now,
		Status:       status,
		Documents: []models.SubmittedDocument{{
			ID: domain.NewDocumentID(), DocumentType: models.DocumentIDCard, FileName: "id.pdf",
			Size: int64(len(pdfBytes)), Format: "application/pdf", UploadedAt: now, Version: 1, URL: "blob://1",
		}},
		PendingAmendments: []models.AmendmentRequest{},
		AmendmentHistory:  []models.Amendment{},
		Revision:          1,
		UpdatedAt:         now,
	}
}

func (s *HandlerSuite) TestCapabilityGates() {
	id := domain.NewSubmissionID().String()
	cases := []struct {
		name   string
		who    caller
		method string
		path   string
	}{
		{"branch cannot approve", branchUser, http.MethodPost, "/submissions/" + id + "/approve"},
		{"branch cannot request amendments", branchUser, http.MethodPost, "/submissions/" + id + "/amendments"},
		{"branch cannot run compliance checks", branchUser, http.MethodPost, "/submissions/" + id + "/compliance-check"},
		{"officer cannot submit", officer, http.MethodPost, "/submissions/"},
		{"officer cannot resolve", officer, http.MethodPost, "/submissions/" + id + "/amendments/resolve"},
		{"supervisor cannot stage files", supervisor, http.MethodPost, "/previews/sessions"},
		{"unknown role is refused", caller{"x", domain.Role("auditor"), ""}, http.MethodPost, "/submissions/" + id + "/escalate"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			w := s.doJSON(tc.who, tc.method, tc.path, map[string]string{})
			testutil.AssertStatusAndError(s.T(), w, http.StatusForbidden, string(dErrors.CodeForbidden))
		})
	}
}

func (s *HandlerSuite) TestSubmitMultipart() {
	created := sampleSubmission(models.StatusPending)
	s.workflow.EXPECT().Submit(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, in workflow.SubmitInput) (*models.Submission, error) {
			s.Equal("Ada Obi", in.CustomerName)
			s.Equal("riverside", in.Branch, "branch comes from the token")
			s.Require().Len(in.Files, 2)
			s.Equal(models.DocumentIDCard, in.Files[0].DocumentType)
			s.Equal("id.pdf", in.Files[0].File.Name)
			s.Equal(pdfBytes, in.Files[0].File.Data)
			s.Equal(models.DocumentProofOfAddress, in.Files[1].DocumentType)
			s.Empty(in.Files[1].File.MediaType, "octet-stream is left for sniffing")
			s.Equal(domain.RoleBranch, requestcontext.Role(ctx))
			return created, nil
		})

	body, ct := multipartBody(map[string]string{"customer_name": "Ada Obi"},
		part{"id_card", "id.pdf", "application/pdf", pdfBytes},
		part{"proof_of_address", "bill.pdf", "application/octet-stream", pdfBytes},
	)
	w := s.do(branchUser, http.MethodPost, "/submissions/", body, ct)
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal(created.ID.String(), resp["id"])
	s.Equal("pending", resp["status"])
	s.Equal([]any{}, resp["actions"])
}

func (s *HandlerSuite) TestSubmitRejectsForeignBranch() {
	body, ct := multipartBody(map[string]string{"customer_name": "Ada", "branch": "hilltop"},
		part{"id_card", "id.pdf", "application/pdf", pdfBytes})
	w := s.do(branchUser, http.MethodPost, "/submissions/", body, ct)
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestSubmitManifestMustDescribeEveryPart() {
	body, ct := multipartBody(map[string]string{
		"customer_name": "Ada",
		"manifest":      `[{"part":"front","document_type":"id_card"}]`,
	},
		part{"front", "front.pdf", "application/pdf", pdfBytes},
		part{"stray", "stray.pdf", "application/pdf", pdfBytes},
	)
	w := s.do(branchUser, http.MethodPost, "/submissions/", body, ct)
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestDecisions() {
	escalated := sampleSubmission(models.StatusEscalated)
	path := "/submissions/" + escalated.ID.String()

	runGuard := func(_ context.Context, _ domain.SubmissionID, _ models.Event, _ string, guard workflow.Guard) (*models.Submission, error) {
		if err := guard(escalated); err != nil {
			return nil, err
		}
		out := *escalated
		out.Status = models.StatusApproved
		return &out, nil
	}

	s.Run("officer cannot approve an escalated case", func() {
		s.workflow.EXPECT().Decide(gomock.Any(), escalated.ID, models.EventApprove, "", gomock.Any()).DoAndReturn(runGuard)
		w := s.doJSON(officer, http.MethodPost, path+"/approve", map[string]string{})
		s.Equal(http.StatusForbidden, w.Code)
	})

	s.Run("supervisor can", func() {
		s.workflow.EXPECT().Decide(gomock.Any(), escalated.ID, models.EventApprove, "", gomock.Any()).DoAndReturn(runGuard)
		w := s.doJSON(supervisor, http.MethodPost, path+"/approve", map[string]string{})
		s.Equal(http.StatusOK, w.Code, w.Body.String())
	})

	s.Run("reject needs a reason", func() {
		w := s.doJSON(officer, http.MethodPost, path+"/reject", map[string]string{"reason": "  "})
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})

	s.Run("terminal state is a conflict", func() {
		s.workflow.EXPECT().Decide(gomock.Any(), escalated.ID, models.EventReject, "forged stamp", gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInvalidTransition, "cannot reject a submission in status approved"))
		w := s.doJSON(supervisor, http.MethodPost, path+"/reject", map[string]string{"reason": "forged stamp"})
		testutil.AssertStatusAndError(s.T(), w, http.StatusConflict, string(dErrors.CodeInvalidTransition))
	})

	s.Run("unknown fields are rejected", func() {
		w := s.doJSON(officer, http.MethodPost, path+"/escalate", map[string]string{"why": "x"})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("malformed id", func() {
		w := s.doJSON(officer, http.MethodPost, "/submissions/not-a-uuid/approve", map[string]string{})
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestAssignDefaultsToCaller() {
	sub := sampleSubmission(models.StatusPending)
	s.workflow.EXPECT().Assign(gomock.Any(), sub.ID, "officer-9").Return(sub, nil)
	w := s.doJSON(officer, http.MethodPost, "/submissions/"+sub.ID.String()+"/assign", map[string]string{})
	s.Equal(http.StatusOK, w.Code)
}

func (s *HandlerSuite) TestRequestAmendments() {
	sub := sampleSubmission(models.StatusPending)
	path := "/submissions/" + sub.ID.String() + "/amendments"
	docID := sub.Documents[0].ID

	s.Run("single", func() {
		s.amendments.EXPECT().RequestBatch(gomock.Any(), sub.ID, []models.RequestSpec{{
			Type:             models.RequestReplaceExisting,
			TargetDocumentID: &docID,
			Comment:          "expired",
		}}).Return([]models.AmendmentRequest{{ID: domain.NewRequestID()}}, nil)

		w := s.doJSON(officer, http.MethodPost, path, map[string]string{
			"type":               "replace_existing",
			"target_document_id": docID.String(),
			"comment":            " expired ",
		})
		s.Equal(http.StatusCreated, w.Code, w.Body.String())
	})

	s.Run("list", func() {
		s.amendments.EXPECT().RequestBatch(gomock.Any(), sub.ID, gomock.Len(2)).
			Return([]models.AmendmentRequest{{}, {}}, nil)
		w := s.doJSON(officer, http.MethodPost, path, map[string]any{"requests": []map[string]string{
			{"type": "ADD_NEW", "target_document_type": "proof_of_address", "comment": "bill needed"},
			{"type": "REQUEST_INFO", "comment": "explain the name change"},
		}})
		s.Equal(http.StatusCreated, w.Code, w.Body.String())
	})

	s.Run("single and list together", func() {
		w := s.doJSON(officer, http.MethodPost, path, map[string]any{
			"type":     "ADD_NEW",
			"requests": []map[string]string{{"type": "ADD_NEW"}},
		})
		s.Equal(http.StatusBadRequest, w.Code)
	})

	s.Run("unknown type", func() {
		w := s.doJSON(officer, http.MethodPost, path, map[string]string{"type": "DELETE", "comment": "gone"})
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})

	s.Run("short reason surfaces as validation", func() {
		s.amendments.EXPECT().RequestBatch(gomock.Any(), sub.ID, gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "request 0: reason must be at least 5 characters"))
		w := s.doJSON(officer, http.MethodPost, path, map[string]string{"type": "REQUEST_INFO", "comment": "why"})
		s.Equal(http.StatusUnprocessableEntity, w.Code)
	})
}

func (s *HandlerSuite) TestResolve() {
	sub := sampleSubmission(models.StatusActionRequired)
	requestID := domain.NewRequestID()
	docID := sub.Documents[0].ID
	path := "/submissions/" + sub.ID.String() + "/amendments/" + requestID.String() + "/resolve"

	s.Run("multipart with manifest", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		s.amendments.EXPECT().Resolve(gomock.Any(), sub.ID, requestID, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ domain.SubmissionID, _ domain.RequestID, in amendment.ResolveInput) (models.Amendment, error) {
				s.Equal("updated ID attached", in.Comment)
				s.Require().Len(in.Files, 1)
				s.Equal(&docID, in.Files[0].TargetDocumentID)
				s.Equal("renewed.pdf", in.Files[0].File.Name)
				return models.Amendment{RequestID: requestID, ResponseType: "document_replaced"}, nil
			})

		body, ct := multipartBody(map[string]string{
			"comment":  "updated ID attached",
			"manifest": `[{"part":"f1","document_type":"id_card","target_document_id":"` + docID.String() + `"}]`,
		}, part{"f1", "renewed.pdf", "application/pdf", pdfBytes})
		w := s.do(branchUser, http.MethodPost, path, body, ct)
		s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

		var resp ResolveResponse
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Require().Len(resp.Amendments, 1)
		s.Equal(requestID, resp.Amendments[0].RequestID)
	})

	s.Run("second resolve is a conflict", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		s.amendments.EXPECT().Resolve(gomock.Any(), sub.ID, requestID, gomock.Any()).
			Return(models.Amendment{}, dErrors.New(dErrors.CodeConflict, "amendment request is not pending"))
		w := s.doJSON(branchUser, http.MethodPost, path, map[string]any{
			"comment": "updated ID attached",
			"files":   []map[string]string{{"slot": "id", "document_type": "id_card"}},
		})
		s.Equal(http.StatusConflict, w.Code)
	})

	s.Run("other branch sees nothing", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		w := s.doJSON(otherBranch, http.MethodPost, path, map[string]string{"comment": "hello there"})
		s.Equal(http.StatusNotFound, w.Code)
	})

	s.Run("storage outage", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		s.amendments.EXPECT().Resolve(gomock.Any(), sub.ID, requestID, gomock.Any()).
			Return(models.Amendment{}, dErrors.New(dErrors.CodeStorageUnavailable, "document storage unavailable"))
		body, ct := multipartBody(map[string]string{"comment": "updated ID attached"},
			part{"id_card", "renewed.pdf", "application/pdf", pdfBytes})
		w := s.do(branchUser, http.MethodPost, path, body, ct)
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})
}

func (s *HandlerSuite) TestResolveBatchFromSession() {
	sub := sampleSubmission(models.StatusActionRequired)
	fileReq, infoReq := domain.NewRequestID(), domain.NewRequestID()

	s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
	s.amendments.EXPECT().ResolveBatch(gomock.Any(), sub.ID, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.SubmissionID, in amendment.BatchResolveInput) ([]models.Amendment, error) {
			s.Equal("01SESSION", in.SessionID)
			s.Equal([]domain.RequestID{infoReq}, in.InfoRequests)
			s.Require().Len(in.Files, 1)
			s.Equal("bill", in.Files[0].Slot)
			s.Equal(&fileReq, in.Files[0].RequestID)
			s.Nil(in.Files[0].File)
			return []models.Amendment{{RequestID: fileReq}, {RequestID: infoReq}}, nil
		})

	w := s.doJSON(branchUser, http.MethodPost, "/submissions/"+sub.ID.String()+"/amendments/resolve", map[string]any{
		"comment":         "bill attached, name changed after marriage",
		"preview_session": "01SESSION",
		"files":           []map[string]string{{"slot": "bill", "document_type": "proof_of_address", "request_id": fileReq.String()}},
		"info_requests":   []string{infoReq.String()},
	})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
}

func (s *HandlerSuite) TestComplianceCheck() {
	sub := sampleSubmission(models.StatusPending)
	path := "/submissions/" + sub.ID.String() + "/compliance-check"

	s.Run("advisory result", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		s.compliance.EXPECT().Screen(gomock.Any(), compliance.Input{DocumentText: "passport", RegulatoryGuidelines: "AML"}).
			Return(compliance.Result{ComplianceSummary: "ok", IsCompliant: true}, nil)

		w := s.doJSON(officer, http.MethodPost, path, map[string]string{"document_text": "passport", "regulatory_guidelines": "AML"})
		s.Require().Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.Equal(true, resp["is_compliant"])
		s.Equal(true, resp["advisory"])
	})

	s.Run("service down is recoverable", func() {
		s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
		s.compliance.EXPECT().Screen(gomock.Any(), gomock.Any()).
			Return(compliance.Result{}, dErrors.New(dErrors.CodeUnavailable, "compliance service temporarily unavailable"))
		w := s.doJSON(officer, http.MethodPost, path, map[string]string{"document_text": "passport"})
		s.Equal(http.StatusServiceUnavailable, w.Code)
	})
}

func (s *HandlerSuite) TestList() {
	s.Run("branch callers are scoped to their branch", func() {
		s.workflow.EXPECT().List(gomock.Any(), workflow.Filter{Branch: "riverside", Status: models.StatusActionRequired}).
			Return([]*models.Submission{sampleSubmission(models.StatusActionRequired)}, nil)
		w := s.do(branchUser, http.MethodGet, "/submissions/?branch=hilltop&status=action_required", nil, "")
		s.Require().Equal(http.StatusOK, w.Code)
		var resp map[string]any
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
		s.EqualValues(1, resp["count"])
	})

	s.Run("officers filter freely", func() {
		s.workflow.EXPECT().List(gomock.Any(), workflow.Filter{Branch: "hilltop", Officer: "officer-9"}).Return(nil, nil)
		w := s.do(officer, http.MethodGet, "/submissions/?branch=hilltop&officer=officer-9", nil, "")
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("unknown status", func() {
		w := s.do(officer, http.MethodGet, "/submissions/?status=archived", nil, "")
		s.Equal(http.StatusBadRequest, w.Code)
	})
}

func (s *HandlerSuite) TestGetShowsActions() {
	sub := sampleSubmission(models.StatusPending)
	s.workflow.EXPECT().Get(gomock.Any(), sub.ID).Return(sub, nil)
	w := s.do(officer, http.MethodGet, "/submissions/"+sub.ID.String(), nil, "")
	s.Require().Equal(http.StatusOK, w.Code)

	var resp SubmissionResponse
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal([]string{"approve", "reject", "escalate", "request_amendment", "assign"}, resp.Actions)
}

func (s *HandlerSuite) TestPreviewLifecycle() {
	w := s.do(branchUser, http.MethodPost, "/previews/sessions", nil, "")
	s.Require().Equal(http.StatusCreated, w.Code)
	session := testutil.UnmarshalResponse[SessionResponse](s.T(), w)
	base := "/previews/sessions/" + session.SessionID

	stage := func(name string) HandleResponse {
		req := httptest.NewRequest(http.MethodPut, base+"/slots/id", bytes.NewReader(pdfBytes))
		req.Header.Set("Content-Type", "application/pdf")
		req.Header.Set("X-File-Name", name)
		rec := testutil.DoRequest(s.router, testutil.WithCaller(req, branchUser.id, branchUser.role, branchUser.branch))
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		return *testutil.UnmarshalResponse[HandleResponse](s.T(), rec)
	}

	first := stage("first.pdf")
	second := stage("second.pdf")
	s.Equal(1, s.previews.Live(), "restaging a slot revokes the old handle")

	s.Equal(http.StatusNotFound, s.do(branchUser, http.MethodGet, first.PreviewURL, nil, "").Code)
	got := s.do(branchUser, http.MethodGet, second.PreviewURL, nil, "")
	s.Require().Equal(http.StatusOK, got.Code)
	s.Equal(pdfBytes, got.Body.Bytes())
	s.Equal("application/pdf", got.Header().Get("Content-Type"))
	s.True(strings.Contains(got.Header().Get("Content-Disposition"), "second.pdf"))

	s.Equal(http.StatusNotFound, s.do(otherBranch, http.MethodGet, second.PreviewURL, nil, "").Code)
	s.Equal(http.StatusNotFound, s.do(branchUser, http.MethodGet, second.PreviewURL+"/thumbnail", nil, "").Code)

	s.Equal(http.StatusNoContent, s.do(branchUser, http.MethodDelete, base+"/slots/id", nil, "").Code)
	s.Equal(0, s.previews.Live())

	stage("again.pdf")
	s.Equal(http.StatusNoContent, s.do(branchUser, http.MethodDelete, base, nil, "").Code)
	s.Equal(http.StatusNoContent, s.do(branchUser, http.MethodDelete, base, nil, "").Code)
	s.Equal(0, s.previews.Live())
	s.Equal(http.StatusNotFound, s.do(branchUser, http.MethodPut, base+"/slots/id", bytes.NewReader(pdfBytes), "application/pdf").Code)
}

func TestActions(t *testing.T) {
	suite.Run(t, new(actionsSuite))
}

type actionsSuite struct{ suite.Suite }

func (s *actionsSuite) TestEscalatedNeedsSupervisor() {
	sub := sampleSubmission(models.StatusEscalated)
	s.Equal([]string{"request_amendment", "assign"}, Actions(domain.RoleOfficer, sub))
	s.Equal([]string{"approve", "reject", "request_amendment", "assign"}, Actions(domain.RoleSupervisor, sub))
}

func (s *actionsSuite) TestBranchResolvesOutstandingRequests() {
	sub := sampleSubmission(models.StatusActionRequired)
	sub.PendingAmendments = []models.AmendmentRequest{{ID: domain.NewRequestID()}}
	s.Equal([]string{"resolve"}, Actions(domain.RoleBranch, sub))
	s.Equal([]string{"request_amendment", "assign"}, Actions(domain.RoleOfficer, sub))
}

func (s *actionsSuite) TestTerminalHasNoActions() {
	s.Empty(Actions(domain.RoleSupervisor, sampleSubmission(models.StatusApproved)))
}
