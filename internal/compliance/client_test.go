package compliance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientCheck(t *testing.T) {
	t.Run("posts text and guidelines", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, checkPath, r.URL.Path)
			assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
			var body checkRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "passport of A. Obi", body.DocumentText)
			assert.Equal(t, "AML-5", body.RegulatoryGuidelines)
			_, _ = w.Write([]byte(`{"compliance_summary":"looks fine","is_compliant":true}`))
		}))
		defer srv.Close()

		res, err := NewClient(srv.URL+"/", WithAPIKey("k1")).Check(context.Background(), Input{
			DocumentText:         "passport of A. Obi",
			RegulatoryGuidelines: "AML-5",
		})
		require.NoError(t, err)
		assert.Equal(t, Result{ComplianceSummary: "looks fine", IsCompliant: true}, res)
	})

	statuses := []struct {
		status   int
		category Category
	}{
		{http.StatusUnauthorized, CategoryAuthentication},
		{http.StatusTooManyRequests, CategoryRateLimited},
		{http.StatusGatewayTimeout, CategoryTimeout},
		{http.StatusBadGateway, CategoryOutage},
		{http.StatusBadRequest, CategoryBadData},
	}
	for _, tc := range statuses {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL).Check(context.Background(), Input{DocumentText: "x", RegulatoryGuidelines: "y"})
			require.Error(t, err)
			assert.Equal(t, tc.category, CategoryOf(err))
		})
	}

	t.Run("incomplete body is bad data", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"compliance_summary":"half an answer"}`))
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL).Check(context.Background(), Input{DocumentText: "x", RegulatoryGuidelines: "y"})
		assert.Equal(t, CategoryBadData, CategoryOf(err))
		assert.False(t, Retryable(err))
	})

	t.Run("slow service times out", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := NewClient(srv.URL).Check(ctx, Input{DocumentText: "x", RegulatoryGuidelines: "y"})
		assert.Equal(t, CategoryTimeout, CategoryOf(err))
		assert.True(t, Retryable(err))
	})
}

func TestStatic(t *testing.T) {
	s := Static{Flagged: []string{"sanctioned"}}

	res, err := s.Check(context.Background(), Input{DocumentText: "Holder is on the SANCTIONED list"})
	require.NoError(t, err)
	assert.False(t, res.IsCompliant)
	assert.Contains(t, res.ComplianceSummary, "sanctioned")

	res, err = s.Check(context.Background(), Input{DocumentText: "utility bill"})
	require.NoError(t, err)
	assert.True(t, res.IsCompliant)
}
