package compliance

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	checkPath       = "/v1/compliance/check"
	maxResponseBody = 1 << 20
)

// Client calls a remote text-in/text-out compliance analysis service.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

func WithAPIKey(key string) ClientOption {
	return func(cl *Client) {
		cl.apiKey = key
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkRequest struct {
	DocumentText         string `json:"document_text"`
	RegulatoryGuidelines string `json:"regulatory_guidelines"`
}

type checkResponse struct {
	ComplianceSummary *string `json:"compliance_summary"`
	IsCompliant       *bool   `json:"is_compliant"`
}

func (c *Client) Check(ctx context.Context, in Input) (Result, error) {
	body, err := json.Marshal(checkRequest{
		DocumentText:         in.DocumentText,
		RegulatoryGuidelines: in.RegulatoryGuidelines,
	})
	if err != nil {
		return Result{}, newCheckError(CategoryInternal, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+checkPath, bytes.NewReader(body))
	if err != nil {
		return Result{}, newCheckError(CategoryInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, newCheckError(CategoryTimeout, "compliance service did not answer in time", err)
		}
		return Result{}, newCheckError(CategoryOutage, "compliance service unreachable", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return Result{}, err
	}

	var out checkResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return Result{}, newCheckError(CategoryBadData, "decode response", err)
	}
	if out.ComplianceSummary == nil || out.IsCompliant == nil {
		return Result{}, newCheckError(CategoryBadData, "response is missing fields", nil)
	}
	return Result{ComplianceSummary: *out.ComplianceSummary, IsCompliant: *out.IsCompliant}, nil
}

func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return newCheckError(CategoryAuthentication, fmt.Sprintf("rejected credentials (%d)", code), nil)
	case code == http.StatusTooManyRequests:
		return newCheckError(CategoryRateLimited, "rate limited", nil)
	case code == http.StatusGatewayTimeout || code == http.StatusRequestTimeout:
		return newCheckError(CategoryTimeout, fmt.Sprintf("upstream timeout (%d)", code), nil)
	case code >= 500:
		return newCheckError(CategoryOutage, fmt.Sprintf("service error (%d)", code), nil)
	default:
		return newCheckError(CategoryBadData, fmt.Sprintf("unexpected status %d", code), nil)
	}
}
