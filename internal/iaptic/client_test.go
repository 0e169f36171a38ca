// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package iaptic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/reval/internal/models"
)

type roundTripper func(*http.Request) (*http.Response, error)

func (rt roundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	return rt(r)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripper) *Client {
	return NewClient("com.example.app", "public-key-123",
		WithHTTPClient(&http.Client{Transport: rt}),
	)
}

// fastPolicy keeps retry tests quick.
func fastPolicy(retries uint) RetryPolicy {
	return RetryPolicy{RetryCount: retries, RetryDelay: time.Millisecond}
}

func TestNewClient(t *testing.T) {
	client := NewClient("com.example.app", "public-key-123")
	if client == nil {
		t.Fatal("NewClient() returned nil")
	}

	if client.httpClient == nil {
		t.Error("HTTP client not initialized")
	}

	if client.httpClient.Timeout != requestTimeout {
		t.Errorf("HTTP client timeout = %v, want %v", client.httpClient.Timeout, requestTimeout)
	}

	assert.Equal(t, iapticAPIBaseURL, client.baseURL)
}

func TestIsClientConfigured(t *testing.T) {
	tests := []struct {
		name      string
		appName   string
		publicKey string
		expected  bool
	}{
		{
			name:     "missing both returns false",
			expected: false,
		},
		{
			name:     "missing public key returns false",
			appName:  "com.example.app",
			expected: false,
		},
		{
			name:      "both set returns true",
			appName:   "com.example.app",
			publicKey: "public-key-123",
			expected:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewClient(tt.appName, tt.publicKey)
			assert.Equal(t, tt.expected, client.IsClientConfigured())
		})
	}
}

func TestValidate_RequestShape(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	rt := roundTripper(func(r *http.Request) (*http.Response, error) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		return jsonResponse(http.StatusOK, `{"ok": true, "data": {"collection": []}}`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{
		TransactionID:       "2000000123456789",
		ProductID:           "com.example.monthly",
		ApplicationUsername: "user-42",
		JWSRepresentation:   "eyJhbGciOiJFUzI1NiJ9.payload.sig",
	}, fastPolicy(0))

	require.False(t, result.Failed())
	require.NotNil(t, captured)

	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "/v1/validate", captured.URL.Path)
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))

	user, pass, ok := captured.BasicAuth()
	require.True(t, ok, "expected basic auth credentials")
	assert.Equal(t, "com.example.app", user)
	assert.Equal(t, "public-key-123", pass)

	var body map[string]any
	require.NoError(t, json.Unmarshal(capturedBody, &body))
	assert.Equal(t, "com.example.app", body["id"])
	assert.Equal(t, "application", body["type"])

	transaction := body["transaction"].(map[string]any)
	assert.Equal(t, "com.example.monthly", transaction["id"])
	assert.Equal(t, "apple-sk2", transaction["type"])
	assert.Equal(t, "eyJhbGciOiJFUzI1NiJ9.payload.sig", transaction["jwsRepresentation"])

	additional := body["additionalData"].(map[string]any)
	assert.Equal(t, "user-42", additional["applicationUsername"])

	device := body["device"].(map[string]any)
	assert.Contains(t, device["plugin"], "iaptic-storekit2/")
}

func TestValidate_TransactionIDFallsBackToAppID(t *testing.T) {
	var capturedBody []byte

	rt := roundTripper(func(r *http.Request) (*http.Response, error) {
		capturedBody, _ = io.ReadAll(r.Body)
		return jsonResponse(http.StatusOK, `{"ok": true, "data": {"collection": []}}`), nil
	})

	client := newTestClient(rt)
	client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(0))

	var body map[string]any
	require.NoError(t, json.Unmarshal(capturedBody, &body))
	transaction := body["transaction"].(map[string]any)
	assert.Equal(t, "com.example.app", transaction["id"])
}

func TestValidate_LogicalRejectionNotRetried(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusOK, `{"ok": false, "code": "X", "message": "Y"}`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(8))

	assert.Equal(t, int64(1), calls.Load(), "server rejection must not be retried")
	assert.False(t, result.IsValid)
	assert.Equal(t, "X", result.ErrorCode)
	assert.Equal(t, "Y", result.ErrorMessage)
}

func TestValidate_ServerErrorRetriedUntilSuccess(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		if calls.Add(1) <= 3 {
			return jsonResponse(http.StatusBadGateway, `oops`), nil
		}
		return jsonResponse(http.StatusOK, `{"ok": true, "data": {"collection": [{"id": "com.example.monthly"}]}}`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(8))

	assert.Equal(t, int64(4), calls.Load(), "three retries then success")
	require.False(t, result.Failed())
	require.Len(t, result.Purchases, 1)
}

func TestValidate_ServerErrorRetriesExhausted(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusServiceUnavailable, `unavailable`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(2))

	assert.Equal(t, int64(3), calls.Load(), "initial attempt plus two retries")
	assert.Equal(t, models.ErrCodeHTTPError, result.ErrorCode)
	assert.Contains(t, result.ErrorMessage, "503")
}

func TestValidate_NetworkErrorRetriesExhausted(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, context.DeadlineExceeded
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(2))

	assert.Equal(t, int64(3), calls.Load())
	assert.Equal(t, models.ErrCodeRequestError, result.ErrorCode)
}

func TestValidate_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return jsonResponse(http.StatusUnauthorized, `{"ok": false}`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(8))

	assert.Equal(t, int64(1), calls.Load(), "4xx must not be retried")
	assert.Equal(t, models.ErrCodeHTTPError, result.ErrorCode)
	assert.Contains(t, result.ErrorMessage, "401")
}

func TestValidate_UnparseableBody(t *testing.T) {
	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `<html>proxy error</html>`), nil
	})

	client := newTestClient(rt)
	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(0))

	assert.Equal(t, models.ErrCodeUnknownError, result.ErrorCode)
}

func TestValidate_InvalidBaseURL(t *testing.T) {
	var calls atomic.Int64

	rt := roundTripper(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, nil
	})

	client := NewClient("com.example.app", "public-key-123",
		WithBaseURL("://not-a-url"),
		WithHTTPClient(&http.Client{Transport: rt}),
	)

	result := client.Validate(context.Background(), ValidateRequest{TransactionID: "txn-1"}, fastPolicy(0))

	assert.Equal(t, int64(0), calls.Load(), "no network call for an invalid URL")
	assert.Equal(t, models.ErrCodeInvalidURL, result.ErrorCode)
}
