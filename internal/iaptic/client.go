// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package iaptic talks to the iaptic receipt validation API. All outcomes,
// including failures, are reported as ValidationResult values so callers
// never have to reason about transport errors themselves.
package iaptic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/buildinfo"
	"github.com/autobrr/reval/internal/models"
	"github.com/autobrr/reval/pkg/httphelpers"
	"github.com/autobrr/reval/pkg/redact"
)

const (
	iapticAPIBaseURL = "https://validator.iaptic.com"
	validateEndpoint = "/v1/validate"

	requestTimeout = 30 * time.Second
)

// Client wraps the iaptic validation API.
type Client struct {
	baseURL   string
	appName   string
	publicKey string
	userAgent string

	httpClient *http.Client
}

type OptFunc func(*Client)

// WithBaseURL overrides the validation service base URL.
func WithBaseURL(baseURL string) OptFunc {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

func WithUserAgent(userAgent string) OptFunc {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

// WithHTTPClient sets a custom HTTP client to use for requests
func WithHTTPClient(httpClient *http.Client) OptFunc {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a new iaptic API client authenticated as the given app.
func NewClient(appName, publicKey string, opts ...OptFunc) *Client {
	c := &Client{
		baseURL:   iapticAPIBaseURL,
		appName:   appName,
		publicKey: publicKey,
		userAgent: buildinfo.UserAgent,

		httpClient: &http.Client{
			Timeout: requestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// IsClientConfigured checks if the iaptic client is properly configured
func (c *Client) IsClientConfigured() bool {
	return c.appName != "" && c.publicKey != ""
}

// ValidateRequest describes one transaction to validate.
type ValidateRequest struct {
	TransactionID         string
	ProductID             string
	OriginalTransactionID string
	ApplicationUsername   string

	// JWSRepresentation is the signed transaction token from the purchase
	// framework, treated as an opaque string.
	JWSRepresentation string
}

// validateBody is the wire format of POST /v1/validate.
type validateBody struct {
	ID             string          `json:"id"`
	Type           string          `json:"type"`
	Transaction    transactionBody `json:"transaction"`
	AdditionalData *additionalData `json:"additionalData,omitempty"`
	Device         deviceBody      `json:"device"`
}

type transactionBody struct {
	ID                string `json:"id"`
	Type              string `json:"type"`
	JWSRepresentation string `json:"jwsRepresentation"`
}

type additionalData struct {
	ApplicationUsername string `json:"applicationUsername"`
}

type deviceBody struct {
	Plugin string `json:"plugin"`
}

func (c *Client) buildBody(req ValidateRequest) validateBody {
	// The transaction id on the wire is the product id when known, the app
	// id otherwise.
	transactionID := req.ProductID
	if transactionID == "" {
		transactionID = c.appName
	}

	body := validateBody{
		ID:   c.appName,
		Type: "application",
		Transaction: transactionBody{
			ID:                transactionID,
			Type:              "apple-sk2",
			JWSRepresentation: req.JWSRepresentation,
		},
		Device: deviceBody{
			Plugin: buildinfo.PluginTag(),
		},
	}

	if req.ApplicationUsername != "" {
		body.AdditionalData = &additionalData{ApplicationUsername: req.ApplicationUsername}
	}

	return body
}

// Validate sends one transaction to the validation service under the given
// retry policy. Transport failures and 5xx responses are retried with
// exponential backoff; every other outcome is terminal. Failures never
// surface as errors, only as the result's error fields.
func (c *Client) Validate(ctx context.Context, req ValidateRequest, policy RetryPolicy) *models.ValidationResult {
	jsonData, err := json.Marshal(c.buildBody(req))
	if err != nil {
		return models.NewErrorResult(models.ErrCodeSerializationError, fmt.Sprintf("failed to encode validation request: %v", err))
	}

	reqURL, err := url.JoinPath(c.baseURL, validateEndpoint)
	if err != nil {
		return models.NewErrorResult(models.ErrCodeInvalidURL, fmt.Sprintf("invalid validation URL: %v", err))
	}

	var (
		lastStatus int
		lastBody   []byte
		urlErr     error
	)

	attempt := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(jsonData))
		if err != nil {
			urlErr = err
			return retry.Unrecoverable(err)
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("User-Agent", c.userAgent)
		httpReq.SetBasicAuth(c.appName, c.publicKey)

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			// No response obtained: retryable.
			lastStatus = 0
			return err
		}
		defer httphelpers.DrainAndClose(resp)

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			lastStatus = 0
			return err
		}

		lastStatus = resp.StatusCode
		lastBody = body

		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("server error: %d", resp.StatusCode)
		}

		if resp.StatusCode != http.StatusOK {
			// 4xx and friends are not retried.
			return retry.Unrecoverable(fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		}

		return nil
	}

	err = retry.Do(attempt,
		retry.Context(ctx),
		retry.Attempts(policy.attempts()),
		retry.DelayType(policy.delayType()),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().
				Err(err).
				Uint("attempt", n+1).
				Str("transactionId", req.TransactionID).
				Str("token", redact.Token(req.JWSRepresentation)).
				Msg("Retrying receipt validation")
		}),
	)

	switch {
	case err == nil:
		// 200 with a body: classification is up to the parser.
		result := parseResponse(lastBody, req.ProductID)
		if result.Failed() {
			log.Debug().
				Str("transactionId", req.TransactionID).
				Str("errorCode", result.ErrorCode).
				Msg("Validation rejected by server")
		}
		return result

	case urlErr != nil:
		return models.NewErrorResult(models.ErrCodeInvalidURL, fmt.Sprintf("failed to create request: %v", urlErr))

	case lastStatus >= http.StatusInternalServerError:
		// Retries exhausted on server errors.
		return models.NewErrorResult(models.ErrCodeHTTPError, fmt.Sprintf("unexpected status code: %d", lastStatus))

	case lastStatus != 0:
		// Terminal non-200 status.
		return models.NewErrorResult(models.ErrCodeHTTPError, fmt.Sprintf("unexpected status code: %d", lastStatus))

	default:
		// Never got a response.
		return models.NewErrorResult(models.ErrCodeRequestError, fmt.Sprintf("request failed: %v", err))
	}
}
