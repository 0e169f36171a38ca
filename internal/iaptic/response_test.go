// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package iaptic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/reval/internal/models"
)

func TestParseResponse_Success(t *testing.T) {
	body := `{
		"ok": true,
		"data": {
			"collection": [
				{"id": "com.example.monthly", "isExpired": false, "renewalIntent": "Renew"},
				{"id": "com.example.yearly", "isExpired": true}
			],
			"ineligible_for_intro_price": ["com.example.monthly"],
			"warning": "sandbox receipt",
			"date": "2026-08-23T10:15:30.123Z"
		}
	}`

	result := parseResponse([]byte(body), "com.example.monthly")

	require.False(t, result.Failed())
	assert.True(t, result.IsValid)
	assert.False(t, result.IsExpired, "mixed expiry must not mark the result expired")
	assert.True(t, result.IsActive)
	require.Len(t, result.Purchases, 2)
	assert.Equal(t, "com.example.monthly", result.Purchases[0].ID)
	require.NotNil(t, result.Purchases[0].RenewalIntent)
	assert.Equal(t, "Renew", *result.Purchases[0].RenewalIntent)
	assert.Equal(t, []string{"com.example.monthly"}, result.IneligibleForIntroPrice)
	assert.Equal(t, "sandbox receipt", result.Warning)
	assert.Equal(t, "com.example.monthly", result.ProductID)

	require.NotNil(t, result.ValidationDate)
	expected := time.Date(2026, 8, 23, 10, 15, 30, 123000000, time.UTC)
	assert.True(t, result.ValidationDate.Equal(expected))
}

func TestParseResponse_DerivedFlags(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantExpired bool
		wantActive  bool
	}{
		{
			name:        "all purchases expired",
			body:        `{"ok": true, "data": {"collection": [{"id": "a", "isExpired": true}, {"id": "b", "isExpired": true}]}}`,
			wantExpired: true,
			wantActive:  false,
		},
		{
			name:        "empty purchase set",
			body:        `{"ok": true, "data": {"collection": []}}`,
			wantExpired: false,
			wantActive:  true,
		},
		{
			name:        "one active purchase",
			body:        `{"ok": true, "data": {"collection": [{"id": "a", "isExpired": true}, {"id": "b", "isExpired": false}]}}`,
			wantExpired: false,
			wantActive:  true,
		},
		{
			name:        "expiry flag absent counts as not expired",
			body:        `{"ok": true, "data": {"collection": [{"id": "a"}]}}`,
			wantExpired: false,
			wantActive:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseResponse([]byte(tt.body), "")

			assert.True(t, result.IsValid)
			assert.Equal(t, tt.wantExpired, result.IsExpired)
			assert.Equal(t, tt.wantActive, result.IsActive)
		})
	}
}

func TestParseResponse_DropsEntriesWithoutID(t *testing.T) {
	body := `{"ok": true, "data": {"collection": [{"isExpired": false}, {"id": "com.example.keep"}]}}`

	result := parseResponse([]byte(body), "")

	require.False(t, result.Failed())
	require.Len(t, result.Purchases, 1)
	assert.Equal(t, "com.example.keep", result.Purchases[0].ID)
}

func TestParseResponse_Failure(t *testing.T) {
	body := `{"ok": false, "code": "6778003", "message": "Transaction expired"}`

	result := parseResponse([]byte(body), "")

	assert.True(t, result.Failed())
	assert.False(t, result.IsValid)
	assert.False(t, result.IsActive)
	assert.Equal(t, "6778003", result.ErrorCode)
	assert.Equal(t, "Transaction expired", result.ErrorMessage)
	assert.Empty(t, result.Purchases)
}

func TestParseResponse_FailureWithoutCode(t *testing.T) {
	result := parseResponse([]byte(`{"ok": false}`), "")

	assert.Equal(t, models.ErrCodeUnknownError, result.ErrorCode)
}

func TestParseResponse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "not json", body: `<html>bad gateway</html>`},
		{name: "missing ok marker", body: `{"data": {"collection": []}}`},
		{name: "ok without data", body: `{"ok": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseResponse([]byte(tt.body), "")

			assert.True(t, result.Failed())
			assert.Equal(t, models.ErrCodeUnknownError, result.ErrorCode)
		})
	}
}

func TestParseValidationDate(t *testing.T) {
	assert.Nil(t, parseValidationDate(""))
	assert.Nil(t, parseValidationDate("not-a-date"))

	ts := parseValidationDate("2026-08-23T10:15:30.5+02:00")
	require.NotNil(t, ts)
	assert.Equal(t, 500000000, ts.Nanosecond())

	ts = parseValidationDate("2026-08-23T10:15:30Z")
	require.NotNil(t, ts)
}
