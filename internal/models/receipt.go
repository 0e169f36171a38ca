// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"time"

	"github.com/pkg/errors"
)

var (
	ErrRequestNotFound = errors.New("validation request not found")
)

// RequestState tracks the lifecycle of a ValidationRequest.
// InProgress is the initial state; a request transitions to Completed or
// Failed exactly once.
type RequestState string

const (
	RequestStateInProgress RequestState = "in_progress"
	RequestStateCompleted  RequestState = "completed"
	RequestStateFailed     RequestState = "failed"
)

// Error codes surfaced through ValidationResult.ErrorCode.
const (
	ErrCodeInvalidURL         = "InvalidURL"
	ErrCodeSerializationError = "SerializationError"
	ErrCodeHTTPError          = "HTTPError"
	ErrCodeUnknownError       = "UnknownError"
	ErrCodeRequestError       = "RequestError"
	ErrCodePurchaseFailed     = "PurchaseFailed"
)

// ValidationRequest identifies one logical validation attempt for a
// transaction. It is created on a coordination miss, mutated only by the
// owning coordination call, and kept around as the cache entry afterwards.
type ValidationRequest struct {
	TransactionID         string            `json:"transactionId"`
	ProductID             string            `json:"productId,omitempty"`
	OriginalTransactionID string            `json:"originalTransactionId,omitempty"`
	StartTime             time.Time         `json:"startTime"`
	EndTime               time.Time         `json:"endTime,omitzero"`
	State                 RequestState      `json:"state"`
	Result                *ValidationResult `json:"result,omitempty"`
}

// Terminal reports whether the request reached a final state.
func (r *ValidationRequest) Terminal() bool {
	return r.State == RequestStateCompleted || r.State == RequestStateFailed
}

// ValidationResult is the immutable outcome of a validation attempt. It is
// created once and shared by reference between the cache entry and every
// caller that was waiting on the request.
//
// Exactly one of the success shape (Purchases et al.) and the error shape
// (ErrorCode/ErrorMessage) is populated.
type ValidationResult struct {
	IsValid bool `json:"isValid"`

	// IsExpired and IsActive are derived once at construction:
	// IsExpired is true iff the purchase set is non-empty and every entry is
	// expired; IsActive is IsValid && !IsExpired.
	IsExpired bool `json:"isExpired"`
	IsActive  bool `json:"isActive"`

	Purchases               []Purchase `json:"purchases,omitempty"`
	IneligibleForIntroPrice []string   `json:"ineligibleForIntroPrice,omitempty"`
	ProductID               string     `json:"productId,omitempty"`
	ValidationDate          *time.Time `json:"validationDate,omitempty"`
	Warning                 string     `json:"warning,omitempty"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Failed reports whether the result carries the error shape.
func (r *ValidationResult) Failed() bool {
	return r.ErrorCode != ""
}

// Purchase is a standardized entitlement record. All fields except ID are
// opaque pass-through values from the validation service; no cross-field
// invariants are enforced here.
type Purchase struct {
	ID                      string  `json:"id"`
	PurchaseDate            *string `json:"purchaseDate,omitempty"`
	ExpiryDate              *string `json:"expiryDate,omitempty"`
	IsExpired               *bool   `json:"isExpired,omitempty"`
	RenewalIntent           *string `json:"renewalIntent,omitempty"`
	RenewalIntentChangeDate *string `json:"renewalIntentChangeDate,omitempty"`
	CancelationReason       *string `json:"cancelationReason,omitempty"`
	IsBillingRetryPeriod    *bool   `json:"isBillingRetryPeriod,omitempty"`
	IsTrialPeriod           *bool   `json:"isTrialPeriod,omitempty"`
	IsIntroPeriod           *bool   `json:"isIntroPeriod,omitempty"`
	IsAcknowledged          *bool   `json:"isAcknowledged,omitempty"`
	DiscountID              *string `json:"discountId,omitempty"`
	PriceConsentStatus      *string `json:"priceConsentStatus,omitempty"`
	LastRenewalDate         *string `json:"lastRenewalDate,omitempty"`
}

// NewValidationResult builds a successful result and computes the derived
// aggregate flags.
func NewValidationResult(purchases []Purchase, ineligible []string, productID string, validationDate *time.Time, warning string) *ValidationResult {
	expired := len(purchases) > 0
	for _, p := range purchases {
		if p.IsExpired == nil || !*p.IsExpired {
			expired = false
			break
		}
	}

	return &ValidationResult{
		IsValid:                 true,
		IsExpired:               expired,
		IsActive:                !expired,
		Purchases:               purchases,
		IneligibleForIntroPrice: ineligible,
		ProductID:               productID,
		ValidationDate:          validationDate,
		Warning:                 warning,
	}
}

// NewErrorResult builds a failed result carrying only the error shape.
func NewErrorResult(code, message string) *ValidationResult {
	return &ValidationResult{
		ErrorCode:    code,
		ErrorMessage: message,
	}
}
