// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package iaptic

import (
	"time"

	"github.com/avast/retry-go"
)

const (
	// DefaultRetryCount is the number of additional attempts after the first.
	DefaultRetryCount uint = 8

	// DefaultRetryDelay is the base delay before the first retry. Each
	// subsequent retry doubles it: 5s, 10s, 20s, 40s, ...
	DefaultRetryDelay = 5 * time.Second

	// maxBackoffShift bounds the doubling so the delay can never overflow
	// time.Duration.
	maxBackoffShift uint = 32
)

// RetryPolicy governs retryable validation attempts. Only transport failures
// and 5xx responses are retried; logical rejections short-circuit regardless
// of remaining budget.
type RetryPolicy struct {
	// RetryCount is the maximum number of additional attempts after the first.
	RetryCount uint

	// RetryDelay is the base delay; retry k (1-indexed) waits RetryDelay * 2^(k-1).
	RetryDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when the caller does not supply one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		RetryCount: DefaultRetryCount,
		RetryDelay: DefaultRetryDelay,
	}
}

// Backoff returns the wait before retry n (0-indexed): RetryDelay << n.
func (p RetryPolicy) Backoff(n uint) time.Duration {
	delay := p.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	if n > maxBackoffShift {
		n = maxBackoffShift
	}
	return delay << n
}

// attempts returns the total attempt budget including the initial attempt.
func (p RetryPolicy) attempts() uint {
	return p.RetryCount + 1
}

func (p RetryPolicy) delayType() retry.DelayTypeFunc {
	return func(n uint, _ error, _ *retry.Config) time.Duration {
		return p.Backoff(n)
	}
}
