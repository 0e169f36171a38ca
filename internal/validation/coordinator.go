// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package validation coordinates receipt validations so that at most one
// outbound request per transaction is ever in flight. Concurrent callers for
// the same transaction join the in-flight attempt, recent results are served
// from the request table, and unrelated transactions never block each other.
package validation

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/iaptic"
	"github.com/autobrr/reval/internal/models"
)

const (
	// DefaultFreshnessWindow is the maximum age of a cached terminal result
	// still considered reusable.
	DefaultFreshnessWindow = 5 * time.Minute

	// DefaultSweepInterval is how often terminal entries past retention are
	// evicted from the request table.
	DefaultSweepInterval = 5 * time.Minute

	// retentionMultiplier sets how long terminal entries outlive the
	// freshness window before the sweeper drops them.
	retentionMultiplier = 10
)

// Input carries everything needed to validate one transaction.
type Input struct {
	TransactionID         string
	ProductID             string
	OriginalTransactionID string
	ApplicationUsername   string
	JWSRepresentation     string

	// PurchaseFailed marks an upstream purchase attempt that did not
	// succeed; validation short-circuits before any coordination or
	// network activity.
	PurchaseFailed bool

	// RetryPolicy overrides the coordinator's policy for this call.
	RetryPolicy *iaptic.RetryPolicy
}

// entry pairs the request record with the completion signal its waiters
// block on. done is closed exactly once, after Result and the terminal
// state are published under the table lock.
type entry struct {
	req  *models.ValidationRequest
	done chan struct{}
}

// Stats is a point-in-time snapshot of coordinator activity.
type Stats struct {
	CacheHits     uint64
	Joins         uint64
	Validations   uint64
	Completed     uint64
	Failed        uint64
	ShortCircuits uint64
	TableSize     int
	InFlight      int
}

// Coordinator owns the table of outstanding and recent validation requests.
type Coordinator struct {
	client *iaptic.Client
	policy iaptic.RetryPolicy

	freshness     time.Duration
	sweepInterval time.Duration

	mu            sync.Mutex
	requests      map[string]*entry
	lastCompleted *models.ValidationRequest
	inFlight      int
	stats         Stats

	now func() time.Time
}

type Option func(*Coordinator)

// WithFreshnessWindow sets the maximum age of a reusable cached result.
func WithFreshnessWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.freshness = d
		}
	}
}

// WithRetryPolicy sets the default retry policy for validations.
func WithRetryPolicy(p iaptic.RetryPolicy) Option {
	return func(c *Coordinator) {
		c.policy = p
	}
}

// WithSweepInterval sets how often the request table is swept.
func WithSweepInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.sweepInterval = d
		}
	}
}

// NewCoordinator creates a request coordinator driving the given client.
func NewCoordinator(client *iaptic.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		client:        client,
		policy:        iaptic.DefaultRetryPolicy(),
		freshness:     DefaultFreshnessWindow,
		sweepInterval: DefaultSweepInterval,
		requests:      make(map[string]*entry),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Validate validates one transaction. It never fails at this level: every
// outcome, including transport failures and retries exhausted, is encoded in
// the returned result's error fields.
//
// Concurrent calls for the same transaction id are coalesced: the first
// caller performs the network validation, later callers either get the
// cached result (when fresh) or suspend until the in-flight attempt
// completes and receive the same result value.
func (c *Coordinator) Validate(ctx context.Context, in Input) *models.ValidationResult {
	if in.PurchaseFailed {
		c.mu.Lock()
		c.stats.ShortCircuits++
		c.mu.Unlock()
		return models.NewErrorResult(models.ErrCodePurchaseFailed, "upstream purchase attempt was not successful")
	}

	if in.TransactionID == "" {
		return models.NewErrorResult(models.ErrCodeUnknownError, "transaction id is required")
	}

	c.mu.Lock()

	if e, ok := c.requests[in.TransactionID]; ok {
		if e.req.State == models.RequestStateInProgress {
			// Join the in-flight attempt. The done channel is captured
			// while holding the lock, so a completion broadcast can never
			// slip between the state check and the wait.
			done := e.done
			req := e.req
			c.stats.Joins++
			c.mu.Unlock()

			select {
			case <-done:
				// Result is published before done is closed.
				return req.Result
			case <-ctx.Done():
				// Abandoning the wait affects neither the in-flight
				// attempt nor the other waiters.
				return models.NewErrorResult(models.ErrCodeRequestError, ctx.Err().Error())
			}
		}

		if c.now().Sub(e.req.EndTime) < c.freshness {
			res := e.req.Result
			c.stats.CacheHits++
			c.mu.Unlock()
			return res
		}

		// Terminal but stale: a new attempt supersedes the entry.
	}

	// Publish the in-progress record before the network call so concurrent
	// callers join instead of racing a second request.
	e := &entry{
		req: &models.ValidationRequest{
			TransactionID:         in.TransactionID,
			ProductID:             in.ProductID,
			OriginalTransactionID: in.OriginalTransactionID,
			StartTime:             c.now(),
			State:                 models.RequestStateInProgress,
		},
		done: make(chan struct{}),
	}
	c.requests[in.TransactionID] = e
	c.inFlight++
	c.stats.Validations++
	c.mu.Unlock()

	result := c.client.Validate(ctx, iaptic.ValidateRequest{
		TransactionID:         in.TransactionID,
		ProductID:             in.ProductID,
		OriginalTransactionID: in.OriginalTransactionID,
		ApplicationUsername:   in.ApplicationUsername,
		JWSRepresentation:     in.JWSRepresentation,
	}, c.policyFor(in))

	c.mu.Lock()
	e.req.Result = result
	e.req.EndTime = c.now()
	if result.Failed() {
		e.req.State = models.RequestStateFailed
		c.stats.Failed++
	} else {
		e.req.State = models.RequestStateCompleted
		c.stats.Completed++
		if c.lastCompleted == nil || e.req.EndTime.After(c.lastCompleted.EndTime) {
			c.lastCompleted = e.req
		}
	}
	c.inFlight--
	close(e.done)
	c.mu.Unlock()

	return result
}

func (c *Coordinator) policyFor(in Input) iaptic.RetryPolicy {
	if in.RetryPolicy != nil {
		return *in.RetryPolicy
	}
	return c.policy
}

// GetVerifiedPurchases returns the purchase list of the most recently
// completed validation (by end time, not call order). It never triggers a
// validation.
func (c *Coordinator) GetVerifiedPurchases() []models.Purchase {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.lastCompleted == nil || c.lastCompleted.Result == nil {
		return nil
	}
	if !c.lastCompleted.Result.IsValid {
		return nil
	}

	return c.lastCompleted.Result.Purchases
}

// GetRequest returns a snapshot of the tracked request for a transaction id,
// or models.ErrRequestNotFound when the table has no entry for it.
func (c *Coordinator) GetRequest(transactionID string) (*models.ValidationRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.requests[transactionID]
	if !ok {
		return nil, models.ErrRequestNotFound
	}

	// Copy so callers never observe fields mid-publish.
	req := *e.req
	return &req, nil
}

// Stats returns a snapshot of coordinator counters and table occupancy.
func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.TableSize = len(c.requests)
	s.InFlight = c.inFlight
	return s
}

// StartSweeper periodically evicts terminal entries older than the retention
// horizon. In-progress entries are never evicted. The upstream design keeps
// entries forever; the retention policy here bounds table growth in
// long-running deployments.
func (c *Coordinator) StartSweeper(ctx context.Context) {
	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := c.sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Swept stale validation requests")
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) sweep() int {
	cutoff := c.now().Add(-retentionMultiplier * c.freshness)

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for id, e := range c.requests {
		if e.req.Terminal() && e.req.EndTime.Before(cutoff) {
			delete(c.requests, id)
			removed++
		}
	}
	return removed
}
