// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package iaptic

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/models"
)

// envelope is the common wrapper of every iaptic response body. Ok is a
// pointer so a body missing the marker entirely can be told apart from
// ok=false.
type envelope struct {
	Ok      *bool        `json:"ok"`
	Data    *payloadData `json:"data"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
}

type payloadData struct {
	Collection              []models.Purchase `json:"collection"`
	IneligibleForIntroPrice []string          `json:"ineligible_for_intro_price"`
	Warning                 *string           `json:"warning"`
	Date                    string            `json:"date"`
}

// parseResponse turns a 200-status body into a typed validation outcome.
// Bodies that cannot be parsed or are missing the ok marker are classified
// as UnknownError; ok=false bodies carry the server's own code and message.
func parseResponse(body []byte, productID string) *models.ValidationResult {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Debug().Err(err).Msg("Failed to unmarshal validation response")
		return models.NewErrorResult(models.ErrCodeUnknownError, "could not parse validation response")
	}

	if env.Ok == nil {
		return models.NewErrorResult(models.ErrCodeUnknownError, "validation response missing ok marker")
	}

	if !*env.Ok {
		code := env.Code
		if code == "" {
			code = models.ErrCodeUnknownError
		}
		return models.NewErrorResult(code, env.Message)
	}

	if env.Data == nil {
		return models.NewErrorResult(models.ErrCodeUnknownError, "validation response missing data")
	}

	// Entries without an id are dropped, not fatal.
	purchases := make([]models.Purchase, 0, len(env.Data.Collection))
	for _, p := range env.Data.Collection {
		if p.ID == "" {
			log.Debug().Msg("Dropping purchase entry without id")
			continue
		}
		purchases = append(purchases, p)
	}

	var warning string
	if env.Data.Warning != nil {
		warning = *env.Data.Warning
	}

	return models.NewValidationResult(purchases, env.Data.IneligibleForIntroPrice, productID, parseValidationDate(env.Data.Date), warning)
}

// parseValidationDate parses the ISO-8601 timestamp (with fractional seconds)
// the validation service attaches to successful responses. Absent or
// malformed dates are tolerated.
func parseValidationDate(raw string) *time.Time {
	if raw == "" {
		return nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return &ts
		}
	}

	log.Debug().Str("date", raw).Msg("Unparseable validation date")
	return nil
}
