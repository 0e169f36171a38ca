// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RequireAPIToken checks the X-API-Token header against the configured token.
// When no token is configured the API is open, intended for localhost-only
// deployments.
func RequireAPIToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Token")
			if provided == "" {
				provided = r.URL.Query().Get("apiToken")
			}

			if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
				log.Warn().Str("remote_ip", r.RemoteAddr).Msg("Invalid API token")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
