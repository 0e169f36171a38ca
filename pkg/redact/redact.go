// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package redact provides utilities for redacting sensitive purchase data from logs.
package redact

import "strings"

// Token masks a signed transaction token (JWS) for logging.
// JWS payloads embed the full transaction including the customer's app
// account token, so only a short prefix is ever logged.
func Token(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:12] + "***"
}

// Key masks an API credential for logging (shows first 8 chars + ***).
func Key(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:8] + "***"
}

// BasicAuthUser redacts the password portion of a user:pass credential pair.
func BasicAuthUser(cred string) string {
	user, _, found := strings.Cut(cred, ":")
	if !found {
		return cred
	}
	return user + ":REDACTED"
}
