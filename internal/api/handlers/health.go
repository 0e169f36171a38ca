// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/reval/internal/iaptic"
)

type HealthHandler struct {
	client *iaptic.Client
}

func NewHealthHandler(client *iaptic.Client) *HealthHandler {
	return &HealthHandler{
		client: client,
	}
}

func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/readiness", h.HandleReady)
	r.Get("/liveness", h.HandleLiveness)
}

func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	// Ready only once validation credentials are in place.
	if h.client != nil && h.client.IsClientConfigured() {
		RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}

	RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}
