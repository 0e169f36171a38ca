// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/models"
	"github.com/autobrr/reval/internal/validation"
	"github.com/autobrr/reval/pkg/redact"
)

type ValidationHandler struct {
	coordinator *validation.Coordinator
}

func NewValidationHandler(coordinator *validation.Coordinator) *ValidationHandler {
	return &ValidationHandler{
		coordinator: coordinator,
	}
}

func (h *ValidationHandler) Routes(r chi.Router) {
	r.Post("/validate", h.HandleValidate)
	r.Get("/purchases", h.HandlePurchases)
	r.Get("/requests/{transactionID}", h.HandleGetRequest)
}

type validateRequest struct {
	TransactionID         string `json:"transactionId"`
	ProductID             string `json:"productId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ApplicationUsername   string `json:"applicationUsername"`
	JWSRepresentation     string `json:"jwsRepresentation"`
	PurchaseFailed        bool   `json:"purchaseFailed"`
}

func (h *ValidationHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.TransactionID == "" {
		RespondError(w, http.StatusBadRequest, "transactionId is required")
		return
	}

	log.Debug().
		Str("transactionId", req.TransactionID).
		Str("productId", req.ProductID).
		Str("jws", redact.Token(req.JWSRepresentation)).
		Msg("Validation requested")

	result := h.coordinator.Validate(r.Context(), validation.Input{
		TransactionID:         req.TransactionID,
		ProductID:             req.ProductID,
		OriginalTransactionID: req.OriginalTransactionID,
		ApplicationUsername:   req.ApplicationUsername,
		JWSRepresentation:     req.JWSRepresentation,
		PurchaseFailed:        req.PurchaseFailed,
	})

	RespondJSON(w, http.StatusOK, result)
}

func (h *ValidationHandler) HandleGetRequest(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")

	req, err := h.coordinator.GetRequest(transactionID)
	if err != nil {
		if errors.Is(err, models.ErrRequestNotFound) {
			RespondError(w, http.StatusNotFound, "Unknown transaction")
			return
		}
		RespondError(w, http.StatusInternalServerError, "Failed to look up request")
		return
	}

	RespondJSON(w, http.StatusOK, req)
}

type purchasesResponse struct {
	Purchases []models.Purchase `json:"purchases"`
}

func (h *ValidationHandler) HandlePurchases(w http.ResponseWriter, r *http.Request) {
	purchases := h.coordinator.GetVerifiedPurchases()
	if purchases == nil {
		purchases = []models.Purchase{}
	}

	RespondJSON(w, http.StatusOK, purchasesResponse{Purchases: purchases})
}
