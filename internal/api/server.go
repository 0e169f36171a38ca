// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/reval/internal/api/handlers"
	"github.com/autobrr/reval/internal/api/middleware"
	"github.com/autobrr/reval/internal/config"
	"github.com/autobrr/reval/internal/iaptic"
	"github.com/autobrr/reval/internal/update"
	"github.com/autobrr/reval/internal/validation"
)

// Dependencies carries everything the HTTP server needs.
type Dependencies struct {
	Config        *config.Config
	Client        *iaptic.Client
	Coordinator   *validation.Coordinator
	UpdateService *update.Service
}

type Server struct {
	deps   Dependencies
	server *http.Server
}

func NewServer(deps Dependencies) *Server {
	return &Server{
		deps: deps,
	}
}

// Handler assembles the chi router with all middleware and routes.
func (s *Server) Handler() (http.Handler, error) {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logger(log.Logger))

	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-API-Token"},
		AllowCredentials: true,
	}).Handler)

	compressor, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, fmt.Errorf("failed to create compression adapter: %w", err)
	}
	r.Use(compressor)

	healthHandler := handlers.NewHealthHandler(s.deps.Client)
	validationHandler := handlers.NewValidationHandler(s.deps.Coordinator)
	versionHandler := handlers.NewVersionHandler(s.deps.UpdateService)

	r.Route("/api", func(r chi.Router) {
		// Health endpoints stay unauthenticated for probes.
		r.Route("/health", healthHandler.Routes)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAPIToken(s.deps.Config.APIToken))

			validationHandler.Routes(r)
			r.Get("/version", versionHandler.GetVersion)
			r.Get("/version/latest", versionHandler.GetLatestVersion)
		})
	})

	return r, nil
}

func (s *Server) ListenAndServe() error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf("%s:%d", s.deps.Config.Host, s.deps.Config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().Str("address", addr).Msg("Starting API server")

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
