// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/autobrr/reval/internal/api"
	"github.com/autobrr/reval/internal/buildinfo"
	"github.com/autobrr/reval/internal/config"
	"github.com/autobrr/reval/internal/iaptic"
	"github.com/autobrr/reval/internal/metrics"
	"github.com/autobrr/reval/internal/update"
	"github.com/autobrr/reval/internal/validation"
)

const shutdownTimeout = 10 * time.Second

func main() {
	rootCmd := &cobra.Command{
		Use:   "reval",
		Short: "In-app purchase receipt validation service",
	}

	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the validation service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configDir)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory containing config.toml (default: OS config dir)")

	return cmd
}

func RunVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			buildinfo.Print()
		},
	}
}

func serve(configDir string) error {
	cfg, err := config.New(configDir)
	if err != nil {
		return err
	}

	if err := cfg.ApplyLogConfig(); err != nil {
		return err
	}

	log.Info().
		Str("version", buildinfo.Version).
		Str("commit", buildinfo.Commit).
		Msg("Starting reval")

	clientOpts := []iaptic.OptFunc{}
	if cfg.Config.IapticBaseURL != "" {
		clientOpts = append(clientOpts, iaptic.WithBaseURL(cfg.Config.IapticBaseURL))
	}
	client := iaptic.NewClient(cfg.Config.IapticAppName, cfg.Config.IapticPublicKey, clientOpts...)

	if !client.IsClientConfigured() {
		log.Warn().Msg("iaptic credentials not configured, validations will fail")
	}

	coordinator := validation.NewCoordinator(client,
		validation.WithFreshnessWindow(cfg.Config.FreshnessWindow),
		validation.WithRetryPolicy(iaptic.RetryPolicy{
			RetryCount: cfg.Config.RetryCount,
			RetryDelay: cfg.Config.RetryDelay,
		}),
		validation.WithSweepInterval(cfg.Config.SweepInterval),
	)

	updateService := update.NewService(log.Logger, cfg.Config.CheckForUpdates, buildinfo.Version, buildinfo.UserAgent)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	updateService.Start(ctx)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		coordinator.StartSweeper(ctx)
		return nil
	})

	apiServer := api.NewServer(api.Dependencies{
		Config:        cfg.Config,
		Client:        client,
		Coordinator:   coordinator,
		UpdateService: updateService,
	})

	g.Go(apiServer.ListenAndServe)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	if cfg.Config.MetricsEnabled {
		metricsServer := metrics.NewMetricsServer(
			metrics.NewMetricsManager(coordinator),
			cfg.Config.MetricsHost,
			cfg.Config.MetricsPort,
			cfg.Config.MetricsBasicAuthUsers,
		)

		g.Go(metricsServer.ListenAndServe)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	log.Info().Msg("Shutdown complete")
	return nil
}
