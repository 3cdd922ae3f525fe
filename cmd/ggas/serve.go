// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/J-Ellette/GGAS-sub001/internal/api"
	"github.com/J-Ellette/GGAS-sub001/internal/domain"
)

func RunServeCommand() *cobra.Command {
	var flags runtimeFlags

	command := &cobra.Command{
		Use:   "serve",
		Short: "Start the license API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), flags)
		},
	}
	flags.register(command)

	return command
}

func runServer(ctx context.Context, flags runtimeFlags) error {
	log.Info().Str("version", Version).Msg("Starting ggas")

	rt, err := openRuntime(ctx, flags, true)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg.Current()

	resumeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if rt.manager.Resume(resumeCtx) {
		log.Info().Str("state", string(rt.manager.State())).Msg("Resumed license from snapshot")
	}
	cancel()

	rt.cfg.Watch(func(next *domain.Config) {
		if next.License != cfg.License || next.Port != cfg.Port || next.Host != cfg.Host {
			log.Warn().Msg("License and listener settings take effect after a restart")
		}
	})

	if rt.metrics != nil {
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	router := api.NewRouter(&api.Dependencies{
		BaseURL:        cfg.BaseURL,
		Version:        Version,
		License:        rt.manager,
		Codec:          rt.codec,
		MetricsManager: rt.metrics,
	})

	readTimeout := secondsOr(cfg.HTTPTimeouts.ReadTimeout, 60*time.Second)
	writeTimeout := secondsOr(cfg.HTTPTimeouts.WriteTimeout, 120*time.Second)
	idleTimeout := secondsOr(cfg.HTTPTimeouts.IdleTimeout, 180*time.Second)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")
		if cfg.BaseURL != "" {
			log.Info().Str("baseURL", cfg.BaseURL).Msg("Serving under base URL")
		}

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
	case <-ctx.Done():
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func secondsOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
