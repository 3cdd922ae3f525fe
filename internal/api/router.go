// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/J-Ellette/GGAS-sub001/internal/api/handlers"
	apimiddleware "github.com/J-Ellette/GGAS-sub001/internal/api/middleware"
	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/metrics"
	"github.com/J-Ellette/GGAS-sub001/internal/web/swagger"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	BaseURL        string
	Version        string
	License        handlers.LicenseService
	Codec          *license.Codec
	MetricsManager *metrics.Manager
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)

	baseURL := strings.TrimSuffix(deps.BaseURL, "/")
	if baseURL == "" {
		mountRoutes(r, deps)
		return r
	}

	r.Route(baseURL, func(r chi.Router) {
		mountRoutes(r, deps)
	})
	r.Get("/", http.RedirectHandler(baseURL+"/api/docs", http.StatusFound).ServeHTTP)
	return r
}

func mountRoutes(r chi.Router, deps *Dependencies) {
	licenseHandler := handlers.NewLicenseHandler(deps.License, deps.Codec)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Route("/license", func(r chi.Router) {
			r.Get("/", licenseHandler.GetStatus)
			r.Delete("/", licenseHandler.ClearLicense)
			r.Post("/validate", licenseHandler.ValidateLicense)
			r.Get("/features", licenseHandler.GetFeatures)
			r.Get("/features/{feature}", licenseHandler.CheckFeature)

			r.With(apimiddleware.RequireFeature(deps.License, license.FeatureAPIAccess)).
				Post("/keys/decode", licenseHandler.DecodeKey)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		handlers.RespondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.MetricsManager != nil {
		r.Get("/metrics", handlers.NewMetricsHandler(deps.MetricsManager).ServeMetrics)
	}

	swaggerHandler, err := swagger.NewHandler(deps.BaseURL, deps.Version)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load OpenAPI spec, API docs disabled")
		return
	}
	swaggerHandler.RegisterRoutes(r)
}
