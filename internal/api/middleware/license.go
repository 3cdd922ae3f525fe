// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"github.com/J-Ellette/GGAS-sub001/internal/services"
)

// FeatureGate reports whether a licensed feature may be used.
type FeatureGate interface {
	RequireFeature(name string) error
}

// RequireFeature rejects requests with 403 unless feature is enabled by the
// current license.
func RequireFeature(gate FeatureGate, feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			err := gate.RequireFeature(feature)
			if err == nil {
				next.ServeHTTP(w, r)
				return
			}

			status := http.StatusForbidden
			if !errors.Is(err, services.ErrFeatureNotEnabled) {
				log.Error().Err(err).Str("feature", feature).Msg("Feature gate misconfigured")
				status = http.StatusInternalServerError
			}

			log.Debug().Err(err).Str("path", r.URL.Path).Msg("Request blocked by license")
			render.Status(r, status)
			render.JSON(w, r, map[string]string{
				"error":   err.Error(),
				"feature": feature,
			})
		})
	}
}
