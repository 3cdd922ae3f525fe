// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/services"
)

// LicenseService is the part of the validation manager the API drives.
type LicenseService interface {
	Validate(ctx context.Context, key string) bool
	Clear(ctx context.Context) error
	Status() services.Status
	Features() license.Features
	RequireFeature(name string) error
}

// LicenseHandler serves the local license API.
type LicenseHandler struct {
	service LicenseService
	codec   *license.Codec
}

func NewLicenseHandler(service LicenseService, codec *license.Codec) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		codec:   codec,
	}
}

// LicenseKeyRequest is the body of the validate and decode endpoints.
type LicenseKeyRequest struct {
	LicenseKey string `json:"licenseKey" validate:"required"`
}

type ValidateLicenseResponse struct {
	Valid    bool             `json:"valid"`
	Status   services.Status  `json:"status"`
	Features license.Features `json:"features"`
}

type FeatureResponse struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// ValidateLicense validates a key and makes it the active license. An invalid
// key is not a request error, the verdict is in the body.
func (h *LicenseHandler) ValidateLicense(w http.ResponseWriter, r *http.Request) {
	var req LicenseKeyRequest
	if err := decodeRequest(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "licenseKey is required")
		return
	}

	valid := h.service.Validate(r.Context(), req.LicenseKey)
	status := h.service.Status()

	log.Info().
		Str("licenseKey", license.MaskKey(req.LicenseKey)).
		Str("state", string(status.State)).
		Msg("License validation requested")

	RespondJSON(w, r, http.StatusOK, ValidateLicenseResponse{
		Valid:    valid,
		Status:   status,
		Features: status.Features,
	})
}

func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, r, http.StatusOK, h.service.Status())
}

func (h *LicenseHandler) GetFeatures(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, r, http.StatusOK, h.service.Features())
}

// CheckFeature answers 200 when the feature is enabled, 403 when it is not and
// 404 for names that are not features at all.
func (h *LicenseHandler) CheckFeature(w http.ResponseWriter, r *http.Request) {
	feature := chi.URLParam(r, "feature")

	err := h.service.RequireFeature(feature)
	switch {
	case err == nil:
		RespondJSON(w, r, http.StatusOK, FeatureResponse{Feature: feature, Enabled: true})
	case errors.Is(err, license.ErrUnknownFeature):
		RespondError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrFeatureNotEnabled):
		RespondError(w, r, http.StatusForbidden, err.Error())
	default:
		log.Error().Err(err).Str("feature", feature).Msg("Failed to check feature")
		RespondError(w, r, http.StatusInternalServerError, "Failed to check feature")
	}
}

// ClearLicense forgets the active license and its snapshot.
func (h *LicenseHandler) ClearLicense(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Clear(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to clear license")
		RespondError(w, r, http.StatusInternalServerError, "Failed to clear license")
		return
	}
	RespondJSON(w, r, http.StatusNoContent, nil)
}

// DecodeKey parses a key without contacting the verifier.
func (h *LicenseHandler) DecodeKey(w http.ResponseWriter, r *http.Request) {
	var req LicenseKeyRequest
	if err := decodeRequest(r, &req); err != nil {
		RespondError(w, r, http.StatusBadRequest, "licenseKey is required")
		return
	}

	payload, err := h.codec.Decode(strings.ToUpper(req.LicenseKey))
	if err != nil {
		RespondError(w, r, http.StatusUnprocessableEntity, err.Error())
		return
	}
	RespondJSON(w, r, http.StatusOK, payload)
}
