// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: MIT

package swagger

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openapiYAML []byte

//go:embed index.html
var swaggerHTML string

// Handler serves the embedded OpenAPI document and a Swagger UI page for it.
type Handler struct {
	spec    map[string]any
	version string
	baseURL string
}

func NewHandler(baseURL, version string) (*Handler, error) {
	var spec map[string]any
	if err := yaml.Unmarshal(openapiYAML, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse openapi spec: %w", err)
	}

	return &Handler{
		spec:    spec,
		version: version,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/docs", h.ServeSwaggerUI)
	r.Get("/api/openapi.json", h.ServeOpenAPISpec)
}

func (h *Handler) ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := strings.ReplaceAll(swaggerHTML, "{{OPENAPI_URL}}", h.baseURL+"/api/openapi.json")
	w.Write([]byte(html))
}

// GetOpenAPISpec returns the raw YAML document.
func GetOpenAPISpec() ([]byte, error) {
	if len(openapiYAML) == 0 {
		return nil, errors.New("openapi spec is not embedded")
	}
	return openapiYAML, nil
}

func (h *Handler) ServeOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	spec := maps.Clone(h.spec)
	if info, ok := spec["info"].(map[string]any); ok && h.version != "" {
		info = maps.Clone(info)
		info["version"] = h.version
		spec["info"] = info
	}

	if h.baseURL != "" {
		scheme := "http"
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		host := r.Host

		servers := []map[string]any{
			{
				"url":         scheme + "://" + host + h.baseURL,
				"description": "Current server with base URL",
			},
		}

		if existingServers, ok := spec["servers"].([]any); ok {
			for _, s := range existingServers {
				if server, ok := s.(map[string]any); ok {
					servers = append(servers, server)
				}
			}
		}

		spec["servers"] = servers
	}

	if err := json.NewEncoder(w).Encode(spec); err != nil {
		log.Error().Err(err).Msg("Failed to encode openapi spec")
	}
}
