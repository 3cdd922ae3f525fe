// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector

	validations   *prometheus.CounterVec
	revalidations *prometheus.CounterVec
}

func NewManager() *Manager {
	registry := prometheus.NewRegistry()

	validations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ggas_license_validations_total",
		Help: "License validations by result (online, offline, invalid)",
	}, []string{"result"})
	revalidations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ggas_license_revalidations_total",
		Help: "Background license re-validations by result (success, failure)",
	}, []string{"result"})

	registry.MustRegister(validations, revalidations)

	return &Manager{
		registry:      registry,
		validations:   validations,
		revalidations: revalidations,
	}
}

// RegisterLicenseCollector exposes the state reported by source. Only the
// first registration takes effect.
func (m *Manager) RegisterLicenseCollector(source StatusSource, clock clockwork.Clock) {
	if m.licenseCollector != nil {
		return
	}

	m.licenseCollector = NewLicenseCollector(source, clock)
	m.registry.MustRegister(m.licenseCollector)

	log.Info().Msg("Metrics manager initialized with license collector")
}

// RegisterRuntimeCollectors adds the Go runtime and process collectors.
func (m *Manager) RegisterRuntimeCollectors() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func (m *Manager) RecordValidation(result string) {
	m.validations.WithLabelValues(result).Inc()
}

func (m *Manager) RecordRevalidation(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.revalidations.WithLabelValues(result).Inc()
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
