// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/services"
)

// StatusSource is anything that can report the current license status.
type StatusSource interface {
	Status() services.Status
}

type LicenseCollector struct {
	source StatusSource
	clock  clockwork.Clock

	validDesc              *prometheus.Desc
	infoDesc               *prometheus.Desc
	featureEnabledDesc     *prometheus.Desc
	expiryDesc             *prometheus.Desc
	sinceValidationDesc    *prometheus.Desc
	revalidationActiveDesc *prometheus.Desc
}

func NewLicenseCollector(source StatusSource, clock clockwork.Clock) *LicenseCollector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &LicenseCollector{
		source: source,
		clock:  clock,

		validDesc: prometheus.NewDesc(
			"ggas_license_valid",
			"Whether the current license is valid (1=valid, 0=not valid)",
			nil,
			nil,
		),
		infoDesc: prometheus.NewDesc(
			"ggas_license_info",
			"Current license state and type, always 1",
			[]string{"state", "license_type"},
			nil,
		),
		featureEnabledDesc: prometheus.NewDesc(
			"ggas_license_feature_enabled",
			"Whether a feature is enabled by the current license (1=enabled, 0=disabled)",
			[]string{"feature"},
			nil,
		),
		expiryDesc: prometheus.NewDesc(
			"ggas_license_expiry_timestamp_seconds",
			"Unix time the current license expires at, absent for perpetual licenses",
			nil,
			nil,
		),
		sinceValidationDesc: prometheus.NewDesc(
			"ggas_license_seconds_since_validation",
			"Seconds since the license was last confirmed online",
			nil,
			nil,
		),
		revalidationActiveDesc: prometheus.NewDesc(
			"ggas_license_revalidation_active",
			"Whether background re-validation is running (1=running, 0=stopped)",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.validDesc
	ch <- c.infoDesc
	ch <- c.featureEnabledDesc
	ch <- c.expiryDesc
	ch <- c.sinceValidationDesc
	ch <- c.revalidationActiveDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("License status source is nil, skipping metrics collection")
		return
	}

	status := c.source.Status()

	ch <- prometheus.MustNewConstMetric(c.validDesc, prometheus.GaugeValue, boolValue(status.State.Valid()))
	ch <- prometheus.MustNewConstMetric(
		c.infoDesc,
		prometheus.GaugeValue,
		1,
		string(status.State),
		status.LicenseType.String(),
	)
	ch <- prometheus.MustNewConstMetric(c.revalidationActiveDesc, prometheus.GaugeValue, boolValue(status.RevalidationActive))

	for _, name := range license.FeatureNames() {
		ch <- prometheus.MustNewConstMetric(
			c.featureEnabledDesc,
			prometheus.GaugeValue,
			boolValue(status.Features.Enabled(name)),
			name,
		)
	}

	if status.ExpiresAt != nil {
		ch <- prometheus.MustNewConstMetric(c.expiryDesc, prometheus.GaugeValue, float64(status.ExpiresAt.Unix()))
	}

	if status.LastValidatedAt != nil {
		ch <- prometheus.MustNewConstMetric(
			c.sinceValidationDesc,
			prometheus.GaugeValue,
			c.clock.Since(*status.LastValidatedAt).Seconds(),
		)
	}
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
