// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

// Config represents the application configuration
type Config struct {
	Host           string        `toml:"host" mapstructure:"host" validate:"required"`
	Port           int           `toml:"port" mapstructure:"port" validate:"min=1,max=65535"`
	BaseURL        string        `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel       string        `toml:"logLevel" mapstructure:"logLevel" validate:"oneof=TRACE DEBUG INFO WARN ERROR"`
	LogPath        string        `toml:"logPath" mapstructure:"logPath"`
	DataDir        string        `toml:"dataDir" mapstructure:"dataDir"`
	MetricsEnabled bool          `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	HTTPTimeouts   HTTPTimeouts  `toml:"httpTimeouts" mapstructure:"httpTimeouts"`
	License        LicenseConfig `toml:"license" mapstructure:"license"`
}

// HTTPTimeouts represents HTTP server timeout configuration
type HTTPTimeouts struct {
	ReadTimeout  int `toml:"readTimeout" mapstructure:"readTimeout" validate:"min=0"`   // seconds
	WriteTimeout int `toml:"writeTimeout" mapstructure:"writeTimeout" validate:"min=0"` // seconds
	IdleTimeout  int `toml:"idleTimeout" mapstructure:"idleTimeout" validate:"min=0"`   // seconds
}

// LicenseConfig holds license validation settings. Durations use Go syntax
// plus a "d" suffix for days, e.g. "24h" or "7d".
type LicenseConfig struct {
	VerifyURL          string `toml:"verifyUrl" mapstructure:"verifyUrl" validate:"omitempty,url"`
	ValidationInterval string `toml:"validationInterval" mapstructure:"validationInterval" validate:"required"`
	OfflineGracePeriod string `toml:"offlineGracePeriod" mapstructure:"offlineGracePeriod" validate:"required"`
	RequestTimeout     string `toml:"requestTimeout" mapstructure:"requestTimeout" validate:"required"`
	RequestsPerMinute  int    `toml:"requestsPerMinute" mapstructure:"requestsPerMinute" validate:"min=0"`
	SnapshotBackend    string `toml:"snapshotBackend" mapstructure:"snapshotBackend" validate:"oneof=sqlite file"`
}

// Snapshot backends
const (
	SnapshotBackendSQLite = "sqlite"
	SnapshotBackendFile   = "file"
)
