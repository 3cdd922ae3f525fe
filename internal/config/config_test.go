// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/J-Ellette/GGAS-sub001/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	configPath := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

func TestDataDirConfiguration(t *testing.T) {
	tests := []struct {
		name           string
		configContent  string
		envVar         string
		expectedInPath string
	}{
		{
			name: "default_next_to_config",
			configContent: `
host = "localhost"
port = 8080`,
			expectedInPath: "ggas.db",
		},
		{
			name: "explicit_in_config",
			configContent: `
host = "localhost"
port = 8080
dataDir = "/custom/path"`,
			expectedInPath: filepath.ToSlash("/custom/path/ggas.db"),
		},
		{
			name: "env_var_override",
			configContent: `
host = "localhost"
port = 8080
dataDir = "/config/path"`,
			envVar:         "/env/override",
			expectedInPath: filepath.ToSlash("/env/override/ggas.db"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, t.TempDir(), tt.configContent)

			if tt.envVar != "" {
				t.Setenv(envPrefix+"DATA_DIR", tt.envVar)
			}

			cfg, err := New(configPath)
			require.NoError(t, err)

			dbPath := filepath.ToSlash(cfg.GetDatabasePath())
			assert.True(t, strings.HasSuffix(dbPath, tt.expectedInPath), "%s should end with %s", dbPath, tt.expectedInPath)
		})
	}
}

func TestDefaults(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `host = "127.0.0.1"`)

	cfg, err := New(configPath)
	require.NoError(t, err)

	c := cfg.Current()
	assert.Equal(t, "127.0.0.1", c.Host)
	assert.Equal(t, 7476, c.Port)
	assert.Equal(t, "INFO", c.LogLevel)
	assert.False(t, c.MetricsEnabled)
	assert.Equal(t, 60, c.HTTPTimeouts.ReadTimeout)
	assert.Equal(t, domain.SnapshotBackendSQLite, c.License.SnapshotBackend)
	assert.Equal(t, 30, c.License.RequestsPerMinute)
	assert.Empty(t, c.License.VerifyURL)

	interval, grace, timeout := cfg.LicenseDurations()
	assert.Equal(t, 24*time.Hour, interval)
	assert.Equal(t, 7*24*time.Hour, grace)
	assert.Equal(t, 15*time.Second, timeout)
}

func TestLicenseSection(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
logLevel = "debug"

[license]
verifyUrl = "https://licenses.example.com/api/verify"
validationInterval = "6h"
offlineGracePeriod = "3d"
requestTimeout = "5s"
requestsPerMinute = 0
snapshotBackend = "FILE"
`)

	cfg, err := New(configPath)
	require.NoError(t, err)

	c := cfg.Current()
	assert.Equal(t, "DEBUG", c.LogLevel)
	assert.Equal(t, "https://licenses.example.com/api/verify", c.License.VerifyURL)
	assert.Equal(t, domain.SnapshotBackendFile, c.License.SnapshotBackend)
	assert.Equal(t, 0, c.License.RequestsPerMinute)

	interval, grace, timeout := cfg.LicenseDurations()
	assert.Equal(t, 6*time.Hour, interval)
	assert.Equal(t, 72*time.Hour, grace)
	assert.Equal(t, 5*time.Second, timeout)
}

func TestInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "bad port", content: `port = 70000`},
		{name: "bad log level", content: `logLevel = "LOUD"`},
		{name: "bad backend", content: "[license]\nsnapshotBackend = \"redis\""},
		{name: "bad verify url", content: "[license]\nverifyUrl = \"not a url\""},
		{name: "bad interval", content: "[license]\nvalidationInterval = \"often\""},
		{name: "zero grace", content: "[license]\nofflineGracePeriod = \"0s\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(writeConfig(t, t.TempDir(), tt.content))
			assert.Error(t, err)
		})
	}
}

func TestEnvironmentVariablePrecedence(t *testing.T) {
	configPath := writeConfig(t, t.TempDir(), `
host = "localhost"
port = 8080
dataDir = "/config/file/path"

[license]
verifyUrl = "https://file.example.com/verify"`)

	t.Setenv(envPrefix+"DATA_DIR", "/env/var/path")
	t.Setenv(envPrefix+"PORT", "9191")
	t.Setenv(envPrefix+"LICENSE__VERIFY_URL", "https://env.example.com/verify")
	t.Setenv(envPrefix+"LICENSE__OFFLINE_GRACE_PERIOD", "48h")

	cfg, err := New(configPath)
	require.NoError(t, err)

	assert.Equal(t, filepath.ToSlash("/env/var/path/ggas.db"), filepath.ToSlash(cfg.GetDatabasePath()))
	assert.Equal(t, 9191, cfg.Current().Port)
	assert.Equal(t, "https://env.example.com/verify", cfg.Current().License.VerifyURL)
	_, grace, _ := cfg.LicenseDurations()
	assert.Equal(t, 48*time.Hour, grace)
}

func TestEnvFileBesideConfig(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `host = "localhost"`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("GGAS__METRICS_ENABLED=true\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("GGAS__METRICS_ENABLED") })

	cfg, err := New(configPath)
	require.NoError(t, err)
	assert.True(t, cfg.Current().MetricsEnabled)
}

func TestEnvName(t *testing.T) {
	tests := map[string]string{
		"host":                       "GGAS__HOST",
		"dataDir":                    "GGAS__DATA_DIR",
		"baseUrl":                    "GGAS__BASE_URL",
		"httpTimeouts.readTimeout":   "GGAS__HTTP_TIMEOUTS__READ_TIMEOUT",
		"license.offlineGracePeriod": "GGAS__LICENSE__OFFLINE_GRACE_PERIOD",
	}
	for key, expected := range tests {
		assert.Equal(t, expected, envName(key), key)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{input: "24h", expected: 24 * time.Hour},
		{input: "7d", expected: 7 * 24 * time.Hour},
		{input: " 90m ", expected: 90 * time.Minute},
		{input: "xd", wantErr: true},
		{input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseDuration(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestApplyLogConfig(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "ggas.log")
	configPath := writeConfig(t, dir, "logLevel = \"WARN\"\nlogPath = \""+filepath.ToSlash(logPath)+"\"")

	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})

	cfg, err := New(configPath)
	require.NoError(t, err)
	defer cfg.Close()

	require.NoError(t, cfg.ApplyLogConfig())
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.Warn().Msg("written to file")
	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "written to file")
}

func TestConfigDirResolution(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		setupFile      bool
		fileIsDir      bool
		expectedSuffix string
	}{
		{
			name:           "toml_file_extension",
			input:          "/path/to/custom.toml",
			expectedSuffix: "custom.toml",
		},
		{
			name:           "TOML_file_extension_uppercase",
			input:          "/path/to/CONFIG.TOML",
			expectedSuffix: "CONFIG.TOML",
		},
		{
			name:           "directory_path",
			input:          "/path/to/config",
			expectedSuffix: "config.toml",
		},
		{
			name:           "existing_file_without_toml",
			input:          "/path/to/configfile",
			setupFile:      true,
			expectedSuffix: "configfile",
		},
		{
			name:           "existing_directory",
			input:          "/path/to/configdir",
			setupFile:      true,
			fileIsDir:      true,
			expectedSuffix: "config.toml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputPath := filepath.Join(t.TempDir(), filepath.Base(tt.input))

			if tt.setupFile {
				if tt.fileIsDir {
					require.NoError(t, os.MkdirAll(inputPath, 0o755))
				} else {
					require.NoError(t, os.WriteFile(inputPath, []byte("test"), 0o644))
				}
			}

			c := &AppConfig{}
			result := c.resolveConfigPath(inputPath)
			assert.True(t, strings.HasSuffix(result, tt.expectedSuffix),
				"Expected result %s to end with %s", result, tt.expectedSuffix)
		})
	}
}

func TestConfigDirNewBehavior(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "config")
	require.NoError(t, os.MkdirAll(configDir, 0o755))
	writeConfig(t, configDir, `
host = "0.0.0.0"
port = 9090`)

	cfg, err := New(configDir)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Current().Host)
	assert.Equal(t, 9090, cfg.Current().Port)
	assert.Equal(t, filepath.Join(configDir, "ggas.db"), cfg.GetDatabasePath())

	cfg.SetDataDir("/srv/ggas")
	assert.Equal(t, filepath.Join("/srv/ggas", "ggas.db"), cfg.GetDatabasePath())
}

func TestNewCreatesMissingConfig(t *testing.T) {
	configDir := filepath.Join(t.TempDir(), "fresh")

	cfg, err := New(configDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(configDir, "config.toml"), cfg.ConfigPath())
	assert.FileExists(t, cfg.ConfigPath())
	assert.Equal(t, domain.SnapshotBackendSQLite, cfg.Current().License.SnapshotBackend)
}
