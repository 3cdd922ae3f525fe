// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"text/template"
	"time"
	"unicode"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/J-Ellette/GGAS-sub001/internal/domain"
)

const (
	envPrefix           = "GGAS__"
	appName             = "ggas"
	configFileName      = "config.toml"
	envFileName         = ".env"
	defaultDatabaseName = "ggas.db"
)

// keys bound to environment variables, e.g. license.verifyUrl -> GGAS__LICENSE__VERIFY_URL
var envKeys = []string{
	"host",
	"port",
	"baseUrl",
	"logLevel",
	"logPath",
	"dataDir",
	"metricsEnabled",
	"httpTimeouts.readTimeout",
	"httpTimeouts.writeTimeout",
	"httpTimeouts.idleTimeout",
	"license.verifyUrl",
	"license.validationInterval",
	"license.offlineGracePeriod",
	"license.requestTimeout",
	"license.requestsPerMinute",
	"license.snapshotBackend",
}

type AppConfig struct {
	Config *domain.Config

	viper      *viper.Viper
	configPath string
	validate   *validator.Validate

	mu              sync.RWMutex
	dataDirOverride string
	logFile         *os.File
	logOutput       io.Writer
	reloadHook      func(*domain.Config)
}

// New loads the configuration at configPath, which may be a file or a
// directory holding config.toml. A missing file is created from the default
// template. An empty path selects the OS default directory.
func New(configPath string) (*AppConfig, error) {
	c := &AppConfig{
		viper:     viper.New(),
		Config:    &domain.Config{},
		validate:  validator.New(),
		logOutput: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime},
	}

	c.defaults()

	if configPath == "" {
		configPath = GetDefaultConfigDir()
	}
	c.configPath = c.resolveConfigPath(configPath)

	if err := c.loadEnvFile(); err != nil {
		return nil, err
	}

	if err := WriteDefaultConfig(c.configPath); err != nil {
		return nil, err
	}

	c.viper.SetConfigFile(c.configPath)
	c.viper.SetConfigType("toml")
	if err := c.viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", c.configPath, err)
	}

	c.bindEnv()

	if err := c.load(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "localhost")
	c.viper.SetDefault("port", 7476)
	c.viper.SetDefault("baseUrl", "/")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("dataDir", "")
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("httpTimeouts.readTimeout", 60)
	c.viper.SetDefault("httpTimeouts.writeTimeout", 120)
	c.viper.SetDefault("httpTimeouts.idleTimeout", 180)
	c.viper.SetDefault("license.verifyUrl", "")
	c.viper.SetDefault("license.validationInterval", "24h")
	c.viper.SetDefault("license.offlineGracePeriod", "7d")
	c.viper.SetDefault("license.requestTimeout", "15s")
	c.viper.SetDefault("license.requestsPerMinute", 30)
	c.viper.SetDefault("license.snapshotBackend", domain.SnapshotBackendSQLite)
}

func (c *AppConfig) bindEnv() {
	for _, key := range envKeys {
		// BindEnv only fails when no key is given
		_ = c.viper.BindEnv(key, envName(key))
	}
}

// envName maps a config key to its environment variable.
func envName(key string) string {
	parts := strings.Split(key, ".")
	for i, part := range parts {
		parts[i] = screamingSnake(part)
	}
	return envPrefix + strings.Join(parts, "__")
}

func screamingSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// loadEnvFile loads a .env file next to the config. Variables already set in
// the environment win.
func (c *AppConfig) loadEnvFile() error {
	envPath := filepath.Join(filepath.Dir(c.configPath), envFileName)
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("failed to load %s: %w", envPath, err)
	}
	log.Debug().Str("path", envPath).Msg("Loaded environment file")
	return nil
}

func (c *AppConfig) load() error {
	cfg := &domain.Config{}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.LogLevel = strings.ToUpper(strings.TrimSpace(cfg.LogLevel))
	cfg.License.SnapshotBackend = strings.ToLower(strings.TrimSpace(cfg.License.SnapshotBackend))

	if err := c.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for name, value := range map[string]string{
		"license.validationInterval": cfg.License.ValidationInterval,
		"license.offlineGracePeriod": cfg.License.OfflineGracePeriod,
		"license.requestTimeout":     cfg.License.RequestTimeout,
	} {
		if d, err := ParseDuration(value); err != nil || d <= 0 {
			return fmt.Errorf("invalid config: %s must be a positive duration, got %q", name, value)
		}
	}

	c.mu.Lock()
	c.Config = cfg
	c.mu.Unlock()
	return nil
}

// Watch reloads the configuration when the file changes. Only the log
// settings take effect without a restart; onReload sees every new config.
func (c *AppConfig) Watch(onReload func(*domain.Config)) {
	c.reloadHook = onReload

	c.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := c.load(); err != nil {
			log.Error().Err(err).Str("file", e.Name).Msg("Ignoring invalid config change")
			return
		}
		if err := c.ApplyLogConfig(); err != nil {
			log.Error().Err(err).Msg("Failed to apply log config")
		}
		log.Info().Str("file", e.Name).Msg("Config reloaded")

		if c.reloadHook != nil {
			c.reloadHook(c.Current())
		}
	})
	c.viper.WatchConfig()
}

// Current returns the active configuration.
func (c *AppConfig) Current() *domain.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Config
}

// ApplyLogConfig sets the global zerolog level and output.
func (c *AppConfig) ApplyLogConfig() error {
	cfg := c.Current()

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.logOutput
	if cfg.LogPath != "" {
		if c.logFile == nil || c.logFile.Name() != cfg.LogPath {
			if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
				return fmt.Errorf("failed to create log directory: %w", err)
			}
			f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
			if err != nil {
				return fmt.Errorf("failed to open log file: %w", err)
			}
			if c.logFile != nil {
				c.logFile.Close()
			}
			c.logFile = f
		}
		out = zerolog.MultiLevelWriter(c.logOutput, c.logFile)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	return nil
}

// Close releases the log file, if one is open.
func (c *AppConfig) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logFile == nil {
		return nil
	}
	err := c.logFile.Close()
	c.logFile = nil
	return err
}

func (c *AppConfig) ConfigPath() string {
	return c.configPath
}

// SetDataDir overrides the data directory, e.g. from a command line flag.
func (c *AppConfig) SetDataDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataDirOverride = dir
}

// GetDataDir returns the data directory; by default the config directory.
func (c *AppConfig) GetDataDir() string {
	c.mu.RLock()
	override := c.dataDirOverride
	c.mu.RUnlock()
	if override != "" {
		return override
	}

	cfg := c.Current()
	if cfg.DataDir != "" {
		return cfg.DataDir
	}
	return filepath.Dir(c.configPath)
}

func (c *AppConfig) GetDatabasePath() string {
	return filepath.Join(c.GetDataDir(), defaultDatabaseName)
}

// LicenseDurations returns the parsed re-validation interval, offline grace
// period and per-request timeout. They are validated on load.
func (c *AppConfig) LicenseDurations() (interval, grace, timeout time.Duration) {
	lc := c.Current().License
	interval, _ = ParseDuration(lc.ValidationInterval)
	grace, _ = ParseDuration(lc.OfflineGracePeriod)
	timeout, _ = ParseDuration(lc.RequestTimeout)
	return interval, grace, timeout
}

// ParseDuration accepts time.ParseDuration syntax and whole days ("7d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// resolveConfigPath turns a directory (existing or not ending in .toml) into
// the config.toml inside it.
func (c *AppConfig) resolveConfigPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return path
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path
	}
	return filepath.Join(path, configFileName)
}

// GetDefaultConfigDir returns the OS specific config directory.
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		// docker images mount the config volume at /config
		if filepath.Clean(xdg) == "/config" {
			return "/config"
		}
		return filepath.Join(xdg, appName)
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

var defaultConfigTemplate = template.Must(template.New("config").Parse(`# config.toml - GGAS license service

# Hostname / IP to listen on
# Default: "localhost"
host = "{{ .Host }}"

# Port
# Default: 7476
port = {{ .Port }}

# Base URL path when served behind a reverse proxy
# Default: "/"
#baseUrl = "/ggas/"

# Log level: TRACE, DEBUG, INFO, WARN, ERROR
# Changes are applied without a restart
# Default: "INFO"
logLevel = "INFO"

# Optional log file path
#logPath = "log/ggas.log"

# Directory for the database and license snapshot
# Default: next to this file
#dataDir = "/var/lib/ggas"

# Expose Prometheus metrics on /metrics
# Default: false
metricsEnabled = false

[httpTimeouts]
# Seconds
readTimeout = 60
writeTimeout = 120
idleTimeout = 180

[license]
# License verification endpoint. Leave empty to validate offline only.
verifyUrl = ""

# How often a valid license is re-checked online
validationInterval = "24h"

# How long a license keeps working without reaching the verification endpoint
offlineGracePeriod = "7d"

# Timeout for a single verification request
requestTimeout = "15s"

# Upper bound on verification requests, 0 disables the limit
requestsPerMinute = 30

# Where the last successful validation is kept: "sqlite" or "file"
snapshotBackend = "sqlite"
`))

// WriteDefaultConfig writes the default config to configPath unless a file
// already exists there.
func WriteDefaultConfig(configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	host := "localhost"
	// containers need to listen on all interfaces
	if _, err := os.Stat("/.dockerenv"); err == nil {
		host = "0.0.0.0"
	}

	f, err := os.OpenFile(configPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	data := struct {
		Host string
		Port int
	}{Host: host, Port: 7476}
	if err := defaultConfigTemplate.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Str("path", configPath).Msg("Created default config")
	return nil
}
