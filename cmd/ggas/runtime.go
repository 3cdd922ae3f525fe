// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/J-Ellette/GGAS-sub001/internal/config"
	"github.com/J-Ellette/GGAS-sub001/internal/database"
	"github.com/J-Ellette/GGAS-sub001/internal/domain"
	"github.com/J-Ellette/GGAS-sub001/internal/fingerprint"
	"github.com/J-Ellette/GGAS-sub001/internal/license"
	"github.com/J-Ellette/GGAS-sub001/internal/metrics"
	"github.com/J-Ellette/GGAS-sub001/internal/models"
	"github.com/J-Ellette/GGAS-sub001/internal/persistence"
	"github.com/J-Ellette/GGAS-sub001/internal/services"
	"github.com/J-Ellette/GGAS-sub001/internal/verifier"
)

// runtimeFlags are shared by every command that needs the validation stack.
type runtimeFlags struct {
	configDir string
	dataDir   string
	logPath   string
}

func (f *runtimeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configDir, "config-dir", "", "config directory path (default is OS-specific: ~/.config/ggas/ or %APPDATA%\\ggas\\). Can also be a direct path to a .toml file")
	cmd.Flags().StringVar(&f.dataDir, "data-dir", "", "data directory for the database and license snapshot (default is next to config file)")
	cmd.Flags().StringVar(&f.logPath, "log-path", "", "log file path (default is stderr)")
}

// runtime is the wired validation stack.
type runtime struct {
	cfg      *config.AppConfig
	codec    *license.Codec
	db       *database.DB
	store    *persistence.CachedStore
	manager  *services.ValidationManager
	metrics  *metrics.Manager
	snapshot string
}

// openRuntime loads the configuration and builds the validation manager on
// top of the configured snapshot backend. Metrics are collected only when
// withMetrics is set and enabled in the config.
func openRuntime(ctx context.Context, flags runtimeFlags, withMetrics bool) (*runtime, error) {
	cfg, err := config.New(flags.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}
	if flags.dataDir != "" {
		cfg.SetDataDir(flags.dataDir)
	}
	if flags.logPath != "" {
		cfg.Current().LogPath = flags.logPath
	}
	if err := cfg.ApplyLogConfig(); err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg, codec: license.NewCodec()}

	fingerprints := fingerprint.NewHostProvider()
	backend, err := rt.openBackend(ctx, cfg, fingerprints)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.store, err = persistence.NewCachedStore(backend, persistence.DefaultCacheTTL)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to create snapshot cache: %w", err)
	}

	lc := cfg.Current().License
	interval, grace, timeout := cfg.LicenseDurations()

	client := verifier.NewClient(lc.VerifyURL,
		verifier.WithTimeout(timeout),
		verifier.WithRateLimit(lc.RequestsPerMinute),
		verifier.WithUserAgent("ggas/"+verifier.NormalizeClientVersion(Version)),
	)
	if !client.IsConfigured() {
		log.Warn().Msg("No license verification URL configured, licenses can only be validated offline")
	}

	opts := []services.ManagerOption{
		services.WithGracePeriod(grace),
		services.WithRevalidationInterval(interval),
		services.WithRequestTimeout(timeout),
		services.WithClientVersion(verifier.NormalizeClientVersion(Version)),
	}
	if withMetrics && cfg.Current().MetricsEnabled {
		rt.metrics = metrics.NewManager()
		rt.metrics.RegisterRuntimeCollectors()
		opts = append(opts, services.WithRecorder(rt.metrics))
	}

	rt.manager = services.NewValidationManager(rt.codec, client, rt.store, fingerprints, opts...)
	if rt.metrics != nil {
		rt.metrics.RegisterLicenseCollector(rt.manager, clockwork.NewRealClock())
	}

	return rt, nil
}

func (rt *runtime) openBackend(ctx context.Context, cfg *config.AppConfig, fingerprints *fingerprint.HostProvider) (persistence.Store, error) {
	switch cfg.Current().License.SnapshotBackend {
	case domain.SnapshotBackendFile:
		dataDir := cfg.GetDataDir()
		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}

		secret, err := fingerprints.SealingSecret(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to derive snapshot secret: %w", err)
		}

		store, err := persistence.NewFileStore(filepath.Join(dataDir, persistence.SnapshotFileName), secret)
		if err != nil {
			return nil, err
		}
		rt.snapshot = store.Path()
		return store, nil

	default:
		db, err := database.New(cfg.GetDatabasePath())
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		rt.db = db
		rt.snapshot = db.Path()
		return models.NewSnapshotStore(db.Conn()), nil
	}
}

// Close stops background work and releases the backends.
func (rt *runtime) Close() {
	if rt.manager != nil {
		rt.manager.Close()
	}
	if rt.store != nil {
		rt.store.Close()
	}
	if rt.db != nil {
		if err := rt.db.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close database")
		}
	}
	if err := rt.cfg.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close log file")
	}
}
