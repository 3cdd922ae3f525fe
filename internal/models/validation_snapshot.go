// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/J-Ellette/GGAS-sub001/internal/license"
)

// SnapshotName is the fixed record name the snapshot is stored under.
const SnapshotName = "validation_snapshot"

var ErrSnapshotNotFound = errors.New("validation snapshot not found")

// ValidationSnapshot is the record of the last successful online validation.
type ValidationSnapshot struct {
	LicenseKey          string              `json:"licenseKey"`
	Features            license.Features    `json:"features"`
	ExpiresAt           *time.Time          `json:"expiresAt,omitempty"`
	LicenseType         license.LicenseType `json:"licenseType"`
	LastValidatedAt     time.Time           `json:"lastValidatedAt"`
	HardwareFingerprint string              `json:"hardwareFingerprint"`
}

// Matches reports whether the snapshot was taken for key, ignoring display
// delimiters.
func (s *ValidationSnapshot) Matches(key string) bool {
	return license.Normalize(s.LicenseKey) == license.Normalize(key)
}

// IsExpired reports whether the stored expiry has passed at now.
func (s *ValidationSnapshot) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// WithinGrace reports whether the snapshot is recent enough for offline use.
func (s *ValidationSnapshot) WithinGrace(now time.Time, grace time.Duration) bool {
	return now.Sub(s.LastValidatedAt) < grace
}

// SnapshotStore keeps the single validation snapshot in sqlite.
type SnapshotStore struct {
	db *sql.DB
}

func NewSnapshotStore(db *sql.DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

func (s *SnapshotStore) Load(ctx context.Context) (*ValidationSnapshot, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM license_snapshots WHERE name = ?", SnapshotName).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snapshot ValidationSnapshot
	if err := json.Unmarshal([]byte(payload), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snapshot, nil
}

// Save replaces the stored snapshot.
func (s *SnapshotStore) Save(ctx context.Context, snapshot *ValidationSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	query := `
		INSERT INTO license_snapshots (name, payload, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, SnapshotName, string(payload)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot. Deleting a missing snapshot is not an error.
func (s *SnapshotStore) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM license_snapshots WHERE name = ?", SnapshotName); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
