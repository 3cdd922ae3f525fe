// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationIdempotency(t *testing.T) {
	ctx := t.Context()
	dbPath := filepath.Join(t.TempDir(), "nested", "ggas.db")

	db1, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database first time")
	assert.Equal(t, dbPath, db1.Path())

	var count1 int
	err = db1.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count1)
	require.NoError(t, err, "Failed to count migrations")
	require.NoError(t, db1.Close())

	db2, err := New(dbPath)
	require.NoError(t, err, "Failed to initialize database second time")
	defer db2.Close()

	var count2 int
	err = db2.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations").Scan(&count2)
	require.NoError(t, err, "Failed to count migrations")

	assert.Equal(t, count1, count2, "Migration count should be the same after re-initialization")
	assert.Equal(t, 1, count2, "Should have exactly 1 migration applied")
}

func TestSnapshotTableExists(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "ggas.db"))
	require.NoError(t, err)
	defer db.Close()

	var name string
	err = db.Conn().QueryRowContext(t.Context(),
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'license_snapshots'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "license_snapshots", name)

	var mode string
	require.NoError(t, db.Conn().QueryRowContext(t.Context(), "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestNewUnwritableDirectory(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := New(filepath.Join(blocker, "ggas.db"))
	assert.Error(t, err)
}
