// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package persistence provides snapshot stores that do not need the sqlite
// database, plus a caching layer usable in front of any store.
package persistence

import (
	"context"

	"github.com/J-Ellette/GGAS-sub001/internal/models"
)

// Store holds exactly one validation snapshot. Load returns
// models.ErrSnapshotNotFound when nothing has been saved.
type Store interface {
	Load(ctx context.Context) (*models.ValidationSnapshot, error)
	Save(ctx context.Context, snapshot *models.ValidationSnapshot) error
	Delete(ctx context.Context) error
}

var (
	_ Store = (*models.SnapshotStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*CachedStore)(nil)
)
