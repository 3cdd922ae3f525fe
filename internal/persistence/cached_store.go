// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"

	"github.com/J-Ellette/GGAS-sub001/internal/models"
)

const (
	cacheKey        = models.SnapshotName
	DefaultCacheTTL = 5 * time.Minute
)

// CachedStore serves repeated loads from memory. Writes go straight to the
// backing store and drop the cached copy.
type CachedStore struct {
	backend Store
	cache   *ristretto.Cache
	ttl     time.Duration

	// generation is bumped after every Save and Delete. A Load only fills the
	// cache if no write completed while it was reading the backend.
	mu         sync.Mutex
	generation uint64
}

func NewCachedStore(backend Store, ttl time.Duration) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot cache")
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedStore{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
	}, nil
}

func (s *CachedStore) Load(ctx context.Context) (*models.ValidationSnapshot, error) {
	if cached, found := s.cache.Get(cacheKey); found {
		if snapshot, ok := cached.(models.ValidationSnapshot); ok {
			return &snapshot, nil
		}
	}

	s.mu.Lock()
	generation := s.generation
	s.mu.Unlock()

	snapshot, err := s.backend.Load(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if generation != s.generation {
		return snapshot, nil
	}
	s.cache.SetWithTTL(cacheKey, *snapshot, 1, s.ttl)
	s.cache.Wait()
	return snapshot, nil
}

func (s *CachedStore) Save(ctx context.Context, snapshot *models.ValidationSnapshot) error {
	defer s.invalidate()
	return s.backend.Save(ctx, snapshot)
}

func (s *CachedStore) Delete(ctx context.Context) error {
	defer s.invalidate()
	return s.backend.Delete(ctx)
}

// invalidate runs after the backend write so that a Load racing with it either
// sees the new generation or has its cached copy dropped here.
func (s *CachedStore) invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.cache.Del(cacheKey)
}

// Close releases the cache. The backing store is left open.
func (s *CachedStore) Close() {
	s.cache.Close()
}
