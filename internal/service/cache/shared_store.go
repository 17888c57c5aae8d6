package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MacroPull/internal/domain/models"
	pkgcache "MacroPull/pkg/cache"

	"github.com/google/uuid"
)

// SharedSnapshotStore keeps the latest snapshot and the refresh lock in a
// pkg/cache backend: Redis across replicas, MemoryCache within one.
type SharedSnapshotStore struct {
	svc     pkgcache.Service
	key     string
	lockKey string
}

func NewSharedSnapshotStore(svc pkgcache.Service) *SharedSnapshotStore {
	return &SharedSnapshotStore{
		svc:     svc,
		key:     pkgcache.GenerateKey("snapshot", "latest"),
		lockKey: pkgcache.GenerateKey("snapshot", "refresh"),
	}
}

func (s *SharedSnapshotStore) Load(ctx context.Context) (models.Snapshot, bool, error) {
	raw, err := s.svc.Get(ctx, s.key)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return models.Snapshot{}, false, nil
	}
	if err != nil {
		return models.Snapshot{}, false, fmt.Errorf("load snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return models.Snapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, true, nil
}

func (s *SharedSnapshotStore) Save(ctx context.Context, snap models.Snapshot, ttl time.Duration) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.svc.Set(ctx, s.key, string(b), ttl)
}

func (s *SharedSnapshotStore) TryLock(ctx context.Context, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := s.svc.TryLock(ctx, s.lockKey, token, ttl)
	if err != nil {
		return "", false, fmt.Errorf("lock: %w", err)
	}
	return token, ok, nil
}

func (s *SharedSnapshotStore) Unlock(ctx context.Context, token string) error {
	return s.svc.Unlock(ctx, s.lockKey, token)
}
