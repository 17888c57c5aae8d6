package repository

import (
	"context"
	"time"

	"MacroPull/internal/domain/models"
)

// SnapshotProvider serves the current snapshot. It never fails.
type SnapshotProvider interface {
	Get(ctx context.Context) models.Snapshot
}

// Refresher produces a new snapshot on demand. It never fails.
type Refresher interface {
	Refresh(ctx context.Context) models.Snapshot
}

// Publisher emits refreshed snapshots to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, s models.Snapshot) error
	Close() error
}

// SharedStore is the cross-replica snapshot tier.
type SharedStore interface {
	Load(ctx context.Context) (models.Snapshot, bool, error)
	Save(ctx context.Context, s models.Snapshot, ttl time.Duration) error
	// TryLock claims the refresh lock. The token must be passed to Unlock.
	TryLock(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, token string) error
}

type Metrics interface {
	RecordRefresh(provenance string, seconds float64)
	RecordSourceFetch(source string, seconds float64, err error)
	RecordCache(result string)
	RecordValue(field string, value float64)
	RecordError(kind string)
}
