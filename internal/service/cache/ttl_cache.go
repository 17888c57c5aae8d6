package cache

import (
	"context"
	"sync"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	applogger "MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = 30 * time.Second

	defaultLockWait  = 2 * time.Second
	defaultPollEvery = 100 * time.Millisecond

	flightKey = "snapshot"
)

type slot struct {
	snap       models.Snapshot
	producedAt time.Time
	ok         bool
}

// SnapshotCache holds the one current snapshot for TTL. Expiry is lazy:
// the first Get at or after producedAt+TTL refreshes. Concurrent misses
// share a single refresh. Get never fails.
type SnapshotCache struct {
	ttl       time.Duration
	refresher domrepo.Refresher
	shared    domrepo.SharedStore
	lockWait  time.Duration
	pollEvery time.Duration
	metrics   domrepo.Metrics
	log       *applogger.Logger
	now       func() time.Time

	mu    sync.RWMutex
	slot  slot
	group singleflight.Group
}

type Option func(*SnapshotCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *SnapshotCache) { c.ttl = ttl }
}

// WithClock replaces time.Now for freshness checks.
func WithClock(now func() time.Time) Option {
	return func(c *SnapshotCache) { c.now = now }
}

// WithSharedStore enables the cross-replica tier. lockWait bounds how long
// a replica that lost the refresh lock waits for the winner's snapshot.
func WithSharedStore(s domrepo.SharedStore, lockWait time.Duration) Option {
	return func(c *SnapshotCache) {
		c.shared = s
		if lockWait > 0 {
			c.lockWait = lockWait
		}
	}
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(c *SnapshotCache) { c.metrics = m }
}

func WithLogger(l *applogger.Logger) Option {
	return func(c *SnapshotCache) { c.log = l }
}

func NewSnapshotCache(r domrepo.Refresher, opts ...Option) *SnapshotCache {
	c := &SnapshotCache{
		ttl:       DefaultTTL,
		refresher: r,
		lockWait:  defaultLockWait,
		pollEvery: defaultPollEvery,
		metrics:   metrics.Nop{},
		log:       applogger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pollEvery > c.lockWait {
		c.pollEvery = c.lockWait
	}
	return c
}

// TTL reports the configured time to live.
func (c *SnapshotCache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached snapshot while it is younger than TTL, otherwise
// refreshes first. The refresh is detached from ctx cancellation so one
// abandoned request cannot poison the slot for everybody waiting on it.
func (c *SnapshotCache) Get(ctx context.Context) models.Snapshot {
	if s, ok := c.fresh(); ok {
		c.metrics.RecordCache("hit")
		return s
	}

	v, _, shared := c.group.Do(flightKey, func() (interface{}, error) {
		if s, ok := c.fresh(); ok {
			return s, nil
		}
		s, at := c.load(context.WithoutCancel(ctx))
		c.mu.Lock()
		c.slot = slot{snap: s, producedAt: at, ok: true}
		c.mu.Unlock()
		return s, nil
	})

	if shared {
		c.metrics.RecordCache("coalesced")
	} else {
		c.metrics.RecordCache("miss")
	}
	return v.(models.Snapshot)
}

// Peek returns the cached snapshot without refreshing, fresh or not.
func (c *SnapshotCache) Peek() (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.slot.snap, c.slot.ok
}

// Invalidate empties the slot. The next Get refreshes.
func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.slot = slot{}
	c.mu.Unlock()
	c.group.Forget(flightKey)
}

func (c *SnapshotCache) fresh() (models.Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.slot.ok || c.now().Sub(c.slot.producedAt) >= c.ttl {
		return models.Snapshot{}, false
	}
	return c.slot.snap, true
}

// load produces the next snapshot and the instant it counts as produced.
func (c *SnapshotCache) load(ctx context.Context) (models.Snapshot, time.Time) {
	if c.shared == nil {
		return c.refresh(ctx)
	}

	if s, ok := c.adopt(ctx); ok {
		return s, c.adoptedAt(s)
	}

	token, locked, err := c.shared.TryLock(ctx, c.ttl)
	if err != nil {
		c.metrics.RecordError("shared_lock")
		c.log.Warn("shared snapshot lock failed", applogger.Error(err))
		return c.refreshAndShare(ctx)
	}
	if !locked {
		if s, ok := c.awaitPeer(ctx); ok {
			return s, c.adoptedAt(s)
		}
		return c.refreshAndShare(ctx)
	}

	defer func() {
		if err := c.shared.Unlock(ctx, token); err != nil {
			c.log.Debug("shared snapshot unlock failed", applogger.Error(err))
		}
	}()
	return c.refreshAndShare(ctx)
}

// adoptedAt is when an adopted snapshot counts as produced. A peer clock
// running ahead must not stretch the local TTL.
func (c *SnapshotCache) adoptedAt(s models.Snapshot) time.Time {
	if now := c.now(); s.FetchedAt.After(now) {
		return now
	}
	return s.FetchedAt
}

func (c *SnapshotCache) refresh(ctx context.Context) (models.Snapshot, time.Time) {
	s := c.refresher.Refresh(ctx)
	return s, c.now()
}

func (c *SnapshotCache) refreshAndShare(ctx context.Context) (models.Snapshot, time.Time) {
	s, at := c.refresh(ctx)
	if err := c.shared.Save(ctx, s, c.ttl); err != nil {
		c.metrics.RecordError("shared_save")
		c.log.Warn("shared snapshot save failed", applogger.Error(err))
	}
	return s, at
}

// adopt returns a peer's snapshot when it is still within TTL.
func (c *SnapshotCache) adopt(ctx context.Context) (models.Snapshot, bool) {
	s, found, err := c.shared.Load(ctx)
	if err != nil {
		c.metrics.RecordError("shared_load")
		c.log.Warn("shared snapshot load failed", applogger.Error(err))
		return models.Snapshot{}, false
	}
	if !found || c.now().Sub(s.FetchedAt) >= c.ttl {
		return models.Snapshot{}, false
	}
	c.metrics.RecordCache("shared_hit")
	return s, true
}

func (c *SnapshotCache) awaitPeer(ctx context.Context) (models.Snapshot, bool) {
	deadline := time.NewTimer(c.lockWait)
	defer deadline.Stop()
	tick := time.NewTicker(c.pollEvery)
	defer tick.Stop()

	for {
		select {
		case <-deadline.C:
			return models.Snapshot{}, false
		case <-tick.C:
			if s, ok := c.adopt(ctx); ok {
				return s, true
			}
		}
	}
}
