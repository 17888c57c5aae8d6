package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	"MacroPull/internal/service/fallback"
	applogger "MacroPull/pkg/logger"
	"MacroPull/pkg/metrics"
)

// FallbackMode selects how source failures are absorbed.
type FallbackMode string

const (
	// ModeSnapshot replaces the whole snapshot on the first failure.
	ModeSnapshot FallbackMode = "snapshot"
	// ModeField replaces only the failed source's fields.
	ModeField FallbackMode = "field"
)

const (
	defaultSourceTimeout  = 5 * time.Second
	defaultPublishTimeout = 3 * time.Second
)

// aggregationDegraded records the sources that failed during one cycle. It
// feeds logging and metrics and never leaves the aggregator.
type aggregationDegraded struct {
	failures map[string]error
}

func (d *aggregationDegraded) add(source string, err error) {
	if d.failures == nil {
		d.failures = make(map[string]error)
	}
	d.failures[source] = err
}

func (d *aggregationDegraded) Error() string {
	names := d.sources()
	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s: %v", n, d.failures[n]))
	}
	return "aggregation degraded: " + strings.Join(parts, "; ")
}

func (d *aggregationDegraded) sources() []string {
	names := make([]string, 0, len(d.failures))
	for n := range d.failures {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// SnapshotAggregator calls every source in order and assembles one
// snapshot. Refresh never fails: any source failure is absorbed by the
// fallback store according to the configured mode.
type SnapshotAggregator struct {
	sources   []domrepo.Source
	store     *fallback.Store
	mode      FallbackMode
	timeout   time.Duration
	metrics   domrepo.Metrics
	publisher domrepo.Publisher
	log       *applogger.Logger
	now       func() time.Time

	mu     sync.Mutex
	lastAt time.Time

	pubMu  sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

type AggregatorOption func(*SnapshotAggregator)

func WithFallbackMode(m FallbackMode) AggregatorOption {
	return func(a *SnapshotAggregator) { a.mode = m }
}

// WithSourceTimeout bounds each source call separately.
func WithSourceTimeout(d time.Duration) AggregatorOption {
	return func(a *SnapshotAggregator) { a.timeout = d }
}

func WithMetrics(m domrepo.Metrics) AggregatorOption {
	return func(a *SnapshotAggregator) { a.metrics = m }
}

// WithPublisher emits every refreshed snapshot. Publishing is asynchronous
// and never delays Refresh.
func WithPublisher(p domrepo.Publisher) AggregatorOption {
	return func(a *SnapshotAggregator) { a.publisher = p }
}

func WithLogger(l *applogger.Logger) AggregatorOption {
	return func(a *SnapshotAggregator) { a.log = l }
}

func WithClock(now func() time.Time) AggregatorOption {
	return func(a *SnapshotAggregator) { a.now = now }
}

// NewSnapshotAggregator checks that the sources together cover every input
// field exactly once.
func NewSnapshotAggregator(sources []domrepo.Source, store *fallback.Store, opts ...AggregatorOption) (*SnapshotAggregator, error) {
	if store == nil {
		return nil, errors.New("aggregator: fallback store is required")
	}

	a := &SnapshotAggregator{
		sources: sources,
		store:   store,
		mode:    ModeSnapshot,
		timeout: defaultSourceTimeout,
		metrics: metrics.Nop{},
		log:     applogger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	switch a.mode {
	case ModeSnapshot, ModeField:
	default:
		return nil, fmt.Errorf("aggregator: unknown fallback mode %q", a.mode)
	}
	if a.timeout <= 0 {
		return nil, fmt.Errorf("aggregator: source timeout must be positive, got %s", a.timeout)
	}

	owner := make(map[models.Field]string)
	for _, s := range sources {
		for _, f := range s.Fields() {
			if prev, ok := owner[f]; ok {
				return nil, fmt.Errorf("aggregator: field %s served by both %s and %s", f, prev, s.Name())
			}
			if f == models.FieldGoldSilverRatio {
				return nil, fmt.Errorf("aggregator: %s is derived, source %s may not supply it", f, s.Name())
			}
			owner[f] = s.Name()
		}
	}
	for _, f := range models.InputFields() {
		if _, ok := owner[f]; !ok {
			return nil, fmt.Errorf("aggregator: no source for field %s", f)
		}
	}

	return a, nil
}

// Refresh runs one acquisition cycle.
func (a *SnapshotAggregator) Refresh(ctx context.Context) models.Snapshot {
	start := time.Now()

	var (
		snap     models.Snapshot
		degraded *aggregationDegraded
	)
	if a.mode == ModeField {
		snap, degraded = a.refreshPerField(ctx)
	} else {
		snap, degraded = a.refreshAll(ctx)
	}

	a.observe(snap, degraded, time.Since(start))
	a.publish(snap)
	return snap
}

// refreshAll stops at the first failure and serves the fallback table.
func (a *SnapshotAggregator) refreshAll(ctx context.Context) (models.Snapshot, *aggregationDegraded) {
	values := make(models.Values, len(models.InputFields()))
	for _, src := range a.sources {
		v, err := a.fetch(ctx, src)
		if err != nil {
			d := &aggregationDegraded{}
			d.add(src.Name(), err)
			return a.store.Snapshot(a.stamp()), d
		}
		for f, x := range v {
			values[f] = x
		}
	}
	return models.Compose(values, nil, models.ProvenanceLive, a.stamp()), nil
}

// refreshPerField calls every source and substitutes only what failed.
// Gold and silver fall back together so the ratio never mixes a live and a
// fallback price.
func (a *SnapshotAggregator) refreshPerField(ctx context.Context) (models.Snapshot, *aggregationDegraded) {
	values := make(models.Values, len(models.InputFields()))
	origins := make(map[models.Field]models.Provenance, len(models.InputFields()))
	var degraded *aggregationDegraded

	for _, src := range a.sources {
		v, err := a.fetch(ctx, src)
		if err != nil {
			if degraded == nil {
				degraded = &aggregationDegraded{}
			}
			degraded.add(src.Name(), err)
			for _, f := range src.Fields() {
				values[f] = a.store.Value(f)
				origins[f] = models.ProvenanceFallback
			}
			continue
		}
		for f, x := range v {
			values[f] = x
			origins[f] = models.ProvenanceLive
		}
	}

	if origins[models.FieldGold] != models.ProvenanceLive || origins[models.FieldSilver] != models.ProvenanceLive {
		for _, f := range []models.Field{models.FieldGold, models.FieldSilver} {
			values[f] = a.store.Value(f)
			origins[f] = models.ProvenanceFallback
		}
	}

	return models.Compose(values, origins, "", a.stamp()), degraded
}

type fetchResult struct {
	values models.Values
	err    error
}

// fetch calls one source under its own deadline. The call runs in a
// goroutine so a source that ignores ctx still cannot stall the cycle.
// Only the fields the source declares are kept, and all of them must be
// present.
func (a *SnapshotAggregator) fetch(ctx context.Context, src domrepo.Source) (models.Values, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan fetchResult, 1)
	go func() {
		v, err := src.Fetch(ctx)
		done <- fetchResult{v, err}
	}()

	var res fetchResult
	select {
	case res = <-done:
	case <-ctx.Done():
		res.err = ctx.Err()
	}

	var out models.Values
	if res.err == nil {
		out, res.err = declared(src, res.values)
	}
	if res.err != nil {
		var fe *models.FetchError
		if !errors.As(res.err, &fe) {
			res.err = models.NewFetchError(src.Name(), res.err)
		}
	}

	a.metrics.RecordSourceFetch(src.Name(), time.Since(start).Seconds(), res.err)
	if res.err != nil {
		return nil, res.err
	}
	return out, nil
}

func declared(src domrepo.Source, v models.Values) (models.Values, error) {
	fields := src.Fields()
	out := make(models.Values, len(fields))
	for _, f := range fields {
		x, ok := v[f]
		if !ok {
			return nil, fmt.Errorf("field %s: %w", f, models.ErrMissingValue)
		}
		out[f] = x
	}
	return out, nil
}

// stamp returns the current instant, never earlier than the previous one.
func (a *SnapshotAggregator) stamp() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := a.now()
	if t.Before(a.lastAt) {
		t = a.lastAt
	}
	a.lastAt = t
	return t
}

func (a *SnapshotAggregator) observe(snap models.Snapshot, degraded *aggregationDegraded, took time.Duration) {
	a.metrics.RecordRefresh(string(snap.Provenance), took.Seconds())
	for _, f := range models.AllFields() {
		v, _ := snap.Value(f)
		a.metrics.RecordValue(string(f), v.InexactFloat64())
	}

	if degraded != nil {
		a.log.Warn("snapshot refresh degraded",
			applogger.String("mode", string(a.mode)),
			applogger.String("provenance", string(snap.Provenance)),
			applogger.Strings("failed_sources", degraded.sources()),
			applogger.Error(degraded),
			applogger.Duration("took_ms", took),
		)
		return
	}
	a.log.Debug("snapshot refreshed",
		applogger.String("provenance", string(snap.Provenance)),
		applogger.Duration("took_ms", took),
	)
}

func (a *SnapshotAggregator) publish(snap models.Snapshot) {
	if a.publisher == nil {
		return
	}

	a.pubMu.Lock()
	if a.closed {
		a.pubMu.Unlock()
		a.log.Debug("aggregator closed, snapshot not published",
			applogger.String("provenance", string(snap.Provenance)))
		return
	}
	a.wg.Add(1)
	a.pubMu.Unlock()

	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), defaultPublishTimeout)
		defer cancel()

		if err := a.publisher.Publish(ctx, snap); err != nil {
			a.metrics.RecordError("publish")
			a.log.Error("snapshot publish failed", applogger.Error(err))
		}
	}()
}

// Close waits for in-flight publishes. Refreshes after Close still return
// snapshots but no longer publish them.
func (a *SnapshotAggregator) Close() {
	a.pubMu.Lock()
	a.closed = true
	a.pubMu.Unlock()
	a.wg.Wait()
}
