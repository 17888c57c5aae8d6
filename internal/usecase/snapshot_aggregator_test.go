package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"MacroPull/internal/domain/models"
	domrepo "MacroPull/internal/domain/repository"
	"MacroPull/internal/service/fallback"
	"MacroPull/internal/usecase"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2025, 2, 23, 9, 30, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type sourceSet struct {
	index, fx, flow, oil, gold, silver, vix *MockSource
}

func (s sourceSet) all() []domrepo.Source {
	return []domrepo.Source{s.index, s.fx, s.flow, s.oil, s.gold, s.silver, s.vix}
}

func newSource(ctrl *gomock.Controller, name string, fields ...models.Field) *MockSource {
	m := NewMockSource(ctrl)
	m.EXPECT().Name().Return(name).AnyTimes()
	m.EXPECT().Fields().Return(fields).AnyTimes()
	return m
}

func newSourceSet(ctrl *gomock.Controller) sourceSet {
	return sourceSet{
		index:  newSource(ctrl, "index", models.FieldIndexLevel, models.FieldIndexChangePct),
		fx:     newSource(ctrl, "fx", models.FieldOffshoreRate),
		flow:   newSource(ctrl, "flow", models.FieldNetFlow),
		oil:    newSource(ctrl, "oil", models.FieldOil),
		gold:   newSource(ctrl, "gold", models.FieldGold),
		silver: newSource(ctrl, "silver", models.FieldSilver),
		vix:    newSource(ctrl, "vix", models.FieldVIX),
	}
}

func liveValue(m *MockSource, v models.Values) {
	m.EXPECT().Fetch(gomock.Any()).Return(v, nil).Times(1)
}

func failing(m *MockSource, name string) {
	m.EXPECT().Fetch(gomock.Any()).Return(nil, models.NewFetchError(name, errors.New("connection reset"))).Times(1)
}

func expectAllLive(s sourceSet) {
	liveValue(s.index, models.Values{models.FieldIndexLevel: d("3350.12"), models.FieldIndexChangePct: d("-0.42")})
	liveValue(s.fx, models.Values{models.FieldOffshoreRate: d("7.2841")})
	liveValue(s.flow, models.Values{models.FieldNetFlow: d("52.31")})
	liveValue(s.oil, models.Values{models.FieldOil: d("74.9")})
	liveValue(s.gold, models.Values{models.FieldGold: d("2912.4")})
	liveValue(s.silver, models.Values{models.FieldSilver: d("32.45")})
	liveValue(s.vix, models.Values{models.FieldVIX: d("16.2")})
}

func fixedClock() func() time.Time { return func() time.Time { return t0 } }

func newAggregator(t *testing.T, sources []domrepo.Source, opts ...usecase.AggregatorOption) *usecase.SnapshotAggregator {
	t.Helper()
	opts = append([]usecase.AggregatorOption{usecase.WithClock(fixedClock())}, opts...)
	agg, err := usecase.NewSnapshotAggregator(sources, fallback.NewDefault(), opts...)
	require.NoError(t, err)
	return agg
}

func requireAllFallback(t *testing.T, snap models.Snapshot) {
	t.Helper()
	store := fallback.NewDefault()
	want := store.Snapshot(snap.FetchedAt)
	require.Equal(t, models.ProvenanceFallback, snap.Provenance)
	for _, f := range models.AllFields() {
		got, _ := snap.Value(f)
		exp, _ := want.Value(f)
		require.True(t, exp.Equal(got), "%s: want %s got %s", f, exp, got)
		require.Equal(t, models.ProvenanceFallback, snap.Origin(f), f)
	}
}

func TestRefreshAllLive(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	expectAllLive(s)

	snap := newAggregator(t, s.all()).Refresh(context.Background())

	require.Equal(t, models.ProvenanceLive, snap.Provenance)
	require.Equal(t, t0, snap.FetchedAt)
	require.True(t, snap.GoldSilverRatio.Equal(snap.Gold.Div(snap.Silver)))
	require.InDelta(t, 89.7, snap.GoldSilverRatio.InexactFloat64(), 0.1)
	require.True(t, snap.OffshoreRate.Equal(d("7.2841")))
	for _, f := range models.AllFields() {
		require.Equal(t, models.ProvenanceLive, snap.Origin(f), f)
	}
}

func TestRefreshFirstFailureServesFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	failing(s.index, "index")
	for _, m := range []*MockSource{s.fx, s.flow, s.oil, s.gold, s.silver, s.vix} {
		m.EXPECT().Fetch(gomock.Any()).Times(0)
	}

	snap := newAggregator(t, s.all()).Refresh(context.Background())

	requireAllFallback(t, snap)
	require.True(t, snap.IndexLevel.Equal(decimal.NewFromInt(3382)))
	require.Equal(t, t0, snap.FetchedAt)
}

func TestRefreshLateFailureDiscardsLiveValues(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	liveValue(s.index, models.Values{models.FieldIndexLevel: d("3350.12"), models.FieldIndexChangePct: d("-0.42")})
	liveValue(s.fx, models.Values{models.FieldOffshoreRate: d("7.2841")})
	liveValue(s.flow, models.Values{models.FieldNetFlow: d("52.31")})
	liveValue(s.oil, models.Values{models.FieldOil: d("80.1")})
	liveValue(s.gold, models.Values{models.FieldGold: d("2912.4")})
	failing(s.silver, "silver")
	s.vix.EXPECT().Fetch(gomock.Any()).Times(0)

	snap := newAggregator(t, s.all()).Refresh(context.Background())

	requireAllFallback(t, snap)
	require.True(t, snap.Oil.Equal(d("74.2")))
}

func TestRefreshMissingDeclaredFieldIsFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	liveValue(s.index, models.Values{models.FieldIndexLevel: d("3350.12")})

	snap := newAggregator(t, s.all()).Refresh(context.Background())

	requireAllFallback(t, snap)
}

func TestRefreshWrapsForeignErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	s.index.EXPECT().Fetch(gomock.Any()).Return(nil, errors.New("plain error"))
	rec := &recordingMetrics{}

	snap := newAggregator(t, s.all(), usecase.WithMetrics(rec)).Refresh(context.Background())

	requireAllFallback(t, snap)
	require.Len(t, rec.fetchErrs, 1)
	var fe *models.FetchError
	require.True(t, errors.As(rec.fetchErrs[0], &fe))
	require.Equal(t, "index", fe.Source)
	require.Equal(t, []string{"FALLBACK"}, rec.refreshes)
}

// stallingSource ignores its context until released.
type stallingSource struct {
	release chan struct{}
}

func (s *stallingSource) Name() string           { return "stalling" }
func (s *stallingSource) Fields() []models.Field { return []models.Field{models.FieldIndexLevel, models.FieldIndexChangePct} }
func (s *stallingSource) Fetch(context.Context) (models.Values, error) {
	<-s.release
	return nil, errors.New("released")
}

func TestRefreshSourceTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	stall := &stallingSource{release: make(chan struct{})}
	t.Cleanup(func() { close(stall.release) })

	sources := append([]domrepo.Source{stall}, s.fx, s.flow, s.oil, s.gold, s.silver, s.vix)

	start := time.Now()
	snap := newAggregator(t, sources, usecase.WithSourceTimeout(20*time.Millisecond)).Refresh(context.Background())

	require.Less(t, time.Since(start), 2*time.Second)
	requireAllFallback(t, snap)
}

func TestRefreshFieldModeIsolatesFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	liveValue(s.index, models.Values{models.FieldIndexLevel: d("3350.12"), models.FieldIndexChangePct: d("-0.42")})
	failing(s.fx, "fx")
	liveValue(s.flow, models.Values{models.FieldNetFlow: d("52.31")})
	liveValue(s.oil, models.Values{models.FieldOil: d("74.9")})
	liveValue(s.gold, models.Values{models.FieldGold: d("2912.4")})
	liveValue(s.silver, models.Values{models.FieldSilver: d("32.45")})
	liveValue(s.vix, models.Values{models.FieldVIX: d("16.2")})

	snap := newAggregator(t, s.all(), usecase.WithFallbackMode(usecase.ModeField)).Refresh(context.Background())

	require.Equal(t, models.ProvenanceFallback, snap.Provenance)
	require.True(t, snap.OffshoreRate.Equal(d("6.89")))
	require.Equal(t, models.ProvenanceFallback, snap.Origin(models.FieldOffshoreRate))
	require.True(t, snap.IndexLevel.Equal(d("3350.12")))
	require.Equal(t, models.ProvenanceLive, snap.Origin(models.FieldIndexLevel))
	require.Equal(t, models.ProvenanceLive, snap.Origin(models.FieldGoldSilverRatio))
	require.True(t, snap.GoldSilverRatio.Equal(d("2912.4").Div(d("32.45"))))
}

func TestRefreshFieldModeMetalsFallBackTogether(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	liveValue(s.index, models.Values{models.FieldIndexLevel: d("3350.12"), models.FieldIndexChangePct: d("-0.42")})
	liveValue(s.fx, models.Values{models.FieldOffshoreRate: d("7.2841")})
	liveValue(s.flow, models.Values{models.FieldNetFlow: d("52.31")})
	liveValue(s.oil, models.Values{models.FieldOil: d("74.9")})
	liveValue(s.gold, models.Values{models.FieldGold: d("3100")})
	failing(s.silver, "silver")
	liveValue(s.vix, models.Values{models.FieldVIX: d("16.2")})

	snap := newAggregator(t, s.all(), usecase.WithFallbackMode(usecase.ModeField)).Refresh(context.Background())

	require.True(t, snap.Gold.Equal(decimal.NewFromInt(2912)))
	require.True(t, snap.Silver.Equal(d("32.45")))
	require.Equal(t, models.ProvenanceFallback, snap.Origin(models.FieldGold))
	require.Equal(t, models.ProvenanceFallback, snap.Origin(models.FieldGoldSilverRatio))
	require.True(t, snap.GoldSilverRatio.Equal(decimal.NewFromInt(2912).Div(d("32.45"))))
	require.True(t, snap.VIX.Equal(d("16.2")))
}

func TestRefreshFieldModeAllLive(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	expectAllLive(s)

	snap := newAggregator(t, s.all(), usecase.WithFallbackMode(usecase.ModeField)).Refresh(context.Background())

	require.Equal(t, models.ProvenanceLive, snap.Provenance)
}

func TestRefreshTimestampsNeverGoBackwards(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	failing(s.index, "index")
	failing(s.index, "index")

	ticks := []time.Time{t0, t0.Add(-time.Minute)}
	var i int
	clock := func() time.Time {
		tk := ticks[i]
		i++
		return tk
	}

	agg := newAggregator(t, s.all(), usecase.WithClock(clock))
	first := agg.Refresh(context.Background())
	second := agg.Refresh(context.Background())

	require.Equal(t, t0, first.FetchedAt)
	require.False(t, second.FetchedAt.Before(first.FetchedAt))
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	expectAllLive(s)
	pub := &recordingPublisher{}

	agg := newAggregator(t, s.all(), usecase.WithPublisher(pub))
	snap := agg.Refresh(context.Background())
	agg.Close()

	require.Len(t, pub.published, 1)
	require.Equal(t, snap.FetchedAt, pub.published[0].FetchedAt)
	require.Equal(t, models.ProvenanceLive, pub.published[0].Provenance)
}

func TestRefreshAfterCloseSkipsPublish(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	expectAllLive(s)
	pub := &recordingPublisher{}

	agg := newAggregator(t, s.all(), usecase.WithPublisher(pub))
	agg.Close()
	snap := agg.Refresh(context.Background())
	agg.Close()

	require.Equal(t, models.ProvenanceLive, snap.Provenance)
	pub.mu.Lock()
	defer pub.mu.Unlock()
	require.Empty(t, pub.published)
}

func TestRefreshPublishFailureIsCounted(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)
	expectAllLive(s)
	rec := &recordingMetrics{}

	agg := newAggregator(t, s.all(),
		usecase.WithPublisher(&recordingPublisher{err: errors.New("broker down")}),
		usecase.WithMetrics(rec),
	)
	snap := agg.Refresh(context.Background())
	agg.Close()

	require.Equal(t, models.ProvenanceLive, snap.Provenance)
	require.Equal(t, []string{"publish"}, rec.errorKinds())
}

func TestNewSnapshotAggregatorValidatesCoverage(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := newSourceSet(ctrl)

	_, err := usecase.NewSnapshotAggregator([]domrepo.Source{s.index, s.fx}, fallback.NewDefault())
	require.ErrorContains(t, err, "no source for field")

	dup := newSource(ctrl, "gold2", models.FieldGold)
	_, err = usecase.NewSnapshotAggregator(append(s.all(), dup), fallback.NewDefault())
	require.ErrorContains(t, err, "served by both")

	_, err = usecase.NewSnapshotAggregator(s.all(), fallback.NewDefault(), usecase.WithFallbackMode("partial"))
	require.ErrorContains(t, err, "unknown fallback mode")
}

type recordingPublisher struct {
	mu        sync.Mutex
	err       error
	published []models.Snapshot
}

func (p *recordingPublisher) Publish(_ context.Context, s models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, s)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

type recordingMetrics struct {
	mu        sync.Mutex
	refreshes []string
	fetchErrs []error
	errors    []string
}

func (m *recordingMetrics) RecordRefresh(p string, _ float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes = append(m.refreshes, p)
}

func (m *recordingMetrics) RecordSourceFetch(_ string, _ float64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.fetchErrs = append(m.fetchErrs, err)
	}
}

func (m *recordingMetrics) RecordCache(string)          {}
func (m *recordingMetrics) RecordValue(string, float64) {}

func (m *recordingMetrics) RecordError(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, kind)
}

func (m *recordingMetrics) errorKinds() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}
