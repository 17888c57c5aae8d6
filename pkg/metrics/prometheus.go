package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration *prometheus.HistogramVec
	sourceLatency   *prometheus.HistogramVec
	sourceErrors    *prometheus.CounterVec
	cacheTotal      *prometheus.CounterVec
	lastValue       *prometheus.GaugeVec
	errorsTotal     *prometheus.CounterVec
}

// New creates a recorder whose collectors are registered with reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		refreshTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_refresh_total",
				Help: "Snapshot refresh cycles by resulting provenance",
			},
			[]string{"provenance"},
		),
		refreshDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "macropull_refresh_duration_seconds",
				Help:    "Duration of a full refresh cycle",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
			},
			[]string{"provenance"},
		),
		sourceLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "macropull_source_fetch_duration_seconds",
				Help:    "Latency of a single source fetch",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		sourceErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_source_errors_total",
				Help: "Failed source fetches",
			},
			[]string{"source"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_cache_requests_total",
				Help: "Snapshot cache lookups by result",
			},
			[]string{"result"},
		),
		lastValue: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "macropull_last_value",
				Help: "Last served value per snapshot field",
			},
			[]string{"field"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "macropull_errors_total",
				Help: "Best-effort side effects that failed",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordRefresh(provenance string, seconds float64) {
	r.refreshTotal.WithLabelValues(provenance).Inc()
	r.refreshDuration.WithLabelValues(provenance).Observe(seconds)
}

func (r *Recorder) RecordSourceFetch(source string, seconds float64, err error) {
	r.sourceLatency.WithLabelValues(source).Observe(seconds)
	if err != nil {
		r.sourceErrors.WithLabelValues(source).Inc()
	}
}

func (r *Recorder) RecordCache(result string) {
	r.cacheTotal.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordValue(field string, value float64) {
	r.lastValue.WithLabelValues(field).Set(value)
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards every observation.
type Nop struct{}

func (Nop) RecordRefresh(string, float64)             {}
func (Nop) RecordSourceFetch(string, float64, error) {}
func (Nop) RecordCache(string)                        {}
func (Nop) RecordValue(string, float64)               {}
func (Nop) RecordError(string)                        {}
