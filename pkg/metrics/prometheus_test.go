package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordRefresh("LIVE", 0.4)
	r.RecordRefresh("FALLBACK", 1.2)
	r.RecordRefresh("FALLBACK", 0.9)
	r.RecordSourceFetch("yahoo.GC=F", 0.1, nil)
	r.RecordSourceFetch("yahoo.GC=F", 0.2, errors.New("boom"))
	r.RecordCache("hit")
	r.RecordValue("gold", 2912.4)

	require.Equal(t, 1.0, testutil.ToFloat64(r.refreshTotal.WithLabelValues("LIVE")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.refreshTotal.WithLabelValues("FALLBACK")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.sourceErrors.WithLabelValues("yahoo.GC=F")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.cacheTotal.WithLabelValues("hit")))
	require.Equal(t, 2912.4, testutil.ToFloat64(r.lastValue.WithLabelValues("gold")))
}

func TestNewTwiceOnSeparateRegistries(t *testing.T) {
	require.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
