package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ubeswap/v3-indexer/internal/modules/uniswapv3"
	"github.com/ubeswap/v3-indexer/internal/sync"
)

var (
	_ uniswapv3.Observer = (*Metrics)(nil)
	_ sync.Observer      = (*Metrics)(nil)
)

func TestMapperMetrics(t *testing.T) {
	m := New("test", prometheus.NewRegistry())

	m.EventProcessed("Swap", 3*time.Millisecond)
	m.EventProcessed("Swap", time.Millisecond)
	m.EventSkipped("Mint", uniswapv3.SkipMissingEntity)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.EventsProcessed.WithLabelValues("Swap")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EventsSkipped.WithLabelValues("Mint", uniswapv3.SkipMissingEntity)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.EventLatency))
}

func TestSyncMetrics(t *testing.T) {
	m := New("test", nil)

	m.HeadObserved(120, 100)
	assert.Equal(t, float64(120), testutil.ToFloat64(m.ChainHead))
	assert.Equal(t, float64(20), testutil.ToFloat64(m.BlocksBehind))

	m.RangeSynced(101, 115, 7, time.Second)
	assert.Equal(t, float64(115), testutil.ToFloat64(m.LastSyncedBlock))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.RangeEvents))

	m.HeadObserved(100, 115)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BlocksBehind))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New("test", prometheus.NewRegistry())
	m.Published(true)
	m.Published(false)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `test_realtime_pool_updates_total{status="error"} 1`)
	assert.Contains(t, string(body), `test_realtime_pool_updates_total{status="ok"} 1`)
}
