package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheHit()
		m.CacheMiss()
		m.FetchFailed("X")
		m.ObserveFetch(0.1)
		m.CycleCompleted(0.2, 3, 1)
		m.CycleFailed()
		m.SetSubscriptions(1, 1)
		m.OrderExecuted("BUY")
		m.OrderRejectedFor("validation_failed")
	})
}

func TestCounters(t *testing.T) {
	m := New()
	m.CacheHit()
	m.CacheHit()
	m.CacheMiss()
	m.CycleCompleted(0.5, 4, 2)
	m.OrderExecuted("SELL")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QuoteCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QuoteCacheMisses))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.BroadcastDeliveries))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PrunedConnections))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersTotal.WithLabelValues("SELL")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.SetSubscriptions(3, 2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "exchange_ws_connections 3"))
}
