package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slipstream/slipstream/pkg/models"
)

func newTestServer(c *Collector) *DashboardServer {
	return NewDashboardServer(c, zap.NewNop())
}

func doRequest(s *DashboardServer, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestDashboard_MetricsEndpoint(t *testing.T) {
	c := NewCollectorWithClock(newTestClock().now)
	for i := 0; i < 100; i++ {
		c.RecordTransaction(time.Millisecond)
	}
	for i := 0; i < 5; i++ {
		c.RecordAnomaly(flaggedResult("tx", 0.8, models.AnomalyUnusualAmount))
	}

	rec := doRequest(newTestServer(c), http.MethodGet, "/api/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var snap map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.EqualValues(t, 100, snap["totalTransactions"])
	assert.EqualValues(t, 5, snap["totalAnomalies"])
	assert.InDelta(t, 0.05, snap["anomalyRate"].(float64), 1e-9)
}

func TestDashboard_AnomaliesEndpointNewestFirst(t *testing.T) {
	c := NewCollectorWithClock(newTestClock().now)
	for i := 0; i < 150; i++ {
		c.RecordAnomaly(flaggedResult(fmt.Sprintf("tx_%d", i), 0.8, models.AnomalyVelocity))
	}

	rec := doRequest(newTestServer(c), http.MethodGet, "/api/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)

	var anomalies []AnomalySummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &anomalies))
	assert.LessOrEqual(t, len(anomalies), 100)
	require.Len(t, anomalies, 100)
	assert.Equal(t, "tx_149", anomalies[0].TransactionID)
	assert.Equal(t, "tx_50", anomalies[99].TransactionID)
}

func TestDashboard_AnomaliesEndpointEmptyArray(t *testing.T) {
	rec := doRequest(newTestServer(NewCollectorWithClock(newTestClock().now)), http.MethodGet, "/api/anomalies")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", rec.Body.String())
}

func TestDashboard_DistributionEndpoint(t *testing.T) {
	c := NewCollectorWithClock(newTestClock().now)
	c.RecordAnomaly(flaggedResult("tx", 0.8, models.AnomalyVelocity))
	c.RecordAnomaly(flaggedResult("tx", 0.8, models.AnomalyVelocity))

	rec := doRequest(newTestServer(c), http.MethodGet, "/api/distribution")
	require.Equal(t, http.StatusOK, rec.Code)

	var dist map[string]int64
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dist))
	assert.Equal(t, int64(2), dist["velocity"])
}

func TestDashboard_HealthEndpoint(t *testing.T) {
	clock := newTestClock()
	c := NewCollectorWithClock(clock.now)
	c.RecordTransaction(time.Millisecond)

	s := newTestServer(c)
	rec := doRequest(s, http.MethodGet, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["healthy"])
	assert.Equal(t, "OK", health["uptime_check"])
	assert.Contains(t, health, "processing_rate")
	assert.Contains(t, health, "timestamp")

	// Stale metrics turn the endpoint into a 503.
	clock.advance(6 * time.Minute)
	rec = doRequest(s, http.MethodGet, "/api/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestDashboard_MethodNotAllowed(t *testing.T) {
	s := newTestServer(NewCollectorWithClock(newTestClock().now))
	for _, path := range []string{"/api/metrics", "/api/anomalies", "/api/distribution", "/api/health"} {
		rec := doRequest(s, http.MethodPost, path)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
	}
}

func TestDashboard_UnknownPath(t *testing.T) {
	rec := doRequest(newTestServer(NewCollectorWithClock(newTestClock().now)), http.MethodGet, "/api/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboard_IndexServesEmbeddedPage(t *testing.T) {
	rec := doRequest(newTestServer(NewCollectorWithClock(newTestClock().now)), http.MethodGet, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "SlipStream Anomaly Detection Dashboard")
	assert.Contains(t, rec.Body.String(), "setInterval(fetchMetrics, 5000)")
}

func TestDashboard_PrometheusExposition(t *testing.T) {
	rec := doRequest(newTestServer(NewCollectorWithClock(newTestClock().now)), http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slipstream_transactions_processed_total")
}

func TestDashboard_CORSOnEveryResponse(t *testing.T) {
	s := newTestServer(NewCollectorWithClock(newTestClock().now))
	for _, path := range []string{"/api/metrics", "/api/anomalies", "/api/distribution", "/api/health", "/api/missing"} {
		rec := doRequest(s, http.MethodGet, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}
}
