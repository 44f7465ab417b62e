package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest("GET", "/", "200", time.Millisecond, 0, 0)
		m.RecordLoad("allorigins", "ok", time.Second)
		m.RecordSchemeFallback("allorigins", true)
		m.AddRewritten("attribute", 3)
		m.RecordStylesheet(false)
		m.IncStaleWrites()
		m.RecordRelayCall("allorigins", "200", time.Second)
		m.RecordProbe("allorigins", true)
		m.SetTabsActive(2)
		m.IncTabsTotal()
		m.SetBlobsStored(1)
		m.RecordWSMessage("in", "ping")
		m.IncWSConnections()
		m.DecWSConnections()
		NewTimer(m, "allorigins").Stop("200")
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
	assert.NotNil(t, m.Handler())
}

func TestSnapshotTracksLoadsAndErrors(t *testing.T) {
	m := NewMetrics()

	m.RecordHTTPRequest("GET", "/", "200", 10*time.Millisecond, 0, 100)
	m.RecordHTTPRequest("GET", "/api/tabs/:id", "404", 20*time.Millisecond, 0, 10)
	m.RecordLoad("allorigins", "ok", time.Second)
	m.RecordLoad("allorigins", "fallback", time.Second)
	m.RecordLoad("corsproxy", "failed", time.Second)
	m.SetTabsActive(3)
	m.IncWSConnections()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.TotalErrors)
	assert.Equal(t, int64(3), snap.TotalLoads)
	assert.Equal(t, int64(2), snap.FailedLoads, "fallback and failed both count")
	assert.Equal(t, int64(3), snap.ActiveTabs)
	assert.Equal(t, int64(1), snap.ActiveConnections)
	assert.InDelta(t, 0.03, snap.TotalDuration, 1e-9)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Loads.WithLabelValues("corsproxy", "failed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.TabsActive))
}

func TestCountersByLabel(t *testing.T) {
	m := NewMetrics()

	m.AddRewritten("srcset", 4)
	m.AddRewritten("srcset", 0)
	m.RecordStylesheet(true)
	m.RecordStylesheet(false)
	m.RecordProbe("codetabs", false)
	m.RecordSchemeFallback("codetabs", true)
	NewTimer(m, "codetabs").Stop("502")

	assert.Equal(t, 4.0, testutil.ToFloat64(m.Rewritten.WithLabelValues("srcset")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Stylesheets.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayProbes.WithLabelValues("codetabs", "offline")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SchemeFallbacks.WithLabelValues("codetabs", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RelayCalls.WithLabelValues("codetabs", "502")))
}

func TestMiddlewareUsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/tabs/:id/frame", func(c *gin.Context) {
		c.String(http.StatusOK, "frame")
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/tabs/tab_a/frame", "/tabs/tab_b/frame", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/tabs/:id/frame", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `aurora_http_requests_total{method="GET",path="/tabs/:id/frame",status="200"} 2`)
	assert.Contains(t, w.Body.String(), "aurora_uptime_seconds")
}
