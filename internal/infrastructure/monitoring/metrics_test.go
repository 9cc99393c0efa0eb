package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreIsolated(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordTransition("none", "active")
	a.RecordTransition("none", "active")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.Transitions.WithLabelValues("none", "active")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Transitions.WithLabelValues("none", "active")))
}

func TestRecorders(t *testing.T) {
	m := NewMetrics()

	m.RecordVerdict("accept", true)
	m.RecordVerdict("veto", false)
	m.RecordSupervisorCall("trim", "ok", 3*time.Millisecond)
	m.RecordCompaction("score", "issued")
	m.RecordEventDropped("visibility")
	m.SetAppCounts(2, 3, 1, 9)
	m.SetScheduledTasks(4)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("accept", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verdicts.WithLabelValues("veto", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupervisorCalls.WithLabelValues("trim", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compactions.WithLabelValues("score", "issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues("visibility")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Apps.WithLabelValues("idle")))
	assert.Equal(t, 9.0, testutil.ToFloat64(m.Processes))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ScheduledTasks))
}

func TestTimerRecordsEvent(t *testing.T) {
	m := NewMetrics()
	NewTimer(m, "score").Stop()
	NewTimer(nil, "score").Stop()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("score")))
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/v1/apps/:key", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/apps/com.example.chat", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/v1/apps/:key", "204")))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "keepalive_uptime_seconds"))
}
