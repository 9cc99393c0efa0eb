package tracing

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingProvider(t *testing.T) (*Provider, *tracetest.SpanRecorder) {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	p, err := NewProvider(Config{ServiceName: "keepalive-test"}, sdktrace.WithSpanProcessor(rec))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p, rec
}

func TestEndRecordsError(t *testing.T) {
	p, rec := newRecordingProvider(t)

	_, ok := p.Tracer().Start(context.Background(), "ok")
	End(ok, nil)
	_, failed := p.Tracer().Start(context.Background(), "failed")
	End(failed, errors.New("supervisor unreachable"))

	spans := rec.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Len(t, spans[1].Events(), 1)
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p, rec := newRecordingProvider(t)

	router := gin.New()
	router.Use(HTTPMiddleware(p.Tracer()))
	router.GET("/v1/stats", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))
	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/stats", spans[0].Name())
}

func TestInitWritesToWriter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(Config{ServiceName: "keepalive-test", Writer: &buf})
	require.NoError(t, err)

	_, span := p.Tracer().Start(context.Background(), "engine.score")
	span.End()
	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "engine.score")
}

func TestNoop(t *testing.T) {
	_, span := Noop().Start(context.Background(), "ignored")
	assert.False(t, span.SpanContext().IsValid())
	End(span, errors.New("ignored"))
}
