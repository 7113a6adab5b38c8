package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/health"
	"github.com/ravedigest/ravedigest/pkg/metrics"
)

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthRoutes(t *testing.T) {
	checker := health.NewChecker("collector")
	checker.AddCheck("database", func(ctx context.Context) error { return nil })
	checker.AddCheck("redis", func(ctx context.Context) error { return nil })
	s := NewServer(checker, metrics.New("collector"))

	rec := get(t, s, "/collector/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "collector", body["service"])
	assert.Equal(t, "healthy", body["status"])
	assert.Len(t, body["checks"], 2)

	rec = get(t, s, "/collector/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alive", decode(t, rec)["status"])

	rec = get(t, s, "/collector/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", decode(t, rec)["status"])
}

func TestHealthUnhealthyReturns503(t *testing.T) {
	checker := health.NewChecker("analyzer")
	checker.AddCheck("redis", func(ctx context.Context) error { return errors.New("down") })
	s := NewServer(checker, metrics.New("analyzer"))

	rec := get(t, s, "/analyzer/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", decode(t, rec)["status"])

	rec = get(t, s, "/analyzer/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, []any{"redis"}, body["failing"])
}

func TestDegradedStillReturns200(t *testing.T) {
	checker := health.NewChecker("collector")
	checker.AddCheck("database", func(ctx context.Context) error { return nil })
	checker.AddOptionalCheck("rss_feed_0", func(ctx context.Context) error { return errors.New("timeout") })
	s := NewServer(checker, metrics.New("collector"))

	rec := get(t, s, "/collector/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "degraded", decode(t, rec)["status"])

	// Optional checks never block readiness.
	rec = get(t, s, "/collector/health/ready")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New("composer")
	m.DigestPublished(metrics.ResultOK)
	s := NewServer(health.NewChecker("composer"), m)

	rec := get(t, s, "/composer/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `ravedigest_digests_published_total{result="ok"} 1`)
}

func TestServiceRoutesRegisterOnEngine(t *testing.T) {
	s := NewServer(health.NewChecker("scheduler"), metrics.New("scheduler"))
	s.Engine().GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rec := get(t, s, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}
