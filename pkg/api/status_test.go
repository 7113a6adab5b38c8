package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravedigest/ravedigest/pkg/bus"
)

type fakeStatusReader struct {
	status bus.GroupStatus
	err    error
}

func (f fakeStatusReader) Status(context.Context, string, string) (bus.GroupStatus, error) {
	return f.status, f.err
}

func statusGet(t *testing.T, reader fakeStatusReader) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.GET("/analyzer/status", StreamStatusHandler(reader, "raw_articles", "ravedigest-analyzer"))

	rec := httptest.NewRecorder()
	req, err := http.NewRequest(http.MethodGet, "/analyzer/status", nil)
	require.NoError(t, err)
	engine.ServeHTTP(rec, req)
	return rec
}

func TestStreamStatusIdle(t *testing.T) {
	rec := statusGet(t, fakeStatusReader{status: bus.GroupStatus{
		LastGeneratedID: "3-0",
		LastDeliveredID: "3-0",
		Idle:            true,
	}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"is_idle":true,"last_generated_id":"3-0","last_delivered_id":"3-0","pending_messages":0}`,
		rec.Body.String())
}

func TestStreamStatusBusy(t *testing.T) {
	rec := statusGet(t, fakeStatusReader{status: bus.GroupStatus{
		LastGeneratedID: "7-0",
		LastDeliveredID: "3-0",
		Pending:         2,
	}})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`{"is_idle":false,"last_generated_id":"7-0","last_delivered_id":"3-0","pending_messages":2}`,
		rec.Body.String())
}

func TestStreamStatusMissingStream(t *testing.T) {
	for _, sentinel := range []error{bus.ErrNoStream, bus.ErrNoGroup} {
		rec := statusGet(t, fakeStatusReader{err: sentinel})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"status":"Stream not found","is_idle":false}`, rec.Body.String())
	}
}

func TestStreamStatusBusError(t *testing.T) {
	rec := statusGet(t, fakeStatusReader{err: errors.New("connection reset")})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection reset")
}
