package health

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lineswarm/relay/internal/logger"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) Ping(context.Context) error {
	return p.err
}

func testLogger() logger.Logger {
	return logger.NewLogger(io.Discard, logger.ErrorLevel)
}

func TestCheckAllHealthyWithoutPinger(t *testing.T) {
	c := NewChecker("memory", nil)
	status := c.CheckAll(context.Background())

	require.NotNil(t, status.ArchiveStatus)
	require.True(t, status.ArchiveStatus.Connected)
	require.Equal(t, "memory", status.ArchiveStatus.Backend)
	require.Equal(t, StatusHealthy, status.ArchiveStatus.Status)
	require.NotNil(t, status.SystemStatus)
}

func TestCheckAllReportsArchiveFailure(t *testing.T) {
	c := NewChecker("postgres", &stubPinger{err: errors.New("connection refused")})
	status := c.CheckAll(context.Background())

	require.Equal(t, StatusUnhealthy, status.Status)
	require.False(t, status.ArchiveStatus.Connected)
	require.Contains(t, status.Errors[0], "connection refused")
}

func TestCheckAllRecordsLatencyOnSuccess(t *testing.T) {
	c := NewChecker("postgres", &stubPinger{})
	status := c.CheckAll(context.Background())

	require.True(t, status.ArchiveStatus.Connected)
	require.NotEmpty(t, status.ArchiveStatus.Latency)
}

func newTestServer(pinger Pinger) *Server {
	return NewServer(NewChecker("postgres", pinger), testLogger(), ":0")
}

func TestHealthEndpointHealthy(t *testing.T) {
	s := newTestServer(&stubPinger{})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, StatusHealthy, status.Status)
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	s := newTestServer(&stubPinger{err: errors.New("down")})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLivenessAlwaysOK(t *testing.T) {
	s := newTestServer(&stubPinger{err: errors.New("down")})

	rec := httptest.NewRecorder()
	s.handleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessFollowsArchive(t *testing.T) {
	s := newTestServer(&stubPinger{})
	rec := httptest.NewRecorder()
	s.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	s = newTestServer(&stubPinger{err: errors.New("down")})
	rec = httptest.NewRecorder()
	s.handleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCheckSystemPopulates(t *testing.T) {
	sys := CheckSystem()
	require.NotNil(t, sys)
	require.Greater(t, sys.GoRoutines, 0)
}
