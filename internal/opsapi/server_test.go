package opsapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHealthzReportsOk(t *testing.T) {
	metrics := NewMetrics()
	s := NewServer(zap.NewNop(), ":0", metrics)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)
}

func TestMetricsEndpointExposesRegisteredSeries(t *testing.T) {
	metrics := NewMetrics()
	metrics.GateAcquisitions.WithLabelValues("ok").Inc()
	metrics.OpenPositions.WithLabelValues("fibo1").Set(2)

	s := NewServer(zap.NewNop(), ":0", metrics)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	s.httpServer.Handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "g13_gate_acquisitions_total")
	assert.Contains(t, rr.Body.String(), "g13_open_positions")
}

func TestNewMetricsCanBeConstructedRepeatedlyWithoutPanicking(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics()
		NewMetrics()
	})
}
