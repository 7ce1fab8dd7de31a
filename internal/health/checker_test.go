package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeAddressSpace struct{ ready bool }

func (f fakeAddressSpace) Ready() bool { return f.ready }

type fakeRegistry struct{ healthy bool }

func (f fakeRegistry) Healthy() bool { return f.healthy }

func TestHealthHandlerReportsHealthyWhenAllComponentsUp(t *testing.T) {
	checker := NewChecker(fakeAddressSpace{ready: true}, fakeRegistry{healthy: true}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.HealthHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "healthy", resp.Components["address_space"])
	assert.Equal(t, "healthy", resp.Components["subscription_registry"])
}

func TestHealthHandlerReportsDegradedWhenRegistryWedged(t *testing.T) {
	checker := NewChecker(fakeAddressSpace{ready: true}, fakeRegistry{healthy: false}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.HealthHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "unhealthy", resp.Components["subscription_registry"])
}

func TestLiveHandlerAlwaysReportsAlive(t *testing.T) {
	checker := NewChecker(fakeAddressSpace{ready: false}, fakeRegistry{healthy: false}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	checker.LiveHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadyHandlerReportsNotReadyWhenAddressSpaceUnready(t *testing.T) {
	checker := NewChecker(fakeAddressSpace{ready: false}, fakeRegistry{healthy: true}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	checker.ReadyHandler(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "not_ready", body["status"])
	assert.Equal(t, false, body["address_space"])
}

func TestReadyHandlerReportsReadyWhenAllComponentsUp(t *testing.T) {
	checker := NewChecker(fakeAddressSpace{ready: true}, fakeRegistry{healthy: true}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	w := httptest.NewRecorder()
	checker.ReadyHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}
