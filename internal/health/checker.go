package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// AddressSpace reports whether the address-space collaborator is reachable.
type AddressSpace interface {
	Ready() bool
}

// SubscriptionRegistry reports whether the subscription registry lock is
// currently obtainable, i.e. not wedged.
type SubscriptionRegistry interface {
	Healthy() bool
}

// Checker provides health check endpoints
type Checker struct {
	addressSpace AddressSpace
	registry     SubscriptionRegistry
	logger       zerolog.Logger
}

// NewChecker creates a new health checker
func NewChecker(addressSpace AddressSpace, registry SubscriptionRegistry, logger zerolog.Logger) *Checker {
	return &Checker{
		addressSpace: addressSpace,
		registry:     registry,
		logger:       logger.With().Str("component", "health-checker").Logger(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  string            `json:"timestamp"`
	Components map[string]string `json:"components"`
}

// HealthHandler returns the overall health status
func (c *Checker) HealthHandler(w http.ResponseWriter, r *http.Request) {
	addressSpaceStatus := "healthy"
	if !c.addressSpace.Ready() {
		addressSpaceStatus = "unhealthy"
	}

	registryStatus := "healthy"
	if !c.registry.Healthy() {
		registryStatus = "unhealthy"
	}

	overallStatus := "healthy"
	if addressSpaceStatus != "healthy" || registryStatus != "healthy" {
		overallStatus = "degraded"
	}

	response := HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Components: map[string]string{
			"address_space":          addressSpaceStatus,
			"subscription_registry":  registryStatus,
		},
	}

	w.Header().Set("Content-Type", "application/json")

	if overallStatus != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(response)
}

// LiveHandler returns 200 if the process is running
func (c *Checker) LiveHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadyHandler returns 200 if the service is ready to accept traffic
func (c *Checker) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	addressSpaceReady := c.addressSpace.Ready()
	registryReady := c.registry.Healthy()

	ready := addressSpaceReady && registryReady

	w.Header().Set("Content-Type", "application/json")

	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":               "not_ready",
			"timestamp":            time.Now().UTC().Format(time.RFC3339),
			"address_space":        addressSpaceReady,
			"subscription_registry": registryReady,
		})
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "ready",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
