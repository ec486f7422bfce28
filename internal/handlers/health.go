package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"media-registry/internal/metrics"
	"media-registry/internal/startup"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// ThrottleStatus is the controller's current admission state.
type ThrottleStatus struct {
	Capacity int `json:"capacity"`
	InUse    int `json:"inUse"`
	Waiting  int `json:"waiting"`
}

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Ready   bool   `json:"ready"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
	Error   string `json:"error,omitempty"`

	// MigrationPending is set while a legacy schema awaits migration; asset
	// tables are unavailable until then.
	MigrationPending bool `json:"migrationPending"`

	Registry *metrics.Stats `json:"registry,omitempty"`
	Throttle ThrottleStatus `json:"throttle"`
	Jobs     int            `json:"runningJobs"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Ready:        true,
		Version:      startup.Version,
		Uptime:       time.Since(h.startTime).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
		Throttle: ThrottleStatus{
			Capacity: h.throttle.Capacity(),
			InUse:    h.throttle.InUse(),
			Waiting:  h.throttle.Waiting(),
		},
	}
	for _, job := range h.jobs.List() {
		if job.State == JobRunning {
			response.Jobs++
		}
	}

	code := http.StatusOK
	stats, err := h.db.RegistryStats(r.Context())
	if err != nil {
		response.Status = statusUnhealthy
		response.Ready = false
		response.Error = err.Error()
		code = http.StatusServiceUnavailable
	} else {
		response.Registry = &stats
		if pending, err := h.migrator.Pending(r.Context()); err == nil && pending {
			response.MigrationPending = true
			response.Status = statusDegraded
		}
	}

	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, code, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	// For HEAD requests, only send headers (no body)
	if r.Method != http.MethodHead {
		writeJSON(w, map[string]string{
			"status": "alive",
		})
	}
}

// ReadinessCheck returns 200 only when the store answers queries.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.RegistryStats(r.Context()); err != nil {
		writeJSONCode(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
		})
		return
	}
	writeJSONCode(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// VersionResponse is the build information plus process uptime.
type VersionResponse struct {
	startup.BuildInfo
	Uptime string `json:"uptime"`
}

// GetVersion returns the application version and build information
func (h *Handlers) GetVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSONCode(w, http.StatusOK, VersionResponse{
		BuildInfo: startup.GetBuildInfo(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	})
}

// MetricsHandler serves the Prometheus registry.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.Handler()
}
