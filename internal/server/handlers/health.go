package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/silvermint/diagd/internal/server/middleware"
)

// checkTimeout bounds each individual health check.
const checkTimeout = 2 * time.Second

// Checker reports the health of one subsystem.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the body returned for a healthy daemon.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks"`
}

// HealthManager aggregates registered health checkers.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewHealthManager creates a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]Checker),
	}
}

// RegisterChecker adds a named checker. Re-registering a name replaces
// the previous checker.
func (m *HealthManager) RegisterChecker(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = c
}

func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]Checker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, c := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.CheckHealth(checkCtx)
		cancel()

		switch {
		case err == nil:
			results[name] = "healthy"
		case checkCtx.Err() != nil:
			results[name] = "timeout"
		default:
			results[name] = "unhealthy"
		}
	}
	return results
}

// determineOverallStatus folds individual check results into one status.
// Any unhealthy check makes the daemon unhealthy; a timeout alone only
// degrades it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := "healthy"
	for _, s := range checks {
		switch s {
		case "unhealthy":
			return "unhealthy"
		case "timeout":
			status = "degraded"
		}
	}
	return status
}

// HealthHandler serves GET /health.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == "unhealthy" {
		checkDetails := make(map[string]interface{}, len(checks))
		for name, s := range checks {
			checkDetails[name] = s
		}
		middleware.WriteError(w, r, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "one or more health checks failed",
			map[string]interface{}{
				"status": status,
				"checks": checkDetails,
			})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LiveHandler serves GET /health/live. Liveness never runs checks; a
// responding process is alive.
func (m *HealthManager) LiveHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadyHandler serves GET /health/ready.
func (m *HealthManager) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	if m.determineOverallStatus(checks) == "unhealthy" {
		checkDetails := make(map[string]interface{}, len(checks))
		for name, s := range checks {
			checkDetails[name] = s
		}
		middleware.WriteError(w, r, http.StatusServiceUnavailable,
			"SERVICE_UNAVAILABLE", "daemon is not ready",
			map[string]interface{}{"checks": checkDetails})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// StartupHandler serves GET /health/startup.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

var globalHealthManager *HealthManager

// InitHealthManager installs the process-wide health manager.
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the process-wide manager, initializing a
// default one if InitHealthManager was never called.
func GetHealthManager() *HealthManager {
	if globalHealthManager == nil {
		InitHealthManager("dev")
	}
	return globalHealthManager
}
