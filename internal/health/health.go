// Package health exposes liveness and readiness probes over a registry of
// named subsystem checks.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// checkTimeout bounds each individual probe so one stuck subsystem cannot
// hang the readiness endpoint.
const checkTimeout = 2 * time.Second

// Status is the result of probing a single subsystem.
type Status struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Detail  string `json:"detail,omitempty"`
}

// Check probes one subsystem. A nil error means healthy.
type Check func(ctx context.Context) error

// Registry holds named checks and serves the probe endpoints.
type Registry struct {
	mu     sync.RWMutex
	names  []string
	checks map[string]Check
}

// NewRegistry creates an empty check registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[string]Check)}
}

// Register adds a named check. Registering the same name twice replaces the
// earlier check.
func (r *Registry) Register(name string, check Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.checks[name]; !exists {
		r.names = append(r.names, name)
	}
	r.checks[name] = check
}

// Run executes every registered check and reports aggregate health plus the
// per-subsystem results, in registration order.
func (r *Registry) Run(ctx context.Context) (bool, []Status) {
	r.mu.RLock()
	names := make([]string, len(r.names))
	copy(names, r.names)
	checks := make(map[string]Check, len(r.checks))
	for k, v := range r.checks {
		checks[k] = v
	}
	r.mu.RUnlock()

	healthy := true
	statuses := make([]Status, 0, len(names))
	for _, name := range names {
		probeCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checks[name](probeCtx)
		cancel()

		s := Status{Name: name, Healthy: err == nil}
		if err != nil {
			s.Detail = err.Error()
			healthy = false
		}
		statuses = append(statuses, s)
	}
	return healthy, statuses
}

// RegisterRoutes mounts the probe endpoints. Liveness always answers 200
// while the process runs; readiness runs the registered checks and answers
// 503 when any subsystem fails.
func (r *Registry) RegisterRoutes(router gin.IRoutes) {
	router.GET("/health/live", r.Live)
	router.GET("/health/ready", r.Ready)
}

// Live handles GET /health/live.
func (r *Registry) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready.
func (r *Registry) Ready(c *gin.Context) {
	healthy, statuses := r.Run(c.Request.Context())

	code := http.StatusOK
	status := "ok"
	if !healthy {
		code = http.StatusServiceUnavailable
		status = "degraded"
	}
	c.JSON(code, gin.H{"status": status, "checks": statuses})
}
