package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency; nil means up.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	version string
	checks  map[string]HealthCheck
	timeout time.Duration
}

func NewHealthHandler(version string, checks map[string]HealthCheck) *HealthHandler {
	return &HealthHandler{version: version, checks: checks, timeout: 5 * time.Second}
}

type serviceHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health answers 200 with "healthy" when every check passes and 503 with
// "degraded" otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	overall, code := "healthy", http.StatusOK
	services := make(map[string]serviceHealth, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			services[name] = serviceHealth{Status: "down", Error: err.Error()}
			overall, code = "degraded", http.StatusServiceUnavailable
			continue
		}
		services[name] = serviceHealth{Status: "up"}
	}

	c.JSON(code, gin.H{
		"status":    overall,
		"version":   h.version,
		"services":  services,
		"timestamp": time.Now().UTC(),
	})
}
