package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is any dependency with a health check: the database, the Redis
// cache backend.
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// Describer is a Pinger that can also report details, such as pool usage
// and schema completeness. A Describe error marks the check unhealthy.
type Describer interface {
	Describe(ctx context.Context) (interface{}, error)
}

type HealthHandler struct {
	checks map[string]Pinger
}

func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]string      `json:"checks,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

func (h *HealthHandler) run(ctx context.Context) (map[string]string, map[string]interface{}, bool) {
	results := make(map[string]string, len(h.checks))
	details := make(map[string]interface{})
	healthy := true
	for name, p := range h.checks {
		if err := p.HealthCheck(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			healthy = false
			continue
		}
		results[name] = "healthy"

		d, ok := p.(Describer)
		if !ok {
			continue
		}
		detail, err := d.Describe(ctx)
		if detail != nil {
			details[name] = detail
		}
		if err != nil {
			results[name] = "unhealthy: " + err.Error()
			healthy = false
		}
	}
	if len(details) == 0 {
		details = nil
	}
	return results, details, healthy
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks, details, healthy := h.run(ctx)
	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "unhealthy", http.StatusServiceUnavailable
	}

	c.JSON(code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Details:   details,
	})
}

func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, _, healthy := h.run(ctx); !healthy {
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:    "not ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
