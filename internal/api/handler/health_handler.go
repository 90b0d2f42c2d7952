package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// dependencyCheckTimeout bounds each backing service check
const dependencyCheckTimeout = 2 * time.Second

// Dependency states reported by /health
const (
	DependencyUp   = "up"
	DependencyDown = "down"
)

// Health handles GET /health
// Returns 200 while every backing service is reachable and at least one
// provider is healthy, 503 otherwise
func (h *HealthHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:             "healthy",
		Service:            h.service,
		Providers:          []dto.ProviderHealthDTO{},
		HealthyProviders:   []string{},
		UnhealthyProviders: []string{},
	}
	healthy := h.checkDependencies(c.Request.Context(), &resp)

	if h.health != nil {
		for _, s := range h.health.Statuses() {
			resp.Providers = append(resp.Providers, dto.ProviderHealthDTO{
				Provider:            s.Provider,
				Healthy:             s.Healthy,
				LastCheck:           formatOptionalTime(s.LastCheck),
				ConsecutiveFailures: s.ConsecutiveFailures,
			})
		}
		resp.HealthyProviders = append(resp.HealthyProviders, h.health.HealthyProviders()...)
		resp.UnhealthyProviders = append(resp.UnhealthyProviders, h.health.UnhealthyProviders()...)
		healthy = healthy && h.health.IsHealthy()
	}

	code := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Checked-At", time.Now().UTC().Format(time.RFC3339))
	c.JSON(code, resp)
}

// checkDependencies checks each backing service and reports whether all are up
func (h *HealthHandler) checkDependencies(ctx context.Context, resp *dto.HealthResponse) bool {
	if len(h.checks) == 0 {
		return true
	}

	resp.Dependencies = make(map[string]string, len(h.checks))
	allUp := true
	for _, dep := range h.checks {
		checkCtx, cancel := context.WithTimeout(ctx, dependencyCheckTimeout)
		err := dep.Check(checkCtx)
		cancel()

		if err != nil {
			h.logger.Warn("Dependency health check failed",
				slog.String("dependency", dep.Name),
				slog.Any("error", err),
			)
			resp.Dependencies[dep.Name] = DependencyDown
			allUp = false
			continue
		}
		resp.Dependencies[dep.Name] = DependencyUp
	}
	return allUp
}
