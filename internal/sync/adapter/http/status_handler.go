package http

import (
	"context"
	"time"

	"storage-sync-worker/internal/shared/logger"
	"storage-sync-worker/internal/sync/usecase"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const healthCheckTimeout = 5 * time.Second

// HealthChecker reports whether the worker's backing stores are reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusHandler serves the worker's health, status and metrics endpoints.
type StatusHandler struct {
	tracker  *usecase.StatusTracker
	gatherer prometheus.Gatherer
	health   HealthChecker
	runID    string
	logger   logger.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(tracker *usecase.StatusTracker, gatherer prometheus.Gatherer, health HealthChecker, runID string, log logger.Logger) *StatusHandler {
	return &StatusHandler{
		tracker:  tracker,
		gatherer: gatherer,
		health:   health,
		runID:    runID,
		logger:   log.WithComponent("status-http"),
	}
}

// RegisterRoutes mounts /health, /status and /metrics on router.
func (h *StatusHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/status", h.Status)
	router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))
}

// Health pings the source and target stores.
func (h *StatusHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), healthCheckTimeout)
	defer cancel()

	if err := h.health.HealthCheck(ctx); err != nil {
		h.logger.WithError(err).Warn("Health check failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "UNHEALTHY",
			"error":  err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"status":    "HEALTHY",
		"run_id":    h.runID,
		"timestamp": time.Now().UTC(),
	})
}

// Status returns the per-collection counters.
func (h *StatusHandler) Status(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"run_id":      h.runID,
		"started_at":  h.tracker.StartedAt(),
		"collections": h.tracker.Snapshot(),
	})
}
