package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/skoocda/async-ticket-server/internal/observability"
)

// StatsHandler exposes command counters.
type StatsHandler struct {
	metrics *observability.Metrics
}

// NewStatsHandler returns a new handler instance.
func NewStatsHandler(metrics *observability.Metrics) *StatsHandler {
	return &StatsHandler{metrics: metrics}
}

// Stats GET /stats.
func (h *StatsHandler) Stats(c *fiber.Ctx) error {
	processed, failed := h.metrics.CommandSnapshot()
	return c.JSON(fiber.Map{"data": fiber.Map{
		"commands_processed": processed,
		"commands_failed":    failed,
	}})
}
