package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/skoocda/async-ticket-server/internal/server"
)

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	server      *server.Server
}

// NewHealthHandler returns a new handler instance.
func NewHealthHandler(serviceName, version string, srv *server.Server) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, server: srv}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports readiness: the process is ready while the server loop is
// still draining its queue.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.server.Running() {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": fiber.Map{"server_loop": "running"},
		})
	}
	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "ticket server loop stopped",
			"details": fiber.Map{"server_loop": "stopped"},
		},
	})
}
