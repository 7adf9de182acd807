package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/workflow-service/internal/api/http/handlers"
	"github.com/spec-kit/workflow-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Workflows      *handlers.WorkflowsHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	workflows := protected.Group("/workflows")
	workflows.Post("", cfg.Workflows.CreateWorkflow)
	workflows.Post("/detailed", cfg.Workflows.CreateWorkflowDetailed)
	workflows.Get("/:id/detailed", cfg.Workflows.GetWorkflowDetailed)
	workflows.Put("/:id", cfg.Workflows.UpdateWorkflow)
	workflows.Put("/:id/detailed", cfg.Workflows.UpdateWorkflowDetailed)
	workflows.Delete("/:id", cfg.Workflows.DeleteWorkflow)
	workflows.Post("/:id/clone", cfg.Workflows.CloneWorkflow)
	workflows.Post("/:id/reference", cfg.Workflows.ReferenceWorkflow)

	teams := protected.Group("/teams")
	teams.Get("/:teamId/workflows", cfg.Workflows.ListTeamWorkflows)
	teams.Get("/:teamId/workflows/global-unlinked", cfg.Workflows.ListGlobalUnlinked)

	tickets := protected.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Patch("/:id", cfg.Tickets.UpdateTicket)
	tickets.Patch("/:id/state", cfg.Tickets.UpdateTicketState)
	tickets.Delete("/:id", cfg.Tickets.DeleteTicket)
	tickets.Get("/:id/history", cfg.Tickets.GetTicketHistory)
	tickets.Get("/:id/next-states", cfg.Tickets.GetNextStates)
}
