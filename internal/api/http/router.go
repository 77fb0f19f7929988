package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/helpdesk-labs/triage-service/internal/api/http/handlers"
	"github.com/helpdesk-labs/triage-service/internal/auth"
	"github.com/helpdesk-labs/triage-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	StaffTickets   *handlers.StaffTicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())

	tickets := api.Group("/tickets")
	tickets.Post("/", auth.RequireRole(domain.RoleUser), cfg.Tickets.CreateTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Get("/unassigned", auth.RequireStaff(), cfg.StaffTickets.ListWaiting)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/audit", cfg.Tickets.GetAudit)
	tickets.Post("/:id/assign", auth.RequireStaff(), cfg.StaffTickets.Assign)
	tickets.Post("/:id/reply", auth.RequireStaff(), cfg.StaffTickets.Reply)

	api.Get("/audit/traces/:traceId", auth.RequireStaff(), cfg.Tickets.GetTrace)

	admin := api.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/settings", cfg.Admin.GetSettings)
	admin.Put("/settings", cfg.Admin.PutSettings)
	admin.Get("/queue/dead-letters", cfg.Admin.DeadLetters)
	admin.Get("/queue/jobs/:id", cfg.Admin.GetJob)
	admin.Post("/queue/jobs/:id/requeue", cfg.Admin.Requeue)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
