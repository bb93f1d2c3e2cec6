package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Agents         *handlers.AgentsHandler
	Tickets        *handlers.TicketsHandler
	AgentTickets   *handlers.AgentTicketsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/users/register", cfg.Users.Register)
	authGroup.Post("/users/login", cfg.Users.Login)
	authGroup.Post("/agents/login", cfg.Agents.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireUser())
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/replies", cfg.Tickets.AddReply)
	tickets.Post("/:id/close", cfg.Tickets.CloseTicket)
	tickets.Post("/:id/reopen", cfg.Tickets.ReopenTicket)
	tickets.Post("/:id/follow", cfg.Tickets.Follow)
	tickets.Delete("/:id/follow", cfg.Tickets.Unfollow)

	agentTickets := app.Group("/agent/tickets", cfg.AuthMiddleware.Handle, auth.RequireAgentRole())
	agentTickets.Get("", cfg.AgentTickets.ListTickets)
	agentTickets.Get("/:id", cfg.AgentTickets.GetTicket)
	agentTickets.Post("/:id/assign", cfg.AgentTickets.Assign)
	agentTickets.Post("/:id/unassign", cfg.AgentTickets.Unassign)
	agentTickets.Post("/:id/status", cfg.AgentTickets.Transition)
	agentTickets.Post("/:id/priority", cfg.AgentTickets.ChangePriority)
	agentTickets.Post("/:id/tags", cfg.AgentTickets.AddTags)
	agentTickets.Post("/:id/replies", cfg.AgentTickets.AddReply)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAgentRole(domain.AgentRoleAdmin))
	admin.Post("/sla-policies", cfg.Admin.CreateSlaPolicy)
	admin.Put("/sla-policies/:id", cfg.Admin.UpdateSlaPolicy)
	admin.Get("/sla-policies", cfg.Admin.ListSlaPolicies)
	admin.Get("/sla-stats", cfg.Admin.SlaStats)
	admin.Post("/escalation-rules", cfg.Admin.CreateEscalationRule)
	admin.Put("/escalation-rules/:id", cfg.Admin.UpdateEscalationRule)
	admin.Delete("/escalation-rules/:id", cfg.Admin.DeleteEscalationRule)
	admin.Get("/escalation-rules", cfg.Admin.ListEscalationRules)
	admin.Post("/sweeps/check-sla", cfg.Admin.RunCheckSla)
	admin.Post("/sweeps/escalations", cfg.Admin.RunEscalations)
}
