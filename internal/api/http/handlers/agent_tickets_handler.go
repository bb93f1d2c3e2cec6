package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// AgentTicketsHandler manages the agent queue endpoints.
type AgentTicketsHandler struct {
	service *service.TicketService
}

// NewAgentTicketsHandler constructs handler.
func NewAgentTicketsHandler(ticketService *service.TicketService) *AgentTicketsHandler {
	return &AgentTicketsHandler{service: ticketService}
}

// ListTickets GET /agent/tickets.
func (h *AgentTicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := parseTicketQuery(c)
	if c.Query("assigned") == "me" {
		principal, _ := auth.PrincipalFromContext(c)
		if principal != nil && principal.Agent != nil {
			filter.AssigneeID = &principal.Agent.ID
		}
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}

	tickets, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketSummary, 0, len(tickets))
	for i := range tickets {
		items = append(items, ticketSummary(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetTicket GET /agent/tickets/:id. Internal replies included.
func (h *AgentTicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	replies, err := h.service.Thread(c.UserContext(), ticket.ID, true)
	if err != nil {
		return err
	}
	history, err := h.service.History(c.UserContext(), ticket.ID, 100, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, replies, history)})
}

// Assign POST /agent/tickets/:id/assign.
func (h *AgentTicketsHandler) Assign(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	agentID := req.AgentID
	if agentID == "" && principal != nil && principal.Agent != nil {
		agentID = principal.Agent.ID
	}
	if agentID == "" {
		return apperrors.NewValidationError("agent_id required", nil)
	}

	ticket, err := h.service.Assign(c.UserContext(), c.Params("id"), agentID, actorID(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Unassign POST /agent/tickets/:id/unassign.
func (h *AgentTicketsHandler) Unassign(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	ticket, err := h.service.Unassign(c.UserContext(), c.Params("id"), actorID(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// Transition POST /agent/tickets/:id/status.
func (h *AgentTicketsHandler) Transition(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.TransitionStatus(c.UserContext(), c.Params("id"), req.Status, actorID(principal), req.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ChangePriority POST /agent/tickets/:id/priority.
func (h *AgentTicketsHandler) ChangePriority(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.ChangePriority(c.UserContext(), c.Params("id"), req.Priority, actorID(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddTags POST /agent/tickets/:id/tags.
func (h *AgentTicketsHandler) AddTags(c *fiber.Ctx) error {
	principal, _ := auth.PrincipalFromContext(c)
	var req dto.TagsRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if len(req.Tags) == 0 {
		return apperrors.NewValidationError("tags required", nil)
	}

	ticket, err := h.service.AddTags(c.UserContext(), c.Params("id"), req.Tags, actorID(principal))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// AddReply POST /agent/tickets/:id/replies. Agents may post internal notes.
func (h *AgentTicketsHandler) AddReply(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.Agent == nil {
		return apperrors.NewUnauthorized("agent required")
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reply, err := h.service.AddReply(c.UserContext(), service.ReplyInput{
		TicketID:      c.Params("id"),
		AuthorID:      &principal.Agent.ID,
		AuthorIsAgent: true,
		Body:          req.Body,
		IsInternal:    req.IsInternal,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": replyResponse(reply)})
}

func actorID(principal *auth.Principal) *string {
	if principal == nil {
		return nil
	}
	return principal.ActorID()
}
