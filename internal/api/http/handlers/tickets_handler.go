package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	"github.com/spec-kit/helpdesk-core/internal/service"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketsHandler manages requester-facing ticket endpoints.
type TicketsHandler struct {
	service *service.TicketService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService) *TicketsHandler {
	return &TicketsHandler{service: ticketService}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.CreateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	ticket, err := h.service.Create(c.UserContext(), service.CreateTicketInput{
		RequesterID:  &principal.User.ID,
		DepartmentID: req.DepartmentID,
		Subject:      req.Subject,
		Description:  req.Description,
		Priority:     req.Priority,
		Tags:         req.Tags,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": ticketSummary(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	filter := parseTicketQuery(c)
	filter.RequesterID = &principal.User.ID

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

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownTicket(c, principal)
	if err != nil {
		return err
	}
	return h.renderDetail(c, ticket, false)
}

// AddReply POST /tickets/:id/replies.
func (h *TicketsHandler) AddReply(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownTicket(c, principal)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	reply, err := h.service.AddReply(c.UserContext(), service.ReplyInput{
		TicketID: ticket.ID,
		AuthorID: &principal.User.ID,
		Body:     req.Body,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": replyResponse(reply)})
}

// CloseTicket POST /tickets/:id/close.
func (h *TicketsHandler) CloseTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownTicket(c, principal)
	if err != nil {
		return err
	}
	updated, err := h.service.TransitionStatus(c.UserContext(), ticket.ID, domain.TicketStatusClosed, &principal.User.ID, "closed by requester")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(updated)})
}

// ReopenTicket POST /tickets/:id/reopen.
func (h *TicketsHandler) ReopenTicket(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownTicket(c, principal)
	if err != nil {
		return err
	}
	if ticket.Open() {
		return apperrors.NewConflict("ticket is not resolved or closed", nil)
	}
	updated, err := h.service.TransitionStatus(c.UserContext(), ticket.ID, domain.TicketStatusReopened, &principal.User.ID, "reopened by requester")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketSummary(updated)})
}

// Follow POST /tickets/:id/follow.
func (h *TicketsHandler) Follow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownVisibleTicket(c)
	if err != nil {
		return err
	}
	if err := h.service.Follow(c.UserContext(), ticket.ID, principal.User.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Unfollow DELETE /tickets/:id/follow.
func (h *TicketsHandler) Unfollow(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		return apperrors.NewUnauthorized("user required")
	}
	ticket, err := h.ownVisibleTicket(c)
	if err != nil {
		return err
	}
	if err := h.service.Unfollow(c.UserContext(), ticket.ID, principal.User.ID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ownTicket loads the ticket and enforces requester ownership.
func (h *TicketsHandler) ownTicket(c *fiber.Ctx, principal *auth.Principal) (*domain.Ticket, error) {
	ticket, err := h.service.GetByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return nil, err
	}
	if ticket.RequesterID == nil || *ticket.RequesterID != principal.User.ID {
		return nil, apperrors.NewNotFound("ticket", nil)
	}
	return ticket, nil
}

// ownVisibleTicket allows following any ticket the caller can see; today
// that is still limited to the caller's own tickets.
func (h *TicketsHandler) ownVisibleTicket(c *fiber.Ctx) (*domain.Ticket, error) {
	principal, _ := auth.PrincipalFromContext(c)
	return h.ownTicket(c, principal)
}

func (h *TicketsHandler) renderDetail(c *fiber.Ctx, ticket *domain.Ticket, includeInternal bool) error {
	replies, err := h.service.Thread(c.UserContext(), ticket.ID, includeInternal)
	if err != nil {
		return err
	}
	history, err := h.service.History(c.UserContext(), ticket.ID, 100, 0)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": ticketDetail(ticket, replies, history)})
}

func parseTicketQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := repository.TicketFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			filter.Statuses = append(filter.Statuses, domain.TicketStatus(strings.TrimSpace(part)))
		}
	}
	if priorityStr := c.Query("priority"); priorityStr != "" {
		for _, part := range strings.Split(priorityStr, ",") {
			filter.Priorities = append(filter.Priorities, domain.TicketPriority(strings.TrimSpace(part)))
		}
	}
	if search := strings.TrimSpace(c.Query("q")); search != "" {
		filter.SearchTerm = &search
	}
	if breached := c.Query("sla_breached"); breached != "" {
		if parsed, err := strconv.ParseBool(breached); err == nil {
			filter.SlaBreached = &parsed
		}
	}
	if from := parseTime(c.Query("created_from")); from != nil {
		filter.CreatedFrom = from
	}
	if to := parseTime(c.Query("created_to")); to != nil {
		filter.CreatedTo = to
	}
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func parseTime(val string) *time.Time {
	if val == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return nil
	}
	return &t
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:                    ticket.ID,
		Reference:             ticket.Reference,
		DepartmentID:          ticket.DepartmentID,
		AssignedTo:            ticket.AssignedTo,
		Subject:               ticket.Subject,
		Status:                ticket.Status,
		Priority:              ticket.Priority,
		Tags:                  ticket.Tags,
		SlaFirstResponseDueAt: ticket.SlaFirstResponseDueAt,
		SlaResolutionDueAt:    ticket.SlaResolutionDueAt,
		SlaBreached:           ticket.SlaBreached,
		CreatedAt:             ticket.CreatedAt,
		UpdatedAt:             ticket.UpdatedAt,
	}
}

func ticketDetail(ticket *domain.Ticket, replies []domain.Reply, history []domain.TicketActivity) dto.TicketDetailResponse {
	replyItems := make([]dto.ReplyResponse, 0, len(replies))
	for i := range replies {
		replyItems = append(replyItems, replyResponse(&replies[i]))
	}
	historyItems := make([]dto.ActivityResponse, 0, len(history))
	for i := range history {
		historyItems = append(historyItems, dto.ActivityResponse{
			ID:        history[i].ID,
			Action:    string(history[i].Action),
			CauserID:  history[i].CauserID,
			Details:   history[i].Details,
			CreatedAt: history[i].CreatedAt,
		})
	}
	return dto.TicketDetailResponse{
		TicketSummary:   ticketSummary(ticket),
		RequesterID:     ticket.RequesterID,
		Description:     ticket.Description,
		SlaPolicyID:     ticket.SlaPolicyID,
		FirstResponseAt: ticket.FirstResponseAt,
		ResolvedAt:      ticket.ResolvedAt,
		ClosedAt:        ticket.ClosedAt,
		Replies:         replyItems,
		History:         historyItems,
	}
}

func replyResponse(reply *domain.Reply) dto.ReplyResponse {
	return dto.ReplyResponse{
		ID:         reply.ID,
		AuthorID:   reply.AuthorID,
		Body:       reply.Body,
		IsInternal: reply.IsInternal,
		IsSystem:   reply.IsSystem,
		CreatedAt:  reply.CreatedAt,
	}
}
