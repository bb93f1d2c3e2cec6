package events

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated     EventType = "ticket_created"
	EventStatusChanged     EventType = "status_changed"
	EventPriorityChanged   EventType = "priority_changed"
	EventTicketAssigned    EventType = "ticket_assigned"
	EventReplyAdded        EventType = "reply_added"
	EventSlaBreached       EventType = "sla_breached"
	EventSlaWarning        EventType = "sla_warning"
	EventTicketEscalated   EventType = "ticket_escalated"
	EventDepartmentChanged EventType = "department_changed"
)

// TicketScoped reports whether the event fans out to ticket followers.
func (t EventType) TicketScoped() bool {
	switch t {
	case EventReplyAdded, EventStatusChanged, EventTicketAssigned, EventPriorityChanged:
		return true
	}
	return false
}

// TicketSnapshot captures the ticket fields included in every outbound
// notification envelope.
type TicketSnapshot struct {
	ID          string                `json:"id"`
	Reference   string                `json:"reference"`
	Subject     string                `json:"subject"`
	Status      domain.TicketStatus   `json:"status"`
	Priority    domain.TicketPriority `json:"priority"`
	RequesterID *string               `json:"requester_id,omitempty"`
	AssignedTo  *string               `json:"assigned_to,omitempty"`
}

// Snapshot builds a TicketSnapshot from a ticket.
func Snapshot(t *domain.Ticket) TicketSnapshot {
	return TicketSnapshot{
		ID:          t.ID,
		Reference:   t.Reference,
		Subject:     t.Subject,
		Status:      t.Status,
		Priority:    t.Priority,
		RequesterID: t.RequesterID,
		AssignedTo:  t.AssignedTo,
	}
}

// Event represents a domain event emitted after a unit of work commits.
// A nil ActorID means the change was system-caused.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Ticket    TicketSnapshot `json:"ticket"`
	ActorID   *string        `json:"actor_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   any            `json:"payload,omitempty"`
}

// StatusChangedPayload payload.
type StatusChangedPayload struct {
	From domain.TicketStatus `json:"from"`
	To   domain.TicketStatus `json:"to"`
	Note string              `json:"note,omitempty"`
}

// PriorityChangedPayload payload.
type PriorityChangedPayload struct {
	From domain.TicketPriority `json:"from"`
	To   domain.TicketPriority `json:"to"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	FromAgentID *string `json:"from_agent_id,omitempty"`
	ToAgentID   *string `json:"to_agent_id,omitempty"`
}

// ReplyAddedPayload payload.
type ReplyAddedPayload struct {
	ReplyID    string  `json:"reply_id"`
	AuthorID   *string `json:"author_id,omitempty"`
	IsInternal bool    `json:"is_internal"`
}

// SlaBreachedPayload payload.
type SlaBreachedPayload struct {
	BreachType string `json:"breach_type"`
}

// SlaWarningPayload payload.
type SlaWarningPayload struct {
	WarningType string `json:"warning_type"`
}

// TicketEscalatedPayload payload.
type TicketEscalatedPayload struct {
	RuleID         string   `json:"rule_id"`
	RuleName       string   `json:"rule_name"`
	ActionsApplied []string `json:"actions_applied"`
	Recipients     []string `json:"recipients,omitempty"`
}

// DepartmentChangedPayload payload.
type DepartmentChangedPayload struct {
	FromDepartmentID *string `json:"from_department_id,omitempty"`
	ToDepartmentID   *string `json:"to_department_id,omitempty"`
}
