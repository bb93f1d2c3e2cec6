package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	DepartmentID *string               `json:"department_id"`
	Subject      string                `json:"subject"`
	Description  string                `json:"description"`
	Priority     domain.TicketPriority `json:"priority"`
	Tags         []string              `json:"tags"`
}

// ReplyRequest payload for thread additions.
type ReplyRequest struct {
	Body       string `json:"body"`
	IsInternal bool   `json:"is_internal"`
}

// TransitionRequest payload for status changes.
type TransitionRequest struct {
	Status domain.TicketStatus `json:"status"`
	Note   string              `json:"note"`
}

// AssignRequest payload.
type AssignRequest struct {
	AgentID string `json:"agent_id"`
}

// PriorityRequest payload.
type PriorityRequest struct {
	Priority domain.TicketPriority `json:"priority"`
}

// TagsRequest payload.
type TagsRequest struct {
	Tags []string `json:"tags"`
}

// TicketSummary response.
type TicketSummary struct {
	ID                    string                `json:"id"`
	Reference             string                `json:"reference"`
	DepartmentID          *string               `json:"department_id"`
	AssignedTo            *string               `json:"assigned_to"`
	Subject               string                `json:"subject"`
	Status                domain.TicketStatus   `json:"status"`
	Priority              domain.TicketPriority `json:"priority"`
	Tags                  []string              `json:"tags"`
	SlaFirstResponseDueAt *time.Time            `json:"sla_first_response_due_at"`
	SlaResolutionDueAt    *time.Time            `json:"sla_resolution_due_at"`
	SlaBreached           bool                  `json:"sla_breached"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// TicketDetailResponse provides full ticket info.
type TicketDetailResponse struct {
	TicketSummary
	RequesterID     *string            `json:"requester_id"`
	Description     string             `json:"description"`
	SlaPolicyID     *string            `json:"sla_policy_id"`
	FirstResponseAt *time.Time         `json:"first_response_at"`
	ResolvedAt      *time.Time         `json:"resolved_at"`
	ClosedAt        *time.Time         `json:"closed_at"`
	Replies         []ReplyResponse    `json:"replies"`
	History         []ActivityResponse `json:"history"`
}

// ReplyResponse represents one thread message.
type ReplyResponse struct {
	ID         string    `json:"id"`
	AuthorID   *string   `json:"author_id"`
	Body       string    `json:"body"`
	IsInternal bool      `json:"is_internal"`
	IsSystem   bool      `json:"is_system"`
	CreatedAt  time.Time `json:"created_at"`
}

// ActivityResponse represents one audit trail entry.
type ActivityResponse struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	CauserID  *string        `json:"causer_id"`
	Details   map[string]any `json:"details"`
	CreatedAt time.Time      `json:"created_at"`
}
