package dto

import (
	"time"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// SlaPolicyRequest payload for policy create/update.
type SlaPolicyRequest struct {
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	FirstResponseHours domain.PriorityHours `json:"first_response_hours"`
	ResolutionHours    domain.PriorityHours `json:"resolution_hours"`
	IsActive           *bool                `json:"is_active"`
	IsDefault          bool                 `json:"is_default"`
}

// SlaPolicyResponse response.
type SlaPolicyResponse struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description"`
	FirstResponseHours domain.PriorityHours `json:"first_response_hours"`
	ResolutionHours    domain.PriorityHours `json:"resolution_hours"`
	IsActive           bool                 `json:"is_active"`
	IsDefault          bool                 `json:"is_default"`
	CreatedAt          time.Time            `json:"created_at"`
	UpdatedAt          time.Time            `json:"updated_at"`
}

// EscalationRuleRequest payload for rule create/update.
type EscalationRuleRequest struct {
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	Conditions domain.RuleConditions `json:"conditions"`
	Actions    domain.RuleActions    `json:"actions"`
	IsActive   *bool                 `json:"is_active"`
}

// EscalationRuleResponse response.
type EscalationRuleResponse struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Priority   int                   `json:"priority"`
	Conditions domain.RuleConditions `json:"conditions"`
	Actions    domain.RuleActions    `json:"actions"`
	IsActive   bool                  `json:"is_active"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}
