package domain

import "time"

// RuleConditions is the structured predicate set of an escalation rule.
// Every field is optional; an absent predicate is vacuously true and the
// rule matches when the conjunction of the present predicates holds.
type RuleConditions struct {
	Statuses             []TicketStatus   `json:"status,omitempty"`
	Priorities           []TicketPriority `json:"priority,omitempty"`
	SlaBreached          bool             `json:"sla_breached,omitempty"`
	UnassignedForMinutes *int             `json:"unassigned_for_minutes,omitempty"`
	NoResponseForMinutes *int             `json:"no_response_for_minutes,omitempty"`
	DepartmentIDs        []string         `json:"department_ids,omitempty"`
}

// RuleActions is the structured operation set applied when a rule matches.
// Only the operations present are executed.
type RuleActions struct {
	ChangePriority         *TicketPriority `json:"change_priority,omitempty"`
	ChangeStatus           *TicketStatus   `json:"change_status,omitempty"`
	AssignToAgentID        *string         `json:"assign_to_agent_id,omitempty"`
	AssignToDepartmentID   *string         `json:"assign_to_department_id,omitempty"`
	AddTags                []string        `json:"add_tags,omitempty"`
	AddInternalNote        *string         `json:"add_internal_note,omitempty"`
	SendNotification       bool            `json:"send_notification,omitempty"`
	NotificationRecipients []string        `json:"notification_recipients,omitempty"`
}

// Applied lists the names of the operations present in the action set,
// recorded on the ticket_escalated activity.
func (a RuleActions) Applied() []string {
	var applied []string
	if a.ChangePriority != nil {
		applied = append(applied, "change_priority")
	}
	if a.ChangeStatus != nil {
		applied = append(applied, "change_status")
	}
	if a.AssignToAgentID != nil {
		applied = append(applied, "assign_to_agent_id")
	}
	if a.AssignToDepartmentID != nil {
		applied = append(applied, "assign_to_department_id")
	}
	if len(a.AddTags) > 0 {
		applied = append(applied, "add_tags")
	}
	if a.AddInternalNote != nil {
		applied = append(applied, "add_internal_note")
	}
	if a.SendNotification {
		applied = append(applied, "send_notification")
	}
	return applied
}

// EscalationRule pairs a condition set with an action bundle. Rules are
// evaluated ascending by Priority (lower value first), created_at as
// tiebreak, and only the first match applies per ticket per pass.
type EscalationRule struct {
	ID         string
	Name       string
	Priority   int
	Conditions RuleConditions
	Actions    RuleActions
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ConditionInput carries the live facts a rule condition is evaluated
// against. LastPublicReplyAt is nil when the ticket has no public reply.
type ConditionInput struct {
	Now               time.Time
	LastPublicReplyAt *time.Time
}

// Matches evaluates the rule's condition conjunction against a ticket.
// Inactive rules never match.
func (r *EscalationRule) Matches(t *Ticket, in ConditionInput) bool {
	if !r.IsActive {
		return false
	}
	c := r.Conditions
	return c.checkStatus(t) &&
		c.checkPriority(t) &&
		c.checkSlaBreach(t, in.Now) &&
		c.checkUnassignedDuration(t, in.Now) &&
		c.checkNoResponseDuration(t, in) &&
		c.checkDepartment(t)
}

func (c RuleConditions) checkStatus(t *Ticket) bool {
	if len(c.Statuses) == 0 {
		return true
	}
	for _, s := range c.Statuses {
		if t.Status == s {
			return true
		}
	}
	return false
}

func (c RuleConditions) checkPriority(t *Ticket) bool {
	if len(c.Priorities) == 0 {
		return true
	}
	for _, p := range c.Priorities {
		if t.Priority == p {
			return true
		}
	}
	return false
}

// checkSlaBreach requires a live breach computation, not the stored flag.
func (c RuleConditions) checkSlaBreach(t *Ticket, now time.Time) bool {
	if !c.SlaBreached {
		return true
	}
	return t.FirstResponseBreached(now) || t.ResolutionBreached(now)
}

func (c RuleConditions) checkUnassignedDuration(t *Ticket, now time.Time) bool {
	if c.UnassignedForMinutes == nil {
		return true
	}
	if !t.Unassigned() {
		return false
	}
	cutoff := now.Add(-time.Duration(*c.UnassignedForMinutes) * time.Minute)
	return t.CreatedAt.Before(cutoff)
}

func (c RuleConditions) checkNoResponseDuration(t *Ticket, in ConditionInput) bool {
	if c.NoResponseForMinutes == nil {
		return true
	}
	last := t.CreatedAt
	if in.LastPublicReplyAt != nil {
		last = *in.LastPublicReplyAt
	}
	cutoff := in.Now.Add(-time.Duration(*c.NoResponseForMinutes) * time.Minute)
	return last.Before(cutoff)
}

func (c RuleConditions) checkDepartment(t *Ticket) bool {
	if len(c.DepartmentIDs) == 0 {
		return true
	}
	if t.DepartmentID == nil {
		return false
	}
	for _, id := range c.DepartmentIDs {
		if *t.DepartmentID == id {
			return true
		}
	}
	return false
}
