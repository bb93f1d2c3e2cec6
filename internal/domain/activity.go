package domain

import "time"

// ActivityAction names a logical change recorded on a ticket's audit trail.
type ActivityAction string

const (
	ActivityTicketCreated     ActivityAction = "ticket_created"
	ActivityStatusChanged     ActivityAction = "status_changed"
	ActivityTicketAssigned    ActivityAction = "ticket_assigned"
	ActivityTicketUnassigned  ActivityAction = "ticket_unassigned"
	ActivityReplyAdded        ActivityAction = "reply_added"
	ActivityInternalNoteAdded ActivityAction = "internal_note_added"
	ActivityTagsAdded         ActivityAction = "tags_added"
	ActivityDepartmentChanged ActivityAction = "department_changed"
	ActivityPriorityChanged   ActivityAction = "priority_changed"
	ActivitySlaBreached       ActivityAction = "sla_breached"
	ActivityTicketEscalated   ActivityAction = "ticket_escalated"
)

// TicketActivity is an append-only audit trail entry. A nil CauserID means
// the change was system-caused (sweeps, escalation rules).
type TicketActivity struct {
	ID        string
	TicketID  string
	Action    ActivityAction
	CauserID  *string
	Details   map[string]any
	CreatedAt time.Time
}

// System reports whether the activity was caused by the system itself.
func (a *TicketActivity) System() bool {
	return a.CauserID == nil
}
