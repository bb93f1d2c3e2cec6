package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen              TicketStatus = "open"
	TicketStatusInProgress        TicketStatus = "in_progress"
	TicketStatusWaitingOnCustomer TicketStatus = "waiting_on_customer"
	TicketStatusWaitingOnAgent    TicketStatus = "waiting_on_agent"
	TicketStatusEscalated         TicketStatus = "escalated"
	TicketStatusResolved          TicketStatus = "resolved"
	TicketStatusClosed            TicketStatus = "closed"
	TicketStatusReopened          TicketStatus = "reopened"
)

// OpenStatuses lists every status other than resolved and closed.
var OpenStatuses = []TicketStatus{
	TicketStatusOpen,
	TicketStatusInProgress,
	TicketStatusWaitingOnCustomer,
	TicketStatusWaitingOnAgent,
	TicketStatusEscalated,
	TicketStatusReopened,
}

// Valid reports whether the status is a known value.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusOpen, TicketStatusInProgress, TicketStatusWaitingOnCustomer,
		TicketStatusWaitingOnAgent, TicketStatusEscalated, TicketStatusResolved,
		TicketStatusClosed, TicketStatusReopened:
		return true
	}
	return false
}

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "low"
	TicketPriorityMedium   TicketPriority = "medium"
	TicketPriorityHigh     TicketPriority = "high"
	TicketPriorityUrgent   TicketPriority = "urgent"
	TicketPriorityCritical TicketPriority = "critical"
)

var priorityRank = map[TicketPriority]int{
	TicketPriorityLow:      0,
	TicketPriorityMedium:   1,
	TicketPriorityHigh:     2,
	TicketPriorityUrgent:   3,
	TicketPriorityCritical: 4,
}

// Rank returns the ordering value of a priority; higher is more severe.
func (p TicketPriority) Rank() int {
	return priorityRank[p]
}

// Valid reports whether the priority is a known value.
func (p TicketPriority) Valid() bool {
	_, ok := priorityRank[p]
	return ok
}

// Ticket is the aggregate for support requests.
type Ticket struct {
	ID           string
	Reference    string
	RequesterID  *string
	DepartmentID *string
	AssignedTo   *string
	Subject      string
	Description  string
	Status       TicketStatus
	Priority     TicketPriority
	Tags         []string

	SlaPolicyID           *string
	SlaFirstResponseDueAt *time.Time
	SlaResolutionDueAt    *time.Time
	SlaBreached           bool

	FirstResponseAt *time.Time
	ResolvedAt      *time.Time
	ClosedAt        *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the ticket is in an open-like status.
func (t *Ticket) Open() bool {
	return t.Status != TicketStatusResolved && t.Status != TicketStatusClosed
}

// FirstResponseBreached computes the live first-response breach predicate:
// a due date exists, no first response was recorded, and the due date has
// passed. A recorded first response makes this permanently false.
func (t *Ticket) FirstResponseBreached(now time.Time) bool {
	if t.SlaFirstResponseDueAt == nil || t.FirstResponseAt != nil {
		return false
	}
	return now.After(*t.SlaFirstResponseDueAt)
}

// ResolutionBreached computes the live resolution breach predicate.
func (t *Ticket) ResolutionBreached(now time.Time) bool {
	if t.SlaResolutionDueAt == nil || t.ResolvedAt != nil {
		return false
	}
	return now.After(*t.SlaResolutionDueAt)
}

// FirstResponseWarning reports whether the first-response due date falls
// within the warning lookahead window ending at the due date.
func (t *Ticket) FirstResponseWarning(now time.Time, lookahead time.Duration) bool {
	if t.SlaFirstResponseDueAt == nil || t.FirstResponseAt != nil {
		return false
	}
	due := *t.SlaFirstResponseDueAt
	return now.After(due.Add(-lookahead)) && !now.After(due)
}

// ResolutionWarning reports whether the resolution due date falls within
// the warning lookahead window ending at the due date.
func (t *Ticket) ResolutionWarning(now time.Time, lookahead time.Duration) bool {
	if t.SlaResolutionDueAt == nil || t.ResolvedAt != nil {
		return false
	}
	due := *t.SlaResolutionDueAt
	return now.After(due.Add(-lookahead)) && !now.After(due)
}

// Unassigned reports whether no agent currently owns the ticket.
func (t *Ticket) Unassigned() bool {
	return t.AssignedTo == nil || *t.AssignedTo == ""
}

// HasTag reports whether the ticket carries the named tag.
func (t *Ticket) HasTag(name string) bool {
	for _, tag := range t.Tags {
		if tag == name {
			return true
		}
	}
	return false
}
