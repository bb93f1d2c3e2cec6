package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestTicketOpen(t *testing.T) {
	for _, status := range OpenStatuses {
		ticket := Ticket{Status: status}
		assert.True(t, ticket.Open(), "status %s", status)
	}
	assert.False(t, (&Ticket{Status: TicketStatusResolved}).Open())
	assert.False(t, (&Ticket{Status: TicketStatusClosed}).Open())
}

func TestFirstResponseBreached(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)

	overdue := Ticket{SlaFirstResponseDueAt: timePtr(due)}
	assert.True(t, overdue.FirstResponseBreached(now))

	// A recorded first response makes the predicate permanently false,
	// even when the response itself came late.
	responded := Ticket{
		SlaFirstResponseDueAt: timePtr(due),
		FirstResponseAt:       timePtr(now),
	}
	assert.False(t, responded.FirstResponseBreached(now))

	noDeadline := Ticket{}
	assert.False(t, noDeadline.FirstResponseBreached(now))

	future := Ticket{SlaFirstResponseDueAt: timePtr(now.Add(time.Hour))}
	assert.False(t, future.FirstResponseBreached(now))
}

func TestResolutionBreached(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)

	overdue := Ticket{SlaResolutionDueAt: timePtr(due)}
	assert.True(t, overdue.ResolutionBreached(now))

	resolved := Ticket{
		SlaResolutionDueAt: timePtr(due),
		ResolvedAt:         timePtr(now),
	}
	assert.False(t, resolved.ResolutionBreached(now))
}

func TestWarningWindows(t *testing.T) {
	now := time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)

	inside := Ticket{SlaFirstResponseDueAt: timePtr(now.Add(30 * time.Minute))}
	assert.True(t, inside.FirstResponseWarning(now, time.Hour))

	outside := Ticket{SlaFirstResponseDueAt: timePtr(now.Add(2 * time.Hour))}
	assert.False(t, outside.FirstResponseWarning(now, time.Hour))

	// Past-due tickets belong to the breach pass, not the warning pass.
	past := Ticket{SlaFirstResponseDueAt: timePtr(now.Add(-time.Minute))}
	assert.False(t, past.FirstResponseWarning(now, time.Hour))

	resolution := Ticket{SlaResolutionDueAt: timePtr(now.Add(90 * time.Minute))}
	assert.True(t, resolution.ResolutionWarning(now, 2*time.Hour))
	assert.False(t, resolution.ResolutionWarning(now, time.Hour))
}

func TestUnassigned(t *testing.T) {
	empty := ""
	agent := "agent-1"
	assert.True(t, (&Ticket{}).Unassigned())
	assert.True(t, (&Ticket{AssignedTo: &empty}).Unassigned())
	assert.False(t, (&Ticket{AssignedTo: &agent}).Unassigned())
}

func TestHasTag(t *testing.T) {
	ticket := Ticket{Tags: []string{"vip", "billing"}}
	assert.True(t, ticket.HasTag("vip"))
	assert.False(t, ticket.HasTag("VIP"))
	assert.False(t, ticket.HasTag("urgent"))
}

func TestPriorityRank(t *testing.T) {
	assert.Greater(t, TicketPriorityCritical.Rank(), TicketPriorityUrgent.Rank())
	assert.Greater(t, TicketPriorityUrgent.Rank(), TicketPriorityLow.Rank())
}

func TestStatusAndPriorityValid(t *testing.T) {
	assert.True(t, TicketStatusWaitingOnCustomer.Valid())
	assert.False(t, TicketStatus("limbo").Valid())
	assert.True(t, TicketPriorityUrgent.Valid())
	assert.False(t, TicketPriority("extreme").Valid())
}
