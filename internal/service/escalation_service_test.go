package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
)

func intPtr(n int) *int { return &n }

func priorityPtr(p domain.TicketPriority) *domain.TicketPriority { return &p }

func statusPtr(s domain.TicketStatus) *domain.TicketStatus { return &s }

func TestEvaluateTicketFirstMatchWins(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "contested"})
	require.NoError(t, err)

	f.store.addRule(domain.EscalationRule{
		Name:     "winner",
		Priority: 1,
		Actions:  domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityHigh)},
		IsActive: true,
	})
	f.store.addRule(domain.EscalationRule{
		Name:     "runner up",
		Priority: 2,
		Actions:  domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityCritical)},
		IsActive: true,
	})

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Equal(t, "winner", fired.Name)

	updated := f.store.ticketByID(ticket.ID)
	assert.Equal(t, domain.TicketPriorityHigh, updated.Priority)
	assert.Len(t, f.store.activitiesFor(ticket.ID, domain.ActivityTicketEscalated), 1)
}

func TestEvaluateTicketSkipsInactiveRules(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "quiet"})
	require.NoError(t, err)

	f.store.addRule(domain.EscalationRule{
		Name:     "dormant",
		Priority: 1,
		Actions:  domain.RuleActions{ChangeStatus: statusPtr(domain.TicketStatusEscalated)},
	})

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.Nil(t, fired)
	assert.Equal(t, domain.TicketStatusOpen, f.store.ticketByID(ticket.ID).Status)
}

func TestEvaluateTicketSkipsClosedTickets(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "finished"})
	require.NoError(t, err)
	closed, err := f.tickets.TransitionStatus(context.Background(), ticket.ID, domain.TicketStatusClosed, nil, "")
	require.NoError(t, err)

	f.store.addRule(domain.EscalationRule{Name: "catch all", Priority: 1, IsActive: true,
		Actions: domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityCritical)}})

	fired, err := f.escalation.EvaluateTicket(context.Background(), closed)
	require.NoError(t, err)
	assert.Nil(t, fired)
}

func TestConditionStatusAndPriority(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.store.addRule(domain.EscalationRule{
		Name:     "urgent open only",
		Priority: 1,
		Conditions: domain.RuleConditions{
			Statuses:   []domain.TicketStatus{domain.TicketStatusOpen},
			Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent},
		},
		Actions:  domain.RuleActions{ChangeStatus: statusPtr(domain.TicketStatusEscalated)},
		IsActive: true,
	})

	match, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "urgent", Priority: domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)
	miss, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "mild", Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)

	fired, err := f.escalation.EvaluateTicket(context.Background(), match)
	require.NoError(t, err)
	assert.NotNil(t, fired)

	fired, err = f.escalation.EvaluateTicket(context.Background(), miss)
	require.NoError(t, err)
	assert.Nil(t, fired)
}

func TestConditionSlaBreachIsLive(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 1},
		nil,
	)
	f.store.addRule(domain.EscalationRule{
		Name:       "breach watcher",
		Priority:   1,
		Conditions: domain.RuleConditions{SlaBreached: true},
		Actions:    domain.RuleActions{ChangeStatus: statusPtr(domain.TicketStatusEscalated)},
		IsActive:   true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "overdue soon"})
	require.NoError(t, err)

	// Not yet overdue.
	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.Nil(t, fired)

	// Past the due date the condition holds even though no sweep flipped
	// the stored flag yet.
	f.clock.Advance(2 * time.Hour)
	require.False(t, f.store.ticketByID(ticket.ID).SlaBreached)
	fired, err = f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.NotNil(t, fired)
}

func TestConditionUnassignedDuration(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	agent := f.store.addAgent(domain.Agent{Name: "Dana", Email: "dana@example.com"})
	f.store.addRule(domain.EscalationRule{
		Name:       "stale unassigned",
		Priority:   1,
		Conditions: domain.RuleConditions{UnassignedForMinutes: intPtr(60)},
		Actions:    domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityHigh)},
		IsActive:   true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "nobody home"})
	require.NoError(t, err)

	// Too young.
	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.Nil(t, fired)

	f.clock.Advance(2 * time.Hour)
	fired, err = f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	assert.NotNil(t, fired)

	// An assigned ticket never matches, whatever its age.
	other, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "owned"})
	require.NoError(t, err)
	assigned, err := f.tickets.Assign(context.Background(), other.ID, agent.ID, nil)
	require.NoError(t, err)
	f.clock.Advance(2 * time.Hour)
	fired, err = f.escalation.EvaluateTicket(context.Background(), assigned)
	require.NoError(t, err)
	assert.Nil(t, fired)
}

func TestConditionNoResponseDuration(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	agent := f.store.addAgent(domain.Agent{Name: "Dana", Email: "dana@example.com"})
	f.store.addRule(domain.EscalationRule{
		Name:       "silence",
		Priority:   1,
		Conditions: domain.RuleConditions{NoResponseForMinutes: intPtr(60)},
		Actions:    domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityHigh)},
		IsActive:   true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "crickets"})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)

	// A fresh public reply resets the silence clock.
	fresh, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "answered"})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	_, err = f.tickets.AddReply(context.Background(), ReplyInput{
		TicketID: fresh.ID, AuthorID: &agent.ID, AuthorIsAgent: true, Body: "hello",
	})
	require.NoError(t, err)
	fired, err = f.escalation.EvaluateTicket(context.Background(), f.store.ticketByID(fresh.ID))
	require.NoError(t, err)
	assert.Nil(t, fired)

	// An internal note does not count as a response.
	noted, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "noted"})
	require.NoError(t, err)
	f.clock.Advance(90 * time.Minute)
	_, err = f.tickets.AddReply(context.Background(), ReplyInput{
		TicketID: noted.ID, AuthorID: &agent.ID, AuthorIsAgent: true, Body: "internal", IsInternal: true,
	})
	require.NoError(t, err)
	fired, err = f.escalation.EvaluateTicket(context.Background(), f.store.ticketByID(noted.ID))
	require.NoError(t, err)
	assert.NotNil(t, fired)
}

func TestConditionDepartmentScope(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	billing := f.store.addDepartment(domain.Department{Name: "Billing"})
	support := f.store.addDepartment(domain.Department{Name: "Support"})
	f.store.addRule(domain.EscalationRule{
		Name:       "billing only",
		Priority:   1,
		Conditions: domain.RuleConditions{DepartmentIDs: []string{billing.ID}},
		Actions:    domain.RuleActions{ChangePriority: priorityPtr(domain.TicketPriorityHigh)},
		IsActive:   true,
	})

	in, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "billing issue", DepartmentID: &billing.ID,
	})
	require.NoError(t, err)
	out, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "support issue", DepartmentID: &support.ID,
	})
	require.NoError(t, err)
	loose, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "no department"})
	require.NoError(t, err)

	fired, err := f.escalation.EvaluateTicket(context.Background(), in)
	require.NoError(t, err)
	assert.NotNil(t, fired)
	fired, err = f.escalation.EvaluateTicket(context.Background(), out)
	require.NoError(t, err)
	assert.Nil(t, fired)
	fired, err = f.escalation.EvaluateTicket(context.Background(), loose)
	require.NoError(t, err)
	assert.Nil(t, fired)
}

func TestExecuteAppliesFullActionBundle(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	agent := f.store.addAgent(domain.Agent{Name: "Dana", Email: "dana@example.com"})
	dept := f.store.addDepartment(domain.Department{Name: "Tier 2"})
	note := "Escalated for senior review"
	rule := f.store.addRule(domain.EscalationRule{
		Name:     "the works",
		Priority: 1,
		Actions: domain.RuleActions{
			ChangePriority:         priorityPtr(domain.TicketPriorityCritical),
			ChangeStatus:           statusPtr(domain.TicketStatusEscalated),
			AssignToAgentID:        &agent.ID,
			AssignToDepartmentID:   &dept.ID,
			AddTags:                []string{"escalated"},
			AddInternalNote:        &note,
			SendNotification:       true,
			NotificationRecipients: []string{"oncall@example.com"},
		},
		IsActive: true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "everything at once"})
	require.NoError(t, err)

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)

	updated := f.store.ticketByID(ticket.ID)
	assert.Equal(t, domain.TicketPriorityCritical, updated.Priority)
	assert.Equal(t, domain.TicketStatusEscalated, updated.Status)
	require.NotNil(t, updated.AssignedTo)
	assert.Equal(t, agent.ID, *updated.AssignedTo)
	require.NotNil(t, updated.DepartmentID)
	assert.Equal(t, dept.ID, *updated.DepartmentID)
	assert.Contains(t, updated.Tags, "escalated")

	// The note lands as an internal system reply, with no separate
	// internal_note_added activity.
	replies, err := f.repos.Replies.ListByTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.True(t, replies[0].IsInternal)
	assert.True(t, replies[0].IsSystem)
	assert.Nil(t, replies[0].AuthorID)
	assert.Equal(t, note, replies[0].Body)
	assert.Empty(t, f.store.activitiesFor(ticket.ID, domain.ActivityInternalNoteAdded))
	assert.Empty(t, f.store.activitiesFor(ticket.ID, domain.ActivityTagsAdded))

	escalated := f.store.activitiesFor(ticket.ID, domain.ActivityTicketEscalated)
	require.Len(t, escalated, 1)
	assert.Equal(t, rule.ID, escalated[0].Details["rule_id"])
	assert.Nil(t, escalated[0].CauserID)

	published := f.dispatcher.EventsOfType(events.EventTicketEscalated)
	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.TicketEscalatedPayload)
	require.True(t, ok)
	assert.Equal(t, rule.ID, payload.RuleID)
	assert.Equal(t, []string{"oncall@example.com"}, payload.Recipients)
	assert.Contains(t, payload.ActionsApplied, "change_priority")
}

func TestExecuteDanglingAgentIsNoOp(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	missing := "gone-agent"
	f.store.addRule(domain.EscalationRule{
		Name:     "points nowhere",
		Priority: 1,
		Actions: domain.RuleActions{
			AssignToAgentID: &missing,
			ChangeStatus:    statusPtr(domain.TicketStatusEscalated),
		},
		IsActive: true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "dangling"})
	require.NoError(t, err)

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)

	updated := f.store.ticketByID(ticket.ID)
	assert.Nil(t, updated.AssignedTo)
	assert.Equal(t, domain.TicketStatusEscalated, updated.Status)
	assert.Empty(t, f.store.activitiesFor(ticket.ID, domain.ActivityTicketAssigned))
}

func TestExecuteWithoutSendNotificationPublishesNothing(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.store.addRule(domain.EscalationRule{
		Name:     "quiet escalation",
		Priority: 1,
		Actions:  domain.RuleActions{ChangeStatus: statusPtr(domain.TicketStatusEscalated)},
		IsActive: true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "hush"})
	require.NoError(t, err)

	fired, err := f.escalation.EvaluateTicket(context.Background(), ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)
	assert.Empty(t, f.dispatcher.EventsOfType(events.EventTicketEscalated))
}

func TestEvaluateAllSummary(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.store.addRule(domain.EscalationRule{
		Name:       "urgent sweep",
		Priority:   1,
		Conditions: domain.RuleConditions{Priorities: []domain.TicketPriority{domain.TicketPriorityUrgent}},
		Actions:    domain.RuleActions{ChangeStatus: statusPtr(domain.TicketStatusEscalated)},
		IsActive:   true,
	})

	_, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "hot", Priority: domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)
	_, err = f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "cold", Priority: domain.TicketPriorityLow,
	})
	require.NoError(t, err)
	done, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "over", Priority: domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)
	_, err = f.tickets.TransitionStatus(context.Background(), done.ID, domain.TicketStatusResolved, nil, "")
	require.NoError(t, err)

	summary, err := f.escalation.EvaluateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Evaluated)
	assert.Equal(t, 1, summary.Escalated)
	assert.Equal(t, 0, summary.Failed)
}

func TestBreachedTicketEscalatesEndToEnd(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityUrgent: 1},
		domain.PriorityHours{domain.TicketPriorityUrgent: 8},
	)
	f.store.addRule(domain.EscalationRule{
		Name:     "urgent breach",
		Priority: 1,
		Conditions: domain.RuleConditions{
			SlaBreached: true,
			Priorities:  []domain.TicketPriority{domain.TicketPriorityUrgent},
		},
		Actions: domain.RuleActions{
			ChangePriority:   priorityPtr(domain.TicketPriorityCritical),
			ChangeStatus:     statusPtr(domain.TicketStatusEscalated),
			SendNotification: true,
		},
		IsActive: true,
	})

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{
		Subject: "production down", Priority: domain.TicketPriorityUrgent,
	})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	breaches, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	require.Len(t, breaches, 1)

	fired, err := f.escalation.EvaluateTicket(context.Background(), &breaches[0].Ticket)
	require.NoError(t, err)
	require.NotNil(t, fired)

	updated := f.store.ticketByID(ticket.ID)
	assert.Equal(t, domain.TicketPriorityCritical, updated.Priority)
	assert.Equal(t, domain.TicketStatusEscalated, updated.Status)
	assert.True(t, updated.SlaBreached)

	assert.Len(t, f.store.activitiesFor(ticket.ID, domain.ActivityTicketEscalated), 1)
	priorityChanges := f.store.activitiesFor(ticket.ID, domain.ActivityPriorityChanged)
	require.Len(t, priorityChanges, 1)
	assert.Equal(t, escalationReason, priorityChanges[0].Details["reason"])

	assert.Len(t, f.dispatcher.EventsOfType(events.EventSlaBreached), 1)
	assert.Len(t, f.dispatcher.EventsOfType(events.EventTicketEscalated), 1)
}
