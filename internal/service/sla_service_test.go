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

func TestCheckBreachesMarksOverdueFirstResponse(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 1},
		domain.PriorityHours{domain.TicketPriorityMedium: 24},
	)
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "ignored"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	breaches, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, ticket.ID, breaches[0].Ticket.ID)
	assert.Equal(t, BreachFirstResponse, breaches[0].Type)

	updated := f.store.ticketByID(ticket.ID)
	assert.True(t, updated.SlaBreached)
	require.Len(t, f.store.activitiesFor(ticket.ID, domain.ActivitySlaBreached), 1)

	published := f.dispatcher.EventsOfType(events.EventSlaBreached)
	require.Len(t, published, 1)
	payload, ok := published[0].Payload.(events.SlaBreachedPayload)
	require.True(t, ok)
	assert.Equal(t, string(BreachFirstResponse), payload.BreachType)
}

func TestCheckBreachesIsIdempotent(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 1},
		nil,
	)
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "ignored"})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Hour)
	first, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)

	// The flag is monotonic; a second sweep finds nothing new.
	second, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, f.store.activitiesFor(ticket.ID, domain.ActivitySlaBreached), 1)
	assert.Len(t, f.dispatcher.EventsOfType(events.EventSlaBreached), 1)
}

func TestCheckBreachesMarksOverdueResolution(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		nil,
		domain.PriorityHours{domain.TicketPriorityMedium: 4},
	)
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "lingering"})
	require.NoError(t, err)

	f.clock.Advance(5 * time.Hour)
	breaches, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	require.Len(t, breaches, 1)
	assert.Equal(t, ticket.ID, breaches[0].Ticket.ID)
	assert.Equal(t, BreachResolution, breaches[0].Type)
}

func TestCompletionBeforeDueDateNeverBreaches(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 2},
		domain.PriorityHours{domain.TicketPriorityMedium: 4},
	)
	agent := f.store.addAgent(domain.Agent{Name: "Dana", Email: "dana@example.com"})
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "handled in time"})
	require.NoError(t, err)

	_, err = f.tickets.AddReply(context.Background(), ReplyInput{
		TicketID:      ticket.ID,
		AuthorID:      &agent.ID,
		AuthorIsAgent: true,
		Body:          "On it",
	})
	require.NoError(t, err)
	_, err = f.tickets.TransitionStatus(context.Background(), ticket.ID, domain.TicketStatusResolved, &agent.ID, "")
	require.NoError(t, err)

	// Both due dates are long past, but both milestones were satisfied.
	f.clock.Advance(24 * time.Hour)
	breaches, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, breaches)
	assert.False(t, f.store.ticketByID(ticket.ID).SlaBreached)
}

func TestCheckWarningsWindows(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 0.5},
		domain.PriorityHours{domain.TicketPriorityMedium: 1.5},
	)
	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "approaching"})
	require.NoError(t, err)

	// First response due in 30m (inside the 1h window), resolution due in
	// 90m (inside the 2h window).
	f.clock.Advance(time.Second)
	warnings, err := f.sla.CheckWarnings(context.Background())
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	types := []WarningType{warnings[0].Type, warnings[1].Type}
	assert.ElementsMatch(t, []WarningType{WarningFirstResponse, WarningResolution}, types)

	// The warning pass is read-only.
	updated := f.store.ticketByID(ticket.ID)
	assert.False(t, updated.SlaBreached)
	assert.Empty(t, f.store.activitiesFor(ticket.ID, domain.ActivitySlaBreached))

	assert.Len(t, f.dispatcher.EventsOfType(events.EventSlaWarning), 2)
}

func TestCheckWarningsExcludesFarDueDates(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 8},
		domain.PriorityHours{domain.TicketPriorityMedium: 48},
	)
	_, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "plenty of time"})
	require.NoError(t, err)

	warnings, err := f.sla.CheckWarnings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestSlaDisabledSkipsSweeps(t *testing.T) {
	cfg := wallClockSlaConfig()
	cfg.Enabled = false
	f := newFixture(cfg)
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 1},
		nil,
	)

	ticket, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "untracked"})
	require.NoError(t, err)
	assert.Nil(t, ticket.SlaPolicyID)

	f.clock.Advance(24 * time.Hour)
	breaches, err := f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	assert.Empty(t, breaches)

	warnings, err := f.sla.CheckWarnings(context.Background())
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestSlaStats(t *testing.T) {
	f := newFixture(wallClockSlaConfig())
	f.defaultPolicy(
		domain.PriorityHours{domain.TicketPriorityMedium: 1},
		domain.PriorityHours{domain.TicketPriorityMedium: 2},
	)
	agent := f.store.addAgent(domain.Agent{Name: "Dana", Email: "dana@example.com"})

	// Ticket one: responded and resolved on time.
	one, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "on time"})
	require.NoError(t, err)
	_, err = f.tickets.AddReply(context.Background(), ReplyInput{
		TicketID: one.ID, AuthorID: &agent.ID, AuthorIsAgent: true, Body: "quick",
	})
	require.NoError(t, err)
	_, err = f.tickets.TransitionStatus(context.Background(), one.ID, domain.TicketStatusResolved, &agent.ID, "")
	require.NoError(t, err)

	// Ticket two: breached.
	two, err := f.tickets.Create(context.Background(), CreateTicketInput{Subject: "neglected"})
	require.NoError(t, err)
	f.clock.Advance(3 * time.Hour)
	_, err = f.sla.CheckBreaches(context.Background())
	require.NoError(t, err)
	require.True(t, f.store.ticketByID(two.ID).SlaBreached)

	stats, err := f.sla.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalWithSla)
	assert.Equal(t, int64(1), stats.TotalBreached)
	assert.Equal(t, int64(1), stats.FirstResponseOnTime)
	assert.Equal(t, int64(1), stats.ResolutionOnTime)
	assert.InDelta(t, 50.0, stats.BreachRate, 0.01)
	assert.InDelta(t, 100.0, stats.FirstResponseOnTimeRate, 0.01)
	assert.InDelta(t, 100.0, stats.ResolutionOnTimeRate, 0.01)
}
