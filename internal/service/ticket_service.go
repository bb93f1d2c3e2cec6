package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/repository"
	apperrors "github.com/spec-kit/helpdesk-core/pkg/util"
)

// TicketService is the ticket state machine: it validates and applies
// status transitions, records their side effects, and appends exactly one
// activity per logical change. Each operation is one atomic unit of work;
// events are published only after the unit commits.
type TicketService struct {
	tx         repository.TxManager
	repos      repository.Repositories
	sla        *SlaService
	dispatcher events.Dispatcher
	clock      func() time.Time
}

// TicketDeps bundles dependencies for the ticket service.
type TicketDeps struct {
	Tx         repository.TxManager
	Repos      repository.Repositories
	Sla        *SlaService
	Dispatcher events.Dispatcher
	Clock      func() time.Time
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDeps) *TicketService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TicketService{
		tx:         deps.Tx,
		repos:      deps.Repos,
		sla:        deps.Sla,
		dispatcher: deps.Dispatcher,
		clock:      clock,
	}
}

// CreateTicketInput describes ticket creation payload.
type CreateTicketInput struct {
	RequesterID  *string
	DepartmentID *string
	Subject      string
	Description  string
	Priority     domain.TicketPriority
	Tags         []string
}

// ReplyInput describes a reply to a ticket thread.
type ReplyInput struct {
	TicketID      string
	AuthorID      *string
	AuthorIsAgent bool
	Body          string
	IsInternal    bool
	IsSystem      bool
}

// Create opens a new ticket, attaches the applicable SLA policy and logs
// the creation, all in one unit of work.
func (s *TicketService) Create(ctx context.Context, input CreateTicketInput) (*domain.Ticket, error) {
	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, apperrors.NewValidationError("subject required", nil)
	}
	priority := input.Priority
	if priority == "" {
		priority = domain.TicketPriorityMedium
	}
	if !priority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": priority})
	}

	ticket := &domain.Ticket{
		Reference:    generateReference(s.clock()),
		RequesterID:  input.RequesterID,
		DepartmentID: input.DepartmentID,
		Subject:      subject,
		Description:  strings.TrimSpace(input.Description),
		Status:       domain.TicketStatusOpen,
		Priority:     priority,
		Tags:         input.Tags,
	}

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		if s.sla != nil {
			if err := s.sla.AttachPolicy(ctx, r, ticket); err != nil {
				return err
			}
		}
		if err := r.Tickets.Create(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityTicketCreated,
			CauserID: input.RequesterID,
			Details:  map[string]any{"subject": ticket.Subject},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventTicketCreated,
		Ticket:  events.Snapshot(ticket),
		ActorID: input.RequesterID,
	})
	return ticket, nil
}

// Assign hands the ticket to an agent and moves it to in_progress.
func (s *TicketService) Assign(ctx context.Context, ticketID, agentID string, actorID *string) (*domain.Ticket, error) {
	var ticket *domain.Ticket
	var payload events.TicketAssignedPayload

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Open() {
			return apperrors.NewConflict("ticket is not open", map[string]any{"status": ticket.Status})
		}
		agent, err := r.Agents.GetByID(ctx, agentID)
		if err != nil {
			return apperrors.NewNotFound("agent", map[string]any{"agent_id": agentID})
		}

		payload = events.TicketAssignedPayload{FromAgentID: ticket.AssignedTo, ToAgentID: &agent.ID}
		ticket.AssignedTo = &agent.ID
		ticket.Status = domain.TicketStatusInProgress
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityTicketAssigned,
			CauserID: actorID,
			Details: map[string]any{
				"from_agent_id": payload.FromAgentID,
				"to_agent_id":   agent.ID,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventTicketAssigned,
		Ticket:  events.Snapshot(ticket),
		ActorID: actorID,
		Payload: payload,
	})
	return ticket, nil
}

// Unassign clears the assignee and returns the ticket to open.
func (s *TicketService) Unassign(ctx context.Context, ticketID string, actorID *string) (*domain.Ticket, error) {
	var ticket *domain.Ticket

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		if !ticket.Open() {
			return apperrors.NewConflict("ticket is not open", map[string]any{"status": ticket.Status})
		}
		fromAgentID := ticket.AssignedTo
		ticket.AssignedTo = nil
		ticket.Status = domain.TicketStatusOpen
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityTicketUnassigned,
			CauserID: actorID,
			Details:  map[string]any{"from_agent_id": fromAgentID},
		})
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// TransitionStatus applies a status change with its side-effect set:
// resolved stamps resolved_at, closed stamps closed_at, reopened clears
// both. Any status-to-status jump is trusted; only side effects are
// enforced. Due dates are deliberately not recomputed on reopen: the
// original resolution commitment is preserved.
func (s *TicketService) TransitionStatus(ctx context.Context, ticketID string, newStatus domain.TicketStatus, actorID *string, note string) (*domain.Ticket, error) {
	if !newStatus.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": newStatus})
	}

	var ticket *domain.Ticket
	var payload events.StatusChangedPayload

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		payload = events.StatusChangedPayload{From: ticket.Status, To: newStatus, Note: note}
		applyStatusSideEffects(ticket, newStatus, s.clock())
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityStatusChanged,
			CauserID: actorID,
			Details: map[string]any{
				"from": payload.From,
				"to":   payload.To,
				"note": note,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventStatusChanged,
		Ticket:  events.Snapshot(ticket),
		ActorID: actorID,
		Payload: payload,
	})
	return ticket, nil
}

// applyStatusSideEffects stamps or clears the lifecycle timestamps that go
// with a status change. Reopening clears resolved_at and closed_at but
// leaves the SLA due dates as they were computed at creation.
func applyStatusSideEffects(ticket *domain.Ticket, newStatus domain.TicketStatus, now time.Time) {
	switch newStatus {
	case domain.TicketStatusResolved:
		if ticket.ResolvedAt == nil {
			ticket.ResolvedAt = &now
		}
	case domain.TicketStatusClosed:
		if ticket.ClosedAt == nil {
			ticket.ClosedAt = &now
		}
	case domain.TicketStatusReopened:
		ticket.ResolvedAt = nil
		ticket.ClosedAt = nil
	}
	ticket.Status = newStatus
}

// AddReply appends a message to the ticket thread. A public agent reply on
// an open or in-progress ticket parks it waiting_on_customer and stamps
// first_response_at on the first one; a public requester reply on a
// waiting_on_customer ticket flips it to waiting_on_agent.
func (s *TicketService) AddReply(ctx context.Context, input ReplyInput) (*domain.Reply, error) {
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, apperrors.NewValidationError("body required", nil)
	}

	var ticket *domain.Ticket
	reply := &domain.Reply{
		TicketID:   input.TicketID,
		AuthorID:   input.AuthorID,
		Body:       body,
		IsInternal: input.IsInternal,
		IsSystem:   input.IsSystem,
	}

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, input.TicketID)
		if err != nil {
			return err
		}
		if err := r.Replies.Create(ctx, reply); err != nil {
			return err
		}

		if !input.IsInternal {
			if input.AuthorIsAgent {
				if ticket.FirstResponseAt == nil {
					now := s.clock()
					ticket.FirstResponseAt = &now
				}
				if ticket.Status == domain.TicketStatusOpen || ticket.Status == domain.TicketStatusInProgress {
					ticket.Status = domain.TicketStatusWaitingOnCustomer
				}
			} else if ticket.Status == domain.TicketStatusWaitingOnCustomer {
				ticket.Status = domain.TicketStatusWaitingOnAgent
			}
		}
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}

		action := domain.ActivityReplyAdded
		if input.IsInternal {
			action = domain.ActivityInternalNoteAdded
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   action,
			CauserID: input.AuthorID,
			Details:  map[string]any{"reply_id": reply.ID},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventReplyAdded,
		Ticket:  events.Snapshot(ticket),
		ActorID: input.AuthorID,
		Payload: events.ReplyAddedPayload{
			ReplyID:    reply.ID,
			AuthorID:   reply.AuthorID,
			IsInternal: reply.IsInternal,
		},
	})
	return reply, nil
}

// ChangePriority updates the priority and recomputes due dates for any
// milestone not yet satisfied, using the new priority's targets from now.
func (s *TicketService) ChangePriority(ctx context.Context, ticketID string, newPriority domain.TicketPriority, actorID *string) (*domain.Ticket, error) {
	if !newPriority.Valid() {
		return nil, apperrors.NewValidationError("unknown priority", map[string]any{"priority": newPriority})
	}

	var ticket *domain.Ticket
	var payload events.PriorityChangedPayload

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		payload = events.PriorityChangedPayload{From: ticket.Priority, To: newPriority}
		ticket.Priority = newPriority
		if s.sla != nil {
			if err := s.sla.RecalculateForTicket(ctx, r, ticket); err != nil {
				return err
			}
		}
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityPriorityChanged,
			CauserID: actorID,
			Details: map[string]any{
				"from": payload.From,
				"to":   payload.To,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:    events.EventPriorityChanged,
		Ticket:  events.Snapshot(ticket),
		ActorID: actorID,
		Payload: payload,
	})
	return ticket, nil
}

// AddTags attaches tags by name, creating missing ones. Attaching an
// already-present tag is a no-op; the activity lists only new names.
func (s *TicketService) AddTags(ctx context.Context, ticketID string, names []string, actorID *string) (*domain.Ticket, error) {
	var ticket *domain.Ticket

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}
		added, err := attachTags(ctx, r, ticket, names)
		if err != nil {
			return err
		}
		if len(added) == 0 {
			return nil
		}
		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: ticket.ID,
			Action:   domain.ActivityTagsAdded,
			CauserID: actorID,
			Details:  map[string]any{"tag_names": added},
		})
	})
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

// GetByID fetches a ticket.
func (s *TicketService) GetByID(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	return s.repos.Tickets.GetByID(ctx, ticketID)
}

// List returns tickets matching the filter.
func (s *TicketService) List(ctx context.Context, filter repository.TicketFilter) ([]domain.Ticket, error) {
	return s.repos.Tickets.ListWithFilter(ctx, filter)
}

// Thread returns the replies on a ticket, optionally hiding internal ones.
func (s *TicketService) Thread(ctx context.Context, ticketID string, includeInternal bool) ([]domain.Reply, error) {
	replies, err := s.repos.Replies.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if includeInternal {
		return replies, nil
	}
	visible := make([]domain.Reply, 0, len(replies))
	for _, reply := range replies {
		if reply.Public() {
			visible = append(visible, reply)
		}
	}
	return visible, nil
}

// History returns the audit trail for a ticket.
func (s *TicketService) History(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketActivity, error) {
	return s.repos.Activities.ListByTicket(ctx, ticketID, limit, offset)
}

// ListResolvedBefore returns tickets resolved before the cutoff, for the
// auto-close sweep.
func (s *TicketService) ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	return s.repos.Tickets.ListResolvedBefore(ctx, cutoff)
}

// Follow subscribes a user to ticket notifications.
func (s *TicketService) Follow(ctx context.Context, ticketID, userID string) error {
	return s.repos.Followers.Follow(ctx, ticketID, userID)
}

// Unfollow removes a user from the ticket's follower set.
func (s *TicketService) Unfollow(ctx context.Context, ticketID, userID string) error {
	return s.repos.Followers.Unfollow(ctx, ticketID, userID)
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock()
	}
	s.dispatcher.Publish(ctx, event)
}

// attachTags resolves names against the tag registry and appends the
// missing ones to the ticket's tag set, returning the names actually added.
func attachTags(ctx context.Context, r repository.Repositories, ticket *domain.Ticket, names []string) ([]string, error) {
	var added []string
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || ticket.HasTag(name) {
			continue
		}
		if _, err := r.Tags.FindOrCreateByName(ctx, name); err != nil {
			return nil, err
		}
		ticket.Tags = append(ticket.Tags, name)
		added = append(added, name)
	}
	return added, nil
}

func generateReference(now time.Time) string {
	sequence := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return "ESC-" + now.Format("0601") + "-" + sequence
}
