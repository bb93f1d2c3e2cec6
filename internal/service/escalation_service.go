package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// escalationReason tags activities produced by rule execution so they are
// distinguishable from agent-initiated changes in the ticket history.
const escalationReason = "escalation_rule"

// EscalationSummary reports the outcome of a full evaluation pass.
type EscalationSummary struct {
	Evaluated int `json:"evaluated"`
	Escalated int `json:"escalated"`
	Failed    int `json:"failed"`
}

// EscalationService evaluates active escalation rules against tickets and
// executes the matched rule's action bundle. Rules are ordered ascending by
// priority and only the first match applies per ticket per pass.
type EscalationService struct {
	tx         repository.TxManager
	repos      repository.Repositories
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// EscalationDeps bundles dependencies for the escalation service.
type EscalationDeps struct {
	Tx         repository.TxManager
	Repos      repository.Repositories
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewEscalationService constructs the service.
func NewEscalationService(deps EscalationDeps) *EscalationService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EscalationService{
		tx:         deps.Tx,
		repos:      deps.Repos,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		clock:      clock,
	}
}

// EvaluateAll runs every active rule against every open ticket. A failure on
// one ticket is logged and does not stop the pass.
func (s *EscalationService) EvaluateAll(ctx context.Context) (EscalationSummary, error) {
	var summary EscalationSummary

	rules, err := s.repos.Rules.ListActiveOrdered(ctx)
	if err != nil {
		return summary, err
	}
	if len(rules) == 0 {
		return summary, nil
	}

	tickets, err := s.repos.Tickets.ListOpen(ctx)
	if err != nil {
		return summary, err
	}

	for i := range tickets {
		summary.Evaluated++
		matched, err := s.evaluate(ctx, &tickets[i], rules)
		if err != nil {
			summary.Failed++
			s.logger.Error("escalation evaluation failed",
				zap.String("ticket_id", tickets[i].ID),
				zap.Error(err))
			continue
		}
		if matched != nil {
			summary.Escalated++
		}
	}
	return summary, nil
}

// EvaluateTicket runs the rule set against a single ticket and returns the
// rule that fired, or nil when none matched. Closed tickets are skipped.
func (s *EscalationService) EvaluateTicket(ctx context.Context, ticket *domain.Ticket) (*domain.EscalationRule, error) {
	rules, err := s.repos.Rules.ListActiveOrdered(ctx)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, ticket, rules)
}

func (s *EscalationService) evaluate(ctx context.Context, ticket *domain.Ticket, rules []domain.EscalationRule) (*domain.EscalationRule, error) {
	if !ticket.Open() || len(rules) == 0 {
		return nil, nil
	}

	lastReplyAt, err := s.repos.Replies.LatestPublicReplyAt(ctx, ticket.ID)
	if err != nil {
		return nil, err
	}
	in := domain.ConditionInput{Now: s.clock(), LastPublicReplyAt: lastReplyAt}

	for i := range rules {
		rule := &rules[i]
		if !rule.Matches(ticket, in) {
			continue
		}
		if err := s.execute(ctx, ticket.ID, rule); err != nil {
			return nil, err
		}
		return rule, nil
	}
	return nil, nil
}

// execute applies the matched rule's action bundle to the ticket as one
// atomic unit. The ticket row is re-read under lock so concurrent sweeps or
// agent updates cannot interleave with the bundle.
func (s *EscalationService) execute(ctx context.Context, ticketID string, rule *domain.EscalationRule) error {
	now := s.clock()
	var ticket *domain.Ticket

	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		var err error
		ticket, err = r.Tickets.GetForUpdate(ctx, ticketID)
		if err != nil {
			return err
		}

		a := rule.Actions
		if a.ChangePriority != nil && *a.ChangePriority != ticket.Priority {
			from := ticket.Priority
			ticket.Priority = *a.ChangePriority
			if err := s.appendActivity(ctx, r, ticket.ID, domain.ActivityPriorityChanged, map[string]any{
				"from":   from,
				"to":     ticket.Priority,
				"reason": escalationReason,
			}); err != nil {
				return err
			}
		}
		if a.ChangeStatus != nil && *a.ChangeStatus != ticket.Status {
			from := ticket.Status
			applyStatusSideEffects(ticket, *a.ChangeStatus, now)
			if err := s.appendActivity(ctx, r, ticket.ID, domain.ActivityStatusChanged, map[string]any{
				"from":   from,
				"to":     ticket.Status,
				"reason": escalationReason,
			}); err != nil {
				return err
			}
		}
		if a.AssignToAgentID != nil {
			if err := s.assignAgent(ctx, r, ticket, *a.AssignToAgentID, rule); err != nil {
				return err
			}
		}
		if a.AssignToDepartmentID != nil {
			if err := s.assignDepartment(ctx, r, ticket, *a.AssignToDepartmentID, rule); err != nil {
				return err
			}
		}
		if len(a.AddTags) > 0 {
			if _, err := attachTags(ctx, r, ticket, a.AddTags); err != nil {
				return err
			}
		}
		if a.AddInternalNote != nil && *a.AddInternalNote != "" {
			note := &domain.Reply{
				TicketID:   ticket.ID,
				Body:       *a.AddInternalNote,
				IsInternal: true,
				IsSystem:   true,
			}
			if err := r.Replies.Create(ctx, note); err != nil {
				return err
			}
		}

		if err := r.Tickets.Update(ctx, ticket); err != nil {
			return err
		}
		return s.appendActivity(ctx, r, ticket.ID, domain.ActivityTicketEscalated, map[string]any{
			"rule_id":         rule.ID,
			"rule_name":       rule.Name,
			"actions_applied": rule.Actions.Applied(),
		})
	})
	if err != nil {
		return err
	}

	if rule.Actions.SendNotification && s.dispatcher != nil {
		s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventTicketEscalated,
			Ticket:    events.Snapshot(ticket),
			Timestamp: now,
			Payload: events.TicketEscalatedPayload{
				RuleID:         rule.ID,
				RuleName:       rule.Name,
				ActionsApplied: rule.Actions.Applied(),
				Recipients:     rule.Actions.NotificationRecipients,
			},
		})
	}
	return nil
}

// assignAgent sets the assignee if the agent exists. A dangling agent id in
// a stored rule is a no-op, not a failure.
func (s *EscalationService) assignAgent(ctx context.Context, r repository.Repositories, ticket *domain.Ticket, agentID string, rule *domain.EscalationRule) error {
	if _, err := r.Agents.GetByID(ctx, agentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("escalation rule references unknown agent",
				zap.String("rule_id", rule.ID),
				zap.String("agent_id", agentID))
			return nil
		}
		return err
	}
	from := ticket.AssignedTo
	ticket.AssignedTo = &agentID
	return s.appendActivity(ctx, r, ticket.ID, domain.ActivityTicketAssigned, map[string]any{
		"from_agent_id": from,
		"to_agent_id":   agentID,
		"reason":        escalationReason,
	})
}

// assignDepartment moves the ticket if the department exists, same no-op
// contract as assignAgent.
func (s *EscalationService) assignDepartment(ctx context.Context, r repository.Repositories, ticket *domain.Ticket, departmentID string, rule *domain.EscalationRule) error {
	if _, err := r.Departments.GetByID(ctx, departmentID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Warn("escalation rule references unknown department",
				zap.String("rule_id", rule.ID),
				zap.String("department_id", departmentID))
			return nil
		}
		return err
	}
	from := ticket.DepartmentID
	ticket.DepartmentID = &departmentID
	return s.appendActivity(ctx, r, ticket.ID, domain.ActivityDepartmentChanged, map[string]any{
		"from_department_id": from,
		"to_department_id":   departmentID,
		"reason":             escalationReason,
	})
}

func (s *EscalationService) appendActivity(ctx context.Context, r repository.Repositories, ticketID string, action domain.ActivityAction, details map[string]any) error {
	return r.Activities.Append(ctx, &domain.TicketActivity{
		TicketID: ticketID,
		Action:   action,
		Details:  details,
	})
}
