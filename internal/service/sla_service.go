package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/internal/repository"
)

// Lookahead windows for near-breach warnings.
const (
	firstResponseWarningWindow = time.Hour
	resolutionWarningWindow    = 2 * time.Hour
)

// BreachType distinguishes which milestone was missed.
type BreachType string

const (
	BreachFirstResponse BreachType = "first_response"
	BreachResolution    BreachType = "resolution"
)

// Breach pairs a ticket with the milestone it missed.
type Breach struct {
	Ticket domain.Ticket
	Type   BreachType
}

// WarningType distinguishes which milestone is near its due date.
type WarningType string

const (
	WarningFirstResponse WarningType = "first_response_warning"
	WarningResolution    WarningType = "resolution_warning"
)

// Warning pairs a ticket with an approaching due date.
type Warning struct {
	Ticket domain.Ticket
	Type   WarningType
}

// SlaStats summarizes SLA performance across all tickets.
type SlaStats struct {
	TotalWithSla             int64   `json:"total_with_sla"`
	TotalBreached            int64   `json:"total_breached"`
	BreachRate               float64 `json:"breach_rate"`
	FirstResponseOnTime      int64   `json:"first_response_on_time"`
	FirstResponseOnTimeRate  float64 `json:"first_response_on_time_rate"`
	ResolutionOnTime         int64   `json:"resolution_on_time"`
	ResolutionOnTimeRate     float64 `json:"resolution_on_time_rate"`
}

// SlaService attaches policies, computes due dates and sweeps for breaches.
// The breach pass is idempotent: the monotonic sla_breached flag excludes
// already-breached tickets from future passes.
type SlaService struct {
	cfg        config.SlaConfig
	tx         repository.TxManager
	repos      repository.Repositories
	calculator *DeadlineCalculator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	clock      func() time.Time
}

// SlaDeps bundles dependencies for the SLA service.
type SlaDeps struct {
	Cfg        config.SlaConfig
	Tx         repository.TxManager
	Repos      repository.Repositories
	Calculator *DeadlineCalculator
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewSlaService constructs the service.
func NewSlaService(deps SlaDeps) *SlaService {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlaService{
		cfg:        deps.Cfg,
		tx:         deps.Tx,
		repos:      deps.Repos,
		calculator: deps.Calculator,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		clock:      clock,
	}
}

// AttachPolicy selects the applicable policy for a new ticket and writes
// the policy reference and both due dates onto it, in memory. Selection
// order: department default, then global default, then none. Absence of a
// policy is not an error; the ticket simply tracks no deadlines.
func (s *SlaService) AttachPolicy(ctx context.Context, r repository.Repositories, ticket *domain.Ticket) error {
	if !s.cfg.Enabled {
		return nil
	}
	policy, err := s.findPolicyFor(ctx, r, ticket)
	if err != nil {
		return err
	}
	if policy == nil {
		return nil
	}

	now := s.clock()
	ticket.SlaPolicyID = &policy.ID
	ticket.SlaFirstResponseDueAt = s.calculator.ComputeDueAt(policy.FirstResponseHoursFor(ticket.Priority), now)
	ticket.SlaResolutionDueAt = s.calculator.ComputeDueAt(policy.ResolutionHoursFor(ticket.Priority), now)
	return nil
}

// RecalculateForTicket recomputes due dates from now for milestones not yet
// satisfied, using the ticket's current priority. Satisfied milestones keep
// their stored due dates.
func (s *SlaService) RecalculateForTicket(ctx context.Context, r repository.Repositories, ticket *domain.Ticket) error {
	if ticket.SlaPolicyID == nil {
		return nil
	}
	policy, err := r.Policies.GetByID(ctx, *ticket.SlaPolicyID)
	if err != nil {
		return err
	}

	now := s.clock()
	if ticket.FirstResponseAt == nil {
		ticket.SlaFirstResponseDueAt = s.calculator.ComputeDueAt(policy.FirstResponseHoursFor(ticket.Priority), now)
	}
	if ticket.ResolvedAt == nil {
		ticket.SlaResolutionDueAt = s.calculator.ComputeDueAt(policy.ResolutionHoursFor(ticket.Priority), now)
	}
	return nil
}

// CheckBreaches sweeps open tickets whose due dates have passed and flips
// the breach flag on each, one atomic unit per ticket. A single ticket's
// failure is logged and does not abort the pass. Notifications go out only
// after each unit commits.
func (s *SlaService) CheckBreaches(ctx context.Context) ([]Breach, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	now := s.clock()
	var breaches []Breach

	firstResponse, err := s.repos.Tickets.ListFirstResponseBreaches(ctx, now)
	if err != nil {
		return nil, err
	}
	for i := range firstResponse {
		if s.markBreached(ctx, &firstResponse[i], BreachFirstResponse, now) {
			breaches = append(breaches, Breach{Ticket: firstResponse[i], Type: BreachFirstResponse})
		}
	}

	resolution, err := s.repos.Tickets.ListResolutionBreaches(ctx, now)
	if err != nil {
		return breaches, err
	}
	for i := range resolution {
		if s.markBreached(ctx, &resolution[i], BreachResolution, now) {
			breaches = append(breaches, Breach{Ticket: resolution[i], Type: BreachResolution})
		}
	}

	return breaches, nil
}

// markBreached flips the flag inside one unit of work, re-checking under
// the row lock so a concurrent sweep marks each ticket at most once.
func (s *SlaService) markBreached(ctx context.Context, ticket *domain.Ticket, breachType BreachType, now time.Time) bool {
	marked := false
	err := s.tx.WithinTx(ctx, func(r repository.Repositories) error {
		fresh, err := r.Tickets.GetForUpdate(ctx, ticket.ID)
		if err != nil {
			return err
		}
		if fresh.SlaBreached {
			return nil
		}
		breached := fresh.FirstResponseBreached(now)
		if breachType == BreachResolution {
			breached = fresh.ResolutionBreached(now)
		}
		if !breached {
			return nil
		}
		fresh.SlaBreached = true
		if err := r.Tickets.Update(ctx, fresh); err != nil {
			return err
		}
		if err := r.Activities.Append(ctx, &domain.TicketActivity{
			TicketID: fresh.ID,
			Action:   domain.ActivitySlaBreached,
			Details:  map[string]any{"breach_type": string(breachType)},
		}); err != nil {
			return err
		}
		*ticket = *fresh
		marked = true
		return nil
	})
	if err != nil {
		s.logger.Error("failed to mark SLA breach",
			zap.String("ticket_id", ticket.ID),
			zap.String("breach_type", string(breachType)),
			zap.Error(err))
		return false
	}
	if marked {
		s.publish(ctx, events.Event{
			Type:    events.EventSlaBreached,
			Ticket:  events.Snapshot(ticket),
			Payload: events.SlaBreachedPayload{BreachType: string(breachType)},
		})
	}
	return marked
}

// CheckWarnings returns open tickets whose due dates fall within the
// lookahead windows: one hour for first response, two hours for
// resolution. The pass is read-only; it never touches the breach flag.
func (s *SlaService) CheckWarnings(ctx context.Context) ([]Warning, error) {
	if !s.cfg.Enabled {
		return nil, nil
	}
	now := s.clock()
	var warnings []Warning

	firstResponse, err := s.repos.Tickets.ListFirstResponseWarnings(ctx, now, firstResponseWarningWindow)
	if err != nil {
		return nil, err
	}
	for i := range firstResponse {
		warnings = append(warnings, Warning{Ticket: firstResponse[i], Type: WarningFirstResponse})
	}

	resolution, err := s.repos.Tickets.ListResolutionWarnings(ctx, now, resolutionWarningWindow)
	if err != nil {
		return warnings, err
	}
	for i := range resolution {
		warnings = append(warnings, Warning{Ticket: resolution[i], Type: WarningResolution})
	}

	for i := range warnings {
		s.publish(ctx, events.Event{
			Type:    events.EventSlaWarning,
			Ticket:  events.Snapshot(&warnings[i].Ticket),
			Payload: events.SlaWarningPayload{WarningType: string(warnings[i].Type)},
		})
	}
	return warnings, nil
}

// Stats reports SLA performance counters.
func (s *SlaService) Stats(ctx context.Context) (SlaStats, error) {
	counts, err := s.repos.Tickets.SlaCounts(ctx)
	if err != nil {
		return SlaStats{}, err
	}
	stats := SlaStats{
		TotalWithSla:        counts.TotalWithSla,
		TotalBreached:       counts.TotalBreached,
		FirstResponseOnTime: counts.RespondedOnTime,
		ResolutionOnTime:    counts.ResolvedOnTime,
	}
	if counts.TotalWithSla > 0 {
		stats.BreachRate = rate(counts.TotalBreached, counts.TotalWithSla)
	}
	if counts.Responded > 0 {
		stats.FirstResponseOnTimeRate = rate(counts.RespondedOnTime, counts.Responded)
	}
	if counts.Resolved > 0 {
		stats.ResolutionOnTimeRate = rate(counts.ResolvedOnTime, counts.Resolved)
	}
	return stats, nil
}

func (s *SlaService) findPolicyFor(ctx context.Context, r repository.Repositories, ticket *domain.Ticket) (*domain.SlaPolicy, error) {
	if ticket.DepartmentID != nil {
		dept, err := r.Departments.GetByID(ctx, *ticket.DepartmentID)
		if err == nil && dept.DefaultSlaPolicyID != nil {
			policy, err := r.Policies.GetByID(ctx, *dept.DefaultSlaPolicyID)
			if err == nil {
				return policy, nil
			}
		}
	}
	return r.Policies.GetDefault(ctx)
}

func (s *SlaService) publish(ctx context.Context, event events.Event) {
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

func rate(part, total int64) float64 {
	return float64(part) / float64(total) * 100
}
