package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-core/internal/config"
	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/observability"
	"github.com/spec-kit/helpdesk-core/internal/persistence"
	"github.com/spec-kit/helpdesk-core/internal/service"
)

// Job names, used for sweep locks and metrics keys.
const (
	JobCheckSla            = "check_sla"
	JobEvaluateEscalations = "evaluate_escalations"
)

// CheckSlaResult summarizes one check-SLA run.
type CheckSlaResult struct {
	Breaches  int `json:"breaches"`
	Warnings  int `json:"warnings"`
	Escalated int `json:"escalated"`
}

// Sweeper drives the two scheduled jobs. Each job takes a best-effort
// distributed lock before running so concurrent instances do not sweep the
// same tickets simultaneously; each run is idempotent, so a lost lock or a
// partial failure is recovered by the next run.
type Sweeper struct {
	cfg        config.SweepConfig
	tickets    *service.TicketService
	sla        *service.SlaService
	escalation *service.EscalationService
	redis      *persistence.Redis
	metrics    *observability.Metrics
	logger     *zap.Logger
	clock      func() time.Time
}

// SweeperDeps bundles dependencies for the sweeper.
type SweeperDeps struct {
	Cfg        config.SweepConfig
	Tickets    *service.TicketService
	Sla        *service.SlaService
	Escalation *service.EscalationService
	Redis      *persistence.Redis
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewSweeper constructs the sweeper.
func NewSweeper(deps SweeperDeps) *Sweeper {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		cfg:        deps.Cfg,
		tickets:    deps.Tickets,
		sla:        deps.Sla,
		escalation: deps.Escalation,
		redis:      deps.Redis,
		metrics:    deps.Metrics,
		logger:     logger,
		clock:      clock,
	}
}

// Start launches the periodic tickers and blocks until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	checkSla := time.NewTicker(s.interval(s.cfg.CheckSlaIntervalMinutes))
	escalations := time.NewTicker(s.interval(s.cfg.EscalationIntervalMinutes))
	defer checkSla.Stop()
	defer escalations.Stop()

	s.logger.Info("sweeper started",
		zap.Int("check_sla_interval_minutes", s.cfg.CheckSlaIntervalMinutes),
		zap.Int("escalation_interval_minutes", s.cfg.EscalationIntervalMinutes))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return
		case <-checkSla.C:
			if _, err := s.RunCheckSla(ctx); err != nil {
				s.logger.Error("check SLA sweep failed", zap.Error(err))
			}
		case <-escalations.C:
			if _, err := s.RunEvaluateEscalations(ctx); err != nil {
				s.logger.Error("escalation sweep failed", zap.Error(err))
			}
		}
	}
}

// RunCheckSla executes one breach-and-warning pass, then evaluates the
// rule set against every freshly breached ticket so a breach escalates
// without waiting for the next escalation sweep.
func (s *Sweeper) RunCheckSla(ctx context.Context) (CheckSlaResult, error) {
	var result CheckSlaResult

	release, acquired, err := s.lock(ctx, JobCheckSla)
	if err != nil {
		return result, err
	}
	if !acquired {
		s.logger.Debug("check SLA sweep already running elsewhere")
		return result, nil
	}
	defer release()

	breaches, err := s.sla.CheckBreaches(ctx)
	if err != nil {
		return result, err
	}
	result.Breaches = len(breaches)

	warnings, err := s.sla.CheckWarnings(ctx)
	if err != nil {
		return result, err
	}
	result.Warnings = len(warnings)

	for i := range breaches {
		rule, err := s.escalation.EvaluateTicket(ctx, &breaches[i].Ticket)
		if err != nil {
			s.logger.Error("post-breach escalation failed",
				zap.String("ticket_id", breaches[i].Ticket.ID),
				zap.Error(err))
			continue
		}
		if rule != nil {
			result.Escalated++
		}
	}

	s.metrics.RecordSweep(JobCheckSla, map[string]int{
		"breaches":  result.Breaches,
		"warnings":  result.Warnings,
		"escalated": result.Escalated,
	})
	s.logger.Info("check SLA sweep finished",
		zap.Int("breaches", result.Breaches),
		zap.Int("warnings", result.Warnings),
		zap.Int("escalated", result.Escalated))
	return result, nil
}

// RunEvaluateEscalations executes one full rule-engine pass over the open
// ticket set, then auto-closes tickets left resolved past the cutoff.
func (s *Sweeper) RunEvaluateEscalations(ctx context.Context) (service.EscalationSummary, error) {
	var summary service.EscalationSummary

	release, acquired, err := s.lock(ctx, JobEvaluateEscalations)
	if err != nil {
		return summary, err
	}
	if !acquired {
		s.logger.Debug("escalation sweep already running elsewhere")
		return summary, nil
	}
	defer release()

	summary, err = s.escalation.EvaluateAll(ctx)
	if err != nil {
		return summary, err
	}

	closed := s.autoCloseResolved(ctx)

	s.metrics.RecordSweep(JobEvaluateEscalations, map[string]int{
		"evaluated": summary.Evaluated,
		"escalated": summary.Escalated,
		"failed":    summary.Failed,
		"closed":    closed,
	})
	s.logger.Info("escalation sweep finished",
		zap.Int("evaluated", summary.Evaluated),
		zap.Int("escalated", summary.Escalated),
		zap.Int("failed", summary.Failed),
		zap.Int("auto_closed", closed))
	return summary, nil
}

// autoCloseResolved closes tickets that stayed resolved past the configured
// number of days. Zero or negative config disables the pass.
func (s *Sweeper) autoCloseResolved(ctx context.Context) int {
	if s.cfg.AutoCloseResolvedAfterDays <= 0 {
		return 0
	}
	cutoff := s.clock().AddDate(0, 0, -s.cfg.AutoCloseResolvedAfterDays)
	stale, err := s.tickets.ListResolvedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("auto-close lookup failed", zap.Error(err))
		return 0
	}

	closed := 0
	for i := range stale {
		_, err := s.tickets.TransitionStatus(ctx, stale[i].ID, domain.TicketStatusClosed, nil, "auto-closed after resolution")
		if err != nil {
			s.logger.Error("auto-close failed",
				zap.String("ticket_id", stale[i].ID),
				zap.Error(err))
			continue
		}
		closed++
	}
	return closed
}

// lock takes the named sweep lock. Without Redis it degrades to unlocked
// single-instance operation.
func (s *Sweeper) lock(ctx context.Context, job string) (release func(), acquired bool, err error) {
	ttl := time.Duration(s.cfg.LockTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	sweepLock := s.redis.NewSweepLock(job, ttl)
	acquired, err = sweepLock.Acquire(ctx)
	if err != nil || !acquired {
		return func() {}, acquired, err
	}
	return func() {
		if err := sweepLock.Release(ctx); err != nil {
			s.logger.Warn("sweep lock release failed",
				zap.String("job", job),
				zap.Error(err))
		}
	}, true, nil
}

func (s *Sweeper) interval(minutes int) time.Duration {
	if minutes <= 0 {
		minutes = 5
	}
	return time.Duration(minutes) * time.Minute
}
