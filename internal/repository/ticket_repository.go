package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TicketFilter captures agent search parameters.
type TicketFilter struct {
	RequesterID  *string
	DepartmentID *string
	AssigneeID   *string
	Statuses     []domain.TicketStatus
	Priorities   []domain.TicketPriority
	SearchTerm   *string
	SlaBreached  *bool
	CreatedFrom  *time.Time
	CreatedTo    *time.Time
	Limit        int
	Offset       int
}

// SlaCounts aggregates the numbers behind the SLA stats endpoint.
type SlaCounts struct {
	TotalWithSla         int64
	TotalBreached        int64
	Responded            int64
	RespondedOnTime      int64
	Resolved             int64
	ResolvedOnTime       int64
}

// TicketRepository encapsulates ticket persistence, including the sweep
// queries issued by the breach monitor and the rule engine.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate fetches a ticket with a row lock; concurrent transitions
	// on the same ticket serialize at the store. Only valid inside a
	// transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	GetByReference(ctx context.Context, reference string) (*domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)

	// ListOpen returns every open-like ticket, for full rule-engine sweeps.
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	// ListFirstResponseBreaches returns open-like tickets whose first-response
	// due date has passed, with no first response recorded and the breach
	// flag still unset.
	ListFirstResponseBreaches(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	// ListResolutionBreaches is the resolution counterpart.
	ListResolutionBreaches(ctx context.Context, now time.Time) ([]domain.Ticket, error)
	// ListFirstResponseWarnings returns open-like unbreached tickets whose
	// first-response due date falls within [now, now+window].
	ListFirstResponseWarnings(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error)
	// ListResolutionWarnings is the resolution counterpart.
	ListResolutionWarnings(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error)
	// ListResolvedBefore returns resolved tickets whose resolved_at is older
	// than the cutoff, for the auto-close sweep.
	ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error)

	SlaCounts(ctx context.Context) (SlaCounts, error)
}

const ticketColumns = `id, reference, requester_user_id, department_id, assignee_agent_id,
               subject, description, status, priority, tags,
               sla_policy_id, sla_first_response_due_at, sla_resolution_due_at, sla_breached,
               first_response_at, resolved_at, closed_at, created_at, updated_at`

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (reference, requester_user_id, department_id, assignee_agent_id,
            subject, description, status, priority, tags,
            sla_policy_id, sla_first_response_due_at, sla_resolution_due_at, sla_breached,
            first_response_at, resolved_at, closed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		ticket.Reference,
		ticket.RequesterID,
		ticket.DepartmentID,
		ticket.AssignedTo,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Tags,
		ticket.SlaPolicyID,
		ticket.SlaFirstResponseDueAt,
		ticket.SlaResolutionDueAt,
		ticket.SlaBreached,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
	).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET department_id=$1, assignee_agent_id=$2, subject=$3, description=$4,
            status=$5, priority=$6, tags=$7,
            sla_policy_id=$8, sla_first_response_due_at=$9, sla_resolution_due_at=$10, sla_breached=$11,
            first_response_at=$12, resolved_at=$13, closed_at=$14, updated_at=NOW()
        WHERE id=$15`
	cmd, err := r.db.Exec(ctx, query,
		ticket.DepartmentID,
		ticket.AssignedTo,
		ticket.Subject,
		ticket.Description,
		ticket.Status,
		ticket.Priority,
		ticket.Tags,
		ticket.SlaPolicyID,
		ticket.SlaFirstResponseDueAt,
		ticket.SlaResolutionDueAt,
		ticket.SlaBreached,
		ticket.FirstResponseAt,
		ticket.ResolvedAt,
		ticket.ClosedAt,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1 FOR UPDATE`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByReference(ctx context.Context, reference string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE reference=$1`
	return r.fetchSingle(ctx, query, reference)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := scanTicket(r.db.QueryRow(ctx, query, arg), &ticket); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListOpen(ctx context.Context) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status NOT IN ('resolved','closed')
        ORDER BY created_at ASC`
	return r.fetchMany(ctx, query)
}

func (r *ticketRepository) ListFirstResponseBreaches(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status NOT IN ('resolved','closed')
          AND sla_breached = FALSE
          AND sla_first_response_due_at IS NOT NULL
          AND first_response_at IS NULL
          AND sla_first_response_due_at < $1
        ORDER BY sla_first_response_due_at ASC`
	return r.fetchMany(ctx, query, now)
}

func (r *ticketRepository) ListResolutionBreaches(ctx context.Context, now time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status NOT IN ('resolved','closed')
          AND sla_breached = FALSE
          AND sla_resolution_due_at IS NOT NULL
          AND resolved_at IS NULL
          AND sla_resolution_due_at < $1
        ORDER BY sla_resolution_due_at ASC`
	return r.fetchMany(ctx, query, now)
}

func (r *ticketRepository) ListFirstResponseWarnings(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status NOT IN ('resolved','closed')
          AND sla_breached = FALSE
          AND sla_first_response_due_at IS NOT NULL
          AND first_response_at IS NULL
          AND sla_first_response_due_at BETWEEN $1 AND $2
        ORDER BY sla_first_response_due_at ASC`
	return r.fetchMany(ctx, query, now, now.Add(window))
}

func (r *ticketRepository) ListResolutionWarnings(ctx context.Context, now time.Time, window time.Duration) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status NOT IN ('resolved','closed')
          AND sla_breached = FALSE
          AND sla_resolution_due_at IS NOT NULL
          AND resolved_at IS NULL
          AND sla_resolution_due_at BETWEEN $1 AND $2
        ORDER BY sla_resolution_due_at ASC`
	return r.fetchMany(ctx, query, now, now.Add(window))
}

func (r *ticketRepository) ListResolvedBefore(ctx context.Context, cutoff time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets
        WHERE status = 'resolved'
          AND resolved_at IS NOT NULL
          AND resolved_at < $1
        ORDER BY resolved_at ASC`
	return r.fetchMany(ctx, query, cutoff)
}

func (r *ticketRepository) SlaCounts(ctx context.Context) (SlaCounts, error) {
	const query = `
        SELECT
            COUNT(*) FILTER (WHERE sla_policy_id IS NOT NULL),
            COUNT(*) FILTER (WHERE sla_breached),
            COUNT(*) FILTER (WHERE first_response_at IS NOT NULL AND sla_first_response_due_at IS NOT NULL),
            COUNT(*) FILTER (WHERE first_response_at IS NOT NULL AND sla_first_response_due_at IS NOT NULL
                               AND first_response_at <= sla_first_response_due_at),
            COUNT(*) FILTER (WHERE resolved_at IS NOT NULL AND sla_resolution_due_at IS NOT NULL),
            COUNT(*) FILTER (WHERE resolved_at IS NOT NULL AND sla_resolution_due_at IS NOT NULL
                               AND resolved_at <= sla_resolution_due_at)
        FROM tickets`
	var counts SlaCounts
	err := r.db.QueryRow(ctx, query).Scan(
		&counts.TotalWithSla,
		&counts.TotalBreached,
		&counts.Responded,
		&counts.RespondedOnTime,
		&counts.Resolved,
		&counts.ResolvedOnTime,
	)
	return counts, err
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := `SELECT ` + ticketColumns + ` FROM tickets`
	clauses := []string{"1=1"}
	args := []any{}

	if filter.RequesterID != nil {
		args = append(args, *filter.RequesterID)
		clauses = append(clauses, fmt.Sprintf("requester_user_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_agent_id=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(filter.Priorities) > 0 {
		placeholders := make([]string, len(filter.Priorities))
		for i, pr := range filter.Priorities {
			args = append(args, pr)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.SlaBreached != nil {
		args = append(args, *filter.SlaBreached)
		clauses = append(clauses, fmt.Sprintf("sla_breached=$%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(subject) LIKE %s OR LOWER(description) LIKE %s OR LOWER(reference) LIKE %s)",
			placeholder, placeholder, placeholder))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 25
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	return r.fetchMany(ctx, query, args...)
}

func (r *ticketRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner, ticket *domain.Ticket) error {
	return row.Scan(
		&ticket.ID,
		&ticket.Reference,
		&ticket.RequesterID,
		&ticket.DepartmentID,
		&ticket.AssignedTo,
		&ticket.Subject,
		&ticket.Description,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Tags,
		&ticket.SlaPolicyID,
		&ticket.SlaFirstResponseDueAt,
		&ticket.SlaResolutionDueAt,
		&ticket.SlaBreached,
		&ticket.FirstResponseAt,
		&ticket.ResolvedAt,
		&ticket.ClosedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	)
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := scanTicket(rows, &ticket); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
