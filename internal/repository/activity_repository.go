package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// ActivityRepository persists the append-only ticket audit trail.
type ActivityRepository interface {
	Append(ctx context.Context, activity *domain.TicketActivity) error
	ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketActivity, error)
	CountByAction(ctx context.Context, ticketID string, action domain.ActivityAction) (int64, error)
}

type activityRepository struct {
	db DBTX
}

// NewActivityRepository instantiates repository.
func NewActivityRepository(db DBTX) ActivityRepository {
	return &activityRepository{db: db}
}

func (r *activityRepository) Append(ctx context.Context, activity *domain.TicketActivity) error {
	const query = `
        INSERT INTO ticket_activities (ticket_id, action, causer_user_id, details)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	details := activity.Details
	if details == nil {
		details = map[string]any{}
	}
	return r.db.QueryRow(ctx, query,
		activity.TicketID,
		activity.Action,
		activity.CauserID,
		details,
	).Scan(&activity.ID, &activity.CreatedAt)
}

func (r *activityRepository) ListByTicket(ctx context.Context, ticketID string, limit, offset int) ([]domain.TicketActivity, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
        SELECT id, ticket_id, action, causer_user_id, details, created_at
        FROM ticket_activities
        WHERE ticket_id=$1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, ticketID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketActivity
	for rows.Next() {
		var entry domain.TicketActivity
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.Action,
			&entry.CauserID,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *activityRepository) CountByAction(ctx context.Context, ticketID string, action domain.ActivityAction) (int64, error) {
	const query = `SELECT COUNT(*) FROM ticket_activities WHERE ticket_id=$1 AND action=$2`
	var count int64
	err := r.db.QueryRow(ctx, query, ticketID, action).Scan(&count)
	return count, err
}
