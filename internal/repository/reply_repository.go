package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// ReplyRepository persists ticket thread messages.
type ReplyRepository interface {
	Create(ctx context.Context, reply *domain.Reply) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.Reply, error)
	// LatestPublicReplyAt returns the timestamp of the most recent public
	// reply on a ticket, or nil when none exists.
	LatestPublicReplyAt(ctx context.Context, ticketID string) (*time.Time, error)
}

type replyRepository struct {
	db DBTX
}

// NewReplyRepository instantiates repository.
func NewReplyRepository(db DBTX) ReplyRepository {
	return &replyRepository{db: db}
}

func (r *replyRepository) Create(ctx context.Context, reply *domain.Reply) error {
	const query = `
        INSERT INTO replies (ticket_id, author_user_id, body, is_internal, is_system)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.db.QueryRow(ctx, query,
		reply.TicketID,
		reply.AuthorID,
		reply.Body,
		reply.IsInternal,
		reply.IsSystem,
	).Scan(&reply.ID, &reply.CreatedAt)
}

func (r *replyRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.Reply, error) {
	const query = `
        SELECT id, ticket_id, author_user_id, body, is_internal, is_system, created_at
        FROM replies
        WHERE ticket_id=$1
        ORDER BY created_at ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Reply
	for rows.Next() {
		var reply domain.Reply
		if err := rows.Scan(
			&reply.ID,
			&reply.TicketID,
			&reply.AuthorID,
			&reply.Body,
			&reply.IsInternal,
			&reply.IsSystem,
			&reply.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, reply)
	}
	return result, rows.Err()
}

func (r *replyRepository) LatestPublicReplyAt(ctx context.Context, ticketID string) (*time.Time, error) {
	const query = `
        SELECT created_at FROM replies
        WHERE ticket_id=$1 AND is_internal=FALSE
        ORDER BY created_at DESC
        LIMIT 1`
	var createdAt time.Time
	if err := r.db.QueryRow(ctx, query, ticketID).Scan(&createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &createdAt, nil
}
