package repository

import (
	"context"
)

// FollowerRepository manages the ticket follower set.
type FollowerRepository interface {
	Follow(ctx context.Context, ticketID, userID string) error
	Unfollow(ctx context.Context, ticketID, userID string) error
	ListFollowerIDs(ctx context.Context, ticketID string) ([]string, error)
}

type followerRepository struct {
	db DBTX
}

// NewFollowerRepository instantiates repository.
func NewFollowerRepository(db DBTX) FollowerRepository {
	return &followerRepository{db: db}
}

func (r *followerRepository) Follow(ctx context.Context, ticketID, userID string) error {
	const query = `
        INSERT INTO ticket_followers (ticket_id, user_id)
        VALUES ($1,$2)
        ON CONFLICT DO NOTHING`
	_, err := r.db.Exec(ctx, query, ticketID, userID)
	return err
}

func (r *followerRepository) Unfollow(ctx context.Context, ticketID, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM ticket_followers WHERE ticket_id=$1 AND user_id=$2`, ticketID, userID)
	return err
}

func (r *followerRepository) ListFollowerIDs(ctx context.Context, ticketID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT user_id FROM ticket_followers WHERE ticket_id=$1 ORDER BY created_at ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
