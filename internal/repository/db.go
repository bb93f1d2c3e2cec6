package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by pgxpool.Pool and pgx.Tx, letting the
// same repository code run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the per-aggregate repositories bound to one query
// target, so a unit of work sees a consistent transactional view.
type Repositories struct {
	Tickets     TicketRepository
	Activities  ActivityRepository
	Replies     ReplyRepository
	Tags        TagRepository
	Departments DepartmentRepository
	Agents      AgentRepository
	Users       UserRepository
	Rules       EscalationRuleRepository
	Policies    SlaPolicyRepository
	Followers   FollowerRepository
}

// NewRepositories constructs repositories bound to the given query target.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Tickets:     NewTicketRepository(db),
		Activities:  NewActivityRepository(db),
		Replies:     NewReplyRepository(db),
		Tags:        NewTagRepository(db),
		Departments: NewDepartmentRepository(db),
		Agents:      NewAgentRepository(db),
		Users:       NewUserRepository(db),
		Rules:       NewEscalationRuleRepository(db),
		Policies:    NewSlaPolicyRepository(db),
		Followers:   NewFollowerRepository(db),
	}
}

// TxManager runs a function against transaction-bound repositories.
// The callback's mutations commit together or not at all.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(r Repositories) error) error
}

type pgxTxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a pgx-backed transaction manager.
func NewTxManager(pool *pgxpool.Pool) TxManager {
	return &pgxTxManager{pool: pool}
}

func (m *pgxTxManager) WithinTx(ctx context.Context, fn func(r Repositories) error) error {
	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(NewRepositories(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
