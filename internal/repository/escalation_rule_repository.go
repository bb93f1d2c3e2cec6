package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// EscalationRuleRepository encapsulates escalation rule persistence.
type EscalationRuleRepository interface {
	Create(ctx context.Context, rule *domain.EscalationRule) error
	Update(ctx context.Context, rule *domain.EscalationRule) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.EscalationRule, error)
	List(ctx context.Context) ([]domain.EscalationRule, error)
	// ListActiveOrdered returns active rules ascending by priority,
	// creation order as tiebreak. This is the evaluation order.
	ListActiveOrdered(ctx context.Context) ([]domain.EscalationRule, error)
}

type escalationRuleRepository struct {
	db DBTX
}

// NewEscalationRuleRepository instantiates repository.
func NewEscalationRuleRepository(db DBTX) EscalationRuleRepository {
	return &escalationRuleRepository{db: db}
}

const ruleColumns = `id, name, priority, conditions, actions, is_active, created_at, updated_at`

func (r *escalationRuleRepository) Create(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        INSERT INTO escalation_rules (name, priority, conditions, actions, is_active)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		rule.Name,
		rule.Priority,
		rule.Conditions,
		rule.Actions,
		rule.IsActive,
	).Scan(&rule.ID, &rule.CreatedAt, &rule.UpdatedAt)
}

func (r *escalationRuleRepository) Update(ctx context.Context, rule *domain.EscalationRule) error {
	const query = `
        UPDATE escalation_rules SET name=$1, priority=$2, conditions=$3, actions=$4, is_active=$5, updated_at=NOW()
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		rule.Name,
		rule.Priority,
		rule.Conditions,
		rule.Actions,
		rule.IsActive,
		rule.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRuleRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM escalation_rules WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *escalationRuleRepository) GetByID(ctx context.Context, id string) (*domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules WHERE id=$1`
	var rule domain.EscalationRule
	if err := scanRule(r.db.QueryRow(ctx, query, id), &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *escalationRuleRepository) List(ctx context.Context) ([]domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules ORDER BY priority ASC, created_at ASC`
	return r.fetchMany(ctx, query)
}

func (r *escalationRuleRepository) ListActiveOrdered(ctx context.Context) ([]domain.EscalationRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM escalation_rules
        WHERE is_active = TRUE
        ORDER BY priority ASC, created_at ASC`
	return r.fetchMany(ctx, query)
}

func (r *escalationRuleRepository) fetchMany(ctx context.Context, query string, args ...any) ([]domain.EscalationRule, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.EscalationRule
	for rows.Next() {
		var rule domain.EscalationRule
		if err := scanRule(rows, &rule); err != nil {
			return nil, err
		}
		result = append(result, rule)
	}
	return result, rows.Err()
}

func scanRule(row rowScanner, rule *domain.EscalationRule) error {
	return row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Priority,
		&rule.Conditions,
		&rule.Actions,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
}
