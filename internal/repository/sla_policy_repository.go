package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// SlaPolicyRepository encapsulates SLA policy persistence.
type SlaPolicyRepository interface {
	Create(ctx context.Context, policy *domain.SlaPolicy) error
	Update(ctx context.Context, policy *domain.SlaPolicy) error
	GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error)
	// GetDefault returns the policy marked default, or nil when none is.
	GetDefault(ctx context.Context) (*domain.SlaPolicy, error)
	List(ctx context.Context) ([]domain.SlaPolicy, error)
}

type slaPolicyRepository struct {
	db DBTX
}

// NewSlaPolicyRepository instantiates repository.
func NewSlaPolicyRepository(db DBTX) SlaPolicyRepository {
	return &slaPolicyRepository{db: db}
}

const policyColumns = `id, name, description, first_response_hours, resolution_hours, is_active, is_default, created_at, updated_at`

func (r *slaPolicyRepository) Create(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        INSERT INTO sla_policies (name, description, first_response_hours, resolution_hours, is_active, is_default)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		policy.Name,
		policy.Description,
		policy.FirstResponseHours,
		policy.ResolutionHours,
		policy.IsActive,
		policy.IsDefault,
	).Scan(&policy.ID, &policy.CreatedAt, &policy.UpdatedAt)
}

func (r *slaPolicyRepository) Update(ctx context.Context, policy *domain.SlaPolicy) error {
	const query = `
        UPDATE sla_policies SET name=$1, description=$2, first_response_hours=$3, resolution_hours=$4,
            is_active=$5, is_default=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.db.Exec(ctx, query,
		policy.Name,
		policy.Description,
		policy.FirstResponseHours,
		policy.ResolutionHours,
		policy.IsActive,
		policy.IsDefault,
		policy.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *slaPolicyRepository) GetByID(ctx context.Context, id string) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies WHERE id=$1`
	var policy domain.SlaPolicy
	if err := scanPolicy(r.db.QueryRow(ctx, query, id), &policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) GetDefault(ctx context.Context) (*domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies
        WHERE is_default = TRUE AND is_active = TRUE
        ORDER BY created_at ASC
        LIMIT 1`
	var policy domain.SlaPolicy
	if err := scanPolicy(r.db.QueryRow(ctx, query), &policy); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &policy, nil
}

func (r *slaPolicyRepository) List(ctx context.Context) ([]domain.SlaPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM sla_policies ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SlaPolicy
	for rows.Next() {
		var policy domain.SlaPolicy
		if err := scanPolicy(rows, &policy); err != nil {
			return nil, err
		}
		result = append(result, policy)
	}
	return result, rows.Err()
}

func scanPolicy(row rowScanner, policy *domain.SlaPolicy) error {
	return row.Scan(
		&policy.ID,
		&policy.Name,
		&policy.Description,
		&policy.FirstResponseHours,
		&policy.ResolutionHours,
		&policy.IsActive,
		&policy.IsDefault,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
}
