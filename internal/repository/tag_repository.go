package repository

import (
	"context"
	"strings"

	"github.com/spec-kit/helpdesk-core/internal/domain"
)

// TagRepository maintains the tag registry. Ticket-tag membership itself
// lives on the ticket row's tags array.
type TagRepository interface {
	// FindOrCreateByName returns the tag with the given name, creating it
	// with a derived slug when missing.
	FindOrCreateByName(ctx context.Context, name string) (*domain.Tag, error)
	List(ctx context.Context) ([]domain.Tag, error)
}

type tagRepository struct {
	db DBTX
}

// NewTagRepository instantiates repository.
func NewTagRepository(db DBTX) TagRepository {
	return &tagRepository{db: db}
}

func (r *tagRepository) FindOrCreateByName(ctx context.Context, name string) (*domain.Tag, error) {
	const query = `
        INSERT INTO tags (name, slug)
        VALUES ($1,$2)
        ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
        RETURNING id, name, slug, created_at`
	var tag domain.Tag
	if err := r.db.QueryRow(ctx, query, name, slugify(name)).Scan(
		&tag.ID,
		&tag.Name,
		&tag.Slug,
		&tag.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &tag, nil
}

func (r *tagRepository) List(ctx context.Context) ([]domain.Tag, error) {
	const query = `SELECT id, name, slug, created_at FROM tags ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Slug, &tag.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, tag)
	}
	return result, rows.Err()
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, slug)
	return strings.Trim(slug, "-")
}
