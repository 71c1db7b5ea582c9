package database

import (
	"context"
	"database/sql"
	"fmt"

	"squad_recommender/internal/domain/catalog"

	"github.com/lib/pq"
)

// PostgresCatalogRepository keeps the local copy of catalog problems.
type PostgresCatalogRepository struct {
	db *sql.DB
}

func NewPostgresCatalogRepository(db *sql.DB) *PostgresCatalogRepository {
	return &PostgresCatalogRepository{db: db}
}

// Upsert inserts the problem or refreshes its title, tier and tags.
func (r *PostgresCatalogRepository) Upsert(ctx context.Context, p catalog.ProblemInfo) (int64, error) {
	query := `INSERT INTO problems (external_id, title, tier, tags, updated_at)
               VALUES ($1, $2, $3, $4, NOW())
               ON CONFLICT ON CONSTRAINT problems_external_id_key DO UPDATE SET
                   title = EXCLUDED.title,
                   tier = EXCLUDED.tier,
                   tags = EXCLUDED.tags,
                   updated_at = NOW()
               RETURNING id`
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	var id int64
	if err := r.db.QueryRowContext(ctx, query, p.ExternalID, p.Title, p.Tier, pq.Array(tags)).Scan(&id); err != nil {
		return 0, fmt.Errorf("error upserting problem %d: %w", p.ExternalID, err)
	}
	return id, nil
}
