package impression

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pointly/pointly-api/internal/domain/ledger"
)

const queryTimeout = 5 * time.Second

type Repository interface {
	CreatePending(ctx context.Context, imp *ledger.AdImpression) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ledger.AdImpression, error)
}

type impressionRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &impressionRepository{db: db}
}

func (r *impressionRepository) CreatePending(ctx context.Context, imp *ledger.AdImpression) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx2, `
		INSERT INTO ad_impressions (id, user_id, ad_type, ad_format, revenue, status, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 'pending', $5, $6, $6)
	`, imp.ID, imp.UserID, imp.AdType, imp.AdFormat, imp.Metadata, imp.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert impression: %w", err)
	}
	return nil
}

func (r *impressionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ledger.AdImpression, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	impressions := make([]ledger.AdImpression, 0)
	err := r.db.SelectContext(ctx2, &impressions, `
		SELECT id, user_id, ad_type, ad_format, revenue, status, metadata, created_at, updated_at
		FROM ad_impressions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list impressions: %w", err)
	}
	return impressions, nil
}
