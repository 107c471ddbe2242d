package impression

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pointly/pointly-api/internal/domain/ledger"
)

// Service records client-side impressions. Settlement happens later when the
// network's postback arrives and flips the newest pending row.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Track(ctx context.Context, userID uuid.UUID, req *TrackRequest) (*ledger.AdImpression, error) {
	now := time.Now()
	imp := &ledger.AdImpression{
		ID:        uuid.New(),
		UserID:    userID,
		AdType:    req.AdType,
		AdFormat:  req.AdFormat,
		Status:    ledger.ImpressionPending,
		Metadata:  ledger.JSONRawMessage(req.Metadata),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreatePending(ctx, imp); err != nil {
		return nil, err
	}

	log.Debug().
		Str("user_id", userID.String()).
		Str("ad_type", imp.AdType).
		Str("ad_format", imp.AdFormat).
		Msg("impression tracked")
	return imp, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]ledger.AdImpression, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(ctx, userID, limit, offset)
}
