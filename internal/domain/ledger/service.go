package ledger

import (
	"context"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Service is the read side of the ledger.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

func (s *Service) ListEarnings(ctx context.Context, userID uuid.UUID, p Pagination) ([]Earning, error) {
	return s.repo.ListEarnings(ctx, userID, p.normalize())
}

func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, p Pagination) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, userID, p.normalize())
}

func (s *Service) ListFailures(ctx context.Context, filters FailureFilters) ([]PostbackFailure, error) {
	p := Pagination{Limit: filters.Limit, Offset: filters.Offset}.normalize()
	filters.Limit, filters.Offset = p.Limit, p.Offset
	return s.repo.ListFailures(ctx, filters)
}

func (p Pagination) normalize() Pagination {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
