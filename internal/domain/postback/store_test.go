package postback

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/pointly/pointly-api/internal/domain/ledger"
)

// memStore mimics the ledger's unique key and atomic commit in memory.
type memStore struct {
	mu          sync.Mutex
	users       map[uuid.UUID]*ledger.User
	txns        map[string]*ledger.Transaction
	earnings    []ledger.Earning
	impressions []ledger.AdImpression
	failures    []ledger.PostbackFailure

	findErr   error
	commitErr error
	panicOn   string
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[uuid.UUID]*ledger.User),
		txns:  make(map[string]*ledger.Transaction),
	}
}

func (s *memStore) addUser(balance int64) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.users[id] = &ledger.User{ID: id, Email: id.String() + "@example.com", Role: "user", Balance: balance}
	return id
}

func (s *memStore) balance(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id].Balance
}

func (s *memStore) txn(provider, key string) *ledger.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns[provider+"|"+key]
}

func (s *memStore) failureReasons() []ledger.FailureReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ledger.FailureReason, 0, len(s.failures))
	for _, f := range s.failures {
		out = append(out, f.Reason)
	}
	return out
}

func (s *memStore) FindTransaction(_ context.Context, provider, externalTransID string) (*ledger.Transaction, error) {
	if s.panicOn == "find" {
		panic("boom")
	}
	if s.findErr != nil {
		return nil, s.findErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[provider+"|"+externalTransID]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetUser(_ context.Context, id uuid.UUID) (*ledger.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s *memStore) CommitPostback(_ context.Context, c *ledger.Commit) (*ledger.CommitResult, error) {
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := c.Transaction
	key := t.Provider + "|" + t.ExternalTransID
	if _, exists := s.txns[key]; exists {
		return nil, ledger.ErrDuplicateTransaction
	}
	u, ok := s.users[t.UserID]
	if !ok {
		return nil, ledger.ErrUserNotFound
	}

	t.ID = uuid.New()
	stored := *t
	s.txns[key] = &stored
	u.Balance += c.BalanceDelta
	if c.Earning != nil {
		s.earnings = append(s.earnings, *c.Earning)
	}
	if c.Impression != nil {
		s.impressions = append(s.impressions, *c.Impression)
	}
	return &ledger.CommitResult{TransactionID: t.ID, Balance: u.Balance}, nil
}

func (s *memStore) RecordFailure(_ context.Context, f *ledger.PostbackFailure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, *f)
	return nil
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), bool, error) {
	return func() {}, false, nil
}
