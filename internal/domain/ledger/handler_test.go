package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointly/pointly-api/internal/domain/ledger"
	"github.com/pointly/pointly-api/internal/middleware"
	"github.com/pointly/pointly-api/internal/pkg/jwt"
)

type fakeRepo struct {
	ledger.Repository

	balance     int64
	earnings    []ledger.Earning
	lastPage    ledger.Pagination
	lastFilters ledger.FailureFilters
	failures    []ledger.PostbackFailure
	balanceErr  error
}

func (f *fakeRepo) GetBalance(context.Context, uuid.UUID) (int64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeRepo) ListEarnings(_ context.Context, _ uuid.UUID, p ledger.Pagination) ([]ledger.Earning, error) {
	f.lastPage = p
	return f.earnings, nil
}

func (f *fakeRepo) ListTransactions(_ context.Context, _ uuid.UUID, p ledger.Pagination) ([]ledger.Transaction, error) {
	f.lastPage = p
	return []ledger.Transaction{}, nil
}

func (f *fakeRepo) ListFailures(_ context.Context, filters ledger.FailureFilters) ([]ledger.PostbackFailure, error) {
	f.lastFilters = filters
	return f.failures, nil
}

type ledgerAPIResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

func newLedgerRouter(repo *fakeRepo) (http.Handler, *jwt.Service) {
	jwtSvc := jwt.NewService("ledger-test-secret", time.Hour)
	h := ledger.NewHandler(ledger.NewService(repo))

	r := chi.NewRouter()
	r.Mount("/api/v1/me", h.Routes(middleware.Auth(jwtSvc)))
	r.Mount("/api/admin", h.AdminRoutes(middleware.Auth(jwtSvc)))
	return r, jwtSvc
}

func performLedgerRequest(t *testing.T, handler http.Handler, jwtSvc *jwt.Service, role, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if role != "" {
		token, err := jwtSvc.GenerateAccessToken(uuid.New(), role, false)
		if err != nil {
			t.Fatalf("generate token failed: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBalanceEndpoint(t *testing.T) {
	repo := &fakeRepo{balance: -250}
	r, jwtSvc := newLedgerRouter(repo)

	rec := performLedgerRequest(t, r, jwtSvc, "user", "/api/v1/me/balance")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body ledgerAPIResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	var data struct {
		Balance int64 `json:"balance"`
	}
	if err := json.Unmarshal(body.Data, &data); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if !body.Success || data.Balance != -250 {
		t.Fatalf("expected negative balance to be reported, got %+v", data)
	}

	repo.balanceErr = ledger.ErrUserNotFound
	if rec := performLedgerRequest(t, r, jwtSvc, "user", "/api/v1/me/balance"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing user, got %d", rec.Code)
	}

	if rec := performLedgerRequest(t, r, jwtSvc, "", "/api/v1/me/balance"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without jwt, got %d", rec.Code)
	}
}

func TestListEndpointsClampPagination(t *testing.T) {
	repo := &fakeRepo{}
	r, jwtSvc := newLedgerRouter(repo)

	tests := []struct {
		path       string
		wantLimit  int
		wantOffset int
	}{
		{path: "/api/v1/me/earnings", wantLimit: 20, wantOffset: 0},
		{path: "/api/v1/me/earnings?limit=500&offset=-3", wantLimit: 100, wantOffset: 0},
		{path: "/api/v1/me/transactions?limit=5&offset=10", wantLimit: 5, wantOffset: 10},
	}
	for _, tt := range tests {
		rec := performLedgerRequest(t, r, jwtSvc, "user", tt.path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.path, rec.Code)
		}
		if repo.lastPage.Limit != tt.wantLimit || repo.lastPage.Offset != tt.wantOffset {
			t.Fatalf("%s: expected %d/%d, got %+v", tt.path, tt.wantLimit, tt.wantOffset, repo.lastPage)
		}
	}
}

func TestFailuresEndpointRequiresAdmin(t *testing.T) {
	repo := &fakeRepo{failures: []ledger.PostbackFailure{{Provider: "cpx", Reason: ledger.FailureUnauthenticated}}}
	r, jwtSvc := newLedgerRouter(repo)

	if rec := performLedgerRequest(t, r, jwtSvc, "user", "/api/admin/postback-failures"); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d", rec.Code)
	}

	rec := performLedgerRequest(t, r, jwtSvc, "admin", "/api/admin/postback-failures?provider=cpx&reason=unauthenticated&date_from=2026-01-01T00:00:00Z")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f := repo.lastFilters
	if f.Provider != "cpx" || f.Reason != "unauthenticated" || f.DateFrom == nil || f.Limit != 20 {
		t.Fatalf("filters not passed through: %+v", f)
	}

	if rec := performLedgerRequest(t, r, jwtSvc, "admin", "/api/admin/postback-failures?date_to=yesterday"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad date, got %d", rec.Code)
	}
}
