package ledger

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointly/pointly-api/internal/middleware"
	"github.com/pointly/pointly-api/internal/pkg/logger"
	"github.com/pointly/pointly-api/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Balance handles GET /me/balance
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	balance, err := h.svc.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			response.NotFound(w, "user not found")
			return
		}
		logger.FromContext(r.Context()).Error().Err(err).Msg("get balance failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"balance": balance})
}

// Earnings handles GET /me/earnings
func (h *Handler) Earnings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	p := paginationFromQuery(r)
	earnings, err := h.svc.ListEarnings(r.Context(), userID, p)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("list earnings failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"earnings": earnings})
}

// Transactions handles GET /me/transactions
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	p := paginationFromQuery(r)
	transactions, err := h.svc.ListTransactions(r.Context(), userID, p)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("list transactions failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"transactions": transactions})
}

// Failures handles GET /admin/postback-failures
func (h *Handler) Failures(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := paginationFromQuery(r)
	filters := FailureFilters{
		Provider: q.Get("provider"),
		Reason:   q.Get("reason"),
		Limit:    p.Limit,
		Offset:   p.Offset,
	}

	if v := q.Get("date_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "date_from must be RFC3339")
			return
		}
		filters.DateFrom = &t
	}
	if v := q.Get("date_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			response.BadRequest(w, "date_to must be RFC3339")
			return
		}
		filters.DateTo = &t
	}

	failures, err := h.svc.ListFailures(r.Context(), filters)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("list postback failures failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"failures": failures})
}

func paginationFromQuery(r *http.Request) Pagination {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	return Pagination{Limit: limit, Offset: offset}
}

// Routes mounts the authenticated user's ledger views.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Get("/balance", h.Balance)
	r.Get("/earnings", h.Earnings)
	r.Get("/transactions", h.Transactions)
	return r
}

// AdminRoutes mounts the dead-letter view for operators.
func (h *Handler) AdminRoutes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Use(middleware.RequireAdmin())
	r.Get("/postback-failures", h.Failures)
	return r
}
