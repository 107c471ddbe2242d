package impression

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pointly/pointly-api/internal/middleware"
	"github.com/pointly/pointly-api/internal/pkg/logger"
	"github.com/pointly/pointly-api/internal/pkg/response"
	"github.com/pointly/pointly-api/internal/pkg/validator"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Track handles POST /ads/impressions
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req TrackRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	imp, err := h.service.Track(r.Context(), userID, &req)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("track impression failed")
		response.InternalError(w)
		return
	}

	response.Created(w, imp)
}

// List handles GET /ads/impressions
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	impressions, err := h.service.List(r.Context(), userID, limit, offset)
	if err != nil {
		logger.FromContext(r.Context()).Error().Err(err).Msg("list impressions failed")
		response.InternalError(w)
		return
	}

	response.OK(w, map[string]interface{}{"impressions": impressions})
}

func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)
	r.Post("/", h.Track)
	r.Get("/", h.List)
	return r
}
