package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/api/middleware"
	"github.com/saferoute/saferoute/internal/api/models"
	"github.com/saferoute/saferoute/internal/api/response"
	"github.com/saferoute/saferoute/internal/history"
)

// HistoryService manages a user's saved route plans.
type HistoryService interface {
	List(ctx context.Context, userID string, limit int) ([]*history.Entry, error)
	Delete(ctx context.Context, userID, id string) error
	Clear(ctx context.Context, userID string) (int64, error)
	MaxEntries() int
}

// HistoryHandler handles /v1/me/history endpoints.
type HistoryHandler struct {
	history HistoryService
	logger  zerolog.Logger
}

// NewHistoryHandler creates a new HistoryHandler.
func NewHistoryHandler(svc HistoryService, logger zerolog.Logger) *HistoryHandler {
	return &HistoryHandler{history: svc, logger: logger}
}

// ListHistory handles GET /v1/me/history?limit=N.
func (h *HistoryHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	limit := h.history.MaxEntries()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, r, "limit must be a positive integer", []models.FieldError{
				{Field: "limit", Message: "must be a positive integer", Code: "OUT_OF_RANGE"},
			})
			return
		}
		limit = min(n, limit)
	}

	entries, err := h.history.List(r.Context(), userID, limit)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to list history")
		response.InternalError(w, r, "failed to load history")
		return
	}

	list := models.HistoryList{Items: make([]models.HistoryEntry, 0, len(entries)), Limit: limit}
	for _, e := range entries {
		list.Items = append(list.Items, toHistoryEntry(e))
	}
	response.JSON(w, r, http.StatusOK, list)
}

// ClearHistory handles DELETE /v1/me/history.
func (h *HistoryHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	n, err := h.history.Clear(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to clear history")
		response.InternalError(w, r, "failed to clear history")
		return
	}
	response.JSON(w, r, http.StatusOK, models.HistoryCleared{Deleted: n})
}

// DeleteHistoryEntry handles DELETE /v1/me/history/{entryId}.
func (h *HistoryHandler) DeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		response.Unauthorized(w, r, "authentication required")
		return
	}

	entryID := chi.URLParam(r, "entryId")
	if entryID == "" {
		response.BadRequest(w, r, "entry ID is required", nil)
		return
	}

	if err := h.history.Delete(r.Context(), userID, entryID); err != nil {
		if errors.Is(err, history.ErrEntryNotFound) {
			response.NotFound(w, r, "history entry not found")
			return
		}
		h.logger.Error().Err(err).Str("user_id", userID).Str("entry_id", entryID).Msg("failed to delete history entry")
		response.InternalError(w, r, "failed to delete history entry")
		return
	}
	response.NoContent(w, r)
}

func toHistoryEntry(e *history.Entry) models.HistoryEntry {
	return models.HistoryEntry{
		ID:          e.ID,
		Origin:      models.Place{Label: e.Origin.Text, Lat: e.Origin.Lat, Lon: e.Origin.Lon},
		Destination: models.Place{Label: e.Destination.Text, Lat: e.Destination.Lat, Lon: e.Destination.Lon},
		Mode:        e.Mode,
		SafetyScore: e.SafetyScore,
		Grade:       e.Grade,
		CreatedAt:   models.Timestamp(e.CreatedAt),
	}
}
