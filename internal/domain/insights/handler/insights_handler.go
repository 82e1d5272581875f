// Package handler exposes pattern analysis over HTTP/JSON.
package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fstrauf/txapp/internal/domain/insights"
)

// defaultWindowDays is the analysis window when the caller gives no range.
const defaultWindowDays = 90

// InsightsHandler handles insights HTTP endpoints.
type InsightsHandler struct {
	svc    *insights.Service
	logger *slog.Logger
}

// NewInsightsHandler creates a new insights handler.
func NewInsightsHandler(svc *insights.Service, logger *slog.Logger) *InsightsHandler {
	return &InsightsHandler{svc: svc, logger: logger}
}

// Register mounts the insights routes.
func (h *InsightsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/insights/patterns", h.GetPatterns)
}

// GetPatterns returns the spending-pattern analysis for a user window.
// Query parameters: userId (required), from and to as RFC 3339 dates
// (optional; defaults to the trailing 90 days).
func (h *InsightsHandler) GetPatterns(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid or missing userId")
		return
	}

	to := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -defaultWindowDays)
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse("2006-01-02", raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid from date")
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse("2006-01-02", raw); err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid to date")
			return
		}
	}
	if !from.Before(to) {
		h.writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	result, err := h.svc.GetPatterns(r.Context(), userID, from, to)
	if err != nil {
		h.logger.Error("pattern analysis failed", slog.Any("error", err))
		h.writeError(w, http.StatusInternalServerError, "pattern analysis failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

func (h *InsightsHandler) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
