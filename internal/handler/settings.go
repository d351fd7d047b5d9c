package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jassnet/Fraudhunter/internal/handler/dto"
	"github.com/jassnet/Fraudhunter/internal/settings"
)

// SettingsService reads and updates detection settings.
type SettingsService interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, values map[string]json.RawMessage) (*settings.UpdateResult, error)
}

// SettingsHandler serves the settings endpoints.
type SettingsHandler struct {
	settings SettingsService
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(s SettingsService, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: s, logger: logger}
}

// Get returns the effective settings.
// GET /api/settings
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Get(r.Context())
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Update applies a partial update. Unknown keys and out-of-range values
// are rejected.
// POST /api/settings
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var values map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "body must be a JSON object")
		return
	}
	if len(values) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_SETTING", "no settings given")
		return
	}

	res, err := h.settings.Update(r.Context(), values)
	if err != nil {
		fail(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.SettingsUpdateResponse{
		Success:   true,
		Settings:  res.Settings,
		Persisted: res.Persisted,
		Warning:   res.Warning,
	})
}
