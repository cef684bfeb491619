package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"crossarb/internal/service"
)

// SettingsHandler обрабатывает запросы глобальных настроек бота
type SettingsHandler struct {
	settingsService service.SettingsServiceInterface
}

// NewSettingsHandler создает обработчик настроек
func NewSettingsHandler(settingsService service.SettingsServiceInterface) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// GetSettings обрабатывает GET /api/v1/settings
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settingsService.GetSettings()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get settings", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, settings)
}

// UpdateSettings обрабатывает PATCH /api/v1/settings.
// Поля-указатели в теле запроса позволяют различать "не менять" и
// "установить". Сброс лимита стратегий в null передается отдельным
// флагом clear_max_concurrent_strategies.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req service.UpdateSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	settings, err := h.settingsService.UpdateSettings(&req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidMaxConcurrentStrategies) {
			h.respondWithError(w, http.StatusBadRequest, err.Error(), "invalid_parameters")
			return
		}
		h.respondWithError(w, http.StatusInternalServerError, "failed to update settings", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, settings)
}

// ResetSettings обрабатывает POST /api/v1/settings/reset
func (h *SettingsHandler) ResetSettings(w http.ResponseWriter, r *http.Request) {
	if err := h.settingsService.ResetToDefaults(); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to reset settings", "internal_error")
		return
	}

	settings, err := h.settingsService.GetSettings()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get settings after reset", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *SettingsHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
