package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// BlacklistHandler обрабатывает запросы черного списка символов
type BlacklistHandler struct {
	blacklistService service.BlacklistServiceInterface
}

// NewBlacklistHandler создает обработчик черного списка
func NewBlacklistHandler(blacklistService service.BlacklistServiceInterface) *BlacklistHandler {
	return &BlacklistHandler{blacklistService: blacklistService}
}

// AddBlacklistRequest - тело запроса на добавление символа
type AddBlacklistRequest struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason,omitempty"`
}

// BlacklistResponse - ответ со списком заблокированных символов
type BlacklistResponse struct {
	Entries []*models.BlacklistEntry `json:"entries"`
	Total   int                      `json:"total"`
}

// GetBlacklist обрабатывает GET /api/v1/blacklist.
// Параметр ?q= фильтрует символы по подстроке.
func (h *BlacklistHandler) GetBlacklist(w http.ResponseWriter, r *http.Request) {
	var (
		entries []*models.BlacklistEntry
		err     error
	)

	if query := strings.TrimSpace(r.URL.Query().Get("q")); query != "" {
		entries, err = h.blacklistService.Search(query)
	} else {
		entries, err = h.blacklistService.GetBlacklist()
	}
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get blacklist", "internal_error")
		return
	}

	if entries == nil {
		entries = []*models.BlacklistEntry{}
	}

	h.respondWithJSON(w, http.StatusOK, BlacklistResponse{Entries: entries, Total: len(entries)})
}

// AddToBlacklist обрабатывает POST /api/v1/blacklist
func (h *BlacklistHandler) AddToBlacklist(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req AddBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	entry, err := h.blacklistService.AddToBlacklist(req.Symbol, req.Reason)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, entry)
}

// RemoveFromBlacklist обрабатывает DELETE /api/v1/blacklist/{symbol}
func (h *BlacklistHandler) RemoveFromBlacklist(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	if err := h.blacklistService.RemoveFromBlacklist(symbol); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UpdateReason обрабатывает PATCH /api/v1/blacklist/{symbol}
func (h *BlacklistHandler) UpdateReason(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req AddBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if err := h.blacklistService.UpdateReason(symbol, req.Reason); err != nil {
		h.handleServiceError(w, err)
		return
	}

	entry, err := h.blacklistService.GetBySymbol(symbol)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, entry)
}

// handleServiceError преобразует ошибки сервисного слоя в HTTP статусы
func (h *BlacklistHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrBlacklistSymbolEmpty):
		h.respondWithError(w, http.StatusBadRequest, err.Error(), "symbol_empty")
	case errors.Is(err, service.ErrBlacklistSymbolExists):
		h.respondWithError(w, http.StatusConflict, err.Error(), "symbol_exists")
	case errors.Is(err, service.ErrBlacklistEntryNotFound):
		h.respondWithError(w, http.StatusNotFound, err.Error(), "entry_not_found")
	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal server error", "internal_error")
	}
}

func (h *BlacklistHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *BlacklistHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
