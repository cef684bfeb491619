package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"crossarb/internal/models"
)

// RiskControl - операции риск-менеджера, доступные через API.
// Реализуется bot.RiskManager, в тестах подменяется моком.
type RiskControl interface {
	Summary() models.RiskSummary
	Enable()
	Disable()
	SetRuleEnabled(name string, enabled bool) bool
	ConfigureDefaultRules(limits map[string]float64)
	ResetDailyCounters()
}

// RiskHandler обрабатывает запросы управления риск-менеджером
type RiskHandler struct {
	risk RiskControl
}

// NewRiskHandler создает обработчик риск-менеджера
func NewRiskHandler(risk RiskControl) *RiskHandler {
	return &RiskHandler{risk: risk}
}

// SetRuleEnabledRequest - тело запроса на переключение правила
type SetRuleEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// ConfigureRulesRequest - тело запроса на настройку лимитов.
// Ключи карты - имена правил (max_position, max_order_size,
// max_daily_loss, max_chase_count), значения - пороги.
type ConfigureRulesRequest struct {
	Limits map[string]float64 `json:"limits"`
}

// GetSummary обрабатывает GET /api/v1/risk
func (h *RiskHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary := h.risk.Summary()

	if summary.ActiveRules == nil {
		summary.ActiveRules = []string{}
	}
	if summary.RecentEvents == nil {
		summary.RecentEvents = []models.RiskEvent{}
	}
	if summary.RuleDetails == nil {
		summary.RuleDetails = []models.RiskRuleDetail{}
	}

	h.respondWithJSON(w, http.StatusOK, summary)
}

// EnableRisk обрабатывает POST /api/v1/risk/enable
func (h *RiskHandler) EnableRisk(w http.ResponseWriter, r *http.Request) {
	h.risk.Enable()
	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "risk manager enabled"})
}

// DisableRisk обрабатывает POST /api/v1/risk/disable.
// С выключенным менеджером все проверки разрешаются, ордера не блокируются.
func (h *RiskHandler) DisableRisk(w http.ResponseWriter, r *http.Request) {
	h.risk.Disable()
	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "risk manager disabled"})
}

// SetRuleEnabled обрабатывает PATCH /api/v1/risk/rules/{name}
func (h *RiskHandler) SetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SetRuleEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if !h.risk.SetRuleEnabled(name, req.Enabled) {
		h.respondWithError(w, http.StatusNotFound, "risk rule not found", "rule_not_found")
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "rule updated"})
}

// ConfigureRules обрабатывает PUT /api/v1/risk/limits.
// Правило с уже занятым именем заменяется новым порогом.
func (h *RiskHandler) ConfigureRules(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ConfigureRulesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if len(req.Limits) == 0 {
		h.respondWithError(w, http.StatusBadRequest, "limits must not be empty", "missing_limits")
		return
	}
	for name, value := range req.Limits {
		if value <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "limit "+name+" must be positive", "invalid_limit")
			return
		}
	}

	h.risk.ConfigureDefaultRules(req.Limits)

	h.respondWithJSON(w, http.StatusOK, h.risk.Summary())
}

// ResetDailyCounters обрабатывает POST /api/v1/risk/reset-daily
func (h *RiskHandler) ResetDailyCounters(w http.ResponseWriter, r *http.Request) {
	h.risk.ResetDailyCounters()
	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "daily counters reset"})
}

func (h *RiskHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *RiskHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
