package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

const (
	defaultTopLimit = 5
	maxTopLimit     = 20
)

// validTopMetrics - допустимые метрики рейтинга стратегий
var validTopMetrics = map[string]bool{
	"trades": true,
	"profit": true,
	"loss":   true,
}

// StatsHandler обрабатывает запросы торговой статистики
type StatsHandler struct {
	statsService service.StatsServiceInterface
}

// NewStatsHandler создает обработчик статистики
func NewStatsHandler(statsService service.StatsServiceInterface) *StatsHandler {
	return &StatsHandler{statsService: statsService}
}

// TopStrategiesResponse - ответ с рейтингом стратегий по метрике
type TopStrategiesResponse struct {
	Metric     string                `json:"metric"`
	Strategies []models.StrategyStat `json:"strategies"`
}

// GetStats обрабатывает GET /api/v1/stats
func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statsService.GetStats()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get stats", "internal_error")
		return
	}

	// nil-срезы сериализуются в null, фронтенд ожидает пустые массивы
	if stats.ChaseStats.Events == nil {
		stats.ChaseStats.Events = []models.ChaseEvent{}
	}
	if stats.UnilateralStats.Events == nil {
		stats.UnilateralStats.Events = []models.UnilateralEvent{}
	}
	if stats.TopStrategiesByTrades == nil {
		stats.TopStrategiesByTrades = []models.StrategyStat{}
	}
	if stats.TopStrategiesByProfit == nil {
		stats.TopStrategiesByProfit = []models.StrategyStat{}
	}
	if stats.TopStrategiesByLoss == nil {
		stats.TopStrategiesByLoss = []models.StrategyStat{}
	}

	h.respondWithJSON(w, http.StatusOK, stats)
}

// GetTopStrategies обрабатывает GET /api/v1/stats/top-strategies.
// Параметр ?metric= выбирает рейтинг: trades, profit или loss.
func (h *StatsHandler) GetTopStrategies(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "trades"
	}

	if !validTopMetrics[metric] {
		h.respondWithJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "invalid metric",
			"valid_metrics": []string{"trades", "profit", "loss"},
		})
		return
	}

	limit := defaultTopLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "limit must be a positive integer", "invalid_limit")
			return
		}
		limit = parsed
		if limit > maxTopLimit {
			limit = maxTopLimit
		}
	}

	strategies, err := h.statsService.GetTopStrategies(metric, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get top strategies", "internal_error")
		return
	}

	if strategies == nil {
		strategies = []models.StrategyStat{}
	}

	h.respondWithJSON(w, http.StatusOK, TopStrategiesResponse{
		Metric:     metric,
		Strategies: strategies,
	})
}

// ResetStats обрабатывает POST /api/v1/stats/reset.
// Удаляет всю историю сделок и обнуляет счетчики стратегий.
func (h *StatsHandler) ResetStats(w http.ResponseWriter, r *http.Request) {
	if err := h.statsService.ResetStats(); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to reset stats", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "stats reset"})
}

func (h *StatsHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *StatsHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
