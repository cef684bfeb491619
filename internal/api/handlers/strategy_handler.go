package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// StrategyHandler обрабатывает запросы управления арбитражными стратегиями
type StrategyHandler struct {
	strategyService service.StrategyServiceInterface
}

// NewStrategyHandler создает обработчик стратегий
func NewStrategyHandler(strategyService service.StrategyServiceInterface) *StrategyHandler {
	return &StrategyHandler{strategyService: strategyService}
}

// CreateStrategyRequest - тело запроса на создание стратегии
type CreateStrategyRequest struct {
	Name            string  `json:"name"`
	Symbol          string  `json:"symbol"`
	AccountA        string  `json:"account_a"`
	AccountB        string  `json:"account_b"`
	OpenThreshold   float64 `json:"open_threshold"`
	CloseThreshold  float64 `json:"close_threshold"`
	OrderSize       float64 `json:"order_size"`
	MaxChaseCount   int     `json:"max_chase_count"`
	TradeTimeoutSec float64 `json:"trade_timeout_seconds"`
	AutoMode        bool    `json:"auto_mode"`
}

// SetAutoModeRequest - тело запроса на переключение автоматического режима
type SetAutoModeRequest struct {
	Auto bool `json:"auto"`
}

// ManualOrderRequest - тело запроса на ручной ордер вне стратегий
type ManualOrderRequest struct {
	Account string  `json:"account"`
	Symbol  string  `json:"symbol"`
	Side    string  `json:"side"`
	Price   float64 `json:"price"`
	Size    float64 `json:"size"`
}

// ManualOrderResponse - ответ на ручной ордер
type ManualOrderResponse struct {
	OrderID string `json:"order_id"`
}

// StrategyResponse - представление стратегии в API
type StrategyResponse struct {
	ID              int                     `json:"id"`
	Name            string                  `json:"name"`
	Symbol          string                  `json:"symbol"`
	AccountA        string                  `json:"account_a"`
	AccountB        string                  `json:"account_b"`
	OpenThreshold   float64                 `json:"open_threshold"`
	CloseThreshold  float64                 `json:"close_threshold"`
	OrderSize       float64                 `json:"order_size"`
	MaxChaseCount   int                     `json:"max_chase_count"`
	TradeTimeoutSec float64                 `json:"trade_timeout_seconds"`
	Status          string                  `json:"status"`
	AutoMode        bool                    `json:"auto_mode"`
	TradesCount     int                     `json:"trades_count"`
	TotalPnl        float64                 `json:"total_pnl"`
	Runtime         *models.StrategyRuntime `json:"runtime,omitempty"`
}

func toStrategyResponse(cfg *models.StrategyConfig, rt *models.StrategyRuntime) StrategyResponse {
	return StrategyResponse{
		ID:              cfg.ID,
		Name:            cfg.Name,
		Symbol:          cfg.Symbol,
		AccountA:        cfg.AccountA,
		AccountB:        cfg.AccountB,
		OpenThreshold:   cfg.OpenThreshold,
		CloseThreshold:  cfg.CloseThreshold,
		OrderSize:       cfg.OrderSize,
		MaxChaseCount:   cfg.MaxChaseCount,
		TradeTimeoutSec: cfg.TradeTimeoutSec,
		Status:          cfg.Status,
		AutoMode:        cfg.AutoMode,
		TradesCount:     cfg.TradesCount,
		TotalPnl:        cfg.TotalPnl,
		Runtime:         rt,
	}
}

// CreateStrategy обрабатывает POST /api/v1/strategies
func (h *StrategyHandler) CreateStrategy(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req CreateStrategyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	cfg := &models.StrategyConfig{
		Name:            req.Name,
		Symbol:          req.Symbol,
		AccountA:        req.AccountA,
		AccountB:        req.AccountB,
		OpenThreshold:   req.OpenThreshold,
		CloseThreshold:  req.CloseThreshold,
		OrderSize:       req.OrderSize,
		MaxChaseCount:   req.MaxChaseCount,
		TradeTimeoutSec: req.TradeTimeoutSec,
		AutoMode:        req.AutoMode,
	}

	if err := h.strategyService.CreateStrategy(r.Context(), cfg); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, toStrategyResponse(cfg, nil))
}

// GetStrategies обрабатывает GET /api/v1/strategies
func (h *StrategyHandler) GetStrategies(w http.ResponseWriter, r *http.Request) {
	configs, err := h.strategyService.GetAllStrategies(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	responses := make([]StrategyResponse, 0, len(configs))
	for _, cfg := range configs {
		responses = append(responses, toStrategyResponse(cfg, h.strategyService.GetStrategyRuntime(cfg.ID)))
	}

	h.respondWithJSON(w, http.StatusOK, responses)
}

// GetStrategy обрабатывает GET /api/v1/strategies/{id}
func (h *StrategyHandler) GetStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	swr, err := h.strategyService.GetStrategyWithRuntime(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, toStrategyResponse(swr.Config, swr.Runtime))
}

// GetStrategyStatus обрабатывает GET /api/v1/strategies/{id}/status.
// Возвращает только снимок состояния торгового движка, без конфигурации.
func (h *StrategyHandler) GetStrategyStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	rt := h.strategyService.GetStrategyRuntime(id)
	if rt == nil {
		h.respondWithError(w, http.StatusNotFound, "strategy is not registered in the engine", "strategy_not_registered")
		return
	}

	h.respondWithJSON(w, http.StatusOK, rt)
}

// UpdateStrategy обрабатывает PATCH /api/v1/strategies/{id}.
// Тело содержит только изменяемые параметры, остальные не затрагиваются.
func (h *StrategyHandler) UpdateStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var upd models.StrategyParametersUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	cfg, err := h.strategyService.UpdateStrategy(r.Context(), id, upd)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, toStrategyResponse(cfg, h.strategyService.GetStrategyRuntime(id)))
}

// DeleteStrategy обрабатывает DELETE /api/v1/strategies/{id}
func (h *StrategyHandler) DeleteStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	if err := h.strategyService.DeleteStrategy(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// StartStrategy обрабатывает POST /api/v1/strategies/{id}/start
func (h *StrategyHandler) StartStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	if err := h.strategyService.StartStrategy(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	// Возвращаем актуальное состояние после запуска
	swr, err := h.strategyService.GetStrategyWithRuntime(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, toStrategyResponse(swr.Config, swr.Runtime))
}

// PauseStrategy обрабатывает POST /api/v1/strategies/{id}/pause.
// С параметром ?force=true открытая позиция принудительно закрывается,
// без него стратегия с позицией не останавливается.
func (h *StrategyHandler) PauseStrategy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	force := r.URL.Query().Get("force") == "true"

	if err := h.strategyService.PauseStrategy(r.Context(), id, force); err != nil {
		h.handleServiceError(w, err)
		return
	}

	swr, err := h.strategyService.GetStrategyWithRuntime(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, toStrategyResponse(swr.Config, swr.Runtime))
}

// SetAutoMode обрабатывает POST /api/v1/strategies/{id}/auto
func (h *StrategyHandler) SetAutoMode(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req SetAutoModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if err := h.strategyService.SetAutoMode(r.Context(), id, req.Auto); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "auto mode updated"})
}

// ManualClose обрабатывает POST /api/v1/strategies/{id}/close.
// Закрытие асинхронное: движок переводит стратегию в CLOSING и выставляет
// закрывающие ордера, поэтому ответ - 202 Accepted.
func (h *StrategyHandler) ManualClose(w http.ResponseWriter, r *http.Request) {
	id, ok := h.strategyID(w, r)
	if !ok {
		return
	}

	if err := h.strategyService.ManualClose(r.Context(), id); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, SuccessResponse{Message: "close requested"})
}

// ManualOrder обрабатывает POST /api/v1/orders/manual
func (h *StrategyHandler) ManualOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ManualOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if req.Account == "" || req.Symbol == "" {
		h.respondWithError(w, http.StatusBadRequest, "account and symbol are required", "missing_fields")
		return
	}
	if req.Side != models.SideBuy && req.Side != models.SideSell {
		h.respondWithError(w, http.StatusBadRequest, "side must be buy or sell", "invalid_side")
		return
	}
	if req.Price <= 0 || req.Size <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "price and size must be positive", "invalid_order")
		return
	}

	orderID, err := h.strategyService.ManualOrder(r.Context(), req.Account, req.Symbol, req.Side, req.Price, req.Size)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusCreated, ManualOrderResponse{OrderID: orderID})
}

// strategyID извлекает и проверяет идентификатор стратегии из пути
func (h *StrategyHandler) strategyID(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil || id <= 0 {
		h.respondWithError(w, http.StatusBadRequest, "invalid strategy id", "invalid_id")
		return 0, false
	}
	return id, true
}

// handleServiceError преобразует ошибки сервисного слоя в HTTP статусы
func (h *StrategyHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrStrategyNotFound):
		h.respondWithError(w, http.StatusNotFound, err.Error(), "strategy_not_found")
	case errors.Is(err, service.ErrStrategyAlreadyExists):
		h.respondWithError(w, http.StatusConflict, err.Error(), "strategy_exists")
	case errors.Is(err, service.ErrStrategyHasOpenPosition):
		h.respondWithError(w, http.StatusConflict, err.Error(), "position_open")
	case errors.Is(err, service.ErrStrategyAlreadyActive):
		h.respondWithError(w, http.StatusConflict, err.Error(), "already_active")
	case errors.Is(err, service.ErrStrategyAlreadyPaused):
		h.respondWithError(w, http.StatusConflict, err.Error(), "already_paused")
	case errors.Is(err, service.ErrStrategyNotPaused):
		h.respondWithError(w, http.StatusConflict, err.Error(), "not_paused")
	case errors.Is(err, service.ErrMaxStrategiesReached):
		h.respondWithError(w, http.StatusConflict, err.Error(), "max_strategies")
	case errors.Is(err, service.ErrAccountsNotConnected):
		h.respondWithError(w, http.StatusConflict, err.Error(), "accounts_not_connected")
	case errors.Is(err, service.ErrSymbolBlacklisted):
		h.respondWithError(w, http.StatusBadRequest, err.Error(), "symbol_blacklisted")
	case errors.Is(err, service.ErrInvalidSymbol),
		errors.Is(err, service.ErrSameAccounts),
		errors.Is(err, service.ErrUnsupportedAccount),
		errors.Is(err, service.ErrInvalidOpenThreshold),
		errors.Is(err, service.ErrInvalidCloseThreshold),
		errors.Is(err, service.ErrCloseNotBelowOpen),
		errors.Is(err, service.ErrInvalidOrderSize),
		errors.Is(err, service.ErrInvalidChaseCount),
		errors.Is(err, service.ErrInvalidTimeout):
		h.respondWithError(w, http.StatusBadRequest, err.Error(), "invalid_parameters")
	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal server error", "internal_error")
	}
}

func (h *StrategyHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *StrategyHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
