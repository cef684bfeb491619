package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"crossarb/internal/exchange"
	"crossarb/internal/service"
)

// AccountHandler обрабатывает запросы управления биржевыми аккаунтами
type AccountHandler struct {
	accountService service.AccountServiceInterface
}

// NewAccountHandler создает обработчик аккаунтов
func NewAccountHandler(accountService service.AccountServiceInterface) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// ConnectAccountRequest - тело запроса на подключение площадки.
// Ключи передаются только в этом запросе и в ответах не возвращаются.
type ConnectAccountRequest struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase,omitempty"`
}

// AccountResponse - представление аккаунта в API, без ключей
type AccountResponse struct {
	Name      string  `json:"name"`
	Connected bool    `json:"connected"`
	Balance   float64 `json:"balance"`
	LastError string  `json:"last_error,omitempty"`
}

// BalanceResponse - ответ на запрос баланса
type BalanceResponse struct {
	Exchange string  `json:"exchange"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// AllBalancesResponse - ответ на принудительное обновление всех балансов
type AllBalancesResponse struct {
	Balances map[string]float64 `json:"balances"`
}

// GetAccounts обрабатывает GET /api/v1/accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.GetAllAccounts()
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get accounts", "internal_error")
		return
	}

	responses := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		responses = append(responses, AccountResponse{
			Name:      acc.Name,
			Connected: acc.Connected,
			Balance:   acc.Balance,
			LastError: acc.LastError,
		})
	}

	h.respondWithJSON(w, http.StatusOK, responses)
}

// ConnectAccount обрабатывает POST /api/v1/accounts/{name}/connect
func (h *AccountHandler) ConnectAccount(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(mux.Vars(r)["name"])

	if !exchange.IsSupported(name) {
		h.respondWithError(w, http.StatusBadRequest,
			"unsupported exchange, supported: "+strings.Join(exchange.SupportedExchanges, ", "),
			"exchange_not_supported")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)

	var req ConnectAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "invalid request body", "invalid_json")
		return
	}

	if req.APIKey == "" || req.SecretKey == "" {
		h.respondWithError(w, http.StatusBadRequest, "api_key and secret_key are required", "missing_credentials")
		return
	}

	if err := h.accountService.ConnectAccount(r.Context(), name, req.APIKey, req.SecretKey, req.Passphrase); err != nil {
		h.handleServiceError(w, err)
		return
	}

	account, err := h.accountService.GetAccountByName(name)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get account after connect", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, AccountResponse{
		Name:      account.Name,
		Connected: account.Connected,
		Balance:   account.Balance,
		LastError: account.LastError,
	})
}

// DisconnectAccount обрабатывает DELETE /api/v1/accounts/{name}/connect
func (h *AccountHandler) DisconnectAccount(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(mux.Vars(r)["name"])

	if err := h.accountService.DisconnectAccount(r.Context(), name); err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "exchange disconnected"})
}

// GetBalance обрабатывает GET /api/v1/accounts/{name}/balance.
// Баланс запрашивается у биржи напрямую, а не из кеша.
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(mux.Vars(r)["name"])

	balance, err := h.accountService.UpdateBalance(r.Context(), name)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, BalanceResponse{
		Exchange: name,
		Balance:  balance,
		Currency: "USDT",
	})
}

// RefreshBalances обрабатывает POST /api/v1/accounts/balances/refresh.
// Опрашивает все подключенные площадки и возвращает карту балансов.
func (h *AccountHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	balances := h.accountService.UpdateAllBalances(r.Context())
	if balances == nil {
		balances = map[string]float64{}
	}

	h.respondWithJSON(w, http.StatusOK, AllBalancesResponse{Balances: balances})
}

// handleServiceError преобразует ошибки сервисного слоя в HTTP статусы
func (h *AccountHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrAccountNotSupported):
		h.respondWithError(w, http.StatusBadRequest, err.Error(), "exchange_not_supported")
	case errors.Is(err, service.ErrAccountAlreadyConnected):
		h.respondWithError(w, http.StatusConflict, err.Error(), "already_connected")
	case errors.Is(err, service.ErrAccountNotConnected):
		h.respondWithError(w, http.StatusNotFound, err.Error(), "not_connected")
	case errors.Is(err, service.ErrInvalidCredentials):
		h.respondWithError(w, http.StatusUnauthorized, err.Error(), "invalid_credentials")
	case errors.Is(err, service.ErrConnectionFailed):
		h.respondWithError(w, http.StatusBadGateway, err.Error(), "connection_failed")
	default:
		h.respondWithError(w, http.StatusInternalServerError, "internal server error", "internal_error")
	}
}

func (h *AccountHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

func (h *AccountHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
