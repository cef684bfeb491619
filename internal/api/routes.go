// Package api собирает HTTP маршруты REST API и websocket-трансляции.
package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crossarb/internal/api/handlers"
	"crossarb/internal/api/middleware"
	"crossarb/internal/service"
	"crossarb/internal/websocket"
)

// Dependencies - зависимости HTTP слоя. Nil-поля допустимы:
// соответствующие маршруты просто не регистрируются.
type Dependencies struct {
	StrategyService     service.StrategyServiceInterface
	AccountService      service.AccountServiceInterface
	NotificationService service.NotificationServiceInterface
	StatsService        service.StatsServiceInterface
	BlacklistService    service.BlacklistServiceInterface
	SettingsService     service.SettingsServiceInterface
	Risk                handlers.RiskControl
	Hub                 *websocket.Hub
	Log                 *zap.Logger
}

// SetupRoutes создает маршрутизатор со всеми эндпоинтами API
func SetupRoutes(deps Dependencies) *mux.Router {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}

	router := mux.NewRouter()

	// Порядок важен: Recovery снаружи, чтобы ловить панику в остальных
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(log))
	router.Use(middleware.CORS)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Управление стратегиями
	if deps.StrategyService != nil {
		strategyHandler := handlers.NewStrategyHandler(deps.StrategyService)
		api.HandleFunc("/strategies", strategyHandler.GetStrategies).Methods(http.MethodGet)
		api.HandleFunc("/strategies", strategyHandler.CreateStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id}", strategyHandler.GetStrategy).Methods(http.MethodGet)
		api.HandleFunc("/strategies/{id}", strategyHandler.UpdateStrategy).Methods(http.MethodPatch)
		api.HandleFunc("/strategies/{id}", strategyHandler.DeleteStrategy).Methods(http.MethodDelete)
		api.HandleFunc("/strategies/{id}/status", strategyHandler.GetStrategyStatus).Methods(http.MethodGet)
		api.HandleFunc("/strategies/{id}/start", strategyHandler.StartStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id}/pause", strategyHandler.PauseStrategy).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id}/auto", strategyHandler.SetAutoMode).Methods(http.MethodPost)
		api.HandleFunc("/strategies/{id}/close", strategyHandler.ManualClose).Methods(http.MethodPost)
		api.HandleFunc("/orders/manual", strategyHandler.ManualOrder).Methods(http.MethodPost)
	}

	// Биржевые аккаунты
	if deps.AccountService != nil {
		accountHandler := handlers.NewAccountHandler(deps.AccountService)
		api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods(http.MethodGet)
		api.HandleFunc("/accounts/balances/refresh", accountHandler.RefreshBalances).Methods(http.MethodPost)
		api.HandleFunc("/accounts/{name}/connect", accountHandler.ConnectAccount).Methods(http.MethodPost)
		api.HandleFunc("/accounts/{name}/connect", accountHandler.DisconnectAccount).Methods(http.MethodDelete)
		api.HandleFunc("/accounts/{name}/balance", accountHandler.GetBalance).Methods(http.MethodGet)
	}

	// Риск-менеджер
	if deps.Risk != nil {
		riskHandler := handlers.NewRiskHandler(deps.Risk)
		api.HandleFunc("/risk", riskHandler.GetSummary).Methods(http.MethodGet)
		api.HandleFunc("/risk/enable", riskHandler.EnableRisk).Methods(http.MethodPost)
		api.HandleFunc("/risk/disable", riskHandler.DisableRisk).Methods(http.MethodPost)
		api.HandleFunc("/risk/rules/{name}", riskHandler.SetRuleEnabled).Methods(http.MethodPatch)
		api.HandleFunc("/risk/limits", riskHandler.ConfigureRules).Methods(http.MethodPut)
		api.HandleFunc("/risk/reset-daily", riskHandler.ResetDailyCounters).Methods(http.MethodPost)
	}

	// Журнал уведомлений
	if deps.NotificationService != nil {
		notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
		api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods(http.MethodGet)
		api.HandleFunc("/notifications", notificationHandler.ClearNotifications).Methods(http.MethodDelete)
	}

	// Статистика
	if deps.StatsService != nil {
		statsHandler := handlers.NewStatsHandler(deps.StatsService)
		api.HandleFunc("/stats", statsHandler.GetStats).Methods(http.MethodGet)
		api.HandleFunc("/stats/top-strategies", statsHandler.GetTopStrategies).Methods(http.MethodGet)
		api.HandleFunc("/stats/reset", statsHandler.ResetStats).Methods(http.MethodPost)
	}

	// Черный список символов
	if deps.BlacklistService != nil {
		blacklistHandler := handlers.NewBlacklistHandler(deps.BlacklistService)
		api.HandleFunc("/blacklist", blacklistHandler.GetBlacklist).Methods(http.MethodGet)
		api.HandleFunc("/blacklist", blacklistHandler.AddToBlacklist).Methods(http.MethodPost)
		api.HandleFunc("/blacklist/{symbol}", blacklistHandler.UpdateReason).Methods(http.MethodPatch)
		api.HandleFunc("/blacklist/{symbol}", blacklistHandler.RemoveFromBlacklist).Methods(http.MethodDelete)
	}

	// Настройки
	if deps.SettingsService != nil {
		settingsHandler := handlers.NewSettingsHandler(deps.SettingsService)
		api.HandleFunc("/settings", settingsHandler.GetSettings).Methods(http.MethodGet)
		api.HandleFunc("/settings", settingsHandler.UpdateSettings).Methods(http.MethodPatch)
		api.HandleFunc("/settings/reset", settingsHandler.ResetSettings).Methods(http.MethodPost)
	}

	// Трансляция состояния в реальном времени
	if deps.Hub != nil {
		router.HandleFunc("/ws/stream", func(w http.ResponseWriter, r *http.Request) {
			websocket.ServeWS(deps.Hub, w, r)
		})
	}

	// Метрики Prometheus
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Проверка живости для балансировщика и docker healthcheck
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	// Профилировщик за базовой авторизацией
	debug := router.PathPrefix("/debug").Subrouter()
	debug.Use(middleware.DebugAuth)
	debug.HandleFunc("/pprof/", pprof.Index)
	debug.HandleFunc("/pprof/cmdline", pprof.Cmdline)
	debug.HandleFunc("/pprof/profile", pprof.Profile)
	debug.HandleFunc("/pprof/symbol", pprof.Symbol)
	debug.HandleFunc("/pprof/trace", pprof.Trace)
	debug.Handle("/pprof/goroutine", pprof.Handler("goroutine"))
	debug.Handle("/pprof/heap", pprof.Handler("heap"))
	debug.Handle("/pprof/block", pprof.Handler("block"))
	debug.Handle("/pprof/mutex", pprof.Handler("mutex"))

	return router
}
