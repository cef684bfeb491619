package service

import (
	"context"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// StrategyRepositoryInterface определяет интерфейс репозитория стратегий
type StrategyRepositoryInterface interface {
	Create(cfg *models.StrategyConfig) error
	GetByID(id int) (*models.StrategyConfig, error)
	GetBySymbol(symbol string) ([]*models.StrategyConfig, error)
	GetAll() ([]*models.StrategyConfig, error)
	GetActive() ([]*models.StrategyConfig, error)
	Update(cfg *models.StrategyConfig) error
	UpdateParams(id int, params models.StrategyParameters) error
	UpdateStatus(id int, status string) error
	UpdateAutoMode(id int, autoMode bool) error
	RecordTradeResult(id int, pnlDelta float64) error
	ResetStats(id int) error
	Delete(id int) error
	Count() (int, error)
	CountActive() (int, error)
	Exists(symbol, accountA, accountB string) (bool, error)
}

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов площадок
type AccountRepositoryInterface interface {
	Create(account *models.ExchangeAccount) error
	GetByID(id int) (*models.ExchangeAccount, error)
	GetByName(name string) (*models.ExchangeAccount, error)
	GetAll() ([]*models.ExchangeAccount, error)
	GetConnected() ([]*models.ExchangeAccount, error)
	Update(account *models.ExchangeAccount) error
	UpdateBalance(id int, balance float64) error
	UpdateBalanceByName(name string, balance float64) error
	SetConnected(id int, connected bool) error
	SetLastError(id int, errorMessage string) error
	Delete(id int) error
	CountConnected() (int, error)
}

// TradeRepositoryInterface определяет интерфейс журнала завершенных циклов
type TradeRepositoryInterface interface {
	Create(trade *models.TradeRecord) error
	GetByStrategy(strategyID, limit int) ([]*models.TradeRecord, error)
	GetInTimeRange(from, to time.Time, limit int) ([]*models.TradeRecord, error)
	StatsInRange(from, to time.Time) (int, float64, error)
	CountWinning() (int, error)
	Count() (int, error)
	GetTopByTrades(limit int) ([]models.StrategyStat, error)
	GetTopByProfit(limit int) ([]models.StrategyStat, error)
	GetTopByLoss(limit int) ([]models.StrategyStat, error)
	GetPnlBySymbol(symbol string) (float64, error)
	CountUnilateralSince(since time.Time) (int, error)
	UnilateralEvents(limit int) ([]models.UnilateralEvent, error)
	DeleteOlderThan(threshold time.Time) (int64, error)
	DeleteAll() error
}

// OrderRepositoryInterface определяет интерфейс журнала ордеров
type OrderRepositoryInterface interface {
	Create(order *models.OrderRecord) error
	GetByStrategy(strategyID, limit int) ([]*models.OrderRecord, error)
	GetRecent(limit int) ([]*models.OrderRecord, error)
	UpdateStatus(id int, status string, price float64, filledAt *time.Time) error
	CountChaseSince(since time.Time) (int, error)
	ChaseEvents(limit int) ([]models.ChaseEvent, error)
	Count() (int, error)
	CountByStatus(status string) (int, error)
}

// NotificationRepositoryInterface определяет интерфейс репозитория уведомлений
type NotificationRepositoryInterface interface {
	Create(notif *models.Notification) error
	GetRecent(limit int) ([]*models.Notification, error)
	GetByTypes(types []string, limit int) ([]*models.Notification, error)
	GetByStrategy(strategyID, limit int) ([]*models.Notification, error)
	DeleteAll() error
	Count() (int, error)
	CountByType(notifType string) (int, error)
	KeepRecent(keepCount int) (int64, error)
}

// SettingsRepositoryInterface определяет интерфейс репозитория настроек
type SettingsRepositoryInterface interface {
	Get() (*models.Settings, error)
	Update(settings *models.Settings) error
	UpdateNotificationPrefs(prefs models.NotificationPreferences) error
	UpdateAutoStart(autoStart bool) error
	UpdateMaxConcurrentStrategies(maxStrategies *int) error
	GetNotificationPrefs() (*models.NotificationPreferences, error)
	GetMaxConcurrentStrategies() (*int, error)
	ResetToDefaults() error
}

// BlacklistRepositoryInterface определяет интерфейс репозитория черного списка
type BlacklistRepositoryInterface interface {
	Create(entry *models.BlacklistEntry) error
	GetAll() ([]*models.BlacklistEntry, error)
	Symbols() ([]string, error)
	GetBySymbol(symbol string) (*models.BlacklistEntry, error)
	Delete(symbol string) error
	Exists(symbol string) (bool, error)
	UpdateReason(symbol, reason string) error
	Count() (int, error)
	DeleteAll() error
	Search(query string) ([]*models.BlacklistEntry, error)
}

// Проверяем, что реальные репозитории реализуют интерфейсы
var _ StrategyRepositoryInterface = (*repository.StrategyRepository)(nil)
var _ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
var _ TradeRepositoryInterface = (*repository.TradeRepository)(nil)
var _ OrderRepositoryInterface = (*repository.OrderRepository)(nil)
var _ NotificationRepositoryInterface = (*repository.NotificationRepository)(nil)
var _ SettingsRepositoryInterface = (*repository.SettingsRepository)(nil)
var _ BlacklistRepositoryInterface = (*repository.BlacklistRepository)(nil)

// ============ Интерфейсы сервисов для Dependency Injection ============

// BlacklistServiceInterface определяет интерфейс сервиса черного списка
type BlacklistServiceInterface interface {
	AddToBlacklist(symbol, reason string) (*models.BlacklistEntry, error)
	GetBlacklist() ([]*models.BlacklistEntry, error)
	RemoveFromBlacklist(symbol string) error
	GetBySymbol(symbol string) (*models.BlacklistEntry, error)
	IsBlacklisted(symbol string) (bool, error)
	Blocked(symbol string) (string, bool)
	UpdateReason(symbol, reason string) error
	Search(query string) ([]*models.BlacklistEntry, error)
	Symbols() ([]string, error)
	GetCount() (int, error)
	ClearAll() error
}

// SettingsServiceInterface определяет интерфейс сервиса настроек
type SettingsServiceInterface interface {
	GetSettings() (*models.Settings, error)
	UpdateSettings(req *UpdateSettingsRequest) (*models.Settings, error)
	GetNotificationPrefs() (*models.NotificationPreferences, error)
	GetMaxConcurrentStrategies() (*int, error)
	ResetToDefaults() error
}

// NotificationServiceInterface определяет интерфейс сервиса уведомлений
type NotificationServiceInterface interface {
	GetNotifications(types []string, limit int) ([]*models.Notification, error)
	ClearNotifications() error
	CreateNotification(notif *models.Notification) error
	GetNotificationCount() (int, error)
}

// StatsServiceInterface определяет интерфейс сервиса статистики
type StatsServiceInterface interface {
	GetStats() (*models.Stats, error)
	GetTopStrategies(metric string, limit int) ([]models.StrategyStat, error)
	ResetStats() error
}

// StrategyServiceInterface определяет интерфейс сервиса стратегий.
// HTTP-слой зависит от него, а не от конкретного *StrategyService.
type StrategyServiceInterface interface {
	CreateStrategy(ctx context.Context, cfg *models.StrategyConfig) error
	GetStrategy(ctx context.Context, id int) (*models.StrategyConfig, error)
	GetAllStrategies(ctx context.Context) ([]*models.StrategyConfig, error)
	GetStrategyWithRuntime(ctx context.Context, id int) (*StrategyWithRuntime, error)
	GetStrategyRuntime(id int) *models.StrategyRuntime
	UpdateStrategy(ctx context.Context, id int, upd models.StrategyParametersUpdate) (*models.StrategyConfig, error)
	DeleteStrategy(ctx context.Context, id int) error
	StartStrategy(ctx context.Context, id int) error
	PauseStrategy(ctx context.Context, id int, forceClose bool) error
	SetAutoMode(ctx context.Context, id int, auto bool) error
	ManualClose(ctx context.Context, id int) error
	ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error)
}

// AccountServiceInterface определяет интерфейс сервиса биржевых аккаунтов
type AccountServiceInterface interface {
	ConnectAccount(ctx context.Context, name, apiKey, secretKey, passphrase string) error
	DisconnectAccount(ctx context.Context, name string) error
	UpdateBalance(ctx context.Context, name string) (float64, error)
	UpdateAllBalances(ctx context.Context) map[string]float64
	GetAllAccounts() ([]*models.ExchangeAccount, error)
	GetAccountByName(name string) (*models.ExchangeAccount, error)
}

// Проверяем, что реальные сервисы реализуют интерфейсы
var _ BlacklistServiceInterface = (*BlacklistService)(nil)
var _ SettingsServiceInterface = (*SettingsService)(nil)
var _ NotificationServiceInterface = (*NotificationService)(nil)
var _ StatsServiceInterface = (*StatsService)(nil)
var _ StrategyServiceInterface = (*StrategyService)(nil)
var _ AccountServiceInterface = (*AccountService)(nil)
