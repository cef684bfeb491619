package models

import (
	"fmt"
	"time"
)

// StrategyConfig представляет конфигурацию арбитражной стратегии
//
// Стратегия торгует один символ между двумя биржевыми аккаунтами:
// нога A и нога B. Спред считается по лучшим ценам обеих бирж.
type StrategyConfig struct {
	ID              int       `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`                                   // arb_bybit_binance
	Symbol          string    `json:"symbol" db:"symbol"`                               // BTCUSDT
	AccountA        string    `json:"account_a" db:"account_a"`                         // bybit
	AccountB        string    `json:"account_b" db:"account_b"`                         // binance
	OpenThreshold   float64   `json:"open_threshold" db:"open_threshold"`               // абсолютный спред для входа
	CloseThreshold  float64   `json:"close_threshold" db:"close_threshold"`             // абсолютный спред для выхода
	OrderSize       float64   `json:"order_size" db:"order_size"`                       // объем в монетах
	MaxChaseCount   int       `json:"max_chase_count" db:"max_chase_count"`             // лимит догоняющих ордеров
	TradeTimeoutSec float64   `json:"trade_timeout_seconds" db:"trade_timeout_seconds"` // таймаут исполнения ног
	Status          string    `json:"status" db:"status"`                               // paused, active
	AutoMode        bool      `json:"auto_mode" db:"auto_mode"`                         // автоматическая торговля по тикам
	TradesCount     int       `json:"trades_count" db:"trades_count"`                   // локальная статистика
	TotalPnl        float64   `json:"total_pnl" db:"total_pnl"`                         // локальная статистика
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// Статусы стратегии
const (
	StrategyStatusPaused = "paused"
	StrategyStatusActive = "active"
)

// Параметры стратегии по умолчанию
const (
	DefaultOpenThreshold   = 0.5
	DefaultCloseThreshold  = 0.3
	DefaultOrderSize       = 0.01
	DefaultMaxChaseCount   = 5
	DefaultTradeTimeoutSec = 3.0
)

// MakeStrategyName строит каноническое имя стратегии из пары аккаунтов
func MakeStrategyName(accountA, accountB string) string {
	return fmt.Sprintf("arb_%s_%s", accountA, accountB)
}

// StrategyParameters торговые параметры, изменяемые на лету
type StrategyParameters struct {
	OpenThreshold   float64 `json:"open_threshold"`
	CloseThreshold  float64 `json:"close_threshold"`
	OrderSize       float64 `json:"order_size"`
	MaxChaseCount   int     `json:"max_chase_count"`
	TradeTimeoutSec float64 `json:"trade_timeout_seconds"`
}

// StrategyParametersUpdate частичное обновление параметров
//
// nil-поле означает "не менять". Обновление применяется атомарно:
// либо все указанные поля проходят валидацию, либо ничего не меняется.
type StrategyParametersUpdate struct {
	OpenThreshold   *float64 `json:"open_threshold,omitempty"`
	CloseThreshold  *float64 `json:"close_threshold,omitempty"`
	OrderSize       *float64 `json:"order_size,omitempty"`
	MaxChaseCount   *int     `json:"max_chase_count,omitempty"`
	TradeTimeoutSec *float64 `json:"trade_timeout_seconds,omitempty"`
}
