package models

import "time"

// Stats представляет агрегированную статистику торговли
type Stats struct {
	TotalTrades     int             `json:"total_trades"`
	TotalPnl        float64         `json:"total_pnl"`
	WinRate         float64         `json:"win_rate"` // доля прибыльных циклов, 0..1
	TodayTrades     int             `json:"today_trades"`
	TodayPnl        float64         `json:"today_pnl"`
	WeekTrades      int             `json:"week_trades"`
	WeekPnl         float64         `json:"week_pnl"`
	MonthTrades     int             `json:"month_trades"`
	MonthPnl        float64         `json:"month_pnl"`
	ChaseStats      ChaseStats      `json:"chase_stats"`
	UnilateralStats UnilateralStats `json:"unilateral_stats"`

	TopStrategiesByTrades []StrategyStat `json:"top_strategies_by_trades"` // топ-5
	TopStrategiesByProfit []StrategyStat `json:"top_strategies_by_profit"` // топ-5
	TopStrategiesByLoss   []StrategyStat `json:"top_strategies_by_loss"`   // топ-5
}

// ChaseStats представляет статистику догоняющих ордеров
type ChaseStats struct {
	Today  int          `json:"today"`
	Week   int          `json:"week"`
	Month  int          `json:"month"`
	Events []ChaseEvent `json:"events"`
}

// ChaseEvent представляет событие догоняющего ордера
type ChaseEvent struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Timestamp time.Time `json:"timestamp"`
}

// UnilateralStats представляет статистику односторонних экспозиций
//
// Односторонняя экспозиция возникает, когда исполнена только одна нога
// и лимит догоняющих ордеров исчерпан.
type UnilateralStats struct {
	Today  int               `json:"today"`
	Week   int               `json:"week"`
	Month  int               `json:"month"`
	Events []UnilateralEvent `json:"events"`
}

// UnilateralEvent представляет событие односторонней экспозиции
type UnilateralEvent struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"` // positive, negative
	Timestamp time.Time `json:"timestamp"`
}

// StrategyStat представляет статистику по стратегии
type StrategyStat struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"` // количество сделок или PNL
}
