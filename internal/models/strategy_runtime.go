package models

import "time"

// StrategyRuntime представляет runtime состояние арбитражной позиции
type StrategyRuntime struct {
	StrategyID  int        `json:"strategy_id"`
	State       string     `json:"state"`                // IDLE, OPENING, OPENED, CLOSING, CLOSED
	PositionA   float64    `json:"position_a"`           // подписанная позиция ноги A
	PositionB   float64    `json:"position_b"`           // подписанная позиция ноги B
	SpreadAB    float64    `json:"spread_ab"`            // ask A - bid B
	SpreadBA    float64    `json:"spread_ba"`            // ask B - bid A
	Direction   string     `json:"direction,omitempty"`  // positive, negative
	Unilateral  bool       `json:"unilateral"`           // была ли односторонняя фаза
	ChaseCount  int        `json:"chase_count"`          // выполнено догоняющих ордеров
	FilledA     bool       `json:"filled_a"`             // нога A исполнена
	FilledB     bool       `json:"filled_b"`             // нога B исполнена
	PendingA    string     `json:"pending_order_a,omitempty"`
	PendingB    string     `json:"pending_order_b,omitempty"`
	OpenedAt    *time.Time `json:"opened_at,omitempty"`  // начало фазы открытия
	ClosedAt    *time.Time `json:"closed_at,omitempty"`  // начало фазы закрытия
	TradesCount int        `json:"trades_count"`         // завершённых циклов
	TotalPnl    float64    `json:"total_pnl"`            // накопленный PNL
	LastUpdate  time.Time  `json:"last_update"`
}

// Состояния стратегии (state machine)
const (
	StateIdle    = "IDLE"    // нет позиции, мониторинг спреда
	StateOpening = "OPENING" // ордера на открытие выставлены
	StateOpened  = "OPENED"  // обе ноги открыты, ожидание выхода
	StateClosing = "CLOSING" // ордера на закрытие выставлены
	StateClosed  = "CLOSED"  // цикл завершён, фиксация результата
)

// Направления арбитража
const (
	DirectionPositive = "positive" // sell A / buy B (спред AB)
	DirectionNegative = "negative" // sell B / buy A (спред BA)
)

// StrategyStatus полный снимок стратегии для API
type StrategyStatus struct {
	StrategyID int                `json:"strategy_id"`
	Name       string             `json:"name"`
	Symbol     string             `json:"symbol"`
	Enabled    bool               `json:"enabled"`
	AutoMode   bool               `json:"auto_mode"`
	Status     StrategyRuntime    `json:"status"`
	Parameters StrategyParameters `json:"parameters"`
}
