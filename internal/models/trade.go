package models

import "time"

// TradeRecord представляет завершённый арбитражный цикл
//
// Записывается при переходе в CLOSED: зафиксированный PNL равен
// последнему спреду удерживаемого направления на момент закрытия.
type TradeRecord struct {
	ID         int       `json:"id" db:"id"`
	StrategyID int       `json:"strategy_id" db:"strategy_id"`
	Symbol     string    `json:"symbol" db:"symbol"`
	Direction  string    `json:"direction" db:"direction"` // positive, negative
	Pnl        float64   `json:"pnl" db:"pnl"`
	ChaseCount int       `json:"chase_count" db:"chase_count"` // догоняющих ордеров за цикл
	Unilateral bool      `json:"unilateral" db:"unilateral"`   // была ли односторонняя фаза
	OpenedAt   time.Time `json:"opened_at" db:"opened_at"`
	ClosedAt   time.Time `json:"closed_at" db:"closed_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
