package models

import "time"

// OrderRecord представляет запись журнала ордеров
type OrderRecord struct {
	ID           int        `json:"id" db:"id"`
	StrategyID   int        `json:"strategy_id" db:"strategy_id"`
	Exchange     string     `json:"exchange" db:"exchange"`
	Symbol       string     `json:"symbol" db:"symbol"`
	OrderID      string     `json:"order_id" db:"order_id"`   // биржевой идентификатор
	ClientID     string     `json:"client_id" db:"client_id"` // наш idempotency key
	Side         string     `json:"side" db:"side"`           // buy, sell
	Type         string     `json:"type" db:"type"`           // limit
	Price        float64    `json:"price" db:"price"`
	Quantity     float64    `json:"quantity" db:"quantity"`
	Status       string     `json:"status" db:"status"` // pending, filled, cancelled, rejected
	Chase        bool       `json:"chase" db:"chase"`   // догоняющий ордер
	ErrorMessage string     `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	FilledAt     *time.Time `json:"filled_at,omitempty" db:"filled_at"`
}

// Статусы ордера
const (
	OrderStatusPending   = "pending"
	OrderStatusFilled    = "filled"
	OrderStatusCancelled = "cancelled"
	OrderStatusRejected  = "rejected"
)
