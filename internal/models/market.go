package models

import "time"

// Quote представляет лучшие цены одной биржи по символу
type Quote struct {
	Exchange  string    `json:"exchange"`
	Symbol    string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	BidSize   float64   `json:"bid_size,omitempty"`
	AskSize   float64   `json:"ask_size,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid возвращает true, если котировка пригодна для расчёта спреда
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0 && q.Ask >= q.Bid
}

// OrderRequest представляет запрос на выставление лимитного ордера
type OrderRequest struct {
	Account  string  `json:"account"`   // bybit, binance
	Symbol   string  `json:"symbol"`    // BTCUSDT
	Side     string  `json:"side"`      // buy, sell
	Type     string  `json:"type"`      // limit
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	ClientID string  `json:"client_id"` // наш idempotency key
}

// OrderAck представляет подтверждение приёма ордера биржей
type OrderAck struct {
	OrderID   string    `json:"order_id"` // биржевой идентификатор
	ClientID  string    `json:"client_id"`
	Account   string    `json:"account"`
	Timestamp time.Time `json:"timestamp"`
}

// Fill представляет исполнение ордера
//
// ResultingPosition - подписанная позиция аккаунта ПОСЛЕ исполнения,
// как её сообщает биржа. Это авторитетное значение: локальный учёт
// позиций всегда перезаписывается им.
type Fill struct {
	Account           string    `json:"account"`
	Exchange          string    `json:"exchange"`
	OrderID           string    `json:"order_id"`
	Symbol            string    `json:"symbol"`
	Side              string    `json:"side"`
	Price             float64   `json:"price"`
	Quantity          float64   `json:"quantity"`
	ResultingPosition float64   `json:"resulting_position"`
	Timestamp         time.Time `json:"timestamp"`
}

// Стороны ордера
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Типы ордеров
const (
	OrderTypeLimit = "limit"
)
