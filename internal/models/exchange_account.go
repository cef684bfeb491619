package models

import "time"

// ExchangeAccount представляет биржевой аккаунт с API ключами
type ExchangeAccount struct {
	ID         int       `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"` // bybit, binance
	APIKey     string    `json:"-" db:"api_key"` // зашифрован, не возвращается в JSON
	SecretKey  string    `json:"-" db:"secret_key"`
	Passphrase string    `json:"-" db:"passphrase"` // не у всех бирж, зашифрован
	Connected  bool      `json:"connected" db:"connected"`
	Balance    float64   `json:"balance" db:"balance"` // equity в USDT
	LastError  string    `json:"last_error,omitempty" db:"last_error"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ExchangeStatus представляет состояние подключения биржи для API
type ExchangeStatus struct {
	Name        string     `json:"name"`
	Connected   bool       `json:"connected"`
	Balance     float64    `json:"balance"`
	QuoteAgeMs  int64      `json:"quote_age_ms"`  // возраст последней котировки
	QuoteFresh  bool       `json:"quote_fresh"`   // котировка не устарела
	LastError   string     `json:"last_error,omitempty"`
	LastQuoteAt *time.Time `json:"last_quote_at,omitempty"`
}
