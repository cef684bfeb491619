package models

import "time"

// BlacklistEntry - запись чёрного списка символов.
//
// Список обязателен к исполнению: сервис проверяет его при создании
// стратегии, движок - через скринер на горячем пути. Символ хранится
// нормализованным (верхний регистр).
type BlacklistEntry struct {
	ID        int       `json:"id" db:"id"`
	Symbol    string    `json:"symbol" db:"symbol"` // BTCUSDT
	Reason    string    `json:"reason" db:"reason"` // заметка оператора
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
