package models

import "time"

// Settings представляет глобальные настройки бота
type Settings struct {
	ID                      int                     `json:"id" db:"id"`
	AutoStart               bool                    `json:"auto_start" db:"auto_start"`                               // запускать активные стратегии при старте
	MaxConcurrentStrategies *int                    `json:"max_concurrent_strategies" db:"max_concurrent_strategies"` // null = без ограничений
	NotificationPrefs       NotificationPreferences `json:"notification_prefs" db:"notification_prefs"`               // JSON в БД
	UpdatedAt               time.Time               `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences представляет настройки уведомлений
type NotificationPreferences struct {
	Open          bool `json:"open"`
	Close         bool `json:"close"`
	Chase         bool `json:"chase"`
	Unilateral    bool `json:"unilateral"`
	Timeout       bool `json:"timeout"`
	RiskViolation bool `json:"risk_violation"`
	APIError      bool `json:"api_error"`
	Pause         bool `json:"pause"`
}
