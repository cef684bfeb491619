package models

import "time"

// Notification представляет уведомление о событии
type Notification struct {
	ID         int                    `json:"id" db:"id"`
	Timestamp  time.Time              `json:"timestamp" db:"timestamp"`
	Type       string                 `json:"type" db:"type"`         // OPEN, CLOSE, CHASE, UNILATERAL, ...
	Severity   string                 `json:"severity" db:"severity"` // info, warn, error
	StrategyID *int                   `json:"strategy_id,omitempty" db:"strategy_id"`
	Message    string                 `json:"message" db:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty" db:"meta"` // дополнительные данные (JSON в БД)
}

// Типы уведомлений
const (
	NotificationTypeOpen          = "OPEN"           // открытие арбитража
	NotificationTypeClose         = "CLOSE"          // закрытие позиций
	NotificationTypeChase         = "CHASE"          // выставлен догоняющий ордер
	NotificationTypeUnilateral    = "UNILATERAL"     // односторонняя экспозиция
	NotificationTypeTimeout       = "TIMEOUT"        // таймаут исполнения, ордера сняты
	NotificationTypeRiskViolation = "RISK_VIOLATION" // запрет риск-менеджера
	NotificationTypeError         = "ERROR"          // ошибка API/ордера
	NotificationTypePause         = "PAUSE"          // пауза/остановка стратегии
	NotificationTypeRecovery      = "RECOVERY"       // сверка после перезапуска
)

// Уровни важности
const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)
