package websocket

import (
	"time"

	"crossarb/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeStrategyUpdate - обновление runtime состояния стратегии
	// Отправляется при каждом переходе state machine и обновлении спреда
	MessageTypeStrategyUpdate MessageType = "strategyUpdate"

	// MessageTypeNotification - новое уведомление
	// Отправляется при событиях: открытие, закрытие, chase, односторонняя
	// экспозиция, нарушение риск-правил, ошибки
	MessageTypeNotification MessageType = "notification"

	// MessageTypeBalanceUpdate - обновление баланса площадки
	// Отправляется периодически для всех подключенных площадок
	MessageTypeBalanceUpdate MessageType = "balanceUpdate"

	// MessageTypeStatsUpdate - обновление статистики торговли
	// Отправляется после завершения каждого арбитражного цикла
	MessageTypeStatsUpdate MessageType = "statsUpdate"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
}

// StrategyUpdateMessage - сообщение об обновлении состояния стратегии
//
// Содержит актуальный снимок runtime:
// - Состояние state machine (IDLE, OPENING, OPENED, CLOSING, CLOSED)
// - Текущие спреды в обоих направлениях
// - Позиции ног и статус их исполнения
// - Счётчик догоняющих ордеров и накопленный PNL
type StrategyUpdateMessage struct {
	BaseMessage
	StrategyID int                 `json:"strategy_id"`
	Data       *StrategyUpdateData `json:"data"`
}

// StrategyUpdateData - данные обновления стратегии
type StrategyUpdateData struct {
	// Состояние state machine
	State string `json:"state"`

	// Подписанные позиции ног
	PositionA float64 `json:"position_a"`
	PositionB float64 `json:"position_b"`

	// Спреды в процентах: AB = ask A - bid B, BA = ask B - bid A
	SpreadAB float64 `json:"spread_ab"`
	SpreadBA float64 `json:"spread_ba"`

	// Направление открытой позиции (positive, negative)
	Direction string `json:"direction,omitempty"`

	// Была ли односторонняя фаза в текущем цикле
	Unilateral bool `json:"unilateral"`

	// Выполнено догоняющих ордеров в текущей фазе
	ChaseCount int `json:"chase_count"`

	// Статус исполнения ног
	FilledA bool `json:"filled_a"`
	FilledB bool `json:"filled_b"`

	// ID выставленных, но не исполненных ордеров
	PendingA string `json:"pending_order_a,omitempty"`
	PendingB string `json:"pending_order_b,omitempty"`

	// Временные метки фаз открытия/закрытия
	OpenedAt *time.Time `json:"opened_at,omitempty"`
	ClosedAt *time.Time `json:"closed_at,omitempty"`

	// Накопленные итоги стратегии
	TradesCount int     `json:"trades_count"`
	TotalPnl    float64 `json:"total_pnl"`

	// Время последнего обновления
	LastUpdate time.Time `json:"last_update"`
}

// NotificationMessage - сообщение о новом уведомлении
//
// Содержит информацию о событии:
// - Тип события (OPEN, CLOSE, CHASE, UNILATERAL, TIMEOUT, ...)
// - Уровень важности (info, warn, error)
// - Текст сообщения
// - Дополнительные метаданные
type NotificationMessage struct {
	BaseMessage
	Data *NotificationData `json:"data"`
}

// NotificationData - данные уведомления
type NotificationData struct {
	// ID уведомления в БД
	ID int `json:"id"`

	// Тип уведомления (OPEN, CLOSE, CHASE, UNILATERAL, TIMEOUT,
	// RISK_VIOLATION, ERROR, PAUSE, RECOVERY)
	Type string `json:"type"`

	// Уровень важности (info, warn, error)
	Severity string `json:"severity"`

	// ID связанной стратегии (если применимо)
	StrategyID *int `json:"strategy_id,omitempty"`

	// Текст сообщения
	Message string `json:"message"`

	// Дополнительные метаданные (площадки, цены, PNL и т.д.)
	Meta map[string]interface{} `json:"meta,omitempty"`

	// Время создания уведомления
	Timestamp time.Time `json:"timestamp"`
}

// BalanceUpdateMessage - сообщение об обновлении баланса площадки
//
// Позволяет frontend отображать актуальные балансы в реальном времени
type BalanceUpdateMessage struct {
	BaseMessage
	Exchange string  `json:"exchange"`
	Balance  float64 `json:"balance"`
}

// AllBalancesMessage - сообщение с балансами всех площадок
// Используется при начальной загрузке и массовом обновлении
type AllBalancesMessage struct {
	BaseMessage
	Balances map[string]float64 `json:"balances"`
}

// StatsUpdateMessage - сообщение об обновлении статистики
//
// Отправляется после завершения каждого цикла
// Содержит актуальную агрегированную статистику
type StatsUpdateMessage struct {
	BaseMessage
	Data *StatsUpdateData `json:"data"`
}

// StatsUpdateData - данные статистики
type StatsUpdateData struct {
	// Количество завершённых циклов по периодам
	TodayTrades int `json:"today_trades"`
	WeekTrades  int `json:"week_trades"`
	MonthTrades int `json:"month_trades"`
	TotalTrades int `json:"total_trades"`

	// PNL по периодам
	TodayPnl float64 `json:"today_pnl"`
	WeekPnl  float64 `json:"week_pnl"`
	MonthPnl float64 `json:"month_pnl"`
	TotalPnl float64 `json:"total_pnl"`

	// Доля прибыльных циклов, 0..1
	WinRate float64 `json:"win_rate"`

	// Статистика догоняющих ордеров
	ChaseToday int `json:"chase_today"`
	ChaseWeek  int `json:"chase_week"`
	ChaseMonth int `json:"chase_month"`

	// Статистика односторонних экспозиций
	UnilateralToday int `json:"unilateral_today"`
	UnilateralWeek  int `json:"unilateral_week"`
	UnilateralMonth int `json:"unilateral_month"`
}

// ============ Фабричные функции для создания сообщений ============

// NewStrategyUpdateMessage создает сообщение обновления стратегии
func NewStrategyUpdateMessage(rt models.StrategyRuntime) *StrategyUpdateMessage {
	return &StrategyUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStrategyUpdate,
			Timestamp: time.Now(),
		},
		StrategyID: rt.StrategyID,
		Data: &StrategyUpdateData{
			State:       rt.State,
			PositionA:   rt.PositionA,
			PositionB:   rt.PositionB,
			SpreadAB:    rt.SpreadAB,
			SpreadBA:    rt.SpreadBA,
			Direction:   rt.Direction,
			Unilateral:  rt.Unilateral,
			ChaseCount:  rt.ChaseCount,
			FilledA:     rt.FilledA,
			FilledB:     rt.FilledB,
			PendingA:    rt.PendingA,
			PendingB:    rt.PendingB,
			OpenedAt:    rt.OpenedAt,
			ClosedAt:    rt.ClosedAt,
			TradesCount: rt.TradesCount,
			TotalPnl:    rt.TotalPnl,
			LastUpdate:  rt.LastUpdate,
		},
	}
}

// NewNotificationMessage создает сообщение уведомления
func NewNotificationMessage(notif *models.Notification) *NotificationMessage {
	return &NotificationMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeNotification,
			Timestamp: time.Now(),
		},
		Data: &NotificationData{
			ID:         notif.ID,
			Type:       notif.Type,
			Severity:   notif.Severity,
			StrategyID: notif.StrategyID,
			Message:    notif.Message,
			Meta:       notif.Meta,
			Timestamp:  notif.Timestamp,
		},
	}
}

// NewBalanceUpdateMessage создает сообщение обновления баланса
func NewBalanceUpdateMessage(exchange string, balance float64) *BalanceUpdateMessage {
	return &BalanceUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Exchange: exchange,
		Balance:  balance,
	}
}

// NewAllBalancesMessage создает сообщение со всеми балансами
func NewAllBalancesMessage(balances map[string]float64) *AllBalancesMessage {
	return &AllBalancesMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeBalanceUpdate,
			Timestamp: time.Now(),
		},
		Balances: balances,
	}
}

// NewStatsUpdateMessage создает сообщение обновления статистики
func NewStatsUpdateMessage(stats *models.Stats) *StatsUpdateMessage {
	return &StatsUpdateMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeStatsUpdate,
			Timestamp: time.Now(),
		},
		Data: &StatsUpdateData{
			TodayTrades: stats.TodayTrades,
			WeekTrades:  stats.WeekTrades,
			MonthTrades: stats.MonthTrades,
			TotalTrades: stats.TotalTrades,

			TodayPnl: stats.TodayPnl,
			WeekPnl:  stats.WeekPnl,
			MonthPnl: stats.MonthPnl,
			TotalPnl: stats.TotalPnl,

			WinRate: stats.WinRate,

			ChaseToday: stats.ChaseStats.Today,
			ChaseWeek:  stats.ChaseStats.Week,
			ChaseMonth: stats.ChaseStats.Month,

			UnilateralToday: stats.UnilateralStats.Today,
			UnilateralWeek:  stats.UnilateralStats.Week,
			UnilateralMonth: stats.UnilateralStats.Month,
		},
	}
}
