package bot

import (
	"time"

	"crossarb/internal/models"
)

// ArbitragePosition хранит текущее состояние арбитражного цикла стратегии.
//
// Все поля защищаются мьютексом владеющей стратегии: позиция никогда
// не читается и не пишется вне его. Отдельного лока здесь нет намеренно.
type ArbitragePosition struct {
	State string // models.StateIdle..StateClosed

	// Подписанные позиции ног, как их сообщает биржа в исполнениях.
	// Отрицательная - short, положительная - long.
	PositionA float64
	PositionB float64

	// Идентификаторы неисполненных ордеров по ногам. Пустая строка -
	// активного ордера на ноге нет.
	PendingA string
	PendingB string

	// Сторона последнего выставленного ордера по ноге. Нужна для
	// догоняющего ордера: замена ставится той же стороной.
	SideA string
	SideB string

	// Флаги исполнения ног текущей фазы (открытие или закрытие).
	// Сбрасываются при выставлении ордеров новой фазы.
	FilledA bool
	FilledB bool

	Direction  string // positive, negative
	Unilateral bool   // была ли односторонняя фаза в цикле
	ChaseCount int    // выставлено догоняющих ордеров в цикле

	// Объём ноги, зафиксированный при входе в цикл. Закрытие и
	// догоняющие ордера используют его: смена order_size на лету
	// не должна менять геометрию уже идущей пары.
	OrderSize float64

	OpenedAt time.Time // начало фазы открытия, нулевое - фаза не шла
	ClosedAt time.Time // начало фазы закрытия
}

// NewArbitragePosition создаёт позицию в исходном состоянии
func NewArbitragePosition() *ArbitragePosition {
	return &ArbitragePosition{State: models.StateIdle}
}

// Reset возвращает позицию в исходное состояние после завершения цикла
func (p *ArbitragePosition) Reset() {
	p.State = models.StateIdle
	p.PositionA = 0
	p.PositionB = 0
	p.PendingA = ""
	p.PendingB = ""
	p.SideA = ""
	p.SideB = ""
	p.FilledA = false
	p.FilledB = false
	p.Direction = ""
	p.Unilateral = false
	p.ChaseCount = 0
	p.OrderSize = 0
	p.OpenedAt = time.Time{}
	p.ClosedAt = time.Time{}
}

// BothFilled возвращает true если обе ноги текущей фазы исполнены
func (p *ArbitragePosition) BothFilled() bool {
	return p.FilledA && p.FilledB
}

// NoneFilled возвращает true если ни одна нога текущей фазы не исполнена
func (p *ArbitragePosition) NoneFilled() bool {
	return !p.FilledA && !p.FilledB
}

// HasPending возвращает true если на какой-то ноге есть активный ордер
func (p *ArbitragePosition) HasPending() bool {
	return p.PendingA != "" || p.PendingB != ""
}

// PhaseStart возвращает момент начала текущей фазы исполнения.
// Для OPENING это OpenedAt, для CLOSING - ClosedAt.
func (p *ArbitragePosition) PhaseStart() time.Time {
	switch p.State {
	case models.StateOpening:
		return p.OpenedAt
	case models.StateClosing:
		return p.ClosedAt
	default:
		return time.Time{}
	}
}

// fillRuntime переносит состояние позиции в снимок для API/WebSocket
func (p *ArbitragePosition) fillRuntime(rt *models.StrategyRuntime) {
	rt.State = p.State
	rt.PositionA = p.PositionA
	rt.PositionB = p.PositionB
	rt.Direction = p.Direction
	rt.Unilateral = p.Unilateral
	rt.ChaseCount = p.ChaseCount
	rt.FilledA = p.FilledA
	rt.FilledB = p.FilledB
	rt.PendingA = p.PendingA
	rt.PendingB = p.PendingB
	if !p.OpenedAt.IsZero() {
		t := p.OpenedAt
		rt.OpenedAt = &t
	}
	if !p.ClosedAt.IsZero() {
		t := p.ClosedAt
		rt.ClosedAt = &t
	}
}
