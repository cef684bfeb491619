package bot

import (
	"fmt"

	"crossarb/internal/models"
)

// ValidTransitions определяет допустимые переходы между состояниями цикла
var ValidTransitions = map[string][]string{
	models.StateIdle:    {models.StateOpening},
	models.StateOpening: {models.StateOpened, models.StateIdle}, // Idle при таймауте без исполнений
	models.StateOpened:  {models.StateClosing},
	models.StateClosing: {models.StateClosed, models.StateIdle}, // Idle при таймауте без исполнений
	models.StateClosed:  {models.StateIdle},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateTransitionError возвращается при попытке недопустимого перехода
type StateTransitionError struct {
	StrategyID int
	From       string
	To         string
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("strategy %d: invalid transition %s -> %s", e.StrategyID, e.From, e.To)
}

// TryTransition выполняет переход состояния позиции с проверкой допустимости.
// При успехе обновляет State и фиксирует метрику перехода.
func TryTransition(pos *ArbitragePosition, strategyID int, to string) error {
	if !CanTransition(pos.State, to) {
		return &StateTransitionError{StrategyID: strategyID, From: pos.State, To: to}
	}
	RecordTransition(pos.State, to)
	pos.State = to
	return nil
}

// ForceTransition выполняет переход без проверки допустимости.
// Используется восстановлением после рестарта и ручным вмешательством.
func ForceTransition(pos *ArbitragePosition, to string) {
	RecordTransition(pos.State, to)
	pos.State = to
}

// StateInfo возвращает описание состояния для UI
func StateInfo(s string) string {
	switch s {
	case models.StateIdle:
		return "Ожидание условий входа"
	case models.StateOpening:
		return "Открытие позиций..."
	case models.StateOpened:
		return "Позиция открыта, ожидание условий выхода"
	case models.StateClosing:
		return "Закрытие позиций..."
	case models.StateClosed:
		return "Цикл завершён, фиксация результата"
	default:
		return "Неизвестное состояние"
	}
}

// IsActive возвращает true если стратегия находится внутри арбитражного цикла
func IsActive(s string) bool {
	return s == models.StateOpening || s == models.StateOpened || s == models.StateClosing || s == models.StateClosed
}

// HasOpenPosition возвращает true если на биржах удерживается позиция.
// OPENING не учитывается: ноги ещё могут быть не исполнены.
func HasOpenPosition(s string) bool {
	return s == models.StateOpened || s == models.StateClosing
}
