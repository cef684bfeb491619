package bot

import (
	"errors"
	"testing"
	"time"

	"crossarb/internal/models"
)

// ============ CanTransition Tests ============

func TestCanTransition_ValidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"Idle -> Opening (вход в цикл)", models.StateIdle, models.StateOpening},
		{"Opening -> Opened (обе ноги исполнены)", models.StateOpening, models.StateOpened},
		{"Opening -> Idle (таймаут без исполнений)", models.StateOpening, models.StateIdle},
		{"Opened -> Closing (условие выхода)", models.StateOpened, models.StateClosing},
		{"Closing -> Closed (обе ноги исполнены)", models.StateClosing, models.StateClosed},
		{"Closing -> Idle (таймаут без исполнений)", models.StateClosing, models.StateIdle},
		{"Closed -> Idle (фиксация результата)", models.StateClosed, models.StateIdle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = false, ожидали true", tt.from, tt.to)
			}
		})
	}
}

func TestCanTransition_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"Idle -> Opened (минуя открытие)", models.StateIdle, models.StateOpened},
		{"Idle -> Closing (нечего закрывать)", models.StateIdle, models.StateClosing},
		{"Idle -> Closed", models.StateIdle, models.StateClosed},
		{"Opening -> Closing (ноги ещё не открыты)", models.StateOpening, models.StateClosing},
		{"Opening -> Closed", models.StateOpening, models.StateClosed},
		{"Opened -> Idle (без закрытия)", models.StateOpened, models.StateIdle},
		{"Opened -> Opening", models.StateOpened, models.StateOpening},
		{"Opened -> Closed (минуя закрытие)", models.StateOpened, models.StateClosed},
		{"Closing -> Opening", models.StateClosing, models.StateOpening},
		{"Closing -> Opened (закрытие не откатывается в позицию)", models.StateClosing, models.StateOpened},
		{"Closed -> Opening (только через Idle)", models.StateClosed, models.StateOpening},
		{"Closed -> Opened", models.StateClosed, models.StateOpened},
		{"Closed -> Closing", models.StateClosed, models.StateClosing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true, ожидали false", tt.from, tt.to)
			}
		})
	}
}

func TestCanTransition_UnknownStates(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
	}{
		{"неизвестное исходное состояние", "UNKNOWN", models.StateIdle},
		{"неизвестное целевое состояние", models.StateIdle, "UNKNOWN"},
		{"оба неизвестны", "FOO", "BAR"},
		{"пустые строки", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if CanTransition(tt.from, tt.to) {
				t.Errorf("CanTransition(%s, %s) = true для неизвестного состояния", tt.from, tt.to)
			}
		})
	}
}

// ============ ValidTransitions Map Tests ============

func TestValidTransitions_AllStatesPresent(t *testing.T) {
	states := []string{
		models.StateIdle,
		models.StateOpening,
		models.StateOpened,
		models.StateClosing,
		models.StateClosed,
	}

	for _, state := range states {
		if _, ok := ValidTransitions[state]; !ok {
			t.Errorf("состояние %s отсутствует в ValidTransitions", state)
		}
	}

	if len(ValidTransitions) != len(states) {
		t.Errorf("в ValidTransitions %d состояний, ожидали %d", len(ValidTransitions), len(states))
	}
}

func TestValidTransitions_NoSelfLoops(t *testing.T) {
	for from, targets := range ValidTransitions {
		for _, to := range targets {
			if from == to {
				t.Errorf("самопереход %s -> %s недопустим", from, to)
			}
		}
	}
}

func TestValidTransitions_TargetsAreKnownStates(t *testing.T) {
	known := map[string]bool{
		models.StateIdle:    true,
		models.StateOpening: true,
		models.StateOpened:  true,
		models.StateClosing: true,
		models.StateClosed:  true,
	}

	for from, targets := range ValidTransitions {
		for _, to := range targets {
			if !known[to] {
				t.Errorf("переход %s -> %s ведёт в неизвестное состояние", from, to)
			}
		}
	}
}

// ============ Flow Cycle Tests ============

// Нормальный цикл: вход, открытие, выход, фиксация, возврат к мониторингу
func TestFlow_NormalCycle(t *testing.T) {
	flow := []string{
		models.StateIdle,
		models.StateOpening,
		models.StateOpened,
		models.StateClosing,
		models.StateClosed,
		models.StateIdle,
	}

	for i := 0; i < len(flow)-1; i++ {
		if !CanTransition(flow[i], flow[i+1]) {
			t.Errorf("шаг %d: переход %s -> %s должен быть допустим", i, flow[i], flow[i+1])
		}
	}
}

// Откат открытия: таймаут, ни одна нога не исполнена
func TestFlow_OpenTimeoutRollback(t *testing.T) {
	flow := []string{
		models.StateIdle,
		models.StateOpening,
		models.StateIdle,
		models.StateOpening, // повторная попытка входа
	}

	for i := 0; i < len(flow)-1; i++ {
		if !CanTransition(flow[i], flow[i+1]) {
			t.Errorf("шаг %d: переход %s -> %s должен быть допустим", i, flow[i], flow[i+1])
		}
	}
}

// Откат закрытия: таймаут, ноги остались на биржах
func TestFlow_CloseTimeoutRollback(t *testing.T) {
	flow := []string{
		models.StateOpened,
		models.StateClosing,
		models.StateIdle,
	}

	for i := 0; i < len(flow)-1; i++ {
		if !CanTransition(flow[i], flow[i+1]) {
			t.Errorf("шаг %d: переход %s -> %s должен быть допустим", i, flow[i], flow[i+1])
		}
	}
}

// ============ TryTransition Tests ============

func TestTryTransition_Valid(t *testing.T) {
	pos := NewArbitragePosition()

	if err := TryTransition(pos, 1, models.StateOpening); err != nil {
		t.Fatalf("TryTransition(Idle -> Opening) вернул ошибку: %v", err)
	}
	if pos.State != models.StateOpening {
		t.Errorf("состояние = %s, ожидали %s", pos.State, models.StateOpening)
	}
}

func TestTryTransition_Invalid(t *testing.T) {
	pos := NewArbitragePosition()

	err := TryTransition(pos, 7, models.StateClosed)
	if err == nil {
		t.Fatal("TryTransition(Idle -> Closed) должен вернуть ошибку")
	}
	if pos.State != models.StateIdle {
		t.Errorf("состояние изменилось на %s при отклонённом переходе", pos.State)
	}

	var transErr *StateTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("ожидали *StateTransitionError, получили %T", err)
	}
	if transErr.StrategyID != 7 {
		t.Errorf("StrategyID = %d, ожидали 7", transErr.StrategyID)
	}
	if transErr.From != models.StateIdle || transErr.To != models.StateClosed {
		t.Errorf("ошибка описывает переход %s -> %s, ожидали %s -> %s",
			transErr.From, transErr.To, models.StateIdle, models.StateClosed)
	}
}

func TestStateTransitionError_Message(t *testing.T) {
	err := &StateTransitionError{StrategyID: 3, From: models.StateOpened, To: models.StateIdle}
	msg := err.Error()
	if msg == "" {
		t.Fatal("пустое сообщение ошибки")
	}
	for _, want := range []string{"3", models.StateOpened, models.StateIdle} {
		if !contains(msg, want) {
			t.Errorf("сообщение '%s' не содержит '%s'", msg, want)
		}
	}
}

func TestForceTransition(t *testing.T) {
	pos := NewArbitragePosition()

	// Недопустимый обычным путём переход: восстановление после рестарта
	ForceTransition(pos, models.StateOpened)
	if pos.State != models.StateOpened {
		t.Errorf("состояние = %s, ожидали %s", pos.State, models.StateOpened)
	}
}

// ============ StateInfo Tests ============

func TestStateInfo(t *testing.T) {
	states := []string{
		models.StateIdle,
		models.StateOpening,
		models.StateOpened,
		models.StateClosing,
		models.StateClosed,
	}

	seen := make(map[string]bool)
	for _, state := range states {
		info := StateInfo(state)
		if info == "" {
			t.Errorf("StateInfo(%s) вернул пустую строку", state)
		}
		if info == "Неизвестное состояние" {
			t.Errorf("StateInfo(%s) вернул описание неизвестного состояния", state)
		}
		if seen[info] {
			t.Errorf("описание '%s' используется более чем одним состоянием", info)
		}
		seen[info] = true
	}

	if StateInfo("BOGUS") != "Неизвестное состояние" {
		t.Errorf("StateInfo(BOGUS) = '%s', ожидали описание неизвестного состояния", StateInfo("BOGUS"))
	}
}

// ============ IsActive / HasOpenPosition Tests ============

func TestIsActive(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{models.StateIdle, false},
		{models.StateOpening, true},
		{models.StateOpened, true},
		{models.StateClosing, true},
		{models.StateClosed, true},
		{"UNKNOWN", false},
	}

	for _, tt := range tests {
		if got := IsActive(tt.state); got != tt.want {
			t.Errorf("IsActive(%s) = %v, ожидали %v", tt.state, got, tt.want)
		}
	}
}

func TestHasOpenPosition(t *testing.T) {
	tests := []struct {
		state string
		want  bool
	}{
		{models.StateIdle, false},
		{models.StateOpening, false}, // ноги могут быть не исполнены
		{models.StateOpened, true},
		{models.StateClosing, true},
		{models.StateClosed, false},
		{"UNKNOWN", false},
	}

	for _, tt := range tests {
		if got := HasOpenPosition(tt.state); got != tt.want {
			t.Errorf("HasOpenPosition(%s) = %v, ожидали %v", tt.state, got, tt.want)
		}
	}
}

// ============ ArbitragePosition Tests ============

func TestArbitragePosition_Reset(t *testing.T) {
	pos := NewArbitragePosition()
	pos.State = models.StateClosed
	pos.PositionA = -0.01
	pos.PositionB = 0.01
	pos.PendingA = "ord-1"
	pos.PendingB = "ord-2"
	pos.SideA = models.SideSell
	pos.SideB = models.SideBuy
	pos.FilledA = true
	pos.FilledB = true
	pos.Direction = models.DirectionPositive
	pos.Unilateral = true
	pos.ChaseCount = 3
	pos.OrderSize = 0.01

	pos.Reset()

	if pos.State != models.StateIdle {
		t.Errorf("после Reset состояние = %s, ожидали %s", pos.State, models.StateIdle)
	}
	if pos.PositionA != 0 || pos.PositionB != 0 {
		t.Error("после Reset позиции должны быть нулевыми")
	}
	if pos.PendingA != "" || pos.PendingB != "" {
		t.Error("после Reset не должно быть активных ордеров")
	}
	if pos.FilledA || pos.FilledB {
		t.Error("после Reset флаги исполнения должны быть сброшены")
	}
	if pos.Direction != "" || pos.Unilateral || pos.ChaseCount != 0 || pos.OrderSize != 0 {
		t.Error("после Reset атрибуты цикла должны быть сброшены")
	}
	if !pos.OpenedAt.IsZero() || !pos.ClosedAt.IsZero() {
		t.Error("после Reset временные метки должны быть нулевыми")
	}
}

func TestArbitragePosition_FillFlags(t *testing.T) {
	pos := NewArbitragePosition()

	if !pos.NoneFilled() {
		t.Error("в исходном состоянии NoneFilled() = false")
	}
	if pos.BothFilled() {
		t.Error("в исходном состоянии BothFilled() = true")
	}

	pos.FilledA = true
	if pos.NoneFilled() || pos.BothFilled() {
		t.Error("с одной исполненной ногой NoneFilled и BothFilled должны быть false")
	}

	pos.FilledB = true
	if !pos.BothFilled() {
		t.Error("с обеими ногами BothFilled() = false")
	}
}

func TestArbitragePosition_PhaseStart(t *testing.T) {
	pos := NewArbitragePosition()

	if !pos.PhaseStart().IsZero() {
		t.Error("в Idle фаза исполнения не идёт, PhaseStart должен быть нулевым")
	}

	opened := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	closed := opened.Add(30 * time.Second)

	ForceTransition(pos, models.StateOpening)
	pos.OpenedAt = opened
	if got := pos.PhaseStart(); !got.Equal(opened) {
		t.Errorf("в Opening PhaseStart = %v, ожидали %v", got, opened)
	}

	ForceTransition(pos, models.StateClosing)
	pos.ClosedAt = closed
	if got := pos.PhaseStart(); !got.Equal(closed) {
		t.Errorf("в Closing PhaseStart = %v, ожидали %v", got, closed)
	}

	ForceTransition(pos, models.StateOpened)
	if !pos.PhaseStart().IsZero() {
		t.Error("в Opened фаза исполнения не идёт, PhaseStart должен быть нулевым")
	}
}

// ============ Benchmarks ============

func BenchmarkCanTransition(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CanTransition(models.StateIdle, models.StateOpening)
	}
}

func BenchmarkCanTransition_Invalid(b *testing.B) {
	for i := 0; i < b.N; i++ {
		CanTransition(models.StateOpened, models.StateClosed)
	}
}

func BenchmarkStateInfo(b *testing.B) {
	for i := 0; i < b.N; i++ {
		StateInfo(models.StateOpened)
	}
}
