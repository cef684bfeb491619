package bot

import (
	"fmt"
	"time"

	"crossarb/pkg/utils"
)

// Имена встроенных риск-правил
const (
	RuleMaxPosition   = "max_position"
	RuleMaxOrderSize  = "max_order_size"
	RuleMaxDailyLoss  = "max_daily_loss"
	RuleMaxChaseCount = "max_chase_count"
)

// Лимиты по умолчанию
const (
	DefaultMaxPositionLimit  = 1.0
	DefaultMaxOrderSizeLimit = 0.1
	DefaultMaxDailyLossLimit = 100.0
	DefaultMaxChaseLimit     = 5
)

// RuleVerdict результат одной риск-проверки
type RuleVerdict struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Allow возвращает разрешающий вердикт
func Allow() RuleVerdict {
	return RuleVerdict{Allowed: true}
}

// Deny возвращает запрещающий вердикт с причиной
func Deny(reason string) RuleVerdict {
	return RuleVerdict{Allowed: false, Reason: reason}
}

// RiskRule базовый контракт правила. Вид проверок, в которых правило
// участвует, определяется реализацией дополнительных интерфейсов
// OrderChecker, TradeChecker и ChaseChecker.
//
// Методы правила вызываются только под локом RiskManager, собственная
// синхронизация правилам не нужна.
type RiskRule interface {
	RuleName() string
	Enabled() bool
	SetEnabled(enabled bool)
	Violations() int
	LastViolation() *time.Time
	RecordViolation(at time.Time)
}

// OrderChecker правило, проверяющее ордера перед выставлением.
// size - подписанная дельта позиции, которую создаст ордер.
type OrderChecker interface {
	CheckOrder(account string, size, currentPosition float64) (RuleVerdict, error)
}

// TradeChecker правило, проверяющее завершённый арбитражный цикл
type TradeChecker interface {
	CheckTrade(account string, pnl float64, chaseCount int) (RuleVerdict, error)
}

// ChaseChecker правило, проверяющее догоняющий ордер перед выставлением
type ChaseChecker interface {
	CheckChaseOrder(account string, chaseCount int) (RuleVerdict, error)
}

// BaseRule общая часть всех правил: имя, флаг включения и счётчик
// нарушений. Встраивается в конкретные правила.
type BaseRule struct {
	name          string
	enabled       bool
	violations    int
	lastViolation time.Time
}

// NewBaseRule создаёт включённое правило с именем
func NewBaseRule(name string) BaseRule {
	return BaseRule{name: name, enabled: true}
}

// RuleName возвращает имя правила
func (b *BaseRule) RuleName() string { return b.name }

// Enabled возвращает true если правило участвует в проверках
func (b *BaseRule) Enabled() bool { return b.enabled }

// SetEnabled включает или выключает правило
func (b *BaseRule) SetEnabled(enabled bool) { b.enabled = enabled }

// Violations возвращает количество срабатываний правила
func (b *BaseRule) Violations() int { return b.violations }

// LastViolation возвращает время последнего срабатывания, nil если не было
func (b *BaseRule) LastViolation() *time.Time {
	if b.lastViolation.IsZero() {
		return nil
	}
	t := b.lastViolation
	return &t
}

// RecordViolation фиксирует срабатывание правила
func (b *BaseRule) RecordViolation(at time.Time) {
	b.violations++
	b.lastViolation = at
}

// ============ MaxPositionRule ============

// MaxPositionRule запрещает ордера, когда абсолютная позиция аккаунта
// уже достигла лимита. Сравнение нестрогое: позиция на лимите блокирует
// дальнейшее наращивание.
type MaxPositionRule struct {
	BaseRule
	Limit float64
}

// NewMaxPositionRule создаёт правило лимита позиции
func NewMaxPositionRule(limit float64) *MaxPositionRule {
	return &MaxPositionRule{BaseRule: NewBaseRule(RuleMaxPosition), Limit: limit}
}

// CheckOrder реализует OrderChecker
func (r *MaxPositionRule) CheckOrder(account string, size, currentPosition float64) (RuleVerdict, error) {
	abs := utils.Abs(currentPosition)
	if abs >= r.Limit {
		return Deny(fmt.Sprintf("Position limit reached: %v >= %v", abs, r.Limit)), nil
	}
	return Allow(), nil
}

// ============ MaxOrderSizeRule ============

// MaxOrderSizeRule запрещает ордера с объёмом больше лимита
type MaxOrderSizeRule struct {
	BaseRule
	Limit float64
}

// NewMaxOrderSizeRule создаёт правило лимита объёма ордера
func NewMaxOrderSizeRule(limit float64) *MaxOrderSizeRule {
	return &MaxOrderSizeRule{BaseRule: NewBaseRule(RuleMaxOrderSize), Limit: limit}
}

// CheckOrder реализует OrderChecker
func (r *MaxOrderSizeRule) CheckOrder(account string, size, currentPosition float64) (RuleVerdict, error) {
	abs := utils.Abs(size)
	if abs > r.Limit {
		return Deny(fmt.Sprintf("Order size %v exceeds max %v", abs, r.Limit)), nil
	}
	return Allow(), nil
}

// ============ MaxDailyLossRule ============

// MaxDailyLossRule накапливает дневной PNL и запрещает дальнейшую
// торговлю после превышения дневного убытка.
//
// Накопление происходит ДО проверки лимита и не откатывается при
// запрете: цикл уже состоялся, его результат - факт. Счётчик
// сбрасывается при смене UTC-даты или вручную через ResetDaily.
type MaxDailyLossRule struct {
	BaseRule
	Limit float64

	dailyPnl  float64
	lastReset time.Time
}

// NewMaxDailyLossRule создаёт правило дневного убытка
func NewMaxDailyLossRule(limit float64) *MaxDailyLossRule {
	return &MaxDailyLossRule{
		BaseRule:  NewBaseRule(RuleMaxDailyLoss),
		Limit:     limit,
		lastReset: time.Now().UTC(),
	}
}

// CheckTrade реализует TradeChecker
func (r *MaxDailyLossRule) CheckTrade(account string, pnl float64, chaseCount int) (RuleVerdict, error) {
	now := time.Now().UTC()
	if !utils.SameUTCDate(now, r.lastReset) {
		r.dailyPnl = 0
		r.lastReset = now
	}
	r.dailyPnl += pnl
	if r.dailyPnl < -r.Limit {
		return Deny(fmt.Sprintf("Daily loss limit exceeded: %v < -%v", r.dailyPnl, r.Limit)), nil
	}
	return Allow(), nil
}

// ResetDaily сбрасывает накопленный дневной PNL независимо от даты
func (r *MaxDailyLossRule) ResetDaily() {
	r.dailyPnl = 0
	r.lastReset = time.Now().UTC()
}

// DailyPnl возвращает накопленный дневной PNL
func (r *MaxDailyLossRule) DailyPnl() float64 { return r.dailyPnl }

// ============ MaxChaseCountRule ============

// MaxChaseCountRule ограничивает количество догоняющих ордеров в цикле.
// Запрещает, когда счётчик превышает лимит: при лимите 1 первый
// догоняющий ордер (счётчик 1) разрешён, второй (счётчик 2) - нет.
type MaxChaseCountRule struct {
	BaseRule
	Limit int
}

// NewMaxChaseCountRule создаёт правило лимита догоняющих ордеров
func NewMaxChaseCountRule(limit int) *MaxChaseCountRule {
	return &MaxChaseCountRule{BaseRule: NewBaseRule(RuleMaxChaseCount), Limit: limit}
}

// CheckChaseOrder реализует ChaseChecker
func (r *MaxChaseCountRule) CheckChaseOrder(account string, chaseCount int) (RuleVerdict, error) {
	if chaseCount > r.Limit {
		return Deny(fmt.Sprintf("Chase count %d exceeds limit %d", chaseCount, r.Limit)), nil
	}
	return Allow(), nil
}

// CheckTrade реализует TradeChecker: фиксирует циклы, завершённые
// с превышением лимита догоняющих ордеров
func (r *MaxChaseCountRule) CheckTrade(account string, pnl float64, chaseCount int) (RuleVerdict, error) {
	if chaseCount > r.Limit {
		return Deny(fmt.Sprintf("Chase count %d exceeds limit %d", chaseCount, r.Limit)), nil
	}
	return Allow(), nil
}
