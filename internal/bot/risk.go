package bot

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/models"
)

// Вместимость истории нарушений: старые события вытесняются
const maxEventHistory = 100

// Сколько недавних событий отдаётся в сводке
const summaryRecentEvents = 10

// RiskManager последовательно прогоняет действия через набор правил.
//
// Менеджер один на процесс и разделяется всеми стратегиями. Каждая
// проверка атомарна под внутренним локом, но последовательность
// проверок разных стратегий никак не упорядочена: правила с внутренним
// состоянием (дневной убыток) видят глобальный поток событий.
type RiskManager struct {
	mu      sync.Mutex
	enabled bool
	rules   []RiskRule
	events  []models.RiskEvent
	log     *zap.Logger
}

// NewRiskManager создаёт включённый менеджер без правил
func NewRiskManager(log *zap.Logger) *RiskManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &RiskManager{
		enabled: true,
		log:     log.Named("risk"),
	}
}

// AddRule регистрирует правило. Порядок регистрации определяет порядок
// проверки: первое запретившее правило останавливает обход.
func (rm *RiskManager) AddRule(rule RiskRule) {
	if rule == nil {
		return
	}
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.rules = append(rm.rules, rule)
	rm.log.Info("риск-правило зарегистрировано", zap.String("rule", rule.RuleName()))
}

// ConfigureDefaultRules регистрирует встроенные правила из карты лимитов.
// Ключи: max_position, max_order_size, max_daily_loss, max_chase_count.
// Нулевые и отсутствующие лимиты пропускаются.
func (rm *RiskManager) ConfigureDefaultRules(limits map[string]float64) {
	if v, ok := limits[RuleMaxPosition]; ok && v > 0 {
		rm.AddRule(NewMaxPositionRule(v))
	}
	if v, ok := limits[RuleMaxOrderSize]; ok && v > 0 {
		rm.AddRule(NewMaxOrderSizeRule(v))
	}
	if v, ok := limits[RuleMaxDailyLoss]; ok && v > 0 {
		rm.AddRule(NewMaxDailyLossRule(v))
	}
	if v, ok := limits[RuleMaxChaseCount]; ok && v > 0 {
		rm.AddRule(NewMaxChaseCountRule(int(v)))
	}
}

// Enable включает менеджер
func (rm *RiskManager) Enable() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.enabled = true
	rm.log.Info("риск-менеджер включён")
}

// Disable выключает менеджер: все проверки разрешаются без обхода правил
func (rm *RiskManager) Disable() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.enabled = false
	rm.log.Warn("риск-менеджер выключен: все проверки разрешены")
}

// Enabled возвращает состояние менеджера
func (rm *RiskManager) Enabled() bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.enabled
}

// SetRuleEnabled включает или выключает правило по имени.
// Возвращает false если правило не найдено.
func (rm *RiskManager) SetRuleEnabled(name string, enabled bool) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, rule := range rm.rules {
		if rule.RuleName() == name {
			rule.SetEnabled(enabled)
			rm.log.Info("риск-правило переключено",
				zap.String("rule", name), zap.Bool("enabled", enabled))
			return true
		}
	}
	return false
}

// CheckOrder проверяет ордер перед выставлением.
// size - подписанная дельта позиции, currentPosition - текущая позиция аккаунта.
func (rm *RiskManager) CheckOrder(account string, size, currentPosition float64) RuleVerdict {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.enabled {
		RecordRiskCheck(models.RiskCheckOrder, true)
		return Allow()
	}
	for _, rule := range rm.rules {
		if !rule.Enabled() {
			continue
		}
		checker, ok := rule.(OrderChecker)
		if !ok {
			continue
		}
		verdict := rm.evalOrder(rule, checker, account, size, currentPosition)
		if !verdict.Allowed {
			rm.recordViolationLocked(rule, models.RiskCheckOrder, account, verdict.Reason)
			RecordRiskCheck(models.RiskCheckOrder, false)
			return verdict
		}
	}
	RecordRiskCheck(models.RiskCheckOrder, true)
	return Allow()
}

// CheckTrade проверяет завершённый цикл. Вызывается после исполнения:
// запрет фиксируется, но сделку не откатывает.
func (rm *RiskManager) CheckTrade(account string, pnl float64, chaseCount int) RuleVerdict {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.enabled {
		RecordRiskCheck(models.RiskCheckTrade, true)
		return Allow()
	}
	for _, rule := range rm.rules {
		if !rule.Enabled() {
			continue
		}
		checker, ok := rule.(TradeChecker)
		if !ok {
			continue
		}
		verdict := rm.evalTrade(rule, checker, account, pnl, chaseCount)
		if !verdict.Allowed {
			rm.recordViolationLocked(rule, models.RiskCheckTrade, account, verdict.Reason)
			RecordRiskCheck(models.RiskCheckTrade, false)
			return verdict
		}
	}
	RecordRiskCheck(models.RiskCheckTrade, true)
	return Allow()
}

// CheckChaseOrder проверяет догоняющий ордер перед выставлением.
// chaseCount - номер, который получит ордер в случае разрешения.
func (rm *RiskManager) CheckChaseOrder(account string, chaseCount int) RuleVerdict {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.enabled {
		RecordRiskCheck(models.RiskCheckChase, true)
		return Allow()
	}
	for _, rule := range rm.rules {
		if !rule.Enabled() {
			continue
		}
		checker, ok := rule.(ChaseChecker)
		if !ok {
			continue
		}
		verdict := rm.evalChase(rule, checker, account, chaseCount)
		if !verdict.Allowed {
			rm.recordViolationLocked(rule, models.RiskCheckChase, account, verdict.Reason)
			RecordRiskCheck(models.RiskCheckChase, false)
			return verdict
		}
	}
	RecordRiskCheck(models.RiskCheckChase, true)
	return Allow()
}

// Ошибка или паника правила не должна блокировать торговлю: сбойное
// правило пропускается, как будто его нет. Запрет исправного правила
// при этом работает как раньше - fail-open касается только сбоев.

func (rm *RiskManager) evalOrder(rule RiskRule, c OrderChecker, account string, size, currentPosition float64) (v RuleVerdict) {
	defer rm.recoverRule(rule, &v)
	verdict, err := c.CheckOrder(account, size, currentPosition)
	if err != nil {
		rm.log.Error("сбой риск-правила",
			zap.String("rule", rule.RuleName()), zap.Error(err))
		return Allow()
	}
	return verdict
}

func (rm *RiskManager) evalTrade(rule RiskRule, c TradeChecker, account string, pnl float64, chaseCount int) (v RuleVerdict) {
	defer rm.recoverRule(rule, &v)
	verdict, err := c.CheckTrade(account, pnl, chaseCount)
	if err != nil {
		rm.log.Error("сбой риск-правила",
			zap.String("rule", rule.RuleName()), zap.Error(err))
		return Allow()
	}
	return verdict
}

func (rm *RiskManager) evalChase(rule RiskRule, c ChaseChecker, account string, chaseCount int) (v RuleVerdict) {
	defer rm.recoverRule(rule, &v)
	verdict, err := c.CheckChaseOrder(account, chaseCount)
	if err != nil {
		rm.log.Error("сбой риск-правила",
			zap.String("rule", rule.RuleName()), zap.Error(err))
		return Allow()
	}
	return verdict
}

func (rm *RiskManager) recoverRule(rule RiskRule, v *RuleVerdict) {
	if r := recover(); r != nil {
		rm.log.Error("паника в риск-правиле",
			zap.String("rule", rule.RuleName()), zap.Any("panic", r))
		*v = Allow()
	}
}

// recordViolationLocked фиксирует срабатывание правила и событие истории.
// Вызывается под rm.mu.
func (rm *RiskManager) recordViolationLocked(rule RiskRule, kind, account, reason string) {
	now := time.Now().UTC()
	rule.RecordViolation(now)
	rm.events = append(rm.events, models.RiskEvent{
		Timestamp: now,
		RuleName:  rule.RuleName(),
		CheckKind: kind,
		Account:   account,
		Reason:    reason,
	})
	if len(rm.events) > maxEventHistory {
		rm.events = rm.events[len(rm.events)-maxEventHistory:]
	}
	RecordRiskViolation(rule.RuleName())
	rm.log.Warn("риск-запрет",
		zap.String("rule", rule.RuleName()),
		zap.String("kind", kind),
		zap.String("account", account),
		zap.String("reason", reason))
}

// ResetDailyCounters сбрасывает дневные счётчики правил убытка.
// Ручная операция оператора, не зависит от смены даты.
func (rm *RiskManager) ResetDailyCounters() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, rule := range rm.rules {
		if r, ok := rule.(*MaxDailyLossRule); ok {
			r.ResetDaily()
			rm.log.Info("дневной счётчик сброшен", zap.String("rule", r.RuleName()))
		}
	}
}

// Summary возвращает сводку менеджера для API
func (rm *RiskManager) Summary() models.RiskSummary {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	s := models.RiskSummary{
		Enabled:      rm.enabled,
		ActiveRules:  make([]string, 0, len(rm.rules)),
		RecentEvents: make([]models.RiskEvent, 0, summaryRecentEvents),
		RuleDetails:  make([]models.RiskRuleDetail, 0, len(rm.rules)),
	}

	for _, rule := range rm.rules {
		s.TotalViolations += rule.Violations()
		if rule.Enabled() {
			s.ActiveRules = append(s.ActiveRules, rule.RuleName())
		}
		s.RuleDetails = append(s.RuleDetails, models.RiskRuleDetail{
			Name:          rule.RuleName(),
			Enabled:       rule.Enabled(),
			Violations:    rule.Violations(),
			LastViolation: rule.LastViolation(),
		})
	}

	// События за последние сутки, не больше summaryRecentEvents последних
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	recent := rm.events
	if len(recent) > 0 {
		first := len(recent)
		for i, ev := range recent {
			if ev.Timestamp.After(cutoff) {
				first = i
				break
			}
		}
		recent = recent[first:]
	}
	if len(recent) > summaryRecentEvents {
		recent = recent[len(recent)-summaryRecentEvents:]
	}
	s.RecentEvents = append(s.RecentEvents, recent...)

	return s
}

// EventCount возвращает размер истории нарушений
func (rm *RiskManager) EventCount() int {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return len(rm.events)
}
