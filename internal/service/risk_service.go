package service

// RiskService - бизнес-логика управления рисками
//
// ВАЖНО: Функционал управления рисками реализован в пакете bot, а не в service.
// См. internal/bot/risk.go и internal/bot/rules.go для полной реализации:
//
// - RiskManager: центральный менеджер рисков с подключаемыми правилами
//   - CheckOrder: проверка ордера перед выставлением (позиция, объем)
//   - CheckTrade: проверка завершенного цикла (дневной убыток)
//   - CheckChaseOrder: проверка догоняющего ордера (лимит чейзов)
//   - Enable/Disable: глобальный выключатель (disabled = все разрешено)
//   - SetRuleEnabled: включение/выключение правила по имени
//   - Summary: сводка для API (правила, счетчики, последние события)
//   - ResetDailyCounters: сброс дневных счетчиков (полночь)
//
// - Встроенные правила (rules.go):
//   - MaxPositionRule: лимит совокупной позиции аккаунта
//   - MaxOrderSizeRule: лимит объема одного ордера
//   - MaxDailyLossRule: лимит дневного убытка
//   - MaxChaseCountRule: лимит догоняющих ордеров за цикл
//
// Архитектурное решение:
// RiskManager работает как часть торгового движка (bot package), а не как
// отдельный сервис, потому что:
// 1. Проверки стоят на горячем пути выставления ордеров (без запросов к БД)
// 2. Правила с внутренним состоянием (дневной убыток) видят весь поток событий
// 3. Запрет правила должен мгновенно останавливать цикл стратегии
//
// HTTP слой обращается к менеджеру напрямую через engine.Risk():
//
//	// В main.go при инициализации:
//	riskManager := bot.NewRiskManager(log)
//	riskManager.ConfigureDefaultRules(cfg.Risk.Limits())
//	engine := bot.NewEngine(opts, riskManager, router, log)
//
// См. также:
// - internal/bot/strategy.go: точки вызова проверок в цикле стратегии
// - internal/models/risk.go: RiskSummary и RiskEvent для API
