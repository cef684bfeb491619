package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

const (
	// Шаг опроса таймаут-сторожа
	watchdogInterval = 100 * time.Millisecond

	// Смещение агрессии лимитных цен: покупка bid+offset, продажа ask-offset
	aggressionOffset = 0.01

	// Бюджет одного обращения к шлюзу из-под лока стратегии
	orderCallTimeout = 2 * time.Second

	// Ожидание остановки сторожа при Stop
	stopJoinTimeout = 2 * time.Second
)

// StrategyHooks коллбеки стратегии для слоя персистентности и трансляций.
//
// Вызываются под локом стратегии, поэтому обязаны только ставить
// событие в очередь и возвращаться, не обращаясь к стратегии.
type StrategyHooks struct {
	OnOrder  func(rec *models.OrderRecord)
	OnTrade  func(rec *models.TradeRecord)
	OnUpdate func(rt models.StrategyRuntime)
}

// Strategy арбитражная стратегия одной пары аккаунтов по одному символу.
//
// Вся мутация позиции и книги спредов сериализуется на mu: котировки,
// исполнения, сторож и обновления параметров никогда не работают
// одновременно. Сетевые вызовы из-под лока ограничены по времени.
type Strategy struct {
	id       int
	name     string
	symbol   string
	accountA string
	accountB string

	risk   *RiskManager
	router *OrderRouter
	log    *zap.Logger

	notifyCh chan *models.Notification
	hooks    StrategyHooks

	mu     sync.Mutex
	params models.StrategyParameters
	book   SpreadBook
	pos    *ArbitragePosition

	enabled  bool
	autoMode bool

	tradesCount int
	totalPnl    float64

	running bool
	stopCh  chan struct{}
	done    chan struct{}
}

// NewStrategy создаёт стратегию из конфигурации.
// Стратегия создаётся выключенной: торговля начинается после Start.
func NewStrategy(cfg *models.StrategyConfig, risk *RiskManager, router *OrderRouter, notifyCh chan *models.Notification, hooks StrategyHooks, log *zap.Logger) *Strategy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Strategy{
		id:       cfg.ID,
		name:     cfg.Name,
		symbol:   cfg.Symbol,
		accountA: cfg.AccountA,
		accountB: cfg.AccountB,
		risk:     risk,
		router:   router,
		log:      log.Named("strategy").With(zap.Int("strategy_id", cfg.ID), zap.String("symbol", cfg.Symbol)),
		notifyCh: notifyCh,
		hooks:    hooks,
		params: models.StrategyParameters{
			OpenThreshold:   cfg.OpenThreshold,
			CloseThreshold:  cfg.CloseThreshold,
			OrderSize:       cfg.OrderSize,
			MaxChaseCount:   cfg.MaxChaseCount,
			TradeTimeoutSec: cfg.TradeTimeoutSec,
		},
		pos:         NewArbitragePosition(),
		autoMode:    cfg.AutoMode,
		tradesCount: cfg.TradesCount,
		totalPnl:    cfg.TotalPnl,
	}
}

// ID возвращает идентификатор стратегии
func (s *Strategy) ID() int { return s.id }

// Name возвращает имя стратегии
func (s *Strategy) Name() string { return s.name }

// Symbol возвращает торгуемый символ
func (s *Strategy) Symbol() string { return s.symbol }

// Accounts возвращает аккаунты ног A и B
func (s *Strategy) Accounts() (string, string) { return s.accountA, s.accountB }

// ============ Жизненный цикл ============

// Start включает стратегию и запускает таймаут-сторожа.
// Повторный вызов на работающей стратегии ничего не делает.
func (s *Strategy) Start() {
	s.mu.Lock()
	if s.running {
		s.enabled = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.enabled = true
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	go s.watchdogLoop(stopCh, done)
	s.log.Info("стратегия запущена")
}

// Stop выключает стратегию и останавливает сторожа с ограниченным
// ожиданием. Биржевые ордера намеренно не снимаются: остановка не
// должна рушить незавершённый цикл, позиции закрывает оператор.
func (s *Strategy) Stop() {
	s.mu.Lock()
	if !s.running {
		s.enabled = false
		s.mu.Unlock()
		return
	}
	s.running = false
	s.enabled = false
	stopCh, done := s.stopCh, s.done
	s.mu.Unlock()

	close(stopCh)
	select {
	case <-done:
	case <-time.After(stopJoinTimeout):
		s.log.Warn("сторож не завершился за отведённое время")
	}
	s.log.Info("стратегия остановлена")
	s.notify(models.NotificationTypePause, models.SeverityInfo,
		fmt.Sprintf("Стратегия %s остановлена", s.name), nil)
}

// Running возвращает true если сторож работает
func (s *Strategy) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Enabled возвращает true если стратегия обрабатывает события
func (s *Strategy) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// AutoMode возвращает режим автоматической торговли
func (s *Strategy) AutoMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoMode
}

// SetAutoMode переключает автоматическую торговлю по тикам.
// Выключенный режим не трогает уже идущий цикл: сторож и исполнения
// продолжают обрабатываться.
func (s *Strategy) SetAutoMode(auto bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoMode = auto
	s.log.Info("режим автоторговли переключён", zap.Bool("auto_mode", auto))
}

// SetParameters применяет частичное обновление параметров.
// Либо все указанные поля проходят валидацию и применяются разом,
// либо ошибка и параметры остаются прежними. Уже выставленные ордера
// обновление не затрагивает.
func (s *Strategy) SetParameters(upd models.StrategyParametersUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.params
	if upd.OpenThreshold != nil {
		next.OpenThreshold = *upd.OpenThreshold
	}
	if upd.CloseThreshold != nil {
		next.CloseThreshold = *upd.CloseThreshold
	}
	if upd.OrderSize != nil {
		next.OrderSize = *upd.OrderSize
	}
	if upd.MaxChaseCount != nil {
		next.MaxChaseCount = *upd.MaxChaseCount
	}
	if upd.TradeTimeoutSec != nil {
		next.TradeTimeoutSec = *upd.TradeTimeoutSec
	}

	if err := validateParameters(next); err != nil {
		return err
	}

	s.params = next
	s.log.Info("параметры обновлены",
		zap.Float64("open_threshold", next.OpenThreshold),
		zap.Float64("close_threshold", next.CloseThreshold),
		zap.Float64("order_size", next.OrderSize),
		zap.Int("max_chase_count", next.MaxChaseCount),
		zap.Float64("trade_timeout_seconds", next.TradeTimeoutSec))
	return nil
}

// Parameters возвращает копию текущих параметров
func (s *Strategy) Parameters() models.StrategyParameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func validateParameters(p models.StrategyParameters) error {
	if err := utils.ValidateThresholdPair(p.OpenThreshold, p.CloseThreshold); err != nil {
		return err
	}
	if err := utils.ValidateVolume(p.OrderSize); err != nil {
		return err
	}
	if err := utils.ValidateChaseLimit(p.MaxChaseCount); err != nil {
		return err
	}
	return utils.ValidateTimeoutSeconds(p.TradeTimeoutSec)
}

// ============ Котировки ============

// OnQuote обрабатывает котировку площадки: обновляет книгу спредов и,
// в автоматическом режиме, проверяет условия входа или выхода.
// Книга обновляется и на выключенной стратегии - статус показывает
// живой спред.
func (s *Strategy) OnQuote(q models.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.Symbol != s.symbol {
		return
	}
	switch q.Exchange {
	case s.accountA:
		s.book.UpdateA(q.Bid, q.Ask, q.Timestamp)
	case s.accountB:
		s.book.UpdateB(q.Bid, q.Ask, q.Timestamp)
	default:
		return
	}
	if !s.book.Ready() {
		return
	}

	RecordSpread(s.symbol, "ab", s.book.SpreadAB)
	RecordSpread(s.symbol, "ba", s.book.SpreadBA)

	if !s.enabled || !s.autoMode {
		return
	}
	switch s.pos.State {
	case models.StateIdle:
		s.evaluateOpen()
	case models.StateOpened:
		s.evaluateClose()
		// OPENING и CLOSING ведут сторож и обработчик исполнений
	}
}

// ============ Открытие ============

func (s *Strategy) evaluateOpen() {
	p := s.params
	switch {
	case s.book.SpreadAB >= p.OpenThreshold:
		// A дороже B: продаём A, покупаем B
		s.openCycle(models.DirectionPositive, s.book.SpreadAB)
	case s.book.SpreadBA <= -p.OpenThreshold:
		// Обратное направление: продаём B, покупаем A
		s.openCycle(models.DirectionNegative, s.book.SpreadBA)
	}
}

func (s *Strategy) openCycle(direction string, spread float64) {
	size := s.params.OrderSize

	var legA, legB LegOrder
	if direction == models.DirectionPositive {
		legA = LegOrder{Account: s.accountA, Symbol: s.symbol, Side: models.SideSell,
			Price: utils.LimitPrice(models.SideSell, s.book.BidA, s.book.AskA, aggressionOffset), Size: size}
		legB = LegOrder{Account: s.accountB, Symbol: s.symbol, Side: models.SideBuy,
			Price: utils.LimitPrice(models.SideBuy, s.book.BidB, s.book.AskB, aggressionOffset), Size: size}
	} else {
		legA = LegOrder{Account: s.accountA, Symbol: s.symbol, Side: models.SideBuy,
			Price: utils.LimitPrice(models.SideBuy, s.book.BidA, s.book.AskA, aggressionOffset), Size: size}
		legB = LegOrder{Account: s.accountB, Symbol: s.symbol, Side: models.SideSell,
			Price: utils.LimitPrice(models.SideSell, s.book.BidB, s.book.AskB, aggressionOffset), Size: size}
	}

	// Обе ноги проходят риск-проверку до отправки чего-либо:
	// запрет любой из них отменяет вход целиком.
	deltaA, deltaB := signedDelta(legA.Side, size), signedDelta(legB.Side, size)
	if verdict := s.risk.CheckOrder(s.accountA, deltaA, s.pos.PositionA); !verdict.Allowed {
		s.notifyRiskDenied(s.accountA, verdict.Reason)
		return
	}
	if verdict := s.risk.CheckOrder(s.accountB, deltaB, s.pos.PositionB); !verdict.Allowed {
		s.notifyRiskDenied(s.accountB, verdict.Reason)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), orderCallTimeout)
	defer cancel()
	outA, outB := s.router.SubmitPair(ctx, legA, legB)

	if !outA.Ok() && !outB.Ok() {
		// Ордеров на биржах нет - цикл не начался
		s.recordOrder(legA, outA, models.OrderStatusRejected, false, errText(outA.Err))
		s.recordOrder(legB, outB, models.OrderStatusRejected, false, errText(outB.Err))
		s.notifyError(fmt.Sprintf("Открытие %s не состоялось: обе ноги отклонены", s.symbol))
		return
	}

	if err := TryTransition(s.pos, s.id, models.StateOpening); err != nil {
		s.log.Error("переход в OPENING не выполнен", zap.Error(err))
		return
	}
	s.pos.Direction = direction
	s.pos.OrderSize = size
	s.pos.OpenedAt = time.Now().UTC()
	s.pos.FilledA = false
	s.pos.FilledB = false
	s.applyLegOutcome(legA, outA, true)
	s.applyLegOutcome(legB, outB, false)

	s.log.Info("открытие арбитража",
		zap.String("direction", direction),
		zap.Float64("spread", spread),
		zap.Float64("price_a", legA.Price),
		zap.Float64("price_b", legB.Price),
		zap.Float64("size", size))
	s.notify(models.NotificationTypeOpen, models.SeverityInfo,
		fmt.Sprintf("Открытие арбитража %s: %s A @ %v, %s B @ %v (спред %.4f)",
			s.symbol, legA.Side, legA.Price, legB.Side, legB.Price, spread),
		map[string]interface{}{
			"direction": direction,
			"spread":    spread,
		})
	s.pushUpdate()
}

// ============ Закрытие ============

func (s *Strategy) evaluateClose() {
	p := s.params
	switch s.pos.Direction {
	case models.DirectionPositive:
		if s.book.SpreadAB <= p.CloseThreshold {
			s.closeCycle(s.book.SpreadAB)
		}
	case models.DirectionNegative:
		if s.book.SpreadBA >= -p.CloseThreshold {
			s.closeCycle(s.book.SpreadBA)
		}
	}
}

// closeCycle выставляет закрывающие ордера - стороны, обратные входу.
// Риск-проверок нет: закрытие сокращает экспозицию.
func (s *Strategy) closeCycle(spread float64) {
	size := s.pos.OrderSize
	if size <= 0 {
		size = s.params.OrderSize
	}

	var legA, legB LegOrder
	if s.pos.Direction == models.DirectionPositive {
		// Были short A / long B: выкупаем A, продаём B
		legA = LegOrder{Account: s.accountA, Symbol: s.symbol, Side: models.SideBuy,
			Price: utils.LimitPrice(models.SideBuy, s.book.BidA, s.book.AskA, aggressionOffset), Size: size}
		legB = LegOrder{Account: s.accountB, Symbol: s.symbol, Side: models.SideSell,
			Price: utils.LimitPrice(models.SideSell, s.book.BidB, s.book.AskB, aggressionOffset), Size: size}
	} else {
		legA = LegOrder{Account: s.accountA, Symbol: s.symbol, Side: models.SideSell,
			Price: utils.LimitPrice(models.SideSell, s.book.BidA, s.book.AskA, aggressionOffset), Size: size}
		legB = LegOrder{Account: s.accountB, Symbol: s.symbol, Side: models.SideBuy,
			Price: utils.LimitPrice(models.SideBuy, s.book.BidB, s.book.AskB, aggressionOffset), Size: size}
	}

	ctx, cancel := context.WithTimeout(context.Background(), orderCallTimeout)
	defer cancel()
	outA, outB := s.router.SubmitPair(ctx, legA, legB)

	if !outA.Ok() && !outB.Ok() {
		// Остаёмся в OPENED, следующий тик попробует снова
		s.recordOrder(legA, outA, models.OrderStatusRejected, false, errText(outA.Err))
		s.recordOrder(legB, outB, models.OrderStatusRejected, false, errText(outB.Err))
		s.notifyError(fmt.Sprintf("Закрытие %s не состоялось: обе ноги отклонены", s.symbol))
		return
	}

	if err := TryTransition(s.pos, s.id, models.StateClosing); err != nil {
		s.log.Error("переход в CLOSING не выполнен", zap.Error(err))
		return
	}
	s.pos.ClosedAt = time.Now().UTC()
	s.pos.FilledA = false
	s.pos.FilledB = false
	s.applyLegOutcome(legA, outA, true)
	s.applyLegOutcome(legB, outB, false)

	s.log.Info("закрытие арбитража",
		zap.String("direction", s.pos.Direction),
		zap.Float64("spread", spread),
		zap.Float64("price_a", legA.Price),
		zap.Float64("price_b", legB.Price))
	s.notify(models.NotificationTypeClose, models.SeverityInfo,
		fmt.Sprintf("Закрытие арбитража %s: %s A @ %v, %s B @ %v (спред %.4f)",
			s.symbol, legA.Side, legA.Price, legB.Side, legB.Price, spread),
		map[string]interface{}{
			"direction": s.pos.Direction,
			"spread":    spread,
		})
	s.pushUpdate()
}

// applyLegOutcome записывает результат выставления ноги в позицию.
// Неуспешная нога не оставляет следа: её добьёт догоняющий ордер.
func (s *Strategy) applyLegOutcome(leg LegOrder, out LegOutcome, legA bool) {
	if legA {
		s.pos.SideA = leg.Side
	} else {
		s.pos.SideB = leg.Side
	}
	if out.Ok() {
		if legA {
			s.pos.PendingA = out.OrderID
		} else {
			s.pos.PendingB = out.OrderID
		}
		s.recordOrder(leg, out, models.OrderStatusPending, false, "")
		return
	}
	errMsg := errText(out.Err)
	s.recordOrder(leg, out, models.OrderStatusRejected, false, errMsg)
	s.notifyError(fmt.Sprintf("Нога %s (%s) отклонена: %s", leg.Account, leg.Side, errMsg))
}

// ============ Исполнения ============

// OnFill обрабатывает исполнение ордера. Исполнение применяется только
// при совпадении идентификатора с активным ордером ноги: повторы и
// исполнения уже заменённых ордеров игнорируются.
//
// Флаг enabled здесь не проверяется: остановка стратегии не снимает
// биржевые ордера, их исполнения обязаны дойти до машины состояний.
func (s *Strategy) OnFill(fill models.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if fill.Symbol != s.symbol {
		return
	}

	switch {
	case fill.Account == s.accountA && fill.OrderID != "" && fill.OrderID == s.pos.PendingA:
		s.pos.FilledA = true
		s.pos.PositionA = fill.ResultingPosition
		s.pos.PendingA = ""
	case fill.Account == s.accountB && fill.OrderID != "" && fill.OrderID == s.pos.PendingB:
		s.pos.FilledB = true
		s.pos.PositionB = fill.ResultingPosition
		s.pos.PendingB = ""
	default:
		// Чужое или устаревшее исполнение
		s.log.Debug("исполнение не сопоставлено",
			zap.String("account", fill.Account),
			zap.String("order_id", fill.OrderID))
		return
	}

	s.log.Info("нога исполнена",
		zap.String("account", fill.Account),
		zap.String("order_id", fill.OrderID),
		zap.Float64("price", fill.Price),
		zap.Float64("position", fill.ResultingPosition))
	s.markOrderFilled(fill)

	if s.pos.BothFilled() {
		s.completePhase()
	}
	s.pushUpdate()
}

// completePhase завершает фазу, обе ноги которой исполнены
func (s *Strategy) completePhase() {
	switch s.pos.State {
	case models.StateOpening:
		if err := TryTransition(s.pos, s.id, models.StateOpened); err != nil {
			s.log.Error("переход в OPENED не выполнен", zap.Error(err))
			return
		}
		s.log.Info("обе ноги открыты",
			zap.Float64("position_a", s.pos.PositionA),
			zap.Float64("position_b", s.pos.PositionB))
		s.pos.Unilateral = false
		s.pos.ChaseCount = 0

	case models.StateClosing:
		// PNL цикла - последний спред удерживаемого направления
		pnl := s.book.DirectionalSpread(s.pos.Direction)
		chaseCount := s.pos.ChaseCount
		unilateral := s.pos.Unilateral
		direction := s.pos.Direction

		if err := TryTransition(s.pos, s.id, models.StateClosed); err != nil {
			s.log.Error("переход в CLOSED не выполнен", zap.Error(err))
			return
		}

		// Проверка пост-фактум: запрет фиксируется, сделку не откатывает
		if verdict := s.risk.CheckTrade(s.name, pnl, chaseCount); !verdict.Allowed {
			s.log.Warn("цикл нарушил риск-лимиты", zap.String("reason", verdict.Reason))
			s.notify(models.NotificationTypeRiskViolation, models.SeverityWarn,
				fmt.Sprintf("Цикл %s нарушил лимиты: %s", s.symbol, verdict.Reason), nil)
		}

		s.pos.Unilateral = false
		s.pos.ChaseCount = 0

		s.tradesCount++
		s.totalPnl += pnl
		RecordTrade(s.symbol, direction, pnl)
		s.recordTrade(direction, pnl, chaseCount, unilateral)
		s.log.Info("цикл завершён",
			zap.Float64("pnl", pnl),
			zap.Int("chase_count", chaseCount),
			zap.Bool("unilateral", unilateral),
			zap.Int("trades_count", s.tradesCount),
			zap.Float64("total_pnl", s.totalPnl))
		s.notify(models.NotificationTypeClose, models.SeverityInfo,
			fmt.Sprintf("Цикл %s завершён: PNL %.4f", s.symbol, pnl),
			map[string]interface{}{
				"pnl":         pnl,
				"chase_count": chaseCount,
				"unilateral":  unilateral,
			})

		// Немедленный возврат к мониторингу
		s.pos.Reset()
	}
}

// ============ Таймаут-сторож ============

func (s *Strategy) watchdogLoop(stopCh, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(watchdogInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.watchdogTick(time.Now())
		}
	}
}

// watchdogTick проверяет таймаут текущей фазы исполнения.
// Штамп начала фазы при догоняющих ордерах не сдвигается: после
// первого таймаута проверка срабатывает на каждом проходе, пока фаза
// не завершится или лимит догонов не запретит замену.
func (s *Strategy) watchdogTick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.enabled {
		return
	}
	started := s.pos.PhaseStart()
	if started.IsZero() {
		return
	}
	timeout := time.Duration(s.params.TradeTimeoutSec * float64(time.Second))
	if now.Sub(started) < timeout {
		return
	}

	switch {
	case s.pos.BothFilled():
		// Благоприятная гонка: исполнение уже продвинуло состояние
	case s.pos.NoneFilled():
		s.abortPhase()
	default:
		s.chaseUnfilledLeg()
	}
}

// abortPhase снимает оба ордера фазы без исполнений и откатывается в IDLE.
// Откат закрытия оставляет инвентарь на биржах - IDLE здесь означает
// "цикл сорван", оператор оповещается отдельно.
func (s *Strategy) abortPhase() {
	state := s.pos.State
	RecordTimeout(state)

	ctx, cancel := context.WithTimeout(context.Background(), orderCallTimeout)
	defer cancel()
	s.cancelPendingLeg(ctx, true)
	s.cancelPendingLeg(ctx, false)

	if err := TryTransition(s.pos, s.id, models.StateIdle); err != nil {
		s.log.Error("откат фазы не выполнен", zap.Error(err))
		return
	}

	if state == models.StateClosing {
		s.log.Warn("таймаут закрытия: ордера сняты, позиции остались",
			zap.Float64("position_a", s.pos.PositionA),
			zap.Float64("position_b", s.pos.PositionB))
		s.notify(models.NotificationTypeTimeout, models.SeverityError,
			fmt.Sprintf("Таймаут закрытия %s: ордера сняты, позиции остались на биржах", s.symbol),
			map[string]interface{}{
				"position_a": s.pos.PositionA,
				"position_b": s.pos.PositionB,
			})
	} else {
		s.log.Warn("таймаут открытия: ордера сняты")
		s.notify(models.NotificationTypeTimeout, models.SeverityWarn,
			fmt.Sprintf("Таймаут открытия %s: ордера сняты", s.symbol), nil)
	}
	s.pushUpdate()
}

// chaseUnfilledLeg заменяет ордер неисполненной ноги ценой пересечения
// книги. Сначала снимается старый ордер, потом спрашивается риск:
// ордер не должен висеть в книге, когда замена запрещена лимитом.
func (s *Strategy) chaseUnfilledLeg() {
	var (
		account, side, pendingID string
		legA                     bool
	)
	if s.pos.FilledA {
		account, side, pendingID = s.accountB, s.pos.SideB, s.pos.PendingB
	} else {
		account, side, pendingID = s.accountA, s.pos.SideA, s.pos.PendingA
		legA = true
	}

	ctx, cancel := context.WithTimeout(context.Background(), orderCallTimeout)
	defer cancel()

	if pendingID != "" {
		if err := s.router.Cancel(ctx, account, s.symbol, pendingID); err != nil {
			s.log.Warn("догон: старый ордер не снят",
				zap.String("account", account),
				zap.String("order_id", pendingID),
				zap.Error(err))
		}
		if legA {
			s.pos.PendingA = ""
		} else {
			s.pos.PendingB = ""
		}
	}

	verdict := s.risk.CheckChaseOrder(s.name, s.pos.ChaseCount+1)
	if !verdict.Allowed {
		RecordUnilateral(account)
		s.log.Warn("догон запрещён, экспозиция односторонняя",
			zap.String("account", account),
			zap.String("reason", verdict.Reason))
		s.notify(models.NotificationTypeUnilateral, models.SeverityError,
			fmt.Sprintf("Односторонняя позиция %s: %s", s.symbol, verdict.Reason),
			map[string]interface{}{
				"account": account,
				"side":    side,
			})
		return
	}

	var price float64
	if legA {
		price = utils.ChasePrice(side, s.book.BidA, s.book.AskA)
	} else {
		price = utils.ChasePrice(side, s.book.BidB, s.book.AskB)
	}
	if price <= 0 {
		s.log.Warn("догон: нет котировки для цены замены", zap.String("account", account))
		return
	}

	size := s.pos.OrderSize
	if size <= 0 {
		size = s.params.OrderSize
	}
	leg := LegOrder{Account: account, Symbol: s.symbol, Side: side, Price: price, Size: size}
	out := s.router.Submit(ctx, leg)
	if !out.Ok() {
		errMsg := errText(out.Err)
		s.recordOrder(leg, out, models.OrderStatusRejected, true, errMsg)
		s.notifyError(fmt.Sprintf("Догоняющий ордер %s не выставлен: %s", account, errMsg))
		return
	}

	if legA {
		s.pos.PendingA = out.OrderID
	} else {
		s.pos.PendingB = out.OrderID
	}
	s.pos.ChaseCount++
	s.pos.Unilateral = true
	RecordChase(account)
	s.recordOrder(leg, out, models.OrderStatusPending, true, "")
	s.log.Info("выставлен догоняющий ордер",
		zap.String("account", account),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Int("chase_count", s.pos.ChaseCount))
	s.notify(models.NotificationTypeChase, models.SeverityWarn,
		fmt.Sprintf("Догоняющий ордер #%d: %s %s @ %v", s.pos.ChaseCount, account, side, price),
		map[string]interface{}{
			"account":     account,
			"side":        side,
			"price":       price,
			"chase_count": s.pos.ChaseCount,
		})
	s.pushUpdate()
}

func (s *Strategy) cancelPendingLeg(ctx context.Context, legA bool) {
	account, pendingID := s.accountB, s.pos.PendingB
	if legA {
		account, pendingID = s.accountA, s.pos.PendingA
	}
	if pendingID == "" {
		return
	}
	if err := s.router.Cancel(ctx, account, s.symbol, pendingID); err != nil {
		s.log.Warn("ордер не снят при откате фазы",
			zap.String("account", account),
			zap.String("order_id", pendingID),
			zap.Error(err))
	}
	if legA {
		s.pos.PendingA = ""
	} else {
		s.pos.PendingB = ""
	}
}

// ============ Ручное закрытие ============

// ManualClose принудительно запускает закрытие открытой позиции,
// не дожидаясь порога спреда. Требует состояния OPENED.
func (s *Strategy) ManualClose() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos.State != models.StateOpened {
		return fmt.Errorf("manual close requires OPENED state, current: %s", s.pos.State)
	}
	if !s.book.Ready() {
		return fmt.Errorf("no quotes to price closing orders")
	}
	s.log.Info("ручное закрытие позиции")
	s.closeCycle(s.book.DirectionalSpread(s.pos.Direction))
	return nil
}

// ============ Статус ============

// Runtime возвращает снимок текущего состояния стратегии
func (s *Strategy) Runtime() models.StrategyRuntime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runtimeLocked()
}

func (s *Strategy) runtimeLocked() models.StrategyRuntime {
	rt := models.StrategyRuntime{
		StrategyID:  s.id,
		SpreadAB:    s.book.SpreadAB,
		SpreadBA:    s.book.SpreadBA,
		TradesCount: s.tradesCount,
		TotalPnl:    s.totalPnl,
		LastUpdate:  s.book.LastUpdate,
	}
	s.pos.fillRuntime(&rt)
	return rt
}

// Status возвращает полный снимок стратегии для API
func (s *Strategy) Status() models.StrategyStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.StrategyStatus{
		StrategyID: s.id,
		Name:       s.name,
		Symbol:     s.symbol,
		Enabled:    s.enabled,
		AutoMode:   s.autoMode,
		Status:     s.runtimeLocked(),
		Parameters: s.params,
	}
}

// Spread возвращает снимок книги спредов
func (s *Strategy) Spread() SpreadSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.book.Snapshot()
}

// Totals возвращает накопленную статистику стратегии
func (s *Strategy) Totals() (tradesCount int, totalPnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tradesCount, s.totalPnl
}

// ============ Вспомогательные ============

func signedDelta(side string, size float64) float64 {
	if side == models.SideSell {
		return -size
	}
	return size
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Strategy) notify(ntype, severity, message string, meta map[string]interface{}) {
	id := s.id
	enqueueNotification(s.notifyCh, &models.Notification{
		Timestamp:  time.Now().UTC(),
		Type:       ntype,
		Severity:   severity,
		StrategyID: &id,
		Message:    message,
		Meta:       meta,
	})
}

func (s *Strategy) notifyError(message string) {
	s.notify(models.NotificationTypeError, models.SeverityError, message, nil)
}

func (s *Strategy) notifyRiskDenied(account, reason string) {
	s.log.Warn("вход запрещён риск-менеджером",
		zap.String("account", account),
		zap.String("reason", reason))
	s.notify(models.NotificationTypeRiskViolation, models.SeverityWarn,
		fmt.Sprintf("Вход %s запрещён (%s): %s", s.symbol, account, reason), nil)
}

func (s *Strategy) recordOrder(leg LegOrder, out LegOutcome, status string, chase bool, errMsg string) {
	if s.hooks.OnOrder == nil {
		return
	}
	s.hooks.OnOrder(&models.OrderRecord{
		StrategyID:   s.id,
		Exchange:     leg.Account,
		Symbol:       leg.Symbol,
		OrderID:      out.OrderID,
		ClientID:     out.ClientID,
		Side:         leg.Side,
		Type:         models.OrderTypeLimit,
		Price:        leg.Price,
		Quantity:     leg.Size,
		Status:       status,
		Chase:        chase,
		ErrorMessage: errMsg,
		CreatedAt:    time.Now().UTC(),
	})
}

func (s *Strategy) markOrderFilled(fill models.Fill) {
	if s.hooks.OnOrder == nil {
		return
	}
	filledAt := fill.Timestamp
	if filledAt.IsZero() {
		filledAt = time.Now().UTC()
	}
	s.hooks.OnOrder(&models.OrderRecord{
		StrategyID: s.id,
		Exchange:   fill.Account,
		Symbol:     fill.Symbol,
		OrderID:    fill.OrderID,
		Side:       fill.Side,
		Type:       models.OrderTypeLimit,
		Price:      fill.Price,
		Quantity:   fill.Quantity,
		Status:     models.OrderStatusFilled,
		CreatedAt:  time.Now().UTC(),
		FilledAt:   &filledAt,
	})
}

func (s *Strategy) recordTrade(direction string, pnl float64, chaseCount int, unilateral bool) {
	if s.hooks.OnTrade == nil {
		return
	}
	now := time.Now().UTC()
	openedAt := s.pos.OpenedAt
	if openedAt.IsZero() {
		openedAt = now
	}
	closedAt := s.pos.ClosedAt
	if closedAt.IsZero() {
		closedAt = now
	}
	s.hooks.OnTrade(&models.TradeRecord{
		StrategyID: s.id,
		Symbol:     s.symbol,
		Direction:  direction,
		Pnl:        pnl,
		ChaseCount: chaseCount,
		Unilateral: unilateral,
		OpenedAt:   openedAt,
		ClosedAt:   closedAt,
		CreatedAt:  now,
	})
}

func (s *Strategy) pushUpdate() {
	if s.hooks.OnUpdate == nil {
		return
	}
	s.hooks.OnUpdate(s.runtimeLocked())
}
