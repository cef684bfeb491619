package bot

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// BroadcastHub контракт трансляции событий подключённым клиентам.
// Реализации обязаны не блокировать вызывающего.
type BroadcastHub interface {
	BroadcastStrategyUpdate(rt models.StrategyRuntime)
	BroadcastNotification(n *models.Notification)
}

// SymbolScreener проверяет символ перед созданием стратегии.
// Возвращает причину блокировки и флаг "символ заблокирован".
type SymbolScreener interface {
	Blocked(symbol string) (string, bool)
}

// SymbolWatcher подписывает площадки на котировки символа.
// Движок вызывает его при регистрации стратегии: так стратегии,
// созданные на работающем боте, начинают получать тики без рестарта.
type SymbolWatcher interface {
	Watch(symbol string) error
}

// EngineCallbacks коллбеки персистентности. Вызываются из рабочих
// горутин движка, вне локов стратегий.
type EngineCallbacks struct {
	SaveOrder        func(rec *models.OrderRecord)
	SaveTrade        func(rec *models.TradeRecord)
	SaveNotification func(n *models.Notification)
}

// EngineOptions размеры внутренних очередей и пула обработчиков
type EngineOptions struct {
	NumShards    int
	ShardBuffer  int
	FillBuffer   int
	OrderBuffer  int
	TradeBuffer  int
	NotifyBuffer int
}

// DefaultEngineOptions подбирает размеры под машину
func DefaultEngineOptions() EngineOptions {
	return EngineOptions{
		NumShards:    utils.ClampInt(runtime.NumCPU(), 4, 32),
		ShardBuffer:  2000,
		FillBuffer:   1024,
		OrderBuffer:  512,
		TradeBuffer:  256,
		NotifyBuffer: 512,
	}
}

// Engine владеет стратегиями и раздаёт им события площадок.
//
// Котировки шардируются по символу, по одной горутине на шард:
// котировки одного символа обрабатываются строго в порядке прихода.
// Исполнения идут одной очередью на все стратегии - какая нога чья,
// стратегии решают сами по идентификатору ордера.
type Engine struct {
	opts EngineOptions

	risk   *RiskManager
	router *OrderRouter
	board  *QuoteBoard
	log    *zap.Logger

	mu         sync.RWMutex
	strategies map[int]*Strategy
	bySymbol   sync.Map // symbol -> []*Strategy, слайсы неизменяемые

	quoteShards []chan models.Quote
	fillCh      chan models.Fill
	ordersCh    chan *models.OrderRecord
	tradesCh    chan *models.TradeRecord
	notifyCh    chan *models.Notification

	hub       BroadcastHub
	screener  SymbolScreener
	watcher   SymbolWatcher
	callbacks EngineCallbacks

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewEngine создаёт движок без стратегий
func NewEngine(opts EngineOptions, risk *RiskManager, router *OrderRouter, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.NumShards <= 0 {
		opts = DefaultEngineOptions()
	}
	e := &Engine{
		opts:       opts,
		risk:       risk,
		router:     router,
		board:      NewQuoteBoard(),
		log:        log.Named("engine"),
		strategies: make(map[int]*Strategy),
		fillCh:     make(chan models.Fill, opts.FillBuffer),
		ordersCh:   make(chan *models.OrderRecord, opts.OrderBuffer),
		tradesCh:   make(chan *models.TradeRecord, opts.TradeBuffer),
		notifyCh:   make(chan *models.Notification, opts.NotifyBuffer),
	}
	e.quoteShards = make([]chan models.Quote, opts.NumShards)
	for i := range e.quoteShards {
		e.quoteShards[i] = make(chan models.Quote, opts.ShardBuffer)
	}
	return e
}

// SetHub подключает транслятор событий
func (e *Engine) SetHub(hub BroadcastHub) { e.hub = hub }

// SetScreener подключает проверку символов
func (e *Engine) SetScreener(sc SymbolScreener) { e.screener = sc }

// SetWatcher подключает подписку на котировки регистрируемых символов
func (e *Engine) SetWatcher(w SymbolWatcher) { e.watcher = w }

// SetCallbacks подключает персистентность
func (e *Engine) SetCallbacks(cb EngineCallbacks) { e.callbacks = cb }

// Risk возвращает риск-менеджер движка
func (e *Engine) Risk() *RiskManager { return e.risk }

// Router возвращает роутер ордеров
func (e *Engine) Router() *OrderRouter { return e.router }

// Board возвращает хранилище котировок
func (e *Engine) Board() *QuoteBoard { return e.board }

// ============ Жизненный цикл ============

// Start запускает рабочие горутины движка
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	for i := range e.quoteShards {
		e.wg.Add(1)
		go e.quoteWorker(i, stopCh)
	}
	e.wg.Add(4)
	go e.fillWorker(stopCh)
	go e.persistWorker(stopCh)
	go e.notifyWorker(stopCh)
	go e.housekeeping(stopCh)

	e.log.Info("движок запущен",
		zap.Int("quote_shards", e.opts.NumShards),
		zap.Int("shard_buffer", e.opts.ShardBuffer))
}

// Stop останавливает рабочие горутины и все стратегии
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh := e.stopCh
	e.mu.Unlock()

	close(stopCh)
	e.wg.Wait()

	for _, s := range e.Strategies() {
		s.Stop()
	}
	e.log.Info("движок остановлен")
}

// ============ Приём событий ============

// OnQuote принимает котировку площадки. Невалидные котировки
// отбрасываются, переполнение шарда роняет котировку, не вызывающего.
func (e *Engine) OnQuote(q models.Quote) {
	if !q.Valid() {
		RecordEvent("quote_invalid")
		return
	}
	e.board.Update(q)

	shard := e.quoteShards[shardIndex(q.Symbol)%len(e.quoteShards)]
	select {
	case shard <- q:
	default:
		RecordBufferOverflow("quotes")
		RecordBufferBacklog("quotes", cap(shard), len(shard))
	}
}

// OnFill принимает исполнение ордера. Исполнения не отбрасываются:
// потерянное исполнение рассинхронизирует машину состояний, поэтому
// отправка блокируется до места в очереди или остановки движка.
func (e *Engine) OnFill(f models.Fill) {
	e.mu.RLock()
	stopCh := e.stopCh
	running := e.running
	e.mu.RUnlock()
	if !running {
		return
	}
	select {
	case e.fillCh <- f:
	case <-stopCh:
	}
}

// Notify ставит уведомление во внутреннюю очередь движка
func (e *Engine) Notify(n *models.Notification) {
	enqueueNotification(e.notifyCh, n)
}

// enqueueNotification кладёт уведомление в канал без блокировки.
// Переполненная очередь роняет уведомление: это телеметрия, не сделки.
func enqueueNotification(ch chan *models.Notification, n *models.Notification) {
	if ch == nil || n == nil {
		return
	}
	select {
	case ch <- n:
	default:
		RecordBufferOverflow("notification")
		RecordBufferBacklog("notification", cap(ch), len(ch))
	}
}

// ============ Управление стратегиями ============

// AddStrategy создаёт стратегию из конфигурации и регистрирует её.
// Заблокированные символы отклоняются.
func (e *Engine) AddStrategy(cfg *models.StrategyConfig) (*Strategy, error) {
	if e.screener != nil {
		if reason, blocked := e.screener.Blocked(cfg.Symbol); blocked {
			return nil, fmt.Errorf("symbol %s is blacklisted: %s", cfg.Symbol, reason)
		}
	}

	e.mu.Lock()
	if _, exists := e.strategies[cfg.ID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("strategy %d already registered", cfg.ID)
	}

	hooks := StrategyHooks{
		OnOrder: func(rec *models.OrderRecord) {
			select {
			case e.ordersCh <- rec:
			default:
				RecordBufferOverflow("orders")
			}
		},
		OnTrade: func(rec *models.TradeRecord) {
			select {
			case e.tradesCh <- rec:
			default:
				RecordBufferOverflow("trades")
			}
		},
		OnUpdate: func(rt models.StrategyRuntime) {
			if e.hub != nil {
				e.hub.BroadcastStrategyUpdate(rt)
			}
		},
	}

	s := NewStrategy(cfg, e.risk, e.router, e.notifyCh, hooks, e.log)
	e.strategies[cfg.ID] = s
	e.reindexSymbolLocked(cfg.Symbol)
	e.mu.Unlock()

	// Подписка вне лока: Watch ходит в сеть. Ошибка не отменяет
	// регистрацию - слой переподключения доставит котировки позже.
	if e.watcher != nil {
		if err := e.watcher.Watch(cfg.Symbol); err != nil {
			e.log.Warn("не удалось подписаться на котировки символа",
				zap.Int("strategy_id", cfg.ID),
				zap.String("symbol", cfg.Symbol),
				zap.Error(err))
		}
	}

	e.log.Info("стратегия зарегистрирована",
		zap.Int("strategy_id", cfg.ID),
		zap.String("name", cfg.Name),
		zap.String("symbol", cfg.Symbol))
	return s, nil
}

// RemoveStrategy останавливает и удаляет стратегию.
// Стратегию с удерживаемой позицией удаляет только force: позиции
// при этом остаются на биржах.
func (e *Engine) RemoveStrategy(id int, force bool) error {
	e.mu.Lock()
	s, ok := e.strategies[id]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("strategy %d not found", id)
	}
	rt := s.Runtime()
	if HasOpenPosition(rt.State) && !force {
		e.mu.Unlock()
		return fmt.Errorf("strategy %d holds an open position", id)
	}
	delete(e.strategies, id)
	e.reindexSymbolLocked(s.Symbol())
	e.mu.Unlock()

	s.Stop()
	if HasOpenPosition(rt.State) {
		sid := id
		e.Notify(&models.Notification{
			Timestamp:  time.Now().UTC(),
			Type:       models.NotificationTypeUnilateral,
			Severity:   models.SeverityError,
			StrategyID: &sid,
			Message:    fmt.Sprintf("Стратегия %d удалена с открытой позицией: закройте ноги вручную", id),
		})
	}
	e.log.Info("стратегия удалена", zap.Int("strategy_id", id), zap.Bool("force", force))
	return nil
}

// reindexSymbolLocked пересобирает неизменяемый список стратегий символа.
// Вызывается под e.mu.
func (e *Engine) reindexSymbolLocked(symbol string) {
	var list []*Strategy
	for _, s := range e.strategies {
		if s.Symbol() == symbol {
			list = append(list, s)
		}
	}
	if len(list) == 0 {
		e.bySymbol.Delete(symbol)
		return
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	e.bySymbol.Store(symbol, list)
}

// Strategy возвращает стратегию по идентификатору
func (e *Engine) Strategy(id int) (*Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[id]
	return s, ok
}

// Strategies возвращает все стратегии в порядке идентификаторов
func (e *Engine) Strategies() []*Strategy {
	e.mu.RLock()
	list := make([]*Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		list = append(list, s)
	}
	e.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// StartStrategy запускает стратегию по идентификатору
func (e *Engine) StartStrategy(id int) error {
	s, ok := e.Strategy(id)
	if !ok {
		return fmt.Errorf("strategy %d not found", id)
	}
	s.Start()
	return nil
}

// PauseStrategy останавливает стратегию по идентификатору
func (e *Engine) PauseStrategy(id int) error {
	s, ok := e.Strategy(id)
	if !ok {
		return fmt.Errorf("strategy %d not found", id)
	}
	s.Stop()
	return nil
}

// SetParameters обновляет параметры стратегии
func (e *Engine) SetParameters(id int, upd models.StrategyParametersUpdate) error {
	s, ok := e.Strategy(id)
	if !ok {
		return fmt.Errorf("strategy %d not found", id)
	}
	return s.SetParameters(upd)
}

// SetAutoMode переключает авторежим стратегии
func (e *Engine) SetAutoMode(id int, auto bool) error {
	s, ok := e.Strategy(id)
	if !ok {
		return fmt.Errorf("strategy %d not found", id)
	}
	s.SetAutoMode(auto)
	return nil
}

// RegisterStrategy регистрирует стратегию, отбрасывая хэндл.
// Форма AddStrategy для сервисного слоя.
func (e *Engine) RegisterStrategy(cfg *models.StrategyConfig) error {
	_, err := e.AddStrategy(cfg)
	return err
}

// StrategyRuntime возвращает runtime-срез стратегии
func (e *Engine) StrategyRuntime(id int) (models.StrategyRuntime, bool) {
	s, ok := e.Strategy(id)
	if !ok {
		return models.StrategyRuntime{}, false
	}
	return s.Runtime(), true
}

// ManualClose принудительно закрывает позицию стратегии
func (e *Engine) ManualClose(id int) error {
	s, ok := e.Strategy(id)
	if !ok {
		return fmt.Errorf("strategy %d not found", id)
	}
	return s.ManualClose()
}

// ManualOrder выставляет одиночный ордер вне стратегий.
// Риск-проверок нет: это прямое вмешательство оператора.
func (e *Engine) ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error) {
	if err := utils.ValidateSide(side); err != nil {
		return "", err
	}
	if err := utils.ValidatePrice(price); err != nil {
		return "", err
	}
	if err := utils.ValidateVolume(size); err != nil {
		return "", err
	}

	leg := LegOrder{Account: account, Symbol: symbol, Side: side, Price: price, Size: size}
	out := e.router.Submit(ctx, leg)
	if !out.Ok() {
		return "", fmt.Errorf("manual order rejected: %w", out.Err)
	}

	select {
	case e.ordersCh <- &models.OrderRecord{
		Exchange:  account,
		Symbol:    symbol,
		OrderID:   out.OrderID,
		ClientID:  out.ClientID,
		Side:      side,
		Type:      models.OrderTypeLimit,
		Price:     price,
		Quantity:  size,
		Status:    models.OrderStatusPending,
		CreatedAt: time.Now().UTC(),
	}:
	default:
		RecordBufferOverflow("orders")
	}
	e.Notify(&models.Notification{
		Timestamp: time.Now().UTC(),
		Type:      models.NotificationTypeOpen,
		Severity:  models.SeverityInfo,
		Message:   fmt.Sprintf("Ручной ордер: %s %s %s %v @ %v", account, side, symbol, size, price),
	})
	e.log.Info("ручной ордер выставлен",
		zap.String("account", account),
		zap.String("symbol", symbol),
		zap.String("side", side),
		zap.Float64("price", price),
		zap.Float64("size", size),
		zap.String("order_id", out.OrderID))
	return out.OrderID, nil
}

// ============ Рабочие горутины ============

func (e *Engine) quoteWorker(shard int, stopCh chan struct{}) {
	defer e.wg.Done()
	ch := e.quoteShards[shard]
	for {
		select {
		case <-stopCh:
			return
		case q := <-ch:
			start := time.Now()
			if v, ok := e.bySymbol.Load(q.Symbol); ok {
				for _, s := range v.([]*Strategy) {
					s.OnQuote(q)
				}
			}
			QuoteProcessingDuration.Observe(time.Since(start).Seconds())
			RecordEvent("quote")
		}
	}
}

func (e *Engine) fillWorker(stopCh chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case f := <-e.fillCh:
			// Все стратегии: чья нога - решает совпадение идентификатора
			for _, s := range e.Strategies() {
				s.OnFill(f)
			}
			RecordEvent("fill")
		}
	}
}

func (e *Engine) persistWorker(stopCh chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case rec := <-e.ordersCh:
			if e.callbacks.SaveOrder != nil {
				e.callbacks.SaveOrder(rec)
			}
			RecordEvent("order")
		case rec := <-e.tradesCh:
			if e.callbacks.SaveTrade != nil {
				e.callbacks.SaveTrade(rec)
			}
			RecordEvent("trade")
		}
	}
}

func (e *Engine) notifyWorker(stopCh chan struct{}) {
	defer e.wg.Done()
	for {
		select {
		case <-stopCh:
			return
		case n := <-e.notifyCh:
			if e.callbacks.SaveNotification != nil {
				e.callbacks.SaveNotification(n)
			}
			if e.hub != nil {
				e.hub.BroadcastNotification(n)
			}
			RecordEvent("notification")
		}
	}
}

// housekeeping обновляет медленные метрики и возраст котировок
func (e *Engine) housekeeping(stopCh chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			UpdateGoroutineCount()
			RecordBufferBacklog("fills", cap(e.fillCh), len(e.fillCh))
			RecordBufferBacklog("notification", cap(e.notifyCh), len(e.notifyCh))

			counts := make(map[string]int, 5)
			now := time.Now()
			for _, s := range e.Strategies() {
				rt := s.Runtime()
				counts[rt.State]++
				accA, accB := s.Accounts()
				if age, ok := e.board.Age(accA, s.Symbol(), now); ok {
					UpdateQuoteAge(accA, s.Symbol(), age.Seconds())
				}
				if age, ok := e.board.Age(accB, s.Symbol(), now); ok {
					UpdateQuoteAge(accB, s.Symbol(), age.Seconds())
				}
			}
			for _, state := range []string{models.StateIdle, models.StateOpening,
				models.StateOpened, models.StateClosing, models.StateClosed} {
				ActiveStrategies.WithLabelValues(state).Set(float64(counts[state]))
			}
		}
	}
}
