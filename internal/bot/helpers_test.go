package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"crossarb/internal/models"
)

// Аккаунты тестовой пары
const (
	testAccountA = "bybit"
	testAccountB = "binance"
	testSymbol   = "BTCUSDT"
)

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}

// almostEqual сравнение float64 с допуском на двоичную погрешность
func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// ============ Фальшивый шлюз площадки ============

// fakeGateway подменяет биржевой шлюз: принимает ордера, выдаёт
// последовательные идентификаторы вида "a-1", фиксирует отмены.
type fakeGateway struct {
	mu         sync.Mutex
	prefix     string
	seq        int
	orders     []models.OrderRequest
	cancelled  []string
	failSubmit bool
	failCancel bool
}

func newFakeGateway(prefix string) *fakeGateway {
	return &fakeGateway{prefix: prefix}
}

func (g *fakeGateway) SubmitOrder(_ context.Context, req models.OrderRequest) (*models.OrderAck, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failSubmit {
		return nil, errors.New("venue unavailable")
	}
	g.seq++
	g.orders = append(g.orders, req)
	return &models.OrderAck{
		OrderID:   fmt.Sprintf("%s-%d", g.prefix, g.seq),
		ClientID:  req.ClientID,
		Account:   req.Account,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (g *fakeGateway) CancelOrder(_ context.Context, _, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failCancel {
		return errors.New("cancel refused")
	}
	g.cancelled = append(g.cancelled, orderID)
	return nil
}

func (g *fakeGateway) orderCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

func (g *fakeGateway) lastOrder() (models.OrderRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.orders) == 0 {
		return models.OrderRequest{}, false
	}
	return g.orders[len(g.orders)-1], true
}

func (g *fakeGateway) cancelCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.cancelled)
}

func (g *fakeGateway) lastCancelled() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.cancelled) == 0 {
		return ""
	}
	return g.cancelled[len(g.cancelled)-1]
}

// ============ Сборка тестовой стратегии ============

// testEnv тестовая стратегия с фальшивыми шлюзами обеих площадок.
//
// Стратегия включается напрямую, без Start: сторож в тестах не
// крутится, таймауты проверяются синхронным вызовом watchdogTick.
type testEnv struct {
	s        *Strategy
	gwA      *fakeGateway
	gwB      *fakeGateway
	notifyCh chan *models.Notification
	orders   *recordSink[models.OrderRecord]
	trades   *recordSink[models.TradeRecord]
}

// recordSink потокобезопасный накопитель записей из хуков
type recordSink[T any] struct {
	mu   sync.Mutex
	recs []T
}

func (rs *recordSink[T]) add(rec T) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.recs = append(rs.recs, rec)
}

func (rs *recordSink[T]) all() []T {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]T, len(rs.recs))
	copy(out, rs.recs)
	return out
}

func (rs *recordSink[T]) count() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.recs)
}

func (rs *recordSink[T]) last() (T, bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	var zero T
	if len(rs.recs) == 0 {
		return zero, false
	}
	return rs.recs[len(rs.recs)-1], true
}

func testConfig() *models.StrategyConfig {
	return &models.StrategyConfig{
		ID:              1,
		Name:            "arb_bybit_binance",
		Symbol:          testSymbol,
		AccountA:        testAccountA,
		AccountB:        testAccountB,
		OpenThreshold:   0.5,
		CloseThreshold:  0.3,
		OrderSize:       0.01,
		MaxChaseCount:   5,
		TradeTimeoutSec: 3.0,
		AutoMode:        true,
	}
}

func fptr(v float64) *float64 { return &v }
func iptr(v int) *int         { return &v }

// newTestEnv собирает стратегию с пустым риск-менеджером (все проверки
// разрешены). Тестам с запретами достаточно добавить правило в env.s.risk.
func newTestEnv() *testEnv {
	return newTestEnvWith(testConfig(), NewRiskManager(nil))
}

func newTestEnvWith(cfg *models.StrategyConfig, risk *RiskManager) *testEnv {
	gwA := newFakeGateway("a")
	gwB := newFakeGateway("b")

	router := NewOrderRouter(nil)
	router.Register(cfg.AccountA, gwA)
	router.Register(cfg.AccountB, gwB)

	orders := &recordSink[models.OrderRecord]{}
	trades := &recordSink[models.TradeRecord]{}
	hooks := StrategyHooks{
		OnOrder: func(rec *models.OrderRecord) { orders.add(*rec) },
		OnTrade: func(rec *models.TradeRecord) { trades.add(*rec) },
	}

	notifyCh := make(chan *models.Notification, 64)
	s := NewStrategy(cfg, risk, router, notifyCh, hooks, nil)
	s.enabled = true

	return &testEnv{s: s, gwA: gwA, gwB: gwB, notifyCh: notifyCh, orders: orders, trades: trades}
}

// tickA подаёт котировку площадки A
func (e *testEnv) tickA(bid, ask float64) {
	e.s.OnQuote(models.Quote{
		Exchange:  testAccountA,
		Symbol:    testSymbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now().UTC(),
	})
}

// tickB подаёт котировку площадки B
func (e *testEnv) tickB(bid, ask float64) {
	e.s.OnQuote(models.Quote{
		Exchange:  testAccountB,
		Symbol:    testSymbol,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now().UTC(),
	})
}

// fill подаёт исполнение ордера
func (e *testEnv) fill(account, orderID string, resultingPos float64) {
	e.s.OnFill(models.Fill{
		Account:           account,
		Exchange:          account,
		OrderID:           orderID,
		Symbol:            testSymbol,
		Side:              models.SideBuy,
		Price:             100,
		Quantity:          0.01,
		ResultingPosition: resultingPos,
		Timestamp:         time.Now().UTC(),
	})
}

// fillBoth исполняет обе активные ноги текущей фазы
func (e *testEnv) fillBoth(posA, posB float64) {
	e.s.mu.Lock()
	pendingA, pendingB := e.s.pos.PendingA, e.s.pos.PendingB
	e.s.mu.Unlock()
	if pendingA != "" {
		e.fill(testAccountA, pendingA, posA)
	}
	if pendingB != "" {
		e.fill(testAccountB, pendingB, posB)
	}
}

// state возвращает текущее состояние машины
func (e *testEnv) state() string {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return e.s.pos.State
}

// position возвращает снимок позиции
func (e *testEnv) position() ArbitragePosition {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	return *e.s.pos
}

// expire прокручивает сторожа моментом времени после таймаута фазы
func (e *testEnv) expire() {
	e.s.mu.Lock()
	started := e.s.pos.PhaseStart()
	timeout := time.Duration(e.s.params.TradeTimeoutSec * float64(time.Second))
	e.s.mu.Unlock()
	e.s.watchdogTick(started.Add(timeout + time.Millisecond))
}

// notifications снимает накопленные уведомления без блокировки
func (e *testEnv) notifications() []*models.Notification {
	var out []*models.Notification
	for {
		select {
		case n := <-e.notifyCh:
			out = append(out, n)
		default:
			return out
		}
	}
}

func hasNotification(list []*models.Notification, ntype string) bool {
	for _, n := range list {
		if n.Type == ntype {
			return true
		}
	}
	return false
}
