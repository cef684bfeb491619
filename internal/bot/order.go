package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/retry"
)

// VenueGateway минимальный контракт торгового шлюза площадки.
//
// SubmitOrder возвращает подтверждение приёма (не исполнения): вызов
// обязан завершаться быстро, исполнение приходит отдельным потоком
// через Fill. Реализации живут в internal/exchange.
type VenueGateway interface {
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderAck, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// LegOrder параметры одной ноги арбитражной пары
type LegOrder struct {
	Account string
	Symbol  string
	Side    string // buy, sell
	Price   float64
	Size    float64
}

// LegOutcome результат выставления одной ноги
type LegOutcome struct {
	Account  string
	OrderID  string // пустой при ошибке
	ClientID string
	Err      error
}

// Ok возвращает true если ордер принят биржей
func (o LegOutcome) Ok() bool {
	return o.Err == nil && o.OrderID != ""
}

// OrderRouter направляет ордера в шлюзы площадок по имени аккаунта.
//
// Обе ноги пары выставляются параллельно: последовательная отправка
// удваивает окно, в котором рынок уходит от рассчитанных цен.
type OrderRouter struct {
	mu       sync.RWMutex
	gateways map[string]VenueGateway
	log      *zap.Logger
}

// NewOrderRouter создаёт роутер без шлюзов
func NewOrderRouter(log *zap.Logger) *OrderRouter {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderRouter{
		gateways: make(map[string]VenueGateway),
		log:      log.Named("orders"),
	}
}

// Register подключает шлюз аккаунта
func (r *OrderRouter) Register(account string, gw VenueGateway) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gateways[account] = gw
}

// Unregister отключает шлюз аккаунта
func (r *OrderRouter) Unregister(account string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.gateways, account)
}

// Connected возвращает true если шлюз аккаунта зарегистрирован
func (r *OrderRouter) Connected(account string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.gateways[account]
	return ok
}

func (r *OrderRouter) gateway(account string) (VenueGateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gateways[account]
	if !ok {
		return nil, fmt.Errorf("gateway not found: %s", account)
	}
	return gw, nil
}

// Submit выставляет одну ногу. Ошибка означает, что ордера на бирже
// нет: вызывающий не должен запоминать его идентификатор.
func (r *OrderRouter) Submit(ctx context.Context, leg LegOrder) LegOutcome {
	gw, err := r.gateway(leg.Account)
	if err != nil {
		return LegOutcome{Account: leg.Account, Err: err}
	}

	clientID := uuid.NewString()
	req := models.OrderRequest{
		Account:  leg.Account,
		Symbol:   leg.Symbol,
		Side:     leg.Side,
		Type:     models.OrderTypeLimit,
		Price:    leg.Price,
		Quantity: leg.Size,
		ClientID: clientID,
	}

	start := time.Now()
	ack, err := gw.SubmitOrder(ctx, req)
	RecordOrderSubmit(leg.Account, leg.Side, err, time.Since(start).Seconds())
	if err != nil {
		r.log.Error("ордер не принят биржей",
			zap.String("account", leg.Account),
			zap.String("symbol", leg.Symbol),
			zap.String("side", leg.Side),
			zap.Float64("price", leg.Price),
			zap.Float64("size", leg.Size),
			zap.Error(err))
		return LegOutcome{Account: leg.Account, ClientID: clientID, Err: err}
	}

	r.log.Debug("ордер выставлен",
		zap.String("account", leg.Account),
		zap.String("order_id", ack.OrderID),
		zap.String("side", leg.Side),
		zap.Float64("price", leg.Price),
		zap.Float64("size", leg.Size))
	return LegOutcome{Account: leg.Account, OrderID: ack.OrderID, ClientID: clientID}
}

// SubmitPair параллельно выставляет обе ноги и ждёт оба результата.
// Неуспех одной ноги не откатывает другую: восстановлением частичной
// пары занимается таймаут-сторож стратегии.
func (r *OrderRouter) SubmitPair(ctx context.Context, legA, legB LegOrder) (LegOutcome, LegOutcome) {
	chA := make(chan LegOutcome, 1)
	chB := make(chan LegOutcome, 1)

	go func() { chA <- r.Submit(ctx, legA) }()
	go func() { chB <- r.Submit(ctx, legB) }()

	return <-chA, <-chB
}

// Cancel снимает ордер с повторами: зависший в книге ордер опаснее
// лишнего запроса отмены.
func (r *OrderRouter) Cancel(ctx context.Context, account, symbol, orderID string) error {
	gw, err := r.gateway(account)
	if err != nil {
		return err
	}

	err = retry.Do(ctx, func() error {
		return gw.CancelOrder(ctx, symbol, orderID)
	}, retry.AggressiveConfig())
	if err != nil {
		r.log.Error("ордер не снят",
			zap.String("account", account),
			zap.String("order_id", orderID),
			zap.Error(err))
		return fmt.Errorf("cancel order %s: %w", orderID, err)
	}

	r.log.Debug("ордер снят",
		zap.String("account", account),
		zap.String("order_id", orderID))
	return nil
}
