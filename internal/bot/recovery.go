package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
)

// VenueDirectory выдаёт шлюзы подключённых площадок
type VenueDirectory interface {
	Accounts() []string
	Gateway(account string) (exchange.Gateway, bool)
}

// RecoveryScanner сверяет биржевое состояние со стратегиями после
// перезапуска: запрашивает у каждой площадки активные ордера и
// ненулевые позиции и ищет экспозицию, которую ни одна стратегия за
// собой не признаёт.
//
// Сканер только сообщает. Он никогда не закрывает позиции и не
// снимает ордера: остановка бота рабочие ордера не отменяет, и
// расхождение после рестарта разбирает оператор.
type RecoveryScanner struct {
	engine  *Engine
	venues  VenueDirectory
	log     *zap.Logger
	timeout time.Duration
}

// NewRecoveryScanner создаёт сканер пост-рестартной сверки
func NewRecoveryScanner(engine *Engine, venues VenueDirectory, log *zap.Logger) *RecoveryScanner {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryScanner{
		engine:  engine,
		venues:  venues,
		log:     log.Named("recovery"),
		timeout: 30 * time.Second,
	}
}

// RecoveryReport содержит итог сверки
type RecoveryReport struct {
	PositionsFound  int
	OrdersFound     int
	OrphanPositions []OrphanPosition
	OrphanOrders    []OrphanOrder
	Errors          []error
}

// OrphanPosition - позиция на площадке, не признанная ни одной стратегией
type OrphanPosition struct {
	Account       string
	Symbol        string
	Size          float64
	EntryPrice    float64
	UnrealizedPnl float64
}

// OrphanOrder - активный ордер, не признанный ни одной стратегией
type OrphanOrder struct {
	Account  string
	Symbol   string
	OrderID  string
	Side     string
	Price    float64
	Quantity float64
}

// Scan опрашивает площадки и сопоставляет найденное со стратегиями.
// Ошибки отдельных площадок не прерывают сверку остальных.
func (rs *RecoveryScanner) Scan(ctx context.Context) (*RecoveryReport, error) {
	ctx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	report := &RecoveryReport{}

	type venueState struct {
		account   string
		positions []exchange.Position
		orders    []exchange.OpenOrder
	}

	var states []venueState
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, account := range rs.venues.Accounts() {
		gw, ok := rs.venues.Gateway(account)
		if !ok {
			continue
		}

		wg.Add(1)
		go func(account string, gw exchange.Gateway) {
			defer wg.Done()

			st := venueState{account: account}

			positions, err := gw.Positions(ctx)
			if err != nil {
				mu.Lock()
				report.Errors = append(report.Errors,
					fmt.Errorf("positions %s: %w", account, err))
				mu.Unlock()
			} else {
				st.positions = positions
			}

			orders, err := gw.OpenOrders(ctx, "")
			if err != nil {
				mu.Lock()
				report.Errors = append(report.Errors,
					fmt.Errorf("open orders %s: %w", account, err))
				mu.Unlock()
			} else {
				st.orders = orders
			}

			mu.Lock()
			states = append(states, st)
			mu.Unlock()
		}(account, gw)
	}
	wg.Wait()

	known := rs.knownExposure()

	for _, st := range states {
		for _, pos := range st.positions {
			if pos.Size == 0 {
				continue
			}
			report.PositionsFound++
			if known.coversPosition(st.account, pos.Symbol) {
				continue
			}
			report.OrphanPositions = append(report.OrphanPositions, OrphanPosition{
				Account:       st.account,
				Symbol:        pos.Symbol,
				Size:          pos.Size,
				EntryPrice:    pos.EntryPrice,
				UnrealizedPnl: pos.UnrealizedPnl,
			})
		}

		for _, ord := range st.orders {
			report.OrdersFound++
			if known.coversOrder(ord.OrderID) {
				continue
			}
			report.OrphanOrders = append(report.OrphanOrders, OrphanOrder{
				Account:  st.account,
				Symbol:   ord.Symbol,
				OrderID:  ord.OrderID,
				Side:     ord.Side,
				Price:    ord.Price,
				Quantity: ord.Quantity,
			})
		}
	}

	rs.publish(report)
	return report, nil
}

// exposureIndex - экспозиция, которую стратегии признают своей
type exposureIndex struct {
	positions map[exposureKey]bool
	orders    map[string]bool
}

type exposureKey struct {
	account string
	symbol  string
}

func (idx *exposureIndex) coversPosition(account, symbol string) bool {
	return idx.positions[exposureKey{account, symbol}]
}

func (idx *exposureIndex) coversOrder(orderID string) bool {
	return orderID != "" && idx.orders[orderID]
}

// knownExposure собирает учтённую экспозицию по всем стратегиям.
// Стратегия признаёт ногу, если идёт по циклу или несёт остаточную
// позицию после прерванного закрытия.
func (rs *RecoveryScanner) knownExposure() *exposureIndex {
	idx := &exposureIndex{
		positions: make(map[exposureKey]bool),
		orders:    make(map[string]bool),
	}

	for _, s := range rs.engine.Strategies() {
		rt := s.Runtime()
		accountA, accountB := s.Accounts()
		symbol := s.Symbol()

		midCycle := rt.State != models.StateIdle
		if midCycle || rt.PositionA != 0 {
			idx.positions[exposureKey{accountA, symbol}] = true
		}
		if midCycle || rt.PositionB != 0 {
			idx.positions[exposureKey{accountB, symbol}] = true
		}

		if rt.PendingA != "" {
			idx.orders[rt.PendingA] = true
		}
		if rt.PendingB != "" {
			idx.orders[rt.PendingB] = true
		}
	}

	return idx
}

// publish разносит итог сверки по логам и уведомлениям
func (rs *RecoveryScanner) publish(report *RecoveryReport) {
	for _, pos := range report.OrphanPositions {
		rs.log.Error("неучтённая позиция на площадке",
			zap.String("account", pos.Account),
			zap.String("symbol", pos.Symbol),
			zap.Float64("size", pos.Size),
			zap.Float64("unrealized_pnl", pos.UnrealizedPnl))

		rs.notify(models.SeverityError, fmt.Sprintf(
			"Неучтённая позиция на %s: %s %.4f (вход %.4f, PNL %.2f USDT)",
			pos.Account, pos.Symbol, pos.Size, pos.EntryPrice, pos.UnrealizedPnl),
			map[string]interface{}{
				"account":        pos.Account,
				"symbol":         pos.Symbol,
				"size":           pos.Size,
				"entry_price":    pos.EntryPrice,
				"unrealized_pnl": pos.UnrealizedPnl,
			})
	}

	for _, ord := range report.OrphanOrders {
		rs.log.Warn("неучтённый ордер на площадке",
			zap.String("account", ord.Account),
			zap.String("symbol", ord.Symbol),
			zap.String("order_id", ord.OrderID))

		rs.notify(models.SeverityWarn, fmt.Sprintf(
			"Неучтённый ордер на %s: %s %s %.4f @ %v",
			ord.Account, ord.Symbol, ord.Side, ord.Quantity, ord.Price),
			map[string]interface{}{
				"account":  ord.Account,
				"symbol":   ord.Symbol,
				"order_id": ord.OrderID,
				"side":     ord.Side,
				"price":    ord.Price,
				"quantity": ord.Quantity,
			})
	}

	for _, err := range report.Errors {
		rs.log.Warn("сверка площадки не удалась", zap.Error(err))
	}

	rs.log.Info("сверка после перезапуска завершена",
		zap.Int("positions", report.PositionsFound),
		zap.Int("orders", report.OrdersFound),
		zap.Int("orphan_positions", len(report.OrphanPositions)),
		zap.Int("orphan_orders", len(report.OrphanOrders)))

	rs.notify(models.SeverityInfo, fmt.Sprintf(
		"Сверка после перезапуска: позиций %d, ордеров %d, неучтённых %d/%d",
		report.PositionsFound, report.OrdersFound,
		len(report.OrphanPositions), len(report.OrphanOrders)), nil)
}

func (rs *RecoveryScanner) notify(severity, message string, meta map[string]interface{}) {
	rs.engine.Notify(&models.Notification{
		Timestamp: time.Now(),
		Type:      models.NotificationTypeRecovery,
		Severity:  severity,
		Message:   message,
		Meta:      meta,
	})
}
