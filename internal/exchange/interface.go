package exchange

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"crossarb/internal/models"
)

// json - ускоренный кодек для горячего пути WebSocket сообщений
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Gateway определяет унифицированный интерфейс торгового шлюза площадки.
//
// SubmitOrder и CancelOrder совпадают по сигнатуре с контрактом роутера
// ордеров торгового ядра: шлюз регистрируется в роутере напрямую.
// Котировки и исполнения приходят отдельными потоками через подписки.
type Gateway interface {
	// Connect устанавливает соединение и проверяет ключи API
	Connect(apiKey, secret, passphrase string) error

	// Name возвращает имя площадки (bybit, binance)
	Name() string

	// SubmitOrder выставляет лимитный ордер. ClientID запроса передаётся
	// бирже как пользовательский идентификатор и возвращается в событиях
	// исполнения: по нему сверяются потоки REST и WebSocket.
	SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderAck, error)

	// CancelOrder снимает ордер по биржевому идентификатору
	CancelOrder(ctx context.Context, symbol, orderID string) error

	// Balance возвращает equity фьючерсного аккаунта в USDT
	Balance(ctx context.Context) (float64, error)

	// OpenOrders возвращает активные ордера символа (пустой символ - все)
	OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error)

	// Positions возвращает ненулевые позиции аккаунта
	Positions(ctx context.Context) ([]Position, error)

	// SubscribeQuotes подписывается на лучшие bid/ask символа.
	// Callback вызывается из горутины чтения WebSocket: обработчик
	// обязан быть быстрым и не блокировать.
	SubscribeQuotes(symbol string, callback func(models.Quote)) error

	// SubscribeFills подписывается на исполнения ордеров аккаунта
	SubscribeFills(callback func(models.Fill)) error

	// Close закрывает соединения площадки
	Close() error
}

// OpenOrder представляет активный ордер в книге площадки
type OpenOrder struct {
	Symbol    string    `json:"symbol"`
	OrderID   string    `json:"order_id"`
	ClientID  string    `json:"client_id"` // пользовательский идентификатор
	Side      string    `json:"side"`      // buy, sell
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	FilledQty float64   `json:"filled_qty"`
	CreatedAt time.Time `json:"created_at"`
}

// Position представляет позицию на площадке.
// Размер подписанный: положительный - long, отрицательный - short.
type Position struct {
	Symbol        string    `json:"symbol"`
	Size          float64   `json:"size"`
	EntryPrice    float64   `json:"entry_price"`
	MarkPrice     float64   `json:"mark_price"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// GatewayError представляет ошибку площадки с кодом её API
type GatewayError struct {
	Venue    string
	Code     string
	Message  string
	Original error
}

func (e *GatewayError) Error() string {
	return e.Venue + ": " + e.Message
}

// Unwrap возвращает оригинальную ошибку для errors.Is() и errors.As()
func (e *GatewayError) Unwrap() error {
	return e.Original
}

// Категории rate-лимитов шлюзов
const (
	limitOrders = "orders" // выставление и снятие ордеров
	limitMarket = "market" // публичные рыночные данные
	limitWallet = "wallet" // баланс и позиции
)

// positionLedger отслеживает подписанные позиции аккаунта по символам.
//
// Исполнение с биржи не содержит итоговой позиции, поток позиций не
// синхронизирован с потоком исполнений. Леджер сшивает их: снимки
// позиций задают базу, исполнения двигают её на подписанный объём, и
// каждое событие Fill уходит в ядро с актуальным итогом.
type positionLedger struct {
	mu    sync.RWMutex
	sizes map[string]float64
}

func newPositionLedger() *positionLedger {
	return &positionLedger{sizes: make(map[string]float64)}
}

// Set фиксирует снимок позиции символа
func (l *positionLedger) Set(symbol string, size float64) {
	l.mu.Lock()
	l.sizes[symbol] = size
	l.mu.Unlock()
}

// Apply сдвигает позицию символа и возвращает итог
func (l *positionLedger) Apply(symbol string, delta float64) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sizes[symbol] += delta
	return l.sizes[symbol]
}

// Get возвращает текущую позицию символа
func (l *positionLedger) Get(symbol string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.sizes[symbol]
}

// signedQty возвращает подписанный объём исполнения
func signedQty(side string, qty float64) float64 {
	if side == models.SideSell {
		return -qty
	}
	return qty
}
