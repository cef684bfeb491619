package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/ratelimit"
	"crossarb/pkg/retry"
)

const (
	binanceBaseURL    = "https://fapi.binance.com"
	binanceWSPublic   = "wss://fstream.binance.com/ws"
	binanceRecvWindow = "5000"

	// listenKey живёт 60 минут, keepalive продлевает его
	binanceListenKeyKeepalive = 25 * time.Minute
)

// Уровни аутентификации запросов к Binance
const (
	binanceAuthNone   = iota
	binanceAuthKey    // только заголовок с API ключом (listenKey)
	binanceAuthSigned // ключ + подпись query string
)

// Binance реализует интерфейс Gateway для Binance USDT-M Futures
type Binance struct {
	apiKey    string
	secretKey string

	httpClient *http.Client
	limits     *ratelimit.MultiLimiter
	log        *zap.Logger

	wsPublic  *WSReconnectManager
	wsPrivate *WSReconnectManager

	quoteCallbacks map[string]func(models.Quote)
	fillCallback   func(models.Fill)
	callbackMu     sync.RWMutex

	ledger *positionLedger

	subID     int64 // счётчик id сообщений подписки
	connected bool
	closeChan chan struct{}
}

// NewBinance создает новый экземпляр Binance.
// Использует глобальный HTTP клиент с connection pooling.
func NewBinance(log *zap.Logger) *Binance {
	if log == nil {
		log = zap.NewNop()
	}

	limits := ratelimit.NewMultiLimiter()
	limits.Add(limitOrders, 5, 5)
	limits.Add(limitMarket, 20, 20)
	limits.Add(limitWallet, 5, 5)

	return &Binance{
		httpClient:     GetGlobalHTTPClient().GetClient(),
		limits:         limits,
		log:            log.Named("binance"),
		quoteCallbacks: make(map[string]func(models.Quote)),
		ledger:         newPositionLedger(),
		closeChan:      make(chan struct{}),
	}
}

// sign создает подпись query string для Binance API
func (b *Binance) sign(query string) string {
	h := hmac.New(sha256.New, []byte(b.secretKey))
	h.Write([]byte(query))
	return hex.EncodeToString(h.Sum(nil))
}

// doRequest выполняет HTTP запрос к Binance API с учётом rate-лимитов.
// Все параметры уходят в query string, включая подпись.
func (b *Binance) doRequest(ctx context.Context, method, endpoint, category string, params map[string]string, auth int) ([]byte, error) {
	if err := b.limits.Wait(ctx, category); err != nil {
		return nil, err
	}

	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	if auth == binanceAuthSigned {
		query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		query.Set("recvWindow", binanceRecvWindow)
	}

	encoded := query.Encode()
	if auth == binanceAuthSigned {
		encoded += "&signature=" + b.sign(encoded)
	}

	reqURL := binanceBaseURL + endpoint
	if encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if auth != binanceAuthNone {
		req.Header.Set("X-MBX-APIKEY", b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	// Ошибки Binance приходят с HTTP статусом и телом {code, msg}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Msg == "" {
			return nil, &GatewayError{
				Venue:   "binance",
				Code:    strconv.Itoa(resp.StatusCode),
				Message: string(body),
			}
		}
		return nil, &GatewayError{
			Venue:   "binance",
			Code:    strconv.Itoa(apiErr.Code),
			Message: apiErr.Msg,
		}
	}

	return body, nil
}

// getWithRetry выполняет идемпотентный GET запрос с повторами
func (b *Binance) getWithRetry(ctx context.Context, endpoint, category string, params map[string]string, auth int) ([]byte, error) {
	cfg := retry.ConservativeConfig()
	cfg.RetryIf = retry.RetryIfNotContext
	return retry.DoWithResult(ctx, func() ([]byte, error) {
		return b.doRequest(ctx, http.MethodGet, endpoint, category, params, auth)
	}, cfg)
}

// Connect сохраняет ключи и проверяет их запросом баланса.
// Passphrase у Binance не используется.
func (b *Binance) Connect(apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.Balance(ctx); err != nil {
		return fmt.Errorf("failed to connect to Binance: %w", err)
	}

	b.connected = true
	return nil
}

func (b *Binance) Name() string {
	return "binance"
}

// SubmitOrder выставляет лимитный GTC ордер.
// ClientID запроса уходит как newClientOrderId и возвращается в
// событиях ORDER_TRADE_UPDATE пользовательского потока.
func (b *Binance) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderAck, error) {
	side := "BUY"
	if req.Side == models.SideSell {
		side = "SELL"
	}

	params := map[string]string{
		"symbol":      req.Symbol,
		"side":        side,
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"quantity":    strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"price":       strconv.FormatFloat(req.Price, 'f', -1, 64),
	}
	if req.ClientID != "" {
		params["newClientOrderId"] = req.ClientID
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/fapi/v1/order", limitOrders, params, binanceAuthSigned)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderId       int64  `json:"orderId"`
		ClientOrderId string `json:"clientOrderId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	return &models.OrderAck{
		OrderID:   strconv.FormatInt(resp.OrderId, 10),
		ClientID:  req.ClientID,
		Account:   b.Name(),
		Timestamp: time.Now(),
	}, nil
}

// CancelOrder снимает ордер по биржевому идентификатору
func (b *Binance) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}

	_, err := b.doRequest(ctx, http.MethodDelete, "/fapi/v1/order", limitOrders, params, binanceAuthSigned)
	return err
}

// Balance возвращает маржинальный баланс фьючерсного аккаунта в USDT
func (b *Binance) Balance(ctx context.Context) (float64, error) {
	body, err := b.getWithRetry(ctx, "/fapi/v2/account", limitWallet, nil, binanceAuthSigned)
	if err != nil {
		return 0, err
	}

	var resp struct {
		TotalMarginBalance string `json:"totalMarginBalance"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, err
	}

	balance, _ := strconv.ParseFloat(resp.TotalMarginBalance, 64)
	return balance, nil
}

// OpenOrders возвращает активные ордера символа (пустой символ - все)
func (b *Binance) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := map[string]string{}
	if symbol != "" {
		params["symbol"] = symbol
	}

	body, err := b.getWithRetry(ctx, "/fapi/v1/openOrders", limitOrders, params, binanceAuthSigned)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Symbol        string `json:"symbol"`
		OrderId       int64  `json:"orderId"`
		ClientOrderId string `json:"clientOrderId"`
		Side          string `json:"side"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Time          int64  `json:"time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(resp))
	for _, o := range resp {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.OrigQty, 64)
		filled, _ := strconv.ParseFloat(o.ExecutedQty, 64)

		side := models.SideBuy
		if o.Side == "SELL" {
			side = models.SideSell
		}

		orders = append(orders, OpenOrder{
			Symbol:    o.Symbol,
			OrderID:   strconv.FormatInt(o.OrderId, 10),
			ClientID:  o.ClientOrderId,
			Side:      side,
			Price:     price,
			Quantity:  qty,
			FilledQty: filled,
			CreatedAt: time.UnixMilli(o.Time),
		})
	}

	return orders, nil
}

// Positions возвращает ненулевые позиции и прогревает леджер позиций.
// PositionAmt приходит уже подписанным.
func (b *Binance) Positions(ctx context.Context) ([]Position, error) {
	body, err := b.getWithRetry(ctx, "/fapi/v2/positionRisk", limitWallet, nil, binanceAuthSigned)
	if err != nil {
		return nil, err
	}

	var resp []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		UnRealizedProfit string `json:"unRealizedProfit"`
		UpdateTime       int64  `json:"updateTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	positions := make([]Position, 0)
	for _, p := range resp {
		size, _ := strconv.ParseFloat(p.PositionAmt, 64)
		if size == 0 {
			continue
		}

		entryPrice, _ := strconv.ParseFloat(p.EntryPrice, 64)
		markPrice, _ := strconv.ParseFloat(p.MarkPrice, 64)
		unrealizedPnl, _ := strconv.ParseFloat(p.UnRealizedProfit, 64)

		b.ledger.Set(p.Symbol, size)

		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Size:          size,
			EntryPrice:    entryPrice,
			MarkPrice:     markPrice,
			UnrealizedPnl: unrealizedPnl,
			UpdatedAt:     time.UnixMilli(p.UpdateTime),
		})
	}

	return positions, nil
}

// SubscribeQuotes подписывается на поток bookTicker символа
func (b *Binance) SubscribeQuotes(symbol string, callback func(models.Quote)) error {
	b.callbackMu.Lock()
	b.quoteCallbacks[symbol] = callback
	b.callbackMu.Unlock()

	if b.wsPublic == nil {
		m := NewWSReconnectManager("binance-public", binanceWSPublic, DefaultWSReconnectConfig(), b.log)
		m.SetOnMessage(b.handlePublicMessage)

		if err := m.Connect(); err != nil {
			return fmt.Errorf("failed to connect to public WebSocket: %w", err)
		}
		b.wsPublic = m
	}

	subMsg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{strings.ToLower(symbol) + "@bookTicker"},
		"id":     atomic.AddInt64(&b.subID, 1),
	}

	// Подписка восстановится после переподключения
	b.wsPublic.AddSubscription(subMsg)
	return b.wsPublic.Send(subMsg)
}

// handlePublicMessage обрабатывает одно сообщение публичного WebSocket.
// bookTicker шлёт полные лучшие цены, сборка дельт не нужна.
func (b *Binance) handlePublicMessage(message []byte) {
	var msg struct {
		Event   string `json:"e"`
		Symbol  string `json:"s"`
		Bid     string `json:"b"`
		BidSize string `json:"B"`
		Ask     string `json:"a"`
		AskSize string `json:"A"`
	}

	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if msg.Event != "bookTicker" {
		return
	}

	b.callbackMu.RLock()
	callback, ok := b.quoteCallbacks[msg.Symbol]
	b.callbackMu.RUnlock()
	if !ok || callback == nil {
		return
	}

	bid, _ := strconv.ParseFloat(msg.Bid, 64)
	ask, _ := strconv.ParseFloat(msg.Ask, 64)
	bidSize, _ := strconv.ParseFloat(msg.BidSize, 64)
	askSize, _ := strconv.ParseFloat(msg.AskSize, 64)

	callback(models.Quote{
		Exchange:  b.Name(),
		Symbol:    msg.Symbol,
		Bid:       bid,
		Ask:       ask,
		BidSize:   bidSize,
		AskSize:   askSize,
		Timestamp: time.Now(),
	})
}

// SubscribeFills подписывается на пользовательский поток аккаунта.
// Поток живёт на listenKey: горутина keepalive продлевает ключ, пока
// шлюз не закрыт, иначе переподключение упрётся в протухший ключ.
func (b *Binance) SubscribeFills(callback func(models.Fill)) error {
	b.callbackMu.Lock()
	b.fillCallback = callback
	b.callbackMu.Unlock()

	if b.wsPrivate != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listenKey, err := b.createListenKey(ctx)
	if err != nil {
		return fmt.Errorf("failed to create listen key: %w", err)
	}

	m := NewWSReconnectManager("binance-private", binanceWSPublic+"/"+listenKey, DefaultWSReconnectConfig(), b.log)
	m.SetOnMessage(b.handlePrivateMessage)

	if err := m.Connect(); err != nil {
		return fmt.Errorf("failed to connect to private WebSocket: %w", err)
	}
	b.wsPrivate = m

	go b.keepAliveLoop()
	return nil
}

func (b *Binance) createListenKey(ctx context.Context) (string, error) {
	body, err := b.doRequest(ctx, http.MethodPost, "/fapi/v1/listenKey", limitWallet, nil, binanceAuthKey)
	if err != nil {
		return "", err
	}

	var resp struct {
		ListenKey string `json:"listenKey"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", err
	}
	if resp.ListenKey == "" {
		return "", fmt.Errorf("empty listen key")
	}
	return resp.ListenKey, nil
}

func (b *Binance) keepAliveLoop() {
	ticker := time.NewTicker(binanceListenKeyKeepalive)
	defer ticker.Stop()

	for {
		select {
		case <-b.closeChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			_, err := b.doRequest(ctx, http.MethodPut, "/fapi/v1/listenKey", limitWallet, nil, binanceAuthKey)
			cancel()
			if err != nil {
				b.log.Warn("продление listen key не удалось", zap.Error(err))
			}
		}
	}
}

// handlePrivateMessage обрабатывает одно событие пользовательского потока
func (b *Binance) handlePrivateMessage(message []byte) {
	var probe struct {
		Event string `json:"e"`
	}
	if err := json.Unmarshal(message, &probe); err != nil {
		return
	}

	switch probe.Event {
	case "ORDER_TRADE_UPDATE":
		b.handleOrderUpdate(message)
	case "ACCOUNT_UPDATE":
		b.handleAccountUpdate(message)
	}
}

func (b *Binance) handleOrderUpdate(message []byte) {
	var msg struct {
		Order struct {
			Symbol    string `json:"s"`
			Side      string `json:"S"`
			ExecType  string `json:"x"`
			OrderId   int64  `json:"i"`
			LastQty   string `json:"l"`
			LastPrice string `json:"L"`
			TradeTime int64  `json:"T"`
		} `json:"o"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	// Интересны только исполнения, не смены статусов
	if msg.Order.ExecType != "TRADE" {
		return
	}

	b.callbackMu.RLock()
	callback := b.fillCallback
	b.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	price, _ := strconv.ParseFloat(msg.Order.LastPrice, 64)
	qty, _ := strconv.ParseFloat(msg.Order.LastQty, 64)

	side := models.SideBuy
	if msg.Order.Side == "SELL" {
		side = models.SideSell
	}

	resulting := b.ledger.Apply(msg.Order.Symbol, signedQty(side, qty))

	callback(models.Fill{
		Account:           b.Name(),
		Exchange:          b.Name(),
		OrderID:           strconv.FormatInt(msg.Order.OrderId, 10),
		Symbol:            msg.Order.Symbol,
		Side:              side,
		Price:             price,
		Quantity:          qty,
		ResultingPosition: resulting,
		Timestamp:         time.UnixMilli(msg.Order.TradeTime),
	})
}

func (b *Binance) handleAccountUpdate(message []byte) {
	var msg struct {
		Account struct {
			Positions []struct {
				Symbol      string `json:"s"`
				PositionAmt string `json:"pa"`
			} `json:"P"`
		} `json:"a"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}

	// Снимок позиции авторитетен: перезаписывает накопленные дельты
	for _, p := range msg.Account.Positions {
		size, _ := strconv.ParseFloat(p.PositionAmt, 64)
		b.ledger.Set(p.Symbol, size)
	}
}

func (b *Binance) Close() error {
	select {
	case <-b.closeChan:
		// Уже закрыт
	default:
		close(b.closeChan)
	}

	if b.wsPublic != nil {
		b.wsPublic.Close()
		b.wsPublic = nil
	}
	if b.wsPrivate != nil {
		b.wsPrivate.Close()
		b.wsPrivate = nil
	}

	b.connected = false
	return nil
}
