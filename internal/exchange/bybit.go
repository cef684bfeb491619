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
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/ratelimit"
	"crossarb/pkg/retry"
)

// Эндпоинты Bybit API v5, категория linear
const (
	bybitBaseURL    = "https://api.bybit.com"
	bybitWSPublic   = "wss://stream.bybit.com/v5/public/linear"
	bybitWSPrivate  = "wss://stream.bybit.com/v5/private"
	bybitRecvWindow = "5000"
)

// Bybit реализует интерфейс Gateway для биржи Bybit (API v5, linear)
type Bybit struct {
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

	// Поток tickers шлёт snapshot и дальше дельты только изменившихся
	// полей: книга лучших цен досбирает каждую дельту до полной котировки
	books  map[string]*bybitBook
	bookMu sync.Mutex

	ledger *positionLedger
}

type bybitBook struct {
	bid, ask         float64
	bidSize, askSize float64
}

// NewBybit создает новый экземпляр Bybit.
// Использует глобальный HTTP клиент с connection pooling.
func NewBybit(log *zap.Logger) *Bybit {
	if log == nil {
		log = zap.NewNop()
	}

	limits := ratelimit.NewMultiLimiter()
	limits.Add(limitOrders, 8, 8)
	limits.Add(limitMarket, 20, 20)
	limits.Add(limitWallet, 5, 5)

	return &Bybit{
		httpClient:     GetGlobalHTTPClient().GetClient(),
		limits:         limits,
		log:            log.Named("bybit"),
		quoteCallbacks: make(map[string]func(models.Quote)),
		books:          make(map[string]*bybitBook),
		ledger:         newPositionLedger(),
	}
}

// sign считает подпись API v5: HMAC-SHA256 от склейки
// timestamp + key + recv_window + payload
func (b *Bybit) sign(timestamp, payload string) string {
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	io.WriteString(mac, timestamp+b.apiKey+bybitRecvWindow+payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// doRequest выполняет HTTP запрос к Bybit API с учётом rate-лимитов
func (b *Bybit) doRequest(ctx context.Context, method, endpoint, category string, params map[string]string, signed bool) ([]byte, error) {
	if err := b.limits.Wait(ctx, category); err != nil {
		return nil, err
	}

	reqURL := bybitBaseURL + endpoint

	// payload участвует в подписи: query-строка для GET, JSON для POST
	var payload string
	switch method {
	case http.MethodGet:
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		if payload = q.Encode(); payload != "" {
			reqURL += "?" + payload
		}
	default:
		if len(params) > 0 {
			raw, err := json.Marshal(params)
			if err != nil {
				return nil, err
			}
			payload = string(raw)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, strings.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	if signed {
		ts := strconv.FormatInt(time.Now().UnixMilli(), 10)
		req.Header.Set("X-BAPI-API-KEY", b.apiKey)
		req.Header.Set("X-BAPI-TIMESTAMP", ts)
		req.Header.Set("X-BAPI-RECV-WINDOW", bybitRecvWindow)
		req.Header.Set("X-BAPI-SIGN", b.sign(ts, payload))
	}

	return readBybitResponse(b.httpClient.Do(req))
}

// readBybitResponse читает тело и превращает ненулевой retCode в GatewayError
func readBybitResponse(resp *http.Response, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	var status struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, err
	}
	if status.RetCode != 0 {
		return nil, &GatewayError{
			Venue:   "bybit",
			Code:    strconv.Itoa(status.RetCode),
			Message: status.RetMsg,
		}
	}
	return body, nil
}

// decodeBybitResult снимает обёртку {"result": ...} с ответа API
func decodeBybitResult[T any](body []byte) (T, error) {
	var resp struct {
		Result T `json:"result"`
	}
	err := json.Unmarshal(body, &resp)
	return resp.Result, err
}

// decodeBybitList достаёт постраничный список {"result": {"list": [...]}}
func decodeBybitList[T any](body []byte) ([]T, error) {
	res, err := decodeBybitResult[struct {
		List []T `json:"list"`
	}](body)
	return res.List, err
}

// bybitWSData достаёт пачку событий из сообщения приватного потока
func bybitWSData[T any](message []byte) []T {
	var msg struct {
		Data []T `json:"data"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return nil
	}
	return msg.Data
}

// bybitSide переводит сторону ордера в нотацию биржи
func bybitSide(side string) string {
	if side == models.SideSell {
		return "Sell"
	}
	return "Buy"
}

// sideFromBybit переводит сторону из нотации биржи
func sideFromBybit(s string) string {
	if s == "Sell" {
		return models.SideSell
	}
	return models.SideBuy
}

// getWithRetry выполняет идемпотентный GET запрос с повторами.
// Ордерные операции повторов не получают: за снятие отвечает роутер,
// повторное выставление означало бы дублирование ордера.
func (b *Bybit) getWithRetry(ctx context.Context, endpoint, category string, params map[string]string, signed bool) ([]byte, error) {
	cfg := retry.ConservativeConfig()
	cfg.RetryIf = retry.RetryIfNotContext
	return retry.DoWithResult(ctx, func() ([]byte, error) {
		return b.doRequest(ctx, http.MethodGet, endpoint, category, params, signed)
	}, cfg)
}

// Connect сохраняет ключи и проверяет их запросом баланса.
// Passphrase у Bybit не используется.
func (b *Bybit) Connect(apiKey, secret, passphrase string) error {
	b.apiKey = apiKey
	b.secretKey = secret

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := b.Balance(ctx); err != nil {
		return fmt.Errorf("failed to connect to Bybit: %w", err)
	}
	return nil
}

func (b *Bybit) Name() string {
	return "bybit"
}

// SubmitOrder выставляет лимитный GTC ордер.
// ClientID запроса уходит как orderLinkId и возвращается в событиях
// исполнения приватного WebSocket.
func (b *Bybit) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderAck, error) {
	params := map[string]string{
		"category":    "linear",
		"symbol":      req.Symbol,
		"side":        bybitSide(req.Side),
		"orderType":   "Limit",
		"qty":         strconv.FormatFloat(req.Quantity, 'f', -1, 64),
		"price":       strconv.FormatFloat(req.Price, 'f', -1, 64),
		"timeInForce": "GTC",
	}
	if req.ClientID != "" {
		params["orderLinkId"] = req.ClientID
	}

	body, err := b.doRequest(ctx, http.MethodPost, "/v5/order/create", limitOrders, params, true)
	if err != nil {
		return nil, err
	}

	res, err := decodeBybitResult[struct {
		OrderId string `json:"orderId"`
	}](body)
	if err != nil {
		return nil, err
	}

	return &models.OrderAck{
		OrderID:   res.OrderId,
		ClientID:  req.ClientID,
		Account:   b.Name(),
		Timestamp: time.Now(),
	}, nil
}

// CancelOrder снимает ордер по биржевому идентификатору
func (b *Bybit) CancelOrder(ctx context.Context, symbol, orderID string) error {
	_, err := b.doRequest(ctx, http.MethodPost, "/v5/order/cancel", limitOrders, map[string]string{
		"category": "linear",
		"symbol":   symbol,
		"orderId":  orderID,
	}, true)
	return err
}

type bybitCoinRow struct {
	Coin   string `json:"coin"`
	Equity string `json:"equity"`
}

// Balance возвращает equity USDT единого торгового аккаунта
func (b *Bybit) Balance(ctx context.Context) (float64, error) {
	params := map[string]string{
		"accountType": "UNIFIED",
		"coin":        "USDT",
	}

	body, err := b.getWithRetry(ctx, "/v5/account/wallet-balance", limitWallet, params, true)
	if err != nil {
		return 0, err
	}

	accounts, err := decodeBybitList[struct {
		Coin []bybitCoinRow `json:"coin"`
	}](body)
	if err != nil || len(accounts) == 0 {
		return 0, err
	}

	for _, c := range accounts[0].Coin {
		if c.Coin != "USDT" {
			continue
		}
		equity, _ := strconv.ParseFloat(c.Equity, 64)
		return equity, nil
	}
	return 0, nil
}

type bybitOrderRow struct {
	Symbol      string `json:"symbol"`
	OrderId     string `json:"orderId"`
	OrderLinkId string `json:"orderLinkId"`
	Side        string `json:"side"`
	Price       string `json:"price"`
	Qty         string `json:"qty"`
	CumExecQty  string `json:"cumExecQty"`
	CreatedTime string `json:"createdTime"`
}

// OpenOrders возвращает активные ордера символа (пустой символ - все)
func (b *Bybit) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := map[string]string{"category": "linear"}
	if symbol != "" {
		params["symbol"] = symbol
	} else {
		params["settleCoin"] = "USDT"
	}

	body, err := b.getWithRetry(ctx, "/v5/order/realtime", limitOrders, params, true)
	if err != nil {
		return nil, err
	}
	rows, err := decodeBybitList[bybitOrderRow](body)
	if err != nil {
		return nil, err
	}

	orders := make([]OpenOrder, 0, len(rows))
	for _, o := range rows {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.Qty, 64)
		filled, _ := strconv.ParseFloat(o.CumExecQty, 64)
		created, _ := strconv.ParseInt(o.CreatedTime, 10, 64)

		orders = append(orders, OpenOrder{
			Symbol:    o.Symbol,
			OrderID:   o.OrderId,
			ClientID:  o.OrderLinkId,
			Side:      sideFromBybit(o.Side),
			Price:     price,
			Quantity:  qty,
			FilledQty: filled,
			CreatedAt: time.UnixMilli(created),
		})
	}
	return orders, nil
}

type bybitPositionRow struct {
	Symbol        string `json:"symbol"`
	Side          string `json:"side"`
	Size          string `json:"size"`
	AvgPrice      string `json:"avgPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealisedPnl string `json:"unrealisedPnl"`
	UpdatedTime   string `json:"updatedTime"`
}

// Positions возвращает ненулевые позиции и прогревает леджер позиций
func (b *Bybit) Positions(ctx context.Context) ([]Position, error) {
	params := map[string]string{
		"category":   "linear",
		"settleCoin": "USDT",
	}

	body, err := b.getWithRetry(ctx, "/v5/position/list", limitWallet, params, true)
	if err != nil {
		return nil, err
	}
	rows, err := decodeBybitList[bybitPositionRow](body)
	if err != nil {
		return nil, err
	}

	positions := make([]Position, 0)
	for _, p := range rows {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size == 0 {
			continue
		}
		if p.Side == "Sell" {
			size = -size
		}

		entryPrice, _ := strconv.ParseFloat(p.AvgPrice, 64)
		markPrice, _ := strconv.ParseFloat(p.MarkPrice, 64)
		unrealizedPnl, _ := strconv.ParseFloat(p.UnrealisedPnl, 64)
		updatedTime, _ := strconv.ParseInt(p.UpdatedTime, 10, 64)

		b.ledger.Set(p.Symbol, size)

		positions = append(positions, Position{
			Symbol:        p.Symbol,
			Size:          size,
			EntryPrice:    entryPrice,
			MarkPrice:     markPrice,
			UnrealizedPnl: unrealizedPnl,
			UpdatedAt:     time.UnixMilli(updatedTime),
		})
	}
	return positions, nil
}

// wsSubscribe собирает сообщение подписки на топики потока
func wsSubscribe(topics ...string) map[string]interface{} {
	return map[string]interface{}{
		"op":   "subscribe",
		"args": topics,
	}
}

// SubscribeQuotes подписывается на поток лучших цен символа
func (b *Bybit) SubscribeQuotes(symbol string, callback func(models.Quote)) error {
	b.callbackMu.Lock()
	b.quoteCallbacks[symbol] = callback
	b.callbackMu.Unlock()

	if b.wsPublic == nil {
		m := NewWSReconnectManager("bybit-public", bybitWSPublic, DefaultWSReconnectConfig(), b.log)
		m.SetOnMessage(b.handlePublicMessage)

		if err := m.Connect(); err != nil {
			return fmt.Errorf("failed to connect to public WebSocket: %w", err)
		}
		b.wsPublic = m
	}

	// Подписка восстановится после переподключения
	sub := wsSubscribe("tickers." + symbol)
	b.wsPublic.AddSubscription(sub)
	return b.wsPublic.Send(sub)
}

type bybitTickerMsg struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		Bid1Price string `json:"bid1Price"`
		Bid1Size  string `json:"bid1Size"`
		Ask1Price string `json:"ask1Price"`
		Ask1Size  string `json:"ask1Size"`
	} `json:"data"`
}

// handlePublicMessage обрабатывает одно сообщение публичного WebSocket
func (b *Bybit) handlePublicMessage(message []byte) {
	var msg bybitTickerMsg
	if err := json.Unmarshal(message, &msg); err != nil {
		return
	}
	if !strings.HasPrefix(msg.Topic, "tickers.") {
		return
	}

	symbol := msg.Data.Symbol

	b.bookMu.Lock()
	book, ok := b.books[symbol]
	if !ok {
		book = &bybitBook{}
		b.books[symbol] = book
	}
	if msg.Data.Bid1Price != "" {
		book.bid, _ = strconv.ParseFloat(msg.Data.Bid1Price, 64)
	}
	if msg.Data.Ask1Price != "" {
		book.ask, _ = strconv.ParseFloat(msg.Data.Ask1Price, 64)
	}
	if msg.Data.Bid1Size != "" {
		book.bidSize, _ = strconv.ParseFloat(msg.Data.Bid1Size, 64)
	}
	if msg.Data.Ask1Size != "" {
		book.askSize, _ = strconv.ParseFloat(msg.Data.Ask1Size, 64)
	}
	quote := models.Quote{
		Exchange:  b.Name(),
		Symbol:    symbol,
		Bid:       book.bid,
		Ask:       book.ask,
		BidSize:   book.bidSize,
		AskSize:   book.askSize,
		Timestamp: time.Now(),
	}
	b.bookMu.Unlock()

	// Дельта до первого snapshot не даёт полной котировки
	if quote.Bid <= 0 || quote.Ask <= 0 {
		return
	}

	b.callbackMu.RLock()
	callback, ok := b.quoteCallbacks[symbol]
	b.callbackMu.RUnlock()
	if ok && callback != nil {
		callback(quote)
	}
}

// SubscribeFills подписывается на исполнения ордеров аккаунта.
// Топик position держит леджер позиций синхронизированным с биржей.
func (b *Bybit) SubscribeFills(callback func(models.Fill)) error {
	b.callbackMu.Lock()
	b.fillCallback = callback
	b.callbackMu.Unlock()

	if b.wsPrivate == nil {
		m := NewWSReconnectManager("bybit-private", bybitWSPrivate, DefaultWSReconnectConfig(), b.log)
		m.SetAuthFunc(b.authenticateWebSocket)
		m.SetOnMessage(b.handlePrivateMessage)

		if err := m.Connect(); err != nil {
			return fmt.Errorf("failed to connect to private WebSocket: %w", err)
		}
		b.wsPrivate = m
	}

	sub := wsSubscribe("execution", "position")
	b.wsPrivate.AddSubscription(sub)
	return b.wsPrivate.Send(sub)
}

// authenticateWebSocket шлёт auth первым кадром: приватные топики
// без подписи отвергаются
func (b *Bybit) authenticateWebSocket(conn *websocket.Conn) error {
	expires := time.Now().Add(10 * time.Second).UnixMilli()
	mac := hmac.New(sha256.New, []byte(b.secretKey))
	fmt.Fprintf(mac, "GET/realtime%d", expires)

	return conn.WriteJSON(map[string]interface{}{
		"op":   "auth",
		"args": []interface{}{b.apiKey, expires, hex.EncodeToString(mac.Sum(nil))},
	})
}

// handlePrivateMessage обрабатывает одно сообщение приватного WebSocket
func (b *Bybit) handlePrivateMessage(message []byte) {
	var probe struct {
		Topic string `json:"topic"`
	}
	if err := json.Unmarshal(message, &probe); err != nil {
		return
	}

	switch probe.Topic {
	case "execution":
		b.handleExecution(message)
	case "position":
		b.handlePosition(message)
	}
}

type bybitExecRow struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	OrderId   string `json:"orderId"`
	ExecPrice string `json:"execPrice"`
	ExecQty   string `json:"execQty"`
	ExecType  string `json:"execType"`
	ExecTime  string `json:"execTime"`
}

func (b *Bybit) handleExecution(message []byte) {
	b.callbackMu.RLock()
	callback := b.fillCallback
	b.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	for _, e := range bybitWSData[bybitExecRow](message) {
		// Funding и ликвидационные события исполнениями не считаются
		if e.ExecType != "Trade" {
			continue
		}

		price, _ := strconv.ParseFloat(e.ExecPrice, 64)
		qty, _ := strconv.ParseFloat(e.ExecQty, 64)
		ts, _ := strconv.ParseInt(e.ExecTime, 10, 64)

		side := sideFromBybit(e.Side)
		resulting := b.ledger.Apply(e.Symbol, signedQty(side, qty))

		callback(models.Fill{
			Account:           b.Name(),
			Exchange:          b.Name(),
			OrderID:           e.OrderId,
			Symbol:            e.Symbol,
			Side:              side,
			Price:             price,
			Quantity:          qty,
			ResultingPosition: resulting,
			Timestamp:         time.UnixMilli(ts),
		})
	}
}

func (b *Bybit) handlePosition(message []byte) {
	// Снимок позиции авторитетен: перезаписывает накопленные дельты
	for _, p := range bybitWSData[struct {
		Symbol string `json:"symbol"`
		Side   string `json:"side"`
		Size   string `json:"size"`
	}](message) {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if p.Side == "Sell" {
			size = -size
		}
		b.ledger.Set(p.Symbol, size)
	}
}

func (b *Bybit) Close() error {
	for _, m := range []*WSReconnectManager{b.wsPublic, b.wsPrivate} {
		if m != nil {
			m.Close()
		}
	}
	b.wsPublic, b.wsPrivate = nil, nil
	return nil
}
