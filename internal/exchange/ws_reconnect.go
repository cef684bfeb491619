package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crossarb/pkg/retry"
)

// WSReconnectConfig задаёт поведение живучести одного WebSocket соединения
type WSReconnectConfig struct {
	MaxRetries     int           // попыток на одну серию переподключения (0 - без лимита)
	InitialDelay   time.Duration // пауза после первой неудачной попытки
	MaxDelay       time.Duration // потолок экспоненциальной паузы
	ConnectTimeout time.Duration
	PingInterval   time.Duration // период протокольных ping
	PongTimeout    time.Duration // запас сверх PingInterval для дедлайна чтения
}

// DefaultWSReconnectConfig - паузы 2s, 4s, 8s и далее по 16s,
// до десяти попыток на серию.
func DefaultWSReconnectConfig() WSReconnectConfig {
	return WSReconnectConfig{
		MaxRetries:     10,
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    10 * time.Second,
	}
}

// Состояния соединения. Наружу отдаются строкой через State.
const (
	wsOffline int32 = iota
	wsDialing
	wsLive
	wsRetrying
	wsShut
)

var wsStateNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "closed"}

// WSReconnectManager держит WebSocket соединение с площадкой живым.
//
// Поток котировок - единственный источник спредов: умерший без
// переподключения сокет молча останавливает торговлю. Поэтому менеджер
// переподключается сам, с экспоненциальной паузой через pkg/retry,
// после чего заново проходит аутентификацию и повторяет подписки.
//
// Живость контролируется дедлайном чтения: каждое входящее сообщение,
// включая pong, отодвигает его на PingInterval+PongTimeout. Площадка,
// замолчавшая на этот срок, считается мёртвой, даже если TCP-сессия
// формально жива.
//
// Обработчики событий выставляются до Connect и далее не меняются.
type WSReconnectManager struct {
	name string // имя соединения для логов (bybit-public и т.п.)
	url  string
	cfg  WSReconnectConfig
	log  *zap.Logger

	conn    *websocket.Conn
	connMu  sync.RWMutex
	writeMu sync.Mutex // WriteJSON нельзя звать конкурентно

	state   atomic.Int32
	retries atomic.Int32

	// cancel останавливает чтение, ping и переподключения
	ctx    context.Context
	cancel context.CancelFunc

	// Выставляются до Connect, синхронизация не нужна
	onMessage    func([]byte)
	onConnect    func()
	onDisconnect func(error)
	authFunc     func(*websocket.Conn) error

	// Подписки, повторяемые после каждого переподключения
	subs   []interface{}
	subsMu sync.Mutex
}

// NewWSReconnectManager создаёт менеджер соединения
func NewWSReconnectManager(name, url string, cfg WSReconnectConfig, log *zap.Logger) *WSReconnectManager {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WSReconnectManager{
		name:   name,
		url:    url,
		cfg:    cfg,
		log:    log.Named("ws").With(zap.String("conn", name)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetOnMessage задаёт обработчик входящих сообщений
func (m *WSReconnectManager) SetOnMessage(fn func([]byte)) { m.onMessage = fn }

// SetOnConnect задаёт обработчик установленного соединения
func (m *WSReconnectManager) SetOnConnect(fn func()) { m.onConnect = fn }

// SetOnDisconnect задаёт обработчик разрыва
func (m *WSReconnectManager) SetOnDisconnect(fn func(error)) { m.onDisconnect = fn }

// SetAuthFunc задаёт аутентификацию приватных каналов. Выполняется после
// каждого подключения, до повторной отправки подписок.
func (m *WSReconnectManager) SetAuthFunc(fn func(*websocket.Conn) error) { m.authFunc = fn }

// AddSubscription запоминает подписку: каждое переподключение отправит
// её заново. Саму отправку сейчас делает вызывающий через Send.
func (m *WSReconnectManager) AddSubscription(sub interface{}) {
	m.subsMu.Lock()
	m.subs = append(m.subs, sub)
	m.subsMu.Unlock()
}

// State возвращает состояние соединения строкой для логов и дебага
func (m *WSReconnectManager) State() string {
	if s := int(m.state.Load()); s >= 0 && s < len(wsStateNames) {
		return wsStateNames[s]
	}
	return "unknown"
}

// IsConnected сообщает, установлено ли соединение
func (m *WSReconnectManager) IsConnected() bool {
	return m.state.Load() == wsLive
}

// RetryCount - число неудачных попыток текущей серии переподключения
func (m *WSReconnectManager) RetryCount() int {
	return int(m.retries.Load())
}

// Connect устанавливает соединение и запускает его обслуживание
func (m *WSReconnectManager) Connect() error {
	if m.ctx.Err() != nil {
		return errors.New("ws manager is closed")
	}

	m.state.Store(wsDialing)
	if err := m.dial(); err != nil {
		m.state.Store(wsOffline)
		return err
	}

	m.connected()
	m.log.Info("соединение установлено", zap.String("url", m.url))
	return nil
}

// connected фиксирует живое соединение и запускает чтение и ping
func (m *WSReconnectManager) connected() {
	m.state.Store(wsLive)
	m.retries.Store(0)
	if m.onConnect != nil {
		m.onConnect()
	}
	go m.readLoop()
	go m.pingLoop()
}

func (m *WSReconnectManager) dial() error {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.name, err)
	}

	if m.authFunc != nil {
		if err := m.authFunc(conn); err != nil {
			conn.Close()
			return fmt.Errorf("ws auth: %w", err)
		}
	}

	m.armReadDeadline(conn)
	conn.SetPongHandler(func(string) error {
		m.armReadDeadline(conn)
		return nil
	})

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	// Неотправленная подписка не роняет соединение: её повторит
	// следующее переподключение
	if err := m.replaySubscriptions(conn); err != nil {
		m.log.Warn("подписки не восстановлены", zap.Error(err))
	}
	return nil
}

// armReadDeadline отодвигает дедлайн чтения. Пока площадка шлёт хоть
// что-нибудь, соединение считается живым.
func (m *WSReconnectManager) armReadDeadline(conn *websocket.Conn) {
	if m.cfg.PingInterval <= 0 {
		return
	}
	conn.SetReadDeadline(time.Now().Add(m.cfg.PingInterval + m.cfg.PongTimeout))
}

func (m *WSReconnectManager) replaySubscriptions(conn *websocket.Conn) error {
	m.subsMu.Lock()
	subs := append([]interface{}(nil), m.subs...)
	m.subsMu.Unlock()

	for _, sub := range subs {
		m.writeMu.Lock()
		err := conn.WriteJSON(sub)
		m.writeMu.Unlock()
		if err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}
	if len(subs) > 0 {
		m.log.Info("подписки восстановлены", zap.Int("count", len(subs)))
	}
	return nil
}

// readLoop читает сообщения одного соединения до его смерти.
// После переподключения запускается новый экземпляр.
func (m *WSReconnectManager) readLoop() {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			m.lostConnection(err)
			return
		}
		m.armReadDeadline(conn)
		if m.onMessage != nil {
			m.onMessage(message)
		}
	}
}

// pingLoop шлёт протокольные ping. WriteControl безопасен при
// конкурентной записи, writeMu не нужен.
func (m *WSReconnectManager) pingLoop() {
	if m.cfg.PingInterval <= 0 {
		return
	}

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return
	}

	ticker := time.NewTicker(m.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if m.state.Load() != wsLive {
				return
			}
			deadline := time.Now().Add(m.cfg.PongTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				m.lostConnection(fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// lostConnection переводит менеджера в режим переподключения.
// Разрыв замечают и читающая, и пингующая горутины - серию начинает
// та, что выиграла CompareAndSwap.
func (m *WSReconnectManager) lostConnection(err error) {
	if m.ctx.Err() != nil {
		return
	}
	if !m.state.CompareAndSwap(wsLive, wsRetrying) {
		return
	}

	m.closeConn()

	if m.onDisconnect != nil {
		m.onDisconnect(err)
	}
	m.log.Warn("соединение разорвано", zap.Error(err))

	go m.redial()
}

func (m *WSReconnectManager) closeConn() error {
	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close()
	m.conn = nil
	return err
}

// redial восстанавливает соединение с экспоненциальной паузой.
// Серия заканчивается успехом, исчерпанием попыток или Close.
func (m *WSReconnectManager) redial() {
	err := retry.Do(m.ctx, m.dial, retry.Config{
		MaxRetries:   m.cfg.MaxRetries,
		InitialDelay: m.cfg.InitialDelay,
		MaxDelay:     m.cfg.MaxDelay,
		Multiplier:   2,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			m.retries.Store(int32(attempt))
			m.log.Warn("переподключение не удалось",
				zap.Int("attempt", attempt),
				zap.Duration("next_try_in", delay),
				zap.Error(err))
		},
	})
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.log.Error("соединение не восстановлено, попытки исчерпаны",
			zap.Int("max_retries", m.cfg.MaxRetries), zap.Error(err))
		m.state.Store(wsOffline)
		return
	}

	m.connected()
	m.log.Info("соединение восстановлено")
}

// Send отправляет сообщение в соединение
func (m *WSReconnectManager) Send(msg interface{}) error {
	if m.state.Load() != wsLive {
		return fmt.Errorf("ws %s is %s", m.name, m.State())
	}

	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return errors.New("no connection")
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

// Close останавливает переподключения и закрывает соединение.
// Повторные вызовы безвредны.
func (m *WSReconnectManager) Close() error {
	m.cancel()
	m.state.Store(wsShut)
	return m.closeConn()
}
