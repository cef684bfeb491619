package websocket

import (
	"bytes"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"crossarb/internal/models"
)

// json - ускоренный кодек: broadcast идёт на каждое обновление runtime
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonBufferPool переиспользует буферы сериализации между Broadcast вызовами
var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Центральный менеджер для broadcast сообщений всем подключенным клиентам.
// Обеспечивает real-time обновления данных на frontend без необходимости polling.
//
// Функции:
// - Регистрация новых WebSocket клиентов
// - Отмена регистрации отключенных клиентов
// - Broadcast сообщений всем активным клиентам
// - Отключение клиентов, не успевающих читать
// - Подсчёт потерянных сообщений при переполнении очереди
//
// Типы сообщений:
// - strategyUpdate: обновление состояния стратегии (спреды, позиции, PNL)
// - notification: новое уведомление
// - balanceUpdate: обновление баланса площадки
// - statsUpdate: обновление статистики
//
// Использование:
// 1. Создать hub: hub := NewHub(log)
// 2. Запустить в горутине: go hub.Run()
// 3. Отправлять сообщения: hub.BroadcastStrategyUpdate(rt)
// 4. Остановить: hub.Stop()
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	// Broadcast канал для отправки сообщений всем клиентам
	broadcast chan []byte

	// Регистрация нового клиента
	register chan *Client

	// Отмена регистрации клиента
	unregister chan *Client

	// Сигнал остановки главного цикла
	done     chan struct{}
	stopOnce sync.Once

	// Mutex для потокобезопасного доступа к clients
	mu sync.RWMutex

	// Счётчики для lock-free чтения из других горутин
	clientCount atomic.Int64
	dropped     atomic.Uint64

	log *zap.Logger
}

// NewHub создает новый Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run запускает главный цикл Hub
//
// Должен запускаться в отдельной горутине: go hub.Run()
// Обрабатывает регистрацию, отмену регистрации и broadcast.
// Завершается после вызова Stop, закрыв каналы всех клиентов.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.clientCount.Store(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.clientCount.Store(int64(total))
			h.log.Info("websocket клиент подключен", zap.Int("clients", total))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.clientCount.Store(int64(total))
			h.log.Info("websocket клиент отключен", zap.Int("clients", total))

		case message := <-h.broadcast:
			// копируем список клиентов под коротким RLock,
			// отправляем без блокировки register/unregister
			h.mu.RLock()
			clients := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clients = append(clients, client)
			}
			h.mu.RUnlock()

			var slow []*Client
			for _, client := range clients {
				select {
				case client.send <- message:
				default:
					// буфер клиента полон: клиент не успевает читать
					slow = append(slow, client)
				}
			}

			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					if _, ok := h.clients[client]; ok {
						delete(h.clients, client)
						close(client.send)
					}
				}
				total := len(h.clients)
				h.mu.Unlock()
				h.clientCount.Store(int64(total))
				h.log.Warn("отключены медленные websocket клиенты",
					zap.Int("removed", len(slow)),
					zap.Int("clients", total))
			}
		}
	}
}

// Stop останавливает главный цикл и отключает всех клиентов
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast сериализует сообщение и отправляет его всем клиентам
//
// Не блокируется: при переполнении очереди сообщение отбрасывается,
// чтобы не тормозить торговый цикл. Потери считает DroppedMessages.
func (h *Hub) Broadcast(message interface{}) {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	if err := json.NewEncoder(buf).Encode(message); err != nil {
		jsonBufferPool.Put(buf)
		h.log.Error("не удалось сериализовать websocket сообщение", zap.Error(err))
		return
	}

	// Encode добавляет trailing newline - убираем
	data := buf.Bytes()
	if n := len(data); n > 0 && data[n-1] == '\n' {
		data = data[:n-1]
	}

	// буфер вернётся в пул, поэтому данные копируем
	payload := make([]byte, len(data))
	copy(payload, data)
	jsonBufferPool.Put(buf)

	h.BroadcastRaw(payload)
}

// BroadcastRaw отправляет уже сериализованное сообщение всем клиентам
func (h *Hub) BroadcastRaw(payload []byte) {
	select {
	case h.broadcast <- payload:
	default:
		h.dropped.Add(1)
	}
}

// BroadcastStrategyUpdate отправляет обновление состояния стратегии
func (h *Hub) BroadcastStrategyUpdate(rt models.StrategyRuntime) {
	h.Broadcast(NewStrategyUpdateMessage(rt))
}

// BroadcastNotification отправляет новое уведомление
func (h *Hub) BroadcastNotification(notif *models.Notification) {
	h.Broadcast(NewNotificationMessage(notif))
}

// BroadcastBalanceUpdate отправляет обновление баланса площадки
func (h *Hub) BroadcastBalanceUpdate(exchange string, balance float64) {
	h.Broadcast(NewBalanceUpdateMessage(exchange, balance))
}

// BroadcastAllBalances отправляет балансы всех подключенных площадок
func (h *Hub) BroadcastAllBalances(balances map[string]float64) {
	h.Broadcast(NewAllBalancesMessage(balances))
}

// BroadcastStatsUpdate отправляет обновление статистики
func (h *Hub) BroadcastStatsUpdate(stats *models.Stats) {
	h.Broadcast(NewStatsUpdateMessage(stats))
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// DroppedMessages возвращает количество сообщений, потерянных
// из-за переполнения очереди broadcast
func (h *Hub) DroppedMessages() uint64 {
	return h.dropped.Load()
}
