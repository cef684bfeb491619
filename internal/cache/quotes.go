// Package cache содержит Redis-кэш последних котировок.
//
// Кэш необязателен: без адреса Redis бот работает только на памяти,
// а API отдаёт котировки из внутреннего трекера. С кэшем последняя
// котировка каждой пары площадка+символ переживает перезапуск и
// доступна внешним потребителям напрямую из Redis.
package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"crossarb/internal/models"
)

// json - ускоренный кодек для горячего пути записи котировок
var json = jsoniter.ConfigCompatibleWithStandardLibrary

const metricsNamespace = "crossarb"

var (
	// cacheWritesTotal счётчик записанных в Redis котировок
	cacheWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "quote_writes_total",
		Help:      "Котировки, записанные в Redis",
	})

	// cacheWriteErrorsTotal счётчик неудачных записей
	cacheWriteErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "quote_write_errors_total",
		Help:      "Ошибки записи котировок в Redis",
	})

	// cacheDroppedTotal счётчик котировок, потерянных на переполнении буфера
	cacheDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "cache",
		Name:      "quote_writes_dropped_total",
		Help:      "Котировки, отброшенные из-за переполнения буфера записи",
	})
)

// ErrCacheMiss возвращается, когда котировки в кэше нет
var ErrCacheMiss = fmt.Errorf("quote not found in cache")

// Config содержит параметры подключения к Redis
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // срок жизни котировки в кэше
	Buffer   int           // размер буфера записи
}

// QuoteCache пишет последние котировки в Redis через ограниченный буфер.
//
// Запись никогда не блокирует поставщика: при переполнении буфера
// котировка отбрасывается и считается в метрике. Кэш хранит только
// последнее значение по ключу, поэтому потеря промежуточной котировки
// безвредна - следующая её перезапишет.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger

	ch      chan models.Quote
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once

	dropped uint64
	failing int32 // 1 - Redis недоступен, переходы логируются один раз
}

// NewQuoteCache подключается к Redis и запускает писатель.
// Пустой адрес выключает кэш: возвращается (nil, nil).
func NewQuoteCache(ctx context.Context, cfg Config, log *zap.Logger) (*QuoteCache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	qc := &QuoteCache{
		rdb:     rdb,
		ttl:     cfg.TTL,
		log:     log.Named("cache"),
		ch:      make(chan models.Quote, cfg.Buffer),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	go qc.writeLoop()

	qc.log.Info("кэш котировок подключен",
		zap.String("addr", cfg.Addr),
		zap.Duration("ttl", cfg.TTL),
		zap.Int("buffer", cfg.Buffer))
	return qc, nil
}

func quoteKey(exchange, symbol string) string {
	return "quote:" + exchange + ":" + symbol
}

// Put ставит котировку в очередь записи, не блокируя вызывающего
func (qc *QuoteCache) Put(q models.Quote) {
	select {
	case <-qc.closeCh:
		return
	default:
	}

	select {
	case qc.ch <- q:
	default:
		atomic.AddUint64(&qc.dropped, 1)
		cacheDroppedTotal.Inc()
	}
}

// Latest возвращает последнюю котировку площадки по символу
func (qc *QuoteCache) Latest(ctx context.Context, exchange, symbol string) (models.Quote, error) {
	var q models.Quote

	raw, err := qc.rdb.Get(ctx, quoteKey(exchange, symbol)).Bytes()
	if err == redis.Nil {
		return q, ErrCacheMiss
	}
	if err != nil {
		return q, fmt.Errorf("failed to read quote %s/%s: %w", exchange, symbol, err)
	}
	if err := json.Unmarshal(raw, &q); err != nil {
		return q, fmt.Errorf("failed to decode cached quote: %w", err)
	}
	return q, nil
}

// Dropped возвращает число котировок, потерянных на переполнении буфера
func (qc *QuoteCache) Dropped() uint64 {
	return atomic.LoadUint64(&qc.dropped)
}

// Close останавливает писатель и закрывает подключение к Redis.
// Повторный вызов безопасен.
func (qc *QuoteCache) Close() error {
	var err error
	qc.once.Do(func() {
		close(qc.closeCh)
		<-qc.done
		err = qc.rdb.Close()
	})
	return err
}

func (qc *QuoteCache) writeLoop() {
	defer close(qc.done)

	for {
		select {
		case <-qc.closeCh:
			return
		case q := <-qc.ch:
			qc.write(q)
		}
	}
}

func (qc *QuoteCache) write(q models.Quote) {
	payload, err := json.Marshal(q)
	if err != nil {
		cacheWriteErrorsTotal.Inc()
		qc.log.Warn("кодирование котировки не удалось", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := qc.rdb.Set(ctx, quoteKey(q.Exchange, q.Symbol), payload, qc.ttl).Err(); err != nil {
		cacheWriteErrorsTotal.Inc()
		// Недоступный Redis логируется один раз на сбой, не на котировку
		if atomic.CompareAndSwapInt32(&qc.failing, 0, 1) {
			qc.log.Warn("запись котировок в Redis не удаётся",
				zap.String("exchange", q.Exchange),
				zap.String("symbol", q.Symbol),
				zap.Error(err))
		}
		return
	}

	cacheWritesTotal.Inc()
	if atomic.CompareAndSwapInt32(&qc.failing, 1, 0) {
		qc.log.Info("запись котировок в Redis восстановлена")
	}
}
