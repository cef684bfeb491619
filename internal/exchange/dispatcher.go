package exchange

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"crossarb/internal/models"
)

// EventSink принимает нормализованные события площадок.
// Торговое ядро реализует его напрямую.
type EventSink interface {
	OnQuote(q models.Quote)
	OnFill(f models.Fill)
}

// QuoteCache дублирует котировки во внешний кеш. Необязателен.
type QuoteCache interface {
	Put(q models.Quote)
}

// Dispatcher сводит потоки подключённых площадок в один приёмник.
//
// Каждая котировка и каждое исполнение штампуются именем аккаунта, под
// которым шлюз зарегистрирован: ядро сверяет события со своими leg'ами
// по этому имени, а не по тому, что площадка сообщила о себе.
type Dispatcher struct {
	sink  EventSink
	cache QuoteCache
	log   *zap.Logger

	mu       sync.Mutex
	gateways map[string]Gateway
	watched  map[watchKey]bool
	fillsOn  map[string]bool
}

type watchKey struct {
	account string
	symbol  string
}

// NewDispatcher создаёт диспетчер событий площадок
func NewDispatcher(sink EventSink, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		sink:     sink,
		log:      log.Named("dispatcher"),
		gateways: make(map[string]Gateway),
		watched:  make(map[watchKey]bool),
		fillsOn:  make(map[string]bool),
	}
}

// SetCache включает дублирование котировок во внешний кеш
func (d *Dispatcher) SetCache(cache QuoteCache) {
	d.mu.Lock()
	d.cache = cache
	d.mu.Unlock()
}

// Attach регистрирует шлюз под именем аккаунта
func (d *Dispatcher) Attach(account string, gw Gateway) {
	d.mu.Lock()
	d.gateways[account] = gw
	d.mu.Unlock()
}

// Detach снимает шлюз аккаунта с раздачи и чистит учёт его подписок.
// Сами подписки умирают вместе с соединением шлюза, отписка не нужна.
func (d *Dispatcher) Detach(account string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.gateways, account)
	delete(d.fillsOn, account)
	for key := range d.watched {
		if key.account == account {
			delete(d.watched, key)
		}
	}
}

// Gateway возвращает шлюз аккаунта
func (d *Dispatcher) Gateway(account string) (Gateway, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	gw, ok := d.gateways[account]
	return gw, ok
}

// Accounts возвращает имена подключённых аккаунтов
func (d *Dispatcher) Accounts() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	accounts := make([]string, 0, len(d.gateways))
	for account := range d.gateways {
		accounts = append(accounts, account)
	}
	return accounts
}

// Watch подписывает все площадки на котировки символа.
// Повторный вызов для уже наблюдаемого символа безопасен: стратегии
// одного символа добавляются и удаляются в любом порядке.
func (d *Dispatcher) Watch(symbol string) error {
	d.mu.Lock()
	pending := make(map[string]Gateway)
	for account, gw := range d.gateways {
		if !d.watched[watchKey{account, symbol}] {
			pending[account] = gw
		}
	}
	d.mu.Unlock()

	for account, gw := range pending {
		account := account
		err := gw.SubscribeQuotes(symbol, func(q models.Quote) {
			q.Exchange = account
			d.dispatchQuote(q)
		})
		if err != nil {
			return fmt.Errorf("subscribe quotes %s %s: %w", account, symbol, err)
		}

		d.mu.Lock()
		d.watched[watchKey{account, symbol}] = true
		d.mu.Unlock()

		d.log.Info("подписка на котировки",
			zap.String("account", account),
			zap.String("symbol", symbol))
	}
	return nil
}

// WatchFills подписывает все площадки на исполнения аккаунта
func (d *Dispatcher) WatchFills() error {
	d.mu.Lock()
	pending := make(map[string]Gateway)
	for account, gw := range d.gateways {
		if !d.fillsOn[account] {
			pending[account] = gw
		}
	}
	d.mu.Unlock()

	for account, gw := range pending {
		account := account
		err := gw.SubscribeFills(func(f models.Fill) {
			f.Account = account
			f.Exchange = account
			d.sink.OnFill(f)
		})
		if err != nil {
			return fmt.Errorf("subscribe fills %s: %w", account, err)
		}

		d.mu.Lock()
		d.fillsOn[account] = true
		d.mu.Unlock()

		d.log.Info("подписка на исполнения", zap.String("account", account))
	}
	return nil
}

func (d *Dispatcher) dispatchQuote(q models.Quote) {
	d.mu.Lock()
	cache := d.cache
	d.mu.Unlock()

	if cache != nil {
		cache.Put(q)
	}
	d.sink.OnQuote(q)
}

// Close закрывает все шлюзы
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	gateways := make([]Gateway, 0, len(d.gateways))
	for _, gw := range d.gateways {
		gateways = append(gateways, gw)
	}
	d.mu.Unlock()

	var firstErr error
	for _, gw := range gateways {
		if err := gw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
