package bot

import (
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// ============ SpreadBook ============

// SpreadBook хранит последние котировки двух площадок одной стратегии
// и предвычисленные спреды обоих направлений.
//
// Книга принадлежит стратегии и защищается её мьютексом, поэтому
// собственного лока не имеет. Каждая площадка обновляется независимо:
// котировка одной стороны не трогает данные другой.
type SpreadBook struct {
	BidA, AskA float64
	BidB, AskB float64

	hasA bool
	hasB bool

	// SpreadAB = ask A - bid B (продать A, купить B).
	// SpreadBA = ask B - bid A (продать B, купить A).
	SpreadAB float64
	SpreadBA float64

	LastUpdate time.Time
}

// UpdateA обновляет котировку площадки A и пересчитывает спреды
func (sb *SpreadBook) UpdateA(bid, ask float64, ts time.Time) {
	sb.BidA = bid
	sb.AskA = ask
	sb.hasA = true
	sb.recalc(ts)
}

// UpdateB обновляет котировку площадки B и пересчитывает спреды
func (sb *SpreadBook) UpdateB(bid, ask float64, ts time.Time) {
	sb.BidB = bid
	sb.AskB = ask
	sb.hasB = true
	sb.recalc(ts)
}

func (sb *SpreadBook) recalc(ts time.Time) {
	if sb.hasA && sb.hasB {
		sb.SpreadAB = utils.CrossVenueSpread(sb.AskA, sb.BidB)
		sb.SpreadBA = utils.CrossVenueSpread(sb.AskB, sb.BidA)
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	sb.LastUpdate = ts
}

// Ready возвращает true когда получены котировки обеих площадок.
// До этого момента спреды не определены и условия не проверяются.
func (sb *SpreadBook) Ready() bool {
	return sb.hasA && sb.hasB
}

// DirectionalSpread возвращает спред удерживаемого направления
func (sb *SpreadBook) DirectionalSpread(direction string) float64 {
	if direction == models.DirectionNegative {
		return sb.SpreadBA
	}
	return sb.SpreadAB
}

// SpreadSnapshot снимок книги спредов для API и WebSocket
type SpreadSnapshot struct {
	BidA       float64   `json:"bid_a"`
	AskA       float64   `json:"ask_a"`
	BidB       float64   `json:"bid_b"`
	AskB       float64   `json:"ask_b"`
	SpreadAB   float64   `json:"spread_ab"`
	SpreadBA   float64   `json:"spread_ba"`
	Complete   bool      `json:"complete"`
	LastUpdate time.Time `json:"last_update"`
}

// Snapshot возвращает копию текущего состояния книги
func (sb *SpreadBook) Snapshot() SpreadSnapshot {
	return SpreadSnapshot{
		BidA:       sb.BidA,
		AskA:       sb.AskA,
		BidB:       sb.BidB,
		AskB:       sb.AskB,
		SpreadAB:   sb.SpreadAB,
		SpreadBA:   sb.SpreadBA,
		Complete:   sb.Ready(),
		LastUpdate: sb.LastUpdate,
	}
}

// ============ QuoteBoard ============

const boardShards = 16

// quoteKey составной ключ котировки
type quoteKey struct {
	Account string
	Symbol  string
}

type boardShard struct {
	mu     sync.RWMutex
	quotes map[quoteKey]models.Quote
}

// QuoteBoard шардированное хранилище последних котировок всех площадок.
//
// Служит движку для маршрутизации и API статуса площадок: возраст
// котировки показывает живость фида. Шардирование по символу снижает
// конкуренцию на горячем пути обновления.
type QuoteBoard struct {
	shards [boardShards]*boardShard
}

// NewQuoteBoard создаёт пустое хранилище котировок
func NewQuoteBoard() *QuoteBoard {
	qb := &QuoteBoard{}
	for i := range qb.shards {
		qb.shards[i] = &boardShard{quotes: make(map[quoteKey]models.Quote)}
	}
	return qb
}

// shardIndex выбирает шард по FNV-1a хешу символа.
// Инлайн вместо hash/fnv: New32a аллоцирует на каждый вызов.
func shardIndex(symbol string) int {
	const (
		fnvOffset32 = 2166136261
		fnvPrime32  = 16777619
	)
	h := uint32(fnvOffset32)
	for i := 0; i < len(symbol); i++ {
		h ^= uint32(symbol[i])
		h *= fnvPrime32
	}
	return int(h % boardShards)
}

// Update сохраняет котировку площадки
func (qb *QuoteBoard) Update(q models.Quote) {
	shard := qb.shards[shardIndex(q.Symbol)]
	shard.mu.Lock()
	shard.quotes[quoteKey{Account: q.Exchange, Symbol: q.Symbol}] = q
	shard.mu.Unlock()
}

// Get возвращает последнюю котировку площадки по символу
func (qb *QuoteBoard) Get(account, symbol string) (models.Quote, bool) {
	shard := qb.shards[shardIndex(symbol)]
	shard.mu.RLock()
	q, ok := shard.quotes[quoteKey{Account: account, Symbol: symbol}]
	shard.mu.RUnlock()
	return q, ok
}

// Age возвращает возраст последней котировки.
// Второе значение false - котировок по ключу не было.
func (qb *QuoteBoard) Age(account, symbol string, now time.Time) (time.Duration, bool) {
	q, ok := qb.Get(account, symbol)
	if !ok {
		return 0, false
	}
	return now.Sub(q.Timestamp), true
}

// Fresh возвращает true если котировка моложе maxAge
func (qb *QuoteBoard) Fresh(account, symbol string, maxAge time.Duration, now time.Time) bool {
	age, ok := qb.Age(account, symbol, now)
	return ok && age >= 0 && age <= maxAge
}

// Symbols возвращает все символы, по которым есть котировки площадки
func (qb *QuoteBoard) Symbols(account string) []string {
	seen := make(map[string]struct{})
	for _, shard := range qb.shards {
		shard.mu.RLock()
		for k := range shard.quotes {
			if k.Account == account {
				seen[k.Symbol] = struct{}{}
			}
		}
		shard.mu.RUnlock()
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	return out
}

// Len возвращает общее количество хранимых котировок
func (qb *QuoteBoard) Len() int {
	total := 0
	for _, shard := range qb.shards {
		shard.mu.RLock()
		total += len(shard.quotes)
		shard.mu.RUnlock()
	}
	return total
}
