package bot

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "crossarb"

// ============ Стратегия ============

var (
	// SpreadObserved распределение наблюдаемых спредов по направлениям
	SpreadObserved = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "spread_observed",
		Help:      "Наблюдаемый межбиржевой спред по направлениям",
		Buckets:   []float64{-2, -1, -0.5, -0.3, -0.1, 0, 0.1, 0.3, 0.5, 1, 2},
	}, []string{"symbol", "direction"})

	// QuoteProcessingDuration время обработки котировки стратегией
	QuoteProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "quote_processing_duration_seconds",
		Help:      "Время обработки котировки стратегиями",
		Buckets:   prometheus.ExponentialBuckets(0.000005, 4, 10),
	})

	// StateTransitionsTotal счётчик переходов машины состояний
	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "state_transitions_total",
		Help:      "Переходы машины состояний стратегий",
	}, []string{"from", "to"})

	// TradesTotal счётчик завершённых арбитражных циклов
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "trades_total",
		Help:      "Завершённые арбитражные циклы",
	}, []string{"symbol", "direction"})

	// TradePnl зафиксированный PNL нарастающим итогом.
	// Gauge, а не Counter: PNL цикла бывает отрицательным.
	TradePnl = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "trade_pnl_total",
		Help:      "Суммарный зафиксированный PNL по символам",
	}, []string{"symbol"})

	// ChaseOrdersTotal счётчик догоняющих ордеров
	ChaseOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "chase_orders_total",
		Help:      "Выставленные догоняющие ордера",
	}, []string{"account"})

	// UnilateralTotal счётчик односторонних фаз
	UnilateralTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "unilateral_total",
		Help:      "Зафиксированные односторонние экспозиции",
	}, []string{"account"})

	// TimeoutsTotal счётчик таймаутов исполнения
	TimeoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "execution_timeouts_total",
		Help:      "Таймауты исполнения по фазам цикла",
	}, []string{"state"})

	// ActiveStrategies количество стратегий по состояниям
	ActiveStrategies = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "strategy",
		Name:      "active",
		Help:      "Стратегии по состояниям машины",
	}, []string{"state"})
)

// ============ Риск-менеджмент ============

var (
	// RiskChecksTotal счётчик риск-проверок по видам и исходам
	RiskChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "risk",
		Name:      "checks_total",
		Help:      "Выполненные риск-проверки",
	}, []string{"kind", "outcome"})

	// RiskViolationsTotal счётчик нарушений по правилам
	RiskViolationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "risk",
		Name:      "violations_total",
		Help:      "Срабатывания риск-правил",
	}, []string{"rule"})
)

// ============ Площадки ============

var (
	// OrdersSubmittedTotal счётчик отправленных ордеров
	OrdersSubmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "venue",
		Name:      "orders_submitted_total",
		Help:      "Отправленные ордера по площадкам и исходам",
	}, []string{"account", "side", "outcome"})

	// OrderSubmitDuration время выставления ордера
	OrderSubmitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "venue",
		Name:      "order_submit_duration_seconds",
		Help:      "Время от запроса до подтверждения ордера",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"account"})

	// VenueConnected состояние подключения площадки (1/0)
	VenueConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "venue",
		Name:      "connected",
		Help:      "Состояние подключения площадки",
	}, []string{"account"})

	// QuoteAgeSeconds возраст последней котировки площадки
	QuoteAgeSeconds = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "venue",
		Name:      "quote_age_seconds",
		Help:      "Возраст последней котировки",
	}, []string{"account", "symbol"})
)

// ============ Рантайм ============

var (
	// EventsProcessedTotal счётчик обработанных событий движка
	EventsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "runtime",
		Name:      "events_processed_total",
		Help:      "Обработанные события по типам",
	}, []string{"type"})

	// BufferOverflowsTotal счётчик переполнений внутренних буферов
	BufferOverflowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "runtime",
		Name:      "buffer_overflows_total",
		Help:      "События отбрасывались из-за переполнения буфера",
	}, []string{"buffer"})

	// BufferUtilization заполненность внутренних буферов (0..1)
	BufferUtilization = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "runtime",
		Name:      "buffer_utilization",
		Help:      "Заполненность внутренних буферов",
	}, []string{"buffer"})

	// GoroutineCount количество горутин процесса
	GoroutineCount = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "runtime",
		Name:      "goroutines",
		Help:      "Количество горутин",
	})
)

// ============ Хелперы записи ============

// RecordSpread фиксирует наблюдаемый спред
func RecordSpread(symbol, direction string, spread float64) {
	SpreadObserved.WithLabelValues(symbol, direction).Observe(spread)
}

// RecordTransition фиксирует переход машины состояний
func RecordTransition(from, to string) {
	StateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordTrade фиксирует завершённый цикл и его PNL
func RecordTrade(symbol, direction string, pnl float64) {
	TradesTotal.WithLabelValues(symbol, direction).Inc()
	TradePnl.WithLabelValues(symbol).Add(pnl)
}

// RecordChase фиксирует догоняющий ордер
func RecordChase(account string) {
	ChaseOrdersTotal.WithLabelValues(account).Inc()
}

// RecordUnilateral фиксирует одностороннюю экспозицию
func RecordUnilateral(account string) {
	UnilateralTotal.WithLabelValues(account).Inc()
}

// RecordTimeout фиксирует таймаут исполнения фазы
func RecordTimeout(state string) {
	TimeoutsTotal.WithLabelValues(state).Inc()
}

// RecordRiskCheck фиксирует исход риск-проверки
func RecordRiskCheck(kind string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	RiskChecksTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordRiskViolation фиксирует срабатывание правила
func RecordRiskViolation(rule string) {
	RiskViolationsTotal.WithLabelValues(rule).Inc()
}

// RecordOrderSubmit фиксирует отправку ордера
func RecordOrderSubmit(account, side string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	OrdersSubmittedTotal.WithLabelValues(account, side, outcome).Inc()
	OrderSubmitDuration.WithLabelValues(account).Observe(seconds)
}

// RecordEvent фиксирует обработанное событие движка
func RecordEvent(eventType string) {
	EventsProcessedTotal.WithLabelValues(eventType).Inc()
}

// RecordBufferOverflow фиксирует потерю события из-за переполнения буфера
func RecordBufferOverflow(buffer string) {
	BufferOverflowsTotal.WithLabelValues(buffer).Inc()
}

// RecordBufferBacklog обновляет заполненность буфера
func RecordBufferBacklog(buffer string, capacity, length int) {
	if capacity <= 0 {
		return
	}
	BufferUtilization.WithLabelValues(buffer).Set(float64(length) / float64(capacity))
}

// UpdateVenueConnection обновляет индикатор подключения площадки
func UpdateVenueConnection(account string, connected bool) {
	v := 0.0
	if connected {
		v = 1.0
	}
	VenueConnected.WithLabelValues(account).Set(v)
}

// UpdateQuoteAge обновляет возраст котировки площадки
func UpdateQuoteAge(account, symbol string, seconds float64) {
	QuoteAgeSeconds.WithLabelValues(account, symbol).Set(seconds)
}

// UpdateGoroutineCount снимает текущее количество горутин
func UpdateGoroutineCount() {
	GoroutineCount.Set(float64(runtime.NumGoroutine()))
}
