package service

import (
	"time"

	"go.uber.org/zap"

	"crossarb/internal/models"
	"crossarb/pkg/utils"
)

// Количество последних событий в сводке статистики
const statsEventsLimit = 10

// StatsBroadcaster - интерфейс для отправки обновлений статистики через WebSocket
type StatsBroadcaster interface {
	BroadcastStatsUpdate(stats *models.Stats)
}

// StatsService предоставляет бизнес-логику для работы со статистикой.
//
// Функции:
// - GetStats: собрать полную агрегированную статистику
// - GetTopStrategies: получить топ-5 стратегий по указанной метрике
// - ResetStats: сброс счетчиков статистики
// - RecordTradeCompletion: записать завершенный арбитражный цикл
//
// Сводка собирается из двух журналов: завершенные циклы (trades) дают
// счетчики PNL и односторонние экспозиции, журнал ордеров (orders) -
// статистику догоняющих ордеров.
//
// WebSocket интеграция:
// - После каждой записи сделки отправляет statsUpdate через WebSocket
type StatsService struct {
	tradeRepo    TradeRepositoryInterface
	orderRepo    OrderRepositoryInterface
	strategyRepo StrategyRepositoryInterface
	log          *zap.Logger
	wsHub        StatsBroadcaster
}

// NewStatsService создает новый экземпляр StatsService
func NewStatsService(
	tradeRepo TradeRepositoryInterface,
	orderRepo OrderRepositoryInterface,
	strategyRepo StrategyRepositoryInterface,
	log *zap.Logger,
) *StatsService {
	return &StatsService{
		tradeRepo:    tradeRepo,
		orderRepo:    orderRepo,
		strategyRepo: strategyRepo,
		log:          log,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast статистики.
//
// Вызывается после инициализации Hub в main.go:
//
//	statsService := service.NewStatsService(tradeRepo, orderRepo, strategyRepo, log)
//	statsService.SetWebSocketHub(wsHub)
func (s *StatsService) SetWebSocketHub(hub StatsBroadcaster) {
	s.wsHub = hub
}

// GetStats собирает полную агрегированную статистику.
//
// Включает:
// - Количество циклов и PNL (сегодня/неделя/месяц/всего)
// - Долю прибыльных циклов (win rate)
// - Статистику догоняющих ордеров (счетчики + последние события)
// - Статистику односторонних экспозиций (счетчики + последние события)
// - Топ-5 стратегий по количеству сделок, прибыли и убыткам
func (s *StatsService) GetStats() (*models.Stats, error) {
	// "Сегодня" - календарные сутки в UTC, как у дневных риск-лимитов;
	// неделя и месяц - скользящие окна
	now := time.Now()
	today := utils.DayStart(now)
	week := now.AddDate(0, 0, -7)
	month := now.AddDate(0, -1, 0)

	stats := &models.Stats{}

	var err error

	// Общие счетчики (нулевые границы = без ограничения)
	stats.TotalTrades, stats.TotalPnl, err = s.tradeRepo.StatsInRange(time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	stats.TodayTrades, stats.TodayPnl, err = s.tradeRepo.StatsInRange(today, time.Time{})
	if err != nil {
		return nil, err
	}

	stats.WeekTrades, stats.WeekPnl, err = s.tradeRepo.StatsInRange(week, time.Time{})
	if err != nil {
		return nil, err
	}

	stats.MonthTrades, stats.MonthPnl, err = s.tradeRepo.StatsInRange(month, time.Time{})
	if err != nil {
		return nil, err
	}

	// Доля прибыльных циклов
	if stats.TotalTrades > 0 {
		winning, err := s.tradeRepo.CountWinning()
		if err != nil {
			return nil, err
		}
		stats.WinRate = float64(winning) / float64(stats.TotalTrades)
	}

	// Статистика догоняющих ордеров (из журнала ордеров)
	if stats.ChaseStats, err = s.collectChaseStats(today, week, month); err != nil {
		return nil, err
	}

	// Статистика односторонних экспозиций (из журнала циклов)
	if stats.UnilateralStats, err = s.collectUnilateralStats(today, week, month); err != nil {
		return nil, err
	}

	// Топ-5 стратегий
	if stats.TopStrategiesByTrades, err = s.tradeRepo.GetTopByTrades(5); err != nil {
		return nil, err
	}
	if stats.TopStrategiesByProfit, err = s.tradeRepo.GetTopByProfit(5); err != nil {
		return nil, err
	}
	if stats.TopStrategiesByLoss, err = s.tradeRepo.GetTopByLoss(5); err != nil {
		return nil, err
	}

	return stats, nil
}

// collectChaseStats собирает счетчики и события догоняющих ордеров
func (s *StatsService) collectChaseStats(today, week, month time.Time) (models.ChaseStats, error) {
	var cs models.ChaseStats
	var err error

	if cs.Today, err = s.orderRepo.CountChaseSince(today); err != nil {
		return cs, err
	}
	if cs.Week, err = s.orderRepo.CountChaseSince(week); err != nil {
		return cs, err
	}
	if cs.Month, err = s.orderRepo.CountChaseSince(month); err != nil {
		return cs, err
	}
	if cs.Events, err = s.orderRepo.ChaseEvents(statsEventsLimit); err != nil {
		return cs, err
	}

	return cs, nil
}

// collectUnilateralStats собирает счетчики и события односторонних экспозиций
func (s *StatsService) collectUnilateralStats(today, week, month time.Time) (models.UnilateralStats, error) {
	var us models.UnilateralStats
	var err error

	if us.Today, err = s.tradeRepo.CountUnilateralSince(today); err != nil {
		return us, err
	}
	if us.Week, err = s.tradeRepo.CountUnilateralSince(week); err != nil {
		return us, err
	}
	if us.Month, err = s.tradeRepo.CountUnilateralSince(month); err != nil {
		return us, err
	}
	if us.Events, err = s.tradeRepo.UnilateralEvents(statsEventsLimit); err != nil {
		return us, err
	}

	return us, nil
}

// GetTopStrategies возвращает топ-5 стратегий по указанной метрике.
//
// Поддерживаемые метрики:
// - "trades": стратегии с наибольшим количеством циклов
// - "profit": стратегии с наибольшей прибылью (PNL > 0)
// - "loss": стратегии с наибольшими убытками (PNL < 0)
//
// Возвращает массив StrategyStat с полями Name и Value.
func (s *StatsService) GetTopStrategies(metric string, limit int) ([]models.StrategyStat, error) {
	if limit <= 0 {
		limit = 5
	}

	switch metric {
	case "trades":
		return s.tradeRepo.GetTopByTrades(limit)
	case "profit":
		return s.tradeRepo.GetTopByProfit(limit)
	case "loss":
		return s.tradeRepo.GetTopByLoss(limit)
	default:
		// По умолчанию возвращаем топ по сделкам
		return s.tradeRepo.GetTopByTrades(limit)
	}
}

// ResetStats сбрасывает все счетчики статистики.
//
// ВАЖНО: Это действие необратимо!
// Удаляет все записи из таблицы trades.
// Используется по явному запросу пользователя.
// После сброса отправляет statsUpdate через WebSocket.
func (s *StatsService) ResetStats() error {
	if err := s.tradeRepo.DeleteAll(); err != nil {
		return err
	}

	s.broadcastStats()
	return nil
}

// RecordTradeCompletion записывает завершенный арбитражный цикл.
//
// Вызывается после фиксации закрытия (переход CLOSED).
// Обновляет:
// - Журнал циклов (таблица trades)
// - Локальную статистику стратегии (trades_count, total_pnl)
// - Отправляет statsUpdate через WebSocket
func (s *StatsService) RecordTradeCompletion(trade *models.TradeRecord) error {
	// Записываем в журнал циклов
	if err := s.tradeRepo.Create(trade); err != nil {
		return err
	}

	// Обновляем локальную статистику стратегии
	if s.strategyRepo != nil {
		if err := s.strategyRepo.RecordTradeResult(trade.StrategyID, trade.Pnl); err != nil {
			// Основная запись уже сделана - не прерываем
			s.log.Warn("не удалось обновить статистику стратегии",
				zap.Int("strategy_id", trade.StrategyID),
				zap.Error(err))
		}
	}

	s.broadcastStats()
	return nil
}

// broadcastStats отправляет актуальную сводку через WebSocket hub
func (s *StatsService) broadcastStats() {
	if s.wsHub == nil {
		return
	}

	stats, err := s.GetStats()
	if err != nil {
		s.log.Warn("не удалось собрать статистику для broadcast", zap.Error(err))
		return
	}
	s.wsHub.BroadcastStatsUpdate(stats)
}

// GetTradesByStrategy возвращает историю циклов конкретной стратегии.
//
// Используется для отображения детальной статистики по стратегии.
func (s *StatsService) GetTradesByStrategy(strategyID, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.tradeRepo.GetByStrategy(strategyID, limit)
}

// GetTradesInRange возвращает циклы за указанный период.
//
// Используется для построения отчетов и анализа.
func (s *StatsService) GetTradesInRange(from, to time.Time, limit int) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.tradeRepo.GetInTimeRange(from, to, limit)
}

// GetTotalTradesCount возвращает общее количество завершенных циклов.
func (s *StatsService) GetTotalTradesCount() (int, error) {
	return s.tradeRepo.Count()
}

// GetPnlBySymbol возвращает суммарный PNL по символу.
func (s *StatsService) GetPnlBySymbol(symbol string) (float64, error) {
	return s.tradeRepo.GetPnlBySymbol(symbol)
}

// GetRecentOrders возвращает последние записи журнала ордеров.
func (s *StatsService) GetRecentOrders(limit int) ([]*models.OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.orderRepo.GetRecent(limit)
}

// GetOrdersByStrategy возвращает журнал ордеров стратегии.
func (s *StatsService) GetOrdersByStrategy(strategyID, limit int) ([]*models.OrderRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.orderRepo.GetByStrategy(strategyID, limit)
}

// CleanupOldTrades удаляет записи циклов старше указанной даты.
//
// Используется для автоматической очистки старых данных.
// Возвращает количество удаленных записей.
func (s *StatsService) CleanupOldTrades(olderThan time.Time) (int64, error) {
	return s.tradeRepo.DeleteOlderThan(olderThan)
}
