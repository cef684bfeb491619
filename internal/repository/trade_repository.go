package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"crossarb/internal/models"
)

// TradeRepository - работа с журналом завершённых циклов (таблица trades)
//
// Каждая строка - один арбитражный цикл: открытие обеих ног, удержание,
// закрытие. PNL фиксируется на момент закрытия. Агрегаты по периодам
// (день/неделя/месяц) считаются прямо в БД.
type TradeRepository struct {
	db *sql.DB
}

// NewTradeRepository создает новый экземпляр репозитория
func NewTradeRepository(db *sql.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

const tradeColumns = `id, strategy_id, symbol, direction, pnl, chase_count, unilateral, opened_at, closed_at, created_at`

func scanTrade(row interface{ Scan(...interface{}) error }) (*models.TradeRecord, error) {
	trade := &models.TradeRecord{}
	err := row.Scan(
		&trade.ID,
		&trade.StrategyID,
		&trade.Symbol,
		&trade.Direction,
		&trade.Pnl,
		&trade.ChaseCount,
		&trade.Unilateral,
		&trade.OpenedAt,
		&trade.ClosedAt,
		&trade.CreatedAt,
	)
	return trade, err
}

// Create записывает завершенный цикл
func (r *TradeRepository) Create(trade *models.TradeRecord) error {
	query := `
		INSERT INTO trades (strategy_id, symbol, direction, pnl, chase_count, unilateral, opened_at, closed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	trade.CreatedAt = time.Now()

	return r.db.QueryRow(
		query,
		trade.StrategyID,
		trade.Symbol,
		trade.Direction,
		trade.Pnl,
		trade.ChaseCount,
		trade.Unilateral,
		trade.OpenedAt,
		trade.ClosedAt,
		trade.CreatedAt,
	).Scan(&trade.ID)
}

// GetByStrategy возвращает последние циклы стратегии
func (r *TradeRepository) GetByStrategy(strategyID, limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE strategy_id = $1 ORDER BY closed_at DESC LIMIT $2`
	return r.queryTrades(query, strategyID, limit)
}

// GetInTimeRange возвращает циклы, закрытые в интервале [from, to]
func (r *TradeRepository) GetInTimeRange(from, to time.Time, limit int) ([]*models.TradeRecord, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE closed_at >= $1 AND closed_at <= $2 ORDER BY closed_at DESC LIMIT $3`
	return r.queryTrades(query, from, to, limit)
}

func (r *TradeRepository) queryTrades(query string, args ...interface{}) ([]*models.TradeRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*models.TradeRecord
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return trades, nil
}

// StatsInRange считает количество циклов и суммарный PNL за период
//
// Нулевое время означает открытую границу: StatsInRange(time.Time{}, time.Time{})
// возвращает агрегат за всё время.
func (r *TradeRepository) StatsInRange(from, to time.Time) (int, float64, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(pnl), 0) FROM trades`

	var conditions []string
	var args []interface{}
	if !from.IsZero() {
		args = append(args, from)
		conditions = append(conditions, fmt.Sprintf("closed_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conditions = append(conditions, fmt.Sprintf("closed_at <= $%d", len(args)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	var count int
	var pnl float64
	err := r.db.QueryRow(query, args...).Scan(&count, &pnl)
	if err != nil {
		return 0, 0, err
	}
	return count, pnl, nil
}

// CountWinning возвращает количество прибыльных циклов
func (r *TradeRepository) CountWinning() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE pnl > 0`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Count возвращает общее количество циклов
func (r *TradeRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetTopByTrades возвращает топ символов по количеству циклов
func (r *TradeRepository) GetTopByTrades(limit int) ([]models.StrategyStat, error) {
	query := `SELECT symbol, COUNT(*) as trade_count FROM trades GROUP BY symbol ORDER BY trade_count DESC LIMIT $1`
	return r.queryStats(query, limit)
}

// GetTopByProfit возвращает топ прибыльных символов
func (r *TradeRepository) GetTopByProfit(limit int) ([]models.StrategyStat, error) {
	query := `SELECT symbol, SUM(pnl) as total_pnl FROM trades GROUP BY symbol HAVING SUM(pnl) > 0 ORDER BY total_pnl DESC LIMIT $1`
	return r.queryStats(query, limit)
}

// GetTopByLoss возвращает топ убыточных символов
func (r *TradeRepository) GetTopByLoss(limit int) ([]models.StrategyStat, error) {
	query := `SELECT symbol, SUM(pnl) as total_pnl FROM trades GROUP BY symbol HAVING SUM(pnl) < 0 ORDER BY total_pnl ASC LIMIT $1`
	return r.queryStats(query, limit)
}

func (r *TradeRepository) queryStats(query string, args ...interface{}) ([]models.StrategyStat, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []models.StrategyStat
	for rows.Next() {
		var stat models.StrategyStat
		if err := rows.Scan(&stat.Name, &stat.Value); err != nil {
			return nil, err
		}
		stats = append(stats, stat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// GetPnlBySymbol возвращает суммарный PNL по символу за всё время
func (r *TradeRepository) GetPnlBySymbol(symbol string) (float64, error) {
	var pnl float64
	err := r.db.QueryRow(`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE symbol = $1`, symbol).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl, nil
}

// CountUnilateralSince считает циклы с односторонней фазой, закрытые после since
func (r *TradeRepository) CountUnilateralSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM trades WHERE unilateral = TRUE AND closed_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// UnilateralEvents возвращает последние события односторонней экспозиции
func (r *TradeRepository) UnilateralEvents(limit int) ([]models.UnilateralEvent, error) {
	query := `SELECT symbol, direction, closed_at FROM trades WHERE unilateral = TRUE ORDER BY closed_at DESC LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.UnilateralEvent
	for rows.Next() {
		var event models.UnilateralEvent
		if err := rows.Scan(&event.Symbol, &event.Direction, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// DeleteOlderThan удаляет циклы, закрытые раньше threshold. Возвращает число удаленных
func (r *TradeRepository) DeleteOlderThan(threshold time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM trades WHERE closed_at < $1`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteAll очищает журнал циклов (сброс статистики)
func (r *TradeRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM trades`)
	return err
}
