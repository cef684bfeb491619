package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория стратегий
var (
	ErrStrategyNotFound = errors.New("strategy not found")
	ErrStrategyExists   = errors.New("strategy already exists")
)

// StrategyRepository - работа с таблицей strategies
type StrategyRepository struct {
	db *sql.DB
}

// NewStrategyRepository создает новый экземпляр репозитория
func NewStrategyRepository(db *sql.DB) *StrategyRepository {
	return &StrategyRepository{db: db}
}

const strategyColumns = `id, name, symbol, account_a, account_b, open_threshold, close_threshold, order_size, max_chase_count, trade_timeout_seconds, status, auto_mode, trades_count, total_pnl, created_at, updated_at`

// scanStrategy читает одну строку в StrategyConfig
func scanStrategy(row interface{ Scan(...interface{}) error }) (*models.StrategyConfig, error) {
	cfg := &models.StrategyConfig{}
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Symbol,
		&cfg.AccountA,
		&cfg.AccountB,
		&cfg.OpenThreshold,
		&cfg.CloseThreshold,
		&cfg.OrderSize,
		&cfg.MaxChaseCount,
		&cfg.TradeTimeoutSec,
		&cfg.Status,
		&cfg.AutoMode,
		&cfg.TradesCount,
		&cfg.TotalPnl,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	return cfg, err
}

// Create создает новую стратегию
func (r *StrategyRepository) Create(cfg *models.StrategyConfig) error {
	query := `
		INSERT INTO strategies (name, symbol, account_a, account_b, open_threshold, close_threshold, order_size, max_chase_count, trade_timeout_seconds, status, auto_mode, trades_count, total_pnl, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id`

	now := time.Now()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	// Значения по умолчанию
	if cfg.Status == "" {
		cfg.Status = models.StrategyStatusPaused
	}
	if cfg.Name == "" {
		cfg.Name = models.MakeStrategyName(cfg.AccountA, cfg.AccountB)
	}

	err := r.db.QueryRow(
		query,
		cfg.Name,
		cfg.Symbol,
		cfg.AccountA,
		cfg.AccountB,
		cfg.OpenThreshold,
		cfg.CloseThreshold,
		cfg.OrderSize,
		cfg.MaxChaseCount,
		cfg.TradeTimeoutSec,
		cfg.Status,
		cfg.AutoMode,
		cfg.TradesCount,
		cfg.TotalPnl,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	).Scan(&cfg.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrStrategyExists
		}
		return err
	}

	return nil
}

// GetByID возвращает стратегию по ID
func (r *StrategyRepository) GetByID(id int) (*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE id = $1`

	cfg, err := scanStrategy(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return cfg, nil
}

// GetBySymbol возвращает стратегии, торгующие символ
func (r *StrategyRepository) GetBySymbol(symbol string) ([]*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE symbol = $1 ORDER BY created_at DESC`
	return r.queryStrategies(query, symbol)
}

// GetAll возвращает все стратегии
func (r *StrategyRepository) GetAll() ([]*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies ORDER BY created_at DESC`
	return r.queryStrategies(query)
}

// GetActive возвращает только активные стратегии
func (r *StrategyRepository) GetActive() ([]*models.StrategyConfig, error) {
	query := `SELECT ` + strategyColumns + ` FROM strategies WHERE status = $1 ORDER BY created_at DESC`
	return r.queryStrategies(query, models.StrategyStatusActive)
}

func (r *StrategyRepository) queryStrategies(query string, args ...interface{}) ([]*models.StrategyConfig, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*models.StrategyConfig
	for rows.Next() {
		cfg, err := scanStrategy(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return configs, nil
}

// Update обновляет стратегию целиком
func (r *StrategyRepository) Update(cfg *models.StrategyConfig) error {
	query := `
		UPDATE strategies
		SET name = $1, symbol = $2, account_a = $3, account_b = $4, open_threshold = $5, close_threshold = $6, order_size = $7, max_chase_count = $8, trade_timeout_seconds = $9, status = $10, auto_mode = $11, trades_count = $12, total_pnl = $13, updated_at = $14
		WHERE id = $15`

	cfg.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		cfg.Name,
		cfg.Symbol,
		cfg.AccountA,
		cfg.AccountB,
		cfg.OpenThreshold,
		cfg.CloseThreshold,
		cfg.OrderSize,
		cfg.MaxChaseCount,
		cfg.TradeTimeoutSec,
		cfg.Status,
		cfg.AutoMode,
		cfg.TradesCount,
		cfg.TotalPnl,
		cfg.UpdatedAt,
		cfg.ID,
	)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// UpdateParams обновляет только торговые параметры
func (r *StrategyRepository) UpdateParams(id int, params models.StrategyParameters) error {
	query := `
		UPDATE strategies
		SET open_threshold = $1, close_threshold = $2, order_size = $3, max_chase_count = $4, trade_timeout_seconds = $5, updated_at = $6
		WHERE id = $7`

	result, err := r.db.Exec(query,
		params.OpenThreshold,
		params.CloseThreshold,
		params.OrderSize,
		params.MaxChaseCount,
		params.TradeTimeoutSec,
		time.Now(),
		id,
	)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// UpdateStatus обновляет статус стратегии (paused/active)
func (r *StrategyRepository) UpdateStatus(id int, status string) error {
	if status != models.StrategyStatusPaused && status != models.StrategyStatusActive {
		return errors.New("invalid status: must be 'paused' or 'active'")
	}

	query := `UPDATE strategies SET status = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, status, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// UpdateAutoMode переключает автоматическую торговлю
func (r *StrategyRepository) UpdateAutoMode(id int, autoMode bool) error {
	query := `UPDATE strategies SET auto_mode = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, autoMode, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// RecordTradeResult увеличивает счетчик сделок и добавляет PNL цикла
func (r *StrategyRepository) RecordTradeResult(id int, pnlDelta float64) error {
	query := `
		UPDATE strategies
		SET trades_count = trades_count + 1, total_pnl = total_pnl + $1, updated_at = $2
		WHERE id = $3`

	result, err := r.db.Exec(query, pnlDelta, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// ResetStats сбрасывает локальную статистику стратегии
func (r *StrategyRepository) ResetStats(id int) error {
	query := `UPDATE strategies SET trades_count = 0, total_pnl = 0, updated_at = $1 WHERE id = $2`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// Delete удаляет стратегию
func (r *StrategyRepository) Delete(id int) error {
	query := `DELETE FROM strategies WHERE id = $1`

	result, err := r.db.Exec(query, id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrStrategyNotFound)
}

// Count возвращает общее количество стратегий
func (r *StrategyRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM strategies`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountActive возвращает количество активных стратегий
func (r *StrategyRepository) CountActive() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM strategies WHERE status = $1`, models.StrategyStatusActive).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Exists проверяет, торгует ли уже какая-то стратегия символ на этой паре аккаунтов
func (r *StrategyRepository) Exists(symbol, accountA, accountB string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM strategies WHERE symbol = $1 AND account_a = $2 AND account_b = $3)`

	var exists bool
	err := r.db.QueryRow(query, symbol, accountA, accountB).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// requireRow превращает пустой результат UPDATE/DELETE в sentinel-ошибку
func requireRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
