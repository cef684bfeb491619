package repository

import (
	"database/sql"
	"errors"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория ордеров
var (
	ErrOrderNotFound = errors.New("order not found")
)

// OrderRepository - работа с журналом ордеров (таблица orders)
//
// Журнал append-only с одним исключением: при исполнении ордера стратегия
// публикует вторую запись с тем же (exchange, order_id), и вставка
// превращается в UPDATE статуса и цены исполнения. Отклоненные ордера
// приходят с пустым order_id и под UPSERT не попадают.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository создает новый экземпляр репозитория
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, strategy_id, exchange, symbol, order_id, client_id, side, type, price, quantity, status, chase, error_message, created_at, filled_at`

func scanOrder(row interface{ Scan(...interface{}) error }) (*models.OrderRecord, error) {
	order := &models.OrderRecord{}
	err := row.Scan(
		&order.ID,
		&order.StrategyID,
		&order.Exchange,
		&order.Symbol,
		&order.OrderID,
		&order.ClientID,
		&order.Side,
		&order.Type,
		&order.Price,
		&order.Quantity,
		&order.Status,
		&order.Chase,
		&order.ErrorMessage,
		&order.CreatedAt,
		&order.FilledAt,
	)
	return order, err
}

// Create записывает ордер в журнал
//
// Повторная запись с тем же (exchange, order_id) обновляет статус,
// цену и время исполнения существующей строки.
func (r *OrderRepository) Create(order *models.OrderRecord) error {
	query := `
		INSERT INTO orders (strategy_id, exchange, symbol, order_id, client_id, side, type, price, quantity, status, chase, error_message, created_at, filled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (exchange, order_id) WHERE order_id <> ''
		DO UPDATE SET status = EXCLUDED.status, price = EXCLUDED.price, error_message = EXCLUDED.error_message, filled_at = EXCLUDED.filled_at
		RETURNING id`

	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}

	return r.db.QueryRow(
		query,
		order.StrategyID,
		order.Exchange,
		order.Symbol,
		order.OrderID,
		order.ClientID,
		order.Side,
		order.Type,
		order.Price,
		order.Quantity,
		order.Status,
		order.Chase,
		order.ErrorMessage,
		order.CreatedAt,
		order.FilledAt,
	).Scan(&order.ID)
}

// GetByID возвращает ордер по ID
func (r *OrderRepository) GetByID(id int) (*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	order, err := scanOrder(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

// GetByStrategy возвращает последние ордера стратегии
func (r *OrderRepository) GetByStrategy(strategyID, limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE strategy_id = $1 ORDER BY created_at DESC LIMIT $2`
	return r.queryOrders(query, strategyID, limit)
}

// GetRecent возвращает последние N ордеров
func (r *OrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC LIMIT $1`
	return r.queryOrders(query, limit)
}

// GetByStatus возвращает ордера с определенным статусом
func (r *OrderRepository) GetByStatus(status string) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE status = $1 ORDER BY created_at DESC`
	return r.queryOrders(query, status)
}

// GetByExchange возвращает ордера для конкретной биржи
func (r *OrderRepository) GetByExchange(exchange string, limit int) ([]*models.OrderRecord, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE exchange = $1 ORDER BY created_at DESC LIMIT $2`
	return r.queryOrders(query, exchange, limit)
}

func (r *OrderRepository) queryOrders(query string, args ...interface{}) ([]*models.OrderRecord, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.OrderRecord
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return orders, nil
}

// UpdateStatus обновляет статус ордера по внутреннему ID
func (r *OrderRepository) UpdateStatus(id int, status string, price float64, filledAt *time.Time) error {
	query := `
		UPDATE orders
		SET status = $1, price = $2, filled_at = $3
		WHERE id = $4`

	result, err := r.db.Exec(query, status, price, filledAt, id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrOrderNotFound)
}

// CountChaseSince считает догоняющие ордера, выставленные после since
func (r *OrderRepository) CountChaseSince(since time.Time) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE chase = TRUE AND created_at >= $1`, since).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ChaseEvents возвращает последние события догоняющих ордеров
func (r *OrderRepository) ChaseEvents(limit int) ([]models.ChaseEvent, error) {
	query := `SELECT symbol, exchange, created_at FROM orders WHERE chase = TRUE ORDER BY created_at DESC LIMIT $1`

	rows, err := r.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.ChaseEvent
	for rows.Next() {
		var event models.ChaseEvent
		if err := rows.Scan(&event.Symbol, &event.Exchange, &event.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return events, nil
}

// Delete удаляет ордер
func (r *OrderRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrOrderNotFound)
}

// DeleteByStrategy удаляет все ордера стратегии
func (r *OrderRepository) DeleteByStrategy(strategyID int) error {
	_, err := r.db.Exec(`DELETE FROM orders WHERE strategy_id = $1`, strategyID)
	return err
}

// DeleteOlderThan удаляет ордера старше указанной даты
func (r *OrderRepository) DeleteOlderThan(timestamp time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM orders WHERE created_at < $1`, timestamp)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// Count возвращает общее количество ордеров
func (r *OrderRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByStatus возвращает количество ордеров с определенным статусом
func (r *OrderRepository) CountByStatus(status string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM orders WHERE status = $1`, status).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
