package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"crossarb/internal/models"
)

// Ошибки репозитория уведомлений
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// NotificationRepository - работа с таблицей notifications
//
// Журнал событий бота: открытия, закрытия, догоны, односторонние
// экспозиции, запреты риск-менеджера, ошибки. Meta хранится как JSONB.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository создает новый экземпляр репозитория
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, timestamp, type, severity, strategy_id, message, meta`

func scanNotification(row interface{ Scan(...interface{}) error }) (*models.Notification, error) {
	notif := &models.Notification{}
	var metaJSON []byte

	err := row.Scan(
		&notif.ID,
		&notif.Timestamp,
		&notif.Type,
		&notif.Severity,
		&notif.StrategyID,
		&notif.Message,
		&metaJSON,
	)
	if err != nil {
		return nil, err
	}

	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &notif.Meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notification meta: %w", err)
		}
	}

	return notif, nil
}

// Create создает новое уведомление
func (r *NotificationRepository) Create(notif *models.Notification) error {
	query := `
		INSERT INTO notifications (timestamp, type, severity, strategy_id, message, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}

	var metaJSON []byte
	if notif.Meta != nil {
		var err error
		metaJSON, err = json.Marshal(notif.Meta)
		if err != nil {
			return fmt.Errorf("failed to marshal notification meta: %w", err)
		}
	}

	return r.db.QueryRow(
		query,
		notif.Timestamp,
		notif.Type,
		notif.Severity,
		notif.StrategyID,
		notif.Message,
		metaJSON,
	).Scan(&notif.ID)
}

// GetByID возвращает уведомление по ID
func (r *NotificationRepository) GetByID(id int) (*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	notif, err := scanNotification(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return notif, nil
}

// GetRecent возвращает последние N уведомлений
func (r *NotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications ORDER BY timestamp DESC LIMIT $1`
	return r.queryNotifications(query, limit)
}

// GetByStrategy возвращает уведомления стратегии
func (r *NotificationRepository) GetByStrategy(strategyID, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE strategy_id = $1 ORDER BY timestamp DESC LIMIT $2`
	return r.queryNotifications(query, strategyID, limit)
}

// GetBySeverity возвращает уведомления заданного уровня важности
func (r *NotificationRepository) GetBySeverity(severity string, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE severity = $1 ORDER BY timestamp DESC LIMIT $2`
	return r.queryNotifications(query, severity, limit)
}

// GetByTypes возвращает уведомления перечисленных типов
func (r *NotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE type = ANY($1) ORDER BY timestamp DESC LIMIT $2`
	return r.queryNotifications(query, pq.Array(types), limit)
}

// GetInTimeRange возвращает уведомления за период
func (r *NotificationRepository) GetInTimeRange(from, to time.Time, limit int) ([]*models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE timestamp >= $1 AND timestamp <= $2 ORDER BY timestamp DESC LIMIT $3`
	return r.queryNotifications(query, from, to, limit)
}

func (r *NotificationRepository) queryNotifications(query string, args ...interface{}) ([]*models.Notification, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []*models.Notification
	for rows.Next() {
		notif, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, notif)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return notifications, nil
}

// DeleteAll очищает журнал уведомлений
func (r *NotificationRepository) DeleteAll() error {
	_, err := r.db.Exec(`DELETE FROM notifications`)
	return err
}

// DeleteOlderThan удаляет уведомления старше указанной даты
func (r *NotificationRepository) DeleteOlderThan(threshold time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM notifications WHERE timestamp < $1`, threshold)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteByStrategy удаляет уведомления стратегии
func (r *NotificationRepository) DeleteByStrategy(strategyID int) error {
	_, err := r.db.Exec(`DELETE FROM notifications WHERE strategy_id = $1`, strategyID)
	return err
}

// KeepRecent оставляет только N последних уведомлений. Возвращает число удаленных
func (r *NotificationRepository) KeepRecent(keep int) (int64, error) {
	query := `DELETE FROM notifications WHERE id NOT IN (SELECT id FROM notifications ORDER BY timestamp DESC LIMIT $1)`

	result, err := r.db.Exec(query, keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Count возвращает общее количество уведомлений
func (r *NotificationRepository) Count() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountByType возвращает количество уведомлений заданного типа
func (r *NotificationRepository) CountByType(ntype string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE type = $1`, ntype).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountBySeverity возвращает количество уведомлений заданного уровня
func (r *NotificationRepository) CountBySeverity(severity string) (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE severity = $1`, severity).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
