package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория настроек
var (
	ErrSettingsNotFound = errors.New("settings not found")
)

// SettingsRepository - работа с таблицей settings.
//
// Таблица singleton: одна строка с id=1. Все запросы жестко
// адресуют ее, запись создается лениво при первом чтении.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository создает новый экземпляр репозитория
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get возвращает глобальные настройки
func (r *SettingsRepository) Get() (*models.Settings, error) {
	query := `
		SELECT id, auto_start, max_concurrent_strategies, notification_prefs, updated_at
		FROM settings
		WHERE id = 1`

	settings := &models.Settings{}
	var prefsJSON []byte
	err := r.db.QueryRow(query).Scan(
		&settings.ID,
		&settings.AutoStart,
		&settings.MaxConcurrentStrategies,
		&prefsJSON,
		&settings.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r.createDefault()
		}
		return nil, err
	}

	settings.NotificationPrefs, err = decodePrefs(prefsJSON)
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// Update обновляет настройки целиком
func (r *SettingsRepository) Update(settings *models.Settings) error {
	prefsJSON, err := json.Marshal(settings.NotificationPrefs)
	if err != nil {
		return err
	}

	settings.UpdatedAt = time.Now()

	return r.execRow(`
		UPDATE settings
		SET auto_start = $1, max_concurrent_strategies = $2, notification_prefs = $3, updated_at = $4
		WHERE id = 1`,
		settings.AutoStart,
		settings.MaxConcurrentStrategies,
		prefsJSON,
		settings.UpdatedAt,
	)
}

// UpdateNotificationPrefs обновляет только настройки уведомлений
func (r *SettingsRepository) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return err
	}

	return r.execRow(
		`UPDATE settings SET notification_prefs = $1, updated_at = $2 WHERE id = 1`,
		prefsJSON, time.Now(),
	)
}

// UpdateAutoStart обновляет флаг автозапуска активных стратегий
func (r *SettingsRepository) UpdateAutoStart(autoStart bool) error {
	return r.execRow(
		`UPDATE settings SET auto_start = $1, updated_at = $2 WHERE id = 1`,
		autoStart, time.Now(),
	)
}

// UpdateMaxConcurrentStrategies обновляет лимит одновременно работающих стратегий
func (r *SettingsRepository) UpdateMaxConcurrentStrategies(maxStrategies *int) error {
	return r.execRow(
		`UPDATE settings SET max_concurrent_strategies = $1, updated_at = $2 WHERE id = 1`,
		maxStrategies, time.Now(),
	)
}

// GetNotificationPrefs возвращает только настройки уведомлений.
// Отсутствие записи не ошибка: уведомления по умолчанию включены все.
func (r *SettingsRepository) GetNotificationPrefs() (*models.NotificationPreferences, error) {
	var prefsJSON []byte
	err := r.db.QueryRow(`SELECT notification_prefs FROM settings WHERE id = 1`).Scan(&prefsJSON)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	prefs, err := decodePrefs(prefsJSON)
	if err != nil {
		return nil, err
	}

	return &prefs, nil
}

// GetMaxConcurrentStrategies возвращает лимит одновременно работающих стратегий
func (r *SettingsRepository) GetMaxConcurrentStrategies() (*int, error) {
	var maxStrategies *int
	err := r.db.QueryRow(`SELECT max_concurrent_strategies FROM settings WHERE id = 1`).Scan(&maxStrategies)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // null = без ограничений
		}
		return nil, err
	}

	return maxStrategies, nil
}

// ResetToDefaults сбрасывает настройки к значениям по умолчанию
func (r *SettingsRepository) ResetToDefaults() error {
	return r.Update(&models.Settings{
		ID:                1,
		NotificationPrefs: defaultNotificationPrefs(),
	})
}

// execRow выполняет запрос, который обязан затронуть строку настроек
func (r *SettingsRepository) execRow(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	return requireRow(result, ErrSettingsNotFound)
}

// createDefault создает запись настроек с дефолтными значениями
func (r *SettingsRepository) createDefault() (*models.Settings, error) {
	settings := &models.Settings{
		ID:                1,
		NotificationPrefs: defaultNotificationPrefs(),
		UpdatedAt:         time.Now(),
	}

	prefsJSON, err := json.Marshal(settings.NotificationPrefs)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO settings (id, auto_start, max_concurrent_strategies, notification_prefs, updated_at)
		VALUES (1, $1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`

	_, err = r.db.Exec(query,
		settings.AutoStart,
		settings.MaxConcurrentStrategies,
		prefsJSON,
		settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return settings, nil
}

// decodePrefs разбирает notification_prefs; пустое значение в базе
// означает дефолтный набор
func decodePrefs(raw []byte) (models.NotificationPreferences, error) {
	if len(raw) == 0 {
		return defaultNotificationPrefs(), nil
	}

	var prefs models.NotificationPreferences
	if err := json.Unmarshal(raw, &prefs); err != nil {
		return models.NotificationPreferences{}, err
	}

	return prefs, nil
}

// defaultNotificationPrefs возвращает дефолтные настройки уведомлений
func defaultNotificationPrefs() models.NotificationPreferences {
	return models.NotificationPreferences{
		Open:          true,
		Close:         true,
		Chase:         true,
		Unilateral:    true,
		Timeout:       true,
		RiskViolation: true,
		APIError:      true,
		Pause:         true,
	}
}
