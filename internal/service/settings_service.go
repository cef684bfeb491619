package service

import (
	"errors"

	"crossarb/internal/models"
)

// Ошибки сервиса настроек
var (
	ErrInvalidMaxConcurrentStrategies = errors.New("max_concurrent_strategies must be >= 1 or null")
)

// SettingsService предоставляет бизнес-логику для управления глобальными настройками.
//
// Отвечает за:
// - Получение и обновление глобальных настроек бота
// - Валидацию параметров настроек
// - Управление notification_prefs, max_concurrent_strategies, auto_start
type SettingsService struct {
	settingsRepo SettingsRepositoryInterface
}

// NewSettingsService создает новый экземпляр SettingsService.
func NewSettingsService(settingsRepo SettingsRepositoryInterface) *SettingsService {
	return &SettingsService{
		settingsRepo: settingsRepo,
	}
}

// GetSettings возвращает текущие глобальные настройки.
//
// Если записи в БД нет, создается запись с дефолтными значениями.
func (s *SettingsService) GetSettings() (*models.Settings, error) {
	return s.settingsRepo.Get()
}

// UpdateSettingsRequest представляет запрос на обновление настроек.
// Все поля опциональны - обновляются только переданные.
type UpdateSettingsRequest struct {
	AutoStart               *bool                           `json:"auto_start,omitempty"`
	MaxConcurrentStrategies *int                            `json:"max_concurrent_strategies,omitempty"`
	NotificationPrefs       *models.NotificationPreferences `json:"notification_prefs,omitempty"`
	// Флаг для явного сброса max_concurrent_strategies в null (без ограничений)
	ClearMaxConcurrentStrategies bool `json:"clear_max_concurrent_strategies,omitempty"`
}

// UpdateSettings обновляет глобальные настройки.
//
// Принимает только те поля, которые нужно обновить.
// Валидирует параметры перед сохранением.
//
// Правила валидации:
// - max_concurrent_strategies: >= 1 или null (без ограничений)
// - notification_prefs: все поля bool, валидация не требуется
// - auto_start: bool, валидация не требуется
func (s *SettingsService) UpdateSettings(req *UpdateSettingsRequest) (*models.Settings, error) {
	// Получаем текущие настройки
	settings, err := s.settingsRepo.Get()
	if err != nil {
		return nil, err
	}

	// Обновляем только переданные поля
	if req.AutoStart != nil {
		settings.AutoStart = *req.AutoStart
	}

	// Обработка max_concurrent_strategies
	if req.ClearMaxConcurrentStrategies {
		// Явный сброс в null (без ограничений)
		settings.MaxConcurrentStrategies = nil
	} else if req.MaxConcurrentStrategies != nil {
		// Валидация: должно быть >= 1
		if *req.MaxConcurrentStrategies < 1 {
			return nil, ErrInvalidMaxConcurrentStrategies
		}
		settings.MaxConcurrentStrategies = req.MaxConcurrentStrategies
	}

	// Обновление notification_prefs
	if req.NotificationPrefs != nil {
		settings.NotificationPrefs = *req.NotificationPrefs
	}

	// Сохраняем в БД
	if err := s.settingsRepo.Update(settings); err != nil {
		return nil, err
	}

	return settings, nil
}

// UpdateNotificationPrefs обновляет только настройки уведомлений.
func (s *SettingsService) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	return s.settingsRepo.UpdateNotificationPrefs(prefs)
}

// UpdateMaxConcurrentStrategies обновляет лимит одновременно работающих стратегий.
//
// Передайте nil для снятия ограничения.
// Значение должно быть >= 1 или nil.
func (s *SettingsService) UpdateMaxConcurrentStrategies(maxStrategies *int) error {
	// Валидация
	if maxStrategies != nil && *maxStrategies < 1 {
		return ErrInvalidMaxConcurrentStrategies
	}
	return s.settingsRepo.UpdateMaxConcurrentStrategies(maxStrategies)
}

// UpdateAutoStart обновляет флаг автозапуска активных стратегий.
func (s *SettingsService) UpdateAutoStart(autoStart bool) error {
	return s.settingsRepo.UpdateAutoStart(autoStart)
}

// GetNotificationPrefs возвращает только настройки уведомлений.
func (s *SettingsService) GetNotificationPrefs() (*models.NotificationPreferences, error) {
	return s.settingsRepo.GetNotificationPrefs()
}

// GetMaxConcurrentStrategies возвращает текущий лимит одновременных стратегий.
// Возвращает nil, если ограничение не установлено.
func (s *SettingsService) GetMaxConcurrentStrategies() (*int, error) {
	return s.settingsRepo.GetMaxConcurrentStrategies()
}

// ResetToDefaults сбрасывает все настройки к значениям по умолчанию.
//
// Дефолтные значения:
// - auto_start: false
// - max_concurrent_strategies: null (без ограничений)
// - notification_prefs: все типы включены (true)
func (s *SettingsService) ResetToDefaults() error {
	return s.settingsRepo.ResetToDefaults()
}
