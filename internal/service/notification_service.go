package service

import (
	"strings"

	"crossarb/internal/models"
)

// NotificationService ведёт журнал уведомлений.
//
// Сервис только пишет и читает журнал: трансляцией в UI занимается
// движок через websocket-hub. Перед записью тип сверяется с настройками
// оператора (notification_prefs) - выключенный тип молча пропускается.
// Исключение - RECOVERY: результаты сверки после перезапуска попадают
// в журнал всегда.
type NotificationService struct {
	notificationRepo NotificationRepositoryInterface
	settingsRepo     SettingsRepositoryInterface
}

// NewNotificationService создаёт сервис журнала уведомлений
func NewNotificationService(
	notificationRepo NotificationRepositoryInterface,
	settingsRepo SettingsRepositoryInterface,
) *NotificationService {
	return &NotificationService{
		notificationRepo: notificationRepo,
		settingsRepo:     settingsRepo,
	}
}

// Типы, которые журнал принимает. Всё остальное отбрасывается
// фильтрами GetNotifications.
var knownNotificationTypes = map[string]struct{}{
	models.NotificationTypeOpen:          {},
	models.NotificationTypeClose:         {},
	models.NotificationTypeChase:         {},
	models.NotificationTypeUnilateral:    {},
	models.NotificationTypeTimeout:       {},
	models.NotificationTypeRiskViolation: {},
	models.NotificationTypeError:         {},
	models.NotificationTypePause:         {},
	models.NotificationTypeRecovery:      {},
}

// allowed сверяет тип уведомления с настройками оператора.
// RECOVERY и неизвестные типы включены всегда.
func allowed(prefs *models.NotificationPreferences, typ string) bool {
	if prefs == nil {
		return true
	}
	switch typ {
	case models.NotificationTypeOpen:
		return prefs.Open
	case models.NotificationTypeClose:
		return prefs.Close
	case models.NotificationTypeChase:
		return prefs.Chase
	case models.NotificationTypeUnilateral:
		return prefs.Unilateral
	case models.NotificationTypeTimeout:
		return prefs.Timeout
	case models.NotificationTypeRiskViolation:
		return prefs.RiskViolation
	case models.NotificationTypeError:
		return prefs.APIError
	case models.NotificationTypePause:
		return prefs.Pause
	default:
		return true
	}
}

// CreateNotification записывает уведомление в журнал. Тип, выключенный
// в настройках, пропускается без ошибки.
func (s *NotificationService) CreateNotification(notif *models.Notification) error {
	prefs, err := s.settingsRepo.GetNotificationPrefs()
	if err == nil && !allowed(prefs, strings.ToUpper(notif.Type)) {
		return nil
	}
	// Настройки недоступны - пишем без фильтра: лишняя запись дешевле
	// пропущенного события
	return s.notificationRepo.Create(notif)
}

// GetNotifications возвращает журнал, новые сверху.
//
// types фильтрует по типам: регистр и пробелы не важны, неизвестные
// типы игнорируются, пустой фильтр означает все типы. Лимит по
// умолчанию 100, потолок 500.
func (s *NotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	switch {
	case limit <= 0:
		limit = 100
	case limit > 500:
		limit = 500
	}

	filter := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToUpper(strings.TrimSpace(t))
		if _, ok := knownNotificationTypes[t]; ok {
			filter = append(filter, t)
		}
	}

	if len(filter) == 0 {
		return s.notificationRepo.GetRecent(limit)
	}
	return s.notificationRepo.GetByTypes(filter, limit)
}

// GetNotificationsByStrategy возвращает журнал одной стратегии
func (s *NotificationService) GetNotificationsByStrategy(strategyID, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.notificationRepo.GetByStrategy(strategyID, limit)
}

// ClearNotifications очищает журнал целиком
func (s *NotificationService) ClearNotifications() error {
	return s.notificationRepo.DeleteAll()
}

// GetNotificationCount возвращает текущий размер журнала
func (s *NotificationService) GetNotificationCount() (int, error) {
	return s.notificationRepo.Count()
}

// GetNotificationCountByType считает записи одного типа
func (s *NotificationService) GetNotificationCountByType(notifType string) (int, error) {
	return s.notificationRepo.CountByType(strings.ToUpper(notifType))
}

// CleanupOld подрезает журнал до keepCount последних записей и
// возвращает число удалённых
func (s *NotificationService) CleanupOld(keepCount int) (int64, error) {
	if keepCount <= 0 {
		keepCount = 100
	}
	return s.notificationRepo.KeepRecent(keepCount)
}
