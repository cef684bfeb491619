package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// defaultNotificationLimit - количество уведомлений по умолчанию
const defaultNotificationLimit = 100

// NotificationHandler обрабатывает запросы журнала уведомлений
type NotificationHandler struct {
	notificationService service.NotificationServiceInterface
}

// NewNotificationHandler создает обработчик уведомлений
func NewNotificationHandler(notificationService service.NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

// NotificationDTO - представление уведомления в API
type NotificationDTO struct {
	ID         int                    `json:"id"`
	Type       string                 `json:"type"`
	Severity   string                 `json:"severity"`
	StrategyID *int                   `json:"strategy_id,omitempty"`
	Message    string                 `json:"message"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
	Timestamp  string                 `json:"timestamp"`
}

// GetNotificationsResponse - ответ со списком уведомлений
type GetNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	Total         int               `json:"total"`
}

// ClearNotificationsResponse - ответ на очистку журнала
type ClearNotificationsResponse struct {
	Message string `json:"message"`
}

// GetNotifications обрабатывает GET /api/v1/notifications.
// Параметр ?types=OPEN,CHASE фильтрует по типам, ?limit= ограничивает выборку.
func (h *NotificationHandler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	var types []string
	if typesParam := r.URL.Query().Get("types"); typesParam != "" {
		for _, t := range strings.Split(typesParam, ",") {
			t = strings.ToUpper(strings.TrimSpace(t))
			if t != "" {
				types = append(types, t)
			}
		}
	}

	limit := defaultNotificationLimit
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		parsed, err := strconv.Atoi(limitParam)
		if err != nil || parsed <= 0 {
			h.respondWithError(w, http.StatusBadRequest, "limit must be a positive integer", "invalid_limit")
			return
		}
		limit = parsed
	}

	notifications, err := h.notificationService.GetNotifications(types, limit)
	if err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to get notifications", "internal_error")
		return
	}

	dtos := make([]NotificationDTO, 0, len(notifications))
	for _, n := range notifications {
		dtos = append(dtos, toNotificationDTO(n))
	}

	h.respondWithJSON(w, http.StatusOK, GetNotificationsResponse{
		Notifications: dtos,
		Total:         len(dtos),
	})
}

// ClearNotifications обрабатывает DELETE /api/v1/notifications
func (h *NotificationHandler) ClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notificationService.ClearNotifications(); err != nil {
		h.respondWithError(w, http.StatusInternalServerError, "failed to clear notifications", "internal_error")
		return
	}

	h.respondWithJSON(w, http.StatusOK, ClearNotificationsResponse{Message: "notifications cleared"})
}

func toNotificationDTO(n *models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:         n.ID,
		Type:       n.Type,
		Severity:   n.Severity,
		StrategyID: n.StrategyID,
		Message:    n.Message,
		Meta:       n.Meta,
		Timestamp:  n.Timestamp.Format(time.RFC3339),
	}
}

func (h *NotificationHandler) respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *NotificationHandler) respondWithError(w http.ResponseWriter, statusCode int, message, code string) {
	h.respondWithJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
