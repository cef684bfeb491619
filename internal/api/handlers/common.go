// Package handlers содержит HTTP обработчики REST API.
// Обработчики зависят от интерфейсов сервисов, что позволяет
// подменять их моками в тестах.
package handlers

// MaxRequestBodySize ограничивает размер тела запроса.
// Все запросы API умещаются в килобайты, лимит защищает от раздутого JSON.
const MaxRequestBodySize = 1 << 20 // 1 MB

// ErrorResponse - стандартный формат ошибки API
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse - стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}
