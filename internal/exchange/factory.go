package exchange

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SupportedExchanges - список поддерживаемых площадок
var SupportedExchanges = []string{
	"bybit",
	"binance",
}

// NewGateway создает новый шлюз площадки по имени
func NewGateway(name string, log *zap.Logger) (Gateway, error) {
	switch strings.ToLower(name) {
	case "bybit":
		return NewBybit(log), nil
	case "binance":
		return NewBinance(log), nil
	default:
		return nil, fmt.Errorf("unsupported exchange: %s", name)
	}
}

// IsSupported проверяет, поддерживается ли площадка
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, supported := range SupportedExchanges {
		if name == supported {
			return true
		}
	}
	return false
}
