package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация данных
//
// Назначение:
// Проверка корректности входных данных на границе API и сервисов.
// Все функции возвращают error с описанием проблемы или nil.

// ============================================================
// Ошибки валидации
// ============================================================

var (
	ErrInvalidSymbol    = errors.New("invalid symbol")
	ErrInvalidThreshold = errors.New("invalid threshold")
	ErrInvalidVolume    = errors.New("invalid volume")
	ErrInvalidExchange  = errors.New("unsupported exchange")
	ErrInvalidAPIKey    = errors.New("invalid api key")
)

// ValidationError ошибка валидации одного поля
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors коллекция ошибок валидации
type ValidationErrors []ValidationError

// Add добавляет ошибку валидации поля
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// AddError добавляет ошибку, если она не nil
func (e *ValidationErrors) AddError(field string, err error) {
	if err == nil {
		return
	}
	*e = append(*e, ValidationError{Field: field, Message: err.Error()})
}

// HasErrors возвращает true, если есть хотя бы одна ошибка
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Error реализует интерфейс error
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e))
	for _, ve := range e {
		parts = append(parts, fmt.Sprintf("%s: %s", ve.Field, ve.Message))
	}
	return strings.Join(parts, "; ")
}

// ============================================================
// Символы
// ============================================================

var symbolRe = regexp.MustCompile(`^[A-Z0-9]{2,20}$`)

// Известные котируемые валюты в порядке приоритета разбора
var knownQuotes = []string{"USDT", "USDC", "BUSD", "BTC", "ETH"}

// NormalizeSymbol приводит символ к каноническому виду: BTCUSDT
//
// Убирает разделители (-, _, /) и приводит к верхнему регистру.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

// ValidateSymbol проверяет формат торгового символа (например, BTCUSDT).
//
// Символ нормализуется перед проверкой, поэтому btc-usdt тоже валиден.
func ValidateSymbol(symbol string) error {
	normalized := NormalizeSymbol(symbol)
	if normalized == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidSymbol)
	}
	if !symbolRe.MatchString(normalized) {
		return fmt.Errorf("%w: %q", ErrInvalidSymbol, symbol)
	}
	return nil
}

// IsValidSymbol возвращает true, если символ валиден
func IsValidSymbol(symbol string) bool {
	return ValidateSymbol(symbol) == nil
}

// splitSymbol разбивает символ на базовую и котируемую валюты
func splitSymbol(symbol string) (base, quote string) {
	s := strings.ToUpper(strings.TrimSpace(symbol))

	for _, sep := range []string{"-", "_", "/"} {
		if strings.Contains(s, sep) {
			parts := strings.SplitN(s, sep, 2)
			return parts[0], parts[1]
		}
	}

	for _, q := range knownQuotes {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s[:len(s)-len(q)], q
		}
	}

	return s, ""
}

// ExtractBaseCurrency возвращает базовую валюту символа (BTCUSDT -> BTC)
func ExtractBaseCurrency(symbol string) string {
	base, _ := splitSymbol(symbol)
	return base
}

// ExtractQuoteCurrency возвращает котируемую валюту символа (BTCUSDT -> USDT)
func ExtractQuoteCurrency(symbol string) string {
	_, quote := splitSymbol(symbol)
	return quote
}

// ============================================================
// Торговые параметры
// ============================================================

// Максимальный разумный объём одного ордера
const maxOrderVolume = 1e9

// ValidateThreshold проверяет порог открытия/закрытия.
//
// Порог задаётся в абсолютных единицах цены и не может быть отрицательным.
func ValidateThreshold(name string, value float64) error {
	if value < 0 {
		return fmt.Errorf("%w: %s must be non-negative, got %v", ErrInvalidThreshold, name, value)
	}
	return nil
}

// ValidateThresholdPair проверяет согласованность порогов входа и выхода.
//
// Порог закрытия должен быть строго меньше порога открытия, иначе
// позиция закрывалась бы сразу после открытия.
func ValidateThresholdPair(openThreshold, closeThreshold float64) error {
	if err := ValidateThreshold("open_threshold", openThreshold); err != nil {
		return err
	}
	if err := ValidateThreshold("close_threshold", closeThreshold); err != nil {
		return err
	}
	if closeThreshold >= openThreshold {
		return fmt.Errorf("%w: close_threshold (%v) must be less than open_threshold (%v)",
			ErrInvalidThreshold, closeThreshold, openThreshold)
	}
	return nil
}

// ValidateVolume проверяет объём ордера
func ValidateVolume(volume float64) error {
	if volume <= 0 {
		return fmt.Errorf("%w: volume must be positive, got %v", ErrInvalidVolume, volume)
	}
	if volume > maxOrderVolume {
		return fmt.Errorf("%w: volume too large, got %v", ErrInvalidVolume, volume)
	}
	return nil
}

// ValidateChaseLimit проверяет лимит догоняющих ордеров (>= 0).
func ValidateChaseLimit(limit int) error {
	if limit < 0 {
		return fmt.Errorf("max_chase_count must be non-negative, got %d", limit)
	}
	return nil
}

// ValidateTimeoutSeconds проверяет таймаут исполнения (> 0).
func ValidateTimeoutSeconds(seconds float64) error {
	if seconds <= 0 {
		return fmt.Errorf("trade_timeout_seconds must be positive, got %v", seconds)
	}
	return nil
}

// ValidateSide проверяет сторону ордера.
func ValidateSide(side string) error {
	switch side {
	case "buy", "sell":
		return nil
	default:
		return fmt.Errorf("invalid side: %q (expected buy or sell)", side)
	}
}

// ValidatePrice проверяет цену лимитного ордера (> 0).
func ValidatePrice(price float64) error {
	if price <= 0 {
		return fmt.Errorf("price must be positive, got %v", price)
	}
	return nil
}

// ============================================================
// Биржи
// ============================================================

// SupportedExchanges биржи, для которых реализованы шлюзы
var SupportedExchanges = []string{"bybit", "binance"}

// NormalizeExchange приводит название биржи к каноническому виду
func NormalizeExchange(exchange string) string {
	return strings.ToLower(strings.TrimSpace(exchange))
}

// ValidateExchange проверяет, что биржа поддерживается
func ValidateExchange(exchange string) error {
	normalized := NormalizeExchange(exchange)
	if normalized == "" {
		return fmt.Errorf("%w: exchange is required", ErrInvalidExchange)
	}
	for _, e := range SupportedExchanges {
		if e == normalized {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidExchange, exchange)
}

// IsValidExchange возвращает true, если биржа поддерживается
func IsValidExchange(exchange string) bool {
	return ValidateExchange(exchange) == nil
}

// GetSupportedExchanges возвращает копию списка поддерживаемых бирж
func GetSupportedExchanges() []string {
	result := make([]string, len(SupportedExchanges))
	copy(result, SupportedExchanges)
	return result
}

// ============================================================
// Учётные данные
// ============================================================

var apiKeyRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateAccountID проверяет идентификатор биржевого аккаунта.
func ValidateAccountID(accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return fmt.Errorf("account id is required")
	}
	if len(accountID) > 64 {
		return fmt.Errorf("account id too long (max 64 chars)")
	}
	return nil
}

// ValidateAPIKey базовая проверка API ключа биржи.
//
// Ключи бирж состоят из букв, цифр, дефисов и подчёркиваний.
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: api key is required", ErrInvalidAPIKey)
	}
	if len(key) < 16 || len(key) > 128 {
		return fmt.Errorf("%w: length must be 16-128 chars", ErrInvalidAPIKey)
	}
	if !apiKeyRe.MatchString(key) {
		return fmt.Errorf("%w: contains invalid characters", ErrInvalidAPIKey)
	}
	return nil
}

// IsValidAPIKey возвращает true, если API ключ валиден
func IsValidAPIKey(key string) bool {
	return ValidateAPIKey(key) == nil
}

// ValidateAPISecret проверяет секрет API.
//
// Формат секрета у бирж разный, проверяем только разумную длину.
func ValidateAPISecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("api secret is required")
	}
	if len(secret) < 16 || len(secret) > 256 {
		return fmt.Errorf("api secret length must be 16-256 chars")
	}
	return nil
}

// ValidateAPIPassphrase проверяет кодовую фразу API (необязательна).
func ValidateAPIPassphrase(passphrase string) error {
	if len(passphrase) > 64 {
		return fmt.Errorf("api passphrase too long (max 64 chars)")
	}
	return nil
}

// ============================================================
// Конфигурация стратегии
// ============================================================

// StrategyConfigValidation параметры стратегии для валидации
type StrategyConfigValidation struct {
	Symbol          string
	OpenThreshold   float64
	CloseThreshold  float64
	OrderSize       float64
	MaxChaseCount   int
	TradeTimeoutSec float64
	ExchangeA       string
	ExchangeB       string
}

// ValidateStrategyConfig проверяет полную конфигурацию стратегии
func ValidateStrategyConfig(cfg StrategyConfigValidation) error {
	var errs ValidationErrors

	errs.AddError("symbol", ValidateSymbol(cfg.Symbol))
	errs.AddError("thresholds", ValidateThresholdPair(cfg.OpenThreshold, cfg.CloseThreshold))
	errs.AddError("order_size", ValidateVolume(cfg.OrderSize))
	errs.AddError("max_chase_count", ValidateChaseLimit(cfg.MaxChaseCount))
	errs.AddError("trade_timeout_seconds", ValidateTimeoutSeconds(cfg.TradeTimeoutSec))

	if cfg.ExchangeA != "" || cfg.ExchangeB != "" {
		errs.AddError("exchange_a", ValidateExchange(cfg.ExchangeA))
		errs.AddError("exchange_b", ValidateExchange(cfg.ExchangeB))

		if cfg.ExchangeA != "" && NormalizeExchange(cfg.ExchangeA) == NormalizeExchange(cfg.ExchangeB) {
			errs.Add("exchanges", "exchange_a and exchange_b must differ")
		}
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}
