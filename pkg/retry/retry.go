// Package retry реализует повторы операций с экспоненциальной задержкой
// и случайным разбросом (jitter).
//
// Профили подобраны под три ситуации бота: ConservativeConfig для
// идемпотентных REST-запросов к площадкам, AggressiveConfig для снятия
// ордеров, NetworkConfig для ожидания базы данных на старте.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Config задаёт параметры повторов.
//
// Пауза растёт экспоненциально: InitialDelay * Multiplier^n, где n -
// номер неудачной попытки. К паузе добавляется разброс ±JitterFactor,
// итог ограничен MaxDelay. Разброс не даёт всем клиентам повторять
// запросы синхронно, когда площадка оживает после сбоя.
type Config struct {
	// MaxRetries - сколько всего попыток выполнить, включая первую.
	// Ноль и меньше - без ограничения, останавливает только контекст.
	MaxRetries int

	// InitialDelay - пауза после первой неудачной попытки.
	InitialDelay time.Duration

	// MaxDelay - потолок паузы между попытками.
	MaxDelay time.Duration

	// Multiplier - во сколько раз растёт пауза с каждой попыткой.
	Multiplier float64

	// JitterFactor - доля случайного разброса паузы, от 0 до 1.
	JitterFactor float64

	// RetryIf решает, имеет ли смысл повторять после данной ошибки.
	// nil - повторяются все ошибки, кроме обёрнутых в Permanent.
	RetryIf func(error) bool

	// OnRetry вызывается перед каждой паузой - точка для логирования.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultConfig - базовый профиль: 4 попытки, паузы 100ms/200ms/400ms.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// AggressiveConfig - для операций, которые нельзя бросать: снятие
// ордера, закрытие позиции. Зависший в книге ордер дороже лишнего
// запроса, поэтому попыток больше, а паузы короче.
func AggressiveConfig() Config {
	return Config{
		MaxRetries:   6,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// ConservativeConfig - для идемпотентных запросов к площадкам: баланс,
// статус ордера, рыночные данные. Ответ быстро устаревает, упорствовать
// смысла нет.
func ConservativeConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// NetworkConfig - для ожидания инфраструктуры на старте: база в
// docker-compose может подниматься дольше приложения.
func NetworkConfig() Config {
	return Config{
		MaxRetries:   4,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.2,
	}
}

// validate подставляет значения по умолчанию вместо нулевых полей
func (c *Config) validate() {
	if c.InitialDelay <= 0 {
		c.InitialDelay = 100 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	if c.JitterFactor > 1 {
		c.JitterFactor = 1
	}
}

// backoff возвращает паузу после неудачной попытки attempt (с нуля).
// Разброс применяется до ограничения, поэтому MaxDelay - жёсткий предел.
func (c *Config) backoff(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt))
	if c.JitterFactor > 0 {
		d *= 1 + c.JitterFactor*(2*rand.Float64()-1)
	}
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	return time.Duration(d)
}

// Do выполняет операцию, повторяя её по правилам cfg, пока та не
// вернёт nil, не исчерпаются попытки или не отменится контекст.
// При неудаче возвращается последняя ошибка операции.
func Do(ctx context.Context, operation func() error, cfg Config) error {
	_, err := DoWithResult(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, cfg)
	return err
}

// DoWithResult - то же, что Do, для операций с результатом:
//
//	body, err := retry.DoWithResult(ctx, func() ([]byte, error) {
//	    return venueGet(ctx, "/v5/market/tickers")
//	}, retry.ConservativeConfig())
//
// При неудаче возвращается нулевое значение T и последняя ошибка.
// Ошибка, обёрнутая в Permanent, прекращает повторы немедленно и
// возвращается уже развёрнутой.
func DoWithResult[T any](ctx context.Context, operation func() (T, error), cfg Config) (T, error) {
	cfg.validate()

	var zero T
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := operation()
		if err == nil {
			return result, nil
		}

		var perm *PermanentError
		if errors.As(err, &perm) {
			return zero, perm.Err
		}
		if cfg.RetryIf != nil && !cfg.RetryIf(err) {
			return zero, err
		}
		if cfg.MaxRetries > 0 && attempt+1 >= cfg.MaxRetries {
			return zero, err
		}

		delay := cfg.backoff(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt+1, err, delay)
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, err
		}
	}
}

// RetryIfNotContext - предикат для Config.RetryIf: повторять всё,
// кроме отмены и истечения контекста.
func RetryIfNotContext(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// PermanentError помечает ошибку, повторять после которой бессмысленно:
// площадка отвергла параметры, не подошли ключи и тому подобное.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent оборачивает ошибку так, что Do и DoWithResult прекращают
// повторы и возвращают её сразу. Permanent(nil) возвращает nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}
