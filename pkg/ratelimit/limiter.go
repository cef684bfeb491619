// Package ratelimit реализует token bucket для ограничения частоты
// REST-запросов к площадкам.
//
// Шлюзы заводят по ведру на категорию запросов (ордера, рыночные
// данные, кошелёк), потому что биржи считают эти лимиты раздельно.
// Ведро допускает кратковременный всплеск до burst - это важно при
// параллельном выставлении двух ног пары.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter - token bucket: ведро пополняется со скоростью rate токенов
// в секунду до ёмкости burst, каждый запрос забирает один токен.
type Limiter struct {
	mu     sync.Mutex
	rate   float64 // скорость пополнения, токенов/сек
	burst  float64 // ёмкость ведра
	tokens float64
	last   time.Time // момент последнего пересчёта
}

// NewLimiter создаёт ведро с полным запасом токенов.
// Неположительный rate заменяется на 10 req/sec, неположительный
// burst - на удвоенный rate; burst не бывает меньше rate.
func NewLimiter(rate, burst float64) *Limiter {
	if rate <= 0 {
		rate = 10
	}
	if burst <= 0 {
		burst = rate * 2
	}
	if burst < rate {
		burst = rate
	}

	return &Limiter{
		rate:   rate,
		burst:  burst,
		tokens: burst,
		last:   time.Now(),
	}
}

// take пополняет ведро за прошедшее время и пытается забрать токен.
// Если токена нет, возвращает время до его появления. Вызывается под mu.
func (l *Limiter) take() (bool, time.Duration) {
	now := time.Now()
	l.tokens += now.Sub(l.last).Seconds() * l.rate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now

	if l.tokens >= 1 {
		l.tokens--
		return true, 0
	}
	return false, time.Duration((1 - l.tokens) / l.rate * float64(time.Second))
}

// Wait блокирует до получения токена или отмены контекста.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		ok, wait := l.take()
		l.mu.Unlock()

		if ok {
			return nil
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allow забирает токен без ожидания. false - ведро пусто, запрос
// нужно отложить.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ok, _ := l.take()
	return ok
}

// Rate возвращает скорость пополнения, токенов/сек
func (l *Limiter) Rate() float64 {
	return l.rate
}

// Burst возвращает ёмкость ведра
func (l *Limiter) Burst() float64 {
	return l.burst
}

// MultiLimiter держит отдельное ведро на каждую категорию запросов
// одного шлюза.
type MultiLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func NewMultiLimiter() *MultiLimiter {
	return &MultiLimiter{
		limiters: make(map[string]*Limiter),
	}
}

// Add заводит ведро для категории. Повторный Add заменяет ведро
// и сбрасывает его запас.
func (ml *MultiLimiter) Add(category string, rate, burst float64) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.limiters[category] = NewLimiter(rate, burst)
}

// Wait ожидает токен категории. Категория без ведра не ограничена.
func (ml *MultiLimiter) Wait(ctx context.Context, category string) error {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return nil
	}
	return limiter.Wait(ctx)
}

// Allow забирает токен категории без ожидания.
func (ml *MultiLimiter) Allow(category string) bool {
	ml.mu.RLock()
	limiter, ok := ml.limiters[category]
	ml.mu.RUnlock()

	if !ok {
		return true
	}
	return limiter.Allow()
}
