package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// Ошибки сервиса стратегий
var (
	ErrStrategyNotFound        = errors.New("strategy not found")
	ErrStrategyAlreadyExists   = errors.New("strategy for this symbol and account pair already exists")
	ErrInvalidOpenThreshold    = errors.New("open threshold must be greater than 0")
	ErrInvalidCloseThreshold   = errors.New("close threshold must be non-negative")
	ErrCloseNotBelowOpen       = errors.New("close threshold must be less than open threshold")
	ErrInvalidOrderSize        = errors.New("order size must be greater than 0")
	ErrInvalidChaseCount       = errors.New("max chase count must be non-negative")
	ErrInvalidTimeout          = errors.New("trade timeout must be greater than 0")
	ErrInvalidSymbol           = errors.New("invalid symbol format")
	ErrSameAccounts            = errors.New("strategy legs must use different accounts")
	ErrUnsupportedAccount      = errors.New("strategy account is not a supported exchange")
	ErrAccountsNotConnected    = errors.New("both exchange accounts must be connected")
	ErrStrategyHasOpenPosition = errors.New("strategy has an open position")
	ErrStrategyNotPaused       = errors.New("strategy must be paused to delete")
	ErrStrategyAlreadyActive   = errors.New("strategy is already active")
	ErrStrategyAlreadyPaused   = errors.New("strategy is already paused")
	ErrMaxStrategiesReached    = errors.New("maximum number of concurrent strategies reached")
	ErrSymbolBlacklisted       = errors.New("symbol is blacklisted")
)

// BotEngine определяет интерфейс для взаимодействия с торговым движком
type BotEngine interface {
	// RegisterStrategy регистрирует стратегию в движке
	RegisterStrategy(cfg *models.StrategyConfig) error
	// RemoveStrategy останавливает и удаляет стратегию
	RemoveStrategy(id int, force bool) error
	// StartStrategy запускает стратегию
	StartStrategy(id int) error
	// PauseStrategy останавливает стратегию (без закрытия позиций)
	PauseStrategy(id int) error
	// SetParameters обновляет торговые параметры стратегии
	SetParameters(id int, upd models.StrategyParametersUpdate) error
	// SetAutoMode переключает автоматическую торговлю по тикам
	SetAutoMode(id int, auto bool) error
	// ManualClose инициирует принудительное закрытие позиции
	ManualClose(id int) error
	// ManualOrder выставляет одиночный ордер вне стратегий
	ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error)
	// StrategyRuntime возвращает runtime состояние стратегии
	StrategyRuntime(id int) (models.StrategyRuntime, bool)
}

// StrategyService - бизнес-логика для управления арбитражными стратегиями
type StrategyService struct {
	strategyRepo StrategyRepositoryInterface
	settingsRepo SettingsRepositoryInterface
	accountSvc   *AccountService

	// Проверка символа перед созданием (черный список)
	screener SymbolScreener

	// Торговый движок (может быть nil при инициализации)
	engine BotEngine
}

// SymbolScreener проверяет символ перед созданием стратегии
type SymbolScreener interface {
	Blocked(symbol string) (string, bool)
}

// NewStrategyService создает новый экземпляр сервиса стратегий
func NewStrategyService(
	strategyRepo StrategyRepositoryInterface,
	settingsRepo SettingsRepositoryInterface,
	accountSvc *AccountService,
) *StrategyService {
	return &StrategyService{
		strategyRepo: strategyRepo,
		settingsRepo: settingsRepo,
		accountSvc:   accountSvc,
	}
}

// SetEngine устанавливает торговый движок
// Вызывается после инициализации Engine
func (s *StrategyService) SetEngine(engine BotEngine) {
	s.engine = engine
}

// SetScreener устанавливает проверку символов
func (s *StrategyService) SetScreener(sc SymbolScreener) {
	s.screener = sc
}

// CreateStrategy создает новую арбитражную стратегию
// Выполняет:
// 1. Валидацию всех параметров
// 2. Проверку черного списка символов
// 3. Проверку подключения обеих площадок
// 4. Сохранение в БД
// 5. Регистрацию в торговом движке
func (s *StrategyService) CreateStrategy(ctx context.Context, cfg *models.StrategyConfig) error {
	// 1. Нормализация: символ в верхний регистр, площадки в нижний
	cfg.Symbol = strings.ToUpper(cfg.Symbol)
	cfg.AccountA = strings.ToLower(cfg.AccountA)
	cfg.AccountB = strings.ToLower(cfg.AccountB)

	// 2. Валидация параметров
	if err := s.validateStrategyConfig(cfg); err != nil {
		return err
	}

	// 3. Проверка черного списка
	if s.screener != nil {
		if reason, blocked := s.screener.Blocked(cfg.Symbol); blocked {
			return fmt.Errorf("%w: %s", ErrSymbolBlacklisted, reason)
		}
	}

	// 4. Обе площадки должны быть подключены
	connected, err := s.accountSvc.BothConnected(cfg.AccountA, cfg.AccountB)
	if err != nil {
		return err
	}
	if !connected {
		return ErrAccountsNotConnected
	}

	// 5. Проверка уникальности (symbol, account_a, account_b)
	exists, err := s.strategyRepo.Exists(cfg.Symbol, cfg.AccountA, cfg.AccountB)
	if err != nil {
		return err
	}
	if exists {
		return ErrStrategyAlreadyExists
	}

	// 6. Сохраняем в БД (репозиторий проставит имя и статус paused)
	if err := s.strategyRepo.Create(cfg); err != nil {
		if errors.Is(err, repository.ErrStrategyExists) {
			return ErrStrategyAlreadyExists
		}
		return err
	}

	// 7. Регистрируем в торговом движке (если инициализирован)
	if s.engine != nil {
		if err := s.engine.RegisterStrategy(cfg); err != nil {
			// Откатываем запись: стратегия вне движка бесполезна
			_ = s.strategyRepo.Delete(cfg.ID)
			return err
		}
	}

	return nil
}

// UpdateStrategy обновляет торговые параметры стратегии.
// Изменения применяются немедленно: пороги влияют только на будущие
// оценки спреда, уже выставленные ордера не затрагиваются.
func (s *StrategyService) UpdateStrategy(ctx context.Context, id int, upd models.StrategyParametersUpdate) (*models.StrategyConfig, error) {
	// 1. Получаем текущую стратегию
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}

	// 2. Применяем изменения к копии для валидации
	params := models.StrategyParameters{
		OpenThreshold:   strategy.OpenThreshold,
		CloseThreshold:  strategy.CloseThreshold,
		OrderSize:       strategy.OrderSize,
		MaxChaseCount:   strategy.MaxChaseCount,
		TradeTimeoutSec: strategy.TradeTimeoutSec,
	}
	if upd.OpenThreshold != nil {
		params.OpenThreshold = *upd.OpenThreshold
	}
	if upd.CloseThreshold != nil {
		params.CloseThreshold = *upd.CloseThreshold
	}
	if upd.OrderSize != nil {
		params.OrderSize = *upd.OrderSize
	}
	if upd.MaxChaseCount != nil {
		params.MaxChaseCount = *upd.MaxChaseCount
	}
	if upd.TradeTimeoutSec != nil {
		params.TradeTimeoutSec = *upd.TradeTimeoutSec
	}

	// 3. Валидация новых параметров
	if err := s.validateParameters(params); err != nil {
		return nil, err
	}

	// 4. Применяем в БД
	if err := s.strategyRepo.UpdateParams(id, params); err != nil {
		return nil, err
	}

	// 5. Обновляем в движке
	if s.engine != nil {
		if err := s.engine.SetParameters(id, upd); err != nil {
			return nil, err
		}
	}

	strategy.OpenThreshold = params.OpenThreshold
	strategy.CloseThreshold = params.CloseThreshold
	strategy.OrderSize = params.OrderSize
	strategy.MaxChaseCount = params.MaxChaseCount
	strategy.TradeTimeoutSec = params.TradeTimeoutSec

	return strategy, nil
}

// SetAutoMode переключает автоматическую торговлю по тикам
func (s *StrategyService) SetAutoMode(ctx context.Context, id int, auto bool) error {
	if err := s.strategyRepo.UpdateAutoMode(id, auto); err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}

	if s.engine != nil {
		return s.engine.SetAutoMode(id, auto)
	}

	return nil
}

// DeleteStrategy удаляет стратегию
// Выполняет:
// 1. Проверку, что стратегия на паузе
// 2. Проверку отсутствия открытой позиции
// 3. Удаление из движка и БД
func (s *StrategyService) DeleteStrategy(ctx context.Context, id int) error {
	// 1. Получаем стратегию
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}

	// 2. Проверяем, что стратегия на паузе
	if strategy.Status != models.StrategyStatusPaused {
		return ErrStrategyNotPaused
	}

	// 3. Проверяем отсутствие открытой позиции
	if s.hasOpenPosition(id) {
		return ErrStrategyHasOpenPosition
	}

	// 4. Удаляем из движка
	if s.engine != nil {
		if err := s.engine.RemoveStrategy(id, false); err != nil {
			return err
		}
	}

	// 5. Удаляем из БД
	return s.strategyRepo.Delete(id)
}

// StartStrategy запускает арбитражную стратегию
// Выполняет:
// 1. Проверку, что стратегия существует и не активна
// 2. Проверку подключения обеих площадок
// 3. Проверку лимита одновременно работающих стратегий
// 4. Изменение статуса и запуск в движке
func (s *StrategyService) StartStrategy(ctx context.Context, id int) error {
	// 1. Получаем стратегию
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}

	// 2. Проверяем статус
	if strategy.Status == models.StrategyStatusActive {
		return ErrStrategyAlreadyActive
	}

	// 3. Обе площадки должны быть подключены
	connected, err := s.accountSvc.BothConnected(strategy.AccountA, strategy.AccountB)
	if err != nil {
		return err
	}
	if !connected {
		return ErrAccountsNotConnected
	}

	// 4. Проверяем лимит одновременно работающих стратегий
	maxConcurrent, err := s.settingsRepo.GetMaxConcurrentStrategies()
	if err != nil {
		return err
	}
	if maxConcurrent != nil {
		activeCount, err := s.strategyRepo.CountActive()
		if err != nil {
			return err
		}
		if activeCount >= *maxConcurrent {
			return ErrMaxStrategiesReached
		}
	}

	// 5. Обновляем статус в БД
	if err := s.strategyRepo.UpdateStatus(id, models.StrategyStatusActive); err != nil {
		return err
	}

	// 6. Запускаем в движке
	if s.engine != nil {
		return s.engine.StartStrategy(id)
	}

	return nil
}

// PauseStrategy приостанавливает стратегию
// Параметр forceClose: если true и есть открытая позиция - инициировать
// принудительное закрытие перед паузой
func (s *StrategyService) PauseStrategy(ctx context.Context, id int, forceClose bool) error {
	// 1. Получаем стратегию
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return ErrStrategyNotFound
		}
		return err
	}

	// 2. Проверяем статус
	if strategy.Status == models.StrategyStatusPaused {
		return ErrStrategyAlreadyPaused
	}

	// 3. Проверяем наличие открытой позиции
	if s.hasOpenPosition(id) {
		if !forceClose {
			// Нужно явное подтверждение для закрытия
			return ErrStrategyHasOpenPosition
		}

		// Инициируем принудительное закрытие; исполнения дойдут до
		// стратегии и после остановки мониторинга
		if s.engine != nil {
			if err := s.engine.ManualClose(id); err != nil {
				return err
			}
		}
	}

	// 4. Останавливаем в движке
	if s.engine != nil {
		if err := s.engine.PauseStrategy(id); err != nil {
			return err
		}
	}

	// 5. Обновляем статус в БД
	return s.strategyRepo.UpdateStatus(id, models.StrategyStatusPaused)
}

// ManualClose инициирует принудительное закрытие позиции стратегии
func (s *StrategyService) ManualClose(ctx context.Context, id int) error {
	if _, err := s.GetStrategy(ctx, id); err != nil {
		return err
	}

	if s.engine == nil {
		return errors.New("trading engine is not running")
	}
	return s.engine.ManualClose(id)
}

// ManualOrder выставляет одиночный ордер вне стратегий
func (s *StrategyService) ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error) {
	if s.engine == nil {
		return "", errors.New("trading engine is not running")
	}
	return s.engine.ManualOrder(ctx, strings.ToLower(account), strings.ToUpper(symbol), side, price, size)
}

// GetStrategy возвращает стратегию по ID
func (s *StrategyService) GetStrategy(ctx context.Context, id int) (*models.StrategyConfig, error) {
	strategy, err := s.strategyRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrStrategyNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, err
	}
	return strategy, nil
}

// GetAllStrategies возвращает все стратегии
func (s *StrategyService) GetAllStrategies(ctx context.Context) ([]*models.StrategyConfig, error) {
	return s.strategyRepo.GetAll()
}

// GetActiveStrategies возвращает только активные стратегии
func (s *StrategyService) GetActiveStrategies(ctx context.Context) ([]*models.StrategyConfig, error) {
	return s.strategyRepo.GetActive()
}

// GetStrategiesBySymbol возвращает стратегии символа
func (s *StrategyService) GetStrategiesBySymbol(ctx context.Context, symbol string) ([]*models.StrategyConfig, error) {
	return s.strategyRepo.GetBySymbol(strings.ToUpper(symbol))
}

// GetStrategyRuntime возвращает runtime состояние стратегии из движка
func (s *StrategyService) GetStrategyRuntime(id int) *models.StrategyRuntime {
	if s.engine == nil {
		return nil
	}
	rt, ok := s.engine.StrategyRuntime(id)
	if !ok {
		return nil
	}
	return &rt
}

// StrategyWithRuntime объединяет конфигурацию и runtime данные
type StrategyWithRuntime struct {
	Config  *models.StrategyConfig  `json:"config"`
	Runtime *models.StrategyRuntime `json:"runtime,omitempty"`
}

// GetStrategyWithRuntime возвращает стратегию с runtime данными
func (s *StrategyService) GetStrategyWithRuntime(ctx context.Context, id int) (*StrategyWithRuntime, error) {
	strategy, err := s.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}

	return &StrategyWithRuntime{
		Config:  strategy,
		Runtime: s.GetStrategyRuntime(id),
	}, nil
}

// GetStrategiesCount возвращает количество стратегий
func (s *StrategyService) GetStrategiesCount(ctx context.Context) (int, error) {
	return s.strategyRepo.Count()
}

// GetActiveStrategiesCount возвращает количество активных стратегий
func (s *StrategyService) GetActiveStrategiesCount(ctx context.Context) (int, error) {
	return s.strategyRepo.CountActive()
}

// RecordTradeResult записывает результат завершенного цикла в статистику
// стратегии. Вызывается из персистентных коллбеков движка.
func (s *StrategyService) RecordTradeResult(ctx context.Context, id int, pnl float64) error {
	return s.strategyRepo.RecordTradeResult(id, pnl)
}

// ResetStrategyStats сбрасывает локальную статистику стратегии
func (s *StrategyService) ResetStrategyStats(ctx context.Context, id int) error {
	return s.strategyRepo.ResetStats(id)
}

// ============ Вспомогательные методы ============

// validateStrategyConfig выполняет валидацию конфигурации стратегии
func (s *StrategyService) validateStrategyConfig(cfg *models.StrategyConfig) error {
	// Валидация символа
	if cfg.Symbol == "" {
		return ErrInvalidSymbol
	}

	// Ноги должны быть на разных поддерживаемых площадках
	if cfg.AccountA == "" || cfg.AccountB == "" {
		return ErrUnsupportedAccount
	}
	if cfg.AccountA == cfg.AccountB {
		return ErrSameAccounts
	}
	if !exchange.IsSupported(cfg.AccountA) || !exchange.IsSupported(cfg.AccountB) {
		return ErrUnsupportedAccount
	}

	return s.validateParameters(models.StrategyParameters{
		OpenThreshold:   cfg.OpenThreshold,
		CloseThreshold:  cfg.CloseThreshold,
		OrderSize:       cfg.OrderSize,
		MaxChaseCount:   cfg.MaxChaseCount,
		TradeTimeoutSec: cfg.TradeTimeoutSec,
	})
}

// validateParameters проверяет торговые параметры
func (s *StrategyService) validateParameters(p models.StrategyParameters) error {
	// Порог входа (> 0)
	if p.OpenThreshold <= 0 {
		return ErrInvalidOpenThreshold
	}

	// Порог выхода (>= 0, может быть 0 - выход на схождении)
	if p.CloseThreshold < 0 {
		return ErrInvalidCloseThreshold
	}

	// Порог выхода должен быть меньше порога входа
	if p.CloseThreshold >= p.OpenThreshold {
		return ErrCloseNotBelowOpen
	}

	// Объем (> 0)
	if p.OrderSize <= 0 {
		return ErrInvalidOrderSize
	}

	// Лимит догоняющих ордеров (>= 0, 0 - чейз отключен)
	if p.MaxChaseCount < 0 {
		return ErrInvalidChaseCount
	}

	// Таймаут исполнения ног (> 0)
	if p.TradeTimeoutSec <= 0 {
		return ErrInvalidTimeout
	}

	return nil
}

// hasOpenPosition проверяет, есть ли открытая позиция у стратегии.
// Позиция удерживается в состояниях OPENED и CLOSING.
func (s *StrategyService) hasOpenPosition(id int) bool {
	if s.engine == nil {
		return false
	}

	rt, ok := s.engine.StrategyRuntime(id)
	if !ok {
		return false
	}

	return rt.State == models.StateOpened || rt.State == models.StateClosing
}
