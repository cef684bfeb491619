package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/internal/repository"
	"crossarb/pkg/crypto"
)

// Ошибки сервиса аккаунтов
var (
	ErrAccountNotSupported     = errors.New("exchange is not supported")
	ErrAccountAlreadyConnected = errors.New("exchange account is already connected")
	ErrAccountNotConnected     = errors.New("exchange account is not connected")
	ErrInvalidCredentials      = errors.New("invalid API credentials")
	ErrConnectionFailed        = errors.New("failed to connect to exchange")
)

// BalanceBroadcaster - интерфейс для отправки обновлений балансов через WebSocket
type BalanceBroadcaster interface {
	BroadcastBalanceUpdate(exchange string, balance float64)
	BroadcastAllBalances(balances map[string]float64)
}

// GatewayHooks - коллбеки жизненного цикла шлюзов. Через них торговый
// контур (роутер ордеров, диспетчер событий площадок) узнаёт о
// подключении и отключении аккаунтов без обратной зависимости от bot.
type GatewayHooks struct {
	OnAttach func(name string, gw exchange.Gateway)
	OnDetach func(name string)
}

// AccountService - бизнес-логика для управления биржевыми аккаунтами
type AccountService struct {
	accountRepo  AccountRepositoryInterface
	strategyRepo StrategyRepositoryInterface

	encryptionKey []byte
	log           *zap.Logger

	// Кэш активных шлюзов
	connections   map[string]exchange.Gateway
	connectionsMu sync.RWMutex // Защита от race condition при конкурентном доступе

	// WebSocket hub для broadcast балансов
	wsHub BalanceBroadcaster

	// Торговый движок (может быть nil при инициализации)
	engine BotEngine

	// Коллбеки подключения/отключения шлюзов
	hooks GatewayHooks

	// Фабрика шлюзов (подменяется в тестах)
	newGateway func(name string, log *zap.Logger) (exchange.Gateway, error)
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(
	accountRepo AccountRepositoryInterface,
	strategyRepo StrategyRepositoryInterface,
	encryptionKey string,
	log *zap.Logger,
) *AccountService {
	return &AccountService{
		accountRepo:   accountRepo,
		strategyRepo:  strategyRepo,
		encryptionKey: []byte(encryptionKey),
		log:           log,
		connections:   make(map[string]exchange.Gateway),
		newGateway:    exchange.NewGateway,
	}
}

// SetWebSocketHub устанавливает WebSocket hub для broadcast балансов.
//
// Вызывается после инициализации Hub в main.go:
//
//	accountService := service.NewAccountService(...)
//	accountService.SetWebSocketHub(wsHub)
func (s *AccountService) SetWebSocketHub(hub BalanceBroadcaster) {
	s.wsHub = hub
}

// SetEngine устанавливает торговый движок
func (s *AccountService) SetEngine(engine BotEngine) {
	s.engine = engine
}

// SetGatewayHooks устанавливает коллбеки подключения и отключения шлюзов.
// Вызывается в main после сборки роутера ордеров и диспетчера.
func (s *AccountService) SetGatewayHooks(h GatewayHooks) {
	s.hooks = h
}

// ConnectAccount подключает биржевой аккаунт с указанными API ключами
// Выполняет:
// 1. Проверку поддержки площадки
// 2. Тестовое подключение (проверка ключей)
// 3. Шифрование ключей перед сохранением
// 4. Сохранение в БД
func (s *AccountService) ConnectAccount(ctx context.Context, name, apiKey, secretKey, passphrase string) error {
	name = strings.ToLower(name)

	// 1. Проверяем, поддерживается ли площадка
	if !exchange.IsSupported(name) {
		return ErrAccountNotSupported
	}

	// 2. Проверяем, не подключен ли уже аккаунт
	existing, err := s.accountRepo.GetByName(name)
	if err == nil && existing.Connected {
		return ErrAccountAlreadyConnected
	}

	// 3. Создаем шлюз через фабрику
	gw, err := s.newGateway(name, s.log)
	if err != nil {
		return err
	}

	// 4. Тестовое подключение (проверяем валидность ключей)
	if err := gw.Connect(apiKey, secretKey, passphrase); err != nil {
		return errors.Join(ErrInvalidCredentials, err)
	}

	// 5. Получаем баланс для проверки работоспособности
	balance, err := gw.Balance(ctx)
	if err != nil {
		// Закрываем соединение при ошибке
		_ = gw.Close()
		return errors.Join(ErrConnectionFailed, err)
	}

	// 6. Шифруем API ключи перед сохранением
	encryptedAPIKey, err := crypto.Encrypt(apiKey, s.encryptionKey)
	if err != nil {
		_ = gw.Close()
		return err
	}

	encryptedSecretKey, err := crypto.Encrypt(secretKey, s.encryptionKey)
	if err != nil {
		_ = gw.Close()
		return err
	}

	var encryptedPassphrase string
	if passphrase != "" {
		encryptedPassphrase, err = crypto.Encrypt(passphrase, s.encryptionKey)
		if err != nil {
			_ = gw.Close()
			return err
		}
	}

	// 7. Сохраняем или обновляем в БД
	if existing != nil {
		existing.APIKey = encryptedAPIKey
		existing.SecretKey = encryptedSecretKey
		existing.Passphrase = encryptedPassphrase
		existing.Connected = true
		existing.Balance = balance
		existing.LastError = ""
		existing.UpdatedAt = time.Now()

		if err := s.accountRepo.Update(existing); err != nil {
			_ = gw.Close()
			return err
		}
	} else {
		account := &models.ExchangeAccount{
			Name:       name,
			APIKey:     encryptedAPIKey,
			SecretKey:  encryptedSecretKey,
			Passphrase: encryptedPassphrase,
			Connected:  true,
			Balance:    balance,
			LastError:  "",
		}

		if err := s.accountRepo.Create(account); err != nil {
			_ = gw.Close()
			return err
		}
	}

	// 8. Сохраняем шлюз в кэше
	s.connectionsMu.Lock()
	s.connections[name] = gw
	s.connectionsMu.Unlock()

	// Коллбек вне лока: он регистрирует шлюз в торговом контуре
	if s.hooks.OnAttach != nil {
		s.hooks.OnAttach(name, gw)
	}

	return nil
}

// DisconnectAccount отключает биржевой аккаунт
// Выполняет:
// 1. Проверку наличия подключения
// 2. Паузу стратегий, привязанных к этой площадке
// 3. Удаление ключей из БД
func (s *AccountService) DisconnectAccount(ctx context.Context, name string) error {
	name = strings.ToLower(name)

	// 1. Проверяем, подключен ли аккаунт
	account, err := s.accountRepo.GetByName(name)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrAccountNotConnected
		}
		return err
	}

	if !account.Connected {
		return ErrAccountNotConnected
	}

	// 2. Стратегии жестко привязаны к паре аккаунтов: все активные
	// стратегии этой площадки ставим на паузу
	active, err := s.strategyRepo.GetActive()
	if err != nil {
		return err
	}

	for _, strategy := range active {
		if strategy.AccountA != name && strategy.AccountB != name {
			continue
		}
		if s.engine != nil {
			_ = s.engine.PauseStrategy(strategy.ID)
		}
		if err := s.strategyRepo.UpdateStatus(strategy.ID, models.StrategyStatusPaused); err != nil {
			// Логируем и продолжаем: частичная пауза лучше, чем торговля без площадки
			s.log.Warn("не удалось поставить стратегию на паузу при отключении площадки",
				zap.Int("strategy_id", strategy.ID), zap.Error(err))
		}
	}

	// 3. Закрываем шлюз (если есть в кэше)
	s.connectionsMu.Lock()
	if conn, exists := s.connections[name]; exists {
		_ = conn.Close()
		delete(s.connections, name)
	}
	s.connectionsMu.Unlock()

	if s.hooks.OnDetach != nil {
		s.hooks.OnDetach(name)
	}

	// 4. Помечаем аккаунт как отключенный и очищаем ключи
	account.Connected = false
	account.APIKey = ""
	account.SecretKey = ""
	account.Passphrase = ""
	account.Balance = 0
	account.LastError = ""
	account.UpdatedAt = time.Now()

	return s.accountRepo.Update(account)
}

// UpdateBalance обновляет баланс аккаунта
// Запрашивает актуальный баланс через API площадки
// После успешного обновления отправляет broadcast через WebSocket
func (s *AccountService) UpdateBalance(ctx context.Context, name string) (float64, error) {
	name = strings.ToLower(name)

	// 1. Получаем данные аккаунта из БД
	account, err := s.accountRepo.GetByName(name)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, ErrAccountNotConnected
		}
		return 0, err
	}

	if !account.Connected {
		return 0, ErrAccountNotConnected
	}

	// 2. Проверяем наличие шлюза в кэше или создаем новый
	conn, err := s.getOrCreateConnection(ctx, name, account)
	if err != nil {
		// Записываем ошибку в БД
		_ = s.accountRepo.SetLastError(account.ID, err.Error())
		return 0, err
	}

	// 3. Запрашиваем баланс
	balance, err := conn.Balance(ctx)
	if err != nil {
		_ = s.accountRepo.SetLastError(account.ID, err.Error())
		return 0, err
	}

	// 4. Обновляем баланс в БД
	if err := s.accountRepo.UpdateBalance(account.ID, balance); err != nil {
		return balance, err
	}

	// 5. Очищаем ошибку если была
	if account.LastError != "" {
		_ = s.accountRepo.SetLastError(account.ID, "")
	}

	// 6. Broadcast через WebSocket для real-time обновления UI
	if s.wsHub != nil {
		s.wsHub.BroadcastBalanceUpdate(name, balance)
	}

	return balance, nil
}

// GetAllAccounts возвращает список всех аккаунтов с их статусами
// Для каждой поддерживаемой площадки возвращает информацию о подключении
func (s *AccountService) GetAllAccounts() ([]*models.ExchangeAccount, error) {
	dbAccounts, err := s.accountRepo.GetAll()
	if err != nil {
		return nil, err
	}

	dbMap := make(map[string]*models.ExchangeAccount)
	for _, account := range dbAccounts {
		dbMap[account.Name] = account
	}

	// Формируем полный список (включая неподключенные площадки)
	result := make([]*models.ExchangeAccount, 0, len(exchange.SupportedExchanges))

	for _, name := range exchange.SupportedExchanges {
		if dbAccount, exists := dbMap[name]; exists {
			// Аккаунт есть в БД - очищаем ключи перед отправкой
			result = append(result, sanitizeAccount(dbAccount))
		} else {
			result = append(result, &models.ExchangeAccount{
				Name:      name,
				Connected: false,
				Balance:   0,
			})
		}
	}

	return result, nil
}

// GetConnectedAccounts возвращает только подключенные аккаунты
func (s *AccountService) GetConnectedAccounts() ([]*models.ExchangeAccount, error) {
	return s.accountRepo.GetConnected()
}

// GetAccountByName возвращает аккаунт по имени площадки
func (s *AccountService) GetAccountByName(name string) (*models.ExchangeAccount, error) {
	name = strings.ToLower(name)
	account, err := s.accountRepo.GetByName(name)
	if err != nil {
		return nil, err
	}

	return sanitizeAccount(account), nil
}

// sanitizeAccount возвращает копию аккаунта без ключей
func sanitizeAccount(account *models.ExchangeAccount) *models.ExchangeAccount {
	return &models.ExchangeAccount{
		ID:        account.ID,
		Name:      account.Name,
		Connected: account.Connected,
		Balance:   account.Balance,
		LastError: account.LastError,
		UpdatedAt: account.UpdatedAt,
		CreatedAt: account.CreatedAt,
		// APIKey, SecretKey, Passphrase не возвращаем
	}
}

// GetConnection возвращает активный шлюз площадки
// Используется торговым движком для выполнения операций
func (s *AccountService) GetConnection(ctx context.Context, name string) (exchange.Gateway, error) {
	name = strings.ToLower(name)

	// Проверяем кэш (read lock)
	s.connectionsMu.RLock()
	conn, exists := s.connections[name]
	s.connectionsMu.RUnlock()

	if exists {
		return conn, nil
	}

	// Получаем данные из БД и создаем шлюз
	account, err := s.accountRepo.GetByName(name)
	if err != nil {
		return nil, err
	}

	if !account.Connected {
		return nil, ErrAccountNotConnected
	}

	return s.getOrCreateConnection(ctx, name, account)
}

// UpdateAllBalances обновляет балансы всех подключенных аккаунтов
// Вызывается периодически из главного цикла
// После обновления отправляет broadcast всех балансов через WebSocket
func (s *AccountService) UpdateAllBalances(ctx context.Context) map[string]float64 {
	result := make(map[string]float64)

	connected, err := s.accountRepo.GetConnected()
	if err != nil {
		return result
	}

	for _, account := range connected {
		balance, err := s.UpdateBalance(ctx, account.Name)
		if err != nil {
			// Логируем ошибку, но продолжаем
			continue
		}
		result[account.Name] = balance
	}

	// Broadcast всех балансов одним сообщением (для начальной загрузки UI)
	if s.wsHub != nil && len(result) > 0 {
		s.wsHub.BroadcastAllBalances(result)
	}

	return result
}

// getOrCreateConnection получает шлюз из кэша или создает новый
func (s *AccountService) getOrCreateConnection(ctx context.Context, name string, account *models.ExchangeAccount) (exchange.Gateway, error) {
	// Проверяем кэш (read lock)
	s.connectionsMu.RLock()
	conn, exists := s.connections[name]
	s.connectionsMu.RUnlock()

	if exists {
		return conn, nil
	}

	// Расшифровываем ключи
	apiKey, err := crypto.Decrypt(account.APIKey, s.encryptionKey)
	if err != nil {
		return nil, err
	}

	secretKey, err := crypto.Decrypt(account.SecretKey, s.encryptionKey)
	if err != nil {
		return nil, err
	}

	var passphrase string
	if account.Passphrase != "" {
		passphrase, err = crypto.Decrypt(account.Passphrase, s.encryptionKey)
		if err != nil {
			return nil, err
		}
	}

	// Создаем новый шлюз
	conn, err = s.newGateway(name, s.log)
	if err != nil {
		return nil, err
	}

	if err := conn.Connect(apiKey, secretKey, passphrase); err != nil {
		return nil, err
	}

	// Сохраняем в кэш (write lock)
	s.connectionsMu.Lock()
	s.connections[name] = conn
	s.connectionsMu.Unlock()

	if s.hooks.OnAttach != nil {
		s.hooks.OnAttach(name, conn)
	}

	return conn, nil
}

// Close закрывает все шлюзы
// Вызывается при graceful shutdown
func (s *AccountService) Close() error {
	s.connectionsMu.Lock()
	defer s.connectionsMu.Unlock()

	for name, conn := range s.connections {
		_ = conn.Close()
		delete(s.connections, name)
	}
	return nil
}

// CountConnected возвращает количество подключенных аккаунтов
func (s *AccountService) CountConnected() (int, error) {
	return s.accountRepo.CountConnected()
}

// IsConnected проверяет, подключен ли аккаунт площадки
func (s *AccountService) IsConnected(name string) (bool, error) {
	account, err := s.accountRepo.GetByName(strings.ToLower(name))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return false, nil
		}
		return false, err
	}
	return account.Connected, nil
}

// BothConnected проверяет, что обе площадки стратегии подключены
func (s *AccountService) BothConnected(accountA, accountB string) (bool, error) {
	for _, name := range []string{accountA, accountB} {
		connected, err := s.IsConnected(name)
		if err != nil {
			return false, err
		}
		if !connected {
			return false, nil
		}
	}
	return true, nil
}
