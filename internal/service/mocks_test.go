package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"crossarb/internal/exchange"
	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// ============ Mock StrategyRepository ============

type MockStrategyRepository struct {
	strategies map[int]*models.StrategyConfig
	createErr  error
	getErr     error
	updateErr  error
	deleteErr  error
	nextID     int
}

func NewMockStrategyRepository() *MockStrategyRepository {
	return &MockStrategyRepository{
		strategies: make(map[int]*models.StrategyConfig),
		nextID:     1,
	}
}

func (m *MockStrategyRepository) Create(cfg *models.StrategyConfig) error {
	if m.createErr != nil {
		return m.createErr
	}
	for _, s := range m.strategies {
		if s.Symbol == cfg.Symbol && s.AccountA == cfg.AccountA && s.AccountB == cfg.AccountB {
			return repository.ErrStrategyExists
		}
	}
	if cfg.Status == "" {
		cfg.Status = models.StrategyStatusPaused
	}
	if cfg.Name == "" {
		cfg.Name = models.MakeStrategyName(cfg.AccountA, cfg.AccountB)
	}
	cfg.ID = m.nextID
	m.nextID++
	cfg.CreatedAt = time.Now()
	cfg.UpdatedAt = time.Now()
	m.strategies[cfg.ID] = cfg
	return nil
}

func (m *MockStrategyRepository) GetByID(id int) (*models.StrategyConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if s, exists := m.strategies[id]; exists {
		return s, nil
	}
	return nil, repository.ErrStrategyNotFound
}

func (m *MockStrategyRepository) GetBySymbol(symbol string) ([]*models.StrategyConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.StrategyConfig
	for _, s := range m.strategies {
		if s.Symbol == symbol {
			result = append(result, s)
		}
	}
	return result, nil
}

func (m *MockStrategyRepository) GetAll() ([]*models.StrategyConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.StrategyConfig, 0, len(m.strategies))
	for _, s := range m.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockStrategyRepository) GetActive() ([]*models.StrategyConfig, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.StrategyConfig
	for _, s := range m.strategies {
		if s.Status == models.StrategyStatusActive {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *MockStrategyRepository) Update(cfg *models.StrategyConfig) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.strategies[cfg.ID]; !exists {
		return repository.ErrStrategyNotFound
	}
	cfg.UpdatedAt = time.Now()
	m.strategies[cfg.ID] = cfg
	return nil
}

func (m *MockStrategyRepository) UpdateParams(id int, params models.StrategyParameters) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	s, exists := m.strategies[id]
	if !exists {
		return repository.ErrStrategyNotFound
	}
	s.OpenThreshold = params.OpenThreshold
	s.CloseThreshold = params.CloseThreshold
	s.OrderSize = params.OrderSize
	s.MaxChaseCount = params.MaxChaseCount
	s.TradeTimeoutSec = params.TradeTimeoutSec
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MockStrategyRepository) UpdateStatus(id int, status string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if s, exists := m.strategies[id]; exists {
		s.Status = status
		s.UpdatedAt = time.Now()
		return nil
	}
	return repository.ErrStrategyNotFound
}

func (m *MockStrategyRepository) UpdateAutoMode(id int, autoMode bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if s, exists := m.strategies[id]; exists {
		s.AutoMode = autoMode
		s.UpdatedAt = time.Now()
		return nil
	}
	return repository.ErrStrategyNotFound
}

func (m *MockStrategyRepository) RecordTradeResult(id int, pnlDelta float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if s, exists := m.strategies[id]; exists {
		s.TradesCount++
		s.TotalPnl += pnlDelta
		return nil
	}
	return repository.ErrStrategyNotFound
}

func (m *MockStrategyRepository) ResetStats(id int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if s, exists := m.strategies[id]; exists {
		s.TradesCount = 0
		s.TotalPnl = 0
		return nil
	}
	return repository.ErrStrategyNotFound
}

func (m *MockStrategyRepository) Delete(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, exists := m.strategies[id]; !exists {
		return repository.ErrStrategyNotFound
	}
	delete(m.strategies, id)
	return nil
}

func (m *MockStrategyRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.strategies), nil
}

func (m *MockStrategyRepository) CountActive() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, s := range m.strategies {
		if s.Status == models.StrategyStatusActive {
			count++
		}
	}
	return count, nil
}

func (m *MockStrategyRepository) Exists(symbol, accountA, accountB string) (bool, error) {
	if m.getErr != nil {
		return false, m.getErr
	}
	for _, s := range m.strategies {
		if s.Symbol == symbol && s.AccountA == accountA && s.AccountB == accountB {
			return true, nil
		}
	}
	return false, nil
}

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	accounts  map[string]*models.ExchangeAccount
	createErr error
	getErr    error
	updateErr error
	deleteErr error
	nextID    int
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*models.ExchangeAccount),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Create(account *models.ExchangeAccount) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.accounts[account.Name]; exists {
		return repository.ErrAccountExists
	}
	account.ID = m.nextID
	m.nextID++
	account.CreatedAt = time.Now()
	account.UpdatedAt = time.Now()
	m.accounts[account.Name] = account
	return nil
}

func (m *MockAccountRepository) GetByID(id int) (*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, account := range m.accounts {
		if account.ID == id {
			return account, nil
		}
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByName(name string) (*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if account, exists := m.accounts[name]; exists {
		return account, nil
	}
	return nil, repository.ErrAccountNotFound
}

func (m *MockAccountRepository) GetAll() ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.ExchangeAccount, 0, len(m.accounts))
	for _, a := range m.accounts {
		result = append(result, a)
	}
	return result, nil
}

func (m *MockAccountRepository) GetConnected() ([]*models.ExchangeAccount, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.ExchangeAccount
	for _, a := range m.accounts {
		if a.Connected {
			result = append(result, a)
		}
	}
	return result, nil
}

func (m *MockAccountRepository) Update(account *models.ExchangeAccount) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if _, exists := m.accounts[account.Name]; !exists {
		return repository.ErrAccountNotFound
	}
	account.UpdatedAt = time.Now()
	m.accounts[account.Name] = account
	return nil
}

func (m *MockAccountRepository) UpdateBalance(id int, balance float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, account := range m.accounts {
		if account.ID == id {
			account.Balance = balance
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) UpdateBalanceByName(name string, balance float64) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if account, exists := m.accounts[name]; exists {
		account.Balance = balance
		account.UpdatedAt = time.Now()
		return nil
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) SetConnected(id int, connected bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, account := range m.accounts {
		if account.ID == id {
			account.Connected = connected
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) SetLastError(id int, errorMessage string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, account := range m.accounts {
		if account.ID == id {
			account.LastError = errorMessage
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) Delete(id int) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	for name, account := range m.accounts {
		if account.ID == id {
			delete(m.accounts, name)
			return nil
		}
	}
	return repository.ErrAccountNotFound
}

func (m *MockAccountRepository) CountConnected() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, a := range m.accounts {
		if a.Connected {
			count++
		}
	}
	return count, nil
}

// ============ Mock TradeRepository ============

type MockTradeRepository struct {
	trades    []*models.TradeRecord
	createErr error
	getErr    error
	deleteErr error
	nextID    int
}

func NewMockTradeRepository() *MockTradeRepository {
	return &MockTradeRepository{
		trades: make([]*models.TradeRecord, 0),
		nextID: 1,
	}
}

func (m *MockTradeRepository) Create(trade *models.TradeRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	trade.ID = m.nextID
	m.nextID++
	trade.CreatedAt = time.Now()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *MockTradeRepository) GetByStrategy(strategyID, limit int) ([]*models.TradeRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.TradeRecord
	for _, t := range m.trades {
		if t.StrategyID == strategyID {
			result = append(result, t)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeRepository) GetInTimeRange(from, to time.Time, limit int) ([]*models.TradeRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.TradeRecord
	for _, t := range m.trades {
		if inRange(t.ClosedAt, from, to) {
			result = append(result, t)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeRepository) StatsInRange(from, to time.Time) (int, float64, error) {
	if m.getErr != nil {
		return 0, 0, m.getErr
	}
	count := 0
	var pnl float64
	for _, t := range m.trades {
		if inRange(t.ClosedAt, from, to) {
			count++
			pnl += t.Pnl
		}
	}
	return count, pnl, nil
}

func (m *MockTradeRepository) CountWinning() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, t := range m.trades {
		if t.Pnl > 0 {
			count++
		}
	}
	return count, nil
}

func (m *MockTradeRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.trades), nil
}

func (m *MockTradeRepository) GetTopByTrades(limit int) ([]models.StrategyStat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	counts := make(map[string]int)
	for _, t := range m.trades {
		counts[t.Symbol]++
	}
	var result []models.StrategyStat
	for symbol, count := range counts {
		result = append(result, models.StrategyStat{Name: symbol, Value: float64(count)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Value > result[j].Value })
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockTradeRepository) GetTopByProfit(limit int) ([]models.StrategyStat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.topByPnl(limit, true), nil
}

func (m *MockTradeRepository) GetTopByLoss(limit int) ([]models.StrategyStat, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.topByPnl(limit, false), nil
}

func (m *MockTradeRepository) topByPnl(limit int, profit bool) []models.StrategyStat {
	pnls := make(map[string]float64)
	for _, t := range m.trades {
		pnls[t.Symbol] += t.Pnl
	}
	var result []models.StrategyStat
	for symbol, pnl := range pnls {
		if (profit && pnl > 0) || (!profit && pnl < 0) {
			result = append(result, models.StrategyStat{Name: symbol, Value: pnl})
		}
	}
	if profit {
		sort.Slice(result, func(i, j int) bool { return result[i].Value > result[j].Value })
	} else {
		sort.Slice(result, func(i, j int) bool { return result[i].Value < result[j].Value })
	}
	if len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (m *MockTradeRepository) GetPnlBySymbol(symbol string) (float64, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	var pnl float64
	for _, t := range m.trades {
		if t.Symbol == symbol {
			pnl += t.Pnl
		}
	}
	return pnl, nil
}

func (m *MockTradeRepository) CountUnilateralSince(since time.Time) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, t := range m.trades {
		if t.Unilateral && !t.ClosedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockTradeRepository) UnilateralEvents(limit int) ([]models.UnilateralEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var events []models.UnilateralEvent
	for _, t := range m.trades {
		if t.Unilateral {
			events = append(events, models.UnilateralEvent{
				Symbol:    t.Symbol,
				Direction: t.Direction,
				Timestamp: t.ClosedAt,
			})
		}
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *MockTradeRepository) DeleteOlderThan(threshold time.Time) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	var kept []*models.TradeRecord
	var deleted int64
	for _, t := range m.trades {
		if t.ClosedAt.After(threshold) {
			kept = append(kept, t)
		} else {
			deleted++
		}
	}
	m.trades = kept
	return deleted, nil
}

func (m *MockTradeRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.trades = make([]*models.TradeRecord, 0)
	return nil
}

// inRange проверяет попадание в интервал; нулевая граница не ограничивает
func inRange(ts, from, to time.Time) bool {
	if !from.IsZero() && ts.Before(from) {
		return false
	}
	if !to.IsZero() && ts.After(to) {
		return false
	}
	return true
}

// ============ Mock OrderRepository ============

type MockOrderRepository struct {
	orders    []*models.OrderRecord
	createErr error
	getErr    error
	updateErr error
	nextID    int
}

func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders: make([]*models.OrderRecord, 0),
		nextID: 1,
	}
}

func (m *MockOrderRepository) Create(order *models.OrderRecord) error {
	if m.createErr != nil {
		return m.createErr
	}
	order.ID = m.nextID
	m.nextID++
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	m.orders = append(m.orders, order)
	return nil
}

func (m *MockOrderRepository) GetByStrategy(strategyID, limit int) ([]*models.OrderRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.OrderRecord
	for _, o := range m.orders {
		if o.StrategyID == strategyID {
			result = append(result, o)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockOrderRepository) GetRecent(limit int) ([]*models.OrderRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := m.orders
	if limit > 0 && len(result) > limit {
		result = result[len(result)-limit:]
	}
	return result, nil
}

func (m *MockOrderRepository) UpdateStatus(id int, status string, price float64, filledAt *time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	for _, o := range m.orders {
		if o.ID == id {
			o.Status = status
			o.Price = price
			o.FilledAt = filledAt
			return nil
		}
	}
	return repository.ErrOrderNotFound
}

func (m *MockOrderRepository) CountChaseSince(since time.Time) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, o := range m.orders {
		if o.Chase && !o.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *MockOrderRepository) ChaseEvents(limit int) ([]models.ChaseEvent, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var events []models.ChaseEvent
	for _, o := range m.orders {
		if o.Chase {
			events = append(events, models.ChaseEvent{
				Symbol:    o.Symbol,
				Exchange:  o.Exchange,
				Timestamp: o.CreatedAt,
			})
		}
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *MockOrderRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.orders), nil
}

func (m *MockOrderRepository) CountByStatus(status string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, o := range m.orders {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

// ============ Mock NotificationRepository ============

type MockNotificationRepository struct {
	notifications []*models.Notification
	createErr     error
	getErr        error
	deleteErr     error
	nextID        int
}

func NewMockNotificationRepository() *MockNotificationRepository {
	return &MockNotificationRepository{
		notifications: make([]*models.Notification, 0),
		nextID:        1,
	}
}

func (m *MockNotificationRepository) Create(notif *models.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	notif.ID = m.nextID
	m.nextID++
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now()
	}
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationRepository) GetRecent(limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if limit <= 0 || limit > len(m.notifications) {
		limit = len(m.notifications)
	}
	start := len(m.notifications) - limit
	return m.notifications[start:], nil
}

func (m *MockNotificationRepository) GetByTypes(types []string, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if typeSet[n.Type] {
			result = append(result, n)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) GetByStrategy(strategyID, limit int) ([]*models.Notification, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	var result []*models.Notification
	for _, n := range m.notifications {
		if n.StrategyID != nil && *n.StrategyID == strategyID {
			result = append(result, n)
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.notifications = make([]*models.Notification, 0)
	return nil
}

func (m *MockNotificationRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.notifications), nil
}

func (m *MockNotificationRepository) CountByType(notifType string) (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	count := 0
	for _, n := range m.notifications {
		if n.Type == notifType {
			count++
		}
	}
	return count, nil
}

func (m *MockNotificationRepository) KeepRecent(keepCount int) (int64, error) {
	if m.deleteErr != nil {
		return 0, m.deleteErr
	}
	if len(m.notifications) <= keepCount {
		return 0, nil
	}
	deleted := int64(len(m.notifications) - keepCount)
	m.notifications = m.notifications[len(m.notifications)-keepCount:]
	return deleted, nil
}

// ============ Mock SettingsRepository ============

type MockSettingsRepository struct {
	settings  *models.Settings
	getErr    error
	updateErr error
}

func NewMockSettingsRepository() *MockSettingsRepository {
	return &MockSettingsRepository{
		settings: &models.Settings{
			ID:                      1,
			AutoStart:               false,
			MaxConcurrentStrategies: nil,
			NotificationPrefs:       allNotificationsEnabled(),
			UpdatedAt:               time.Now(),
		},
	}
}

func allNotificationsEnabled() models.NotificationPreferences {
	return models.NotificationPreferences{
		Open:          true,
		Close:         true,
		Chase:         true,
		Unilateral:    true,
		Timeout:       true,
		RiskViolation: true,
		APIError:      true,
		Pause:         true,
	}
}

func (m *MockSettingsRepository) Get() (*models.Settings, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *MockSettingsRepository) Update(settings *models.Settings) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings = settings
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) UpdateNotificationPrefs(prefs models.NotificationPreferences) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings.NotificationPrefs = prefs
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) UpdateAutoStart(autoStart bool) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings.AutoStart = autoStart
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) UpdateMaxConcurrentStrategies(maxStrategies *int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings.MaxConcurrentStrategies = maxStrategies
	m.settings.UpdatedAt = time.Now()
	return nil
}

func (m *MockSettingsRepository) GetNotificationPrefs() (*models.NotificationPreferences, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &m.settings.NotificationPrefs, nil
}

func (m *MockSettingsRepository) GetMaxConcurrentStrategies() (*int, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings.MaxConcurrentStrategies, nil
}

func (m *MockSettingsRepository) ResetToDefaults() error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.settings = &models.Settings{
		ID:                1,
		AutoStart:         false,
		NotificationPrefs: allNotificationsEnabled(),
		UpdatedAt:         time.Now(),
	}
	return nil
}

// ============ Mock BlacklistRepository ============

type MockBlacklistRepository struct {
	entries   map[string]*models.BlacklistEntry
	createErr error
	getErr    error
	deleteErr error
	existsErr error
	updateErr error
	searchErr error
	nextID    int
}

func NewMockBlacklistRepository() *MockBlacklistRepository {
	return &MockBlacklistRepository{
		entries: make(map[string]*models.BlacklistEntry),
		nextID:  1,
	}
}

func (m *MockBlacklistRepository) Create(entry *models.BlacklistEntry) error {
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.entries[entry.Symbol]; exists {
		return repository.ErrBlacklistEntryExists
	}
	entry.ID = m.nextID
	m.nextID++
	entry.CreatedAt = time.Now()
	m.entries[entry.Symbol] = entry
	return nil
}

func (m *MockBlacklistRepository) GetAll() ([]*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := make([]*models.BlacklistEntry, 0, len(m.entries))
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result, nil
}

func (m *MockBlacklistRepository) Symbols() ([]string, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	symbols := make([]string, 0, len(m.entries))
	for symbol := range m.entries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (m *MockBlacklistRepository) GetBySymbol(symbol string) (*models.BlacklistEntry, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if entry, exists := m.entries[strings.ToUpper(symbol)]; exists {
		return entry, nil
	}
	return nil, repository.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistRepository) Delete(symbol string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	symbol = strings.ToUpper(symbol)
	if _, exists := m.entries[symbol]; !exists {
		return repository.ErrBlacklistEntryNotFound
	}
	delete(m.entries, symbol)
	return nil
}

func (m *MockBlacklistRepository) Exists(symbol string) (bool, error) {
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, exists := m.entries[strings.ToUpper(symbol)]
	return exists, nil
}

func (m *MockBlacklistRepository) UpdateReason(symbol, reason string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if entry, exists := m.entries[strings.ToUpper(symbol)]; exists {
		entry.Reason = reason
		return nil
	}
	return repository.ErrBlacklistEntryNotFound
}

func (m *MockBlacklistRepository) Count() (int, error) {
	if m.getErr != nil {
		return 0, m.getErr
	}
	return len(m.entries), nil
}

func (m *MockBlacklistRepository) DeleteAll() error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.entries = make(map[string]*models.BlacklistEntry)
	return nil
}

func (m *MockBlacklistRepository) Search(query string) ([]*models.BlacklistEntry, error) {
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var result []*models.BlacklistEntry
	for symbol, entry := range m.entries {
		if strings.Contains(strings.ToLower(symbol), strings.ToLower(query)) {
			result = append(result, entry)
		}
	}
	return result, nil
}

// ============ Mock Gateway ============

// MockGateway - управляемый шлюз площадки для тестов сервисного слоя
type MockGateway struct {
	name       string
	balance    float64
	connectErr error
	balanceErr error
	closed     bool
	connected  bool
}

func NewMockGateway(name string, balance float64) *MockGateway {
	return &MockGateway{name: name, balance: balance}
}

func (g *MockGateway) Connect(apiKey, secret, passphrase string) error {
	if g.connectErr != nil {
		return g.connectErr
	}
	g.connected = true
	return nil
}

func (g *MockGateway) Name() string { return g.name }

func (g *MockGateway) SubmitOrder(ctx context.Context, req models.OrderRequest) (*models.OrderAck, error) {
	return &models.OrderAck{OrderID: "mock-order", ClientID: req.ClientID}, nil
}

func (g *MockGateway) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (g *MockGateway) Balance(ctx context.Context) (float64, error) {
	if g.balanceErr != nil {
		return 0, g.balanceErr
	}
	return g.balance, nil
}

func (g *MockGateway) OpenOrders(ctx context.Context, symbol string) ([]exchange.OpenOrder, error) {
	return nil, nil
}

func (g *MockGateway) Positions(ctx context.Context) ([]exchange.Position, error) {
	return nil, nil
}

func (g *MockGateway) SubscribeQuotes(symbol string, callback func(models.Quote)) error { return nil }

func (g *MockGateway) SubscribeFills(callback func(models.Fill)) error { return nil }

func (g *MockGateway) Close() error {
	g.closed = true
	g.connected = false
	return nil
}

// mockGatewayFactory возвращает фабрику, отдающую заранее созданный шлюз
func mockGatewayFactory(gw *MockGateway) func(string, *zap.Logger) (exchange.Gateway, error) {
	return func(name string, log *zap.Logger) (exchange.Gateway, error) {
		return gw, nil
	}
}

// ============ Mock BotEngine ============

type MockBotEngine struct {
	registered map[int]*models.StrategyConfig
	runtimes   map[int]models.StrategyRuntime
	started    []int
	paused     []int
	closed     []int
	autoModes  map[int]bool

	registerErr error
	removeErr   error
	startErr    error
	pauseErr    error
	paramsErr   error
	autoErr     error
	closeErr    error
	orderErr    error

	lastOrderID string
}

func NewMockBotEngine() *MockBotEngine {
	return &MockBotEngine{
		registered:  make(map[int]*models.StrategyConfig),
		runtimes:    make(map[int]models.StrategyRuntime),
		autoModes:   make(map[int]bool),
		lastOrderID: "mock-order-id",
	}
}

func (m *MockBotEngine) RegisterStrategy(cfg *models.StrategyConfig) error {
	if m.registerErr != nil {
		return m.registerErr
	}
	m.registered[cfg.ID] = cfg
	m.runtimes[cfg.ID] = models.StrategyRuntime{
		StrategyID: cfg.ID,
		State:      models.StateIdle,
	}
	return nil
}

func (m *MockBotEngine) RemoveStrategy(id int, force bool) error {
	if m.removeErr != nil {
		return m.removeErr
	}
	delete(m.registered, id)
	delete(m.runtimes, id)
	return nil
}

func (m *MockBotEngine) StartStrategy(id int) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.started = append(m.started, id)
	return nil
}

func (m *MockBotEngine) PauseStrategy(id int) error {
	if m.pauseErr != nil {
		return m.pauseErr
	}
	m.paused = append(m.paused, id)
	return nil
}

func (m *MockBotEngine) SetParameters(id int, upd models.StrategyParametersUpdate) error {
	if m.paramsErr != nil {
		return m.paramsErr
	}
	return nil
}

func (m *MockBotEngine) SetAutoMode(id int, auto bool) error {
	if m.autoErr != nil {
		return m.autoErr
	}
	m.autoModes[id] = auto
	return nil
}

func (m *MockBotEngine) ManualClose(id int) error {
	if m.closeErr != nil {
		return m.closeErr
	}
	m.closed = append(m.closed, id)
	return nil
}

func (m *MockBotEngine) ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error) {
	if m.orderErr != nil {
		return "", m.orderErr
	}
	return m.lastOrderID, nil
}

func (m *MockBotEngine) StrategyRuntime(id int) (models.StrategyRuntime, bool) {
	rt, ok := m.runtimes[id]
	return rt, ok
}

// SetState задаёт состояние runtime для тестов
func (m *MockBotEngine) SetState(id int, state string) {
	rt := m.runtimes[id]
	rt.StrategyID = id
	rt.State = state
	m.runtimes[id] = rt
}

// ============ Mock Broadcasters ============

type MockStatsBroadcaster struct {
	updates []*models.Stats
}

func NewMockStatsBroadcaster() *MockStatsBroadcaster {
	return &MockStatsBroadcaster{
		updates: make([]*models.Stats, 0),
	}
}

func (m *MockStatsBroadcaster) BroadcastStatsUpdate(stats *models.Stats) {
	m.updates = append(m.updates, stats)
}

type MockBalanceBroadcaster struct {
	updates  map[string]float64
	allCalls int
}

func NewMockBalanceBroadcaster() *MockBalanceBroadcaster {
	return &MockBalanceBroadcaster{
		updates: make(map[string]float64),
	}
}

func (m *MockBalanceBroadcaster) BroadcastBalanceUpdate(exchangeName string, balance float64) {
	m.updates[exchangeName] = balance
}

func (m *MockBalanceBroadcaster) BroadcastAllBalances(balances map[string]float64) {
	m.allCalls++
}

// ============ Mock Screener ============

type MockScreener struct {
	blocked map[string]string
}

func NewMockScreener() *MockScreener {
	return &MockScreener{blocked: make(map[string]string)}
}

func (m *MockScreener) Block(symbol, reason string) {
	m.blocked[strings.ToUpper(symbol)] = reason
}

func (m *MockScreener) Blocked(symbol string) (string, bool) {
	reason, ok := m.blocked[strings.ToUpper(symbol)]
	return reason, ok
}
