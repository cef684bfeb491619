package handlers

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"crossarb/internal/models"
	"crossarb/internal/service"
)

// Sentinel errors used by handler tests to simulate failures.
var (
	ErrMockDatabase = errors.New("mock database error")
	ErrMockService  = errors.New("mock service error")
)

// ============ MockStrategyService ============

// MockStrategyService is an in-memory implementation of
// service.StrategyServiceInterface for handler tests.
type MockStrategyService struct {
	mu         sync.RWMutex
	strategies map[int]*models.StrategyConfig
	runtimes   map[int]*models.StrategyRuntime
	nextID     int
	orderID    string

	createErr error
	getErr    error
	updateErr error
	deleteErr error
	startErr  error
	pauseErr  error
	autoErr   error
	closeErr  error
	orderErr  error

	// captured call arguments
	lastForce bool
	lastAuto  bool
}

func NewMockStrategyService() *MockStrategyService {
	return &MockStrategyService{
		strategies: make(map[int]*models.StrategyConfig),
		runtimes:   make(map[int]*models.StrategyRuntime),
		nextID:     1,
		orderID:    "mock-order-1",
	}
}

// SetError configures an error for the given operation.
func (m *MockStrategyService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "create":
		m.createErr = err
	case "get":
		m.getErr = err
	case "update":
		m.updateErr = err
	case "delete":
		m.deleteErr = err
	case "start":
		m.startErr = err
	case "pause":
		m.pauseErr = err
	case "auto":
		m.autoErr = err
	case "close":
		m.closeErr = err
	case "order":
		m.orderErr = err
	}
}

// AddStrategy seeds a strategy directly, bypassing validation.
func (m *MockStrategyService) AddStrategy(cfg *models.StrategyConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.ID == 0 {
		cfg.ID = m.nextID
	}
	if cfg.ID >= m.nextID {
		m.nextID = cfg.ID + 1
	}
	m.strategies[cfg.ID] = cfg
}

// SetRuntime seeds an engine runtime snapshot for a strategy.
func (m *MockStrategyService) SetRuntime(id int, rt *models.StrategyRuntime) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runtimes[id] = rt
}

func (m *MockStrategyService) CreateStrategy(ctx context.Context, cfg *models.StrategyConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	cfg.ID = m.nextID
	m.nextID++
	cfg.Status = models.StrategyStatusPaused
	m.strategies[cfg.ID] = cfg
	return nil
}

func (m *MockStrategyService) GetStrategy(ctx context.Context, id int) (*models.StrategyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	cfg, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	return cfg, nil
}

func (m *MockStrategyService) GetAllStrategies(ctx context.Context) ([]*models.StrategyConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	configs := make([]*models.StrategyConfig, 0, len(m.strategies))
	for _, cfg := range m.strategies {
		configs = append(configs, cfg)
	}
	sort.Slice(configs, func(i, j int) bool { return configs[i].ID < configs[j].ID })
	return configs, nil
}

func (m *MockStrategyService) GetStrategyWithRuntime(ctx context.Context, id int) (*service.StrategyWithRuntime, error) {
	cfg, err := m.GetStrategy(ctx, id)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &service.StrategyWithRuntime{Config: cfg, Runtime: m.runtimes[id]}, nil
}

func (m *MockStrategyService) GetStrategyRuntime(id int) *models.StrategyRuntime {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runtimes[id]
}

func (m *MockStrategyService) UpdateStrategy(ctx context.Context, id int, upd models.StrategyParametersUpdate) (*models.StrategyConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	cfg, ok := m.strategies[id]
	if !ok {
		return nil, service.ErrStrategyNotFound
	}
	if upd.OpenThreshold != nil {
		cfg.OpenThreshold = *upd.OpenThreshold
	}
	if upd.CloseThreshold != nil {
		cfg.CloseThreshold = *upd.CloseThreshold
	}
	if upd.OrderSize != nil {
		cfg.OrderSize = *upd.OrderSize
	}
	if upd.MaxChaseCount != nil {
		cfg.MaxChaseCount = *upd.MaxChaseCount
	}
	if upd.TradeTimeoutSec != nil {
		cfg.TradeTimeoutSec = *upd.TradeTimeoutSec
	}
	return cfg, nil
}

func (m *MockStrategyService) DeleteStrategy(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.strategies[id]; !ok {
		return service.ErrStrategyNotFound
	}
	delete(m.strategies, id)
	delete(m.runtimes, id)
	return nil
}

func (m *MockStrategyService) StartStrategy(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	cfg, ok := m.strategies[id]
	if !ok {
		return service.ErrStrategyNotFound
	}
	cfg.Status = models.StrategyStatusActive
	return nil
}

func (m *MockStrategyService) PauseStrategy(ctx context.Context, id int, forceClose bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastForce = forceClose
	if m.pauseErr != nil {
		return m.pauseErr
	}
	cfg, ok := m.strategies[id]
	if !ok {
		return service.ErrStrategyNotFound
	}
	cfg.Status = models.StrategyStatusPaused
	return nil
}

func (m *MockStrategyService) SetAutoMode(ctx context.Context, id int, auto bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAuto = auto
	if m.autoErr != nil {
		return m.autoErr
	}
	cfg, ok := m.strategies[id]
	if !ok {
		return service.ErrStrategyNotFound
	}
	cfg.AutoMode = auto
	return nil
}

func (m *MockStrategyService) ManualClose(ctx context.Context, id int) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closeErr != nil {
		return m.closeErr
	}
	if _, ok := m.strategies[id]; !ok {
		return service.ErrStrategyNotFound
	}
	return nil
}

func (m *MockStrategyService) ManualOrder(ctx context.Context, account, symbol, side string, price, size float64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.orderErr != nil {
		return "", m.orderErr
	}
	return m.orderID, nil
}

// ============ MockAccountService ============

// MockAccountService is an in-memory implementation of
// service.AccountServiceInterface for handler tests.
type MockAccountService struct {
	mu       sync.RWMutex
	accounts map[string]*models.ExchangeAccount
	balances map[string]float64

	connectErr    error
	disconnectErr error
	balanceErr    error
	listErr       error
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		accounts: make(map[string]*models.ExchangeAccount),
		balances: make(map[string]float64),
	}
}

// SetError configures an error for the given operation.
func (m *MockAccountService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "connect":
		m.connectErr = err
	case "disconnect":
		m.disconnectErr = err
	case "balance":
		m.balanceErr = err
	case "list":
		m.listErr = err
	}
}

// AddAccount seeds an account directly.
func (m *MockAccountService) AddAccount(account *models.ExchangeAccount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.Name] = account
	m.balances[account.Name] = account.Balance
}

func (m *MockAccountService) ConnectAccount(ctx context.Context, name, apiKey, secretKey, passphrase string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connectErr != nil {
		return m.connectErr
	}
	if acc, ok := m.accounts[name]; ok && acc.Connected {
		return service.ErrAccountAlreadyConnected
	}
	m.accounts[name] = &models.ExchangeAccount{Name: name, Connected: true}
	return nil
}

func (m *MockAccountService) DisconnectAccount(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnectErr != nil {
		return m.disconnectErr
	}
	acc, ok := m.accounts[name]
	if !ok || !acc.Connected {
		return service.ErrAccountNotConnected
	}
	acc.Connected = false
	return nil
}

func (m *MockAccountService) UpdateBalance(ctx context.Context, name string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.balanceErr != nil {
		return 0, m.balanceErr
	}
	acc, ok := m.accounts[name]
	if !ok || !acc.Connected {
		return 0, service.ErrAccountNotConnected
	}
	return m.balances[name], nil
}

func (m *MockAccountService) UpdateAllBalances(ctx context.Context) map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[string]float64)
	for name, acc := range m.accounts {
		if acc.Connected {
			result[name] = m.balances[name]
		}
	}
	return result
}

func (m *MockAccountService) GetAllAccounts() ([]*models.ExchangeAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	accounts := make([]*models.ExchangeAccount, 0, len(m.accounts))
	for _, acc := range m.accounts {
		accounts = append(accounts, acc)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (m *MockAccountService) GetAccountByName(name string) (*models.ExchangeAccount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acc, ok := m.accounts[name]
	if !ok {
		return nil, service.ErrAccountNotConnected
	}
	return acc, nil
}

// ============ MockNotificationService ============

// MockNotificationService is an in-memory implementation of
// service.NotificationServiceInterface for handler tests.
type MockNotificationService struct {
	mu            sync.RWMutex
	notifications []*models.Notification

	getErr   error
	clearErr error

	// captured call arguments
	lastTypes []string
	lastLimit int
}

func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

// SetError configures an error for the given operation.
func (m *MockNotificationService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "get":
		m.getErr = err
	case "clear":
		m.clearErr = err
	}
}

// AddNotification seeds a notification directly.
func (m *MockNotificationService) AddNotification(notif *models.Notification) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notif)
}

func (m *MockNotificationService) GetNotifications(types []string, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTypes = types
	m.lastLimit = limit
	if m.getErr != nil {
		return nil, m.getErr
	}
	result := m.notifications
	if len(types) > 0 {
		result = nil
		for _, n := range m.notifications {
			for _, t := range types {
				if n.Type == t {
					result = append(result, n)
					break
				}
			}
		}
	}
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (m *MockNotificationService) ClearNotifications() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.clearErr != nil {
		return m.clearErr
	}
	m.notifications = nil
	return nil
}

func (m *MockNotificationService) CreateNotification(notif *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, notif)
	return nil
}

func (m *MockNotificationService) GetNotificationCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.notifications), nil
}

// ============ MockStatsService ============

// MockStatsService is an in-memory implementation of
// service.StatsServiceInterface for handler tests.
type MockStatsService struct {
	mu    sync.RWMutex
	stats *models.Stats
	top   []models.StrategyStat

	getErr   error
	topErr   error
	resetErr error

	resetCalled bool
	lastMetric  string
	lastLimit   int
}

func NewMockStatsService() *MockStatsService {
	return &MockStatsService{stats: &models.Stats{}}
}

// SetError configures an error for the given operation.
func (m *MockStatsService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "get":
		m.getErr = err
	case "top":
		m.topErr = err
	case "reset":
		m.resetErr = err
	}
}

// SetStats seeds the stats snapshot.
func (m *MockStatsService) SetStats(stats *models.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = stats
}

// SetTopStrategies seeds the top-strategies rating.
func (m *MockStatsService) SetTopStrategies(top []models.StrategyStat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.top = top
}

func (m *MockStatsService) GetStats() (*models.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.stats, nil
}

func (m *MockStatsService) GetTopStrategies(metric string, limit int) ([]models.StrategyStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastMetric = metric
	m.lastLimit = limit
	if m.topErr != nil {
		return nil, m.topErr
	}
	return m.top, nil
}

func (m *MockStatsService) ResetStats() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.resetCalled = true
	m.stats = &models.Stats{}
	return nil
}

// ============ MockBlacklistService ============

// MockBlacklistService is an in-memory implementation of
// service.BlacklistServiceInterface for handler tests.
type MockBlacklistService struct {
	mu      sync.RWMutex
	entries map[string]*models.BlacklistEntry
	nextID  int

	addErr    error
	getErr    error
	removeErr error
	updateErr error
}

func NewMockBlacklistService() *MockBlacklistService {
	return &MockBlacklistService{
		entries: make(map[string]*models.BlacklistEntry),
		nextID:  1,
	}
}

// SetError configures an error for the given operation.
func (m *MockBlacklistService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "add":
		m.addErr = err
	case "get":
		m.getErr = err
	case "remove":
		m.removeErr = err
	case "update":
		m.updateErr = err
	}
}

// AddEntry seeds a blacklist entry directly.
func (m *MockBlacklistService) AddEntry(entry *models.BlacklistEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.ID == 0 {
		entry.ID = m.nextID
		m.nextID++
	}
	m.entries[entry.Symbol] = entry
}

func (m *MockBlacklistService) AddToBlacklist(symbol, reason string) (*models.BlacklistEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return nil, m.addErr
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, service.ErrBlacklistSymbolEmpty
	}
	if _, ok := m.entries[symbol]; ok {
		return nil, service.ErrBlacklistSymbolExists
	}
	entry := &models.BlacklistEntry{ID: m.nextID, Symbol: symbol, Reason: reason, CreatedAt: time.Now()}
	m.nextID++
	m.entries[symbol] = entry
	return entry, nil
}

func (m *MockBlacklistService) GetBlacklist() ([]*models.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	entries := make([]*models.BlacklistEntry, 0, len(m.entries))
	for _, entry := range m.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	return entries, nil
}

func (m *MockBlacklistService) RemoveFromBlacklist(symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.removeErr != nil {
		return m.removeErr
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := m.entries[symbol]; !ok {
		return service.ErrBlacklistEntryNotFound
	}
	delete(m.entries, symbol)
	return nil
}

func (m *MockBlacklistService) GetBySymbol(symbol string) (*models.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return nil, service.ErrBlacklistEntryNotFound
	}
	return entry, nil
}

func (m *MockBlacklistService) IsBlacklisted(symbol string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[strings.ToUpper(symbol)]
	return ok, nil
}

func (m *MockBlacklistService) Blocked(symbol string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[strings.ToUpper(symbol)]
	if !ok {
		return "", false
	}
	return entry.Reason, true
}

func (m *MockBlacklistService) UpdateReason(symbol, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	entry, ok := m.entries[strings.ToUpper(strings.TrimSpace(symbol))]
	if !ok {
		return service.ErrBlacklistEntryNotFound
	}
	entry.Reason = reason
	return nil
}

func (m *MockBlacklistService) Search(query string) ([]*models.BlacklistEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	query = strings.ToUpper(query)
	var result []*models.BlacklistEntry
	for _, entry := range m.entries {
		if strings.Contains(entry.Symbol, query) {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (m *MockBlacklistService) Symbols() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	symbols := make([]string, 0, len(m.entries))
	for symbol := range m.entries {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols, nil
}

func (m *MockBlacklistService) GetCount() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

func (m *MockBlacklistService) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*models.BlacklistEntry)
	return nil
}

// ============ MockSettingsService ============

// MockSettingsService is an in-memory implementation of
// service.SettingsServiceInterface for handler tests.
type MockSettingsService struct {
	mu       sync.RWMutex
	settings *models.Settings

	getErr    error
	updateErr error
	resetErr  error
}

func NewMockSettingsService() *MockSettingsService {
	return &MockSettingsService{
		settings: &models.Settings{
			ID:        1,
			AutoStart: true,
			NotificationPrefs: models.NotificationPreferences{
				Open: true, Close: true, Chase: true, Unilateral: true,
				Timeout: true, RiskViolation: true, APIError: true, Pause: true,
			},
		},
	}
}

// SetError configures an error for the given operation.
func (m *MockSettingsService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch operation {
	case "get":
		m.getErr = err
	case "update":
		m.updateErr = err
	case "reset":
		m.resetErr = err
	}
}

func (m *MockSettingsService) GetSettings() (*models.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.settings, nil
}

func (m *MockSettingsService) UpdateSettings(req *service.UpdateSettingsRequest) (*models.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return nil, m.updateErr
	}
	if req.MaxConcurrentStrategies != nil && *req.MaxConcurrentStrategies < 1 {
		return nil, service.ErrInvalidMaxConcurrentStrategies
	}
	if req.AutoStart != nil {
		m.settings.AutoStart = *req.AutoStart
	}
	if req.ClearMaxConcurrentStrategies {
		m.settings.MaxConcurrentStrategies = nil
	} else if req.MaxConcurrentStrategies != nil {
		m.settings.MaxConcurrentStrategies = req.MaxConcurrentStrategies
	}
	if req.NotificationPrefs != nil {
		m.settings.NotificationPrefs = *req.NotificationPrefs
	}
	return m.settings, nil
}

func (m *MockSettingsService) GetNotificationPrefs() (*models.NotificationPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefs := m.settings.NotificationPrefs
	return &prefs, nil
}

func (m *MockSettingsService) GetMaxConcurrentStrategies() (*int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settings.MaxConcurrentStrategies, nil
}

func (m *MockSettingsService) ResetToDefaults() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	m.settings = &models.Settings{
		ID:        1,
		AutoStart: true,
		NotificationPrefs: models.NotificationPreferences{
			Open: true, Close: true, Chase: true, Unilateral: true,
			Timeout: true, RiskViolation: true, APIError: true, Pause: true,
		},
	}
	return nil
}

// ============ MockRiskControl ============

// MockRiskControl is an in-memory implementation of RiskControl
// for risk handler tests.
type MockRiskControl struct {
	mu      sync.RWMutex
	summary models.RiskSummary
	rules   map[string]bool

	enableCalls  int
	disableCalls int
	resetCalls   int
	lastLimits   map[string]float64
	lastRule     string
	lastEnabled  bool
}

func NewMockRiskControl() *MockRiskControl {
	return &MockRiskControl{
		summary: models.RiskSummary{Enabled: true},
		rules:   make(map[string]bool),
	}
}

// AddRule registers a known rule name.
func (m *MockRiskControl) AddRule(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules[name] = true
}

// SetSummary seeds the summary snapshot.
func (m *MockRiskControl) SetSummary(summary models.RiskSummary) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summary = summary
}

func (m *MockRiskControl) Summary() models.RiskSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.summary
}

func (m *MockRiskControl) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enableCalls++
	m.summary.Enabled = true
}

func (m *MockRiskControl) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disableCalls++
	m.summary.Enabled = false
}

func (m *MockRiskControl) SetRuleEnabled(name string, enabled bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[name]; !ok {
		return false
	}
	m.rules[name] = enabled
	m.lastRule = name
	m.lastEnabled = enabled
	return true
}

func (m *MockRiskControl) ConfigureDefaultRules(limits map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimits = limits
	for name := range limits {
		m.rules[name] = true
	}
}

func (m *MockRiskControl) ResetDailyCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetCalls++
}

// Compile-time interface checks.
var _ service.StrategyServiceInterface = (*MockStrategyService)(nil)
var _ service.AccountServiceInterface = (*MockAccountService)(nil)
var _ service.NotificationServiceInterface = (*MockNotificationService)(nil)
var _ service.StatsServiceInterface = (*MockStatsService)(nil)
var _ service.BlacklistServiceInterface = (*MockBlacklistService)(nil)
var _ service.SettingsServiceInterface = (*MockSettingsService)(nil)
var _ RiskControl = (*MockRiskControl)(nil)
