//go:build integration

// Package integration exercises the bot through its outer surfaces: the
// HTTP API with the full handler/service/repository stack underneath, the
// websocket hub, and the Postgres schema. Everything runs against a real
// test database; when none is reachable the suite skips itself.
//
// The integration build tag keeps these out of the regular unit test run:
//
//	go test -tags=integration ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"crossarb/internal/api"
	"crossarb/internal/repository"
	"crossarb/internal/service"
	"crossarb/internal/websocket"
)

// testEncryptionKey is a throwaway 32-byte AES key for account credentials
const testEncryptionKey = "0123456789abcdef0123456789abcdef"

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB       *sql.DB
	Router   *mux.Router
	Server   *httptest.Server
	Hub      *websocket.Hub
	Repos    *TestRepositories
	Services *TestServices
	Cleanup  func()
}

// TestRepositories contains all repository instances for testing
type TestRepositories struct {
	Account      *repository.AccountRepository
	Strategy     *repository.StrategyRepository
	Order        *repository.OrderRepository
	Trade        *repository.TradeRepository
	Notification *repository.NotificationRepository
	Settings     *repository.SettingsRepository
	Blacklist    *repository.BlacklistRepository
}

// TestServices contains all service instances for testing
type TestServices struct {
	Account      *service.AccountService
	Stats        *service.StatsService
	Settings     *service.SettingsService
	Notification *service.NotificationService
	Blacklist    *service.BlacklistService
}

// testDSN assembles the test database DSN from TEST_DB_* environment
// variables. Defaults point at a local Postgres so the suite can run
// without any configuration.
func testDSN() (driver, dsn string) {
	envOr := func(key, def string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return def
	}

	driver = envOr("TEST_DB_DRIVER", "postgres")
	dsn = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		envOr("TEST_DB_HOST", "localhost"),
		envOr("TEST_DB_PORT", "5432"),
		envOr("TEST_DB_USER", "postgres"),
		envOr("TEST_DB_PASSWORD", "postgres"),
		envOr("TEST_DB_NAME", "crossarb_test"),
		envOr("TEST_DB_SSLMODE", "disable"),
	)
	return driver, dsn
}

// SetupTestDB opens a connection to the test database. When the database
// is unreachable the calling test is skipped, not failed: unit suites must
// stay green on machines without Postgres.
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	driver, dsn := testDSN()
	db, err := sql.Open(driver, dsn)
	if err != nil {
		t.Skipf("Skipping integration test: cannot open database: %v", err)
		return nil, func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		t.Skipf("Skipping integration test: database unreachable: %v", err)
		return nil, func() {}
	}

	// Пул держим маленьким, чтобы параллельные тесты не исчерпали
	// соединения локального Postgres
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(10 * time.Minute)

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("closing test database: %v", err)
		}
	}
}

// SetupTestServer creates a complete test server with all components.
// Services are wired the same way cmd/server does it, except the engine:
// the strategy service needs a running engine and live exchange gateways,
// so API tests cover the engine-independent services only.
func SetupTestServer(t *testing.T) *TestServer {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	// Apply the production schema
	if err := repository.InitSchema(db); err != nil {
		t.Skipf("Skipping integration test: cannot initialize schema: %v", err)
		return nil
	}

	// Start clean: a crashed previous run may have left rows behind
	cleanupTestTables(db)

	zlog := zap.NewNop()

	// Create WebSocket hub
	hub := websocket.NewHub(zlog)
	go hub.Run()

	// Create repositories
	repos := &TestRepositories{
		Account:      repository.NewAccountRepository(db),
		Strategy:     repository.NewStrategyRepository(db),
		Order:        repository.NewOrderRepository(db),
		Trade:        repository.NewTradeRepository(db),
		Notification: repository.NewNotificationRepository(db),
		Settings:     repository.NewSettingsRepository(db),
		Blacklist:    repository.NewBlacklistRepository(db),
	}

	// Create services
	accountSvc := service.NewAccountService(repos.Account, repos.Strategy, testEncryptionKey, zlog)
	services := &TestServices{
		Account:      accountSvc,
		Stats:        service.NewStatsService(repos.Trade, repos.Order, repos.Strategy, zlog),
		Settings:     service.NewSettingsService(repos.Settings),
		Notification: service.NewNotificationService(repos.Notification, repos.Settings),
		Blacklist:    service.NewBlacklistService(repos.Blacklist),
	}
	// Same hub wiring as in production: notifications are pushed by the
	// engine, the notification service only keeps the journal
	services.Account.SetWebSocketHub(hub)
	services.Stats.SetWebSocketHub(hub)

	// Setup router
	router := api.SetupRoutes(api.Dependencies{
		AccountService:      services.Account,
		NotificationService: services.Notification,
		StatsService:        services.Stats,
		BlacklistService:    services.Blacklist,
		SettingsService:     services.Settings,
		Hub:                 hub,
		Log:                 zlog,
	})

	// Create test server
	server := httptest.NewServer(router)

	cleanup := func() {
		server.Close()
		hub.Stop()
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestServer{
		DB:       db,
		Router:   router,
		Server:   server,
		Hub:      hub,
		Repos:    repos,
		Services: services,
		Cleanup:  cleanup,
	}
}

// cleanupTestTables truncates all test tables.
// The settings singleton is kept: it is reset through the API instead.
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"trades",
		"orders",
		"notifications",
		"blacklist",
		"strategies",
		"exchange_accounts",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", tableName))
	return err
}
