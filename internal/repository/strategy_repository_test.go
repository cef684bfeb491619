package repository

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"crossarb/internal/models"
)

// ============================================================
// StrategyRepository Tests
// ============================================================

var strategyTestColumns = []string{"id", "name", "symbol", "account_a", "account_b", "open_threshold", "close_threshold", "order_size", "max_chase_count", "trade_timeout_seconds", "status", "auto_mode", "trades_count", "total_pnl", "created_at", "updated_at"}

func TestNewStrategyRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewStrategyRepository(db)
	if repo == nil {
		t.Fatal("NewStrategyRepository returned nil")
	}
	if repo.db != db {
		t.Error("db not set correctly")
	}
}

func TestStrategyRepositoryCreate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *models.StrategyConfig
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success - name and status defaulted",
			cfg: &models.StrategyConfig{
				Symbol:          "BTCUSDT",
				AccountA:        "bybit",
				AccountB:        "binance",
				OpenThreshold:   0.5,
				CloseThreshold:  0.3,
				OrderSize:       0.01,
				MaxChaseCount:   5,
				TradeTimeoutSec: 3.0,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WithArgs("arb_bybit_binance", "BTCUSDT", "bybit", "binance", 0.5, 0.3, 0.01, 5, 3.0, models.StrategyStatusPaused, false, 0, float64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
			},
			expectError: nil,
		},
		{
			name: "duplicate key error",
			cfg: &models.StrategyConfig{
				Symbol:   "BTCUSDT",
				AccountA: "bybit",
				AccountB: "binance",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WithArgs("arb_bybit_binance", "BTCUSDT", "bybit", "binance", float64(0), float64(0), float64(0), 0, float64(0), models.StrategyStatusPaused, false, 0, float64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnError(errors.New("duplicate key value violates unique constraint"))
			},
			expectError: ErrStrategyExists,
		},
		{
			name: "with active status and auto mode",
			cfg: &models.StrategyConfig{
				Name:            "arb_bitget_gate",
				Symbol:          "ETHUSDT",
				AccountA:        "bitget",
				AccountB:        "gate",
				OpenThreshold:   1.5,
				CloseThreshold:  0.8,
				OrderSize:       0.1,
				MaxChaseCount:   3,
				TradeTimeoutSec: 5.0,
				Status:          models.StrategyStatusActive,
				AutoMode:        true,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO strategies`).
					WithArgs("arb_bitget_gate", "ETHUSDT", "bitget", "gate", 1.5, 0.8, 0.1, 3, 5.0, models.StrategyStatusActive, true, 0, float64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
			},
			expectError: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			err = repo.Create(tt.cfg)

			if tt.expectError != nil {
				if err == nil {
					t.Errorf("expected error %v, got nil", tt.expectError)
				} else if tt.expectError == ErrStrategyExists && !errors.Is(err, ErrStrategyExists) {
					t.Errorf("expected ErrStrategyExists, got %v", err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if tt.cfg.ID == 0 {
					t.Error("expected ID to be set after Create")
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStrategyRepositoryGetByID(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expected    *models.StrategyConfig
		expectError error
	}{
		{
			name: "success",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				rows := sqlmock.NewRows(strategyTestColumns).
					AddRow(1, "arb_bybit_binance", "BTCUSDT", "bybit", "binance", 0.5, 0.3, 0.01, 5, 3.0, "active", true, 10, 100.5, now, now)
				mock.ExpectQuery(`SELECT .+ FROM strategies WHERE id = \$1`).
					WithArgs(1).
					WillReturnRows(rows)
			},
			expected: &models.StrategyConfig{
				ID:       1,
				Name:     "arb_bybit_binance",
				Symbol:   "BTCUSDT",
				AccountA: "bybit",
				AccountB: "binance",
				Status:   "active",
				AutoMode: true,
			},
			expectError: nil,
		},
		{
			name: "not found",
			id:   999,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM strategies WHERE id = \$1`).
					WithArgs(999).
					WillReturnError(sql.ErrNoRows)
			},
			expected:    nil,
			expectError: ErrStrategyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			result, err := repo.GetByID(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				if result.Symbol != tt.expected.Symbol {
					t.Errorf("expected Symbol=%s, got %s", tt.expected.Symbol, result.Symbol)
				}
				if result.AccountA != tt.expected.AccountA {
					t.Errorf("expected AccountA=%s, got %s", tt.expected.AccountA, result.AccountA)
				}
				if result.Status != tt.expected.Status {
					t.Errorf("expected Status=%s, got %s", tt.expected.Status, result.Status)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStrategyRepositoryGetBySymbol(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(strategyTestColumns).
		AddRow(1, "arb_bybit_binance", "ETHUSDT", "bybit", "binance", 1.5, 0.8, 0.1, 3, 5.0, "paused", false, 5, 50.0, now, now).
		AddRow(2, "arb_bitget_gate", "ETHUSDT", "bitget", "gate", 1.2, 0.6, 0.1, 3, 5.0, "active", true, 2, 10.0, now, now)
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE symbol = \$1 ORDER BY created_at DESC`).
		WithArgs("ETHUSDT").
		WillReturnRows(rows)

	repo := NewStrategyRepository(db)
	result, err := repo.GetBySymbol("ETHUSDT")

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 strategies, got %d", len(result))
	}
	if result[0].Symbol != "ETHUSDT" {
		t.Errorf("expected Symbol=ETHUSDT, got %s", result[0].Symbol)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryGetAll(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(strategyTestColumns).
		AddRow(1, "arb_bybit_binance", "BTCUSDT", "bybit", "binance", 0.5, 0.3, 0.01, 5, 3.0, "active", true, 10, 100.5, now, now).
		AddRow(2, "arb_bitget_gate", "ETHUSDT", "bitget", "gate", 1.5, 0.8, 0.1, 3, 5.0, "paused", false, 5, 50.0, now, now)
	mock.ExpectQuery(`SELECT .+ FROM strategies ORDER BY created_at DESC`).
		WillReturnRows(rows)

	repo := NewStrategyRepository(db)
	result, err := repo.GetAll()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 2 {
		t.Errorf("expected 2 strategies, got %d", len(result))
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryGetActive(t *testing.T) {
	now := time.Now()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows(strategyTestColumns).
		AddRow(1, "arb_bybit_binance", "BTCUSDT", "bybit", "binance", 0.5, 0.3, 0.01, 5, 3.0, "active", true, 10, 100.5, now, now)
	mock.ExpectQuery(`SELECT .+ FROM strategies WHERE status = \$1`).
		WithArgs(models.StrategyStatusActive).
		WillReturnRows(rows)

	repo := NewStrategyRepository(db)
	result, err := repo.GetActive()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if len(result) != 1 {
		t.Errorf("expected 1 active strategy, got %d", len(result))
	}
	if result[0].Status != models.StrategyStatusActive {
		t.Errorf("expected Status=active, got %s", result[0].Status)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryUpdate(t *testing.T) {
	tests := []struct {
		name        string
		cfg         *models.StrategyConfig
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			cfg: &models.StrategyConfig{
				ID:              1,
				Name:            "arb_bybit_binance",
				Symbol:          "BTCUSDT",
				AccountA:        "bybit",
				AccountB:        "binance",
				OpenThreshold:   0.6,
				CloseThreshold:  0.4,
				OrderSize:       0.02,
				MaxChaseCount:   4,
				TradeTimeoutSec: 4.0,
				Status:          "active",
				AutoMode:        true,
				TradesCount:     10,
				TotalPnl:        200.0,
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE strategies SET`).
					WithArgs("arb_bybit_binance", "BTCUSDT", "bybit", "binance", 0.6, 0.4, 0.02, 4, 4.0, "active", true, 10, 200.0, sqlmock.AnyArg(), 1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: nil,
		},
		{
			name: "not found",
			cfg: &models.StrategyConfig{
				ID:     999,
				Symbol: "UNKNOWN",
			},
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE strategies SET`).
					WithArgs("", "UNKNOWN", "", "", float64(0), float64(0), float64(0), 0, float64(0), "", false, 0, float64(0), sqlmock.AnyArg(), 999).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrStrategyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			err = repo.Update(tt.cfg)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStrategyRepositoryUpdateParams(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE strategies SET open_threshold = \$1, close_threshold = \$2, order_size = \$3, max_chase_count = \$4, trade_timeout_seconds = \$5, updated_at = \$6 WHERE id = \$7`).
		WithArgs(0.25, 0.15, 0.05, 3, 5.0, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewStrategyRepository(db)
	err = repo.UpdateParams(1, models.StrategyParameters{
		OpenThreshold:   0.25,
		CloseThreshold:  0.15,
		OrderSize:       0.05,
		MaxChaseCount:   3,
		TradeTimeoutSec: 5.0,
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryUpdateStatus(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		status      string
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError bool
	}{
		{
			name:   "success - set active",
			id:     1,
			status: models.StrategyStatusActive,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE strategies SET status = \$1, updated_at = \$2 WHERE id = \$3`).
					WithArgs(models.StrategyStatusActive, sqlmock.AnyArg(), 1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: false,
		},
		{
			name:   "success - set paused",
			id:     1,
			status: models.StrategyStatusPaused,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE strategies SET status = \$1, updated_at = \$2 WHERE id = \$3`).
					WithArgs(models.StrategyStatusPaused, sqlmock.AnyArg(), 1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: false,
		},
		{
			name:        "invalid status",
			id:          1,
			status:      "invalid",
			mockSetup:   func(mock sqlmock.Sqlmock) {},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			err = repo.UpdateStatus(tt.id, tt.status)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStrategyRepositoryUpdateAutoMode(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE strategies SET auto_mode = \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(true, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewStrategyRepository(db)
	err = repo.UpdateAutoMode(1, true)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryRecordTradeResult(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE strategies SET trades_count = trades_count \+ 1, total_pnl = total_pnl \+ \$1, updated_at = \$2 WHERE id = \$3`).
		WithArgs(25.5, sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewStrategyRepository(db)
	err = repo.RecordTradeResult(1, 25.5)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryResetStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`UPDATE strategies SET trades_count = 0, total_pnl = 0, updated_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewStrategyRepository(db)
	err = repo.ResetStats(1)

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryDelete(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		mockSetup   func(mock sqlmock.Sqlmock)
		expectError error
	}{
		{
			name: "success",
			id:   1,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM strategies WHERE id = \$1`).
					WithArgs(1).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			expectError: nil,
		},
		{
			name: "not found",
			id:   999,
			mockSetup: func(mock sqlmock.Sqlmock) {
				mock.ExpectExec(`DELETE FROM strategies WHERE id = \$1`).
					WithArgs(999).
					WillReturnResult(sqlmock.NewResult(0, 0))
			},
			expectError: ErrStrategyNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			tt.mockSetup(mock)

			repo := NewStrategyRepository(db)
			err = repo.Delete(tt.id)

			if tt.expectError != nil {
				if !errors.Is(err, tt.expectError) {
					t.Errorf("expected error %v, got %v", tt.expectError, err)
				}
			} else {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestStrategyRepositoryCount(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(5)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM strategies`).
		WillReturnRows(rows)

	repo := NewStrategyRepository(db)
	count, err := repo.Count()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Errorf("expected count=5, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryCountActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"count"}).AddRow(3)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM strategies WHERE status = \$1`).
		WithArgs(models.StrategyStatusActive).
		WillReturnRows(rows)

	repo := NewStrategyRepository(db)
	count, err := repo.CountActive()

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Errorf("expected count=3, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestStrategyRepositoryExists(t *testing.T) {
	tests := []struct {
		name     string
		symbol   string
		accountA string
		accountB string
		expected bool
	}{
		{"exists", "BTCUSDT", "bybit", "binance", true},
		{"not exists", "UNKNOWN", "bybit", "binance", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			if err != nil {
				t.Fatalf("failed to create mock: %v", err)
			}
			defer db.Close()

			rows := sqlmock.NewRows([]string{"exists"}).AddRow(tt.expected)
			mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM strategies WHERE symbol = \$1 AND account_a = \$2 AND account_b = \$3\)`).
				WithArgs(tt.symbol, tt.accountA, tt.accountB).
				WillReturnRows(rows)

			repo := NewStrategyRepository(db)
			exists, err := repo.Exists(tt.symbol, tt.accountA, tt.accountB)

			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if exists != tt.expected {
				t.Errorf("expected exists=%v, got %v", tt.expected, exists)
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unfulfilled expectations: %v", err)
			}
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"duplicate key error", errors.New("duplicate key value violates unique constraint"), true},
		{"postgres error code 23505", errors.New("ERROR: 23505 duplicate key"), true},
		{"other error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isUniqueViolation(tt.err)
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
