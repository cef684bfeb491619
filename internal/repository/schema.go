package repository

import (
	"database/sql"
	"fmt"
)

// Схема базы данных. Применяется при старте, все выражения идемпотентны,
// поэтому отдельный механизм миграций не нужен.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS strategies (
	id SERIAL PRIMARY KEY,
	name VARCHAR(120) NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	account_a VARCHAR(50) NOT NULL,
	account_b VARCHAR(50) NOT NULL,
	open_threshold DECIMAL(10, 4) NOT NULL,
	close_threshold DECIMAL(10, 4) NOT NULL,
	order_size DECIMAL(20, 8) NOT NULL,
	max_chase_count INT DEFAULT 5,
	trade_timeout_seconds DECIMAL(10, 3) DEFAULT 3.0,
	status VARCHAR(20) DEFAULT 'paused',
	auto_mode BOOLEAN DEFAULT false,
	trades_count INT DEFAULT 0,
	total_pnl DECIMAL(20, 8) DEFAULT 0,
	created_at TIMESTAMP DEFAULT NOW(),
	updated_at TIMESTAMP DEFAULT NOW(),
	UNIQUE (symbol, account_a, account_b)
);

CREATE INDEX IF NOT EXISTS idx_strategies_status ON strategies(status);
CREATE INDEX IF NOT EXISTS idx_strategies_symbol ON strategies(symbol);

CREATE TABLE IF NOT EXISTS exchange_accounts (
	id SERIAL PRIMARY KEY,
	name VARCHAR(50) UNIQUE NOT NULL,
	api_key TEXT NOT NULL DEFAULT '',
	secret_key TEXT NOT NULL DEFAULT '',
	passphrase TEXT DEFAULT '',
	connected BOOLEAN DEFAULT false,
	balance DECIMAL(20, 8) DEFAULT 0,
	last_error TEXT DEFAULT '',
	updated_at TIMESTAMP DEFAULT NOW(),
	created_at TIMESTAMP DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS trades (
	id SERIAL PRIMARY KEY,
	strategy_id INT,
	symbol VARCHAR(20) NOT NULL,
	direction VARCHAR(10) NOT NULL,
	pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
	chase_count INT DEFAULT 0,
	unilateral BOOLEAN DEFAULT false,
	opened_at TIMESTAMP NOT NULL DEFAULT NOW(),
	closed_at TIMESTAMP NOT NULL DEFAULT NOW(),
	created_at TIMESTAMP DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_id);
CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed_at);
CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);

CREATE TABLE IF NOT EXISTS orders (
	id SERIAL PRIMARY KEY,
	strategy_id INT,
	exchange VARCHAR(50) NOT NULL,
	symbol VARCHAR(20) NOT NULL,
	order_id VARCHAR(100) DEFAULT '',
	client_id VARCHAR(100) DEFAULT '',
	side VARCHAR(10) NOT NULL,
	type VARCHAR(20) DEFAULT 'limit',
	price DECIMAL(20, 8) DEFAULT 0,
	quantity DECIMAL(20, 8) NOT NULL,
	status VARCHAR(20) NOT NULL,
	chase BOOLEAN DEFAULT false,
	error_message TEXT DEFAULT '',
	created_at TIMESTAMP DEFAULT NOW(),
	filled_at TIMESTAMP
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_exchange_order_id
	ON orders(exchange, order_id) WHERE order_id <> '';
CREATE INDEX IF NOT EXISTS idx_orders_strategy ON orders(strategy_id);
CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS notifications (
	id SERIAL PRIMARY KEY,
	timestamp TIMESTAMP DEFAULT NOW(),
	type VARCHAR(50) NOT NULL,
	severity VARCHAR(10) DEFAULT 'info',
	strategy_id INT,
	message TEXT NOT NULL,
	meta JSONB DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_notifications_timestamp ON notifications(timestamp);
CREATE INDEX IF NOT EXISTS idx_notifications_type ON notifications(type);

CREATE TABLE IF NOT EXISTS blacklist (
	id SERIAL PRIMARY KEY,
	symbol VARCHAR(20) UNIQUE NOT NULL,
	reason TEXT DEFAULT '',
	created_at TIMESTAMP DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS settings (
	id INT PRIMARY KEY DEFAULT 1,
	auto_start BOOLEAN DEFAULT false,
	max_concurrent_strategies INT,
	notification_prefs JSONB DEFAULT '{"open":true,"close":true,"chase":true,"unilateral":true,"timeout":true,"risk_violation":true,"api_error":true,"pause":true}',
	updated_at TIMESTAMP DEFAULT NOW()
);
`

// InitSchema применяет схему и создает дефолтную запись настроек
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("schema migration: %w", err)
	}

	if _, err := db.Exec(`INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`); err != nil {
		return fmt.Errorf("failed to insert default settings: %w", err)
	}

	return nil
}
