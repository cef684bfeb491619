package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config - вся конфигурация сервиса, собранная из окружения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Bot      BotConfig
	Risk     RiskConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig - где слушает HTTP API и нужен ли TLS
type ServerConfig struct {
	Host     string
	Port     int
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig - подключение к PostgreSQL
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// RedisConfig - настройки кэша котировок.
// Пустой Addr выключает кэш: бот работает только на памяти.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	QuoteTTL time.Duration
}

// SecurityConfig - ключ AES-256, которым шифруются API-ключи бирж
type SecurityConfig struct {
	EncryptionKey string
}

// BotConfig - настройки торгового ядра и фоновых задач
type BotConfig struct {
	// Очереди движка (0 = подобрать под машину)
	NumShards int // горутины обработки котировок
	QueueSize int // буферы котировок и исполнений

	// Поведение при старте
	AutoStart    bool // запускать активные стратегии из БД
	RecoveryScan bool // сверка позиций и ордеров после рестарта

	// Периодические задачи для UI (на торговлю не влияют)
	BalanceUpdateFreq time.Duration // обновление балансов аккаунтов
	StatsUpdateFreq   time.Duration // трансляция статусов в WebSocket

	// Журнал уведомлений: сколько последних записей оставлять
	// при периодической подрезке
	NotificationKeep int
}

// RiskConfig - лимиты риск-движка.
// Значения из окружения перекрываются YAML-файлом, если тот задан.
type RiskConfig struct {
	Enabled       bool
	File          string // путь к YAML с лимитами
	MaxPosition   float64
	MaxOrderSize  float64
	MaxDailyLoss  float64
	MaxChaseCount float64
}

// LoggingConfig - уровень, формат и файл логов
type LoggingConfig struct {
	Level  string
	Format string
	File   string // путь к файлу логов с ротацией; пусто - stdout
}

// Load собирает конфигурацию из переменных окружения.
// Пустая переменная равнозначна отсутствующей.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:     envString("SERVER_HOST", "0.0.0.0"),
			Port:     envInt("SERVER_PORT", 8080),
			UseHTTPS: envBool("USE_HTTPS", false),
			CertFile: envString("CERT_FILE", ""),
			KeyFile:  envString("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   envString("DB_DRIVER", "postgres"),
			Host:     envString("DB_HOST", "localhost"),
			Port:     envInt("DB_PORT", 5432),
			User:     envString("DB_USER", "user"),
			Password: envString("DB_PASSWORD", "password"),
			Name:     envString("DB_NAME", "crossarb"),
			SSLMode:  envString("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     envString("REDIS_ADDR", ""),
			Password: envString("REDIS_PASSWORD", ""),
			DB:       envInt("REDIS_DB", 0),
			QuoteTTL: envDuration("REDIS_QUOTE_TTL", 30*time.Second),
		},
		Bot: BotConfig{
			NumShards: envInt("ENGINE_SHARDS", 0),
			QueueSize: envInt("ENGINE_QUEUE_SIZE", 0),

			AutoStart:    envBool("BOT_AUTO_START", true),
			RecoveryScan: envBool("RECOVERY_SCAN", true),

			BalanceUpdateFreq: envDuration("BALANCE_UPDATE_FREQ", 1*time.Minute),
			StatsUpdateFreq:   envDuration("STATS_UPDATE_FREQ", 5*time.Second),

			NotificationKeep: envInt("NOTIFICATION_KEEP", 1000),
		},
		Risk: RiskConfig{
			Enabled:       envBool("RISK_ENABLED", true),
			File:          envString("RISK_CONFIG_FILE", ""),
			MaxPosition:   envFloat("RISK_MAX_POSITION", 0),
			MaxOrderSize:  envFloat("RISK_MAX_ORDER_SIZE", 0),
			MaxDailyLoss:  envFloat("RISK_MAX_DAILY_LOSS", 0),
			MaxChaseCount: envFloat("RISK_MAX_CHASE_COUNT", 0),
		},
		Security: SecurityConfig{
			EncryptionKey: envString("ENCRYPTION_KEY", ""),
		},
		Logging: LoggingConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
			File:   envString("LOG_FILE", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate отсекает конфигурацию, с которой сервис не сможет работать
func (c *Config) validate() error {
	// Без ключа шифрования не прочитать API-ключи бирж из БД
	switch n := len(c.Security.EncryptionKey); {
	case n == 0:
		return errors.New("ENCRYPTION_KEY is required for encrypting API keys")
	case n != 32:
		return fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256, got %d", n)
	}

	checks := []struct {
		bad bool
		msg string
	}{
		{c.Server.Port < 1 || c.Server.Port > 65535,
			fmt.Sprintf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)},
		{c.Database.Port < 1 || c.Database.Port > 65535,
			fmt.Sprintf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)},
		{c.Bot.NumShards < 0,
			fmt.Sprintf("ENGINE_SHARDS cannot be negative, got %d", c.Bot.NumShards)},
		{c.Bot.QueueSize < 0,
			fmt.Sprintf("ENGINE_QUEUE_SIZE cannot be negative, got %d", c.Bot.QueueSize)},
		{c.Bot.NotificationKeep < 0,
			fmt.Sprintf("NOTIFICATION_KEEP cannot be negative, got %d", c.Bot.NotificationKeep)},
		{c.Bot.BalanceUpdateFreq <= 0,
			fmt.Sprintf("BALANCE_UPDATE_FREQ must be positive, got %v", c.Bot.BalanceUpdateFreq)},
		{c.Bot.StatsUpdateFreq <= 0,
			fmt.Sprintf("STATS_UPDATE_FREQ must be positive, got %v", c.Bot.StatsUpdateFreq)},
		{c.Risk.MaxPosition < 0,
			fmt.Sprintf("RISK_MAX_POSITION cannot be negative, got %v", c.Risk.MaxPosition)},
		{c.Risk.MaxOrderSize < 0,
			fmt.Sprintf("RISK_MAX_ORDER_SIZE cannot be negative, got %v", c.Risk.MaxOrderSize)},
		{c.Risk.MaxDailyLoss < 0,
			fmt.Sprintf("RISK_MAX_DAILY_LOSS cannot be negative, got %v", c.Risk.MaxDailyLoss)},
		{c.Risk.MaxChaseCount < 0,
			fmt.Sprintf("RISK_MAX_CHASE_COUNT cannot be negative, got %v", c.Risk.MaxChaseCount)},
	}
	for _, check := range checks {
		if check.bad {
			return errors.New(check.msg)
		}
	}
	return nil
}

// DSN возвращает строку подключения к базе
func (d DatabaseConfig) DSN() string {
	return d.dsn(true)
}

// DSNWithoutPassword - строка подключения без пароля, для логов
func (d DatabaseConfig) DSNWithoutPassword() string {
	return d.dsn(false)
}

func (d DatabaseConfig) dsn(withPassword bool) string {
	parts := []string{
		"host=" + d.Host,
		"port=" + strconv.Itoa(d.Port),
		"user=" + d.User,
	}
	if withPassword {
		parts = append(parts, "password="+d.Password)
	}
	parts = append(parts, "dbname="+d.Name, "sslmode="+d.SSLMode)
	return strings.Join(parts, " ")
}

// Чтение окружения: пустое значение или мусор откатываются к дефолту

func envString(key, def string) string {
	if raw := os.Getenv(key); raw != "" {
		return raw
	}
	return def
}

func envInt(key string, def int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.ParseBool(raw); err == nil {
			return v
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return def
}
