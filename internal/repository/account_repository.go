package repository

import (
	"database/sql"
	"errors"
	"time"

	"crossarb/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound = errors.New("exchange account not found")
	ErrAccountExists   = errors.New("exchange account already exists")
)

// AccountRepository - работа с таблицей exchange_accounts
//
// API ключи хранятся зашифрованными (AES-256-GCM), расшифровка
// происходит на уровне сервиса перед подключением шлюза.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `id, name, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at`

func scanAccount(row interface{ Scan(...interface{}) error }) (*models.ExchangeAccount, error) {
	account := &models.ExchangeAccount{}
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.APIKey,
		&account.SecretKey,
		&account.Passphrase,
		&account.Connected,
		&account.Balance,
		&account.LastError,
		&account.UpdatedAt,
		&account.CreatedAt,
	)
	return account, err
}

// Create создает новый аккаунт биржи
func (r *AccountRepository) Create(account *models.ExchangeAccount) error {
	query := `
		INSERT INTO exchange_accounts (name, api_key, secret_key, passphrase, connected, balance, last_error, updated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	err := r.db.QueryRow(
		query,
		account.Name,
		account.APIKey,
		account.SecretKey,
		account.Passphrase,
		account.Connected,
		account.Balance,
		account.LastError,
		account.UpdatedAt,
		account.CreatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(id int) (*models.ExchangeAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM exchange_accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetByName возвращает аккаунт по имени биржи (bybit, binance, ...)
func (r *AccountRepository) GetByName(name string) (*models.ExchangeAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM exchange_accounts WHERE name = $1`

	account, err := scanAccount(r.db.QueryRow(query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return account, nil
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll() ([]*models.ExchangeAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM exchange_accounts ORDER BY name`
	return r.queryAccounts(query)
}

// GetConnected возвращает только подключенные аккаунты
func (r *AccountRepository) GetConnected() ([]*models.ExchangeAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM exchange_accounts WHERE connected = true ORDER BY name`
	return r.queryAccounts(query)
}

func (r *AccountRepository) queryAccounts(query string, args ...interface{}) ([]*models.ExchangeAccount, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.ExchangeAccount
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// Update обновляет данные аккаунта. Имя биржи неизменяемо
func (r *AccountRepository) Update(account *models.ExchangeAccount) error {
	query := `
		UPDATE exchange_accounts
		SET api_key = $1, secret_key = $2, passphrase = $3, connected = $4, balance = $5, last_error = $6, updated_at = $7
		WHERE id = $8`

	account.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		query,
		account.APIKey,
		account.SecretKey,
		account.Passphrase,
		account.Connected,
		account.Balance,
		account.LastError,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// UpdateBalance обновляет баланс аккаунта
func (r *AccountRepository) UpdateBalance(id int, balance float64) error {
	query := `UPDATE exchange_accounts SET balance = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, balance, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// UpdateBalanceByName обновляет баланс по имени биржи
func (r *AccountRepository) UpdateBalanceByName(name string, balance float64) error {
	query := `UPDATE exchange_accounts SET balance = $1, updated_at = $2 WHERE name = $3`

	result, err := r.db.Exec(query, balance, time.Now(), name)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// SetConnected обновляет флаг подключения
func (r *AccountRepository) SetConnected(id int, connected bool) error {
	query := `UPDATE exchange_accounts SET connected = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, connected, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// SetLastError записывает последнюю ошибку аккаунта
func (r *AccountRepository) SetLastError(id int, errorMessage string) error {
	query := `UPDATE exchange_accounts SET last_error = $1, updated_at = $2 WHERE id = $3`

	result, err := r.db.Exec(query, errorMessage, time.Now(), id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// Delete удаляет аккаунт
func (r *AccountRepository) Delete(id int) error {
	result, err := r.db.Exec(`DELETE FROM exchange_accounts WHERE id = $1`, id)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// DeleteByName удаляет аккаунт по имени биржи
func (r *AccountRepository) DeleteByName(name string) error {
	result, err := r.db.Exec(`DELETE FROM exchange_accounts WHERE name = $1`, name)
	if err != nil {
		return err
	}

	return requireRow(result, ErrAccountNotFound)
}

// CountConnected возвращает количество подключенных аккаунтов
func (r *AccountRepository) CountConnected() (int, error) {
	var count int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM exchange_accounts WHERE connected = true`).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
