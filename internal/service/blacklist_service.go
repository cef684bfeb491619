package service

import (
	"errors"
	"strings"
	"sync"

	"crossarb/internal/models"
	"crossarb/internal/repository"
)

// Ошибки сервиса чёрного списка
var (
	ErrBlacklistSymbolEmpty   = errors.New("symbol cannot be empty")
	ErrBlacklistSymbolExists  = errors.New("symbol already in blacklist")
	ErrBlacklistEntryNotFound = errors.New("blacklist entry not found")
)

// BlacklistService управляет чёрным списком символов.
//
// Список обязателен к исполнению: сервис стратегий сверяется с ним при
// создании, движок - через скринер на каждом тике. Для горячего пути
// список целиком кэшируется в памяти (метод Blocked), кэш обновляется
// синхронно с каждым изменением.
type BlacklistService struct {
	blacklistRepo BlacklistRepositoryInterface

	// Кэш symbol -> reason
	mu      sync.RWMutex
	blocked map[string]string
}

// NewBlacklistService создаёт сервис с пустым кэшем. Кэш наполняется
// первым вызовом Reload.
func NewBlacklistService(blacklistRepo BlacklistRepositoryInterface) *BlacklistService {
	return &BlacklistService{
		blacklistRepo: blacklistRepo,
		blocked:       make(map[string]string),
	}
}

// canonicalSymbol приводит символ к форме хранения: верхний регистр без
// окружающих пробелов
func canonicalSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", ErrBlacklistSymbolEmpty
	}
	return symbol, nil
}

// Reload перечитывает список из БД в кэш. Вызывается при старте и после
// каждого изменения извне (например, прямой правки БД).
func (s *BlacklistService) Reload() error {
	entries, err := s.blacklistRepo.GetAll()
	if err != nil {
		return err
	}

	blocked := make(map[string]string, len(entries))
	for _, entry := range entries {
		blocked[entry.Symbol] = entry.Reason
	}

	s.mu.Lock()
	s.blocked = blocked
	s.mu.Unlock()

	return nil
}

// Blocked отвечает, заблокирован ли символ, и возвращает причину.
// Работает по кэшу, в БД не ходит - пригодно для горячего пути.
func (s *BlacklistService) Blocked(symbol string) (string, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	s.mu.RLock()
	reason, ok := s.blocked[symbol]
	s.mu.RUnlock()

	return reason, ok
}

// AddToBlacklist вносит символ в список и в кэш. Причина - свободная
// заметка оператора, может быть пустой. Занятый символ - ошибка
// ErrBlacklistSymbolExists независимо от регистра.
func (s *BlacklistService) AddToBlacklist(symbol, reason string) (*models.BlacklistEntry, error) {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return nil, err
	}

	entry := &models.BlacklistEntry{
		Symbol: symbol,
		Reason: strings.TrimSpace(reason),
	}

	// Уникальность обеспечивает БД: гонку двух одновременных добавлений
	// разрешает constraint, а не проверка перед вставкой
	if err := s.blacklistRepo.Create(entry); err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryExists) {
			return nil, ErrBlacklistSymbolExists
		}
		return nil, err
	}

	s.mu.Lock()
	s.blocked[entry.Symbol] = entry.Reason
	s.mu.Unlock()

	return entry, nil
}

// GetBlacklist возвращает все записи, новые сверху. Отсутствие записей -
// пустой срез, не nil: результат уходит прямо в JSON-ответ.
func (s *BlacklistService) GetBlacklist() ([]*models.BlacklistEntry, error) {
	entries, err := s.blacklistRepo.GetAll()
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.BlacklistEntry{}
	}
	return entries, nil
}

// RemoveFromBlacklist убирает символ из списка и из кэша.
func (s *BlacklistService) RemoveFromBlacklist(symbol string) error {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return err
	}

	if err := s.blacklistRepo.Delete(symbol); err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryNotFound) {
			return ErrBlacklistEntryNotFound
		}
		return err
	}

	s.mu.Lock()
	delete(s.blocked, symbol)
	s.mu.Unlock()

	return nil
}

// GetBySymbol возвращает запись по символу в любом регистре.
func (s *BlacklistService) GetBySymbol(symbol string) (*models.BlacklistEntry, error) {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return nil, err
	}

	entry, err := s.blacklistRepo.GetBySymbol(symbol)
	switch {
	case errors.Is(err, repository.ErrBlacklistEntryNotFound):
		return nil, ErrBlacklistEntryNotFound
	case err != nil:
		return nil, err
	}
	return entry, nil
}

// IsBlacklisted спрашивает БД напрямую, минуя кэш. На горячем пути
// используется Blocked.
func (s *BlacklistService) IsBlacklisted(symbol string) (bool, error) {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return false, err
	}
	return s.blacklistRepo.Exists(symbol)
}

// UpdateReason меняет заметку существующей записи и кэш.
func (s *BlacklistService) UpdateReason(symbol, reason string) error {
	symbol, err := canonicalSymbol(symbol)
	if err != nil {
		return err
	}
	reason = strings.TrimSpace(reason)

	if err := s.blacklistRepo.UpdateReason(symbol, reason); err != nil {
		if errors.Is(err, repository.ErrBlacklistEntryNotFound) {
			return ErrBlacklistEntryNotFound
		}
		return err
	}

	s.mu.Lock()
	s.blocked[symbol] = reason
	s.mu.Unlock()

	return nil
}

// Search ищет записи по фрагменту символа без учёта регистра. Пустой
// запрос эквивалентен полному списку.
func (s *BlacklistService) Search(query string) ([]*models.BlacklistEntry, error) {
	if query = strings.TrimSpace(query); query == "" {
		return s.GetBlacklist()
	}

	entries, err := s.blacklistRepo.Search(query)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*models.BlacklistEntry{}
	}
	return entries, nil
}

// Symbols возвращает компактный отсортированный список символов для
// скринера движка.
func (s *BlacklistService) Symbols() ([]string, error) {
	symbols, err := s.blacklistRepo.Symbols()
	if err != nil {
		return nil, err
	}
	if symbols == nil {
		symbols = []string{}
	}
	return symbols, nil
}

// GetCount возвращает число записей.
func (s *BlacklistService) GetCount() (int, error) {
	return s.blacklistRepo.Count()
}

// ClearAll удаляет все записи и сбрасывает кэш. Восстановления нет.
func (s *BlacklistService) ClearAll() error {
	if err := s.blacklistRepo.DeleteAll(); err != nil {
		return err
	}

	s.mu.Lock()
	s.blocked = make(map[string]string)
	s.mu.Unlock()

	return nil
}
