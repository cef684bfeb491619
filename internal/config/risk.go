package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Ключи риск-лимитов. Совпадают с ключами YAML-файла и с именами
// встроенных правил риск-движка.
const (
	LimitMaxPosition   = "max_position"
	LimitMaxOrderSize  = "max_order_size"
	LimitMaxDailyLoss  = "max_daily_loss"
	LimitMaxChaseCount = "max_chase_count"
)

// Limits собирает карту риск-лимитов для риск-движка.
// База берётся из переменных окружения, поверх накладывается
// YAML-файл: заданный в файле лимит побеждает. Нулевые лимиты
// в итоговую карту не попадают - правило не регистрируется.
func (r RiskConfig) Limits() (map[string]float64, error) {
	limits := make(map[string]float64)
	if r.MaxPosition > 0 {
		limits[LimitMaxPosition] = r.MaxPosition
	}
	if r.MaxOrderSize > 0 {
		limits[LimitMaxOrderSize] = r.MaxOrderSize
	}
	if r.MaxDailyLoss > 0 {
		limits[LimitMaxDailyLoss] = r.MaxDailyLoss
	}
	if r.MaxChaseCount > 0 {
		limits[LimitMaxChaseCount] = r.MaxChaseCount
	}

	if r.File == "" {
		return limits, nil
	}

	fromFile, err := loadRiskFile(r.File)
	if err != nil {
		return nil, err
	}
	for key, value := range fromFile {
		if value > 0 {
			limits[key] = value
		}
	}
	return limits, nil
}

// loadRiskFile читает YAML-файл с лимитами.
//
// Формат плоский:
//
//	max_position: 0.5
//	max_order_size: 0.1
//	max_daily_loss: 200
//	max_chase_count: 5
func loadRiskFile(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read risk config file: %w", err)
	}

	var limits map[string]float64
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return nil, fmt.Errorf("cannot parse risk config file: %w", err)
	}

	for key := range limits {
		switch key {
		case LimitMaxPosition, LimitMaxOrderSize, LimitMaxDailyLoss, LimitMaxChaseCount:
		default:
			return nil, fmt.Errorf("unknown risk limit %q in %s", key, path)
		}
	}
	return limits, nil
}
