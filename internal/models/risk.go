package models

import "time"

// RiskEvent представляет зафиксированное нарушение риск-правила
type RiskEvent struct {
	Timestamp time.Time `json:"timestamp"`
	RuleName  string    `json:"rule_name"`
	CheckKind string    `json:"check_kind"` // order, trade, chase_order
	Account   string    `json:"account"`
	Reason    string    `json:"reason"`
}

// RiskRuleDetail представляет состояние одного риск-правила
type RiskRuleDetail struct {
	Name          string     `json:"name"`
	Enabled       bool       `json:"enabled"`
	Violations    int        `json:"violations"`
	LastViolation *time.Time `json:"last_violation,omitempty"`
}

// RiskSummary представляет сводку риск-менеджера для API
type RiskSummary struct {
	Enabled         bool             `json:"enabled"`
	TotalViolations int              `json:"total_violations"`
	ActiveRules     []string         `json:"active_rules"`     // имена включённых правил
	RecentEvents    []RiskEvent      `json:"recent_events"`    // за 24 часа, последние 10
	RuleDetails     []RiskRuleDetail `json:"rule_details"`     // в порядке регистрации
}

// Виды риск-проверок
const (
	RiskCheckOrder = "order"       // перед выставлением ордера
	RiskCheckTrade = "trade"       // после завершения цикла
	RiskCheckChase = "chase_order" // перед догоняющим ордером
)
