package postgres

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

// AlertStore implements monitor.RuleSource and monitor.AlertSink on the
// alert_rules and alerts tables. Rules are operator-managed and only
// ever read here.
type AlertStore struct {
	db DB
}

// NewAlertStore creates an AlertStore.
func NewAlertStore(db DB) *AlertStore {
	return &AlertStore{db: db}
}

const activeRulesSQL = `
SELECT id, rule_type, direction, threshold, threshold_kind
FROM alert_rules
WHERE active
ORDER BY id`

// ActiveRules loads the active rule set.
func (s *AlertStore) ActiveRules(ctx context.Context) ([]monitor.AlertRule, error) {
	rows, err := s.db.Query(ctx, activeRulesSQL)
	if err != nil {
		return nil, monitor.Persistence("query alert rules", err)
	}
	defer rows.Close()

	var rules []monitor.AlertRule
	for rows.Next() {
		rule := monitor.AlertRule{Active: true}
		var threshold decimal.Decimal
		if err := rows.Scan(&rule.ID, &rule.Type, &rule.Direction, &threshold, &rule.ThresholdKind); err != nil {
			return nil, monitor.Persistence("scan alert rule", err)
		}
		rule.Threshold = threshold
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, monitor.Persistence("iterate alert rules", err)
	}
	return rules, nil
}

const insertAlertSQL = `
INSERT INTO alerts (asin, rule_id, message, previous_value, current_value, change, snapshot_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

// RecordEvents appends triggered alert events. Deduplication is left to
// the operator-facing layer.
func (s *AlertStore) RecordEvents(ctx context.Context, events []monitor.AlertEvent) error {
	for _, ev := range events {
		_, err := s.db.Exec(ctx, insertAlertSQL,
			ev.ASIN,
			ev.RuleID,
			ev.Message,
			ev.PreviousValue,
			ev.CurrentValue,
			ev.Change,
			ev.SnapshotDate,
		)
		if err != nil {
			return monitor.Persistence("insert alert", err)
		}
	}
	return nil
}
