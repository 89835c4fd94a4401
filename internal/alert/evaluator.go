// Package alert evaluates operator rules against consecutive snapshots
// and produces alert events.
package alert

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/daniel7634/amzwatch/internal/monitor"
)

var hundred = decimal.NewFromInt(100)

// Evaluate compares latest against previous under the given rules and
// returns the triggered events. Metrics are checked in a fixed order
// (price, rank, rating) and a metric is skipped entirely when either
// snapshot lacks it. Inactive rules never trigger.
func Evaluate(latest, previous monitor.Snapshot, rules []monitor.AlertRule) []monitor.AlertEvent {
	var events []monitor.AlertEvent
	for _, typ := range []monitor.RuleType{monitor.RulePrice, monitor.RuleRank, monitor.RuleRating} {
		for _, rule := range rules {
			if !rule.Active || rule.Type != typ {
				continue
			}
			if ev, ok := evaluateRule(latest, previous, rule); ok {
				events = append(events, ev)
			}
		}
	}
	return events
}

func evaluateRule(latest, previous monitor.Snapshot, rule monitor.AlertRule) (monitor.AlertEvent, bool) {
	switch rule.Type {
	case monitor.RulePrice:
		return evaluatePrice(latest, previous, rule)
	case monitor.RuleRank:
		return evaluateRank(latest, previous, rule)
	case monitor.RuleRating:
		return evaluateRating(latest, previous, rule)
	default:
		return monitor.AlertEvent{}, false
	}
}

func evaluatePrice(latest, previous monitor.Snapshot, rule monitor.AlertRule) (monitor.AlertEvent, bool) {
	if latest.Price == nil || previous.Price == nil || previous.Price.IsZero() {
		return monitor.AlertEvent{}, false
	}
	cur, prev := *latest.Price, *previous.Price

	delta := cur.Sub(prev)
	change := delta
	if rule.ThresholdKind == monitor.ThresholdPercentage {
		change = delta.Div(prev).Mul(hundred)
	}
	if !triggered(change, rule) {
		return monitor.AlertEvent{}, false
	}

	var suffix string
	if rule.ThresholdKind == monitor.ThresholdPercentage {
		suffix = fmt.Sprintf("(%s%%)", signed(change))
	} else {
		suffix = fmt.Sprintf("($%s)", signed(change))
	}
	return monitor.AlertEvent{
		ASIN:          latest.ASIN,
		RuleID:        rule.ID,
		Message:       fmt.Sprintf("price moved from $%s to $%s %s", prev.StringFixed(2), cur.StringFixed(2), suffix),
		PreviousValue: prev,
		CurrentValue:  cur,
		Change:        change,
		SnapshotDate:  latest.SnapshotDate,
	}, true
}

// evaluateRank inverts the sign of the change so that climbing the
// ranking (a numerically smaller rank) reads as an increase.
func evaluateRank(latest, previous monitor.Snapshot, rule monitor.AlertRule) (monitor.AlertEvent, bool) {
	lr, pr := latest.PrimaryRanking(), previous.PrimaryRanking()
	if lr == nil || pr == nil || pr.Rank == 0 {
		return monitor.AlertEvent{}, false
	}
	cur := decimal.NewFromInt(int64(lr.Rank))
	prev := decimal.NewFromInt(int64(pr.Rank))

	delta := prev.Sub(cur)
	change := delta
	if rule.ThresholdKind == monitor.ThresholdPercentage {
		change = delta.Div(prev).Mul(hundred)
	}
	if !triggered(change, rule) {
		return monitor.AlertEvent{}, false
	}

	var suffix string
	if rule.ThresholdKind == monitor.ThresholdPercentage {
		suffix = fmt.Sprintf("(%s%%)", signed(change))
	} else {
		suffix = fmt.Sprintf("(%s positions)", signed(change))
	}
	return monitor.AlertEvent{
		ASIN:          latest.ASIN,
		RuleID:        rule.ID,
		Message:       fmt.Sprintf("rank moved from #%d to #%d in %s %s", pr.Rank, lr.Rank, lr.Category, suffix),
		PreviousValue: prev,
		CurrentValue:  cur,
		Change:        change,
		SnapshotDate:  latest.SnapshotDate,
	}, true
}

// evaluateRating always compares absolute deltas; percentage thresholds
// on a bounded 1-5 scale are not meaningful.
func evaluateRating(latest, previous monitor.Snapshot, rule monitor.AlertRule) (monitor.AlertEvent, bool) {
	if latest.Rating == nil || previous.Rating == nil {
		return monitor.AlertEvent{}, false
	}
	cur, prev := *latest.Rating, *previous.Rating

	change := cur.Sub(prev)
	if !triggered(change, rule) {
		return monitor.AlertEvent{}, false
	}
	return monitor.AlertEvent{
		ASIN:          latest.ASIN,
		RuleID:        rule.ID,
		Message:       fmt.Sprintf("rating moved from %s to %s (%s)", prev.String(), cur.String(), signed(change)),
		PreviousValue: prev,
		CurrentValue:  cur,
		Change:        change,
		SnapshotDate:  latest.SnapshotDate,
	}, true
}

func triggered(change decimal.Decimal, rule monitor.AlertRule) bool {
	switch rule.Direction {
	case monitor.DirectionIncrease:
		return change.GreaterThanOrEqual(rule.Threshold)
	case monitor.DirectionDecrease:
		return change.LessThanOrEqual(rule.Threshold.Neg())
	case monitor.DirectionAny:
		return change.Abs().GreaterThanOrEqual(rule.Threshold)
	default:
		return false
	}
}

func signed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if d.Sign() > 0 {
		return "+" + s
	}
	return s
}
