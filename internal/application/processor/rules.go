package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// RuleEngine evaluates every observed-significant trade against the cached
// alert rules and writes one alerts row per match.
type RuleEngine struct {
	alerts ports.AlertStore
	rules  *RuleCache
}

// NewRuleEngine builds a RuleEngine.
func NewRuleEngine(alerts ports.AlertStore, rules *RuleCache) *RuleEngine {
	return &RuleEngine{alerts: alerts, rules: rules}
}

// Evaluate checks every enabled rule against et and inserts one alert row
// per match. Evaluation errors for one rule do not stop the others.
func (e *RuleEngine) Evaluate(ctx context.Context, et domain.EnrichedTrade) error {
	now := time.Now()
	var firstErr error
	for _, rule := range e.rules.Rules() {
		if !rule.Enabled {
			continue
		}
		if !e.matches(rule, et) {
			continue
		}
		if err := e.alerts.InsertAlert(ctx, et.TradeID, rule.RuleType, rule.Severity, now); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("processor.RuleEngine.Evaluate: insert alert: %w", err)
			}
		}
	}
	return firstErr
}

func (e *RuleEngine) matches(rule ports.AlertRule, et domain.EnrichedTrade) bool {
	switch rule.RuleType {
	case "whale":
		if !et.IsWhale {
			return false
		}
	case "watchlist_activity":
		entry, ok := e.rules.Watchlist(et.TraderAddress)
		if !ok {
			return false
		}
		if entry.MinTradeSize > 0 && et.USDValue < entry.MinTradeSize {
			return false
		}
	case "insider_activity":
		if !et.IsInsiderSuspect {
			return false
		}
	default:
		// "generic" rules match purely on the shared conditions below.
	}
	return matchesConditions(rule.Conditions, et)
}

func matchesConditions(c ports.AlertConditions, et domain.EnrichedTrade) bool {
	if c.MinUSDValue > 0 && et.USDValue < c.MinUSDValue {
		return false
	}
	if len(c.Categories) > 0 && !c.Categories[et.Category] {
		return false
	}
	if len(c.Hours) > 0 && !c.Hours[et.ExecutedAt.UTC().Hour()] {
		return false
	}
	if len(c.Sides) > 0 && !c.Sides[et.Side] {
		return false
	}
	if c.MinScore > 0 && float64(et.TraderInsiderScore) < c.MinScore {
		return false
	}
	return true
}
