// Package risk enforces the copy trader's exposure limits and tracks the
// positions it opens, keyed by the venue's token_id.
package risk

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// Engine evaluates domain.RiskLimits against domain.RiskState. Every call
// must run on the copy-trade evaluator task (§5's shared-resource policy:
// the risk engine is logically single-threaded); the mutex here is a
// defensive boundary, not a concurrency design.
type Engine struct {
	mu     sync.Mutex
	limits domain.RiskLimits
	state  domain.RiskState
}

// New builds an Engine with zeroed accounting for the current UTC day.
func New(limits domain.RiskLimits) *Engine {
	if limits.BlockedMarkets == nil {
		limits.BlockedMarkets = make(map[string]bool)
	}
	return &Engine{
		limits: limits,
		state: domain.RiskState{
			TotalExposureUSD: decimal.Zero,
			DailyPnLUSD:      decimal.Zero,
			Positions:        make(map[string]decimal.Decimal),
			DayStart:         todayMidnightUTC(time.Now()),
		},
	}
}

func todayMidnightUTC(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// resetIfNewDay compares state.DayStart to today's midnight UTC and, if
// it has fallen behind, resets the daily tallies (invariant §8.6). Caller
// must hold mu.
func (e *Engine) resetIfNewDay(now time.Time) {
	today := todayMidnightUTC(now)
	if e.state.DayStart.Before(today) {
		e.state.DayStart = today
		e.state.DailyPnLUSD = decimal.Zero
		e.state.DailyOrders = 0
	}
}

// CheckOrder evaluates a prospective order of usd dollars against marketID
// and category, returning the first matching rejection reason in the
// fixed precedence §4.6 defines. The daily-loss check is prospective: it
// treats usd as the order's worst-case loss, matching the "would exceed"
// framing used for exposure and position checks.
func (e *Engine) CheckOrder(marketID string, usd decimal.Decimal, category string) (allowed bool, reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetIfNewDay(time.Now())

	if e.state.KillSwitch {
		return false, fmt.Sprintf("kill switch active: %s", e.state.KillSwitchReason)
	}
	if usd.GreaterThan(e.limits.MaxSingleOrderUSD) {
		return false, fmt.Sprintf("order too large: %s > max single order %s", usd, e.limits.MaxSingleOrderUSD)
	}
	if usd.LessThan(e.limits.MinCopySizeUSD) {
		return false, fmt.Sprintf("order too small: %s < min copy size %s", usd, e.limits.MinCopySizeUSD)
	}
	if e.state.TotalExposureUSD.Add(usd).GreaterThan(e.limits.MaxTotalExposureUSD) {
		return false, fmt.Sprintf("would exceed total exposure: %s + %s > %s", e.state.TotalExposureUSD, usd, e.limits.MaxTotalExposureUSD)
	}
	marketExposure := e.state.Positions[marketID]
	if marketExposure.Add(usd).GreaterThan(e.limits.MaxPositionSizeUSD) {
		return false, fmt.Sprintf("would exceed per-market position: %s + %s > %s", marketExposure, usd, e.limits.MaxPositionSizeUSD)
	}
	if e.state.DailyPnLUSD.Sub(usd).LessThan(e.limits.MaxDailyLossUSD.Neg()) {
		return false, fmt.Sprintf("daily loss exceeded: pnl %s minus order %s", e.state.DailyPnLUSD, usd)
	}
	if e.state.DailyOrders >= e.limits.MaxDailyOrders {
		return false, fmt.Sprintf("daily order count exceeded: %d >= %d", e.state.DailyOrders, e.limits.MaxDailyOrders)
	}
	if e.limits.BlockedMarkets[marketID] {
		return false, fmt.Sprintf("market blocked: %s", marketID)
	}
	if e.limits.AllowedCategories != nil && !e.limits.AllowedCategories[category] {
		return false, fmt.Sprintf("category disallowed: %s", category)
	}
	return true, ""
}

// RecordOrder accounts for a placed order before its fill is known:
// exposure and the per-market position both grow by usd, and the daily
// order counter increments.
func (e *Engine) RecordOrder(marketID string, usd decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetIfNewDay(time.Now())

	e.state.TotalExposureUSD = e.state.TotalExposureUSD.Add(usd)
	e.state.Positions[marketID] = e.state.Positions[marketID].Add(usd)
	e.state.DailyOrders++
}

// RecordFill accounts for a fill against a previously recorded order:
// exposure and the per-market position both shrink by usd, floored at
// zero (invariant §8.4), and pnl is added to the daily tally. If the
// daily loss cap is crossed, the kill switch auto-activates with the
// crossing value in the reason.
func (e *Engine) RecordFill(marketID string, usd, pnl decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetIfNewDay(time.Now())

	e.state.TotalExposureUSD = floorZero(e.state.TotalExposureUSD.Sub(usd))
	e.state.Positions[marketID] = floorZero(e.state.Positions[marketID].Sub(usd))
	e.state.DailyPnLUSD = e.state.DailyPnLUSD.Add(pnl)

	if !e.state.KillSwitch && e.state.DailyPnLUSD.LessThan(e.limits.MaxDailyLossUSD.Neg()) {
		e.state.KillSwitch = true
		e.state.KillSwitchReason = fmt.Sprintf("daily loss cap crossed: daily_pnl=%s max=%s", e.state.DailyPnLUSD, e.limits.MaxDailyLossUSD.Neg())
		slog.Warn("risk: kill switch auto-activated", "reason", e.state.KillSwitchReason)
	}
}

func floorZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ActivateKillSwitch trips the kill switch manually, rejecting every
// subsequent order until Deactivate is called.
func (e *Engine) ActivateKillSwitch(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.KillSwitch = true
	e.state.KillSwitchReason = reason
	slog.Info("risk: kill switch activated", "reason", reason)
}

// DeactivateKillSwitch clears a manual or auto-tripped kill switch.
func (e *Engine) DeactivateKillSwitch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state.KillSwitch = false
	e.state.KillSwitchReason = ""
	slog.Info("risk: kill switch deactivated")
}

// State returns a snapshot of the engine's accounting, for observability.
func (e *Engine) State() domain.RiskState {
	e.mu.Lock()
	defer e.mu.Unlock()

	positions := make(map[string]decimal.Decimal, len(e.state.Positions))
	for k, v := range e.state.Positions {
		positions[k] = v
	}
	s := e.state
	s.Positions = positions
	return s
}
