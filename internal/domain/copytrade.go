package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyTradeLog is an audit row for every copy-trade evaluation decision,
// regardless of outcome.
type CopyTradeLog struct {
	ID             string
	SourceTrader   string
	SourceTradeID  string
	OurOrderID     string // "none" if no order was attempted
	MarketID       string
	ConditionID    string
	Side           Side
	SourceSize     decimal.Decimal
	CopySize       decimal.Decimal
	SourcePrice    decimal.Decimal
	OurPrice       decimal.Decimal
	TraderScore    int
	Status         string // executed | rejected | failed
	RejectionReason string
	CreatedAt      time.Time
}

// Copy-trade log status values.
const (
	CopyStatusExecuted = "executed"
	CopyStatusRejected = "rejected"
	CopyStatusFailed   = "failed"
)

// RiskLimits are the configurable bounds enforced by the risk engine. All
// monetary fields use decimal to mirror the original's Decimal-based
// arithmetic for order sizing and P&L.
type RiskLimits struct {
	MaxPositionSizeUSD  decimal.Decimal
	MaxTotalExposureUSD decimal.Decimal
	MaxSingleOrderUSD   decimal.Decimal
	MaxDailyLossUSD     decimal.Decimal
	MaxDailyOrders      int
	MinCopySizeUSD      decimal.Decimal
	MaxCopyFraction     decimal.Decimal
	MinTraderScore      int
	BlockedMarkets      map[string]bool
	AllowedCategories   map[string]bool // nil = no restriction
}

// RiskState is the mutable, per-day accounting the risk engine tracks.
// DayStart is reset to today's UTC midnight whenever a check observes it
// has fallen behind.
type RiskState struct {
	TotalExposureUSD decimal.Decimal
	DailyPnLUSD      decimal.Decimal
	DailyOrders      int
	DayStart         time.Time
	Positions        map[string]decimal.Decimal // market_id -> usd exposure

	KillSwitch       bool
	KillSwitchReason string
}

// TrackedPosition is a position held by the copy-trading engine, keyed by
// token_id (the CLOB-side identifier), distinct from the discovery-side
// domain.Position which is keyed by (address, condition_id, outcome_index).
type TrackedPosition struct {
	ID             string
	MarketID       string
	ConditionID    string
	TokenID        string
	Side           Side
	Size           decimal.Decimal
	AvgPrice       decimal.Decimal
	CurrentPrice   decimal.Decimal
	UnrealizedPnL  decimal.Decimal
	CopiedFrom     string // trader address, if this is a copy trade
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// UpdatePrice recomputes UnrealizedPnL for the given mark price:
// (current - avg) * size for BUY, negated for SELL.
func (p *TrackedPosition) UpdatePrice(price decimal.Decimal) {
	p.CurrentPrice = price
	diff := price.Sub(p.AvgPrice)
	if p.Side == SideSell {
		diff = diff.Neg()
	}
	p.UnrealizedPnL = diff.Mul(p.Size)
}
