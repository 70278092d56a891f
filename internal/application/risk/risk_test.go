package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionSizeUSD:  d("1000"),
		MaxTotalExposureUSD: d("5000"),
		MaxSingleOrderUSD:   d("500"),
		MaxDailyLossUSD:     d("500"),
		MaxDailyOrders:      200,
		MinCopySizeUSD:      d("10"),
		BlockedMarkets:      map[string]bool{},
		AllowedCategories:   nil,
	}
}

func TestCheckOrder_Allows(t *testing.T) {
	e := New(testLimits())
	allowed, reason := e.CheckOrder("m1", d("100"), "politics")
	assert.True(t, allowed)
	assert.Empty(t, reason)
}

func TestCheckOrder_KillSwitchActive(t *testing.T) {
	e := New(testLimits())
	e.ActivateKillSwitch("manual stop")
	allowed, reason := e.CheckOrder("m1", d("100"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "kill switch")
}

func TestCheckOrder_TooLarge(t *testing.T) {
	e := New(testLimits())
	allowed, reason := e.CheckOrder("m1", d("600"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "too large")
}

func TestCheckOrder_TooSmall(t *testing.T) {
	e := New(testLimits())
	allowed, reason := e.CheckOrder("m1", d("1"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "too small")
}

func TestCheckOrder_ExceedsTotalExposure(t *testing.T) {
	e := New(testLimits())
	for i := 0; i < 10; i++ {
		e.RecordOrder("m1", d("500"))
	}
	allowed, reason := e.CheckOrder("m2", d("100"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "total exposure")
}

func TestCheckOrder_ExceedsPerMarketPosition(t *testing.T) {
	e := New(testLimits())
	e.RecordOrder("m1", d("950"))
	allowed, reason := e.CheckOrder("m1", d("100"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "per-market position")
}

// S2: prior daily_pnl = -499, max_daily_loss = 500, a new $50 order is
// rejected for daily loss — the check is prospective over the order's
// worst-case loss.
func TestCheckOrder_DailyLossExceeded_S2(t *testing.T) {
	e := New(testLimits())
	e.RecordFill("m1", d("0"), d("-499"))

	allowed, reason := e.CheckOrder("m1", d("50"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "daily loss")
}

func TestCheckOrder_DailyOrderCountExceeded(t *testing.T) {
	limits := testLimits()
	limits.MaxDailyOrders = 2
	e := New(limits)
	e.RecordOrder("m1", d("10"))
	e.RecordOrder("m1", d("10"))

	allowed, reason := e.CheckOrder("m2", d("10"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "daily order count")
}

func TestCheckOrder_MarketBlocked(t *testing.T) {
	limits := testLimits()
	limits.BlockedMarkets = map[string]bool{"bad-market": true}
	e := New(limits)

	allowed, reason := e.CheckOrder("bad-market", d("50"), "")
	assert.False(t, allowed)
	assert.Contains(t, reason, "blocked")
}

func TestCheckOrder_CategoryDisallowed(t *testing.T) {
	limits := testLimits()
	limits.AllowedCategories = map[string]bool{"sports": true}
	e := New(limits)

	allowed, reason := e.CheckOrder("m1", d("50"), "politics")
	assert.False(t, allowed)
	assert.Contains(t, reason, "category disallowed")
}

// Invariant §8.4: after any sequence of RecordOrder/RecordFill calls,
// total exposure and per-market exposure never go negative.
func TestInvariant_ExposureNeverNegative(t *testing.T) {
	e := New(testLimits())
	e.RecordOrder("m1", d("100"))
	e.RecordFill("m1", d("100"), d("-10"))
	e.RecordFill("m1", d("100"), d("-5")) // over-fill past what was recorded

	state := e.State()
	assert.True(t, state.TotalExposureUSD.GreaterThanOrEqual(decimal.Zero))
	assert.True(t, state.Positions["m1"].GreaterThanOrEqual(decimal.Zero))
}

func TestRecordFill_AutoTripsKillSwitchOnCrossing(t *testing.T) {
	e := New(testLimits())
	e.RecordFill("m1", d("100"), d("-300"))
	assert.False(t, e.State().KillSwitch)

	e.RecordFill("m1", d("100"), d("-250"))
	state := e.State()
	assert.True(t, state.KillSwitch)
	assert.Contains(t, state.KillSwitchReason, "daily loss cap crossed")
}

func TestActivateDeactivateKillSwitch(t *testing.T) {
	e := New(testLimits())
	e.ActivateKillSwitch("paused for review")
	assert.True(t, e.State().KillSwitch)

	e.DeactivateKillSwitch()
	state := e.State()
	assert.False(t, state.KillSwitch)
	assert.Empty(t, state.KillSwitchReason)
}

// Invariant §8.6: after crossing midnight UTC, the first check_order call
// observes daily_pnl = 0 and daily_orders = 0.
func TestDailyReset_CrossingMidnight(t *testing.T) {
	e := New(testLimits())
	e.RecordOrder("m1", d("50"))
	e.RecordFill("m1", d("50"), d("-20"))
	require.NotEqual(t, 0, e.State().DailyOrders)

	e.state.DayStart = e.state.DayStart.Add(-24 * time.Hour)

	allowed, _ := e.CheckOrder("m1", d("10"), "")
	assert.True(t, allowed)
	state := e.State()
	assert.True(t, state.DailyPnLUSD.IsZero())
	assert.Equal(t, 0, state.DailyOrders)
}
