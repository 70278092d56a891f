package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFoldPositions_HedgeCollapses(t *testing.T) {
	closed := []ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 100, IsWin: true, ResolvedAt: time.Unix(100, 0)},
		{ConditionID: "c1", Outcome: "NO", RealizedPnL: -4, TotalBought: 40, IsWin: false, ResolvedAt: time.Unix(200, 0)},
	}
	folded := FoldPositions(nil, closed)
	assert.Len(t, folded, 1, "same condition_id, different outcomes must collapse into one trade")
	assert.InDelta(t, 6.0, folded[0].TotalPnL, 0.001)
	assert.InDelta(t, 140.0, folded[0].TotalBought, 0.001)
	assert.True(t, folded[0].IsWin, "a win on either leg marks the folded trade a win")
	assert.True(t, folded[0].ResolvedAt.Equal(time.Unix(200, 0)), "resolved_at takes the latest leg")
}

func TestFoldPositions_SameOutcomeStaysSeparate(t *testing.T) {
	closed := []ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 100, ResolvedAt: time.Unix(100, 0)},
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: -5, TotalBought: 50, ResolvedAt: time.Unix(300, 0)},
	}
	folded := FoldPositions(nil, closed)
	assert.Len(t, folded, 2, "re-entries on the same outcome must not collapse")
}

func TestFoldPositions_OpenAndClosedSameOutcomeStaySeparate(t *testing.T) {
	open := []Position{
		{ConditionID: "c1", Outcome: "YES", CashPnL: 3, InitialValue: 20},
	}
	closed := []ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 100, ResolvedAt: time.Unix(100, 0)},
	}
	folded := FoldPositions(open, closed)
	// same condition_id, same outcome: the open re-entry and the earlier
	// closed leg do not collapse into one trade.
	assert.Len(t, folded, 2)
}

func TestFoldPositions_OpenAndClosedHedgeCollapses(t *testing.T) {
	open := []Position{
		{ConditionID: "c1", Outcome: "NO", CashPnL: 3, InitialValue: 20},
	}
	closed := []ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 100, IsWin: true, ResolvedAt: time.Unix(100, 0)},
	}
	folded := FoldPositions(open, closed)
	// same condition_id, different outcomes: the open leg and the closed
	// leg collapse into a single hedged trade.
	assert.Len(t, folded, 1)
	assert.InDelta(t, 13.0, folded[0].TotalPnL, 0.001)
	assert.True(t, folded[0].IsResolved, "resolved if any leg is resolved")
	assert.True(t, folded[0].IsWin)
}

func TestWalletMetricInputs_ROI_BaseCase(t *testing.T) {
	in := WalletMetricInputs{RealizedPnL: 50, UnrealizedPnL: 0, Balance: 150, TotalBought: 100}
	// T=50, ic = 150-50=100 > 0 -> 50/100*100=50
	assert.InDelta(t, 50.0, in.ROI(), 0.001)
}

func TestWalletMetricInputs_ROI_DegenerateNegative(t *testing.T) {
	in := WalletMetricInputs{RealizedPnL: -20, Balance: 0, TotalBought: 0}
	assert.Equal(t, -100.0, in.ROI())
}

func TestWalletMetricInputs_ROI_WithdrewProfitsFallback(t *testing.T) {
	// initial_capital <= 0, but T > 0 and B > 0: falls back to T/B*100
	in := WalletMetricInputs{RealizedPnL: 200, UnrealizedPnL: 0, Balance: 10, TotalBought: 100}
	// T=200, ic = 10-200 = -190 <= 0, T>0, B=100>0 -> 200/100*100 = 200
	assert.InDelta(t, 200.0, in.ROI(), 0.001)
}

func TestWalletMetricInputs_ROI_FullyDegenerateZero(t *testing.T) {
	in := WalletMetricInputs{RealizedPnL: 0, Balance: 0, TotalBought: 0}
	assert.Equal(t, 0.0, in.ROI())
}

func TestWalletMetricInputs_WinRate(t *testing.T) {
	assert.InDelta(t, 75.0, WalletMetricInputs{Wins: 3, Losses: 1}.WinRate(), 0.001)
	assert.Equal(t, 0.0, WalletMetricInputs{Wins: 0, Losses: 0}.WinRate())
}

func TestMaxDrawdown(t *testing.T) {
	closed := []ClosedPosition{
		{RealizedPnL: 100, ResolvedAt: time.Unix(1, 0)},
		{RealizedPnL: -50, ResolvedAt: time.Unix(2, 0)},
		{RealizedPnL: 20, ResolvedAt: time.Unix(3, 0)},
	}
	// seed 100 -> 200 (peak 200) -> 150 (dd=0.25) -> 170
	dd := MaxDrawdown(closed, 100)
	assert.InDelta(t, 25.0, dd, 0.001)
}

func TestMaxDrawdown_CapsAt100(t *testing.T) {
	closed := []ClosedPosition{
		{RealizedPnL: -1000, ResolvedAt: time.Unix(1, 0)},
	}
	dd := MaxDrawdown(closed, 10)
	assert.LessOrEqual(t, dd, 100.0)
}

func TestWindowClosedPositions(t *testing.T) {
	now := time.Unix(1_000_000, 0)
	closed := []ClosedPosition{
		{ResolvedAt: now.Add(-48 * time.Hour)},
		{ResolvedAt: now.Add(-10 * 24 * time.Hour)},
	}
	windowed := WindowClosedPositions(closed, now, 7*24*time.Hour)
	assert.Len(t, windowed, 1)
}
