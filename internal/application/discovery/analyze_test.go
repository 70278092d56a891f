package discovery

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzeWallet_BasicMetrics(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	closed := []domain.ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 50, TotalBought: 100, IsWin: true, ResolvedAt: now.Add(-24 * time.Hour)},
		{ConditionID: "c2", Outcome: "YES", RealizedPnL: -20, TotalBought: 100, IsWin: false, ResolvedAt: now.Add(-48 * time.Hour)},
	}
	w := analyzeWallet("0xabc", nil, closed, 200, "trader1", nil, now)

	assert.Equal(t, "0xabc", w.Address)
	assert.Equal(t, "discovery", w.Source)
	assert.InDelta(t, 30.0, w.PnLAllTime, 0.001)
	assert.Equal(t, 2, w.TradeCountAll)
	assert.Equal(t, 1, w.WinsAll)
	assert.Equal(t, 1, w.LossesAll)
	assert.InDelta(t, 50.0, w.WinRateAllTime, 0.001)
}

func TestAnalyzeWallet_HedgeFoldsIntoOneTrade(t *testing.T) {
	now := time.Now()
	closed := []domain.ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 50, IsWin: true, ResolvedAt: now},
		{ConditionID: "c1", Outcome: "NO", RealizedPnL: -3, TotalBought: 20, IsWin: false, ResolvedAt: now},
	}
	w := analyzeWallet("0xabc", nil, closed, 100, "", nil, now)
	assert.Equal(t, 1, w.TradeCountAll, "hedge legs on the same condition_id fold into one trade")
	assert.Equal(t, 1, w.WinsAll, "a win on either leg marks the folded trade a win")
}

func TestAnalyzeWallet_WindowMetricsExcludeOldPositions(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	closed := []domain.ClosedPosition{
		{ConditionID: "c1", Outcome: "YES", RealizedPnL: 10, TotalBought: 100, IsWin: true, ResolvedAt: now.Add(-2 * 24 * time.Hour)},
		{ConditionID: "c2", Outcome: "YES", RealizedPnL: 20, TotalBought: 100, IsWin: true, ResolvedAt: now.Add(-40 * 24 * time.Hour)},
	}
	w := analyzeWallet("0xabc", nil, closed, 200, "", nil, now)

	assert.InDelta(t, 10.0, w.Window7d.PnL, 0.001, "only the 2-day-old position is inside the 7d window")
	assert.InDelta(t, 10.0, w.Window30d.PnL, 0.001, "the 40-day-old position is outside the 30d window too")
}

func TestAnalyzeWallet_EmptyWindowIsZeroValue(t *testing.T) {
	now := time.Now()
	w := analyzeWallet("0xabc", nil, nil, 0, "", nil, now)
	assert.Equal(t, domain.WindowMetrics{}, w.Window7d)
	assert.Equal(t, domain.WindowMetrics{}, w.Window30d)
}

func TestAnalyzeWallet_OpenPositionsCountedInUnrealized(t *testing.T) {
	now := time.Now()
	open := []domain.Position{{ConditionID: "c1", Outcome: "YES", CashPnL: 15, InitialValue: 50}}
	w := analyzeWallet("0xabc", open, nil, 100, "", nil, now)
	assert.InDelta(t, 15.0, w.PnLAllTime, 0.001)
	assert.Equal(t, 1, w.OpenCount)
}
