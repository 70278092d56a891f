package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreWalletAge(t *testing.T) {
	cases := []struct {
		name     string
		ageDays  float64
		nonce    int64
		expected int
	}{
		{"brand new, low nonce", 0.5, 2, 100},
		{"week old, mid nonce", 5, 15, int(0.6*70 + 0.4*60)},
		{"month old, high nonce", 20, 60, int(0.6*30 + 0.4*0)},
		{"old wallet, low nonce", 365, 3, int(0.6*0 + 0.4*100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ScoreWalletAge(tc.ageDays, tc.nonce))
		})
	}
}

func TestScoreSizeLiquidity(t *testing.T) {
	assert.Equal(t, 100, ScoreSizeLiquidity(25000, 100000)) // r = 0.25
	assert.Equal(t, 70, ScoreSizeLiquidity(15000, 100000))  // r = 0.15
	assert.Equal(t, 40, ScoreSizeLiquidity(7000, 100000))   // r = 0.07
	assert.Equal(t, 0, ScoreSizeLiquidity(1000, 100000))    // r = 0.01
	assert.Equal(t, 50, ScoreSizeLiquidity(1000, -1))       // unknown volume
}

func TestScoreMarketNiche(t *testing.T) {
	assert.Equal(t, 100, ScoreMarketNiche(5000))
	assert.Equal(t, 70, ScoreMarketNiche(20000))
	assert.Equal(t, 30, ScoreMarketNiche(100000))
	assert.Equal(t, 0, ScoreMarketNiche(500000))
	assert.Equal(t, 50, ScoreMarketNiche(-1))
}

func TestScoreExtremeOdds(t *testing.T) {
	assert.Equal(t, 100, ScoreExtremeOdds(SideBuy, 0.05, 6000))
	assert.Equal(t, 80, ScoreExtremeOdds(SideBuy, 0.05, 1500))
	assert.Equal(t, 60, ScoreExtremeOdds(SideBuy, 0.05, 600))
	assert.Equal(t, 70, ScoreExtremeOdds(SideBuy, 0.15, 6000))
	assert.Equal(t, 0, ScoreExtremeOdds(SideBuy, 0.15, 600))
	assert.Equal(t, 0, ScoreExtremeOdds(SideBuy, 0.95, 10000), "BUY at high odds is never suspicious")
	assert.Equal(t, 80, ScoreExtremeOdds(SideSell, 0.90, 6000))
	assert.Equal(t, 0, ScoreExtremeOdds(SideSell, 0.90, 100))
	assert.Equal(t, 0, ScoreExtremeOdds(SideBuy, 0.05, 400), "below $500 is never suspicious")
}

func TestScoreConviction(t *testing.T) {
	assert.Equal(t, 0, ScoreConviction(1, 0), "needs at least 2 trades")
	assert.Equal(t, 100, ScoreConviction(3, 0))
	assert.Equal(t, 60, ScoreConviction(9, 1))
	assert.Equal(t, 30, ScoreConviction(4, 1))
	assert.Equal(t, 0, ScoreConviction(1, 1))
}

func TestScoreCategoryWinRate(t *testing.T) {
	assert.Equal(t, 0, ScoreCategoryWinRate(95, 5), "below min sample size")
	assert.Equal(t, 100, ScoreCategoryWinRate(92, 20))
	assert.Equal(t, 60, ScoreCategoryWinRate(85, 20))
	assert.Equal(t, 30, ScoreCategoryWinRate(75, 20))
	assert.Equal(t, 0, ScoreCategoryWinRate(50, 20))
}

func TestCompositeInsiderScore_RoundsNotTruncates(t *testing.T) {
	// 0.20*100 + 0.20*100 + 0.15*0 + 0.20*0 + 0.15*60 + 0.10*0 = 20+20+0+0+9+0 = 49
	assert.Equal(t, 49, CompositeInsiderScore(100, 100, 0, 0, 60, 0))

	// A blend landing on x.5 must round up, not truncate:
	// 0.15*70 = 10.5 → 11 (truncation would give 10).
	got := CompositeInsiderScore(0, 0, 70, 0, 0, 0)
	assert.Equal(t, 11, got)
}

func TestCompositeInsiderScore_AboveThreshold(t *testing.T) {
	composite := CompositeInsiderScore(100, 70, 70, 100, 60, 60)
	assert.GreaterOrEqual(t, composite, 50)
}
