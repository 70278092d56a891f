package processor

import (
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSessionHeuristic_SingleWhaleTrade(t *testing.T) {
	h := NewSessionHeuristic()
	score, flags := h.Score("0xabc", domain.Trade{
		ConditionID: "c1", USDValue: 6000, Side: domain.SideBuy,
		ExecutedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	})
	assert.Equal(t, 30, score)
	assert.Contains(t, flags, "single-trade size >= $5,000")
}

func TestSessionHeuristic_SameMarketRepetition(t *testing.T) {
	h := NewSessionHeuristic()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var score int
	for i := 0; i < 5; i++ {
		score, _ = h.Score("0xabc", domain.Trade{
			ConditionID: "c1", USDValue: 100, Side: domain.SideBuy,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	assert.Equal(t, 25+10, score, "5th same-market trade triggers repetition + one-sided flags")
}

func TestSessionHeuristic_OffHours(t *testing.T) {
	h := NewSessionHeuristic()
	score, flags := h.Score("0xabc", domain.Trade{
		ConditionID: "c1", USDValue: 100, Side: domain.SideBuy,
		ExecutedAt: time.Date(2026, 1, 1, 3, 30, 0, 0, time.UTC),
	})
	assert.Equal(t, 10, score)
	assert.Contains(t, flags, "off-hours trading (02:00-06:59 UTC)")
}

func TestSessionHeuristic_ExpiresOutsideWindow(t *testing.T) {
	h := NewSessionHeuristic()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h.Score("0xabc", domain.Trade{ConditionID: "c1", USDValue: 6000, ExecutedAt: base})
	// 3h later, outside the 2h window: the earlier whale trade must not
	// count toward session volume anymore.
	score, _ := h.Score("0xabc", domain.Trade{ConditionID: "c2", USDValue: 100, ExecutedAt: base.Add(3 * time.Hour)})
	assert.Equal(t, 0, score)
}

func TestSessionHeuristic_CumulativeVolume(t *testing.T) {
	h := NewSessionHeuristic()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var score int
	for i := 0; i < 10; i++ {
		score, _ = h.Score("0xabc", domain.Trade{
			ConditionID: "different", USDValue: 6000, Side: domain.SideBuy,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	assert.Equal(t, 90, score, "single-trade(30) + same-market(25) + volume(25) + one-sided(10), no off-hours bonus at noon")
}

func TestSessionHeuristic_CapsAt100(t *testing.T) {
	h := NewSessionHeuristic()
	base := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	var score int
	for i := 0; i < 6; i++ {
		score, _ = h.Score("0xabc", domain.Trade{
			ConditionID: "c1", USDValue: 10000, Side: domain.SideBuy,
			ExecutedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}
	assert.LessOrEqual(t, score, 100)
}
