package funnel

import (
	"math"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polybot/internal/domain"
)

func newRunID() string {
	return uuid.NewString()
}

// copytradeScore blends four 0-100 signals into the composite score the
// copy trader's qualification cache reads against Config.MinCopytradeScore.
// original_source/src/scoring/classifier.py never computes a copytrade
// score of its own (only insider_score) — this weighting is this funnel's
// own design, built in the classifier's piecewise-banded style.
func copytradeScore(w domain.Wallet) int {
	score := 0.35*winRateSignal(w.Window30d.WinRate) +
		0.30*roiSignal(w.Window30d.ROI) +
		0.20*drawdownSignal(w.DrawdownAllTime) +
		0.15*activitySignal(w.TradeCountAll)

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return int(math.Round(score))
}

func winRateSignal(winRate float64) float64 {
	switch {
	case winRate >= 70:
		return 100
	case winRate >= 60:
		return 70
	case winRate >= 50:
		return 40
	default:
		return 0
	}
}

func roiSignal(roi float64) float64 {
	switch {
	case roi >= 50:
		return 100
	case roi >= 25:
		return 70
	case roi >= 10:
		return 40
	default:
		return 0
	}
}

func drawdownSignal(drawdownPct float64) float64 {
	switch {
	case drawdownPct <= 10:
		return 100
	case drawdownPct <= 25:
		return 60
	case drawdownPct <= 50:
		return 30
	default:
		return 0
	}
}

func activitySignal(tradeCount int) float64 {
	switch {
	case tradeCount >= 100:
		return 100
	case tradeCount >= 50:
		return 70
	case tradeCount >= 20:
		return 40
	default:
		return 0
	}
}
