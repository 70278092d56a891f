package funnel

import "github.com/alejandrodnm/polybot/internal/domain"

// stage1Filter eliminates wallets below the all-time trade-count floor,
// grounded on original_source/src/config/filters.py's Step1Filters
// (min_trades).
type stage1Filter struct {
	minTrades int
}

func (f stage1Filter) Evaluate(w domain.Wallet) bool {
	return w.TradeCountAll >= f.minTrades
}

// stage2Filter eliminates wallets below the portfolio-value floor
// (Step2Filters.min_portfolio_value).
type stage2Filter struct {
	minPortfolioValue float64
}

func (f stage2Filter) Evaluate(balance float64) bool {
	return balance >= f.minPortfolioValue
}

// stage3Filter eliminates wallets whose largest open position misses the
// minimum size, or whose book is empty when positions are required
// (Step3Filters.min_position_size / require_positions).
type stage3Filter struct {
	minPositionSize  float64
	requirePositions bool
}

func (f stage3Filter) Evaluate(open []domain.Position) bool {
	if len(open) == 0 {
		return !f.requirePositions
	}
	var max float64
	for _, p := range open {
		if p.InitialValue > max {
			max = p.InitialValue
		}
	}
	return max >= f.minPositionSize
}

// stage4Filter eliminates wallets missing both the win-rate and pnl
// floors (Step4Filters.min_win_rate / min_total_pnl / require_one). By
// default either floor clearing is enough (requireBoth false), mirroring
// the original's require_one=True default.
type stage4Filter struct {
	minWinRate  float64
	minTotalPnL float64
	requireBoth bool
}

func (f stage4Filter) Evaluate(winRate, totalPnL float64) bool {
	winOK := winRate >= f.minWinRate
	pnlOK := totalPnL >= f.minTotalPnL
	if f.requireBoth {
		return winOK && pnlOK
	}
	return winOK || pnlOK
}
