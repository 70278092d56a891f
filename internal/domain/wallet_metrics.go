package domain

import (
	"sort"
	"time"
)

// foldLeg is one raw open or closed position, tagged with its outcome for
// the grouping decision below.
type foldLeg struct {
	conditionID string
	outcome     string
	pnl         float64
	bought      float64
	resolved    bool
	resolvedAt  time.Time
	isWin       bool
}

// FoldPositions applies the trade-grouping rule: two legs on the same
// condition_id with different outcomes (a hedge) collapse into one trade
// whose PnL is the sum of the legs and which resolves once any leg does;
// legs on the same condition_id with the same outcome remain separate
// (sequential re-entries) — each keeps its own row for win-rate counting.
func FoldPositions(open []Position, closed []ClosedPosition) []FoldedTrade {
	legs := make([]foldLeg, 0, len(open)+len(closed))
	outcomesByCondition := make(map[string]map[string]bool)

	track := func(conditionID, outcome string) {
		set, ok := outcomesByCondition[conditionID]
		if !ok {
			set = make(map[string]bool)
			outcomesByCondition[conditionID] = set
		}
		set[outcome] = true
	}

	for _, p := range open {
		legs = append(legs, foldLeg{conditionID: p.ConditionID, outcome: p.Outcome, pnl: p.CashPnL, bought: p.InitialValue})
		track(p.ConditionID, p.Outcome)
	}
	for _, cp := range closed {
		legs = append(legs, foldLeg{
			conditionID: cp.ConditionID, outcome: cp.Outcome, pnl: cp.RealizedPnL,
			bought: cp.TotalBought, resolved: true, resolvedAt: cp.ResolvedAt, isWin: cp.IsWin,
		})
		track(cp.ConditionID, cp.Outcome)
	}

	hedged := make(map[string]bool, len(outcomesByCondition))
	for conditionID, outcomes := range outcomesByCondition {
		hedged[conditionID] = len(outcomes) > 1
	}

	var result []FoldedTrade
	byCondition := make(map[string]*FoldedTrade)
	for _, leg := range legs {
		if hedged[leg.conditionID] {
			ft, ok := byCondition[leg.conditionID]
			if !ok {
				result = append(result, FoldedTrade{ConditionID: leg.conditionID})
				ft = &result[len(result)-1]
				byCondition[leg.conditionID] = ft
			}
			ft.TotalPnL += leg.pnl
			ft.TotalBought += leg.bought
			if leg.resolved && (!ft.IsResolved || leg.resolvedAt.After(ft.ResolvedAt)) {
				ft.IsResolved = true
				ft.ResolvedAt = leg.resolvedAt
			}
			if leg.isWin {
				ft.IsWin = true
			}
			continue
		}

		result = append(result, FoldedTrade{
			ConditionID: leg.conditionID,
			TotalPnL:    leg.pnl,
			TotalBought: leg.bought,
			IsResolved:  leg.resolved,
			ResolvedAt:  leg.resolvedAt,
			IsWin:       leg.isWin,
		})
	}

	return result
}

// WalletMetricInputs are the raw aggregates the wallet metric formulae are
// computed from.
type WalletMetricInputs struct {
	RealizedPnL   float64 // R = sum realized_pnl(closed)
	UnrealizedPnL float64 // U = sum cash_pnl(open)
	TotalBought   float64 // B = sum total_bought(closed)
	Balance       float64 // N = current balance
	Wins          int
	Losses        int
}

// InitialCapital is N - T, falling back to B if that's non-positive.
func (in WalletMetricInputs) InitialCapital() float64 {
	total := in.RealizedPnL + in.UnrealizedPnL
	ic := in.Balance - total
	if ic <= 0 {
		return in.TotalBought
	}
	return ic
}

// ROI is T / initial_capital * 100, with degenerate-case fallbacks: when
// T < 0 and balance is 0, -100%; otherwise 0. A third rung, pulled from the
// original wallet discovery logic and not in the base formula: when
// initial_capital <= 0 but T > 0 and B > 0, ROI falls back to T/B*100
// rather than hitting the fully-degenerate branch.
func (in WalletMetricInputs) ROI() float64 {
	total := in.RealizedPnL + in.UnrealizedPnL
	ic := in.Balance - total

	if ic <= 0 {
		if total > 0 && in.TotalBought > 0 {
			return total / in.TotalBought * 100
		}
		if total < 0 && in.Balance == 0 {
			return -100
		}
		return 0
	}
	return total / ic * 100
}

// WinRate is wins / (wins+losses) * 100, 0 if there are no resolved
// trades.
func (in WalletMetricInputs) WinRate() float64 {
	total := in.Wins + in.Losses
	if total == 0 {
		return 0
	}
	return float64(in.Wins) / float64(total) * 100
}

// MaxDrawdown replays closed positions ordered by resolved-time, tracking
// a running balance against its running peak, and returns the largest
// peak-to-trough fraction observed, capped at 100%.
func MaxDrawdown(closed []ClosedPosition, seedBalance float64) float64 {
	if len(closed) == 0 {
		return 0
	}

	sorted := make([]ClosedPosition, len(closed))
	copy(sorted, closed)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ResolvedAt.Before(sorted[j].ResolvedAt)
	})

	balance := seedBalance
	peak := balance
	maxDD := 0.0

	for _, cp := range sorted {
		balance += cp.RealizedPnL
		if balance > peak {
			peak = balance
		}
		if peak > 0 {
			dd := (peak - balance) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	if maxDD > 1.0 {
		maxDD = 1.0
	}
	return maxDD * 100
}

// WindowClosedPositions filters closed positions resolved within the last
// window, used to compute the 7d/30d rolling metrics.
func WindowClosedPositions(closed []ClosedPosition, now time.Time, window time.Duration) []ClosedPosition {
	cutoff := now.Add(-window)
	var out []ClosedPosition
	for _, cp := range closed {
		if !cp.ResolvedAt.Before(cutoff) {
			out = append(out, cp)
		}
	}
	return out
}

// AnalyzeWallet folds the raw positions into trades and computes every
// metric a Wallet row carries, all-time and per rolling window (§4.3). Both
// the discovery engine and the batch funnel call this so the two surfaces
// never drift apart on formulae.
func AnalyzeWallet(address string, open []Position, closed []ClosedPosition, balance float64, username string, accountCreated *time.Time, now time.Time) Wallet {
	folded := FoldPositions(open, closed)

	var realized, bought float64
	var wins, losses int
	for _, cp := range closed {
		realized += cp.RealizedPnL
		bought += cp.TotalBought
	}
	for _, ft := range folded {
		if !ft.IsResolved {
			continue
		}
		if ft.IsWin {
			wins++
		} else {
			losses++
		}
	}

	var unrealized float64
	for _, p := range open {
		unrealized += p.CashPnL
	}

	inputs := WalletMetricInputs{
		RealizedPnL:   realized,
		UnrealizedPnL: unrealized,
		TotalBought:   bought,
		Balance:       balance,
		Wins:          wins,
		Losses:        losses,
	}

	w := Wallet{
		Address:          address,
		Source:           "discovery",
		Balance:          balance,
		Username:         username,
		AccountCreated:   accountCreated,
		PnLAllTime:       realized + unrealized,
		ROIAllTime:       inputs.ROI(),
		WinRateAllTime:   inputs.WinRate(),
		VolumeAllTime:    bought,
		TradeCountAll:    len(folded),
		WinsAll:          wins,
		LossesAll:        losses,
		DrawdownAllTime:  MaxDrawdown(closed, inputs.InitialCapital()),
		OpenCount:        len(open),
		MetricsUpdatedAt: now,
	}

	w.Window7d = WindowMetricsFor(closed, now, 7*24*time.Hour)
	w.Window30d = WindowMetricsFor(closed, now, 30*24*time.Hour)

	return w
}

// WindowMetricsFor computes the rolling-window metrics (PnL, ROI, win rate,
// volume, drawdown) over closed positions resolved within window of now.
func WindowMetricsFor(closed []ClosedPosition, now time.Time, window time.Duration) WindowMetrics {
	windowed := WindowClosedPositions(closed, now, window)
	if len(windowed) == 0 {
		return WindowMetrics{}
	}

	folded := FoldPositions(nil, windowed)
	var realized, volume float64
	var wins, losses int
	for _, cp := range windowed {
		realized += cp.RealizedPnL
		volume += cp.TotalBought
	}
	for _, ft := range folded {
		if ft.IsWin {
			wins++
		} else {
			losses++
		}
	}

	inputs := WalletMetricInputs{RealizedPnL: realized, TotalBought: volume, Wins: wins, Losses: losses}
	roi := 0.0
	if volume > 0 {
		roi = realized / volume * 100
	}

	return WindowMetrics{
		PnL:      realized,
		ROI:      roi,
		WinRate:  inputs.WinRate(),
		Volume:   volume,
		Drawdown: MaxDrawdown(windowed, volume),
	}
}

// UniqueMarkets counts distinct market slugs across open and closed
// positions, skipping positions with no slug on file.
func UniqueMarkets(open []Position, closed []ClosedPosition) int {
	slugs := make(map[string]bool)
	for _, p := range open {
		if p.Slug != "" {
			slugs[p.Slug] = true
		}
	}
	for _, cp := range closed {
		if cp.Slug != "" {
			slugs[cp.Slug] = true
		}
	}
	return len(slugs)
}

// DominantCategory returns the category that appears on the most positions
// (open + closed), "" if none carry one. Ties break on first-seen order.
func DominantCategory(open []Position, closed []ClosedPosition) string {
	counts := make(map[string]int)
	var order []string
	bump := func(cat string) {
		if cat == "" {
			return
		}
		if _, ok := counts[cat]; !ok {
			order = append(order, cat)
		}
		counts[cat]++
	}
	for _, p := range open {
		bump(p.Category)
	}
	for _, cp := range closed {
		bump(cp.Category)
	}

	best := ""
	bestCount := 0
	for _, cat := range order {
		if counts[cat] > bestCount {
			best = cat
			bestCount = counts[cat]
		}
	}
	return best
}

// CategoryConcentration is the dominant category's share of all
// categorized positions, 0 if none carry a category.
func CategoryConcentration(open []Position, closed []ClosedPosition) float64 {
	counts := make(map[string]int)
	total := 0
	for _, p := range open {
		if p.Category != "" {
			counts[p.Category]++
			total++
		}
	}
	for _, cp := range closed {
		if cp.Category != "" {
			counts[cp.Category]++
			total++
		}
	}
	if total == 0 {
		return 0
	}
	best := 0
	for _, c := range counts {
		if c > best {
			best = c
		}
	}
	return float64(best) / float64(total) * 100
}

// PositionConcentration is the largest single position's share of total
// initial value (open + closed, by total_bought), 0 if there's no value.
func PositionConcentration(open []Position, closed []ClosedPosition) float64 {
	var total, max float64
	for _, p := range open {
		v := p.InitialValue
		total += v
		if v > max {
			max = v
		}
	}
	for _, cp := range closed {
		v := cp.TotalBought
		total += v
		if v > max {
			max = v
		}
	}
	if total <= 0 {
		return 0
	}
	return max / total * 100
}

// AvgEntryProbability is the mean avg_price across open and closed
// positions, expressed as a 0-100 probability; 50 (neutral) if there are
// no positions to average.
func AvgEntryProbability(open []Position, closed []ClosedPosition) float64 {
	var sum float64
	var n int
	for _, p := range open {
		sum += p.AvgPrice
		n++
	}
	for _, cp := range closed {
		sum += cp.AvgPrice
		n++
	}
	if n == 0 {
		return 50
	}
	return sum / float64(n) * 100
}

// PnLConcentration is the share of total positive realized PnL contributed
// by the top 3 closed positions (or fewer, if there aren't 3), 0 if no
// position realized a positive PnL.
func PnLConcentration(closed []ClosedPosition) float64 {
	var positive []float64
	var totalPositive float64
	for _, cp := range closed {
		if cp.RealizedPnL > 0 {
			positive = append(positive, cp.RealizedPnL)
			totalPositive += cp.RealizedPnL
		}
	}
	if totalPositive <= 0 {
		return 0
	}
	sort.Slice(positive, func(i, j int) bool { return positive[i] > positive[j] })
	top := positive
	if len(top) > 3 {
		top = top[:3]
	}
	var topSum float64
	for _, v := range top {
		topSum += v
	}
	return topSum / totalPositive * 100
}
