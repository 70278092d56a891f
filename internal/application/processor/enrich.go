package processor

import (
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// Thresholds collects the processor's tunable cutoffs.
type Thresholds struct {
	WhaleUSD            float64
	InsiderSuspectScore int
}

// Enrich tags a raw trade with wallet-cache facts (or a session-heuristic
// score for unknown traders) and the derived significance flags.
func Enrich(t domain.Trade, now time.Time, wallets *WalletCache, watchlist *RuleCache, heuristic *SessionHeuristic, th Thresholds) domain.EnrichedTrade {
	et := domain.EnrichedTrade{
		Trade:             t,
		ProcessingLatency: now.Sub(t.ExecutedAt),
	}

	if w, ok := wallets.Get(t.TraderAddress); ok {
		et.TraderInsiderScore = w.CopytradeScore
		et.CopytradeScore = w.CopytradeScore
		et.Category = w.Category
	} else {
		score, flags := heuristic.Score(t.TraderAddress, t)
		et.TraderInsiderScore = score
		et.TraderFlags = flags
	}

	et.IsWhale = t.USDValue >= th.WhaleUSD
	if _, ok := watchlist.Watchlist(t.TraderAddress); ok {
		et.IsWatchlist = true
	}
	et.IsInsiderSuspect = et.TraderInsiderScore >= th.InsiderSuspectScore

	return et
}

// Significant reports whether a trade clears the write policy bar: only
// whale, insider-suspect, or watchlist-matched trades are persisted.
func Significant(et domain.EnrichedTrade) bool {
	return et.IsWhale || et.IsInsiderSuspect || et.IsWatchlist
}
