package processor

import (
	"sync"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

const (
	sessionWindow   = 2 * time.Hour
	sessionCapacity = 100
)

// sessionRecord is one trade kept in an address's sliding-window history.
type sessionRecord struct {
	at       time.Time
	usd      float64
	condID   string
	side     domain.Side
}

// SessionHeuristic scores unknown traders on the fly from a bounded
// per-address history, used until discovery produces a wallet row.
type SessionHeuristic struct {
	mu      sync.Mutex
	history map[string][]sessionRecord
}

// NewSessionHeuristic builds an empty heuristic scorer.
func NewSessionHeuristic() *SessionHeuristic {
	return &SessionHeuristic{history: make(map[string][]sessionRecord)}
}

// Score records the trade into the address's window and returns its
// session-heuristic score plus the flags that fired.
func (h *SessionHeuristic) Score(address string, t domain.Trade) (int, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recs := h.history[address]
	recs = pruneExpired(recs, t.ExecutedAt)
	recs = append(recs, sessionRecord{at: t.ExecutedAt, usd: t.USDValue, condID: t.ConditionID, side: t.Side})
	if len(recs) > sessionCapacity {
		recs = recs[len(recs)-sessionCapacity:]
	}
	h.history[address] = recs

	return scoreWindow(recs, t)
}

func pruneExpired(recs []sessionRecord, now time.Time) []sessionRecord {
	cutoff := now.Add(-sessionWindow)
	i := 0
	for ; i < len(recs); i++ {
		if recs[i].at.After(cutoff) {
			break
		}
	}
	if i == 0 {
		return recs
	}
	return append([]sessionRecord(nil), recs[i:]...)
}

func scoreWindow(recs []sessionRecord, t domain.Trade) (int, []string) {
	var score int
	var flags []string

	if t.USDValue >= 5000 {
		score += 30
		flags = append(flags, "single-trade size >= $5,000")
	}

	sameMarket := 0
	var volume float64
	buys, sells := 0, 0
	for _, r := range recs {
		volume += r.usd
		if r.condID == t.ConditionID {
			sameMarket++
		}
		switch r.side {
		case domain.SideBuy:
			buys++
		case domain.SideSell:
			sells++
		}
	}
	if sameMarket >= 5 {
		score += 25
		flags = append(flags, "same-market repetition >= 5 trades")
	}
	if volume >= 50000 {
		score += 25
		flags = append(flags, "session cumulative volume >= $50,000")
	}

	hour := t.ExecutedAt.UTC().Hour()
	if hour >= 2 && hour <= 6 {
		score += 10
		flags = append(flags, "off-hours trading (02:00-06:59 UTC)")
	}

	if len(recs) >= 3 && (buys == 0 || sells == 0) {
		score += 10
		flags = append(flags, "all trades one-sided")
	}

	if score > 100 {
		score = 100
	}
	return score, flags
}
