package copytrader

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/polybot/internal/ports"
)

// Qualification is the copy trader's qualification cache: every wallet
// whose copytrade_score is at or above minScore, plus the optional
// watchlist set, rebuilt from scratch and swapped atomically on refresh.
type Qualification struct {
	mu        sync.RWMutex
	scores    map[string]int
	watchlist map[string]bool

	wallets   ports.WalletStore
	watchlistStore ports.WatchlistStore
	minScore  int
	pageSize  int
}

// NewQualification builds an empty cache; call Refresh before first use.
func NewQualification(wallets ports.WalletStore, watchlistStore ports.WatchlistStore, minScore int) *Qualification {
	return &Qualification{
		scores:    make(map[string]int),
		watchlist: make(map[string]bool),
		wallets:   wallets,
		watchlistStore: watchlistStore,
		minScore:  minScore,
		pageSize:  500,
	}
}

// Refresh reloads the qualification set and watchlist from the store.
func (q *Qualification) Refresh(ctx context.Context) error {
	projection, err := q.wallets.LoadProfitabilityProjection(ctx, q.pageSize)
	if err != nil {
		return fmt.Errorf("copytrader.Qualification.Refresh: wallets: %w", err)
	}

	scores := make(map[string]int, len(projection))
	for addr, w := range projection {
		if w.CopytradeScore >= q.minScore {
			scores[strings.ToLower(addr)] = w.CopytradeScore
		}
	}

	watchlist := make(map[string]bool)
	if q.watchlistStore != nil {
		entries, err := q.watchlistStore.GetWatchlist(ctx)
		if err != nil {
			return fmt.Errorf("copytrader.Qualification.Refresh: watchlist: %w", err)
		}
		for addr := range entries {
			watchlist[strings.ToLower(addr)] = true
		}
	}

	q.mu.Lock()
	q.scores = scores
	q.watchlist = watchlist
	q.mu.Unlock()
	return nil
}

// Run refreshes the cache every interval until ctx is cancelled.
func (q *Qualification) Run(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Refresh(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}

// Score returns the cached copytrade_score for address, lowercased.
func (q *Qualification) Score(address string) (int, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	score, ok := q.scores[strings.ToLower(address)]
	return score, ok
}

// InWatchlist reports whether address is on the watchlist.
func (q *Qualification) InWatchlist(address string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.watchlist[strings.ToLower(address)]
}
