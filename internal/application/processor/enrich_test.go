package processor

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWalletStore struct {
	wallets map[string]domain.Wallet
}

func (f *fakeWalletStore) ApplySchema(ctx context.Context) error      { return nil }
func (f *fakeWalletStore) UpsertWallet(ctx context.Context, w domain.Wallet) error { return nil }
func (f *fakeWalletStore) GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error) {
	w, ok := f.wallets[address]
	return w, ok, nil
}
func (f *fakeWalletStore) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeWalletStore) LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error) {
	return f.wallets, nil
}

func TestEnrich_KnownWalletUsesCachedScore(t *testing.T) {
	walletStore := &fakeWalletStore{wallets: map[string]domain.Wallet{
		"0xabc": {Address: "0xabc", CopytradeScore: 75, Category: "politics"},
	}}
	wallets := NewWalletCache(walletStore, 0)
	require.NoError(t, wallets.Refresh(context.Background()))

	rules := newTestRuleCache(t, nil, nil)
	heuristic := NewSessionHeuristic()

	t0 := time.Now()
	trade := domain.Trade{TraderAddress: "0xabc", USDValue: 100, ExecutedAt: t0.Add(-2 * time.Second)}
	et := Enrich(trade, t0, wallets, rules, heuristic, Thresholds{WhaleUSD: 10000, InsiderSuspectScore: 60})

	assert.Equal(t, 75, et.TraderInsiderScore)
	assert.Equal(t, "politics", et.Category)
	assert.True(t, et.IsInsiderSuspect)
	assert.Empty(t, et.TraderFlags, "known wallets don't get session heuristic flags")
}

func TestEnrich_UnknownWalletUsesSessionHeuristic(t *testing.T) {
	wallets := NewWalletCache(&fakeWalletStore{wallets: map[string]domain.Wallet{}}, 0)
	rules := newTestRuleCache(t, nil, nil)
	heuristic := NewSessionHeuristic()

	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) // outside the 02:00-06:59 UTC off-hours window
	trade := domain.Trade{TraderAddress: "0xnew", USDValue: 6000, ExecutedAt: t0, Side: domain.SideBuy}
	et := Enrich(trade, t0, wallets, rules, heuristic, Thresholds{WhaleUSD: 10000, InsiderSuspectScore: 60})

	assert.Equal(t, 30, et.TraderInsiderScore)
	assert.NotEmpty(t, et.TraderFlags)
}

func TestEnrich_WhaleFlag(t *testing.T) {
	wallets := NewWalletCache(&fakeWalletStore{wallets: map[string]domain.Wallet{}}, 0)
	rules := newTestRuleCache(t, nil, nil)
	heuristic := NewSessionHeuristic()

	trade := domain.Trade{TraderAddress: "0xnew", USDValue: 15000, ExecutedAt: time.Now()}
	et := Enrich(trade, time.Now(), wallets, rules, heuristic, Thresholds{WhaleUSD: 10000, InsiderSuspectScore: 60})
	assert.True(t, et.IsWhale)
}

func TestEnrich_WatchlistFlag(t *testing.T) {
	wallets := NewWalletCache(&fakeWalletStore{wallets: map[string]domain.Wallet{}}, 0)
	rules := newTestRuleCache(t, nil, map[string]ports.WatchlistEntry{"0xwatched": {Address: "0xwatched"}})
	heuristic := NewSessionHeuristic()

	trade := domain.Trade{TraderAddress: "0xwatched", USDValue: 50, ExecutedAt: time.Now()}
	et := Enrich(trade, time.Now(), wallets, rules, heuristic, Thresholds{WhaleUSD: 10000, InsiderSuspectScore: 60})
	assert.True(t, et.IsWatchlist)
}

func TestSignificant(t *testing.T) {
	assert.True(t, Significant(domain.EnrichedTrade{IsWhale: true}))
	assert.True(t, Significant(domain.EnrichedTrade{IsInsiderSuspect: true}))
	assert.True(t, Significant(domain.EnrichedTrade{IsWatchlist: true}))
	assert.False(t, Significant(domain.EnrichedTrade{}))
}
