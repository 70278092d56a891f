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

type fakeAlertStore struct {
	inserted []fakeAlertRow
}

type fakeAlertRow struct {
	tradeID, ruleType, severity string
}

func (f *fakeAlertStore) ApplySchema(ctx context.Context) error { return nil }
func (f *fakeAlertStore) InsertAlert(ctx context.Context, tradeID string, ruleType, severity string, firedAt time.Time) error {
	f.inserted = append(f.inserted, fakeAlertRow{tradeID, ruleType, severity})
	return nil
}
func (f *fakeAlertStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, acknowledgedOnly bool) (int64, error) {
	return 0, nil
}

type fakeAlertRuleStore struct{ rules []ports.AlertRule }

func (f *fakeAlertRuleStore) GetAlertRules(ctx context.Context) ([]ports.AlertRule, error) {
	return f.rules, nil
}

type fakeWatchlistStore struct{ entries map[string]ports.WatchlistEntry }

func (f *fakeWatchlistStore) GetWatchlist(ctx context.Context) (map[string]ports.WatchlistEntry, error) {
	return f.entries, nil
}

func newTestRuleCache(t *testing.T, rules []ports.AlertRule, watchlist map[string]ports.WatchlistEntry) *RuleCache {
	t.Helper()
	c := NewRuleCache(&fakeAlertRuleStore{rules: rules}, &fakeWatchlistStore{entries: watchlist})
	require.NoError(t, c.Refresh(context.Background()))
	return c
}

func TestRuleEngine_WhaleRule(t *testing.T) {
	rules := []ports.AlertRule{{ID: 1, Enabled: true, RuleType: "whale", Severity: "high"}}
	cache := newTestRuleCache(t, rules, nil)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	et := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1", USDValue: 20000}, IsWhale: true}
	require.NoError(t, engine.Evaluate(context.Background(), et))
	assert.Len(t, alerts.inserted, 1)
	assert.Equal(t, "whale", alerts.inserted[0].ruleType)
}

func TestRuleEngine_WhaleRule_NoMatch(t *testing.T) {
	rules := []ports.AlertRule{{ID: 1, Enabled: true, RuleType: "whale", Severity: "high"}}
	cache := newTestRuleCache(t, rules, nil)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	et := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1", USDValue: 100}, IsWhale: false}
	require.NoError(t, engine.Evaluate(context.Background(), et))
	assert.Empty(t, alerts.inserted)
}

func TestRuleEngine_WatchlistActivity_MinTradeSize(t *testing.T) {
	rules := []ports.AlertRule{{ID: 1, Enabled: true, RuleType: "watchlist_activity", Severity: "medium"}}
	watchlist := map[string]ports.WatchlistEntry{"0xabc": {Address: "0xabc", MinTradeSize: 1000}}
	cache := newTestRuleCache(t, rules, watchlist)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	small := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1", TraderAddress: "0xabc", USDValue: 500}}
	require.NoError(t, engine.Evaluate(context.Background(), small))
	assert.Empty(t, alerts.inserted, "below the watchlist entry's min_trade_size")

	big := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t2", TraderAddress: "0xabc", USDValue: 5000}}
	require.NoError(t, engine.Evaluate(context.Background(), big))
	assert.Len(t, alerts.inserted, 1)
}

func TestRuleEngine_InsiderActivity(t *testing.T) {
	rules := []ports.AlertRule{{ID: 1, Enabled: true, RuleType: "insider_activity", Severity: "high"}}
	cache := newTestRuleCache(t, rules, nil)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	et := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1"}, IsInsiderSuspect: false}
	require.NoError(t, engine.Evaluate(context.Background(), et))
	assert.Empty(t, alerts.inserted)

	et.IsInsiderSuspect = true
	require.NoError(t, engine.Evaluate(context.Background(), et))
	assert.Len(t, alerts.inserted, 1)
}

func TestRuleEngine_GenericConditions(t *testing.T) {
	rules := []ports.AlertRule{{
		ID: 1, Enabled: true, RuleType: "generic", Severity: "low",
		Conditions: ports.AlertConditions{
			MinUSDValue: 1000,
			Sides:       map[domain.Side]bool{domain.SideBuy: true},
			Hours:       map[int]bool{14: true},
		},
	}}
	cache := newTestRuleCache(t, rules, nil)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	matching := domain.EnrichedTrade{Trade: domain.Trade{
		TradeID: "t1", USDValue: 2000, Side: domain.SideBuy,
		ExecutedAt: time.Date(2026, 1, 1, 14, 30, 0, 0, time.UTC),
	}}
	require.NoError(t, engine.Evaluate(context.Background(), matching))
	assert.Len(t, alerts.inserted, 1)

	wrongHour := matching
	wrongHour.TradeID = "t2"
	wrongHour.ExecutedAt = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, engine.Evaluate(context.Background(), wrongHour))
	assert.Len(t, alerts.inserted, 1, "outside the rule's hour set, no new alert")
}

func TestRuleEngine_DisabledRuleNeverMatches(t *testing.T) {
	rules := []ports.AlertRule{{ID: 1, Enabled: false, RuleType: "whale", Severity: "high"}}
	cache := newTestRuleCache(t, rules, nil)
	alerts := &fakeAlertStore{}
	engine := NewRuleEngine(alerts, cache)

	et := domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1"}, IsWhale: true}
	require.NoError(t, engine.Evaluate(context.Background(), et))
	assert.Empty(t, alerts.inserted)
}
