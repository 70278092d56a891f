package scorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalogClient struct {
	volumes map[string]float64
	err     error
}

func (f *fakeCatalogClient) GetPortfolioValue(ctx context.Context, address string) (float64, error) {
	return 0, nil
}
func (f *fakeCatalogClient) GetPositions(ctx context.Context, address string) ([]domain.Position, error) {
	return nil, nil
}
func (f *fakeCatalogClient) GetClosedPositions(ctx context.Context, address string) ([]domain.ClosedPosition, error) {
	return nil, nil
}
func (f *fakeCatalogClient) GetProfile(ctx context.Context, address string) (ports.Profile, error) {
	return ports.Profile{}, nil
}
func (f *fakeCatalogClient) GetMarketVolume24h(ctx context.Context, conditionID string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.volumes[conditionID], nil
}

func TestProfitabilityStatus_Pending(t *testing.T) {
	assert.Equal(t, domain.ProfitabilityPending, profitabilityStatus(domain.Wallet{}, false))
}

func TestProfitabilityStatus_Copyable(t *testing.T) {
	w := domain.Wallet{CopytradeScore: 70, ProfitFactor30d: 2.0}
	assert.Equal(t, domain.ProfitabilityCopyable, profitabilityStatus(w, true))
}

func TestProfitabilityStatus_Profitable(t *testing.T) {
	w := domain.Wallet{PnLAllTime: 50}
	assert.Equal(t, domain.ProfitabilityProfitable, profitabilityStatus(w, true))
}

func TestProfitabilityStatus_Unprofitable(t *testing.T) {
	w := domain.Wallet{PnLAllTime: -10, TradeCountAll: 20}
	assert.Equal(t, domain.ProfitabilityUnprofitable, profitabilityStatus(w, true))
}

func TestProfitabilityStatus_UnknownBelowSampleFloor(t *testing.T) {
	w := domain.Wallet{PnLAllTime: -10, TradeCountAll: 5}
	assert.Equal(t, domain.ProfitabilityUnknown, profitabilityStatus(w, true))
}

func TestSignalsAbove60_OnlyHighSubscoresLabeled(t *testing.T) {
	signals := signalsAbove60(100, 0, 0, 0, 65, 0)
	assert.Equal(t, []string{domain.LabelFreshWallet, domain.LabelHighConviction}, signals)
}

func TestSignalsAbove60_NoneAboveThreshold(t *testing.T) {
	signals := signalsAbove60(0, 0, 0, 0, 0, 0)
	assert.Empty(t, signals)
}

func newTestScorer(t *testing.T, wallets map[string]domain.Wallet, volumes map[string]float64, catalogErr error) *Scorer {
	t.Helper()
	return newTestScorerWithChain(t, wallets, volumes, catalogErr, nil)
}

func newTestScorerWithChain(t *testing.T, wallets map[string]domain.Wallet, volumes map[string]float64, catalogErr error, chain ports.ChainNonceProvider) *Scorer {
	t.Helper()
	return &Scorer{
		cfg:        Config{ScoreThreshold: 50},
		ageCache:   NewAgeCache(time.Hour),
		volume:     NewVolumeCache(time.Hour),
		conviction: NewConvictionCache(),
		projection: NewProjectionCache(&fakeProjectionStore{wallets: wallets}, 0),
		wallets:    &fakeAgeWalletStore{wallets: wallets},
		catalog:    &fakeCatalogClient{volumes: volumes, err: catalogErr},
		chain:      chain,
	}
}

func TestMarketVolume_FetchesAndCaches(t *testing.T) {
	s := newTestScorer(t, nil, map[string]float64{"c1": 42000}, nil)
	v := s.marketVolume(context.Background(), "c1")
	assert.Equal(t, 42000.0, v)
}

func TestMarketVolume_FetchErrorReturnsUnknown(t *testing.T) {
	s := newTestScorer(t, nil, nil, errors.New("http 500"))
	v := s.marketVolume(context.Background(), "c1")
	assert.Equal(t, -1.0, v)
}

func TestScoreTrade_HighCompositeAboveThreshold(t *testing.T) {
	// Mirrors a 1-day-old wallet buying a longshot on a thin market with 3
	// prior same-side fills: every sub-score but category fires high.
	now := time.Now()
	accountCreated := now.Add(-24 * time.Hour)
	wallets := map[string]domain.Wallet{
		"0xnew": {Address: "0xnew", AccountCreated: &accountCreated},
	}
	s := newTestScorerWithChain(t, wallets, map[string]float64{"c1": 30000}, nil, &fakeChainProvider{nonce: 3})

	s.conviction.Record("0xnew", "c1", domain.SideBuy)
	s.conviction.Record("0xnew", "c1", domain.SideBuy)
	s.conviction.Record("0xnew", "c1", domain.SideBuy)

	trade := domain.Trade{
		TradeID: "t1", TraderAddress: "0xnew", ConditionID: "c1",
		Side: domain.SideBuy, Price: 0.08, USDValue: 6000, ExecutedAt: now,
	}
	row := domain.TradeRow{ID: 1, EnrichedTrade: domain.EnrichedTrade{Trade: trade}}

	alert, ok := s.scoreTrade(context.Background(), row, now)
	assert.True(t, ok)
	assert.Equal(t, 80, alert.Composite)
	assert.Equal(t, "t1", alert.TradeID)
	assert.Equal(t, domain.ProfitabilityPending, alert.ProfitabilityStatus)
	assert.ElementsMatch(t, []string{
		domain.LabelFreshWallet, domain.LabelOversized, domain.LabelNicheMarket,
		domain.LabelExtremeOdds, domain.LabelHighConviction,
	}, alert.Signals)
}

func TestScoreTrade_LowCompositeBelowThreshold(t *testing.T) {
	wallets := map[string]domain.Wallet{
		"0xold": {Address: "0xold", WinRateAllTime: 95, TradeCountAll: 100},
	}
	s := newTestScorer(t, wallets, map[string]float64{"c1": 5_000_000}, nil)
	require.NoError(t, s.projection.Refresh(context.Background()))

	now := time.Now()
	trade := domain.Trade{
		TradeID: "t2", TraderAddress: "0xold", ConditionID: "c1",
		Side: domain.SideBuy, Price: 0.5, USDValue: 100, ExecutedAt: now,
	}
	row := domain.TradeRow{ID: 2, EnrichedTrade: domain.EnrichedTrade{Trade: trade}}

	alert, ok := s.scoreTrade(context.Background(), row, now)
	assert.False(t, ok)
	assert.Less(t, alert.Composite, 50)
}
