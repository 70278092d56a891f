package funnel

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

func newFakeWalletStore() *fakeWalletStore {
	return &fakeWalletStore{wallets: make(map[string]domain.Wallet)}
}

func (f *fakeWalletStore) ApplySchema(ctx context.Context) error { return nil }

func (f *fakeWalletStore) UpsertWallet(ctx context.Context, w domain.Wallet) error {
	f.wallets[w.Address] = w
	return nil
}

func (f *fakeWalletStore) GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error) {
	w, ok := f.wallets[address]
	return w, ok, nil
}

func (f *fakeWalletStore) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	out := make(map[string]time.Time, len(f.wallets))
	for addr := range f.wallets {
		out[addr] = time.Now()
	}
	return out, nil
}

func (f *fakeWalletStore) LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error) {
	return f.wallets, nil
}

type fakeCatalog struct {
	balances map[string]float64
	open     map[string][]domain.Position
	closed   map[string][]domain.ClosedPosition
}

func (f *fakeCatalog) GetPortfolioValue(ctx context.Context, address string) (float64, error) {
	return f.balances[address], nil
}

func (f *fakeCatalog) GetPositions(ctx context.Context, address string) ([]domain.Position, error) {
	return f.open[address], nil
}

func (f *fakeCatalog) GetClosedPositions(ctx context.Context, address string) ([]domain.ClosedPosition, error) {
	return f.closed[address], nil
}

func (f *fakeCatalog) GetProfile(ctx context.Context, address string) (ports.Profile, error) {
	return ports.Profile{}, nil
}

func (f *fakeCatalog) GetMarketVolume24h(ctx context.Context, conditionID string) (float64, error) {
	return 0, nil
}

type fakeFunnelStore struct {
	runs  []domain.FunnelRun
	stats []domain.FunnelStageStats
}

func (f *fakeFunnelStore) ApplySchema(ctx context.Context) error { return nil }

func (f *fakeFunnelStore) SaveRun(ctx context.Context, run domain.FunnelRun) error {
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeFunnelStore) SaveStageStats(ctx context.Context, runID string, stats domain.FunnelStageStats) error {
	f.stats = append(f.stats, stats)
	return nil
}

func testConfig() Config {
	return Config{
		Stage1MinTrades:         10,
		Stage2MinPortfolioValue: 200,
		Stage3MinPositionSize:   10,
		Stage3RequirePositions:  false,
		Stage4MinWinRate:        40,
		Stage4MinTotalPnL:       0,
		Stage4RequireBoth:       false,
		Stage6MinScore:          60,
		BatchSize:               50,
		Concurrency:             4,
	}
}

func closedWin(n int) []domain.ClosedPosition {
	out := make([]domain.ClosedPosition, n)
	for i := range out {
		out[i] = domain.ClosedPosition{
			ConditionID: "c" + string(rune('a'+i)),
			Outcome:     "Yes",
			Slug:        "market-" + string(rune('a'+i)),
			Category:    "politics",
			TotalBought: 100,
			AvgPrice:    0.4,
			RealizedPnL: 50,
			IsWin:       true,
			ResolvedAt:  time.Now().Add(-time.Duration(i) * time.Hour),
		}
	}
	return out
}

func TestRunOnce_QualifiedWhaleSurvivesAllStages(t *testing.T) {
	wallets := newFakeWalletStore()
	require.NoError(t, wallets.UpsertWallet(context.Background(), domain.Wallet{
		Address: "0xwhale", TradeCountAll: 50,
	}))

	catalog := &fakeCatalog{
		balances: map[string]float64{"0xwhale": 5000},
		open: map[string][]domain.Position{
			"0xwhale": {{ConditionID: "c1", Outcome: "Yes", Slug: "market-1", Category: "politics", InitialValue: 100, AvgPrice: 0.4}},
		},
		closed: map[string][]domain.ClosedPosition{"0xwhale": closedWin(10)},
	}
	store := &fakeFunnelStore{}

	r := New(testConfig(), wallets, catalog, store)
	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, run.Done)

	w, ok, err := wallets.GetWallet(context.Background(), "0xwhale")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "funnel", w.Source)
	assert.Equal(t, "politics", w.Category)
	assert.Equal(t, 11, w.UniqueMarkets, "1 open position's market + 10 distinct closed-position markets")
	assert.Greater(t, w.CopytradeScore, 0)

	assert.Equal(t, 6, len(run.Stages))
	for i, s := range run.Stages {
		assert.Equal(t, i+1, s.Stage)
		assert.Equal(t, 1, s.Processed, "stage %d", i+1)
	}
}

func TestRunOnce_EliminatesLowTradeCountAtStage1(t *testing.T) {
	wallets := newFakeWalletStore()
	require.NoError(t, wallets.UpsertWallet(context.Background(), domain.Wallet{
		Address: "0xnew", TradeCountAll: 2,
	}))
	catalog := &fakeCatalog{}
	store := &fakeFunnelStore{}

	r := New(testConfig(), wallets, catalog, store)
	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Stages[0].Processed)
	assert.Equal(t, 0, run.Stages[0].Qualified)
	assert.Equal(t, 0, run.Stages[1].Processed, "eliminated wallets never reach later stages")
}

func TestRunOnce_EliminatesLowBalanceAtStage2(t *testing.T) {
	wallets := newFakeWalletStore()
	require.NoError(t, wallets.UpsertWallet(context.Background(), domain.Wallet{
		Address: "0xpoor", TradeCountAll: 20,
	}))
	catalog := &fakeCatalog{balances: map[string]float64{"0xpoor": 50}}
	store := &fakeFunnelStore{}

	r := New(testConfig(), wallets, catalog, store)
	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Stages[0].Qualified)
	assert.Equal(t, 0, run.Stages[1].Qualified)
	assert.Equal(t, 0, run.Stages[2].Processed)
}

func TestRunOnce_RequirePositionsEliminatesEmptyBook(t *testing.T) {
	wallets := newFakeWalletStore()
	require.NoError(t, wallets.UpsertWallet(context.Background(), domain.Wallet{
		Address: "0xflat", TradeCountAll: 20,
	}))
	catalog := &fakeCatalog{balances: map[string]float64{"0xflat": 1000}}
	store := &fakeFunnelStore{}

	cfg := testConfig()
	cfg.Stage3RequirePositions = true
	r := New(cfg, wallets, catalog, store)
	run, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Stages[1].Qualified)
	assert.Equal(t, 0, run.Stages[2].Qualified)
}

func TestStage4Filter_RequireOneByDefault(t *testing.T) {
	f := stage4Filter{minWinRate: 40, minTotalPnL: 0}
	assert.True(t, f.Evaluate(50, -10), "win rate alone clears the floor")
	assert.True(t, f.Evaluate(10, 5), "pnl alone clears the floor")
	assert.False(t, f.Evaluate(10, -5))
}

func TestStage4Filter_RequireBoth(t *testing.T) {
	f := stage4Filter{minWinRate: 40, minTotalPnL: 0, requireBoth: true}
	assert.False(t, f.Evaluate(50, -10))
	assert.True(t, f.Evaluate(50, 10))
}

func TestCopytradeScore_StrongTraderScoresHigh(t *testing.T) {
	w := domain.Wallet{
		TradeCountAll:   120,
		DrawdownAllTime: 5,
		Window30d:       domain.WindowMetrics{WinRate: 80, ROI: 60},
	}
	assert.Equal(t, 100, copytradeScore(w))
}

func TestCopytradeScore_WeakTraderScoresLow(t *testing.T) {
	w := domain.Wallet{
		TradeCountAll:   5,
		DrawdownAllTime: 90,
		Window30d:       domain.WindowMetrics{WinRate: 10, ROI: -20},
	}
	assert.Equal(t, 0, copytradeScore(w))
}
