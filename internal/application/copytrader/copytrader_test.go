package copytrader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/application/risk"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

func dec(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

type fakeWalletStore struct {
	wallets map[string]domain.Wallet
}

func (f *fakeWalletStore) ApplySchema(ctx context.Context) error                  { return nil }
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

type fakeWatchlistStore struct {
	entries map[string]ports.WatchlistEntry
}

func (f *fakeWatchlistStore) GetWatchlist(ctx context.Context) (map[string]ports.WatchlistEntry, error) {
	return f.entries, nil
}

type fakePositionStore struct {
	orders    map[string]domain.Order
	positions map[string]domain.TrackedPosition
	logs      []domain.CopyTradeLog
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{orders: map[string]domain.Order{}, positions: map[string]domain.TrackedPosition{}}
}

func (f *fakePositionStore) ApplySchema(ctx context.Context) error { return nil }
func (f *fakePositionStore) SaveOrder(ctx context.Context, order domain.Order, copiedFrom string) error {
	f.orders[order.OrderID] = order
	return nil
}
func (f *fakePositionStore) SavePosition(ctx context.Context, p domain.TrackedPosition) error {
	f.positions[p.TokenID] = p
	return nil
}
func (f *fakePositionStore) DeletePosition(ctx context.Context, tokenID string) error {
	delete(f.positions, tokenID)
	return nil
}
func (f *fakePositionStore) LoadPositions(ctx context.Context) ([]domain.TrackedPosition, error) {
	return nil, nil
}
func (f *fakePositionStore) LogCopyTrade(ctx context.Context, entry domain.CopyTradeLog) error {
	f.logs = append(f.logs, entry)
	return nil
}

// fakeExecutor implements ports.TradeExecutor with a paper-like fill
// rule: a BUY fills if price >= bestAsk, a SELL if price <= bestBid,
// otherwise the order stays open. This mirrors execution.go's
// placePaperOrder without depending on that package.
type fakeExecutor struct {
	bestBid, bestAsk float64
	paper            bool
	placed           []domain.Order
	failNext         bool
}

func (f *fakeExecutor) PlaceOrder(ctx context.Context, tokenID string, side domain.Side, size, price float64, orderType domain.OrderType) (domain.Order, error) {
	if f.failNext {
		return domain.Order{}, errors.New("execution failed")
	}
	o := domain.Order{
		OrderID: "order-" + uuid.NewString(),
		TokenID: tokenID,
		Side:    side,
		Size:    size,
		Price:   price,
		Status:  domain.OrderOpen,
	}
	fills := false
	switch side {
	case domain.SideBuy:
		fills = price >= f.bestAsk
	case domain.SideSell:
		fills = price <= f.bestBid
	}
	if fills {
		o.Status = domain.OrderFilled
		o.FilledSize = size
	}
	f.placed = append(f.placed, o)
	return o, nil
}
func (f *fakeExecutor) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}
func (f *fakeExecutor) GetOrder(ctx context.Context, orderID string) (domain.Order, bool, error) {
	return domain.Order{}, false, nil
}
func (f *fakeExecutor) GetOpenOrders(ctx context.Context) ([]domain.Order, error) { return nil, nil }
func (f *fakeExecutor) CancelAllOrders(ctx context.Context) (int, error)          { return 0, nil }
func (f *fakeExecutor) BestPrices(ctx context.Context, tokenID string) (float64, float64, error) {
	return f.bestBid, f.bestAsk, nil
}
func (f *fakeExecutor) Stats() domain.ClientStats { return domain.ClientStats{PaperTrading: f.paper} }
func (f *fakeExecutor) SetPaperMode(paper bool)   { f.paper = paper }

func testConfig() Config {
	return Config{
		Enabled:              true,
		PaperTrading:         true,
		MinCopytradeScore:    60,
		CopyFraction:         dec("0.1"),
		MinCopySizeUSD:       dec("5"),
		MaxCopySizeUSD:       dec("100"),
		MaxSingleOrderUSD:    dec("500"),
		MinTradeSizeUSD:      50,
		MaxDelay:             30 * time.Second,
		RecentCopiesCapacity: 10000,
		QualificationRefresh: time.Minute,
	}
}

func testRiskLimits() domain.RiskLimits {
	return domain.RiskLimits{
		MaxPositionSizeUSD:  dec("1000"),
		MaxTotalExposureUSD: dec("5000"),
		MaxSingleOrderUSD:   dec("500"),
		MaxDailyLossUSD:     dec("500"),
		MaxDailyOrders:      200,
		MinCopySizeUSD:      dec("5"),
		BlockedMarkets:      map[string]bool{},
	}
}

func newTestTrader(t *testing.T, wallets map[string]domain.Wallet, executor *fakeExecutor) (*Trader, *fakePositionStore) {
	t.Helper()
	qual := NewQualification(&fakeWalletStore{wallets: wallets}, &fakeWatchlistStore{}, 60)
	require.NoError(t, qual.Refresh(context.Background()))

	riskEngine := risk.New(testRiskLimits())
	store := newFakePositionStore()
	positions := risk.NewPositionTracker(store)

	tr := New(testConfig(), qual, riskEngine, positions, executor, store)
	return tr, store
}

// S1: whale trade from a qualified trader in paper mode.
func TestHandleTrade_S1_WhaleQualifiedPaperFills(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	executor := &fakeExecutor{bestBid: 0.29, bestAsk: 0.30, paper: true}
	tr, store := newTestTrader(t, wallets, executor)

	trade := domain.Trade{
		TradeID: "t1", TraderAddress: "0xA", ConditionID: "M",
		Side: domain.SideBuy, Price: 0.30, USDValue: 50000, ExecutedAt: time.Now(),
	}
	et := domain.EnrichedTrade{Trade: trade, IsWhale: true}

	tr.HandleTrade(context.Background(), et)

	require.Len(t, store.logs, 1)
	entry := store.logs[0]
	assert.Equal(t, domain.CopyStatusExecuted, entry.Status)
	assert.True(t, entry.CopySize.Sub(dec("333.33")).Abs().LessThan(dec("0.01")), "expected ~333.33 shares, got %s", entry.CopySize)

	state := tr.risk.State()
	assert.True(t, state.TotalExposureUSD.Equal(dec("100")), "expected $100 exposure recorded, got %s", state.TotalExposureUSD)
}

func TestHandleTrade_SkipsWhenDisabled(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	executor := &fakeExecutor{bestBid: 0.29, bestAsk: 0.30}
	tr, store := newTestTrader(t, wallets, executor)
	tr.SetEnabled(false)

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 50000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	assert.Empty(t, store.logs)
}

func TestHandleTrade_SkipsBelowMinTradeSize(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	tr, store := newTestTrader(t, wallets, &fakeExecutor{bestAsk: 0.3})

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 10, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	assert.Empty(t, store.logs)
}

func TestHandleTrade_SkipsStaleTrade(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	tr, store := newTestTrader(t, wallets, &fakeExecutor{bestAsk: 0.3})

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now().Add(-time.Minute)}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	assert.Empty(t, store.logs)
}

func TestHandleTrade_SkipsLowScore(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 40}}
	tr, store := newTestTrader(t, wallets, &fakeExecutor{bestAsk: 0.3})

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	assert.Empty(t, store.logs)
}

func TestHandleTrade_SkipsUnqualifiedAddress(t *testing.T) {
	tr, store := newTestTrader(t, map[string]domain.Wallet{}, &fakeExecutor{bestAsk: 0.3})

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xunknown", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	assert.Empty(t, store.logs)
}

func TestHandleTrade_DedupsRecentCopies(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	tr, store := newTestTrader(t, wallets, &fakeExecutor{bestBid: 0.29, bestAsk: 0.30})

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})

	assert.Len(t, store.logs, 1, "second delivery of the same trade_id must be skipped")
}

// S2-style: risk rejection records status=rejected and makes no CLOB call.
func TestHandleTrade_RiskRejectionLogsWithoutExecuting(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	executor := &fakeExecutor{bestBid: 0.29, bestAsk: 0.30}
	tr, store := newTestTrader(t, wallets, executor)
	tr.risk.ActivateKillSwitch("manual pause")

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})

	require.Len(t, store.logs, 1)
	assert.Equal(t, domain.CopyStatusRejected, store.logs[0].Status)
	assert.Contains(t, store.logs[0].RejectionReason, "kill switch")
	assert.Empty(t, executor.placed, "no CLOB call is made on rejection")
}

func TestHandleTrade_ExecutionFailureLogsFailed(t *testing.T) {
	wallets := map[string]domain.Wallet{"0xa": {Address: "0xa", CopytradeScore: 75}}
	executor := &fakeExecutor{bestBid: 0.29, bestAsk: 0.30, failNext: true}
	tr, store := newTestTrader(t, wallets, executor)

	trade := domain.Trade{TradeID: "t1", TraderAddress: "0xa", ConditionID: "M", Side: domain.SideBuy, Price: 0.3, USDValue: 1000, ExecutedAt: time.Now()}
	tr.HandleTrade(context.Background(), domain.EnrichedTrade{Trade: trade})

	require.Len(t, store.logs, 1)
	assert.Equal(t, domain.CopyStatusFailed, store.logs[0].Status)
}

func TestControls_SetPaperModePropagatesToExecutor(t *testing.T) {
	executor := &fakeExecutor{paper: true}
	tr, _ := newTestTrader(t, map[string]domain.Wallet{}, executor)

	tr.SetPaperMode(false)
	assert.False(t, tr.PaperMode())
	assert.False(t, executor.paper)
}

func TestControls_KillSwitch(t *testing.T) {
	tr, _ := newTestTrader(t, map[string]domain.Wallet{}, &fakeExecutor{})
	tr.ActivateKillSwitch("test")
	allowed, _ := tr.risk.CheckOrder("M", dec("10"), "")
	assert.False(t, allowed)

	tr.DeactivateKillSwitch()
	allowed, _ = tr.risk.CheckOrder("M", dec("10"), "")
	assert.True(t, allowed)
}
