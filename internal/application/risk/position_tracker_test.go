package risk

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polybot/internal/domain"
)

type fakePositionStore struct {
	saved   map[string]domain.TrackedPosition
	deleted map[string]bool
	loaded  []domain.TrackedPosition
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{saved: map[string]domain.TrackedPosition{}, deleted: map[string]bool{}}
}

func (f *fakePositionStore) ApplySchema(ctx context.Context) error { return nil }
func (f *fakePositionStore) SaveOrder(ctx context.Context, order domain.Order, copiedFrom string) error {
	return nil
}
func (f *fakePositionStore) SavePosition(ctx context.Context, p domain.TrackedPosition) error {
	f.saved[p.TokenID] = p
	delete(f.deleted, p.TokenID)
	return nil
}
func (f *fakePositionStore) DeletePosition(ctx context.Context, tokenID string) error {
	f.deleted[tokenID] = true
	delete(f.saved, tokenID)
	return nil
}
func (f *fakePositionStore) LoadPositions(ctx context.Context) ([]domain.TrackedPosition, error) {
	return f.loaded, nil
}
func (f *fakePositionStore) LogCopyTrade(ctx context.Context, entry domain.CopyTradeLog) error {
	return nil
}

func TestPositionTracker_OpensNewPosition(t *testing.T) {
	store := newFakePositionStore()
	tr := NewPositionTracker(store)

	now := time.Now()
	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.3"), "0xsource", now))

	p, ok := tr.Get("tok1")
	require.True(t, ok)
	assert.True(t, p.Size.Equal(d("100")))
	assert.True(t, p.AvgPrice.Equal(d("0.3")))
	assert.Equal(t, "0xsource", p.CopiedFrom)
	assert.Contains(t, store.saved, "tok1")
}

func TestPositionTracker_SameSideReaveragesPrice(t *testing.T) {
	store := newFakePositionStore()
	tr := NewPositionTracker(store)
	now := time.Now()

	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.20"), "", now))
	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.40"), "", now))

	p, ok := tr.Get("tok1")
	require.True(t, ok)
	assert.True(t, p.Size.Equal(d("200")))
	assert.True(t, p.AvgPrice.Equal(d("0.30")), "expected re-averaged price 0.30, got %s", p.AvgPrice)
}

func TestPositionTracker_OppositeSidePartialClose(t *testing.T) {
	store := newFakePositionStore()
	tr := NewPositionTracker(store)
	now := time.Now()

	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.30"), "", now))
	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideSell, d("40"), d("0.35"), "", now))

	p, ok := tr.Get("tok1")
	require.True(t, ok)
	assert.True(t, p.Size.Equal(d("60")))
	assert.True(t, p.AvgPrice.Equal(d("0.30")), "partial close doesn't change the remaining cost basis")
}

func TestPositionTracker_OppositeSideFullCloseDeletes(t *testing.T) {
	store := newFakePositionStore()
	tr := NewPositionTracker(store)
	now := time.Now()

	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.30"), "", now))
	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideSell, d("100"), d("0.35"), "", now))

	_, ok := tr.Get("tok1")
	assert.False(t, ok)
	assert.True(t, store.deleted["tok1"])
}

func TestPositionTracker_UpdatePricesRecomputesUnrealizedPnL(t *testing.T) {
	store := newFakePositionStore()
	tr := NewPositionTracker(store)
	now := time.Now()

	require.NoError(t, tr.ApplyFill(context.Background(), "tok1", "m1", "c1", domain.SideBuy, d("100"), d("0.30"), "", now))

	tr.UpdatePrices(context.Background(), map[string]decimal.Decimal{"tok1": d("0.40")})

	p, ok := tr.Get("tok1")
	require.True(t, ok)
	assert.True(t, p.CurrentPrice.Equal(d("0.40")))
	assert.True(t, p.UnrealizedPnL.Equal(d("10")), "expected (0.40-0.30)*100 = 10, got %s", p.UnrealizedPnL)
}

func TestPositionTracker_Load(t *testing.T) {
	store := newFakePositionStore()
	store.loaded = []domain.TrackedPosition{
		{TokenID: "tok1", Size: d("50"), AvgPrice: d("0.5"), Side: domain.SideBuy},
	}
	tr := NewPositionTracker(store)
	require.NoError(t, tr.Load(context.Background()))

	p, ok := tr.Get("tok1")
	require.True(t, ok)
	assert.True(t, p.Size.Equal(d("50")))
}
