package scorer

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgeCache_MissThenHit(t *testing.T) {
	c := NewAgeCache(time.Hour)
	now := time.Now()
	_, ok := c.get("0xabc", now)
	assert.False(t, ok)

	c.set("0xabc", 5, 10, now)
	e, ok := c.get("0xabc", now.Add(30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 5.0, e.ageDays)
	assert.Equal(t, int64(10), e.nonce)
}

func TestAgeCache_ExpiresAfterTTL(t *testing.T) {
	c := NewAgeCache(time.Hour)
	now := time.Now()
	c.set("0xabc", 5, 10, now)
	_, ok := c.get("0xabc", now.Add(61*time.Minute))
	assert.False(t, ok, "entry past TTL should be treated as a miss")
}

func TestVolumeCache_MissThenHit(t *testing.T) {
	c := NewVolumeCache(time.Hour)
	now := time.Now()
	_, ok := c.get("c1", now)
	assert.False(t, ok)

	c.set("c1", 50000, now)
	v, ok := c.get("c1", now.Add(30*time.Minute))
	require.True(t, ok)
	assert.Equal(t, 50000.0, v)
}

func TestConvictionCache_CountsBuysAndSells(t *testing.T) {
	c := NewConvictionCache()
	c.Record("0xabc", "c1", domain.SideBuy)
	c.Record("0xabc", "c1", domain.SideBuy)
	buys, sells := c.Record("0xabc", "c1", domain.SideSell)
	assert.Equal(t, 2, buys)
	assert.Equal(t, 1, sells)
}

func TestConvictionCache_SeparateKeysDontMix(t *testing.T) {
	c := NewConvictionCache()
	c.Record("0xabc", "c1", domain.SideBuy)
	buys, sells := c.Record("0xabc", "c2", domain.SideSell)
	assert.Equal(t, 0, buys)
	assert.Equal(t, 1, sells)
}

func TestConvictionCache_CapsHistoryAtFifty(t *testing.T) {
	c := NewConvictionCache()
	for i := 0; i < 60; i++ {
		c.Record("0xabc", "c1", domain.SideBuy)
	}
	buys, sells := c.Record("0xabc", "c1", domain.SideSell)
	assert.Equal(t, 49, buys, "only the most recent 50 observations (including this one) are kept")
	assert.Equal(t, 1, sells)
}

type fakeProjectionStore struct {
	wallets map[string]domain.Wallet
}

func (f *fakeProjectionStore) ApplySchema(ctx context.Context) error             { return nil }
func (f *fakeProjectionStore) UpsertWallet(ctx context.Context, w domain.Wallet) error { return nil }
func (f *fakeProjectionStore) GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error) {
	w, ok := f.wallets[address]
	return w, ok, nil
}
func (f *fakeProjectionStore) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeProjectionStore) LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error) {
	return f.wallets, nil
}

func TestProjectionCache_RefreshThenGet(t *testing.T) {
	store := &fakeProjectionStore{wallets: map[string]domain.Wallet{
		"0xabc": {Address: "0xabc", PnLAllTime: 100},
	}}
	p := NewProjectionCache(store, 0)

	_, ok := p.Get("0xabc")
	assert.False(t, ok, "nothing cached before the first refresh")

	require.NoError(t, p.Refresh(context.Background()))
	w, ok := p.Get("0xabc")
	require.True(t, ok)
	assert.Equal(t, 100.0, w.PnLAllTime)
}
