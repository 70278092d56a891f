package scorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeAgeWalletStore struct {
	wallets map[string]domain.Wallet
}

func (f *fakeAgeWalletStore) ApplySchema(ctx context.Context) error             { return nil }
func (f *fakeAgeWalletStore) UpsertWallet(ctx context.Context, w domain.Wallet) error { return nil }
func (f *fakeAgeWalletStore) GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error) {
	w, ok := f.wallets[address]
	return w, ok, nil
}
func (f *fakeAgeWalletStore) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	return nil, nil
}
func (f *fakeAgeWalletStore) LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error) {
	return f.wallets, nil
}

type fakeChainProvider struct {
	nonce int64
	err   error
}

func (f *fakeChainProvider) NonceAt(ctx context.Context, address string) (int64, error) {
	return f.nonce, f.err
}

func TestResolveWalletAge_UsesAccountCreated(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	created := now.Add(-3 * 24 * time.Hour)
	wallets := &fakeAgeWalletStore{wallets: map[string]domain.Wallet{
		"0xabc": {Address: "0xabc", AccountCreated: &created},
	}}
	cache := NewAgeCache(time.Hour)

	ageDays, nonce := resolveWalletAge(context.Background(), "0xabc", cache, wallets, &fakeChainProvider{nonce: 2}, now)
	assert.InDelta(t, 3.0, ageDays, 0.01)
	assert.Equal(t, int64(2), nonce)
}

func TestResolveWalletAge_EstablishedByTradeCount(t *testing.T) {
	now := time.Now()
	wallets := &fakeAgeWalletStore{wallets: map[string]domain.Wallet{
		"0xabc": {Address: "0xabc", TradeCountAll: 50},
	}}
	cache := NewAgeCache(time.Hour)

	ageDays, _ := resolveWalletAge(context.Background(), "0xabc", cache, wallets, &fakeChainProvider{nonce: 1}, now)
	assert.Equal(t, float64(establishedAgeDays), ageDays)
}

func TestResolveWalletAge_UnknownWalletDefaultsEstablished(t *testing.T) {
	now := time.Now()
	wallets := &fakeAgeWalletStore{wallets: map[string]domain.Wallet{}}
	cache := NewAgeCache(time.Hour)

	ageDays, nonce := resolveWalletAge(context.Background(), "0xnew", cache, wallets, nil, now)
	assert.Equal(t, float64(unknownAgeDays), ageDays)
	assert.Equal(t, int64(establishedNonce), nonce, "no chain provider configured falls back to the established default")
}

func TestResolveWalletAge_NonceRPCFailureFallsBackToEstablished(t *testing.T) {
	now := time.Now()
	wallets := &fakeAgeWalletStore{wallets: map[string]domain.Wallet{}}
	cache := NewAgeCache(time.Hour)

	_, nonce := resolveWalletAge(context.Background(), "0xnew", cache, wallets, &fakeChainProvider{err: errors.New("rpc down")}, now)
	assert.Equal(t, int64(establishedNonce), nonce)
}

func TestResolveWalletAge_CachedResultSkipsLookups(t *testing.T) {
	now := time.Now()
	cache := NewAgeCache(time.Hour)
	cache.set("0xabc", 1.0, 3, now)

	ageDays, nonce := resolveWalletAge(context.Background(), "0xabc", cache, &fakeAgeWalletStore{}, nil, now.Add(time.Minute))
	assert.Equal(t, 1.0, ageDays)
	assert.Equal(t, int64(3), nonce)
}
