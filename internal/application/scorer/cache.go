package scorer

import (
	"context"
	"sync"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// ageEntry is a resolved (age, nonce) pair for one address, cached for the
// AgeCache's configured ttl so repeat offenders don't re-trigger a wallets
// lookup or an RPC call on every trade.
type ageEntry struct {
	ageDays   float64
	nonce     int64
	expiresAt time.Time
}

// AgeCache caches wallet-age resolution, keyed by address.
type AgeCache struct {
	mu  sync.Mutex
	m   map[string]ageEntry
	ttl time.Duration
}

// NewAgeCache builds an AgeCache with the given TTL.
func NewAgeCache(ttl time.Duration) *AgeCache {
	return &AgeCache{m: make(map[string]ageEntry), ttl: ttl}
}

func (c *AgeCache) get(address string, now time.Time) (ageEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[address]
	if !ok || now.After(e.expiresAt) {
		return ageEntry{}, false
	}
	return e, true
}

func (c *AgeCache) set(address string, ageDays float64, nonce int64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[address] = ageEntry{ageDays: ageDays, nonce: nonce, expiresAt: now.Add(c.ttl)}
}

// volEntry is a cached 24h market volume for one condition_id.
type volEntry struct {
	volume    float64
	expiresAt time.Time
}

// VolumeCache caches 24h market volume, keyed by condition_id.
type VolumeCache struct {
	mu  sync.Mutex
	m   map[string]volEntry
	ttl time.Duration
}

// NewVolumeCache builds a VolumeCache with the given TTL.
func NewVolumeCache(ttl time.Duration) *VolumeCache {
	return &VolumeCache{m: make(map[string]volEntry), ttl: ttl}
}

func (c *VolumeCache) get(conditionID string, now time.Time) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[conditionID]
	if !ok || now.After(e.expiresAt) {
		return 0, false
	}
	return e.volume, true
}

func (c *VolumeCache) set(conditionID string, volume float64, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[conditionID] = volEntry{volume: volume, expiresAt: now.Add(c.ttl)}
}

// convictionCapacity bounds the per-(address, condition_id) side history so
// a wallet trading the same market for months can't grow the cache without
// bound; only the most recent trades matter for a conviction read.
const convictionCapacity = 50

// ConvictionCache tracks a bounded per-(address, condition_id) history of
// trade sides, used to score directional one-sidedness.
type ConvictionCache struct {
	mu sync.Mutex
	m  map[string][]domain.Side
}

// NewConvictionCache builds an empty ConvictionCache.
func NewConvictionCache() *ConvictionCache {
	return &ConvictionCache{m: make(map[string][]domain.Side)}
}

// Record appends side to the (address, conditionID) history, capped at
// convictionCapacity, and returns the buy/sell counts over that history.
func (c *ConvictionCache) Record(address, conditionID string, side domain.Side) (buys, sells int) {
	key := address + "|" + conditionID
	c.mu.Lock()
	defer c.mu.Unlock()

	hist := append(c.m[key], side)
	if len(hist) > convictionCapacity {
		hist = hist[len(hist)-convictionCapacity:]
	}
	c.m[key] = hist

	for _, s := range hist {
		if s == domain.SideBuy {
			buys++
		} else {
			sells++
		}
	}
	return buys, sells
}

// ProjectionCache mirrors the wallets table's profitability-relevant
// columns for every wallet with any trading history, refreshed on a timer
// by a paged full scan rather than a per-lookup query.
type ProjectionCache struct {
	mu       sync.RWMutex
	m        map[string]domain.Wallet
	store    ports.WalletStore
	pageSize int
}

// NewProjectionCache builds a ProjectionCache backed by store.
func NewProjectionCache(store ports.WalletStore, pageSize int) *ProjectionCache {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &ProjectionCache{m: make(map[string]domain.Wallet), store: store, pageSize: pageSize}
}

// Get returns the cached wallet projection for address, if any.
func (p *ProjectionCache) Get(address string) (domain.Wallet, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	w, ok := p.m[address]
	return w, ok
}

// Refresh reloads the full projection from the store.
func (p *ProjectionCache) Refresh(ctx context.Context) error {
	m, err := p.store.LoadProfitabilityProjection(ctx, p.pageSize)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.m = m
	p.mu.Unlock()
	return nil
}

// Run periodically refreshes the projection until ctx is cancelled. Refresh
// errors are left to the caller to log; Run itself never returns early on a
// failed refresh so a transient DB error doesn't stop future retries.
func (p *ProjectionCache) Run(ctx context.Context, interval time.Duration, onErr func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil && onErr != nil {
				onErr(err)
			}
		}
	}
}
