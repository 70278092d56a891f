// Package discovery ensures every wallet whose trade exceeds a discovery
// threshold has an analytics row no older than the reanalysis cooldown.
package discovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Config collects discovery's tunables, sourced from config.DiscoveryConfig.
type Config struct {
	NumWorkers       int
	RequestInterval  time.Duration
	QueueSize        int
	ReanalysisCooldown time.Duration
	ThresholdUSD     float64
}

// Engine is the wallet discovery worker pool.
type Engine struct {
	cfg     Config
	catalog ports.CatalogClient
	store   ports.WalletStore
	cache   *knownCache
	queue   chan string
}

// New builds an Engine with all its dependencies injected.
func New(cfg Config, catalog ports.CatalogClient, store ports.WalletStore) *Engine {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 5
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 5000
	}
	return &Engine{
		cfg:     cfg,
		catalog: catalog,
		store:   store,
		cache:   newKnownCache(),
		queue:   make(chan string, cfg.QueueSize),
	}
}

// HandleTrade evaluates whether the trade's address needs (re-)analysis
// and enqueues it if so. On overflow the address is dropped with a warning
// log and no error is returned — it is re-queued the next time it trades.
func (e *Engine) HandleTrade(t domain.Trade) {
	if t.USDValue < e.cfg.ThresholdUSD {
		return
	}
	if !e.cache.shouldEnqueue(t.TraderAddress, e.cfg.ReanalysisCooldown, time.Now()) {
		return
	}
	select {
	case e.queue <- t.TraderAddress:
	default:
		e.cache.markFailed(t.TraderAddress)
		slog.Warn("discovery: queue full, dropping wallet", "address", t.TraderAddress)
	}
}

// Run seeds the known-wallet cache from the store, starts NumWorkers
// long-lived workers, and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	known, err := e.store.KnownAddresses(ctx)
	if err != nil {
		return err
	}
	e.cache.seed(known)

	slog.Info("discovery starting", "workers", e.cfg.NumWorkers, "known_wallets", len(known))

	done := make(chan struct{}, e.cfg.NumWorkers)
	for i := 0; i < e.cfg.NumWorkers; i++ {
		go func(id int) {
			e.worker(ctx, id)
			done <- struct{}{}
		}(i)
	}

	for i := 0; i < e.cfg.NumWorkers; i++ {
		<-done
	}
	slog.Info("discovery stopped")
	return nil
}

// worker pulls addresses off the queue, pacing its own outbound requests by
// at least RequestInterval between fetches.
func (e *Engine) worker(ctx context.Context, id int) {
	var lastRequest time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case address := <-e.queue:
			if wait := e.cfg.RequestInterval - time.Since(lastRequest); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return
				}
			}
			lastRequest = time.Now()
			e.analyze(ctx, address)
		}
	}
}

func (e *Engine) analyze(ctx context.Context, address string) {
	open, closed, balance, profile, err := fetchWalletData(ctx, e.catalog, address)
	if err != nil {
		slog.Warn("discovery: fetch failed", "address", address, "err", err)
		e.cache.markFailed(address)
		return
	}

	w := analyzeWallet(address, open, closed, balance, profile.Username, accountCreatedTime(profile.AccountCreated), time.Now())
	if err := e.store.UpsertWallet(ctx, w); err != nil {
		slog.Warn("discovery: upsert failed", "address", address, "err", err)
		e.cache.markFailed(address)
		return
	}

	e.cache.markDone(address, time.Now())
}

func accountCreatedTime(unixSeconds *int64) *time.Time {
	if unixSeconds == nil {
		return nil
	}
	t := time.Unix(*unixSeconds, 0).UTC()
	return &t
}

// fetchWalletData fetches open positions, closed positions, balance, and
// profile in parallel. Missing data (an empty response) is not an error;
// only a transport-level failure is.
func fetchWalletData(ctx context.Context, catalog ports.CatalogClient, address string) ([]domain.Position, []domain.ClosedPosition, float64, ports.Profile, error) {
	type result struct {
		open    []domain.Position
		closed  []domain.ClosedPosition
		balance float64
		profile ports.Profile
		err     error
	}

	openCh := make(chan result, 1)
	closedCh := make(chan result, 1)
	balanceCh := make(chan result, 1)
	profileCh := make(chan result, 1)

	go func() {
		open, err := catalog.GetPositions(ctx, address)
		openCh <- result{open: open, err: err}
	}()
	go func() {
		closed, err := catalog.GetClosedPositions(ctx, address)
		closedCh <- result{closed: closed, err: err}
	}()
	go func() {
		balance, err := catalog.GetPortfolioValue(ctx, address)
		balanceCh <- result{balance: balance, err: err}
	}()
	go func() {
		profile, err := catalog.GetProfile(ctx, address)
		profileCh <- result{profile: profile, err: err}
	}()

	open := <-openCh
	closed := <-closedCh
	balance := <-balanceCh
	profile := <-profileCh

	if open.err != nil {
		return nil, nil, 0, ports.Profile{}, open.err
	}
	if closed.err != nil {
		return nil, nil, 0, ports.Profile{}, closed.err
	}
	if balance.err != nil {
		return nil, nil, 0, ports.Profile{}, balance.err
	}
	if profile.err != nil {
		return nil, nil, 0, ports.Profile{}, profile.err
	}

	return open.open, closed.closed, balance.balance, profile.profile, nil
}
