// Package funnel implements the six-stage batch funnel (§4.8): a
// contract-only narrowing pass over the known wallet set, independent of
// the streaming pipeline, that reuses the discovery engine's metric
// formulae to progressively eliminate, annotate, and finally classify
// candidates with the copytrade_score and category the copy trader's
// qualification cache (internal/application/copytrader) reads.
package funnel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Config collects the funnel's per-stage thresholds, sourced from
// config.FunnelConfig.
type Config struct {
	Stage1MinTrades int

	Stage2MinPortfolioValue float64

	Stage3MinPositionSize  float64
	Stage3RequirePositions bool

	Stage4MinWinRate  float64
	Stage4MinTotalPnL float64
	Stage4RequireBoth bool

	Stage6MinScore int

	BatchSize   int
	Concurrency int
}

// Runner is one configured instance of the six-stage funnel.
type Runner struct {
	cfg     Config
	wallets ports.WalletStore
	catalog ports.CatalogClient
	store   ports.FunnelStore

	stage1 stage1Filter
	stage2 stage2Filter
	stage3 stage3Filter
	stage4 stage4Filter
}

// New builds a Runner with its stage filters loaded from cfg once, at
// startup, per §4.8's "policy object loaded at startup" contract.
func New(cfg Config, wallets ports.WalletStore, catalog ports.CatalogClient, store ports.FunnelStore) *Runner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Runner{
		cfg:     cfg,
		wallets: wallets,
		catalog: catalog,
		store:   store,
		stage1:  stage1Filter{minTrades: cfg.Stage1MinTrades},
		stage2:  stage2Filter{minPortfolioValue: cfg.Stage2MinPortfolioValue},
		stage3:  stage3Filter{minPositionSize: cfg.Stage3MinPositionSize, requirePositions: cfg.Stage3RequirePositions},
		stage4:  stage4Filter{minWinRate: cfg.Stage4MinWinRate, minTotalPnL: cfg.Stage4MinTotalPnL, requireBoth: cfg.Stage4RequireBoth},
	}
}

// Run ticks RunOnce every interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	slog.Info("funnel starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := r.RunOnce(ctx); err != nil {
		slog.Warn("funnel: initial run failed", "err", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("funnel stopped")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				slog.Warn("funnel: run failed", "err", err)
			}
		}
	}
}

// RunOnce executes one end-to-end pass over every known wallet, recording
// per-stage counters as it goes.
func (r *Runner) RunOnce(ctx context.Context) (domain.FunnelRun, error) {
	run := domain.FunnelRun{RunID: newRunID(), Started: true}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return run, err
	}

	known, err := r.wallets.KnownAddresses(ctx)
	if err != nil {
		return run, err
	}
	addresses := make([]string, 0, len(known))
	for addr := range known {
		addresses = append(addresses, addr)
	}

	candidates := r.runStage1(ctx, &run, addresses)
	candidates = r.runStage2(ctx, &run, candidates)
	candidates = r.runStage3(ctx, &run, candidates)
	candidates = r.runStage4(ctx, &run, candidates)
	candidates = r.runStage5(ctx, &run, candidates)
	r.runStage6(ctx, &run, candidates)

	run.Done = true
	if err := r.store.SaveRun(ctx, run); err != nil {
		return run, err
	}
	slog.Info("funnel run complete", "run_id", run.RunID, "final_qualified", len(candidates))
	return run, nil
}

// candidate carries a wallet's accumulated data between stages; later
// stages see whatever the earlier ones fetched, avoiding a re-fetch.
type candidate struct {
	address string
	wallet  domain.Wallet
	open    []domain.Position
	closed  []domain.ClosedPosition
	balance float64
}

func (r *Runner) recordStage(ctx context.Context, run *domain.FunnelRun, stage int, name string, processed, qualified int) {
	stats := domain.FunnelStageStats{Stage: stage, Name: name, Processed: processed, Qualified: qualified, Eliminated: processed - qualified}
	run.Stages[stage-1] = stats
	if err := r.store.SaveStageStats(ctx, run.RunID, stats); err != nil {
		slog.Warn("funnel: save stage stats failed", "stage", stage, "err", err)
	}
}

// runStage1 eliminates wallets below the trade-count floor, using the
// trade_count_all already on file (populated by discovery).
func (r *Runner) runStage1(ctx context.Context, run *domain.FunnelRun, addresses []string) []candidate {
	out := make([]candidate, 0, len(addresses))
	for _, addr := range addresses {
		w, ok, err := r.wallets.GetWallet(ctx, addr)
		if err != nil || !ok {
			continue
		}
		if r.stage1.Evaluate(w) {
			out = append(out, candidate{address: addr, wallet: w})
		}
	}
	r.recordStage(ctx, run, 1, "goldsky extraction", len(addresses), len(out))
	return out
}

// runStage2 fetches each candidate's portfolio value and eliminates those
// below the balance floor.
func (r *Runner) runStage2(ctx context.Context, run *domain.FunnelRun, in []candidate) []candidate {
	out := r.mapConcurrent(ctx, in, func(c candidate) (candidate, bool) {
		balance, err := r.catalog.GetPortfolioValue(ctx, c.address)
		if err != nil {
			return c, false
		}
		c.balance = balance
		c.wallet.Balance = balance
		return c, r.stage2.Evaluate(balance)
	})
	r.recordStage(ctx, run, 2, "balance check", len(in), len(out))
	return out
}

// runStage3 fetches positions and eliminates wallets whose book doesn't
// clear the minimum position size (or is empty, if required).
func (r *Runner) runStage3(ctx context.Context, run *domain.FunnelRun, in []candidate) []candidate {
	out := r.mapConcurrent(ctx, in, func(c candidate) (candidate, bool) {
		open, err := r.catalog.GetPositions(ctx, c.address)
		if err != nil {
			return c, false
		}
		c.open = open
		return c, r.stage3.Evaluate(open)
	})
	r.recordStage(ctx, run, 3, "position analysis", len(in), len(out))
	return out
}

// runStage4 fetches closed positions, folds them into trades per §4.3,
// and eliminates wallets that miss the win-rate/pnl floors.
func (r *Runner) runStage4(ctx context.Context, run *domain.FunnelRun, in []candidate) []candidate {
	out := r.mapConcurrent(ctx, in, func(c candidate) (candidate, bool) {
		closed, err := r.catalog.GetClosedPositions(ctx, c.address)
		if err != nil {
			return c, false
		}
		c.closed = closed
		c.wallet = domain.AnalyzeWallet(c.address, c.open, c.closed, c.balance, c.wallet.Username, c.wallet.AccountCreated, time.Now())
		return c, r.stage4.Evaluate(c.wallet.Window30d.WinRate, c.wallet.Window30d.PnL)
	})
	r.recordStage(ctx, run, 4, "win rate calc", len(in), len(out))
	return out
}

// runStage5 computes the behavioral/insider-adjacent signals onto every
// surviving wallet and persists them. It does not eliminate.
func (r *Runner) runStage5(ctx context.Context, run *domain.FunnelRun, in []candidate) []candidate {
	for i := range in {
		c := &in[i]
		c.wallet.UniqueMarkets = domain.UniqueMarkets(c.open, c.closed)
		c.wallet.MaxDrawdown = domain.MaxDrawdown(c.closed, c.wallet.PnLAllTime)
		c.wallet.PositionConcentration = domain.PositionConcentration(c.open, c.closed)
		c.wallet.AvgEntryProbability = domain.AvgEntryProbability(c.open, c.closed)
		c.wallet.PnLConcentration = domain.PnLConcentration(c.closed)
		c.wallet.CategoryConcentration = domain.CategoryConcentration(c.open, c.closed)
		c.wallet.Category = domain.DominantCategory(c.open, c.closed)
		if err := r.wallets.UpsertWallet(ctx, c.wallet); err != nil {
			slog.Warn("funnel: stage5 upsert failed", "address", c.address, "err", err)
		}
	}
	r.recordStage(ctx, run, 5, "deep analysis", len(in), len(in))
	return in
}

// runStage6 scores every surviving wallet's copy-trade fitness and
// persists the final classification. It does not eliminate.
func (r *Runner) runStage6(ctx context.Context, run *domain.FunnelRun, in []candidate) {
	qualified := 0
	for i := range in {
		c := &in[i]
		c.wallet.CopytradeScore = copytradeScore(c.wallet)
		c.wallet.Source = "funnel"
		if c.wallet.CopytradeScore >= r.cfg.Stage6MinScore {
			qualified++
		}
		if err := r.wallets.UpsertWallet(ctx, c.wallet); err != nil {
			slog.Warn("funnel: stage6 upsert failed", "address", c.address, "err", err)
		}
	}
	r.recordStage(ctx, run, 6, "classification", len(in), qualified)
}

// mapConcurrent applies fn to every candidate with up to cfg.Concurrency
// in flight at once, keeping only those fn reports as qualified.
func (r *Runner) mapConcurrent(ctx context.Context, in []candidate, fn func(candidate) (candidate, bool)) []candidate {
	sem := make(chan struct{}, r.cfg.Concurrency)
	results := make([]*candidate, len(in))

	var wg sync.WaitGroup
	for i, c := range in {
		i, c := i, c
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			updated, ok := fn(c)
			if ok {
				results[i] = &updated
			}
		}()
	}
	wg.Wait()

	out := make([]candidate, 0, len(in))
	for _, res := range results {
		if res != nil {
			out = append(out, *res)
		}
	}
	return out
}
