// Package scorer is the insider scorer: an independent cursor-tailing
// consumer of the trade store that computes a 6-signal composite score per
// trade and writes alerts for the suspicious ones.
package scorer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// cursorName identifies this consumer's row in the cursor store.
const cursorName = "insider_scorer"

// Config collects the scorer's tunables, sourced from config.ScorerConfig.
type Config struct {
	PollInterval         time.Duration
	BatchLimit           int
	MinUSDValue          float64
	ScoreThreshold       int
	WalletAgeCacheTTL    time.Duration
	MarketVolumeCacheTTL time.Duration
	ProjectionRefresh    time.Duration
	RetentionAge         time.Duration
	RetentionSweepPeriod time.Duration
}

// Scorer is the insider-scorer orchestrator: one instance per pipeline run,
// wired with its store and catalog dependencies and started via Run.
type Scorer struct {
	cfg Config

	ageCache   *AgeCache
	volume     *VolumeCache
	conviction *ConvictionCache
	projection *ProjectionCache

	trades  ports.TradeStore
	wallets ports.WalletStore
	insider ports.InsiderStore
	cursors ports.CursorStore
	catalog ports.CatalogClient
	chain   ports.ChainNonceProvider
}

// New builds a Scorer with all its dependencies injected. chain may be nil,
// in which case the nonce-based half of the wallet-age signal always reads
// as "established" rather than failing.
func New(cfg Config, trades ports.TradeStore, wallets ports.WalletStore, insider ports.InsiderStore, cursors ports.CursorStore, catalog ports.CatalogClient, chain ports.ChainNonceProvider) *Scorer {
	return &Scorer{
		cfg:        cfg,
		ageCache:   NewAgeCache(cfg.WalletAgeCacheTTL),
		volume:     NewVolumeCache(cfg.MarketVolumeCacheTTL),
		conviction: NewConvictionCache(),
		projection: NewProjectionCache(wallets, 0),
		trades:     trades,
		wallets:    wallets,
		insider:    insider,
		cursors:    cursors,
		catalog:    catalog,
		chain:      chain,
	}
}

// Run applies schemas, seeds the cursor at the store's current max id,
// starts the projection refresher and the retention sweeper, and polls for
// new trade rows until ctx is cancelled.
func (s *Scorer) Run(ctx context.Context) error {
	if err := s.insider.ApplySchema(ctx); err != nil {
		return fmt.Errorf("scorer: apply insider schema: %w", err)
	}
	if err := s.cursors.ApplySchema(ctx); err != nil {
		return fmt.Errorf("scorer: apply cursor schema: %w", err)
	}

	cursor, ok, err := s.cursors.GetCursor(ctx, cursorName)
	if err != nil {
		return fmt.Errorf("scorer: get cursor: %w", err)
	}
	if !ok {
		cursor, err = s.trades.MaxTradeID(ctx)
		if err != nil {
			return fmt.Errorf("scorer: seed cursor: %w", err)
		}
	}

	if err := s.projection.Refresh(ctx); err != nil {
		slog.Warn("scorer: initial projection refresh failed", "err", err)
	}

	slog.Info("insider scorer starting", "cursor", cursor, "poll_interval", s.cfg.PollInterval)

	done := make(chan struct{}, 2)
	go func() {
		s.projection.Run(ctx, s.cfg.ProjectionRefresh, func(err error) {
			slog.Warn("scorer: projection refresh failed", "err", err)
		})
		done <- struct{}{}
	}()
	go func() {
		s.sweepRetention(ctx)
		done <- struct{}{}
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			<-done
			<-done
			slog.Info("insider scorer stopped")
			return nil
		case <-ticker.C:
			cursor = s.pollOnce(ctx, cursor)
		}
	}
}

// pollOnce fetches up to BatchLimit rows after cursor, scores each, and
// advances the cursor past every row it saw regardless of individual
// scoring outcome. A fetch error leaves the cursor untouched so the same
// rows are retried on the next tick.
func (s *Scorer) pollOnce(ctx context.Context, cursor int64) int64 {
	rows, err := s.trades.TradesSince(ctx, cursor, s.cfg.BatchLimit)
	if err != nil {
		slog.Warn("scorer: fetch failed", "err", err)
		return cursor
	}
	if len(rows) == 0 {
		return cursor
	}

	now := time.Now()
	for _, row := range rows {
		if row.USDValue >= s.cfg.MinUSDValue {
			s.processRow(ctx, row, now)
		}
		cursor = row.ID
	}

	if err := s.cursors.SetCursor(ctx, cursorName, cursor); err != nil {
		slog.Warn("scorer: persist cursor failed", "err", err)
	}
	return cursor
}

func (s *Scorer) processRow(ctx context.Context, row domain.TradeRow, now time.Time) {
	alert, ok := s.scoreTrade(ctx, row, now)
	if !ok {
		return
	}
	if err := s.insider.SaveAlert(ctx, alert); err != nil {
		slog.Warn("scorer: save alert failed", "trade_id", row.TradeID, "err", err)
	}
}

// sweepRetention periodically deletes insider alerts older than
// RetentionAge until ctx is cancelled.
func (s *Scorer) sweepRetention(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RetentionSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.RetentionAge)
			n, err := s.insider.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				slog.Warn("scorer: retention sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("scorer: retention swept", "deleted", n)
			}
		}
	}
}
