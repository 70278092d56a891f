// Package processor enriches every live trade with cached wallet facts,
// classifies it, stages significant trades for a batched upsert, and
// evaluates it against the alert rule set.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Config collects the processor's tunables, sourced from config.ProcessorConfig.
type Config struct {
	Thresholds           Thresholds
	BatchSize            int
	BatchTimeout         time.Duration
	QueueSize            int
	WalletCacheRefresh   time.Duration
	RetentionAge         time.Duration
	RetentionSweepPeriod time.Duration
}

// Processor is the trade-processor orchestrator: one instance per pipeline
// run, wired with its store dependencies and started via Run.
type Processor struct {
	cfg Config

	wallets   *WalletCache
	ruleCache *RuleCache
	heuristic *SessionHeuristic
	writer    *BatchWriter
	rules     *RuleEngine

	trades ports.TradeStore
	alerts ports.AlertStore
}

// New builds a Processor with all its dependencies injected.
func New(cfg Config, trades ports.TradeStore, walletStore ports.WalletStore, watchlist ports.WatchlistStore, alertRules ports.AlertRuleStore, alerts ports.AlertStore) *Processor {
	ruleCache := NewRuleCache(alertRules, watchlist)
	return &Processor{
		cfg:       cfg,
		wallets:   NewWalletCache(walletStore, 0),
		ruleCache: ruleCache,
		heuristic: NewSessionHeuristic(),
		writer:    NewBatchWriter(trades, cfg.QueueSize, cfg.BatchSize, cfg.BatchTimeout),
		rules:     NewRuleEngine(alerts, ruleCache),
		trades:    trades,
		alerts:    alerts,
	}
}

// HandleTrade enriches, classifies, and routes t. Callers (the feed
// client's callback, wired in cmd/) invoke this once per parsed trade.
// downstream receives every enriched trade regardless of significance, for
// consumers like wallet discovery and the copy trader that look at every
// trade, not just the ones written to the store.
func (p *Processor) HandleTrade(ctx context.Context, t domain.Trade, downstream func(domain.EnrichedTrade)) {
	et := Enrich(t, time.Now(), p.wallets, p.ruleCache, p.heuristic, p.cfg.Thresholds)

	if Significant(et) {
		p.writer.Enqueue(et)
		if err := p.rules.Evaluate(ctx, et); err != nil {
			slog.Warn("processor: rule evaluation error", "err", err, "trade_id", et.TradeID)
		}
	}

	if downstream != nil {
		downstream(et)
	}
}

// Run starts the wallet-cache refresher, the rule-cache refresher, the
// batch writer, and the retention sweeper, and blocks until ctx is
// cancelled. The batch writer flushes its current batch before Run returns.
func (p *Processor) Run(ctx context.Context) error {
	slog.Info("processor starting",
		"whale_usd", p.cfg.Thresholds.WhaleUSD,
		"insider_suspect_score", p.cfg.Thresholds.InsiderSuspectScore,
		"batch_size", p.cfg.BatchSize,
		"batch_timeout", p.cfg.BatchTimeout,
	)

	if err := p.trades.ApplySchema(ctx); err != nil {
		return err
	}
	if err := p.alerts.ApplySchema(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	go func() { p.wallets.Run(ctx, p.cfg.WalletCacheRefresh); close(done) }()
	go p.ruleCache.Run(ctx, p.cfg.WalletCacheRefresh)
	writerDone := make(chan struct{})
	go func() { p.writer.Run(ctx); close(writerDone) }()
	go p.sweepRetention(ctx)

	<-ctx.Done()
	<-done
	<-writerDone
	slog.Info("processor stopped")
	return nil
}

// sweepRetention periodically deletes old trade rows and acknowledged
// alerts until ctx is cancelled.
func (p *Processor) sweepRetention(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RetentionSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-p.cfg.RetentionAge)
			if n, err := p.trades.DeleteOlderThan(ctx, cutoff); err != nil {
				slog.Warn("processor: trade retention sweep failed", "err", err)
			} else if n > 0 {
				slog.Info("processor: trade retention sweep", "deleted", n)
			}
			if n, err := p.alerts.DeleteOlderThan(ctx, cutoff, true); err != nil {
				slog.Warn("processor: alert retention sweep failed", "err", err)
			} else if n > 0 {
				slog.Info("processor: alert retention sweep", "deleted", n)
			}
		}
	}
}
