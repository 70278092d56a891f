// Command pipeline runs the real-time intelligence pipeline: a live-feed
// consumer, the trade processor, wallet discovery, the insider scorer, the
// copy trader, and the batch funnel, all sharing one SQLite-backed store.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/config"
	"github.com/alejandrodnm/polybot/internal/adapters/feedws"
	"github.com/alejandrodnm/polybot/internal/adapters/onchain"
	"github.com/alejandrodnm/polybot/internal/adapters/polymarket"
	"github.com/alejandrodnm/polybot/internal/adapters/storage"
	"github.com/alejandrodnm/polybot/internal/application/copytrader"
	"github.com/alejandrodnm/polybot/internal/application/discovery"
	"github.com/alejandrodnm/polybot/internal/application/funnel"
	"github.com/alejandrodnm/polybot/internal/application/processor"
	"github.com/alejandrodnm/polybot/internal/application/risk"
	"github.com/alejandrodnm/polybot/internal/application/scorer"
	"github.com/alejandrodnm/polybot/internal/domain"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("pipeline starting", "config", *configPath, "feed_url", cfg.Feed.URL)

	store, err := storage.NewPipelineStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open pipeline store", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	catalog := polymarket.NewCatalogHTTPClient(cfg.Catalog.DataAPIBase, cfg.Catalog.GammaAPIBase)

	var chain *onchain.NonceClient
	if cfg.Scorer.PolygonRPCURL != "" {
		chain, err = onchain.NewNonceClient(cfg.Scorer.PolygonRPCURL)
		if err != nil {
			slog.Warn("failed to dial polygon RPC, wallet-age fallback disabled", "err", err)
			chain = nil
		}
	}

	proc := processor.New(processor.Config{
		Thresholds: processor.Thresholds{
			WhaleUSD:            cfg.Processor.WhaleUSD,
			InsiderSuspectScore: cfg.Processor.InsiderSuspectScore,
		},
		BatchSize:            cfg.Processor.BatchSize,
		BatchTimeout:         time.Duration(cfg.Processor.BatchTimeoutMillis) * time.Millisecond,
		QueueSize:            cfg.Processor.QueueSize,
		WalletCacheRefresh:   time.Duration(cfg.Processor.WalletCacheRefreshSeconds) * time.Second,
		RetentionAge:         time.Duration(cfg.Processor.RetentionDays) * 24 * time.Hour,
		RetentionSweepPeriod: time.Duration(cfg.Processor.RetentionSweepHours) * time.Hour,
	}, store.Trades, store.Wallets, store.Watchlist, store.AlertRules, store.Alerts)

	disc := discovery.New(discovery.Config{
		NumWorkers:         cfg.Discovery.NumWorkers,
		RequestInterval:    time.Duration(cfg.Discovery.RequestIntervalMillis) * time.Millisecond,
		QueueSize:          cfg.Discovery.QueueSize,
		ReanalysisCooldown: time.Duration(cfg.Discovery.ReanalysisCooldownDays) * 24 * time.Hour,
		ThresholdUSD:       cfg.Discovery.DiscoveryThresholdUSD,
	}, catalog, store.Wallets)

	score := scorer.New(scorer.Config{
		PollInterval:         time.Duration(cfg.Scorer.PollIntervalSeconds) * time.Second,
		BatchLimit:           cfg.Scorer.BatchLimit,
		MinUSDValue:          cfg.Scorer.MinUSDValue,
		ScoreThreshold:       cfg.Scorer.ScoreThreshold,
		WalletAgeCacheTTL:    time.Duration(cfg.Scorer.WalletAgeCacheTTLHours) * time.Hour,
		MarketVolumeCacheTTL: time.Duration(cfg.Scorer.MarketVolumeCacheTTLHours) * time.Hour,
		ProjectionRefresh:    time.Duration(cfg.Scorer.ProjectionRefreshMinutes) * time.Minute,
		RetentionAge:         time.Duration(cfg.Scorer.RetentionDays) * 24 * time.Hour,
		RetentionSweepPeriod: time.Hour,
	}, store.Trades, store.Wallets, store.Insiders, store.Cursors, catalog, chain)

	fun := funnel.New(funnel.Config{
		Stage1MinTrades:         cfg.Funnel.Stage1MinTrades,
		Stage2MinPortfolioValue: cfg.Funnel.Stage2MinPortfolioValue,
		Stage3MinPositionSize:   cfg.Funnel.Stage3MinPositionSize,
		Stage3RequirePositions:  cfg.Funnel.Stage3RequirePositions,
		Stage4MinWinRate:        cfg.Funnel.Stage4MinWinRate,
		Stage4MinTotalPnL:       cfg.Funnel.Stage4MinTotalPnL,
		Stage4RequireBoth:       cfg.Funnel.Stage4RequireBoth,
		Stage6MinScore:          cfg.Funnel.Stage6MinScore,
		BatchSize:               cfg.Funnel.BatchSize,
		Concurrency:             cfg.Funnel.Concurrency,
	}, store.Wallets, catalog, store.Funnel)

	riskEngine := risk.New(domain.RiskLimits{
		MaxPositionSizeUSD:  decimal.NewFromFloat(cfg.Risk.MaxPositionSizeUSD),
		MaxTotalExposureUSD: decimal.NewFromFloat(cfg.Risk.MaxTotalExposureUSD),
		MaxSingleOrderUSD:   decimal.NewFromFloat(cfg.Risk.MaxSingleOrderUSD),
		MaxDailyLossUSD:     decimal.NewFromFloat(cfg.Risk.MaxDailyLossUSD),
		MaxDailyOrders:      cfg.Risk.MaxDailyOrders,
		MinCopySizeUSD:      decimal.NewFromFloat(cfg.CopyTrader.MinCopySizeUSD),
		MaxCopyFraction:     decimal.NewFromFloat(cfg.CopyTrader.CopyFraction),
		MinTraderScore:      cfg.CopyTrader.MinTraderScore,
		BlockedMarkets:      toSet(cfg.Risk.BlockedMarkets),
		AllowedCategories:   toSet(cfg.Risk.AllowedCategories),
	})

	positions := risk.NewPositionTracker(store.Positions)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := positions.Load(ctx); err != nil {
		slog.Error("failed to load tracked positions", "err", err)
		os.Exit(1)
	}

	qual := copytrader.NewQualification(store.Wallets, store.Watchlist, cfg.CopyTrader.MinTraderScore)
	if err := qual.Refresh(ctx); err != nil {
		slog.Warn("initial qualification refresh failed", "err", err)
	}

	authClient, err := polymarket.NewAuthClient(cfg.CLOB.BaseURL, cfg.API.GammaBase, os.Getenv("POLY_PRIVATE_KEY"))
	if err != nil {
		slog.Error("failed to create auth client — check POLY_PRIVATE_KEY", "err", err)
		os.Exit(1)
	}
	executor := polymarket.NewExecutionClient(authClient, cfg.CopyTrader.PaperTrading)

	trader := copytrader.New(copytrader.Config{
		Enabled:              cfg.CopyTrader.Enabled,
		PaperTrading:         cfg.CopyTrader.PaperTrading,
		WatchlistOnly:        cfg.CopyTrader.WatchlistOnly,
		MinCopytradeScore:    cfg.CopyTrader.MinCopytradeScore,
		MinTraderScore:       cfg.CopyTrader.MinTraderScore,
		CopyFraction:         decimal.NewFromFloat(cfg.CopyTrader.CopyFraction),
		MinCopySizeUSD:       decimal.NewFromFloat(cfg.CopyTrader.MinCopySizeUSD),
		MaxCopySizeUSD:       decimal.NewFromFloat(cfg.CopyTrader.MaxCopySizeUSD),
		MaxSingleOrderUSD:    decimal.NewFromFloat(cfg.Risk.MaxSingleOrderUSD),
		MinTradeSizeUSD:      cfg.CopyTrader.MinTradeSizeUSD,
		MaxDelay:             time.Duration(cfg.CopyTrader.MaxDelaySeconds) * time.Second,
		RecentCopiesCapacity: cfg.CopyTrader.RecentCopiesCapacity,
		QualificationRefresh: time.Duration(cfg.CopyTrader.QualificationRefreshMinutes) * time.Minute,
	}, qual, riskEngine, positions, executor, store.Positions)

	feed := feedws.New(cfg.Feed.URL, feedws.Subscription{Topic: "activity", Type: "trades"}, slog.Default())

	go runSafely("processor", func() error { return proc.Run(ctx) })
	go runSafely("discovery", func() error { return disc.Run(ctx) })
	go runSafely("scorer", func() error { return score.Run(ctx) })
	go runSafely("copytrader", func() error { return trader.Run(ctx) })
	go runSafely("funnel", func() error { return fun.Run(ctx, 6*time.Hour) })

	err = feed.Run(ctx, func(fctx context.Context, raw map[string]any) {
		t, ok := feedws.ParseTrade(raw)
		if !ok {
			return
		}
		proc.HandleTrade(fctx, t, func(et domain.EnrichedTrade) {
			disc.HandleTrade(et.Trade)
			trader.HandleTrade(fctx, et)
		})
	})
	if err != nil {
		slog.Error("feed exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("pipeline stopped cleanly")
}

// runSafely runs fn and logs a fatal-ish warning if it returns an error;
// each background consumer keeps its own lifecycle independent of the
// others (§5: a scorer crash must never take down the feed).
func runSafely(name string, fn func() error) {
	if err := fn(); err != nil {
		slog.Error("component exited with error", "component", name, "err", err)
	}
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
