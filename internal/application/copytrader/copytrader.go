// Package copytrader mirrors trades from qualified wallets under risk
// limits, placing orders through the CLOB client and auditing every
// evaluation regardless of outcome.
package copytrader

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/application/risk"
	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// Config collects the copy trader's tunables, sourced from
// config.CopyTraderConfig.
type Config struct {
	Enabled           bool
	PaperTrading      bool
	WatchlistOnly     bool
	MinCopytradeScore int
	MinTraderScore    int
	CopyFraction      decimal.Decimal
	MinCopySizeUSD    decimal.Decimal
	MaxCopySizeUSD    decimal.Decimal
	MaxSingleOrderUSD decimal.Decimal
	MinTradeSizeUSD   float64
	MaxDelay          time.Duration
	RecentCopiesCapacity int
	QualificationRefresh time.Duration
}

// Trader is the copy-trading evaluator: one instance per pipeline run,
// invoked inline from the processor's downstream callback (§5: the
// copy-trade evaluator has no queue of its own — it runs inline and
// cannot back up).
type Trader struct {
	cfg Config

	mu      sync.RWMutex
	enabled bool
	paper   bool

	qual      *Qualification
	recent    *recentCopies
	risk      *risk.Engine
	positions *risk.PositionTracker
	executor  ports.TradeExecutor
	logs      ports.PositionStore
}

// New builds a Trader with all its dependencies injected.
func New(cfg Config, qual *Qualification, riskEngine *risk.Engine, positions *risk.PositionTracker, executor ports.TradeExecutor, logs ports.PositionStore) *Trader {
	return &Trader{
		cfg:       cfg,
		enabled:   cfg.Enabled,
		paper:     cfg.PaperTrading,
		qual:      qual,
		recent:    newRecentCopies(cfg.RecentCopiesCapacity),
		risk:      riskEngine,
		positions: positions,
		executor:  executor,
		logs:      logs,
	}
}

// Run loads the qualification cache, starts its refresher, and blocks
// until ctx is cancelled.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.qual.Refresh(ctx); err != nil {
		return err
	}
	if err := t.positions.Load(ctx); err != nil {
		return err
	}

	slog.Info("copytrader starting", "enabled", t.Enabled(), "paper", t.PaperMode())

	done := make(chan struct{})
	go func() {
		t.qual.Run(ctx, t.cfg.QualificationRefresh, func(err error) {
			slog.Warn("copytrader: qualification refresh failed", "err", err)
		})
		close(done)
	}()

	<-ctx.Done()
	<-done
	slog.Info("copytrader stopped")
	return nil
}

// HandleTrade evaluates et for copying. Called from the processor's
// downstream callback for every enriched trade, regardless of
// significance.
func (t *Trader) HandleTrade(ctx context.Context, et domain.EnrichedTrade) {
	if !t.Enabled() {
		return
	}
	addr := strings.ToLower(et.TraderAddress)

	if t.cfg.WatchlistOnly && !t.qual.InWatchlist(addr) {
		return
	}
	if t.recent.Seen(et.TradeID) {
		return
	}
	if et.USDValue < t.cfg.MinTradeSizeUSD {
		return
	}
	if t.cfg.MaxDelay > 0 && et.Age(time.Now()) > t.cfg.MaxDelay {
		return
	}

	score, ok := t.qual.Score(addr)
	if !ok || score < t.cfg.MinCopytradeScore {
		return
	}
	// A secondary floor against the trade's own denormalized
	// copytrade_score (from the processor's hot wallet cache), guarding
	// against the 5-minute-stale qualification cache copying a wallet
	// whose score has since dropped.
	if t.cfg.MinTraderScore > 0 && et.CopytradeScore > 0 && et.CopytradeScore < t.cfg.MinTraderScore {
		return
	}

	t.evaluate(ctx, et, score)
}

func (t *Trader) evaluate(ctx context.Context, et domain.EnrichedTrade, score int) {
	sizeUSD := sizeOrder(et.USDValue, score, t.cfg)
	price := et.Price
	if price <= 0 {
		price = defaultPrice
	}
	shares := sizeShares(sizeUSD, price)

	entry := domain.CopyTradeLog{
		ID:            uuid.NewString(),
		SourceTrader:  et.TraderAddress,
		SourceTradeID: et.TradeID,
		OurOrderID:    "none",
		MarketID:      et.ConditionID,
		ConditionID:   et.ConditionID,
		Side:          et.Side,
		SourceSize:    decimal.NewFromFloat(et.Size),
		CopySize:      shares,
		SourcePrice:   decimal.NewFromFloat(et.Price),
		OurPrice:      decimal.NewFromFloat(price),
		TraderScore:   score,
		CreatedAt:     time.Now().UTC(),
	}

	allowed, reason := t.risk.CheckOrder(et.ConditionID, sizeUSD, et.Category)
	if !allowed {
		entry.Status = domain.CopyStatusRejected
		entry.RejectionReason = reason
		t.record(ctx, entry)
		return
	}

	tokenID := et.AssetID
	if tokenID == "" {
		tokenID = et.ConditionID
	}

	order, err := t.executor.PlaceOrder(ctx, tokenID, et.Side, shares.InexactFloat64(), price, domain.OrderTypeGTC)
	if err != nil {
		entry.Status = domain.CopyStatusFailed
		entry.RejectionReason = err.Error()
		t.record(ctx, entry)
		slog.Warn("copytrader: place order failed", "err", err, "trade_id", et.TradeID)
		return
	}

	entry.Status = domain.CopyStatusExecuted
	entry.OurOrderID = order.OrderID
	t.record(ctx, entry)

	t.recent.Mark(et.TradeID, time.Now())
	t.risk.RecordOrder(et.ConditionID, sizeUSD)

	if err := t.logs.SaveOrder(ctx, order, et.TraderAddress); err != nil {
		slog.Warn("copytrader: save order failed", "err", err, "order_id", order.OrderID)
	}

	if order.FilledSize > 0 {
		filled := decimal.NewFromFloat(order.FilledSize)
		if err := t.positions.ApplyFill(ctx, tokenID, et.ConditionID, et.ConditionID, et.Side, filled, decimal.NewFromFloat(order.Price), et.TraderAddress, time.Now().UTC()); err != nil {
			slog.Warn("copytrader: position tracker update failed", "err", err, "token_id", tokenID)
		}
	}
}

func (t *Trader) record(ctx context.Context, entry domain.CopyTradeLog) {
	if err := t.logs.LogCopyTrade(ctx, entry); err != nil {
		slog.Warn("copytrader: log copy trade failed", "err", err, "trade_id", entry.SourceTradeID)
	}
}

// Enabled reports whether copy trading is currently on.
func (t *Trader) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled toggles copy trading on or off at runtime.
func (t *Trader) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
	slog.Info("copytrader: enabled toggled", "enabled", enabled)
}

// PaperMode reports whether orders are currently simulated.
func (t *Trader) PaperMode() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.paper
}

// SetPaperMode toggles live vs. paper execution, propagating to the CLOB
// client so the switch takes effect without restarting it.
func (t *Trader) SetPaperMode(paper bool) {
	t.mu.Lock()
	t.paper = paper
	t.mu.Unlock()
	t.executor.SetPaperMode(paper)
	slog.Info("copytrader: paper mode toggled", "paper", paper)
}

// ActivateKillSwitch trips the underlying risk engine's kill switch.
func (t *Trader) ActivateKillSwitch(reason string) {
	t.risk.ActivateKillSwitch(reason)
}

// DeactivateKillSwitch clears the underlying risk engine's kill switch.
func (t *Trader) DeactivateKillSwitch() {
	t.risk.DeactivateKillSwitch()
}
