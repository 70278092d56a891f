package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// TradeStore is the live_trades table, written only by the trade processor
// and tailed by the insider scorer and batch funnel.
type TradeStore interface {
	ApplySchema(ctx context.Context) error

	// UpsertTrades deduplicates by TradeID (last write wins) and
	// upserts the batch in one transaction.
	UpsertTrades(ctx context.Context, rows []domain.EnrichedTrade) error

	// TradesSince returns up to limit rows with id > afterID, ascending.
	TradesSince(ctx context.Context, afterID int64, limit int) ([]domain.TradeRow, error)

	// MaxTradeID returns the current max id, used to seed a cursor at
	// startup so a consumer only processes forward.
	MaxTradeID(ctx context.Context) (int64, error)

	// DeleteOlderThan removes trade rows older than cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// WalletStore is the wallets table, written by discovery and the batch
// funnel.
type WalletStore interface {
	ApplySchema(ctx context.Context) error

	UpsertWallet(ctx context.Context, w domain.Wallet) error
	GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error)

	// KnownAddresses loads every address + metrics_updated_at pair, used
	// to warm the discovery engine's known-wallet cache at startup.
	KnownAddresses(ctx context.Context) (map[string]time.Time, error)

	// LoadProfitabilityProjection pages through wallets whose
	// trade_count_all > 0 OR total_trades > 0, for the insider scorer's
	// cache.
	LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error)
}

// WatchlistStore is the watchlist table, read by the processor and
// the copy trader.
type WatchlistStore interface {
	GetWatchlist(ctx context.Context) (map[string]WatchlistEntry, error)
}

// WatchlistEntry is one watchlist row, keyed externally by address.
type WatchlistEntry struct {
	Address         string
	ListType        string
	MinTradeSize    float64
	AlertThresholdUSD float64
}

// AlertRuleStore is the alert_rules table.
type AlertRuleStore interface {
	GetAlertRules(ctx context.Context) ([]AlertRule, error)
}

// AlertRule is one row in alert_rules, evaluated against every
// observed-significant trade.
type AlertRule struct {
	ID         int64
	Enabled    bool
	RuleType   string // whale | watchlist_activity | insider_activity | generic
	Severity   string
	Conditions AlertConditions
}

// AlertConditions are the generic matchable fields on an AlertRule.
type AlertConditions struct {
	MinUSDValue    float64
	Categories     map[string]bool
	Hours          map[int]bool // UTC hours
	Sides          map[domain.Side]bool
	MinScore       float64 // for insider_activity
}

// AlertStore is the alerts table written by the trade processor's rule
// engine.
type AlertStore interface {
	ApplySchema(ctx context.Context) error
	InsertAlert(ctx context.Context, tradeID string, ruleType, severity string, firedAt time.Time) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time, acknowledgedOnly bool) (int64, error)
}

// InsiderStore is the insider_alerts table, keyed by trade_id, written only
// by the insider scorer.
type InsiderStore interface {
	ApplySchema(ctx context.Context) error
	SaveAlert(ctx context.Context, alert domain.InsiderAlert) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CursorStore persists the monotonic cursors of independent tailing
// consumers.
type CursorStore interface {
	ApplySchema(ctx context.Context) error
	GetCursor(ctx context.Context, name string) (int64, bool, error)
	SetCursor(ctx context.Context, name string, position int64) error
}

// PositionStore is user_orders/user_positions/copy_trade_log, written
// only by the position tracker.
type PositionStore interface {
	ApplySchema(ctx context.Context) error

	SaveOrder(ctx context.Context, order domain.Order, copiedFrom string) error
	SavePosition(ctx context.Context, pos domain.TrackedPosition) error
	DeletePosition(ctx context.Context, tokenID string) error
	LoadPositions(ctx context.Context) ([]domain.TrackedPosition, error)
	LogCopyTrade(ctx context.Context, entry domain.CopyTradeLog) error
}

// FunnelStore is the batch-funnel state tables, contract-only.
type FunnelStore interface {
	ApplySchema(ctx context.Context) error
	SaveRun(ctx context.Context, run domain.FunnelRun) error
	SaveStageStats(ctx context.Context, runID string, stats domain.FunnelStageStats) error
}
