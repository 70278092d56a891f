package storage

// pipeline.go — almacenamiento analítico del pipeline en tiempo real.
//
// Un único *sql.DB, separado del usado por el scanner de rewards
// (sqlite.go), con el mismo patrón: schema como constante Go,
// SetMaxOpenConns(1), upserts con ON CONFLICT. Cada tabla tiene un único
// escritor documentado en ports/store.go; como tres interfaces distintas
// (TradeStore, InsiderStore, AlertStore) declaran un DeleteOlderThan con
// firmas que no pueden convivir en un mismo tipo Go sin ambigüedad de
// tabla, cada store vive en su propio tipo fino que comparte la conexión.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

const pipelineSchema = `
CREATE TABLE IF NOT EXISTS live_trades (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id         TEXT NOT NULL UNIQUE,
    received_at      DATETIME NOT NULL,
    trader_address   TEXT NOT NULL,
    condition_id     TEXT,
    asset_id         TEXT,
    market_slug      TEXT,
    event_slug       TEXT,
    side             TEXT NOT NULL,
    outcome          TEXT,
    outcome_index    INTEGER,
    size             REAL,
    price            REAL,
    usd_value        REAL,
    tx_hash          TEXT,
    executed_at      DATETIME,
    is_whale         INTEGER NOT NULL DEFAULT 0,
    is_watchlist     INTEGER NOT NULL DEFAULT 0,
    is_insider_suspect INTEGER NOT NULL DEFAULT 0,
    trader_insider_score INTEGER NOT NULL DEFAULT 0,
    trader_flags     TEXT,
    category         TEXT
);
CREATE INDEX IF NOT EXISTS idx_live_trades_received ON live_trades(received_at DESC);
CREATE INDEX IF NOT EXISTS idx_live_trades_trader    ON live_trades(trader_address);

CREATE TABLE IF NOT EXISTS wallets (
    address               TEXT PRIMARY KEY,
    source                TEXT,
    balance               REAL NOT NULL DEFAULT 0,
    username              TEXT,
    account_created       DATETIME,
    pnl_all_time          REAL NOT NULL DEFAULT 0,
    roi_all_time          REAL NOT NULL DEFAULT 0,
    win_rate_all_time     REAL NOT NULL DEFAULT 0,
    volume_all_time       REAL NOT NULL DEFAULT 0,
    trade_count_all       INTEGER NOT NULL DEFAULT 0,
    wins_all              INTEGER NOT NULL DEFAULT 0,
    losses_all            INTEGER NOT NULL DEFAULT 0,
    drawdown_all_time     REAL NOT NULL DEFAULT 0,
    open_count            INTEGER NOT NULL DEFAULT 0,
    pnl_7d                REAL NOT NULL DEFAULT 0,
    roi_7d                REAL NOT NULL DEFAULT 0,
    win_rate_7d           REAL NOT NULL DEFAULT 0,
    volume_7d             REAL NOT NULL DEFAULT 0,
    drawdown_7d           REAL NOT NULL DEFAULT 0,
    pnl_30d               REAL NOT NULL DEFAULT 0,
    roi_30d               REAL NOT NULL DEFAULT 0,
    win_rate_30d          REAL NOT NULL DEFAULT 0,
    volume_30d            REAL NOT NULL DEFAULT 0,
    drawdown_30d          REAL NOT NULL DEFAULT 0,
    trade_frequency       REAL NOT NULL DEFAULT 0,
    night_trade_ratio     REAL NOT NULL DEFAULT 0,
    trade_time_variance   REAL NOT NULL DEFAULT 0,
    position_size_variance REAL NOT NULL DEFAULT 0,
    avg_hold_hours        REAL NOT NULL DEFAULT 0,
    max_drawdown          REAL NOT NULL DEFAULT 0,
    unique_markets        INTEGER NOT NULL DEFAULT 0,
    position_concentration REAL NOT NULL DEFAULT 0,
    avg_entry_probability REAL NOT NULL DEFAULT 0,
    pnl_concentration     REAL NOT NULL DEFAULT 0,
    category_concentration REAL NOT NULL DEFAULT 0,
    copytrade_score       INTEGER NOT NULL DEFAULT 0,
    profit_factor_30d     REAL NOT NULL DEFAULT 0,
    category              TEXT,
    metrics_updated_at    DATETIME
);

CREATE TABLE IF NOT EXISTS watchlist (
    address              TEXT PRIMARY KEY,
    list_type            TEXT NOT NULL,
    min_trade_size       REAL NOT NULL DEFAULT 0,
    alert_threshold_usd  REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alert_rules (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    enabled     INTEGER NOT NULL DEFAULT 1,
    rule_type   TEXT NOT NULL,
    severity    TEXT NOT NULL DEFAULT 'info',
    min_usd_value REAL NOT NULL DEFAULT 0,
    categories  TEXT,
    hours       TEXT,
    sides       TEXT,
    min_score   REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS alerts (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    trade_id    TEXT NOT NULL,
    rule_type   TEXT NOT NULL,
    severity    TEXT NOT NULL,
    fired_at    DATETIME NOT NULL,
    acknowledged INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_alerts_fired ON alerts(fired_at DESC);

CREATE TABLE IF NOT EXISTS insider_alerts (
    trade_id               TEXT PRIMARY KEY,
    trader_address         TEXT NOT NULL,
    condition_id           TEXT,
    usd_value              REAL,
    side                   TEXT,
    price                  REAL,
    composite              INTEGER NOT NULL,
    score_wallet_age       INTEGER NOT NULL DEFAULT 0,
    score_size_liquidity   INTEGER NOT NULL DEFAULT 0,
    score_market_niche     INTEGER NOT NULL DEFAULT 0,
    score_extreme_odds     INTEGER NOT NULL DEFAULT 0,
    score_conviction       INTEGER NOT NULL DEFAULT 0,
    score_category_winrate INTEGER NOT NULL DEFAULT 0,
    signals                TEXT,
    profitability_status   TEXT,
    created_at             DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insider_created ON insider_alerts(created_at DESC);

CREATE TABLE IF NOT EXISTS cursors (
    name     TEXT PRIMARY KEY,
    position INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_orders (
    order_id      TEXT PRIMARY KEY,
    token_id      TEXT NOT NULL,
    side          TEXT NOT NULL,
    size          REAL NOT NULL,
    price         REAL NOT NULL,
    status        TEXT NOT NULL,
    filled_size   REAL NOT NULL DEFAULT 0,
    copied_from   TEXT,
    created_at    DATETIME NOT NULL,
    updated_at    DATETIME NOT NULL,
    error_message TEXT
);

CREATE TABLE IF NOT EXISTS user_positions (
    token_id        TEXT PRIMARY KEY,
    market_id       TEXT,
    condition_id    TEXT,
    side            TEXT NOT NULL,
    size            TEXT NOT NULL,
    avg_price       TEXT NOT NULL,
    current_price   TEXT NOT NULL DEFAULT '0',
    unrealized_pnl  TEXT NOT NULL DEFAULT '0',
    copied_from     TEXT,
    created_at      DATETIME NOT NULL,
    updated_at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS copy_trade_log (
    id               TEXT PRIMARY KEY,
    source_trader    TEXT NOT NULL,
    source_trade_id  TEXT NOT NULL,
    our_order_id     TEXT,
    market_id        TEXT,
    condition_id     TEXT,
    side             TEXT NOT NULL,
    source_size      TEXT,
    copy_size        TEXT,
    source_price     TEXT,
    our_price        TEXT,
    trader_score     INTEGER,
    status           TEXT NOT NULL,
    rejection_reason TEXT,
    created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_copy_log_created ON copy_trade_log(created_at DESC);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id     TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    done       INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS pipeline_stats (
    run_id     TEXT NOT NULL,
    stage      INTEGER NOT NULL,
    name       TEXT NOT NULL,
    processed  INTEGER NOT NULL DEFAULT 0,
    qualified  INTEGER NOT NULL DEFAULT 0,
    eliminated INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (run_id, stage)
);
`

// PipelineStore owns the shared SQLite connection and hands out one
// narrow view per ports.*Store interface, since the single-writer-per-table
// rule means distinct interfaces can't always be satisfied by one
// Go type — TradeStore, InsiderStore and AlertStore each declare their own
// DeleteOlderThan, targeting a different table.
type PipelineStore struct {
	db *sql.DB

	Trades     *TradeSQLStore
	Wallets    *WalletSQLStore
	Watchlist  *WatchlistSQLStore
	AlertRules *AlertRuleSQLStore
	Alerts     *AlertSQLStore
	Insiders   *InsiderSQLStore
	Cursors    *CursorSQLStore
	Positions  *PositionSQLStore
	Funnel     *FunnelSQLStore
}

// NewPipelineStore opens (or creates) the pipeline database at path and
// applies the schema.
func NewPipelineStore(path string) (*PipelineStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPipelineStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(pipelineSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewPipelineStore: apply schema: %w", err)
	}

	return &PipelineStore{
		db:         db,
		Trades:     &TradeSQLStore{db: db},
		Wallets:    &WalletSQLStore{db: db},
		Watchlist:  &WatchlistSQLStore{db: db},
		AlertRules: &AlertRuleSQLStore{db: db},
		Alerts:     &AlertSQLStore{db: db},
		Insiders:   &InsiderSQLStore{db: db},
		Cursors:    &CursorSQLStore{db: db},
		Positions:  &PositionSQLStore{db: db},
		Funnel:     &FunnelSQLStore{db: db},
	}, nil
}

// Close closes the underlying database handle.
func (s *PipelineStore) Close() error {
	return s.db.Close()
}

func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, pipelineSchema); err != nil {
		return fmt.Errorf("storage: apply schema: %w", err)
	}
	return nil
}

// --- TradeSQLStore ---

// TradeSQLStore implements ports.TradeStore against live_trades.
type TradeSQLStore struct{ db *sql.DB }

var _ ports.TradeStore = (*TradeSQLStore)(nil)

func (s *TradeSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// UpsertTrades implements ports.TradeStore, deduplicating by trade_id
// within the batch (last write wins) before a single transaction.
func (s *TradeSQLStore) UpsertTrades(ctx context.Context, rows []domain.EnrichedTrade) error {
	if len(rows) == 0 {
		return nil
	}

	dedup := make(map[string]domain.EnrichedTrade, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, seen := dedup[r.TradeID]; !seen {
			order = append(order, r.TradeID)
		}
		dedup[r.TradeID] = r
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.UpsertTrades: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO live_trades
			(trade_id, received_at, trader_address, condition_id, asset_id,
			 market_slug, event_slug, side, outcome, outcome_index, size,
			 price, usd_value, tx_hash, executed_at, is_whale, is_watchlist,
			 is_insider_suspect, trader_insider_score, trader_flags, category)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			is_whale             = excluded.is_whale,
			is_watchlist         = excluded.is_watchlist,
			is_insider_suspect   = excluded.is_insider_suspect,
			trader_insider_score = excluded.trader_insider_score,
			trader_flags         = excluded.trader_flags,
			category             = excluded.category
	`)
	if err != nil {
		return fmt.Errorf("storage.UpsertTrades: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, id := range order {
		r := dedup[id]
		if _, err := stmt.ExecContext(ctx,
			r.TradeID, now, r.TraderAddress, r.ConditionID, r.AssetID,
			r.MarketSlug, r.EventSlug, string(r.Side), r.Outcome, r.OutcomeIndex,
			r.Size, r.Price, r.USDValue, r.TxHash, r.ExecutedAt,
			boolInt(r.IsWhale), boolInt(r.IsWatchlist), boolInt(r.IsInsiderSuspect),
			r.TraderInsiderScore, joinFlags(r.TraderFlags), r.Category,
		); err != nil {
			return fmt.Errorf("storage.UpsertTrades: upsert %s: %w", r.TradeID, err)
		}
	}

	return tx.Commit()
}

// TradesSince implements ports.TradeStore.
func (s *TradeSQLStore) TradesSince(ctx context.Context, afterID int64, limit int) ([]domain.TradeRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, received_at, trade_id, trader_address, condition_id, asset_id,
		       market_slug, event_slug, side, outcome, outcome_index, size, price,
		       usd_value, tx_hash, executed_at, is_whale, is_watchlist,
		       is_insider_suspect, trader_insider_score, trader_flags, category
		FROM live_trades WHERE id > ? ORDER BY id ASC LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.TradesSince: query: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeRow
	for rows.Next() {
		var tr domain.TradeRow
		var side, flags string
		var isWhale, isWatch, isSuspect int
		if err := rows.Scan(
			&tr.ID, &tr.ReceivedAt, &tr.TradeID, &tr.TraderAddress, &tr.ConditionID,
			&tr.AssetID, &tr.MarketSlug, &tr.EventSlug, &side, &tr.Outcome,
			&tr.OutcomeIndex, &tr.Size, &tr.Price, &tr.USDValue, &tr.TxHash,
			&tr.ExecutedAt, &isWhale, &isWatch, &isSuspect, &tr.TraderInsiderScore,
			&flags, &tr.Category,
		); err != nil {
			return nil, fmt.Errorf("storage.TradesSince: scan: %w", err)
		}
		tr.Side = domain.Side(side)
		tr.IsWhale = isWhale == 1
		tr.IsWatchlist = isWatch == 1
		tr.IsInsiderSuspect = isSuspect == 1
		tr.TraderFlags = splitFlags(flags)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// MaxTradeID implements ports.TradeStore.
func (s *TradeSQLStore) MaxTradeID(ctx context.Context) (int64, error) {
	var max sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM live_trades`).Scan(&max); err != nil {
		return 0, fmt.Errorf("storage.MaxTradeID: %w", err)
	}
	return max.Int64, nil
}

// DeleteOlderThan implements ports.TradeStore.
func (s *TradeSQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM live_trades WHERE received_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.TradeSQLStore.DeleteOlderThan: %w", err)
	}
	return res.RowsAffected()
}

// --- WalletSQLStore ---

// WalletSQLStore implements ports.WalletStore against wallets.
type WalletSQLStore struct{ db *sql.DB }

var _ ports.WalletStore = (*WalletSQLStore)(nil)

func (s *WalletSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// UpsertWallet implements ports.WalletStore.
func (s *WalletSQLStore) UpsertWallet(ctx context.Context, w domain.Wallet) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO wallets
			(address, source, balance, username, account_created,
			 pnl_all_time, roi_all_time, win_rate_all_time, volume_all_time,
			 trade_count_all, wins_all, losses_all, drawdown_all_time, open_count,
			 pnl_7d, roi_7d, win_rate_7d, volume_7d, drawdown_7d,
			 pnl_30d, roi_30d, win_rate_30d, volume_30d, drawdown_30d,
			 trade_frequency, night_trade_ratio, trade_time_variance,
			 position_size_variance, avg_hold_hours, max_drawdown, unique_markets,
			 position_concentration, avg_entry_probability, pnl_concentration,
			 category_concentration, copytrade_score, profit_factor_30d,
			 category, metrics_updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			source = excluded.source, balance = excluded.balance,
			username = excluded.username, account_created = excluded.account_created,
			pnl_all_time = excluded.pnl_all_time, roi_all_time = excluded.roi_all_time,
			win_rate_all_time = excluded.win_rate_all_time, volume_all_time = excluded.volume_all_time,
			trade_count_all = excluded.trade_count_all, wins_all = excluded.wins_all,
			losses_all = excluded.losses_all, drawdown_all_time = excluded.drawdown_all_time,
			open_count = excluded.open_count,
			pnl_7d = excluded.pnl_7d, roi_7d = excluded.roi_7d, win_rate_7d = excluded.win_rate_7d,
			volume_7d = excluded.volume_7d, drawdown_7d = excluded.drawdown_7d,
			pnl_30d = excluded.pnl_30d, roi_30d = excluded.roi_30d, win_rate_30d = excluded.win_rate_30d,
			volume_30d = excluded.volume_30d, drawdown_30d = excluded.drawdown_30d,
			trade_frequency = excluded.trade_frequency, night_trade_ratio = excluded.night_trade_ratio,
			trade_time_variance = excluded.trade_time_variance,
			position_size_variance = excluded.position_size_variance,
			avg_hold_hours = excluded.avg_hold_hours, max_drawdown = excluded.max_drawdown,
			unique_markets = excluded.unique_markets,
			position_concentration = excluded.position_concentration,
			avg_entry_probability = excluded.avg_entry_probability,
			pnl_concentration = excluded.pnl_concentration,
			category_concentration = excluded.category_concentration,
			copytrade_score = excluded.copytrade_score,
			profit_factor_30d = excluded.profit_factor_30d,
			category = excluded.category,
			metrics_updated_at = excluded.metrics_updated_at
	`,
		w.Address, w.Source, w.Balance, w.Username, w.AccountCreated,
		w.PnLAllTime, w.ROIAllTime, w.WinRateAllTime, w.VolumeAllTime,
		w.TradeCountAll, w.WinsAll, w.LossesAll, w.DrawdownAllTime, w.OpenCount,
		w.Window7d.PnL, w.Window7d.ROI, w.Window7d.WinRate, w.Window7d.Volume, w.Window7d.Drawdown,
		w.Window30d.PnL, w.Window30d.ROI, w.Window30d.WinRate, w.Window30d.Volume, w.Window30d.Drawdown,
		w.TradeFrequency, w.NightTradeRatio, w.TradeTimeVariance,
		w.PositionSizeVariance, w.AvgHoldHours, w.MaxDrawdown, w.UniqueMarkets,
		w.PositionConcentration, w.AvgEntryProbability, w.PnLConcentration,
		w.CategoryConcentration, w.CopytradeScore, w.ProfitFactor30d,
		w.Category, w.MetricsUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.UpsertWallet: %s: %w", w.Address, err)
	}
	return nil
}

// GetWallet implements ports.WalletStore.
func (s *WalletSQLStore) GetWallet(ctx context.Context, address string) (domain.Wallet, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT address, source, balance, username, account_created,
		       pnl_all_time, roi_all_time, win_rate_all_time, volume_all_time,
		       trade_count_all, wins_all, losses_all, drawdown_all_time, open_count,
		       pnl_7d, roi_7d, win_rate_7d, volume_7d, drawdown_7d,
		       pnl_30d, roi_30d, win_rate_30d, volume_30d, drawdown_30d,
		       trade_frequency, night_trade_ratio, trade_time_variance,
		       position_size_variance, avg_hold_hours, max_drawdown, unique_markets,
		       position_concentration, avg_entry_probability, pnl_concentration,
		       category_concentration, copytrade_score, profit_factor_30d,
		       category, metrics_updated_at
		FROM wallets WHERE address = ?
	`, address)

	var w domain.Wallet
	var accountCreated, metricsUpdated sql.NullTime
	err := row.Scan(
		&w.Address, &w.Source, &w.Balance, &w.Username, &accountCreated,
		&w.PnLAllTime, &w.ROIAllTime, &w.WinRateAllTime, &w.VolumeAllTime,
		&w.TradeCountAll, &w.WinsAll, &w.LossesAll, &w.DrawdownAllTime, &w.OpenCount,
		&w.Window7d.PnL, &w.Window7d.ROI, &w.Window7d.WinRate, &w.Window7d.Volume, &w.Window7d.Drawdown,
		&w.Window30d.PnL, &w.Window30d.ROI, &w.Window30d.WinRate, &w.Window30d.Volume, &w.Window30d.Drawdown,
		&w.TradeFrequency, &w.NightTradeRatio, &w.TradeTimeVariance,
		&w.PositionSizeVariance, &w.AvgHoldHours, &w.MaxDrawdown, &w.UniqueMarkets,
		&w.PositionConcentration, &w.AvgEntryProbability, &w.PnLConcentration,
		&w.CategoryConcentration, &w.CopytradeScore, &w.ProfitFactor30d,
		&w.Category, &metricsUpdated,
	)
	if err == sql.ErrNoRows {
		return domain.Wallet{}, false, nil
	}
	if err != nil {
		return domain.Wallet{}, false, fmt.Errorf("storage.GetWallet: %w", err)
	}
	if accountCreated.Valid {
		t := accountCreated.Time
		w.AccountCreated = &t
	}
	w.MetricsUpdatedAt = metricsUpdated.Time
	return w, true, nil
}

// KnownAddresses implements ports.WalletStore.
func (s *WalletSQLStore) KnownAddresses(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, metrics_updated_at FROM wallets`)
	if err != nil {
		return nil, fmt.Errorf("storage.KnownAddresses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var addr string
		var updated sql.NullTime
		if err := rows.Scan(&addr, &updated); err != nil {
			return nil, fmt.Errorf("storage.KnownAddresses: scan: %w", err)
		}
		out[addr] = updated.Time
	}
	return out, rows.Err()
}

// LoadProfitabilityProjection implements ports.WalletStore, paging through
// wallets that have traded at least once so the insider scorer's cache
// only warms on addresses with a meaningful track record.
func (s *WalletSQLStore) LoadProfitabilityProjection(ctx context.Context, pageSize int) (map[string]domain.Wallet, error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	out := make(map[string]domain.Wallet)
	offset := 0
	for {
		rows, err := s.db.QueryContext(ctx, `
			SELECT address, roi_all_time, win_rate_all_time, trade_count_all,
			       profit_factor_30d, copytrade_score, balance, username, category
			FROM wallets
			WHERE trade_count_all > 0
			ORDER BY address
			LIMIT ? OFFSET ?
		`, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("storage.LoadProfitabilityProjection: query: %w", err)
		}

		n := 0
		for rows.Next() {
			var w domain.Wallet
			var category sql.NullString
			if err := rows.Scan(&w.Address, &w.ROIAllTime, &w.WinRateAllTime,
				&w.TradeCountAll, &w.ProfitFactor30d, &w.CopytradeScore,
				&w.Balance, &w.Username, &category); err != nil {
				rows.Close()
				return nil, fmt.Errorf("storage.LoadProfitabilityProjection: scan: %w", err)
			}
			w.Category = category.String
			out[w.Address] = w
			n++
		}
		rows.Close()

		if n < pageSize {
			break
		}
		offset += pageSize
	}
	return out, nil
}

// --- WatchlistSQLStore ---

// WatchlistSQLStore implements ports.WatchlistStore against watchlist.
type WatchlistSQLStore struct{ db *sql.DB }

var _ ports.WatchlistStore = (*WatchlistSQLStore)(nil)

// GetWatchlist implements ports.WatchlistStore.
func (s *WatchlistSQLStore) GetWatchlist(ctx context.Context) (map[string]ports.WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, list_type, min_trade_size, alert_threshold_usd FROM watchlist`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetWatchlist: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ports.WatchlistEntry)
	for rows.Next() {
		var e ports.WatchlistEntry
		if err := rows.Scan(&e.Address, &e.ListType, &e.MinTradeSize, &e.AlertThresholdUSD); err != nil {
			return nil, fmt.Errorf("storage.GetWatchlist: scan: %w", err)
		}
		out[e.Address] = e
	}
	return out, rows.Err()
}

// --- AlertRuleSQLStore ---

// AlertRuleSQLStore implements ports.AlertRuleStore against alert_rules.
type AlertRuleSQLStore struct{ db *sql.DB }

var _ ports.AlertRuleStore = (*AlertRuleSQLStore)(nil)

// GetAlertRules implements ports.AlertRuleStore.
func (s *AlertRuleSQLStore) GetAlertRules(ctx context.Context) ([]ports.AlertRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, enabled, rule_type, severity, min_usd_value, categories, hours, sides, min_score
		FROM alert_rules WHERE enabled = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetAlertRules: %w", err)
	}
	defer rows.Close()

	var out []ports.AlertRule
	for rows.Next() {
		var r ports.AlertRule
		var enabled int
		var categories, hours, sides string
		if err := rows.Scan(&r.ID, &enabled, &r.RuleType, &r.Severity,
			&r.Conditions.MinUSDValue, &categories, &hours, &sides, &r.Conditions.MinScore); err != nil {
			return nil, fmt.Errorf("storage.GetAlertRules: scan: %w", err)
		}
		r.Enabled = enabled == 1
		r.Conditions.Categories = splitSet(categories)
		r.Conditions.Hours = splitIntSet(hours)
		r.Conditions.Sides = splitSideSet(sides)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- AlertSQLStore ---

// AlertSQLStore implements ports.AlertStore against alerts.
type AlertSQLStore struct{ db *sql.DB }

var _ ports.AlertStore = (*AlertSQLStore)(nil)

func (s *AlertSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// InsertAlert implements ports.AlertStore.
func (s *AlertSQLStore) InsertAlert(ctx context.Context, tradeID string, ruleType, severity string, firedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (trade_id, rule_type, severity, fired_at) VALUES (?, ?, ?, ?)`,
		tradeID, ruleType, severity, firedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.InsertAlert: %w", err)
	}
	return nil
}

// DeleteOlderThan implements ports.AlertStore.
func (s *AlertSQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time, acknowledgedOnly bool) (int64, error) {
	query := `DELETE FROM alerts WHERE fired_at < ?`
	if acknowledgedOnly {
		query = `DELETE FROM alerts WHERE fired_at < ? AND acknowledged = 1`
	}
	res, err := s.db.ExecContext(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.AlertSQLStore.DeleteOlderThan: %w", err)
	}
	return res.RowsAffected()
}

// --- InsiderSQLStore ---

// InsiderSQLStore implements ports.InsiderStore against insider_alerts.
type InsiderSQLStore struct{ db *sql.DB }

var _ ports.InsiderStore = (*InsiderSQLStore)(nil)

func (s *InsiderSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// SaveAlert implements ports.InsiderStore.
func (s *InsiderSQLStore) SaveAlert(ctx context.Context, a domain.InsiderAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO insider_alerts
			(trade_id, trader_address, condition_id, usd_value, side, price,
			 composite, score_wallet_age, score_size_liquidity, score_market_niche,
			 score_extreme_odds, score_conviction, score_category_winrate,
			 signals, profitability_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO UPDATE SET
			profitability_status = excluded.profitability_status
	`,
		a.TradeID, a.TraderAddress, a.ConditionID, a.USDValue, string(a.Side), a.Price,
		a.Composite, a.ScoreWalletAge, a.ScoreSizeLiquidity, a.ScoreMarketNiche,
		a.ScoreExtremeOdds, a.ScoreConviction, a.ScoreCategoryWinRate,
		joinFlags(a.Signals), a.ProfitabilityStatus, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAlert: %s: %w", a.TradeID, err)
	}
	return nil
}

// DeleteOlderThan implements ports.InsiderStore.
func (s *InsiderSQLStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM insider_alerts WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.InsiderSQLStore.DeleteOlderThan: %w", err)
	}
	return res.RowsAffected()
}

// --- CursorSQLStore ---

// CursorSQLStore implements ports.CursorStore against cursors.
type CursorSQLStore struct{ db *sql.DB }

var _ ports.CursorStore = (*CursorSQLStore)(nil)

func (s *CursorSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// GetCursor implements ports.CursorStore.
func (s *CursorSQLStore) GetCursor(ctx context.Context, name string) (int64, bool, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM cursors WHERE name = ?`, name).Scan(&pos)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("storage.GetCursor: %w", err)
	}
	return pos, true, nil
}

// SetCursor implements ports.CursorStore.
func (s *CursorSQLStore) SetCursor(ctx context.Context, name string, position int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cursors (name, position) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET position = excluded.position
	`, name, position)
	if err != nil {
		return fmt.Errorf("storage.SetCursor: %s: %w", name, err)
	}
	return nil
}

// --- PositionSQLStore ---

// PositionSQLStore implements ports.PositionStore against
// user_orders/user_positions/copy_trade_log.
type PositionSQLStore struct{ db *sql.DB }

var _ ports.PositionStore = (*PositionSQLStore)(nil)

func (s *PositionSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// SaveOrder implements ports.PositionStore.
func (s *PositionSQLStore) SaveOrder(ctx context.Context, order domain.Order, copiedFrom string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_orders
			(order_id, token_id, side, size, price, status, filled_size,
			 copied_from, created_at, updated_at, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			status = excluded.status, filled_size = excluded.filled_size,
			updated_at = excluded.updated_at, error_message = excluded.error_message
	`,
		order.OrderID, order.TokenID, string(order.Side), order.Size, order.Price,
		string(order.Status), order.FilledSize, copiedFrom, order.CreatedAt,
		order.UpdatedAt, order.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("storage.SaveOrder: %s: %w", order.OrderID, err)
	}
	return nil
}

// SavePosition implements ports.PositionStore.
func (s *PositionSQLStore) SavePosition(ctx context.Context, p domain.TrackedPosition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_positions
			(token_id, market_id, condition_id, side, size, avg_price,
			 current_price, unrealized_pnl, copied_from, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(token_id) DO UPDATE SET
			size = excluded.size, avg_price = excluded.avg_price,
			current_price = excluded.current_price,
			unrealized_pnl = excluded.unrealized_pnl,
			updated_at = excluded.updated_at
	`,
		p.TokenID, p.MarketID, p.ConditionID, string(p.Side),
		p.Size.String(), p.AvgPrice.String(), p.CurrentPrice.String(),
		p.UnrealizedPnL.String(), p.CopiedFrom, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.SavePosition: %s: %w", p.TokenID, err)
	}
	return nil
}

// DeletePosition implements ports.PositionStore.
func (s *PositionSQLStore) DeletePosition(ctx context.Context, tokenID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_positions WHERE token_id = ?`, tokenID)
	if err != nil {
		return fmt.Errorf("storage.DeletePosition: %s: %w", tokenID, err)
	}
	return nil
}

// LoadPositions implements ports.PositionStore.
func (s *PositionSQLStore) LoadPositions(ctx context.Context) ([]domain.TrackedPosition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token_id, market_id, condition_id, side, size, avg_price,
		       current_price, unrealized_pnl, copied_from, created_at, updated_at
		FROM user_positions
	`)
	if err != nil {
		return nil, fmt.Errorf("storage.LoadPositions: %w", err)
	}
	defer rows.Close()

	var out []domain.TrackedPosition
	for rows.Next() {
		var p domain.TrackedPosition
		var side, size, avgPrice, currentPrice, unrealized string
		if err := rows.Scan(&p.TokenID, &p.MarketID, &p.ConditionID, &side,
			&size, &avgPrice, &currentPrice, &unrealized, &p.CopiedFrom,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("storage.LoadPositions: scan: %w", err)
		}
		p.Side = domain.Side(side)
		p.Size, _ = decimal.NewFromString(size)
		p.AvgPrice, _ = decimal.NewFromString(avgPrice)
		p.CurrentPrice, _ = decimal.NewFromString(currentPrice)
		p.UnrealizedPnL, _ = decimal.NewFromString(unrealized)
		out = append(out, p)
	}
	return out, rows.Err()
}

// LogCopyTrade implements ports.PositionStore.
func (s *PositionSQLStore) LogCopyTrade(ctx context.Context, e domain.CopyTradeLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO copy_trade_log
			(id, source_trader, source_trade_id, our_order_id, market_id,
			 condition_id, side, source_size, copy_size, source_price,
			 our_price, trader_score, status, rejection_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.SourceTrader, e.SourceTradeID, e.OurOrderID, e.MarketID,
		e.ConditionID, string(e.Side), e.SourceSize.String(), e.CopySize.String(),
		e.SourcePrice.String(), e.OurPrice.String(), e.TraderScore, e.Status,
		e.RejectionReason, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("storage.LogCopyTrade: %s: %w", e.ID, err)
	}
	return nil
}

// --- FunnelSQLStore ---

// FunnelSQLStore implements ports.FunnelStore against
// pipeline_runs/pipeline_stats — contract-only.
type FunnelSQLStore struct{ db *sql.DB }

var _ ports.FunnelStore = (*FunnelSQLStore)(nil)

func (s *FunnelSQLStore) ApplySchema(ctx context.Context) error { return applySchema(ctx, s.db) }

// SaveRun implements ports.FunnelStore.
func (s *FunnelSQLStore) SaveRun(ctx context.Context, run domain.FunnelRun) error {
	done := 0
	if run.Done {
		done = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, started_at, done) VALUES (?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET done = excluded.done
	`, run.RunID, time.Now().UTC(), done)
	if err != nil {
		return fmt.Errorf("storage.SaveRun: %s: %w", run.RunID, err)
	}
	return nil
}

// SaveStageStats implements ports.FunnelStore.
func (s *FunnelSQLStore) SaveStageStats(ctx context.Context, runID string, stats domain.FunnelStageStats) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pipeline_stats (run_id, stage, name, processed, qualified, eliminated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, stage) DO UPDATE SET
			processed = excluded.processed, qualified = excluded.qualified,
			eliminated = excluded.eliminated
	`, runID, stats.Stage, stats.Name, stats.Processed, stats.Qualified, stats.Eliminated)
	if err != nil {
		return fmt.Errorf("storage.SaveStageStats: run=%s stage=%d: %w", runID, stats.Stage, err)
	}
	return nil
}

// --- helpers ---

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func joinFlags(flags []string) string {
	out := ""
	for i, f := range flags {
		if i > 0 {
			out += ","
		}
		out += f
	}
	return out
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func splitSet(s string) map[string]bool {
	fields := splitFlags(s)
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			out[f] = true
		}
	}
	return out
}

func splitIntSet(s string) map[int]bool {
	fields := splitFlags(s)
	if len(fields) == 0 {
		return nil
	}
	out := make(map[int]bool, len(fields))
	for _, f := range fields {
		var n int
		if _, err := fmt.Sscanf(f, "%d", &n); err == nil {
			out[n] = true
		}
	}
	return out
}

func splitSideSet(s string) map[domain.Side]bool {
	fields := splitFlags(s)
	if len(fields) == 0 {
		return nil
	}
	out := make(map[domain.Side]bool, len(fields))
	for _, f := range fields {
		if f != "" {
			out[domain.Side(f)] = true
		}
	}
	return out
}
