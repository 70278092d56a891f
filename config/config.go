package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del proceso: puede ejecutar el
// scanner de rewards original (Scanner/API) o el pipeline de inteligencia
// en tiempo real (Feed/Processor/Discovery/Scorer/CopyTrader/Risk/CLOB),
// según el comando invocado en cmd/.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`

	Feed       FeedConfig       `yaml:"feed"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Processor  ProcessorConfig  `yaml:"processor"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	CopyTrader CopyTraderConfig `yaml:"copy_trader"`
	Risk       RiskConfig       `yaml:"risk"`
	CLOB       CLOBConfig       `yaml:"clob"`
	Funnel     FunnelConfig     `yaml:"funnel"`
}

// FeedConfig controla el cliente WebSocket de trades en vivo.
type FeedConfig struct {
	URL                  string  `yaml:"url"`
	HeartbeatSeconds     float64 `yaml:"heartbeat_seconds"`
	StaleThresholdSeconds float64 `yaml:"stale_threshold_seconds"`
	ReconnectBaseSeconds  float64 `yaml:"reconnect_base_seconds"`
	ReconnectCapSeconds   float64 `yaml:"reconnect_cap_seconds"`
}

// CatalogConfig controla el cliente HTTP de catálogo (Data/Gamma API).
type CatalogConfig struct {
	DataAPIBase      string `yaml:"data_api_base"`
	GammaAPIBase     string `yaml:"gamma_api_base"`
	RatePerMinute    int    `yaml:"rate_per_minute"`
}

// ProcessorConfig controla el trade processor.
type ProcessorConfig struct {
	WhaleUSD           float64 `yaml:"whale_usd"`
	InsiderSuspectScore int    `yaml:"insider_suspect_score"`
	BatchSize          int     `yaml:"batch_size"`
	BatchTimeoutMillis int     `yaml:"batch_timeout_millis"`
	QueueSize          int     `yaml:"queue_size"`
	WalletCacheRefreshSeconds int `yaml:"wallet_cache_refresh_seconds"`
	RetentionDays      int     `yaml:"retention_days"`
	RetentionSweepHours int    `yaml:"retention_sweep_hours"`
}

// DiscoveryConfig controla el worker pool de descubrimiento de wallets.
type DiscoveryConfig struct {
	NumWorkers             int     `yaml:"num_workers"`
	RequestIntervalMillis  int     `yaml:"request_interval_millis"`
	QueueSize              int     `yaml:"queue_size"`
	ReanalysisCooldownDays int     `yaml:"reanalysis_cooldown_days"`
	DiscoveryThresholdUSD  float64 `yaml:"discovery_threshold_usd"`
}

// ScorerConfig controla el insider scorer.
type ScorerConfig struct {
	PollIntervalSeconds int     `yaml:"poll_interval_seconds"`
	BatchLimit          int     `yaml:"batch_limit"`
	MinUSDValue         float64 `yaml:"min_usd_value"`
	ScoreThreshold       int    `yaml:"score_threshold"`
	WalletAgeCacheTTLHours int  `yaml:"wallet_age_cache_ttl_hours"`
	MarketVolumeCacheTTLHours int `yaml:"market_volume_cache_ttl_hours"`
	ProjectionRefreshMinutes int `yaml:"projection_refresh_minutes"`
	RetentionDays      int      `yaml:"retention_days"`
	PolygonRPCURL      string   `yaml:"polygon_rpc_url"`
}

// CopyTraderConfig controla el motor de copy trading.
type CopyTraderConfig struct {
	Enabled              bool    `yaml:"enabled"`
	PaperTrading         bool    `yaml:"paper_trading"`
	WatchlistOnly        bool    `yaml:"watchlist_only"`
	MinCopytradeScore    int     `yaml:"min_copytrade_score"`
	MinTraderScore       int     `yaml:"min_trader_score"`
	CopyFraction         float64 `yaml:"copy_fraction"`
	MinCopySizeUSD       float64 `yaml:"min_copy_size_usd"`
	MaxCopySizeUSD       float64 `yaml:"max_copy_size_usd"`
	MinTradeSizeUSD      float64 `yaml:"min_trade_size_usd"`
	MaxDelaySeconds      float64 `yaml:"max_delay_seconds"`
	RecentCopiesCapacity int     `yaml:"recent_copies_capacity"`
	QualificationRefreshMinutes int `yaml:"qualification_refresh_minutes"`
}

// RiskConfig controla los límites del risk engine.
type RiskConfig struct {
	MaxPositionSizeUSD  float64 `yaml:"max_position_size_usd"`
	MaxTotalExposureUSD float64 `yaml:"max_total_exposure_usd"`
	MaxSingleOrderUSD   float64 `yaml:"max_single_order_usd"`
	MaxDailyLossUSD     float64 `yaml:"max_daily_loss_usd"`
	MaxDailyOrders      int     `yaml:"max_daily_orders"`
	BlockedMarkets      []string `yaml:"blocked_markets"`
	AllowedCategories   []string `yaml:"allowed_categories"`
}

// FunnelConfig controla los umbrales por etapa del batch funnel (§4.8):
// cada etapa es un filtro cargado una vez al arrancar el runner.
type FunnelConfig struct {
	Stage1MinTrades           int     `yaml:"stage1_min_trades"`
	Stage2MinPortfolioValue   float64 `yaml:"stage2_min_portfolio_value"`
	Stage3MinPositionSize     float64 `yaml:"stage3_min_position_size"`
	Stage3RequirePositions    bool    `yaml:"stage3_require_positions"`
	Stage4MinWinRate          float64 `yaml:"stage4_min_win_rate"`
	Stage4MinTotalPnL         float64 `yaml:"stage4_min_total_pnl"`
	// Stage4RequireBoth demands win rate AND pnl both clear their floors;
	// zero-value (false) matches the original's require_one=True default
	// of passing on either.
	Stage4RequireBoth bool `yaml:"stage4_require_both"`
	Stage6MinScore            int     `yaml:"stage6_min_score"`
	BatchSize                 int     `yaml:"batch_size"`
	Concurrency               int     `yaml:"concurrency"`
}

// CLOBConfig controla el cliente de órdenes del copy trader.
type CLOBConfig struct {
	BaseURL string `yaml:"base_url"`
	ChainID int64  `yaml:"chain_id"`
}

// ScannerConfig controla el comportamiento del scanner.
type ScannerConfig struct {
	IntervalSeconds      int     `yaml:"interval_seconds"`
	OrderSizeUSDC        float64 `yaml:"order_size_usdc"`
	FeeRateDefault       float64 `yaml:"fee_rate_default"`        // default conservador si la API no devuelve fee
	MinYourDailyReward   float64 `yaml:"min_your_daily_reward"`   // mínimo tu $/día para pasar el filtro
	MinRewardScore       float64 `yaml:"min_reward_score"`
	MaxSpreadTotal       float64 `yaml:"max_spread_total"`
	MaxCompetition       float64 `yaml:"max_competition"`
	RequireQualifies     bool    `yaml:"require_qualifies"`
	MinHoursToResolution float64 `yaml:"min_hours_to_resolution"` // filtrar mercados que se resuelven pronto

	// Filtro de seguridad
	OnlyFillsProfit bool `yaml:"only_fills_profit"` // true = descartar mercados donde un fill te cuesta dinero

	// Arbitraje + concurrencia
	ArbFillsPerDay  float64 `yaml:"arb_fills_per_day"`   // fills estimados/día para cálculo de arb profit
	GoldMinReward   float64 `yaml:"gold_min_reward"`     // mínimo YourDailyReward para categoría Gold
	AnalysisWorkers int     `yaml:"analysis_workers"`    // goroutines para análisis paralelo (0 = NumCPU*2)
}

// APIConfig contiene los base URLs de las APIs.
type APIConfig struct {
	CLOBBase  string `yaml:"clob_base"`
	GammaBase string `yaml:"gamma_base"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// ScanInterval devuelve el intervalo de escaneo como time.Duration.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Scanner.IntervalSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("COPY_TRADING_ENABLED"); v != "" {
		cfg.CopyTrader.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("PAPER_TRADING"); v != "" {
		cfg.CopyTrader.PaperTrading = v == "true" || v == "1"
	}
	if v := os.Getenv("COPY_WATCHLIST_ONLY"); v != "" {
		cfg.CopyTrader.WatchlistOnly = v == "true" || v == "1"
	}
	envFloat("MIN_COPYTRADE_SCORE", func(f float64) { cfg.CopyTrader.MinCopytradeScore = int(f) })
	envFloat("COPY_FRACTION", func(f float64) { cfg.CopyTrader.CopyFraction = f })
	envFloat("MIN_COPY_SIZE_USD", func(f float64) { cfg.CopyTrader.MinCopySizeUSD = f })
	envFloat("MAX_COPY_SIZE_USD", func(f float64) { cfg.CopyTrader.MaxCopySizeUSD = f })
	envFloat("MIN_TRADE_SIZE_USD", func(f float64) { cfg.CopyTrader.MinTradeSizeUSD = f })
	envFloat("MAX_POSITION_SIZE_USD", func(f float64) { cfg.Risk.MaxPositionSizeUSD = f })
	envFloat("MAX_TOTAL_EXPOSURE_USD", func(f float64) { cfg.Risk.MaxTotalExposureUSD = f })
	envFloat("MAX_SINGLE_ORDER_USD", func(f float64) { cfg.Risk.MaxSingleOrderUSD = f })
	envFloat("MAX_DAILY_LOSS_USD", func(f float64) { cfg.Risk.MaxDailyLossUSD = f })
	envFloat("MAX_DAILY_ORDERS", func(f float64) { cfg.Risk.MaxDailyOrders = int(f) })
}

// envFloat reads an env var as float64 and calls set if present and parseable.
func envFloat(name string, set func(float64)) {
	v := os.Getenv(name)
	if v == "" {
		return
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
		set(f)
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Scanner.IntervalSeconds <= 0 {
		cfg.Scanner.IntervalSeconds = 30
	}
	if cfg.Scanner.OrderSizeUSDC <= 0 {
		cfg.Scanner.OrderSizeUSDC = 100
	}
	if cfg.Scanner.FeeRateDefault <= 0 {
		cfg.Scanner.FeeRateDefault = 0.02 // 2% default conservador
	}
	if cfg.Scanner.ArbFillsPerDay <= 0 {
		cfg.Scanner.ArbFillsPerDay = 2.0 // estimación conservadora de fills/día en mercados Gold
	}
	if cfg.Scanner.GoldMinReward <= 0 {
		cfg.Scanner.GoldMinReward = 0.01 // mínimo $0.01/día de reward para entrar en Gold/Silver
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polybot.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	if cfg.Feed.URL == "" {
		cfg.Feed.URL = "wss://ws-live-data.polymarket.com"
	}
	if cfg.Feed.HeartbeatSeconds <= 0 {
		cfg.Feed.HeartbeatSeconds = 30
	}
	if cfg.Feed.StaleThresholdSeconds <= 0 {
		cfg.Feed.StaleThresholdSeconds = 120
	}
	if cfg.Feed.ReconnectBaseSeconds <= 0 {
		cfg.Feed.ReconnectBaseSeconds = 5
	}
	if cfg.Feed.ReconnectCapSeconds <= 0 {
		cfg.Feed.ReconnectCapSeconds = 60
	}

	if cfg.Catalog.DataAPIBase == "" {
		cfg.Catalog.DataAPIBase = "https://data-api.polymarket.com"
	}
	if cfg.Catalog.GammaAPIBase == "" {
		cfg.Catalog.GammaAPIBase = "https://gamma-api.polymarket.com"
	}
	if cfg.Catalog.RatePerMinute <= 0 {
		cfg.Catalog.RatePerMinute = 100
	}

	if cfg.Processor.WhaleUSD <= 0 {
		cfg.Processor.WhaleUSD = 10000
	}
	if cfg.Processor.InsiderSuspectScore <= 0 {
		cfg.Processor.InsiderSuspectScore = 60
	}
	if cfg.Processor.BatchSize <= 0 {
		cfg.Processor.BatchSize = 50
	}
	if cfg.Processor.BatchTimeoutMillis <= 0 {
		cfg.Processor.BatchTimeoutMillis = 500
	}
	if cfg.Processor.QueueSize <= 0 {
		cfg.Processor.QueueSize = 5000
	}
	if cfg.Processor.WalletCacheRefreshSeconds <= 0 {
		cfg.Processor.WalletCacheRefreshSeconds = 60
	}
	if cfg.Processor.RetentionDays <= 0 {
		cfg.Processor.RetentionDays = 7
	}
	if cfg.Processor.RetentionSweepHours <= 0 {
		cfg.Processor.RetentionSweepHours = 1
	}

	if cfg.Discovery.NumWorkers <= 0 {
		cfg.Discovery.NumWorkers = 5
	}
	if cfg.Discovery.RequestIntervalMillis <= 0 {
		cfg.Discovery.RequestIntervalMillis = 300
	}
	if cfg.Discovery.QueueSize <= 0 {
		cfg.Discovery.QueueSize = 5000
	}
	if cfg.Discovery.ReanalysisCooldownDays <= 0 {
		cfg.Discovery.ReanalysisCooldownDays = 1
	}
	if cfg.Discovery.DiscoveryThresholdUSD <= 0 {
		cfg.Discovery.DiscoveryThresholdUSD = 10000
	}

	if cfg.Scorer.PollIntervalSeconds <= 0 {
		cfg.Scorer.PollIntervalSeconds = 3
	}
	if cfg.Scorer.BatchLimit <= 0 {
		cfg.Scorer.BatchLimit = 100
	}
	if cfg.Scorer.MinUSDValue <= 0 {
		cfg.Scorer.MinUSDValue = 200
	}
	if cfg.Scorer.ScoreThreshold <= 0 {
		cfg.Scorer.ScoreThreshold = 50
	}
	if cfg.Scorer.WalletAgeCacheTTLHours <= 0 {
		cfg.Scorer.WalletAgeCacheTTLHours = 24
	}
	if cfg.Scorer.MarketVolumeCacheTTLHours <= 0 {
		cfg.Scorer.MarketVolumeCacheTTLHours = 1
	}
	if cfg.Scorer.ProjectionRefreshMinutes <= 0 {
		cfg.Scorer.ProjectionRefreshMinutes = 5
	}
	if cfg.Scorer.RetentionDays <= 0 {
		cfg.Scorer.RetentionDays = 30
	}
	if cfg.Scorer.PolygonRPCURL == "" {
		cfg.Scorer.PolygonRPCURL = "https://polygon-rpc.com"
	}

	if cfg.CopyTrader.MinCopytradeScore <= 0 {
		cfg.CopyTrader.MinCopytradeScore = 60
	}
	if cfg.CopyTrader.CopyFraction <= 0 {
		cfg.CopyTrader.CopyFraction = 0.05
	}
	if cfg.CopyTrader.MinCopySizeUSD <= 0 {
		cfg.CopyTrader.MinCopySizeUSD = 10
	}
	if cfg.CopyTrader.MaxCopySizeUSD <= 0 {
		cfg.CopyTrader.MaxCopySizeUSD = 500
	}
	if cfg.CopyTrader.MinTradeSizeUSD <= 0 {
		cfg.CopyTrader.MinTradeSizeUSD = 50
	}
	if cfg.CopyTrader.MaxDelaySeconds <= 0 {
		cfg.CopyTrader.MaxDelaySeconds = 30
	}
	if cfg.CopyTrader.RecentCopiesCapacity <= 0 {
		cfg.CopyTrader.RecentCopiesCapacity = 10000
	}
	if cfg.CopyTrader.QualificationRefreshMinutes <= 0 {
		cfg.CopyTrader.QualificationRefreshMinutes = 5
	}

	if cfg.Risk.MaxPositionSizeUSD <= 0 {
		cfg.Risk.MaxPositionSizeUSD = 1000
	}
	if cfg.Risk.MaxTotalExposureUSD <= 0 {
		cfg.Risk.MaxTotalExposureUSD = 5000
	}
	if cfg.Risk.MaxSingleOrderUSD <= 0 {
		cfg.Risk.MaxSingleOrderUSD = 500
	}
	if cfg.Risk.MaxDailyLossUSD <= 0 {
		cfg.Risk.MaxDailyLossUSD = 500
	}
	if cfg.Risk.MaxDailyOrders <= 0 {
		cfg.Risk.MaxDailyOrders = 200
	}

	if cfg.CLOB.BaseURL == "" {
		cfg.CLOB.BaseURL = "https://clob.polymarket.com"
	}
	if cfg.CLOB.ChainID <= 0 {
		cfg.CLOB.ChainID = 137
	}

	if cfg.Funnel.Stage1MinTrades <= 0 {
		cfg.Funnel.Stage1MinTrades = 10
	}
	if cfg.Funnel.Stage2MinPortfolioValue <= 0 {
		cfg.Funnel.Stage2MinPortfolioValue = 200
	}
	if cfg.Funnel.Stage3MinPositionSize <= 0 {
		cfg.Funnel.Stage3MinPositionSize = 10
	}
	if cfg.Funnel.Stage4MinWinRate <= 0 {
		cfg.Funnel.Stage4MinWinRate = 40
	}
	if cfg.Funnel.Stage6MinScore <= 0 {
		cfg.Funnel.Stage6MinScore = 60
	}
	if cfg.Funnel.BatchSize <= 0 {
		cfg.Funnel.BatchSize = 50
	}
	if cfg.Funnel.Concurrency <= 0 {
		cfg.Funnel.Concurrency = 10
	}
}
