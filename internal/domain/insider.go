package domain

import "time"

// InsiderAlert es una fila por trade_id: score compuesto, sub-scores, las
// etiquetas de señal activadas y un snapshot de la "profitability" de la
// wallet en el momento de la escritura.
type InsiderAlert struct {
	TradeID       string
	TraderAddress string
	ConditionID   string
	USDValue      float64
	Side          Side
	Price         float64

	Composite int // 0–100, redondeado

	ScoreWalletAge       int
	ScoreSizeLiquidity   int
	ScoreMarketNiche     int
	ScoreExtremeOdds     int
	ScoreConviction      int
	ScoreCategoryWinRate int

	Signals []string // etiquetas humanas para sub-scores ≥ 60

	ProfitabilityStatus string // copyable | profitable | unprofitable | pending | unknown

	CreatedAt time.Time
}

// Signal labels.
const (
	LabelFreshWallet    = "Fresh Wallet"
	LabelOversized      = "Oversized"
	LabelNicheMarket    = "Niche Market"
	LabelExtremeOdds    = "Extreme Odds"
	LabelHighConviction = "High Conviction"
	LabelCategoryExpert = "Category Expert"
)

// Profitability status values.
const (
	ProfitabilityCopyable     = "copyable"
	ProfitabilityProfitable   = "profitable"
	ProfitabilityUnprofitable = "unprofitable"
	ProfitabilityPending      = "pending"
	ProfitabilityUnknown      = "unknown"
)
