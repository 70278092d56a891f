package domain

import "time"

// Wallet es la fila denormalizada de analítica por dirección. Creada
// por discovery; actualizada por discovery o por el batch funnel.
type Wallet struct {
	Address         string // clave, hex en minúsculas
	Source          string // "discovery" | "funnel"
	Balance         float64
	Username        string
	AccountCreated  *time.Time

	// Agregados all-time.
	PnLAllTime       float64
	ROIAllTime       float64
	WinRateAllTime   float64
	VolumeAllTime    float64
	TradeCountAll    int
	WinsAll          int
	LossesAll        int
	DrawdownAllTime  float64
	OpenCount        int

	Window7d  WindowMetrics
	Window30d WindowMetrics

	MetricsUpdatedAt time.Time

	// Métricas conductuales, pobladas por el batch funnel / análisis
	// avanzado; opcionales para discovery.
	TradeFrequency        float64
	NightTradeRatio        float64
	TradeTimeVariance      float64
	PositionSizeVariance   float64
	AvgHoldHours           float64
	MaxDrawdown            float64
	UniqueMarkets          int
	PositionConcentration  float64
	AvgEntryProbability    float64
	PnLConcentration       float64
	CategoryConcentration  float64

	// CopytradeScore y ProfitFactor30d son consumidos por el copy trader y
	// por el snapshot de "profitability" del insider scorer.
	CopytradeScore   int
	ProfitFactor30d  float64

	// Category es la categoría de mercado dominante de la wallet (derivada
	// por discovery de sus posiciones); el processor la propaga a
	// EnrichedTrade.Category para las condiciones genéricas de alert_rules.
	Category string
}

// WindowMetrics son las métricas recalculadas sobre una ventana rodante
// (7 d o 30 d) de closed positions.
type WindowMetrics struct {
	PnL       float64
	ROI       float64
	WinRate   float64
	Volume    float64
	Drawdown  float64
}

// Position es una posición abierta, clave (address, condition_id,
// outcome_index).
type Position struct {
	Address      string
	ConditionID  string
	OutcomeIndex int
	Outcome      string
	Size         float64
	AvgPrice     float64
	InitialValue float64
	CurrentValue float64
	CashPnL      float64

	// Slug y Category vienen tal cual del catálogo; "" si la API no los
	// incluyó para este mercado.
	Slug     string
	Category string
}

// ClosedPosition es una posición resuelta, clave (address,
// condition_id, outcome).
type ClosedPosition struct {
	Address      string
	ConditionID  string
	Outcome      string
	Slug         string
	Category     string
	TotalBought  float64
	AvgPrice     float64
	FinalPrice   float64
	RealizedPnL  float64
	IsWin        bool
	ResolvedAt   time.Time
}

// FoldedTrade es la unidad atómica de conteo de win-rate tras aplicar la
// regla de agrupación: dos posiciones en el mismo condition_id con
// distinto outcome (un hedge) colapsan en una; con el mismo outcome quedan
// separadas (re-entradas secuenciales).
type FoldedTrade struct {
	ConditionID string
	TotalPnL    float64
	TotalBought float64
	IsResolved  bool
	ResolvedAt  time.Time
	IsWin       bool
}
