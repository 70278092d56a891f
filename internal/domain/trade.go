package domain

import "time"

// Side es el lado de un trade o de una orden.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Trade es un evento de trade observado en el feed en vivo, tal cual llega
// del venue. Nunca se muta una vez creado — las redeliveries tras un
// reconnect se absorben vía upsert sobre TradeID.
type Trade struct {
	TradeID       string // clave única, idempotente en upserts
	TraderAddress string // hex en minúsculas
	ConditionID   string
	AssetID       string // opcional
	MarketSlug    string // opcional
	EventSlug     string // opcional
	Side          Side
	Outcome       string // opcional
	OutcomeIndex  int
	Size          float64
	Price         float64 // en [0,1]
	USDValue      float64 // ≈ Size * Price
	TxHash        string  // opcional
	ExecutedAt    time.Time

	// Raw conserva el mensaje decodificado original para enriquecimiento
	// o debugging; no se persiste.
	Raw map[string]any `json:"-"`
}

// EnrichedTrade añade al Trade los campos calculados por el processor antes
// de decidir si se persiste y antes de evaluarlo para copy trading.
type EnrichedTrade struct {
	Trade

	IsWhale            bool
	IsWatchlist        bool
	IsInsiderSuspect   bool
	TraderInsiderScore int // score heurístico de sesión (0–100) para traders desconocidos
	TraderFlags        []string
	ProcessingLatency  time.Duration

	// CopytradeScore y Category vienen de la proyección de wallets cuando
	// el trader es conocido; cero-valor si es desconocido.
	CopytradeScore int
	Category       string
}

// Age devuelve cuánto tiempo pasó entre ExecutedAt y now.
func (t Trade) Age(now time.Time) time.Duration {
	return now.Sub(t.ExecutedAt)
}

// TradeRow is a persisted live_trades row: the enriched trade plus the
// store-assigned autoincrement id independent consumers (the insider
// scorer, batch-funnel steps) tail via a cursor.
type TradeRow struct {
	ID         int64
	ReceivedAt time.Time
	EnrichedTrade
}

