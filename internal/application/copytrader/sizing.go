package copytrader

import (
	"github.com/shopspring/decimal"
)

// defaultPrice is used for share conversion when a trade's price is
// missing or non-positive.
const defaultPrice = 0.5

// sizeOrder computes the copy order's USD size from the source trade's
// USD value and the trader's copytrade score: base = source * fraction,
// scaled by score/100, clamped to [MinCopySizeUSD, min(MaxCopySizeUSD,
// MaxSingleOrderUSD)], rounded to a cent.
func sizeOrder(sourceUSD float64, score int, cfg Config) decimal.Decimal {
	base := decimal.NewFromFloat(sourceUSD).Mul(cfg.CopyFraction)
	scaled := base.Mul(decimal.NewFromInt(int64(score))).Div(decimal.NewFromInt(100))

	upperBound := cfg.MaxCopySizeUSD
	if cfg.MaxSingleOrderUSD.LessThan(upperBound) {
		upperBound = cfg.MaxSingleOrderUSD
	}

	if scaled.LessThan(cfg.MinCopySizeUSD) {
		scaled = cfg.MinCopySizeUSD
	}
	if scaled.GreaterThan(upperBound) {
		scaled = upperBound
	}
	return scaled.Round(2)
}

// sizeShares converts a USD size into shares at price, rounded to a cent
// of a share; a missing or non-positive price defaults to defaultPrice.
func sizeShares(sizeUSD decimal.Decimal, price float64) decimal.Decimal {
	if price <= 0 {
		price = defaultPrice
	}
	return sizeUSD.Div(decimal.NewFromFloat(price)).Round(2)
}
