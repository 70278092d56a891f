package scorer

import (
	"context"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// scoreTrade computes the composite insider score and full InsiderAlert for
// a trade row. ok reports whether the composite cleared the write
// threshold; a below-threshold trade still advances the cursor but is
// never persisted.
func (s *Scorer) scoreTrade(ctx context.Context, row domain.TradeRow, now time.Time) (domain.InsiderAlert, bool) {
	t := row.Trade

	ageDays, nonce := resolveWalletAge(ctx, t.TraderAddress, s.ageCache, s.wallets, s.chain, now)
	ageScore := domain.ScoreWalletAge(ageDays, nonce)

	volume := s.marketVolume(ctx, t.ConditionID)
	sizeScore := domain.ScoreSizeLiquidity(t.USDValue, volume)
	nicheScore := domain.ScoreMarketNiche(volume)

	oddsScore := domain.ScoreExtremeOdds(t.Side, t.Price, t.USDValue)

	buys, sells := s.conviction.Record(t.TraderAddress, t.ConditionID, t.Side)
	convictionScore := domain.ScoreConviction(buys, sells)

	wallet, known := s.projection.Get(t.TraderAddress)
	categoryScore := domain.ScoreCategoryWinRate(wallet.WinRateAllTime, wallet.TradeCountAll)

	composite := domain.CompositeInsiderScore(ageScore, sizeScore, nicheScore, oddsScore, convictionScore, categoryScore)

	alert := domain.InsiderAlert{
		TradeID:       t.TradeID,
		TraderAddress: t.TraderAddress,
		ConditionID:   t.ConditionID,
		USDValue:      t.USDValue,
		Side:          t.Side,
		Price:         t.Price,

		Composite: composite,

		ScoreWalletAge:       ageScore,
		ScoreSizeLiquidity:   sizeScore,
		ScoreMarketNiche:     nicheScore,
		ScoreExtremeOdds:     oddsScore,
		ScoreConviction:      convictionScore,
		ScoreCategoryWinRate: categoryScore,

		Signals:             signalsAbove60(ageScore, sizeScore, nicheScore, oddsScore, convictionScore, categoryScore),
		ProfitabilityStatus: profitabilityStatus(wallet, known),

		CreatedAt: now,
	}
	return alert, composite >= s.cfg.ScoreThreshold
}

// marketVolume resolves a condition's 24h volume, cache-or-fetch. A fetch
// error is reported as -1 ("unknown"), matching the per-signal rules'
// unknown-volume handling.
func (s *Scorer) marketVolume(ctx context.Context, conditionID string) float64 {
	now := time.Now()
	if v, ok := s.volume.get(conditionID, now); ok {
		return v
	}
	v, err := s.catalog.GetMarketVolume24h(ctx, conditionID)
	if err != nil {
		return -1
	}
	s.volume.set(conditionID, v, now)
	return v
}

// signalsAbove60 maps every sub-score at or above 60 to its human-readable
// label.
func signalsAbove60(age, size, niche, odds, conviction, category int) []string {
	var signals []string
	if age >= 60 {
		signals = append(signals, domain.LabelFreshWallet)
	}
	if size >= 60 {
		signals = append(signals, domain.LabelOversized)
	}
	if niche >= 60 {
		signals = append(signals, domain.LabelNicheMarket)
	}
	if odds >= 60 {
		signals = append(signals, domain.LabelExtremeOdds)
	}
	if conviction >= 60 {
		signals = append(signals, domain.LabelHighConviction)
	}
	if category >= 60 {
		signals = append(signals, domain.LabelCategoryExpert)
	}
	return signals
}

// minResolvedTradesForUnprofitable is the sample-size floor below which a
// non-positive-PnL wallet is "pending" evidence rather than confirmed
// unprofitable.
const minResolvedTradesForUnprofitable = 15

// copyableMinScore and copyableMinProfitFactor gate the "copyable" status.
const (
	copyableMinScore        = 60
	copyableMinProfitFactor = 1.5
)

// profitabilityStatus classifies a wallet's profitability snapshot at
// alert-write time.
func profitabilityStatus(w domain.Wallet, known bool) string {
	if !known {
		return domain.ProfitabilityPending
	}
	if w.CopytradeScore >= copyableMinScore && w.ProfitFactor30d >= copyableMinProfitFactor {
		return domain.ProfitabilityCopyable
	}
	if w.PnLAllTime > 0 {
		return domain.ProfitabilityProfitable
	}
	if w.TradeCountAll >= minResolvedTradesForUnprofitable {
		return domain.ProfitabilityUnprofitable
	}
	return domain.ProfitabilityUnknown
}
