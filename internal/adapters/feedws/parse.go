package feedws

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// ParseTrade maps a raw decoded message into a domain.Trade following the
// exact field-fallback chains of the venue's wire format.
// Trades with a missing trader address are dropped (ok=false).
func ParseTrade(data map[string]any) (domain.Trade, bool) {
	traderAddress := firstString(data, "proxyWallet", "user", "userAddress", "trader_address", "maker", "taker")
	if traderAddress == "" {
		return domain.Trade{}, false
	}
	traderAddress = strings.ToLower(traderAddress)

	tradeID := firstString(data, "id", "tradeId", "trade_id")
	if tradeID == "" {
		ts := firstAny(data, "timestamp")
		tradeID = fmt.Sprintf("%s_%v", traderAddress, ts)
	}

	executedAt := time.Now().UTC()
	if ts := firstAny(data, "timestamp", "executedAt", "executed_at"); ts != nil {
		if parsed, ok := ParseTimestamp(ts); ok {
			executedAt = parsed
		}
	}

	size := firstFloat(data, "size", "amount")
	price := firstFloat(data, "price", "avgPrice")

	usdValue, hasUSD := firstFloatOK(data, "usdValue", "usd_value")
	if !hasUSD {
		usdValue = size * price
	}

	side := strings.ToUpper(firstString(data, "side", "type"))
	if side == "" {
		side = "BUY"
	}
	if side != "BUY" && side != "SELL" {
		if side == "LONG" || side == "YES" || side == "0" {
			side = "BUY"
		} else {
			side = "SELL"
		}
	}

	conditionID := firstString(data, "conditionId", "condition_id", "marketId", "market_id")
	outcomeIndex, _ := strconv.Atoi(firstString(data, "outcomeIndex", "outcome_index"))

	return domain.Trade{
		TradeID:       tradeID,
		TraderAddress: traderAddress,
		ConditionID:   conditionID,
		AssetID:       firstString(data, "asset", "assetId", "asset_id"),
		MarketSlug:    firstString(data, "slug", "marketSlug", "market_slug"),
		EventSlug:     firstString(data, "eventSlug", "event_slug"),
		Side:          domain.Side(side),
		Outcome:       firstString(data, "outcome", "outcomeName", "outcome_name"),
		OutcomeIndex:  outcomeIndex,
		Size:          size,
		Price:         price,
		USDValue:      usdValue,
		TxHash:        firstString(data, "transactionHash", "txHash", "tx_hash"),
		ExecutedAt:    executedAt,
		Raw:           data,
	}, true
}

func firstAny(data map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := data[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func firstString(data map[string]any, keys ...string) string {
	v := firstAny(data, keys...)
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func firstFloat(data map[string]any, keys ...string) float64 {
	f, _ := firstFloatOK(data, keys...)
	return f
}

func firstFloatOK(data map[string]any, keys ...string) (float64, bool) {
	v := firstAny(data, keys...)
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
