package scorer

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/ports"
)

// establishedAgeDays is what a wallet with over 20 trades but no known
// creation timestamp is treated as: old enough that the age signal
// shouldn't fire on it.
const establishedAgeDays = 365

// unknownAgeDays is the conservative default when neither a creation
// timestamp nor a trade-count threshold resolves an age: treated as old,
// so missing data produces false negatives rather than false insider
// alerts.
const unknownAgeDays = 365

// establishedNonce is the conservative default nonce used when an RPC call
// fails or no chain provider is configured: high enough that the
// nonce-based sub-score reads as an established account.
const establishedNonce = 999

// establishedTradeCount is the wallets-row trade count above which a wallet
// with no account_created_at is treated as established rather than
// unknown.
const establishedTradeCount = 20

// resolveWalletAge resolves (age_days, nonce) for address, consulting the
// age cache first, then the wallets row, then the on-chain nonce provider.
func resolveWalletAge(ctx context.Context, address string, cache *AgeCache, wallets ports.WalletStore, chain ports.ChainNonceProvider, now time.Time) (ageDays float64, nonce int64) {
	if e, ok := cache.get(address, now); ok {
		return e.ageDays, e.nonce
	}

	ageDays = resolveAgeDaysFromWallet(ctx, address, wallets, now)
	nonce = resolveNonce(ctx, address, chain)

	cache.set(address, ageDays, nonce, now)
	return ageDays, nonce
}

func resolveAgeDaysFromWallet(ctx context.Context, address string, wallets ports.WalletStore, now time.Time) float64 {
	w, ok, err := wallets.GetWallet(ctx, address)
	if err != nil || !ok {
		return unknownAgeDays
	}
	if w.AccountCreated != nil {
		return now.Sub(*w.AccountCreated).Hours() / 24
	}
	if w.TradeCountAll > establishedTradeCount {
		return establishedAgeDays
	}
	return unknownAgeDays
}

func resolveNonce(ctx context.Context, address string, chain ports.ChainNonceProvider) int64 {
	if chain == nil {
		return establishedNonce
	}
	n, err := chain.NonceAt(ctx, address)
	if err != nil {
		slog.Warn("scorer: nonce lookup failed", "address", address, "err", err)
		return establishedNonce
	}
	return n
}
