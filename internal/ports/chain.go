package ports

import "context"

// ChainNonceProvider is the on-chain fallback for wallet age, used by the
// insider scorer only when a wallet has no age cache entry, no
// account_created_at, and fewer than 21 trades on its wallets row.
type ChainNonceProvider interface {
	// NonceAt returns the confirmed transaction count for address.
	NonceAt(ctx context.Context, address string) (int64, error)
}
