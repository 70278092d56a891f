package ports

import (
	"context"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// CatalogClient is the read-only Catalog HTTP API: portfolio value,
// open/closed positions, activity and profile, plus market metadata used by
// the insider scorer. Pagination and rate limiting are internal to the
// implementation.
type CatalogClient interface {
	GetPortfolioValue(ctx context.Context, address string) (float64, error)
	GetPositions(ctx context.Context, address string) ([]domain.Position, error)
	GetClosedPositions(ctx context.Context, address string) ([]domain.ClosedPosition, error)
	GetProfile(ctx context.Context, address string) (Profile, error)
	GetMarketVolume24h(ctx context.Context, conditionID string) (float64, error)
}

// Profile is the subset of the public-profile endpoint the pipeline uses.
type Profile struct {
	Username       string
	AccountCreated *int64 // unix seconds, nil if unavailable
}
