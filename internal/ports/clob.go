package ports

import (
	"context"

	"github.com/alejandrodnm/polybot/internal/domain"
)

// TradeExecutor places/cancels/queries orders on the copy-trading CLOB
// client, live or paper. Distinct from OrderExecutor (executor.go), which
// drives the USDC-maker-bid reward farming path.
type TradeExecutor interface {
	PlaceOrder(ctx context.Context, tokenID string, side domain.Side, size, price float64, orderType domain.OrderType) (domain.Order, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetOrder(ctx context.Context, orderID string) (domain.Order, bool, error)
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)
	CancelAllOrders(ctx context.Context) (int, error)
	BestPrices(ctx context.Context, tokenID string) (bestBid, bestAsk float64, err error)
	Stats() domain.ClientStats

	// SetPaperMode toggles live vs. paper-simulated execution at runtime —
	// switching to paper must propagate without restarting the client.
	SetPaperMode(paper bool)
}
