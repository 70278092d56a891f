package ports

import "context"

// LiveFeed delivers every trade event from the venue to one in-process
// callback, exactly-once per trade_id as observed.
type LiveFeed interface {
	// Run connects, subscribes, and streams trades into onTrade until ctx
	// is cancelled or Stop is called. It manages its own reconnection.
	Run(ctx context.Context, onTrade TradeHandler) error

	// Stop signals the feed to stop accepting new work, close the socket,
	// and return from Run within a bounded deadline.
	Stop()

	// Stats returns point-in-time counters for observability.
	Stats() FeedStats
}

// TradeHandler is invoked once per parsed trade.
type TradeHandler func(ctx context.Context, raw map[string]any)

// FeedStats mirrors the RTDS client's observability surface.
type FeedStats struct {
	Connected       bool
	MessageCount    int64
	TradeCount      int64
	ErrorCount      int64
	ReconnectCount  int
	UptimeSeconds   float64
}
