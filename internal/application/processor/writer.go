package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// BatchWriter drains a bounded queue of significant trades into
// deduplicated, size- or time-triggered upsert batches.
type BatchWriter struct {
	store   ports.TradeStore
	queue   chan domain.EnrichedTrade
	size    int
	timeout time.Duration
}

// NewBatchWriter builds a BatchWriter with the given queue capacity, batch
// size, and flush timeout.
func NewBatchWriter(store ports.TradeStore, queueSize, batchSize int, timeout time.Duration) *BatchWriter {
	return &BatchWriter{
		store:   store,
		queue:   make(chan domain.EnrichedTrade, queueSize),
		size:    batchSize,
		timeout: timeout,
	}
}

// Enqueue offers a trade to the writer, dropping it silently if the queue
// is full — a slow store must not block ingestion.
func (w *BatchWriter) Enqueue(et domain.EnrichedTrade) {
	select {
	case w.queue <- et:
	default:
		slog.Warn("processor.BatchWriter: queue full, dropping trade", "trade_id", et.TradeID)
	}
}

// Run drains the queue until ctx is cancelled, flushing whenever the batch
// reaches w.size or w.timeout has elapsed since the last flush. On
// cancellation the current batch is flushed before returning.
func (w *BatchWriter) Run(ctx context.Context) {
	batch := make([]domain.EnrichedTrade, 0, w.size)
	ticker := time.NewTicker(w.timeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		deduped := dedupeByTradeID(batch)
		if err := w.store.UpsertTrades(context.Background(), deduped); err != nil {
			slog.Error("processor.BatchWriter: upsert failed", "err", err, "rows", len(deduped))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case et := <-w.queue:
			batch = append(batch, et)
			if len(batch) >= w.size {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// dedupeByTradeID keeps the last observation per trade_id, preserving the
// order of first appearance.
func dedupeByTradeID(rows []domain.EnrichedTrade) []domain.EnrichedTrade {
	last := make(map[string]domain.EnrichedTrade, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, ok := last[r.TradeID]; !ok {
			order = append(order, r.TradeID)
		}
		last[r.TradeID] = r
	}
	out := make([]domain.EnrichedTrade, len(order))
	for i, id := range order {
		out[i] = last[id]
	}
	return out
}
