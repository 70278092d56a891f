package processor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/stretchr/testify/assert"
)

type fakeTradeStore struct {
	mu    sync.Mutex
	rows  []domain.EnrichedTrade
	calls int
}

func (f *fakeTradeStore) ApplySchema(ctx context.Context) error { return nil }
func (f *fakeTradeStore) UpsertTrades(ctx context.Context, rows []domain.EnrichedTrade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	f.calls++
	return nil
}
func (f *fakeTradeStore) TradesSince(ctx context.Context, afterID int64, limit int) ([]domain.TradeRow, error) {
	return nil, nil
}
func (f *fakeTradeStore) MaxTradeID(ctx context.Context) (int64, error) { return 0, nil }
func (f *fakeTradeStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

func (f *fakeTradeStore) snapshot() ([]domain.EnrichedTrade, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.EnrichedTrade, len(f.rows))
	copy(out, f.rows)
	return out, f.calls
}

func TestDedupeByTradeID_KeepsLastObservation(t *testing.T) {
	rows := []domain.EnrichedTrade{
		{Trade: domain.Trade{TradeID: "t1", USDValue: 100}},
		{Trade: domain.Trade{TradeID: "t2", USDValue: 200}},
		{Trade: domain.Trade{TradeID: "t1", USDValue: 150}},
	}
	out := dedupeByTradeID(rows)
	assert.Len(t, out, 2)
	for _, r := range out {
		if r.TradeID == "t1" {
			assert.Equal(t, 150.0, r.USDValue)
		}
	}
}

func TestBatchWriter_FlushesOnSize(t *testing.T) {
	store := &fakeTradeStore{}
	w := NewBatchWriter(store, 100, 3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	for i := 0; i < 3; i++ {
		w.Enqueue(domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t" + string(rune('0'+i))}})
	}

	assert.Eventually(t, func() bool {
		rows, _ := store.snapshot()
		return len(rows) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestBatchWriter_FlushesOnTimeout(t *testing.T) {
	store := &fakeTradeStore{}
	w := NewBatchWriter(store, 100, 50, 20*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Enqueue(domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1"}})

	assert.Eventually(t, func() bool {
		rows, _ := store.snapshot()
		return len(rows) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBatchWriter_FlushesCurrentBatchOnCancel(t *testing.T) {
	store := &fakeTradeStore{}
	w := NewBatchWriter(store, 100, 50, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	w.Enqueue(domain.EnrichedTrade{Trade: domain.Trade{TradeID: "t1"}})

	done := make(chan struct{})
	go func() { w.Run(ctx); close(done) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	rows, _ := store.snapshot()
	assert.Len(t, rows, 1)
}
