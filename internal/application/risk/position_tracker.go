package risk

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// PositionTracker maintains the copy trader's open positions, keyed by
// token_id, persisting every mutation through ports.PositionStore.
type PositionTracker struct {
	mu        sync.Mutex
	positions map[string]*domain.TrackedPosition
	store     ports.PositionStore
}

// NewPositionTracker builds a tracker backed by store. Call Load at
// startup to seed it from persisted rows.
func NewPositionTracker(store ports.PositionStore) *PositionTracker {
	return &PositionTracker{
		positions: make(map[string]*domain.TrackedPosition),
		store:     store,
	}
}

// Load seeds the tracker from every persisted position.
func (t *PositionTracker) Load(ctx context.Context) error {
	loaded, err := t.store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("risk.PositionTracker.Load: %w", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range loaded {
		p := loaded[i]
		t.positions[p.TokenID] = &p
	}
	return nil
}

// ApplyFill folds a new fill into the tracked position for tokenID. A
// same-side fill re-averages price and grows size; an opposite-side fill
// partially closes (reduces size) or fully closes (deletes the row) the
// position.
func (t *PositionTracker) ApplyFill(ctx context.Context, tokenID, marketID, conditionID string, side domain.Side, size, price decimal.Decimal, copiedFrom string, now time.Time) error {
	t.mu.Lock()
	existing, ok := t.positions[tokenID]
	t.mu.Unlock()

	if !ok {
		p := &domain.TrackedPosition{
			ID:           tokenID,
			MarketID:     marketID,
			ConditionID:  conditionID,
			TokenID:      tokenID,
			Side:         side,
			Size:         size,
			AvgPrice:     price,
			CurrentPrice: price,
			CopiedFrom:   copiedFrom,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		t.mu.Lock()
		t.positions[tokenID] = p
		t.mu.Unlock()
		return t.persist(ctx, p)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if existing.Side == side {
		totalCost := existing.AvgPrice.Mul(existing.Size).Add(price.Mul(size))
		newSize := existing.Size.Add(size)
		existing.AvgPrice = totalCost.Div(newSize)
		existing.Size = newSize
		existing.UpdatedAt = now
		existing.UpdatePrice(price)
		return t.persist(ctx, existing)
	}

	// Opposite side: partial or full close.
	if size.GreaterThanOrEqual(existing.Size) {
		delete(t.positions, tokenID)
		if err := t.store.DeletePosition(ctx, tokenID); err != nil {
			return fmt.Errorf("risk.PositionTracker.ApplyFill: delete %s: %w", tokenID, err)
		}
		return nil
	}

	existing.Size = existing.Size.Sub(size)
	existing.UpdatedAt = now
	existing.UpdatePrice(existing.CurrentPrice)
	return t.persist(ctx, existing)
}

func (t *PositionTracker) persist(ctx context.Context, p *domain.TrackedPosition) error {
	if err := t.store.SavePosition(ctx, *p); err != nil {
		return fmt.Errorf("risk.PositionTracker.persist: %s: %w", p.TokenID, err)
	}
	return nil
}

// UpdatePrices batch-updates current price and unrealised PnL for every
// tracked position with a fresh quote in prices, persisting each change.
func (t *PositionTracker) UpdatePrices(ctx context.Context, prices map[string]decimal.Decimal) {
	now := time.Now().UTC()

	t.mu.Lock()
	var toPersist []domain.TrackedPosition
	for tokenID, p := range t.positions {
		price, ok := prices[tokenID]
		if !ok {
			continue
		}
		p.UpdatePrice(price)
		p.UpdatedAt = now
		toPersist = append(toPersist, *p)
	}
	t.mu.Unlock()

	for _, p := range toPersist {
		if err := t.store.SavePosition(ctx, p); err != nil {
			slog.Warn("risk: position price update persist failed", "token_id", p.TokenID, "err", err)
		}
	}
}

// Positions returns a snapshot of every tracked position.
func (t *PositionTracker) Positions() []domain.TrackedPosition {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.TrackedPosition, 0, len(t.positions))
	for _, p := range t.positions {
		out = append(out, *p)
	}
	return out
}

// Get returns the tracked position for tokenID, if any.
func (t *PositionTracker) Get(tokenID string) (domain.TrackedPosition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.positions[tokenID]
	if !ok {
		return domain.TrackedPosition{}, false
	}
	return *p, true
}
