package polymarket

// execution.go — copy-trading order executor.
//
// Distinct from trading.go's TradingClient (which only ever places USDC
// maker bids for the reward-farming strategy), ExecutionClient places BUY
// and SELL orders sized in shares on behalf of the copy trader, in either
// live mode (signed and submitted to the CLOB) or paper mode (simulated
// fills against a freshly fetched order book, no wallet required).

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

// usdcDecimals is the 6-decimal base-unit scale the CLOB expects for
// maker/taker amounts; it is used for both USDC and share amounts.
const usdcDecimals = 1_000_000

// ExecutionClient implements ports.TradeExecutor.
type ExecutionClient struct {
	auth  *AuthClient
	paper bool
	pmu   sync.Mutex

	mu         sync.Mutex
	liveOrders map[string]domain.Order
	paperBook  map[string]domain.Order

	placed    int
	cancelled int
	volume    float64
}

// NewExecutionClient builds an execution client around an already-created
// AuthClient. paper selects the initial mode; SetPaperMode flips it later.
func NewExecutionClient(auth *AuthClient, paper bool) *ExecutionClient {
	return &ExecutionClient{
		auth:       auth,
		paper:      paper,
		liveOrders: make(map[string]domain.Order),
		paperBook:  make(map[string]domain.Order),
	}
}

var _ ports.TradeExecutor = (*ExecutionClient)(nil)

func (ec *ExecutionClient) isPaper() bool {
	ec.pmu.Lock()
	defer ec.pmu.Unlock()
	return ec.paper
}

// SetPaperMode implements ports.TradeExecutor.
func (ec *ExecutionClient) SetPaperMode(paper bool) {
	ec.pmu.Lock()
	ec.paper = paper
	ec.pmu.Unlock()
}

// PlaceOrder implements ports.TradeExecutor.
func (ec *ExecutionClient) PlaceOrder(ctx context.Context, tokenID string, side domain.Side, size, price float64, orderType domain.OrderType) (domain.Order, error) {
	if ec.isPaper() {
		return ec.placePaperOrder(ctx, tokenID, side, size, price)
	}
	return ec.placeLiveOrder(ctx, tokenID, side, size, price, orderType)
}

// placePaperOrder fills immediately against the live book when marketable,
// otherwise leaves the order resting — a BUY at price >= best ask fills,
// a SELL at price <= best bid fills, matching the venue's taker semantics.
func (ec *ExecutionClient) placePaperOrder(ctx context.Context, tokenID string, side domain.Side, size, price float64) (domain.Order, error) {
	books, err := ec.auth.FetchOrderBooks(ctx, []string{tokenID})
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution: paper order book lookup: %w", err)
	}
	book := books[tokenID]

	now := time.Now().UTC()
	order := domain.Order{
		OrderID:   "paper-" + uuid.NewString(),
		TokenID:   tokenID,
		Side:      side,
		Size:      size,
		Price:     price,
		Status:    domain.OrderOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}

	fillPrice, fills := 0.0, false
	switch side {
	case domain.SideBuy:
		if ask := book.BestAsk(); ask > 0 && price >= ask {
			fillPrice, fills = ask, true
		}
	case domain.SideSell:
		if bid := book.BestBid(); bid > 0 && price <= bid {
			fillPrice, fills = bid, true
		}
	}

	if fills {
		order.Status = domain.OrderFilled
		order.FilledSize = size
		order.Price = fillPrice
	}

	ec.mu.Lock()
	ec.paperBook[order.OrderID] = order
	ec.placed++
	if fills {
		ec.volume += size * fillPrice
	}
	ec.mu.Unlock()

	return order, nil
}

func (ec *ExecutionClient) placeLiveOrder(ctx context.Context, tokenID string, side domain.Side, size, price float64, orderType domain.OrderType) (domain.Order, error) {
	if err := ec.auth.EnsureCreds(ctx); err != nil {
		return domain.Order{}, fmt.Errorf("execution: creds: %w", err)
	}

	negRisk, err := ec.auth.isNegRiskCached(ctx, tokenID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution: neg-risk lookup: %w", err)
	}

	signed, err := ec.auth.buildSignedOrderShares(tokenID, string(side), price, size, negRisk)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execution: sign: %w", err)
	}

	body := clobOrderRequest{
		Order: clobOrderBody{
			Salt:          json.Number(signed.Order.Salt.String()),
			Maker:         signed.Order.Maker.Hex(),
			Signer:        signed.Order.Signer.Hex(),
			Taker:         signed.Order.Taker.Hex(),
			TokenID:       tokenID,
			MakerAmount:   signed.Order.MakerAmount.String(),
			TakerAmount:   signed.Order.TakerAmount.String(),
			Expiration:    signed.Order.Expiration.String(),
			Nonce:         signed.Order.Nonce.String(),
			FeeRateBps:    signed.Order.FeeRateBps.String(),
			Side:          string(side),
			SignatureType: int(signed.Order.SignatureType.Int64()),
			Signature:     "0x" + hex.EncodeToString(signed.Signature),
		},
		Owner:     ec.auth.creds.APIKey,
		OrderType: string(orderType),
	}

	var resp clobOrderResponse
	if err := ec.auth.doL2(ctx, "POST", "/order", body, &resp); err != nil {
		return domain.Order{}, fmt.Errorf("execution: place order: %w", err)
	}
	if !resp.Success || resp.ErrorMsg != "" {
		return domain.Order{}, fmt.Errorf("execution: clob rejected order: %s", resp.ErrorMsg)
	}

	now := time.Now().UTC()
	order := domain.Order{
		OrderID:    resp.OrderID,
		TokenID:    tokenID,
		Side:       side,
		Size:       size,
		Price:      price,
		Status:     mapCLOBStatus(resp.Status),
		FilledSize: parseUSDC(resp.TakingAmount),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ec.mu.Lock()
	ec.liveOrders[order.OrderID] = order
	ec.placed++
	ec.volume += size * price
	ec.mu.Unlock()

	return order, nil
}

// CancelOrder implements ports.TradeExecutor.
func (ec *ExecutionClient) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if ec.isPaper() {
		ec.mu.Lock()
		defer ec.mu.Unlock()
		o, ok := ec.paperBook[orderID]
		if !ok || o.Status.IsTerminal() {
			return false, nil
		}
		o.Status = domain.OrderCancelled
		o.UpdatedAt = time.Now().UTC()
		ec.paperBook[orderID] = o
		ec.cancelled++
		return true, nil
	}

	if err := ec.auth.EnsureCreds(ctx); err != nil {
		return false, fmt.Errorf("execution: creds: %w", err)
	}
	if err := ec.auth.doL2(ctx, "DELETE", "/order/"+orderID, nil, nil); err != nil {
		return false, fmt.Errorf("execution: cancel %s: %w", orderID, err)
	}

	ec.mu.Lock()
	if o, ok := ec.liveOrders[orderID]; ok {
		o.Status = domain.OrderCancelled
		o.UpdatedAt = time.Now().UTC()
		ec.liveOrders[orderID] = o
	}
	ec.cancelled++
	ec.mu.Unlock()
	return true, nil
}

// GetOrder implements ports.TradeExecutor.
func (ec *ExecutionClient) GetOrder(ctx context.Context, orderID string) (domain.Order, bool, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.isPaper() {
		o, ok := ec.paperBook[orderID]
		return o, ok, nil
	}
	o, ok := ec.liveOrders[orderID]
	return o, ok, nil
}

// GetOpenOrders implements ports.TradeExecutor.
func (ec *ExecutionClient) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	book := ec.liveOrders
	if ec.isPaper() {
		book = ec.paperBook
	}
	out := make([]domain.Order, 0, len(book))
	for _, o := range book {
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out, nil
}

// CancelAllOrders implements ports.TradeExecutor.
func (ec *ExecutionClient) CancelAllOrders(ctx context.Context) (int, error) {
	open, err := ec.GetOpenOrders(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, o := range open {
		if ok, err := ec.CancelOrder(ctx, o.OrderID); err == nil && ok {
			n++
		}
	}
	return n, nil
}

// BestPrices implements ports.TradeExecutor.
func (ec *ExecutionClient) BestPrices(ctx context.Context, tokenID string) (float64, float64, error) {
	books, err := ec.auth.FetchOrderBooks(ctx, []string{tokenID})
	if err != nil {
		return 0, 0, fmt.Errorf("execution: best prices: %w", err)
	}
	book := books[tokenID]
	bid := book.BestBid()
	ask := book.BestAsk()
	return bid, ask, nil
}

// Stats implements ports.TradeExecutor.
func (ec *ExecutionClient) Stats() domain.ClientStats {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	book := ec.liveOrders
	if ec.isPaper() {
		book = ec.paperBook
	}
	open := 0
	for _, o := range book {
		if !o.Status.IsTerminal() {
			open++
		}
	}

	return domain.ClientStats{
		PaperTrading:    ec.isPaper(),
		OrdersPlaced:    ec.placed,
		OrdersCancelled: ec.cancelled,
		TotalVolume:     ec.volume,
		OpenOrders:      open,
	}
}

func mapCLOBStatus(s string) domain.OrderStatus {
	switch s {
	case "matched":
		return domain.OrderFilled
	case "live":
		return domain.OrderOpen
	case "delayed":
		return domain.OrderPending
	case "unmatched":
		return domain.OrderCancelled
	default:
		return domain.OrderOpen
	}
}

// isNegRiskCached wraps IsNegRisk with a tiny in-memory cache since the
// same token is checked on every copy of the same market.
func (ac *AuthClient) isNegRiskCached(ctx context.Context, tokenID string) (bool, error) {
	ac.negRiskMu.Lock()
	if v, ok := ac.negRiskCache[tokenID]; ok {
		ac.negRiskMu.Unlock()
		return v, nil
	}
	ac.negRiskMu.Unlock()

	url := fmt.Sprintf("%s/neg-risk?token_id=%s", ac.clobBase, tokenID)
	var resp clobNegRiskResponse
	if err := ac.get(ctx, ac.clobLimiter, url, &resp); err != nil {
		return false, err
	}

	ac.negRiskMu.Lock()
	ac.negRiskCache[tokenID] = resp.NegRisk
	ac.negRiskMu.Unlock()
	return resp.NegRisk, nil
}

// buildSignedOrderShares signs an order sized in shares (size) at price
// (USDC per share), for either side — used by the copy trader. BUY gives
// USDC and receives shares; SELL gives shares and receives USDC.
func (ac *AuthClient) buildSignedOrderShares(tokenID, side string, price, size float64, negRisk bool) (*gomodel.SignedOrder, error) {
	if price <= 0 || size <= 0 {
		return nil, fmt.Errorf("execution: invalid price/size: price=%.6f size=%.6f", price, size)
	}

	shareUnits := int64(math.Round(size * usdcDecimals))
	usdcUnits := int64(math.Round(size * price * usdcDecimals))
	if shareUnits <= 0 || usdcUnits <= 0 {
		return nil, fmt.Errorf("execution: rounded amounts are zero: shares=%d usdc=%d", shareUnits, usdcUnits)
	}

	makerAmount, takerAmount := usdcUnits, shareUnits
	orderSide := gomodel.BUY
	if side == "SELL" {
		orderSide = gomodel.SELL
		makerAmount, takerAmount = shareUnits, usdcUnits
	}

	var verifyingContract gomodel.VerifyingContract
	if negRisk {
		verifyingContract = gomodel.NegRiskCTFExchange
	} else {
		verifyingContract = gomodel.CTFExchange
	}

	orderData := &gomodel.OrderData{
		Maker:         ac.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       tokenID,
		MakerAmount:   fmt.Sprintf("%d", makerAmount),
		TakerAmount:   fmt.Sprintf("%d", takerAmount),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          orderSide,
		SignatureType: gomodel.EOA,
	}

	return ac.orderBuilder.BuildSignedOrder(ac.privateKey, orderData, verifyingContract)
}
