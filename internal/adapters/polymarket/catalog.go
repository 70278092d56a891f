package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polybot/internal/domain"
	"github.com/alejandrodnm/polybot/internal/ports"
)

const (
	defaultDataAPIBase = "https://data-api.polymarket.com"

	catalogPageSize          = 50
	catalogParallelBatchSize = 10    // fetch 10 pages at once, as the Data API pagination does
	catalogSafetyLimit       = 50000 // hard stop even if the API keeps returning pages

	// catalogRatePerMinute is enforced client-side; the limiter refills one token every
	// 60s/limit, equivalent to sleeping until the one-minute window rolls
	// over once exhausted.
	catalogRatePerMinute = 100

	marketVolumeCacheTTL = time.Hour
)

// CatalogHTTPClient implements ports.CatalogClient against Polymarket's
// Data API (positions/closed-positions/value) and Gamma API
// (public-profile, market volume), grounded on the teacher's rate-limited
// retry client (internal/adapters/polymarket/client.go) and on
// original_source/src/scrapers/data_api.py's parallel-batch paginator.
type CatalogHTTPClient struct {
	http      *http.Client
	dataBase  string
	gammaBase string
	limiter   *rate.Limiter

	volMu    sync.Mutex
	volCache map[string]cachedVolume
}

type cachedVolume struct {
	value     float64
	expiresAt time.Time
}

// NewCatalogHTTPClient builds a catalog client. Empty bases fall back to
// production URLs.
func NewCatalogHTTPClient(dataBase, gammaBase string) *CatalogHTTPClient {
	if dataBase == "" {
		dataBase = defaultDataAPIBase
	}
	if gammaBase == "" {
		gammaBase = defaultGammaBase
	}
	return &CatalogHTTPClient{
		http:      &http.Client{Timeout: 15 * time.Second},
		dataBase:  dataBase,
		gammaBase: gammaBase,
		limiter:   rate.NewLimiter(rate.Limit(float64(catalogRatePerMinute)/60.0), catalogRatePerMinute),
		volCache:  make(map[string]cachedVolume),
	}
}

var _ ports.CatalogClient = (*CatalogHTTPClient)(nil)

func (c *CatalogHTTPClient) getJSON(ctx context.Context, rawURL string, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("catalog: rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("catalog: build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("catalog: request failed after %d retries: %w", maxRetries, err)
			}
			sleepBackoff(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil // treated as empty, not an error — matches the Python original
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("catalog: status %d after %d retries", resp.StatusCode, maxRetries)
			}
			sleepBackoff(ctx, attempt)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("catalog: client error %d", resp.StatusCode)
		}

		defer resp.Body.Close()
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("catalog: decode: %w", err)
		}
		return nil
	}
	return fmt.Errorf("catalog: exhausted retries")
}

func sleepBackoff(ctx context.Context, attempt int) {
	wait := time.Duration(1<<uint(attempt)) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

// fetchAllPages paginates endpoint in parallel batches of
// catalogParallelBatchSize pages, stopping when a whole batch comes back
// empty.
func (c *CatalogHTTPClient) fetchAllPages(ctx context.Context, base, endpoint string, params url.Values) ([]map[string]any, error) {
	var all []map[string]any
	offset := 0

	for {
		type pageResult struct {
			data []map[string]any
		}
		results := make([]pageResult, catalogParallelBatchSize)

		var wg sync.WaitGroup
		for i := 0; i < catalogParallelBatchSize; i++ {
			i := i
			wg.Add(1)
			go func() {
				defer wg.Done()
				q := url.Values{}
				for k, v := range params {
					q[k] = v
				}
				q.Set("limit", strconv.Itoa(catalogPageSize))
				q.Set("offset", strconv.Itoa(offset+i*catalogPageSize))

				var page []map[string]any
				fullURL := base + "/" + endpoint + "?" + q.Encode()
				if err := c.getJSON(ctx, fullURL, &page); err == nil {
					results[i] = pageResult{data: page}
				}
			}()
		}
		wg.Wait()

		batchHasData := false
		for _, r := range results {
			if len(r.data) > 0 {
				all = append(all, r.data...)
				batchHasData = true
			}
		}
		if !batchHasData {
			break
		}

		offset += catalogParallelBatchSize * catalogPageSize
		if offset >= catalogSafetyLimit {
			break
		}
	}

	return all, nil
}

// GetPortfolioValue implements ports.CatalogClient.
func (c *CatalogHTTPClient) GetPortfolioValue(ctx context.Context, address string) (float64, error) {
	var out []map[string]any
	q := url.Values{"user": {address}}
	if err := c.getJSON(ctx, c.dataBase+"/value?"+q.Encode(), &out); err != nil {
		return 0, err
	}
	if len(out) == 0 {
		return 0, nil
	}
	v, _ := out[0]["value"].(float64)
	return v, nil
}

// GetPositions implements ports.CatalogClient.
func (c *CatalogHTTPClient) GetPositions(ctx context.Context, address string) ([]domain.Position, error) {
	raw, err := c.fetchAllPages(ctx, c.dataBase, "positions", url.Values{"user": {address}})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Position, 0, len(raw))
	for _, row := range raw {
		out = append(out, mapPosition(address, row))
	}
	return out, nil
}

// GetClosedPositions implements ports.CatalogClient.
func (c *CatalogHTTPClient) GetClosedPositions(ctx context.Context, address string) ([]domain.ClosedPosition, error) {
	raw, err := c.fetchAllPages(ctx, c.dataBase, "closed-positions", url.Values{
		"user":          {address},
		"sortBy":        {"TIMESTAMP"},
		"sortDirection": {"DESC"},
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.ClosedPosition, 0, len(raw))
	for _, row := range raw {
		out = append(out, mapClosedPosition(address, row))
	}
	return out, nil
}

// GetProfile implements ports.CatalogClient.
func (c *CatalogHTTPClient) GetProfile(ctx context.Context, address string) (ports.Profile, error) {
	var out map[string]any
	q := url.Values{"address": {address}}
	if err := c.getJSON(ctx, c.gammaBase+"/public-profile?"+q.Encode(), &out); err != nil {
		return ports.Profile{}, nil // missing data is treated as empty, not an error
	}
	p := ports.Profile{}
	if u, ok := out["username"].(string); ok {
		p.Username = u
	}
	if created, ok := out["account_created_at"].(float64); ok {
		ts := int64(created)
		p.AccountCreated = &ts
	}
	return p, nil
}

// GetMarketVolume24h implements ports.CatalogClient, with a 1h TTL cache.
func (c *CatalogHTTPClient) GetMarketVolume24h(ctx context.Context, conditionID string) (float64, error) {
	c.volMu.Lock()
	if cached, ok := c.volCache[conditionID]; ok && time.Now().Before(cached.expiresAt) {
		c.volMu.Unlock()
		return cached.value, nil
	}
	c.volMu.Unlock()

	var out []map[string]any
	q := url.Values{"condition_id": {conditionID}, "limit": {"1"}}
	if err := c.getJSON(ctx, c.gammaBase+"/markets?"+q.Encode(), &out); err != nil {
		return 0, err
	}
	var vol float64
	if len(out) > 0 {
		vol, _ = out[0]["volume24hr"].(float64)
	}

	c.volMu.Lock()
	c.volCache[conditionID] = cachedVolume{value: vol, expiresAt: time.Now().Add(marketVolumeCacheTTL)}
	c.volMu.Unlock()

	return vol, nil
}

func mapPosition(address string, row map[string]any) domain.Position {
	outcomeIndex, _ := row["outcomeIndex"].(float64)
	return domain.Position{
		Address:      address,
		ConditionID:  str(row, "conditionId"),
		OutcomeIndex: int(outcomeIndex),
		Outcome:      str(row, "outcome"),
		Size:         num(row, "size"),
		AvgPrice:     num(row, "avgPrice"),
		InitialValue: num(row, "initialValue"),
		CurrentValue: num(row, "currentValue"),
		CashPnL:      num(row, "cashPnl"),
		Slug:         str(row, "slug"),
		Category:     str(row, "category"),
	}
}

func mapClosedPosition(address string, row map[string]any) domain.ClosedPosition {
	resolvedAt := parseFlexibleTime(row["resolvedAt"])
	return domain.ClosedPosition{
		Address:     address,
		ConditionID: str(row, "conditionId"),
		Outcome:     str(row, "outcome"),
		Slug:        str(row, "slug"),
		Category:    str(row, "category"),
		TotalBought: num(row, "totalBought"),
		AvgPrice:    num(row, "avgPrice"),
		FinalPrice:  num(row, "curPrice"),
		RealizedPnL: num(row, "realizedPnl"),
		IsWin:       num(row, "realizedPnl") > 0,
		ResolvedAt:  resolvedAt,
	}
}

func str(row map[string]any, key string) string {
	s, _ := row[key].(string)
	return s
}

func num(row map[string]any, key string) float64 {
	switch v := row[key].(type) {
	case float64:
		return v
	default:
		return 0
	}
}

// parseFlexibleTime handles both numeric epoch (ms if > 4102444800 i.e.
// year 2100 in seconds, else seconds) and ISO-8601 strings, matching
// original_source/src/realtime/wallet_discovery.py's period filter.
func parseFlexibleTime(v any) time.Time {
	switch t := v.(type) {
	case float64:
		if t > 4102444800 {
			return time.UnixMilli(int64(t)).UTC()
		}
		return time.Unix(int64(t), 0).UTC()
	case string:
		if ts, err := time.Parse(time.RFC3339, t); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
