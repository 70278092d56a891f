// Package feedws is the live-feed WebSocket client: connects to the
// venue's real-time data service, subscribes to the activity/trades topic,
// and delivers every parsed trade to one callback with automatic
// reconnection, heartbeat and staleness detection.
package feedws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	reconnectBaseDelay = 5 * time.Second
	maxReconnectDelay  = 60 * time.Second
	heartbeatInterval  = 30 * time.Second
	pingTimeout        = 10 * time.Second
	staleThreshold     = 120 * time.Second
	staleCheckInterval = 30 * time.Second
	connectTimeout     = 30 * time.Second

	// closeCodeStale is the application close code used by the staleness
	// monitor to force a reconnect (S5).
	closeCodeStale = 4000
)

// Subscription describes the topic/filters frame sent right after connect.
type Subscription struct {
	Topic   string
	Type    string
	Filters map[string]string
}

// Client is a reconnecting WebSocket consumer of the venue's live trade
// feed.
type Client struct {
	url          string
	subscription Subscription
	logger       *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	running   atomic.Bool
	stopCh    chan struct{}
	closeOnce sync.Once

	reconnectCount atomic.Int64
	messageCount   atomic.Int64
	tradeCount     atomic.Int64
	errorCount     atomic.Int64
	lastMessageAt  atomic.Int64 // unix nano
	connectedAt    atomic.Int64 // unix nano, 0 if disconnected
}

// New builds a feed client for url, subscribing to sub once connected.
func New(url string, sub Subscription, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:          url,
		subscription: sub,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// TradeHandler is invoked once per parsed trade message (a flattened
// singleton or array payload).
type TradeHandler func(ctx context.Context, raw map[string]any)

// Run connects and reconnects with exponential backoff until ctx is done
// or Stop is called.
func (c *Client) Run(ctx context.Context, onTrade TradeHandler) error {
	if !c.running.CompareAndSwap(false, true) {
		return fmt.Errorf("feedws.Run: already running")
	}
	defer c.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		err := c.connectAndRead(ctx, onTrade)
		if err != nil {
			c.logger.Warn("feed disconnected", "err", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		n := c.reconnectCount.Add(1)
		delay := backoffDelay(n)
		c.logger.Info("reconnecting", "attempt", n, "delay", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		}
	}
}

// backoffDelay implements delay = min(base * 2^min(n-1,4), cap).
func backoffDelay(n int64) time.Duration {
	exp := n - 1
	if exp > 4 {
		exp = 4
	}
	delay := time.Duration(float64(reconnectBaseDelay) * math.Pow(2, float64(exp)))
	if delay > maxReconnectDelay {
		delay = maxReconnectDelay
	}
	return delay
}

func (c *Client) connectAndRead(ctx context.Context, onTrade TradeHandler) error {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.url, nil)
	if err != nil {
		return fmt.Errorf("feedws: dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	c.reconnectCount.Store(0)
	c.connectedAt.Store(time.Now().UnixNano())
	c.lastMessageAt.Store(time.Now().UnixNano())

	defer func() {
		conn.Close()
		c.connMu.Lock()
		c.conn = nil
		c.connMu.Unlock()
		c.connectedAt.Store(0)
	}()

	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("feedws: subscribe: %w", err)
	}
	c.logger.Info("connected and subscribed", "url", c.url)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.pingLoop(runCtx, conn)
	}()
	go func() {
		defer wg.Done()
		c.staleMonitor(runCtx, conn)
	}()

	err = c.readLoop(runCtx, conn, onTrade)
	cancelRun()
	wg.Wait()
	return err
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	msg := map[string]any{
		"action": "subscribe",
		"subscriptions": []map[string]any{
			{
				"topic":   c.subscription.Topic,
				"type":    c.subscription.Type,
				"filters": c.subscription.Filters,
			},
		},
	}
	return conn.WriteJSON(msg)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingTimeout))
			c.connMu.Unlock()
		}
	}
}

// staleMonitor wakes every staleCheckInterval and force-closes the socket
// if no inbound message has arrived within staleThreshold.
func (c *Client) staleMonitor(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last := time.Unix(0, c.lastMessageAt.Load())
			if time.Since(last) > staleThreshold {
				c.logger.Warn("feed stale, forcing reconnect", "last_message", last)
				deadline := time.Now().Add(5 * time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(closeCodeStale, "stale"), deadline)
				conn.Close()
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, onTrade TradeHandler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feedws: read: %w", err)
		}

		c.lastMessageAt.Store(time.Now().UnixNano())
		c.messageCount.Add(1)

		var msg map[string]any
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("invalid JSON from feed", "err", err)
			c.errorCount.Add(1)
			continue
		}

		c.dispatch(ctx, msg, onTrade)
	}
}

// dispatch peeks the message type and routes trade payloads — which may be
// a single object or an array — to onTrade, one call per trade.
func (c *Client) dispatch(ctx context.Context, msg map[string]any, onTrade TradeHandler) {
	msgType, _ := msg["type"].(string)
	if msgType == "" {
		msgType, _ = msg["topic"].(string)
	}

	switch msgType {
	case "trade", "trades", "activity":
		payload, ok := msg["payload"]
		if !ok {
			payload = msg
		}
		switch v := payload.(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					c.tradeCount.Add(1)
					onTrade(ctx, m)
				}
			}
		case map[string]any:
			c.tradeCount.Add(1)
			onTrade(ctx, v)
		}
	case "subscribed":
		c.logger.Debug("subscription confirmed")
	case "error":
		c.logger.Error("feed error message", "msg", msg)
		c.errorCount.Add(1)
	case "pong":
	default:
		c.logger.Debug("unknown message type", "type", msgType)
	}
}

// Stop sets the running flag to false, closes the socket, and causes Run
// to return.
func (c *Client) Stop() {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	c.connMu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.connMu.Unlock()
}

// Stats returns current observability counters.
func (c *Client) Stats() Stats {
	connectedAt := c.connectedAt.Load()
	var uptime float64
	connected := connectedAt != 0
	if connected {
		uptime = time.Since(time.Unix(0, connectedAt)).Seconds()
	}
	return Stats{
		Connected:      connected,
		MessageCount:   c.messageCount.Load(),
		TradeCount:     c.tradeCount.Load(),
		ErrorCount:     c.errorCount.Load(),
		ReconnectCount: int(c.reconnectCount.Load()),
		UptimeSeconds:  uptime,
	}
}

// Stats mirrors the RTDS client's observability surface.
type Stats struct {
	Connected      bool
	MessageCount   int64
	TradeCount     int64
	ErrorCount     int64
	ReconnectCount int
	UptimeSeconds  float64
}

// ParseTimestamp implements the venue's timestamp heuristic: numbers above 1e12 are
// milliseconds, otherwise seconds; strings are parsed as RFC3339/ISO-8601.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		return fromEpoch(t), true
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f), true
	case string:
		s := strings.Replace(t, "Z", "+00:00", 1)
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts.UTC(), true
		}
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return fromEpoch(f), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func fromEpoch(ts float64) time.Time {
	if ts > 1e12 {
		return time.UnixMilli(int64(ts)).UTC()
	}
	return time.Unix(int64(ts), 0).UTC()
}
