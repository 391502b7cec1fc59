// Package feed streams live prices over WebSocket so the scanner loop
// does not pay a REST round-trip per position.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed between inbound messages before the
	// connection counts as dead.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less
	// than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultReconnectDelay is the base delay before reconnecting.
	defaultReconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// defaultStreamURL is the public Binance combined-stream endpoint.
const defaultStreamURL = "wss://stream.binance.com:9443/ws"

// miniTickerMessage is the subset of the miniTicker stream payload the
// feed consumes.
type miniTickerMessage struct {
	EventTime  int64  `json:"E"` // milliseconds
	Symbol     string `json:"s"`
	ClosePrice string `json:"c"`
}

// BinanceWSFeed subscribes to one symbol's miniTicker stream and keeps
// the latest close price in memory. It implements domain.PriceSource, so
// the scanner reads prices without a REST call; Quote rejects the cached
// value once it ages past maxAge.
type BinanceWSFeed struct {
	streamURL      string
	symbol         string
	maxAge         time.Duration
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu         sync.RWMutex
	lastPrice  float64
	observedAt time.Time

	closeOnce sync.Once
	done      chan struct{}
}

var _ domain.PriceSource = (*BinanceWSFeed)(nil)

// NewBinanceWSFeed creates a feed for the given symbol. An empty baseURL
// selects the public Binance endpoint.
func NewBinanceWSFeed(baseURL, symbol string, maxAge time.Duration, logger *slog.Logger) *BinanceWSFeed {
	if baseURL == "" {
		baseURL = defaultStreamURL
	}
	return &BinanceWSFeed{
		streamURL:      strings.TrimRight(baseURL, "/") + "/" + strings.ToLower(symbol) + "@miniTicker",
		symbol:         symbol,
		maxAge:         maxAge,
		reconnectDelay: defaultReconnectDelay,
		logger:         logger.With(slog.String("component", "binance_ws_feed")),
		done:           make(chan struct{}),
	}
}

// Run connects and consumes ticker messages until ctx is cancelled or
// Close is called, reconnecting with exponential backoff on disconnect.
func (f *BinanceWSFeed) Run(ctx context.Context) error {
	delay := f.reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that held for a while earns a fresh backoff.
		if time.Since(start) > time.Minute {
			delay = f.reconnectDelay
		}

		f.logger.Warn("ticker stream disconnected, reconnecting",
			slog.String("symbol", f.symbol),
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *BinanceWSFeed) runConnection(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.streamURL, nil)
	if err != nil {
		return fmt.Errorf("feed: connect %s: %w", f.streamURL, err)
	}

	connDone := make(chan struct{})
	defer close(connDone)
	defer conn.Close()

	// Unblock the read loop when the caller shuts down.
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-f.done:
			conn.Close()
		case <-connDone:
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// Binance pings from the server side and expects a pong echo.
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go f.pingLoop(conn, connDone)

	f.logger.Info("ticker stream connected", slog.String("symbol", f.symbol))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-f.done:
				return nil
			default:
			}
			return fmt.Errorf("feed: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		f.handleMessage(raw)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (f *BinanceWSFeed) pingLoop(conn *websocket.Conn, connDone chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-connDone:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *BinanceWSFeed) handleMessage(raw []byte) {
	var msg miniTickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Silently drop unparseable messages.
		return
	}
	if msg.ClosePrice == "" {
		return
	}

	price, err := decimal.NewFromString(msg.ClosePrice)
	if err != nil || price.Sign() <= 0 {
		return
	}

	observed := time.Now().UTC()
	if msg.EventTime > 0 {
		observed = time.UnixMilli(msg.EventTime).UTC()
	}

	f.mu.Lock()
	f.lastPrice = price.InexactFloat64()
	f.observedAt = observed
	f.mu.Unlock()
}

// Quote implements domain.PriceSource from the in-memory ticker state. It
// returns domain.ErrStaleQuote before the first message arrives and once
// the cached price ages past maxAge.
func (f *BinanceWSFeed) Quote(_ context.Context) (domain.PriceQuote, error) {
	f.mu.RLock()
	price := f.lastPrice
	observed := f.observedAt
	f.mu.RUnlock()

	if observed.IsZero() {
		return domain.PriceQuote{}, fmt.Errorf("feed: no ticker for %s yet: %w", f.symbol, domain.ErrStaleQuote)
	}
	if f.maxAge > 0 {
		if age := time.Since(observed); age > f.maxAge {
			return domain.PriceQuote{}, fmt.Errorf("feed: ticker for %s is %s old: %w", f.symbol, age.Round(time.Second), domain.ErrStaleQuote)
		}
	}

	return domain.PriceQuote{
		Value:      price,
		Source:     domain.SourcePrimary,
		ObservedAt: observed,
	}, nil
}

// Close stops the feed.
func (f *BinanceWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
