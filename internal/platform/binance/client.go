// Package binance implements the primary price source against the
// Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

const defaultBaseURL = "https://api.binance.com"

// Client is a minimal Binance spot REST client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client. baseURL may be empty for the public
// endpoint; timeout bounds every request.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// tickerResponse is the /api/v3/ticker/price envelope. The price is a
// decimal string; parsing it as such avoids binary float noise before the
// value enters the validation path.
type tickerResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// GetPrice fetches the latest spot price for a symbol such as "ETHUSDT".
func (c *Client) GetPrice(ctx context.Context, symbol string) (domain.PriceQuote, error) {
	endpoint := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", c.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: fetch ticker %s: %w", symbol, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.PriceQuote{}, fmt.Errorf("binance: ticker %s: HTTP %d: %s", symbol, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var ticker tickerResponse
	if err := json.Unmarshal(body, &ticker); err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: decode ticker: %w", err)
	}

	price, err := decimal.NewFromString(ticker.Price)
	if err != nil {
		return domain.PriceQuote{}, fmt.Errorf("binance: parse price %q: %w", ticker.Price, err)
	}
	value := price.InexactFloat64()
	if value <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("binance: non-positive price %q for %s", ticker.Price, symbol)
	}

	return domain.PriceQuote{
		Value:      value,
		Source:     domain.SourcePrimary,
		ObservedAt: time.Now().UTC(),
	}, nil
}

// TickerSource binds a Client to one symbol.
type TickerSource struct {
	client *Client
	symbol string
}

var _ domain.PriceSource = (*TickerSource)(nil)

// NewTickerSource returns a PriceSource that quotes the given symbol.
func NewTickerSource(client *Client, symbol string) *TickerSource {
	return &TickerSource{client: client, symbol: symbol}
}

// Quote implements domain.PriceSource.
func (s *TickerSource) Quote(ctx context.Context) (domain.PriceQuote, error) {
	return s.client.GetPrice(ctx, s.symbol)
}
