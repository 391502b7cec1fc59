// Package hook posts freshly built attestations to an external
// validation endpoint. Submissions are best effort: the caller records
// the response when one arrives and proceeds without it otherwise.
package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/crypto"
	"github.com/emilyjiji/simple-price-oracle-avs-example/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client submits attestations to one webhook endpoint.
type Client struct {
	endpoint   string
	path       string
	auth       *crypto.RequestAuth // nil disables request signing
	httpClient *http.Client
}

var _ domain.ValidationHook = (*Client)(nil)

// NewClient creates a webhook client for endpoint. A nil auth sends
// unsigned requests.
func NewClient(endpoint string, auth *crypto.RequestAuth, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("hook: invalid endpoint: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("hook: endpoint %q must be an absolute URL", endpoint)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		path:       u.Path,
		auth:       auth,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Submit implements domain.ValidationHook. It POSTs the attestation as
// JSON and returns the endpoint's JSON response body, or nil when the
// endpoint replies with an empty body.
func (c *Client) Submit(ctx context.Context, att domain.Attestation) (json.RawMessage, error) {
	body, err := json.Marshal(att)
	if err != nil {
		return nil, fmt.Errorf("hook: encode attestation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("hook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.auth != nil {
		for k, v := range c.auth.Headers(http.MethodPost, c.path, string(body)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hook: submit attestation: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hook: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("hook: submit attestation: HTTP %d: %s", resp.StatusCode, respBody)
	}
	if len(respBody) == 0 {
		return nil, nil
	}
	if !json.Valid(respBody) {
		return nil, fmt.Errorf("hook: response is not valid JSON")
	}
	return json.RawMessage(respBody), nil
}
