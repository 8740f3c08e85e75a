package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultInfoURL = "https://api.hyperliquid.xyz/info"
	DefaultWsURL   = "wss://api.hyperliquid.xyz/ws"

	defaultRequestTimeout = 5 * time.Second
	defaultRequestsPerSec = 10
	defaultBurst          = 5
)

// Client talks to the Hyperliquid info endpoint.
type Client struct {
	infoURL    string
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithInfoURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.infoURL = url
		}
	}
}

// WithRequestTimeout bounds a single info request, including body read.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRateLimit paces outbound requests. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		infoURL:    DefaultInfoURL,
		httpClient: &http.Client{},
		timeout:    defaultRequestTimeout,
		limiter:    rate.NewLimiter(defaultRequestsPerSec, defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MetaAndAssetCtxs fetches the full market universe and per-market contexts
// in one request.
func (c *Client) MetaAndAssetCtxs(ctx context.Context) (*MetaAndAssetCtxsResponse, error) {
	var out MetaAndAssetCtxsResponse
	if err := c.post(ctx, InfoRequest{Type: "metaAndAssetCtxs"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) post(ctx context.Context, body InfoRequest, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("hyperliquid: rate limit wait: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hyperliquid: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.infoURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("hyperliquid: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hyperliquid: %s request: %w", body.Type, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hyperliquid: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("hyperliquid: http status %d: %s", resp.StatusCode, truncate(raw, 256))
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("hyperliquid: decode %s: %w", body.Type, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
