package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"
)

// Client talks to the Polymarket Data API, which serves per-address activity
// and position summaries. All calls go through a shared rate limiter; the
// public endpoints throttle aggressively.
type Client struct {
	host       string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("data-api error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string, requestsPerSec float64, burst int) *Client {
	if host == "" {
		host = "https://data-api.polymarket.com"
	}
	host = strings.TrimRight(host, "/")
	if requestsPerSec <= 0 {
		requestsPerSec = 5
	}
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		host:       host,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSec), burst),
	}
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// GetTrades returns the address's recent trade activity, newest first as the
// API serves it. Callers own ordering and dedup.
func (c *Client) GetTrades(ctx context.Context, address string, limit int) ([]Trade, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if limit <= 0 {
		limit = 100
	}
	query := url.Values{}
	query.Set("user", address)
	query.Set("limit", strconv.Itoa(limit))
	query.Set("takerOnly", "true")
	body, err := c.doRequest(ctx, "/trades", query)
	if err != nil {
		return nil, err
	}
	return parseTrades(body)
}

// GetPositions returns the address's current on-venue share balances.
func (c *Client) GetPositions(ctx context.Context, address string) ([]Position, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	query := url.Values{}
	query.Set("user", address)
	body, err := c.doRequest(ctx, "/positions", query)
	if err != nil {
		return nil, err
	}
	var items []Position
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("failed to parse positions: %w", err)
	}
	return items, nil
}
