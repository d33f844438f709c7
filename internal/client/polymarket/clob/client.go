package clob

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type Client struct {
	host       string
	httpClient *http.Client
	auth       Auth
}

type Auth struct {
	APIKey       string
	APISecret    string
	Passphrase   string
	Address      string
	SignRequests bool
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("clob error (%d): %s", e.Status, e.Body)
}

func NewClient(httpClient *http.Client, host string, auth Auth) *Client {
	if host == "" {
		host = "https://clob.polymarket.com"
	}
	host = strings.TrimRight(host, "/")
	return &Client{
		host:       host,
		httpClient: httpClient,
		auth:       auth,
	}
}

// MarketOrderRequest places a market order. Amount semantics follow the
// venue: dollar notional for buys, share count for sells.
type MarketOrderRequest struct {
	TokenID string  `json:"token_id"`
	Side    string  `json:"side"`
	Amount  float64 `json:"amount"`
}

type OrderResult struct {
	Success      bool
	OrderID      string
	Status       string
	FilledShares float64
	AvgPrice     float64
	ErrorMsg     string
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (*OrderResult, error) {
	if strings.TrimSpace(req.TokenID) == "" {
		return nil, fmt.Errorf("token_id is required")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	body, err := c.doJSON(ctx, http.MethodPost, "/order", req)
	if err != nil {
		return nil, err
	}
	return parseOrderResult(body, req.Side)
}

// GetShareBalance asks the venue how many shares of tokenID the account
// holds right now.
func (c *Client) GetShareBalance(ctx context.Context, tokenID string) (float64, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return 0, fmt.Errorf("token_id is required")
	}
	body, err := c.doJSON(ctx, http.MethodGet, "/balance?token_id="+tokenID, nil)
	if err != nil {
		return 0, err
	}
	var root map[string]any
	if err := json.Unmarshal(body, &root); err != nil {
		return 0, err
	}
	return firstFloat(root, "balance", "size", "shares"), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("client is nil")
	}
	var body io.Reader
	bodyRaw := []byte{}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		bodyRaw = raw
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.host+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if v := strings.TrimSpace(c.auth.APIKey); v != "" {
		req.Header.Set("X-API-Key", v)
	}
	if v := strings.TrimSpace(c.auth.Passphrase); v != "" {
		req.Header.Set("X-Passphrase", v)
	}
	if v := strings.TrimSpace(c.auth.Address); v != "" {
		req.Header.Set("X-Address", v)
	}
	if c.auth.SignRequests && strings.TrimSpace(c.auth.APISecret) != "" {
		ts := strconv.FormatInt(time.Now().UTC().Unix(), 10)
		payloadToSign := ts + "\n" + strings.ToUpper(method) + "\n" + path + "\n" + string(bodyRaw)
		mac := hmac.New(sha256.New, []byte(c.auth.APISecret))
		_, _ = mac.Write([]byte(payloadToSign))
		req.Header.Set("X-Timestamp", ts)
		req.Header.Set("X-Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

func parseOrderResult(raw []byte, side string) (*OrderResult, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty order response")
	}
	var root map[string]any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	// Common envelopes: {data:{...}} or {order:{...}} or flat.
	if data, ok := root["data"].(map[string]any); ok {
		root = data
	}
	if order, ok := root["order"].(map[string]any); ok {
		root = order
	}
	out := &OrderResult{}
	out.OrderID = firstString(root, "orderID", "order_id", "id")
	out.Status = strings.ToLower(strings.TrimSpace(firstString(root, "status", "state")))
	out.ErrorMsg = firstString(root, "errorMsg", "error", "message", "failure_reason")
	// makingAmount is the asset given, takingAmount the asset received.
	// A buy gives USDC and receives shares, so filled shares live in
	// takingAmount; a sell is the reverse.
	making := firstFloat(root, "makingAmount", "making_amount")
	taking := firstFloat(root, "takingAmount", "taking_amount")
	buy := strings.EqualFold(strings.TrimSpace(side), "BUY")
	if buy {
		out.FilledShares = taking
	} else {
		out.FilledShares = making
	}
	if out.FilledShares == 0 {
		out.FilledShares = firstFloat(root, "filled_size", "size_matched")
	}
	out.AvgPrice = firstFloat(root, "avg_price", "average_price", "price")
	if out.AvgPrice == 0 && making > 0 && taking > 0 {
		if buy {
			out.AvgPrice = making / taking
		} else {
			out.AvgPrice = taking / making
		}
	}
	if v, ok := root["success"].(bool); ok {
		out.Success = v
	} else {
		out.Success = out.OrderID != "" && out.ErrorMsg == ""
	}
	return out, nil
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			s := strings.TrimSpace(fmt.Sprintf("%v", v))
			if s != "" && s != "<nil>" {
				return s
			}
		}
	}
	return ""
}

func firstFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		s := strings.TrimSpace(fmt.Sprintf("%v", v))
		if s == "" || s == "<nil>" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return f
		}
	}
	return 0
}

// IsInsufficientBalance reports whether an order rejection means the account
// itself cannot fund trades anymore. The session treats this as fatal and
// stops instead of failing every subsequent order the same way.
func IsInsufficientBalance(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not enough balance") ||
		strings.Contains(msg, "insufficient balance") ||
		strings.Contains(msg, "insufficient allowance") ||
		strings.Contains(msg, "not enough allowance")
}

// IsRateLimited reports whether an error is the venue throttling us; the
// trade stays unrecorded and the next poll cycle retries it.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests
	}
	return false
}
