package clob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const DefaultMarketWSSURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"

type marketSubscribeRequest struct {
	Type      string   `json:"type"`
	AssetsIDs []string `json:"assets_ids,omitempty"`
}

type marketSubscriptionUpdate struct {
	AssetsIDs []string `json:"assets_ids"`
	Operation string   `json:"operation"`
}

// StreamEnvelope is the common header on every market channel message.
type StreamEnvelope struct {
	EventType string `json:"event_type"`
	AssetID   string `json:"asset_id"`
	Market    string `json:"market"`
	Timestamp string `json:"timestamp"`
}

// TokenIDProvider supplies the token set a stream should watch. It is
// re-evaluated periodically so newly entered markets get picked up.
type TokenIDProvider func(context.Context) ([]string, error)

// WSClient is a thin wrapper over one market channel connection.
type WSClient struct {
	url  string
	conn *websocket.Conn
}

func NewWSClient(url string) *WSClient {
	if strings.TrimSpace(url) == "" {
		url = DefaultMarketWSSURL
	}
	return &WSClient{url: url}
}

func (c *WSClient) Connect(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("ws client is nil")
	}
	conn, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return err
	}
	// Book snapshots can be large; raise read limit above the default.
	conn.SetReadLimit(2 << 20)
	c.conn = conn
	return nil
}

func (c *WSClient) Close(status websocket.StatusCode, reason string) error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close(status, reason)
}

func (c *WSClient) Subscribe(ctx context.Context, tokenIDs []string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	payload, err := json.Marshal(marketSubscribeRequest{Type: "market", AssetsIDs: tokenIDs})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *WSClient) UpdateSubscription(ctx context.Context, tokenIDs []string, operation string) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	op := strings.ToLower(strings.TrimSpace(operation))
	if op != "subscribe" && op != "unsubscribe" {
		return fmt.Errorf("invalid operation: %s", operation)
	}
	payload, err := json.Marshal(marketSubscriptionUpdate{AssetsIDs: tokenIDs, Operation: op})
	if err != nil {
		return err
	}
	return c.conn.Write(ctx, websocket.MessageText, payload)
}

func (c *WSClient) Read(ctx context.Context) (StreamEnvelope, []byte, error) {
	if c == nil || c.conn == nil {
		return StreamEnvelope{}, nil, fmt.Errorf("ws not connected")
	}
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		return StreamEnvelope{}, nil, err
	}
	var env StreamEnvelope
	_ = json.Unmarshal(data, &env)
	return env, data, nil
}

func (c *WSClient) respondPong(ctx context.Context) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("ws not connected")
	}
	return c.conn.Write(ctx, websocket.MessageText, []byte(`{"event_type":"pong"}`))
}

type ActivityStreamOptions struct {
	URL               string
	TokenIDProvider   TokenIDProvider
	RefreshInterval   time.Duration
	HeartbeatInterval time.Duration
	PingTimeout       time.Duration
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	Logger            *zap.Logger
}

// ActivityStream keeps a market channel subscription alive across
// reconnects for the tokens the session holds. It exists to surface
// trading activity faster than the poll interval; missing events is
// harmless because the poller remains the source of truth.
type ActivityStream struct {
	opts      ActivityStreamOptions
	seenFirst bool
}

func NewActivityStream(opts ActivityStreamOptions) *ActivityStream {
	if opts.URL == "" {
		opts.URL = DefaultMarketWSSURL
	}
	if opts.HeartbeatInterval == 0 {
		opts.HeartbeatInterval = 20 * time.Second
	}
	if opts.PingTimeout == 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.BackoffMin == 0 {
		opts.BackoffMin = 1 * time.Second
	}
	if opts.BackoffMax == 0 {
		opts.BackoffMax = 30 * time.Second
	}
	if opts.RefreshInterval == 0 {
		opts.RefreshInterval = 30 * time.Second
	}
	return &ActivityStream{opts: opts}
}

// Run blocks until ctx is done, reconnecting with jittered backoff.
func (s *ActivityStream) Run(ctx context.Context, onMessage func(StreamEnvelope, []byte)) error {
	if s == nil {
		return fmt.Errorf("stream is nil")
	}
	backoff := s.opts.BackoffMin
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tokenIDs, err := s.currentTokens(ctx)
		if err != nil || len(tokenIDs) == 0 {
			if err != nil && s.opts.Logger != nil {
				s.opts.Logger.Warn("activity stream token lookup failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		client := NewWSClient(s.opts.URL)
		if err := client.Connect(ctx); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("activity stream connect failed", zap.Error(err))
			}
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if err := client.Subscribe(ctx, tokenIDs); err != nil {
			if s.opts.Logger != nil {
				s.opts.Logger.Warn("activity stream subscribe failed", zap.Error(err))
			}
			_ = client.Close(websocket.StatusInternalError, "subscribe failed")
			if err := sleepWithJitter(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, s.opts.BackoffMax)
			continue
		}
		if s.opts.Logger != nil {
			s.opts.Logger.Info("activity stream subscribed", zap.Int("tokens", len(tokenIDs)))
		}
		backoff = s.opts.BackoffMin

		err = s.consume(ctx, client, onMessage, setFromSlice(tokenIDs))
		_ = client.Close(websocket.StatusNormalClosure, "reconnect")
		if err == nil || errors.Is(err, context.Canceled) {
			return err
		}
		if err := sleepWithJitter(ctx, backoff); err != nil {
			return err
		}
		backoff = nextBackoff(backoff, s.opts.BackoffMax)
	}
}

func (s *ActivityStream) currentTokens(ctx context.Context) ([]string, error) {
	if s.opts.TokenIDProvider == nil {
		return nil, nil
	}
	return s.opts.TokenIDProvider(ctx)
}

func (s *ActivityStream) consume(ctx context.Context, client *WSClient, onMessage func(StreamEnvelope, []byte), current map[string]struct{}) error {
	if client == nil {
		return fmt.Errorf("ws client is nil")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	heartbeatErr := make(chan error, 1)
	go func() {
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				heartbeatErr <- loopCtx.Err()
				return
			case <-ticker.C:
				pingCtx, cancelPing := context.WithTimeout(loopCtx, s.opts.PingTimeout)
				err := client.conn.Ping(pingCtx)
				cancelPing()
				if err != nil {
					heartbeatErr <- err
					return
				}
			}
		}
	}()

	if s.opts.TokenIDProvider != nil && s.opts.RefreshInterval > 0 {
		go func() {
			ticker := time.NewTicker(s.opts.RefreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-loopCtx.Done():
					return
				case <-ticker.C:
					ids, err := s.opts.TokenIDProvider(loopCtx)
					if err != nil {
						continue
					}
					next := setFromSlice(ids)
					added, removed := diffSets(current, next)
					if len(added) > 0 {
						_ = client.UpdateSubscription(loopCtx, added, "subscribe")
					}
					if len(removed) > 0 {
						_ = client.UpdateSubscription(loopCtx, removed, "unsubscribe")
					}
					current = next
				}
			}
		}()
	}

	for {
		select {
		case err := <-heartbeatErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		default:
		}
		env, raw, err := client.Read(ctx)
		if err != nil {
			if s.opts.Logger != nil && !errors.Is(err, context.Canceled) {
				s.opts.Logger.Warn("activity stream read failed", zap.Error(err))
			}
			return err
		}
		if isPingPayload(env, raw) {
			_ = client.respondPong(ctx)
			continue
		}
		if s.opts.Logger != nil && !s.seenFirst {
			s.seenFirst = true
			s.opts.Logger.Info("activity stream first message", zap.String("event_type", env.EventType))
		}
		if onMessage != nil {
			onMessage(env, raw)
		}
	}
}

func isPingPayload(env StreamEnvelope, raw []byte) bool {
	if strings.EqualFold(env.EventType, "ping") {
		return true
	}
	if strings.TrimSpace(string(raw)) == "ping" {
		return true
	}
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &hdr); err == nil && strings.EqualFold(hdr.Type, "ping") {
		return true
	}
	return false
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(rand.Int63n(int64(base/2) + 1))
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func setFromSlice(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = struct{}{}
	}
	return out
}

func diffSets(current, next map[string]struct{}) (added, removed []string) {
	for key := range next {
		if _, ok := current[key]; !ok {
			added = append(added, key)
		}
	}
	for key := range current {
		if _, ok := next[key]; !ok {
			removed = append(removed, key)
		}
	}
	return added, removed
}
