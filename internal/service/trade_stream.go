package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/DavidNaak/copytradepoly/internal/client/polymarket/clob"
)

// TradeStreamService listens to the venue's market channel for the
// tokens the session holds and nudges the poll loop when anything
// trades there. Purely an acceleration: if the stream is down the
// poller still sees everything on its own schedule.
type TradeStreamService struct {
	Trader *CopyTraderService
	Flags  *SystemSettingsService
	Logger *zap.Logger
	URL    string

	wake chan struct{}
}

// WakeChannel is what the copy trader selects on; buffered so a burst
// of events collapses into one early cycle.
func (s *TradeStreamService) WakeChannel() <-chan struct{} {
	if s.wake == nil {
		s.wake = make(chan struct{}, 1)
	}
	return s.wake
}

func (s *TradeStreamService) Run(ctx context.Context) error {
	if s == nil || s.Trader == nil {
		return nil
	}
	if s.wake == nil {
		s.wake = make(chan struct{}, 1)
	}
	stream := clob.NewActivityStream(clob.ActivityStreamOptions{
		URL:    s.URL,
		Logger: s.Logger,
		TokenIDProvider: func(ctx context.Context) ([]string, error) {
			return s.Trader.HeldTokenIDs(ctx)
		},
	})
	return stream.Run(ctx, func(env clob.StreamEnvelope, raw []byte) {
		if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureTradeStream, true) {
			return
		}
		if env.EventType != "last_trade_price" && env.EventType != "price_change" {
			return
		}
		select {
		case s.wake <- struct{}{}:
		default:
		}
	})
}
