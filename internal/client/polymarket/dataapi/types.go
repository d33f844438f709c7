package dataapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one observed trade event of the tracked address. TransactionHash
// is the globally unique identifier the copy engine dedups on.
type Trade struct {
	Side            string          `json:"side"`
	Asset           string          `json:"asset"`
	ConditionID     string          `json:"conditionId"`
	Size            decimal.Decimal `json:"size"`
	Price           decimal.Decimal `json:"price"`
	Timestamp       int64           `json:"timestamp"`
	Title           string          `json:"title"`
	Outcome         string          `json:"outcome"`
	TransactionHash string          `json:"transactionHash"`

	Raw json.RawMessage `json:"-"`
}

// NotionalUSD is the dollar value the target committed to this trade.
func (t Trade) NotionalUSD() decimal.Decimal {
	return t.Size.Mul(t.Price)
}

func (t Trade) TradedAt() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

func (t Trade) IsBuy() bool {
	return strings.EqualFold(strings.TrimSpace(t.Side), "BUY")
}

func (t Trade) IsSell() bool {
	return strings.EqualFold(strings.TrimSpace(t.Side), "SELL")
}

// Position is the venue's view of a share balance for one token.
type Position struct {
	Asset    string          `json:"asset"`
	Size     decimal.Decimal `json:"size"`
	AvgPrice decimal.Decimal `json:"avgPrice"`
	Title    string          `json:"title"`
	Outcome  string          `json:"outcome"`
}

func parseTrades(body []byte) ([]Trade, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to parse trades: %w", err)
	}
	out := make([]Trade, 0, len(raws))
	for _, raw := range raws {
		var t Trade
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, fmt.Errorf("failed to parse trade: %w", err)
		}
		t.Raw = raw
		out = append(out, t)
	}
	return out, nil
}
