package dataapi

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseTradesKeepsRawPayload(t *testing.T) {
	body := []byte(`[
		{"side":"BUY","asset":"123","size":"40","price":"0.25","timestamp":1700000000,"title":"Test?","outcome":"Yes","transactionHash":"0xaaa"},
		{"side":"SELL","asset":"456","size":10,"price":0.5,"timestamp":1700000001,"transactionHash":"0xbbb"}
	]`)
	trades, err := parseTrades(body)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("got %d trades", len(trades))
	}
	if !trades[0].IsBuy() || trades[0].Asset != "123" {
		t.Fatalf("unexpected first trade %+v", trades[0])
	}
	if !trades[0].NotionalUSD().Equal(decimal.RequireFromString("10")) {
		t.Fatalf("notional=%s want 10", trades[0].NotionalUSD())
	}
	if !trades[1].IsSell() {
		t.Fatalf("second trade not a sell")
	}
	if len(trades[0].Raw) == 0 || len(trades[1].Raw) == 0 {
		t.Fatalf("raw payload dropped")
	}
}

func TestParseTradesRejectsNonArray(t *testing.T) {
	if _, err := parseTrades([]byte(`{"error":"nope"}`)); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTradeTradedAtIsUTC(t *testing.T) {
	tr := Trade{Timestamp: 1700000000}
	at := tr.TradedAt()
	if at.Location().String() != "UTC" {
		t.Fatalf("traded at not UTC: %v", at)
	}
	if at.Unix() != 1700000000 {
		t.Fatalf("round trip mismatch: %d", at.Unix())
	}
}
