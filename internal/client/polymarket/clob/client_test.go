package clob

import (
	"fmt"
	"testing"
)

func TestParseOrderResult_FlatSuccess(t *testing.T) {
	raw := []byte(`{"success":true,"orderID":"0xabc","status":"matched","makingAmount":"12.5","avg_price":"0.42"}`)
	res, err := parseOrderResult(raw, "SELL")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !res.Success || res.OrderID != "0xabc" || res.Status != "matched" {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.FilledShares != 12.5 {
		t.Fatalf("filled=%v want 12.5", res.FilledShares)
	}
	if res.AvgPrice != 0.42 {
		t.Fatalf("avg=%v want 0.42", res.AvgPrice)
	}
}

func TestParseOrderResult_BuyReadsTakingAmount(t *testing.T) {
	// A $10 buy at $0.40: makingAmount is the USDC given, takingAmount
	// the shares received. Shares come from takingAmount, never the
	// dollar figure.
	raw := []byte(`{"success":true,"orderID":"0xdef","status":"matched","makingAmount":"10","takingAmount":"25"}`)
	res, err := parseOrderResult(raw, "BUY")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.FilledShares != 25 {
		t.Fatalf("filled=%v want 25", res.FilledShares)
	}
	if res.AvgPrice != 0.4 {
		t.Fatalf("avg=%v want 0.4", res.AvgPrice)
	}
}

func TestParseOrderResult_SellDerivesPrice(t *testing.T) {
	// Selling 25 shares for $10: shares are the asset given.
	raw := []byte(`{"success":true,"orderID":"0x123","status":"matched","makingAmount":"25","takingAmount":"10"}`)
	res, err := parseOrderResult(raw, "SELL")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.FilledShares != 25 {
		t.Fatalf("filled=%v want 25", res.FilledShares)
	}
	if res.AvgPrice != 0.4 {
		t.Fatalf("avg=%v want 0.4", res.AvgPrice)
	}
}

func TestParseOrderResult_NestedEnvelope(t *testing.T) {
	raw := []byte(`{"data":{"order":{"id":"ord-7","state":"LIVE"}}}`)
	res, err := parseOrderResult(raw, "BUY")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.OrderID != "ord-7" || res.Status != "live" {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Success {
		t.Fatalf("order id without error should imply success")
	}
}

func TestParseOrderResult_Rejection(t *testing.T) {
	raw := []byte(`{"success":false,"errorMsg":"not enough balance / allowance"}`)
	res, err := parseOrderResult(raw, "BUY")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Success {
		t.Fatalf("rejection parsed as success")
	}
	if !IsInsufficientBalance(res.ErrorMsg) {
		t.Fatalf("expected fatal balance rejection, msg=%q", res.ErrorMsg)
	}
}

func TestIsInsufficientBalance(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"not enough balance / allowance", true},
		{"Insufficient Allowance", true},
		{"market closed", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsInsufficientBalance(tt.msg); got != tt.want {
			t.Fatalf("IsInsufficientBalance(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(&APIError{Status: 429, Body: "slow down"}) {
		t.Fatalf("429 not detected")
	}
	if IsRateLimited(&APIError{Status: 500, Body: "boom"}) {
		t.Fatalf("500 flagged as rate limit")
	}
	if IsRateLimited(fmt.Errorf("plain error")) {
		t.Fatalf("plain error flagged as rate limit")
	}
	if !IsRateLimited(fmt.Errorf("wrapped: %w", &APIError{Status: 429})) {
		t.Fatalf("wrapped 429 not detected")
	}
}
