package engine

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func baseBuy() BuyInput {
	return BuyInput{
		OriginalNotionalUSD: d("100"),
		CopyRatio:           d("1"),
		MaxTradeUSD:         d("20"),
		RemainingBudgetUSD:  d("100"),
		MinOrderUSD:         d("1"),
		AllowAddToPosition:  true,
	}
}

func TestDecideBuyCapWins(t *testing.T) {
	out := DecideBuy(baseBuy())
	if !out.Accepted() {
		t.Fatalf("expected accept, got %s (%s)", out.Kind, out.Reason)
	}
	if !out.AmountUSD.Equal(d("20")) {
		t.Fatalf("expected capped amount 20, got %s", out.AmountUSD)
	}
}

func TestDecideBuyRatioUnderCap(t *testing.T) {
	in := baseBuy()
	in.OriginalNotionalUSD = d("30")
	in.CopyRatio = d("0.5")
	out := DecideBuy(in)
	if !out.Accepted() || !out.AmountUSD.Equal(d("15")) {
		t.Fatalf("expected accept 15, got %s %s", out.Kind, out.AmountUSD)
	}
}

func TestDecideBuyPartialBudget(t *testing.T) {
	in := baseBuy()
	in.RemainingBudgetUSD = d("7.50")
	out := DecideBuy(in)
	if !out.Accepted() || !out.AmountUSD.Equal(d("7.50")) {
		t.Fatalf("expected partial fill 7.50, got %s %s", out.Kind, out.AmountUSD)
	}
}

func TestDecideBuyNoBudget(t *testing.T) {
	in := baseBuy()
	in.RemainingBudgetUSD = decimal.Zero
	out := DecideBuy(in)
	if out.Accepted() || out.Reason != SkipNoBudget {
		t.Fatalf("expected skip %q, got %s %q", SkipNoBudget, out.Kind, out.Reason)
	}
}

func TestDecideBuyBelowMinimum(t *testing.T) {
	in := baseBuy()
	in.RemainingBudgetUSD = d("0.50")
	out := DecideBuy(in)
	if out.Accepted() || out.Reason != SkipBelowMinimum {
		t.Fatalf("expected skip %q, got %s %q", SkipBelowMinimum, out.Kind, out.Reason)
	}
}

func TestDecideBuyAlreadyHolding(t *testing.T) {
	in := baseBuy()
	in.AllowAddToPosition = false
	in.SessionShares = d("3")
	out := DecideBuy(in)
	if out.Accepted() || out.Reason != SkipAlreadyHold {
		t.Fatalf("expected skip %q, got %s %q", SkipAlreadyHold, out.Kind, out.Reason)
	}
}

func TestDecideBuyZeroNotional(t *testing.T) {
	in := baseBuy()
	in.OriginalNotionalUSD = decimal.Zero
	out := DecideBuy(in)
	if out.Accepted() || out.Reason != SkipAmountTooSmall {
		t.Fatalf("expected skip %q, got %s %q", SkipAmountTooSmall, out.Kind, out.Reason)
	}
}

func TestDecideSellClampsToHeldValue(t *testing.T) {
	// Target sells $12 worth; we hold 10 shares at $0.50 and copy at 50%.
	// Raw sell value 6 exceeds held value 5, so the held value caps it
	// and the whole position goes.
	out := DecideSell(SellInput{
		OriginalNotionalUSD: d("12"),
		CopyRatio:           d("0.5"),
		Price:               d("0.50"),
		SessionShares:       d("10"),
		ReconciledShares:    d("10"),
	})
	if !out.Accepted() {
		t.Fatalf("expected accept, got %s (%s)", out.Kind, out.Reason)
	}
	if !out.Shares.Equal(d("10")) {
		t.Fatalf("expected 10 shares, got %s", out.Shares)
	}
}

func TestDecideSellPartialExit(t *testing.T) {
	out := DecideSell(SellInput{
		OriginalNotionalUSD: d("4"),
		CopyRatio:           d("0.5"),
		Price:               d("0.50"),
		SessionShares:       d("10"),
		ReconciledShares:    d("10"),
	})
	if !out.Accepted() || !out.Shares.Equal(d("4")) {
		t.Fatalf("expected 4 shares, got %s %s", out.Kind, out.Shares)
	}
}

func TestDecideSellNoSessionPosition(t *testing.T) {
	out := DecideSell(SellInput{
		OriginalNotionalUSD: d("5"),
		CopyRatio:           d("1"),
		Price:               d("0.40"),
		SessionShares:       decimal.Zero,
		ReconciledShares:    d("10"),
	})
	if out.Accepted() || out.Reason != SkipNoSessionShares {
		t.Fatalf("expected skip %q, got %s %q", SkipNoSessionShares, out.Kind, out.Reason)
	}
}

func TestDecideSellNoRemotePosition(t *testing.T) {
	out := DecideSell(SellInput{
		OriginalNotionalUSD: d("5"),
		CopyRatio:           d("1"),
		Price:               d("0.40"),
		SessionShares:       d("10"),
		ReconciledShares:    decimal.Zero,
	})
	if out.Accepted() || out.Reason != SkipNoActualPosition {
		t.Fatalf("expected skip %q, got %s %q", SkipNoActualPosition, out.Kind, out.Reason)
	}
}

func TestDecideSellNoMinimumFloor(t *testing.T) {
	// A ten-cent exit still goes through; dust rejection is the venue's
	// call, not ours.
	out := DecideSell(SellInput{
		OriginalNotionalUSD: d("0.10"),
		CopyRatio:           d("1"),
		Price:               d("0.50"),
		SessionShares:       d("1"),
		ReconciledShares:    d("1"),
	})
	if !out.Accepted() || !out.Shares.Equal(d("0.2")) {
		t.Fatalf("expected 0.2 shares, got %s %s", out.Kind, out.Shares)
	}
}
