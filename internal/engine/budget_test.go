package engine

import (
	"sync"
	"testing"

	"github.com/DavidNaak/copytradepoly/internal/models"
)

func TestBudgetPlanDebitLeavesStateUntouched(t *testing.T) {
	b := NewBudgetTracker(d("100"), false)
	next := b.PlanDebit(d("30"))
	if !next.Equal(d("70")) {
		t.Fatalf("expected planned 70, got %s", next)
	}
	if !b.Remaining().Equal(d("100")) {
		t.Fatalf("plan mutated remaining: %s", b.Remaining())
	}
	b.Apply(next)
	if !b.Remaining().Equal(d("70")) {
		t.Fatalf("expected remaining 70 after apply, got %s", b.Remaining())
	}
}

func TestBudgetPlanDebitFloorsAtZero(t *testing.T) {
	b := NewBudgetTracker(d("5"), false)
	if next := b.PlanDebit(d("8")); !next.IsZero() {
		t.Fatalf("expected planned 0, got %s", next)
	}
}

func TestBudgetPlanCreditOnlyWithReinvest(t *testing.T) {
	noReinvest := NewBudgetTracker(d("50"), false)
	if _, ok := noReinvest.PlanCredit(d("10")); ok {
		t.Fatalf("credit planned with reinvest off")
	}
	if !noReinvest.Remaining().Equal(d("50")) {
		t.Fatalf("remaining moved with reinvest off: %s", noReinvest.Remaining())
	}

	reinvest := NewBudgetTracker(d("50"), true)
	next, ok := reinvest.PlanCredit(d("10"))
	if !ok {
		t.Fatalf("credit not planned with reinvest on")
	}
	if !next.Equal(d("60")) {
		t.Fatalf("expected planned 60, got %s", next)
	}
	reinvest.Apply(next)
	if !reinvest.Remaining().Equal(d("60")) {
		t.Fatalf("expected 60 after apply, got %s", reinvest.Remaining())
	}
}

func TestBudgetExhausted(t *testing.T) {
	b := NewBudgetTracker(d("5"), false)
	if b.Exhausted() {
		t.Fatalf("budget of 5 reported exhausted")
	}
	b.Apply(b.PlanDebit(d("5")))
	if !b.Exhausted() {
		t.Fatalf("expected exhausted at zero")
	}
}

func TestBudgetConcurrentReadersAndWriter(t *testing.T) {
	// Ops handlers and cron jobs read the tracker while the trading
	// loop mutates it; run both under the race detector.
	b := NewBudgetTracker(d("1000"), true)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_ = b.Remaining()
				_ = b.Exhausted()
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 200; j++ {
			b.Apply(b.PlanDebit(d("1")))
			if next, ok := b.PlanCredit(d("1")); ok {
				b.Apply(next)
			}
		}
	}()
	wg.Wait()
	if !b.Remaining().Equal(d("1000")) {
		t.Fatalf("expected 1000 after balanced debits and credits, got %s", b.Remaining())
	}
}

func success(side, token string, shares, price string) models.CopyTrade {
	sh := d(shares)
	pr := d(price)
	return models.CopyTrade{
		Status:              models.StatusSuccess,
		Side:                side,
		TokenID:             token,
		ExecutedShares:      sh,
		Price:               pr,
		ExecutedNotionalUSD: sh.Mul(pr),
	}
}

func TestRealizedPnLWeightedAverage(t *testing.T) {
	records := []models.CopyTrade{
		success(models.SideBuy, "A", "10", "0.40"),
		success(models.SideBuy, "A", "10", "0.60"),
		// avg cost 0.50; selling 10 at 0.80 realizes 3.00
		success(models.SideSell, "A", "10", "0.80"),
	}
	got := RealizedPnL(records)
	if !got.Equal(d("3")) {
		t.Fatalf("expected pnl 3, got %s", got)
	}
}

func TestRealizedPnLUnmatchedSellUsesZeroBasis(t *testing.T) {
	records := []models.CopyTrade{
		success(models.SideSell, "B", "4", "0.25"),
	}
	got := RealizedPnL(records)
	if !got.Equal(d("1")) {
		t.Fatalf("expected full proceeds 1 as pnl, got %s", got)
	}
}

func TestRealizedPnLIgnoresNonSuccess(t *testing.T) {
	rec := success(models.SideSell, "C", "100", "0.90")
	rec.Status = models.StatusFailed
	if got := RealizedPnL([]models.CopyTrade{rec}); !got.IsZero() {
		t.Fatalf("failed trade moved pnl: %s", got)
	}
}

func TestRealizedPnLReplayIsStable(t *testing.T) {
	records := []models.CopyTrade{
		success(models.SideBuy, "A", "10", "0.40"),
		success(models.SideSell, "A", "5", "0.50"),
		success(models.SideBuy, "B", "20", "0.10"),
	}
	first := RealizedPnL(records)
	second := RealizedPnL(records)
	if !first.Equal(second) {
		t.Fatalf("pnl not stable across replays: %s vs %s", first, second)
	}
}

func TestSessionShares(t *testing.T) {
	records := []models.CopyTrade{
		success(models.SideBuy, "A", "10", "0.40"),
		success(models.SideSell, "A", "4", "0.50"),
		success(models.SideBuy, "B", "2", "0.30"),
	}
	skippedRec := models.CopyTrade{Status: models.StatusSkipped, Side: models.SideBuy, TokenID: "A", ExecutedShares: d("99")}
	records = append(records, skippedRec)

	shares := SessionShares(records)
	if !shares["A"].Equal(d("6")) {
		t.Fatalf("expected 6 shares of A, got %s", shares["A"])
	}
	if !shares["B"].Equal(d("2")) {
		t.Fatalf("expected 2 shares of B, got %s", shares["B"])
	}
}

func TestBuildSummary(t *testing.T) {
	records := []models.CopyTrade{
		success(models.SideBuy, "A", "10", "0.40"),
		success(models.SideSell, "A", "10", "0.60"),
		success(models.SideBuy, "B", "5", "0.20"),
		{Status: models.StatusFailed, Side: models.SideBuy, TokenID: "C"},
		{Status: models.StatusSkipped, Side: models.SideBuy, TokenID: "D", Reason: SkipNoBudget},
	}
	sum := BuildSummary(records, d("12"))
	if sum.BuySuccesses != 2 || sum.SellSuccesses != 1 || sum.Failures != 1 || sum.Skips != 1 {
		t.Fatalf("unexpected counts: %+v", sum)
	}
	if !sum.TotalBoughtUSD.Equal(d("5")) {
		t.Fatalf("expected bought 5, got %s", sum.TotalBoughtUSD)
	}
	if !sum.TotalSoldUSD.Equal(d("6")) {
		t.Fatalf("expected sold 6, got %s", sum.TotalSoldUSD)
	}
	if !sum.NetDeployedUSD.Equal(d("-1")) {
		t.Fatalf("expected net -1, got %s", sum.NetDeployedUSD)
	}
	if !sum.RealizedPnLUSD.Equal(d("2")) {
		t.Fatalf("expected pnl 2, got %s", sum.RealizedPnLUSD)
	}
	if sum.MarketsEntered != 2 {
		t.Fatalf("expected 2 markets, got %d", sum.MarketsEntered)
	}
	if !sum.RemainingBudgetUSD.Equal(d("12")) {
		t.Fatalf("expected remaining 12, got %s", sum.RemainingBudgetUSD)
	}
}
