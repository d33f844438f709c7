package engine

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/DavidNaak/copytradepoly/internal/models"
)

// BudgetTracker owns the session's remaining tradable budget. Writes
// follow a plan/apply split: the caller plans the new value, stores it
// durably (in the same transaction as the outcome record), and only
// then applies it, so the stored budget always matches applied trades.
// The mutex covers reads from the ops API and cron goroutines, which
// run concurrently with the trading loop.
type BudgetTracker struct {
	mu        sync.RWMutex
	remaining decimal.Decimal
	reinvest  bool
}

func NewBudgetTracker(remainingUSD decimal.Decimal, reinvest bool) *BudgetTracker {
	return &BudgetTracker{remaining: remainingUSD, reinvest: reinvest}
}

func (b *BudgetTracker) Remaining() decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.remaining
}

func (b *BudgetTracker) Exhausted() bool {
	return b == nil || !b.Remaining().IsPositive()
}

// PlanDebit returns the remaining budget after spending amountUSD,
// floored at zero. The tracker is not mutated; commit with Apply once
// the value is durably stored.
func (b *BudgetTracker) PlanDebit(amountUSD decimal.Decimal) decimal.Decimal {
	next := b.Remaining().Sub(amountUSD)
	if next.IsNegative() {
		next = decimal.Zero
	}
	return next
}

// PlanCredit returns the remaining budget after adding sell proceeds.
// With reinvest off it reports ok=false: the proceeds still show up in
// the summary but the tradable budget only ever shrinks.
func (b *BudgetTracker) PlanCredit(proceedsUSD decimal.Decimal) (decimal.Decimal, bool) {
	if b == nil || !b.reinvest {
		return b.Remaining(), false
	}
	return b.Remaining().Add(proceedsUSD), true
}

// Apply commits a planned remaining value.
func (b *BudgetTracker) Apply(remainingUSD decimal.Decimal) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.remaining = remainingUSD
	b.mu.Unlock()
}

// SessionShares folds the session's successful trades into the net
// share count held per token. Sells can drive a token negative only
// through rounding noise; callers treat non-positive as flat.
func SessionShares(records []models.CopyTrade) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, rec := range records {
		if rec.Status != models.StatusSuccess {
			continue
		}
		switch rec.Side {
		case models.SideBuy:
			out[rec.TokenID] = out[rec.TokenID].Add(rec.ExecutedShares)
		case models.SideSell:
			out[rec.TokenID] = out[rec.TokenID].Sub(rec.ExecutedShares)
		}
	}
	return out
}

// RealizedPnL computes realized profit across the session's successful
// trades. Buys in each token establish a weighted-average cost; every
// sell realizes sellShares * (sellPrice - avgBuyPrice). A sell in a
// token the session never bought carries a zero cost basis, so its
// full proceeds count as profit; with positions reconciled against the
// venue that case only arises from out-of-band acquisitions.
func RealizedPnL(records []models.CopyTrade) decimal.Decimal {
	type tokenBook struct {
		buyShares decimal.Decimal
		buyCost   decimal.Decimal
		sells     []models.CopyTrade
	}
	books := make(map[string]*tokenBook)
	for _, rec := range records {
		if rec.Status != models.StatusSuccess {
			continue
		}
		book := books[rec.TokenID]
		if book == nil {
			book = &tokenBook{}
			books[rec.TokenID] = book
		}
		switch rec.Side {
		case models.SideBuy:
			book.buyShares = book.buyShares.Add(rec.ExecutedShares)
			book.buyCost = book.buyCost.Add(rec.ExecutedShares.Mul(rec.Price))
		case models.SideSell:
			book.sells = append(book.sells, rec)
		}
	}
	total := decimal.Zero
	for _, book := range books {
		avgBuy := decimal.Zero
		if book.buyShares.IsPositive() {
			avgBuy = book.buyCost.Div(book.buyShares)
		}
		for _, sell := range book.sells {
			proceeds := sell.ExecutedShares.Mul(sell.Price)
			basis := sell.ExecutedShares.Mul(avgBuy)
			total = total.Add(proceeds.Sub(basis))
		}
	}
	return total
}

// Summary aggregates a session's activity for the end-of-session report
// and the ops API.
type Summary struct {
	BuySuccesses       int             `json:"buy_successes"`
	SellSuccesses      int             `json:"sell_successes"`
	Failures           int             `json:"failures"`
	Skips              int             `json:"skips"`
	TotalBoughtUSD     decimal.Decimal `json:"total_bought_usd"`
	TotalSoldUSD       decimal.Decimal `json:"total_sold_usd"`
	NetDeployedUSD     decimal.Decimal `json:"net_deployed_usd"`
	RealizedPnLUSD     decimal.Decimal `json:"realized_pnl_usd"`
	RemainingBudgetUSD decimal.Decimal `json:"remaining_budget_usd"`
	MarketsEntered     int             `json:"markets_entered"`
}

// BuildSummary walks the session's trade records once and derives the
// full report.
func BuildSummary(records []models.CopyTrade, remainingBudgetUSD decimal.Decimal) Summary {
	sum := Summary{RemainingBudgetUSD: remainingBudgetUSD}
	markets := make(map[string]struct{})
	for _, rec := range records {
		switch rec.Status {
		case models.StatusFailed:
			sum.Failures++
			continue
		case models.StatusSkipped:
			sum.Skips++
			continue
		case models.StatusSuccess:
		default:
			continue
		}
		switch rec.Side {
		case models.SideBuy:
			sum.BuySuccesses++
			sum.TotalBoughtUSD = sum.TotalBoughtUSD.Add(rec.ExecutedNotionalUSD)
			markets[rec.TokenID] = struct{}{}
		case models.SideSell:
			sum.SellSuccesses++
			sum.TotalSoldUSD = sum.TotalSoldUSD.Add(rec.ExecutedNotionalUSD)
		}
	}
	sum.NetDeployedUSD = sum.TotalBoughtUSD.Sub(sum.TotalSoldUSD)
	sum.RealizedPnLUSD = RealizedPnL(records)
	sum.MarketsEntered = len(markets)
	return sum
}
