package engine

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// BalanceFunc returns the venue's current share balance for a token.
type BalanceFunc func(ctx context.Context, tokenID string) (decimal.Decimal, error)

// Reconciler answers "how many shares do we really hold" during a poll
// cycle. The first query for a token in a cycle trusts the remote
// balance; later queries take min(remote, cached) because either side
// can be stale mid-batch. RecordSale depletes the cache immediately so
// back-to-back sells in one batch never oversell while the venue's
// read path catches up.
//
// Not safe for concurrent use; the trading loop is single-threaded.
type Reconciler struct {
	balance BalanceFunc
	cache   map[string]decimal.Decimal
}

func NewReconciler(balance BalanceFunc) *Reconciler {
	return &Reconciler{
		balance: balance,
		cache:   make(map[string]decimal.Decimal),
	}
}

// BeginCycle discards the cache so the new cycle re-anchors to the
// venue's ground truth.
func (r *Reconciler) BeginCycle() {
	if r == nil {
		return
	}
	r.cache = make(map[string]decimal.Decimal)
}

// Reconcile returns the spendable share count for tokenID this cycle.
func (r *Reconciler) Reconcile(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	if r == nil || r.balance == nil {
		return decimal.Zero, fmt.Errorf("reconciler not initialized")
	}
	remote, err := r.balance(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	cached, seen := r.cache[tokenID]
	shares := remote
	if seen {
		shares = decimal.Min(remote, cached)
	}
	r.cache[tokenID] = shares
	return shares, nil
}

// RecordSale reduces the cached balance after a successful sell, never
// below zero.
func (r *Reconciler) RecordSale(tokenID string, soldShares decimal.Decimal) {
	if r == nil {
		return
	}
	cached, seen := r.cache[tokenID]
	if !seen {
		return
	}
	next := cached.Sub(soldShares)
	if next.IsNegative() {
		next = decimal.Zero
	}
	r.cache[tokenID] = next
}
