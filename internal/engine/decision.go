// Package engine holds the core copy-trading logic: sizing decisions,
// position reconciliation, and budget / P&L accounting. External reads
// and writes are injected as narrow funcs so everything here stays
// testable without a venue or a database.
package engine

import "github.com/shopspring/decimal"

// DecisionKind tags the outcome of a sizing decision.
type DecisionKind string

const (
	DecisionAccepted DecisionKind = "ACCEPTED"
	DecisionSkipped  DecisionKind = "SKIPPED"
)

const (
	SkipAlreadyHold      = "already hold position"
	SkipNoBudget         = "no budget"
	SkipAmountTooSmall   = "amount too small"
	SkipBelowMinimum     = "below minimum"
	SkipNoSessionShares  = "no position in session"
	SkipNoActualPosition = "no actual position"
)

// Outcome is the result of DecideBuy or DecideSell. For accepted buys
// AmountUSD carries the dollar notional to spend; for accepted sells
// Shares carries the share count to unload. Reason is set on skips only.
type Outcome struct {
	Kind      DecisionKind
	AmountUSD decimal.Decimal
	Shares    decimal.Decimal
	Reason    string
}

func (o Outcome) Accepted() bool { return o.Kind == DecisionAccepted }

func skipped(reason string) Outcome {
	return Outcome{Kind: DecisionSkipped, Reason: reason}
}

// BuyInput is the snapshot DecideBuy works from. SessionShares is the
// net share count this session already holds in the asset.
type BuyInput struct {
	OriginalNotionalUSD decimal.Decimal
	CopyRatio           decimal.Decimal
	MaxTradeUSD         decimal.Decimal
	RemainingBudgetUSD  decimal.Decimal
	MinOrderUSD         decimal.Decimal
	AllowAddToPosition  bool
	SessionShares       decimal.Decimal
}

// SellInput is the snapshot DecideSell works from. ReconciledShares
// must come from a Reconciler query made in the current poll cycle.
type SellInput struct {
	OriginalNotionalUSD decimal.Decimal
	CopyRatio           decimal.Decimal
	Price               decimal.Decimal
	SessionShares       decimal.Decimal
	ReconciledShares    decimal.Decimal
}

// DecideBuy sizes a mirrored buy. Caps always win over the proportional
// size; the amount is never scaled up to clear a minimum. A budget that
// covers part of the capped amount produces a partial fill, not a skip.
func DecideBuy(in BuyInput) Outcome {
	if !in.AllowAddToPosition && in.SessionShares.IsPositive() {
		return skipped(SkipAlreadyHold)
	}
	amount := in.OriginalNotionalUSD.Mul(in.CopyRatio)
	if in.MaxTradeUSD.IsPositive() && amount.GreaterThan(in.MaxTradeUSD) {
		amount = in.MaxTradeUSD
	}
	if amount.GreaterThan(in.RemainingBudgetUSD) {
		if !in.RemainingBudgetUSD.IsPositive() {
			return skipped(SkipNoBudget)
		}
		amount = in.RemainingBudgetUSD
	}
	if !amount.IsPositive() {
		return skipped(SkipAmountTooSmall)
	}
	if amount.LessThan(in.MinOrderUSD) {
		return skipped(SkipBelowMinimum)
	}
	return Outcome{Kind: DecisionAccepted, AmountUSD: amount}
}

// DecideSell sizes a mirrored sell against what the session actually
// holds. There is no minimum-order floor on exits; the venue rejects
// dust orders and that rejection is recorded as a failure, not a skip.
func DecideSell(in SellInput) Outcome {
	if !in.SessionShares.IsPositive() {
		return skipped(SkipNoSessionShares)
	}
	if !in.ReconciledShares.IsPositive() {
		return skipped(SkipNoActualPosition)
	}
	if !in.Price.IsPositive() {
		return skipped(SkipAmountTooSmall)
	}
	rawValue := in.OriginalNotionalUSD.Mul(in.CopyRatio)
	heldValue := in.ReconciledShares.Mul(in.Price)
	sellValue := decimal.Min(rawValue, heldValue)
	shares := decimal.Min(sellValue.Div(in.Price), in.ReconciledShares)
	if !shares.IsPositive() {
		return skipped(SkipAmountTooSmall)
	}
	return Outcome{Kind: DecisionAccepted, Shares: shares}
}
