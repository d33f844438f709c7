package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/DavidNaak/copytradepoly/internal/engine"
	"github.com/DavidNaak/copytradepoly/internal/models"
	"github.com/DavidNaak/copytradepoly/internal/repository"
)

// PortfolioSnapshotService records a periodic point-in-time view of the
// session so budget and P&L drift can be charted after the fact.
type PortfolioSnapshotService struct {
	Repo   repository.Repository
	Trader *CopyTraderService
	Flags  *SystemSettingsService
	Logger *zap.Logger
}

func (s *PortfolioSnapshotService) RunOnce(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Trader == nil {
		return nil
	}
	if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeaturePortfolioSnapshot, true) {
		return nil
	}
	configID := s.Trader.ConfigID()
	if configID == 0 {
		return nil
	}
	records, err := s.Repo.ListSessionTrades(ctx, configID)
	if err != nil {
		return err
	}
	openMarkets := 0
	costBasis := decimal.Zero
	shares := engine.SessionShares(records)
	avgCosts := averageBuyPrices(records)
	for tokenID, held := range shares {
		if !held.IsPositive() {
			continue
		}
		openMarkets++
		costBasis = costBasis.Add(held.Mul(avgCosts[tokenID]))
	}
	snap := &models.PortfolioSnapshot{
		SnapshotAt:         time.Now().UTC().Truncate(time.Minute),
		OpenMarkets:        openMarkets,
		CostBasisUSD:       costBasis,
		RealizedPnLUSD:     engine.RealizedPnL(records),
		RemainingBudgetUSD: s.Trader.RemainingBudget(),
	}
	if err := s.Repo.InsertPortfolioSnapshot(ctx, snap); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Debug("portfolio snapshot taken",
			zap.Int("open_markets", snap.OpenMarkets),
			zap.String("cost_basis_usd", snap.CostBasisUSD.String()),
			zap.String("realized_pnl_usd", snap.RealizedPnLUSD.String()))
	}
	return nil
}

func averageBuyPrices(records []models.CopyTrade) map[string]decimal.Decimal {
	totalShares := make(map[string]decimal.Decimal)
	totalCost := make(map[string]decimal.Decimal)
	for _, rec := range records {
		if rec.Status != models.StatusSuccess || rec.Side != models.SideBuy {
			continue
		}
		totalShares[rec.TokenID] = totalShares[rec.TokenID].Add(rec.ExecutedShares)
		totalCost[rec.TokenID] = totalCost[rec.TokenID].Add(rec.ExecutedShares.Mul(rec.Price))
	}
	out := make(map[string]decimal.Decimal, len(totalShares))
	for tokenID, sh := range totalShares {
		if sh.IsPositive() {
			out[tokenID] = totalCost[tokenID].Div(sh)
		}
	}
	return out
}
