package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/DavidNaak/copytradepoly/internal/client/polymarket/clob"
	"github.com/DavidNaak/copytradepoly/internal/client/polymarket/dataapi"
	"github.com/DavidNaak/copytradepoly/internal/config"
	"github.com/DavidNaak/copytradepoly/internal/engine"
	"github.com/DavidNaak/copytradepoly/internal/models"
	"github.com/DavidNaak/copytradepoly/internal/repository"
)

// TradeFeed observes the target address's activity.
type TradeFeed interface {
	GetTrades(ctx context.Context, address string, limit int) ([]dataapi.Trade, error)
	GetPositions(ctx context.Context, address string) ([]dataapi.Position, error)
}

// OrderExecutor places mirrored orders and answers balance queries.
type OrderExecutor interface {
	PlaceMarketOrder(ctx context.Context, req clob.MarketOrderRequest) (*clob.OrderResult, error)
	GetShareBalance(ctx context.Context, tokenID string) (float64, error)
}

// errSessionOver marks fatal-for-session conditions: the loop stops and
// deactivates the config, but the process stays up for the ops API.
var errSessionOver = errors.New("session over")

// CopyTraderService runs one copy-trading session as a single
// cooperative loop. Each cycle fetches the target's recent trades,
// applies the new ones in timestamp order, and advances the watermark.
// Nothing here runs concurrently with anything else in the session.
type CopyTraderService struct {
	Repo     repository.Repository
	Feed     TradeFeed
	Executor OrderExecutor
	Flags    *SystemSettingsService
	Logger   *zap.Logger
	Session  config.SessionConfig

	// TradeLimit is the feed page size per poll.
	TradeLimit int
	// Wake nudges the loop ahead of the ticker; nil is fine.
	Wake <-chan struct{}

	cfg       *models.CopyConfig
	budget    *engine.BudgetTracker
	recon     *engine.Reconciler
	shares    map[string]decimal.Decimal
	watermark int64
	stopped   string
}

// Start resumes the active config or creates a fresh one, then rebuilds
// in-memory session state from the outcome log.
func (s *CopyTraderService) Start(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Feed == nil {
		return fmt.Errorf("copy trader not wired")
	}
	cfg, err := s.Repo.GetActiveCopyConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		cfg = &models.CopyConfig{
			TargetAddress: strings.ToLower(strings.TrimSpace(s.Session.TargetAddress)),
			BudgetUSD:     decimal.NewFromFloat(s.Session.BudgetUSD),
			RemainingUSD:  decimal.NewFromFloat(s.Session.BudgetUSD),
			CopyRatio:     decimal.NewFromFloat(s.Session.CopyRatio),
			MaxTradeUSD:   decimal.NewFromFloat(s.Session.MaxTradeUSD),
			Reinvest:      s.Session.Reinvest,
			Active:        true,
		}
		if err := s.Repo.SaveCopyConfig(ctx, cfg); err != nil {
			return err
		}
		s.log().Info("copy session created",
			zap.Uint64("config_id", cfg.ID),
			zap.String("target", cfg.TargetAddress),
			zap.String("budget_usd", cfg.BudgetUSD.String()))
	} else {
		s.log().Info("copy session resumed",
			zap.Uint64("config_id", cfg.ID),
			zap.String("target", cfg.TargetAddress),
			zap.String("remaining_usd", cfg.RemainingUSD.String()))
	}
	s.cfg = cfg
	s.budget = engine.NewBudgetTracker(cfg.RemainingUSD, cfg.Reinvest)
	s.recon = engine.NewReconciler(s.balanceOf)

	records, err := s.Repo.ListSessionTrades(ctx, cfg.ID)
	if err != nil {
		return err
	}
	s.shares = engine.SessionShares(records)

	state, err := s.Repo.GetSyncState(ctx, cfg.ID)
	if err != nil {
		return err
	}
	if state != nil {
		s.watermark = state.LastTradeTS
	}

	if positions, err := s.Feed.GetPositions(ctx, cfg.TargetAddress); err == nil {
		s.log().Info("target portfolio observed", zap.Int("open_positions", len(positions)))
	} else {
		s.log().Warn("target portfolio lookup failed", zap.Error(err))
	}
	return nil
}

// Run blocks until the context is cancelled or the budget runs out.
// Both exits deactivate the config and emit the session summary.
func (s *CopyTraderService) Run(ctx context.Context) error {
	if s.cfg == nil {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	interval := s.Session.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopped = "shutdown signal"
			s.finish(context.WithoutCancel(ctx))
			return ctx.Err()
		case <-ticker.C:
		case <-s.Wake:
			drainWake(s.Wake)
		}
		if s.Flags != nil && !s.Flags.IsEnabled(ctx, FeatureCopyTrading, true) {
			continue
		}
		err := s.pollOnce(ctx)
		if errors.Is(err, errSessionOver) {
			s.finish(ctx)
			return nil
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			// Recoverable by construction: nothing was marked applied,
			// the next cycle retries from the same watermark.
			s.log().Warn("poll cycle failed", zap.Error(err))
		}
		if s.budget.Exhausted() {
			s.stopped = "budget exhausted"
			s.finish(ctx)
			return nil
		}
	}
}

// Summary builds the current session report from the outcome log.
func (s *CopyTraderService) Summary(ctx context.Context) (engine.Summary, error) {
	if s == nil || s.cfg == nil {
		return engine.Summary{}, fmt.Errorf("session not started")
	}
	records, err := s.Repo.ListSessionTrades(ctx, s.cfg.ID)
	if err != nil {
		return engine.Summary{}, err
	}
	return engine.BuildSummary(records, s.budget.Remaining()), nil
}

// ConfigID is 0 until Start has run.
func (s *CopyTraderService) ConfigID() uint64 {
	if s == nil || s.cfg == nil {
		return 0
	}
	return s.cfg.ID
}

func (s *CopyTraderService) RemainingBudget() decimal.Decimal {
	if s == nil {
		return decimal.Zero
	}
	return s.budget.Remaining()
}

// HeldTokenIDs lists tokens the session currently holds shares in.
func (s *CopyTraderService) HeldTokenIDs(ctx context.Context) ([]string, error) {
	if s == nil || s.cfg == nil {
		return nil, nil
	}
	records, err := s.Repo.ListSessionTrades(ctx, s.cfg.ID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	for tokenID, shares := range engine.SessionShares(records) {
		if shares.IsPositive() {
			out = append(out, tokenID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *CopyTraderService) pollOnce(ctx context.Context) error {
	s.recon.BeginCycle()

	limit := s.TradeLimit
	if limit <= 0 {
		limit = 100
	}
	trades, err := s.Feed.GetTrades(ctx, s.cfg.TargetAddress, limit)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	fresh := make([]dataapi.Trade, 0, len(trades))
	for _, t := range trades {
		// Watermark is inclusive: several trades can share one timestamp
		// and only some of them may have been applied last cycle. The
		// ledger's ExternalID check settles the ties.
		if t.Timestamp < s.watermark {
			continue
		}
		if strings.TrimSpace(t.TransactionHash) == "" {
			continue
		}
		done, err := s.Repo.IsTradeProcessed(ctx, t.TransactionHash)
		if err != nil {
			return fmt.Errorf("dedup check: %w", err)
		}
		if done {
			continue
		}
		fresh = append(fresh, t)
	}
	if len(fresh) == 0 {
		return nil
	}
	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].Timestamp < fresh[j].Timestamp
	})
	s.log().Info("new target trades", zap.Int("count", len(fresh)))

	for _, t := range fresh {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.applyTrade(ctx, t); err != nil {
			// Leave the watermark behind this trade so the next cycle
			// retries it; nothing has been recorded for it yet.
			return err
		}
		if t.Timestamp > s.watermark {
			s.watermark = t.Timestamp
			if err := s.Repo.SaveSyncState(ctx, &models.SyncState{ConfigID: s.cfg.ID, LastTradeTS: s.watermark}); err != nil {
				return fmt.Errorf("save watermark: %w", err)
			}
		}
		if s.budget.Exhausted() {
			s.stopped = "budget exhausted"
			return errSessionOver
		}
	}
	return nil
}

func (s *CopyTraderService) applyTrade(ctx context.Context, t dataapi.Trade) error {
	switch {
	case t.IsBuy():
		return s.applyBuy(ctx, t)
	case t.IsSell():
		return s.applySell(ctx, t)
	default:
		return s.record(ctx, t, models.CopyTrade{
			Side:   strings.ToUpper(strings.TrimSpace(t.Side)),
			Status: models.StatusSkipped,
			Reason: "unknown side",
		}, nil)
	}
}

func (s *CopyTraderService) applyBuy(ctx context.Context, t dataapi.Trade) error {
	out := engine.DecideBuy(engine.BuyInput{
		OriginalNotionalUSD: t.NotionalUSD(),
		CopyRatio:           s.cfg.CopyRatio,
		MaxTradeUSD:         s.cfg.MaxTradeUSD,
		RemainingBudgetUSD:  s.budget.Remaining(),
		MinOrderUSD:         decimal.NewFromFloat(s.Session.MinOrderUSD),
		AllowAddToPosition:  s.Session.AllowAddToPosition,
		SessionShares:       s.shares[t.Asset],
	})
	if !out.Accepted() {
		s.log().Info("buy skipped",
			zap.String("token", t.Asset),
			zap.String("reason", out.Reason))
		return s.record(ctx, t, models.CopyTrade{Side: models.SideBuy, Status: models.StatusSkipped, Reason: out.Reason}, nil)
	}

	// Shutdown must not pre-empt an order already being submitted; the
	// loop observes cancellation between trades, never mid-flight.
	opCtx := context.WithoutCancel(ctx)
	result, err := s.placeOrder(opCtx, t, models.SideBuy, out.AmountUSD, t.Price)
	if err != nil {
		return err
	}
	rec := models.CopyTrade{
		Side:    models.SideBuy,
		OrderID: result.OrderID,
	}
	switch {
	case !result.Success:
		rec.Status = models.StatusFailed
		rec.Reason = result.ErrorMsg
	case result.FilledShares <= 0:
		// Accepted by the venue but no fill details yet; shares stay at
		// zero so position math never counts an unconfirmed fill.
		rec.Status = models.StatusPending
	default:
		rec.Status = models.StatusSuccess
		rec.ExecutedShares = decimal.NewFromFloat(result.FilledShares)
		price := t.Price
		if result.AvgPrice > 0 {
			price = decimal.NewFromFloat(result.AvgPrice)
		}
		rec.Price = price
		rec.ExecutedNotionalUSD = rec.ExecutedShares.Mul(price)
	}
	var planned *decimal.Decimal
	if rec.Status == models.StatusSuccess {
		next := s.budget.PlanDebit(rec.ExecutedNotionalUSD)
		planned = &next
	}
	if err := s.record(opCtx, t, rec, planned); err != nil {
		return err
	}
	if rec.Status == models.StatusSuccess {
		s.budget.Apply(*planned)
		s.shares[t.Asset] = s.shares[t.Asset].Add(rec.ExecutedShares)
		s.log().Info("buy copied",
			zap.String("token", t.Asset),
			zap.String("title", t.Title),
			zap.String("spent_usd", rec.ExecutedNotionalUSD.String()),
			zap.String("remaining_usd", s.budget.Remaining().String()))
	}
	if !result.Success && clob.IsInsufficientBalance(result.ErrorMsg) {
		s.stopped = "insufficient balance or allowance"
		return errSessionOver
	}
	return nil
}

func (s *CopyTraderService) applySell(ctx context.Context, t dataapi.Trade) error {
	sessionShares := s.shares[t.Asset]
	var reconciled decimal.Decimal
	if sessionShares.IsPositive() {
		var err error
		reconciled, err = s.recon.Reconcile(ctx, t.Asset)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", t.Asset, err)
		}
	}
	out := engine.DecideSell(engine.SellInput{
		OriginalNotionalUSD: t.NotionalUSD(),
		CopyRatio:           s.cfg.CopyRatio,
		Price:               t.Price,
		SessionShares:       sessionShares,
		ReconciledShares:    reconciled,
	})
	if !out.Accepted() {
		s.log().Info("sell skipped",
			zap.String("token", t.Asset),
			zap.String("reason", out.Reason))
		return s.record(ctx, t, models.CopyTrade{Side: models.SideSell, Status: models.StatusSkipped, Reason: out.Reason}, nil)
	}

	// Same rule as buys: never abandon an in-flight submission.
	opCtx := context.WithoutCancel(ctx)
	result, err := s.placeOrder(opCtx, t, models.SideSell, out.Shares, t.Price)
	if err != nil {
		return err
	}
	rec := models.CopyTrade{
		Side:    models.SideSell,
		OrderID: result.OrderID,
	}
	switch {
	case !result.Success:
		rec.Status = models.StatusFailed
		rec.Reason = result.ErrorMsg
	case result.FilledShares <= 0:
		rec.Status = models.StatusPending
	default:
		rec.Status = models.StatusSuccess
		rec.ExecutedShares = decimal.NewFromFloat(result.FilledShares)
		price := t.Price
		if result.AvgPrice > 0 {
			price = decimal.NewFromFloat(result.AvgPrice)
		}
		rec.Price = price
		rec.ExecutedNotionalUSD = rec.ExecutedShares.Mul(price)
	}
	var planned *decimal.Decimal
	credited := false
	if rec.Status == models.StatusSuccess {
		if next, ok := s.budget.PlanCredit(rec.ExecutedNotionalUSD); ok {
			planned = &next
			credited = true
		}
	}
	if err := s.record(opCtx, t, rec, planned); err != nil {
		return err
	}
	if rec.Status == models.StatusSuccess {
		if credited {
			s.budget.Apply(*planned)
		}
		s.recon.RecordSale(t.Asset, rec.ExecutedShares)
		s.shares[t.Asset] = s.shares[t.Asset].Sub(rec.ExecutedShares)
		s.log().Info("sell copied",
			zap.String("token", t.Asset),
			zap.String("title", t.Title),
			zap.String("shares", rec.ExecutedShares.String()),
			zap.String("proceeds_usd", rec.ExecutedNotionalUSD.String()))
	}
	if !result.Success && clob.IsInsufficientBalance(result.ErrorMsg) {
		s.stopped = "insufficient balance or allowance"
		return errSessionOver
	}
	return nil
}

// placeOrder submits to the venue, or fabricates a full fill at the
// target's price when the session runs dry.
func (s *CopyTraderService) placeOrder(ctx context.Context, t dataapi.Trade, side string, amount, price decimal.Decimal) (*clob.OrderResult, error) {
	if s.Session.DryRun {
		shares := amount
		if side == models.SideBuy && price.IsPositive() {
			shares = amount.Div(price)
		}
		fs, _ := shares.Float64()
		ap, _ := price.Float64()
		return &clob.OrderResult{
			Success:      true,
			OrderID:      fmt.Sprintf("dry-%s", t.TransactionHash),
			Status:       "matched",
			FilledShares: fs,
			AvgPrice:     ap,
		}, nil
	}
	if s.Executor == nil {
		return nil, fmt.Errorf("no executor configured")
	}
	amt, _ := amount.Float64()
	result, err := s.Executor.PlaceMarketOrder(ctx, clob.MarketOrderRequest{
		TokenID: t.Asset,
		Side:    side,
		Amount:  amt,
	})
	if err != nil {
		if clob.IsRateLimited(err) {
			return nil, fmt.Errorf("rate limited: %w", err)
		}
		return nil, err
	}
	return result, nil
}

// record appends the outcome row; a duplicate ExternalID means another
// path already recorded this trade and the insert is a no-op. When the
// trade moves money, remaining carries the post-trade budget so the row
// and the debit land in the same transaction.
func (s *CopyTraderService) record(ctx context.Context, t dataapi.Trade, rec models.CopyTrade, remaining *decimal.Decimal) error {
	rec.ConfigID = s.cfg.ID
	rec.ExternalID = t.TransactionHash
	rec.TokenID = t.Asset
	rec.Title = t.Title
	rec.Outcome = t.Outcome
	rec.OriginalNotionalUSD = t.NotionalUSD()
	if rec.Price.IsZero() {
		rec.Price = t.Price
	}
	rec.TradedAt = t.TradedAt()
	if len(t.Raw) > 0 {
		rec.RawPayload = datatypes.JSON(t.Raw)
	}
	return s.Repo.RecordTradeOutcome(ctx, &rec, remaining)
}

func (s *CopyTraderService) balanceOf(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	if s.Session.DryRun || s.Executor == nil {
		// Nothing real is held in dry-run; trust the session ledger.
		return s.shares[tokenID], nil
	}
	bal, err := s.Executor.GetShareBalance(ctx, tokenID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(bal), nil
}

// finish deactivates the config and logs the end-of-session summary.
func (s *CopyTraderService) finish(ctx context.Context) {
	if s.cfg == nil {
		return
	}
	now := time.Now().UTC()
	if err := s.Repo.DeactivateCopyConfig(ctx, s.cfg.ID, now); err != nil {
		s.log().Error("deactivate config failed", zap.Error(err))
	}
	sum, err := s.Summary(ctx)
	if err != nil {
		s.log().Error("session summary failed", zap.Error(err))
		return
	}
	s.log().Info("copy session finished",
		zap.Uint64("config_id", s.cfg.ID),
		zap.String("reason", s.stopped),
		zap.Int("buys", sum.BuySuccesses),
		zap.Int("sells", sum.SellSuccesses),
		zap.Int("failures", sum.Failures),
		zap.Int("skips", sum.Skips),
		zap.String("bought_usd", sum.TotalBoughtUSD.String()),
		zap.String("sold_usd", sum.TotalSoldUSD.String()),
		zap.String("net_deployed_usd", sum.NetDeployedUSD.String()),
		zap.String("realized_pnl_usd", sum.RealizedPnLUSD.String()),
		zap.String("remaining_usd", sum.RemainingBudgetUSD.String()),
		zap.Int("markets", sum.MarketsEntered))
}

func (s *CopyTraderService) log() *zap.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return zap.NewNop()
}

func drainWake(ch <-chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
