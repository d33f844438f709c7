package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DavidNaak/copytradepoly/internal/models"
)

type ListCopyTradesParams struct {
	ConfigID *uint64
	Status   *string
	Side     *string
	TokenID  *string
	Limit    int
	Offset   int
	OrderBy  string
	Asc      *bool
}

// Repository is the session ledger: the durable store of copy configs, the
// append-only outcome log, and the poll watermark.
type Repository interface {
	// Session configs.
	SaveCopyConfig(ctx context.Context, item *models.CopyConfig) error
	GetCopyConfigByID(ctx context.Context, id uint64) (*models.CopyConfig, error)
	GetActiveCopyConfig(ctx context.Context) (*models.CopyConfig, error)
	UpdateRemainingBudget(ctx context.Context, id uint64, remaining decimal.Decimal) error
	DeactivateCopyConfig(ctx context.Context, id uint64, at time.Time) error

	// Outcome log. InsertCopyTrade must ignore a duplicate ExternalID: the
	// row already there is the outcome of record. RecordTradeOutcome does
	// the same insert and, when remaining is non-nil, updates the config's
	// remaining budget in the same transaction, so a crash can never leave
	// an applied trade without its budget debit (or vice versa).
	IsTradeProcessed(ctx context.Context, externalID string) (bool, error)
	InsertCopyTrade(ctx context.Context, item *models.CopyTrade) error
	RecordTradeOutcome(ctx context.Context, item *models.CopyTrade, remaining *decimal.Decimal) error
	ListCopyTrades(ctx context.Context, params ListCopyTradesParams) ([]models.CopyTrade, error)
	CountCopyTrades(ctx context.Context, params ListCopyTradesParams) (int64, error)
	ListSessionTrades(ctx context.Context, configID uint64) ([]models.CopyTrade, error)
	ListSessionTradesByToken(ctx context.Context, configID uint64, tokenID string) ([]models.CopyTrade, error)

	// Poll watermark.
	GetSyncState(ctx context.Context, configID uint64) (*models.SyncState, error)
	SaveSyncState(ctx context.Context, state *models.SyncState) error

	// Periodic snapshots.
	InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error

	// Runtime switches.
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
}
