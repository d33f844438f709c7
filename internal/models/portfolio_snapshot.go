package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type PortfolioSnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;uniqueIndex"`

	OpenMarkets        int             `gorm:"not null;default:0"`
	CostBasisUSD       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	RealizedPnLUSD     decimal.Decimal `gorm:"column:realized_pnl_usd;type:numeric(30,10);not null;default:0"`
	RemainingBudgetUSD decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (PortfolioSnapshot) TableName() string {
	return "portfolio_snapshots"
}
