package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CopyConfig is one copy-trading session: which address to mirror and how
// copies are sized. RemainingUSD is owned by the budget tracker and must only
// change through its debit/credit operations.
type CopyConfig struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TargetAddress string `gorm:"type:varchar(100);not null;index"`

	BudgetUSD    decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	RemainingUSD decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	CopyRatio    decimal.Decimal `gorm:"type:numeric(20,10);not null"`
	MaxTradeUSD  decimal.Decimal `gorm:"type:numeric(30,10);not null"`

	Reinvest bool `gorm:"not null;default:false"`
	Active   bool `gorm:"not null;default:true;index"`

	DeactivatedAt *time.Time `gorm:"type:timestamptz"`
	CreatedAt     time.Time  `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"type:timestamptz;autoUpdateTime"`
}

func (CopyConfig) TableName() string {
	return "copy_configs"
}
