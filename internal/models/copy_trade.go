package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusPending = "PENDING"
	StatusSkipped = "SKIPPED"
)

const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// CopyTrade is the outcome record for one observed target trade. The unique
// index on ExternalID is what enforces at-most-once application; rows are
// never updated after insert.
type CopyTrade struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	ConfigID   uint64 `gorm:"not null;index"`
	ExternalID string `gorm:"type:varchar(130);not null;uniqueIndex"`

	TokenID string `gorm:"type:varchar(100);not null;index"`
	Title   string `gorm:"type:text"`
	Outcome string `gorm:"type:varchar(40)"`
	Side    string `gorm:"type:varchar(10);not null"`

	OriginalNotionalUSD decimal.Decimal `gorm:"type:numeric(30,10);not null"`
	ExecutedShares      decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	ExecutedNotionalUSD decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	Price               decimal.Decimal `gorm:"type:numeric(20,10);not null"`

	Status  string `gorm:"type:varchar(20);not null;index"`
	OrderID string `gorm:"type:varchar(100)"`
	Reason  string `gorm:"type:text"`

	// Feed event as received, for post-session audit only.
	RawPayload datatypes.JSON `gorm:"type:jsonb"`

	TradedAt  time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (CopyTrade) TableName() string {
	return "copy_trades"
}
