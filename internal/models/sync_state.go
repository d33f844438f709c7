package models

import "time"

// SyncState persists the per-config poll watermark so a restarted session
// resumes where it left off. Dedup on CopyTrade.ExternalID still backstops
// anything re-read around the boundary.
type SyncState struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	ConfigID    uint64 `gorm:"not null;uniqueIndex"`
	LastTradeTS int64  `gorm:"not null;default:0"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
