package db

import (
	"github.com/DavidNaak/copytradepoly/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.CopyConfig{},
		&models.CopyTrade{},
		&models.SyncState{},
		&models.PortfolioSnapshot{},
		&models.SystemSetting{},
	)
}
