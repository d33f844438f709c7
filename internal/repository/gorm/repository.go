package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DavidNaak/copytradepoly/internal/models"
	"github.com/DavidNaak/copytradepoly/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- session configs --------------------------------------------------------

func (s *Store) SaveCopyConfig(ctx context.Context, item *models.CopyConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

func (s *Store) GetCopyConfigByID(ctx context.Context, id uint64) (*models.CopyConfig, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.CopyConfig
	err := s.db.WithContext(ctx).First(&item, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetActiveCopyConfig(ctx context.Context) (*models.CopyConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.CopyConfig
	err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpdateRemainingBudget(ctx context.Context, id uint64, remaining decimal.Decimal) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.CopyConfig{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"remaining_usd": remaining,
			"updated_at":    time.Now().UTC(),
		}).Error
}

func (s *Store) DeactivateCopyConfig(ctx context.Context, id uint64, at time.Time) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return s.db.WithContext(ctx).
		Model(&models.CopyConfig{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"active":         false,
			"deactivated_at": at,
			"updated_at":     at,
		}).Error
}

// --- outcome log ------------------------------------------------------------

func (s *Store) IsTradeProcessed(ctx context.Context, externalID string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return false, nil
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.CopyTrade{}).
		Where("external_id = ?", externalID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *Store) InsertCopyTrade(ctx context.Context, item *models.CopyTrade) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoNothing: true,
	}).Create(item).Error
	// A duplicate that slips past the conflict clause means the trade is
	// already durably recorded; nothing lost.
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	return err
}

func (s *Store) RecordTradeOutcome(ctx context.Context, item *models.CopyTrade, remaining *decimal.Decimal) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(item).Error
		if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		if remaining == nil || item.ConfigID == 0 {
			return nil
		}
		return tx.Model(&models.CopyConfig{}).
			Where("id = ?", item.ConfigID).
			Updates(map[string]any{
				"remaining_usd": *remaining,
				"updated_at":    time.Now().UTC(),
			}).Error
	})
}

func (s *Store) ListCopyTrades(ctx context.Context, params repository.ListCopyTradesParams) ([]models.CopyTrade, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyCopyTradeFilters(s.db.WithContext(ctx).Model(&models.CopyTrade{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "traded_at")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.CopyTrade
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountCopyTrades(ctx context.Context, params repository.ListCopyTradesParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	var count int64
	err := applyCopyTradeFilters(s.db.WithContext(ctx).Model(&models.CopyTrade{}), params).
		Count(&count).Error
	return count, err
}

func (s *Store) ListSessionTrades(ctx context.Context, configID uint64) ([]models.CopyTrade, error) {
	if s == nil || s.db == nil || configID == 0 {
		return nil, nil
	}
	var items []models.CopyTrade
	err := s.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("traded_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListSessionTradesByToken(ctx context.Context, configID uint64, tokenID string) ([]models.CopyTrade, error) {
	if s == nil || s.db == nil || configID == 0 {
		return nil, nil
	}
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, nil
	}
	var items []models.CopyTrade
	err := s.db.WithContext(ctx).
		Where("config_id = ? AND token_id = ?", configID, tokenID).
		Order("traded_at asc, id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- watermark --------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, configID uint64) (*models.SyncState, error) {
	if s == nil || s.db == nil || configID == 0 {
		return nil, nil
	}
	var item models.SyncState
	err := s.db.WithContext(ctx).First(&item, "config_id = ?", configID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	if s == nil || s.db == nil || state == nil || state.ConfigID == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_trade_ts", "updated_at"}),
	}).Create(state).Error
}

// --- snapshots --------------------------------------------------------------

func (s *Store) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "snapshot_at"}},
		DoUpdates: clause.AssignmentColumns([]string{"open_markets", "cost_basis_usd", "realized_pnl_usd", "remaining_budget_usd"}),
	}).Create(item).Error
}

// --- system settings --------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).First(&item, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.Key) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

// --- helpers ----------------------------------------------------------------

func applyCopyTradeFilters(query *gorm.DB, params repository.ListCopyTradesParams) *gorm.DB {
	if params.ConfigID != nil && *params.ConfigID > 0 {
		query = query.Where("config_id = ?", *params.ConfigID)
	}
	if params.Status != nil && strings.TrimSpace(*params.Status) != "" {
		query = query.Where("status = ?", strings.ToUpper(strings.TrimSpace(*params.Status)))
	}
	if params.Side != nil && strings.TrimSpace(*params.Side) != "" {
		query = query.Where("side = ?", strings.ToUpper(strings.TrimSpace(*params.Side)))
	}
	if params.TokenID != nil && strings.TrimSpace(*params.TokenID) != "" {
		query = query.Where("token_id = ?", strings.TrimSpace(*params.TokenID))
	}
	return query
}

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	col := strings.TrimSpace(orderBy)
	switch col {
	case "traded_at", "created_at", "status", "token_id":
	default:
		col = fallback
	}
	dir := "desc"
	if asc != nil && *asc {
		dir = "asc"
	}
	return query.Order(col + " " + dir)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
