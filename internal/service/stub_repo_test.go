package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DavidNaak/copytradepoly/internal/models"
	"github.com/DavidNaak/copytradepoly/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InsertCopyTrade mirrors the real store's dedup contract: duplicate
// external ids are silently dropped.
type stubRepo struct {
	configs   map[uint64]*models.CopyConfig
	trades    []models.CopyTrade
	syncState map[uint64]int64
	snapshots []models.PortfolioSnapshot
	settings  map[string]*models.SystemSetting
	nextID    uint64

	insertErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		configs:   make(map[uint64]*models.CopyConfig),
		syncState: make(map[uint64]int64),
		settings:  make(map[string]*models.SystemSetting),
	}
}

func (s *stubRepo) SaveCopyConfig(ctx context.Context, item *models.CopyConfig) error {
	if item.ID == 0 {
		s.nextID++
		item.ID = s.nextID
	}
	cp := *item
	s.configs[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetCopyConfigByID(ctx context.Context, id uint64) (*models.CopyConfig, error) {
	cfg, ok := s.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *cfg
	return &cp, nil
}

func (s *stubRepo) GetActiveCopyConfig(ctx context.Context) (*models.CopyConfig, error) {
	for _, cfg := range s.configs {
		if cfg.Active {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) UpdateRemainingBudget(ctx context.Context, id uint64, remaining decimal.Decimal) error {
	if cfg, ok := s.configs[id]; ok {
		cfg.RemainingUSD = remaining
	}
	return nil
}

func (s *stubRepo) DeactivateCopyConfig(ctx context.Context, id uint64, at time.Time) error {
	if cfg, ok := s.configs[id]; ok {
		cfg.Active = false
		cfg.DeactivatedAt = &at
	}
	return nil
}

func (s *stubRepo) IsTradeProcessed(ctx context.Context, externalID string) (bool, error) {
	for _, tr := range s.trades {
		if tr.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubRepo) InsertCopyTrade(ctx context.Context, item *models.CopyTrade) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	for _, tr := range s.trades {
		if tr.ExternalID == item.ExternalID {
			return nil
		}
	}
	s.nextID++
	item.ID = s.nextID
	s.trades = append(s.trades, *item)
	return nil
}

func (s *stubRepo) RecordTradeOutcome(ctx context.Context, item *models.CopyTrade, remaining *decimal.Decimal) error {
	if err := s.InsertCopyTrade(ctx, item); err != nil {
		return err
	}
	if remaining != nil {
		return s.UpdateRemainingBudget(ctx, item.ConfigID, *remaining)
	}
	return nil
}

func (s *stubRepo) ListCopyTrades(ctx context.Context, params repository.ListCopyTradesParams) ([]models.CopyTrade, error) {
	out := make([]models.CopyTrade, 0)
	for _, tr := range s.trades {
		if params.ConfigID != nil && tr.ConfigID != *params.ConfigID {
			continue
		}
		if params.Status != nil && tr.Status != *params.Status {
			continue
		}
		if params.Side != nil && tr.Side != *params.Side {
			continue
		}
		if params.TokenID != nil && tr.TokenID != *params.TokenID {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

func (s *stubRepo) CountCopyTrades(ctx context.Context, params repository.ListCopyTradesParams) (int64, error) {
	items, err := s.ListCopyTrades(ctx, params)
	return int64(len(items)), err
}

func (s *stubRepo) ListSessionTrades(ctx context.Context, configID uint64) ([]models.CopyTrade, error) {
	return s.ListCopyTrades(ctx, repository.ListCopyTradesParams{ConfigID: &configID})
}

func (s *stubRepo) ListSessionTradesByToken(ctx context.Context, configID uint64, tokenID string) ([]models.CopyTrade, error) {
	return s.ListCopyTrades(ctx, repository.ListCopyTradesParams{ConfigID: &configID, TokenID: &tokenID})
}

func (s *stubRepo) GetSyncState(ctx context.Context, configID uint64) (*models.SyncState, error) {
	ts, ok := s.syncState[configID]
	if !ok {
		return nil, nil
	}
	return &models.SyncState{ConfigID: configID, LastTradeTS: ts}, nil
}

func (s *stubRepo) SaveSyncState(ctx context.Context, state *models.SyncState) error {
	s.syncState[state.ConfigID] = state.LastTradeTS
	return nil
}

func (s *stubRepo) InsertPortfolioSnapshot(ctx context.Context, item *models.PortfolioSnapshot) error {
	s.snapshots = append(s.snapshots, *item)
	return nil
}

func (s *stubRepo) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	item, ok := s.settings[key]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *stubRepo) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	cp := *item
	s.settings[item.Key] = &cp
	return nil
}
