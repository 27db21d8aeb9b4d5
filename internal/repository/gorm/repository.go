package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"arbiter/internal/models"
	"arbiter/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// conn picks the transaction handle when one is supplied.
func (s *Store) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db
}

// --- Strategies --------------------------------------------------------------

func (s *Store) CreateStrategy(ctx context.Context, item *models.Strategy) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Model(&models.Strategy{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	var item models.Strategy
	err := s.db.WithContext(ctx).Model(&models.Strategy{}).Where("name = ?", name).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListStrategies(ctx context.Context, params repository.ListStrategiesParams) ([]models.Strategy, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Strategy{})
	if params.ActiveOnly {
		query = query.Where("active = ?", true)
	}
	// Priority descending, creation order breaks ties deterministically.
	query = query.Order("priority desc").Order("id asc")
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Strategy
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SetStrategyActive(ctx context.Context, id uint64, active bool) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Update("active", active).Error
}

func (s *Store) UpdateStrategyPriorityTx(ctx context.Context, tx *gorm.DB, id uint64, newPriority int) error {
	if s == nil || s.db == nil || id == 0 {
		return nil
	}
	return s.conn(tx).WithContext(ctx).
		Model(&models.Strategy{}).
		Where("id = ?", id).
		Update("priority", newPriority).Error
}

func (s *Store) InsertPriorityChangeTx(ctx context.Context, tx *gorm.DB, item *models.StrategyPriorityChange) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) ListPriorityChanges(ctx context.Context, strategyID uint64) ([]models.StrategyPriorityChange, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.StrategyPriorityChange
	if err := s.db.WithContext(ctx).
		Model(&models.StrategyPriorityChange{}).
		Where("strategy_id = ?", strategyID).
		Order("effective_from asc").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LastPriorityChangeBefore(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.StrategyPriorityChange
	err := s.db.WithContext(ctx).
		Model(&models.StrategyPriorityChange{}).
		Where("strategy_id = ?", strategyID).
		Where("effective_from <= ?", at).
		Order("effective_from desc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FirstPriorityChangeAfter(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.StrategyPriorityChange
	err := s.db.WithContext(ctx).
		Model(&models.StrategyPriorityChange{}).
		Where("strategy_id = ?", strategyID).
		Where("effective_from > ?", at).
		Order("effective_from asc").
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Position ownership ------------------------------------------------------

func (s *Store) GetExclusiveOwnership(ctx context.Context, symbol string) (*models.PositionOwnership, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, nil
	}
	var item models.PositionOwnership
	err := s.db.WithContext(ctx).
		Model(&models.PositionOwnership{}).
		Where("symbol = ?", symbol).
		Where("kind = ?", models.OwnershipExclusive).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOwnerships(ctx context.Context, params repository.ListOwnershipsParams) ([]models.PositionOwnership, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.PositionOwnership{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.StrategyID != nil && *params.StrategyID != 0 {
		query = query.Where("strategy_id = ?", *params.StrategyID)
	}
	if params.Kind != nil && strings.TrimSpace(*params.Kind) != "" {
		query = query.Where("kind = ?", strings.TrimSpace(*params.Kind))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.PositionOwnership
	if err := query.Order("symbol asc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CreateOwnership(ctx context.Context, item *models.PositionOwnership) error {
	return s.CreateOwnershipTx(ctx, nil, item)
}

func (s *Store) CreateOwnershipTx(ctx context.Context, tx *gorm.DB, item *models.PositionOwnership) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Create(item).Error
}

// ReplaceExclusiveOwnerTx rewrites the owner in place, guarded by the version
// read before the decision. Zero affected rows means another writer got there
// first and the caller must re-arbitrate from a fresh read.
func (s *Store) ReplaceExclusiveOwnerTx(ctx context.Context, tx *gorm.DB, symbol string, fromStrategyID, toStrategyID, version uint64, reasoning string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.conn(tx).WithContext(ctx).
		Model(&models.PositionOwnership{}).
		Where("symbol = ?", symbol).
		Where("kind = ?", models.OwnershipExclusive).
		Where("strategy_id = ?", fromStrategyID).
		Where("version = ?", version).
		Updates(map[string]any{
			"strategy_id":  toStrategyID,
			"reasoning":    reasoning,
			"locked_until": nil,
			"version":      gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

func (s *Store) DeleteExclusiveOwnership(ctx context.Context, symbol string, strategyID uint64) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Where("kind = ?", models.OwnershipExclusive).
		Where("strategy_id = ?", strategyID).
		Delete(&models.PositionOwnership{})
	return res.RowsAffected, res.Error
}

func (s *Store) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	res := s.db.WithContext(ctx).
		Model(&models.PositionOwnership{}).
		Where("locked_until IS NOT NULL").
		Where("locked_until <= ?", now).
		Update("locked_until", nil)
	return res.RowsAffected, res.Error
}

func (s *Store) InsertOwnershipSnapshots(ctx context.Context, items []models.OwnershipSnapshot) error {
	if s == nil || s.db == nil || len(items) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(items, 200).Error
}

// --- Conflict audit log ------------------------------------------------------

func (s *Store) InsertConflictLog(ctx context.Context, item *models.ConflictLogEntry) error {
	return s.InsertConflictLogTx(ctx, nil, item)
}

func (s *Store) InsertConflictLogTx(ctx context.Context, tx *gorm.DB, item *models.ConflictLogEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(tx).WithContext(ctx).Create(item).Error
}

func (s *Store) GetConflictLogByID(ctx context.Context, id uint64) (*models.ConflictLogEntry, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.ConflictLogEntry
	err := s.db.WithContext(ctx).Model(&models.ConflictLogEntry{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func conflictLogQuery(query *gorm.DB, params repository.ListConflictLogsParams) *gorm.DB {
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.StrategyID != nil && *params.StrategyID != 0 {
		query = query.Where(
			"requesting_strategy_id = ? OR owning_strategy_id = ?",
			*params.StrategyID, *params.StrategyID,
		)
	}
	if params.Resolution != nil && strings.TrimSpace(*params.Resolution) != "" {
		query = query.Where("resolution = ?", strings.TrimSpace(*params.Resolution))
	}
	if params.Since != nil && !params.Since.IsZero() {
		query = query.Where("created_at >= ?", *params.Since)
	}
	if params.Until != nil && !params.Until.IsZero() {
		query = query.Where("created_at < ?", *params.Until)
	}
	return query
}

func (s *Store) ListConflictLogs(ctx context.Context, params repository.ListConflictLogsParams) ([]models.ConflictLogEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := conflictLogQuery(s.db.WithContext(ctx).Model(&models.ConflictLogEntry{}), params)
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.ConflictLogEntry
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountConflictLogs(ctx context.Context, params repository.ListConflictLogsParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := conflictLogQuery(s.db.WithContext(ctx).Model(&models.ConflictLogEntry{}), params)
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// --- Orders ------------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, item *models.Order) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	if s == nil || s.db == nil || id == 0 {
		return nil, nil
	}
	var item models.Order
	err := s.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListOrders(ctx context.Context, params repository.ListOrdersParams) ([]models.Order, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Order{})
	if params.Symbol != nil && strings.TrimSpace(*params.Symbol) != "" {
		query = query.Where("symbol = ?", strings.TrimSpace(*params.Symbol))
	}
	if params.StrategyID != nil && *params.StrategyID != 0 {
		query = query.Where("strategy_id = ?", *params.StrategyID)
	}
	if params.State != nil && strings.TrimSpace(*params.State) != "" {
		query = query.Where("state = ?", strings.TrimSpace(*params.State))
	}
	limit := normalizeLimit(params.Limit, 200)
	offset := normalizeOffset(params.Offset)
	var items []models.Order
	if err := query.Order("created_at desc").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) SaveOrder(ctx context.Context, item *models.Order) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Save(item).Error
}

// --- Helpers -----------------------------------------------------------------

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
