package ownership

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arbiter/internal/models"
	"arbiter/internal/repository"
)

// Store is the only writer of position ownership rows. Every mutation goes
// through acquire/replace/release; no other component touches the table.
type Store struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (s *Store) ExclusiveOwner(ctx context.Context, symbol string) (*models.PositionOwnership, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.GetExclusiveOwnership(ctx, symbol)
}

// IsLocked reports whether the symbol's exclusive record carries a lock
// deadline after at.
func (s *Store) IsLocked(ctx context.Context, symbol string, at time.Time) (bool, error) {
	rec, err := s.ExclusiveOwner(ctx, symbol)
	if err != nil {
		return false, err
	}
	return Locked(rec, at), nil
}

// Locked is the lock predicate on an already-loaded record.
func Locked(rec *models.PositionOwnership, at time.Time) bool {
	return rec != nil && rec.LockedUntil != nil && rec.LockedUntil.After(at)
}

// AcquireExclusive inserts the exclusive record for an unowned symbol.
// The partial unique index turns insert races into ErrAlreadyOwned.
func (s *Store) AcquireExclusive(ctx context.Context, symbol string, strategyID uint64, reasoning string, lockedUntil *time.Time) (*models.PositionOwnership, error) {
	return s.acquire(ctx, nil, symbol, strategyID, models.OwnershipExclusive, reasoning, lockedUntil)
}

// AcquireExclusiveTx is AcquireExclusive inside an existing transaction, used
// by the arbitration commit so the acquire and its audit entry are one unit.
func (s *Store) AcquireExclusiveTx(ctx context.Context, tx *gorm.DB, symbol string, strategyID uint64, reasoning string, lockedUntil *time.Time) (*models.PositionOwnership, error) {
	return s.acquire(ctx, tx, symbol, strategyID, models.OwnershipExclusive, reasoning, lockedUntil)
}

// AcquireShared adds a shared claim. Shared records coexist freely and never
// gate other strategies.
func (s *Store) AcquireShared(ctx context.Context, symbol string, strategyID uint64, reasoning string) (*models.PositionOwnership, error) {
	return s.acquire(ctx, nil, symbol, strategyID, models.OwnershipShared, reasoning, nil)
}

func (s *Store) acquire(ctx context.Context, tx *gorm.DB, symbol string, strategyID uint64, kind, reasoning string, lockedUntil *time.Time) (*models.PositionOwnership, error) {
	if s == nil || s.Repo == nil {
		return nil, errors.New("ownership store not configured")
	}
	symbol = strings.TrimSpace(symbol)
	if symbol == "" || strategyID == 0 {
		return nil, errors.New("symbol and strategy required")
	}
	if strings.TrimSpace(reasoning) == "" {
		return nil, errors.New("reasoning required")
	}
	rec := &models.PositionOwnership{
		Symbol:      symbol,
		StrategyID:  strategyID,
		Kind:        kind,
		LockedUntil: lockedUntil,
		Reasoning:   reasoning,
		Version:     1,
	}
	err := s.Repo.CreateOwnershipTx(ctx, tx, rec)
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, ErrAlreadyOwned
	}
	if err != nil {
		return nil, err
	}
	if s.Logger != nil {
		s.Logger.Info("ownership acquired",
			zap.String("symbol", symbol),
			zap.Uint64("strategy_id", strategyID),
			zap.String("kind", kind),
		)
	}
	return rec, nil
}

// Release removes the exclusive claim. The owner check and the delete are a
// single guarded statement, so a stale caller can never remove a row it no
// longer owns.
func (s *Store) Release(ctx context.Context, symbol string, strategyID uint64) error {
	if s == nil || s.Repo == nil {
		return errors.New("ownership store not configured")
	}
	affected, err := s.Repo.DeleteExclusiveOwnership(ctx, symbol, strategyID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotOwner
	}
	if s.Logger != nil {
		s.Logger.Info("ownership released",
			zap.String("symbol", symbol),
			zap.Uint64("strategy_id", strategyID),
		)
	}
	return nil
}

// SweepExpiredLocks clears lock deadlines that have passed. Ownership itself
// is kept; only the contest protection lapses.
func (s *Store) SweepExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	cleared, err := s.Repo.ClearExpiredLocks(ctx, now)
	if err != nil {
		return 0, err
	}
	if cleared > 0 && s.Logger != nil {
		s.Logger.Info("expired locks cleared", zap.Int64("count", cleared))
	}
	return cleared, nil
}

// Snapshot copies current ownership rows into the snapshot table for
// reporting readers.
func (s *Store) Snapshot(ctx context.Context, at time.Time) (int, error) {
	if s == nil || s.Repo == nil {
		return 0, nil
	}
	rows, err := s.Repo.ListOwnerships(ctx, repository.ListOwnershipsParams{Limit: 500})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	items := make([]models.OwnershipSnapshot, 0, len(rows))
	for _, row := range rows {
		items = append(items, models.OwnershipSnapshot{
			SnapshotAt:  at,
			Symbol:      row.Symbol,
			StrategyID:  row.StrategyID,
			Kind:        row.Kind,
			LockedUntil: row.LockedUntil,
			Reasoning:   row.Reasoning,
		})
	}
	if err := s.Repo.InsertOwnershipSnapshots(ctx, items); err != nil {
		return 0, err
	}
	return len(items), nil
}
