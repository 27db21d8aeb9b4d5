package arbiter

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"arbiter/internal/models"
	"arbiter/internal/repository"
)

// stubRepo is a test-only in-memory implementation of the repository methods
// the arbitration path touches. Unused interface methods come from the
// embedded nil Repository and panic if reached. InTx serializes callbacks
// under the store mutex, which stands in for transaction atomicity.
type stubRepo struct {
	repository.Repository

	mu         sync.Mutex
	nextID     uint64
	strategies map[uint64]models.Strategy
	ownerships map[string]*models.PositionOwnership
	logs       []models.ConflictLogEntry
	changes    []models.StrategyPriorityChange
	orders     map[uint64]*models.Order

	// failReplaceOnce simulates losing the optimistic race exactly once.
	failReplaceOnce bool
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		strategies: map[uint64]models.Strategy{},
		ownerships: map[string]*models.PositionOwnership{},
		orders:     map[uint64]*models.Order{},
	}
}

func (s *stubRepo) addStrategy(id uint64, name string, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[id] = models.Strategy{
		ID:       id,
		Name:     name,
		Priority: priority,
		Active:   true,
	}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(nil)
}

func (s *stubRepo) GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.strategies[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (s *stubRepo) GetExclusiveOwnership(ctx context.Context, symbol string) (*models.PositionOwnership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ownerships[symbol]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *stubRepo) CreateOwnershipTx(ctx context.Context, tx *gorm.DB, item *models.PositionOwnership) error {
	// Already under the InTx mutex when tx != nil is emulated; the direct
	// path locks for itself.
	if _, ok := s.ownerships[item.Symbol]; ok && item.Kind == models.OwnershipExclusive {
		return gorm.ErrDuplicatedKey
	}
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now().UTC()
	if item.Kind == models.OwnershipExclusive {
		cp := *item
		s.ownerships[item.Symbol] = &cp
	}
	return nil
}

func (s *stubRepo) ReplaceExclusiveOwnerTx(ctx context.Context, tx *gorm.DB, symbol string, fromStrategyID, toStrategyID, version uint64, reasoning string) (int64, error) {
	if s.failReplaceOnce {
		s.failReplaceOnce = false
		return 0, nil
	}
	rec, ok := s.ownerships[symbol]
	if !ok || rec.StrategyID != fromStrategyID || rec.Version != version {
		return 0, nil
	}
	rec.StrategyID = toStrategyID
	rec.Reasoning = reasoning
	rec.LockedUntil = nil
	rec.Version++
	return 1, nil
}

func (s *stubRepo) DeleteExclusiveOwnership(ctx context.Context, symbol string, strategyID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ownerships[symbol]
	if !ok || rec.StrategyID != strategyID {
		return 0, nil
	}
	delete(s.ownerships, symbol)
	return 1, nil
}

func (s *stubRepo) InsertConflictLog(ctx context.Context, item *models.ConflictLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLog(item)
}

func (s *stubRepo) InsertConflictLogTx(ctx context.Context, tx *gorm.DB, item *models.ConflictLogEntry) error {
	return s.appendLog(item)
}

func (s *stubRepo) appendLog(item *models.ConflictLogEntry) error {
	s.nextID++
	item.ID = s.nextID
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	s.logs = append(s.logs, *item)
	return nil
}

func (s *stubRepo) GetConflictLogByID(ctx context.Context, id uint64) (*models.ConflictLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.logs {
		if item.ID == id {
			cp := item
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *stubRepo) LastPriorityChangeBefore(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out *models.StrategyPriorityChange
	for i := range s.changes {
		c := s.changes[i]
		if c.StrategyID != strategyID || c.EffectiveFrom.After(at) {
			continue
		}
		if out == nil || c.EffectiveFrom.After(out.EffectiveFrom) {
			cp := c
			out = &cp
		}
	}
	return out, nil
}

func (s *stubRepo) FirstPriorityChangeAfter(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out *models.StrategyPriorityChange
	for i := range s.changes {
		c := s.changes[i]
		if c.StrategyID != strategyID || !c.EffectiveFrom.After(at) {
			continue
		}
		if out == nil || c.EffectiveFrom.Before(out.EffectiveFrom) {
			cp := c
			out = &cp
		}
	}
	return out, nil
}

func (s *stubRepo) logCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func (s *stubRepo) owner(symbol string) *models.PositionOwnership {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.ownerships[symbol]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

func (s *stubRepo) setOwner(symbol string, strategyID uint64, lockedUntil *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerships[symbol] = &models.PositionOwnership{
		ID:          9000 + uint64(len(s.ownerships)),
		Symbol:      symbol,
		StrategyID:  strategyID,
		Kind:        models.OwnershipExclusive,
		LockedUntil: lockedUntil,
		Reasoning:   "seeded",
		Version:     1,
		CreatedAt:   time.Now().UTC(),
	}
}
