package registry

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

var ErrStrategyNotFound = errors.New("strategy not found")

// Registry is the durable catalog of strategy identities. Arbitration asks it
// for priorities; the append-only priority history keeps past audit entries
// interpretable after a priority edit.
type Registry struct {
	Repo   repository.Repository
	Logger *zap.Logger
}

func (r *Registry) Get(ctx context.Context, id uint64) (*models.Strategy, error) {
	if r == nil || r.Repo == nil {
		return nil, ErrStrategyNotFound
	}
	item, err := r.Repo.GetStrategyByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStrategyNotFound
	}
	return item, nil
}

func (r *Registry) GetByName(ctx context.Context, name string) (*models.Strategy, error) {
	if r == nil || r.Repo == nil {
		return nil, ErrStrategyNotFound
	}
	item, err := r.Repo.GetStrategyByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrStrategyNotFound
	}
	return item, nil
}

// ListActive returns active strategies ordered by priority descending, ties
// broken by creation order ascending.
func (r *Registry) ListActive(ctx context.Context) ([]models.Strategy, error) {
	if r == nil || r.Repo == nil {
		return nil, nil
	}
	return r.Repo.ListStrategies(ctx, repository.ListStrategiesParams{ActiveOnly: true})
}

func (r *Registry) Create(ctx context.Context, item *models.Strategy) error {
	if r == nil || r.Repo == nil || item == nil {
		return nil
	}
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return errors.New("strategy name required")
	}
	if item.DisplayName == "" {
		item.DisplayName = item.Name
	}
	if err := r.Repo.CreateStrategy(ctx, item); err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("strategy created",
			zap.Uint64("strategy_id", item.ID),
			zap.String("name", item.Name),
			zap.Int("priority", item.Priority),
		)
	}
	return nil
}

// SetActive is idempotent and never rewrites already-resolved conflicts.
func (r *Registry) SetActive(ctx context.Context, id uint64, active bool) error {
	if r == nil || r.Repo == nil {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return r.Repo.SetStrategyActive(ctx, id, active)
}

// UpdatePriority writes the new priority and its history row in one
// transaction, so the history can never silently diverge from the catalog.
func (r *Registry) UpdatePriority(ctx context.Context, id uint64, newPriority int) error {
	if r == nil || r.Repo == nil {
		return nil
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Priority == newPriority {
		return nil
	}
	now := time.Now().UTC()
	err = r.Repo.InTx(ctx, func(tx *gorm.DB) error {
		if err := r.Repo.UpdateStrategyPriorityTx(ctx, tx, id, newPriority); err != nil {
			return err
		}
		return r.Repo.InsertPriorityChangeTx(ctx, tx, &models.StrategyPriorityChange{
			StrategyID:    id,
			OldPriority:   current.Priority,
			NewPriority:   newPriority,
			EffectiveFrom: now,
		})
	})
	if err != nil {
		return err
	}
	if r.Logger != nil {
		r.Logger.Info("strategy priority updated",
			zap.Uint64("strategy_id", id),
			zap.Int("old_priority", current.Priority),
			zap.Int("new_priority", newPriority),
		)
	}
	return nil
}

func (r *Registry) PriorityHistory(ctx context.Context, id uint64) ([]models.StrategyPriorityChange, error) {
	if r == nil || r.Repo == nil {
		return nil, nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return r.Repo.ListPriorityChanges(ctx, id)
}

// PriorityAt reconstructs the priority a strategy had at time t. The last
// change at or before t wins; with only later changes on record, their old
// value applies; with no history at all, the current priority has always held.
func (r *Registry) PriorityAt(ctx context.Context, id uint64, t time.Time) (int, error) {
	if r == nil || r.Repo == nil {
		return 0, ErrStrategyNotFound
	}
	current, err := r.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	before, err := r.Repo.LastPriorityChangeBefore(ctx, id, t)
	if err != nil {
		return 0, err
	}
	if before != nil {
		return before.NewPriority, nil
	}
	after, err := r.Repo.FirstPriorityChangeAfter(ctx, id, t)
	if err != nil {
		return 0, err
	}
	if after != nil {
		return after.OldPriority, nil
	}
	return current.Priority, nil
}
