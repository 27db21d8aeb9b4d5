package ownership

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arbiter/internal/bus"
	"arbiter/internal/models"
	"arbiter/internal/repository"
)

// Transfer executes the mutation implied by a priority override: the owner
// field is rewritten in place under the optimistic version guard, and the
// audit entry commits in the same transaction. Under concurrent attempts for
// one symbol exactly one transfer wins; losers get ErrConflictRetry and must
// restart arbitration against the new state.
type Transfer struct {
	Repo   repository.Repository
	Bus    *bus.Bus
	Logger *zap.Logger
}

// Execute replaces the owner read as current (with its version) by the new
// strategy and appends the audit entry atomically. The event goes out only
// after the transaction commits.
func (t *Transfer) Execute(ctx context.Context, current *models.PositionOwnership, toStrategyID uint64, reasoning string, entry *models.ConflictLogEntry) error {
	if t == nil || t.Repo == nil {
		return errors.New("transfer service not configured")
	}
	if current == nil || entry == nil {
		return errors.New("current ownership and audit entry required")
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	err := t.Repo.InTx(ctx, func(tx *gorm.DB) error {
		affected, err := t.Repo.ReplaceExclusiveOwnerTx(
			ctx, tx, current.Symbol, current.StrategyID, toStrategyID, current.Version, reasoning,
		)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrStaleOwner
		}
		return t.Repo.InsertConflictLogTx(ctx, tx, entry)
	})
	if errors.Is(err, ErrStaleOwner) {
		if t.Logger != nil {
			t.Logger.Debug("transfer lost optimistic race",
				zap.String("symbol", current.Symbol),
				zap.Uint64("from_strategy_id", current.StrategyID),
				zap.Uint64("to_strategy_id", toStrategyID),
			)
		}
		return ErrConflictRetry
	}
	if err != nil {
		return err
	}

	if t.Logger != nil {
		t.Logger.Info("ownership transferred",
			zap.String("symbol", current.Symbol),
			zap.Uint64("from_strategy_id", current.StrategyID),
			zap.Uint64("to_strategy_id", toStrategyID),
			zap.String("reasoning", reasoning),
		)
	}
	if t.Bus != nil {
		from := current.StrategyID
		t.Bus.Publish(bus.Event{
			Type:                 bus.EventOwnershipTransferred,
			Symbol:               current.Symbol,
			RequestingStrategyID: toStrategyID,
			OwningStrategyID:     &from,
			Resolution:           models.ResolutionOverride,
			Reasoning:            reasoning,
			At:                   time.Now().UTC(),
		})
	}
	return nil
}
