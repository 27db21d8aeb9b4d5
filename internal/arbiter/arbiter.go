package arbiter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"arbiter/internal/bus"
	"arbiter/internal/models"
	"arbiter/internal/ownership"
	"arbiter/internal/registry"
	"arbiter/internal/repository"
)

// Arbiter decides which strategy may act on a symbol. A committed call is one
// transactional unit of decision + ownership mutation + audit entry; events
// go out afterwards on the decoupled bus. Optimistic concurrency failures
// restart the whole arbitration from a fresh read, bounded by MaxAttempts.
type Arbiter struct {
	Registry  *registry.Registry
	Ownership *ownership.Store
	Transfer  *ownership.Transfer
	Repo      repository.Repository
	Bus       *bus.Bus
	Logger    *zap.Logger

	MaxAttempts int
}

// DryRun performs the decision without any mutation, audit entry, or event.
func (a *Arbiter) DryRun(ctx context.Context, req Request) (Resolution, error) {
	return a.arbitrate(ctx, req, false)
}

// Arbitrate performs the full decision, durably records it, and publishes
// the matching events.
func (a *Arbiter) Arbitrate(ctx context.Context, req Request) (Resolution, error) {
	return a.arbitrate(ctx, req, true)
}

func (a *Arbiter) arbitrate(ctx context.Context, req Request, commit bool) (Resolution, error) {
	if a == nil || a.Registry == nil || a.Ownership == nil || a.Repo == nil {
		return Resolution{}, errors.New("arbiter not configured")
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" || req.StrategyID == 0 {
		return Resolution{}, errors.New("symbol and strategy required")
	}
	if req.Action == "" {
		req.Action = "unspecified"
	}

	attempts := a.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := a.attempt(ctx, req, commit)
		if errors.Is(err, ownership.ErrConflictRetry) || errors.Is(err, ownership.ErrAlreadyOwned) {
			if a.Logger != nil {
				a.Logger.Debug("arbitration retrying after concurrent write",
					zap.String("symbol", req.Symbol),
					zap.Uint64("strategy_id", req.StrategyID),
					zap.Int("attempt", attempt),
				)
			}
			continue
		}
		return res, err
	}
	return Resolution{}, fmt.Errorf("arbitration for %s: %w", req.Symbol, ownership.ErrConflictRetry)
}

func (a *Arbiter) attempt(ctx context.Context, req Request, commit bool) (Resolution, error) {
	if ctx.Err() != nil {
		return Resolution{}, ctx.Err()
	}
	now := time.Now().UTC()

	owner, err := a.Ownership.ExclusiveOwner(ctx, req.Symbol)
	if err != nil {
		// Store unavailability fails the call outward: no decision can be
		// safely recorded at all.
		return Resolution{}, err
	}

	// Fail-closed identity checks: an id the registry cannot resolve blocks
	// the request, it never slips through as allowed.
	requester, err := a.Registry.Get(ctx, req.StrategyID)
	if errors.Is(err, registry.ErrStrategyNotFound) {
		return a.failClosed(ctx, req, owner, commit,
			fmt.Sprintf("blocked: unknown requesting strategy id=%d", req.StrategyID))
	}
	if err != nil {
		return Resolution{}, err
	}

	ownerPriority := 0
	if owner != nil {
		ownerStrategy, err := a.Registry.Get(ctx, owner.StrategyID)
		if errors.Is(err, registry.ErrStrategyNotFound) {
			return a.failClosed(ctx, req, owner, commit,
				fmt.Sprintf("blocked: unknown owning strategy id=%d", owner.StrategyID))
		}
		if err != nil {
			return Resolution{}, err
		}
		ownerPriority = ownerStrategy.Priority
	}

	res := Decide(req, owner, requester.Priority, ownerPriority, now)
	if !commit {
		return res, nil
	}
	return a.apply(ctx, req, owner, res)
}

// apply durably records the decision. Exactly one audit entry per committed
// arbitration, on every path.
func (a *Arbiter) apply(ctx context.Context, req Request, owner *models.PositionOwnership, res Resolution) (Resolution, error) {
	if ctx.Err() != nil {
		return Resolution{}, ctx.Err()
	}
	entry := a.entry(req, owner, res)

	switch res.Outcome {
	case OutcomeAllowed:
		if owner == nil {
			err := a.Repo.InTx(ctx, func(tx *gorm.DB) error {
				if _, err := a.Ownership.AcquireExclusiveTx(ctx, tx, req.Symbol, req.StrategyID, res.Reasoning, nil); err != nil {
					return err
				}
				return a.Repo.InsertConflictLogTx(ctx, tx, entry)
			})
			if err != nil {
				return Resolution{}, err
			}
			a.publish(bus.EventOwnershipAcquired, req, owner, res)
		} else {
			// Self-action: no ownership mutation, audit only.
			if err := a.Repo.InsertConflictLog(ctx, entry); err != nil {
				return Resolution{}, err
			}
		}
		return res, nil

	case OutcomeBlocked:
		if err := a.Repo.InsertConflictLog(ctx, entry); err != nil {
			return Resolution{}, err
		}
		if owner != nil {
			a.publish(bus.EventConflictDetected, req, owner, res)
		}
		a.publish(bus.EventOrderBlocked, req, owner, res)
		return res, nil

	case OutcomeOverride:
		if a.Transfer == nil {
			return Resolution{}, errors.New("transfer service not configured")
		}
		if err := a.Transfer.Execute(ctx, owner, req.StrategyID, res.Reasoning, entry); err != nil {
			return Resolution{}, err
		}
		a.publish(bus.EventConflictDetected, req, owner, res)
		a.publish(bus.EventPriorityOverride, req, owner, res)
		return res, nil

	default:
		return Resolution{}, fmt.Errorf("unhandled outcome %q", res.Outcome)
	}
}

// failClosed records an unresolvable identity as a blocked decision.
func (a *Arbiter) failClosed(ctx context.Context, req Request, owner *models.PositionOwnership, commit bool, reasoning string) (Resolution, error) {
	res := Resolution{Outcome: OutcomeBlocked, Reasoning: reasoning}
	if !commit {
		return res, nil
	}
	if ctx.Err() != nil {
		return Resolution{}, ctx.Err()
	}
	if err := a.Repo.InsertConflictLog(ctx, a.entry(req, owner, res)); err != nil {
		return Resolution{}, err
	}
	if a.Logger != nil {
		a.Logger.Warn("arbitration failed closed",
			zap.String("symbol", req.Symbol),
			zap.Uint64("strategy_id", req.StrategyID),
			zap.String("reasoning", reasoning),
		)
	}
	a.publish(bus.EventOrderBlocked, req, owner, res)
	return res, nil
}

func (a *Arbiter) entry(req Request, owner *models.PositionOwnership, res Resolution) *models.ConflictLogEntry {
	entry := &models.ConflictLogEntry{
		Symbol:               req.Symbol,
		RequestingStrategyID: req.StrategyID,
		Action:               req.Action,
		Resolution:           string(res.Outcome),
		Reasoning:            res.Reasoning,
	}
	if owner != nil {
		id := owner.StrategyID
		entry.OwningStrategyID = &id
	}
	return entry
}

func (a *Arbiter) publish(t bus.EventType, req Request, owner *models.PositionOwnership, res Resolution) {
	if a.Bus == nil {
		return
	}
	ev := bus.Event{
		Type:                 t,
		Symbol:               req.Symbol,
		RequestingStrategyID: req.StrategyID,
		Resolution:           string(res.Outcome),
		Reasoning:            res.Reasoning,
		At:                   time.Now().UTC(),
	}
	if owner != nil {
		id := owner.StrategyID
		ev.OwningStrategyID = &id
	}
	a.Bus.Publish(ev)
}
