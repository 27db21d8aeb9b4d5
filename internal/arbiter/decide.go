package arbiter

import (
	"fmt"
	"time"

	"arbiter/internal/models"
	"arbiter/internal/ownership"
)

// Outcome is the closed set of arbitration results. Consumers switch on it
// exhaustively; there is no open-ended escape hatch.
type Outcome string

const (
	OutcomeAllowed  Outcome = models.ResolutionAllowed
	OutcomeBlocked  Outcome = models.ResolutionBlocked
	OutcomeOverride Outcome = models.ResolutionOverride
)

// Request is one strategy asking to act on a symbol. Action is opaque here;
// the arbiter decides who may act, never what the action means.
type Request struct {
	Symbol     string `json:"symbol"`
	StrategyID uint64 `json:"strategy_id"`
	Action     string `json:"action"`
}

// Resolution carries the outcome with its mandatory reasoning. NewOwnerID is
// set only on override.
type Resolution struct {
	Outcome    Outcome `json:"resolution"`
	Reasoning  string  `json:"reasoning"`
	NewOwnerID *uint64 `json:"new_owner_id,omitempty"`
}

// Decide is the pure arbitration rule. In order: no owner allows, the owner
// always allows itself, an unexpired lock blocks everyone else regardless of
// priority, then strictly higher priority overrides and everything else
// blocks (ties favor the incumbent).
func Decide(req Request, owner *models.PositionOwnership, requesterPriority, ownerPriority int, now time.Time) Resolution {
	if owner == nil {
		return Resolution{
			Outcome:   OutcomeAllowed,
			Reasoning: fmt.Sprintf("allowed: no existing owner for %s", req.Symbol),
		}
	}
	if owner.StrategyID == req.StrategyID {
		return Resolution{
			Outcome:   OutcomeAllowed,
			Reasoning: fmt.Sprintf("allowed: strategy %d already owns %s", req.StrategyID, req.Symbol),
		}
	}
	if ownership.Locked(owner, now) {
		return Resolution{
			Outcome: OutcomeBlocked,
			Reasoning: fmt.Sprintf("blocked: locked_until=%s, owner=%d",
				owner.LockedUntil.UTC().Format(time.RFC3339), owner.StrategyID),
		}
	}
	if requesterPriority > ownerPriority {
		id := req.StrategyID
		return Resolution{
			Outcome:    OutcomeOverride,
			Reasoning:  fmt.Sprintf("priority_override: %d > %d", requesterPriority, ownerPriority),
			NewOwnerID: &id,
		}
	}
	return Resolution{
		Outcome: OutcomeBlocked,
		Reasoning: fmt.Sprintf("blocked: priority %d <= %d, owner=%d, locked_until=none",
			requesterPriority, ownerPriority, owner.StrategyID),
	}
}
