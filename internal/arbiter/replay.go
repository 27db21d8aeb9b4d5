package arbiter

import (
	"context"
	"errors"
	"fmt"

	"arbiter/internal/models"
	"arbiter/internal/registry"
)

var ErrEntryNotFound = errors.New("conflict log entry not found")

// Replay recomputes what the priority comparison looked like when a past
// entry was written, using the priority history. Lock state is not part of
// the history, so lock-blocked entries replay on priority alone; the stored
// reasoning remains the authoritative record of why the call resolved as it
// did.
type Replay struct {
	Entry             models.ConflictLogEntry `json:"entry"`
	RequesterPriority int                     `json:"requester_priority_at"`
	OwnerPriority     *int                    `json:"owner_priority_at,omitempty"`
	RecomputedOutcome Outcome                 `json:"recomputed_outcome"`
}

func (a *Arbiter) ReplayEntry(ctx context.Context, entryID uint64) (*Replay, error) {
	if a == nil || a.Repo == nil || a.Registry == nil {
		return nil, errors.New("arbiter not configured")
	}
	entry, err := a.Repo.GetConflictLogByID(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrEntryNotFound
	}

	out := &Replay{Entry: *entry}

	reqPriority, err := a.Registry.PriorityAt(ctx, entry.RequestingStrategyID, entry.CreatedAt)
	if errors.Is(err, registry.ErrStrategyNotFound) {
		out.RecomputedOutcome = OutcomeBlocked
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	out.RequesterPriority = reqPriority

	if entry.OwningStrategyID == nil {
		out.RecomputedOutcome = OutcomeAllowed
		return out, nil
	}
	if *entry.OwningStrategyID == entry.RequestingStrategyID {
		out.RecomputedOutcome = OutcomeAllowed
		return out, nil
	}

	ownerPriority, err := a.Registry.PriorityAt(ctx, *entry.OwningStrategyID, entry.CreatedAt)
	if errors.Is(err, registry.ErrStrategyNotFound) {
		out.RecomputedOutcome = OutcomeBlocked
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("owner priority at %s: %w", entry.CreatedAt, err)
	}
	out.OwnerPriority = &ownerPriority

	if reqPriority > ownerPriority {
		out.RecomputedOutcome = OutcomeOverride
	} else {
		out.RecomputedOutcome = OutcomeBlocked
	}
	return out, nil
}
