package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arbiter/internal/arbiter"
	"arbiter/internal/models"
	"arbiter/internal/repository"
)

var ErrOrderNotFound = errors.New("order not found")

// Signal is the (strategy, symbol, action) tuple a producer submits. How the
// action was decided is outside this component.
type Signal struct {
	Symbol     string          `json:"symbol"`
	StrategyID uint64          `json:"strategy_id"`
	Action     string          `json:"action"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
}

// Gate is the only path an order takes out of validating. Every submission
// routes through arbitration; nothing bypasses it.
type Gate struct {
	Repo    repository.Repository
	Arbiter *arbiter.Arbiter
	Logger  *zap.Logger
}

// Submit persists the signal as an order and runs the validating transition.
// Blocked resolutions reject the order with the arbitration reasoning copied
// verbatim; allowed and override resolutions move it to pending (override
// only lands here after the transfer durably committed). An arbitration
// error leaves the order in validating so the caller can retry; no terminal
// state is assigned without a recorded decision.
func (g *Gate) Submit(ctx context.Context, sig Signal) (*models.Order, error) {
	if g == nil || g.Repo == nil || g.Arbiter == nil {
		return nil, errors.New("order gate not configured")
	}
	sig.Symbol = strings.TrimSpace(sig.Symbol)
	sig.Action = strings.TrimSpace(sig.Action)
	if sig.Symbol == "" || sig.StrategyID == 0 || sig.Action == "" {
		return nil, errors.New("symbol, strategy and action required")
	}

	o := &models.Order{
		Symbol:     sig.Symbol,
		StrategyID: sig.StrategyID,
		Action:     sig.Action,
		Price:      sig.Price,
		Quantity:   sig.Quantity,
		State:      models.OrderStateSignalReceived,
	}
	if err := g.Repo.CreateOrder(ctx, o); err != nil {
		return nil, err
	}
	if err := Transition(o, models.OrderStateValidating); err != nil {
		return nil, err
	}
	if err := g.Repo.SaveOrder(ctx, o); err != nil {
		return nil, err
	}

	res, err := g.Arbiter.Arbitrate(ctx, arbiter.Request{
		Symbol:     sig.Symbol,
		StrategyID: sig.StrategyID,
		Action:     sig.Action,
	})
	if err != nil {
		return o, err
	}

	now := time.Now().UTC()
	switch res.Outcome {
	case arbiter.OutcomeBlocked:
		if err := Transition(o, models.OrderStateRejected); err != nil {
			return o, err
		}
		o.RejectionReason = res.Reasoning
		o.ClosedAt = &now
	case arbiter.OutcomeAllowed, arbiter.OutcomeOverride:
		if err := Transition(o, models.OrderStatePending); err != nil {
			return o, err
		}
		o.ValidatedAt = &now
	default:
		return o, fmt.Errorf("unhandled outcome %q", res.Outcome)
	}
	if err := g.Repo.SaveOrder(ctx, o); err != nil {
		return o, err
	}

	if g.Logger != nil {
		g.Logger.Info("order validated",
			zap.Uint64("order_id", o.ID),
			zap.String("symbol", o.Symbol),
			zap.Uint64("strategy_id", o.StrategyID),
			zap.String("state", o.State),
			zap.String("reasoning", res.Reasoning),
		)
	}
	return o, nil
}

// MarkSent records the execution collaborator picking the order up.
func (g *Gate) MarkSent(ctx context.Context, orderID uint64) (*models.Order, error) {
	return g.advance(ctx, orderID, func(o *models.Order) error {
		if err := Transition(o, models.OrderStateSent); err != nil {
			return err
		}
		now := time.Now().UTC()
		o.SentAt = &now
		return nil
	})
}

// ApplyFill accumulates filled quantity and settles the terminal fill state.
func (g *Gate) ApplyFill(ctx context.Context, orderID uint64, qty decimal.Decimal) (*models.Order, error) {
	if qty.Sign() <= 0 {
		return nil, errors.New("fill quantity must be positive")
	}
	return g.advance(ctx, orderID, func(o *models.Order) error {
		filled := o.FilledQuantity.Add(qty)
		next := models.OrderStatePartiallyFilled
		if filled.Cmp(o.Quantity) >= 0 {
			next = models.OrderStateFullyFilled
		}
		if err := Transition(o, next); err != nil {
			return err
		}
		o.FilledQuantity = filled
		if next == models.OrderStateFullyFilled {
			now := time.Now().UTC()
			o.ClosedAt = &now
		}
		return nil
	})
}

// MarkFailed records a broker-side failure.
func (g *Gate) MarkFailed(ctx context.Context, orderID uint64, reason string) (*models.Order, error) {
	return g.advance(ctx, orderID, func(o *models.Order) error {
		if err := Transition(o, models.OrderStateFailed); err != nil {
			return err
		}
		o.RejectionReason = reason
		now := time.Now().UTC()
		o.ClosedAt = &now
		return nil
	})
}

func (g *Gate) advance(ctx context.Context, orderID uint64, step func(*models.Order) error) (*models.Order, error) {
	if g == nil || g.Repo == nil {
		return nil, errors.New("order gate not configured")
	}
	o, err := g.Repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	if err := step(o); err != nil {
		return o, err
	}
	if err := g.Repo.SaveOrder(ctx, o); err != nil {
		return o, err
	}
	return o, nil
}
