package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventConflictDetected     EventType = "CONFLICT_DETECTED"
	EventOrderBlocked         EventType = "ORDER_BLOCKED_BY_CONFLICT"
	EventPriorityOverride     EventType = "PRIORITY_OVERRIDE"
	EventOwnershipAcquired    EventType = "OWNERSHIP_ACQUIRED"
	EventOwnershipTransferred EventType = "OWNERSHIP_TRANSFERRED"
)

// Event is the payload broadcast after an arbitration outcome. It is emitted
// only after the durable write succeeds, never before.
type Event struct {
	Type   EventType `json:"type"`
	Symbol string    `json:"symbol"`

	RequestingStrategyID uint64  `json:"requesting_strategy_id"`
	OwningStrategyID     *uint64 `json:"owning_strategy_id,omitempty"`

	Resolution string    `json:"resolution,omitempty"`
	Reasoning  string    `json:"reasoning"`
	At         time.Time `json:"at"`
}

// Handler consumes one event. A non-nil error triggers the retry policy.
type Handler func(ctx context.Context, ev Event) error

type Config struct {
	SubscriberBuffer int
	RetryAttempts    int
	RetryBaseDelay   time.Duration
	DeliveryCeiling  time.Duration
}

type subscriber struct {
	name    string
	types   map[EventType]struct{}
	ch      chan Event
	handler Handler
}

// Bus fans arbitration events out to subscribers on their own goroutines.
// Publish never blocks and delivery failures never reach the publisher:
// a slow or broken subscriber cannot fail an arbitration decision.
type Bus struct {
	cfg    Config
	logger *zap.Logger

	mu   sync.RWMutex
	subs []*subscriber

	droppedFull    uint64
	droppedRetries uint64
}

func New(cfg Config, logger *zap.Logger) *Bus {
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = 64
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = time.Second
	}
	if cfg.DeliveryCeiling <= 0 {
		cfg.DeliveryCeiling = 30 * time.Second
	}
	return &Bus{cfg: cfg, logger: logger}
}

// Subscribe registers a handler for the given event types (all types when
// none are named) and starts its dispatch goroutine. The returned cancel
// function detaches the subscriber.
func (b *Bus) Subscribe(ctx context.Context, name string, handler Handler, types ...EventType) func() {
	if b == nil || handler == nil {
		return func() {}
	}
	sub := &subscriber{
		name:    name,
		ch:      make(chan Event, b.cfg.SubscriberBuffer),
		handler: handler,
	}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go b.dispatch(ctx, sub)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s == sub {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish hands the event to every matching subscriber queue and returns
// immediately. A full queue drops the event for that subscriber.
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.types != nil {
			if _, ok := sub.types[ev.Type]; !ok {
				continue
			}
		}
		select {
		case sub.ch <- ev:
		default:
			atomic.AddUint64(&b.droppedFull, 1)
			if b.logger != nil {
				b.logger.Warn("event dropped: subscriber queue full",
					zap.String("subscriber", sub.name),
					zap.String("event_type", string(ev.Type)),
					zap.String("symbol", ev.Symbol),
				)
			}
		}
	}
}

// DroppedEvents reports events lost to full queues and retry exhaustion.
func (b *Bus) DroppedEvents() (full, retries uint64) {
	return atomic.LoadUint64(&b.droppedFull), atomic.LoadUint64(&b.droppedRetries)
}

func (b *Bus) dispatch(ctx context.Context, sub *subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sub.ch:
			b.deliver(ctx, sub, ev)
		}
	}
}

// deliver runs the handler with bounded retries: doubling backoff between
// attempts and a hard ceiling on the cumulative delivery time per event.
// Exhaustion is logged and swallowed.
func (b *Bus) deliver(ctx context.Context, sub *subscriber, ev Event) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.DeliveryCeiling)
	defer cancel()

	delay := b.cfg.RetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= b.cfg.RetryAttempts; attempt++ {
		lastErr = sub.handler(ctx, ev)
		if lastErr == nil {
			return
		}
		if attempt == b.cfg.RetryAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(delay):
			delay *= 2
		}
	}
	atomic.AddUint64(&b.droppedRetries, 1)
	if b.logger != nil {
		b.logger.Warn("event delivery failed after retries",
			zap.String("subscriber", sub.name),
			zap.String("event_type", string(ev.Type)),
			zap.String("symbol", ev.Symbol),
			zap.Error(lastErr),
		)
	}
}
