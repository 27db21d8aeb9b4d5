package order

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"arbiter/internal/arbiter"
	"arbiter/internal/models"
	"arbiter/internal/ownership"
	"arbiter/internal/registry"
	"arbiter/internal/repository"
)

// stubRepo is a test-only in-memory implementation of the order and
// arbitration methods the gate path touches. Unused methods come from the
// embedded nil Repository.
type stubRepo struct {
	repository.Repository

	mu         sync.Mutex
	nextID     uint64
	strategies map[uint64]models.Strategy
	ownerships map[string]*models.PositionOwnership
	orders     map[uint64]*models.Order
	logs       []models.ConflictLogEntry
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		strategies: map[uint64]models.Strategy{},
		ownerships: map[string]*models.PositionOwnership{},
		orders:     map[uint64]*models.Order{},
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
	if _, ok := s.ownerships[item.Symbol]; ok {
		return gorm.ErrDuplicatedKey
	}
	s.nextID++
	item.ID = s.nextID
	cp := *item
	s.ownerships[item.Symbol] = &cp
	return nil
}

func (s *stubRepo) ReplaceExclusiveOwnerTx(ctx context.Context, tx *gorm.DB, symbol string, fromStrategyID, toStrategyID, version uint64, reasoning string) (int64, error) {
	rec, ok := s.ownerships[symbol]
	if !ok || rec.StrategyID != fromStrategyID || rec.Version != version {
		return 0, nil
	}
	rec.StrategyID = toStrategyID
	rec.Version++
	return 1, nil
}

func (s *stubRepo) InsertConflictLog(ctx context.Context, item *models.ConflictLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, *item)
	return nil
}

func (s *stubRepo) InsertConflictLogTx(ctx context.Context, tx *gorm.DB, item *models.ConflictLogEntry) error {
	s.logs = append(s.logs, *item)
	return nil
}

func (s *stubRepo) CreateOrder(ctx context.Context, item *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	item.ID = s.nextID
	item.CreatedAt = time.Now().UTC()
	cp := *item
	s.orders[item.ID] = &cp
	return nil
}

func (s *stubRepo) GetOrderByID(ctx context.Context, id uint64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (s *stubRepo) SaveOrder(ctx context.Context, item *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.orders[item.ID] = &cp
	return nil
}

func newTestGate(repo *stubRepo) *Gate {
	store := &ownership.Store{Repo: repo}
	return &Gate{
		Repo: repo,
		Arbiter: &arbiter.Arbiter{
			Registry:  &registry.Registry{Repo: repo},
			Ownership: store,
			Transfer:  &ownership.Transfer{Repo: repo},
			Repo:      repo,
		},
	}
}

func (s *stubRepo) addStrategy(id uint64, priority int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategies[id] = models.Strategy{ID: id, Name: "s", Priority: priority, Active: true}
}

func (s *stubRepo) setOwner(symbol string, strategyID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ownerships[symbol] = &models.PositionOwnership{
		Symbol:     symbol,
		StrategyID: strategyID,
		Kind:       models.OwnershipExclusive,
		Version:    1,
	}
}

func TestSubmitAllowedMovesToPending(t *testing.T) {
	repo := newStubRepo()
	repo.addStrategy(1, 50)
	g := newTestGate(repo)

	o, err := g.Submit(context.Background(), Signal{
		Symbol:     "AAPL",
		StrategyID: 1,
		Action:     "buy",
		Price:      decimal.NewFromInt(190),
		Quantity:   decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.State != models.OrderStatePending {
		t.Fatalf("state = %q, want %q", o.State, models.OrderStatePending)
	}
	if o.ValidatedAt == nil {
		t.Fatal("validated_at not set")
	}
	if o.RejectionReason != "" {
		t.Fatalf("rejection reason = %q on an allowed order", o.RejectionReason)
	}
}

func TestSubmitBlockedRejectsWithReasoningVerbatim(t *testing.T) {
	repo := newStubRepo()
	repo.addStrategy(1, 50)
	repo.addStrategy(2, 30)
	repo.setOwner("AAPL", 1)
	g := newTestGate(repo)

	o, err := g.Submit(context.Background(), Signal{
		Symbol: "AAPL", StrategyID: 2, Action: "buy",
		Price: decimal.NewFromInt(190), Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.State != models.OrderStateRejected {
		t.Fatalf("state = %q, want %q", o.State, models.OrderStateRejected)
	}
	if o.ClosedAt == nil {
		t.Fatal("closed_at not set on rejection")
	}
	if len(repo.logs) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(repo.logs))
	}
	if o.RejectionReason != repo.logs[0].Reasoning {
		t.Fatalf("rejection reason %q differs from audit reasoning %q", o.RejectionReason, repo.logs[0].Reasoning)
	}
	if !strings.Contains(o.RejectionReason, "30 <= 50") {
		t.Fatalf("rejection reason = %q", o.RejectionReason)
	}
}

func TestSubmitOverrideMovesToPending(t *testing.T) {
	repo := newStubRepo()
	repo.addStrategy(1, 50)
	repo.addStrategy(2, 100)
	repo.setOwner("AAPL", 1)
	g := newTestGate(repo)

	o, err := g.Submit(context.Background(), Signal{
		Symbol: "AAPL", StrategyID: 2, Action: "buy",
		Price: decimal.NewFromInt(190), Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if o.State != models.OrderStatePending {
		t.Fatalf("state = %q, want %q after override", o.State, models.OrderStatePending)
	}
	if repo.ownerships["AAPL"].StrategyID != 2 {
		t.Fatal("ownership not transferred before the order advanced")
	}
}

func TestSubmitValidation(t *testing.T) {
	g := newTestGate(newStubRepo())
	cases := []Signal{
		{Symbol: "", StrategyID: 1, Action: "buy"},
		{Symbol: "AAPL", StrategyID: 0, Action: "buy"},
		{Symbol: "AAPL", StrategyID: 1, Action: "  "},
	}
	for i, sig := range cases {
		if _, err := g.Submit(context.Background(), sig); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestFillAccumulation(t *testing.T) {
	repo := newStubRepo()
	repo.addStrategy(1, 50)
	g := newTestGate(repo)

	o, err := g.Submit(context.Background(), Signal{
		Symbol: "AAPL", StrategyID: 1, Action: "buy",
		Price: decimal.NewFromInt(190), Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := g.MarkSent(context.Background(), o.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}

	got, err := g.ApplyFill(context.Background(), o.ID, decimal.NewFromInt(4))
	if err != nil {
		t.Fatalf("first fill: %v", err)
	}
	if got.State != models.OrderStatePartiallyFilled {
		t.Fatalf("state = %q, want %q", got.State, models.OrderStatePartiallyFilled)
	}
	if !got.FilledQuantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("filled = %s, want 4", got.FilledQuantity)
	}

	got, err = g.ApplyFill(context.Background(), o.ID, decimal.NewFromInt(6))
	if err != nil {
		t.Fatalf("final fill: %v", err)
	}
	if got.State != models.OrderStateFullyFilled {
		t.Fatalf("state = %q, want %q", got.State, models.OrderStateFullyFilled)
	}
	if got.ClosedAt == nil {
		t.Fatal("closed_at not set on full fill")
	}

	if _, err := g.ApplyFill(context.Background(), o.ID, decimal.NewFromInt(1)); err == nil {
		t.Fatal("fill on a terminal order must error")
	}
}

func TestApplyFillRejectsNonPositive(t *testing.T) {
	g := newTestGate(newStubRepo())
	if _, err := g.ApplyFill(context.Background(), 1, decimal.Zero); err == nil {
		t.Fatal("zero fill must error")
	}
	if _, err := g.ApplyFill(context.Background(), 1, decimal.NewFromInt(-3)); err == nil {
		t.Fatal("negative fill must error")
	}
}

func TestMarkFailed(t *testing.T) {
	repo := newStubRepo()
	repo.addStrategy(1, 50)
	g := newTestGate(repo)

	o, err := g.Submit(context.Background(), Signal{
		Symbol: "AAPL", StrategyID: 1, Action: "buy",
		Price: decimal.NewFromInt(190), Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := g.MarkSent(context.Background(), o.ID); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	got, err := g.MarkFailed(context.Background(), o.ID, "broker timeout")
	if err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if got.State != models.OrderStateFailed {
		t.Fatalf("state = %q, want %q", got.State, models.OrderStateFailed)
	}
	if got.RejectionReason != "broker timeout" {
		t.Fatalf("reason = %q", got.RejectionReason)
	}
}

func TestAdvanceUnknownOrder(t *testing.T) {
	g := newTestGate(newStubRepo())
	if _, err := g.MarkSent(context.Background(), 404); err != ErrOrderNotFound {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}
