package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"arbiter/internal/models"
)

type ListStrategiesParams struct {
	ActiveOnly bool
	Limit      int
	Offset     int
}

type ListOwnershipsParams struct {
	Symbol     *string
	StrategyID *uint64
	Kind       *string
	Limit      int
	Offset     int
}

type ListConflictLogsParams struct {
	Symbol     *string
	StrategyID *uint64
	Resolution *string
	Since      *time.Time
	Until      *time.Time
	Limit      int
	Offset     int
}

type ListOrdersParams struct {
	Symbol     *string
	StrategyID *uint64
	State      *string
	Limit      int
	Offset     int
}

// Repository is the durable store behind the arbitration engine. Tx variants
// exist for the writes that must share a transaction: an ownership mutation
// and its audit entry either both persist or neither does.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Strategies and the append-only priority history.
	CreateStrategy(ctx context.Context, item *models.Strategy) error
	GetStrategyByID(ctx context.Context, id uint64) (*models.Strategy, error)
	GetStrategyByName(ctx context.Context, name string) (*models.Strategy, error)
	ListStrategies(ctx context.Context, params ListStrategiesParams) ([]models.Strategy, error)
	SetStrategyActive(ctx context.Context, id uint64, active bool) error
	UpdateStrategyPriorityTx(ctx context.Context, tx *gorm.DB, id uint64, newPriority int) error
	InsertPriorityChangeTx(ctx context.Context, tx *gorm.DB, item *models.StrategyPriorityChange) error
	ListPriorityChanges(ctx context.Context, strategyID uint64) ([]models.StrategyPriorityChange, error)
	LastPriorityChangeBefore(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error)
	FirstPriorityChangeAfter(ctx context.Context, strategyID uint64, at time.Time) (*models.StrategyPriorityChange, error)

	// Position ownership. ReplaceExclusiveOwnerTx is the optimistic
	// compare-and-swap: zero affected rows means the guard tripped.
	GetExclusiveOwnership(ctx context.Context, symbol string) (*models.PositionOwnership, error)
	ListOwnerships(ctx context.Context, params ListOwnershipsParams) ([]models.PositionOwnership, error)
	CreateOwnership(ctx context.Context, item *models.PositionOwnership) error
	CreateOwnershipTx(ctx context.Context, tx *gorm.DB, item *models.PositionOwnership) error
	ReplaceExclusiveOwnerTx(ctx context.Context, tx *gorm.DB, symbol string, fromStrategyID, toStrategyID, version uint64, reasoning string) (int64, error)
	DeleteExclusiveOwnership(ctx context.Context, symbol string, strategyID uint64) (int64, error)
	ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error)
	InsertOwnershipSnapshots(ctx context.Context, items []models.OwnershipSnapshot) error

	// Conflict audit log (append-only).
	InsertConflictLog(ctx context.Context, item *models.ConflictLogEntry) error
	InsertConflictLogTx(ctx context.Context, tx *gorm.DB, item *models.ConflictLogEntry) error
	GetConflictLogByID(ctx context.Context, id uint64) (*models.ConflictLogEntry, error)
	ListConflictLogs(ctx context.Context, params ListConflictLogsParams) ([]models.ConflictLogEntry, error)
	CountConflictLogs(ctx context.Context, params ListConflictLogsParams) (int64, error)

	// Orders.
	CreateOrder(ctx context.Context, item *models.Order) error
	GetOrderByID(ctx context.Context, id uint64) (*models.Order, error)
	ListOrders(ctx context.Context, params ListOrdersParams) ([]models.Order, error)
	SaveOrder(ctx context.Context, item *models.Order) error
}
