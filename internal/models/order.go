package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order states. The arbitration gate owns the validating step; sent and the
// fill states are driven by the execution collaborator's callbacks.
const (
	OrderStateSignalReceived  = "signal_received"
	OrderStateValidating      = "validating"
	OrderStateRejected        = "rejected"
	OrderStatePending         = "pending"
	OrderStateSent            = "sent"
	OrderStatePartiallyFilled = "partially_filled"
	OrderStateFullyFilled     = "fully_filled"
	OrderStateFailed          = "failed"
)

type Order struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"type:varchar(30);not null;index"`
	StrategyID uint64 `gorm:"not null;index"`

	Action string `gorm:"type:varchar(20);not null"`

	Price          decimal.Decimal `gorm:"type:numeric(20,10);not null;default:0"`
	Quantity       decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`
	FilledQuantity decimal.Decimal `gorm:"type:numeric(30,10);not null;default:0"`

	State string `gorm:"type:varchar(20);not null;default:'signal_received';index"`

	// RejectionReason carries the arbitration reasoning verbatim when the
	// validating step blocks the order.
	RejectionReason string `gorm:"type:text"`

	ValidatedAt *time.Time `gorm:"type:timestamptz"`
	SentAt      *time.Time `gorm:"type:timestamptz"`
	ClosedAt    *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Order) TableName() string {
	return "orders"
}
