package models

import (
	"time"
)

const (
	ResolutionAllowed  = "allowed"
	ResolutionBlocked  = "blocked"
	ResolutionOverride = "priority_override"
)

// ConflictLogEntry is the append-only arbitration audit record. Every
// committed arbitration writes exactly one row, including trivial
// no-owner allows; rows are never updated or deleted.
type ConflictLogEntry struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(30);not null;index"`

	RequestingStrategyID uint64  `gorm:"not null;index"`
	OwningStrategyID     *uint64 `gorm:"index"`

	// Action is an opaque token (buy/sell/...); the arbiter never interprets it.
	Action string `gorm:"type:varchar(20);not null"`

	Resolution string `gorm:"type:varchar(20);not null;index"`
	Reasoning  string `gorm:"type:text;not null"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (ConflictLogEntry) TableName() string {
	return "conflict_log_entries"
}
