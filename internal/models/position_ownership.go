package models

import (
	"time"
)

const (
	OwnershipExclusive = "exclusive"
	OwnershipShared    = "shared"
)

// PositionOwnership is the claim a strategy holds on a symbol. At most one
// exclusive row may exist per symbol; a partial unique index added during
// migration enforces that at the database level. Version is the optimistic
// concurrency guard bumped on every owner replacement.
type PositionOwnership struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol     string `gorm:"type:varchar(30);not null;index"`
	StrategyID uint64 `gorm:"not null;index"`

	Kind string `gorm:"type:varchar(10);not null;default:'exclusive'"`

	LockedUntil *time.Time `gorm:"type:timestamptz"`
	Reasoning   string     `gorm:"type:text;not null"`

	Version uint64 `gorm:"not null;default:1"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (PositionOwnership) TableName() string {
	return "position_ownerships"
}

// OwnershipSnapshot is a daily point-in-time copy of an ownership row,
// written by the snapshot cron job for reporting readers.
type OwnershipSnapshot struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	SnapshotAt time.Time `gorm:"type:timestamptz;not null;index"`

	Symbol      string     `gorm:"type:varchar(30);not null;index"`
	StrategyID  uint64     `gorm:"not null;index"`
	Kind        string     `gorm:"type:varchar(10);not null"`
	LockedUntil *time.Time `gorm:"type:timestamptz"`
	Reasoning   string     `gorm:"type:text"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (OwnershipSnapshot) TableName() string {
	return "ownership_snapshots"
}
