package models

import (
	"time"

	"gorm.io/datatypes"
)

// Persona categories are display/logging labels only; arbitration never
// branches on them.
const (
	PersonaAggressive   = "aggressive"
	PersonaConservative = "conservative"
	PersonaNewsDriven   = "news_driven"
	PersonaTechnical    = "technical"
	PersonaLongTerm     = "long_term"
)

// Strategy is a signal producer identity. Priority ordering decides conflict
// arbitration; equal priorities tie-break by creation order (ascending ID).
type Strategy struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	Name        string `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName string `gorm:"type:varchar(100);not null"`

	PersonaCategory string `gorm:"type:varchar(30);not null;index"`

	Priority int  `gorm:"not null;default:0;index"`
	Active   bool `gorm:"default:false;index"`

	Params datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (Strategy) TableName() string {
	return "strategies"
}

// StrategyPriorityChange is the append-only priority history. Audit entries
// stay interpretable after a priority edit by replaying this table.
type StrategyPriorityChange struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	StrategyID uint64 `gorm:"not null;uniqueIndex:idx_priority_change_effective,priority:1"`

	OldPriority int `gorm:"not null"`
	NewPriority int `gorm:"not null"`

	EffectiveFrom time.Time `gorm:"type:timestamptz;not null;uniqueIndex:idx_priority_change_effective,priority:2"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (StrategyPriorityChange) TableName() string {
	return "strategy_priority_changes"
}
