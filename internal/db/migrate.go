package db

import (
	"arbiter/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	if err := db.Gorm.AutoMigrate(
		&models.Strategy{},
		&models.StrategyPriorityChange{},
		&models.PositionOwnership{},
		&models.ConflictLogEntry{},
		&models.Order{},
		&models.OwnershipSnapshot{},
	); err != nil {
		return err
	}

	// Single-exclusive-owner invariant: shared rows may repeat per symbol,
	// exclusive rows may not. Partial indexes are not expressible in gorm
	// struct tags, so create it directly.
	return db.Gorm.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_exclusive_owner_per_symbol
		 ON position_ownerships (symbol) WHERE kind = 'exclusive'`,
	).Error
}
