package models

import "time"

// SchemaMigration records a versioned migration step that has been applied.
type SchemaMigration struct {
	Version   uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:128;not null"`
	AppliedAt time.Time
}
