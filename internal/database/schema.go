package database

import (
	"time"

	"gorm.io/datatypes"
)

// SessionLog holds one user's complete prediction history as a single JSON
// array, ordered oldest first. Keeping the log in one row means a reader
// always observes a complete prior or complete new state, never a torn write.
type SessionLog struct {
	UserID    string         `gorm:"primaryKey;size:128"`
	Entries   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}
