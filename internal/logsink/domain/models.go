package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// LogEntry is one persisted operational log line.
type LogEntry struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Timestamp     time.Time         `gorm:"not null;index" json:"timestamp"`
	Level         string            `gorm:"size:8;not null" json:"level"`
	Message       string            `gorm:"not null" json:"message"`
	ProfileID     string            `gorm:"size:64;index" json:"profile_id,omitempty"`
	Operation     string            `gorm:"size:32;index" json:"operation,omitempty"`
	Exception     string            `json:"exception,omitempty"`
	CorrelationID string            `gorm:"size:64" json:"correlation_id,omitempty"`
	Attributes    datatypes.JSONMap `json:"attributes,omitempty"`
}

func (LogEntry) TableName() string { return "log_entries" }

type ListFilter struct {
	Since     *time.Time
	Until     *time.Time
	ProfileID string
	Operation string
	Level     string
	Limit     int
	// Before restricts results to entries strictly older than the cursor.
	Before *Cursor
}

// Cursor is a keyset position in newest-first order.
type Cursor struct {
	Timestamp time.Time
	ID        snowflake.ID
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *LogEntry) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]LogEntry, error)
}

// Writer accepts entries produced by the zap core.
type Writer interface {
	Write(entry LogEntry)
}
