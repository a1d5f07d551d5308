package repository

import (
	"context"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.LogEntry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO log_entries (id, timestamp, level, message, profile_id, operation, exception, correlation_id, attributes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp,
		entry.Level,
		entry.Message,
		entry.ProfileID,
		entry.Operation,
		entry.Exception,
		entry.CorrelationID,
		entry.Attributes,
	).Error
}

// List returns entries newest first.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.LogEntry, error) {
	var entries []domain.LogEntry
	stmt := db.WithContext(ctx).Model(&domain.LogEntry{})
	if filter.Since != nil {
		stmt = stmt.Where("timestamp >= ?", filter.Since.UTC())
	}
	if filter.Until != nil {
		stmt = stmt.Where("timestamp < ?", filter.Until.UTC())
	}
	if filter.Before != nil {
		stmt = stmt.Where("(timestamp < ? OR (timestamp = ? AND id < ?))",
			filter.Before.Timestamp.UTC(), filter.Before.Timestamp.UTC(), filter.Before.ID)
	}
	if filter.ProfileID != "" {
		stmt = stmt.Where("profile_id = ?", filter.ProfileID)
	}
	if filter.Operation != "" {
		stmt = stmt.Where("operation = ?", filter.Operation)
	}
	if filter.Level != "" {
		stmt = stmt.Where("level = ?", filter.Level)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("timestamp desc, id desc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
