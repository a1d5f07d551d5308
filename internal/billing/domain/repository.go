package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	InsertEvent(ctx context.Context, db *gorm.DB, event *Event) error
	CountEvents(ctx context.Context, db *gorm.DB, from, to time.Time) (KindCounts, error)
	ListEvents(ctx context.Context, db *gorm.DB, filter EventFilter) ([]Event, error)

	GetTariffs(ctx context.Context, db *gorm.DB) (*Tariffs, error)
	SaveTariffs(ctx context.Context, db *gorm.DB, tariffs *Tariffs) error

	FindPeriodByKey(ctx context.Context, db *gorm.DB, key string) (*Period, error)
	InsertPeriod(ctx context.Context, db *gorm.DB, period *Period) error
	ListPeriods(ctx context.Context, db *gorm.DB) ([]Period, error)
}
