package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/posbridge/internal/billing/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_events (id, kind, profile_id, provider, transfer_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.Kind,
		event.ProfileID,
		event.Provider,
		event.TransferID,
		event.OccurredAt,
	).Error
}

func (r *repo) CountEvents(ctx context.Context, db *gorm.DB, from, to time.Time) (domain.KindCounts, error) {
	var rows []struct {
		Kind  domain.EventKind
		Total int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT kind, COUNT(*) AS total
		 FROM billing_events
		 WHERE occurred_at >= ? AND occurred_at < ?
		 GROUP BY kind`,
		from.UTC(),
		to.UTC(),
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := domain.KindCounts{}
	for _, row := range rows {
		counts[row.Kind] = row.Total
	}
	return counts, nil
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, filter domain.EventFilter) ([]domain.Event, error) {
	var events []domain.Event
	stmt := db.WithContext(ctx).Model(&domain.Event{})
	if filter.From != nil {
		stmt = stmt.Where("occurred_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		stmt = stmt.Where("occurred_at < ?", filter.To.UTC())
	}
	if filter.Kind != "" {
		stmt = stmt.Where("kind = ?", filter.Kind)
	}
	if filter.ProfileID != "" {
		stmt = stmt.Where("profile_id = ?", filter.ProfileID)
	}
	if filter.Provider != "" {
		stmt = stmt.Where("provider = ?", filter.Provider)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	if err := stmt.Order("occurred_at desc, id desc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) GetTariffs(ctx context.Context, db *gorm.DB) (*domain.Tariffs, error) {
	var tariffs domain.Tariffs
	err := db.WithContext(ctx).Raw(
		`SELECT id, transfer_price, add_to_pos_price, customer_price, currency, updated_at
		 FROM billing_tariffs ORDER BY id LIMIT 1`,
	).Scan(&tariffs).Error
	if err != nil {
		return nil, err
	}
	if tariffs.ID == 0 {
		return nil, nil
	}
	return &tariffs, nil
}

func (r *repo) SaveTariffs(ctx context.Context, db *gorm.DB, tariffs *domain.Tariffs) error {
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"transfer_price", "add_to_pos_price", "customer_price", "currency", "updated_at"}),
	}).Create(tariffs).Error
}

func (r *repo) FindPeriodByKey(ctx context.Context, db *gorm.DB, key string) (*domain.Period, error) {
	var period domain.Period
	err := db.WithContext(ctx).Raw(
		`SELECT id, period_key, from_utc, to_utc, transfer_count, add_to_pos_count, customer_count, amount, currency, is_closed, created_at
		 FROM billing_periods WHERE period_key = ?`,
		key,
	).Scan(&period).Error
	if err != nil {
		return nil, err
	}
	if period.ID == 0 {
		return nil, nil
	}
	return &period, nil
}

func (r *repo) InsertPeriod(ctx context.Context, db *gorm.DB, period *domain.Period) error {
	return db.WithContext(ctx).Create(period).Error
}

func (r *repo) ListPeriods(ctx context.Context, db *gorm.DB) ([]domain.Period, error) {
	var periods []domain.Period
	err := db.WithContext(ctx).
		Model(&domain.Period{}).
		Order("period_key desc").
		Find(&periods).Error
	if err != nil {
		return nil, err
	}
	return periods, nil
}
