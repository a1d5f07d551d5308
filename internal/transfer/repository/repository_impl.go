package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/transfer/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

var providerColumns = []string{
	"profile_id",
	"reservation_code",
	"occurred_at",
	"sender_name",
	"teller_name",
	"agent_name",
	"sent_amount",
	"fee_amount",
	"extra_amount",
	"pos_amount",
	"currency",
	"agent_id",
	"sender_id_type",
	"sender_id_number",
	"sender_phone",
	"transfer_type",
	"status",
	"nationality",
}

func (r *repo) Exists(ctx context.Context, db *gorm.DB, transactionID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM transfers WHERE transaction_id = ?`,
		transactionID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, transfer *domain.Transfer, now time.Time) error {
	updates := clause.AssignmentColumns(providerColumns)
	updates = append(updates, clause.Assignment{
		Column: clause.Column{Name: "updated_at_utc"},
		Value:  now.UTC(),
	})
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoUpdates: updates,
		}).
		Create(transfer).Error
}

func (r *repo) ListByRange(ctx context.Context, db *gorm.DB, profileID string, rg domain.Range) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	err := db.WithContext(ctx).
		Where("profile_id = ? AND occurred_at >= ? AND occurred_at <= ?", profileID, rg.Start.UTC(), rg.End.UTC()).
		Order("occurred_at desc, transaction_id asc").
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func (r *repo) ListPendingForPos(ctx context.Context, db *gorm.DB, profileID string) ([]domain.Transfer, error) {
	var transfers []domain.Transfer
	err := db.WithContext(ctx).
		Where("profile_id = ? AND is_added_to_pos = ?", profileID, false).
		Order("occurred_at asc, transaction_id asc").
		Find(&transfers).Error
	if err != nil {
		return nil, err
	}
	return transfers, nil
}

func (r *repo) LinkCustomer(ctx context.Context, db *gorm.DB, transactionID string, customerID snowflake.ID, isNew bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transfers SET pos_customer_id = ?, is_new_customer = ?, error_message = NULL, updated_at_utc = ?
		 WHERE transaction_id = ?`,
		customerID,
		isNew,
		now.UTC(),
		transactionID,
	).Error
}

func (r *repo) SetError(ctx context.Context, db *gorm.DB, transactionID string, message string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transfers SET error_message = ?, updated_at_utc = ? WHERE transaction_id = ?`,
		message,
		now.UTC(),
		transactionID,
	).Error
}

func (r *repo) MarkAddedToPos(ctx context.Context, db *gorm.DB, transactionID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE transfers SET is_added_to_pos = ?, error_message = NULL, updated_at_utc = ?
		 WHERE transaction_id = ? AND pos_customer_id IS NOT NULL AND pos_customer_id <> 0`,
		true,
		now.UTC(),
		transactionID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
