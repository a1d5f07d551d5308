package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/profile/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const profileColumns = `id, name, provider_type, is_active, last_sync, pos_user_id, pos_cashbox_id,
	manual_token, login_email, login_phone, login_password, totp_secret, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO profiles (`+profileColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.ID,
		profile.Name,
		profile.ProviderType,
		profile.IsActive,
		profile.LastSync,
		profile.PosUserID,
		profile.PosCashboxID,
		profile.ManualToken,
		profile.LoginEmail,
		profile.LoginPhone,
		profile.LoginPassword,
		profile.TotpSecret,
		profile.CreatedAt,
		profile.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, profile *domain.Profile) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET name = ?, provider_type = ?, is_active = ?, pos_user_id = ?, pos_cashbox_id = ?,
		 manual_token = ?, login_email = ?, login_phone = ?, login_password = ?, totp_secret = ?, updated_at = ?
		 WHERE id = ?`,
		profile.Name,
		profile.ProviderType,
		profile.IsActive,
		profile.PosUserID,
		profile.PosCashboxID,
		profile.ManualToken,
		profile.LoginEmail,
		profile.LoginPhone,
		profile.LoginPassword,
		profile.TotpSecret,
		profile.UpdatedAt,
		profile.ID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Profile, error) {
	var profile domain.Profile
	err := db.WithContext(ctx).Raw(
		`SELECT `+profileColumns+` FROM profiles WHERE id = ?`,
		id,
	).Scan(&profile).Error
	if err != nil {
		return nil, err
	}
	if profile.ID == 0 {
		return nil, nil
	}
	return &profile, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]domain.Profile, error) {
	var profiles []domain.Profile
	stmt := db.WithContext(ctx).Model(&domain.Profile{})
	if activeOnly {
		stmt = stmt.Where("is_active = ?", true)
	}
	if err := stmt.Order("id asc").Find(&profiles).Error; err != nil {
		return nil, err
	}
	return profiles, nil
}

func (r *repo) UpdateToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET manual_token = ?, last_sync = ?, updated_at = ? WHERE id = ?`,
		token,
		at,
		at,
		id,
	).Error
}

func (r *repo) UpdateLastSync(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE profiles SET last_sync = ? WHERE id = ?`,
		at,
		id,
	).Error
}
