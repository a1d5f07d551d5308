package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/appuser/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const userColumns = `id, username, display_name, password_hash, role, is_active, must_change_password,
	last_login_at, created_by, updated_by, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, user *domain.AppUser) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO app_users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Username,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.MustChangePassword,
		user.LastLoginAt,
		user.CreatedBy,
		user.UpdatedBy,
		user.CreatedAt,
		user.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, user *domain.AppUser) error {
	return db.WithContext(ctx).Exec(
		`UPDATE app_users SET display_name = ?, password_hash = ?, role = ?, is_active = ?,
		 must_change_password = ?, updated_by = ?, updated_at = ?
		 WHERE id = ?`,
		user.DisplayName,
		user.PasswordHash,
		user.Role,
		user.IsActive,
		user.MustChangePassword,
		user.UpdatedBy,
		user.UpdatedAt,
		user.ID,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(`DELETE FROM app_users WHERE id = ?`, id).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.AppUser, error) {
	return r.findOne(ctx, db, `id = ?`, id)
}

// FindByUsername matches case-insensitively.
func (r *repo) FindByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.AppUser, error) {
	return r.findOne(ctx, db, `LOWER(username) = ?`, strings.ToLower(strings.TrimSpace(username)))
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, where string, arg interface{}) (*domain.AppUser, error) {
	var user domain.AppUser
	err := db.WithContext(ctx).Raw(
		`SELECT `+userColumns+` FROM app_users WHERE `+where+` LIMIT 1`,
		arg,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB) ([]domain.AppUser, error) {
	var users []domain.AppUser
	err := db.WithContext(ctx).Raw(
		`SELECT ` + userColumns + ` FROM app_users ORDER BY username ASC`,
	).Scan(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repo) CountActiveAdmins(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM app_users WHERE role = ? AND is_active = ?`,
		domain.RoleAdmin,
		true,
	).Scan(&count).Error
	return count, err
}

func (r *repo) UpdateLastLogin(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE app_users SET last_login_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(),
		at.UTC(),
		id,
	).Error
}
