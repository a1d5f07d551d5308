package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, user *AppUser) error
	Update(ctx context.Context, db *gorm.DB, user *AppUser) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*AppUser, error)
	FindByUsername(ctx context.Context, db *gorm.DB, username string) (*AppUser, error)
	List(ctx context.Context, db *gorm.DB) ([]AppUser, error)
	CountActiveAdmins(ctx context.Context, db *gorm.DB) (int64, error)
	UpdateLastLogin(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
