package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, profile *Profile) error
	Update(ctx context.Context, db *gorm.DB, profile *Profile) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Profile, error)
	List(ctx context.Context, db *gorm.DB, activeOnly bool) ([]Profile, error)
	UpdateToken(ctx context.Context, db *gorm.DB, id snowflake.ID, token string, at time.Time) error
	UpdateLastSync(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
