package logsink

import (
	"context"
	"strings"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const maxListLimit = 5000

type ReaderParams struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

// Reader is the read side of the persisted log stream.
type Reader struct {
	db   *gorm.DB
	repo domain.Repository
}

func NewReader(p ReaderParams) *Reader {
	return &Reader{db: p.DB, repo: p.Repo}
}

// List returns at most maxListLimit entries, newest first.
func (r *Reader) List(ctx context.Context, filter domain.ListFilter) ([]domain.LogEntry, error) {
	filter.Level = strings.ToUpper(strings.TrimSpace(filter.Level))
	filter.Operation = strings.ToUpper(strings.TrimSpace(filter.Operation))
	filter.ProfileID = strings.TrimSpace(filter.ProfileID)
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return r.repo.List(ctx, r.db, filter)
}

// Each pages through every entry matching filter, newest first, calling fn
// once per page. filter.Limit sets the page size.
func (r *Reader) Each(ctx context.Context, filter domain.ListFilter, fn func([]domain.LogEntry) error) error {
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	for {
		page, err := r.List(ctx, filter)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < filter.Limit {
			return nil
		}
		last := page[len(page)-1]
		filter.Before = &domain.Cursor{Timestamp: last.Timestamp, ID: last.ID}
	}
}
