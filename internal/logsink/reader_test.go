package logsink

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/smallbiznis/posbridge/internal/logsink/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderEachPagesNewestFirst(t *testing.T) {
	db := openTestDB(t)
	repo := repository.Provide()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Two entries share a timestamp so the cursor has to break ties by id.
	for i := 1; i <= 5; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		if i == 3 {
			at = base.Add(2 * time.Minute)
		}
		require.NoError(t, repo.Insert(ctx, db, &domain.LogEntry{
			ID:        snowflake.ID(i),
			Timestamp: at,
			Level:     domain.LevelInfo,
			Message:   "entry",
			Operation: "BG",
		}))
	}

	reader := NewReader(ReaderParams{DB: db, Repo: repo})
	var pages [][]snowflake.ID
	err := reader.Each(ctx, domain.ListFilter{Limit: 2}, func(page []domain.LogEntry) error {
		ids := make([]snowflake.ID, 0, len(page))
		for _, e := range page {
			ids = append(ids, e.ID)
		}
		pages = append(pages, ids)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]snowflake.ID{{5, 4}, {3, 2}, {1}}, pages)
}
