package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifySyncError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: SyncErrorReasonDeadlineExceeded},
		{name: "panic", err: fmt.Errorf("%w: boom", ErrPanic), want: SyncErrorReasonPanic},
		{name: "unique_gorm", err: gorm.ErrDuplicatedKey, want: SyncErrorReasonUniqueViolation},
		{name: "unique_pg", err: &pgconn.PgError{Code: "23505"}, want: SyncErrorReasonUniqueViolation},
		{name: "db", err: &pgconn.PgError{Code: "55P03"}, want: SyncErrorReasonDB},
		{name: "not_found_is_not_db", err: gorm.ErrRecordNotFound, want: SyncErrorReasonUnknown},
		{name: "unknown", err: errors.New("boom"), want: SyncErrorReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySyncError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSyncMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newSyncMetrics(registry, Config{ServiceName: "posbridge", Environment: "test"})

	m.IncCycle("stb", "ok")
	m.IncCycle("STB", "ok")
	m.AddItems(StageFetch, "new", 3)
	m.AddItems(StageFetch, "new", 0)
	m.IncProfileSkipped(SkipReasonNeedsCredentials)
	m.ObserveStage(StageFetch, "STB", 150*time.Millisecond)

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("STB", "ok")); got != 2 {
		t.Fatalf("expected 2 cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.itemsProcessed.WithLabelValues(StageFetch, "new")); got != 3 {
		t.Fatalf("expected 3 items, got %v", got)
	}
	if got := testutil.ToFloat64(m.profilesSkipped.WithLabelValues(SkipReasonNeedsCredentials)); got != 1 {
		t.Fatalf("expected 1 skip, got %v", got)
	}
	if got := testutil.CollectAndCount(m.stageDuration); got != 1 {
		t.Fatalf("expected 1 histogram series, got %d", got)
	}
}
