package synchealth

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	logdomain "github.com/smallbiznis/posbridge/internal/logsink/domain"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type staticLogs struct {
	entries []logdomain.LogEntry
	filter  logdomain.ListFilter
}

// Each hands back entries newest first in a single page.
func (s *staticLogs) Each(ctx context.Context, filter logdomain.ListFilter, fn func([]logdomain.LogEntry) error) error {
	s.filter = filter
	out := make([]logdomain.LogEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
	return fn(out)
}

type staticProfiles []profiledomain.Profile

func (p staticProfiles) List(ctx context.Context) ([]profiledomain.Profile, error) {
	return p, nil
}

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func entry(minutesAgo int, level, op, profileID, msg string) logdomain.LogEntry {
	return logdomain.LogEntry{
		Timestamp: now.Add(-time.Duration(minutesAgo) * time.Minute),
		Level:     level,
		Operation: op,
		ProfileID: profileID,
		Message:   msg,
	}
}

func newService(entries []logdomain.LogEntry, profiles ...profiledomain.Profile) (*Service, *staticLogs) {
	logs := &staticLogs{entries: entries}
	return New(Params{
		Log:      zap.NewNop(),
		Clock:    clock.NewFakeClock(now),
		Settings: config.NewStaticSettings(config.DefaultSettings()),
		Logs:     logs,
		Profiles: staticProfiles(profiles),
	}), logs
}

func TestSnapshotHealthyProfile(t *testing.T) {
	perf := entry(5, logdomain.LevelInfo, "BG/PERF", "1", "BG perf: fetchMs=100; normalizeMs=50; addToPosMs=30; totalMs=180")
	perf.Attributes = map[string]interface{}{"fetchMs": float64(100), "normalizeMs": float64(50), "addToPosMs": float64(30), "totalMs": float64(180)}
	entries := []logdomain.LogEntry{
		entry(8, logdomain.LevelInfo, "BG", "1", "BG cycle started for profile Main"),
		entry(7, logdomain.LevelInfo, "BG/FETCH", "1", "Fetched 3 transfers (1 new)"),
		entry(6, logdomain.LevelInfo, "BG/NORMALIZE", "1", "Normalize finished"),
		entry(6, logdomain.LevelInfo, "BG/ADDPOS", "1", "Add to POS finished"),
		perf,
		entry(4, logdomain.LevelInfo, "BG", "1", "BG cycle started for profile Main"),
		entry(3, logdomain.LevelInfo, "BG/FETCH", "1", "Fetched 0 transfers (0 new)"),
		entry(2, logdomain.LevelInfo, "BG/PERF", "1", "BG perf: fetchMs=200; normalizeMs=70; addToPosMs=10; totalMs=280"),
	}
	svc, logs := newService(entries, profiledomain.Profile{ID: 1, Name: "Main", ProviderType: "STB", IsActive: true})

	got, err := svc.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	h := got[0]

	assert.Equal(t, StatusOK, h.Status)
	assert.Equal(t, "Main", h.Name)
	assert.Equal(t, 2, h.BgCycles)
	assert.Equal(t, 2, h.BgFetchCount)
	assert.Equal(t, 1, h.BgNormalizeCount)
	assert.Equal(t, 1, h.BgAddToPosCount)
	assert.Equal(t, 8, h.InfoCount)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Zero(t, h.FailureRatePercent)
	require.NotNil(t, h.MinutesSinceLastActivity)
	assert.InDelta(t, 2, *h.MinutesSinceLastActivity, 0.001)
	require.NotNil(t, h.MinutesSinceLastFetch)
	assert.InDelta(t, 3, *h.MinutesSinceLastFetch, 0.001)
	require.NotNil(t, h.AvgFetchMs)
	assert.InDelta(t, 150, *h.AvgFetchMs, 0.001)
	assert.InDelta(t, 230, *h.AvgTotalMs, 0.001)

	require.NotNil(t, logs.filter.Since)
	assert.Equal(t, now.Add(-7*24*time.Hour), *logs.filter.Since)
}

func TestSnapshotCountsFailureStreak(t *testing.T) {
	failed := entry(1, logdomain.LevelError, "BG", "1", "BG cycle failed for profile Main")
	failed.Exception = "fetch: provider unavailable"
	entries := []logdomain.LogEntry{
		entry(30, logdomain.LevelInfo, "BG/FETCH", "1", "Fetched"),
		entry(20, logdomain.LevelError, "BG", "1", "BG cycle failed for profile Main"),
		entry(10, logdomain.LevelError, "BG", "1", "BG cycle failed for profile Main"),
		entry(5, logdomain.LevelError, "BG/NORMALIZE", "1", "Normalize failed for transfer T1"),
		failed,
	}
	svc, _ := newService(entries, profiledomain.Profile{ID: 1, Name: "Main"})

	got, err := svc.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	h := got[0]

	assert.Equal(t, StatusError, h.Status)
	assert.Equal(t, 3, h.ConsecutiveFailures)
	assert.Equal(t, 3, h.StageErrors)
	assert.Equal(t, 1, h.NormalizeErrors)
	assert.Equal(t, 4, h.ErrorCount)
	assert.InDelta(t, 75, h.FailureRatePercent, 0.001)
	assert.Equal(t, "fetch: provider unavailable", h.LastErrorMessage)
	require.NotNil(t, h.LastErrorAt)
	assert.Equal(t, now.Add(-time.Minute), *h.LastErrorAt)
}

func TestSnapshotWarnsOnSilenceOrStaleActivity(t *testing.T) {
	entries := []logdomain.LogEntry{
		entry(5*24*60, logdomain.LevelInfo, "BG/FETCH", "2", "Fetched"),
		entry(3, logdomain.LevelInfo, "BG/FETCH", "other", "Fetched"),
	}
	svc, _ := newService(entries,
		profiledomain.Profile{ID: 1, Name: "Silent"},
		profiledomain.Profile{ID: 2, Name: "Stale"},
	)

	got, err := svc.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Silent", got[0].Name)
	assert.Equal(t, StatusWarning, got[0].Status)
	assert.Nil(t, got[0].MinutesSinceLastActivity)

	assert.Equal(t, "Stale", got[1].Name)
	assert.Equal(t, StatusWarning, got[1].Status)
}

func TestSnapshotFailureRateIsPerCycle(t *testing.T) {
	entries := []logdomain.LogEntry{
		entry(20, logdomain.LevelInfo, "BG", "1", "BG cycle started for profile Main"),
		entry(20, logdomain.LevelInfo, "BG/FETCH", "1", "BG fetch for profile Main"),
		entry(19, logdomain.LevelInfo, "FETCH", "1", "Fetched 2 transfers (2 new)"),
		entry(19, logdomain.LevelInfo, "BG/NORMALIZE", "1", "BG normalize for profile Main"),
		entry(18, logdomain.LevelInfo, "BG/ADDPOS", "1", "BG add-to-POS for profile Main"),
		entry(18, logdomain.LevelError, "BG/ADDPOS", "1", "Add to POS failed"),
		entry(18, logdomain.LevelError, "BG", "1", "BG cycle failed for profile Main"),
		entry(10, logdomain.LevelInfo, "BG", "1", "BG cycle started for profile Main"),
		entry(10, logdomain.LevelInfo, "BG/FETCH", "1", "BG fetch for profile Main"),
		entry(9, logdomain.LevelInfo, "BG/NORMALIZE", "1", "BG normalize for profile Main"),
		entry(9, logdomain.LevelInfo, "BG/ADDPOS", "1", "BG add-to-POS for profile Main"),
		entry(8, logdomain.LevelInfo, "BG/PERF", "1", "BG perf: fetchMs=10; normalizeMs=5; addToPosMs=5; totalMs=20"),
	}
	svc, _ := newService(entries, profiledomain.Profile{ID: 1, Name: "Main"})

	got, err := svc.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	h := got[0]

	assert.Equal(t, 2, h.BgFetchCount)
	assert.Equal(t, 1, h.StageErrors)
	assert.InDelta(t, 100.0/3, h.FailureRatePercent, 0.001)
	assert.Zero(t, h.ConsecutiveFailures)
	assert.Equal(t, StatusError, h.Status)
}

func TestSnapshotReadsStoredPerfAttributes(t *testing.T) {
	perf := entry(2, logdomain.LevelInfo, "BG/PERF", "1", "cycle timings")
	perf.Attributes = map[string]interface{}{
		"fetchMs":     json.Number("40"),
		"normalizeMs": json.Number("20"),
		"addToPosMs":  json.Number("10"),
		"totalMs":     json.Number("70"),
	}
	svc, _ := newService([]logdomain.LogEntry{perf}, profiledomain.Profile{ID: 1, Name: "Main"})

	got, err := svc.Snapshot(context.Background(), 0)
	require.NoError(t, err)
	h := got[0]

	require.NotNil(t, h.AvgFetchMs)
	assert.InDelta(t, 40, *h.AvgFetchMs, 0.001)
	assert.InDelta(t, 70, *h.AvgTotalMs, 0.001)
}

func TestParsePerfMessage(t *testing.T) {
	f, n, a, total, ok := parsePerfMessage("BG perf: fetchMs=12; normalizeMs=3; addToPosMs=4; totalMs=19")
	require.True(t, ok)
	assert.Equal(t, []float64{12, 3, 4, 19}, []float64{f, n, a, total})

	_, _, _, _, ok = parsePerfMessage("something else")
	assert.False(t, ok)
}

func TestSnapshotIgnoresUnknownProfiles(t *testing.T) {
	entries := []logdomain.LogEntry{
		entry(1, logdomain.LevelError, "BG", "99", "BG cycle failed"),
	}
	svc, _ := newService(entries, profiledomain.Profile{ID: snowflake.ID(1), Name: "Main"})

	got, err := svc.Snapshot(context.Background(), time.Hour)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].ErrorCount)
}
