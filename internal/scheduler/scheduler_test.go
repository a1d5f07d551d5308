package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/posbridge/internal/clock"
	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	obslogger "github.com/smallbiznis/posbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/posbridge/internal/observability/metrics"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"github.com/smallbiznis/posbridge/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeProfiles struct {
	mu       sync.Mutex
	profiles []profiledomain.Profile
	synced   []string
}

func (f *fakeProfiles) Get(ctx context.Context, id string) (profiledomain.Profile, error) {
	for _, p := range f.profiles {
		if p.Key() == id {
			return p, nil
		}
	}
	return profiledomain.Profile{}, profiledomain.ErrNotFound
}

func (f *fakeProfiles) ListActive(ctx context.Context) ([]profiledomain.Profile, error) {
	return f.profiles, nil
}

func (f *fakeProfiles) MarkSynced(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, id)
	return nil
}

func (f *fakeProfiles) syncedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synced...)
}

type fakeTokens struct {
	missing map[string]bool
}

func (f *fakeTokens) EnsureToken(ctx context.Context, profile profiledomain.Profile) (string, bool) {
	if f.missing[profile.Key()] {
		return "", true
	}
	return "token-" + profile.Key(), false
}

type stageCall struct {
	profileID     string
	stage         string
	operation     string
	correlationID string
	window        transferdomain.Range
}

type fakeStages struct {
	mu        sync.Mutex
	calls     []stageCall
	panicFor  map[string]bool
	failStage map[string]error
	block     chan struct{}
	entered   chan struct{}
	ctxErr    error
}

func newFakeStages() *fakeStages {
	return &fakeStages{panicFor: map[string]bool{}, failStage: map[string]error{}}
}

func (f *fakeStages) record(ctx context.Context, profile profiledomain.Profile, stage string, r transferdomain.Range) error {
	f.mu.Lock()
	f.calls = append(f.calls, stageCall{
		profileID:     profile.Key(),
		stage:         stage,
		operation:     obscontext.OperationFromContext(ctx),
		correlationID: correlation.ExtractCorrelationID(ctx),
		window:        r,
	})
	f.mu.Unlock()

	if f.panicFor[profile.Key()] {
		panic("provider exploded")
	}
	return f.failStage[stage]
}

func (f *fakeStages) FetchForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) ([]transferdomain.Transfer, error) {
	if f.block != nil {
		f.entered <- struct{}{}
		<-f.block
		f.mu.Lock()
		f.ctxErr = ctx.Err()
		f.mu.Unlock()
	}
	return nil, f.record(ctx, profile, "fetch", r)
}

func (f *fakeStages) NormalizeForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) error {
	return f.record(ctx, profile, "normalize", r)
}

func (f *fakeStages) AddPendingToPos(ctx context.Context, profile profiledomain.Profile, userIDOverride, cashboxIDOverride string) error {
	return f.record(ctx, profile, "add_to_pos", transferdomain.Range{})
}

func (f *fakeStages) snapshot() []stageCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stageCall(nil), f.calls...)
}

func (f *fakeStages) stagesFor(profileID string) []string {
	var out []string
	for _, c := range f.snapshot() {
		if c.profileID == profileID {
			out = append(out, c.stage)
		}
	}
	return out
}

type fixture struct {
	sched    *Scheduler
	profiles *fakeProfiles
	tokens   *fakeTokens
	stages   *fakeStages
	logs     *observer.ObservedLogs
	registry *prometheus.Registry
}

func newFixture(t *testing.T, cfg Config, profiles ...profiledomain.Profile) *fixture {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	core, logs := observer.New(zap.InfoLevel)
	registry := prometheus.NewRegistry()
	f := &fixture{
		profiles: &fakeProfiles{profiles: profiles},
		tokens:   &fakeTokens{missing: map[string]bool{}},
		stages:   newFakeStages(),
		logs:     logs,
		registry: registry,
	}
	f.sched, err = New(Params{
		Log:      zap.New(core),
		GenID:    node,
		Clock:    clock.NewFakeClock(time.Date(2024, 3, 2, 10, 30, 0, 0, time.UTC)),
		Profiles: f.profiles,
		Tokens:   f.tokens,
		Stages:   f.stages,
		Metrics:  obsmetrics.ResetSyncMetricsForTest(registry),
		Config:   cfg,
	})
	require.NoError(t, err)
	return f
}

func profile(id int64, name string) profiledomain.Profile {
	return profiledomain.Profile{ID: snowflake.ID(id), Name: name, ProviderType: "STB", IsActive: true}
}

func TestRunOnceRunsStagesInOrderWithBackgroundLabels(t *testing.T) {
	f := newFixture(t, Config{}, profile(1, "Main"))

	require.NoError(t, f.sched.RunOnce(context.Background()))

	calls := f.stages.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"fetch", "normalize", "add_to_pos"}, f.stages.stagesFor("1"))
	for _, c := range calls {
		assert.Empty(t, c.operation, "stages log under their own label")
	}

	phases := map[string]string{
		"BG fetch for profile Main":      obslogger.OpBackgroundFetch,
		"BG normalize for profile Main":  obslogger.OpBackgroundNormalize,
		"BG add-to-POS for profile Main": obslogger.OpBackgroundAddToPos,
	}
	for msg, op := range phases {
		entries := f.logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, zap.InfoLevel, entries[0].Level)
		assert.Equal(t, op, entries[0].ContextMap()[obslogger.FieldOperation])
	}

	require.NotEmpty(t, calls[0].correlationID)
	assert.Equal(t, calls[0].correlationID, calls[1].correlationID)
	assert.Equal(t, calls[0].correlationID, calls[2].correlationID)

	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), calls[0].window.Start)
	assert.Equal(t, time.Date(2024, 3, 2, 23, 59, 59, 0, time.UTC), calls[0].window.End)

	assert.Equal(t, []string{"1"}, f.profiles.syncedIDs())
}

func TestRunOnceLogsPerfRecord(t *testing.T) {
	f := newFixture(t, Config{}, profile(1, "Main"))

	require.NoError(t, f.sched.RunOnce(context.Background()))

	var perf []observer.LoggedEntry
	for _, e := range f.logs.All() {
		if strings.HasPrefix(e.Message, "BG perf: fetchMs=") {
			perf = append(perf, e)
		}
	}
	require.Len(t, perf, 1)
	ctx := perf[0].ContextMap()
	assert.Equal(t, obslogger.OpBackgroundPerf, ctx[obslogger.FieldOperation])
	assert.Equal(t, "1", ctx[obslogger.FieldProfileID])
	assert.Contains(t, ctx, "totalMs")
	assert.Contains(t, perf[0].Message, "; addToPosMs=")
}

func TestRunOnceIsolatesProfileFailures(t *testing.T) {
	f := newFixture(t, Config{},
		profile(1, "First"),
		profile(2, "NeedsLogin"),
		profile(3, "Panics"),
		profile(4, "Last"),
	)
	f.tokens.missing["2"] = true
	f.stages.panicFor["3"] = true

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, []string{"fetch", "normalize", "add_to_pos"}, f.stages.stagesFor("1"))
	assert.Empty(t, f.stages.stagesFor("2"))
	assert.Equal(t, []string{"fetch"}, f.stages.stagesFor("3"))
	assert.Equal(t, []string{"fetch", "normalize", "add_to_pos"}, f.stages.stagesFor("4"))
	assert.ElementsMatch(t, []string{"1", "4"}, f.profiles.syncedIDs())

	skipped := f.logs.FilterMessage("Skipping profile NeedsLogin: credentials required").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, zap.WarnLevel, skipped[0].Level)

	panicked := f.logs.FilterMessage("BG cycle panicked for profile Panics").All()
	require.Len(t, panicked, 1)
	assert.NotEmpty(t, panicked[0].ContextMap()[obslogger.FieldCorrelationID])

	assert.Equal(t, float64(1), counterValue(t, f.registry, "posbridge_sync_profiles_skipped_total", map[string]string{
		"service": "posbridge", "env": "test", "reason": obsmetrics.SkipReasonNeedsCredentials,
	}))
	assert.Equal(t, float64(2), counterValue(t, f.registry, "posbridge_sync_cycles_total", map[string]string{
		"service": "posbridge", "env": "test", "provider": "STB", "outcome": "ok",
	}))
}

func TestRunOnceStopsProfileCycleAtFirstFailedStage(t *testing.T) {
	f := newFixture(t, Config{}, profile(1, "Main"))
	f.stages.failStage["normalize"] = errors.New("boom")

	require.NoError(t, f.sched.RunOnce(context.Background()))

	assert.Equal(t, []string{"fetch", "normalize"}, f.stages.stagesFor("1"))
	assert.Empty(t, f.profiles.syncedIDs())

	failed := f.logs.FilterMessage("Normalize failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, obslogger.OpBackgroundNormalize, failed[0].ContextMap()[obslogger.FieldOperation])
}

func TestRunOnceParallelKeepsEveryProfile(t *testing.T) {
	f := newFixture(t, Config{Parallelism: 3},
		profile(1, "A"), profile(2, "B"), profile(3, "C"), profile(4, "D"), profile(5, "E"),
	)

	require.NoError(t, f.sched.RunOnce(context.Background()))

	for _, id := range []string{"1", "2", "3", "4", "5"} {
		assert.Equal(t, []string{"fetch", "normalize", "add_to_pos"}, f.stages.stagesFor(id), id)
	}
	assert.Len(t, f.profiles.syncedIDs(), 5)
}

func TestStartStopAreIdempotent(t *testing.T) {
	f := newFixture(t, Config{RunInterval: time.Hour}, profile(1, "Main"))

	f.sched.Start()
	f.sched.Start()
	assert.True(t, f.sched.Running())

	require.Eventually(t, func() bool {
		return len(f.profiles.syncedIDs()) == 1
	}, time.Second, 5*time.Millisecond)

	f.sched.Stop()
	f.sched.Stop()
	assert.False(t, f.sched.Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Wait(ctx))
	assert.Len(t, f.stages.stagesFor("1"), 3)
}

func TestStopLetsInFlightStageFinish(t *testing.T) {
	f := newFixture(t, Config{RunInterval: time.Hour}, profile(1, "Main"))
	f.stages.block = make(chan struct{})
	f.stages.entered = make(chan struct{}, 1)

	f.sched.Start()
	select {
	case <-f.stages.entered:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	f.sched.Stop()
	close(f.stages.block)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Wait(ctx))

	f.stages.mu.Lock()
	defer f.stages.mu.Unlock()
	assert.NoError(t, f.stages.ctxErr)
}

func TestRunOnceLogsFetchPhaseEvenWhenFetchFails(t *testing.T) {
	f := newFixture(t, Config{}, profile(1, "Main"))
	f.stages.failStage["fetch"] = errors.New("provider down")

	require.NoError(t, f.sched.RunOnce(context.Background()))

	phase := f.logs.FilterMessage("BG fetch for profile Main").All()
	require.Len(t, phase, 1)
	assert.Equal(t, obslogger.OpBackgroundFetch, phase[0].ContextMap()[obslogger.FieldOperation])

	failed := f.logs.FilterMessage("BG cycle failed for profile Main").All()
	require.Len(t, failed, 1)
	assert.Equal(t, obslogger.OpBackground, failed[0].ContextMap()[obslogger.FieldOperation])
}

func TestRestartWaitsForInFlightCycle(t *testing.T) {
	f := newFixture(t, Config{RunInterval: time.Hour}, profile(1, "Main"))
	f.stages.block = make(chan struct{})
	f.stages.entered = make(chan struct{}, 2)

	f.sched.Start()
	select {
	case <-f.stages.entered:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	f.sched.Stop()
	f.sched.Start()
	assert.True(t, f.sched.Running())

	select {
	case <-f.stages.entered:
		t.Fatal("second loop fetched the same profile while the first was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(f.stages.block)
	require.Eventually(t, func() bool {
		return len(f.stages.stagesFor("1")) == 6
	}, time.Second, 5*time.Millisecond)

	f.sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Wait(ctx))
	assert.Len(t, f.profiles.syncedIDs(), 2)
}

func TestRunProfileNowRefusesProfileAlreadySyncing(t *testing.T) {
	f := newFixture(t, Config{RunInterval: time.Hour}, profile(1, "Main"))
	f.stages.block = make(chan struct{})
	f.stages.entered = make(chan struct{}, 1)

	f.sched.Start()
	select {
	case <-f.stages.entered:
	case <-time.After(time.Second):
		t.Fatal("fetch never started")
	}

	_, err := f.sched.RunProfileNow(context.Background(), "1")
	assert.ErrorIs(t, err, ErrProfileBusy)

	close(f.stages.block)
	f.sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Wait(ctx))

	_, err = f.sched.RunProfileNow(context.Background(), "1")
	assert.NoError(t, err)
}

func TestRunProfileNowUsesInteractiveLabels(t *testing.T) {
	f := newFixture(t, Config{}, profile(1, "Main"))

	perf, err := f.sched.RunProfileNow(context.Background(), "1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, perf.Total, time.Duration(0))

	calls := f.stages.snapshot()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Empty(t, c.operation)
		assert.NotEmpty(t, c.correlationID)
	}
	assert.Equal(t, []string{"1"}, f.profiles.syncedIDs())
}

func TestRunProfileNowSurfacesFatalErrors(t *testing.T) {
	inactive := profile(2, "Off")
	inactive.IsActive = false
	f := newFixture(t, Config{}, profile(1, "Main"), inactive)

	_, err := f.sched.RunProfileNow(context.Background(), "2")
	assert.ErrorIs(t, err, ErrProfileInactive)

	f.tokens.missing["1"] = true
	_, err = f.sched.RunProfileNow(context.Background(), "1")
	assert.ErrorIs(t, err, ErrNeedsCredentials)

	f.tokens.missing["1"] = false
	f.stages.failStage["add_to_pos"] = errors.New("POS configuration incomplete")
	_, err = f.sched.RunProfileNow(context.Background(), "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "add to pos: POS configuration incomplete")
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if labelsMatch(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}
