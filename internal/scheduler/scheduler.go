package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/posbridge/internal/clock"
	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	obslogger "github.com/smallbiznis/posbridge/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/posbridge/internal/observability/metrics"
	"github.com/smallbiznis/posbridge/internal/observability/tracing"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	transferdomain "github.com/smallbiznis/posbridge/internal/transfer/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrInvalidConfig    = errors.New("invalid_scheduler_config")
	ErrNeedsCredentials = errors.New("needs_credentials")
	ErrProfileInactive  = errors.New("profile_inactive")
	ErrProfileBusy      = errors.New("profile_sync_in_progress")
)

// ProfileSource lists the profiles to sync and records successful cycles.
type ProfileSource interface {
	Get(ctx context.Context, id string) (profiledomain.Profile, error)
	ListActive(ctx context.Context) ([]profiledomain.Profile, error)
	MarkSynced(ctx context.Context, id string) error
}

// TokenResolver yields a usable provider token or reports that credentials
// are needed.
type TokenResolver interface {
	EnsureToken(ctx context.Context, profile profiledomain.Profile) (string, bool)
}

// Stages runs the three pipeline stages for one profile.
type Stages interface {
	FetchForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) ([]transferdomain.Transfer, error)
	NormalizeForProfile(ctx context.Context, r transferdomain.Range, profile profiledomain.Profile, token string) error
	AddPendingToPos(ctx context.Context, profile profiledomain.Profile, userIDOverride, cashboxIDOverride string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Profiles ProfileSource
	Tokens   TokenResolver
	Stages   Stages
	Metrics  *obsmetrics.SyncMetrics `optional:"true"`
	Config   Config                  `optional:"true"`
}

// Scheduler is the background sync orchestrator. It moves between stopped
// and running through Start and Stop.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	profiles ProfileSource
	tokens   TokenResolver
	stages   Stages
	metrics  *obsmetrics.SyncMetrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	flightMu sync.Mutex
	inFlight map[string]struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Profiles == nil || p.Tokens == nil || p.Stages == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		profiles: p.Profiles,
		tokens:   p.Tokens,
		stages:   p.Stages,
		metrics:  p.Metrics,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Start launches the loop. It is a no-op while already running. A loop
// that was stopped but is still finishing its stages is waited for before
// the new one runs its first cycle.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	prev := s.done
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		if ctx.Err() != nil {
			return
		}
		s.RunForever(ctx)
	}()
	s.log.Info("sync started", zap.Duration("interval", s.cfg.RunInterval))
}

// Stop asks the loop to exit. Stages already in flight finish on their own
// timeout. It is a no-op while stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.cancel()
	s.running = false
	s.log.Info("sync stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until every started loop has exited or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunForever runs a cycle immediately and then once per interval until ctx
// is cancelled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now()

	for {
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.safeRunOnce(ctx); err != nil {
			s.log.Warn("sync run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) safeRunOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", obsmetrics.ErrPanic, r)
		}
	}()
	return s.RunOnce(ctx)
}

// RunOnce syncs every active profile once. Profile failures are logged and
// never returned; only failing to list profiles is.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	runID := s.genID.Generate().String()
	log := s.log.With(zap.String("run_id", runID))

	profiles, err := s.profiles.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active profiles: %w", err)
	}
	if len(profiles) == 0 {
		log.Debug("no active profiles")
		return nil
	}

	sem := make(chan struct{}, s.cfg.Parallelism)
	var wg sync.WaitGroup
	for _, profile := range profiles {
		if ctx.Err() != nil {
			break
		}
		if !profile.IsActive {
			s.metrics.IncProfileSkipped(obsmetrics.SkipReasonInactive)
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(profile profiledomain.Profile) {
			defer wg.Done()
			defer func() { <-sem }()
			s.runProfile(ctx, runID, profile)
		}(profile)
	}
	wg.Wait()
	return nil
}

// runProfile is the per-profile isolation boundary: errors and panics end
// this profile's cycle only.
func (s *Scheduler) runProfile(ctx context.Context, runID string, profile profiledomain.Profile) {
	ctx = cycleContext(ctx, profile, obslogger.OpBackground)
	ctx, span := tracing.StartSpan(ctx, "scheduler", "sync.profile_cycle",
		attribute.String("profile_id", profile.Key()),
		attribute.String("provider", profile.ProviderType),
		attribute.String("run_id", runID),
	)
	defer span.End()
	log := s.logger(ctx).With(zap.String("run_id", runID))

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", obsmetrics.ErrPanic, r)
			log.Error("BG cycle panicked for profile "+profile.Name, zap.Error(err), zap.Stack("stacktrace"))
		}
		if err != nil {
			s.metrics.IncStageError(obsmetrics.StageCycle, err)
			s.metrics.IncCycle(profile.ProviderType, "error")
		}
	}()

	log.Info("BG cycle started for profile " + profile.Name)

	if !s.acquire(profile.Key()) {
		s.metrics.IncProfileSkipped(obsmetrics.SkipReasonBusy)
		log.Warn("Skipping profile " + profile.Name + ": sync already in progress")
		return
	}
	defer s.release(profile.Key())

	token, needsCredentials := s.tokens.EnsureToken(ctx, profile)
	if needsCredentials || token == "" {
		s.metrics.IncProfileSkipped(obsmetrics.SkipReasonNeedsCredentials)
		log.Warn("Skipping profile " + profile.Name + ": credentials required")
		return
	}

	perf, err := s.runStages(ctx, profile, token, true)
	if err != nil {
		log.Error("BG cycle failed for profile "+profile.Name, zap.Error(err))
		return
	}
	s.logger(withOperation(ctx, obslogger.OpBackgroundPerf)).Info(perf.message(), perf.fields()...)

	if err = s.profiles.MarkSynced(context.WithoutCancel(ctx), profile.Key()); err != nil {
		log.Error("Failed to record last sync for profile "+profile.Name, zap.Error(err))
		return
	}
	s.metrics.IncCycle(profile.ProviderType, "ok")
}

// RunProfileNow runs fetch, normalize and add-to-pos once for one profile
// outside the loop and returns the first fatal error.
func (s *Scheduler) RunProfileNow(ctx context.Context, profileID string) (PerfRecord, error) {
	profile, err := s.profiles.Get(ctx, profileID)
	if err != nil {
		return PerfRecord{}, err
	}
	if !profile.IsActive {
		return PerfRecord{}, ErrProfileInactive
	}

	if !s.acquire(profile.Key()) {
		return PerfRecord{}, ErrProfileBusy
	}
	defer s.release(profile.Key())

	ctx = cycleContext(ctx, profile, "")
	token, needsCredentials := s.tokens.EnsureToken(ctx, profile)
	if needsCredentials || token == "" {
		return PerfRecord{}, ErrNeedsCredentials
	}

	perf, err := s.runStages(ctx, profile, token, false)
	if err != nil {
		return perf, err
	}
	if err := s.profiles.MarkSynced(ctx, profile.Key()); err != nil {
		return perf, err
	}
	return perf, nil
}

// acquire marks a profile as syncing. A profile is never synced by two
// callers at once.
func (s *Scheduler) acquire(key string) bool {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	if _, busy := s.inFlight[key]; busy {
		return false
	}
	s.inFlight[key] = struct{}{}
	return true
}

func (s *Scheduler) release(key string) {
	s.flightMu.Lock()
	defer s.flightMu.Unlock()
	delete(s.inFlight, key)
}

// syncWindow is [today-1d, today+1d) expressed as an inclusive range.
func (s *Scheduler) syncWindow() transferdomain.Range {
	today := clock.Today(s.clock)
	return transferdomain.Range{
		Start: today.AddDate(0, 0, -1),
		End:   today.AddDate(0, 0, 1).Add(-time.Second),
	}
}

func (s *Scheduler) runStages(ctx context.Context, profile profiledomain.Profile, token string, background bool) (PerfRecord, error) {
	var perf PerfRecord
	window := s.syncWindow()
	started := time.Now()

	label := func(bg string) string {
		if background {
			return bg
		}
		return ""
	}

	var fetched int
	d, err := s.runStage(ctx, obsmetrics.StageFetch, label(obslogger.OpBackgroundFetch), profile, func(ctx context.Context) error {
		transfers, err := s.stages.FetchForProfile(ctx, window, profile, token)
		fetched = len(transfers)
		return err
	})
	perf.Fetch = d
	if err != nil {
		return perf, fmt.Errorf("fetch: %w", err)
	}
	s.metrics.AddItems(obsmetrics.StageFetch, "listed", fetched)

	d, err = s.runStage(ctx, obsmetrics.StageNormalize, label(obslogger.OpBackgroundNormalize), profile, func(ctx context.Context) error {
		return s.stages.NormalizeForProfile(ctx, window, profile, token)
	})
	perf.Normalize = d
	if err != nil {
		return perf, fmt.Errorf("normalize: %w", err)
	}

	d, err = s.runStage(ctx, obsmetrics.StageAddToPos, label(obslogger.OpBackgroundAddToPos), profile, func(ctx context.Context) error {
		return s.stages.AddPendingToPos(ctx, profile, "", "")
	})
	perf.AddToPos = d
	if err != nil {
		return perf, fmt.Errorf("add to pos: %w", err)
	}

	perf.Total = time.Since(started)
	return perf, nil
}

// runStage times fn under the stage timeout. The stage context survives
// cancellation of ctx so Stop never interrupts a stage halfway. In the
// background loop operation is the BG phase label: one phase entry is logged
// before the stage runs, while the stage logs under its own label.
func (s *Scheduler) runStage(ctx context.Context, stage, operation string, profile profiledomain.Profile, fn func(context.Context) error) (time.Duration, error) {
	stageCtx, cancel := context.WithTimeout(obscontext.WithoutOperation(context.WithoutCancel(ctx)), s.cfg.StageTimeout)
	defer cancel()

	var phaseLog *zap.Logger
	if operation != "" {
		phaseLog = s.logger(withOperation(stageCtx, operation))
		phaseLog.Info(stagePhaseMessage(stage) + profile.Name)
	}

	started := time.Now()
	err := fn(stageCtx)
	elapsed := time.Since(started)
	s.metrics.ObserveStage(stage, profile.ProviderType, elapsed)

	if err != nil {
		s.metrics.IncStageError(stage, err)
		if phaseLog != nil {
			phaseLog.Error(stageFailureMessage(stage), zap.Error(err))
		}
	}
	return elapsed, err
}

func stagePhaseMessage(stage string) string {
	switch stage {
	case obsmetrics.StageFetch:
		return "BG fetch for profile "
	case obsmetrics.StageNormalize:
		return "BG normalize for profile "
	case obsmetrics.StageAddToPos:
		return "BG add-to-POS for profile "
	default:
		return "BG stage for profile "
	}
}

func stageFailureMessage(stage string) string {
	switch stage {
	case obsmetrics.StageFetch:
		return "Fetch failed"
	case obsmetrics.StageNormalize:
		return "Normalize failed"
	case obsmetrics.StageAddToPos:
		return "Add to POS failed"
	default:
		return "Stage failed"
	}
}
