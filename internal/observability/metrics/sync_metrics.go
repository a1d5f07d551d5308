package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	StageFetch     = "fetch"
	StageNormalize = "normalize"
	StageAddToPos  = "add_to_pos"
	StageToken     = "token"
	StageCycle     = "cycle"
)

const (
	SyncErrorReasonDeadlineExceeded = "deadline_exceeded"
	SyncErrorReasonDB               = "db"
	SyncErrorReasonUniqueViolation  = "unique_violation"
	SyncErrorReasonPanic            = "panic"
	SyncErrorReasonUnknown          = "unknown"
)

const (
	SkipReasonNeedsCredentials = "needs_credentials"
	SkipReasonInactive         = "inactive"
	SkipReasonBusy             = "busy"
)

// ErrPanic marks errors recovered from a panicking profile cycle.
var ErrPanic = errors.New("panic")

// SyncMetrics captures background sync health for dashboards and alerts.
type SyncMetrics struct {
	cycles          *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	stageErrors     *prometheus.CounterVec
	profilesSkipped *prometheus.CounterVec
	itemsProcessed  *prometheus.CounterVec
	runLoopLag      prometheus.Observer
	logDropped      prometheus.Counter
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// Sync returns the singleton sync metrics registry.
func Sync() *SyncMetrics {
	return SyncWithConfig(Config{})
}

// SyncWithConfig returns the singleton sync metrics registry using config labels.
func SyncWithConfig(cfg Config) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return syncMetrics
}

// ResetSyncMetricsForTest swaps the singleton for one bound to registerer.
func ResetSyncMetricsForTest(registerer prometheus.Registerer) *SyncMetrics {
	syncMetricsOnce = sync.Once{}
	syncMetrics = nil
	syncMetricsOnce.Do(func() {
		syncMetrics = newSyncMetrics(registerer, Config{ServiceName: "posbridge", Environment: "test"})
	})
	return syncMetrics
}

func newSyncMetrics(registerer prometheus.Registerer, cfg Config) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "posbridge"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	cycles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "posbridge_sync_cycles_total",
		Help:        "Profile sync cycles by outcome.",
		ConstLabels: constLabels,
	}, []string{"provider", "outcome"})
	stageDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "posbridge_sync_stage_duration_seconds",
		Help:        "Sync stage latency per provider.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"stage", "provider"})
	stageErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "posbridge_sync_stage_errors_total",
		Help:        "Sync stage failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"stage", "reason"})
	profilesSkipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "posbridge_sync_profiles_skipped_total",
		Help:        "Profiles skipped in a cycle.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	itemsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "posbridge_sync_items_processed_total",
		Help:        "Transfers processed per stage and result.",
		ConstLabels: constLabels,
	}, []string{"stage", "result"})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "posbridge_sync_runloop_lag_seconds",
		Help:        "Sync loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})

	logDropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "posbridge_log_entries_dropped_total",
		Help:        "Operational log entries dropped because the persistence queue was full.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		cycles,
		stageDuration,
		stageErrors,
		profilesSkipped,
		itemsProcessed,
		runLoopLag,
		logDropped,
	)

	return &SyncMetrics{
		cycles:          cycles,
		stageDuration:   stageDuration,
		stageErrors:     stageErrors,
		profilesSkipped: profilesSkipped,
		itemsProcessed:  itemsProcessed,
		runLoopLag:      runLoopLag,
		logDropped:      logDropped,
	}
}

// IncCycle counts a finished profile cycle. outcome is "ok" or "error".
func (m *SyncMetrics) IncCycle(provider, outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(normalizeLabel(provider), outcome).Inc()
}

// ObserveStage records stage latency in seconds.
func (m *SyncMetrics) ObserveStage(stage, provider string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, normalizeLabel(provider)).Observe(d.Seconds())
}

// IncStageError counts a failed stage with its classified reason.
func (m *SyncMetrics) IncStageError(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.stageErrors.WithLabelValues(stage, ClassifySyncError(err)).Inc()
}

// IncProfileSkipped counts a profile left out of a cycle.
func (m *SyncMetrics) IncProfileSkipped(reason string) {
	if m == nil {
		return
	}
	m.profilesSkipped.WithLabelValues(reason).Inc()
}

// AddItems counts transfers processed by a stage.
func (m *SyncMetrics) AddItems(stage, result string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.itemsProcessed.WithLabelValues(stage, result).Add(float64(count))
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SyncMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.runLoopLag.Observe(d.Seconds())
}

// IncLogDropped counts a log entry the sink could not queue. Health is
// derived from the persisted stream, so drops skew it.
func (m *SyncMetrics) IncLogDropped() {
	if m == nil {
		return
	}
	m.logDropped.Inc()
}

// ClassifySyncError maps errors to low-cardinality reasons.
func ClassifySyncError(err error) string {
	switch {
	case err == nil:
		return SyncErrorReasonUnknown
	case errors.Is(err, ErrPanic):
		return SyncErrorReasonPanic
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SyncErrorReasonDeadlineExceeded
	case isUniqueViolation(err):
		return SyncErrorReasonUniqueViolation
	case isDBError(err):
		return SyncErrorReasonDB
	default:
		return SyncErrorReasonUnknown
	}
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrInvalidValue) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func normalizeLabel(v string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return "UNKNOWN"
	}
	return v
}
