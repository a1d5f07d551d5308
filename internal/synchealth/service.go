// Package synchealth projects the persisted log stream into per-profile
// sync health. It only reads.
package synchealth

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/posbridge/internal/clock"
	"github.com/smallbiznis/posbridge/internal/config"
	logdomain "github.com/smallbiznis/posbridge/internal/logsink/domain"
	obslogger "github.com/smallbiznis/posbridge/internal/observability/logger"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Status string

const (
	StatusOK      Status = "OK"
	StatusWarning Status = "WARNING"
	StatusError   Status = "ERROR"
)

// LogSource pages through persisted log entries newest first.
type LogSource interface {
	Each(ctx context.Context, filter logdomain.ListFilter, fn func([]logdomain.LogEntry) error) error
}

type ProfileLister interface {
	List(ctx context.Context) ([]profiledomain.Profile, error)
}

// ProfileHealth is the health snapshot of one profile over the lookback.
type ProfileHealth struct {
	ProfileID    string     `json:"profile_id"`
	Name         string     `json:"name"`
	ProviderType string     `json:"provider_type"`
	IsActive     bool       `json:"is_active"`
	LastSync     *time.Time `json:"last_sync,omitempty"`

	InfoCount  int `json:"info_count"`
	ErrorCount int `json:"error_count"`

	BgCycles         int `json:"bg_cycles"`
	BgFetchCount     int `json:"bg_fetch_count"`
	BgNormalizeCount int `json:"bg_normalize_count"`
	BgAddToPosCount  int `json:"bg_add_to_pos_count"`
	StageErrors      int `json:"stage_errors"`

	NormalizeErrors int `json:"normalize_errors"`
	AddToPosErrors  int `json:"add_to_pos_errors"`

	Status                   Status     `json:"status"`
	ConsecutiveFailures      int        `json:"consecutive_failures"`
	FailureRatePercent       float64    `json:"failure_rate_percent"`
	LastActivityAt           *time.Time `json:"last_activity_at,omitempty"`
	MinutesSinceLastActivity *float64   `json:"minutes_since_last_activity,omitempty"`
	MinutesSinceLastFetch    *float64   `json:"minutes_since_last_fetch,omitempty"`

	AvgFetchMs     *float64 `json:"avg_fetch_ms,omitempty"`
	AvgNormalizeMs *float64 `json:"avg_normalize_ms,omitempty"`
	AvgAddToPosMs  *float64 `json:"avg_add_to_pos_ms,omitempty"`
	AvgTotalMs     *float64 `json:"avg_total_ms,omitempty"`

	LastErrorAt      *time.Time `json:"last_error_at,omitempty"`
	LastErrorMessage string     `json:"last_error_message,omitempty"`

	LastFetchAt     *time.Time `json:"last_fetch_at,omitempty"`
	LastNormalizeAt *time.Time `json:"last_normalize_at,omitempty"`
	LastAddToPosAt  *time.Time `json:"last_add_to_pos_at,omitempty"`
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Clock    clock.Clock
	Settings config.SettingsProvider
	Logs     LogSource
	Profiles ProfileLister
}

type Service struct {
	log      *zap.Logger
	clock    clock.Clock
	settings config.SettingsProvider
	logs     LogSource
	profiles ProfileLister
}

func New(p Params) *Service {
	return &Service{
		log:      p.Log.Named("synchealth"),
		clock:    p.Clock,
		settings: p.Settings,
		logs:     p.Logs,
		profiles: p.Profiles,
	}
}

// Snapshot aggregates the log stream over lookback. A non-positive lookback
// uses the configured one.
func (s *Service) Snapshot(ctx context.Context, lookback time.Duration) ([]ProfileHealth, error) {
	if lookback <= 0 {
		lookback = s.settings.Get().Health.Lookback
	}
	now := s.clock.Now().UTC()
	since := now.Add(-lookback)

	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	aggs := make(map[string]*aggregate, len(profiles))
	for _, p := range profiles {
		aggs[p.Key()] = &aggregate{}
	}

	// Pages arrive newest first, which the streak scan relies on.
	err = s.logs.Each(ctx, logdomain.ListFilter{Since: &since, Until: &now}, func(page []logdomain.LogEntry) error {
		for _, entry := range page {
			if agg, ok := aggs[entry.ProfileID]; ok {
				agg.add(entry)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan logs: %w", err)
	}

	result := make([]ProfileHealth, 0, len(profiles))
	for _, p := range profiles {
		h := aggs[p.Key()].finish(now, lookback)
		h.ProfileID = p.Key()
		h.Name = p.Name
		h.ProviderType = p.ProviderType
		h.IsActive = p.IsActive
		h.LastSync = p.LastSync
		result = append(result, h)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name)
	})
	s.log.Debug("sync health computed", zap.Int("profiles", len(result)), zap.Duration("lookback", lookback))
	return result, nil
}

type perfSum struct {
	fetch, normalize, addToPos, total float64
	n                                 int
}

type aggregate struct {
	h ProfileHealth

	streakDone bool
	streak     int
	perf       perfSum
}

func isStageOperation(op string) bool {
	switch op {
	case obslogger.OpBackgroundFetch, obslogger.OpBackgroundNormalize, obslogger.OpBackgroundAddToPos:
		return true
	}
	return false
}

// add folds one entry in. Entries must arrive newest first.
func (a *aggregate) add(e logdomain.LogEntry) {
	op := strings.ToUpper(e.Operation)
	level := strings.ToUpper(e.Level)
	at := e.Timestamp.UTC()

	if a.h.LastActivityAt == nil {
		a.h.LastActivityAt = &at
	}

	switch level {
	case logdomain.LevelInfo:
		a.h.InfoCount++
		switch op {
		case obslogger.OpBackground:
			a.h.BgCycles++
		case obslogger.OpBackgroundFetch:
			a.h.BgFetchCount++
			setOnce(&a.h.LastFetchAt, at)
		case obslogger.OpBackgroundNormalize:
			a.h.BgNormalizeCount++
			setOnce(&a.h.LastNormalizeAt, at)
		case obslogger.OpBackgroundAddToPos:
			a.h.BgAddToPosCount++
			setOnce(&a.h.LastAddToPosAt, at)
		}
	case logdomain.LevelError:
		a.h.ErrorCount++
		if a.h.LastErrorAt == nil {
			a.h.LastErrorAt = &at
			a.h.LastErrorMessage = e.Message
			if strings.TrimSpace(e.Exception) != "" {
				a.h.LastErrorMessage = e.Exception
			}
		}
		switch op {
		case obslogger.OpBackground:
			a.h.StageErrors++
		case obslogger.OpNormalize, obslogger.OpBackgroundNormalize:
			a.h.NormalizeErrors++
		case obslogger.OpAddToPos, obslogger.OpBackgroundAddToPos:
			a.h.AddToPosErrors++
		}
	}

	if op == obslogger.OpBackgroundPerf {
		a.addPerf(e)
	}

	if a.streakDone {
		return
	}
	switch {
	case level == logdomain.LevelError && op == obslogger.OpBackground:
		a.streak++
	case level == logdomain.LevelInfo && isStageOperation(op):
		a.streakDone = true
	}
}

func (a *aggregate) addPerf(e logdomain.LogEntry) {
	f, n, p, t, ok := perfFromAttributes(e.Attributes)
	if !ok {
		f, n, p, t, ok = parsePerfMessage(e.Message)
	}
	if !ok {
		return
	}
	a.perf.fetch += f
	a.perf.normalize += n
	a.perf.addToPos += p
	a.perf.total += t
	a.perf.n++
}

func (a *aggregate) finish(now time.Time, lookback time.Duration) ProfileHealth {
	h := a.h
	h.ConsecutiveFailures = a.streak

	if h.LastActivityAt != nil {
		m := now.Sub(*h.LastActivityAt).Minutes()
		h.MinutesSinceLastActivity = &m
	}
	if h.LastFetchAt != nil {
		m := now.Sub(*h.LastFetchAt).Minutes()
		h.MinutesSinceLastFetch = &m
	}

	// One BG/FETCH phase entry is logged per cycle, so fetches plus BG
	// errors approximate the number of cycles.
	if total := h.StageErrors + h.BgFetchCount; total > 0 {
		h.FailureRatePercent = float64(h.StageErrors) / float64(total) * 100
	}

	if a.perf.n > 0 {
		n := float64(a.perf.n)
		h.AvgFetchMs = ptr(a.perf.fetch / n)
		h.AvgNormalizeMs = ptr(a.perf.normalize / n)
		h.AvgAddToPosMs = ptr(a.perf.addToPos / n)
		h.AvgTotalMs = ptr(a.perf.total / n)
	}

	switch {
	case h.StageErrors > 0 || h.ConsecutiveFailures > 0:
		h.Status = StatusError
	case h.MinutesSinceLastActivity == nil || *h.MinutesSinceLastActivity > lookback.Minutes()/2:
		h.Status = StatusWarning
	default:
		h.Status = StatusOK
	}
	return h
}

func setOnce(dst **time.Time, at time.Time) {
	if *dst == nil {
		*dst = &at
	}
}

func ptr(v float64) *float64 { return &v }

var perfKeys = [4]string{"fetchMs", "normalizeMs", "addToPosMs", "totalMs"}

func perfFromAttributes(attrs map[string]interface{}) (fetch, normalize, addToPos, total float64, ok bool) {
	if len(attrs) == 0 {
		return 0, 0, 0, 0, false
	}
	var vals [4]float64
	for i, key := range perfKeys {
		v, found := number(attrs[key])
		if !found {
			return 0, 0, 0, 0, false
		}
		vals[i] = v
	}
	return vals[0], vals[1], vals[2], vals[3], true
}

func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

// parsePerfMessage reads "BG perf: fetchMs=1; normalizeMs=2; addToPosMs=3; totalMs=6".
// Missing parts count as zero; a message without fetchMs is rejected.
func parsePerfMessage(msg string) (fetch, normalize, addToPos, total float64, ok bool) {
	idx := strings.Index(strings.ToLower(msg), "fetchms=")
	if idx < 0 {
		return 0, 0, 0, 0, false
	}
	for _, part := range strings.Split(msg[idx:], ";") {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "fetchms":
			fetch = v
		case "normalizems":
			normalize = v
		case "addtoposms":
			addToPos = v
		case "totalms":
			total = v
		}
	}
	return fetch, normalize, addToPos, total, true
}
