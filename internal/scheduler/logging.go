package scheduler

import (
	"context"
	"fmt"
	"time"

	obscontext "github.com/smallbiznis/posbridge/internal/observability/context"
	obslogger "github.com/smallbiznis/posbridge/internal/observability/logger"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/smallbiznis/posbridge/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// PerfRecord holds the stage timings of one profile cycle.
type PerfRecord struct {
	Fetch     time.Duration `json:"fetch"`
	Normalize time.Duration `json:"normalize"`
	AddToPos  time.Duration `json:"add_to_pos"`
	Total     time.Duration `json:"total"`
}

func (p PerfRecord) message() string {
	return fmt.Sprintf("BG perf: fetchMs=%d; normalizeMs=%d; addToPosMs=%d; totalMs=%d",
		p.Fetch.Milliseconds(), p.Normalize.Milliseconds(), p.AddToPos.Milliseconds(), p.Total.Milliseconds())
}

func (p PerfRecord) fields() []zap.Field {
	return []zap.Field{
		zap.Int64("fetchMs", p.Fetch.Milliseconds()),
		zap.Int64("normalizeMs", p.Normalize.Milliseconds()),
		zap.Int64("addToPosMs", p.AddToPos.Milliseconds()),
		zap.Int64("totalMs", p.Total.Milliseconds()),
	}
}

// cycleContext starts a profile cycle: a fresh correlation id, the profile
// and the operation label.
func cycleContext(ctx context.Context, profile profiledomain.Profile, operation string) context.Context {
	ctx = correlation.ContextWithCorrelationID(ctx, correlation.New())
	ctx = obscontext.WithProfileID(ctx, profile.Key())
	if operation != "" {
		ctx = obscontext.WithOperation(ctx, operation)
	}
	return ctx
}

func withOperation(ctx context.Context, operation string) context.Context {
	return obscontext.WithOperation(ctx, operation)
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
