package scheduler

import (
	"context"

	"github.com/smallbiznis/posbridge/internal/auth/token"
	"github.com/smallbiznis/posbridge/internal/pipeline"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(
		func(svc profiledomain.Service) ProfileSource { return svc },
		func(p *token.Provider) TokenResolver { return p },
		func(svc *pipeline.Service) Stages { return svc },
	),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func NewScheduler(lc fx.Lifecycle, cfg Config, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Enabled {
				sched.Start()
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sched.Stop()
			return sched.Wait(ctx)
		},
	})
}
