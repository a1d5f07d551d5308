package appuser

import (
	"context"

	"github.com/smallbiznis/posbridge/internal/appuser/domain"
	"github.com/smallbiznis/posbridge/internal/appuser/repository"
	"github.com/smallbiznis/posbridge/internal/appuser/service"
	"go.uber.org/fx"
)

var Module = fx.Module("appuser.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(func(lc fx.Lifecycle, svc domain.Service) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return svc.EnsureAdmin(ctx)
			},
		})
	}),
)
