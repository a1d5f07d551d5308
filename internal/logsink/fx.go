package logsink

import (
	"context"

	"github.com/smallbiznis/posbridge/internal/logsink/domain"
	"github.com/smallbiznis/posbridge/internal/logsink/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Module must be installed at the root so the logger decoration reaches
// every other module.
var Module = fx.Options(
	fx.Provide(
		NewHub,
		NewSink,
		repository.Provide,
		NewReader,
	),
	fx.Decorate(decorateLogger),
	fx.Invoke(startSink),
)

func decorateLogger(log *zap.Logger, sink *Sink) *zap.Logger {
	return Tee(log, sink)
}

func startSink(lc fx.Lifecycle, sink *Sink, hub *Hub, db *gorm.DB, repo domain.Repository) {
	sink.Bind(db, repo)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go sink.Run()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			err := sink.Stop(ctx)
			hub.Close()
			return err
		},
	})
}
