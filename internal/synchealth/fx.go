package synchealth

import (
	"github.com/smallbiznis/posbridge/internal/logsink"
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("synchealth",
	fx.Provide(
		func(r *logsink.Reader) LogSource { return r },
		func(svc profiledomain.Service) ProfileLister { return svc },
	),
	fx.Provide(New),
)
