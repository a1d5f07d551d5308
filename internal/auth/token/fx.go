package token

import (
	profiledomain "github.com/smallbiznis/posbridge/internal/profile/domain"
	"github.com/smallbiznis/posbridge/internal/provider"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.token",
	fx.Provide(
		func(r *provider.Registry) AuthResolver { return r },
		func(s profiledomain.Service) TokenStore { return s },
		New,
	),
)
