package pipeline

import (
	"github.com/smallbiznis/posbridge/internal/auth/tokendecoder"
	billingdomain "github.com/smallbiznis/posbridge/internal/billing/domain"
	"github.com/smallbiznis/posbridge/internal/pos/repository"
	"github.com/smallbiznis/posbridge/internal/provider"
	transferrepository "github.com/smallbiznis/posbridge/internal/transfer/repository"
	"go.uber.org/fx"
)

var Module = fx.Module("pipeline",
	fx.Provide(
		repository.Provide,
		transferrepository.Provide,
		tokendecoder.New,
		func(r *provider.Registry) ProviderResolver { return r },
		func(s billingdomain.Service) BillingRecorder { return s },
		New,
	),
)
