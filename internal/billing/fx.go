package billing

import (
	"github.com/smallbiznis/posbridge/internal/billing/repository"
	"github.com/smallbiznis/posbridge/internal/billing/service"
	"github.com/smallbiznis/posbridge/internal/providers/pdf"
	"go.uber.org/fx"
)

var Module = fx.Module("billing",
	fx.Provide(repository.Provide),
	fx.Provide(pdf.New),
	fx.Provide(service.New),
)
