package provider

import (
	"github.com/smallbiznis/posbridge/internal/provider/gmt"
	"github.com/smallbiznis/posbridge/internal/provider/stb"
	"github.com/smallbiznis/posbridge/internal/provider/wic"
	"go.uber.org/fx"
)

var Module = fx.Module("provider",
	fx.Provide(
		stb.New,
		gmt.New,
		wic.New,
		newRegistry,
	),
)

func newRegistry(s *stb.Client, g *gmt.Provider, w *wic.Provider) *Registry {
	return NewRegistry(s, g, w)
}
