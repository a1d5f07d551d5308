// Package gmt registers the GMT provider. It has no capabilities yet.
package gmt

import "github.com/smallbiznis/posbridge/internal/config"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Type() string { return config.ProviderGMT }
