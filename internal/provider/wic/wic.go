// Package wic registers the WIC provider. It has no capabilities yet.
package wic

import "github.com/smallbiznis/posbridge/internal/config"

type Provider struct{}

func New() *Provider { return &Provider{} }

func (p *Provider) Type() string { return config.ProviderWIC }
