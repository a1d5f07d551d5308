package provider

import (
	"fmt"
	"strings"

	"github.com/smallbiznis/posbridge/internal/provider/domain"
)

// Registry resolves capabilities by provider type.
type Registry struct {
	providers map[string]domain.Provider
}

func NewRegistry(providers ...domain.Provider) *Registry {
	registry := &Registry{providers: map[string]domain.Provider{}}
	for _, p := range providers {
		if p == nil {
			continue
		}
		key := strings.ToUpper(strings.TrimSpace(p.Type()))
		if key == "" {
			continue
		}
		registry.providers[key] = p
	}
	return registry
}

func (r *Registry) lookup(providerType string) (domain.Provider, error) {
	if r == nil {
		return nil, domain.ErrUnknownType
	}
	key := strings.ToUpper(strings.TrimSpace(providerType))
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownType, providerType)
	}
	return p, nil
}

func (r *Registry) TransferSource(providerType string) (domain.TransferSource, error) {
	p, err := r.lookup(providerType)
	if err != nil {
		return nil, err
	}
	source, ok := p.(domain.TransferSource)
	if !ok {
		return nil, fmt.Errorf("%s fetch transfers: %w", p.Type(), domain.ErrUnsupported)
	}
	return source, nil
}

func (r *Registry) CustomerLookup(providerType string) (domain.CustomerLookup, error) {
	p, err := r.lookup(providerType)
	if err != nil {
		return nil, err
	}
	lookup, ok := p.(domain.CustomerLookup)
	if !ok {
		return nil, fmt.Errorf("%s fetch customer: %w", p.Type(), domain.ErrUnsupported)
	}
	return lookup, nil
}

func (r *Registry) Authenticator(providerType string) (domain.Authenticator, error) {
	p, err := r.lookup(providerType)
	if err != nil {
		return nil, err
	}
	auth, ok := p.(domain.Authenticator)
	if !ok {
		return nil, fmt.Errorf("%s login: %w", p.Type(), domain.ErrUnsupported)
	}
	return auth, nil
}
