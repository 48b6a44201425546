package gateway

import (
	"tumapesa/internal/domain"
	"tumapesa/pkg/errors"
)

// Registry resolves a card gateway by name.
type Registry struct {
	gateways map[domain.Gateway]CardGateway
}

func NewRegistry(gateways ...CardGateway) *Registry {
	r := &Registry{gateways: make(map[domain.Gateway]CardGateway, len(gateways))}
	for _, g := range gateways {
		r.gateways[g.Name()] = g
	}
	return r
}

func (r *Registry) Get(name domain.Gateway) (CardGateway, error) {
	g, ok := r.gateways[name]
	if !ok {
		return nil, errors.ErrUnsupportedGateway
	}
	return g, nil
}
