// Package rates supplies the exchange rate a settlement converts at.
package rates

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

type Kind string

const (
	KindFixed  Kind = "fixed"
	KindOracle Kind = "oracle"
)

// Provider returns a positive rate scaled by 10^8.
type Provider interface {
	ID() string
	Kind() Kind
	Rate(ctx context.Context) (domain.Rate, error)
}

// Governed is implemented by providers with their own role registry.
type Governed interface {
	Provider
	HasRole(role domain.Role, account domain.Address) bool
	GrantRole(caller domain.Address, role domain.Role, account domain.Address) error
	RevokeRole(caller domain.Address, role domain.Role, account domain.Address) error
}

// Registry indexes providers by ID so a manager can swap the engine's provider
// by reference.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		r.Add(p)
	}
	return r
}

func (r *Registry) Add(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
}

func (r *Registry) Get(id string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProvider, id)
	}
	return p, nil
}

func (r *Registry) Fixed(id string) (*FixedProvider, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	fixed, ok := p.(*FixedProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not a fixed-rate provider", domain.ErrUnknownProvider, id)
	}
	return fixed, nil
}

func (r *Registry) Oracle(id string) (*OracleProvider, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	oracle, ok := p.(*OracleProvider)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an oracle-backed provider", domain.ErrUnknownProvider, id)
	}
	return oracle, nil
}

func (r *Registry) Governed(id string) (Governed, error) {
	p, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	g, ok := p.(Governed)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no role registry", domain.ErrUnknownProvider, id)
	}
	return g, nil
}

func (r *Registry) All() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
