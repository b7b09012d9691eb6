package rates

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/access"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"go.uber.org/zap"
)

// FixedProvider returns an operator-maintained rate.
type FixedProvider struct {
	id        string
	mu        sync.RWMutex
	rate      domain.Rate
	roles     *access.Registry
	publisher events.Publisher
}

// NewFixed creates a provider whose admin holds ADMIN and RATE_UPDATER.
func NewFixed(id string, admin domain.Address, rate domain.Rate, publisher events.Publisher) (*FixedProvider, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("%w: provider admin is the zero address", domain.ErrInvalidConfiguration)
	}
	if !rate.Valid() {
		return nil, fmt.Errorf("%w: rate must be positive, got %d", domain.ErrInvalidRate, rate)
	}
	if publisher == nil {
		publisher = events.Discard
	}
	p := &FixedProvider{
		id:        id,
		rate:      rate,
		roles:     access.NewRegistry(domain.RoleAdmin, domain.RoleRateUpdater),
		publisher: publisher,
	}
	if err := grantAll(p.roles, admin, domain.RoleAdmin, domain.RoleRateUpdater); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *FixedProvider) ID() string { return p.id }
func (p *FixedProvider) Kind() Kind { return KindFixed }

func (p *FixedProvider) Rate(context.Context) (domain.Rate, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate, nil
}

func (p *FixedProvider) UpdateRate(caller domain.Address, newRate domain.Rate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.roles.Require(domain.RoleRateUpdater, caller); err != nil {
		return err
	}
	if !newRate.Valid() {
		return fmt.Errorf("%w: rate must be positive, got %d", domain.ErrInvalidRate, newRate)
	}

	old := p.rate
	p.rate = newRate
	zap.L().Info("fixed rate updated",
		zap.String("provider", p.id),
		zap.String("old_rate", old.String()),
		zap.String("new_rate", newRate.String()))
	p.publisher.Publish(events.New(events.RateUpdated, source(p.id), events.RateUpdatedPayload{
		OldRate: int64(old),
		NewRate: int64(newRate),
	}))
	return nil
}

func (p *FixedProvider) HasRole(role domain.Role, account domain.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles.Has(role, account)
}

func (p *FixedProvider) GrantRole(caller domain.Address, role domain.Role, account domain.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return changeRole(p.roles, p.publisher, p.id, caller, role, account, true)
}

func (p *FixedProvider) RevokeRole(caller domain.Address, role domain.Role, account domain.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return changeRole(p.roles, p.publisher, p.id, caller, role, account, false)
}

func source(id string) string { return "rates:" + id }

func grantAll(r *access.Registry, account domain.Address, roles ...domain.Role) error {
	for _, role := range roles {
		if _, err := r.Grant(role, account); err != nil {
			return err
		}
	}
	return nil
}

func changeRole(r *access.Registry, pub events.Publisher, id string, caller domain.Address, role domain.Role, account domain.Address, grant bool) error {
	if err := r.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	var (
		changed bool
		err     error
	)
	evType := events.ProviderRoleRevoked
	if grant {
		changed, err = r.Grant(role, account)
		evType = events.ProviderRoleGranted
	} else {
		changed, err = r.Revoke(role, account)
	}
	if err != nil || !changed {
		return err
	}
	pub.Publish(events.New(evType, source(id), events.RolePayload{
		Role:    string(role),
		Account: account.String(),
		Sender:  caller.String(),
	}))
	return nil
}
