// Package access holds the role registry each governed component owns.
package access

import (
	"fmt"
	"sort"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// Registry maps roles to account sets for a single component. It is not safe for
// concurrent use; owners guard it with their own lock.
type Registry struct {
	supported map[domain.Role]struct{}
	members   map[domain.Role]map[domain.Address]struct{}
}

// NewRegistry creates a registry that only accepts the given roles.
func NewRegistry(roles ...domain.Role) *Registry {
	r := &Registry{
		supported: make(map[domain.Role]struct{}, len(roles)),
		members:   make(map[domain.Role]map[domain.Address]struct{}, len(roles)),
	}
	for _, role := range roles {
		r.supported[role] = struct{}{}
	}
	return r
}

func (r *Registry) Supports(role domain.Role) bool {
	_, ok := r.supported[role]
	return ok
}

func (r *Registry) Has(role domain.Role, account domain.Address) bool {
	_, ok := r.members[role][account]
	return ok
}

// Require returns ErrUnauthorized unless account holds role.
func (r *Registry) Require(role domain.Role, account domain.Address) error {
	if !r.Has(role, account) {
		return fmt.Errorf("%w: %s is missing role %s", domain.ErrUnauthorized, account, role)
	}
	return nil
}

// Grant adds account to role and reports whether membership changed.
func (r *Registry) Grant(role domain.Role, account domain.Address) (bool, error) {
	if err := r.validate(role, account); err != nil {
		return false, err
	}
	if r.Has(role, account) {
		return false, nil
	}
	if r.members[role] == nil {
		r.members[role] = make(map[domain.Address]struct{})
	}
	r.members[role][account] = struct{}{}
	return true, nil
}

// Revoke removes account from role and reports whether membership changed.
func (r *Registry) Revoke(role domain.Role, account domain.Address) (bool, error) {
	if err := r.validate(role, account); err != nil {
		return false, err
	}
	if !r.Has(role, account) {
		return false, nil
	}
	delete(r.members[role], account)
	if len(r.members[role]) == 0 {
		delete(r.members, role)
	}
	return true, nil
}

// Members lists holders of role in lexical order.
func (r *Registry) Members(role domain.Role) []domain.Address {
	out := make([]domain.Address, 0, len(r.members[role]))
	for account := range r.members[role] {
		out = append(out, account)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Snapshot returns every supported role with its holders.
func (r *Registry) Snapshot() map[domain.Role][]domain.Address {
	out := make(map[domain.Role][]domain.Address, len(r.supported))
	for role := range r.supported {
		out[role] = r.Members(role)
	}
	return out
}

func (r *Registry) validate(role domain.Role, account domain.Address) error {
	if !r.Supports(role) {
		return fmt.Errorf("%w: %s is not used by this component", domain.ErrInvalidRole, role)
	}
	if account.IsZero() {
		return fmt.Errorf("%w: zero address", domain.ErrInvalidAccount)
	}
	return nil
}
