package access

import (
	"testing"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_GrantRevoke(t *testing.T) {
	r := NewRegistry(domain.RoleAdmin, domain.RoleMinter)
	alice := domain.Address("alice")

	require.ErrorIs(t, r.Require(domain.RoleMinter, alice), domain.ErrUnauthorized)

	changed, err := r.Grant(domain.RoleMinter, alice)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.NoError(t, r.Require(domain.RoleMinter, alice))

	changed, err = r.Grant(domain.RoleMinter, alice)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = r.Revoke(domain.RoleMinter, alice)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, r.Has(domain.RoleMinter, alice))
	assert.Empty(t, r.Members(domain.RoleMinter))
}

func TestRegistry_RolesDoNotImplyEachOther(t *testing.T) {
	r := NewRegistry(domain.RoleAdmin, domain.RoleMinter)
	admin := domain.Address("admin")
	_, err := r.Grant(domain.RoleAdmin, admin)
	require.NoError(t, err)

	assert.ErrorIs(t, r.Require(domain.RoleMinter, admin), domain.ErrUnauthorized)
}

func TestRegistry_Validation(t *testing.T) {
	r := NewRegistry(domain.RoleAdmin)

	_, err := r.Grant(domain.RoleFeeManager, "bob")
	assert.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = r.Grant(domain.RoleAdmin, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidAccount)
}

func TestRegistry_SnapshotListsSupportedRoles(t *testing.T) {
	r := NewRegistry(domain.RoleAdmin, domain.RoleBurner)
	_, _ = r.Grant(domain.RoleAdmin, "b")
	_, _ = r.Grant(domain.RoleAdmin, "a")

	snap := r.Snapshot()
	assert.Equal(t, []domain.Address{"a", "b"}, snap[domain.RoleAdmin])
	assert.Empty(t, snap[domain.RoleBurner])
	assert.Len(t, snap, 2)
}
