package rates

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	admin   domain.Address = "deployer"
	updater domain.Address = "rate-desk"
	mallory domain.Address = "mallory"
)

func TestFixedProvider(t *testing.T) {
	rec := &events.Recorder{}
	p, err := NewFixed("fixed", admin, 94_500_000, rec)
	require.NoError(t, err)

	rate, err := p.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Rate(94_500_000), rate)
	assert.Equal(t, KindFixed, p.Kind())

	require.NoError(t, p.UpdateRate(admin, 95_000_000))
	rate, _ = p.Rate(context.Background())
	assert.Equal(t, domain.Rate(95_000_000), rate)

	updated := rec.OfType(events.RateUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, events.RateUpdatedPayload{OldRate: 94_500_000, NewRate: 95_000_000}, updated[0].Payload)
}

func TestFixedProvider_Validation(t *testing.T) {
	_, err := NewFixed("fixed", admin, 0, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	_, err = NewFixed("fixed", "", 1, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)

	p, err := NewFixed("fixed", admin, 1, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, p.UpdateRate(mallory, 5), domain.ErrUnauthorized)
	assert.ErrorIs(t, p.UpdateRate(admin, 0), domain.ErrInvalidRate)
	assert.ErrorIs(t, p.UpdateRate(admin, -1), domain.ErrInvalidRate)

	rate, _ := p.Rate(context.Background())
	assert.Equal(t, domain.Rate(1), rate)
}

func TestFixedProvider_RoleManagement(t *testing.T) {
	rec := &events.Recorder{}
	p, err := NewFixed("fixed", admin, 1, rec)
	require.NoError(t, err)

	assert.ErrorIs(t, p.GrantRole(updater, domain.RoleRateUpdater, updater), domain.ErrUnauthorized)

	require.NoError(t, p.GrantRole(admin, domain.RoleRateUpdater, updater))
	require.NoError(t, p.UpdateRate(updater, 2))

	require.NoError(t, p.RevokeRole(admin, domain.RoleRateUpdater, updater))
	assert.ErrorIs(t, p.UpdateRate(updater, 3), domain.ErrUnauthorized)

	assert.ErrorIs(t, p.GrantRole(admin, domain.RoleMinter, updater), domain.ErrInvalidRole)
	assert.Len(t, rec.OfType(events.ProviderRoleGranted), 1)
	assert.Len(t, rec.OfType(events.ProviderRoleRevoked), 1)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		answer   string
		decimals uint8
		want     domain.Rate
		wantErr  error
	}{
		{"native scale", "94500000", 8, 94_500_000, nil},
		{"fewer decimals", "945000", 6, 94_500_000, nil},
		{"zero decimals", "2", 0, 200_000_000, nil},
		{"more decimals", "945000000000000000", 18, 94_500_000, nil},
		{"truncates extra precision", "945000009", 10, 9_450_000, nil},
		{"zero answer", "0", 8, 0, domain.ErrInvalidRate},
		{"negative answer", "-1", 8, 0, domain.ErrInvalidRate},
		{"rounds to zero", "99", 10, 0, domain.ErrInvalidRate},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			answer, ok := new(big.Int).SetString(tc.answer, 10)
			require.True(t, ok)

			got, err := Normalize(answer, tc.decimals)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestOracleProvider(t *testing.T) {
	rec := &events.Recorder{}
	f := feed.NewStatic("mock", "RWFC / KES", 8, 9_450_000)
	p, err := NewOracle("oracle", admin, f, rec)
	require.NoError(t, err)

	rate, err := p.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Rate(9_450_000), rate)

	f.UpdatePrice(big.NewInt(0))
	_, err = p.Rate(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	f.UpdatePrice(big.NewInt(-5))
	_, err = p.Rate(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	next := feed.NewStatic("mock-18", "RWFC / KES", 18, 0)
	next.UpdatePrice(new(big.Int).Mul(big.NewInt(945), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)))

	assert.ErrorIs(t, p.UpdateOracle(mallory, next), domain.ErrUnauthorized)
	assert.ErrorIs(t, p.UpdateOracle(admin, nil), domain.ErrInvalidConfiguration)
	require.NoError(t, p.UpdateOracle(admin, next))
	assert.Same(t, next, p.Feed())

	rate, err = p.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Rate(94_500_000), rate)

	updated := rec.OfType(events.OracleUpdated)
	require.Len(t, updated, 1)
	assert.Equal(t, events.ReferenceUpdatedPayload{Old: "mock", New: "mock-18"}, updated[0].Payload)
}

func TestOracleProvider_FeedUnavailable(t *testing.T) {
	p, err := NewOracle("oracle", admin, feed.NewPush("push", "", "k"), nil)
	require.NoError(t, err)

	_, err = p.Rate(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestOracleProvider_MaxAge(t *testing.T) {
	f := feed.NewStatic("mock", "RWFC / KES", 8, 9_450_000)
	round, err := f.LatestRound(context.Background())
	require.NoError(t, err)

	now := round.UpdatedAt.Add(30 * time.Minute)
	p, err := NewOracle("oracle", admin, f, nil,
		WithMaxAge(time.Hour),
		WithOracleClock(func() time.Time { return now }))
	require.NoError(t, err)

	rate, err := p.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Rate(9_450_000), rate)

	now = round.UpdatedAt.Add(2 * time.Hour)
	_, err = p.Rate(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)

	f.UpdatePrice(big.NewInt(9_500_000))
	now = time.Now().Add(time.Minute)
	rate, err = p.Rate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Rate(9_500_000), rate)
}

func TestOracleProvider_NoMaxAgeAcceptsOldRounds(t *testing.T) {
	f := feed.NewStatic("mock", "", 8, 1)
	p, err := NewOracle("oracle", admin, f, nil,
		WithOracleClock(func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }))
	require.NoError(t, err)

	_, err = p.Rate(context.Background())
	assert.NoError(t, err)
}

func TestRegistry(t *testing.T) {
	fixed, err := NewFixed("fixed", admin, 1, nil)
	require.NoError(t, err)
	oracle, err := NewOracle("oracle", admin, feed.NewStatic("s", "", 8, 1), nil)
	require.NoError(t, err)
	r := NewRegistry(fixed, oracle)

	got, err := r.Fixed("fixed")
	require.NoError(t, err)
	assert.Same(t, fixed, got)

	_, err = r.Fixed("oracle")
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)

	o, err := r.Oracle("oracle")
	require.NoError(t, err)
	assert.Same(t, oracle, o)

	g, err := r.Governed("oracle")
	require.NoError(t, err)
	assert.True(t, g.HasRole(domain.RoleAdmin, admin))

	_, err = r.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownProvider)
	assert.Len(t, r.All(), 2)
}
