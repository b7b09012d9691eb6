package rates

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/access"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/feed"
	"go.uber.org/zap"
)

var ten = big.NewInt(10)

// OracleProvider reads its rate from an upstream price feed and rescales the
// answer to 8 decimals.
type OracleProvider struct {
	id        string
	mu        sync.RWMutex
	feed      feed.Feed
	roles     *access.Registry
	publisher events.Publisher
	maxAge    time.Duration
	now       func() time.Time
}

type OracleOption func(*OracleProvider)

// WithMaxAge rejects rounds older than d with ErrFeedUnavailable. Zero keeps
// every round usable regardless of age.
func WithMaxAge(d time.Duration) OracleOption {
	return func(p *OracleProvider) {
		if d > 0 {
			p.maxAge = d
		}
	}
}

func WithOracleClock(now func() time.Time) OracleOption {
	return func(p *OracleProvider) {
		if now != nil {
			p.now = now
		}
	}
}

func NewOracle(id string, admin domain.Address, f feed.Feed, publisher events.Publisher, opts ...OracleOption) (*OracleProvider, error) {
	if admin.IsZero() {
		return nil, fmt.Errorf("%w: provider admin is the zero address", domain.ErrInvalidConfiguration)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: price feed is required", domain.ErrInvalidConfiguration)
	}
	if publisher == nil {
		publisher = events.Discard
	}
	p := &OracleProvider{
		id:        id,
		feed:      f,
		roles:     access.NewRegistry(domain.RoleAdmin, domain.RoleRateUpdater),
		publisher: publisher,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := grantAll(p.roles, admin, domain.RoleAdmin, domain.RoleRateUpdater); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *OracleProvider) ID() string { return p.id }
func (p *OracleProvider) Kind() Kind { return KindOracle }

// Feed returns the current upstream reference.
func (p *OracleProvider) Feed() feed.Feed {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.feed
}

func (p *OracleProvider) Rate(ctx context.Context) (domain.Rate, error) {
	f := p.Feed()
	round, err := f.LatestRound(ctx)
	if err != nil {
		return 0, fmt.Errorf("read feed %s: %w", f.ID(), err)
	}
	if p.maxAge > 0 {
		if age := p.now().Sub(round.UpdatedAt); age > p.maxAge {
			return 0, fmt.Errorf("%w: feed %s round is %s old, limit %s",
				domain.ErrFeedUnavailable, f.ID(), age.Truncate(time.Second), p.maxAge)
		}
	}
	return Normalize(round.Answer, round.Decimals)
}

// Normalize rescales a feed answer with the given decimals to the 10^8 rate
// scale. Extra precision is truncated.
func Normalize(answer *big.Int, decimals uint8) (domain.Rate, error) {
	if answer == nil || answer.Sign() <= 0 {
		return 0, fmt.Errorf("%w: oracle answer %v is not positive", domain.ErrInvalidRate, answer)
	}

	scaled := new(big.Int).Set(answer)
	switch {
	case decimals < domain.RateDecimals:
		factor := new(big.Int).Exp(ten, big.NewInt(int64(domain.RateDecimals-int(decimals))), nil)
		scaled.Mul(scaled, factor)
	case decimals > domain.RateDecimals:
		factor := new(big.Int).Exp(ten, big.NewInt(int64(int(decimals)-domain.RateDecimals)), nil)
		scaled.Quo(scaled, factor)
	}

	if scaled.Sign() <= 0 {
		return 0, fmt.Errorf("%w: oracle answer %s at %d decimals rounds to zero", domain.ErrInvalidRate, answer, decimals)
	}
	if !scaled.IsInt64() {
		return 0, fmt.Errorf("%w: oracle answer %s at %d decimals is out of range", domain.ErrInvalidRate, answer, decimals)
	}
	return domain.Rate(scaled.Int64()), nil
}

// UpdateOracle swaps the upstream feed.
func (p *OracleProvider) UpdateOracle(caller domain.Address, next feed.Feed) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.roles.Require(domain.RoleRateUpdater, caller); err != nil {
		return err
	}
	if next == nil {
		return fmt.Errorf("%w: price feed is required", domain.ErrInvalidConfiguration)
	}

	old := p.feed
	p.feed = next
	zap.L().Info("oracle reference updated",
		zap.String("provider", p.id),
		zap.String("old_feed", old.ID()),
		zap.String("new_feed", next.ID()))
	p.publisher.Publish(events.New(events.OracleUpdated, source(p.id), events.ReferenceUpdatedPayload{
		Old: old.ID(),
		New: next.ID(),
	}))
	return nil
}

func (p *OracleProvider) HasRole(role domain.Role, account domain.Address) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roles.Has(role, account)
}

func (p *OracleProvider) GrantRole(caller domain.Address, role domain.Role, account domain.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return changeRole(p.roles, p.publisher, p.id, caller, role, account, true)
}

func (p *OracleProvider) RevokeRole(caller domain.Address, role domain.Role, account domain.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return changeRole(p.roles, p.publisher, p.id, caller, role, account, false)
}
