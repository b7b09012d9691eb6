package ledger

import (
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/access"
	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"go.uber.org/zap"
)

// Config describes one issued currency.
type Config struct {
	Code      string
	Name      string
	Decimals  uint8
	Authority domain.Address
}

type allowanceKey struct {
	owner   domain.Address
	spender domain.Address
}

// Ledger holds balances, allowances and supply for a single currency. All reads
// and writes go through mu; multi-ledger work goes through Atomic.
type Ledger struct {
	mu sync.Mutex

	code      string
	name      string
	decimals  uint8
	authority domain.Address

	balances   map[domain.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     *big.Int
	paused     bool
	roles      *access.Registry

	publisher events.Publisher
	log       *zap.Logger
}

type Option func(*Ledger)

func WithLogger(log *zap.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// New creates an empty ledger. The authority starts with ADMIN, MINTER and BURNER.
func New(cfg Config, publisher events.Publisher, opts ...Option) (*Ledger, error) {
	code := strings.TrimSpace(cfg.Code)
	if code == "" {
		return nil, fmt.Errorf("%w: currency code is required", domain.ErrInvalidConfiguration)
	}
	if cfg.Authority.IsZero() {
		return nil, fmt.Errorf("%w: %s authority is the zero address", domain.ErrInvalidConfiguration, code)
	}
	if publisher == nil {
		publisher = events.Discard
	}
	decimals := cfg.Decimals
	if decimals == 0 {
		decimals = domain.DefaultDecimals
	}
	name := cfg.Name
	if name == "" {
		name = code
	}

	l := &Ledger{
		code:       code,
		name:       name,
		decimals:   decimals,
		authority:  cfg.Authority,
		balances:   make(map[domain.Address]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
		supply:     new(big.Int),
		roles:      access.NewRegistry(domain.RoleAdmin, domain.RoleMinter, domain.RoleBurner),
		publisher:  publisher,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleMinter, domain.RoleBurner} {
		if _, err := l.roles.Grant(role, cfg.Authority); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Ledger) Code() string              { return l.code }
func (l *Ledger) Name() string              { return l.name }
func (l *Ledger) Decimals() uint8           { return l.decimals }
func (l *Ledger) Authority() domain.Address { return l.authority }
func (l *Ledger) source() string            { return "ledger:" + l.code }

// Format renders an amount in display units.
func (l *Ledger) Format(amount *big.Int) string {
	return domain.FormatUnits(amount, l.decimals)
}

// BalanceOf returns 0 for accounts that were never funded.
func (l *Ledger) BalanceOf(account domain.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balanceLocked(account)
}

func (l *Ledger) TotalSupply() *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.supply)
}

func (l *Ledger) Allowance(owner, spender domain.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (l *Ledger) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

func (l *Ledger) HasRole(role domain.Role, account domain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles.Has(role, account)
}

func (l *Ledger) Roles() map[domain.Role][]domain.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.roles.Snapshot()
}

func (l *Ledger) Transfer(caller, to domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.Transfer(caller, to, amount) })
}

func (l *Ledger) Approve(owner, spender domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.Approve(owner, spender, amount) })
}

func (l *Ledger) TransferFrom(spender, owner, to domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.TransferFrom(spender, owner, to, amount) })
}

func (l *Ledger) Mint(caller, to domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.Mint(caller, to, amount) })
}

func (l *Ledger) Burn(caller domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.Burn(caller, amount) })
}

func (l *Ledger) BurnFrom(caller, holder domain.Address, amount *big.Int) error {
	return l.update(func(tx *Tx) error { return tx.BurnFrom(caller, holder, amount) })
}

func (l *Ledger) Pause(caller domain.Address) error {
	return l.setPaused(caller, true)
}

func (l *Ledger) Unpause(caller domain.Address) error {
	return l.setPaused(caller, false)
}

func (l *Ledger) setPaused(caller domain.Address, paused bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.roles.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if l.paused == paused {
		return fmt.Errorf("%w: %s paused=%t", domain.ErrAlreadyInState, l.code, paused)
	}
	l.paused = paused

	evType := events.LedgerUnpaused
	if paused {
		evType = events.LedgerPaused
	}
	l.log.Info("ledger pause state changed",
		zap.String("currency", l.code),
		zap.Bool("paused", paused),
		zap.String("caller", caller.String()))
	l.publisher.Publish(events.New(evType, l.source(), events.PausePayload{Account: caller.String()}))
	return nil
}

func (l *Ledger) GrantRole(caller domain.Address, role domain.Role, account domain.Address) error {
	return l.changeRole(caller, role, account, true)
}

func (l *Ledger) RevokeRole(caller domain.Address, role domain.Role, account domain.Address) error {
	return l.changeRole(caller, role, account, false)
}

func (l *Ledger) changeRole(caller domain.Address, role domain.Role, account domain.Address, grant bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.roles.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}

	var (
		changed bool
		err     error
		evType  = events.LedgerRoleRevoked
	)
	if grant {
		changed, err = l.roles.Grant(role, account)
		evType = events.LedgerRoleGranted
	} else {
		changed, err = l.roles.Revoke(role, account)
	}
	if err != nil || !changed {
		return err
	}

	l.log.Info("ledger role changed",
		zap.String("currency", l.code),
		zap.String("event", string(evType)),
		zap.String("role", string(role)),
		zap.String("account", account.String()))
	l.publisher.Publish(events.New(evType, l.source(), events.RolePayload{
		Role:    string(role),
		Account: account.String(),
		Sender:  caller.String(),
	}))
	return nil
}

// Audit recomputes the sum of balances and compares it with total supply.
func (l *Ledger) Audit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.auditLocked()
}

// Snapshot is a point-in-time copy of a ledger's balance sheet.
type Snapshot struct {
	Code     string
	Supply   *big.Int
	Balances map[domain.Address]*big.Int
	Paused   bool
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	balances := make(map[domain.Address]*big.Int, len(l.balances))
	for account, v := range l.balances {
		balances[account] = new(big.Int).Set(v)
	}
	return Snapshot{
		Code:     l.code,
		Supply:   new(big.Int).Set(l.supply),
		Balances: balances,
		Paused:   l.paused,
	}
}

func (l *Ledger) update(fn func(tx *Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx := l.begin()
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (l *Ledger) balanceLocked(account domain.Address) *big.Int {
	if v, ok := l.balances[account]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (l *Ledger) auditLocked() error {
	sum := new(big.Int)
	for account, v := range l.balances {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s balance of %s is negative (%s)", domain.ErrInvariantViolated, l.code, account, v)
		}
		sum.Add(sum, v)
	}
	for key, v := range l.allowances {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s allowance %s->%s is negative", domain.ErrInvariantViolated, l.code, key.owner, key.spender)
		}
	}
	if sum.Cmp(l.supply) != 0 {
		return fmt.Errorf("%w: %s supply %s != sum of balances %s", domain.ErrInvariantViolated, l.code, l.supply, sum)
	}
	return nil
}
