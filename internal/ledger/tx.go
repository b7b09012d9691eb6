package ledger

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"go.uber.org/zap"
)

// Tx stages writes against one ledger. Nothing is visible to other callers until
// the owning update or Atomic call commits it. A Tx is only valid inside that call.
type Tx struct {
	l           *Ledger
	balances    map[domain.Address]*big.Int
	allowances  map[allowanceKey]*big.Int
	supplyDelta *big.Int
	events      []events.Event
}

func (l *Ledger) begin() *Tx {
	return &Tx{
		l:           l,
		balances:    make(map[domain.Address]*big.Int),
		allowances:  make(map[allowanceKey]*big.Int),
		supplyDelta: new(big.Int),
	}
}

// Ledger returns the ledger this transaction writes to.
func (tx *Tx) Ledger() *Ledger { return tx.l }

// BalanceOf reads through staged writes.
func (tx *Tx) BalanceOf(account domain.Address) *big.Int {
	if v, ok := tx.balances[account]; ok {
		return new(big.Int).Set(v)
	}
	return tx.l.balanceLocked(account)
}

func (tx *Tx) allowance(key allowanceKey) *big.Int {
	if v, ok := tx.allowances[key]; ok {
		return new(big.Int).Set(v)
	}
	if v, ok := tx.l.allowances[key]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (tx *Tx) Transfer(caller, to domain.Address, amount *big.Int) error {
	if err := tx.checkMovement(to, amount); err != nil {
		return err
	}
	if err := tx.move(caller, to, amount); err != nil {
		return err
	}
	tx.emit(events.LedgerTransfer, events.TransferPayload{From: caller.String(), To: to.String(), Amount: amount.String()})
	return nil
}

// Approve sets an absolute allowance. It is accepted while the ledger is paused.
func (tx *Tx) Approve(owner, spender domain.Address, amount *big.Int) error {
	if spender.IsZero() {
		return fmt.Errorf("%w: spender is the zero address", domain.ErrInvalidAccount)
	}
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("%w: allowance must not be negative", domain.ErrInvalidAmount)
	}
	tx.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(amount)
	tx.emit(events.LedgerApproval, events.ApprovalPayload{Owner: owner.String(), Spender: spender.String(), Amount: amount.String()})
	return nil
}

func (tx *Tx) TransferFrom(spender, owner, to domain.Address, amount *big.Int) error {
	if err := tx.checkMovement(to, amount); err != nil {
		return err
	}
	key := allowanceKey{owner, spender}
	allowed := tx.allowance(key)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s allows %s to spend %s of %s, needs %s",
			domain.ErrInsufficientAllowance, owner, spender, allowed, tx.l.code, amount)
	}
	if err := tx.move(owner, to, amount); err != nil {
		return err
	}
	tx.allowances[key] = allowed.Sub(allowed, amount)
	tx.emit(events.LedgerTransfer, events.TransferPayload{From: owner.String(), To: to.String(), Amount: amount.String()})
	return nil
}

func (tx *Tx) Mint(caller, to domain.Address, amount *big.Int) error {
	if err := tx.l.roles.Require(domain.RoleMinter, caller); err != nil {
		return err
	}
	if err := tx.checkMovement(to, amount); err != nil {
		return err
	}
	tx.credit(to, amount)
	tx.supplyDelta.Add(tx.supplyDelta, amount)
	tx.emit(events.LedgerMint, events.MintPayload{To: to.String(), Amount: amount.String()})
	return nil
}

// Burn destroys the caller's own balance. No role is required.
func (tx *Tx) Burn(caller domain.Address, amount *big.Int) error {
	return tx.burn(caller, amount)
}

// BurnFrom destroys any holder's balance. It requires BURNER and ignores allowances.
func (tx *Tx) BurnFrom(caller, holder domain.Address, amount *big.Int) error {
	if err := tx.l.roles.Require(domain.RoleBurner, caller); err != nil {
		return err
	}
	return tx.burn(holder, amount)
}

func (tx *Tx) burn(holder domain.Address, amount *big.Int) error {
	if tx.l.paused {
		return fmt.Errorf("%w: %s ledger", domain.ErrSystemPaused, tx.l.code)
	}
	if !domain.IsPositive(amount) {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	if err := tx.debit(holder, amount); err != nil {
		return err
	}
	tx.supplyDelta.Sub(tx.supplyDelta, amount)
	tx.emit(events.LedgerBurn, events.BurnPayload{From: holder.String(), Amount: amount.String()})
	return nil
}

func (tx *Tx) checkMovement(to domain.Address, amount *big.Int) error {
	if tx.l.paused {
		return fmt.Errorf("%w: %s ledger", domain.ErrSystemPaused, tx.l.code)
	}
	if !domain.IsPositive(amount) {
		return fmt.Errorf("%w: amount must be greater than zero", domain.ErrInvalidAmount)
	}
	if to.IsZero() {
		return fmt.Errorf("%w: recipient is the zero address", domain.ErrInvalidAccount)
	}
	return nil
}

func (tx *Tx) move(from, to domain.Address, amount *big.Int) error {
	if err := tx.debit(from, amount); err != nil {
		return err
	}
	tx.credit(to, amount)
	return nil
}

func (tx *Tx) debit(account domain.Address, amount *big.Int) error {
	bal := tx.BalanceOf(account)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s %s, needs %s",
			domain.ErrInsufficientBalance, account, bal, tx.l.code, amount)
	}
	tx.balances[account] = bal.Sub(bal, amount)
	return nil
}

func (tx *Tx) credit(account domain.Address, amount *big.Int) {
	bal := tx.BalanceOf(account)
	tx.balances[account] = bal.Add(bal, amount)
}

func (tx *Tx) emit(t events.Type, payload any) {
	tx.events = append(tx.events, events.New(t, tx.l.source(), payload))
}

// verify checks conservation on the staged overlay alone: no staged balance or
// allowance is negative, and the staged balance changes add up to the supply
// change. Its cost depends on the accounts the transaction touched, not on the
// size of the ledger. The caller holds l.mu.
func (tx *Tx) verify() error {
	l := tx.l
	net := new(big.Int)
	for account, v := range tx.balances {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s balance of %s would become %s", domain.ErrInvariantViolated, l.code, account, v)
		}
		net.Add(net, v)
		if prev, ok := l.balances[account]; ok {
			net.Sub(net, prev)
		}
	}
	for key, v := range tx.allowances {
		if v.Sign() < 0 {
			return fmt.Errorf("%w: %s allowance %s->%s would become %s", domain.ErrInvariantViolated, l.code, key.owner, key.spender, v)
		}
	}
	if net.Cmp(tx.supplyDelta) != 0 {
		return fmt.Errorf("%w: %s balances change by %s but supply changes by %s", domain.ErrInvariantViolated, l.code, net, tx.supplyDelta)
	}
	if next := new(big.Int).Add(l.supply, tx.supplyDelta); next.Sign() < 0 {
		return fmt.Errorf("%w: %s supply would become %s", domain.ErrInvariantViolated, l.code, next)
	}
	return nil
}

// mustVerify panics when the staged writes would break conservation. Reaching
// that point means the ledger code itself is wrong, so nothing is applied.
func (tx *Tx) mustVerify() {
	if err := tx.verify(); err != nil {
		tx.l.log.Error("ledger invariant violated by staged writes", zap.String("currency", tx.l.code), zap.Error(err))
		panic(err)
	}
}

// apply writes staged changes and publishes their events. The caller holds l.mu.
func (tx *Tx) apply() {
	l := tx.l
	for account, v := range tx.balances {
		if v.Sign() == 0 {
			delete(l.balances, account)
			continue
		}
		l.balances[account] = v
	}
	for key, v := range tx.allowances {
		if v.Sign() == 0 {
			delete(l.allowances, key)
			continue
		}
		l.allowances[key] = v
	}
	l.supply.Add(l.supply, tx.supplyDelta)

	if len(tx.events) > 0 {
		l.log.Debug("ledger commit",
			zap.String("currency", l.code),
			zap.Int("events", len(tx.events)),
			zap.String("supply", l.supply.String()))
		l.publisher.Publish(tx.events...)
	}
}

func (tx *Tx) commit() {
	tx.mustVerify()
	tx.apply()
}

// Atomic runs fn with one staged transaction per ledger, in argument order. Ledgers
// are locked in ascending code order so concurrent callers cannot deadlock. Either
// every transaction commits or none does.
func Atomic(fn func(txs []*Tx) error, ledgers ...*Ledger) error {
	if len(ledgers) == 0 {
		return fmt.Errorf("%w: no ledgers", domain.ErrInvalidConfiguration)
	}
	seen := make(map[string]struct{}, len(ledgers))
	for _, l := range ledgers {
		if l == nil {
			return fmt.Errorf("%w: nil ledger", domain.ErrInvalidConfiguration)
		}
		if _, dup := seen[l.code]; dup {
			return fmt.Errorf("%w: ledger %s listed twice", domain.ErrInvalidConfiguration, l.code)
		}
		seen[l.code] = struct{}{}
	}

	ordered := make([]*Ledger, len(ledgers))
	copy(ordered, ledgers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].code < ordered[j].code })
	for _, l := range ordered {
		l.mu.Lock()
	}
	defer func() {
		for i := len(ordered) - 1; i >= 0; i-- {
			ordered[i].mu.Unlock()
		}
	}()

	txs := make([]*Tx, len(ledgers))
	for i, l := range ledgers {
		txs[i] = l.begin()
	}
	if err := fn(txs); err != nil {
		return err
	}
	for _, tx := range txs {
		tx.mustVerify()
	}
	for _, tx := range txs {
		tx.apply()
	}
	return nil
}
