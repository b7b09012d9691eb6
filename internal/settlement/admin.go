package settlement

import (
	"fmt"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"github.com/ayo6706/dual-currency-settlement/internal/ledger"
	"github.com/ayo6706/dual-currency-settlement/internal/rates"
	"go.uber.org/zap"
)

func (e *Engine) UpdateFee(caller domain.Address, bps uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.Require(domain.RoleFeeManager, caller); err != nil {
		return err
	}
	if bps > domain.MaxFeeBps {
		return fmt.Errorf("%w: %d bps exceeds %d", domain.ErrFeeTooHigh, bps, domain.MaxFeeBps)
	}

	old := e.feeBps
	e.feeBps = bps
	e.log.Info("settlement fee updated", zap.Uint32("old_fee", old), zap.Uint32("new_fee", bps))
	e.publisher.Publish(events.New(events.FeeUpdated, eventSource, events.FeeUpdatedPayload{OldFee: old, NewFee: bps}))
	return nil
}

func (e *Engine) UpdateRateProvider(caller domain.Address, next rates.Provider) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.Require(domain.RoleRateProviderManager, caller); err != nil {
		return err
	}
	if next == nil {
		return fmt.Errorf("%w: rate provider is required", domain.ErrInvalidConfiguration)
	}

	old := e.provider
	e.provider = next
	e.log.Info("rate provider updated", zap.String("old", old.ID()), zap.String("new", next.ID()))
	e.publisher.Publish(events.New(events.RateProviderUpdated, eventSource, events.ReferenceUpdatedPayload{
		Old: old.ID(),
		New: next.ID(),
	}))
	return nil
}

func (e *Engine) Pause(caller domain.Address) error {
	return e.setPaused(caller, true)
}

func (e *Engine) Unpause(caller domain.Address) error {
	return e.setPaused(caller, false)
}

func (e *Engine) setPaused(caller domain.Address, paused bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	if e.paused == paused {
		return fmt.Errorf("%w: settlement paused=%t", domain.ErrAlreadyInState, paused)
	}
	e.paused = paused

	evType := events.SettlementUnpaused
	if paused {
		evType = events.SettlementPaused
	}
	e.log.Info("settlement pause state changed", zap.Bool("paused", paused), zap.String("caller", caller.String()))
	e.publisher.Publish(events.New(evType, eventSource, events.PausePayload{Account: caller.String()}))
	return nil
}

func (e *Engine) GrantRole(caller domain.Address, role domain.Role, account domain.Address) error {
	return e.changeRole(caller, role, account, true)
}

func (e *Engine) RevokeRole(caller domain.Address, role domain.Role, account domain.Address) error {
	return e.changeRole(caller, role, account, false)
}

func (e *Engine) changeRole(caller domain.Address, role domain.Role, account domain.Address, grant bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.roles.Require(domain.RoleAdmin, caller); err != nil {
		return err
	}
	var (
		changed bool
		err     error
	)
	evType := events.SettlementRoleRevoked
	if grant {
		changed, err = e.roles.Grant(role, account)
		evType = events.SettlementRoleGranted
	} else {
		changed, err = e.roles.Revoke(role, account)
	}
	if err != nil || !changed {
		return err
	}
	e.publisher.Publish(events.New(evType, eventSource, events.RolePayload{
		Role:    string(role),
		Account: account.String(),
		Sender:  caller.String(),
	}))
	return nil
}

func (e *Engine) FeeRate() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.feeBps
}

func (e *Engine) Provider() rates.Provider {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.provider
}

func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

func (e *Engine) HasRole(role domain.Role, account domain.Address) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.Has(role, account)
}

func (e *Engine) Roles() map[domain.Role][]domain.Address {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roles.Snapshot()
}

// Custody is the account the engine pulls funds into and mints from.
func (e *Engine) Custody() domain.Address { return e.custody }

// Authorities returns the fee recipients for the forward and reverse directions.
func (e *Engine) Authorities() (source, destination domain.Address) {
	return e.sourceAuth, e.destAuth
}

// Ledgers returns the forward-direction source and destination ledgers.
func (e *Engine) Ledgers() (source, destination *ledger.Ledger) {
	return e.source, e.destination
}
