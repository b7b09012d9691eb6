package service

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

// Auditable is the slice of a ledger reconciliation needs.
type Auditable interface {
	Code() string
	Decimals() uint8
	TotalSupply() *big.Int
	Audit() error
}

// ReconciliationService verifies that every ledger's total supply equals the
// sum of its balances.
type ReconciliationService struct {
	ledgers []Auditable
}

func NewReconciliationService(ledgers ...Auditable) *ReconciliationService {
	return &ReconciliationService{ledgers: ledgers}
}

// Run audits all ledgers and reports every imbalance found, not just the first.
// The returned error wraps domain.ErrInvariantViolated.
func (s *ReconciliationService) Run(ctx context.Context) error {
	var result *multierror.Error
	for _, l := range s.ledgers {
		if err := ctx.Err(); err != nil {
			return err
		}
		supply := l.TotalSupply()
		observability.SetTotalSupply(l.Code(), domain.UnitsFloat(supply, l.Decimals()))

		if err := l.Audit(); err != nil {
			observability.IncrementLedgerImbalance(l.Code())
			zap.L().Error("CRITICAL: ledger imbalance detected",
				zap.String("currency", l.Code()),
				zap.String("total_supply", supply.String()),
				zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("%s: %w", l.Code(), err))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	zap.L().Debug("ledgers balanced", zap.Int("ledgers", len(s.ledgers)))
	return nil
}
