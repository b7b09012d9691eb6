package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"go.uber.org/zap"
)

// ReconciliationWorker audits every ledger on an interval, starting with an
// audit at startup. It stops for good after the first broken invariant.
type ReconciliationWorker struct {
	*loop
	svc         *service.ReconciliationService
	onViolation func(error)
}

func NewReconciliationWorker(svc *service.ReconciliationService) *ReconciliationWorker {
	w := &ReconciliationWorker{svc: svc, loop: newLoop("reconciliation", time.Minute)}
	w.immediate = true
	w.tick = w.audit
	return w
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.setInterval(interval)
	return w
}

// OnViolation registers the callback invoked with the audit error when a
// ledger's supply no longer matches its balances.
func (w *ReconciliationWorker) OnViolation(fn func(error)) *ReconciliationWorker {
	w.onViolation = fn
	return w
}

func (w *ReconciliationWorker) audit(ctx context.Context) bool {
	err := w.svc.Run(ctx)
	switch {
	case err == nil:
		observability.IncrementWorkerRun(w.name, "success")
		return true
	case errors.Is(err, domain.ErrInvariantViolated):
		observability.IncrementWorkerRun(w.name, "violation")
		zap.L().Error("ledger audit found broken invariant", zap.Error(err))
		if w.onViolation != nil {
			w.onViolation(err)
		}
		return false
	case ctx.Err() != nil:
		return false
	default:
		observability.IncrementWorkerRun(w.name, "failed")
		zap.L().Error("ledger audit failed", zap.Error(err))
		return true
	}
}
