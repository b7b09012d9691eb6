package worker

import (
	"context"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"go.uber.org/zap"
)

// RateWorker samples rate providers so feed outages surface before a
// settlement hits them.
type RateWorker struct {
	*loop
	monitor *service.RateMonitor
}

func NewRateWorker(monitor *service.RateMonitor) *RateWorker {
	w := &RateWorker{monitor: monitor, loop: newLoop("rate_monitor", 30*time.Second)}
	w.immediate = true
	w.tick = w.sample
	return w
}

func (w *RateWorker) WithInterval(interval time.Duration) *RateWorker {
	w.setInterval(interval)
	return w
}

func (w *RateWorker) sample(ctx context.Context) bool {
	if err := w.monitor.Check(ctx); err != nil {
		observability.IncrementWorkerRun(w.name, "failed")
		zap.L().Warn("rate check failed", zap.Error(err))
		return true
	}
	observability.IncrementWorkerRun(w.name, "success")
	return true
}
