package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/observability"
	"github.com/ayo6706/dual-currency-settlement/internal/service"
	"go.uber.org/zap"
)

const finalDrainTimeout = 5 * time.Second

// JournalWorker copies committed events into Postgres in the background.
// Each tick drains full batches back to back until caught up, and a final
// drain on shutdown keeps events committed just before exit.
type JournalWorker struct {
	*loop
	svc       *service.JournalService
	batchSize int32
}

func NewJournalWorker(svc *service.JournalService) *JournalWorker {
	w := &JournalWorker{svc: svc, batchSize: 100, loop: newLoop("journal", 2*time.Second)}
	w.tick = func(ctx context.Context) bool {
		if err := w.ProcessOnce(ctx); err != nil {
			zap.L().Warn("journal batch failed", zap.Error(err))
		}
		return true
	}
	w.drain = w.flush
	return w
}

func (w *JournalWorker) WithPollInterval(interval time.Duration) *JournalWorker {
	w.setInterval(interval)
	return w
}

func (w *JournalWorker) WithBatchSize(size int32) *JournalWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// ProcessOnce drains until fewer than a full batch is pending.
func (w *JournalWorker) ProcessOnce(ctx context.Context) error {
	for {
		n, err := w.svc.Drain(ctx, int(w.batchSize))
		if err != nil {
			observability.IncrementWorkerRun(w.name, "failed")
			return err
		}
		if n > 0 {
			observability.IncrementWorkerRun(w.name, "success")
		}
		if n < int(w.batchSize) {
			return nil
		}
	}
}

func (w *JournalWorker) String() string {
	return fmt.Sprintf("JournalWorker(interval=%v, batch=%d)", w.interval, w.batchSize)
}

func (w *JournalWorker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), finalDrainTimeout)
	defer cancel()
	if err := w.ProcessOnce(ctx); err != nil {
		zap.L().Error("final journal drain failed", zap.Error(err))
		return
	}
	zap.L().Info("journal drained", zap.Uint64("cursor", w.svc.Cursor()))
}
