package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// loop is the ticker scaffolding shared by the workers. tick reports whether
// the loop should continue; drain, when set, runs once on the way out.
type loop struct {
	name      string
	interval  time.Duration
	immediate bool
	tick      func(ctx context.Context) bool
	drain     func()

	stopCh   chan struct{}
	stopOnce sync.Once
}

func newLoop(name string, interval time.Duration) *loop {
	return &loop{name: name, interval: interval, stopCh: make(chan struct{})}
}

func (l *loop) setInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

// Start blocks until Stop, ctx cancellation, or a tick asking to stop.
func (l *loop) Start(ctx context.Context) {
	log := zap.L().With(zap.String("worker", l.name))
	log.Info("worker starting", zap.Duration("interval", l.interval))
	defer func() {
		if l.drain != nil {
			l.drain()
		}
		log.Info("worker stopped")
	}()

	if l.immediate && !l.tick(ctx) {
		return
	}
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			if !l.tick(ctx) {
				return
			}
		}
	}
}

// Stop ends the loop. It is safe to call more than once.
func (l *loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Run starts the loop in a goroutine and returns its stop function.
func (l *loop) Run(ctx context.Context) func() {
	go l.Start(ctx)
	return l.Stop
}
