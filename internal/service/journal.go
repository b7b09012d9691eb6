package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/events"
	"go.uber.org/zap"
)

// EventSource is the retained, sequenced event log.
type EventSource interface {
	Since(after uint64, limit int) []events.Event
}

// Journaler persists committed events.
type Journaler interface {
	Journal(ctx context.Context, evs []events.Event) error
}

// JournalService copies events from the in-process bus into durable storage.
// Its cursor only advances after a batch is stored, so a failed batch is
// retried on the next drain.
type JournalService struct {
	source EventSource
	store  Journaler

	mu     sync.Mutex
	cursor uint64
}

func NewJournalService(source EventSource, store Journaler) *JournalService {
	return &JournalService{source: source, store: store}
}

// Drain journals up to batch events and returns how many were stored.
func (s *JournalService) Drain(ctx context.Context, batch int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evs := s.source.Since(s.cursor, batch)
	if len(evs) == 0 {
		return 0, nil
	}
	if first := evs[0].Seq; first > s.cursor+1 {
		zap.L().Error("journal fell behind event retention; events lost",
			zap.Uint64("from_seq", s.cursor+1),
			zap.Uint64("to_seq", first-1))
	}
	if err := s.store.Journal(ctx, evs); err != nil {
		return 0, fmt.Errorf("journal events %d..%d: %w", evs[0].Seq, evs[len(evs)-1].Seq, err)
	}
	s.cursor = evs[len(evs)-1].Seq
	return len(evs), nil
}

// Cursor is the sequence number of the last journaled event.
func (s *JournalService) Cursor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
