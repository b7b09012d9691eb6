package events

import (
	"sync"

	"go.uber.org/zap"
)

// Publisher accepts committed events.
type Publisher interface {
	Publish(evs ...Event)
}

// Sink receives every sequenced event. Deliver must not block on slow consumers.
type Sink interface {
	Name() string
	Deliver(ev Event) error
}

// Discard drops events.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(...Event) {}

const DefaultRetention = 4096

// Bus sequences events, retains the most recent ones for the read API and fans
// them out to sinks. Every sink sees events in sequence order.
type Bus struct {
	// deliverMu is held from sequence assignment through fan-out so two
	// concurrent publishers cannot reach a sink out of order.
	deliverMu sync.Mutex
	mu        sync.RWMutex
	seq       uint64
	ring      []Event
	retention int
	sinks     []Sink
	onFailure func(sink string)
	log       *zap.Logger
}

type BusOption func(*Bus)

func WithRetention(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.retention = n
		}
	}
}

// WithFailureHook is called with the sink name every time a delivery fails.
func WithFailureHook(fn func(sink string)) BusOption {
	return func(b *Bus) { b.onFailure = fn }
}

func WithLogger(log *zap.Logger) BusOption {
	return func(b *Bus) { b.log = log }
}

func NewBus(opts ...BusOption) *Bus {
	b := &Bus{retention: DefaultRetention, log: zap.NewNop()}
	for _, opt := range opts {
		opt(b)
	}
	b.ring = make([]Event, 0, b.retention)
	return b
}

// Attach adds a sink. Sinks only see events published after they are attached.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

func (b *Bus) Publish(evs ...Event) {
	if len(evs) == 0 {
		return
	}

	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	for i := range evs {
		b.seq++
		evs[i].Seq = b.seq
		if len(b.ring) == b.retention {
			copy(b.ring, b.ring[1:])
			b.ring = b.ring[:len(b.ring)-1]
		}
		b.ring = append(b.ring, evs[i])
	}
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.Unlock()

	for _, ev := range evs {
		for _, s := range sinks {
			if err := s.Deliver(ev); err != nil {
				b.log.Warn("event delivery failed",
					zap.String("sink", s.Name()),
					zap.String("type", string(ev.Type)),
					zap.Uint64("seq", ev.Seq),
					zap.Error(err))
				if b.onFailure != nil {
					b.onFailure(s.Name())
				}
			}
		}
	}
}

// Since returns up to limit retained events with Seq > after, oldest first.
func (b *Bus) Since(after uint64, limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0)
	for _, ev := range b.ring {
		if ev.Seq <= after {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// LastSeq is the sequence number of the most recently published event.
func (b *Bus) LastSeq() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq
}

// Recorder is a Publisher that keeps every event; used in tests and tooling.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(evs ...Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evs...)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events by type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
