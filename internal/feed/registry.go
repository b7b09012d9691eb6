package feed

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// Registry indexes the feeds known to the process by ID.
type Registry struct {
	mu    sync.RWMutex
	feeds map[string]Feed
}

func NewRegistry(feeds ...Feed) *Registry {
	r := &Registry{feeds: make(map[string]Feed)}
	for _, f := range feeds {
		r.Add(f)
	}
	return r
}

func (r *Registry) Add(f Feed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[f.ID()] = f
}

func (r *Registry) Get(id string) (Feed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feeds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownFeed, id)
	}
	return f, nil
}

// Push returns the feed with id if it accepts signed pushes.
func (r *Registry) Push(id string) (*PushFeed, error) {
	f, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	p, ok := f.(*PushFeed)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept pushed rounds", domain.ErrUnknownFeed, id)
	}
	return p, nil
}

func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.feeds))
	for id := range r.feeds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
