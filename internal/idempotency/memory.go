package idempotency

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/repository"
	"github.com/jackc/pgx/v5"
)

// MemoryBackend keeps keys in process memory. Entries older than ttl are evicted
// lazily on reservation.
type MemoryBackend struct {
	mu   sync.Mutex
	ttl  time.Duration
	keys map[string]repository.IdempotencyKey
}

func NewMemoryBackend(ttl time.Duration) *MemoryBackend {
	return &MemoryBackend{ttl: ttl, keys: make(map[string]repository.IdempotencyKey)}
}

func (m *MemoryBackend) GetIdempotencyKey(_ context.Context, key string) (repository.IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.keys[key]
	if !ok {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	return row, nil
}

func (m *MemoryBackend) ReserveIdempotencyKey(_ context.Context, arg repository.ReserveIdempotencyKeyParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	m.evictLocked(now)
	if _, exists := m.keys[arg.IdempotencyKey]; exists {
		return "", pgx.ErrNoRows
	}
	m.keys[arg.IdempotencyKey] = repository.IdempotencyKey{
		IdempotencyKey: arg.IdempotencyKey,
		RequestHash:    arg.RequestHash,
		Method:         arg.Method,
		Path:           arg.Path,
		InProgress:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return arg.IdempotencyKey, nil
}

func (m *MemoryBackend) FinalizeIdempotencyKey(_ context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.keys[arg.IdempotencyKey]
	if !ok || row.RequestHash != arg.RequestHash {
		return repository.IdempotencyKey{}, pgx.ErrNoRows
	}
	row.InProgress = false
	row.ResponseStatus = arg.ResponseStatus
	row.ResponseBody = append([]byte(nil), arg.ResponseBody...)
	row.ContentType = arg.ContentType
	row.UpdatedAt = time.Now().UTC()
	m.keys[arg.IdempotencyKey] = row
	return row, nil
}

func (m *MemoryBackend) DeleteIdempotencyKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.keys[key]; ok && row.InProgress {
		delete(m.keys, key)
	}
	return nil
}

func (m *MemoryBackend) evictLocked(now time.Time) {
	if m.ttl <= 0 {
		return
	}
	for key, row := range m.keys {
		if !row.InProgress && now.Sub(row.UpdatedAt) > m.ttl {
			delete(m.keys, key)
		}
	}
}
