// Package idempotency records the outcome of mutating requests so a retried
// submission with the same key replays the first response instead of moving
// value twice.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/ayo6706/dual-currency-settlement/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("idempotency key not found")
	ErrHashMismatch = errors.New("idempotency key body mismatch")
	ErrInProgress   = errors.New("idempotency key in progress")
	ErrInvalidKey   = errors.New("idempotency key is invalid")
)

const (
	redisKeyPrefix = "idempotency"
	maxKeyLength   = 128

	defaultWaitInterval = 50 * time.Millisecond
	defaultMaxWait      = 5 * time.Second
)

type Record struct {
	Key         string
	RequestHash string
	Status      int
	Body        []byte
	ContentType string
	ServedBy    string
}

// Backend is the durable record of reserved and finalized keys. *repository.Queries
// satisfies it; MemoryBackend serves deployments without Postgres.
type Backend interface {
	GetIdempotencyKey(ctx context.Context, key string) (repository.IdempotencyKey, error)
	ReserveIdempotencyKey(ctx context.Context, arg repository.ReserveIdempotencyKeyParams) (string, error)
	FinalizeIdempotencyKey(ctx context.Context, arg repository.FinalizeIdempotencyKeyParams) (repository.IdempotencyKey, error)
	DeleteIdempotencyKey(ctx context.Context, key string) error
}

// Store answers replays from Redis when available and falls back to the backend.
type Store struct {
	redis        redis.Cmdable
	backend      Backend
	ttl          time.Duration
	source       string
	waitInterval time.Duration
	maxWait      time.Duration
}

type Option func(*Store)

// WithWait tunes how often and how long WaitForCompletion polls an in-progress key.
func WithWait(interval, max time.Duration) Option {
	return func(s *Store) {
		if interval > 0 {
			s.waitInterval = interval
		}
		if max > 0 {
			s.maxWait = max
		}
	}
}

func NewStore(redis redis.Cmdable, backend Backend, ttl time.Duration, opts ...Option) *Store {
	source := "postgres"
	if _, ok := backend.(*MemoryBackend); ok {
		source = "memory"
	}
	s := &Store{
		redis:        redis,
		backend:      backend,
		ttl:          ttl,
		source:       source,
		waitInterval: defaultWaitInterval,
		maxWait:      defaultMaxWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScopedKey binds a client supplied key to the account that sent it. Two
// accounts reusing the same key never see each other's responses.
func ScopedKey(caller domain.Address, key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" || len(key) > maxKeyLength || strings.ContainsAny(key, " \t\r\n") {
		return "", fmt.Errorf("%w: must be 1-%d characters without whitespace", ErrInvalidKey, maxKeyLength)
	}
	if caller.IsZero() {
		return key, nil
	}
	return caller.String() + "/" + key, nil
}

type cacheEnvelope struct {
	Key         string `json:"key"`
	Hash        string `json:"hash"`
	Status      int    `json:"status"`
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

func (s *Store) Lookup(ctx context.Context, key, requestHash string) (*Record, error) {
	if rec, ok := s.cached(ctx, key); ok {
		if rec.RequestHash != requestHash {
			return nil, ErrHashMismatch
		}
		return rec, nil
	}

	row, err := s.backend.GetIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	if row.RequestHash != requestHash {
		return nil, ErrHashMismatch
	}
	if row.InProgress {
		return nil, ErrInProgress
	}

	rec := s.fromRow(row)
	s.cache(ctx, *rec)
	return rec, nil
}

// Reserve claims key for a new request. It reports false when another request
// holds or has completed the key.
func (s *Store) Reserve(ctx context.Context, key, requestHash, method, path string) (bool, error) {
	_, err := s.backend.ReserveIdempotencyKey(ctx, repository.ReserveIdempotencyKeyParams{
		IdempotencyKey: key,
		RequestHash:    requestHash,
		Method:         method,
		Path:           path,
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("reserve idempotency key: %w", err)
	}
}

func (s *Store) Finalize(ctx context.Context, key, requestHash string, status int, body []byte, contentType string) (*Record, error) {
	row, err := s.backend.FinalizeIdempotencyKey(ctx, repository.FinalizeIdempotencyKeyParams{
		ResponseStatus: int32(status),
		ResponseBody:   body,
		ContentType:    contentType,
		IdempotencyKey: key,
		RequestHash:    requestHash,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}
	rec := s.fromRow(row)
	s.cache(ctx, *rec)
	return rec, nil
}

// Release drops an unfinished reservation so the client can retry the key.
func (s *Store) Release(ctx context.Context, key string) {
	if err := s.backend.DeleteIdempotencyKey(ctx, key); err != nil {
		zap.L().Warn("release idempotency key failed", zap.String("key", key), zap.Error(err))
	}
}

// WaitForCompletion polls until the request holding key finishes, ctx ends or
// the store's maximum wait elapses.
func (s *Store) WaitForCompletion(ctx context.Context, key, requestHash string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.maxWait)
	defer cancel()

	ticker := time.NewTicker(s.waitInterval)
	defer ticker.Stop()
	for {
		rec, err := s.Lookup(ctx, key, requestHash)
		if !errors.Is(err, ErrInProgress) {
			return rec, err
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrInProgress, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Store) fromRow(row repository.IdempotencyKey) *Record {
	return &Record{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		Status:      int(row.ResponseStatus),
		Body:        row.ResponseBody,
		ContentType: row.ContentType,
		ServedBy:    s.source,
	}
}

func (s *Store) cached(ctx context.Context, key string) (*Record, bool) {
	if s.redis == nil {
		return nil, false
	}
	val, err := s.redis.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("redis idempotency lookup failed", zap.Error(err))
		}
		return nil, false
	}
	var env cacheEnvelope
	if err := json.Unmarshal(val, &env); err != nil {
		zap.L().Warn("discarding corrupt idempotency cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &Record{
		Key:         env.Key,
		RequestHash: env.Hash,
		Status:      env.Status,
		Body:        env.Body,
		ContentType: env.ContentType,
		ServedBy:    "redis",
	}, true
}

func (s *Store) cache(ctx context.Context, rec Record) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(cacheEnvelope{
		Key:         rec.Key,
		Hash:        rec.RequestHash,
		Status:      rec.Status,
		Body:        rec.Body,
		ContentType: rec.ContentType,
	})
	if err != nil {
		zap.L().Warn("marshal idempotency cache", zap.Error(err))
		return
	}
	if err := s.redis.Set(ctx, redisKey(rec.Key), payload, s.ttl).Err(); err != nil {
		zap.L().Warn("redis idempotency cache set failed", zap.Error(err))
	}
}

func redisKey(key string) string {
	return redisKeyPrefix + ":" + key
}
