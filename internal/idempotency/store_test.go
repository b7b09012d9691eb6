package idempotency

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_MemoryLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, NewMemoryBackend(time.Hour), time.Hour)

	_, err := s.Lookup(ctx, "k1", "hash")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := s.Reserve(ctx, "k1", "hash", "POST", "/v1/settlements/forward")
	require.NoError(t, err)
	assert.True(t, reserved)

	reserved, err = s.Reserve(ctx, "k1", "hash", "POST", "/v1/settlements/forward")
	require.NoError(t, err)
	assert.False(t, reserved)

	_, err = s.Lookup(ctx, "k1", "hash")
	require.ErrorIs(t, err, ErrInProgress)

	rec, err := s.Finalize(ctx, "k1", "hash", 201, []byte(`{"id":"x"}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "memory", rec.ServedBy)

	rec, err = s.Lookup(ctx, "k1", "hash")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)
	assert.JSONEq(t, `{"id":"x"}`, string(rec.Body))

	_, err = s.Lookup(ctx, "k1", "other-hash")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestStore_ReleaseAllowsRetry(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, NewMemoryBackend(time.Hour), time.Hour)

	_, err := s.Reserve(ctx, "k2", "hash", "POST", "/x")
	require.NoError(t, err)
	s.Release(ctx, "k2")

	reserved, err := s.Reserve(ctx, "k2", "hash", "POST", "/x")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestStore_WaitForCompletion(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s := NewStore(nil, NewMemoryBackend(time.Hour), time.Hour)

	_, err := s.Reserve(ctx, "k3", "hash", "POST", "/x")
	require.NoError(t, err)

	go func() {
		time.Sleep(100 * time.Millisecond)
		_, _ = s.Finalize(context.Background(), "k3", "hash", 200, []byte("ok"), "text/plain")
	}()

	rec, err := s.WaitForCompletion(ctx, "k3", "hash")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
}

func TestStore_WaitGivesUpAfterMaxWait(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, NewMemoryBackend(time.Hour), time.Hour, WithWait(10*time.Millisecond, 50*time.Millisecond))

	_, err := s.Reserve(ctx, "k4", "hash", "POST", "/x")
	require.NoError(t, err)

	start := time.Now()
	_, err = s.WaitForCompletion(ctx, "k4", "hash")
	require.ErrorIs(t, err, ErrInProgress)
	assert.Less(t, time.Since(start), time.Second)
}

func TestScopedKey(t *testing.T) {
	cases := []struct {
		name   string
		caller domain.Address
		key    string
		want   string
		err    bool
	}{
		{name: "scoped to caller", caller: "alice", key: "abc-123", want: "alice/abc-123"},
		{name: "trimmed", caller: "alice", key: "  abc ", want: "alice/abc"},
		{name: "anonymous", caller: "", key: "abc", want: "abc"},
		{name: "empty", caller: "alice", key: "   ", err: true},
		{name: "inner whitespace", caller: "alice", key: "a b", err: true},
		{name: "too long", caller: "alice", key: strings.Repeat("k", maxKeyLength+1), err: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ScopedKey(tc.caller, tc.key)
			if tc.err {
				require.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	a, _ := ScopedKey("alice", "same")
	b, _ := ScopedKey("bob", "same")
	assert.NotEqual(t, a, b)
}
