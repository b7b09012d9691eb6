package feed

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticFeed(t *testing.T) {
	f := NewStatic("rwfc-kes", "RWFC / KES", 8, 9_450_000)

	round, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9450000", round.Answer.String())
	assert.Equal(t, uint8(8), round.Decimals)

	f.UpdatePrice(big.NewInt(9_500_000))
	round, err = f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9500000", round.Answer.String())
	assert.Equal(t, "RWFC / KES", f.Description())
}

func TestStaticFeed_CanceledContext(t *testing.T) {
	f := NewStatic("x", "", 8, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.LatestRound(ctx)
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestPushFeed(t *testing.T) {
	f := NewPush("push", "RWFC / KES", "secret")

	_, err := f.LatestRound(context.Background())
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)

	body := []byte(`{"answer":"945000000000000000","decimals":18,"updated_at":"2026-01-01T00:00:00Z"}`)

	_, err = f.Push(body, "sha256=deadbeef")
	require.ErrorIs(t, err, domain.ErrInvalidSignature)

	round, err := f.Push(body, Sign([]byte("secret"), body))
	require.NoError(t, err)
	assert.Equal(t, uint8(18), round.Decimals)

	latest, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "945000000000000000", latest.Answer.String())
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), latest.UpdatedAt)
}

func TestPushFeed_NumericAnswerAndBadPayload(t *testing.T) {
	f := NewPush("push", "", "secret")

	body := []byte(`{"answer":9450000,"decimals":8,"updated_at":"2026-01-01T00:00:00Z"}`)
	_, err := f.Push(body, Sign([]byte("secret"), body))
	require.NoError(t, err)

	bad := []byte(`{"answer":"1.5","decimals":8,"updated_at":"2026-01-02T00:00:00Z"}`)
	_, err = f.Push(bad, Sign([]byte("secret"), bad))
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	unstamped := []byte(`{"answer":"9500000","decimals":8}`)
	_, err = f.Push(unstamped, Sign([]byte("secret"), unstamped))
	assert.ErrorIs(t, err, domain.ErrInvalidRate)
}

func TestPushFeed_RejectsReplayedAndOutOfOrderRounds(t *testing.T) {
	key := []byte("secret")
	f := NewPush("push", "", string(key))
	push := func(body string) error {
		_, err := f.Push([]byte(body), Sign(key, []byte(body)))
		return err
	}

	january := `{"answer":"9450000","decimals":8,"updated_at":"2026-01-01T00:00:00Z"}`
	june := `{"answer":"9500000","decimals":8,"updated_at":"2026-06-01T00:00:00Z"}`

	require.NoError(t, push(january))
	require.NoError(t, push(june))

	cases := []struct {
		name string
		body string
	}{
		{name: "replayed older round", body: january},
		{name: "replayed latest round", body: june},
		{name: "new answer with the same stamp", body: `{"answer":"1","decimals":8,"updated_at":"2026-06-01T00:00:00Z"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, push(tc.body), domain.ErrStaleRound)
		})
	}

	latest, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "9500000", latest.Answer.String())
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), latest.UpdatedAt)
}

func TestPushFeed_RejectsRoundsFromTheFuture(t *testing.T) {
	f := NewPush("push", "", "secret")
	f.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	body := []byte(`{"answer":"9450000","decimals":8,"updated_at":"2026-01-01T01:00:00Z"}`)
	_, err := f.Push(body, Sign([]byte("secret"), body))
	assert.ErrorIs(t, err, domain.ErrInvalidRate)

	_, err = f.LatestRound(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestPushFeed_WithoutKeyRejectsEverything(t *testing.T) {
	f := NewPush("push", "", "")
	body := []byte(`{"answer":"1","decimals":8}`)
	_, err := f.Push(body, Sign(nil, body))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestHTTPFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer":"945000","decimals":6,"updated_at":"2026-01-02T03:04:05Z"}`))
	}))
	defer srv.Close()

	f := NewHTTP("http", "RWFC / KES", srv.URL, WithTimeout(time.Second))
	round, err := f.LatestRound(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "945000", round.Answer.String())
	assert.Equal(t, uint8(6), round.Decimals)
	assert.Equal(t, 2026, round.UpdatedAt.Year())
}

func TestHTTPFeed_UpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewHTTP("http", "", srv.URL)
	_, err := f.LatestRound(context.Background())
	assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
}

func TestRegistry(t *testing.T) {
	static := NewStatic("static", "", 8, 1)
	push := NewPush("push", "", "k")
	r := NewRegistry(static, push)

	got, err := r.Get("static")
	require.NoError(t, err)
	assert.Same(t, static, got)

	p, err := r.Push("push")
	require.NoError(t, err)
	assert.Same(t, push, p)

	_, err = r.Push("static")
	assert.ErrorIs(t, err, domain.ErrUnknownFeed)
	_, err = r.Get("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownFeed)
	assert.Equal(t, []string{"push", "static"}, r.IDs())
}

func TestRedisFeed(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}
	opts, err := redis.ParseURL(redisURL)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	defer client.Close()

	ctx := context.Background()
	key := "feed:test:" + time.Now().Format("150405.000000")
	defer client.Del(ctx, key)

	f := NewRedis("redis", "RWFC / KES", client, key)
	_, err = f.LatestRound(ctx)
	require.ErrorIs(t, err, domain.ErrFeedUnavailable)

	require.NoError(t, f.Publish(ctx, big.NewInt(9_450_000), 8))
	round, err := f.LatestRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, "9450000", round.Answer.String())
	assert.Equal(t, uint8(8), round.Decimals)
}
