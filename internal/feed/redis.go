package feed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
	"github.com/redis/go-redis/v9"
)

// RedisFeed reads a round from a Redis hash with fields answer, decimals and
// (optionally) updated_at as unix seconds. Any process with write access to the
// key acts as the oracle.
type RedisFeed struct {
	id          string
	description string
	key         string
	redis       redis.Cmdable
}

func NewRedis(id, description string, client redis.Cmdable, key string) *RedisFeed {
	return &RedisFeed{id: id, description: description, key: key, redis: client}
}

func (f *RedisFeed) ID() string          { return f.id }
func (f *RedisFeed) Description() string { return f.description }

func (f *RedisFeed) LatestRound(ctx context.Context) (Round, error) {
	fields, err := f.redis.HGetAll(ctx, f.key).Result()
	if err != nil {
		return Round{}, fmt.Errorf("%w: redis %s: %v", domain.ErrFeedUnavailable, f.key, err)
	}
	if len(fields) == 0 {
		return Round{}, fmt.Errorf("%w: redis key %s is empty", domain.ErrFeedUnavailable, f.key)
	}

	answer, ok := new(big.Int).SetString(fields["answer"], 10)
	if !ok {
		return Round{}, fmt.Errorf("%w: redis %s answer %q is not an integer", domain.ErrInvalidRate, f.key, fields["answer"])
	}
	decimals, err := strconv.ParseUint(fields["decimals"], 10, 8)
	if err != nil {
		return Round{}, fmt.Errorf("%w: redis %s decimals: %v", domain.ErrInvalidRate, f.key, err)
	}

	round := Round{Answer: answer, Decimals: uint8(decimals), UpdatedAt: time.Now().UTC()}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		round.UpdatedAt = time.Unix(ts, 0).UTC()
	}
	return round, nil
}

// Publish writes a round to the hash. Operators and tests use it to drive the feed.
func (f *RedisFeed) Publish(ctx context.Context, answer *big.Int, decimals uint8) error {
	if answer == nil {
		return errors.New("answer is required")
	}
	return f.redis.HSet(ctx, f.key,
		"answer", answer.String(),
		"decimals", strconv.Itoa(int(decimals)),
		"updated_at", strconv.FormatInt(time.Now().Unix(), 10),
	).Err()
}
