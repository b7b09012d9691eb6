// Package feed provides the upstream price feeds an oracle-backed rate provider reads.
package feed

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// Round is the latest answer published by a feed.
type Round struct {
	Answer    *big.Int
	Decimals  uint8
	UpdatedAt time.Time
}

// Feed represents an external price oracle.
type Feed interface {
	ID() string
	Description() string
	// LatestRound returns the most recent answer. Transport failures wrap
	// domain.ErrFeedUnavailable.
	LatestRound(ctx context.Context) (Round, error)
}

// StaticFeed is an in-memory oracle whose answer is set by an operator.
type StaticFeed struct {
	id          string
	description string
	decimals    uint8

	mu        sync.RWMutex
	answer    *big.Int
	updatedAt time.Time
}

// NewStatic creates a feed that answers with the given value at the given decimals.
func NewStatic(id, description string, decimals uint8, answer int64) *StaticFeed {
	return &StaticFeed{
		id:          id,
		description: description,
		decimals:    decimals,
		answer:      big.NewInt(answer),
		updatedAt:   time.Now().UTC(),
	}
}

func (f *StaticFeed) ID() string          { return f.id }
func (f *StaticFeed) Description() string { return f.description }

func (f *StaticFeed) LatestRound(ctx context.Context) (Round, error) {
	if err := ctx.Err(); err != nil {
		return Round{}, fmt.Errorf("%w: %v", domain.ErrFeedUnavailable, err)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return Round{
		Answer:    new(big.Int).Set(f.answer),
		Decimals:  f.decimals,
		UpdatedAt: f.updatedAt,
	}, nil
}

// UpdatePrice replaces the answer. Non-positive answers are stored as given; the
// provider reading the feed is responsible for rejecting them.
func (f *StaticFeed) UpdatePrice(answer *big.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = new(big.Int).Set(answer)
	f.updatedAt = time.Now().UTC()
}
