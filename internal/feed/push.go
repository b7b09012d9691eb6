package feed

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// maxFutureSkew bounds how far ahead of the local clock a pushed round may be
// stamped. A round stamped further ahead would lock out every honest push
// until that time.
const maxFutureSkew = 5 * time.Minute

// RoundPayload is the signed body an upstream publisher posts to a PushFeed.
// UpdatedAt is covered by the signature and must increase from round to round.
type RoundPayload struct {
	Answer    json.Number `json:"answer"`
	Decimals  uint8       `json:"decimals"`
	UpdatedAt *time.Time  `json:"updated_at"`
}

// PushFeed holds the last round delivered by an upstream publisher over a signed
// webhook. Until the first push it reports ErrFeedUnavailable.
type PushFeed struct {
	id          string
	description string
	hmacKey     []byte
	now         func() time.Time

	mu    sync.RWMutex
	round *Round
}

func NewPush(id, description, hmacKey string) *PushFeed {
	return &PushFeed{id: id, description: description, hmacKey: []byte(hmacKey), now: time.Now}
}

func (f *PushFeed) ID() string          { return f.id }
func (f *PushFeed) Description() string { return f.description }

func (f *PushFeed) LatestRound(ctx context.Context) (Round, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.round == nil {
		return Round{}, fmt.Errorf("%w: %s has not received a round", domain.ErrFeedUnavailable, f.id)
	}
	return Round{
		Answer:    new(big.Int).Set(f.round.Answer),
		Decimals:  f.round.Decimals,
		UpdatedAt: f.round.UpdatedAt,
	}, nil
}

// Push verifies signature ("sha256=<hex hmac>") over payload and stores the round.
// A round not stamped strictly after the stored one is rejected with
// ErrStaleRound, so a captured body cannot be replayed to roll the rate back.
func (f *PushFeed) Push(payload []byte, signature string) (Round, error) {
	if !f.verifyHMAC(payload, signature) {
		return Round{}, domain.ErrInvalidSignature
	}

	var body RoundPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return Round{}, fmt.Errorf("%w: invalid payload: %v", domain.ErrInvalidRate, err)
	}
	answer, ok := new(big.Int).SetString(body.Answer.String(), 10)
	if !ok {
		return Round{}, fmt.Errorf("%w: answer %q is not an integer", domain.ErrInvalidRate, body.Answer)
	}

	if body.UpdatedAt == nil || body.UpdatedAt.IsZero() {
		return Round{}, fmt.Errorf("%w: updated_at is required", domain.ErrInvalidRate)
	}
	round := Round{Answer: answer, Decimals: body.Decimals, UpdatedAt: body.UpdatedAt.UTC()}
	if limit := f.now().Add(maxFutureSkew); round.UpdatedAt.After(limit) {
		return Round{}, fmt.Errorf("%w: updated_at %s is ahead of the local clock", domain.ErrInvalidRate, round.UpdatedAt.Format(time.RFC3339))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.round != nil && !round.UpdatedAt.After(f.round.UpdatedAt) {
		return Round{}, fmt.Errorf("%w: round at %s does not follow %s", domain.ErrStaleRound,
			round.UpdatedAt.Format(time.RFC3339Nano), f.round.UpdatedAt.Format(time.RFC3339Nano))
	}
	f.round = &round
	return round, nil
}

// Sign produces the signature header value for payload. Used by publishers and tests.
func Sign(key, payload []byte) string {
	h := hmac.New(sha256.New, key)
	h.Write(payload)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

func (f *PushFeed) verifyHMAC(payload []byte, signature string) bool {
	if len(f.hmacKey) == 0 {
		return false
	}
	return hmac.Equal([]byte(signature), []byte(Sign(f.hmacKey, payload)))
}
