package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ayo6706/dual-currency-settlement/internal/domain"
)

// HTTPFeed reads a JSON round document from an upstream price service.
type HTTPFeed struct {
	id          string
	description string
	url         string
	client      *http.Client
	timeout     time.Duration
}

type HTTPOption func(*HTTPFeed)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFeed) { f.client = c }
}

func WithTimeout(d time.Duration) HTTPOption {
	return func(f *HTTPFeed) {
		if d > 0 {
			f.timeout = d
		}
	}
}

func NewHTTP(id, description, url string, opts ...HTTPOption) *HTTPFeed {
	f := &HTTPFeed{
		id:          id,
		description: description,
		url:         url,
		client:      http.DefaultClient,
		timeout:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *HTTPFeed) ID() string          { return f.id }
func (f *HTTPFeed) Description() string { return f.description }

func (f *HTTPFeed) LatestRound(ctx context.Context) (Round, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return Round{}, fmt.Errorf("%w: build request: %v", domain.ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Round{}, fmt.Errorf("%w: %s: %v", domain.ErrFeedUnavailable, f.id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Round{}, fmt.Errorf("%w: %s returned status %d", domain.ErrFeedUnavailable, f.id, resp.StatusCode)
	}

	var body RoundPayload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return Round{}, fmt.Errorf("%w: decode %s: %v", domain.ErrFeedUnavailable, f.id, err)
	}
	answer, ok := new(big.Int).SetString(body.Answer.String(), 10)
	if !ok {
		return Round{}, fmt.Errorf("%w: %s answer %q is not an integer", domain.ErrInvalidRate, f.id, body.Answer)
	}

	round := Round{Answer: answer, Decimals: body.Decimals, UpdatedAt: time.Now().UTC()}
	if body.UpdatedAt != nil {
		round.UpdatedAt = body.UpdatedAt.UTC()
	}
	return round, nil
}
