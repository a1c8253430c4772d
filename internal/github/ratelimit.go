package github

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v58/github"
)

// IsRateLimitError reports whether err was caused by GitHub throttling the
// client, either the primary or the secondary rate limit.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var terr *TransportError
	if errors.As(err, &terr) {
		return terr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

type RateLimitStatus struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

func (c *Client) RateLimit(ctx context.Context) (*RateLimitStatus, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	limits, resp, err := c.client.RateLimit.Get(ctx)
	if err != nil {
		return nil, classify(ctx, "rate limit", resp, err)
	}

	core := limits.GetCore()
	if core == nil {
		return &RateLimitStatus{}, nil
	}
	return &RateLimitStatus{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		Reset:     core.Reset.Time,
	}, nil
}
