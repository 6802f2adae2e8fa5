package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// WithRateLimit paces requests to at most rpm per minute with the given burst.
// rpm <= 0 returns m unchanged.
func WithRateLimit(m Model, rpm, burst int) Model {
	if rpm <= 0 {
		return m
	}

	if burst <= 0 {
		burst = 1
	}

	return &rateLimitedModel{
		next:    m,
		limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst),
	}
}

type rateLimitedModel struct {
	next    Model
	limiter *rate.Limiter
}

func (r *rateLimitedModel) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Reply{}, fmt.Errorf("rate limit wait: %w", err)
	}

	return r.next.Complete(ctx, req)
}

func (r *rateLimitedModel) Info() Info { return r.next.Info() }
