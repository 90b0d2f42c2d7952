// Package ratelimit implements the global admission gate in front of the
// external CEP provider.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/metrics"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Defaults match the provider's published limits
const (
	DefaultMinInterval   = 350 * time.Millisecond
	DefaultMaxConcurrent = 1
)

// Config holds rate limiter configuration
type Config struct {
	MinInterval   time.Duration
	MaxConcurrent int
}

// Limiter bounds both the number of in-flight calls and how close together
// two calls may start. It is shared across all jobs.
type Limiter struct {
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
}

// New creates a new Limiter
func New(cfg Config) *Limiter {
	interval := cfg.MinInterval
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		inFlight: semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Do runs fn once a slot is free and the minimum interval since the previous
// start has elapsed. The slot is held until fn returns.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()

	if err := l.inFlight.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("rate limit acquire: %w", err)
	}
	defer l.inFlight.Release(1)

	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitWait(waited)
	}

	return fn(ctx)
}
