// Package health tracks availability of the external CEP providers.
//
// A Monitor wraps a single provider check; a Composite folds several
// checkers into one. Both satisfy Checker so callers never care which one
// they hold.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/domain"
)

// Defaults applied when a Config leaves a field zero
const (
	DefaultFailureThreshold = 3
	DefaultCheckInterval    = 60 * time.Second
	DefaultCheckTimeout     = 5 * time.Second
	DefaultPollInterval     = 5 * time.Second
	DefaultWaitTimeout      = 30 * time.Second
)

// Checker is the contract shared by leaf and composite monitors
type Checker interface {
	// IsHealthy returns the last known health without blocking
	IsHealthy() bool
	// CheckHealth checks now and returns the check verdict
	CheckHealth(ctx context.Context) bool
	// Status returns a snapshot for reporting
	Status() Status
	// WaitForHealthy polls until healthy or the timeout elapses
	WaitForHealthy(ctx context.Context, timeout time.Duration) error
}

// CheckFunc checks the dependency once; a nil error means healthy
type CheckFunc func(ctx context.Context) error

// Status is a point-in-time view of a checker
type Status struct {
	Provider            string     `json:"provider"`
	Healthy             bool       `json:"healthy"`
	LastCheck           *time.Time `json:"last_check"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
}

func (s Status) String() string {
	lastCheck := "never"
	if s.LastCheck != nil {
		lastCheck = s.LastCheck.Format(time.RFC3339)
	}
	return fmt.Sprintf("Provider: %s, Last check: %s, Consecutive failures: %d",
		s.Provider, lastCheck, s.ConsecutiveFailures)
}

// waitForHealthy is the polling loop shared by Monitor and Composite
func waitForHealthy(ctx context.Context, c Checker, timeout, poll time.Duration, logger *slog.Logger) error {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	deadline := time.Now().Add(timeout)
	for !c.IsHealthy() && time.Now().Before(deadline) {
		logger.Info("Waiting for provider to become healthy",
			slog.String("provider", c.Status().Provider),
		)

		c.CheckHealth(ctx)
		if c.IsHealthy() {
			break
		}

		sleep := min(poll, time.Until(deadline))
		if sleep <= 0 {
			break
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, ctx.Err())
		case <-timer.C:
		}
	}

	if !c.IsHealthy() {
		return fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, c.Status())
	}
	return nil
}
