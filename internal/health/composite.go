package health

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Runner is implemented by checkers that check on their own schedule
type Runner interface {
	Run(ctx context.Context)
}

// Composite is healthy while any member is healthy
type Composite struct {
	mu           sync.RWMutex
	members      []Checker
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewComposite creates a composite over the given members
func NewComposite(pollInterval time.Duration, logger *slog.Logger, members ...Checker) *Composite {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Composite{
		members:      members,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Register adds a member
func (c *Composite) Register(member Checker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members = append(c.members, member)
}

func (c *Composite) snapshot() []Checker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Checker, len(c.members))
	copy(out, c.members)
	return out
}

// IsHealthy reports whether at least one member is healthy
func (c *Composite) IsHealthy() bool {
	for _, m := range c.snapshot() {
		if m.IsHealthy() {
			return true
		}
	}
	return false
}

// CheckHealth checks every member, even after one succeeds, so each
// member's own state stays current.
func (c *Composite) CheckHealth(ctx context.Context) bool {
	members := c.snapshot()
	results := make([]bool, len(members))

	// fan-out only: verdicts land in results and no member returns an error,
	// so Wait just joins the goroutines
	var g errgroup.Group
	for i, m := range members {
		g.Go(func() error {
			results[i] = m.CheckHealth(ctx)
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range results {
		if ok {
			return true
		}
	}
	return false
}

// Status aggregates member statuses
func (c *Composite) Status() Status {
	statuses := c.Statuses()

	names := make([]string, len(statuses))
	healthy := 0
	for i, s := range statuses {
		names[i] = s.Provider
		if s.Healthy {
			healthy++
		}
	}

	failures := 0
	if healthy != len(statuses) {
		failures = len(statuses) - healthy
	}

	now := time.Now()
	return Status{
		Provider:            "Composite(" + strings.Join(names, ", ") + ")",
		Healthy:             healthy > 0,
		LastCheck:           &now,
		ConsecutiveFailures: failures,
	}
}

// Statuses returns every member's status
func (c *Composite) Statuses() []Status {
	members := c.snapshot()
	out := make([]Status, len(members))
	for i, m := range members {
		out[i] = m.Status()
	}
	return out
}

// HealthyProviders lists members currently healthy
func (c *Composite) HealthyProviders() []string {
	return c.providers(true)
}

// UnhealthyProviders lists members currently unhealthy
func (c *Composite) UnhealthyProviders() []string {
	return c.providers(false)
}

func (c *Composite) providers(healthy bool) []string {
	names := []string{}
	for _, m := range c.snapshot() {
		if m.IsHealthy() == healthy {
			names = append(names, m.Status().Provider)
		}
	}
	return names
}

// WaitForHealthy polls all members until one is healthy or timeout
func (c *Composite) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	return waitForHealthy(ctx, c, timeout, c.pollInterval, c.logger)
}

// Run drives the periodic check of every member that schedules itself and
// blocks until ctx is done.
func (c *Composite) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range c.snapshot() {
		runner, ok := m.(Runner)
		if !ok {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Run(ctx)
		}()
	}
	wg.Wait()
}
