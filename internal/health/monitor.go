package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuongbtq/cep-crawler/internal/metrics"
)

// Config holds leaf monitor configuration
type Config struct {
	Name             string
	FailureThreshold int
	CheckInterval    time.Duration
	CheckTimeout     time.Duration
	PollInterval     time.Duration
}

// Monitor tracks the health of one provider. A failure only flips the
// monitor unhealthy after FailureThreshold consecutive failures; a single
// success flips it healthy again.
type Monitor struct {
	name         string
	check        CheckFunc
	threshold    int
	interval     time.Duration
	checkTimeout time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	healthy atomic.Bool

	// checkMu serializes checks so state has a single writer
	checkMu sync.Mutex

	mu                  sync.RWMutex
	lastCheck           time.Time
	consecutiveFailures int
}

// NewMonitor creates a leaf monitor around check
func NewMonitor(cfg Config, check CheckFunc, logger *slog.Logger) *Monitor {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = DefaultCheckInterval
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = DefaultCheckTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	return &Monitor{
		name:         cfg.Name,
		check:        check,
		threshold:    cfg.FailureThreshold,
		interval:     cfg.CheckInterval,
		checkTimeout: cfg.CheckTimeout,
		pollInterval: cfg.PollInterval,
		logger:       logger.With(slog.String("provider", cfg.Name)),
	}
}

// Name returns the provider name
func (m *Monitor) Name() string {
	return m.name
}

// IsHealthy returns the last known health
func (m *Monitor) IsHealthy() bool {
	return m.healthy.Load()
}

// CheckHealth runs the check once and updates state
func (m *Monitor) CheckHealth(ctx context.Context) bool {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	m.logger.Debug("Checking provider health")

	checkCtx, cancel := context.WithTimeout(ctx, m.checkTimeout)
	err := m.runCheck(checkCtx)
	cancel()

	now := time.Now()

	m.mu.Lock()
	m.lastCheck = now
	if err == nil {
		m.consecutiveFailures = 0
		m.healthy.Store(true)
		m.mu.Unlock()

		metrics.SetProviderHealth(m.name, true)
		m.logger.Debug("Provider is healthy")
		return true
	}

	m.consecutiveFailures++
	failures := m.consecutiveFailures
	if failures >= m.threshold {
		m.healthy.Store(false)
	}
	healthy := m.healthy.Load()
	m.mu.Unlock()

	metrics.SetProviderHealth(m.name, healthy)
	if !healthy && failures >= m.threshold {
		m.logger.Error("Provider is down",
			slog.Int("consecutive_failures", failures),
			slog.Any("error", err),
		)
	} else {
		m.logger.Warn("Provider health check failed",
			slog.Int("consecutive_failures", failures),
			slog.Any("error", err),
		)
	}

	return false
}

// runCheck guards against a panicking or hung check
func (m *Monitor) runCheck(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
		}
	}()

	if m.check == nil {
		return errors.New("no health check configured")
	}
	return m.check(ctx)
}

// Status returns a snapshot of the monitor state
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Provider:            m.name,
		Healthy:             m.healthy.Load(),
		ConsecutiveFailures: m.consecutiveFailures,
	}
	if !m.lastCheck.IsZero() {
		lastCheck := m.lastCheck
		status.LastCheck = &lastCheck
	}
	return status
}

// WaitForHealthy polls the check until healthy or timeout
func (m *Monitor) WaitForHealthy(ctx context.Context, timeout time.Duration) error {
	return waitForHealthy(ctx, m, timeout, m.pollInterval, m.logger)
}

// Run re-checks health every CheckInterval until ctx is done
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Info("Periodic health check started",
		slog.Duration("interval", m.interval),
	)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Periodic health check stopped")
			return
		case <-ticker.C:
			m.CheckHealth(ctx)
		}
	}
}
