package provider

import (
	"context"
	"log/slog"
	"strings"
)

// HealthReporter is the health view Failover needs for each member
type HealthReporter interface {
	IsHealthy() bool
}

// Member pairs a provider with its health monitor
type Member struct {
	Provider Provider
	Health   HealthReporter
}

// Failover routes every lookup to the first healthy member in registration
// order. When no member reports healthy the first one is used so the call
// still produces a classified failure.
type Failover struct {
	members []Member
	logger  *slog.Logger
}

func NewFailover(logger *slog.Logger, members ...Member) *Failover {
	return &Failover{members: members, logger: logger}
}

// Name lists the members, e.g. "Failover(ViaCEP, BrasilAPI)"
func (f *Failover) Name() string {
	names := make([]string, 0, len(f.members))
	for _, m := range f.members {
		names = append(names, m.Provider.Name())
	}
	return "Failover(" + strings.Join(names, ", ") + ")"
}

func (f *Failover) Fetch(ctx context.Context, cep string) Result {
	if len(f.members) == 0 {
		return Failed(0, "no provider configured")
	}

	selected := 0
	for i, m := range f.members {
		if m.Health == nil || m.Health.IsHealthy() {
			selected = i
			break
		}
	}

	if selected > 0 {
		f.logger.Debug("Primary provider unhealthy, failing over",
			slog.String("primary", f.members[0].Provider.Name()),
			slog.String("selected", f.members[selected].Provider.Name()),
		)
	}

	return f.members[selected].Provider.Fetch(ctx, cep)
}
