//go:build linux

package mcpsuper

import (
	"fmt"
	"log/slog"
	"time"
)

// startupGracePeriod is how long a freshly created process skips the
// responsiveness check (spec §4.2 step 5).
const startupGracePeriod = 30 * time.Second

const (
	defaultCPUCeiling = 90.0
	defaultMemCeilingMB = 1024.0
)

// Evictor is the narrow interface the health probe uses to
// notify the connection pool that a server's pooled connection (and any
// adopted client-side bookkeeping) must be dropped.
type Evictor interface {
	Evict(serverName string)
}

// HealthProbe implements C4: is_healthy(name) plus the side effects the
// spec requires on failure.
type HealthProbe struct {
	registry *Registry
	evictor  Evictor
	logger   *slog.Logger
}

// NewHealthProbe creates a HealthProbe. evictor may be nil before the
// pool is wired up; failures are still recorded in the registry.
func NewHealthProbe(registry *Registry, evictor Evictor, logger *slog.Logger) *HealthProbe {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthProbe{registry: registry, evictor: evictor, logger: logger.With("component", "mcpsuper.health")}
}

// IsHealthy runs the probe sequence for name. Any failing step fails the
// probe and triggers the recorded side effects.
func (h *HealthProbe) IsHealthy(name string) bool {
	status := h.registry.Get(name)
	if status == nil || status.ProcessInfo == nil {
		return false
	}
	info := status.ProcessInfo

	if info.ExitMode == ExitModeStdio {
		h.registry.Mutate(name, func(s *ServerStatus) {
			s.ConsecutiveFailures = 0
		})
		return true
	}

	if !processAlive(info.PID) {
		h.fail(name, fmt.Sprintf("process %d no longer exists", info.PID))
		return false
	}

	state, _, ok := readProcStat(info.PID)
	if !ok {
		h.fail(name, fmt.Sprintf("could not read /proc stat for pid %d", info.PID))
		return false
	}
	if state == stateZombie || state == stateDead {
		h.fail(name, fmt.Sprintf("process %d is a zombie", info.PID))
		return false
	}

	if info.CPU > defaultCPUCeiling {
		h.fail(name, fmt.Sprintf("cpu %.1f%% exceeds ceiling", info.CPU))
		return false
	}
	if info.MemMB > defaultMemCeilingMB {
		h.fail(name, fmt.Sprintf("rss %.1fMB exceeds ceiling", info.MemMB))
		return false
	}

	if time.Since(info.StartedAt) > startupGracePeriod {
		if state == stateStopped {
			h.fail(name, fmt.Sprintf("process %d is stopped/traced", info.PID))
			return false
		}
	}

	// consecutive_failures resets on any successful startup or health
	// check (I5), not just on a fresh launch.
	h.registry.Mutate(name, func(s *ServerStatus) {
		s.ConsecutiveFailures = 0
	})

	return true
}

func (h *HealthProbe) fail(name, reason string) {
	h.logger.Warn("health probe failed", "server", name, "reason", reason)
	h.registry.Mutate(name, func(s *ServerStatus) {
		s.LastError = reason
		s.ProcessInfo = nil
		s.Running = false
	})
	if h.evictor != nil {
		h.evictor.Evict(name)
	}
}
