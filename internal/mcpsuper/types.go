// Package mcpsuper owns the lifecycle of the subprocess-hosted tool
// servers: loading their configuration, launching and adopting processes,
// probing health, reaping leaks and zombies, and ticking a background
// supervisor that keeps every enabled server running. It is the process
// side of the gateway; internal/mcp's connection pool sits on top of it.
package mcpsuper

import "time"

// ExitMode records how a server's process is expected to behave.
type ExitMode string

const (
	// ExitModeAlive means the process stays resident; its pid is tracked.
	ExitModeAlive ExitMode = "alive"
	// ExitModeStdio means the server legitimately exits after emitting its
	// startup success marker and is re-spawned per stdio session.
	ExitModeStdio ExitMode = "stdio"
)

// ProcessInfo is a snapshot of a running server's OS process.
type ProcessInfo struct {
	PID       int
	Cmdline   string
	StartedAt time.Time
	ExitMode  ExitMode
	CPU       float64
	MemMB     float64
	Children  []int
}

// ServerStatus is the process-registry entry for one configured server.
// Mutated through Registry.Mutate under the registry lock, by the
// launcher, health probe, reaper and supervisor (spec: "one per
// configured server").
type ServerStatus struct {
	Name                string
	Enabled             bool
	Running             bool
	LastCheckAt         time.Time
	RestartCount        int
	ConsecutiveFailures int
	LastRestartAt       time.Time
	MarkedFailed        bool
	LastError           string
	ProcessInfo         *ProcessInfo
}

// IsHealthyBasis reports whether the registry entry alone (without a
// fresh OS probe) still looks healthy: running, not marked failed.
func (s *ServerStatus) IsHealthyBasis() bool {
	return s.Running && !s.MarkedFailed
}

// StartResult is the outcome of a Launcher.Start call.
type StartResult struct {
	OK     bool
	PID    int
	Reason string
}

// EnsureResult is the outcome of Supervisor.EnsureRunning.
type EnsureResult struct {
	Success bool
	Running bool
	PID     int
	Error   error
}

// LeakCounters are the structured alert counters emitted after every
// reaper sweep (spec §4.3: "emit structured counters").
type LeakCounters struct {
	TotalManaged int
	Orphaned     int
	Zombie       int
	Old          int
	VeryOld      int
}

// AlertSeverity classifies a leak alert.
type AlertSeverity string

const (
	AlertNone     AlertSeverity = ""
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// Severity derives the alert severity from the counters using the
// thresholds the spec names (orphans > 5, zombies > 0, very-old > 3, or
// total > 3x expected).
func (c LeakCounters) Severity(expectedTotal int) AlertSeverity {
	critical := c.Zombie > 0 || c.VeryOld > 3
	warning := c.Orphaned > 5 || (expectedTotal > 0 && c.TotalManaged > 3*expectedTotal)
	switch {
	case critical:
		return AlertCritical
	case warning:
		return AlertWarning
	default:
		return AlertNone
	}
}
