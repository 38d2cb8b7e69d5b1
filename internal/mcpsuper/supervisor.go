//go:build linux

package mcpsuper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/errs"
)

// DefaultTickInterval is the supervisor's default tick period; tests
// shorten it freely (spec §4.4: "default 3600 s; tests may shorten").
const DefaultTickInterval = time.Hour

// Supervisor is the lifecycle supervisor (C6): a single background task
// that keeps every enabled, non-marked-failed server running and
// periodically runs the reaper. Grounded on the teacher's
// SchedulerManager Start/Stop/ticker shape.
type Supervisor struct {
	registry *Registry
	launcher *Launcher
	probe    *HealthProbe
	reaper   *Reaper
	doc      func() *config.RegistryDocument
	logger   *slog.Logger

	tickInterval time.Duration
	tick         int

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// SupervisorConfig bundles a Supervisor's collaborators.
type SupervisorConfig struct {
	Registry     *Registry
	Launcher     *Launcher
	Probe        *HealthProbe
	Reaper       *Reaper
	Document     func() *config.RegistryDocument
	TickInterval time.Duration
	Logger       *slog.Logger
}

// NewSupervisor creates a Supervisor from cfg, defaulting TickInterval to
// DefaultTickInterval.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.TickInterval
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &Supervisor{
		registry:     cfg.Registry,
		launcher:     cfg.Launcher,
		probe:        cfg.Probe,
		reaper:       cfg.Reaper,
		doc:          cfg.Document,
		logger:       logger.With("component", "mcpsuper.supervisor"),
		tickInterval: interval,
	}
}

// Start launches the background tick loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	bgCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.loop(bgCtx)

	s.logger.Info("lifecycle supervisor started", "tick_interval", s.tickInterval)
	return nil
}

// Stop cancels the tick loop and waits for it to exit.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.cancel()
	s.started = false
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("timeout waiting for supervisor tick loop to stop")
	}
	return nil
}

// loop drives Tick on a fixed-delay cron schedule (spec §4.4's "default
// 3600 s" tick), grounded on the teacher's SchedulerManager, which
// schedules its periodic jobs with robfig/cron rather than a bare
// time.Ticker.
func (s *Supervisor) loop(ctx context.Context) {
	defer s.wg.Done()

	scheduler := cron.New()
	scheduler.Schedule(cron.Every(s.tickInterval), cron.FuncJob(func() { s.Tick(ctx) }))
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	<-ctx.Done()
}

// Tick runs one supervisor pass over every registered server, plus the
// periodic reaper/snapshot work the spec's pseudocode describes.
func (s *Supervisor) Tick(ctx context.Context) {
	s.tick++
	now := time.Now()

	for _, status := range s.registry.All() {
		if !status.Enabled || status.MarkedFailed {
			continue
		}
		s.registry.MarkCheck(status.Name, now)

		if status.Running {
			if !s.probe.IsHealthy(status.Name) {
				s.handleFailure(ctx, status.Name)
			}
		} else {
			s.startServer(ctx, status.Name, false)
		}
	}

	if s.tick%6 == 0 && s.reaper != nil {
		s.reaper.Sweep()
		s.reaper.ZombieSweep()
	}
	if s.tick%5 == 0 {
		s.runLeakMonitor()
	}
	if s.tick%3 == 0 {
		s.refreshSnapshots()
	}
}

// handleFailure implements the spec's handle_failure(name).
func (s *Supervisor) handleFailure(ctx context.Context, name string) {
	var failures int
	s.registry.Mutate(name, func(st *ServerStatus) {
		st.ConsecutiveFailures++
		failures = st.ConsecutiveFailures
	})

	if s.reaper != nil {
		s.reaper.Sweep()
	}

	if failures >= 3 {
		s.registry.Mutate(name, func(st *ServerStatus) { st.MarkedFailed = true })
		s.logger.Warn("server marked failed after repeated crashes", "server", name, "consecutive_failures", failures)
		return
	}

	s.startServer(ctx, name, true)
}

func (s *Supervisor) startServer(ctx context.Context, name string, force bool) StartResult {
	entry, ok := s.lookupEntry(name)
	if !ok {
		return StartResult{OK: false, Reason: "server not in current document"}
	}
	result := s.launcher.Start(ctx, entry, name, force)
	if !result.OK {
		s.logger.Warn("server start failed", "server", name, "reason", result.Reason)
	}
	return result
}

func (s *Supervisor) lookupEntry(name string) (config.ServerEntry, bool) {
	doc := s.doc()
	if doc == nil {
		return config.ServerEntry{}, false
	}
	entry, ok := doc.MCPServers[name]
	return entry, ok
}

func (s *Supervisor) runLeakMonitor() {
	if s.reaper == nil {
		return
	}
	counters := s.reaper.Sweep()
	expected := len(s.registry.All())
	if severity := counters.Severity(expected); severity != AlertNone {
		s.logger.Warn("leak alert", "severity", severity,
			"orphaned", counters.Orphaned, "zombie", counters.Zombie,
			"old", counters.Old, "very_old", counters.VeryOld)
	}
}

func (s *Supervisor) refreshSnapshots() {
	for _, status := range s.registry.All() {
		if status.ProcessInfo == nil {
			continue
		}
		pid := status.ProcessInfo.PID
		if !processAlive(pid) {
			continue
		}
		_, comm, ok := readProcStat(pid)
		if !ok {
			continue
		}
		s.registry.Mutate(status.Name, func(st *ServerStatus) {
			if st.ProcessInfo != nil {
				st.ProcessInfo.Cmdline = comm
			}
		})
	}
}

// ZombieSweep runs an out-of-cycle zombie sweep, used by the connection
// pool's second-attempt recovery step (spec §4.5: "trigger zombie sweep,
// then retry").
func (s *Supervisor) ZombieSweep() {
	if s.reaper != nil {
		s.reaper.ZombieSweep()
	}
}

// ResetFailures clears a server's consecutive-failure count and
// marked-failed flag, used by the pool's third-attempt recovery step
// (spec §4.5: "reset marked_failed").
func (s *Supervisor) ResetFailures(name string) {
	s.registry.ResetFailures(name)
}

// ForceRestart force-restarts name regardless of its current state, used
// by the pool's final recovery step (spec §4.5: "force-restart the
// server").
func (s *Supervisor) ForceRestart(ctx context.Context, name string) StartResult {
	return s.startServer(ctx, name, true)
}

// EnsureRunning exposes C6's client-triggered coordination entry point
// for C7's connection pool.
func (s *Supervisor) EnsureRunning(ctx context.Context, name string, connectOnly bool) EnsureResult {
	status := s.registry.Get(name)
	if status == nil {
		return EnsureResult{Success: false, Error: errs.New(errs.ServerNotFound, nil, name)}
	}
	if status.Running && status.ProcessInfo != nil {
		return EnsureResult{Success: true, Running: true, PID: status.ProcessInfo.PID}
	}
	if connectOnly {
		return EnsureResult{Success: false, Running: false, Error: errs.New(errs.ServerUnavailable, nil, name)}
	}

	result := s.startServer(ctx, name, false)
	if !result.OK {
		return EnsureResult{Success: false, Error: errs.New(errs.ServerStartFailed, nil, name)}
	}
	return EnsureResult{Success: true, Running: true, PID: result.PID}
}
