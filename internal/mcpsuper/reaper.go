//go:build linux

package mcpsuper

import (
	"log/slog"
	"strings"
	"syscall"
	"time"
)

// Age bands for orphan cleanup (spec §4.3).
const (
	orphanNeverTouch   = 30 * time.Minute
	orphanZombieOnly   = 2 * time.Hour
	orphanConditional  = 6 * time.Hour
	orphanConditionalAge = 4 * time.Hour
	orphanConditionalCPU = 50.0
	orphanConditionalMemMB = 500.0
)

// Reaper implements C5: orphan detection, zombie sweep, and leak
// alerting.
type Reaper struct {
	registry *Launcher
	reg      *Registry
	logger   *slog.Logger
	patterns func() []string
}

// NewReaper creates a Reaper. patterns returns the combined set of
// process-identification patterns across every configured server, used
// for orphan detection; it is a func rather than a static slice so
// registry reloads are picked up.
func NewReaper(launcher *Launcher, registry *Registry, patterns func() []string, logger *slog.Logger) *Reaper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{registry: launcher, reg: registry, patterns: patterns, logger: logger.With("component", "mcpsuper.reaper")}
}

// Sweep runs orphan detection over unmanaged processes and returns the
// leak counters for alerting. Registry-tracked zombies are handled
// separately by ZombieSweep.
func (r *Reaper) Sweep() LeakCounters {
	counters := LeakCounters{}

	managedPIDs := map[int]bool{}
	for _, s := range r.reg.All() {
		if s.ProcessInfo != nil {
			managedPIDs[s.ProcessInfo.PID] = true
			counters.TotalManaged++
		}
	}

	patterns := append(append([]string{}, r.patterns()...), wellKnownMCPPackages...)

	for _, pid := range listPIDs() {
		if managedPIDs[pid] {
			continue
		}
		cmdline := processCmdline(pid)
		if cmdline == "" || !matchesAny(cmdline, patterns) {
			continue
		}

		state, _, ok := readProcStat(pid)
		if ok && (state == stateZombie || state == stateDead) {
			counters.Zombie++
		}

		started, ok := processStartTime(pid)
		age := time.Duration(0)
		if ok {
			age = time.Since(started)
		}

		switch {
		case age > orphanConditional:
			counters.Old++
			counters.VeryOld++
			r.cleanup(pid)
		case age > orphanZombieOnly:
			info := r.resourceUsage(pid)
			if info.CPU > orphanConditionalCPU || info.MemMB > orphanConditionalMemMB || age > orphanConditionalAge {
				counters.Old++
				r.cleanup(pid)
			}
		case age > orphanNeverTouch:
			if state == stateZombie || state == stateDead {
				r.cleanup(pid)
			}
		default:
			// within the never-touch window; leave it alone
		}

		counters.Orphaned++
	}

	r.logger.Info("reaper sweep complete",
		"total_managed", counters.TotalManaged,
		"orphaned", counters.Orphaned,
		"zombie", counters.Zombie,
		"old", counters.Old,
		"very_old", counters.VeryOld,
	)
	return counters
}

// ZombieSweep walks the registry's own processes and, for any zombie,
// signals its process group, attempts a non-blocking wait on it, and
// clears the entry's running state.
func (r *Reaper) ZombieSweep() {
	for _, s := range r.reg.All() {
		if s.ProcessInfo == nil {
			continue
		}
		pid := s.ProcessInfo.PID
		state, _, ok := readProcStat(pid)
		if ok && state == stateZombie {
			r.cleanup(pid)
			var ws syscall.WaitStatus
			_, _ = syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
			r.reg.Mutate(s.Name, func(st *ServerStatus) {
				st.Running = false
				st.ProcessInfo = nil
			})
		}
	}
}

func (r *Reaper) resourceUsage(pid int) ProcessInfo {
	// Best-effort: without a full /proc/[pid]/stat CPU-delta sampler,
	// this reports zero usage, so the CPU and memory clauses above never
	// fire and only the age>4h clause can clean a process in that band.
	return ProcessInfo{PID: pid}
}

func (r *Reaper) cleanup(pid int) {
	pgid := pid
	_ = killProcessGroup(pgid)
}

func matchesAny(cmdline string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(cmdline, p) {
			return true
		}
	}
	return false
}
