//go:build linux

package mcpsuper

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/errs"
)

// adoptionSamples/adoptionInterval implement the "same pid observed across
// three samples" stability check before adopting a discovered process.
const (
	adoptionSamples  = 3
	adoptionInterval = 100 * time.Millisecond
)

// gracefulShutdown/gracefulCleanup are T_graceful for full shutdown vs.
// internal process-tree cleanup (spec §4.1).
const (
	gracefulShutdown = 30 * time.Second
	gracefulCleanup  = 3 * time.Second
	killGrace        = 2 * time.Second
)

// errorIndicators are the explicit failure substrings the spec names.
var errorIndicators = []string{
	"error:", "failed to", "permission denied", "module not found",
	"enoent", "connection refused", "access denied", "timeout",
}

// runningProcess is the launcher's live bookkeeping for a spawned child,
// kept separate from the registry's plain-data ServerStatus.
type runningProcess struct {
	cmd *exec.Cmd
	pid int
}

// Launcher is the subprocess launcher (C3). It holds the two-level
// StartupLock the spec describes: one mutex per server, one for
// "start all".
type Launcher struct {
	logger   *slog.Logger
	registry *Registry

	globalMu sync.Mutex
	locksMu  sync.Mutex
	locks    map[string]*sync.Mutex

	procsMu sync.Mutex
	procs   map[string]*runningProcess

	cooldowns map[string]time.Time
}

// NewLauncher creates a Launcher bound to registry.
func NewLauncher(registry *Registry, logger *slog.Logger) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		logger:    logger.With("component", "mcpsuper.launcher"),
		registry:  registry,
		locks:     make(map[string]*sync.Mutex),
		procs:     make(map[string]*runningProcess),
		cooldowns: make(map[string]time.Time),
	}
}

func (l *Launcher) serverLock(name string) *sync.Mutex {
	l.locksMu.Lock()
	defer l.locksMu.Unlock()
	m, ok := l.locks[name]
	if !ok {
		m = &sync.Mutex{}
		l.locks[name] = m
	}
	return m
}

// LockGlobal acquires the process-wide "start all" lock.
func (l *Launcher) LockGlobal() {
	l.globalMu.Lock()
}

// UnlockGlobal releases the process-wide "start all" lock.
func (l *Launcher) UnlockGlobal() {
	l.globalMu.Unlock()
}

// Start runs the launcher algorithm for name, holding the per-server
// startup lock for the duration (spec §4.1 contract: "Must be called
// while holding the per-server startup lock").
func (l *Launcher) Start(ctx context.Context, entry config.ServerEntry, name string, force bool) StartResult {
	lock := l.serverLock(name)
	lock.Lock()
	defer lock.Unlock()

	status := l.registry.Get(name)
	if status == nil {
		return StartResult{OK: false, Reason: "server not configured"}
	}

	if !force {
		if res, ok := l.tryAdopt(entry, name); ok {
			return res
		}
	} else {
		l.cleanupLocked(name, gracefulCleanup)
	}

	if !force && !l.cooldownElapsed(status, name) {
		return StartResult{OK: false, Reason: "cooldown in effect"}
	}

	env, err := resolveEnv(entry)
	if err != nil {
		l.registry.Mutate(name, func(s *ServerStatus) {
			s.LastError = err.Error()
		})
		return StartResult{OK: false, Reason: err.Error()}
	}

	cmd := exec.CommandContext(context.Background(), entry.Command, entry.Args...)
	cmd.Env = env
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StartResult{OK: false, Reason: fmt.Sprintf("stdout pipe: %v", err)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return StartResult{OK: false, Reason: fmt.Sprintf("stderr pipe: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return StartResult{OK: false, Reason: fmt.Sprintf("spawn: %v", err)}
	}
	pid := cmd.Process.Pid

	outcome := l.classifyStartup(cmd, stdout, stderr, entry)

	switch outcome.kind {
	case startupSuccess, startupAliveNoOutput:
		l.procsMu.Lock()
		l.procs[name] = &runningProcess{cmd: cmd, pid: pid}
		l.procsMu.Unlock()
		l.recordSuccess(name, pid, ExitModeAlive)
		return StartResult{OK: true, PID: pid}

	case startupStdio:
		l.recordSuccess(name, 0, ExitModeStdio)
		return StartResult{OK: true}

	default:
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
		l.registry.Mutate(name, func(s *ServerStatus) {
			s.LastError = outcome.reason
		})
		return StartResult{OK: false, Reason: outcome.reason}
	}
}

func (l *Launcher) recordSuccess(name string, pid int, mode ExitMode) {
	now := time.Now()
	l.registry.Mutate(name, func(s *ServerStatus) {
		s.Running = true
		s.ConsecutiveFailures = 0
		s.RestartCount++
		s.LastRestartAt = now
		s.LastError = ""
		s.ProcessInfo = &ProcessInfo{PID: pid, StartedAt: now, ExitMode: mode}
	})
	l.cooldowns[name] = now
}

// cooldownElapsed enforces T_cooldown, halved when consecutive failures
// reach 2 (spec §4.1's cooldown rule).
func (l *Launcher) cooldownElapsed(status *ServerStatus, name string) bool {
	last, ok := l.cooldowns[name]
	if !ok {
		return true
	}
	cooldown := defaultCooldown
	if status.ConsecutiveFailures >= 2 {
		cooldown /= 2
	}
	return time.Since(last) >= cooldown
}

// defaultCooldown is T_cooldown; tests may construct a Launcher with a
// shorter effective cooldown via ForceCooldown.
var defaultCooldown = 10 * time.Second

// ForceCooldown overrides T_cooldown for tests that need fast retries.
func ForceCooldown(d time.Duration) {
	defaultCooldown = d
}

type startupKind int

const (
	startupFailure startupKind = iota
	startupSuccess
	startupStdio
	startupAliveNoOutput
)

type startupOutcome struct {
	kind   startupKind
	reason string
}

// classifyStartup reads stdout/stderr in short windows and classifies the
// result per spec §4.1 step 4.
func (l *Launcher) classifyStartup(cmd *exec.Cmd, stdout, stderr io.Reader, entry config.ServerEntry) startupOutcome {
	var collected bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	scanOnce := func(r io.Reader) {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			collected.WriteString(scanner.Text())
			collected.WriteByte('\n')
		}
	}

	for i := 0; i < 3; i++ {
		windowDone := make(chan struct{})
		go func() {
			defer close(windowDone)
			scanOnce(stdout)
			scanOnce(stderr)
		}()
		select {
		case <-windowDone:
		case <-time.After(500 * time.Millisecond):
		case err := <-done:
			text := strings.ToLower(collected.String())
			if err == nil {
				return startupOutcome{kind: startupStdio}
			}
			return startupOutcome{kind: startupFailure, reason: classifyOutputReason(text, err)}
		}
	}

	text := strings.ToLower(collected.String())
	select {
	case err := <-done:
		if err == nil {
			return startupOutcome{kind: startupStdio}
		}
		return startupOutcome{kind: startupFailure, reason: "exited: " + err.Error()}
	default:
	}

	for _, indicator := range entry.SuccessIndicators {
		if strings.Contains(text, strings.ToLower(indicator)) {
			return startupOutcome{kind: startupSuccess}
		}
	}
	for _, bad := range errorIndicators {
		if strings.Contains(text, bad) {
			return startupOutcome{kind: startupFailure, reason: "startup output indicated failure: " + bad}
		}
	}
	if text == "" {
		return startupOutcome{kind: startupAliveNoOutput}
	}
	return startupOutcome{kind: startupSuccess}
}

func classifyOutputReason(text string, waitErr error) string {
	for _, bad := range errorIndicators {
		if strings.Contains(text, bad) {
			return "startup failed: " + bad
		}
	}
	return "process exited: " + waitErr.Error()
}

// resolveEnv overlays entry.Env on top of the current environment and
// validates RequiredEnv resolves to non-empty values.
func resolveEnv(entry config.ServerEntry) ([]string, error) {
	merged := map[string]string{}
	for _, kv := range os.Environ() {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range entry.Env {
		merged[k] = v
	}
	for _, required := range entry.RequiredEnv {
		if merged[required] == "" {
			return nil, errs.New(errs.ConfigMissingRequired, nil, required)
		}
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// tryAdopt attempts to discover and adopt an already-running instance of
// name, requiring the same pid across adoptionSamples probes.
func (l *Launcher) tryAdopt(entry config.ServerEntry, name string) (StartResult, bool) {
	var lastPID int
	for i := 0; i < adoptionSamples; i++ {
		pid, ok := findProcessByPatterns(entry.ProcessPatterns)
		if !ok {
			return StartResult{}, false
		}
		if i > 0 && pid != lastPID {
			return StartResult{}, false
		}
		lastPID = pid
		if i < adoptionSamples-1 {
			time.Sleep(adoptionInterval)
		}
	}
	if !processAlive(lastPID) {
		return StartResult{}, false
	}

	l.registry.Mutate(name, func(s *ServerStatus) {
		s.Running = true
		s.ConsecutiveFailures = 0
		s.ProcessInfo = &ProcessInfo{PID: lastPID, StartedAt: time.Now(), ExitMode: ExitModeAlive}
	})
	return StartResult{OK: true, PID: lastPID}, true
}

// Stop runs a process-tree cleanup for name with the full-shutdown
// graceful window, used on server shutdown.
func (l *Launcher) Stop(name string) error {
	lock := l.serverLock(name)
	lock.Lock()
	defer lock.Unlock()
	return l.cleanupLocked(name, gracefulShutdown)
}

// cleanupLocked performs process-tree cleanup: collect pid + descendants,
// SIGTERM, wait graceful, SIGKILL any survivors, wait killGrace. Caller
// must hold the server's startup lock.
func (l *Launcher) cleanupLocked(name string, graceful time.Duration) error {
	l.procsMu.Lock()
	proc, ok := l.procs[name]
	l.procsMu.Unlock()

	status := l.registry.Get(name)
	var pid int
	switch {
	case ok:
		pid = proc.pid
	case status != nil && status.ProcessInfo != nil:
		pid = status.ProcessInfo.PID
	default:
		return nil
	}
	if pid <= 0 {
		return nil
	}

	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}

	_ = syscall.Kill(-pgid, syscall.SIGTERM)
	if waitForExit(pid, graceful) {
		l.finishCleanup(name)
		return nil
	}

	_ = syscall.Kill(-pgid, syscall.SIGKILL)
	if waitForExit(pid, killGrace) {
		l.finishCleanup(name)
		return nil
	}

	return fmt.Errorf("process %d for %q still running after SIGKILL", pid, name)
}

func (l *Launcher) finishCleanup(name string) {
	l.procsMu.Lock()
	delete(l.procs, name)
	l.procsMu.Unlock()

	l.registry.Mutate(name, func(s *ServerStatus) {
		s.Running = false
		s.ProcessInfo = nil
	})
}

func waitForExit(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return !processAlive(pid)
}
