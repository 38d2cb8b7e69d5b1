//go:build linux

package mcpsuper

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// procState is the subset of /proc/[pid]/stat's state field this package
// cares about.
type procState byte

const (
	stateUnknown procState = 0
	stateZombie  procState = 'Z'
	stateStopped procState = 'T'
	stateDead    procState = 'X'
)

// killProcessGroup sends SIGTERM then, after a short grace period,
// SIGKILL to pid's process group. Used by the reaper for orphan
// cleanup, where there is no registry bookkeeping to hold the launcher's
// richer cleanupLocked sequence.
func killProcessGroup(pid int) error {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		pgid = pid
	}
	if err := syscall.Kill(-pgid, syscall.SIGTERM); err != nil {
		return err
	}
	if waitForExit(pid, 3*time.Second) {
		return nil
	}
	return syscall.Kill(-pgid, syscall.SIGKILL)
}

// processAlive reports whether pid refers to a live process, using
// signal 0 which performs existence/permission checks without delivering
// anything (the same probe os/exec-adjacent tools use).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return syscall.Kill(pid, 0) == nil
}

// readProcStat parses /proc/[pid]/stat for the process state and
// starting fields this package needs. Returns ok=false if the process is
// gone or /proc is unreadable.
func readProcStat(pid int) (state procState, comm string, ok bool) {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return stateUnknown, "", false
	}
	text := string(data)
	open := strings.IndexByte(text, '(')
	closeParen := strings.LastIndexByte(text, ')')
	if open < 0 || closeParen < 0 || closeParen <= open {
		return stateUnknown, "", false
	}
	comm = text[open+1 : closeParen]
	rest := strings.Fields(text[closeParen+1:])
	if len(rest) < 1 {
		return stateUnknown, comm, false
	}
	return procState(rest[0][0]), comm, true
}

// processCmdline returns the process's command line, space-joined, or ""
// if unreadable.
func processCmdline(pid int) string {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(string(data), "\x00"), "\x00")
	return strings.Join(parts, " ")
}

// processStartTime estimates process age from /proc/[pid]'s mtime, a
// reasonable proxy when /proc/[pid]/stat's boot-relative starttime would
// need /proc/uptime cross-referencing.
func processStartTime(pid int) (time.Time, bool) {
	info, err := os.Stat(filepath.Join("/proc", strconv.Itoa(pid)))
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// listPIDs enumerates every numeric entry under /proc.
func listPIDs() []int {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil
	}
	pids := make([]int, 0, len(entries))
	for _, e := range entries {
		if pid, err := strconv.Atoi(e.Name()); err == nil {
			pids = append(pids, pid)
		}
	}
	return pids
}

// findProcessByPatterns scans /proc for a process whose command line
// matches any of patterns (substring match), returning the first hit.
func findProcessByPatterns(patterns []string) (int, bool) {
	if len(patterns) == 0 {
		return 0, false
	}
	for _, pid := range listPIDs() {
		cmdline := processCmdline(pid)
		if cmdline == "" {
			continue
		}
		for _, pattern := range patterns {
			if pattern != "" && strings.Contains(cmdline, pattern) {
				return pid, true
			}
		}
	}
	return 0, false
}

// wellKnownMCPPackages is the hard-coded list of well-known MCP server
// package names that the reaper's orphan detection always matches in
// addition to the servers' own ProcessPatterns (spec §4.3).
var wellKnownMCPPackages = []string{
	"@modelcontextprotocol/server",
	"mcp-server",
	"server-filesystem",
	"server-github",
	"server-postgres",
}
