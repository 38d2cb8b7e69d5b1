//go:build linux

package mcpsuper

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/process"
)

// Manager is C1's runtime half: it owns the loaded registry document and
// wires the process registry, launcher, health probe, reaper, and
// supervisor together, restarting only the affected servers on reload
// (spec §6: "restarts only affected servers").
type Manager struct {
	configReg *config.Registry
	registry  *Registry
	launcher  *Launcher
	probe     *HealthProbe
	reaper    *Reaper
	Supervisor *Supervisor
	logger    *slog.Logger

	// commands serializes Reload's per-server stop/start operations onto
	// one lane per server name. Supervisor-triggered starts do not go
	// through it; they are serialized by the launcher's per-server lock.
	commands *process.CommandQueue
}

// NewManager loads the registry document at path and assembles every
// C1-C6 collaborator.
func NewManager(path string, evictor Evictor, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	configReg, err := config.NewRegistry(path)
	if err != nil {
		return nil, fmt.Errorf("load server registry: %w", err)
	}

	registry := NewRegistry(configReg.Current())
	launcher := NewLauncher(registry, logger)
	probe := NewHealthProbe(registry, evictor, logger)
	patterns := func() []string {
		var all []string
		for _, entry := range configReg.Current().MCPServers {
			all = append(all, entry.ProcessPatterns...)
		}
		return all
	}
	reaper := NewReaper(launcher, registry, patterns, logger)

	m := &Manager{
		configReg: configReg,
		registry:  registry,
		launcher:  launcher,
		probe:     probe,
		reaper:    reaper,
		logger:    logger.With("component", "mcpsuper.manager"),
		commands:  process.NewCommandQueue(),
	}

	m.Supervisor = NewSupervisor(SupervisorConfig{
		Registry: registry,
		Launcher: launcher,
		Probe:    probe,
		Reaper:   reaper,
		Document: configReg.Current,
		Logger:   logger,
	})

	return m, nil
}

// Registry returns the process registry, for C7/C8 status queries.
func (m *Manager) Registry() *Registry { return m.registry }

// Launcher returns the subprocess launcher.
func (m *Manager) Launcher() *Launcher { return m.launcher }

// Document returns the live registry document accessor, for wiring into
// mcp.NewPool and internal/catalogue without exposing the config.Registry
// itself.
func (m *Manager) Document() func() *config.RegistryDocument { return m.configReg.Current }

// Reload re-reads the registry document, syncs the process registry, and
// force-restarts only the servers the diff touched.
func (m *Manager) Reload(ctx context.Context) (config.RegistryDiff, error) {
	m.launcher.LockGlobal()
	defer m.launcher.UnlockGlobal()

	diff, err := m.configReg.Reload()
	if err != nil {
		return config.RegistryDiff{}, err
	}

	// Removed servers are stopped while their registry entries still
	// exist; Sync then drops those entries.
	for _, name := range diff.Removed {
		name := name
		_, _ = process.EnqueueInLane(m.commands, process.CommandLane(name), func(ctx context.Context) (struct{}, error) {
			return struct{}{}, m.launcher.Stop(name)
		}, &process.EnqueueOptions{Context: ctx})
	}

	m.registry.Sync(m.configReg.Current())

	// Each affected server restarts on its own lane, so restarts fan out
	// concurrently across servers while staying serialized per server.
	group, groupCtx := errgroup.WithContext(ctx)
	for _, name := range diff.Affected() {
		name := name
		entry, ok := m.configReg.Current().MCPServers[name]
		if !ok {
			continue
		}
		group.Go(func() error {
			m.logger.Info("restarting server after registry reload", "server", name, "version", diff.Version)
			_, err := process.EnqueueInLane(m.commands, process.CommandLane(name), func(ctx context.Context) (StartResult, error) {
				return m.launcher.Start(ctx, entry, name, true), nil
			}, &process.EnqueueOptions{Context: groupCtx})
			return err
		})
	}
	if err := group.Wait(); err != nil {
		m.logger.Warn("one or more affected servers failed to restart", "error", err)
	}

	return diff, nil
}

// Shutdown stops every running server's process tree with the full
// graceful window.
func (m *Manager) Shutdown() {
	for _, status := range m.registry.All() {
		if status.Running {
			_ = m.launcher.Stop(status.Name)
		}
	}
}
