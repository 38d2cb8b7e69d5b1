//go:build linux

package mcpsuper

import (
	"context"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/config"
)

func newTestSupervisor(t *testing.T, doc *config.RegistryDocument) (*Supervisor, *Registry) {
	t.Helper()
	ForceCooldown(0)
	registry := NewRegistry(doc)
	launcher := NewLauncher(registry, nil)
	probe := NewHealthProbe(registry, nil, nil)
	sup := NewSupervisor(SupervisorConfig{
		Registry: registry,
		Launcher: launcher,
		Probe:    probe,
		Document: func() *config.RegistryDocument { return doc },
		TickInterval: time.Hour,
	})
	return sup, registry
}

func TestSupervisorTickStartsDownServer(t *testing.T) {
	doc := &config.RegistryDocument{
		MCPServers: map[string]config.ServerEntry{
			"s": {Command: "sh", Args: []string{"-c", "sleep 5"}},
		},
	}
	sup, registry := newTestSupervisor(t, doc)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sup.Tick(ctx)

	status := registry.Get("s")
	if !status.Running {
		t.Fatal("expected tick to start the down server")
	}
	_ = sup.launcher.Stop("s")
}

func TestSupervisorTickSkipsMarkedFailed(t *testing.T) {
	doc := &config.RegistryDocument{
		MCPServers: map[string]config.ServerEntry{
			"s": {Command: "sh", Args: []string{"-c", "sleep 5"}},
		},
	}
	sup, registry := newTestSupervisor(t, doc)
	registry.Mutate("s", func(st *ServerStatus) { st.MarkedFailed = true })

	sup.Tick(context.Background())

	if registry.Get("s").Running {
		t.Fatal("expected marked-failed server to be skipped")
	}
}

func TestEnsureRunningConnectOnlyReturnsUnavailable(t *testing.T) {
	doc := &config.RegistryDocument{
		MCPServers: map[string]config.ServerEntry{
			"s": {Command: "true"},
		},
	}
	sup, _ := newTestSupervisor(t, doc)

	result := sup.EnsureRunning(context.Background(), "s", true)
	if result.Success {
		t.Fatal("expected connect-only to fail for a server that isn't running")
	}
	if result.Error == nil {
		t.Fatal("expected an error")
	}
}

func TestEnsureRunningUnknownServer(t *testing.T) {
	sup, _ := newTestSupervisor(t, &config.RegistryDocument{MCPServers: map[string]config.ServerEntry{}})
	result := sup.EnsureRunning(context.Background(), "missing", false)
	if result.Success {
		t.Fatal("expected failure for unconfigured server")
	}
}
