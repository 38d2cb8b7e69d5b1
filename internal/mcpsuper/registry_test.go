package mcpsuper

import (
	"testing"

	"github.com/haasonsaas/nexus-gateway/internal/config"
)

func sampleDoc() *config.RegistryDocument {
	return &config.RegistryDocument{
		MCPServers: map[string]config.ServerEntry{
			"alpha": {Command: "alpha-bin"},
			"beta":  {Command: "beta-bin"},
		},
	}
}

func TestNewRegistryPopulatesEntries(t *testing.T) {
	reg := NewRegistry(sampleDoc())
	if len(reg.All()) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(reg.All()))
	}
	if reg.Get("alpha") == nil {
		t.Fatal("expected alpha entry")
	}
	if reg.Get("missing") != nil {
		t.Fatal("expected nil for unconfigured server")
	}
}

func TestRegistrySyncAddsAndRemoves(t *testing.T) {
	reg := NewRegistry(sampleDoc())

	updated := &config.RegistryDocument{
		MCPServers: map[string]config.ServerEntry{
			"alpha": {Command: "alpha-bin"},
			"gamma": {Command: "gamma-bin"},
		},
	}
	added, removed := reg.Sync(updated)

	if len(added) != 1 || added[0] != "gamma" {
		t.Fatalf("expected gamma added, got %v", added)
	}
	if len(removed) != 1 || removed[0] != "beta" {
		t.Fatalf("expected beta removed, got %v", removed)
	}
	if reg.Get("beta") != nil {
		t.Fatal("expected beta entry gone")
	}
}

func TestRegistryResetFailures(t *testing.T) {
	reg := NewRegistry(sampleDoc())
	reg.Mutate("alpha", func(s *ServerStatus) {
		s.ConsecutiveFailures = 3
		s.MarkedFailed = true
	})

	reg.ResetFailures("alpha")

	status := reg.Get("alpha")
	if status.ConsecutiveFailures != 0 || status.MarkedFailed {
		t.Fatalf("expected failures reset, got %+v", status)
	}
}

func TestLeakCountersSeverity(t *testing.T) {
	none := LeakCounters{}
	if none.Severity(5) != AlertNone {
		t.Fatal("expected no alert for empty counters")
	}

	warning := LeakCounters{Orphaned: 6}
	if warning.Severity(5) != AlertWarning {
		t.Fatal("expected warning for orphaned > 5")
	}

	critical := LeakCounters{Zombie: 1}
	if critical.Severity(5) != AlertCritical {
		t.Fatal("expected critical when any zombie present")
	}

	veryOld := LeakCounters{VeryOld: 4}
	if veryOld.Severity(5) != AlertCritical {
		t.Fatal("expected critical when very_old > 3")
	}
}
