package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeRegistryFile(t *testing.T, dir, name string, doc map[string]any) string {
	t.Helper()
	path := filepath.Join(dir, name)
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadRegistryDocumentRejectsMissingCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "servers.json", map[string]any{
		"mcpServers": map[string]any{
			"broken": map[string]any{"args": []string{"--flag"}},
		},
	})

	if _, err := LoadRegistryDocument(path); err == nil {
		t.Fatal("expected validation error for missing command")
	}
}

func TestServerTimeoutsAcceptsNumberOrObject(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "servers.json", map[string]any{
		"mcpServers": map[string]any{
			"flat": map[string]any{
				"command": "flat-server",
				"timeout": 15,
			},
			"detailed": map[string]any{
				"command": "detailed-server",
				"timeout": map[string]any{"ping": 2, "warmup": 10, "validation": 5, "default": 30},
			},
		},
	})

	doc, err := LoadRegistryDocument(path)
	if err != nil {
		t.Fatalf("LoadRegistryDocument: %v", err)
	}

	flat := doc.MCPServers["flat"]
	if flat.Timeout.Ping != 15 || flat.Timeout.Default != 15 {
		t.Fatalf("expected uniform timeout 15, got %+v", flat.Timeout)
	}

	detailed := doc.MCPServers["detailed"]
	if detailed.Timeout.Ping != 2 || detailed.Timeout.Default != 30 {
		t.Fatalf("expected per-field timeout, got %+v", detailed.Timeout)
	}
}

func TestServerEntryIsEnabledDefaultsTrue(t *testing.T) {
	entry := ServerEntry{Command: "x"}
	if !entry.IsEnabled() {
		t.Fatal("expected default enabled to be true")
	}
	disabled := false
	entry.Enabled = &disabled
	if entry.IsEnabled() {
		t.Fatal("expected explicit enabled=false to stick")
	}
}

func TestRegistryReloadTracksDiffAndVersion(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "servers.json", map[string]any{
		"mcpServers": map[string]any{
			"alpha": map[string]any{"command": "alpha-bin"},
			"beta":  map[string]any{"command": "beta-bin"},
		},
	})

	reg, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	if reg.Version() != 1 {
		t.Fatalf("expected initial version 1, got %d", reg.Version())
	}

	writeRegistryFile(t, dir, "servers.json", map[string]any{
		"mcpServers": map[string]any{
			"alpha": map[string]any{"command": "alpha-bin", "args": []string{"--v2"}},
			"gamma": map[string]any{"command": "gamma-bin"},
		},
	})

	diff, err := reg.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if reg.Version() != 2 {
		t.Fatalf("expected version bump to 2, got %d", reg.Version())
	}
	if diff.Version != 2 {
		t.Fatalf("expected diff to carry version 2, got %d", diff.Version)
	}

	assertContains(t, diff.Added, "gamma")
	assertContains(t, diff.Removed, "beta")
	assertContains(t, diff.Changed, "alpha")

	affected := diff.Affected()
	if len(affected) != 3 {
		t.Fatalf("expected 3 affected servers, got %d: %v", len(affected), affected)
	}

	history := reg.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 historical diff, got %d", len(history))
	}
}

func TestRegistryReloadCapsHistoryAtFifty(t *testing.T) {
	dir := t.TempDir()
	path := writeRegistryFile(t, dir, "servers.json", map[string]any{
		"mcpServers": map[string]any{"alpha": map[string]any{"command": "alpha-bin"}},
	})

	reg, err := NewRegistry(path)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	for i := 0; i < maxHistoricalDiffs+5; i++ {
		writeRegistryFile(t, dir, "servers.json", map[string]any{
			"mcpServers": map[string]any{"alpha": map[string]any{"command": "alpha-bin", "description": string(rune('a' + i%20))}},
		})
		if _, err := reg.Reload(); err != nil {
			t.Fatalf("Reload %d: %v", i, err)
		}
	}

	if len(reg.History()) != maxHistoricalDiffs {
		t.Fatalf("expected history capped at %d, got %d", maxHistoricalDiffs, len(reg.History()))
	}
}

func assertContains(t *testing.T, list []string, want string) {
	t.Helper()
	for _, v := range list {
		if v == want {
			return
		}
	}
	t.Fatalf("expected %q in %v", want, list)
}
