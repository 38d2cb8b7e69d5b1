//go:build linux

package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"serve", "doctor", "config"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestDoctorCommandHasResetServerAndReloadRegistry(t *testing.T) {
	doctorCmd := buildDoctorCmd()
	names := map[string]bool{}
	for _, sub := range doctorCmd.Commands() {
		names[sub.Name()] = true
	}
	if !names["reset-server"] || !names["reload-registry"] {
		t.Fatalf("expected reset-server and reload-registry subcommands, got %+v", names)
	}
}

func TestConfigCommandHasValidate(t *testing.T) {
	configCmd := buildConfigCmd()
	found := false
	for _, sub := range configCmd.Commands() {
		if sub.Name() == "validate" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected validate subcommand")
	}
}
