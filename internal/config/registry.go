package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ServerTimeouts holds the per-operation timeouts the spec's registry
// document allows either as a single number (applied to "default") or as
// an object with named fields.
type ServerTimeouts struct {
	Ping       float64 `json:"ping"`
	Warmup     float64 `json:"warmup"`
	Validation float64 `json:"validation"`
	Default    float64 `json:"default"`
}

// UnmarshalJSON accepts either a bare number (applied uniformly) or an
// object with ping/warmup/validation/default fields, per spec §6.
func (t *ServerTimeouts) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*t = ServerTimeouts{Ping: num, Warmup: num, Validation: num, Default: num}
		return nil
	}

	type alias ServerTimeouts
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("timeout must be a number or an object: %w", err)
	}
	*t = ServerTimeouts(obj)
	return nil
}

// ServerEntry is one named entry under "mcpServers" (spec §6).
type ServerEntry struct {
	Command           string            `json:"command"`
	Args              []string          `json:"args"`
	Env               map[string]string `json:"env"`
	RequiredEnv       []string          `json:"required_env,omitempty"`
	Enabled           *bool             `json:"enabled,omitempty"`
	SuccessIndicators []string          `json:"success_indicators,omitempty"`
	ProcessPatterns   []string          `json:"process_patterns,omitempty"`
	Timeout           ServerTimeouts    `json:"timeout,omitempty"`
	Description       string            `json:"description,omitempty"`
}

// IsEnabled defaults to true when the document omits the flag.
func (e ServerEntry) IsEnabled() bool {
	if e.Enabled == nil {
		return true
	}
	return *e.Enabled
}

// RegistryDocument is the tool-server registry file's shape.
type RegistryDocument struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// LoadRegistryDocument parses and validates the registry file at path.
func LoadRegistryDocument(path string) (*RegistryDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	var doc RegistryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse registry file: %w", err)
	}
	if err := validateRegistryDocument(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func validateRegistryDocument(doc *RegistryDocument) error {
	for name, entry := range doc.MCPServers {
		if entry.Command == "" {
			return &ValidationError{Field: "mcpServers." + name + ".command", Reason: "command is required"}
		}
	}
	return nil
}

// RegistryDiff describes which servers changed between two document
// versions (spec §6: "computes a diff, and restarts only affected
// servers").
type RegistryDiff struct {
	Version int      `json:"version"`
	Added    []string `json:"added"`
	Removed  []string `json:"removed"`
	Changed  []string `json:"changed"`
}

// Affected returns every server name touched by the diff, deduplicated.
func (d RegistryDiff) Affected() []string {
	seen := map[string]bool{}
	var out []string
	for _, group := range [][]string{d.Added, d.Removed, d.Changed} {
		for _, name := range group {
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}

// maxHistoricalDiffs bounds the in-memory diff ring buffer per spec §6
// ("up to 50 historical diffs are retained in memory").
const maxHistoricalDiffs = 50

// Registry tracks the current registry document, a monotonic reload
// version counter, and a bounded history of reload diffs. Grounded on the
// teacher's loader.go merge-then-decode pattern, trimmed to the JSON
// registry document and extended with diff/version bookkeeping the
// teacher's YAML app-config loader never needed.
type Registry struct {
	mu      sync.RWMutex
	path    string
	version int
	current *RegistryDocument
	history []RegistryDiff
}

// NewRegistry loads path as the initial registry document at version 1.
func NewRegistry(path string) (*Registry, error) {
	doc, err := LoadRegistryDocument(path)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, version: 1, current: doc}, nil
}

// Current returns the active registry document.
func (r *Registry) Current() *RegistryDocument {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Version returns the current reload version counter.
func (r *Registry) Version() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// History returns the retained historical diffs, oldest first.
func (r *Registry) History() []RegistryDiff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RegistryDiff, len(r.history))
	copy(out, r.history)
	return out
}

// Reload re-reads the registry file, computes the diff against the
// current document, and bumps the version counter. Reloading an
// identical file is a no-op on the server set (empty diff) but the
// version still bumps, per spec §8's round-trip property.
func (r *Registry) Reload() (RegistryDiff, error) {
	doc, err := LoadRegistryDocument(r.path)
	if err != nil {
		return RegistryDiff{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	diff := diffRegistryDocuments(r.current, doc)
	r.version++
	diff.Version = r.version
	r.current = doc
	r.history = append(r.history, diff)
	if len(r.history) > maxHistoricalDiffs {
		r.history = r.history[len(r.history)-maxHistoricalDiffs:]
	}
	return diff, nil
}

func diffRegistryDocuments(oldDoc, newDoc *RegistryDocument) RegistryDiff {
	var diff RegistryDiff
	oldServers := map[string]ServerEntry{}
	if oldDoc != nil {
		oldServers = oldDoc.MCPServers
	}

	for name, entry := range newDoc.MCPServers {
		old, existed := oldServers[name]
		if !existed {
			diff.Added = append(diff.Added, name)
			continue
		}
		if !serverEntriesEqual(old, entry) {
			diff.Changed = append(diff.Changed, name)
		}
	}
	for name := range oldServers {
		if _, stillPresent := newDoc.MCPServers[name]; !stillPresent {
			diff.Removed = append(diff.Removed, name)
		}
	}
	return diff
}

func serverEntriesEqual(a, b ServerEntry) bool {
	aJSON, _ := json.Marshal(a)
	bJSON, _ := json.Marshal(b)
	return string(aJSON) == string(bJSON)
}
