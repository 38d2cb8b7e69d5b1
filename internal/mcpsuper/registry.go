package mcpsuper

import (
	"sync"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/config"
)

// Registry is the process registry (C2): one ServerStatus per configured
// server, protected by a single RWMutex. Grounded on internal/mcp's
// Manager.clients map, generalized from connected clients to process
// status entries.
type Registry struct {
	mu      sync.RWMutex
	servers map[string]*ServerStatus
}

// NewRegistry creates a registry populated from doc, each entry starting
// disabled-aware but not running (spec: "created at config load").
func NewRegistry(doc *config.RegistryDocument) *Registry {
	r := &Registry{servers: make(map[string]*ServerStatus)}
	if doc == nil {
		return r
	}
	for name, entry := range doc.MCPServers {
		r.servers[name] = &ServerStatus{
			Name:    name,
			Enabled: entry.IsEnabled(),
		}
	}
	return r
}

// Get returns the status entry for name, or nil if the server is not
// configured.
func (r *Registry) Get(name string) *ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.servers[name]
}

// All returns the status entry of every registered server, in no
// particular order.
func (r *Registry) All() []*ServerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ServerStatus, 0, len(r.servers))
	for _, s := range r.servers {
		out = append(out, s)
	}
	return out
}

// Mutate applies fn to the entry for name under the registry lock,
// creating a fresh disabled entry first if name is new (callers normally
// pre-populate via NewRegistry/Sync).
func (r *Registry) Mutate(name string, fn func(*ServerStatus)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.servers[name]
	if !ok {
		s = &ServerStatus{Name: name}
		r.servers[name] = s
	}
	fn(s)
}

// Sync reconciles the registry against a reloaded document: adds entries
// for newly added servers, removes entries for servers no longer present
// (spec §6: reload "restarts only affected servers" — removal here drops
// the now-unconfigured server's bookkeeping; the launcher is responsible
// for stopping its process beforehand).
func (r *Registry) Sync(doc *config.RegistryDocument) (added, removed []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := map[string]bool{}
	for name, entry := range doc.MCPServers {
		seen[name] = true
		if _, ok := r.servers[name]; !ok {
			r.servers[name] = &ServerStatus{Name: name, Enabled: entry.IsEnabled()}
			added = append(added, name)
			continue
		}
		r.servers[name].Enabled = entry.IsEnabled()
	}
	for name := range r.servers {
		if !seen[name] {
			delete(r.servers, name)
			removed = append(removed, name)
		}
	}
	return added, removed
}

// MarkCheck stamps LastCheckAt for name to now.
func (r *Registry) MarkCheck(name string, now time.Time) {
	r.Mutate(name, func(s *ServerStatus) { s.LastCheckAt = now })
}

// ResetFailures clears ConsecutiveFailures and MarkedFailed for name
// (spec §4.5 attempt 2: "reset marked_failed for this server").
func (r *Registry) ResetFailures(name string) {
	r.Mutate(name, func(s *ServerStatus) {
		s.ConsecutiveFailures = 0
		s.MarkedFailed = false
	})
}
