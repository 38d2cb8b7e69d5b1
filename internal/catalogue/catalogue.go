// Package catalogue builds the tools table (spec §6) that the LLM adapter
// formats for tool-choice and the tool-call executor resolves tool_id
// against. Grounded on the teacher's gateway/tool_manager.go, which
// aggregates native and MCP tools into one registered-tools view; trimmed
// here to the single MCP-backed source the spec describes, with HTTP-typed
// rows appended from explicit config rather than native in-process tools.
package catalogue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/mcp"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

// Pool is the narrow slice of mcp.Pool the catalogue needs to enumerate a
// server's tools during a refresh.
type Pool interface {
	Acquire(ctx context.Context, name string) (*mcp.Client, error)
}

// Catalogue is C2's tool-facing view: a snapshot of every tool exposed by
// the configured, enabled MCP servers, refreshed on demand (at startup and
// after a registry reload) rather than on every lookup.
type Catalogue struct {
	document func() *config.RegistryDocument
	pool     Pool
	logger   *slog.Logger

	mu            sync.RWMutex
	tools         map[string]models.Tool
	defaultServer string
}

// New builds a Catalogue. document is called fresh on every Refresh so the
// catalogue picks up registry reloads without needing its own reload hook.
func New(document func() *config.RegistryDocument, pool Pool, logger *slog.Logger) *Catalogue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalogue{
		document: document,
		pool:     pool,
		logger:   logger.With("component", "catalogue"),
		tools:    make(map[string]models.Tool),
	}
}

// Refresh acquires a connection to every enabled configured server, lists
// its tools, and rebuilds the catalogue snapshot. A server that fails to
// connect is logged and skipped rather than failing the whole refresh, so
// one misbehaving tool-server doesn't blank out the rest of the catalogue.
func (c *Catalogue) Refresh(ctx context.Context) error {
	doc := c.document()
	if doc == nil {
		return fmt.Errorf("catalogue refresh: no registry document available")
	}

	names := make([]string, 0, len(doc.MCPServers))
	for name, entry := range doc.MCPServers {
		if entry.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	tools := make(map[string]models.Tool)
	var firstServer string
	for _, name := range names {
		if firstServer == "" {
			firstServer = name
		}

		client, err := c.pool.Acquire(ctx, name)
		if err != nil {
			c.logger.Warn("skipping server during catalogue refresh", "server", name, "error", err)
			continue
		}

		for _, tool := range client.Tools() {
			tools[tool.Name] = models.Tool{
				ToolID:        tool.Name,
				Name:          tool.Name,
				Type:          models.ToolTypeMCP,
				Description:   tool.Description,
				RequestSchema: tool.Parameters,
				ServerName:    name,
			}
		}
	}

	c.mu.Lock()
	c.tools = tools
	c.defaultServer = firstServer
	c.mu.Unlock()
	return nil
}

// ToolCatalogue returns the current snapshot sorted by tool_id, implementing
// orchestrator.Catalogue for the LLM adapter's tool-choice formatting.
func (c *Catalogue) ToolCatalogue() []models.Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ToolID < out[j].ToolID })
	return out
}

// Lookup resolves a tool_id against the catalogue, implementing
// toolexec.Catalogue.
func (c *Catalogue) Lookup(toolID string) (models.Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	tool, ok := c.tools[toolID]
	return tool, ok
}

// DefaultServer returns the first configured enabled server, used when a
// tool call names no target_server and its catalogue row carries none
// either, implementing toolexec.Catalogue.
func (c *Catalogue) DefaultServer() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaultServer, c.defaultServer != ""
}
