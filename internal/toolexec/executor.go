// Package toolexec implements the tool-call executor (C8): resolving a
// tool_id against the catalogue, ensuring the owning server is reachable
// through the connection pool, invoking the remote tool with a hard
// timeout, and handing the raw result to the LLM adapter for a
// natural-language summary.
package toolexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/errs"
	"github.com/haasonsaas/nexus-gateway/internal/mcp"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

// callTimeout is the hard bound on a single tool invocation (spec §4.6).
const callTimeout = 120 * time.Second

// Pool is the slice of mcp.Pool the executor needs.
type Pool interface {
	Acquire(ctx context.Context, name string) (*mcp.Client, error)
	Evict(name string)
}

// ProcessEvictor clears a server's process bookkeeping after a
// connection-class failure, alongside the pool's own eviction.
type ProcessEvictor interface {
	Evict(name string)
}

// Catalogue resolves a tool_id to its catalogue entry and gives the
// executor a default server when the caller doesn't name one.
type Catalogue interface {
	Lookup(toolID string) (models.Tool, bool)
	DefaultServer() (string, bool)
}

// Summarizer is C9's natural-language summarization entry point.
type Summarizer interface {
	SummarizeToolResult(ctx context.Context, toolName, rawResult string) (string, error)
}

// Result is the executor's return contract: {success, data?, error?}. The
// error is carried both as a flattened message (Error, used by the
// orchestrator's log rows) and as its structured parts (spec §6: "Error
// objects: {code, message, original_error?, should_retry?}"), which the
// /execute HTTP handler serializes directly.
type Result struct {
	Success      bool
	Data         string
	Error        string
	ErrorCode    string
	ErrorMessage string
	ShouldRetry  bool
}

// Executor is C8.
type Executor struct {
	pool       Pool
	processes  ProcessEvictor
	catalogue  Catalogue
	summarizer Summarizer
	logger     *slog.Logger
}

// New builds an Executor. summarizer may be nil, in which case raw tool
// output is used as the result data without summarization.
func New(pool Pool, processes ProcessEvictor, catalogue Catalogue, summarizer Summarizer, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		pool:       pool,
		processes:  processes,
		catalogue:  catalogue,
		summarizer: summarizer,
		logger:     logger.With("component", "toolexec"),
	}
}

// Execute runs tool_id with params against targetServer, or the
// catalogue's default server when targetServer is empty.
func (e *Executor) Execute(ctx context.Context, toolID string, params json.RawMessage, targetServer string) Result {
	tool, ok := e.catalogue.Lookup(toolID)
	if !ok {
		return errResult(errs.New(errs.ToolNotFound, nil, toolID))
	}

	server := targetServer
	if server == "" {
		server = tool.ServerName
	}
	if server == "" {
		if def, ok := e.catalogue.DefaultServer(); ok {
			server = def
		}
	}
	if server == "" {
		return errResult(errs.New(errs.ServerNotFound, nil, "<none configured>"))
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	client, err := e.pool.Acquire(callCtx, server)
	if err != nil {
		return errResult(errs.New(errs.Classify(err), err, server))
	}

	args, err := argumentsMap(params)
	if err != nil {
		return errResult(errs.New(errs.ToolInvalidParams, err, toolID, err.Error()))
	}

	callResult, err := client.CallTool(callCtx, tool.Name, args)
	if err != nil {
		kind := errs.Classify(err)
		if callCtx.Err() != nil {
			kind = errs.ToolExecutionTimeout
		}
		if errs.IsConnectionClass(kind) {
			e.logger.Warn("connection-class failure, evicting pooled connection and process record",
				"server", server, "tool", toolID, "kind", kind)
			e.pool.Evict(server)
			if e.processes != nil {
				e.processes.Evict(server)
			}
		}
		return errResult(errs.New(kind, err, toolID, err.Error()))
	}

	raw := extractPayload(callResult)
	data := e.summarize(ctx, tool.Name, raw)
	return Result{Success: true, Data: data}
}

func (e *Executor) summarize(ctx context.Context, toolName, raw string) string {
	if e.summarizer == nil {
		return raw
	}
	summary, err := e.summarizer.SummarizeToolResult(ctx, toolName, raw)
	if err != nil {
		e.logger.Debug("summarization failed, falling back", "tool", toolName, "error", err)
		return fmt.Sprintf("Tool %s executed successfully", toolName)
	}
	return summary
}

func errResult(err *errs.Error) Result {
	return Result{
		Success:      false,
		Error:        err.Error(),
		ErrorCode:    string(err.Kind),
		ErrorMessage: err.Message,
		ShouldRetry:  err.ShouldRetry,
	}
}

func argumentsMap(params json.RawMessage) (map[string]any, error) {
	if len(params) == 0 {
		return nil, nil
	}
	var args map[string]any
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, fmt.Errorf("decode tool arguments: %w", err)
	}
	return args, nil
}

// extractPayload delegates to ToolContent's own extraction convention
// (spec §4.6), which the wire-protocol parser already applied when the
// tool_response was decoded.
func extractPayload(result *mcp.ToolCallResult) string {
	if result == nil {
		return ""
	}
	return result.Content.Text()
}
