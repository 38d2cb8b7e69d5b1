package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Client is a client for the spec §6 wire dialect, bound to one tool
// server for the lifetime of one session (spec's ClientSession: a single
// session_id generated at construction, threaded through every message).
type Client struct {
	config    *ServerConfig
	transport Transport
	logger    *slog.Logger
	sessionID string

	mu    sync.RWMutex
	tools []ToolDescriptor
}

// NewClient creates a new MCP client.
func NewClient(cfg *ServerConfig, logger *slog.Logger) *Client {
	return NewClientWithTransport(cfg, NewTransport(cfg), logger)
}

// NewClientWithTransport creates a client over an already-constructed
// transport, letting callers (the connection pool's tests, mainly) supply
// a fake transport instead of spawning a real subprocess.
func NewClientWithTransport(cfg *ServerConfig, transport Transport, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		config:    cfg,
		transport: transport,
		logger:    logger.With("mcp_server", cfg.ID),
		sessionID: uuid.New().String(),
	}
}

// Connect establishes the transport and performs the hello handshake
// (spec §6: `{"type":"hello","version":"1.0","session_id":...}`, answered
// with a matching `type:"hello"` reply), then refreshes the tool list.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return fmt.Errorf("transport connect: %w", err)
	}

	resp, err := c.transport.Send(ctx, ClientMessage{
		Type:      "hello",
		Version:   protocolVersion,
		SessionID: c.sessionID,
	})
	if err != nil {
		c.transport.Close()
		return fmt.Errorf("hello: %w", err)
	}
	if resp.Type != "hello" {
		c.transport.Close()
		return fmt.Errorf("unexpected hello response type %q", resp.Type)
	}

	c.logger.Info("connected to MCP server", "session_id", c.sessionID)

	if err := c.RefreshTools(ctx); err != nil {
		c.logger.Warn("failed to refresh tool list after hello", "error", err)
	}

	return nil
}

// Close sends goodbye (spec §6: `{"type":"goodbye","session_id":...}`)
// and tears down the transport.
func (c *Client) Close() error {
	_ = c.transport.Notify(context.Background(), ClientMessage{
		Type:      "goodbye",
		SessionID: c.sessionID,
	})
	return c.transport.Close()
}

// Config returns the server configuration.
func (c *Client) Config() *ServerConfig {
	return c.config
}

// SessionID returns the session_id threaded through every message on this
// client, for logging/correlation.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Connected returns whether the client is connected.
func (c *Client) Connected() bool {
	return c.transport.Connected()
}

// RefreshTools issues list_tools (spec §6) and caches the returned tool
// descriptors.
func (c *Client) RefreshTools(ctx context.Context) error {
	resp, err := c.transport.Send(ctx, ClientMessage{
		Type:      "list_tools",
		SessionID: c.sessionID,
	})
	if err != nil {
		return fmt.Errorf("list_tools: %w", err)
	}
	if resp.Type != "list_tools_response" {
		return fmt.Errorf("unexpected list_tools response type %q", resp.Type)
	}

	c.mu.Lock()
	c.tools = resp.Tools
	c.mu.Unlock()
	c.logger.Debug("refreshed tools", "count", len(resp.Tools))
	return nil
}

// Tools returns the cached tool descriptors from the last RefreshTools.
func (c *Client) Tools() []ToolDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tools
}

// CallTool issues tool_call (spec §6: `{"type":"tool_call","id":...,
// "name":...,"parameters":...}`) and returns the parsed tool_response.
// The response's id is checked against the request's, matching the
// original client's "response ID mismatch" guard.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolCallResult, error) {
	var params json.RawMessage
	if arguments != nil {
		argsJSON, err := json.Marshal(arguments)
		if err != nil {
			return nil, fmt.Errorf("marshal arguments: %w", err)
		}
		params = argsJSON
	}

	requestID := uuid.New().String()
	resp, err := c.transport.Send(ctx, ClientMessage{
		Type:       "tool_call",
		SessionID:  c.sessionID,
		ID:         requestID,
		Name:       name,
		Parameters: params,
	})
	if err != nil {
		return nil, err
	}
	if resp.Type != "tool_response" {
		return nil, fmt.Errorf("unexpected tool_call response type %q", resp.Type)
	}
	if resp.ID != requestID {
		return nil, fmt.Errorf("tool_response id mismatch: sent %s, got %s", requestID, resp.ID)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("tool %s: %s", name, resp.Error)
	}

	return &ToolCallResult{Content: resp.Content}, nil
}

// Ping is a lightweight liveness check used by the pool's protocol ping
// and warmup handshake (spec §4.5: "optional protocol ping", "warm it
// (one more tool-listing)"); spec §6 defines no dedicated ping message, so
// this reuses list_tools, mirroring the spec's own choice of warmup call.
func (c *Client) Ping(ctx context.Context) error {
	return c.RefreshTools(ctx)
}
