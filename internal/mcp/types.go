// Package mcp provides the client half of the gateway's MCP subprocess
// wire protocol: a line-delimited, type-tagged JSON dialect (spec §6),
// distinct from the standard MCP JSON-RPC 2.0 wire format.
package mcp

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// protocolVersion is the "version" field sent on every hello handshake
// (spec §6: `{"type":"hello","version":"1.0",...}`).
const protocolVersion = "1.0"

// TransportType specifies how a tool server is reached: over its stdio or
// over HTTP.
type TransportType string

const (
	TransportStdio TransportType = "stdio"
	TransportHTTP  TransportType = "http"
)

// ServerConfig holds configuration for a single tool server connection.
type ServerConfig struct {
	ID        string        `yaml:"id" json:"id"`
	Name      string        `yaml:"name" json:"name"`
	Transport TransportType `yaml:"transport" json:"transport"`

	// Stdio transport options
	Command string            `yaml:"command" json:"command,omitempty"`
	Args    []string          `yaml:"args" json:"args,omitempty"`
	Env     map[string]string `yaml:"env" json:"env,omitempty"`
	WorkDir string            `yaml:"workdir" json:"workdir,omitempty"`

	// HTTP transport options
	URL     string            `yaml:"url" json:"url,omitempty"`
	Headers map[string]string `yaml:"headers" json:"headers,omitempty"`

	// Common options
	Timeout   time.Duration `yaml:"timeout" json:"timeout,omitempty"`
	AutoStart bool          `yaml:"auto_start" json:"auto_start,omitempty"`
}

// Validate checks the server configuration for security issues before a
// transport is dialed against it.
func (c *ServerConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("server ID is required")
	}

	if c.Transport == TransportStdio {
		if err := c.validateStdioConfig(); err != nil {
			return fmt.Errorf("stdio config for %s: %w", c.ID, err)
		}
	}

	if c.Transport == TransportHTTP {
		if err := c.validateHTTPConfig(); err != nil {
			return fmt.Errorf("http config for %s: %w", c.ID, err)
		}
	}

	return nil
}

// validateStdioConfig validates stdio transport configuration.
func (c *ServerConfig) validateStdioConfig() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}

	if err := validatePath(c.Command, "command"); err != nil {
		return err
	}

	if containsShellMetachars(c.Command) {
		return fmt.Errorf("command contains suspicious shell metacharacters: %q", c.Command)
	}

	if c.WorkDir != "" {
		if err := validatePath(c.WorkDir, "workdir"); err != nil {
			return err
		}
	}

	for i, arg := range c.Args {
		if containsShellMetachars(arg) {
			return fmt.Errorf("arg[%d] contains suspicious shell metacharacters: %q", i, arg)
		}
	}

	return nil
}

// validateHTTPConfig validates HTTP transport configuration.
func (c *ServerConfig) validateHTTPConfig() error {
	if c.URL == "" {
		return fmt.Errorf("URL is required")
	}

	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("URL must start with http:// or https://")
	}

	return nil
}

// validatePath checks a path for traversal attacks.
func validatePath(path, fieldName string) error {
	if path == "" {
		return nil
	}

	cleaned := filepath.Clean(path)
	if strings.Contains(cleaned, "..") {
		return fmt.Errorf("%s contains path traversal: %q", fieldName, path)
	}

	return nil
}

// containsShellMetachars checks for shell metacharacters that could
// indicate injection.
func containsShellMetachars(s string) bool {
	dangerousPatterns := []string{
		"$(", "${", // Command substitution
		"`",        // Backtick substitution
		"&&", "||", // Command chaining
		";",      // Command separator
		"|",      // Pipe
		">", "<", // Redirection
		"\n", "\r", // Newlines
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(s, pattern) {
			return true
		}
	}
	return false
}

// ClientMessage is the line-delimited envelope the gateway writes to a
// tool server (spec §6): hello, list_tools, tool_call, or goodbye.
type ClientMessage struct {
	Type       string          `json:"type"`
	Version    string          `json:"version,omitempty"`
	SessionID  string          `json:"session_id,omitempty"`
	ID         string          `json:"id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ServerMessage is the line-delimited envelope a tool server writes back
// (spec §6): its Type matches the request (hello, list_tools_response,
// tool_response). A tool_response carries Id plus either Content or Error.
type ServerMessage struct {
	Type    string           `json:"type"`
	Status  string           `json:"status,omitempty"`
	ID      string           `json:"id,omitempty"`
	Tools   []ToolDescriptor `json:"tools,omitempty"`
	Content ToolContent      `json:"content,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// ToolDescriptor is one entry of a list_tools_response (spec §6): "a tool
// ... has {name, description, parameters: JSON-Schema}".
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// contentKind tags which shape a tool_response's content field took.
type contentKind int

const (
	contentEmpty contentKind = iota
	contentText
	contentList
	contentJSON
)

// ToolContent is the tagged variant a tool_response's content field parses
// into (spec §9 redesign note: "define a small tagged variant ToolContent
// = Text(string) | Json(value) | List([ToolContent]) produced by the
// wire-protocol parser; the executor and summariser consume only this",
// replacing reflection-heavy inspection of .text/.content/dict/object
// fields with one explicit union built at the wire boundary).
type ToolContent struct {
	kind contentKind
	text string
	list []ToolContent
	raw  json.RawMessage
}

// UnmarshalJSON classifies the raw content payload by its JSON shape: a
// bare string is text, an array is a list of nested content, and anything
// else (object, number, bool, null) is kept as opaque JSON.
func (c *ToolContent) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = ToolContent{kind: contentEmpty}
		return nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("unmarshal text content: %w", err)
		}
		*c = ToolContent{kind: contentText, text: s}
		return nil
	case '[':
		var items []ToolContent
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("unmarshal list content: %w", err)
		}
		*c = ToolContent{kind: contentList, list: items}
		return nil
	default:
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		*c = ToolContent{kind: contentJSON, raw: raw}
		return nil
	}
}

// MarshalJSON round-trips a ToolContent back to whichever shape it was
// parsed from, mainly so tests can build fixtures by constructing the Go
// value directly.
func (c ToolContent) MarshalJSON() ([]byte, error) {
	switch c.kind {
	case contentText:
		return json.Marshal(c.text)
	case contentList:
		return json.Marshal(c.list)
	case contentJSON:
		if len(c.raw) == 0 {
			return []byte("null"), nil
		}
		return c.raw, nil
	default:
		return []byte("null"), nil
	}
}

// Text follows the extraction convention spec §4.6 describes: a single
// textual field wins outright, multiple text items are newline-joined,
// and anything else falls back to its JSON string form.
func (c ToolContent) Text() string {
	switch c.kind {
	case contentText:
		return c.text
	case contentList:
		if len(c.list) == 0 {
			return ""
		}
		if len(c.list) == 1 {
			return c.list[0].Text()
		}
		parts := make([]string, 0, len(c.list))
		for _, item := range c.list {
			parts = append(parts, item.Text())
		}
		return strings.Join(parts, "\n")
	case contentJSON:
		return string(c.raw)
	default:
		return ""
	}
}

// NewTextContent builds a ToolContent directly from a string, used by
// tests that construct fixtures without round-tripping through JSON.
func NewTextContent(text string) ToolContent {
	return ToolContent{kind: contentText, text: text}
}

// ToolCallResult holds the parsed reply to a tool_call (spec §6).
type ToolCallResult struct {
	Content ToolContent
}
