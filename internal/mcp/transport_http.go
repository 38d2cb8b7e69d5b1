package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// HTTPTransport speaks the same spec §6 envelopes as StdioTransport, but
// over HTTP POST instead of a subprocess's stdio pipes: each ClientMessage
// is the POST body and the ServerMessage is the response body. Used for
// tool servers reachable as a standing HTTP endpoint rather than a
// spawned process.
type HTTPTransport struct {
	config *ServerConfig
	logger *slog.Logger
	client *http.Client

	connected atomic.Bool
}

// NewHTTPTransport creates a new HTTP transport.
func NewHTTPTransport(cfg *ServerConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &HTTPTransport{
		config: cfg,
		logger: slog.Default().With("mcp_server", cfg.ID, "transport", "http"),
		client: &http.Client{Timeout: timeout},
	}
}

// Connect validates the endpoint is configured; there is no persistent
// connection to establish for a stateless HTTP endpoint.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	if t.config.URL == "" {
		return fmt.Errorf("URL is required for HTTP transport")
	}
	t.connected.Store(true)
	t.logger.Info("HTTP transport ready", "url", t.config.URL)
	return nil
}

// Close marks the transport unusable.
func (t *HTTPTransport) Close() error {
	t.connected.Store(false)
	return nil
}

// Send POSTs msg and decodes the response body as a ServerMessage.
func (t *HTTPTransport) Send(ctx context.Context, msg ClientMessage) (ServerMessage, error) {
	if !t.connected.Load() {
		return ServerMessage{}, fmt.Errorf("not connected")
	}

	resp, err := t.post(ctx, msg)
	if err != nil {
		return ServerMessage{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ServerMessage{}, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}

	var serverMsg ServerMessage
	if err := json.NewDecoder(resp.Body).Decode(&serverMsg); err != nil {
		return ServerMessage{}, fmt.Errorf("decode %s response: %w", msg.Type, err)
	}
	return serverMsg, nil
}

// Notify POSTs msg and discards the response body (spec §6's goodbye).
func (t *HTTPTransport) Notify(ctx context.Context, msg ClientMessage) error {
	if !t.connected.Load() {
		return fmt.Errorf("not connected")
	}
	resp, err := t.post(ctx, msg)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

func (t *HTTPTransport) post(ctx context.Context, msg ClientMessage) (*http.Response, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", msg.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range t.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	return resp, nil
}

// Connected returns whether the transport is usable.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}
