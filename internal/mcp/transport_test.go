package mcp

import (
	"context"
	"testing"
	"time"
)

func TestNewTransportStdio(t *testing.T) {
	cfg := &ServerConfig{
		ID:        "weather",
		Transport: TransportStdio,
		Command:   "echo",
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*StdioTransport); !ok {
		t.Error("expected StdioTransport")
	}
}

func TestNewTransportHTTP(t *testing.T) {
	cfg := &ServerConfig{
		ID:        "billing",
		Transport: TransportHTTP,
		URL:       "https://billing.internal/mcp",
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*HTTPTransport); !ok {
		t.Error("expected HTTPTransport")
	}
}

func TestNewTransportDefault(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "weather",
		Command: "echo",
		// No transport type specified, should default to stdio
	}

	transport := NewTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if _, ok := transport.(*StdioTransport); !ok {
		t.Error("expected StdioTransport as default")
	}
}

func TestNewStdioTransport(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "weather",
		Command: "weather-mcp",
		Args:    []string{"--config", "weather.yaml"},
		Env:     map[string]string{"DEBUG": "true"},
		WorkDir: "/tmp",
		Timeout: 30 * time.Second,
	}

	transport := NewStdioTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}

	if transport.config != cfg {
		t.Error("expected config to be set")
	}
	if transport.replies == nil {
		t.Error("expected replies channel to be initialized")
	}
	if transport.stopChan == nil {
		t.Error("expected stopChan to be initialized")
	}
}

func TestStdioTransportConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "weather", Command: "echo"}
	transport := NewStdioTransport(cfg)

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestNewHTTPTransport(t *testing.T) {
	cfg := &ServerConfig{
		ID:      "billing",
		URL:     "https://billing.internal/mcp",
		Headers: map[string]string{"Authorization": "Bearer token"},
		Timeout: 60 * time.Second,
	}

	transport := NewHTTPTransport(cfg)
	if transport == nil {
		t.Fatal("expected non-nil transport")
	}
	if transport.config != cfg {
		t.Error("expected config to be set")
	}
}

func TestHTTPTransportDefaultTimeout(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", URL: "https://billing.internal/mcp"}
	transport := NewHTTPTransport(cfg)

	if transport.client.Timeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportCustomTimeout(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", URL: "https://billing.internal/mcp", Timeout: 60 * time.Second}
	transport := NewHTTPTransport(cfg)

	if transport.client.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", transport.client.Timeout)
	}
}

func TestHTTPTransportConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", URL: "https://billing.internal/mcp"}
	transport := NewHTTPTransport(cfg)

	if transport.Connected() {
		t.Error("expected Connected() to return false before Connect()")
	}
}

func TestStdioTransportConnectNoCommand(t *testing.T) {
	cfg := &ServerConfig{ID: "weather", Command: ""}
	transport := NewStdioTransport(cfg)

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestHTTPTransportConnectNoURL(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", Transport: TransportHTTP, URL: ""}
	transport := NewHTTPTransport(cfg)

	if err := transport.Connect(context.Background()); err == nil {
		t.Error("expected error for missing URL")
	}
}

func TestStdioTransportSendNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "weather", Command: "echo"}
	transport := NewStdioTransport(cfg)

	_, err := transport.Send(context.Background(), ClientMessage{Type: "hello"})
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportSendNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", URL: "https://billing.internal/mcp"}
	transport := NewHTTPTransport(cfg)

	_, err := transport.Send(context.Background(), ClientMessage{Type: "hello"})
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestStdioTransportNotifyNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "weather", Command: "echo"}
	transport := NewStdioTransport(cfg)

	err := transport.Notify(context.Background(), ClientMessage{Type: "goodbye"})
	if err == nil {
		t.Error("expected error when not connected")
	}
}

func TestHTTPTransportNotifyNotConnected(t *testing.T) {
	cfg := &ServerConfig{ID: "billing", URL: "https://billing.internal/mcp"}
	transport := NewHTTPTransport(cfg)

	err := transport.Notify(context.Background(), ClientMessage{Type: "goodbye"})
	if err == nil {
		t.Error("expected error when not connected")
	}
}

// TestStdioTransportSendTimesOutWithoutReply sends one request on a
// connected transport whose writes are discarded and nothing ever replies,
// and checks that Send gives up with an error once the configured timeout
// passes.
func TestStdioTransportSendTimesOutWithoutReply(t *testing.T) {
	cfg := &ServerConfig{ID: "weather", Command: "echo", Timeout: 50 * time.Millisecond}
	transport := NewStdioTransport(cfg)
	transport.connected.Store(true)
	transport.stdin = discardWriteCloser{}

	_, err := transport.Send(context.Background(), ClientMessage{Type: "hello"})
	if err == nil {
		t.Fatal("expected timeout error since nothing ever answers on replies")
	}
}

type discardWriteCloser struct{}

func (discardWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardWriteCloser) Close() error                { return nil }
