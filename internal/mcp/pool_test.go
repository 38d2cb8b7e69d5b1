package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/mcpsuper"
)

// fakeTransport answers hello/list_tools exchanges without spawning a real
// subprocess, so the pool's reuse/eviction logic can be exercised without a
// real MCP server binary.
type fakeTransport struct {
	connected bool
	sendErr   error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (f *fakeTransport) Connect(ctx context.Context) error {
	f.connected = true
	return nil
}

func (f *fakeTransport) Close() error {
	f.connected = false
	return nil
}

func (f *fakeTransport) Send(ctx context.Context, msg ClientMessage) (ServerMessage, error) {
	if f.sendErr != nil {
		return ServerMessage{}, f.sendErr
	}
	switch msg.Type {
	case "hello":
		return ServerMessage{Type: "hello", Status: "ok"}, nil
	case "list_tools":
		return ServerMessage{Type: "list_tools_response"}, nil
	default:
		return ServerMessage{Type: msg.Type + "_response"}, nil
	}
}

func (f *fakeTransport) Notify(ctx context.Context, msg ClientMessage) error { return nil }
func (f *fakeTransport) Connected() bool                                    { return f.connected }

// fakeSupervisor records recovery-ladder calls without touching any real
// process.
type fakeSupervisor struct {
	ensureCalls  int
	zombieCalls  int
	resetCalls   int
	restartCalls int
}

func (f *fakeSupervisor) EnsureRunning(ctx context.Context, name string, connectOnly bool) mcpsuper.EnsureResult {
	f.ensureCalls++
	return mcpsuper.EnsureResult{Success: true, Running: true}
}
func (f *fakeSupervisor) ZombieSweep()              { f.zombieCalls++ }
func (f *fakeSupervisor) ResetFailures(name string) { f.resetCalls++ }
func (f *fakeSupervisor) ForceRestart(ctx context.Context, name string) mcpsuper.StartResult {
	f.restartCalls++
	return mcpsuper.StartResult{OK: true}
}

func docWith(name string, entry config.ServerEntry) func() *config.RegistryDocument {
	doc := &config.RegistryDocument{MCPServers: map[string]config.ServerEntry{name: entry}}
	return func() *config.RegistryDocument { return doc }
}

func newPoolForTest(name string, entry config.ServerEntry) (*Pool, *fakeSupervisor) {
	sup := &fakeSupervisor{}
	pool := NewPool(docWith(name, entry), sup, nil)
	return pool, sup
}

func TestAcquireUnconfiguredServerFails(t *testing.T) {
	pool, _ := newPoolForTest("other", config.ServerEntry{Command: "x"})
	_, err := pool.Acquire(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error for unconfigured server")
	}
}

func TestAcquireInstallsAndReusesConnection(t *testing.T) {
	pool, sup := newPoolForTest("alpha", config.ServerEntry{Command: "alpha-bin"})

	transport := newFakeTransport()

	// Inject a pre-warmed connection directly, simulating a prior connect(),
	// to exercise the reuse path without going through a real subprocess.
	client := NewClientWithTransport(&ServerConfig{ID: "alpha", Transport: TransportStdio}, transport, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	pool.conns["alpha"] = &Connection{Name: "alpha", Client: client, CreatedAt: time.Now()}

	got, err := pool.Acquire(context.Background(), "alpha")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if got != client {
		t.Fatal("expected the pooled connection to be reused")
	}
	if sup.ensureCalls != 0 {
		t.Fatalf("expected no recovery steps for a healthy connection, got %d ensure calls", sup.ensureCalls)
	}
}

func TestAcquireEvictsStaleConnectionByAge(t *testing.T) {
	pool, _ := newPoolForTest("alpha", config.ServerEntry{Command: "alpha-bin"})

	transport := newFakeTransport()
	client := NewClientWithTransport(&ServerConfig{ID: "alpha", Transport: TransportStdio}, transport, nil)
	_ = client.Connect(context.Background())
	pool.conns["alpha"] = &Connection{Name: "alpha", Client: client, CreatedAt: time.Now().Add(-2 * time.Hour)}

	if pool.healthyExisting(context.Background(), "alpha") != nil {
		t.Fatal("expected stale connection to be evicted, not reused")
	}
	if _, ok := pool.conns["alpha"]; ok {
		t.Fatal("expected stale connection removed from pool")
	}
}

func TestAcquireEvictsOnFailedPing(t *testing.T) {
	pool, _ := newPoolForTest("alpha", config.ServerEntry{Command: "alpha-bin"})

	transport := newFakeTransport()
	client := NewClientWithTransport(&ServerConfig{ID: "alpha", Transport: TransportStdio}, transport, nil)
	_ = client.Connect(context.Background())
	transport.sendErr = errors.New("broken pipe")
	pool.conns["alpha"] = &Connection{Name: "alpha", Client: client, CreatedAt: time.Now()}

	if pool.healthyExisting(context.Background(), "alpha") != nil {
		t.Fatal("expected failed ping to evict the connection")
	}
}

func TestEvictClosesAndRemoves(t *testing.T) {
	pool, _ := newPoolForTest("alpha", config.ServerEntry{Command: "alpha-bin"})
	transport := newFakeTransport()
	client := NewClientWithTransport(&ServerConfig{ID: "alpha", Transport: TransportStdio}, transport, nil)
	_ = client.Connect(context.Background())
	pool.conns["alpha"] = &Connection{Name: "alpha", Client: client, CreatedAt: time.Now()}

	pool.Evict("alpha")

	if _, ok := pool.conns["alpha"]; ok {
		t.Fatal("expected connection removed")
	}
	if transport.connected {
		t.Fatal("expected transport closed")
	}
}

func TestRunRecoveryStepEscalatesByAttempt(t *testing.T) {
	pool, sup := newPoolForTest("alpha", config.ServerEntry{Command: "alpha-bin"})

	pool.runRecoveryStep(context.Background(), "alpha", 1)
	pool.runRecoveryStep(context.Background(), "alpha", 2)
	pool.runRecoveryStep(context.Background(), "alpha", 3)
	pool.runRecoveryStep(context.Background(), "alpha", 4)

	if sup.ensureCalls != 3 {
		t.Fatalf("expected 3 ensure-running calls, got %d", sup.ensureCalls)
	}
	if sup.zombieCalls != 1 {
		t.Fatalf("expected 1 zombie sweep, got %d", sup.zombieCalls)
	}
	if sup.resetCalls != 1 {
		t.Fatalf("expected 1 reset-failures call, got %d", sup.resetCalls)
	}
	if sup.restartCalls != 1 {
		t.Fatalf("expected 1 force-restart call, got %d", sup.restartCalls)
	}
}
