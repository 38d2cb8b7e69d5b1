package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/backoff"
	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/errs"
	"github.com/haasonsaas/nexus-gateway/internal/mcpsuper"
)

// maxAcquireAttempts bounds the pool's intelligent-recovery retry ladder
// (spec §4.5: "up to 5 attempts").
const maxAcquireAttempts = 5

// maxConnectionAge is the oldest a pooled connection may be before it is
// evicted as stale, even if it still answers a ping (spec §4.5: "age < 1h").
const maxConnectionAge = time.Hour

const (
	defaultValidationTimeout = 10 * time.Second
	defaultWarmupTimeout     = 5 * time.Second
	defaultPingTimeout       = 3 * time.Second
)

// Supervisor is the narrow slice of mcpsuper.Supervisor the pool's
// recovery ladder needs, so the pool depends on behavior rather than the
// full lifecycle-supervisor type.
type Supervisor interface {
	EnsureRunning(ctx context.Context, name string, connectOnly bool) mcpsuper.EnsureResult
	ZombieSweep()
	ResetFailures(name string)
	ForceRestart(ctx context.Context, name string) mcpsuper.StartResult
}

// Connection is a pooled, already-initialized MCP client plus the
// bookkeeping the pool uses to decide whether to keep reusing it.
type Connection struct {
	Name      string
	Client    *Client
	CreatedAt time.Time
}

// Pool is C7: a per-server connection pool that health-checks a cached
// connection before reuse and, on failure, runs an attempt-dependent
// recovery ladder against the lifecycle supervisor before giving up.
// Grounded on the teacher's manager.go client map, replacing its
// connect-once-and-cache behavior with the spec's health-check-then-reuse
// and recovery semantics.
type Pool struct {
	document   func() *config.RegistryDocument
	supervisor Supervisor
	logger     *slog.Logger

	mu    sync.Mutex
	conns map[string]*Connection
	locks map[string]*sync.Mutex

	retryPolicy backoff.BackoffPolicy
}

// NewPool builds a Pool. document returns the live registry document so
// the pool always dials the current command/args/env for a server.
func NewPool(document func() *config.RegistryDocument, supervisor Supervisor, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		document:    document,
		supervisor:  supervisor,
		logger:      logger.With("component", "mcp.pool"),
		conns:       make(map[string]*Connection),
		locks:       make(map[string]*sync.Mutex),
		retryPolicy: backoff.PoolReconnectPolicy(),
	}
}

func (p *Pool) nameLock(name string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	lock, ok := p.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[name] = lock
	}
	return lock
}

func (p *Pool) lookupEntry(name string) (config.ServerEntry, bool) {
	doc := p.document()
	if doc == nil {
		return config.ServerEntry{}, false
	}
	entry, ok := doc.MCPServers[name]
	return entry, ok
}

// Acquire returns a healthy, initialized client for name, reusing a
// pooled connection when possible and otherwise running the recovery
// ladder described in spec §4.5.
func (p *Pool) Acquire(ctx context.Context, name string) (*Client, error) {
	entry, ok := p.lookupEntry(name)
	if !ok {
		return nil, errs.New(errs.ServerNotFound, nil, name)
	}

	lock := p.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	var lastErr *errs.Error
	for attempt := 1; attempt <= maxAcquireAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if client := p.healthyExisting(ctx, name); client != nil {
			return client, nil
		}

		p.runRecoveryStep(ctx, name, attempt)

		client, connectErr := p.connect(ctx, name, entry)
		if connectErr == nil {
			return client, nil
		}

		lastErr = errs.New(errs.Classify(connectErr), connectErr, name)
		if !lastErr.ShouldRetry {
			return nil, lastErr
		}

		if attempt < maxAcquireAttempts {
			if err := backoff.SleepWithBackoff(ctx, p.retryPolicy, attempt); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

// runRecoveryStep implements the pool's attempt-dependent recovery ladder.
// attempt is 1-indexed.
func (p *Pool) runRecoveryStep(ctx context.Context, name string, attempt int) {
	switch attempt {
	case 1:
		p.supervisor.EnsureRunning(ctx, name, false)
	case 2:
		p.supervisor.ZombieSweep()
		p.supervisor.EnsureRunning(ctx, name, false)
	case 3:
		p.supervisor.ResetFailures(name)
		p.supervisor.EnsureRunning(ctx, name, false)
	default:
		p.supervisor.ForceRestart(ctx, name)
	}
}

// healthyExisting returns the pooled client for name if it is still fresh
// and responsive, evicting it otherwise.
func (p *Pool) healthyExisting(ctx context.Context, name string) *Client {
	p.mu.Lock()
	conn := p.conns[name]
	p.mu.Unlock()
	if conn == nil {
		return nil
	}

	if time.Since(conn.CreatedAt) > maxConnectionAge {
		p.Evict(name)
		return nil
	}
	if !conn.Client.Connected() {
		p.Evict(name)
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()
	if err := conn.Client.Ping(pingCtx); err != nil {
		p.logger.Debug("pooled connection failed ping, evicting", "server", name, "error", err)
		p.Evict(name)
		return nil
	}
	return conn.Client
}

// connect dials a fresh connection for name: initialize handshake under
// the server's validation timeout (a timed-out handshake is tolerated only
// while the transport is still connected; servers are not classified as
// slow), then a warmup tools/list call that is tolerated on failure.
func (p *Pool) connect(ctx context.Context, name string, entry config.ServerEntry) (*Client, error) {
	cfg := serverConfigFromEntry(name, entry)

	client := NewClient(cfg, p.logger)

	validationTimeout := timeoutOrDefault(entry.Timeout.Validation, defaultValidationTimeout)
	connectCtx, cancel := context.WithTimeout(ctx, validationTimeout)
	defer cancel()

	if err := client.Connect(connectCtx); err != nil {
		if connectCtx.Err() != nil && client.Connected() {
			p.logger.Warn("connection validation timed out, tolerating slow server", "server", name)
		} else {
			return nil, fmt.Errorf("connect %s: %w", name, err)
		}
	}

	warmupTimeout := timeoutOrDefault(entry.Timeout.Warmup, defaultWarmupTimeout)
	warmupCtx, warmupCancel := context.WithTimeout(ctx, warmupTimeout)
	defer warmupCancel()
	if err := client.Ping(warmupCtx); err != nil {
		p.logger.Debug("warmup call failed, continuing anyway", "server", name, "error", err)
	}

	conn := &Connection{Name: name, Client: client, CreatedAt: time.Now()}
	p.mu.Lock()
	p.conns[name] = conn
	p.mu.Unlock()

	return client, nil
}

// Evict implements mcpsuper.Evictor: it closes and drops any pooled
// connection for name so the next Acquire dials fresh.
func (p *Pool) Evict(name string) {
	p.mu.Lock()
	conn := p.conns[name]
	delete(p.conns, name)
	p.mu.Unlock()

	if conn != nil {
		_ = conn.Client.Close()
	}
}

// Shutdown closes every pooled connection.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	for name, conn := range conns {
		if err := conn.Client.Close(); err != nil {
			p.logger.Warn("error closing pooled connection", "server", name, "error", err)
		}
	}
}

func serverConfigFromEntry(name string, entry config.ServerEntry) *ServerConfig {
	return &ServerConfig{
		ID:        name,
		Name:      name,
		Transport: TransportStdio,
		Command:   entry.Command,
		Args:      entry.Args,
		Env:       entry.Env,
	}
}

func timeoutOrDefault(seconds float64, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
