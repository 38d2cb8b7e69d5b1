//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus-gateway/internal/auth"
	"github.com/haasonsaas/nexus-gateway/internal/catalogue"
	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/doctor"
	"github.com/haasonsaas/nexus-gateway/internal/gatewayhttp"
	"github.com/haasonsaas/nexus-gateway/internal/llm"
	"github.com/haasonsaas/nexus-gateway/internal/mcp"
	"github.com/haasonsaas/nexus-gateway/internal/mcpsuper"
	"github.com/haasonsaas/nexus-gateway/internal/orchestrator"
	"github.com/haasonsaas/nexus-gateway/internal/sessions"
	"github.com/haasonsaas/nexus-gateway/internal/toolexec"
)

// buildServeCmd creates the "serve" command that starts the gateway.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway's HTTP surface and MCP server supervisor",
		Long: `Start the gateway with all configured tool servers supervised.

The server will:
1. Load configuration from the specified file (or gateway.yaml)
2. Connect the session store (CockroachDB if configured, in-memory otherwise)
3. Start the MCP server supervisor, which launches every enabled tool server
4. Build the tool catalogue from the reachable servers
5. Start the HTTP surface (/intent/interpret, /intent/confirm, /execute,
   /healthz, /metrics, /admin/*)

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath
			}
			return runServe(cmd.Context(), configPath, debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")

	return cmd
}

// processEvictor adapts the launcher's Stop into toolexec.ProcessEvictor:
// a connection-class tool-call failure forces the owning process to stop
// so the supervisor's next tick restarts it clean.
type processEvictor struct {
	manager *mcpsuper.Manager
}

func (p *processEvictor) Evict(name string) {
	_ = p.manager.Launcher().Stop(name)
}

// poolRef resolves the Pool/Manager construction cycle: the manager needs
// an Evictor before the pool exists, and the pool needs the manager's
// supervisor. poolRef is handed to the manager first and pointed at the
// real pool once it's built.
type poolRef struct {
	pool *mcp.Pool
}

func (r *poolRef) Evict(name string) {
	if r.pool != nil {
		r.pool.Evict(name)
	}
}

func runServe(ctx context.Context, configPath string, debug bool) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting gateway", "version", version, "config", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	store, err := buildSessionStore(cfg.Database)
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}

	evictor := &poolRef{}
	manager, err := mcpsuper.NewManager(cfg.Registry.Path, evictor, slog.Default())
	if err != nil {
		return fmt.Errorf("build mcp server manager: %w", err)
	}

	pool := mcp.NewPool(manager.Document(), manager.Supervisor, slog.Default())
	evictor.pool = pool

	cat := catalogue.New(manager.Document(), pool, slog.Default())
	if err := cat.Refresh(ctx); err != nil {
		slog.Warn("initial catalogue refresh incomplete", "error", err)
	}

	llmAdapter := llm.New(cfg.LLM)
	locker := sessions.NewLocalLocker(sessions.DefaultLockTimeout)
	executor := toolexec.New(pool, &processEvictor{manager: manager}, cat, llmAdapter, slog.Default())
	orch := orchestrator.New(store, locker, llmAdapter, cat, executor)
	admin := doctor.NewManagerAdmin(manager)

	httpServer := gatewayhttp.NewServer(orch, executor, admin, slog.Default())
	httpServer.Use(auth.New(cfg.Auth.JWTSecret).Middleware)

	if err := manager.Supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start mcp supervisor: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if err := httpServer.Start(addr); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}

	slog.Info("gateway started", "http_addr", addr)

	sigCtx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	<-sigCtx.Done()

	slog.Info("shutdown signal received, draining")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "error", err)
	}
	if err := manager.Supervisor.Stop(shutdownCtx); err != nil {
		slog.Warn("supervisor stop error", "error", err)
	}
	manager.Shutdown()
	pool.Shutdown()

	slog.Info("gateway stopped gracefully")
	return nil
}

func buildSessionStore(dbCfg config.DatabaseConfig) (sessions.Store, error) {
	if dbCfg.URL == "" {
		slog.Warn("no database.url configured, using in-memory session store (not for production)")
		return sessions.NewMemoryStore(), nil
	}

	ccCfg := sessions.DefaultCockroachConfig()
	if dbCfg.MaxConnections > 0 {
		ccCfg.MaxOpenConns = dbCfg.MaxConnections
	}
	if dbCfg.ConnMaxLifetime > 0 {
		ccCfg.ConnMaxLifetime = dbCfg.ConnMaxLifetime
	}
	return sessions.NewCockroachStoreFromDSN(dbCfg.URL, ccCfg)
}
