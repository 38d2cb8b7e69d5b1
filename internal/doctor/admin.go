//go:build linux

// Package doctor supports the gateway's operational CLI: resetting a
// tool server's recorded failure count and forcing a registry reload,
// grounded on the teacher's internal/doctor package (there: config
// migrations, backups, and policy checks against a running Nexus
// install; here: the equivalent surface against a running mcpsuper
// supervisor).
package doctor

import (
	"context"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/mcpsuper"
)

// ManagerAdmin implements gatewayhttp.Admin directly against a live
// mcpsuper.Manager, serving the /admin/* routes the doctor CLI talks to.
type ManagerAdmin struct {
	manager *mcpsuper.Manager
}

// NewManagerAdmin wraps manager as a gatewayhttp.Admin.
func NewManagerAdmin(manager *mcpsuper.Manager) *ManagerAdmin {
	return &ManagerAdmin{manager: manager}
}

// ResetServerFailures clears a server's recorded consecutive-failure count
// (spec §4.4 S6: reset_server_failures) so the supervisor's next tick
// treats it as eligible for a fresh start attempt.
func (a *ManagerAdmin) ResetServerFailures(name string) error {
	a.manager.Supervisor.ResetFailures(name)
	return nil
}

// ReloadRegistry re-reads the registry document and restarts only the
// affected servers, returning the diff for the caller to report.
func (a *ManagerAdmin) ReloadRegistry(ctx context.Context) (config.RegistryDiff, error) {
	return a.manager.Reload(ctx)
}
