// Package sessions persists the session state machine (C10): per-session
// status transitions and the append-only log trail that accompanies them.
package sessions

import (
	"context"

	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

// Store is the interface for session and log persistence. Every
// implementation must honor the "write, then commit" discipline: Transition
// writes the new session status and its LogEntry in one atomic phase, never
// one without the other.
type Store interface {
	// CreateSession inserts a new session in the given initial status.
	// If session.ID is empty one is allocated.
	CreateSession(ctx context.Context, session *models.Session) error

	// GetSession fetches a session by ID.
	GetSession(ctx context.Context, id string) (*models.Session, error)

	// Transition moves a session to a new status and appends the
	// corresponding LogEntry as a single all-or-nothing write. Rejects the
	// transition with ErrTerminalSession if the session is already in a
	// terminal status.
	Transition(ctx context.Context, sessionID string, status models.SessionStatus, entry *models.LogEntry) error

	// AppendLog appends a log row without changing session status. Used for
	// rows that accompany no status change (e.g. interpret's direct-response
	// and failure rows).
	AppendLog(ctx context.Context, entry *models.LogEntry) error

	// Logs returns all log rows for a session in chronological order.
	Logs(ctx context.Context, sessionID string) ([]*models.LogEntry, error)

	// LatestPendingTools returns the most recent step=pending_tools,
	// status=waiting log row for a session, or nil if none exists.
	LatestPendingTools(ctx context.Context, sessionID string) (*models.LogEntry, error)

	// LatestByStep returns the most recent log row for a session matching
	// the given step, or nil if none exists. Used by confirm()'s idempotent
	// replay of a cached execute_confirmed summary.
	LatestByStep(ctx context.Context, sessionID string, step string) (*models.LogEntry, error)
}
