package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

// MemoryStore is an in-memory Store implementation for tests and local runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
	logs     map[string][]*models.LogEntry
	nextLog  int64
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: map[string]*models.Session{},
		logs:     map[string][]*models.LogEntry{},
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, session *models.Session) error {
	if session == nil {
		return ErrSessionNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = session.CreatedAt
	clone := *session
	m.sessions[clone.ID] = &clone
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (m *MemoryStore) Transition(ctx context.Context, sessionID string, status models.SessionStatus, entry *models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status.IsTerminal() {
		return ErrTerminalSession
	}

	session.Status = status
	session.UpdatedAt = time.Now()
	if entry != nil {
		m.appendLogLocked(sessionID, entry, session.UpdatedAt)
	}
	return nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry *models.LogEntry) error {
	if entry == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendLogLocked(entry.SessionID, entry, time.Now())
	return nil
}

func (m *MemoryStore) appendLogLocked(sessionID string, entry *models.LogEntry, ts time.Time) {
	m.nextLog++
	clone := *entry
	clone.ID = m.nextLog
	clone.SessionID = sessionID
	if clone.Timestamp.IsZero() {
		clone.Timestamp = ts
	}
	m.logs[sessionID] = append(m.logs[sessionID], &clone)
}

func (m *MemoryStore) Logs(ctx context.Context, sessionID string) ([]*models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.logs[sessionID]
	out := make([]*models.LogEntry, len(entries))
	for i, e := range entries {
		clone := *e
		out[i] = &clone
	}
	return out, nil
}

func (m *MemoryStore) LatestPendingTools(ctx context.Context, sessionID string) (*models.LogEntry, error) {
	return m.latestMatching(sessionID, func(e *models.LogEntry) bool {
		return e.Step == models.StepPendingTools && e.Status == models.LogWaiting
	})
}

func (m *MemoryStore) LatestByStep(ctx context.Context, sessionID string, step string) (*models.LogEntry, error) {
	return m.latestMatching(sessionID, func(e *models.LogEntry) bool {
		return e.Step == step
	})
}

func (m *MemoryStore) latestMatching(sessionID string, match func(*models.LogEntry) bool) (*models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.logs[sessionID]
	for i := len(entries) - 1; i >= 0; i-- {
		if match(entries[i]) {
			clone := *entries[i]
			return &clone, nil
		}
	}
	return nil, nil
}
