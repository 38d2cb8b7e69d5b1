package sessions

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

func TestMemoryStoreCreateAndTransition(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{UserID: "user-1", Status: models.SessionParsing}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if session.ID == "" {
		t.Fatal("expected allocated session id")
	}

	err := store.Transition(ctx, session.ID, models.SessionWaitingConfirm, &models.LogEntry{
		Step: models.StepPendingTools, Status: models.LogWaiting, Message: `{"tool_calls":[]}`,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := store.GetSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Status != models.SessionWaitingConfirm {
		t.Fatalf("status = %s, want waiting_confirm", got.Status)
	}

	entry, err := store.LatestPendingTools(ctx, session.ID)
	if err != nil {
		t.Fatalf("LatestPendingTools: %v", err)
	}
	if entry == nil {
		t.Fatal("expected a pending_tools log row")
	}
}

func TestMemoryStoreTransitionFromTerminalRejected(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	session := &models.Session{UserID: "user-1", Status: models.SessionParsing}
	_ = store.CreateSession(ctx, session)
	_ = store.Transition(ctx, session.ID, models.SessionDone, &models.LogEntry{Step: models.StepExecuteConfirmed, Status: models.LogSuccess})

	if err := store.Transition(ctx, session.ID, models.SessionExecuting, &models.LogEntry{Step: models.StepConfirm, Status: models.LogProcessing}); err != ErrTerminalSession {
		t.Fatalf("expected ErrTerminalSession, got %v", err)
	}
}

func TestMemoryStoreGetSessionNotFound(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.GetSession(context.Background(), "missing"); err != ErrSessionNotFound {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}
