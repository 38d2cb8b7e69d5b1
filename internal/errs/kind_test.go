package errs

import (
	"errors"
	"testing"
)

func TestNewNonRetryableKinds(t *testing.T) {
	for _, kind := range []Kind{ConfigInvalid, ConfigNotFound, ProcessPermissionDenied, ValidationError, ToolNotFound, ToolInvalidParams} {
		e := New(kind, nil)
		if e.ShouldRetry {
			t.Errorf("expected %s to be non-retryable", kind)
		}
	}
}

func TestNewRetryableKind(t *testing.T) {
	e := New(ConnectionTimeout, nil, "db")
	if !e.ShouldRetry {
		t.Fatal("expected CONNECTION_TIMEOUT to be retryable")
	}
	if e.Message == "" {
		t.Fatal("expected rendered message")
	}
}

func TestClassifyPreservesExistingKind(t *testing.T) {
	wrapped := New(ToolNotFound, nil, "echo")
	if got := Classify(wrapped); got != ToolNotFound {
		t.Fatalf("expected ToolNotFound, got %s", got)
	}
}

func TestClassifyFromRawText(t *testing.T) {
	cases := map[string]Kind{
		"dial tcp: connection refused":       ConnectionRefused,
		"context deadline exceeded":          ConnectionTimeout,
		"permission denied":                  ProcessPermissionDenied,
		"process exit status 1: crashed":     ProcessCrashed,
		"write: broken pipe":                 ConnectionLost,
	}
	for text, want := range cases {
		got := Classify(errors.New(text))
		if got != want {
			t.Errorf("Classify(%q) = %s, want %s", text, got, want)
		}
	}
}

func TestIsConnectionClass(t *testing.T) {
	if !IsConnectionClass(ServerCrashed) {
		t.Fatal("expected SERVER_CRASHED to be connection-class")
	}
	if IsConnectionClass(ToolInvalidParams) {
		t.Fatal("expected TOOL_INVALID_PARAMS to not be connection-class")
	}
}
