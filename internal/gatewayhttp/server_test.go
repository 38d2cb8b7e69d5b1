package gatewayhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/errs"
	"github.com/haasonsaas/nexus-gateway/internal/orchestrator"
	"github.com/haasonsaas/nexus-gateway/internal/toolexec"
)

type fakeOrchestrator struct {
	interpretResp orchestrator.InterpretResponse
	interpretErr  error
	confirmResp   orchestrator.ConfirmResponse
	confirmErr    error
}

func (f *fakeOrchestrator) Interpret(ctx context.Context, query, sessionID, userID string) (orchestrator.InterpretResponse, error) {
	return f.interpretResp, f.interpretErr
}

func (f *fakeOrchestrator) Confirm(ctx context.Context, sessionID, userInput string) (orchestrator.ConfirmResponse, error) {
	return f.confirmResp, f.confirmErr
}

type fakeExecutor struct {
	result toolexec.Result
}

func (f *fakeExecutor) Execute(ctx context.Context, toolID string, params json.RawMessage, targetServer string) toolexec.Result {
	return f.result
}

type fakeAdmin struct {
	resetErr   error
	resetCalls []string
	reloadDiff config.RegistryDiff
	reloadErr  error
}

func (f *fakeAdmin) ResetServerFailures(name string) error {
	f.resetCalls = append(f.resetCalls, name)
	return f.resetErr
}

func (f *fakeAdmin) ReloadRegistry(ctx context.Context) (config.RegistryDiff, error) {
	return f.reloadDiff, f.reloadErr
}

func postJSON(t *testing.T, server *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func TestHandleInterpretDirectResponse(t *testing.T) {
	orch := &fakeOrchestrator{interpretResp: orchestrator.InterpretResponse{
		Type: "direct_response", Content: "hi there", SessionID: "s1",
	}}
	server := NewServer(orch, &fakeExecutor{}, nil, nil)

	rec := postJSON(t, server, "/intent/interpret", map[string]string{"query": "hi", "user_id": "u1"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp interpretResponseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Type != "direct_response" || resp.Content != "hi there" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleInterpretErrorReturns500(t *testing.T) {
	orch := &fakeOrchestrator{interpretErr: errs.New(errs.InternalError, nil, "boom")}
	server := NewServer(orch, &fakeExecutor{}, nil, nil)

	rec := postJSON(t, server, "/intent/interpret", map[string]string{"query": "hi", "user_id": "u1"})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var errObj errorObject
	if err := json.Unmarshal(rec.Body.Bytes(), &errObj); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if errObj.Code != string(errs.InternalError) {
		t.Fatalf("unexpected error code: %+v", errObj)
	}
}

func TestHandleConfirmNeverRaisesOnFailure(t *testing.T) {
	orch := &fakeOrchestrator{confirmResp: orchestrator.ConfirmResponse{Success: false, Error: "rejected"}}
	server := NewServer(orch, &fakeExecutor{}, nil, nil)

	rec := postJSON(t, server, "/intent/confirm", map[string]string{"session_id": "s1", "user_input": "no"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even on failure, got %d", rec.Code)
	}

	var resp confirmResponseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error != "rejected" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleExecuteSuccess(t *testing.T) {
	executor := &fakeExecutor{result: toolexec.Result{Success: true, Data: "sunny"}}
	server := NewServer(&fakeOrchestrator{}, executor, nil, nil)

	rec := postJSON(t, server, "/execute", map[string]any{"tool_id": "get_weather", "params": map[string]string{"city": "Paris"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp executeResponseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Success || resp.Data != "sunny" || resp.Error != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleExecuteTimeoutReturnsStructuredError(t *testing.T) {
	executor := &fakeExecutor{result: toolexec.Result{
		Success: false, ErrorCode: string(errs.ToolExecutionTimeout),
		ErrorMessage: `tool "slow_tool" timed out`, ShouldRetry: true,
	}}
	server := NewServer(&fakeOrchestrator{}, executor, nil, nil)

	rec := postJSON(t, server, "/execute", map[string]any{"tool_id": "slow_tool", "params": map[string]string{}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp executeResponseJSON
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Success || resp.Error == nil || resp.Error.Code != string(errs.ToolExecutionTimeout) || !resp.Error.ShouldRetry {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleHealthz(t *testing.T) {
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleInterpretRejectsNonPost(t *testing.T) {
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/intent/interpret", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestUseWrapsHandler(t *testing.T) {
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, nil, nil)

	var sawPath string
	server.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawPath = r.URL.Path
			next.ServeHTTP(w, r)
		})
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if sawPath != "/healthz" || rec.Code != http.StatusOK {
		t.Fatalf("middleware did not run: path=%q code=%d", sawPath, rec.Code)
	}
}

func TestHandleAdminResetServerWithoutAdminReturns503(t *testing.T) {
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, nil, nil)
	rec := postJSON(t, server, "/admin/servers/reset", map[string]string{"name": "weather"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleAdminResetServerCallsAdmin(t *testing.T) {
	admin := &fakeAdmin{}
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, admin, nil)

	rec := postJSON(t, server, "/admin/servers/reset", map[string]string{"name": "weather"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"weather"}, admin.resetCalls)
}

func TestHandleAdminReloadRegistry(t *testing.T) {
	admin := &fakeAdmin{reloadDiff: config.RegistryDiff{Version: 2, Added: []string{"weather"}}}
	server := NewServer(&fakeOrchestrator{}, &fakeExecutor{}, admin, nil)

	rec := postJSON(t, server, "/admin/registry/reload", map[string]string{})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var diff config.RegistryDiff
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &diff))
	assert.Equal(t, 2, diff.Version)
	assert.Equal(t, []string{"weather"}, diff.Added)
}
