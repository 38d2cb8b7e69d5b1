// Package gatewayhttp exposes the core's external HTTP surface (spec §6):
// POST /intent/interpret, POST /intent/confirm, POST /execute, plus
// /healthz and /metrics. Grounded on the teacher's
// internal/gateway/http_server.go — plain net/http.ServeMux, no web
// framework, promhttp.Handler() mounted directly, a net.Listen + http.Server
// pair with graceful Shutdown.
package gatewayhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/internal/errs"
	"github.com/haasonsaas/nexus-gateway/internal/orchestrator"
	"github.com/haasonsaas/nexus-gateway/internal/toolexec"
)

// Orchestrator is the slice of orchestrator.Orchestrator the HTTP surface
// drives: interpret() and confirm() per spec §4.8.
type Orchestrator interface {
	Interpret(ctx context.Context, query, sessionID, userID string) (orchestrator.InterpretResponse, error)
	Confirm(ctx context.Context, sessionID, userInput string) (orchestrator.ConfirmResponse, error)
}

// Executor is C8's direct entry point, used by POST /execute for a
// standalone tool invocation outside the interpret/confirm flow.
type Executor interface {
	Execute(ctx context.Context, toolID string, params json.RawMessage, targetServer string) toolexec.Result
}

// Admin is the narrow operational surface the doctor CLI drives over HTTP
// (spec §5 supplement: "reset_server_failures exposed as a CLI
// subcommand"), grounded on the teacher's api_client.go remote-admin
// pattern rather than an offline doctor tool operating on a second,
// unrelated in-memory registry.
type Admin interface {
	ResetServerFailures(name string) error
	ReloadRegistry(ctx context.Context) (config.RegistryDiff, error)
}

// Server is the gateway's HTTP surface.
type Server struct {
	orchestrator Orchestrator
	executor     Executor
	admin        Admin
	logger       *slog.Logger
	mux          *http.ServeMux
	handler      http.Handler
	startTime    time.Time

	httpServer *http.Server
	listener   net.Listener
}

// NewServer builds the HTTP surface and wires its routes. admin may be nil,
// in which case the /admin/* routes answer 503 rather than panicking.
func NewServer(orch Orchestrator, executor Executor, admin Admin, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		orchestrator: orch,
		executor:     executor,
		admin:        admin,
		logger:       logger.With("component", "gatewayhttp"),
		mux:          http.NewServeMux(),
		startTime:    time.Now(),
	}
	s.setupRoutes()
	s.handler = s.mux
	return s
}

// Use wraps the server's handler with mw, following the teacher's Mount()
// middleware-stacking shape. The real auth/logging middleware attaches
// here (spec §1 Non-goals: this gateway doesn't terminate auth itself,
// but a caller can still install internal/auth's pass-through subject
// extraction, or any other net/http middleware, without gatewayhttp
// depending on its concrete type).
func (s *Server) Use(mw func(http.Handler) http.Handler) *Server {
	s.handler = mw(s.handler)
	return s
}

func (s *Server) setupRoutes() {
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/intent/interpret", s.handleInterpret)
	s.mux.HandleFunc("/intent/confirm", s.handleConfirm)
	s.mux.HandleFunc("/execute", s.handleExecute)
	s.mux.HandleFunc("/admin/servers/reset", s.handleAdminResetServer)
	s.mux.HandleFunc("/admin/registry/reload", s.handleAdminReloadRegistry)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Start binds addr and begins serving in the background, following the
// teacher's startHTTPServer shape (net.Listen then server.Serve in a
// goroutine, so callers can log the bound address before traffic flows).
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}

	s.httpServer = &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.listener = listener

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("starting http server", "addr", addr)
	return nil
}

// Shutdown gracefully drains in-flight requests before returning.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	})
}

type interpretRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
}

type toolCallJSON struct {
	ToolID     string          `json:"tool_id"`
	Parameters json.RawMessage `json:"parameters"`
}

type interpretResponseJSON struct {
	Type        string         `json:"type"`
	ToolCalls   []toolCallJSON `json:"tool_calls,omitempty"`
	ConfirmText string         `json:"confirm_text,omitempty"`
	Content     string         `json:"content,omitempty"`
	SessionID   string         `json:"session_id"`
}

// handleInterpret implements POST /intent/interpret. Per spec §7, errors
// from this phase become an HTTP 500 with the {code,message,...} body.
func (s *Server) handleInterpret(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req interpretRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orchestrator.Interpret(r.Context(), req.Query, req.SessionID, req.UserID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	calls := make([]toolCallJSON, 0, len(resp.ToolCalls))
	for _, call := range resp.ToolCalls {
		calls = append(calls, toolCallJSON{ToolID: call.ToolID, Parameters: call.Parameters})
	}

	writeJSON(w, http.StatusOK, interpretResponseJSON{
		Type:        resp.Type,
		ToolCalls:   calls,
		ConfirmText: resp.ConfirmText,
		Content:     resp.Content,
		SessionID:   resp.SessionID,
	})
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
	UserInput string `json:"user_input"`
}

type confirmResponseJSON struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

// handleConfirm implements POST /intent/confirm. Per spec §7, confirm()
// never raises to the caller: any orchestration failure is folded into
// {success:false, error} instead of an HTTP error status.
func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req confirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.orchestrator.Confirm(r.Context(), req.SessionID, req.UserInput)
	if err != nil {
		writeJSON(w, http.StatusOK, confirmResponseJSON{
			SessionID: req.SessionID,
			Success:   false,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, confirmResponseJSON{
		SessionID: req.SessionID,
		Success:   resp.Success,
		Content:   resp.Content,
		Error:     resp.Error,
	})
}

type executeRequest struct {
	ToolID    string          `json:"tool_id"`
	Params    json.RawMessage `json:"params"`
	SessionID string          `json:"session_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
}

type errorObject struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	OriginalError string `json:"original_error,omitempty"`
	ShouldRetry   bool   `json:"should_retry,omitempty"`
}

type executeResponseJSON struct {
	ToolID    string       `json:"tool_id"`
	Success   bool         `json:"success"`
	Data      string       `json:"data,omitempty"`
	Error     *errorObject `json:"error,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
}

// handleExecute implements POST /execute: a standalone tool invocation
// with the structured {code,message,should_retry} error object spec §6
// describes, bypassing the interpret/confirm flow entirely.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result := s.executor.Execute(r.Context(), req.ToolID, req.Params, "")

	resp := executeResponseJSON{ToolID: req.ToolID, Success: result.Success, SessionID: req.SessionID}
	if result.Success {
		resp.Data = result.Data
	} else {
		resp.Error = &errorObject{
			Code:          result.ErrorCode,
			Message:       result.ErrorMessage,
			OriginalError: result.Error,
			ShouldRetry:   result.ShouldRetry,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetServerRequest struct {
	Name string `json:"name"`
}

// handleAdminResetServer implements POST /admin/servers/reset, backing the
// doctor CLI's "reset-server" subcommand.
func (s *Server) handleAdminResetServer(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if s.admin == nil {
		http.Error(w, "admin surface not configured", http.StatusServiceUnavailable)
		return
	}

	var req resetServerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorObject{
			Code: string(errs.ValidationError), Message: "name is required",
		})
		return
	}

	if err := s.admin.ResetServerFailures(req.Name); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": req.Name, "reset": true})
}

// handleAdminReloadRegistry implements POST /admin/registry/reload.
func (s *Server) handleAdminReloadRegistry(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	if s.admin == nil {
		http.Error(w, "admin surface not configured", http.StatusServiceUnavailable)
		return
	}

	diff, err := s.admin.ReloadRegistry(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, diff)
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	var classified *errs.Error
	if !errors.As(err, &classified) {
		classified = errs.New(errs.InternalError, err, err.Error())
	}
	writeJSON(w, status, errorObject{
		Code:          string(classified.Kind),
		Message:       classified.Message,
		OriginalError: err.Error(),
		ShouldRetry:   classified.ShouldRetry,
	})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorObject{
			Code:    string(errs.ValidationError),
			Message: "request body must be valid JSON",
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
