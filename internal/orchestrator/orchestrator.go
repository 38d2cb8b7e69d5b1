// Package orchestrator is C11: it glues the LLM adapter (C9), the session
// state machine (C10), and the tool-call executor (C8) behind interpret()
// and confirm(), serialising both under a per-session lock.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/errs"
	"github.com/haasonsaas/nexus-gateway/internal/llm"
	"github.com/haasonsaas/nexus-gateway/internal/sessions"
	"github.com/haasonsaas/nexus-gateway/internal/toolexec"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

// confirmExecuteTimeout bounds the whole confirm-execute round (spec §4.8
// step 6 / §5: "90-second timeout").
const confirmExecuteTimeout = 90 * time.Second

// keyParamNames are the fields synthesize-confirm pulls out of a tool
// call's arguments to paraphrase intent without naming the tool.
var keyParamNames = []string{"city", "date", "time", "query", "location", "name"}

// LLM is the slice of the adapter the orchestrator depends on.
type LLM interface {
	Interpret(ctx context.Context, query string, tools []models.Tool) (llm.InterpretResult, error)
	SynthesizeConfirmText(ctx context.Context, keyParams map[string]any) (string, error)
	ClassifyIntent(ctx context.Context, userInput string) (llm.Intent, error)
}

// Executor is the slice of C8 the orchestrator depends on.
type Executor interface {
	Execute(ctx context.Context, toolID string, params json.RawMessage, targetServer string) toolexec.Result
}

// Catalogue supplies the tool list (C2) formatted for the LLM call.
type Catalogue interface {
	ToolCatalogue() []models.Tool
}

// InterpretResponse is returned from Interpret.
type InterpretResponse struct {
	Type        string // "tool_call" | "direct_response"
	ToolCalls   []models.PendingToolCall
	ConfirmText string
	Content     string
	SessionID   string
}

// ConfirmResponse is returned from Confirm.
type ConfirmResponse struct {
	Success         bool
	Content         string
	DetailedResults []models.DetailedResult
	Error           string
}

// Orchestrator is C11.
type Orchestrator struct {
	store     sessions.Store
	locker    sessions.Locker
	llm       LLM
	catalogue Catalogue
	executor  Executor
}

// New builds an Orchestrator.
func New(store sessions.Store, locker sessions.Locker, llmAdapter LLM, catalogue Catalogue, executor Executor) *Orchestrator {
	return &Orchestrator{store: store, locker: locker, llm: llmAdapter, catalogue: catalogue, executor: executor}
}

// Interpret implements spec §4.8's interpret(query, session_id?, user_id).
func (o *Orchestrator) Interpret(ctx context.Context, query, sessionID, userID string) (InterpretResponse, error) {
	if err := o.locker.Lock(ctx, sessionIDOrPlaceholder(sessionID)); err != nil {
		return InterpretResponse{}, fmt.Errorf("acquire session lock: %w", err)
	}
	defer o.locker.Unlock(sessionIDOrPlaceholder(sessionID))

	session, err := o.upsertSession(ctx, sessionID, userID)
	if err != nil {
		return InterpretResponse{}, err
	}
	sessionID = session.ID

	tools := o.catalogue.ToolCatalogue()
	result, err := o.llm.Interpret(ctx, query, tools)
	if err != nil {
		o.logFailure(ctx, sessionID, models.StepInterpret, err)
		return InterpretResponse{}, err
	}

	if len(result.ToolCalls) == 0 {
		_ = o.store.AppendLog(ctx, &models.LogEntry{
			SessionID: sessionID, Step: models.StepInterpret, Status: models.LogSuccess,
			Message: "direct response",
		})
		return InterpretResponse{Type: "direct_response", Content: result.Content, SessionID: sessionID}, nil
	}

	pending := make([]models.PendingToolCall, 0, len(result.ToolCalls))
	for _, call := range result.ToolCalls {
		args, ok := tolerantParse(call.Arguments)
		if !ok {
			entry := &models.LogEntry{SessionID: sessionID, Step: models.StepInterpret, Status: models.LogError,
				Message: "could not parse tool arguments"}
			_ = o.store.Transition(ctx, sessionID, models.SessionError, entry)
			return InterpretResponse{}, errs.New(errs.ValidationError, nil, "could not parse arguments for "+call.Name)
		}
		pending = append(pending, models.PendingToolCall{ToolID: call.Name, Parameters: args})
	}

	confirmText := result.Content
	if strings.TrimSpace(confirmText) == "" {
		confirmText, err = o.llm.SynthesizeConfirmText(ctx, extractKeyParams(pending))
		if err != nil {
			confirmText = "Shall I go ahead with this?"
		}
	}

	payload, err := json.Marshal(models.PendingTools{ToolCalls: pending, OriginalQuery: query})
	if err != nil {
		return InterpretResponse{}, fmt.Errorf("marshal pending tools: %w", err)
	}
	entry := &models.LogEntry{
		SessionID: sessionID, Step: models.StepPendingTools, Status: models.LogWaiting, Message: string(payload),
	}
	if err := o.store.Transition(ctx, sessionID, models.SessionWaitingConfirm, entry); err != nil {
		return InterpretResponse{}, fmt.Errorf("transition to waiting_confirm: %w", err)
	}

	return InterpretResponse{
		Type: "tool_call", ToolCalls: pending, ConfirmText: confirmText, SessionID: sessionID,
	}, nil
}

// Confirm implements spec §4.8's confirm(session_id, user_input).
func (o *Orchestrator) Confirm(ctx context.Context, sessionID, userInput string) (ConfirmResponse, error) {
	if err := o.locker.Lock(ctx, sessionID); err != nil {
		return ConfirmResponse{}, fmt.Errorf("acquire session lock: %w", err)
	}
	defer o.locker.Unlock(sessionID)

	ctx, cancel := context.WithTimeout(ctx, confirmExecuteTimeout)
	defer cancel()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return ConfirmResponse{}, fmt.Errorf("get session: %w", err)
	}
	if session.Status.IsTerminal() {
		return o.replayTerminalSession(ctx, session)
	}

	intent, err := o.llm.ClassifyIntent(ctx, userInput)
	if err != nil {
		intent = llm.IntentAmbiguous
	}
	if intent != llm.IntentConfirm {
		entry := &models.LogEntry{SessionID: sessionID, Step: models.StepConfirm, Status: models.LogCancelled,
			Message: fmt.Sprintf("user did not confirm (intent=%s)", intent)}
		_ = o.store.Transition(ctx, sessionID, models.SessionCancelled, entry)
		return ConfirmResponse{Success: true, Content: "Please tell me again what you'd like me to do."}, nil
	}

	pendingEntry, err := o.store.LatestPendingTools(ctx, sessionID)
	if err != nil || pendingEntry == nil {
		return ConfirmResponse{}, fmt.Errorf("no pending tool calls for session: %w", err)
	}
	var pending models.PendingTools
	if err := json.Unmarshal([]byte(pendingEntry.Message), &pending); err != nil {
		return ConfirmResponse{}, fmt.Errorf("decode pending tools: %w", err)
	}

	startEntry := &models.LogEntry{SessionID: sessionID, Step: models.StepExecuteStart, Status: models.LogProcessing,
		Message: fmt.Sprintf("executing %d tool call(s)", len(pending.ToolCalls))}
	if err := o.store.Transition(ctx, sessionID, models.SessionExecuting, startEntry); err != nil {
		return ConfirmResponse{}, fmt.Errorf("transition to executing: %w", err)
	}

	detailed := make([]models.DetailedResult, 0, len(pending.ToolCalls))
	var summaries []string
	var errMessages []string
	for _, call := range pending.ToolCalls {
		result := o.executor.Execute(ctx, call.ToolID, call.Parameters, "")
		detailed = append(detailed, models.DetailedResult{
			ToolID: call.ToolID, Success: result.Success, Content: result.Data, Error: result.Error,
		})
		if result.Success {
			summaries = append(summaries, result.Data)
		} else {
			errMessages = append(errMessages, result.Error)
		}
	}

	if ctx.Err() != nil {
		entry := &models.LogEntry{SessionID: sessionID, Step: models.StepExecuteEnd, Status: models.LogError,
			Message: "confirm-execute round timed out"}
		_ = o.store.Transition(ctx, sessionID, models.SessionError, entry)
		return ConfirmResponse{Success: false, Error: "execution timed out"}, nil
	}

	if len(errMessages) == 0 {
		joined := strings.Join(summaries, "\n")
		payload, _ := json.Marshal(models.ExecuteConfirmed{Summary: joined, DetailedResults: detailed})
		entry := &models.LogEntry{SessionID: sessionID, Step: models.StepExecuteConfirmed, Status: models.LogSuccess,
			Message: string(payload)}
		if err := o.store.Transition(ctx, sessionID, models.SessionDone, entry); err != nil {
			return ConfirmResponse{}, fmt.Errorf("transition to done: %w", err)
		}
		return ConfirmResponse{Success: true, Content: joined, DetailedResults: detailed}, nil
	}

	joined := strings.Join(errMessages, "\n")
	entry := &models.LogEntry{SessionID: sessionID, Step: models.StepExecuteEnd, Status: models.LogError, Message: joined}
	_ = o.store.Transition(ctx, sessionID, models.SessionError, entry)
	return ConfirmResponse{Success: false, Error: joined, DetailedResults: detailed}, nil
}

// replayTerminalSession makes confirm() idempotent for an already-done
// session by replaying its cached execute_confirmed summary.
func (o *Orchestrator) replayTerminalSession(ctx context.Context, session *models.Session) (ConfirmResponse, error) {
	if session.Status != models.SessionDone {
		return ConfirmResponse{Success: false, Error: "session already concluded"}, nil
	}
	cached, err := o.store.LatestByStep(ctx, session.ID, models.StepExecuteConfirmed)
	if err != nil || cached == nil {
		return ConfirmResponse{Success: false, Error: "session already concluded"}, nil
	}
	var confirmed models.ExecuteConfirmed
	if err := json.Unmarshal([]byte(cached.Message), &confirmed); err != nil {
		return ConfirmResponse{Success: false, Error: "session already concluded"}, nil
	}
	return ConfirmResponse{Success: true, Content: confirmed.Summary, DetailedResults: confirmed.DetailedResults}, nil
}

func (o *Orchestrator) upsertSession(ctx context.Context, sessionID, userID string) (*models.Session, error) {
	if sessionID != "" {
		if existing, err := o.store.GetSession(ctx, sessionID); err == nil && existing != nil {
			return existing, nil
		}
	}
	session := &models.Session{ID: sessionID, UserID: userID, Status: models.SessionParsing}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (o *Orchestrator) logFailure(ctx context.Context, sessionID, step string, err error) {
	_ = o.store.AppendLog(ctx, &models.LogEntry{
		SessionID: sessionID, Step: step, Status: models.LogError, Message: err.Error(),
	})
}

func sessionIDOrPlaceholder(sessionID string) string {
	if sessionID == "" {
		return "new-session"
	}
	return sessionID
}

// tolerantParse parses raw tool-call arguments, attempting a best-effort
// repair (closing unbalanced braces/brackets/quotes) on failure before
// giving up (spec §4.8: "attempt a tolerant repair").
func tolerantParse(raw string) (json.RawMessage, bool) {
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw), true
	}
	repaired := repairJSON(raw)
	if json.Valid([]byte(repaired)) {
		return json.RawMessage(repaired), true
	}
	return nil, false
}

func repairJSON(raw string) string {
	s := strings.TrimSpace(raw)
	openQuotes := strings.Count(s, `"`) % 2
	if openQuotes == 1 {
		s += `"`
	}

	var stack []byte
	inString := false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			if i == 0 || s[i-1] != '\\' {
				inString = !inString
			}
		case '{', '[':
			if !inString {
				stack = append(stack, s[i])
			}
		case '}', ']':
			if !inString && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			s += "}"
		} else {
			s += "]"
		}
	}
	return s
}

func extractKeyParams(calls []models.PendingToolCall) map[string]any {
	out := map[string]any{}
	for _, call := range calls {
		var args map[string]any
		if err := json.Unmarshal(call.Parameters, &args); err != nil {
			continue
		}
		for _, key := range keyParamNames {
			if value, ok := args[key]; ok {
				out[key] = value
			}
		}
	}
	return out
}
