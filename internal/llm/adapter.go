// Package llm wraps a chat-completions provider (C9): formatting the tool
// catalogue for tool-choice, issuing the completion call, extracting
// tool_calls or direct content, and summarizing tool results in natural
// language. Grounded on the teacher's agent/providers OpenAI provider,
// trimmed from its streaming multi-model routing down to the single
// opaque non-streaming provider the spec describes.
package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus-gateway/internal/config"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

const systemPrompt = `You are a gateway assistant. Prefer calling a tool for information ` +
	`retrieval, external actions, and data operations. Answer directly only for greetings, ` +
	`general-knowledge chit-chat, and opinion questions.`

// ToolCall is one tool invocation the LLM proposed.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// InterpretResult is what Complete returns to the orchestrator.
type InterpretResult struct {
	ToolCalls []ToolCall
	Content   string
}

// Intent is confirm()'s classification of a user's reply.
type Intent string

const (
	IntentConfirm   Intent = "confirm"
	IntentReject    Intent = "reject"
	IntentRestart   Intent = "restart"
	IntentAmbiguous Intent = "ambiguous"
)

// Adapter is C9.
type Adapter struct {
	client *openai.Client
	cfg    config.LLMConfig
}

// New builds an Adapter from cfg. A custom APIBase is honored via
// openai.DefaultConfig + BaseURL, matching self-hosted/proxy deployments.
func New(cfg config.LLMConfig) *Adapter {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		clientCfg.BaseURL = cfg.APIBase
	}
	return &Adapter{
		client: openai.NewClientWithConfig(clientCfg),
		cfg:    cfg,
	}
}

// Interpret calls the LLM with the user's query and the formatted tool
// catalogue, with tool_choice left to "auto".
func (a *Adapter) Interpret(ctx context.Context, query string, tools []models.Tool) (InterpretResult, error) {
	req := openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: float32(a.cfg.Temperature),
		MaxTokens:   a.cfg.MaxTokens,
	}
	if len(tools) > 0 {
		req.Tools = formatToolsForLLM(tools)
		req.ToolChoice = "auto"
	}

	resp, err := a.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return InterpretResult{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return InterpretResult{}, fmt.Errorf("chat completion returned no choices")
	}

	message := resp.Choices[0].Message
	if len(message.ToolCalls) > 0 {
		calls := make([]ToolCall, 0, len(message.ToolCalls))
		for _, tc := range message.ToolCalls {
			calls = append(calls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
		}
		return InterpretResult{ToolCalls: calls, Content: message.Content}, nil
	}

	return InterpretResult{Content: message.Content}, nil
}

// SynthesizeConfirmText re-prompts the LLM to paraphrase the user's
// intent from the tool's key parameters, without naming any tool, when
// the model didn't already produce a natural-language confirmation.
func (a *Adapter) SynthesizeConfirmText(ctx context.Context, keyParams map[string]any) (string, error) {
	paramsJSON, err := json.Marshal(keyParams)
	if err != nil {
		return "", fmt.Errorf("marshal key parameters: %w", err)
	}

	prompt := fmt.Sprintf(
		"Paraphrase the user's request as a short confirmation question, using these "+
			"parameters, without naming any tool or system: %s", string(paramsJSON))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(a.cfg.Temperature),
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("synthesize confirm text: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("synthesize confirm text returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ClassifyIntent applies the keyword whitelist first and only falls back
// to an LLM classification call when the input is ambiguous.
func (a *Adapter) ClassifyIntent(ctx context.Context, userInput string) (Intent, error) {
	if intent, ok := classifyByKeyword(userInput); ok {
		return intent, nil
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Classify the user's reply as exactly one " +
				"word: confirm, reject, restart, or ambiguous."},
			{Role: openai.ChatMessageRoleUser, Content: userInput},
		},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		return IntentAmbiguous, fmt.Errorf("classify intent: %w", err)
	}
	if len(resp.Choices) == 0 {
		return IntentAmbiguous, nil
	}
	return parseIntent(resp.Choices[0].Message.Content), nil
}

// SummarizeToolResult produces a short natural-language summary of a raw
// tool result, implementing toolexec.Summarizer.
func (a *Adapter) SummarizeToolResult(ctx context.Context, toolName, rawResult string) (string, error) {
	prompt := fmt.Sprintf("Summarize this tool result from %q in one or two plain-language "+
		"sentences:\n\n%s", toolName, rawResult)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(a.cfg.Temperature),
		MaxTokens:   a.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("summarize tool result: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize tool result returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func formatToolsForLLM(tools []models.Tool) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, tool := range tools {
		var schema map[string]any
		if len(tool.RequestSchema) > 0 {
			if err := json.Unmarshal(tool.RequestSchema, &schema); err != nil {
				schema = map[string]any{"type": "object", "properties": map[string]any{}}
			}
		} else {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.ToolID,
				Description: tool.Description,
				Parameters:  schema,
			},
		})
	}
	return out
}
