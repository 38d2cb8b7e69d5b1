package toolexec

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/haasonsaas/nexus-gateway/internal/mcp"
	"github.com/haasonsaas/nexus-gateway/pkg/models"
)

type fakeCatalogue struct {
	tools         map[string]models.Tool
	defaultServer string
}

func (c *fakeCatalogue) Lookup(toolID string) (models.Tool, bool) {
	t, ok := c.tools[toolID]
	return t, ok
}
func (c *fakeCatalogue) DefaultServer() (string, bool) {
	return c.defaultServer, c.defaultServer != ""
}

type fakePool struct {
	client  *mcp.Client
	err     error
	evicted []string
}

func (p *fakePool) Acquire(ctx context.Context, name string) (*mcp.Client, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.client, nil
}
func (p *fakePool) Evict(name string) { p.evicted = append(p.evicted, name) }

type fakeProcesses struct {
	evicted []string
}

func (f *fakeProcesses) Evict(name string) { f.evicted = append(f.evicted, name) }

type fakeSummarizer struct {
	summary string
	err     error
}

func (f *fakeSummarizer) SummarizeToolResult(ctx context.Context, toolName, raw string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func TestExecuteUnknownToolFails(t *testing.T) {
	catalogue := &fakeCatalogue{tools: map[string]models.Tool{}}
	exec := New(&fakePool{}, nil, catalogue, nil, nil)

	result := exec.Execute(context.Background(), "missing", nil, "")
	if result.Success {
		t.Fatal("expected failure for unknown tool")
	}
}

func TestExecuteNoServerConfiguredFails(t *testing.T) {
	catalogue := &fakeCatalogue{tools: map[string]models.Tool{
		"weather": {ToolID: "weather", Name: "get_weather"},
	}}
	exec := New(&fakePool{}, nil, catalogue, nil, nil)

	result := exec.Execute(context.Background(), "weather", nil, "")
	if result.Success {
		t.Fatal("expected failure when no server can be resolved")
	}
}

func TestExecutePropagatesAcquireFailure(t *testing.T) {
	catalogue := &fakeCatalogue{tools: map[string]models.Tool{
		"weather": {ToolID: "weather", Name: "get_weather", ServerName: "alpha"},
	}}
	pool := &fakePool{err: errors.New("connection refused")}
	exec := New(pool, nil, catalogue, nil, nil)

	result := exec.Execute(context.Background(), "weather", nil, "")
	if result.Success {
		t.Fatal("expected failure when the pool cannot acquire a connection")
	}
	if result.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestExtractPayloadSingleText(t *testing.T) {
	result := &mcp.ToolCallResult{Content: mcp.NewTextContent("sunny, 72F")}
	if got := extractPayload(result); got != "sunny, 72F" {
		t.Fatalf("expected single text passthrough, got %q", got)
	}
}

func TestExtractPayloadConcatenatesMultipleTextItems(t *testing.T) {
	var content mcp.ToolContent
	if err := jsonUnmarshalToolContent(`["item one","item two"]`, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	result := &mcp.ToolCallResult{Content: content}
	got := extractPayload(result)
	if got != "item one\nitem two" {
		t.Fatalf("expected joined text items, got %q", got)
	}
}

func TestExtractPayloadFallsBackToJSON(t *testing.T) {
	var content mcp.ToolContent
	raw := `{"base64":"aGVsbG8="}`
	if err := jsonUnmarshalToolContent(raw, &content); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	result := &mcp.ToolCallResult{Content: content}
	got := extractPayload(result)
	if got != raw {
		t.Fatalf("expected JSON fallback %q, got %q", raw, got)
	}
}

func TestExtractPayloadNilResult(t *testing.T) {
	if got := extractPayload(nil); got != "" {
		t.Fatalf("expected empty string for nil result, got %q", got)
	}
}

func jsonUnmarshalToolContent(raw string, content *mcp.ToolContent) error {
	return json.Unmarshal([]byte(raw), content)
}

func TestSummarizeFallsBackOnFailure(t *testing.T) {
	exec := New(&fakePool{}, nil, &fakeCatalogue{}, &fakeSummarizer{err: errors.New("llm down")}, nil)
	got := exec.summarize(context.Background(), "get_weather", "raw data")
	if got != "Tool get_weather executed successfully" {
		t.Fatalf("expected fallback summary, got %q", got)
	}
}
